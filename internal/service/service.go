package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/rongwang/library-circulation/internal/models"
	"github.com/rongwang/library-circulation/internal/repository"
	"github.com/rongwang/library-circulation/internal/utils"
)

// DefaultGracePeriodDays is how long an unpaid fine may stay open before it is itself overdue
const DefaultGracePeriodDays = 30

// DefaultDailyRate is the overdue fine charged per day late
var DefaultDailyRate = decimal.NewFromInt(5)

// Service defines all the business logic operations
type Service interface {
	// Authentication
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	EnsureAdmin(ctx context.Context, email, password, name string) error

	// Catalog
	RegisterCopy(ctx context.Context, req models.RegisterCopyRequest) (*models.Copy, error)
	GetCopy(ctx context.Context, copyID string) (*models.Copy, error)

	// Loan ledger
	OpenLoan(ctx context.Context, req models.OpenLoanRequest) (*models.LoanResponse, error)
	GetLoan(ctx context.Context, caller Caller, loanID string) (*models.LoanResponse, error)
	ListLoans(ctx context.Context, caller Caller, filter models.LoanFilter) ([]models.LoanResponse, error)
	GetActiveLoans(ctx context.Context, borrowerID string) ([]models.LoanResponse, error)
	GetOverdueLoans(ctx context.Context, asOf models.Date) ([]models.LoanResponse, error)
	CancelLoan(ctx context.Context, loanID string) (*models.LoanResponse, error)
	DeleteLoan(ctx context.Context, loanID string) error

	// Return recorder
	RecordReturn(ctx context.Context, req models.RecordReturnRequest) (*models.ReturnResult, error)
	GetReturn(ctx context.Context, returnID string) (*models.Return, error)
	GetReturnByLoan(ctx context.Context, caller Caller, loanID string) (*models.Return, error)
	ListReturns(ctx context.Context, filter models.ReturnFilter) ([]models.Return, error)
	CorrectReturn(ctx context.Context, returnID string, req models.CorrectReturnRequest) (*models.Return, error)
	DeleteReturn(ctx context.Context, returnID string) error

	// Fine engine
	CreateManualFine(ctx context.Context, req models.CreateFineRequest) (*models.FineResponse, error)
	GetFine(ctx context.Context, caller Caller, fineID string) (*models.FineResponse, error)
	ListFines(ctx context.Context, caller Caller, filter models.FineFilter) ([]models.FineResponse, error)
	MarkPaid(ctx context.Context, fineID string, req models.MarkPaidRequest) (*models.FineResponse, error)
	MarkUnpaid(ctx context.Context, fineID string) (*models.FineResponse, error)
	DeleteFine(ctx context.Context, fineID string) error
	TotalOwed(ctx context.Context, caller Caller, userID string) (*models.TotalOwedResponse, error)
	IsFineOverdue(fine models.Fine, asOf models.Date) bool
}

// CatalogStore is the part of the catalog the circulation core consults
type CatalogStore interface {
	GetCopy(ctx context.Context, id string) (*models.Copy, error)
	SetCopyStatus(ctx context.Context, id, status string) error
}

// IdentityStore resolves user references
type IdentityStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Caller identifies who is invoking an operation
type Caller struct {
	UserID string
	Role   string
}

// IsStaff reports whether the caller may see every member's records
func (c Caller) IsStaff() bool {
	return models.IsStaffRole(c.Role)
}

// canSee reports whether the caller may read a record owned by userID
func (c Caller) canSee(userID string) bool {
	return c.IsStaff() || c.UserID == userID
}

// FinePolicy holds the amounts and periods the fine engine works with
type FinePolicy struct {
	DailyRate decimal.Decimal
	// DamageFee and LossFee are charged automatically on return when positive
	DamageFee       decimal.Decimal
	LossFee         decimal.Decimal
	GracePeriodDays int
}

// DefaultFinePolicy charges DefaultDailyRate per day late with no condition fees
func DefaultFinePolicy() FinePolicy {
	return FinePolicy{
		DailyRate:       DefaultDailyRate,
		GracePeriodDays: DefaultGracePeriodDays,
	}
}

// Settings configures a DefaultService
type Settings struct {
	JWTSecret     string
	TokenDuration time.Duration
	// Fines is used as given; a zero DailyRate charges nothing per day late
	Fines FinePolicy
}

// Option customizes a DefaultService
type Option func(*DefaultService)

// WithClock replaces the source of the current time
func WithClock(now func() time.Time) Option {
	return func(s *DefaultService) {
		s.now = now
	}
}

// WithLogger sets the logger used for non-fatal failures
func WithLogger(logger *utils.Logger) Option {
	return func(s *DefaultService) {
		s.logger = logger
	}
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo          repository.Repository
	catalog       CatalogStore
	identity      IdentityStore
	jwtSecret     []byte
	tokenDuration time.Duration
	fines         FinePolicy
	validate      *validator.Validate
	logger        *utils.Logger
	now           func() time.Time
}

// NewDefaultService creates a new DefaultService.
// A nil catalog or identity store falls back to repo.
func NewDefaultService(
	repo repository.Repository,
	catalog CatalogStore,
	identity IdentityStore,
	settings Settings,
	opts ...Option,
) Service {
	if catalog == nil {
		catalog = repo
	}
	if identity == nil {
		identity = repo
	}

	if settings.TokenDuration <= 0 {
		settings.TokenDuration = 24 * time.Hour // 24 hours token validity
	}

	s := &DefaultService{
		repo:          repo,
		catalog:       catalog,
		identity:      identity,
		jwtSecret:     []byte(settings.JWTSecret),
		tokenDuration: settings.TokenDuration,
		fines:         settings.Fines,
		validate:      newValidator(),
		logger:        utils.Discard(),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *DefaultService) today() models.Date {
	return models.DateOf(s.now())
}

// Authentication methods
func (s *DefaultService) SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error) {
	// Check if user already exists
	existingUser, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, infra("error checking user existence", err)
	}

	if existingUser != nil {
		return nil, conflict("user with this email already exists")
	}

	user, err := s.createUser(ctx, req.Email, req.Password, req.Name, models.RoleReader)
	if err != nil {
		return nil, err
	}

	return &models.AuthResponse{
		Status: "success",
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Role:   user.Role,
	}, nil
}

func (s *DefaultService) createUser(ctx context.Context, email, password, name, role string) (*models.User, error) {
	// Hash the password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{
		ID:       uuid.New().String(),
		Email:    email,
		Name:     name,
		Password: string(hashedPassword),
		Role:     role,
		Active:   true,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, wrapError("error creating user", err)
	}

	return user, nil
}

func (s *DefaultService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	// Get the user
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, infra("error getting user", err)
	}

	if user == nil || !user.Active {
		return nil, ErrInvalidCredentials
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// Generate JWT token
	token, err := s.generateJWT(user)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}

	return &models.AuthResponse{
		Status:    "success",
		UserID:    user.ID,
		Role:      user.Role,
		Token:     token,
		ExpiresIn: int(s.tokenDuration.Seconds()),
	}, nil
}

// EnsureAdmin creates the bootstrap administrator unless the email is already registered
func (s *DefaultService) EnsureAdmin(ctx context.Context, email, password, name string) error {
	if email == "" {
		return nil
	}
	if password == "" {
		return invalidField("password", "is required for the admin account")
	}

	existing, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return infra("error checking admin account", err)
	}
	if existing != nil {
		if existing.Role != models.RoleAdmin {
			s.logger.Warn("Admin email %s belongs to a %s account", email, existing.Role)
		}
		return nil
	}

	user, err := s.createUser(ctx, email, password, name, models.RoleAdmin)
	if err != nil {
		return err
	}

	s.logger.Info("Created admin account %s", user.ID)
	return nil
}

// Helper methods
func (s *DefaultService) generateJWT(user *models.User) (string, error) {
	issuedAt := time.Now()
	expirationTime := issuedAt.Add(s.tokenDuration)

	claims := jwt.MapClaims{
		"sub":  user.ID, // subject
		"role": user.Role,
		"exp":  expirationTime.Unix(),
		"iat":  issuedAt.Unix(), // issued at
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
