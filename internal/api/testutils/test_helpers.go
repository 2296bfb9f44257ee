package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rongwang/library-circulation/internal/api"
	"github.com/rongwang/library-circulation/internal/config"
	"github.com/rongwang/library-circulation/internal/models"
	"github.com/rongwang/library-circulation/internal/repository"
	"github.com/rongwang/library-circulation/internal/service"
	"github.com/rongwang/library-circulation/internal/utils"
)

// TestPassword is the password of every user created by the helpers
const TestPassword = "testpassword"

// TestContext holds all dependencies for tests
type TestContext struct {
	Router     *gin.Engine
	Repository repository.Repository
	Service    service.Service
	JWTSecret  []byte
	DB         *sqlx.DB

	// TestUser is a librarian, Reader a plain member and Admin an administrator
	TestUserID  string
	TestUserJWT string
	ReaderID    string
	ReaderJWT   string
	AdminID     string
	AdminJWT    string
}

// SetupTestContext creates a new test context with initialized dependencies.
// Tests run against the in-memory store unless TEST_DATABASE_DRIVER names a SQL driver.
func SetupTestContext(t *testing.T) *TestContext {
	// Load configuration from environment
	cfg, err := config.LoadConfig()
	require.NoError(t, err, "Failed to load configuration")

	// Use a test JWT secret
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "test-secret-key"
	}

	var (
		repo repository.Repository
		db   *sqlx.DB
	)

	switch driver := os.Getenv("TEST_DATABASE_DRIVER"); driver {
	case config.DriverPostgres, config.DriverPgx:
		cfg.Database.Driver = driver
		cfg.Database.DBName = cfg.Database.TestDBName

		db, err = config.SetupDatabase(cfg)
		require.NoError(t, err, "Failed to set up test database")

		cleanupTestDatabase(t, db)
		repo = repository.NewPostgresRepository(db)
	default:
		repo = repository.NewMemoryRepository()
	}

	// Create service
	svc := service.NewDefaultService(repo, nil, nil, service.Settings{
		JWTSecret: cfg.Auth.JWTSecret,
		Fines: service.FinePolicy{
			DailyRate:       cfg.Fines.DailyRate,
			GracePeriodDays: cfg.Fines.GracePeriodDays,
		},
	})

	// Create API handler
	handler := api.NewHandler(svc, utils.Discard())

	// Set up Gin router
	gin.SetMode(gin.TestMode)
	router := gin.New()

	// Add middleware for JWT secret
	router.Use(func(c *gin.Context) {
		c.Set("jwtSecret", []byte(cfg.Auth.JWTSecret))
		c.Next()
	})

	// Set up routes
	handler.SetupRoutes(router)

	testCtx := &TestContext{
		Router:     router,
		Repository: repo,
		Service:    svc,
		JWTSecret:  []byte(cfg.Auth.JWTSecret),
		DB:         db,
	}

	testCtx.TestUserID, testCtx.TestUserJWT = testCtx.CreateUser(t, "testuser@example.com", models.RoleLibrarian)
	testCtx.ReaderID, testCtx.ReaderJWT = testCtx.CreateUser(t, "reader@example.com", models.RoleReader)
	testCtx.AdminID, testCtx.AdminJWT = testCtx.CreateUser(t, "admin@example.com", models.RoleAdmin)

	return testCtx
}

// CleanupTestContext cleans up test resources
func CleanupTestContext(t *TestContext) {
	// Clean up database
	if t.DB != nil {
		cleanupTestDatabase(nil, t.DB)
		t.DB.Close()
	}
}

// cleanupTestDatabase removes all rows created by tests, children first
func cleanupTestDatabase(t *testing.T, db *sqlx.DB) {
	for _, table := range []string{"fines", "returns", "loans", "copies", "users"} {
		_, err := db.Exec("DELETE FROM " + table)
		if t != nil && err != nil {
			t.Logf("Warning: Failed to clean %s: %v", table, err)
		}
	}
}

// CreateUser stores an active user with the given role and returns its id and a session token
func (tc *TestContext) CreateUser(t *testing.T, email, role string) (string, string) {
	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)

	user := &models.User{
		ID:       uuid.New().String(),
		Email:    email,
		Name:     "Test " + role,
		Password: string(hashedPassword),
		Role:     role,
		Active:   true,
	}

	err := tc.Repository.CreateUser(context.Background(), user)
	require.NoError(t, err, "Failed to create test user")

	return user.ID, tc.Token(t, user.ID, role)
}

// Token signs a session token the way the service does
func (tc *TestContext) Token(t *testing.T, userID, role string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(24 * time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	})

	tokenString, err := token.SignedString(tc.JWTSecret)
	require.NoError(t, err, "Failed to generate JWT token")

	return tokenString
}

// CreateCopy registers a lendable copy directly in the store
func (tc *TestContext) CreateCopy(t *testing.T) string {
	cp := &models.Copy{
		Code:      "C-" + uuid.New().String()[:8],
		BookTitle: "Test Book",
		Status:    models.CopyStatusAvailable,
	}

	err := tc.Repository.CreateCopy(context.Background(), cp)
	require.NoError(t, err, "Failed to create test copy")

	return cp.ID
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// AuthHeaders returns headers with Authorization token
func AuthHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}
}

// Decode unmarshals a JSON response body into dest
func Decode(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest), "body: %s", w.Body.String())
}
