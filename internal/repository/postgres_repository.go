package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/rongwang/library-circulation/internal/models"
)

const dialectPostgres = "postgres"

var (
	loanColumns = []interface{}{
		"id", "borrower_id", "copy_id", "agent_id", "loan_date", "due_date",
		"status", "notes", "created_at", "updated_at",
	}
	returnColumns = []interface{}{
		"id", "loan_id", "agent_id", "return_date", "days_late",
		"condition", "notes", "created_at", "updated_at",
	}
	fineColumns = []interface{}{
		"id", "return_id", "loan_id", "user_id", "kind", "amount", "paid",
		"payment_date", "description", "created_at", "updated_at",
	}
)

const selectCopy = `
	SELECT c.id, c.code, c.book_title, c.status, s.permits_loan, c.created_at, c.updated_at
	FROM copies c
	JOIN copy_statuses s ON s.name = c.status
`

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
	// q is either db or the transaction the repository is bound to
	q    sqlx.ExtContext
	inTx bool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
		q:  db,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

func (r *PostgresRepository) RunInTx(ctx context.Context, fn func(tx Repository) error) (err error) {
	if r.inTx {
		return fn(r)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	err = fn(&PostgresRepository{db: r.db, q: tx, inTx: true})
	if err != nil {
		return err
	}

	return tx.Commit()
}

// get runs a single-row query and maps sql.ErrNoRows to found=false
func (r *PostgresRepository) get(ctx context.Context, dest interface{}, query string, args ...interface{}) (bool, error) {
	err := sqlx.GetContext(ctx, r.q, dest, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// User repository methods
func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, name, password, role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	// Generate a new UUID if not provided
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.q.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.Password, user.Role, user.Active, user.CreatedAt, user.UpdatedAt)

	return translateError(err)
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	found, err := r.get(ctx, &user, `SELECT * FROM users WHERE email = $1`, email)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	found, err := r.get(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

// Catalog repository methods
func (r *PostgresRepository) CreateCopy(ctx context.Context, cp *models.Copy) error {
	query := `
		INSERT INTO copies (id, code, book_title, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now

	_, err := r.q.ExecContext(ctx, query,
		cp.ID, cp.Code, cp.BookTitle, cp.Status, cp.CreatedAt, cp.UpdatedAt)
	if err != nil {
		return translateError(err)
	}

	return r.refreshCopy(ctx, cp)
}

// refreshCopy reloads a copy so the joined status flags are populated
func (r *PostgresRepository) refreshCopy(ctx context.Context, cp *models.Copy) error {
	_, err := r.get(ctx, cp, selectCopy+` WHERE c.id = $1`, cp.ID)
	return err
}

func (r *PostgresRepository) GetCopy(ctx context.Context, id string) (*models.Copy, error) {
	var cp models.Copy
	found, err := r.get(ctx, &cp, selectCopy+` WHERE c.id = $1`, id)
	if err != nil || !found {
		return nil, err
	}
	return &cp, nil
}

func (r *PostgresRepository) SetCopyStatus(ctx context.Context, id, status string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE copies SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id)
	return affectedOne(res, err)
}

// Loan repository methods
func (r *PostgresRepository) CreateLoan(ctx context.Context, loan *models.Loan) error {
	query := `
		INSERT INTO loans (id, borrower_id, copy_id, agent_id, loan_date, due_date, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	if loan.ID == "" {
		loan.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	loan.CreatedAt = now
	loan.UpdatedAt = now

	_, err := r.q.ExecContext(ctx, query,
		loan.ID, loan.BorrowerID, loan.CopyID, loan.AgentID, loan.LoanDate, loan.DueDate,
		loan.Status, loan.Notes, loan.CreatedAt, loan.UpdatedAt)

	return translateError(err)
}

func (r *PostgresRepository) GetLoan(ctx context.Context, id string) (*models.Loan, error) {
	var loan models.Loan
	found, err := r.get(ctx, &loan, `SELECT * FROM loans WHERE id = $1`, id)
	if err != nil || !found {
		return nil, err
	}
	return &loan, nil
}

func (r *PostgresRepository) GetLoanForUpdate(ctx context.Context, id string) (*models.Loan, error) {
	var loan models.Loan
	found, err := r.get(ctx, &loan, `SELECT * FROM loans WHERE id = $1 FOR UPDATE`, id)
	if err != nil || !found {
		return nil, err
	}
	return &loan, nil
}

func (r *PostgresRepository) GetActiveLoanByCopy(ctx context.Context, copyID string) (*models.Loan, error) {
	var loan models.Loan
	found, err := r.get(ctx, &loan,
		`SELECT * FROM loans WHERE copy_id = $1 AND status = $2`, copyID, models.LoanStatusActive)
	if err != nil || !found {
		return nil, err
	}
	return &loan, nil
}

// buildListLoansQuery translates a LoanFilter into SQL.
// The overdue filter is the computed predicate status = active AND due_date < asOf.
func buildListLoansQuery(filter models.LoanFilter) (string, []interface{}, error) {
	ds := goqu.Dialect(dialectPostgres).
		From("loans").
		Select(loanColumns...).
		Prepared(true)

	overdue := filter.OverdueOnly || filter.Status == models.LoanStatusOverdue

	switch {
	case overdue:
		ds = ds.Where(
			goqu.C("status").Eq(string(models.LoanStatusActive)),
			goqu.C("due_date").Lt(filter.AsOf.Time),
		)
	case filter.Status != "":
		ds = ds.Where(goqu.C("status").Eq(string(filter.Status)))
	}

	if filter.OverdueOnly && filter.Status != "" && filter.Status != models.LoanStatusActive && filter.Status != models.LoanStatusOverdue {
		// Only active loans can be overdue
		ds = ds.Where(goqu.L("FALSE"))
	}

	if filter.BorrowerID != "" {
		ds = ds.Where(goqu.C("borrower_id").Eq(filter.BorrowerID))
	}

	ds = ds.Order(goqu.C("loan_date").Desc(), goqu.C("created_at").Desc())

	return ds.ToSQL()
}

func (r *PostgresRepository) ListLoans(ctx context.Context, filter models.LoanFilter) ([]models.Loan, error) {
	query, args, err := buildListLoansQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("building loan query: %w", err)
	}

	loans := []models.Loan{}
	if err := sqlx.SelectContext(ctx, r.q, &loans, query, args...); err != nil {
		return nil, err
	}

	return loans, nil
}

func (r *PostgresRepository) UpdateLoanStatus(ctx context.Context, id string, from, to models.LoanStatus) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE loans SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, time.Now().UTC(), id, from)
	if err != nil {
		return false, translateError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (r *PostgresRepository) DeleteLoan(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM loans WHERE id = $1`, id)
	return translateError(err)
}

// affectedOne translates a write error and reports ErrNotFound when no row was touched
func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return translateError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Return repository methods
func (r *PostgresRepository) CreateReturn(ctx context.Context, ret *models.Return) error {
	query := `
		INSERT INTO returns (id, loan_id, agent_id, return_date, days_late, condition, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if ret.ID == "" {
		ret.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	ret.CreatedAt = now
	ret.UpdatedAt = now

	_, err := r.q.ExecContext(ctx, query,
		ret.ID, ret.LoanID, ret.AgentID, ret.ReturnDate, ret.DaysLate,
		ret.Condition, ret.Notes, ret.CreatedAt, ret.UpdatedAt)

	return translateError(err)
}

func (r *PostgresRepository) GetReturn(ctx context.Context, id string) (*models.Return, error) {
	var ret models.Return
	found, err := r.get(ctx, &ret, `SELECT * FROM returns WHERE id = $1`, id)
	if err != nil || !found {
		return nil, err
	}
	return &ret, nil
}

func (r *PostgresRepository) GetReturnByLoan(ctx context.Context, loanID string) (*models.Return, error) {
	var ret models.Return
	found, err := r.get(ctx, &ret, `SELECT * FROM returns WHERE loan_id = $1`, loanID)
	if err != nil || !found {
		return nil, err
	}
	return &ret, nil
}

func buildListReturnsQuery(filter models.ReturnFilter) (string, []interface{}, error) {
	ds := goqu.Dialect(dialectPostgres).
		From("returns").
		Select(returnColumns...).
		Prepared(true)

	if filter.LoanID != "" {
		ds = ds.Where(goqu.C("loan_id").Eq(filter.LoanID))
	}

	return ds.Order(goqu.C("return_date").Desc(), goqu.C("created_at").Desc()).ToSQL()
}

func (r *PostgresRepository) ListReturns(ctx context.Context, filter models.ReturnFilter) ([]models.Return, error) {
	query, args, err := buildListReturnsQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("building return query: %w", err)
	}

	returns := []models.Return{}
	if err := sqlx.SelectContext(ctx, r.q, &returns, query, args...); err != nil {
		return nil, err
	}

	return returns, nil
}

func (r *PostgresRepository) UpdateReturn(ctx context.Context, ret *models.Return) error {
	ret.UpdatedAt = time.Now().UTC()
	res, err := r.q.ExecContext(ctx,
		`UPDATE returns SET condition = $1, notes = $2, updated_at = $3 WHERE id = $4`,
		ret.Condition, ret.Notes, ret.UpdatedAt, ret.ID)
	return affectedOne(res, err)
}

// DeleteReturn relies on the RESTRICT foreign key from fines.return_id
func (r *PostgresRepository) DeleteReturn(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM returns WHERE id = $1`, id)
	return affectedOne(res, err)
}

// Fine repository methods
func (r *PostgresRepository) CreateFine(ctx context.Context, fine *models.Fine) error {
	query := `
		INSERT INTO fines (id, return_id, loan_id, user_id, kind, amount, paid, payment_date, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	if fine.ID == "" {
		fine.ID = uuid.New().String()
	}

	if fine.CreatedAt.IsZero() {
		fine.CreatedAt = time.Now().UTC()
	}
	fine.UpdatedAt = fine.CreatedAt

	_, err := r.q.ExecContext(ctx, query,
		fine.ID, fine.ReturnID, fine.LoanID, fine.UserID, fine.Kind, fine.Amount,
		fine.Paid, fine.PaymentDate, fine.Description, fine.CreatedAt, fine.UpdatedAt)

	return translateError(err)
}

func (r *PostgresRepository) GetFine(ctx context.Context, id string) (*models.Fine, error) {
	var fine models.Fine
	found, err := r.get(ctx, &fine, `SELECT * FROM fines WHERE id = $1`, id)
	if err != nil || !found {
		return nil, err
	}
	return &fine, nil
}

func buildListFinesQuery(filter models.FineFilter) (string, []interface{}, error) {
	ds := goqu.Dialect(dialectPostgres).
		From("fines").
		Select(fineColumns...).
		Prepared(true)

	if filter.UserID != "" {
		ds = ds.Where(goqu.C("user_id").Eq(filter.UserID))
	}

	if filter.Paid != nil {
		ds = ds.Where(goqu.C("paid").Eq(*filter.Paid))
	}

	return ds.Order(goqu.C("created_at").Desc()).ToSQL()
}

func (r *PostgresRepository) ListFines(ctx context.Context, filter models.FineFilter) ([]models.Fine, error) {
	query, args, err := buildListFinesQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("building fine query: %w", err)
	}

	fines := []models.Fine{}
	if err := sqlx.SelectContext(ctx, r.q, &fines, query, args...); err != nil {
		return nil, err
	}

	return fines, nil
}

func (r *PostgresRepository) UpdateFinePayment(ctx context.Context, fine *models.Fine) error {
	fine.UpdatedAt = time.Now().UTC()
	res, err := r.q.ExecContext(ctx,
		`UPDATE fines SET paid = $1, payment_date = $2, updated_at = $3 WHERE id = $4`,
		fine.Paid, fine.PaymentDate, fine.UpdatedAt, fine.ID)
	return affectedOne(res, err)
}

func (r *PostgresRepository) DeleteFine(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM fines WHERE id = $1`, id)
	return affectedOne(res, err)
}

func (r *PostgresRepository) SumUnpaidFines(ctx context.Context, userID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := sqlx.GetContext(ctx, r.q, &total,
		`SELECT COALESCE(SUM(amount), 0) FROM fines WHERE user_id = $1 AND paid = FALSE`, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

var _ Repository = (*PostgresRepository)(nil)
