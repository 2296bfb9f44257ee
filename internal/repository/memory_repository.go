package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rongwang/library-circulation/internal/models"
)

// memoryState holds every table of the in-memory store
type memoryState struct {
	users    map[string]models.User
	statuses map[string]models.CopyStatus
	copies   map[string]models.Copy
	loans    map[string]models.Loan
	returns  map[string]models.Return
	fines    map[string]models.Fine
}

func newMemoryState() *memoryState {
	st := &memoryState{
		users:    map[string]models.User{},
		statuses: map[string]models.CopyStatus{},
		copies:   map[string]models.Copy{},
		loans:    map[string]models.Loan{},
		returns:  map[string]models.Return{},
		fines:    map[string]models.Fine{},
	}

	for _, s := range []models.CopyStatus{
		{Name: models.CopyStatusAvailable, PermitsLoan: true},
		{Name: models.CopyStatusOnLoan},
		{Name: models.CopyStatusDamaged},
		{Name: models.CopyStatusLost},
		{Name: models.CopyStatusMaintenance},
	} {
		st.statuses[s.Name] = s
	}

	return st
}

func (st *memoryState) clone() *memoryState {
	c := &memoryState{
		users:    make(map[string]models.User, len(st.users)),
		statuses: make(map[string]models.CopyStatus, len(st.statuses)),
		copies:   make(map[string]models.Copy, len(st.copies)),
		loans:    make(map[string]models.Loan, len(st.loans)),
		returns:  make(map[string]models.Return, len(st.returns)),
		fines:    make(map[string]models.Fine, len(st.fines)),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.statuses {
		c.statuses[k] = v
	}
	for k, v := range st.copies {
		c.copies[k] = v
	}
	for k, v := range st.loans {
		c.loans[k] = v
	}
	for k, v := range st.returns {
		c.returns[k] = v
	}
	for k, v := range st.fines {
		c.fines[k] = v
	}
	return c
}

// MemoryRepository implements the Repository interface in process memory.
// It enforces the same integrity rules as the PostgreSQL schema and is used
// by tests and by the "memory" database driver.
type MemoryRepository struct {
	mu *sync.Mutex
	// st is shared between a repository and the transaction views it hands out
	st   **memoryState
	inTx bool
}

// NewMemoryRepository creates an empty store seeded with the standard copy statuses
func NewMemoryRepository() *MemoryRepository {
	st := newMemoryState()
	return &MemoryRepository{
		mu: &sync.Mutex{},
		st: &st,
	}
}

func (r *MemoryRepository) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *MemoryRepository) state() *memoryState {
	return *r.st
}

// RunInTx serializes fn against all other access and restores the previous
// state when fn fails
func (r *MemoryRepository) RunInTx(ctx context.Context, fn func(tx Repository) error) error {
	if r.inTx {
		return fn(r)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := r.state().clone()
	err := fn(&MemoryRepository{mu: r.mu, st: r.st, inTx: true})
	if err != nil {
		*r.st = snapshot
		return err
	}

	return nil
}

// User repository methods
func (r *MemoryRepository) CreateUser(ctx context.Context, user *models.User) error {
	defer r.lock()()
	st := r.state()

	for _, u := range st.users {
		if u.Email == user.Email {
			return ErrDuplicateEmail
		}
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	st.users[user.ID] = *user
	return nil
}

func (r *MemoryRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	defer r.lock()()

	for _, u := range r.state().users {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	defer r.lock()()

	u, ok := r.state().users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// Catalog repository methods
func (r *MemoryRepository) CreateCopy(ctx context.Context, cp *models.Copy) error {
	defer r.lock()()
	st := r.state()

	status, ok := st.statuses[cp.Status]
	if !ok {
		return ErrUnknownStatus
	}

	for _, c := range st.copies {
		if c.Code == cp.Code {
			return ErrDuplicateCode
		}
	}

	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	cp.PermitsLoan = status.PermitsLoan

	st.copies[cp.ID] = *cp
	return nil
}

func (r *MemoryRepository) GetCopy(ctx context.Context, id string) (*models.Copy, error) {
	defer r.lock()()
	st := r.state()

	c, ok := st.copies[id]
	if !ok {
		return nil, nil
	}
	c.PermitsLoan = st.statuses[c.Status].PermitsLoan
	return &c, nil
}

func (r *MemoryRepository) SetCopyStatus(ctx context.Context, id, status string) error {
	defer r.lock()()
	st := r.state()

	if _, ok := st.statuses[status]; !ok {
		return ErrUnknownStatus
	}

	c, ok := st.copies[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	st.copies[id] = c
	return nil
}

// Loan repository methods
func (r *MemoryRepository) CreateLoan(ctx context.Context, loan *models.Loan) error {
	defer r.lock()()
	st := r.state()

	if _, ok := st.users[loan.BorrowerID]; !ok {
		return ErrReferenced
	}
	if _, ok := st.users[loan.AgentID]; !ok {
		return ErrReferenced
	}
	if _, ok := st.copies[loan.CopyID]; !ok {
		return ErrReferenced
	}

	if loan.Status == models.LoanStatusActive {
		for _, l := range st.loans {
			if l.CopyID == loan.CopyID && l.Status == models.LoanStatusActive {
				return ErrActiveLoanExists
			}
		}
	}

	if loan.ID == "" {
		loan.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	loan.CreatedAt = now
	loan.UpdatedAt = now

	st.loans[loan.ID] = *loan
	return nil
}

func (r *MemoryRepository) GetLoan(ctx context.Context, id string) (*models.Loan, error) {
	defer r.lock()()

	l, ok := r.state().loans[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

// GetLoanForUpdate is GetLoan; RunInTx already holds the store lock
func (r *MemoryRepository) GetLoanForUpdate(ctx context.Context, id string) (*models.Loan, error) {
	return r.GetLoan(ctx, id)
}

func (r *MemoryRepository) GetActiveLoanByCopy(ctx context.Context, copyID string) (*models.Loan, error) {
	defer r.lock()()

	for _, l := range r.state().loans {
		if l.CopyID == copyID && l.Status == models.LoanStatusActive {
			loan := l
			return &loan, nil
		}
	}
	return nil, nil
}

func matchLoan(l models.Loan, filter models.LoanFilter) bool {
	overdue := filter.OverdueOnly || filter.Status == models.LoanStatusOverdue

	if overdue && !l.IsOverdue(filter.AsOf) {
		return false
	}
	if filter.Status != "" && filter.Status != models.LoanStatusOverdue && l.Status != filter.Status {
		return false
	}
	if filter.BorrowerID != "" && l.BorrowerID != filter.BorrowerID {
		return false
	}
	return true
}

func (r *MemoryRepository) ListLoans(ctx context.Context, filter models.LoanFilter) ([]models.Loan, error) {
	defer r.lock()()

	loans := []models.Loan{}
	for _, l := range r.state().loans {
		if matchLoan(l, filter) {
			loans = append(loans, l)
		}
	}

	sort.Slice(loans, func(i, j int) bool {
		if !loans[i].LoanDate.Equal(loans[j].LoanDate) {
			return loans[i].LoanDate.After(loans[j].LoanDate)
		}
		return loans[i].CreatedAt.After(loans[j].CreatedAt)
	})

	return loans, nil
}

func (r *MemoryRepository) UpdateLoanStatus(ctx context.Context, id string, from, to models.LoanStatus) (bool, error) {
	defer r.lock()()
	st := r.state()

	l, ok := st.loans[id]
	if !ok || l.Status != from {
		return false, nil
	}

	if to == models.LoanStatusActive {
		for _, other := range st.loans {
			if other.ID != id && other.CopyID == l.CopyID && other.Status == models.LoanStatusActive {
				return false, ErrActiveLoanExists
			}
		}
	}

	l.Status = to
	l.UpdatedAt = time.Now().UTC()
	st.loans[id] = l
	return true, nil
}

func (r *MemoryRepository) DeleteLoan(ctx context.Context, id string) error {
	defer r.lock()()
	st := r.state()

	for _, ret := range st.returns {
		if ret.LoanID == id {
			return ErrReferenced
		}
	}
	for _, f := range st.fines {
		if f.LoanID != nil && *f.LoanID == id {
			return ErrReferenced
		}
	}

	delete(st.loans, id)
	return nil
}

// Return repository methods
func (r *MemoryRepository) CreateReturn(ctx context.Context, ret *models.Return) error {
	defer r.lock()()
	st := r.state()

	if _, ok := st.loans[ret.LoanID]; !ok {
		return ErrReferenced
	}
	if _, ok := st.users[ret.AgentID]; !ok {
		return ErrReferenced
	}

	for _, existing := range st.returns {
		if existing.LoanID == ret.LoanID {
			return ErrReturnExists
		}
	}

	if ret.ID == "" {
		ret.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	ret.CreatedAt = now
	ret.UpdatedAt = now

	st.returns[ret.ID] = *ret
	return nil
}

func (r *MemoryRepository) GetReturn(ctx context.Context, id string) (*models.Return, error) {
	defer r.lock()()

	ret, ok := r.state().returns[id]
	if !ok {
		return nil, nil
	}
	return &ret, nil
}

func (r *MemoryRepository) GetReturnByLoan(ctx context.Context, loanID string) (*models.Return, error) {
	defer r.lock()()

	for _, ret := range r.state().returns {
		if ret.LoanID == loanID {
			found := ret
			return &found, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListReturns(ctx context.Context, filter models.ReturnFilter) ([]models.Return, error) {
	defer r.lock()()

	returns := []models.Return{}
	for _, ret := range r.state().returns {
		if filter.LoanID != "" && ret.LoanID != filter.LoanID {
			continue
		}
		returns = append(returns, ret)
	}

	sort.Slice(returns, func(i, j int) bool {
		if !returns[i].ReturnDate.Equal(returns[j].ReturnDate) {
			return returns[i].ReturnDate.After(returns[j].ReturnDate)
		}
		return returns[i].CreatedAt.After(returns[j].CreatedAt)
	})

	return returns, nil
}

func (r *MemoryRepository) UpdateReturn(ctx context.Context, ret *models.Return) error {
	defer r.lock()()
	st := r.state()

	existing, ok := st.returns[ret.ID]
	if !ok {
		return ErrNotFound
	}

	existing.Condition = ret.Condition
	existing.Notes = ret.Notes
	existing.UpdatedAt = time.Now().UTC()
	ret.UpdatedAt = existing.UpdatedAt
	st.returns[ret.ID] = existing
	return nil
}

func (r *MemoryRepository) DeleteReturn(ctx context.Context, id string) error {
	defer r.lock()()
	st := r.state()

	if _, ok := st.returns[id]; !ok {
		return ErrNotFound
	}
	for _, f := range st.fines {
		if f.ReturnID != nil && *f.ReturnID == id {
			return ErrReferenced
		}
	}

	delete(st.returns, id)
	return nil
}

// Fine repository methods
func (r *MemoryRepository) CreateFine(ctx context.Context, fine *models.Fine) error {
	defer r.lock()()
	st := r.state()

	if _, ok := st.users[fine.UserID]; !ok {
		return ErrReferenced
	}
	if fine.LoanID != nil {
		if _, ok := st.loans[*fine.LoanID]; !ok {
			return ErrReferenced
		}
	}
	if fine.ReturnID != nil {
		if _, ok := st.returns[*fine.ReturnID]; !ok {
			return ErrReferenced
		}
	}

	if fine.ID == "" {
		fine.ID = uuid.New().String()
	}

	if fine.CreatedAt.IsZero() {
		fine.CreatedAt = time.Now().UTC()
	}
	fine.UpdatedAt = fine.CreatedAt

	st.fines[fine.ID] = *fine
	return nil
}

func (r *MemoryRepository) GetFine(ctx context.Context, id string) (*models.Fine, error) {
	defer r.lock()()

	f, ok := r.state().fines[id]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (r *MemoryRepository) ListFines(ctx context.Context, filter models.FineFilter) ([]models.Fine, error) {
	defer r.lock()()

	fines := []models.Fine{}
	for _, f := range r.state().fines {
		if filter.UserID != "" && f.UserID != filter.UserID {
			continue
		}
		if filter.Paid != nil && f.Paid != *filter.Paid {
			continue
		}
		fines = append(fines, f)
	}

	sort.Slice(fines, func(i, j int) bool {
		return fines[i].CreatedAt.After(fines[j].CreatedAt)
	})

	return fines, nil
}

func (r *MemoryRepository) UpdateFinePayment(ctx context.Context, fine *models.Fine) error {
	defer r.lock()()
	st := r.state()

	existing, ok := st.fines[fine.ID]
	if !ok {
		return ErrNotFound
	}

	existing.Paid = fine.Paid
	existing.PaymentDate = fine.PaymentDate
	existing.UpdatedAt = time.Now().UTC()
	fine.UpdatedAt = existing.UpdatedAt
	st.fines[fine.ID] = existing
	return nil
}

func (r *MemoryRepository) DeleteFine(ctx context.Context, id string) error {
	defer r.lock()()
	st := r.state()

	if _, ok := st.fines[id]; !ok {
		return ErrNotFound
	}

	delete(st.fines, id)
	return nil
}

func (r *MemoryRepository) SumUnpaidFines(ctx context.Context, userID string) (decimal.Decimal, error) {
	defer r.lock()()

	total := decimal.Zero
	for _, f := range r.state().fines {
		if f.UserID == userID && !f.Paid {
			total = total.Add(f.Amount)
		}
	}
	return total, nil
}

var _ Repository = (*MemoryRepository)(nil)
