package api_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rongwang/library-circulation/internal/api/testutils"
	"github.com/rongwang/library-circulation/internal/models"
)

func today() models.Date {
	return models.DateOf(time.Now())
}

func openLoan(testCtx *testutils.TestContext, copyID string, loanDate, dueDate models.Date) *httptest.ResponseRecorder {
	return testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/loans",
		models.OpenLoanRequest{
			BorrowerID: testCtx.ReaderID,
			CopyID:     copyID,
			LoanDate:   loanDate,
			DueDate:    dueDate,
		},
		testutils.AuthHeaders(testCtx.TestUserJWT),
	)
}

func mustOpenLoan(t *testing.T, testCtx *testutils.TestContext, copyID string, loanDate, dueDate models.Date) models.LoanResponse {
	w := openLoan(testCtx, copyID, loanDate, dueDate)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var loan models.LoanResponse
	testutils.Decode(t, w, &loan)
	return loan
}

func TestOpenLoan(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	copyID := testCtx.CreateCopy(t)

	t.Run("Success", func(t *testing.T) {
		loan := mustOpenLoan(t, testCtx, copyID, today(), today().AddDays(14))

		assert.NotEmpty(t, loan.ID)
		assert.Equal(t, models.LoanStatusActive, loan.Status)
		assert.Equal(t, testCtx.TestUserID, loan.AgentID)
		assert.False(t, loan.Overdue)

		// The copy is now on loan
		w := testutils.PerformRequest(
			testCtx.Router,
			http.MethodGet,
			"/api/copies/"+copyID,
			nil,
			testutils.AuthHeaders(testCtx.TestUserJWT),
		)
		require.Equal(t, http.StatusOK, w.Code)

		var cp models.Copy
		testutils.Decode(t, w, &cp)
		assert.Equal(t, models.CopyStatusOnLoan, cp.Status)
	})

	t.Run("SecondLoanOnSameCopyConflicts", func(t *testing.T) {
		w := openLoan(testCtx, copyID, today(), today().AddDays(14))
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("DueDateNotAfterLoanDate", func(t *testing.T) {
		otherCopy := testCtx.CreateCopy(t)

		w := openLoan(testCtx, otherCopy, today(), today())
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var errResp models.ErrorResponse
		testutils.Decode(t, w, &errResp)
		assert.Equal(t, "VALIDATION_ERROR", errResp.Code)
		assert.Contains(t, errResp.Fields, "dueDate")
	})

	t.Run("UnknownCopy", func(t *testing.T) {
		w := openLoan(testCtx, "00000000-0000-0000-0000-000000000000", today(), today().AddDays(7))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("ReaderCannotOpenLoans", func(t *testing.T) {
		w := testutils.PerformRequest(
			testCtx.Router,
			http.MethodPost,
			"/api/loans",
			models.OpenLoanRequest{BorrowerID: testCtx.ReaderID, CopyID: testCtx.CreateCopy(t), DueDate: today().AddDays(7)},
			testutils.AuthHeaders(testCtx.ReaderJWT),
		)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestConcurrentOpenLoanOnSameCopy(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	copyID := testCtx.CreateCopy(t)

	const numGoroutines = 10

	codes := make(chan int, numGoroutines)
	var wg sync.WaitGroup

	// Start multiple goroutines to lend the same copy simultaneously
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := openLoan(testCtx, copyID, today(), today().AddDays(14))
			codes <- w.Code
		}()
	}

	wg.Wait()
	close(codes)

	created, conflicts := 0, 0
	for code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicts++
		default:
			t.Errorf("unexpected status %d", code)
		}
	}

	assert.Equal(t, 1, created, "Exactly one loan should be opened")
	assert.Equal(t, numGoroutines-1, conflicts)

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/loans?status=active",
		nil,
		testutils.AuthHeaders(testCtx.TestUserJWT),
	)
	require.Equal(t, http.StatusOK, w.Code)

	var list models.LoanListResponse
	testutils.Decode(t, w, &list)
	assert.Len(t, list.Loans, 1)
}

func TestListLoans(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	current := mustOpenLoan(t, testCtx, testCtx.CreateCopy(t), today().AddDays(-3), today().AddDays(10))
	late := mustOpenLoan(t, testCtx, testCtx.CreateCopy(t), today().AddDays(-20), today().AddDays(-5))

	_, otherReaderJWT := testCtx.CreateUser(t, "other@example.com", models.RoleReader)

	list := func(t *testing.T, query, token string) []models.LoanResponse {
		w := testutils.PerformRequest(
			testCtx.Router,
			http.MethodGet,
			"/api/loans"+query,
			nil,
			testutils.AuthHeaders(token),
		)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp models.LoanListResponse
		testutils.Decode(t, w, &resp)
		return resp.Loans
	}

	t.Run("NewestLoanDateFirst", func(t *testing.T) {
		loans := list(t, "", testCtx.TestUserJWT)
		require.Len(t, loans, 2)
		assert.Equal(t, current.ID, loans[0].ID)
		assert.Equal(t, late.ID, loans[1].ID)
	})

	t.Run("OverdueIsComputed", func(t *testing.T) {
		loans := list(t, "?status=overdue", testCtx.TestUserJWT)
		require.Len(t, loans, 1)
		assert.Equal(t, late.ID, loans[0].ID)
		assert.True(t, loans[0].Overdue)
		assert.Equal(t, 5, loans[0].DaysOverdue)
		// Stored status stays active
		assert.Equal(t, models.LoanStatusActive, loans[0].Status)

		loans = list(t, "?overdueOnly=true", testCtx.TestUserJWT)
		assert.Len(t, loans, 1)
	})

	t.Run("OverdueAsOfPastDate", func(t *testing.T) {
		asOf := today().AddDays(-10).String()
		loans := list(t, "?status=overdue&asOf="+asOf, testCtx.TestUserJWT)
		assert.Empty(t, loans)
	})

	t.Run("ReaderSeesOnlyOwnLoans", func(t *testing.T) {
		loans := list(t, "", testCtx.ReaderJWT)
		assert.Len(t, loans, 2)

		loans = list(t, "?borrowerId="+testCtx.ReaderID, otherReaderJWT)
		assert.Empty(t, loans)

		w := testutils.PerformRequest(
			testCtx.Router,
			http.MethodGet,
			"/api/loans/"+current.ID,
			nil,
			testutils.AuthHeaders(otherReaderJWT),
		)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("InvalidStatus", func(t *testing.T) {
		w := testutils.PerformRequest(
			testCtx.Router,
			http.MethodGet,
			"/api/loans?status=lost",
			nil,
			testutils.AuthHeaders(testCtx.TestUserJWT),
		)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCancelAndDeleteLoan(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	copyID := testCtx.CreateCopy(t)
	loan := mustOpenLoan(t, testCtx, copyID, today(), today().AddDays(7))

	// Active loans cannot be deleted
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodDelete,
		"/api/loans/"+loan.ID,
		nil,
		testutils.AuthHeaders(testCtx.AdminJWT),
	)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		fmt.Sprintf("/api/loans/%s/cancel", loan.ID),
		nil,
		testutils.AuthHeaders(testCtx.TestUserJWT),
	)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var cancelled models.LoanResponse
	testutils.Decode(t, w, &cancelled)
	assert.Equal(t, models.LoanStatusCancelled, cancelled.Status)

	// Cancelling twice conflicts
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		fmt.Sprintf("/api/loans/%s/cancel", loan.ID),
		nil,
		testutils.AuthHeaders(testCtx.TestUserJWT),
	)
	assert.Equal(t, http.StatusConflict, w.Code)

	// The copy can be lent again
	mustOpenLoan(t, testCtx, copyID, today(), today().AddDays(7))

	// Only admins delete loans
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodDelete,
		"/api/loans/"+loan.ID,
		nil,
		testutils.AuthHeaders(testCtx.TestUserJWT),
	)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodDelete,
		"/api/loans/"+loan.ID,
		nil,
		testutils.AuthHeaders(testCtx.AdminJWT),
	)
	assert.Equal(t, http.StatusOK, w.Code)

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/loans/"+loan.ID,
		nil,
		testutils.AuthHeaders(testCtx.TestUserJWT),
	)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
