package api_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rongwang/library-circulation/internal/api/testutils"
	"github.com/rongwang/library-circulation/internal/models"
)

func recordReturn(t *testing.T, testCtx *testutils.TestContext, req models.RecordReturnRequest) models.ReturnResult {
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/returns",
		req,
		testutils.AuthHeaders(testCtx.TestUserJWT),
	)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result models.ReturnResult
	testutils.Decode(t, w, &result)
	return result
}

func TestRecordLateReturn(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	copyID := testCtx.CreateCopy(t)
	loan := mustOpenLoan(t, testCtx, copyID, today().AddDays(-19), today().AddDays(-5))

	result := recordReturn(t, testCtx, models.RecordReturnRequest{LoanID: loan.ID})

	assert.Equal(t, 5, result.Return.DaysLate)
	assert.Equal(t, models.ConditionGood, result.Return.Condition)
	assert.True(t, result.Return.ReturnDate.Equal(today()))
	assert.Equal(t, models.LoanStatusReturned, result.Loan.Status)
	assert.False(t, result.Loan.Overdue)
	assert.Empty(t, result.FineError)

	require.Len(t, result.Fines, 1)
	fine := result.Fines[0]
	assert.Equal(t, models.FineKindOverdue, fine.Kind)
	assert.True(t, decimal.NewFromInt(25).Equal(fine.Amount), "got %s", fine.Amount)
	assert.Equal(t, testCtx.ReaderID, fine.UserID)
	require.NotNil(t, fine.ReturnID)
	assert.Equal(t, result.Return.ID, *fine.ReturnID)
	assert.False(t, fine.Paid)

	t.Run("SecondReturnConflicts", func(t *testing.T) {
		w := testutils.PerformRequest(
			testCtx.Router,
			http.MethodPost,
			"/api/returns",
			models.RecordReturnRequest{LoanID: loan.ID},
			testutils.AuthHeaders(testCtx.TestUserJWT),
		)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("ReturnVisibleThroughLoan", func(t *testing.T) {
		w := testutils.PerformRequest(
			testCtx.Router,
			http.MethodGet,
			fmt.Sprintf("/api/loans/%s/return", loan.ID),
			nil,
			testutils.AuthHeaders(testCtx.ReaderJWT),
		)
		require.Equal(t, http.StatusOK, w.Code)

		var ret models.Return
		testutils.Decode(t, w, &ret)
		assert.Equal(t, result.Return.ID, ret.ID)
	})

	t.Run("CopyAvailableAgain", func(t *testing.T) {
		mustOpenLoan(t, testCtx, copyID, today(), today().AddDays(14))
	})
}

func TestRecordReturn(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	t.Run("OnTimeCreatesNoFine", func(t *testing.T) {
		loan := mustOpenLoan(t, testCtx, testCtx.CreateCopy(t), today().AddDays(-10), today())

		result := recordReturn(t, testCtx, models.RecordReturnRequest{LoanID: loan.ID})
		assert.Equal(t, 0, result.Return.DaysLate)
		assert.Empty(t, result.Fines)
	})

	t.Run("EarlyReturnIsNotNegative", func(t *testing.T) {
		loan := mustOpenLoan(t, testCtx, testCtx.CreateCopy(t), today().AddDays(-2), today().AddDays(5))

		result := recordReturn(t, testCtx, models.RecordReturnRequest{LoanID: loan.ID})
		assert.Equal(t, 0, result.Return.DaysLate)
	})

	t.Run("ExplicitReturnDate", func(t *testing.T) {
		loan := mustOpenLoan(t, testCtx, testCtx.CreateCopy(t), today().AddDays(-30), today().AddDays(-20))
		returned := today().AddDays(-17)

		result := recordReturn(t, testCtx, models.RecordReturnRequest{LoanID: loan.ID, ReturnDate: &returned})
		assert.Equal(t, 3, result.Return.DaysLate)
		require.Len(t, result.Fines, 1)
		assert.True(t, decimal.NewFromInt(15).Equal(result.Fines[0].Amount))
	})

	t.Run("DamagedCopyLeavesCirculation", func(t *testing.T) {
		copyID := testCtx.CreateCopy(t)
		loan := mustOpenLoan(t, testCtx, copyID, today().AddDays(-2), today().AddDays(5))

		recordReturn(t, testCtx, models.RecordReturnRequest{LoanID: loan.ID, Condition: models.ConditionDamaged})

		w := openLoan(testCtx, copyID, today(), today().AddDays(7))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("FutureReturnDate", func(t *testing.T) {
		loan := mustOpenLoan(t, testCtx, testCtx.CreateCopy(t), today(), today().AddDays(5))
		tomorrow := today().AddDays(1)

		w := testutils.PerformRequest(
			testCtx.Router,
			http.MethodPost,
			"/api/returns",
			models.RecordReturnRequest{LoanID: loan.ID, ReturnDate: &tomorrow},
			testutils.AuthHeaders(testCtx.TestUserJWT),
		)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("UnknownLoan", func(t *testing.T) {
		w := testutils.PerformRequest(
			testCtx.Router,
			http.MethodPost,
			"/api/returns",
			models.RecordReturnRequest{LoanID: "00000000-0000-0000-0000-000000000000"},
			testutils.AuthHeaders(testCtx.TestUserJWT),
		)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("InvalidCondition", func(t *testing.T) {
		loan := mustOpenLoan(t, testCtx, testCtx.CreateCopy(t), today(), today().AddDays(5))

		w := testutils.PerformRequest(
			testCtx.Router,
			http.MethodPost,
			"/api/returns",
			models.RecordReturnRequest{LoanID: loan.ID, Condition: "shredded"},
			testutils.AuthHeaders(testCtx.TestUserJWT),
		)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var errResp models.ErrorResponse
		testutils.Decode(t, w, &errResp)
		assert.Contains(t, errResp.Fields, "condition")
	})
}

func TestCorrectReturn(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	loan := mustOpenLoan(t, testCtx, testCtx.CreateCopy(t), today().AddDays(-19), today().AddDays(-5))
	result := recordReturn(t, testCtx, models.RecordReturnRequest{LoanID: loan.ID})

	condition := models.ConditionFair
	notes := "Spine is worn"

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPatch,
		"/api/returns/"+result.Return.ID,
		models.CorrectReturnRequest{Condition: &condition, Notes: &notes},
		testutils.AuthHeaders(testCtx.TestUserJWT),
	)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var corrected models.Return
	testutils.Decode(t, w, &corrected)
	assert.Equal(t, models.ConditionFair, corrected.Condition)
	assert.Equal(t, notes, corrected.Notes)
	// Lateness is fixed at return time
	assert.Equal(t, 5, corrected.DaysLate)

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPatch,
		"/api/returns/"+result.Return.ID,
		models.CorrectReturnRequest{},
		testutils.AuthHeaders(testCtx.TestUserJWT),
	)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/returns?loanId="+loan.ID,
		nil,
		testutils.AuthHeaders(testCtx.TestUserJWT),
	)
	require.Equal(t, http.StatusOK, w.Code)

	var list models.ReturnListResponse
	testutils.Decode(t, w, &list)
	require.Len(t, list.Returns, 1)
	assert.Equal(t, models.ConditionFair, list.Returns[0].Condition)
}

func TestDeleteReturn(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	loan := mustOpenLoan(t, testCtx, testCtx.CreateCopy(t), today().AddDays(-19), today().AddDays(-5))
	result := recordReturn(t, testCtx, models.RecordReturnRequest{LoanID: loan.ID})
	require.Len(t, result.Fines, 1)

	returnPath := "/api/returns/" + result.Return.ID
	finePath := "/api/fines/" + result.Fines[0].ID

	// Only admins delete returns and fines
	w := testutils.PerformRequest(testCtx.Router, http.MethodDelete, returnPath, nil, testutils.AuthHeaders(testCtx.TestUserJWT))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodDelete, finePath, nil, testutils.AuthHeaders(testCtx.TestUserJWT))
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The overdue fine still points at the return
	w = testutils.PerformRequest(testCtx.Router, http.MethodDelete, returnPath, nil, testutils.AuthHeaders(testCtx.AdminJWT))
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = testutils.PerformRequest(testCtx.Router, http.MethodDelete, finePath, nil, testutils.AuthHeaders(testCtx.AdminJWT))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = testutils.PerformRequest(testCtx.Router, http.MethodDelete, returnPath, nil, testutils.AuthHeaders(testCtx.AdminJWT))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, returnPath, nil, testutils.AuthHeaders(testCtx.TestUserJWT))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodDelete, finePath, nil, testutils.AuthHeaders(testCtx.AdminJWT))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
