package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateJSON(t *testing.T) {
	var payload struct {
		Due  Date  `json:"due"`
		Paid *Date `json:"paid"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"due":"2024-01-15","paid":null}`), &payload))
	assert.True(t, payload.Due.Equal(NewDate(2024, time.January, 15)))
	assert.Nil(t, payload.Paid)

	// Timestamps keep only their calendar day
	require.NoError(t, json.Unmarshal([]byte(`{"due":"2024-01-15T23:30:00+02:00"}`), &payload))
	assert.Equal(t, "2024-01-15", payload.Due.String())

	assert.Error(t, json.Unmarshal([]byte(`{"due":"15/01/2024"}`), &payload))

	out, err := json.Marshal(NewDate(2024, time.March, 1))
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-01"`, string(out))
}

func TestDateScan(t *testing.T) {
	var d Date

	require.NoError(t, d.Scan(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-02-29", d.String())

	require.NoError(t, d.Scan([]byte("2024-03-01T00:00:00Z")))
	assert.Equal(t, "2024-03-01", d.String())

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())

	assert.Error(t, d.Scan(42))
}

func TestLoanOverdue(t *testing.T) {
	loan := Loan{DueDate: NewDate(2024, 1, 15), Status: LoanStatusActive}

	assert.False(t, loan.IsOverdue(NewDate(2024, 1, 15)))
	assert.True(t, loan.IsOverdue(NewDate(2024, 1, 16)))
	assert.Equal(t, 3, loan.DaysOverdue(NewDate(2024, 1, 18)))

	loan.Status = LoanStatusReturned
	assert.False(t, loan.IsOverdue(NewDate(2024, 2, 1)))
	assert.Equal(t, 0, loan.DaysOverdue(NewDate(2024, 2, 1)))
}

func TestFineIssuedOnUsesUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	fine := Fine{CreatedAt: time.Date(2024, time.January, 31, 23, 30, 0, 0, est)}

	issued := fine.IssuedOn()
	assert.Equal(t, NewDate(2024, time.February, 1), issued)

	// Grace is counted from the same day payment dates are checked against
	assert.False(t, fine.IsOverdue(NewDate(2024, time.March, 2), 30))
	assert.True(t, fine.IsOverdue(NewDate(2024, time.March, 3), 30))

	fine.Paid = true
	assert.False(t, fine.IsOverdue(NewDate(2024, time.March, 3), 30))
}
