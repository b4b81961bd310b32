package payroll_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/site-ledger/attendance"
	"github.com/warp/site-ledger/generic"
	"github.com/warp/site-ledger/payroll"
	"github.com/warp/site-ledger/store/sqlite"
)

var (
	day1 = generic.MustParseDate("2024-05-06")
	day2 = generic.MustParseDate("2024-05-07")
	day3 = generic.MustParseDate("2024-05-08")
)

func setup(t *testing.T) (*sqlite.Store, *attendance.Ledger, *payroll.Calculator, generic.ProjectID) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	projectID, err := store.InsertProject(context.Background(), generic.Project{Name: "Obra"})
	require.NoError(t, err)

	att := attendance.NewLedger(store, nil, nil)
	return store, att, payroll.NewCalculator(att), projectID
}

func TestComputePayroll_DaysTimesRate(t *testing.T) {
	// GIVEN: daily rate 100, attendance 0.5 + 1.0 + 0 days
	// THEN: 1.5 days worked, 150 due

	store, att, calc, projectID := setup(t)
	ctx := context.Background()

	emp, err := store.InsertEmployee(ctx, generic.Employee{
		ProjectID: projectID, Name: "Carlos", DailyRate: decimal.NewFromInt(100), Active: true,
	})
	require.NoError(t, err)

	require.NoError(t, att.UpsertAttendance(ctx, emp, day1, generic.Shifts{Morning: true}))
	require.NoError(t, att.UpsertAttendance(ctx, emp, day2, generic.Shifts{Morning: true, Afternoon: true}))

	p, err := calc.ComputePayroll(ctx, projectID, generic.Period{From: day1, To: day3})
	require.NoError(t, err)
	require.Len(t, p.Rows, 1)

	row := p.Rows[0]
	assert.True(t, row.DaysWorked.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, row.AmountDue.Equal(decimal.NewFromInt(150)), "got %s", row.AmountDue)
	assert.True(t, p.Total.Equal(decimal.NewFromInt(150)))
	assert.True(t, p.DaysTotal.Equal(decimal.RequireFromString("1.5")))
}

func TestComputePayroll_UnsetRateIsZero(t *testing.T) {
	store, att, calc, projectID := setup(t)
	ctx := context.Background()

	paid, err := store.InsertEmployee(ctx, generic.Employee{
		ProjectID: projectID, Name: "Ana", DailyRate: decimal.RequireFromString("180.50"), Active: true,
	})
	require.NoError(t, err)
	unpaid, err := store.InsertEmployee(ctx, generic.Employee{ProjectID: projectID, Name: "Beto", Active: true})
	require.NoError(t, err)
	_, err = store.DB().Exec(`UPDATE employees SET daily_rate = NULL WHERE id = ?`, unpaid)
	require.NoError(t, err)

	for _, e := range []generic.EmployeeID{paid, unpaid} {
		require.NoError(t, att.UpsertAttendance(ctx, e, day1, generic.Shifts{Morning: true, Afternoon: true}))
		require.NoError(t, att.UpsertAttendance(ctx, e, day2, generic.Shifts{Morning: true, Afternoon: true}))
	}

	p, err := calc.ComputePayroll(ctx, projectID, generic.Period{From: day1, To: day3})
	require.NoError(t, err)
	require.Len(t, p.Rows, 2)

	assert.Equal(t, "Ana", p.Rows[0].Employee.Name)
	assert.True(t, p.Rows[0].AmountDue.Equal(decimal.NewFromInt(361)))
	assert.Equal(t, "Beto", p.Rows[1].Employee.Name)
	assert.True(t, p.Rows[1].DailyRate.IsZero())
	assert.True(t, p.Rows[1].AmountDue.IsZero())
	assert.True(t, p.Total.Equal(decimal.NewFromInt(361)))
}

func TestComputePayroll_EmployeesWithoutAttendanceListed(t *testing.T) {
	store, _, calc, projectID := setup(t)
	ctx := context.Background()

	_, err := store.InsertEmployee(ctx, generic.Employee{
		ProjectID: projectID, Name: "Dora", DailyRate: decimal.NewFromInt(90), Active: true,
	})
	require.NoError(t, err)

	p, err := calc.ComputePayroll(ctx, projectID, generic.Period{From: day1, To: day3})
	require.NoError(t, err)
	require.Len(t, p.Rows, 1)
	assert.True(t, p.Rows[0].AmountDue.IsZero())
	assert.True(t, p.Total.IsZero())
}

func TestComputePayroll_InvalidPeriod(t *testing.T) {
	_, _, calc, projectID := setup(t)

	_, err := calc.ComputePayroll(context.Background(), projectID, generic.Period{From: day3, To: day1})
	assert.True(t, generic.IsClientError(err))
}
