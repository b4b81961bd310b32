/*
Package payroll derives pay from attendance.

  amountDue  = daysWorked * dailyRate
  Total      = Σ amountDue
  DaysTotal  = Σ daysWorked

An employee without a daily rate is paid at rate zero; that is not an
error. Rows follow the attendance aggregate order (employee name).
*/
package payroll

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/site-ledger/attendance"
	"github.com/warp/site-ledger/generic"
)

// Row is one employee's pay for the period.
type Row struct {
	Employee   generic.Employee
	DaysWorked decimal.Decimal
	DailyRate  decimal.Decimal
	AmountDue  decimal.Decimal
}

type Payroll struct {
	ProjectID generic.ProjectID
	Period    generic.Period
	Rows      []Row
	DaysTotal decimal.Decimal
	Total     decimal.Decimal
}

// Calculator reads attendance aggregates; it never writes.
type Calculator struct {
	attendance *attendance.Ledger
}

func NewCalculator(att *attendance.Ledger) *Calculator {
	return &Calculator{attendance: att}
}

// ComputePayroll returns per-employee pay over the inclusive period plus the
// grand total.
func (c *Calculator) ComputePayroll(ctx context.Context, projectID generic.ProjectID, period generic.Period) (Payroll, error) {
	agg, err := c.attendance.AggregatePeriod(ctx, projectID, period)
	if err != nil {
		return Payroll{}, err
	}

	out := Payroll{
		ProjectID: projectID,
		Period:    period,
		Rows:      make([]Row, len(agg)),
		DaysTotal: decimal.Zero,
		Total:     decimal.Zero,
	}
	for i, a := range agg {
		rate := a.Employee.DailyRate
		if rate.IsNegative() {
			rate = decimal.Zero
		}
		due := a.DaysWorked.Mul(rate)
		out.Rows[i] = Row{
			Employee:   a.Employee,
			DaysWorked: a.DaysWorked,
			DailyRate:  rate,
			AmountDue:  due,
		}
		out.DaysTotal = out.DaysTotal.Add(a.DaysWorked)
		out.Total = out.Total.Add(due)
	}
	return out, nil
}
