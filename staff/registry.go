/*
registry.go - Employee registry and active/inactive status history

PURPOSE:
  Registers and edits employees, and owns the status audit trail that runs
  beside the employee's mutable Active flag.

INVARIANT:
  employee.Active == NewStatus of the employee's most recent StatusEvent

  SetActive writes the flag and appends the event in ONE transaction under
  the project lock, so the two can never diverge through this package.
  Registration does not append an event: an employee with no history is
  active by default. Verify checks the invariant for one employee.

ORDERING:
  History is newest first: date desc, id desc.

SEE ALSO:
  - generic/types.go: Employee, StatusEvent
*/
package staff

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/site-ledger/config"
	"github.com/warp/site-ledger/generic"
)

type Registry struct {
	store  generic.TxStore
	guard  *generic.Guard
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewRegistry(store generic.TxStore, locker generic.Locker, logger logrus.FieldLogger) *Registry {
	return &Registry{
		store:  store,
		guard:  generic.NewGuard(store, locker),
		logger: config.OrDiscard(logger).WithField("module", "staff"),
		now:    time.Now,
	}
}

// WithClock replaces the clock that dates status events.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Register creates an active employee.
func (r *Registry) Register(ctx context.Context, e generic.Employee) (generic.EmployeeID, error) {
	const op = "staff.Register"

	e = normalize(e)
	e.Active = true
	if err := validate(op, e); err != nil {
		return 0, err
	}

	var id generic.EmployeeID
	err := r.store.WithTx(ctx, func(tx generic.Store) error {
		project, err := tx.GetProject(ctx, e.ProjectID)
		if err != nil {
			return err
		}
		if project == nil {
			return &generic.NotFoundError{Op: op, Entity: "project", ID: int64(e.ProjectID)}
		}
		id, err = tx.InsertEmployee(ctx, e)
		return err
	})
	if err != nil {
		return 0, r.fail(op, "project", int64(e.ProjectID), err)
	}

	r.logger.WithFields(logrus.Fields{"op": op, "employee_id": id, "project_id": e.ProjectID}).Debug("employee registered")
	return id, nil
}

// Update edits registration data. Active is ignored; use SetActive.
func (r *Registry) Update(ctx context.Context, e generic.Employee) error {
	const op = "staff.Update"

	e = normalize(e)
	if err := validate(op, e); err != nil {
		return err
	}
	ok, err := r.store.UpdateEmployee(ctx, e)
	if err != nil {
		return r.fail(op, "employee", int64(e.ID), err)
	}
	if !ok {
		return &generic.NotFoundError{Op: op, Entity: "employee", ID: int64(e.ID)}
	}
	return nil
}

func (r *Registry) Get(ctx context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	const op = "staff.Get"
	e, err := r.store.GetEmployee(ctx, id)
	if err != nil {
		return nil, r.fail(op, "employee", int64(id), err)
	}
	if e == nil {
		return nil, &generic.NotFoundError{Op: op, Entity: "employee", ID: int64(id)}
	}
	return e, nil
}

// List returns the project's employees by name. A nil active returns
// everyone.
func (r *Registry) List(ctx context.Context, projectID generic.ProjectID, active *bool) ([]generic.Employee, error) {
	list, err := r.store.ListEmployees(ctx, projectID, active)
	if err != nil {
		return nil, r.fail("staff.List", "project", int64(projectID), err)
	}
	return list, nil
}

// =============================================================================
// STATUS HISTORY
// =============================================================================

// SetActive updates the flag and appends a dated event atomically.
func (r *Registry) SetActive(ctx context.Context, id generic.EmployeeID, active bool, reason string) (generic.StatusEvent, error) {
	const op = "staff.SetActive"

	emp, err := r.Get(ctx, id)
	if err != nil {
		return generic.StatusEvent{}, err
	}

	ev := generic.StatusEvent{
		EmployeeID: id,
		Date:       generic.DateOf(r.now()),
		NewStatus:  active,
		Reason:     strings.TrimSpace(reason),
	}
	err = r.guard.Mutate(ctx, emp.ProjectID, func(tx generic.Store) error {
		if err := tx.SetEmployeeActive(ctx, id, active); err != nil {
			return err
		}
		var err error
		ev.ID, err = tx.InsertStatusEvent(ctx, ev)
		return err
	})
	if err != nil {
		return generic.StatusEvent{}, r.fail(op, "employee", int64(id), err)
	}

	r.logger.WithFields(logrus.Fields{
		"op":          op,
		"employee_id": id,
		"active":      active,
		"reason":      ev.Reason,
	}).Info("employee status changed")
	return ev, nil
}

// History returns the employee's status events, newest first.
func (r *Registry) History(ctx context.Context, id generic.EmployeeID) ([]generic.StatusEvent, error) {
	const op = "staff.History"
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	events, err := r.store.ListStatusEvents(ctx, id)
	if err != nil {
		return nil, r.fail(op, "employee", int64(id), err)
	}
	return events, nil
}

// Verify reports whether the employee's flag agrees with its latest event.
// Without events the flag must be the registration default (active).
func (r *Registry) Verify(ctx context.Context, id generic.EmployeeID) (bool, error) {
	const op = "staff.Verify"

	var consistent bool
	err := r.store.WithTx(ctx, func(tx generic.Store) error {
		emp, err := tx.GetEmployee(ctx, id)
		if err != nil {
			return err
		}
		if emp == nil {
			return &generic.NotFoundError{Op: op, Entity: "employee", ID: int64(id)}
		}
		events, err := tx.ListStatusEvents(ctx, id)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			consistent = emp.Active
			return nil
		}
		consistent = emp.Active == events[0].NewStatus
		return nil
	})
	if err != nil {
		return false, r.fail(op, "employee", int64(id), err)
	}
	if !consistent {
		r.logger.WithFields(logrus.Fields{"op": op, "employee_id": id}).Warn("active flag diverges from status history")
	}
	return consistent, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func normalize(e generic.Employee) generic.Employee {
	e.Name = strings.TrimSpace(e.Name)
	e.Role = strings.TrimSpace(e.Role)
	e.Phone = strings.TrimSpace(e.Phone)
	e.DocID = strings.TrimSpace(e.DocID)
	e.DocID2 = strings.TrimSpace(e.DocID2)
	e.BankName = strings.TrimSpace(e.BankName)
	e.BankBranch = strings.TrimSpace(e.BankBranch)
	e.BankAccount = strings.TrimSpace(e.BankAccount)
	return e
}

func validate(op string, e generic.Employee) error {
	if e.Name == "" {
		return &generic.ValidationError{Op: op, Field: "name", Reason: "required"}
	}
	if e.DailyRate.IsNegative() {
		return &generic.ValidationError{Op: op, Field: "daily_rate", Value: e.DailyRate.String(), Reason: "must not be negative"}
	}
	return nil
}

func (r *Registry) fail(op, entity string, id int64, err error) error {
	err = generic.Wrap(op, entity, id, err)
	if err != nil && !generic.IsClientError(err) && !generic.IsNotFound(err) {
		config.LogError(r.logger, "staff", op, entity, id, err)
	}
	return err
}
