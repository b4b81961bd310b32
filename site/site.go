/*
Package site owns the peripheral records of a construction site: the
project itself, the daily diary and protective equipment (EPI) issuance.

None of these carry a derived aggregate. Projects are immutable once
created, the diary is one replaceable entry per (project, day) and EPI
issuances are plain dated rows.
*/
package site

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/site-ledger/config"
	"github.com/warp/site-ledger/generic"
)

type Service struct {
	store  generic.TxStore
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewService(store generic.TxStore, logger logrus.FieldLogger) *Service {
	return &Service{
		store:  store,
		logger: config.OrDiscard(logger).WithField("module", "site"),
		now:    time.Now,
	}
}

// WithClock replaces the clock that dates new projects.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// =============================================================================
// PROJECTS
// =============================================================================

// CreateProject creates a project starting today.
func (s *Service) CreateProject(ctx context.Context, name, address string) (generic.ProjectID, error) {
	const op = "site.CreateProject"

	p := generic.Project{
		Name:      strings.TrimSpace(name),
		Address:   strings.TrimSpace(address),
		StartDate: generic.DateOf(s.now()),
	}
	if p.Name == "" {
		return 0, &generic.ValidationError{Op: op, Field: "name", Reason: "required"}
	}
	id, err := s.store.InsertProject(ctx, p)
	if err != nil {
		return 0, s.fail(op, "project", 0, err)
	}
	s.logger.WithFields(logrus.Fields{"op": op, "project_id": id, "name": p.Name}).Info("project created")
	return id, nil
}

// Projects lists every project, newest first.
func (s *Service) Projects(ctx context.Context) ([]generic.Project, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, s.fail("site.Projects", "project", 0, err)
	}
	return projects, nil
}

func (s *Service) Project(ctx context.Context, id generic.ProjectID) (*generic.Project, error) {
	const op = "site.Project"
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, s.fail(op, "project", int64(id), err)
	}
	if p == nil {
		return nil, &generic.NotFoundError{Op: op, Entity: "project", ID: int64(id)}
	}
	return p, nil
}

// =============================================================================
// DIARY
// =============================================================================

// SaveDiary writes the project's entry for entry.Date, replacing any
// earlier text for that day.
func (s *Service) SaveDiary(ctx context.Context, entry generic.DiaryEntry) error {
	const op = "site.SaveDiary"

	if entry.Date.IsZero() {
		return &generic.ValidationError{Op: op, Field: "date", Reason: "required"}
	}
	entry.Weather = strings.TrimSpace(entry.Weather)
	entry.Activities = strings.TrimSpace(entry.Activities)
	entry.Incidents = strings.TrimSpace(entry.Incidents)

	err := s.store.WithTx(ctx, func(tx generic.Store) error {
		p, err := tx.GetProject(ctx, entry.ProjectID)
		if err != nil {
			return err
		}
		if p == nil {
			return &generic.NotFoundError{Op: op, Entity: "project", ID: int64(entry.ProjectID)}
		}
		return tx.UpsertDiary(ctx, entry)
	})
	return s.fail(op, "project", int64(entry.ProjectID), err)
}

// Diary returns the entry for (project, date), or nil when none was saved.
func (s *Service) Diary(ctx context.Context, projectID generic.ProjectID, date generic.Date) (*generic.DiaryEntry, error) {
	d, err := s.store.GetDiary(ctx, projectID, date)
	if err != nil {
		return nil, s.fail("site.Diary", "project", int64(projectID), err)
	}
	return d, nil
}

// =============================================================================
// EPI
// =============================================================================

// IssueEPI records equipment handed to an employee of the project.
func (s *Service) IssueEPI(ctx context.Context, projectID generic.ProjectID, employeeID generic.EmployeeID, date generic.Date, item string) (generic.EPIID, error) {
	const op = "site.IssueEPI"

	item = strings.TrimSpace(item)
	if item == "" {
		return 0, &generic.ValidationError{Op: op, Field: "item", Reason: "required"}
	}
	if date.IsZero() {
		return 0, &generic.ValidationError{Op: op, Field: "date", Reason: "required"}
	}

	var id generic.EPIID
	err := s.store.WithTx(ctx, func(tx generic.Store) error {
		emp, err := tx.GetEmployee(ctx, employeeID)
		if err != nil {
			return err
		}
		if emp == nil {
			return &generic.NotFoundError{Op: op, Entity: "employee", ID: int64(employeeID)}
		}
		if emp.ProjectID != projectID {
			return &generic.ValidationError{Op: op, Field: "employee_id", Value: employeeID, Reason: "employee belongs to another project"}
		}
		id, err = tx.InsertEPI(ctx, generic.EPIEntry{
			ProjectID:  projectID,
			EmployeeID: employeeID,
			Date:       date,
			Item:       item,
		})
		return err
	})
	if err != nil {
		return 0, s.fail(op, "employee", int64(employeeID), err)
	}
	return id, nil
}

// EPIHistory lists the project's issuances newest first.
func (s *Service) EPIHistory(ctx context.Context, projectID generic.ProjectID) ([]generic.EPIEntry, error) {
	list, err := s.store.ListEPI(ctx, projectID)
	if err != nil {
		return nil, s.fail("site.EPIHistory", "project", int64(projectID), err)
	}
	return list, nil
}

func (s *Service) DeleteEPI(ctx context.Context, id generic.EPIID) error {
	const op = "site.DeleteEPI"
	ok, err := s.store.DeleteEPI(ctx, id)
	if err != nil {
		return s.fail(op, "epi", int64(id), err)
	}
	if !ok {
		return &generic.NotFoundError{Op: op, Entity: "epi", ID: int64(id)}
	}
	return nil
}

func (s *Service) fail(op, entity string, id int64, err error) error {
	err = generic.Wrap(op, entity, id, err)
	if err != nil && !generic.IsClientError(err) && !generic.IsNotFound(err) {
		config.LogError(s.logger, "site", op, entity, id, err)
	}
	return err
}
