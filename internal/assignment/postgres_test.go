package assignment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"siteops.kr/internal/access"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPGStore(db), mock
}

func TestPGInsertHappyPath(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`select start_date, end_date from site_assignments`).
		WithArgs("worker-1", "site-a").
		WillReturnRows(sqlmock.NewRows([]string{"start_date", "end_date"}))
	mock.ExpectExec(`insert into site_assignments`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a := &Assignment{
		ID:        "as-1",
		UserID:    "worker-1",
		SiteID:    "site-a",
		Role:      access.LocalWorker,
		StartDate: start,
		CreatedAt: start,
		CreatedBy: "admin-1",
	}
	if err := store.Insert(context.Background(), a); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGInsertDetectsOverlap(t *testing.T) {
	store, mock := newMockStore(t)
	existingStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`select start_date, end_date from site_assignments`).
		WithArgs("worker-1", "site-a").
		WillReturnRows(sqlmock.NewRows([]string{"start_date", "end_date"}).
			AddRow(existingStart, nil))
	mock.ExpectRollback()

	a := &Assignment{
		ID:        "as-2",
		UserID:    "worker-1",
		SiteID:    "site-a",
		Role:      access.LocalWorker,
		StartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.Insert(context.Background(), a); !errors.Is(err, ErrOverlap) {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGInsertAllowsStartAtClosedEnd(t *testing.T) {
	store, mock := newMockStore(t)
	existingStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	existingEnd := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`select start_date, end_date from site_assignments`).
		WithArgs("worker-1", "site-a").
		WillReturnRows(sqlmock.NewRows([]string{"start_date", "end_date"}).
			AddRow(existingStart, existingEnd))
	mock.ExpectExec(`insert into site_assignments`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a := &Assignment{
		ID:        "as-3",
		UserID:    "worker-1",
		SiteID:    "site-a",
		Role:      access.LocalWorker,
		StartDate: existingEnd,
	}
	if err := store.Insert(context.Background(), a); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGCloseRetryTolerance(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "user_id", "site_id", "local_role", "start_date", "end_date", "created_at", "created_by"}

	mock.ExpectBegin()
	mock.ExpectQuery(`update site_assignments set end_date`).
		WithArgs("worker-1", "site-a", end).
		WillReturnRows(sqlmock.NewRows(cols)) // nothing open
	mock.ExpectQuery(`select id, user_id, site_id, local_role, start_date, end_date, created_at, created_by`).
		WithArgs("worker-1", "site-a", end).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("as-1", "worker-1", "site-a", "worker", start, end, start, "admin-1"))
	mock.ExpectCommit()

	a, err := store.Close(context.Background(), "worker-1", "site-a", end)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if a.EndDate == nil || !a.EndDate.Equal(end) {
		t.Fatalf("unexpected end date: %v", a.EndDate)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGCloseNotAssigned(t *testing.T) {
	store, mock := newMockStore(t)
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "user_id", "site_id", "local_role", "start_date", "end_date", "created_at", "created_by"}

	mock.ExpectBegin()
	mock.ExpectQuery(`update site_assignments set end_date`).
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(`select id, user_id, site_id, local_role`).
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectRollback()

	if _, err := store.Close(context.Background(), "ghost", "site-a", end); !errors.Is(err, ErrNotAssigned) {
		t.Fatalf("expected ErrNotAssigned, got %v", err)
	}
}

func TestPGActiveAt(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	asOf := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "user_id", "site_id", "local_role", "start_date", "end_date", "created_at", "created_by"}

	mock.ExpectQuery(`from site_assignments`).
		WithArgs("worker-1", "site-a", asOf).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("as-1", "worker-1", "site-a", "site_manager", start, nil, start, "admin-1"))

	a, ok, err := store.ActiveAt(context.Background(), "worker-1", "site-a", asOf)
	if err != nil || !ok {
		t.Fatalf("ActiveAt = %v %v", ok, err)
	}
	if a.Role != access.LocalSiteManager || a.EndDate != nil {
		t.Fatalf("unexpected assignment: %+v", a)
	}
}
