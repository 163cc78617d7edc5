package assignment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// pgExclusionViolation is raised by the site_assignments overlap constraint,
// the storage-level half of the non-overlap invariant.
const pgExclusionViolation = "23P01"

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an existing connection pool.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) GetSite(ctx context.Context, siteID string) (Site, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, organization_id, name, status, created_at from sites where id=$1`, siteID)
	var site Site
	if err := row.Scan(&site.ID, &site.OrganizationID, &site.Name, &site.Status, &site.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Site{}, ErrSiteNotFound
		}
		return Site{}, err
	}
	return site, nil
}

func (s *PGStore) Insert(ctx context.Context, a *Assignment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the pair's rows so concurrent assigns serialize; exactly one of
	// two racing inserts must fail with ErrOverlap.
	rows, err := tx.QueryContext(ctx, `
		select start_date, end_date from site_assignments
		where user_id=$1 and site_id=$2
		for update
	`, a.UserID, a.SiteID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var start time.Time
		var end sql.NullTime
		if err := rows.Scan(&start, &end); err != nil {
			rows.Close()
			return err
		}
		existing := Assignment{StartDate: start}
		if end.Valid {
			existing.EndDate = &end.Time
		}
		if Overlaps(existing, a.StartDate) {
			rows.Close()
			return ErrOverlap
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `
		insert into site_assignments(id, user_id, site_id, local_role, start_date, created_at, created_by)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, a.ID, a.UserID, a.SiteID, string(a.Role), a.StartDate, a.CreatedAt, a.CreatedBy); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
			return ErrOverlap
		}
		return err
	}
	return tx.Commit()
}

func (s *PGStore) Close(ctx context.Context, userID, siteID string, endDate time.Time) (Assignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Assignment{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		update site_assignments set end_date=$3
		where user_id=$1 and site_id=$2 and end_date is null and start_date <= $3
		returning id, user_id, site_id, local_role, start_date, end_date, created_at, created_by
	`, userID, siteID, endDate)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Retry tolerance: accept an interval already closed at this date.
		row = tx.QueryRowContext(ctx, `
			select id, user_id, site_id, local_role, start_date, end_date, created_at, created_by
			from site_assignments
			where user_id=$1 and site_id=$2 and end_date=$3
		`, userID, siteID, endDate)
		a, err = scanAssignment(row)
		if errors.Is(err, sql.ErrNoRows) {
			return Assignment{}, ErrNotAssigned
		}
	}
	if err != nil {
		return Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return Assignment{}, err
	}
	return a, nil
}

func (s *PGStore) ActiveAt(ctx context.Context, userID, siteID string, asOf time.Time) (Assignment, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, user_id, site_id, local_role, start_date, end_date, created_at, created_by
		from site_assignments
		where user_id=$1 and site_id=$2 and start_date <= $3 and (end_date is null or end_date > $3)
	`, userID, siteID, asOf)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Assignment{}, false, nil
	}
	if err != nil {
		return Assignment{}, false, err
	}
	return a, true, nil
}

func (s *PGStore) ListActive(ctx context.Context, userID string, asOf time.Time) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, site_id, local_role, start_date, end_date, created_at, created_by
		from site_assignments
		where user_id=$1 and start_date <= $2 and (end_date is null or end_date > $2)
		order by start_date desc
	`, userID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

func (s *PGStore) History(ctx context.Context, userID string) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, site_id, local_role, start_date, end_date, created_at, created_by
		from site_assignments
		where user_id=$1
		order by start_date desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (Assignment, error) {
	var a Assignment
	var end sql.NullTime
	if err := row.Scan(&a.ID, &a.UserID, &a.SiteID, &a.Role, &a.StartDate, &end, &a.CreatedAt, &a.CreatedBy); err != nil {
		return Assignment{}, err
	}
	if end.Valid {
		a.EndDate = &end.Time
	}
	return a, nil
}

func collectAssignments(rows *sql.Rows) ([]Assignment, error) {
	var res []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
