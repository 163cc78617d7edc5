package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PGStore implements Store using PostgreSQL. Update relies on a conditional
// write keyed on the expected status, so concurrent transitions resolve to a
// single winner without explicit row locks.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an existing connection pool.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const reportColumns = `id, site_id, work_date, creator_id, status, work_content, attendance_ids, total_labor_hours, approver_id, submitted_at, approved_at, rejection_reason, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, rep *DailyReport) error {
	attIDs, err := json.Marshal(rep.AttendanceIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into daily_reports(`+reportColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, rep.ID, rep.SiteID, rep.WorkDate, rep.CreatorID, string(rep.Status), rep.WorkContent,
		attIDs, rep.TotalLaborHours, nullString(rep.ApproverID), rep.SubmittedAt, rep.ApprovedAt,
		nullString(rep.RejectionReason), rep.CreatedAt, rep.UpdatedAt)
	return err
}

func (s *PGStore) Get(ctx context.Context, id string) (DailyReport, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+reportColumns+` from daily_reports where id = $1
	`, id)
	rep, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DailyReport{}, ErrNotFound
	}
	return rep, err
}

func (s *PGStore) Update(ctx context.Context, rep DailyReport, expect Status) (DailyReport, error) {
	attIDs, err := json.Marshal(rep.AttendanceIDs)
	if err != nil {
		return DailyReport{}, err
	}
	res, err := s.db.ExecContext(ctx, `
		update daily_reports
		set status = $3, work_content = $4, attendance_ids = $5, total_labor_hours = $6,
		    approver_id = $7, submitted_at = $8, approved_at = $9, rejection_reason = $10,
		    updated_at = $11
		where id = $1 and status = $2
	`, rep.ID, string(expect), string(rep.Status), rep.WorkContent, attIDs, rep.TotalLaborHours,
		nullString(rep.ApproverID), rep.SubmittedAt, rep.ApprovedAt, nullString(rep.RejectionReason),
		rep.UpdatedAt)
	if err != nil {
		return DailyReport{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return DailyReport{}, err
	}
	if affected == 0 {
		// Either the report is gone or another writer changed the status
		// since the caller read it.
		if _, err := s.Get(ctx, rep.ID); errors.Is(err, ErrNotFound) {
			return DailyReport{}, ErrNotFound
		}
		return DailyReport{}, ErrConcurrentModification
	}
	return rep, nil
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]DailyReport, error) {
	query := strings.Builder{}
	query.WriteString(`select ` + reportColumns + ` from daily_reports where 1=1`)
	var args []any

	if f.SiteID != "" {
		args = append(args, f.SiteID)
		fmt.Fprintf(&query, " and site_id = $%d", len(args))
	}
	if f.CreatorID != "" {
		args = append(args, f.CreatorID)
		fmt.Fprintf(&query, " and creator_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		fmt.Fprintf(&query, " and status = $%d", len(args))
	}
	if !f.WorkDate.IsZero() {
		args = append(args, f.WorkDate)
		fmt.Fprintf(&query, " and work_date = $%d", len(args))
	}
	query.WriteString(" order by work_date desc, id asc")

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []DailyReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rep)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (DailyReport, error) {
	var rep DailyReport
	var status string
	var attIDs []byte
	var approver, reason sql.NullString
	var submittedAt, approvedAt sql.NullTime
	if err := row.Scan(&rep.ID, &rep.SiteID, &rep.WorkDate, &rep.CreatorID, &status, &rep.WorkContent,
		&attIDs, &rep.TotalLaborHours, &approver, &submittedAt, &approvedAt, &reason,
		&rep.CreatedAt, &rep.UpdatedAt); err != nil {
		return DailyReport{}, err
	}
	rep.Status = Status(status)
	if len(attIDs) > 0 {
		if err := json.Unmarshal(attIDs, &rep.AttendanceIDs); err != nil {
			return DailyReport{}, err
		}
	}
	rep.ApproverID = approver.String
	rep.RejectionReason = reason.String
	if submittedAt.Valid {
		rep.SubmittedAt = &submittedAt.Time
	}
	if approvedAt.Valid {
		rep.ApprovedAt = &approvedAt.Time
	}
	return rep, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
