package labor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an existing connection pool.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Insert(ctx context.Context, rec *AttendanceRecord) error {
	_, err := s.db.ExecContext(ctx, `
		insert into attendance_records(id, user_id, site_id, work_date, check_in, check_out, labor_hours, status, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, rec.ID, rec.UserID, rec.SiteID, rec.WorkDate, rec.CheckIn, rec.CheckOut, rec.LaborHours, string(rec.Status), rec.CreatedAt)
	return err
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]AttendanceRecord, error) {
	query := strings.Builder{}
	query.WriteString(`
		select id, user_id, site_id, work_date, check_in, check_out, labor_hours, status, created_at
		from attendance_records
		where 1=1`)
	var args []any

	if f.UserID != "" {
		args = append(args, f.UserID)
		fmt.Fprintf(&query, " and user_id = $%d", len(args))
	}
	if f.SiteID != "" {
		args = append(args, f.SiteID)
		fmt.Fprintf(&query, " and site_id = $%d", len(args))
	}
	if len(f.SiteIDs) > 0 {
		placeholders := make([]string, 0, len(f.SiteIDs))
		for _, id := range f.SiteIDs {
			args = append(args, id)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		fmt.Fprintf(&query, " and site_id in (%s)", strings.Join(placeholders, ","))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		fmt.Fprintf(&query, " and work_date >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		fmt.Fprintf(&query, " and work_date <= $%d", len(args))
	}
	query.WriteString(" order by work_date asc, site_id asc")

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []AttendanceRecord
	for rows.Next() {
		var rec AttendanceRecord
		var checkIn, checkOut sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.SiteID, &rec.WorkDate, &checkIn, &checkOut, &rec.LaborHours, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if checkIn.Valid {
			rec.CheckIn = &checkIn.Time
		}
		if checkOut.Valid {
			rec.CheckOut = &checkOut.Time
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
