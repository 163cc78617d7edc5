package labor

import (
	"context"
	"sort"
	"sync"
)

// Memory implements Store with in-process concurrency safety.
type Memory struct {
	mu      sync.RWMutex
	records []AttendanceRecord
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Insert(ctx context.Context, rec *AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *rec)
	return nil
}

func (m *Memory) List(ctx context.Context, f Filter) ([]AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []AttendanceRecord
	for _, rec := range m.records {
		if !matches(rec, f) {
			continue
		}
		res = append(res, rec)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].WorkDate.Before(res[j].WorkDate)
	})
	return res, nil
}

func matches(rec AttendanceRecord, f Filter) bool {
	if f.UserID != "" && rec.UserID != f.UserID {
		return false
	}
	if f.SiteID != "" && rec.SiteID != f.SiteID {
		return false
	}
	if len(f.SiteIDs) > 0 && !contains(f.SiteIDs, rec.SiteID) {
		return false
	}
	if !f.From.IsZero() && rec.WorkDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && rec.WorkDate.After(f.To) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
