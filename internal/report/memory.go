package report

import (
	"context"
	"sort"
	"sync"
)

// Memory implements Store with in-process concurrency safety. The CAS in
// Update holds under concurrent transitions because the mutex serializes the
// status comparison with the write.
type Memory struct {
	mu      sync.RWMutex
	reports map[string]DailyReport
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{reports: make(map[string]DailyReport)}
}

func (m *Memory) Create(ctx context.Context, rep *DailyReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[rep.ID] = clone(*rep)
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (DailyReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rep, ok := m.reports[id]
	if !ok {
		return DailyReport{}, ErrNotFound
	}
	return clone(rep), nil
}

func (m *Memory) Update(ctx context.Context, rep DailyReport, expect Status) (DailyReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.reports[rep.ID]
	if !ok {
		return DailyReport{}, ErrNotFound
	}
	if current.Status != expect {
		return DailyReport{}, ErrConcurrentModification
	}
	m.reports[rep.ID] = clone(rep)
	return clone(rep), nil
}

func (m *Memory) List(ctx context.Context, f Filter) ([]DailyReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []DailyReport
	for _, rep := range m.reports {
		if f.SiteID != "" && rep.SiteID != f.SiteID {
			continue
		}
		if f.CreatorID != "" && rep.CreatorID != f.CreatorID {
			continue
		}
		if f.Status != "" && rep.Status != f.Status {
			continue
		}
		if !f.WorkDate.IsZero() && !rep.WorkDate.Equal(f.WorkDate) {
			continue
		}
		res = append(res, clone(rep))
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].WorkDate.Equal(res[j].WorkDate) {
			return res[i].WorkDate.After(res[j].WorkDate)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func clone(rep DailyReport) DailyReport {
	if rep.AttendanceIDs != nil {
		rep.AttendanceIDs = append([]string(nil), rep.AttendanceIDs...)
	}
	return rep
}
