package assignment

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory implements Store with in-process concurrency safety. Intended for
// tests and single-node demos; production uses the Postgres store.
type Memory struct {
	mu          sync.RWMutex
	sites       map[string]Site
	assignments []Assignment
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{sites: make(map[string]Site)}
}

// PutSite registers a site in the directory.
func (m *Memory) PutSite(site Site) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if site.Status == "" {
		site.Status = SiteStatusActive
	}
	if site.CreatedAt.IsZero() {
		site.CreatedAt = time.Now().UTC()
	}
	m.sites[site.ID] = site
}

func (m *Memory) GetSite(ctx context.Context, siteID string) (Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	site, ok := m.sites[siteID]
	if !ok {
		return Site{}, ErrSiteNotFound
	}
	return site, nil
}

func (m *Memory) Insert(ctx context.Context, a *Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.assignments {
		if existing.UserID != a.UserID || existing.SiteID != a.SiteID {
			continue
		}
		if Overlaps(existing, a.StartDate) {
			return ErrOverlap
		}
	}
	m.assignments = append(m.assignments, *a)
	return nil
}

func (m *Memory) Close(ctx context.Context, userID, siteID string, endDate time.Time) (Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.assignments {
		if a.UserID != userID || a.SiteID != siteID {
			continue
		}
		if a.Current() && !endDate.Before(a.StartDate) {
			end := endDate
			m.assignments[i].EndDate = &end
			return m.assignments[i], nil
		}
		// Retry tolerance: the interval was already closed at this date.
		if a.EndDate != nil && a.EndDate.Equal(endDate) {
			return a, nil
		}
	}
	return Assignment{}, ErrNotAssigned
}

func (m *Memory) ActiveAt(ctx context.Context, userID, siteID string, asOf time.Time) (Assignment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.assignments {
		if a.UserID == userID && a.SiteID == siteID && a.ActiveAt(asOf) {
			return a, true, nil
		}
	}
	return Assignment{}, false, nil
}

func (m *Memory) ListActive(ctx context.Context, userID string, asOf time.Time) ([]Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []Assignment
	for _, a := range m.assignments {
		if a.UserID == userID && a.ActiveAt(asOf) {
			res = append(res, a)
		}
	}
	return res, nil
}

func (m *Memory) History(ctx context.Context, userID string) ([]Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []Assignment
	for _, a := range m.assignments {
		if a.UserID == userID {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].StartDate.After(res[j].StartDate)
	})
	return res, nil
}
