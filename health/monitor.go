package health

import (
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Monitor holds the last reported status of each named part. Parts report
// from their own goroutines, for example NATS connection callbacks, so every
// method is safe for concurrent use.
type Monitor struct {
	statuses *xsync.Map[string, Status]
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{statuses: xsync.NewMap[string, Status]()}
}

// Update stores status under name, stamping it when the reporter did not.
func (m *Monitor) Update(name string, status Status) {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses.Store(name, status)
}

// UpdateHealthy reports name as healthy.
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy reports name as unhealthy.
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, message))
}

// UpdateDegraded reports name as degraded.
func (m *Monitor) UpdateDegraded(name, message string) {
	m.Update(name, NewDegraded(name, message))
}

// Get returns the last status reported for name.
func (m *Monitor) Get(name string) (Status, bool) {
	return m.statuses.Load(name)
}

// GetAll returns a copy of every reported status keyed by name.
func (m *Monitor) GetAll() map[string]Status {
	out := make(map[string]Status, m.statuses.Size())
	m.statuses.Range(func(name string, status Status) bool {
		out[name] = status
		return true
	})
	return out
}

// Remove stops reporting name.
func (m *Monitor) Remove(name string) {
	m.statuses.Delete(name)
}

// AggregateHealth folds every part into one status for systemName. Parts
// appear in name order.
func (m *Monitor) AggregateHealth(systemName string) Status {
	all := m.GetAll()
	subs := make([]Status, 0, len(all))
	for _, name := range sortedNames(all) {
		subs = append(subs, all[name])
	}
	return Aggregate(systemName, subs)
}

// ListComponents returns the monitored part names, sorted.
func (m *Monitor) ListComponents() []string {
	return sortedNames(m.GetAll())
}

// Count returns the number of monitored parts.
func (m *Monitor) Count() int {
	return m.statuses.Size()
}

func sortedNames(statuses map[string]Status) []string {
	names := make([]string, 0, len(statuses))
	for name := range statuses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
