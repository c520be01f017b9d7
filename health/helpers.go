package health

import "time"

func newStatus(state, component, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a healthy status.
func NewHealthy(component, message string) Status {
	return newStatus(StateHealthy, component, message)
}

// NewUnhealthy creates an unhealthy status.
func NewUnhealthy(component, message string) Status {
	return newStatus(StateUnhealthy, component, message)
}

// NewDegraded creates a degraded status.
func NewDegraded(component, message string) Status {
	return newStatus(StateDegraded, component, message)
}

// severity orders states from best to worst.
func severity(s Status) int {
	switch {
	case s.IsUnhealthy():
		return 2
	case s.IsDegraded():
		return 1
	default:
		return 0
	}
}

// Aggregate folds sub-statuses into one that takes the worst state among
// them. An empty list is healthy.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "Nothing to report")
	}

	worst := 0
	for _, sub := range subStatuses {
		worst = max(worst, severity(sub))
	}

	var status Status
	switch worst {
	case 2:
		status = NewUnhealthy(component, "One or more parts are unhealthy")
	case 1:
		status = NewDegraded(component, "One or more parts are degraded")
	default:
		status = NewHealthy(component, "All parts are healthy")
	}
	status.SubStatuses = append([]Status(nil), subStatuses...)
	return status
}
