package monitor

import (
	"sync"
	"time"
)

// maxConsecutiveErrors is how many failed runs in a row a task may have
// before it is reported unhealthy.
const maxConsecutiveErrors = 3

// TaskMonitor tracks the health of a periodic background task.
type TaskMonitor struct {
	name       string
	staleAfter time.Duration

	mu                sync.RWMutex
	runs              int
	lastSuccess       time.Time
	lastAttempt       time.Time
	consecutiveErrors int
	lastError         string
}

// NewTaskMonitor creates a monitor for name. A task that has succeeded
// before but not within staleAfter is unhealthy (0 disables the check).
func NewTaskMonitor(name string, staleAfter time.Duration) *TaskMonitor {
	return &TaskMonitor{name: name, staleAfter: staleAfter}
}

// RecordSuccess records a successful run.
func (tm *TaskMonitor) RecordSuccess() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	now := time.Now()
	tm.runs++
	tm.lastSuccess = now
	tm.lastAttempt = now
	tm.consecutiveErrors = 0
	tm.lastError = ""
}

// RecordFailure records a failed run.
func (tm *TaskMonitor) RecordFailure(err error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.runs++
	tm.lastAttempt = time.Now()
	tm.consecutiveErrors++
	if err != nil {
		tm.lastError = err.Error()
	}
}

// IsHealthy reports whether the task is working. A task that has not run
// yet is healthy.
func (tm *TaskMonitor) IsHealthy() bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.healthyLocked()
}

func (tm *TaskMonitor) healthyLocked() bool {
	if tm.consecutiveErrors > maxConsecutiveErrors {
		return false
	}
	if tm.staleAfter > 0 && !tm.lastSuccess.IsZero() && time.Since(tm.lastSuccess) > tm.staleAfter {
		return false
	}
	return true
}

// TaskStatus is the health report of one background task.
type TaskStatus struct {
	Name              string `json:"name"`
	Healthy           bool   `json:"healthy"`
	Runs              int    `json:"runs"`
	LastSuccess       string `json:"last_success,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// Status returns the current status for health checks.
func (tm *TaskMonitor) Status() TaskStatus {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	status := TaskStatus{
		Name:    tm.name,
		Healthy: tm.healthyLocked(),
		Runs:    tm.runs,
	}
	if !tm.lastSuccess.IsZero() {
		status.LastSuccess = tm.lastSuccess.Format(time.RFC3339)
	}
	if !tm.lastAttempt.IsZero() {
		status.LastAttempt = tm.lastAttempt.Format(time.RFC3339)
	}
	if tm.consecutiveErrors > 0 {
		status.ConsecutiveErrors = tm.consecutiveErrors
		status.LastError = tm.lastError
	}
	return status
}
