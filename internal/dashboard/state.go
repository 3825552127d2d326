// Package dashboard owns the live analytics view of a selected document:
// it runs fetch cycles, guards against stale responses and keeps change
// subscriptions for the current selection.
package dashboard

import (
	"errors"

	"docpulse/internal/analytics"
)

// Phase is the coarse state of a dashboard.
type Phase string

const (
	PhaseNoSelection Phase = "no_selection"
	PhaseLoading     Phase = "loading"
	PhaseReady       Phase = "ready"
	PhaseError       Phase = "error"
)

var (
	// ErrClosed is returned by operations on a closed coordinator.
	ErrClosed = errors.New("dashboard closed")
	// ErrInvalidRange is returned when the trailing day count is out of bounds.
	ErrInvalidRange = errors.New("invalid time range")
	// ErrDashboardNotFound is returned by the registry for unknown ids.
	ErrDashboardNotFound = errors.New("dashboard not found")
	// ErrFetchTimeout ends a cycle whose queries did not finish in time.
	ErrFetchTimeout = errors.New("analytics request timed out")
)

// State is what the presentation layer renders.
//
// Snapshot is the current snapshot when Phase is PhaseReady. Under
// PhaseLoading and PhaseError it is the last good snapshot of the same
// selection, or nil. Err is only set under PhaseError.
type State struct {
	Phase     Phase
	Selection analytics.Selection
	Snapshot  *analytics.Snapshot
	Err       string
}

// HasSnapshot reports whether there is anything to display.
func (s State) HasSnapshot() bool {
	return s.Snapshot != nil
}
