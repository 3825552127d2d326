package http

import (
	"fmt"

	"github.com/google/uuid"

	"docpulse/internal/analytics"
	"docpulse/internal/dashboard"
)

// SummaryCards are the headline figures shown above the charts.
type SummaryCards struct {
	TotalViews         int64  `json:"total_views"`
	UniqueViewers      int64  `json:"unique_viewers"`
	AvgDurationSeconds int64  `json:"avg_duration_seconds"`
	AvgTimeLabel       string `json:"avg_time_label"`
	EngagementScore    int64  `json:"engagement_score"`
	EngagementLabel    string `json:"engagement_label"`
}

// DashboardView is the JSON rendering of a dashboard state.
type DashboardView struct {
	ID         string              `json:"id"`
	Phase      dashboard.Phase     `json:"phase"`
	DocumentID string              `json:"document_id,omitempty"`
	RangeDays  int                 `json:"range_days,omitempty"`
	Loading    bool                `json:"loading"`
	Error      string              `json:"error,omitempty"`
	Summary    *SummaryCards       `json:"summary,omitempty"`
	Snapshot   *analytics.Snapshot `json:"snapshot,omitempty"`
}

// NewDashboardView renders state for the dashboard registered under id.
func NewDashboardView(id uuid.UUID, state dashboard.State) DashboardView {
	view := DashboardView{
		ID:         id.String(),
		Phase:      state.Phase,
		DocumentID: string(state.Selection.DocumentID),
		RangeDays:  state.Selection.RangeDays,
		Loading:    state.Phase == dashboard.PhaseLoading,
		Error:      state.Err,
	}

	if state.Snapshot != nil {
		view.Snapshot = state.Snapshot
		view.Summary = newSummaryCards(state.Snapshot.Summary)
	}

	return view
}

func newSummaryCards(s analytics.Summary) *SummaryCards {
	return &SummaryCards{
		TotalViews:         s.TotalViews,
		UniqueViewers:      s.UniqueViewers,
		AvgDurationSeconds: s.AvgDurationSeconds,
		AvgTimeLabel:       fmt.Sprintf("%ds", s.AvgDurationSeconds),
		EngagementScore:    s.EngagementScore,
		EngagementLabel:    fmt.Sprintf("%d%%", s.EngagementScore),
	}
}
