package analytics

import "math"

// MaxEngagementScore caps the engagement score.
const MaxEngagementScore = 100

// engagementSecondsPerPoint is how many seconds of average session time
// earn one engagement point.
const engagementSecondsPerPoint = 6

// Summary holds the headline figures shown on the dashboard cards.
type Summary struct {
	TotalViews         int64 `json:"total_views"`
	UniqueViewers      int64 `json:"unique_viewers"`
	AvgDurationSeconds int64 `json:"avg_duration_seconds"`
	EngagementScore    int64 `json:"engagement_score"`
}

// ComputeSummary derives the summary figures from daily stats. Order of the
// records does not matter and an empty slice yields all zeros.
func ComputeSummary(daily []DailyStatRecord) Summary {
	var summary Summary
	if len(daily) == 0 {
		return summary
	}

	var durationSum float64
	for _, day := range daily {
		summary.TotalViews += day.TotalViews
		summary.UniqueViewers += day.UniqueSessions
		durationSum += day.AvgDurationSeconds
	}

	summary.AvgDurationSeconds = int64(math.Round(durationSum / float64(len(daily))))
	summary.EngagementScore = EngagementScore(summary.AvgDurationSeconds)
	return summary
}

// EngagementScore converts an average session duration into a 0-100 score.
func EngagementScore(avgDurationSeconds int64) int64 {
	if avgDurationSeconds <= 0 {
		return 0
	}
	score := int64(math.Round(float64(avgDurationSeconds) / engagementSecondsPerPoint))
	if score > MaxEngagementScore {
		return MaxEngagementScore
	}
	return score
}
