package analytics

import "time"

// Slices groups the five metric datasets fetched in one cycle.
type Slices struct {
	DailyStats    []DailyStatRecord
	PageAttention []PageAttentionRecord
	GeoStats      []GeoStatRecord
	DeviceStats   []DeviceStatRecord
	Funnel        []FunnelStageRecord
}

// Snapshot is a complete aggregation result for one selection. It is never
// mutated after BuildSnapshot returns it.
type Snapshot struct {
	Selection     Selection             `json:"selection"`
	DailyStats    []DailyStatRecord     `json:"daily_stats"`
	PageAttention []PageAttentionRecord `json:"page_attention"`
	GeoStats      []GeoStatRecord       `json:"geo_stats"`
	DeviceStats   []DeviceStatRecord    `json:"device_stats"`
	Funnel        []FunnelStageRecord   `json:"funnel"`
	Summary       Summary               `json:"summary"`
	FetchedAt     time.Time             `json:"fetched_at"`
}

// BuildSnapshot assembles a snapshot from slices fetched for sel. The input
// slices are copied so later changes by the caller cannot leak in, and their
// order is kept exactly as given. Nil slices become empty ones.
func BuildSnapshot(sel Selection, slices Slices, fetchedAt time.Time) *Snapshot {
	return &Snapshot{
		Selection:     sel,
		DailyStats:    cloneOrEmpty(slices.DailyStats),
		PageAttention: cloneOrEmpty(slices.PageAttention),
		GeoStats:      cloneOrEmpty(slices.GeoStats),
		DeviceStats:   cloneOrEmpty(slices.DeviceStats),
		Funnel:        cloneOrEmpty(slices.Funnel),
		Summary:       ComputeSummary(slices.DailyStats),
		FetchedAt:     fetchedAt,
	}
}

func cloneOrEmpty[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}
