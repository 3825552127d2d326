// Package analytics provides the document viewer-analytics data model,
// the metrics gateway contract and its SQL implementation.
//
// The package is organized into focused modules:
//   - records.go: Selection and the five metric slice record types
//   - summary.go: Derived summary figures computed from daily stats
//   - snapshot.go: Immutable aggregation snapshot and its pure builder
//   - gateway.go: MetricsGateway contract, change events and errors
//   - sql_gateway.go: gorm-backed gateway over the raw document tables
//   - convert.go: Display-name normalization for geo and device slices
package analytics

// DocumentID identifies the document being analyzed. The empty value means
// no document is selected.
type DocumentID string

// IsNone reports whether the id represents the "no selection" state.
func (d DocumentID) IsNone() bool {
	return d == ""
}

// Selection is the (document, trailing days) pair being analyzed.
type Selection struct {
	DocumentID DocumentID `json:"document_id"`
	RangeDays  int        `json:"range_days"`
}

// IsNone reports whether no document is selected.
func (s Selection) IsNone() bool {
	return s.DocumentID.IsNone()
}

// DailyStatRecord is one day of viewer activity.
type DailyStatRecord struct {
	Day                string  `json:"day"`
	TotalViews         int64   `json:"total_views"`
	UniqueSessions     int64   `json:"unique_sessions"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
}

// PageAttentionRecord is the attention a single page received, used for
// heatmap rendering.
type PageAttentionRecord struct {
	PageNumber       int     `json:"page_number"`
	ViewCount        int64   `json:"view_count"`
	TotalTimeSeconds float64 `json:"total_time_seconds"`
	AvgTimeSeconds   float64 `json:"avg_time_seconds"`
}

// GeoStatRecord counts viewers per country.
type GeoStatRecord struct {
	CountryCode string `json:"country_code"`
	Country     string `json:"country"`
	Viewers     int64  `json:"viewers"`
}

// DeviceStatRecord counts viewers per device type and browser.
type DeviceStatRecord struct {
	DeviceType string `json:"device_type"`
	Browser    string `json:"browser"`
	Viewers    int64  `json:"viewers"`
}

// FunnelStageRecord is one ordered step of the conversion funnel.
type FunnelStageRecord struct {
	Stage string `json:"stage"`
	Count int64  `json:"count"`
}
