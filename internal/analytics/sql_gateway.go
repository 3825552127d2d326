package analytics

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"docpulse/internal/documents"
)

// SQLGateway answers metric queries from the raw document tables and
// delegates change subscriptions to a Notifier.
type SQLGateway struct {
	db       *gorm.DB
	notifier Notifier
	now      func() time.Time
}

// SQLGatewayOption customizes a SQLGateway.
type SQLGatewayOption func(*SQLGateway)

// WithClock overrides the clock used to compute the trailing window.
func WithClock(now func() time.Time) SQLGatewayOption {
	return func(g *SQLGateway) {
		g.now = now
	}
}

// NewSQLGateway creates a gateway over db.
func NewSQLGateway(db *gorm.DB, notifier Notifier, opts ...SQLGatewayOption) *SQLGateway {
	g := &SQLGateway{
		db:       db,
		notifier: notifier,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var _ MetricsGateway = (*SQLGateway)(nil)

// WindowStart returns the first instant included in a trailing window of
// rangeDays calendar days (UTC) ending today.
func WindowStart(now time.Time, rangeDays int) time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -(rangeDays - 1))
}

// GetDailyStats groups the sessions started inside the trailing window by day.
func (g *SQLGateway) GetDailyStats(ctx context.Context, doc DocumentID, rangeDays int) ([]DailyStatRecord, error) {
	if rangeDays < 1 {
		return nil, &QueryError{Query: "daily stats", Err: fmt.Errorf("invalid range of %d days", rangeDays)}
	}

	query := `
    SELECT
        day,
        SUM(views) AS total_views,
        COUNT(*) AS unique_sessions,
        AVG(duration_seconds) AS avg_duration_seconds
    FROM (
        SELECT
            strftime('%Y-%m-%d', s.started_at) AS day,
            s.duration_seconds AS duration_seconds,
            (SELECT COUNT(*) FROM page_views v WHERE v.session_id = s.id) AS views
        FROM viewer_sessions s
        WHERE s.document_id = ?
        AND s.started_at >= ?
    )
    GROUP BY day
    ORDER BY day
    `

	var results []DailyStatRecord
	err := g.db.WithContext(ctx).Raw(query,
		string(doc),
		WindowStart(g.now(), rangeDays),
	).Scan(&results).Error
	if err != nil {
		return nil, &QueryError{Query: "daily stats", Err: err}
	}

	return ensureSlice(results), nil
}

// GetPageAttention returns view count and time spent per page.
func (g *SQLGateway) GetPageAttention(ctx context.Context, doc DocumentID) ([]PageAttentionRecord, error) {
	query := `
    SELECT
        page_number,
        COUNT(*) AS view_count,
        COALESCE(SUM(duration_seconds), 0) AS total_time_seconds,
        COALESCE(AVG(duration_seconds), 0) AS avg_time_seconds
    FROM page_views
    WHERE document_id = ?
    GROUP BY page_number
    ORDER BY page_number
    `

	var results []PageAttentionRecord
	if err := g.db.WithContext(ctx).Raw(query, string(doc)).Scan(&results).Error; err != nil {
		return nil, &QueryError{Query: "page attention", Err: err}
	}

	return ensureSlice(results), nil
}

// GetGeoStats counts distinct viewers per country.
func (g *SQLGateway) GetGeoStats(ctx context.Context, doc DocumentID) ([]GeoStatRecord, error) {
	query := `
    SELECT
        country AS country_code,
        COUNT(DISTINCT viewer_signature) AS viewers
    FROM viewer_sessions
    WHERE document_id = ?
    GROUP BY country
    ORDER BY viewers DESC, country ASC
    `

	var results []GeoStatRecord
	if err := g.db.WithContext(ctx).Raw(query, string(doc)).Scan(&results).Error; err != nil {
		return nil, &QueryError{Query: "geo stats", Err: err}
	}

	return convertGeoStats(results), nil
}

// GetDeviceStats counts distinct viewers per device type and browser.
func (g *SQLGateway) GetDeviceStats(ctx context.Context, doc DocumentID) ([]DeviceStatRecord, error) {
	query := `
    SELECT
        device_type,
        browser,
        COUNT(DISTINCT viewer_signature) AS viewers
    FROM viewer_sessions
    WHERE document_id = ?
    GROUP BY device_type, browser
    ORDER BY viewers DESC, device_type ASC, browser ASC
    `

	var results []DeviceStatRecord
	if err := g.db.WithContext(ctx).Raw(query, string(doc)).Scan(&results).Error; err != nil {
		return nil, &QueryError{Query: "device stats", Err: err}
	}

	return convertDeviceStats(results), nil
}

// GetConversionFunnel counts distinct sessions reaching each stage. Every
// stage is reported, in progression order, even when nobody reached it.
func (g *SQLGateway) GetConversionFunnel(ctx context.Context, doc DocumentID) ([]FunnelStageRecord, error) {
	var rawResults []struct {
		Stage string
		Count int64
	}

	query := `
    SELECT
        stage,
        COUNT(DISTINCT session_id) AS count
    FROM funnel_events
    WHERE document_id = ?
    GROUP BY stage
    `

	if err := g.db.WithContext(ctx).Raw(query, string(doc)).Scan(&rawResults).Error; err != nil {
		return nil, &QueryError{Query: "conversion funnel", Err: err}
	}

	counts := make(map[string]int64, len(rawResults))
	for _, r := range rawResults {
		counts[r.Stage] = r.Count
	}

	results := make([]FunnelStageRecord, len(documents.FunnelStages))
	for i, stage := range documents.FunnelStages {
		results[i] = FunnelStageRecord{Stage: string(stage), Count: counts[string(stage)]}
	}
	return results, nil
}

// SubscribeToSessions subscribes fn to new-session notifications for doc.
func (g *SQLGateway) SubscribeToSessions(ctx context.Context, doc DocumentID, fn func(ChangeEvent)) (Subscription, error) {
	return g.subscribe(ctx, doc, ChannelSessions, fn)
}

// SubscribeToViews subscribes fn to new-page-view notifications for doc.
func (g *SQLGateway) SubscribeToViews(ctx context.Context, doc DocumentID, fn func(ChangeEvent)) (Subscription, error) {
	return g.subscribe(ctx, doc, ChannelViews, fn)
}

func (g *SQLGateway) subscribe(ctx context.Context, doc DocumentID, ch Channel, fn func(ChangeEvent)) (Subscription, error) {
	if g.notifier == nil {
		return nil, fmt.Errorf("no notifier configured for %s subscriptions", ch)
	}
	return g.notifier.Subscribe(ctx, doc, ch, fn)
}

func ensureSlice[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
