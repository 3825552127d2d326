package analytics

import (
	"context"
	"fmt"
	"time"
)

// Channel names a change-notification stream for a document.
type Channel string

const (
	ChannelSessions Channel = "sessions"
	ChannelViews    Channel = "views"
)

// ChangeEvent tells subscribers that new rows exist for a document.
type ChangeEvent struct {
	DocumentID DocumentID `json:"document_id"`
	Channel    Channel    `json:"channel"`
	LatestID   uint       `json:"latest_id"`
	At         time.Time  `json:"at"`
}

// Subscription is a live change subscription. Unsubscribe releases it and is
// safe to call more than once.
type Subscription interface {
	Unsubscribe()
}

// Notifier delivers change events for a document and channel.
type Notifier interface {
	Subscribe(ctx context.Context, doc DocumentID, ch Channel, fn func(ChangeEvent)) (Subscription, error)
}

// Publisher announces change events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
}

// MetricsGateway is the query and subscription contract the dashboard
// consumes. Only daily stats are scoped to the trailing range; the other
// slices cover the document's whole history.
type MetricsGateway interface {
	GetDailyStats(ctx context.Context, doc DocumentID, rangeDays int) ([]DailyStatRecord, error)
	GetPageAttention(ctx context.Context, doc DocumentID) ([]PageAttentionRecord, error)
	GetGeoStats(ctx context.Context, doc DocumentID) ([]GeoStatRecord, error)
	GetDeviceStats(ctx context.Context, doc DocumentID) ([]DeviceStatRecord, error)
	GetConversionFunnel(ctx context.Context, doc DocumentID) ([]FunnelStageRecord, error)
	SubscribeToSessions(ctx context.Context, doc DocumentID, fn func(ChangeEvent)) (Subscription, error)
	SubscribeToViews(ctx context.Context, doc DocumentID, fn func(ChangeEvent)) (Subscription, error)
}

// QueryError reports a failed metric query.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("error fetching %s: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
