package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"docpulse/internal/analytics"
)

// ChangeWatcher polls the raw tables for rows added since its last run and
// publishes one change event per document and channel.
type ChangeWatcher struct {
	db        *gorm.DB
	publisher analytics.Publisher
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	primed     bool
	lastCursor map[analytics.Channel]uint
}

// channelTables maps each channel to the table whose inserts it announces.
var channelTables = []struct {
	channel analytics.Channel
	table   string
}{
	{analytics.ChannelSessions, "viewer_sessions"},
	{analytics.ChannelViews, "page_views"},
}

// NewChangeWatcher creates a watcher that publishes to publisher.
func NewChangeWatcher(db *gorm.DB, publisher analytics.Publisher, logger *slog.Logger) *ChangeWatcher {
	return &ChangeWatcher{
		db:         db,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
		lastCursor: make(map[analytics.Channel]uint),
	}
}

// Run performs one poll. The first call only records the current high-water
// marks so that history is not announced as new.
func (w *ChangeWatcher) Run() error {
	return w.RunContext(context.Background())
}

// RunContext is Run with a caller-supplied context.
func (w *ChangeWatcher) RunContext(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.primed {
		for _, ct := range channelTables {
			latest, err := w.maxID(ctx, ct.table)
			if err != nil {
				return err
			}
			w.lastCursor[ct.channel] = latest
		}
		w.primed = true
		w.logger.Debug("Change watcher primed",
			slog.Any("cursors", w.lastCursor))
		return nil
	}

	published := 0
	for _, ct := range channelTables {
		n, err := w.poll(ctx, ct.channel, ct.table)
		if err != nil {
			return err
		}
		published += n
	}

	if published > 0 {
		w.logger.Debug("Published change events", slog.Int("count", published))
	}
	return nil
}

func (w *ChangeWatcher) maxID(ctx context.Context, table string) (uint, error) {
	var latest uint
	query := fmt.Sprintf("SELECT COALESCE(MAX(id), 0) FROM %s", table)
	if err := w.db.WithContext(ctx).Raw(query).Scan(&latest).Error; err != nil {
		return 0, fmt.Errorf("error reading high-water mark of %s: %w", table, err)
	}
	return latest, nil
}

func (w *ChangeWatcher) poll(ctx context.Context, ch analytics.Channel, table string) (int, error) {
	var rows []struct {
		DocumentID string
		LatestID   uint
	}

	query := fmt.Sprintf(`
    SELECT
        document_id,
        MAX(id) AS latest_id
    FROM %s
    WHERE id > ?
    GROUP BY document_id
    ORDER BY document_id
    `, table)

	if err := w.db.WithContext(ctx).Raw(query, w.lastCursor[ch]).Scan(&rows).Error; err != nil {
		return 0, fmt.Errorf("error polling %s: %w", table, err)
	}

	published := 0
	for _, row := range rows {
		if row.LatestID > w.lastCursor[ch] {
			w.lastCursor[ch] = row.LatestID
		}
		event := analytics.ChangeEvent{
			DocumentID: analytics.DocumentID(row.DocumentID),
			Channel:    ch,
			LatestID:   row.LatestID,
			At:         w.now().UTC(),
		}
		if err := w.publisher.Publish(ctx, event); err != nil {
			w.logger.Warn("Failed to publish change event",
				slog.String("document_id", row.DocumentID),
				slog.String("channel", string(ch)),
				slog.Any("error", err))
			continue
		}
		published++
	}

	return published, nil
}
