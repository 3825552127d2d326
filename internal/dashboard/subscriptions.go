package dashboard

import (
	"context"
	"log/slog"

	"docpulse/internal/analytics"
	"docpulse/internal/metrics"
)

type subscribeFunc func(ctx context.Context, doc analytics.DocumentID, fn func(analytics.ChangeEvent)) (analytics.Subscription, error)

// openSubscriptions opens the session and view subscriptions for doc. A
// failed subscription is logged and skipped; the dashboard keeps working
// without live updates on that channel. Callers hold lifecycleMu.
func (c *Coordinator) openSubscriptions(gen uint64, doc analytics.DocumentID) {
	channels := []struct {
		channel   analytics.Channel
		subscribe subscribeFunc
	}{
		{analytics.ChannelSessions, c.gateway.SubscribeToSessions},
		{analytics.ChannelViews, c.gateway.SubscribeToViews},
	}

	for _, ch := range channels {
		channel := ch.channel
		sub, err := ch.subscribe(c.ctx, doc, func(event analytics.ChangeEvent) {
			c.onChange(gen, channel, event)
		})
		if err != nil {
			metrics.SubscriptionErrors.WithLabelValues(string(channel)).Inc()
			c.logger.Warn("Failed to subscribe to document changes",
				slog.String("document_id", string(doc)),
				slog.String("channel", string(channel)),
				slog.Any("error", err))
			continue
		}
		if sub == nil {
			continue
		}
		c.subs = append(c.subs, sub)
		metrics.OpenSubscriptions.Inc()
	}
}

// releaseSubscriptions unsubscribes everything opened for the previous
// selection, once each. Callers hold lifecycleMu.
func (c *Coordinator) releaseSubscriptions() {
	for _, sub := range c.subs {
		sub.Unsubscribe()
		metrics.OpenSubscriptions.Dec()
	}
	c.subs = nil
}

// onChange refreshes the dashboard when a notification belongs to the
// current generation. Late notifications from released subscriptions are
// ignored.
func (c *Coordinator) onChange(gen uint64, channel analytics.Channel, event analytics.ChangeEvent) {
	metrics.ChangeNotifications.WithLabelValues(string(channel)).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.generation {
		return
	}

	c.logger.Debug("Document changed, refreshing dashboard",
		slog.String("document_id", string(event.DocumentID)),
		slog.String("channel", string(channel)),
		slog.Uint64("latest_id", uint64(event.LatestID)))
	c.startCycleLocked()
}
