package dashboard_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"docpulse/internal/analytics"
)

type fakeSubscription struct {
	doc          analytics.DocumentID
	channel      analytics.Channel
	fn           func(analytics.ChangeEvent)
	unsubscribed atomic.Int32
}

func (s *fakeSubscription) Unsubscribe() {
	s.unsubscribed.Add(1)
}

// fakeGateway serves canned slices per document. Daily stats for a document
// can be held back with hold until release is called, regardless of the
// caller's context, to simulate late responses.
type fakeGateway struct {
	mu       sync.Mutex
	data     map[analytics.DocumentID]analytics.Slices
	gates    map[analytics.DocumentID]chan struct{}
	failures map[string]error
	subErr   error
	calls    map[string]int
	subs     []*fakeSubscription
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		data:     make(map[analytics.DocumentID]analytics.Slices),
		gates:    make(map[analytics.DocumentID]chan struct{}),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (g *fakeGateway) setData(doc analytics.DocumentID, slices analytics.Slices) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.data[doc] = slices
}

func (g *fakeGateway) hold(doc analytics.DocumentID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gates[doc] = make(chan struct{})
}

func (g *fakeGateway) release(doc analytics.DocumentID) {
	g.mu.Lock()
	gate, ok := g.gates[doc]
	delete(g.gates, doc)
	g.mu.Unlock()
	if ok {
		close(gate)
	}
}

func (g *fakeGateway) fail(query string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failures, query)
		return
	}
	g.failures[query] = err
}

func (g *fakeGateway) failSubscriptions(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subErr = err
}

func (g *fakeGateway) callCount(query string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[query]
}

func (g *fakeGateway) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := 0
	for _, n := range g.calls {
		total += n
	}
	return total
}

func (g *fakeGateway) subscriptions(doc analytics.DocumentID) []*fakeSubscription {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*fakeSubscription
	for _, s := range g.subs {
		if s.doc == doc {
			out = append(out, s)
		}
	}
	return out
}

// fire delivers an event to every subscription ever opened on (doc, ch),
// released or not.
func (g *fakeGateway) fire(doc analytics.DocumentID, ch analytics.Channel) {
	for _, s := range g.subscriptions(doc) {
		if s.channel == ch {
			s.fn(analytics.ChangeEvent{DocumentID: doc, Channel: ch, LatestID: 1})
		}
	}
}

func (g *fakeGateway) begin(query string, doc analytics.DocumentID) (analytics.Slices, error) {
	g.mu.Lock()
	g.calls[query]++
	slices := g.data[doc]
	err := g.failures[query]
	g.mu.Unlock()
	return slices, err
}

func (g *fakeGateway) GetDailyStats(_ context.Context, doc analytics.DocumentID, rangeDays int) ([]analytics.DailyStatRecord, error) {
	g.mu.Lock()
	gate := g.gates[doc]
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}

	slices, err := g.begin("daily", doc)
	if err != nil {
		return nil, err
	}
	return slices.DailyStats, nil
}

func (g *fakeGateway) GetPageAttention(_ context.Context, doc analytics.DocumentID) ([]analytics.PageAttentionRecord, error) {
	slices, err := g.begin("pages", doc)
	if err != nil {
		return nil, err
	}
	return slices.PageAttention, nil
}

func (g *fakeGateway) GetGeoStats(_ context.Context, doc analytics.DocumentID) ([]analytics.GeoStatRecord, error) {
	slices, err := g.begin("geo", doc)
	if err != nil {
		return nil, err
	}
	return slices.GeoStats, nil
}

func (g *fakeGateway) GetDeviceStats(_ context.Context, doc analytics.DocumentID) ([]analytics.DeviceStatRecord, error) {
	slices, err := g.begin("devices", doc)
	if err != nil {
		return nil, err
	}
	return slices.DeviceStats, nil
}

func (g *fakeGateway) GetConversionFunnel(_ context.Context, doc analytics.DocumentID) ([]analytics.FunnelStageRecord, error) {
	slices, err := g.begin("funnel", doc)
	if err != nil {
		return nil, err
	}
	return slices.Funnel, nil
}

func (g *fakeGateway) SubscribeToSessions(_ context.Context, doc analytics.DocumentID, fn func(analytics.ChangeEvent)) (analytics.Subscription, error) {
	return g.subscribe(doc, analytics.ChannelSessions, fn)
}

func (g *fakeGateway) SubscribeToViews(_ context.Context, doc analytics.DocumentID, fn func(analytics.ChangeEvent)) (analytics.Subscription, error) {
	return g.subscribe(doc, analytics.ChannelViews, fn)
}

func (g *fakeGateway) subscribe(doc analytics.DocumentID, ch analytics.Channel, fn func(analytics.ChangeEvent)) (analytics.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.subErr != nil {
		return nil, g.subErr
	}
	sub := &fakeSubscription{doc: doc, channel: ch, fn: fn}
	g.subs = append(g.subs, sub)
	return sub, nil
}

var errBackendDown = errors.New("backend down")

var _ analytics.MetricsGateway = (*fakeGateway)(nil)
