package dashboard_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docpulse/internal/analytics"
	"docpulse/internal/dashboard"
	"docpulse/internal/testsupport"
)

const (
	docA analytics.DocumentID = "doc-a"
	docB analytics.DocumentID = "doc-b"
)

func slicesFor(views int64) analytics.Slices {
	return analytics.Slices{
		DailyStats: []analytics.DailyStatRecord{
			{Day: "2026-10-18", TotalViews: views, UniqueSessions: views / 2, AvgDurationSeconds: 60},
		},
		PageAttention: []analytics.PageAttentionRecord{
			{PageNumber: 1, ViewCount: views, TotalTimeSeconds: 120, AvgTimeSeconds: 12},
		},
		GeoStats: []analytics.GeoStatRecord{
			{CountryCode: "US", Country: "United States", Viewers: views},
		},
		DeviceStats: []analytics.DeviceStatRecord{
			{DeviceType: "Desktop", Browser: "Chrome", Viewers: views},
		},
		Funnel: []analytics.FunnelStageRecord{
			{Stage: "opened", Count: views},
			{Stage: "viewed", Count: views / 2},
			{Stage: "signed", Count: 1},
		},
	}
}

func newCoordinator(t *testing.T, gw *fakeGateway) *dashboard.Coordinator {
	t.Helper()

	c := dashboard.NewCoordinator(gw, testsupport.GetLogger())
	t.Cleanup(func() {
		gw.release(docA)
		gw.release(docB)
		c.Close()
	})
	return c
}

func waitFor(t *testing.T, c *dashboard.Coordinator, cond func(dashboard.State) bool) dashboard.State {
	t.Helper()

	require.Eventually(t, func() bool {
		return cond(c.State())
	}, 2*time.Second, 5*time.Millisecond)
	return c.State()
}

func readyFor(doc analytics.DocumentID) func(dashboard.State) bool {
	return func(s dashboard.State) bool {
		return s.Phase == dashboard.PhaseReady && s.Selection.DocumentID == doc
	}
}

func inPhase(phase dashboard.Phase) func(dashboard.State) bool {
	return func(s dashboard.State) bool {
		return s.Phase == phase
	}
}

func TestNewCoordinatorStartsWithoutSelection(t *testing.T) {
	c := newCoordinator(t, newFakeGateway())

	state := c.State()
	assert.Equal(t, dashboard.PhaseNoSelection, state.Phase)
	assert.False(t, state.HasSnapshot())
	assert.Empty(t, state.Err)
}

func TestSelectNoneMakesNoGatewayCalls(t *testing.T) {
	gw := newFakeGateway()
	c := newCoordinator(t, gw)

	require.NoError(t, c.Select("", 30))
	require.NoError(t, c.Select("", 0))

	assert.Equal(t, dashboard.PhaseNoSelection, c.State().Phase)
	assert.Never(t, func() bool { return gw.totalCalls() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Empty(t, gw.subscriptions(""))
}

func TestSelectBuildsSnapshotFromAllSlices(t *testing.T) {
	gw := newFakeGateway()
	slices := slicesFor(4)
	slices.DailyStats = []analytics.DailyStatRecord{
		{Day: "2026-10-17", TotalViews: 10, UniqueSessions: 8, AvgDurationSeconds: 60},
		{Day: "2026-10-18", TotalViews: 20, UniqueSessions: 15, AvgDurationSeconds: 120},
	}
	gw.setData(docA, slices)
	c := newCoordinator(t, gw)

	require.NoError(t, c.Select(docA, 30))
	state := waitFor(t, c, readyFor(docA))

	require.NotNil(t, state.Snapshot)
	assert.Equal(t, analytics.Selection{DocumentID: docA, RangeDays: 30}, state.Selection)
	assert.Equal(t, state.Selection, state.Snapshot.Selection)
	assert.Equal(t, analytics.Summary{
		TotalViews:         30,
		UniqueViewers:      23,
		AvgDurationSeconds: 90,
		EngagementScore:    15,
	}, state.Snapshot.Summary)
	assert.Equal(t, slices.PageAttention, state.Snapshot.PageAttention)
	assert.Equal(t, slices.GeoStats, state.Snapshot.GeoStats)
	assert.Equal(t, slices.DeviceStats, state.Snapshot.DeviceStats)
	assert.Equal(t, slices.Funnel, state.Snapshot.Funnel)

	for _, query := range []string{"daily", "pages", "geo", "devices", "funnel"} {
		assert.Equal(t, 1, gw.callCount(query), query)
	}
}

func TestSelectWithEmptyDailyStats(t *testing.T) {
	gw := newFakeGateway()
	c := newCoordinator(t, gw)

	require.NoError(t, c.Select(docA, 7))
	state := waitFor(t, c, readyFor(docA))

	assert.Equal(t, analytics.Summary{}, state.Snapshot.Summary)
	assert.NotNil(t, state.Snapshot.DailyStats)
	assert.Empty(t, state.Snapshot.DailyStats)
}

func TestSelectRejectsInvalidRange(t *testing.T) {
	tests := []struct {
		name      string
		rangeDays int
	}{
		{name: "zero", rangeDays: 0},
		{name: "negative", rangeDays: -7},
		{name: "above maximum", rangeDays: 366},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			c := newCoordinator(t, gw)

			err := c.Select(docA, tt.rangeDays)
			assert.ErrorIs(t, err, dashboard.ErrInvalidRange)
			assert.Equal(t, dashboard.PhaseNoSelection, c.State().Phase)
			assert.Zero(t, gw.totalCalls())
		})
	}
}

func TestSupersededCycleNeverBecomesVisible(t *testing.T) {
	t.Run("newer selection resolves first", func(t *testing.T) {
		gw := newFakeGateway()
		gw.setData(docA, slicesFor(100))
		gw.setData(docB, slicesFor(8))
		gw.hold(docA)
		gw.hold(docB)
		c := newCoordinator(t, gw)

		require.NoError(t, c.Select(docA, 30))
		require.NoError(t, c.Select(docB, 30))

		gw.release(docB)
		state := waitFor(t, c, readyFor(docB))
		ready := state.Snapshot

		gw.release(docA)
		assert.Never(t, func() bool {
			s := c.State()
			return s.Snapshot != ready || s.Selection.DocumentID != docB
		}, 150*time.Millisecond, 5*time.Millisecond)
		assert.Equal(t, int64(8), c.State().Snapshot.Summary.TotalViews)
	})

	t.Run("older selection resolves first", func(t *testing.T) {
		gw := newFakeGateway()
		gw.setData(docA, slicesFor(100))
		gw.setData(docB, slicesFor(8))
		gw.hold(docA)
		gw.hold(docB)
		c := newCoordinator(t, gw)

		require.NoError(t, c.Select(docA, 30))
		require.NoError(t, c.Select(docB, 30))

		gw.release(docA)
		assert.Never(t, func() bool {
			s := c.State()
			return s.Phase != dashboard.PhaseLoading || s.HasSnapshot()
		}, 150*time.Millisecond, 5*time.Millisecond)

		gw.release(docB)
		state := waitFor(t, c, readyFor(docB))
		assert.Equal(t, analytics.Selection{DocumentID: docB, RangeDays: 30}, state.Snapshot.Selection)
		assert.Equal(t, int64(8), state.Snapshot.Summary.TotalViews)
	})
}

func TestRefreshWhileLoadingCollapsesIntoInFlightCycle(t *testing.T) {
	gw := newFakeGateway()
	gw.setData(docA, slicesFor(10))
	gw.hold(docA)
	c := newCoordinator(t, gw)

	require.NoError(t, c.Select(docA, 30))
	require.Eventually(t, func() bool { return gw.callCount("funnel") == 1 }, time.Second, 5*time.Millisecond)

	c.Refresh()
	c.Refresh()
	assert.Equal(t, dashboard.PhaseLoading, c.State().Phase)

	gw.release(docA)
	waitFor(t, c, readyFor(docA))

	assert.Never(t, func() bool { return gw.callCount("pages") > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	for _, query := range []string{"daily", "pages", "geo", "devices", "funnel"} {
		assert.Equal(t, 1, gw.callCount(query), query)
	}
}

func TestRefreshKeepsPreviousSnapshotWhileLoading(t *testing.T) {
	gw := newFakeGateway()
	gw.setData(docA, slicesFor(10))
	c := newCoordinator(t, gw)

	require.NoError(t, c.Select(docA, 30))
	first := waitFor(t, c, readyFor(docA)).Snapshot

	gw.hold(docA)
	gw.setData(docA, slicesFor(12))
	c.Refresh()

	loading := c.State()
	assert.Equal(t, dashboard.PhaseLoading, loading.Phase)
	assert.Same(t, first, loading.Snapshot)

	gw.release(docA)
	second := waitFor(t, c, func(s dashboard.State) bool {
		return s.Phase == dashboard.PhaseReady && s.Snapshot != first
	}).Snapshot
	assert.Equal(t, int64(12), second.Summary.TotalViews)
}

func TestRefreshWithoutSelectionDoesNothing(t *testing.T) {
	gw := newFakeGateway()
	c := newCoordinator(t, gw)

	c.Refresh()

	assert.Equal(t, dashboard.PhaseNoSelection, c.State().Phase)
	assert.Never(t, func() bool { return gw.totalCalls() > 0 }, 50*time.Millisecond, 10*time.Millisecond)
}

func TestFailedCycleKeepsLastGoodSnapshot(t *testing.T) {
	gw := newFakeGateway()
	gw.setData(docA, slicesFor(10))
	c := newCoordinator(t, gw)

	require.NoError(t, c.Select(docA, 30))
	good := waitFor(t, c, readyFor(docA)).Snapshot

	gw.fail("geo", errBackendDown)
	c.Refresh()

	failed := waitFor(t, c, inPhase(dashboard.PhaseError))
	assert.Equal(t, "backend down", failed.Err)
	assert.Same(t, good, failed.Snapshot)
	assert.Equal(t, analytics.Selection{DocumentID: docA, RangeDays: 30}, failed.Selection)

	gw.fail("geo", nil)
	c.Refresh()

	recovered := waitFor(t, c, readyFor(docA))
	assert.Empty(t, recovered.Err)
	assert.NotSame(t, good, recovered.Snapshot)
}

func TestFailedFirstCycleHasNoSnapshot(t *testing.T) {
	gw := newFakeGateway()
	gw.fail("daily", &analytics.QueryError{Query: "daily stats", Err: errBackendDown})
	c := newCoordinator(t, gw)

	require.NoError(t, c.Select(docA, 30))
	state := waitFor(t, c, inPhase(dashboard.PhaseError))

	assert.Equal(t, "error fetching daily stats: backend down", state.Err)
	assert.False(t, state.HasSnapshot())
}

func TestSubscriptionsFollowSelection(t *testing.T) {
	gw := newFakeGateway()
	c := newCoordinator(t, gw)

	require.NoError(t, c.Select(docA, 30))
	subsA := gw.subscriptions(docA)
	require.Len(t, subsA, 2)
	assert.ElementsMatch(t,
		[]analytics.Channel{analytics.ChannelSessions, analytics.ChannelViews},
		[]analytics.Channel{subsA[0].channel, subsA[1].channel})
	for _, s := range subsA {
		assert.Zero(t, s.unsubscribed.Load())
	}

	require.NoError(t, c.Select(docB, 30))
	for _, s := range subsA {
		assert.Equal(t, int32(1), s.unsubscribed.Load())
	}
	subsB := gw.subscriptions(docB)
	require.Len(t, subsB, 2)

	require.NoError(t, c.Select("", 30))
	assert.Equal(t, dashboard.PhaseNoSelection, c.State().Phase)
	for _, s := range subsB {
		assert.Equal(t, int32(1), s.unsubscribed.Load())
	}

	c.Close()
	for _, s := range append(subsA, subsB...) {
		assert.Equal(t, int32(1), s.unsubscribed.Load())
	}
}

func TestChangingRangeReopensSubscriptions(t *testing.T) {
	gw := newFakeGateway()
	c := newCoordinator(t, gw)

	require.NoError(t, c.Select(docA, 30))
	waitFor(t, c, readyFor(docA))
	require.NoError(t, c.Select(docA, 7))

	state := waitFor(t, c, func(s dashboard.State) bool {
		return s.Phase == dashboard.PhaseReady && s.Selection.RangeDays == 7
	})
	assert.Equal(t, 7, state.Snapshot.Selection.RangeDays)

	subs := gw.subscriptions(docA)
	require.Len(t, subs, 4)
	assert.Equal(t, int32(1), subs[0].unsubscribed.Load())
	assert.Equal(t, int32(1), subs[1].unsubscribed.Load())
	assert.Zero(t, subs[2].unsubscribed.Load())
	assert.Zero(t, subs[3].unsubscribed.Load())
}

func TestReselectingSameSelectionRefreshes(t *testing.T) {
	gw := newFakeGateway()
	c := newCoordinator(t, gw)

	require.NoError(t, c.Select(docA, 30))
	waitFor(t, c, readyFor(docA))

	require.NoError(t, c.Select(docA, 30))
	require.Eventually(t, func() bool { return gw.callCount("daily") == 2 }, time.Second, 5*time.Millisecond)
	waitFor(t, c, readyFor(docA))

	assert.Len(t, gw.subscriptions(docA), 2)
}

func TestChangeNotificationTriggersRefresh(t *testing.T) {
	gw := newFakeGateway()
	gw.setData(docA, slicesFor(10))
	c := newCoordinator(t, gw)

	require.NoError(t, c.Select(docA, 30))
	waitFor(t, c, readyFor(docA))

	gw.setData(docA, slicesFor(11))
	gw.fire(docA, analytics.ChannelSessions)
	state := waitFor(t, c, func(s dashboard.State) bool {
		return s.Phase == dashboard.PhaseReady && s.Snapshot.Summary.TotalViews == 11
	})
	assert.Equal(t, docA, state.Selection.DocumentID)

	gw.setData(docA, slicesFor(12))
	gw.fire(docA, analytics.ChannelViews)
	waitFor(t, c, func(s dashboard.State) bool {
		return s.Phase == dashboard.PhaseReady && s.Snapshot.Summary.TotalViews == 12
	})
	assert.Equal(t, 3, gw.callCount("daily"))
}

func TestNotificationFromReleasedSubscriptionIsIgnored(t *testing.T) {
	gw := newFakeGateway()
	c := newCoordinator(t, gw)

	require.NoError(t, c.Select(docA, 30))
	waitFor(t, c, readyFor(docA))
	require.NoError(t, c.Select(docB, 30))
	waitFor(t, c, readyFor(docB))
	require.Equal(t, 2, gw.callCount("daily"))

	gw.fire(docA, analytics.ChannelSessions)
	gw.fire(docA, analytics.ChannelViews)

	assert.Never(t, func() bool { return gw.callCount("daily") > 2 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, docB, c.State().Selection.DocumentID)
}

func TestSubscriptionFailureIsSoft(t *testing.T) {
	gw := newFakeGateway()
	gw.failSubscriptions(errors.New("channel unavailable"))
	c := newCoordinator(t, gw)

	require.NoError(t, c.Select(docA, 30))
	state := waitFor(t, c, readyFor(docA))

	assert.Empty(t, state.Err)
	assert.Empty(t, gw.subscriptions(docA))
}

func TestCloseReleasesEverything(t *testing.T) {
	gw := newFakeGateway()
	c := newCoordinator(t, gw)

	require.NoError(t, c.Select(docA, 30))
	waitFor(t, c, readyFor(docA))
	updates, _ := c.Watch()

	c.Close()
	c.Close()

	for _, s := range gw.subscriptions(docA) {
		assert.Equal(t, int32(1), s.unsubscribed.Load())
	}
	assert.Equal(t, dashboard.PhaseNoSelection, c.State().Phase)
	assert.ErrorIs(t, c.Select(docB, 30), dashboard.ErrClosed)

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-updates:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	closed, stop := c.Watch()
	stop()
	_, ok := <-closed
	assert.False(t, ok)
}

func TestCloseDiscardsInFlightCycle(t *testing.T) {
	gw := newFakeGateway()
	gw.hold(docA)
	c := newCoordinator(t, gw)

	require.NoError(t, c.Select(docA, 30))

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	gw.release(docA)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return")
	}
	assert.Equal(t, dashboard.PhaseNoSelection, c.State().Phase)
}

func TestWatchStreamsStateChanges(t *testing.T) {
	gw := newFakeGateway()
	gw.setData(docA, slicesFor(10))
	c := newCoordinator(t, gw)

	updates, stop := c.Watch()
	defer stop()

	first := <-updates
	assert.Equal(t, dashboard.PhaseNoSelection, first.Phase)

	require.NoError(t, c.Select(docA, 30))

	timeout := time.After(2 * time.Second)
	for {
		select {
		case state, ok := <-updates:
			require.True(t, ok)
			if state.Phase == dashboard.PhaseReady {
				assert.Equal(t, int64(10), state.Snapshot.Summary.TotalViews)
				return
			}
		case <-timeout:
			t.Fatal("never saw ready state")
		}
	}
}

func TestStuckCycleTimesOutAndRefreshRetries(t *testing.T) {
	gw := newFakeGateway()
	gw.setData(docA, slicesFor(10))
	gw.hold(docA)

	c := dashboard.NewCoordinator(gw, testsupport.GetLogger(), dashboard.WithFetchTimeout(50*time.Millisecond))
	t.Cleanup(func() {
		gw.release(docA)
		c.Close()
	})

	require.NoError(t, c.Select(docA, 30))
	c.Refresh()
	c.Refresh()
	require.NoError(t, c.Select(docA, 30))

	failed := waitFor(t, c, inPhase(dashboard.PhaseError))
	assert.Contains(t, failed.Err, "analytics request timed out")
	assert.Equal(t, analytics.Selection{DocumentID: docA, RangeDays: 30}, failed.Selection)
	assert.Equal(t, 1, gw.callCount("funnel"))

	gw.release(docA)
	c.Refresh()

	ready := waitFor(t, c, readyFor(docA))
	assert.Equal(t, int64(10), ready.Snapshot.Summary.TotalViews)
	assert.Equal(t, 2, gw.callCount("funnel"))
}

func TestFailureWithoutMessageUsesFallback(t *testing.T) {
	gw := newFakeGateway()
	gw.fail("devices", errors.New(""))
	c := newCoordinator(t, gw)

	require.NoError(t, c.Select(docA, 30))

	state := waitFor(t, c, inPhase(dashboard.PhaseError))
	assert.Equal(t, "Failed to load analytics data", state.Err)
}
