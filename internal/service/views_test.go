package service

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/cqrs-monitor/internal/domain/feed"
	apperrors "github.com/target/cqrs-monitor/internal/errors"
	"github.com/target/cqrs-monitor/internal/mocks"
	"github.com/target/cqrs-monitor/internal/ports"
)

var viewsNow = time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)

// upstreamResponses answers Execute calls by operation name.
type upstreamResponses map[string]any

func (r upstreamResponses) handle(_ context.Context, req ports.GraphQLRequest) (json.RawMessage, error) {
	v, ok := r[req.OperationName]
	if !ok {
		return nil, apperrors.UpstreamUnavailable(nil, "no canned response for "+req.OperationName)
	}
	if err, isErr := v.(error); isErr {
		return nil, err
	}
	if s, isString := v.(string); isString {
		return json.RawMessage(s), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newTestViewService(t *testing.T, client ports.GraphQLClient, opts ViewOptions) *ViewService {
	t.Helper()
	svc, err := NewViewService(ViewServiceOptions{
		Client:  client,
		Options: opts,
		Now:     func() time.Time { return viewsNow },
		Rand:    rand.New(rand.NewPCG(1, 2)),
	})
	require.NoError(t, err)
	return svc
}

func mockClient(t *testing.T, responses upstreamResponses) *mocks.MockGraphQLClient {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := mocks.NewMockGraphQLClient(ctrl)
	client.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(responses.handle).AnyTimes()
	return client
}

func TestViewServiceCatalogue(t *testing.T) {
	svc := newTestViewService(t, mockClient(t, nil), ViewOptions{
		PollInterval:     5 * time.Second,
		SlowPollInterval: 10 * time.Second,
		PubSubInterval:   3 * time.Second,
	})

	var names []string
	for _, v := range svc.Views() {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{
		ViewDashboard, ViewEvents, ViewCommands, ViewQueries, ViewSagas,
		ViewPubSub, ViewHealth, ViewDatabase, ViewTopology,
	}, names)
	assert.True(t, svc.Has(ViewHealth))
	assert.False(t, svc.Has("metrics-v2"))

	schedule := svc.Schedule()
	assert.ElementsMatch(t, []string{ViewDashboard, ViewEvents, ViewCommands, ViewSagas, ViewHealth}, schedule[5*time.Second])
	assert.ElementsMatch(t, []string{ViewQueries, ViewDatabase}, schedule[10*time.Second])
	assert.Equal(t, []string{ViewPubSub}, schedule[3*time.Second])
	for _, views := range schedule {
		assert.NotContains(t, views, ViewTopology, "static views are never polled")
	}
}

func TestViewServiceUnknownView(t *testing.T) {
	svc := newTestViewService(t, mockClient(t, nil), ViewOptions{})

	_, err := svc.Snapshot("nope")
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsNotFound(svc.Refresh(context.Background(), "nope")))
	_, _, err = svc.Subscribe("nope")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestViewServiceDashboardRefresh(t *testing.T) {
	client := mockClient(t, upstreamResponses{
		"DashboardOverview": map[string]any{
			"dashboardStats": map[string]any{"totalEvents": 120, "eventsPerMinute": 7.5, "activeSagas": 2},
			"recentEvents": []any{
				map[string]any{"id": "e1", "aggregateId": "o-1", "aggregateType": "Order", "eventType": "OrderCreated", "insertedAt": "2026-04-02T14:59:00Z"},
				map[string]any{"id": "e2", "aggregateId": "o-1", "aggregateType": "Order", "eventType": "OrderPaid", "insertedAt": "2026-04-02T14:59:30Z"},
			},
			"pubsubStats":      []any{map[string]any{"topic": "events", "messageCount": 9}},
			"systemStatistics": map[string]any{"sagas": map[string]any{"active": 2, "total": 5}},
		},
	})
	svc := newTestViewService(t, client, ViewOptions{SyntheticMetrics: true})

	before, err := svc.Snapshot(ViewDashboard)
	require.NoError(t, err)
	assert.False(t, before.Loaded)

	require.NoError(t, svc.Refresh(context.Background(), ViewDashboard))

	snap, err := svc.Snapshot(ViewDashboard)
	require.NoError(t, err)
	assert.True(t, snap.Loaded)
	assert.Empty(t, snap.Errors)
	assert.Equal(t, viewsNow, snap.UpdatedAt)

	stats := snap.Data["stats"].(map[string]any)
	assert.InDelta(t, 120, stats["totalEvents"], 0)
	assert.Equal(t, map[string]any{"active": float64(2), "total": float64(5)}, snap.Data["sagaStats"])

	events := snap.Data["events"].([]feed.Event)
	require.Len(t, events, 2)
	assert.Equal(t, "e2", events[0].ID, "newest first")

	history := snap.Data["throughput"].([]feed.Point)
	require.Len(t, history, 1)
	assert.InDelta(t, 7.5, history[0].Value, 0)

	synthetic := snap.Data["synthetic"].(map[string]any)
	assert.Equal(t, true, synthetic["synthetic"])
	assert.Len(t, synthetic["cpu"], 1)
	for _, p := range synthetic["memory"].([]feed.Point) {
		assert.True(t, p.Value >= 1 && p.Value <= 99)
	}
}

func TestViewServiceSyntheticDisabled(t *testing.T) {
	client := mockClient(t, upstreamResponses{"DashboardOverview": map[string]any{}})
	svc := newTestViewService(t, client, ViewOptions{SyntheticMetrics: false})

	require.NoError(t, svc.Refresh(context.Background(), ViewDashboard))
	snap, err := svc.Snapshot(ViewDashboard)
	require.NoError(t, err)
	assert.NotContains(t, snap.Data, "synthetic")
	assert.Empty(t, snap.Data["throughput"])
}

func TestViewServiceInlineUpstreamErrors(t *testing.T) {
	responses := upstreamResponses{
		"RecentEvents": map[string]any{"recentEvents": []any{
			map[string]any{"id": "e1", "eventType": "OrderCreated", "insertedAt": "2026-04-02T14:00:00Z"},
		}},
		"GetOrders": apperrors.UpstreamUnavailable(nil, "connection refused"),
		"GetHealth": map[string]any{"health": map[string]any{"status": "healthy"}, "memoryInfo": map[string]any{"total_mb": 512}},
	}
	svc := newTestViewService(t, mockClient(t, responses), ViewOptions{})
	ctx := context.Background()

	require.NoError(t, svc.RefreshAll(ctx, []string{ViewEvents, ViewHealth}))

	events, err := svc.Snapshot(ViewEvents)
	require.NoError(t, err)
	assert.Len(t, events.Data["events"], 1, "successful queries still land")
	require.Len(t, events.Errors, 1)
	assert.Equal(t, "GetOrders", events.Errors[0].Query)
	assert.Equal(t, apperrors.ErrCodeUpstreamUnavailable, events.Errors[0].Code)

	health, err := svc.Snapshot(ViewHealth)
	require.NoError(t, err)
	assert.Empty(t, health.Errors, "one failing view does not affect another")
	assert.Equal(t, map[string]any{"status": "healthy"}, health.Data["health"])

	responses["GetOrders"] = map[string]any{"orders": []any{map[string]any{"id": "o-1", "status": "PAID"}}}
	require.NoError(t, svc.Refresh(ctx, ViewEvents))
	events, err = svc.Snapshot(ViewEvents)
	require.NoError(t, err)
	assert.Empty(t, events.Errors, "error clears after a successful poll")
	orders := events.Data["orders"].([]any)
	require.Len(t, orders, 1)
	assert.Equal(t, "PAID", orders[0].(map[string]any)["status"])
}

func TestViewServiceMalformedResponseIsInline(t *testing.T) {
	svc := newTestViewService(t, mockClient(t, upstreamResponses{"GetHealth": "{not json"}), ViewOptions{})

	require.NoError(t, svc.Refresh(context.Background(), ViewHealth))
	snap, err := svc.Snapshot(ViewHealth)
	require.NoError(t, err)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, apperrors.ErrCodeUpstreamUnavailable, snap.Errors[0].Code)
}

func TestViewServiceRefreshHonoursCancellation(t *testing.T) {
	svc := newTestViewService(t, mockClient(t, nil), ViewOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, svc.Refresh(ctx, ViewHealth), context.Canceled)
}

func TestViewServicePollAndPushMerge(t *testing.T) {
	responses := upstreamResponses{
		"ListSagas": map[string]any{"sagas": []any{
			map[string]any{"id": "s1", "sagaType": "OrderSaga", "status": "STARTED", "updatedAt": "2026-04-02T14:00:00Z"},
			map[string]any{"id": "s2", "sagaType": "OrderSaga", "status": "STARTED", "updatedAt": "2026-04-02T14:01:00Z"},
		}},
		"SystemStatistics": map[string]any{"systemStatistics": map[string]any{"sagas": map[string]any{"active": 2}}},
	}
	svc := newTestViewService(t, mockClient(t, responses), ViewOptions{SagaWindow: 50})
	ctx := context.Background()

	require.NoError(t, svc.Refresh(ctx, ViewSagas))

	push := `{"sagaUpdates":{"id":"s1","sagaType":"OrderSaga","status":"COMPLETED","updatedAt":"2026-04-02T14:05:00Z"}}`
	require.NoError(t, svc.Ingest(ctx, FeedSagas, json.RawMessage(push)))

	stale := `{"sagaUpdates":{"id":"s2","sagaType":"OrderSaga","status":"FAILED","updatedAt":"2026-04-02T13:00:00Z"}}`
	require.NoError(t, svc.Ingest(ctx, FeedSagas, json.RawMessage(stale)))

	// A later poll carrying the old saga state must not roll the push back.
	require.NoError(t, svc.Refresh(ctx, ViewSagas))

	snap, err := svc.Snapshot(ViewSagas)
	require.NoError(t, err)
	sagas := snap.Data["sagas"].([]feed.Saga)
	require.Len(t, sagas, 2, "de-duplicated by id")
	assert.Equal(t, "s1", sagas[0].ID)
	assert.Equal(t, "COMPLETED", sagas[0].Status, "newest wins")
	assert.Equal(t, "STARTED", sagas[1].Status, "older push ignored")
}

func TestViewServiceWindowsAreBounded(t *testing.T) {
	svc := newTestViewService(t, mockClient(t, nil), ViewOptions{EventWindow: 3})
	ctx := context.Background()

	for i := range 5 {
		payload := map[string]any{"eventStream": map[string]any{
			"id":         string(rune('a' + i)),
			"eventType":  "Tick",
			"insertedAt": viewsNow.Add(time.Duration(i) * time.Second).Format(time.RFC3339),
		}}
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		require.NoError(t, svc.Ingest(ctx, FeedEvents, b))
	}

	snap, err := svc.Snapshot(ViewEvents)
	require.NoError(t, err)
	events := snap.Data["events"].([]feed.Event)
	require.Len(t, events, 3)
	assert.Equal(t, []string{"e", "d", "c"}, []string{events[0].ID, events[1].ID, events[2].ID})
}

func TestViewServiceIngestStatsAndSystemEvents(t *testing.T) {
	svc := newTestViewService(t, mockClient(t, nil), ViewOptions{})
	ctx := context.Background()

	require.NoError(t, svc.Ingest(ctx, FeedStats, json.RawMessage(`{"dashboardStatsStream":{"totalEvents":5,"eventsPerMinute":2}}`)))
	require.NoError(t, svc.Ingest(ctx, FeedSystemEvents, json.RawMessage(`{"systemEvent":{"type":"node_up","payload":{"node":"a"},"timestamp":"2026-04-02T14:00:00Z"}}`)))

	dash, err := svc.Snapshot(ViewDashboard)
	require.NoError(t, err)
	assert.True(t, dash.Loaded)
	assert.Equal(t, map[string]any{"totalEvents": float64(5), "eventsPerMinute": float64(2)}, dash.Data["stats"])
	assert.Len(t, dash.Data["throughput"], 1)

	events, err := svc.Snapshot(ViewEvents)
	require.NoError(t, err)
	sys := events.Data["systemEvents"].([]feed.SystemEvent)
	require.Len(t, sys, 1)
	assert.Equal(t, "node_up", sys[0].Type)
}

func TestViewServiceIngestRejectsMalformedPayloads(t *testing.T) {
	svc := newTestViewService(t, mockClient(t, nil), ViewOptions{})
	ctx := context.Background()

	assert.True(t, apperrors.IsValidation(svc.Ingest(ctx, FeedEvents, json.RawMessage(`{`))))
	assert.True(t, apperrors.IsValidation(svc.Ingest(ctx, FeedEvents, json.RawMessage(`{"other":{}}`))))
	assert.True(t, apperrors.IsValidation(svc.Ingest(ctx, FeedEvents, json.RawMessage(`{"eventStream":{"id":"x","insertedAt":"yesterday"}}`))))
	assert.True(t, apperrors.IsValidation(svc.Ingest(ctx, FeedKind("bogus"), json.RawMessage(`{}`))))
}

func TestViewServiceTopologyIsStatic(t *testing.T) {
	svc := newTestViewService(t, mockClient(t, nil), ViewOptions{})

	snap, err := svc.Snapshot(ViewTopology)
	require.NoError(t, err)
	assert.True(t, snap.Loaded)
	topo := snap.Data["topology"].(map[string]any)
	b, err := json.Marshal(topo["nodes"])
	require.NoError(t, err)
	assert.Contains(t, string(b), `"id":"event-store"`)
	assert.Contains(t, string(b), `"id":"query-db"`)
}

func TestViewServiceSubscribe(t *testing.T) {
	svc := newTestViewService(t, mockClient(t, nil), ViewOptions{})
	ctx := context.Background()

	ch, cancel, err := svc.Subscribe(ViewPubSub)
	require.NoError(t, err)

	initial := <-ch
	assert.Equal(t, ViewPubSub, initial.View)
	assert.Empty(t, initial.Data["messages"])

	msg := `{"pubsubStream":{"id":"m1","topic":"events","messageType":"OrderCreated","timestamp":"2026-04-02T14:00:00Z"}}`
	require.NoError(t, svc.Ingest(ctx, FeedMessages, json.RawMessage(msg)))

	select {
	case snap := <-ch:
		msgs := snap.Data["messages"].([]feed.Message)
		require.Len(t, msgs, 1)
		assert.Equal(t, "m1", msgs[0].ID)
	case <-time.After(time.Second):
		t.Fatal("no snapshot after ingest")
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open, "cancel closes the channel")
	assert.False(t, svc.hub.has(ViewPubSub))
}

func TestViewServiceSubscriberKeepsOnlyLatest(t *testing.T) {
	svc := newTestViewService(t, mockClient(t, nil), ViewOptions{})
	ctx := context.Background()

	ch, cancel, err := svc.Subscribe(ViewEvents)
	require.NoError(t, err)
	defer cancel()

	for i := range 3 {
		payload, mErr := json.Marshal(map[string]any{"eventStream": map[string]any{
			"id": string(rune('a' + i)), "insertedAt": viewsNow.Add(time.Duration(i) * time.Second).Format(time.RFC3339),
		}})
		require.NoError(t, mErr)
		require.NoError(t, svc.Ingest(ctx, FeedEvents, payload))
	}

	snap := <-ch
	assert.Len(t, snap.Data["events"], 3, "a slow reader sees the newest snapshot only")
	select {
	case <-ch:
		t.Fatal("expected a single buffered snapshot")
	default:
	}
}

// scriptedSubscriptions is a GraphQLClient whose subscriptions push canned
// payloads per operation and then end.
type scriptedSubscriptions struct {
	mu       sync.Mutex
	payloads map[string][]string
	calls    map[string]int
}

func (s *scriptedSubscriptions) Execute(context.Context, ports.GraphQLRequest) (json.RawMessage, error) {
	return nil, apperrors.UpstreamUnavailable(nil, "not used")
}

func (s *scriptedSubscriptions) Subscribe(ctx context.Context, req ports.GraphQLRequest, onData func(json.RawMessage) error) error {
	s.mu.Lock()
	s.calls[req.OperationName]++
	first := s.calls[req.OperationName] == 1
	payloads := s.payloads[req.OperationName]
	s.mu.Unlock()

	if first {
		for _, p := range payloads {
			if err := onData(json.RawMessage(p)); err != nil {
				return err
			}
		}
		return apperrors.UpstreamUnavailable(nil, "stream reset")
	}
	<-ctx.Done()
	return nil
}

func (s *scriptedSubscriptions) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func TestFeedSubscriberMergesAndReconnects(t *testing.T) {
	client := &scriptedSubscriptions{
		calls: map[string]int{},
		payloads: map[string][]string{
			"EventStream": {
				`{"eventStream":{"id":"e1","insertedAt":"2026-04-02T14:00:00Z"}}`,
				`{"eventStream":{"id":"e1","insertedAt":"2026-04-02T14:00:00Z"}}`,
				`{"broken":true}`,
				`{"eventStream":{"id":"e2","insertedAt":"2026-04-02T14:00:01Z"}}`,
			},
			"PubSubMessageStream": {`{"pubsubStream":{"id":"m1","timestamp":"2026-04-02T14:00:00Z"}}`},
		},
	}
	svc := newTestViewService(t, client, ViewOptions{})
	sub, err := NewFeedSubscriber(FeedSubscriberOptions{
		Client:     client,
		Views:      svc,
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	require.Eventually(t, func() bool {
		return client.callCount("EventStream") >= 2 && client.callCount("OnSystemEvent") >= 2
	}, 2*time.Second, 10*time.Millisecond, "dropped subscriptions are reopened")
	cancel()
	require.NoError(t, <-done)

	snap, err := svc.Snapshot(ViewEvents)
	require.NoError(t, err)
	events := snap.Data["events"].([]feed.Event)
	require.Len(t, events, 2)
	assert.Equal(t, "e2", events[0].ID)

	pubsub, err := svc.Snapshot(ViewPubSub)
	require.NoError(t, err)
	assert.Len(t, pubsub.Data["messages"], 1)
}

func TestFeedPollerRefreshesEveryPolledView(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockGraphQLClient(ctrl)
	client.EXPECT().Execute(gomock.Any(), gomock.Any()).
		Return(json.RawMessage(`{}`), nil).
		MinTimes(len(buildCatalog(ViewOptions{}.withDefaults())) - 1)

	svc := newTestViewService(t, client, ViewOptions{
		PollInterval:     time.Hour,
		SlowPollInterval: time.Hour,
		PubSubInterval:   time.Hour,
	})
	poller, err := NewFeedPoller(FeedPollerOptions{Views: svc})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, v := range svc.Views() {
			snap, snapErr := svc.Snapshot(v.Name)
			if snapErr != nil || !snap.Loaded {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestNewViewServiceRequiresClient(t *testing.T) {
	_, err := NewViewService(ViewServiceOptions{})
	assert.Error(t, err)
	_, err = NewFeedPoller(FeedPollerOptions{})
	assert.Error(t, err)
	_, err = NewFeedSubscriber(FeedSubscriberOptions{})
	assert.Error(t, err)
}
