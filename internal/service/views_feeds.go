package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/cqrs-monitor/internal/ports"
)

// FeedPollerOptions groups dependencies for FeedPoller.
type FeedPollerOptions struct {
	Views  *ViewService
	Logger *slog.Logger
}

// FeedPoller refreshes every polled view at its own interval.
type FeedPoller struct {
	views  *ViewService
	logger *slog.Logger
}

// NewFeedPoller constructs a FeedPoller.
func NewFeedPoller(opts FeedPollerOptions) (*FeedPoller, error) {
	if opts.Views == nil {
		return nil, errors.New("feed poller: view service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedPoller{views: opts.Views, logger: logger.With("component", "feed_poller")}, nil
}

// Run polls until ctx is canceled. Views sharing an interval are refreshed
// together on one ticker; each tick runs them concurrently.
func (p *FeedPoller) Run(ctx context.Context) error {
	schedule := p.views.Schedule()
	intervals := make([]time.Duration, 0, len(schedule))
	for interval := range schedule {
		intervals = append(intervals, interval)
	}
	slices.Sort(intervals)

	g, gctx := errgroup.WithContext(ctx)
	for _, interval := range intervals {
		names := schedule[interval]
		p.logger.InfoContext(ctx, "polling views", "interval", interval.String(), "views", names)
		g.Go(func() error {
			return p.loop(gctx, interval, names)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (p *FeedPoller) loop(ctx context.Context, interval time.Duration, names []string) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.views.RefreshAll(ctx, names); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.WarnContext(ctx, "view refresh failed", "views", names, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// subscriptionDoc is one upstream subscription feeding a window.
type subscriptionDoc struct {
	Feed    FeedKind
	Request ports.GraphQLRequest
}

func subscriptionDocs(o ViewOptions) []subscriptionDoc {
	return []subscriptionDoc{
		{Feed: FeedEvents, Request: ports.GraphQLRequest{
			OperationName: "EventStream",
			Query:         `subscription EventStream { eventStream { ` + eventFields + ` } }`,
		}},
		{Feed: FeedSagas, Request: ports.GraphQLRequest{
			OperationName: "SagaUpdates",
			Query:         `subscription SagaUpdates { sagaUpdates { ` + sagaFields + ` } }`,
		}},
		{Feed: FeedMessages, Request: ports.GraphQLRequest{
			OperationName: "PubSubMessageStream",
			Query:         `subscription PubSubMessageStream($topic: String) { pubsubStream(topic: $topic) { ` + messageFields + ` } }`,
			Variables:     map[string]any{"topic": o.PubSubTopic},
		}},
		{Feed: FeedStats, Request: ports.GraphQLRequest{
			OperationName: "DashboardStatsStream",
			Query:         `subscription DashboardStatsStream { dashboardStatsStream { ` + statsFields + ` } }`,
		}},
		{Feed: FeedSystemEvents, Request: ports.GraphQLRequest{
			OperationName: "OnSystemEvent",
			Query:         `subscription OnSystemEvent { systemEvent { type payload timestamp } }`,
		}},
	}
}

// FeedSubscriberOptions groups dependencies for FeedSubscriber.
type FeedSubscriberOptions struct {
	Client     ports.GraphQLClient
	Views      *ViewService
	Logger     *slog.Logger
	MinBackoff time.Duration // default 1s
	MaxBackoff time.Duration // default 30s
}

// FeedSubscriber keeps one upstream subscription open per live feed and
// merges every push into the view service.
type FeedSubscriber struct {
	client     ports.GraphQLClient
	views      *ViewService
	logger     *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewFeedSubscriber constructs a FeedSubscriber.
func NewFeedSubscriber(opts FeedSubscriberOptions) (*FeedSubscriber, error) {
	if opts.Client == nil {
		return nil, errors.New("feed subscriber: graphql client is required")
	}
	if opts.Views == nil {
		return nil, errors.New("feed subscriber: view service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	minBackoff := opts.MinBackoff
	if minBackoff <= 0 {
		minBackoff = time.Second
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff < minBackoff {
		maxBackoff = max(30*time.Second, minBackoff)
	}
	return &FeedSubscriber{
		client:     opts.Client,
		views:      opts.Views,
		logger:     logger.With("component", "feed_subscriber"),
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}, nil
}

// Run holds every subscription open until ctx is canceled, reconnecting
// with exponential backoff.
func (s *FeedSubscriber) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, doc := range subscriptionDocs(s.views.opts) {
		g.Go(func() error {
			s.follow(gctx, doc)
			return nil
		})
	}
	return g.Wait()
}

func (s *FeedSubscriber) follow(ctx context.Context, doc subscriptionDoc) {
	backoff := s.minBackoff
	for {
		var received atomic.Bool
		err := s.client.Subscribe(ctx, doc.Request, func(msg json.RawMessage) error {
			received.Store(true)
			// Malformed pushes are counted and dropped; the stream stays open.
			_ = s.views.Ingest(ctx, doc.Feed, msg)
			return nil
		})
		if ctx.Err() != nil {
			return
		}
		if received.Load() {
			backoff = s.minBackoff
		}
		if err != nil {
			s.logger.WarnContext(ctx, "subscription dropped", "feed", doc.Feed, "error", err, "retry_in", backoff.String())
		} else {
			s.logger.InfoContext(ctx, "subscription completed", "feed", doc.Feed, "retry_in", backoff.String())
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, s.maxBackoff)
	}
}
