package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/sync/errgroup"

	"github.com/target/cqrs-monitor/internal/domain/feed"
	apperrors "github.com/target/cqrs-monitor/internal/errors"
	"github.com/target/cqrs-monitor/internal/observability/metrics"
	"github.com/target/cqrs-monitor/internal/ports"
)

const defaultRefreshConcurrency = 4

// ViewServiceOptions groups dependencies for ViewService.
type ViewServiceOptions struct {
	Client      ports.GraphQLClient
	Options     ViewOptions
	Logger      *slog.Logger
	Metrics     *metrics.Recorder
	Now         func() time.Time
	Rand        *rand.Rand // seeds the synthetic series; optional
	Concurrency int
}

// ViewError is an upstream failure reported inline with a view's data.
type ViewError struct {
	Query   string              `json:"query"`
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

// ViewSnapshot is the latest state of one view.
type ViewSnapshot struct {
	View      string         `json:"view"`
	Title     string         `json:"title"`
	Loaded    bool           `json:"loaded"`
	Data      map[string]any `json:"data"`
	Errors    []ViewError    `json:"errors,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type viewState struct {
	data      map[string]any
	errors    map[string]ViewError
	updatedAt time.Time
}

// ViewService keeps the latest snapshot of every dashboard view. Poll
// results and subscription pushes both land here; a failing view never
// affects another one.
type ViewService struct {
	client      ports.GraphQLClient
	opts        ViewOptions
	logger      *slog.Logger
	metrics     *metrics.Recorder
	now         func() time.Time
	concurrency int

	catalog map[string]viewDef
	order   []string

	mu           sync.RWMutex
	states       map[string]*viewState
	events       *feed.Window[feed.Event]
	sagas        *feed.Window[feed.Saga]
	messages     *feed.Window[feed.Message]
	systemEvents *feed.Window[feed.SystemEvent]
	throughput   *feed.Series
	synthetic    *syntheticMetrics

	hub *hub
}

// NewViewService constructs a ViewService and validates every projection.
func NewViewService(opts ViewServiceOptions) (*ViewService, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("view service: graphql client is required")
	}
	o := opts.Options.withDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultRefreshConcurrency
	}

	s := &ViewService{
		client:       opts.Client,
		opts:         o,
		logger:       logger.With("component", "view_service"),
		metrics:      opts.Metrics,
		now:          now,
		concurrency:  concurrency,
		catalog:      make(map[string]viewDef),
		states:       make(map[string]*viewState),
		events:       feed.NewEventWindow(o.EventWindow),
		sagas:        feed.NewSagaWindow(o.SagaWindow),
		messages:     feed.NewMessageWindow(o.PubSubWindow),
		systemEvents: feed.NewSystemEventWindow(o.SystemEventWindow),
		throughput:   feed.NewSeries(o.HistoryPoints),
		hub:          newHub(),
	}
	if o.SyntheticMetrics {
		rng := opts.Rand
		if rng == nil {
			rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
		s.synthetic = newSyntheticMetrics(rng, o.HistoryPoints)
	}

	for _, def := range buildCatalog(o) {
		if err := validateView(def); err != nil {
			return nil, err
		}
		s.catalog[def.Name] = def
		s.order = append(s.order, def.Name)
		s.states[def.Name] = &viewState{data: map[string]any{}, errors: map[string]ViewError{}}
	}
	return s, nil
}

func validateView(def viewDef) error {
	for _, q := range def.Queries {
		exprs := make([]string, 0, len(q.Projections)+1)
		for _, expr := range q.Projections {
			exprs = append(exprs, expr)
		}
		if q.Feed != "" {
			exprs = append(exprs, q.FeedPath)
		}
		for _, expr := range exprs {
			if _, err := jmespath.Compile(expr); err != nil {
				return fmt.Errorf("view %s query %s: invalid projection %q: %w", def.Name, q.Name, expr, err)
			}
		}
	}
	return nil
}

// Views lists the catalogue in display order.
func (s *ViewService) Views() []ViewInfo {
	out := make([]ViewInfo, 0, len(s.order))
	for _, name := range s.order {
		def := s.catalog[name]
		out = append(out, ViewInfo{Name: def.Name, Title: def.Title, Interval: def.Interval, Feeds: def.Feeds})
	}
	return out
}

// Has reports whether name is a known view.
func (s *ViewService) Has(name string) bool {
	_, ok := s.catalog[name]
	return ok
}

// Schedule groups polled views by interval.
func (s *ViewService) Schedule() map[time.Duration][]string {
	out := make(map[time.Duration][]string)
	for _, name := range s.order {
		def := s.catalog[name]
		if def.Interval <= 0 || len(def.Queries) == 0 {
			continue
		}
		out[def.Interval] = append(out[def.Interval], name)
	}
	return out
}

// Refresh runs every query of a view against the upstream. Query failures
// are stored inline with the view; only an unknown view or a canceled
// context is returned as an error.
func (s *ViewService) Refresh(ctx context.Context, name string) error {
	def, ok := s.catalog[name]
	if !ok {
		return apperrors.NotFoundf("view %q not found", name)
	}

	type outcome struct {
		values map[string]any
		err    *ViewError
	}
	outcomes := make(map[string]outcome, len(def.Queries))
	for _, q := range def.Queries {
		values, err := s.runQuery(ctx, def.Name, q)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			s.logger.WarnContext(ctx, "view query failed", "view", def.Name, "query", q.Name, "error", err)
			outcomes[q.Name] = outcome{err: toViewError(q.Name, err)}
			continue
		}
		outcomes[q.Name] = outcome{values: values}
	}

	now := s.now()
	s.mu.Lock()
	st := s.states[def.Name]
	for qName, out := range outcomes {
		if out.err != nil {
			st.errors[qName] = *out.err
			continue
		}
		delete(st.errors, qName)
		for k, v := range out.values {
			st.data[k] = v
		}
	}
	if def.History {
		s.recordHistoryLocked(st.data["stats"], now)
	}
	st.updatedAt = now
	s.mu.Unlock()

	s.publish(def.Name)
	return nil
}

// RefreshAll refreshes the named views concurrently.
func (s *ViewService) RefreshAll(ctx context.Context, names []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, name := range names {
		g.Go(func() error {
			return s.Refresh(gctx, name)
		})
	}
	return g.Wait()
}

func (s *ViewService) runQuery(ctx context.Context, view string, q viewQuery) (map[string]any, error) {
	start := time.Now()
	raw, err := s.client.Execute(ctx, ports.GraphQLRequest{
		Query:         q.Document,
		Variables:     q.Variables,
		OperationName: q.Name,
	})
	s.metrics.Upstream(view, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	var data any
	if len(raw) > 0 {
		if jsonErr := json.Unmarshal(raw, &data); jsonErr != nil {
			return nil, apperrors.UpstreamUnavailable(jsonErr, "malformed upstream response")
		}
	}

	values := make(map[string]any, len(q.Projections))
	for key, expr := range q.Projections {
		v, searchErr := jmespath.Search(expr, data)
		if searchErr != nil {
			return nil, apperrors.Wrapf(searchErr, apperrors.ErrCodeInternal, "project %s", key)
		}
		values[key] = v
	}

	if q.Feed != "" {
		items, searchErr := jmespath.Search(q.FeedPath, data)
		if searchErr != nil {
			return nil, apperrors.Wrapf(searchErr, apperrors.ErrCodeInternal, "project %s", q.FeedPath)
		}
		if _, mergeErr := s.mergeFeed(q.Feed, items); mergeErr != nil {
			return nil, mergeErr
		}
	}
	return values, nil
}

func toViewError(query string, err error) *ViewError {
	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.ErrCodeUpstreamUnavailable
	}
	msg := "upstream GraphQL service unavailable"
	if code != apperrors.ErrCodeUpstreamUnavailable {
		msg = err.Error()
	}
	return &ViewError{Query: query, Code: code, Message: msg}
}

// subscriptionPaths maps each feed to the field its subscription payload carries.
var subscriptionPaths = map[FeedKind]string{
	FeedEvents:       "eventStream",
	FeedSagas:        "sagaUpdates",
	FeedMessages:     "pubsubStream",
	FeedSystemEvents: "systemEvent",
	FeedStats:        "dashboardStatsStream",
}

// Ingest merges one subscription payload into its feed and notifies every
// view showing that feed.
func (s *ViewService) Ingest(ctx context.Context, kind FeedKind, payload json.RawMessage) error {
	err := s.ingest(kind, payload)
	s.metrics.SubscriptionMessage(string(kind), err)
	if err != nil {
		s.logger.WarnContext(ctx, "dropping subscription payload", "feed", kind, "error", err)
		return err
	}

	for _, name := range s.order {
		if slices.Contains(s.catalog[name].Feeds, kind) {
			s.publish(name)
		}
	}
	return nil
}

func (s *ViewService) ingest(kind FeedKind, payload json.RawMessage) error {
	path, ok := subscriptionPaths[kind]
	if !ok {
		return apperrors.Validationf("unknown feed %q", kind)
	}
	var data any
	if err := json.Unmarshal(payload, &data); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "malformed subscription payload")
	}
	v, err := jmespath.Search(path, data)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "malformed subscription payload")
	}
	if v == nil {
		return apperrors.Validationf("subscription payload has no %s", path)
	}

	if kind == FeedStats {
		now := s.now()
		s.mu.Lock()
		st := s.states[ViewDashboard]
		st.data["stats"] = v
		s.recordHistoryLocked(v, now)
		st.updatedAt = now
		s.mu.Unlock()
		return nil
	}

	_, err = s.mergeFeed(kind, v)
	return err
}

func (s *ViewService) mergeFeed(kind FeedKind, v any) (int, error) {
	switch kind {
	case FeedEvents:
		return mergeInto(&s.mu, s.events, v)
	case FeedSagas:
		return mergeInto(&s.mu, s.sagas, v)
	case FeedMessages:
		return mergeInto(&s.mu, s.messages, v)
	case FeedSystemEvents:
		return mergeInto(&s.mu, s.systemEvents, v)
	default:
		return 0, apperrors.Validationf("feed %q has no window", kind)
	}
}

func mergeInto[T any](mu *sync.RWMutex, w *feed.Window[T], v any) (int, error) {
	items, err := decodeItems[T](v)
	if err != nil {
		return 0, err
	}
	mu.Lock()
	defer mu.Unlock()
	return w.Merge(items), nil
}

// decodeItems converts a JSON-shaped value holding one item or a list of
// items into typed feed entries.
func decodeItems[T any](v any) ([]T, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "encode feed items")
	}
	if _, isList := v.([]any); isList {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "decode feed items")
		}
		return items, nil
	}
	var item T
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "decode feed item")
	}
	return []T{item}, nil
}

// recordHistoryLocked appends the events-per-minute sample of stats to the
// throughput history and advances the synthetic series. Callers hold s.mu.
func (s *ViewService) recordHistoryLocked(stats any, at time.Time) {
	if m, ok := stats.(map[string]any); ok {
		if epm, isNum := m["eventsPerMinute"].(float64); isNum {
			s.throughput.Append(feed.Point{At: at, Value: epm})
		}
	}
	if s.synthetic != nil {
		s.synthetic.tick(at)
	}
}

// Snapshot returns the current state of a view.
func (s *ViewService) Snapshot(name string) (ViewSnapshot, error) {
	def, ok := s.catalog[name]
	if !ok {
		return ViewSnapshot{}, apperrors.NotFoundf("view %q not found", name)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.states[name]
	data := make(map[string]any, len(st.data)+len(def.Static)+len(def.Feeds)+2)
	for k, v := range def.Static {
		data[k] = v
	}
	for k, v := range st.data {
		data[k] = v
	}
	for _, kind := range def.Feeds {
		switch kind {
		case FeedEvents:
			data["events"] = s.events.Items()
		case FeedSagas:
			data["sagas"] = s.sagas.Items()
		case FeedMessages:
			data["messages"] = s.messages.Items()
		case FeedSystemEvents:
			data["systemEvents"] = s.systemEvents.Items()
		case FeedStats:
		}
	}
	if def.History {
		data["throughput"] = s.throughput.Points()
		if s.synthetic != nil {
			data["synthetic"] = s.synthetic.snapshot()
		}
	}

	snap := ViewSnapshot{
		View:      def.Name,
		Title:     def.Title,
		Loaded:    !st.updatedAt.IsZero() || len(def.Queries) == 0,
		Data:      data,
		UpdatedAt: st.updatedAt,
	}
	for _, e := range st.errors {
		snap.Errors = append(snap.Errors, e)
	}
	sort.Slice(snap.Errors, func(i, j int) bool { return snap.Errors[i].Query < snap.Errors[j].Query })
	return snap, nil
}

// Subscribe registers for snapshots of a view. The current snapshot is
// delivered first; slow readers only ever see the latest one.
func (s *ViewService) Subscribe(name string) (<-chan ViewSnapshot, func(), error) {
	snap, err := s.Snapshot(name)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.subscribe(name)
	s.hub.deliver(name, ch, snap)
	return ch, cancel, nil
}

func (s *ViewService) publish(name string) {
	if !s.hub.has(name) {
		return
	}
	snap, err := s.Snapshot(name)
	if err != nil {
		return
	}
	s.hub.broadcast(name, snap)
}
