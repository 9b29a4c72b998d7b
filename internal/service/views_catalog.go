package service

import "time"

// View names served by the dashboard.
const (
	ViewDashboard = "dashboard"
	ViewEvents    = "events"
	ViewCommands  = "commands"
	ViewQueries   = "queries"
	ViewSagas     = "sagas"
	ViewPubSub    = "pubsub"
	ViewHealth    = "health"
	ViewDatabase  = "database"
	ViewTopology  = "topology"
)

// FeedKind names a live feed backed by a bounded window or a stats stream.
type FeedKind string

const (
	FeedEvents       FeedKind = "events"
	FeedSagas        FeedKind = "sagas"
	FeedMessages     FeedKind = "messages"
	FeedSystemEvents FeedKind = "systemEvents"
	FeedStats        FeedKind = "stats"
)

// ViewOptions sizes the feeds and sets the poll cadence of each view.
type ViewOptions struct {
	PollInterval      time.Duration
	SlowPollInterval  time.Duration
	PubSubInterval    time.Duration
	EventWindow       int
	SagaWindow        int
	PubSubWindow      int
	SystemEventWindow int
	HistoryPoints     int
	PubSubTopic       string
	SyntheticMetrics  bool
}

func (o ViewOptions) withDefaults() ViewOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.SlowPollInterval <= 0 {
		o.SlowPollInterval = 10 * time.Second
	}
	if o.PubSubInterval <= 0 {
		o.PubSubInterval = 3 * time.Second
	}
	o.EventWindow = positive(o.EventWindow, 100)
	o.SagaWindow = positive(o.SagaWindow, 50)
	o.PubSubWindow = positive(o.PubSubWindow, 500)
	o.SystemEventWindow = positive(o.SystemEventWindow, 200)
	o.HistoryPoints = positive(o.HistoryPoints, 20)
	if o.PubSubTopic == "" {
		o.PubSubTopic = "events"
	}
	return o
}

func positive(v, def int) int {
	if v < 1 {
		return def
	}
	return v
}

// viewQuery is one upstream document and the JMESPath projections that turn
// its data member into snapshot keys. When Feed is set, the Feed projection
// result is merged into that window instead of stored as-is.
type viewQuery struct {
	Name        string
	Document    string
	Variables   map[string]any
	Projections map[string]string
	Feed        FeedKind
	FeedPath    string
}

// viewDef describes one dashboard view.
type viewDef struct {
	Name     string
	Title    string
	Interval time.Duration // zero means the view is never polled
	Queries  []viewQuery
	Feeds    []FeedKind
	History  bool
	Static   map[string]any
}

// ViewInfo is the public description of a view.
type ViewInfo struct {
	Name     string        `json:"name"`
	Title    string        `json:"title"`
	Interval time.Duration `json:"intervalNs"`
	Feeds    []FeedKind    `json:"feeds,omitempty"`
}

const eventFields = `id aggregateId aggregateType eventType eventData eventVersion globalSequence metadata insertedAt`

const sagaFields = `id sagaType status state commandsDispatched { commandType commandData timestamp } eventsHandled createdAt updatedAt correlationId`

const messageFields = `id topic messageType payload timestamp sourceService`

const statsFields = `totalEvents eventsPerMinute activeSagas totalCommands totalQueries systemHealth errorRate averageLatencyMs`

func buildCatalog(o ViewOptions) []viewDef {
	return []viewDef{
		{
			Name:     ViewDashboard,
			Title:    "Overview",
			Interval: o.PollInterval,
			Feeds:    []FeedKind{FeedEvents, FeedStats},
			History:  true,
			Queries: []viewQuery{{
				Name: "DashboardOverview",
				Document: `query DashboardOverview {
  dashboardStats { ` + statsFields + ` }
  recentEvents(limit: 10) { ` + eventFields + ` }
  pubsubStats { topic messageCount messagesPerMinute lastMessageAt }
  systemStatistics { sagas { active completed failed compensated total } }
}`,
				Projections: map[string]string{
					"stats":       "dashboardStats",
					"pubsubStats": "pubsubStats",
					"sagaStats":   "systemStatistics.sagas",
				},
				Feed:     FeedEvents,
				FeedPath: "recentEvents",
			}},
		},
		{
			Name:     ViewEvents,
			Title:    "Event Stream",
			Interval: o.PollInterval,
			Feeds:    []FeedKind{FeedEvents, FeedSystemEvents},
			Queries: []viewQuery{
				{
					Name:      "RecentEvents",
					Document:  `query RecentEvents($limit: Int) { recentEvents(limit: $limit) { ` + eventFields + ` } }`,
					Variables: map[string]any{"limit": o.EventWindow},
					Feed:      FeedEvents,
					FeedPath:  "recentEvents",
				},
				{
					Name:     "GetOrders",
					Document: `query GetOrders { orders { id userId status totalAmount createdAt updatedAt sagaId sagaStatus sagaCurrentStep } }`,
					Projections: map[string]string{
						"orders": "orders[].{id: id, userId: userId, status: status, totalAmount: totalAmount, sagaId: sagaId, sagaStatus: sagaStatus, sagaStep: sagaCurrentStep, updatedAt: updatedAt}",
					},
				},
			},
		},
		{
			Name:     ViewCommands,
			Title:    "Commands",
			Interval: o.PollInterval,
			Queries: []viewQuery{{
				Name: "GetAllData",
				Document: `query GetAllData {
  categories { id name createdAt updatedAt }
  products { id name createdAt updatedAt category { id name } }
  orders { id userId status totalAmount createdAt updatedAt sagaStatus items { productId productName quantity unitPrice } }
}`,
				Projections: map[string]string{
					"counts":   "{categories: length(categories), products: length(products), orders: length(orders)}",
					"orders":   "orders[].{id: id, status: status, sagaStatus: sagaStatus, items: length(items), totalAmount: totalAmount, updatedAt: updatedAt}",
					"products": "products[].{id: id, name: name, category: category.name, updatedAt: updatedAt}",
				},
			}},
		},
		{
			Name:     ViewQueries,
			Title:    "Queries",
			Interval: o.SlowPollInterval,
			Queries: []viewQuery{{
				Name: "GetQueryData",
				Document: `query GetQueryData {
  categories { id name description active products { id } }
  products { id name price stockQuantity category { id name } }
  orders { id userId status totalAmount createdAt items { productId quantity } }
}`,
				Projections: map[string]string{
					"counts":     "{categories: length(categories), products: length(products), orders: length(orders)}",
					"categories": "categories[].{id: id, name: name, active: active, products: length(products)}",
					"products":   "products[].{id: id, name: name, price: price, stock: stockQuantity, category: category.name}",
					"orders":     "orders[].{id: id, status: status, totalAmount: totalAmount, items: length(items), createdAt: createdAt}",
				},
			}},
		},
		{
			Name:     ViewSagas,
			Title:    "Sagas",
			Interval: o.PollInterval,
			Feeds:    []FeedKind{FeedSagas},
			Queries: []viewQuery{
				{
					Name:      "ListSagas",
					Document:  `query ListSagas($limit: Int) { sagas(limit: $limit) { ` + sagaFields + ` } }`,
					Variables: map[string]any{"limit": o.SagaWindow},
					Feed:      FeedSagas,
					FeedPath:  "sagas",
				},
				{
					Name:        "SystemStatistics",
					Document:    `query SystemStatistics { systemStatistics { sagas { active completed failed compensated total } } }`,
					Projections: map[string]string{"sagaStats": "systemStatistics.sagas"},
				},
			},
		},
		{
			Name:     ViewPubSub,
			Title:    "Pub/Sub",
			Interval: o.PubSubInterval,
			Feeds:    []FeedKind{FeedMessages},
			Queries: []viewQuery{
				{
					Name:      "ListPubSubMessages",
					Document:  `query ListPubSubMessages($topic: String, $limit: Int) { pubsubMessages(topic: $topic, limit: $limit) { ` + messageFields + ` } }`,
					Variables: map[string]any{"topic": o.PubSubTopic, "limit": o.PubSubWindow},
					Feed:      FeedMessages,
					FeedPath:  "pubsubMessages",
				},
				{
					Name:        "PubSubStats",
					Document:    `query PubSubStats { pubsubStats { topic messageCount messagesPerMinute lastMessageAt } }`,
					Projections: map[string]string{"stats": "pubsubStats"},
				},
			},
		},
		{
			Name:     ViewHealth,
			Title:    "Health",
			Interval: o.PollInterval,
			Queries: []viewQuery{{
				Name: "GetHealth",
				Document: `query GetHealth {
  health { status timestamp version node checks { name status message details duration_ms } }
  memoryInfo { total_mb process_mb binary_mb ets_mb process_count port_count }
}`,
				Projections: map[string]string{
					"health": "health",
					"memory": "memoryInfo",
				},
			}},
		},
		{
			Name:     ViewDatabase,
			Title:    "Database Status",
			Interval: o.SlowPollInterval,
			Queries: []viewQuery{
				{
					Name:     "GetEventStoreStats",
					Document: `query GetEventStoreStats { eventStoreStats { totalEvents eventsByType { eventType count } eventsByAggregate { aggregateType count } latestSequence } }`,
					Projections: map[string]string{
						"eventStore": "eventStoreStats",
						"topTypes":   "sort_by(eventStoreStats.eventsByType, &count)[-5:]",
					},
				},
				{
					Name: "GetSystemStatistics",
					Document: `query GetSystemStatistics {
  systemStatistics {
    eventStore { totalRecords lastUpdated }
    commandDb { totalRecords lastUpdated }
    queryDb { categories products orders lastUpdated }
    sagas { active completed failed compensated total }
  }
}`,
					Projections: map[string]string{"statistics": "systemStatistics"},
				},
			},
		},
		{
			Name:   ViewTopology,
			Title:  "Topology",
			Static: map[string]any{"topology": staticTopology()},
		},
	}
}

// staticTopology is the fixed service graph of the monitored system.
func staticTopology() map[string]any {
	type node struct {
		ID    string `json:"id"`
		Label string `json:"label"`
		Kind  string `json:"kind"`
	}
	type edge struct {
		From  string `json:"from"`
		To    string `json:"to"`
		Label string `json:"label"`
	}
	return map[string]any{
		"nodes": []node{
			{ID: "client", Label: "Client", Kind: "client"},
			{ID: "command", Label: "Command Service", Kind: "service"},
			{ID: "query", Label: "Query Service", Kind: "service"},
			{ID: "event-store", Label: "Event Store", Kind: "store"},
			{ID: "saga", Label: "Saga Orchestrator", Kind: "service"},
			{ID: "projection", Label: "Projections", Kind: "service"},
			{ID: "command-db", Label: "Command DB", Kind: "store"},
			{ID: "query-db", Label: "Query DB", Kind: "store"},
		},
		"edges": []edge{
			{From: "client", To: "command", Label: "mutations"},
			{From: "client", To: "query", Label: "queries"},
			{From: "command", To: "command-db", Label: "writes"},
			{From: "command", To: "event-store", Label: "appends events"},
			{From: "event-store", To: "saga", Label: "event stream"},
			{From: "event-store", To: "projection", Label: "event stream"},
			{From: "saga", To: "command", Label: "dispatches commands"},
			{From: "projection", To: "query-db", Label: "updates read model"},
			{From: "query", To: "query-db", Label: "reads"},
		},
	}
}
