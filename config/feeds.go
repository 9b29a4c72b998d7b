package config

import "time"

// FeedsConfig controls how often each dashboard view is refreshed from the
// upstream and how many entries each live feed keeps.
type FeedsConfig struct {
	PollInterval      time.Duration `env:"POLL_INTERVAL"       envDefault:"5s"`
	SlowPollInterval  time.Duration `env:"SLOW_POLL_INTERVAL"  envDefault:"10s"`
	PubSubInterval    time.Duration `env:"PUBSUB_INTERVAL"     envDefault:"3s"`
	EventWindow       int           `env:"EVENT_WINDOW"        envDefault:"100"`
	SagaWindow        int           `env:"SAGA_WINDOW"         envDefault:"50"`
	PubSubWindow      int           `env:"PUBSUB_WINDOW"       envDefault:"500"`
	SystemEventWindow int           `env:"SYSTEM_EVENT_WINDOW" envDefault:"200"`
	HistoryPoints     int           `env:"HISTORY_POINTS"      envDefault:"20"`
	// PubSubTopic is the topic passed to the pubsubStream subscription.
	PubSubTopic string `env:"PUBSUB_TOPIC" envDefault:"events"`
	// SyntheticMetrics enables the placeholder cpu/memory series on the
	// dashboard view.
	SyntheticMetrics bool `env:"SYNTHETIC_METRICS" envDefault:"true"`
}

// Sanitize applies lower bounds so a typo cannot hammer the upstream.
func (f *FeedsConfig) Sanitize() {
	if f.PollInterval < time.Second {
		f.PollInterval = time.Second
	}
	if f.SlowPollInterval < f.PollInterval {
		f.SlowPollInterval = f.PollInterval
	}
	if f.PubSubInterval < time.Second {
		f.PubSubInterval = time.Second
	}
	f.EventWindow = atLeastOne(f.EventWindow)
	f.SagaWindow = atLeastOne(f.SagaWindow)
	f.PubSubWindow = atLeastOne(f.PubSubWindow)
	f.SystemEventWindow = atLeastOne(f.SystemEventWindow)
	f.HistoryPoints = atLeastOne(f.HistoryPoints)
	if f.PubSubTopic == "" {
		f.PubSubTopic = "events"
	}
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
