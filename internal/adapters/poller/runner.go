// Package poller provides adapters for running the upstream feed loops.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/cqrs-monitor/internal/ports"
	"github.com/target/cqrs-monitor/internal/service"
)

// Mode selects which feed loop a Runner drives.
type Mode string

const (
	// ModePoll refreshes every polled view at its interval.
	ModePoll Mode = "poll"
	// ModeSubscribe holds the upstream GraphQL subscriptions open.
	ModeSubscribe Mode = "subscribe"
)

// loop is the shared shape of FeedPoller and FeedSubscriber.
type loop interface {
	Run(ctx context.Context) error
}

// Runner provides a simple adapter to run one feed loop until shutdown.
type Runner struct {
	mode   Mode
	loop   loop
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Mode   Mode
	Views  *service.ViewService
	Client ports.GraphQLClient // required for ModeSubscribe
	Logger *slog.Logger

	// Subscription reconnect bounds; zero uses the subscriber defaults.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// NewRunner creates a new feed runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	l, err := wireLoop(opts)
	if err != nil {
		return nil, fmt.Errorf("wire %s loop: %w", opts.Mode, err)
	}

	return &Runner{
		mode:   opts.Mode,
		loop:   l,
		logger: opts.Logger,
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Views == nil {
		return errors.New("view service is required")
	}
	if opts.Mode == "" {
		opts.Mode = ModePoll
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

//nolint:ireturn // both loops are consumed through Run only.
func wireLoop(opts RunnerOptions) (loop, error) {
	switch opts.Mode {
	case ModePoll:
		return service.NewFeedPoller(service.FeedPollerOptions{
			Views:  opts.Views,
			Logger: opts.Logger,
		})
	case ModeSubscribe:
		return service.NewFeedSubscriber(service.FeedSubscriberOptions{
			Client:     opts.Client,
			Views:      opts.Views,
			Logger:     opts.Logger,
			MinBackoff: opts.MinBackoff,
			MaxBackoff: opts.MaxBackoff,
		})
	default:
		return nil, fmt.Errorf("unknown mode %q", opts.Mode)
	}
}

// Run starts the loop and runs until the context is cancelled. Cancellation
// is a clean stop and returns nil.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting feed runner", "mode", r.mode)
	err := r.loop.Run(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = nil
	}
	r.logger.InfoContext(ctx, "feed runner stopped", "mode", r.mode)
	return err
}
