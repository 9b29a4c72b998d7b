// Package graphql adapts the upstream CQRS/ES GraphQL API to ports.GraphQLClient.
package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	gql "github.com/hasura/go-graphql-client"

	apperrors "github.com/target/cqrs-monitor/internal/errors"
	"github.com/target/cqrs-monitor/internal/ports"
)

// Config holds configuration for the upstream client.
type Config struct {
	Endpoint   string
	WSEndpoint string
	Timeout    time.Duration
	HTTPClient *http.Client // Optional, defaults to a client with Timeout
	Logger     *slog.Logger
}

// Client implements ports.GraphQLClient.
type Client struct {
	endpoint   string
	wsEndpoint string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClient creates a new upstream client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("graphql endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	wsEndpoint := cfg.WSEndpoint
	if wsEndpoint == "" {
		wsEndpoint = WebSocketURL(cfg.Endpoint)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		wsEndpoint: wsEndpoint,
		httpClient: httpClient,
		timeout:    timeout,
		logger:     logger.With("component", "graphql_client"),
	}, nil
}

// WebSocketURL derives the subscription endpoint from an HTTP endpoint.
func WebSocketURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	default:
		return endpoint
	}
}

// Execute runs a query or mutation. Every failure is reported as upstream_unavailable.
func (c *Client) Execute(ctx context.Context, req ports.GraphQLRequest) (json.RawMessage, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, apperrors.ValidationField("query", "query is required")
	}

	client := gql.NewClient(c.endpoint, c.httpClient)
	if req.Authorization != "" {
		auth := req.Authorization
		client = client.WithRequestModifier(func(r *http.Request) {
			r.Header.Set("Authorization", auth)
		})
	}

	var opts []gql.Option
	if req.OperationName != "" {
		opts = append(opts, gql.OperationName(req.OperationName))
	}

	data, err := client.ExecRaw(ctx, req.Query, req.Variables, opts...)
	if err != nil {
		return nil, upstreamError(err)
	}
	return json.RawMessage(data), nil
}

// Subscribe opens a graphql-transport-ws subscription on its own connection
// and blocks until ctx is done, the upstream completes, or onData fails.
func (c *Client) Subscribe(ctx context.Context, req ports.GraphQLRequest, onData func(json.RawMessage) error) error {
	if strings.TrimSpace(req.Query) == "" {
		return apperrors.ValidationField("query", "query is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancel()
	}

	sc := gql.NewSubscriptionClient(c.wsEndpoint).
		WithProtocol(gql.GraphQLWS).
		WithRetryTimeout(c.timeout).
		WithSyncMode(true).
		OnError(func(_ *gql.SubscriptionClient, err error) error {
			fail(upstreamError(err))
			return err
		})
	if req.Authorization != "" {
		sc = sc.WithConnectionParams(map[string]any{
			"headers": map[string]string{"Authorization": req.Authorization},
		})
	}
	defer func() {
		if closeErr := sc.Close(); closeErr != nil {
			c.logger.DebugContext(ctx, "close subscription client", "error", closeErr)
		}
	}()

	_, err := sc.SubscribeRaw(req.Query, req.Variables, func(message []byte, err error) error {
		if err != nil {
			fail(upstreamError(err))
			return gql.ErrSubscriptionStopped
		}
		if cbErr := onData(json.RawMessage(message)); cbErr != nil {
			fail(cbErr)
			return gql.ErrSubscriptionStopped
		}
		return nil
	})
	if err != nil {
		return upstreamError(err)
	}

	done := make(chan error, 1)
	go func() { done <- sc.Run() }()

	select {
	case <-ctx.Done():
	case runErr := <-done:
		if runErr != nil {
			fail(upstreamError(runErr))
		}
	}

	mu.Lock()
	defer mu.Unlock()
	return firstErr
}

func upstreamError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, "upstream request canceled")
	}
	var gqlErrs gql.Errors
	if errors.As(err, &gqlErrs) && len(gqlErrs) > 0 {
		return apperrors.UpstreamUnavailable(err, fmt.Sprintf("upstream returned errors: %s", gqlErrs[0].Message))
	}
	return apperrors.UpstreamUnavailable(err, "upstream GraphQL service unavailable")
}
