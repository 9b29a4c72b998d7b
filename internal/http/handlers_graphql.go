package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/target/cqrs-monitor/internal/domain/access"
	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
)

const maxGraphQLBody = 1 << 20

// GraphQLProxyConfig configures the browser-facing GraphQL proxy.
type GraphQLProxyConfig struct {
	Endpoint       string
	HTTPClient     *http.Client
	Timeout        time.Duration
	ForwardAuth    bool
	AllowedOrigins []string
	Logger         *slog.Logger
}

// GraphQLProxy forwards queries and mutations to the upstream unchanged.
// Queries are open to every resolved role; mutations need writer.
type GraphQLProxy struct {
	endpoint       string
	client         *http.Client
	timeout        time.Duration
	forwardAuth    bool
	allowedOrigins []string
	mutationGate   access.Gate
	logger         *slog.Logger
}

// NewGraphQLProxy constructs a GraphQLProxy.
func NewGraphQLProxy(cfg GraphQLProxyConfig) *GraphQLProxy {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphQLProxy{
		endpoint:       cfg.Endpoint,
		client:         client,
		timeout:        timeout,
		forwardAuth:    cfg.ForwardAuth,
		allowedOrigins: cfg.AllowedOrigins,
		mutationGate:   access.Require(domainauth.RoleWriter),
		logger:         logger.With("component", "graphql_proxy"),
	}
}

// graphQLBody is the subset of a GraphQL-over-HTTP request the proxy inspects.
type graphQLBody struct {
	Query         string `json:"query"`
	OperationName string `json:"operationName"`
}

// ClassifyOperation parses a GraphQL document and returns the type of the
// operation that would execute.
func ClassifyOperation(query, operationName string) (ast.Operation, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		return "", fmt.Errorf("parse query: %w", err)
	}
	switch {
	case operationName != "":
		op := doc.Operations.ForName(operationName)
		if op == nil {
			return "", fmt.Errorf("operation %q not found in document", operationName)
		}
		return op.Operation, nil
	case len(doc.Operations) == 1:
		return doc.Operations[0].Operation, nil
	case len(doc.Operations) == 0:
		return "", errors.New("document contains no operations")
	default:
		return "", errors.New("operationName is required for documents with several operations")
	}
}

// ServeHTTP handles POST /api/graphql.
func (p *GraphQLProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.setCORSHeaders(w, r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxGraphQLBody))
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusRequestEntityTooLarge, ErrCode: "invalid_request", Err: err})
		return
	}

	var req graphQLBody
	if err := json.Unmarshal(body, &req); err != nil || strings.TrimSpace(req.Query) == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_request",
			Err:     errors.New("body must be a JSON object with a query"),
		})
		return
	}

	op, err := ClassifyOperation(req.Query, req.OperationName)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_query", Err: err})
		return
	}
	if op == ast.Subscription {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_query",
			Err:     errors.New("subscriptions are served over /api/stream"),
		})
		return
	}
	if op == ast.Mutation && !p.allowMutation(w, r) {
		return
	}

	p.forward(w, r, body)
}

func (p *GraphQLProxy) allowMutation(w http.ResponseWriter, r *http.Request) bool {
	res := ResolutionFromContext(r.Context())
	decision := p.mutationGate.Decide(res)
	switch {
	case decision.Allowed():
		return true
	case decision.Phase == access.PhaseLoading:
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "token_refresh_required",
			Err:     errors.New("role changed since sign-in; refresh the session token"),
		})
	case !res.Authenticated:
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "unauthenticated",
			Err:     errors.New("sign in to run mutations"),
		})
	default:
		WriteError(w, ErrorParams{
			Code:    http.StatusForbidden,
			ErrCode: "forbidden",
			Err:     errors.New("mutations require the writer role"),
		})
	}
	return false
}

func (p *GraphQLProxy) forward(w http.ResponseWriter, r *http.Request, body []byte) {
	ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
	defer cancel()

	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "misconfigured", Err: err})
		return
	}
	upstreamReq.Header.Set("Content-Type", "application/json")
	upstreamReq.Header.Set("Accept", "application/json")
	if auth := r.Header.Get("Authorization"); p.forwardAuth && auth != "" {
		upstreamReq.Header.Set("Authorization", auth)
	}

	resp, err := p.client.Do(upstreamReq)
	if err != nil {
		p.logger.WarnContext(r.Context(), "upstream request failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusBadGateway,
			ErrCode: "upstream_unavailable",
			Err:     errors.New("GraphQL upstream is unavailable"),
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		p.logger.WarnContext(r.Context(), "upstream returned an error status", "status", resp.StatusCode)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.DebugContext(r.Context(), "copy upstream response failed", "error", err)
	}
}

// Preflight answers CORS preflight requests.
// OPTIONS /api/graphql.
func (p *GraphQLProxy) Preflight(w http.ResponseWriter, r *http.Request) {
	p.setCORSHeaders(w, r)
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusOK)
}

// MethodNotAllowed rejects GET requests.
// GET /api/graphql.
func (p *GraphQLProxy) MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", "POST, OPTIONS")
	WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
}

func (p *GraphQLProxy) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	switch {
	case slices.Contains(p.allowedOrigins, "*"):
		w.Header().Set("Access-Control-Allow-Origin", "*")
	case origin != "" && slices.Contains(p.allowedOrigins, origin):
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	default:
		return
	}
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}
