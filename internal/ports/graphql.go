package ports

import (
	"context"
	"encoding/json"
)

// GraphQLRequest is one operation sent to the upstream.
type GraphQLRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
	// Authorization is forwarded verbatim when set.
	Authorization string `json:"-"`
}

// GraphQLClient talks to the upstream CQRS/ES GraphQL API.
type GraphQLClient interface {
	// Execute runs a query or mutation and returns the data member of the response.
	Execute(ctx context.Context, req GraphQLRequest) (json.RawMessage, error)

	// Subscribe opens a subscription and calls onData for every payload until
	// ctx is done or the upstream closes the stream.
	Subscribe(ctx context.Context, req GraphQLRequest, onData func(json.RawMessage) error) error
}
