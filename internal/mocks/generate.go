// Package mocks provides gomock doubles for the hexagonal ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	client := mocks.NewMockGraphQLClient(ctrl)
//	client.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(json.RawMessage(`{}`), nil)
//
// Stateful hand-written doubles for the identity and session ports live in
// internal/mocks/auth.
package mocks

// Generate mock for GraphQLClient interface from internal/ports package.
// Methods: Execute, Subscribe
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=graphql_client_mock.go github.com/target/cqrs-monitor/internal/ports GraphQLClient

// Generate mock for IdentityProvider interface from internal/ports package.
// Methods: VerifyToken, ListAccounts, GetAccount, SetCustomClaims
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=identity_provider_mock.go github.com/target/cqrs-monitor/internal/ports IdentityProvider
