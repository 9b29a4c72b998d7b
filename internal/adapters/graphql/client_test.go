package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/cqrs-monitor/internal/errors"
	"github.com/target/cqrs-monitor/internal/ports"
)

var _ ports.GraphQLClient = (*Client)(nil)

func TestWebSocketURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:4000/api/graphql", WebSocketURL("http://localhost:4000/api/graphql"))
	assert.Equal(t, "wss://api.example.com/graphql", WebSocketURL("https://api.example.com/graphql"))
	assert.Equal(t, "ws://already", WebSocketURL("ws://already"))
}

func TestExecute(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"dashboardStats":{"totalEvents":42}}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	data, err := c.Execute(context.Background(), ports.GraphQLRequest{
		Query:         "query Stats { dashboardStats { totalEvents } }",
		Variables:     map[string]any{"limit": 5},
		OperationName: "Stats",
		Authorization: "Bearer tok",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"dashboardStats":{"totalEvents":42}}`, string(data))
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Contains(t, gotBody["query"], "dashboardStats")
	assert.Equal(t, "Stats", gotBody["operationName"])
}

func TestExecuteUpstreamFailures(t *testing.T) {
	t.Run("graphql errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"errors":[{"message":"boom"}]}`))
		}))
		defer srv.Close()

		c, err := NewClient(Config{Endpoint: srv.URL})
		require.NoError(t, err)
		_, err = c.Execute(context.Background(), ports.GraphQLRequest{Query: "{ health { status } }"})
		assert.True(t, apperrors.IsUpstreamUnavailable(err), "got %v", err)
	})

	t.Run("server down", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		c, err := NewClient(Config{Endpoint: url, Timeout: time.Second})
		require.NoError(t, err)
		_, err = c.Execute(context.Background(), ports.GraphQLRequest{Query: "{ health { status } }"})
		assert.True(t, apperrors.IsUpstreamUnavailable(err), "got %v", err)
	})

	t.Run("empty query", func(t *testing.T) {
		c, err := NewClient(Config{Endpoint: "http://unused"})
		require.NoError(t, err)
		_, err = c.Execute(context.Background(), ports.GraphQLRequest{})
		assert.True(t, apperrors.IsValidation(err))
	})
}

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// newTransportWSServer speaks just enough graphql-transport-ws to push the
// given payloads to the first subscription.
func newTransportWSServer(t *testing.T, payloads []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		Subprotocols: []string{"graphql-transport-ws"},
		CheckOrigin:  func(*http.Request) bool { return true },
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg wsMessage
			if readErr := conn.ReadJSON(&msg); readErr != nil {
				return
			}
			switch msg.Type {
			case "connection_init":
				_ = conn.WriteJSON(wsMessage{Type: "connection_ack"})
			case "ping":
				_ = conn.WriteJSON(wsMessage{Type: "pong"})
			case "subscribe":
				for _, p := range payloads {
					_ = conn.WriteJSON(wsMessage{ID: msg.ID, Type: "next", Payload: json.RawMessage(`{"data":` + p + `}`)})
				}
			}
		}
	}))
}

func TestSubscribe(t *testing.T) {
	srv := newTransportWSServer(t, []string{
		`{"eventStream":{"id":"e1"}}`,
		`{"eventStream":{"id":"e2"}}`,
	})
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c.wsEndpoint, "ws://"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errEnough := errors.New("enough")
	var got []string
	err = c.Subscribe(ctx, ports.GraphQLRequest{Query: "subscription { eventStream { id } }"}, func(msg json.RawMessage) error {
		got = append(got, string(msg))
		if len(got) == 2 {
			return errEnough
		}
		return nil
	})
	require.ErrorIs(t, err, errEnough)
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"eventStream":{"id":"e1"}}`, got[0])
	assert.JSONEq(t, `{"eventStream":{"id":"e2"}}`, got[1])
}

func TestSubscribeStopsWithContext(t *testing.T) {
	srv := newTransportWSServer(t, nil)
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err = c.Subscribe(ctx, ports.GraphQLRequest{Query: "subscription { sagaUpdates { id } }"}, func(json.RawMessage) error {
		return nil
	})
	assert.NoError(t, err)
}
