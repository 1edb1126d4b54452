package payout_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/stakeledger/pkg/payout"
)

// TestClientSend tests transfer requests and response handling
func TestClientSend(t *testing.T) {
	t.Parallel()

	t.Run("it posts the transfer as json with the reference as idempotency key", func(t *testing.T) {
		t.Parallel()

		// Arrange
		received := make(chan *http.Request, 1)
		bodies := make(chan map[string]string, 1)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			received <- r
			bodies <- body
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		client := payout.NewClient(server.URL, payout.WithHTTPClient(server.Client()), payout.WithToken("secret"))

		// Act
		err := client.Send(context.Background(), payout.Request{Reference: "claim-1", Recipient: "tz1a", Amount: 18446744073709551615})

		// Assert
		require.NoError(t, err)
		r := <-received
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/transfers", r.URL.Path)
		assert.Equal(t, "claim-1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, map[string]string{
			"reference": "claim-1",
			"recipient": "tz1a",
			"amount":    "18446744073709551615",
		}, <-bodies)
	})

	t.Run("it treats a conflict as an already executed transfer", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server := serverReturning(http.StatusConflict, "duplicate reference")
		defer server.Close()
		client := payout.NewClient(server.URL, payout.WithHTTPClient(server.Client()))

		// Act
		err := client.Send(context.Background(), payout.Request{Reference: "claim-1", Recipient: "tz1a", Amount: 1})

		// Assert
		require.NoError(t, err)
	})

	t.Run("it reports rejected transfers", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server := serverReturning(http.StatusUnprocessableEntity, "unknown recipient")
		defer server.Close()
		client := payout.NewClient(server.URL, payout.WithHTTPClient(server.Client()))

		// Act
		err := client.Send(context.Background(), payout.Request{Reference: "claim-1", Recipient: "tz1a", Amount: 1})

		// Assert
		require.ErrorIs(t, err, payout.ErrRejected)
		assert.Contains(t, err.Error(), "unknown recipient")
	})

	t.Run("it reports rate limiting as unavailable", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server := serverReturning(http.StatusTooManyRequests, "slow down")
		defer server.Close()
		client := payout.NewClient(server.URL, payout.WithHTTPClient(server.Client()))

		// Act
		err := client.Send(context.Background(), payout.Request{Reference: "claim-1", Recipient: "tz1a", Amount: 1})

		// Assert
		require.ErrorIs(t, err, payout.ErrUnavailable)
	})

	t.Run("it reports server failures as unconfirmed", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server := serverReturning(http.StatusBadGateway, "upstream reset")
		defer server.Close()
		client := payout.NewClient(server.URL, payout.WithHTTPClient(server.Client()))

		// Act
		err := client.Send(context.Background(), payout.Request{Reference: "claim-1", Recipient: "tz1a", Amount: 1})

		// Assert
		require.ErrorIs(t, err, payout.ErrUnconfirmed)
		assert.NotErrorIs(t, err, payout.ErrUnavailable)
	})

	t.Run("it reports timeouts as unconfirmed", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server := serverStalling()
		defer server.Close()
		client := payout.NewClient(server.URL, payout.WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))

		// Act
		err := client.Send(context.Background(), payout.Request{Reference: "claim-1", Recipient: "tz1a", Amount: 1})

		// Assert
		require.ErrorIs(t, err, payout.ErrUnconfirmed)
	})

	t.Run("it does not send when the context is already done", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()
		client := payout.NewClient(server.URL, payout.WithHTTPClient(server.Client()))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// Act
		err := client.Send(ctx, payout.Request{Reference: "claim-1", Recipient: "tz1a", Amount: 1})

		// Assert
		require.ErrorIs(t, err, payout.ErrUnavailable)
		assert.Zero(t, requests.Load())
	})

	t.Run("it reports unreachable services as unavailable", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server := serverReturning(http.StatusOK, "")
		client := payout.NewClient(server.URL, payout.WithHTTPClient(server.Client()))
		server.Close()

		// Act
		err := client.Send(context.Background(), payout.Request{Reference: "claim-1", Recipient: "tz1a", Amount: 1})

		// Assert
		require.ErrorIs(t, err, payout.ErrUnavailable)
	})
}

// serverStalling creates a server that holds every request until the client gives up
func serverStalling() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusCreated)
	}))
}

// serverReturning creates a server that answers every request with the given status and message
func serverReturning(status int, message string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(message))
	}))
}
