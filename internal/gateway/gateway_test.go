package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/stacyai/kiosk-agent-go/internal/errors"
	"github.com/stacyai/kiosk-agent-go/internal/model"
)

func TestGeneratePairing(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/generate-qr", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]string{
				"qrCodeData": "qr-payload",
				"sessionId":  "abc-123",
			})
		}))
		defer server.Close()

		grant, err := NewProvisioningClient(server.URL).GeneratePairing(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "qr-payload", grant.QRCodeData)
		assert.Equal(t, "abc-123", grant.SessionID)
	})

	t.Run("missing fields is a protocol error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"qrCodeData": "qr-payload"})
		}))
		defer server.Close()

		_, err := NewProvisioningClient(server.URL).GeneratePairing(context.Background())
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeProtocol))
	})

	t.Run("server error is a protocol error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := NewProvisioningClient(server.URL).GeneratePairing(context.Background())
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeProtocol))
	})

	t.Run("unreachable backend is a transport error", func(t *testing.T) {
		_, err := NewProvisioningClient("http://127.0.0.1:1").GeneratePairing(context.Background())
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTransport))
	})
}

func TestSessionStatus(t *testing.T) {
	t.Run("pending", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/session-status/abc-123", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]any{"authenticated": false})
		}))
		defer server.Close()

		status, err := NewProvisioningClient(server.URL).SessionStatus(context.Background(), "abc-123")
		require.NoError(t, err)
		assert.False(t, status.Authenticated)
	})

	t.Run("authenticated with identity", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"authenticated": true,
				"userData":      map[string]any{"id": "user123", "name": "Alex", "member": true},
			})
		}))
		defer server.Close()

		status, err := NewProvisioningClient(server.URL).SessionStatus(context.Background(), "abc-123")
		require.NoError(t, err)
		require.True(t, status.Authenticated)

		user, err := status.Identity()
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "Alex", user.Name)
		assert.True(t, user.Member)
	})

	t.Run("any non-200 means the session is gone", func(t *testing.T) {
		for _, code := range []int{http.StatusNotFound, http.StatusGone, http.StatusInternalServerError} {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			}))

			_, err := NewProvisioningClient(server.URL).SessionStatus(context.Background(), "abc-123")
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionExpired), "status %d", code)
			server.Close()
		}
	})
}

func TestQueryClientAsk(t *testing.T) {
	t.Run("products answer", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/ask", r.URL.Path)

			var req askRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "find me cheap headphones", req.Query)
			assert.Equal(t, "device-session-1", req.SessionID)

			json.NewEncoder(w).Encode(map[string]any{
				"answer": "I found these for you.",
				"type":   "products",
				"products": []map[string]any{
					{
						"name":           "Noise-Cancelling Headphones",
						"imageUrl":       "https://example.com/h.jpg",
						"originalPrice":  149.99,
						"aisle_location": "Aisle 16",
					},
				},
			})
		}))
		defer server.Close()

		answer, err := NewQueryClient(server.URL, time.Second).Ask(context.Background(), "find me cheap headphones", "device-session-1")
		require.NoError(t, err)
		assert.Equal(t, "I found these for you.", answer.Text)
		assert.Equal(t, model.AnswerKindOfferList, answer.Kind)
		require.Len(t, answer.Offers, 1)
		assert.Equal(t, "Aisle 16", answer.Offers[0].AisleLocation)
	})

	t.Run("empty answer text is a protocol error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"answer": ""})
		}))
		defer server.Close()

		_, err := NewQueryClient(server.URL, time.Second).Ask(context.Background(), "anything", "s1")
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeProtocol))
	})

	t.Run("server failure is a protocol error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := NewQueryClient(server.URL, time.Second).Ask(context.Background(), "anything", "s1")
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeProtocol))
	})

	t.Run("timeout is a transport error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		_, err := NewQueryClient(server.URL, 20*time.Millisecond).Ask(context.Background(), "anything", "s1")
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTransport))
	})
}
