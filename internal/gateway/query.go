package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/stacyai/kiosk-agent-go/internal/errors"
	"github.com/stacyai/kiosk-agent-go/internal/model"
)

// QueryGateway sends one user utterance to the remote answer service.
type QueryGateway interface {
	Ask(ctx context.Context, query, sessionID string) (*model.Answer, error)
}

type askRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

type QueryClient struct {
	baseURL string
	client  *http.Client
}

func NewQueryClient(baseURL string, timeout time.Duration) *QueryClient {
	return &QueryClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *QueryClient) Ask(ctx context.Context, query, sessionID string) (*model.Answer, error) {
	body, err := json.Marshal(askRequest{Query: query, SessionID: sessionID})
	if err != nil {
		return nil, apperrors.Protocol("ask", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Transport("ask", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("query gateway error")
		return nil, apperrors.Transport("ask", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().
			Int("status", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("query gateway failed")
		return nil, apperrors.Protocol("ask", fmt.Errorf("status %d", resp.StatusCode))
	}

	var answer model.Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, apperrors.Protocol("ask", err)
	}
	if answer.Text == "" {
		return nil, apperrors.Protocol("ask", fmt.Errorf("missing answer text"))
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("type", string(answer.Kind)).
		Dur("elapsed", elapsed).
		Msg("query answered")

	return &answer, nil
}
