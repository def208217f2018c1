package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stacyai/kiosk-agent-go/internal/config"
	apperrors "github.com/stacyai/kiosk-agent-go/internal/errors"
	"github.com/stacyai/kiosk-agent-go/internal/model"
)

// PairingGrant is the backend's reply to a pairing-code request.
type PairingGrant struct {
	QRCodeData string `json:"qrCodeData"`
	SessionID  string `json:"sessionId"`
}

// SessionStatus is one poll result for a pending pairing.
type SessionStatus struct {
	Authenticated bool            `json:"authenticated"`
	UserData      json.RawMessage `json:"userData,omitempty"`
}

// Identity decodes the userData payload, if any.
func (s *SessionStatus) Identity() (*model.UserProfile, error) {
	return model.UserProfileFromRaw(s.UserData)
}

// Provisioning issues pairing codes and reports their confirmation status.
type Provisioning interface {
	GeneratePairing(ctx context.Context) (*PairingGrant, error)
	SessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error)
}

type ProvisioningClient struct {
	baseURL string
	client  *http.Client
}

func NewProvisioningClient(baseURL string) *ProvisioningClient {
	return &ProvisioningClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: config.ProvisionTimeout,
		},
	}
}

func (c *ProvisioningClient) GeneratePairing(ctx context.Context) (*PairingGrant, error) {
	endpoint := c.baseURL + "/generate-qr"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, apperrors.Transport("generate pairing", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("pairing code request error")
		return nil, apperrors.Transport("generate pairing", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("pairing code request failed")
		return nil, apperrors.Protocol("generate pairing", fmt.Errorf("status %d", resp.StatusCode))
	}

	var grant PairingGrant
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return nil, apperrors.Protocol("generate pairing", err)
	}
	if grant.SessionID == "" || grant.QRCodeData == "" {
		return nil, apperrors.Protocol("generate pairing", fmt.Errorf("missing qrCodeData or sessionId"))
	}

	log.Info().
		Str("sessionId", grant.SessionID).
		Dur("elapsed", elapsed).
		Msg("pairing code issued")

	return &grant, nil
}

func (c *ProvisioningClient) SessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	endpoint := c.baseURL + "/session-status/" + url.PathEscape(sessionID)

	ctx, cancel := context.WithTimeout(ctx, config.PollTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.Transport("session status", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.Transport("session status", err)
	}
	defer resp.Body.Close()

	// Any non-200 means the backend no longer recognizes the session.
	if resp.StatusCode != http.StatusOK {
		log.Warn().
			Str("sessionId", sessionID).
			Int("status", resp.StatusCode).
			Msg("session status poll rejected")
		return nil, apperrors.SessionExpired()
	}

	var status SessionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, apperrors.Protocol("session status", err)
	}

	return &status, nil
}
