package model

import "time"

// Session identifies one kiosk conversation. The ID is generated once per
// device session and survives agent restarts until the trip ends.
type Session struct {
	ID        string       `db:"id" json:"id"`
	User      *UserProfile `json:"user,omitempty"`
	StartedAt time.Time    `db:"started_at" json:"startedAt"`
	EndedAt   *time.Time   `db:"ended_at" json:"endedAt,omitempty"`
}

func (s *Session) Authenticated() bool {
	return s != nil && s.User != nil
}

// PairingRequest tracks one authentication attempt. Transitions are driven
// exclusively by poll responses and terminal states stick until the welcome
// screen is re-entered.
type PairingRequest struct {
	QRCodeData       string        `json:"qrCodeData"`
	BackendSessionID string        `json:"backendSessionId"`
	Status           PairingStatus `json:"status"`
	User             *UserProfile  `json:"user,omitempty"`
	Cause            string        `json:"cause,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
}

func (p *PairingRequest) Terminal() bool {
	switch p.Status {
	case PairingStatusAuthenticated, PairingStatusExpired, PairingStatusFailed:
		return true
	}
	return false
}
