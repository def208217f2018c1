package model

import "encoding/json"

// UserProfile is the identity returned by the pairing backend once the
// shopper confirms on their phone.
type UserProfile struct {
	ID     string `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Email  string `db:"email" json:"email,omitempty"`
	Member bool   `db:"member" json:"member"`
}

// UserProfileFromRaw decodes the free-form userData object the status
// endpoint returns. Unknown fields are ignored; an empty object is valid.
func UserProfileFromRaw(raw json.RawMessage) (*UserProfile, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var profile UserProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}
