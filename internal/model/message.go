package model

import (
	"sync"
	"time"
)

// Offer is a structured product recommendation returned by the query
// gateway. Field names follow the backend wire format.
type Offer struct {
	Name            string   `db:"name" json:"name"`
	ImageURL        string   `db:"image_url" json:"imageUrl"`
	OriginalPrice   float64  `db:"original_price" json:"originalPrice"`
	DiscountedPrice *float64 `db:"discounted_price" json:"discountedPrice,omitempty"`
	AisleLocation   string   `db:"aisle_location" json:"aisle_location"`
}

// Answer is the decoded response of the query gateway for one turn.
type Answer struct {
	Text   string     `json:"answer"`
	Kind   AnswerKind `json:"type,omitempty"`
	Offer  *Offer     `json:"product,omitempty"`
	Offers []Offer    `json:"products,omitempty"`
}

// Message is one conversational turn. Messages are immutable once created,
// append-only, and strictly ordered by ID.
type Message struct {
	ID        int64      `json:"id"`
	Sender    Sender     `json:"sender"`
	Text      string     `json:"text"`
	Kind      AnswerKind `json:"type,omitempty"`
	Offer     *Offer     `json:"product,omitempty"`
	Offers    []Offer    `json:"products,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

var (
	idMu   sync.Mutex
	lastID int64
)

// NextMessageID returns a unique, monotonically increasing, time-ordered
// identifier. Two messages created within the same millisecond still get
// distinct, ordered IDs.
func NextMessageID() int64 {
	idMu.Lock()
	defer idMu.Unlock()
	id := time.Now().UnixMilli()
	if id <= lastID {
		id = lastID + 1
	}
	lastID = id
	return id
}

// NewUserMessage builds a plain-text user turn.
func NewUserMessage(text string) Message {
	return Message{
		ID:        NextMessageID(),
		Sender:    SenderUser,
		Text:      text,
		Kind:      AnswerKindText,
		CreatedAt: time.Now(),
	}
}

// NewAssistantMessage builds the assistant turn for a gateway answer.
func NewAssistantMessage(answer Answer) Message {
	kind := answer.Kind
	if kind == "" {
		kind = AnswerKindText
	}
	return Message{
		ID:        NextMessageID(),
		Sender:    SenderAssistant,
		Text:      answer.Text,
		Kind:      kind,
		Offer:     answer.Offer,
		Offers:    answer.Offers,
		CreatedAt: time.Now(),
	}
}
