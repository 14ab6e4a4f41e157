package moderation

import (
	"context"
	"time"
)

// InfractionType names the category a detected infraction belongs to.
type InfractionType string

const (
	TypeEmail        InfractionType = "email"
	TypePhone        InfractionType = "phone"
	TypeSocial       InfractionType = "social"
	TypePayment      InfractionType = "payment"
	TypeExternalLink InfractionType = "external_link"

	// TypeSuspension is only produced by the suspension gate, never by the
	// classifier.
	TypeSuspension InfractionType = "suspension"
)

// Request is the payload of a single moderation call, received over HTTP
// or on the moderation.check NATS subject.
type Request struct {
	Content        string `json:"content"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId,omitempty"`
}

// Infraction is one detected violation inside a message.
type Infraction struct {
	Type        InfractionType `json:"type"`
	MatchedText string         `json:"matchedText"`
	Confidence  float64        `json:"confidence"`
	Context     string         `json:"context"`

	// Severity of the category that produced the match. Not part of the
	// response body; used for aggregation and persisted records.
	Severity Severity `json:"-"`
}

// Result is the moderation decision returned to the caller.
type Result struct {
	IsBlocked        bool         `json:"isBlocked"`
	Infractions      []Infraction `json:"infractions"`
	Severity         Severity     `json:"severity"`
	SuggestedMessage string       `json:"suggestedMessage,omitempty"`
}

// UserStrike is the per-user strike record owned by the strike store.
type UserStrike struct {
	StrikeCount     int
	LastStrikeAt    *time.Time
	SuspensionUntil *time.Time
}

// SuspendedAt reports whether the record carries a suspension that is still
// running at t.
func (u UserStrike) SuspendedAt(t time.Time) bool {
	return u.SuspensionUntil != nil && u.SuspensionUntil.After(t)
}

// DetectedPattern is the raw detail persisted alongside an infraction record.
type DetectedPattern struct {
	MatchedText string  `json:"matchedText"`
	Context     string  `json:"context"`
	Confidence  float64 `json:"confidence"`
}

// InfractionRecord is one row handed to the infraction recorder. Review
// status is left unset: records start out pending human review.
type InfractionRecord struct {
	UserID           string
	ConversationID   string
	MessageContent   string
	InfractionType   InfractionType
	DetectedPatterns DetectedPattern
	Severity         Severity
}

// FlaggedEvent is published after the enforcement writes of a blocked
// message so that admin tooling can pick it up in real time.
type FlaggedEvent struct {
	UserID         string           `json:"userId"`
	ConversationID string           `json:"conversationId,omitempty"`
	Severity       Severity         `json:"severity"`
	Types          []InfractionType `json:"types"`
	Ts             int64            `json:"ts"`
}

// StrikeStore reads and escalates user strike records.
// IncrementUserStrikes must be atomic: concurrent messages from the same
// user may increment at the same time.
type StrikeStore interface {
	GetUserStrike(ctx context.Context, userID string) (UserStrike, error)
	IncrementUserStrikes(ctx context.Context, userID string) error
}

// InfractionRecorder persists detected infractions.
type InfractionRecorder interface {
	RecordInfraction(ctx context.Context, rec InfractionRecord) error
}

// EventPublisher announces flagged messages. Optional.
type EventPublisher interface {
	PublishFlagged(evt FlaggedEvent) error
}
