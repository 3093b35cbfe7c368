package models

import (
	"encoding/json"
	"time"
)

type ProcessingStatus string

const (
	StatusSuccess ProcessingStatus = "success"
	StatusFailed  ProcessingStatus = "failed"
)

// WebhookEvent is one stored delivery; rows are never updated after insert
type WebhookEvent struct {
	ID           int64            `json:"id" db:"id"`
	DeliveryID   string           `json:"delivery_id" db:"delivery_id"`
	Repository   string           `json:"repository" db:"repository"`
	EventType    string           `json:"event_type" db:"event_type"`
	Action       string           `json:"action,omitempty" db:"action"`
	PRNumber     *int             `json:"pr_number,omitempty" db:"pr_number"`
	Sender       string           `json:"sender,omitempty" db:"sender"`
	PRAuthor     string           `json:"pr_author,omitempty" db:"pr_author"`
	LabelName    string           `json:"label_name,omitempty" db:"label_name"`
	ReviewerTeam string           `json:"reviewer_team,omitempty" db:"reviewer_team"`
	PRTeam       string           `json:"pr_team,omitempty" db:"pr_team"`
	IsCrossTeam  bool             `json:"is_cross_team" db:"is_cross_team"`
	ReviewState  string           `json:"review_state,omitempty" db:"review_state"`
	Payload      json.RawMessage  `json:"payload,omitempty" db:"payload"`
	Status       ProcessingStatus `json:"status" db:"status"`
	ErrorMessage string           `json:"error_message,omitempty" db:"error_message"`
	DurationMs   int64            `json:"duration_ms" db:"duration_ms"`
	ReceivedAt   time.Time        `json:"received_at" db:"received_at"`
}

// WebhookFilter narrows webhook queries; zero values mean "no restriction"
type WebhookFilter struct {
	Repositories  []string
	EventTypes    []string
	Status        string
	Start         *time.Time
	End           *time.Time
	PRNumber      *int
	CrossTeamOnly bool
}
