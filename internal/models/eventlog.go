package models

import (
	"encoding/json"
	"time"
)

// EventLog is an append-only audit row for protocol-relevant messages.
type EventLog struct {
	ID               int64           `json:"id"`
	Type             string          `json:"type"`
	Payload          json.RawMessage `json:"payload"`
	RelatedRequestID string          `json:"related_request_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}
