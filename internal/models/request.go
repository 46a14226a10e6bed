package models

import "time"

type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestAccepted RequestStatus = "ACCEPTED"
	RequestRejected RequestStatus = "REJECTED"
	RequestError    RequestStatus = "ERROR"
	RequestOK       RequestStatus = "OK"
)

// Request is one purchase ledger entry. RequestID is the idempotency key for
// everything downstream: the broker payloads, the retry path and the
// validation broadcast all reuse it unchanged.
type Request struct {
	ID           int64         `json:"id"`
	RequestID    string        `json:"request_id"`
	BuyOrder     string        `json:"buy_order"`
	UserID       int64         `json:"user_id"`
	PropertyURL  string        `json:"property_url"`
	ScheduleID   *int64        `json:"schedule_id,omitempty"`
	AmountCLP    int64         `json:"amount_clp"`
	Status       RequestStatus `json:"status"`
	Reason       string        `json:"reason"`
	RetryUsed    bool          `json:"retry_used"`
	DepositToken string        `json:"deposit_token"`
	InvoiceURL   string        `json:"invoice_url,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Terminal reports whether the status may no longer change, except through
// the one-shot retry path (which only applies to ERROR and REJECTED).
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestAccepted, RequestRejected, RequestError, RequestOK:
		return true
	}
	return false
}

// Retryable reports whether the single manual retry is permitted from this
// status.
func (s RequestStatus) Retryable() bool {
	return s == RequestError || s == RequestRejected
}
