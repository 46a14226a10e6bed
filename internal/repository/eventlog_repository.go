package repository

import "context"

// EventLogRepository is the append-only audit trail. Callers treat failures
// as best-effort: logged, never propagated, never gating correctness.
type EventLogRepository interface {
	Append(ctx context.Context, eventType string, payload []byte, relatedRequestID string) error
}
