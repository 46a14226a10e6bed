// Package broker is the durable connection to the shared marketplace broker.
// Delivery is at-least-once, unordered and possibly duplicated: every
// consumer on the other side of this package must be idempotent.
package broker

import (
	"encoding/json"
	"fmt"

	pkgerrors "github.com/DanteArenas/iic2173-backend-grupo-9/pkg/errors"
)

// Topic set shared by all groups. Kafka topic names cannot contain '/', so
// the conventional properties/... names are rendered with dots.
const (
	TopicInfo       = "properties.info"
	TopicValidation = "properties.validation"
	TopicRequests   = "properties.requests-1"
	TopicAuctions   = "properties.auctions"
)

type AuctionOperation string

const (
	OpOffer      AuctionOperation = "offer"
	OpProposal   AuctionOperation = "proposal"
	OpAcceptance AuctionOperation = "acceptance"
	OpRejection  AuctionOperation = "rejection"
)

// InfoMessage announces a new or repeated listing.
type InfoMessage struct {
	URL       string  `json:"url"`
	Timestamp string  `json:"timestamp"`
	Location  string  `json:"location"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
}

// RequestMessage broadcasts a purchase intent. RequestID is the idempotency
// key; a retried purchase republishes the identical RequestID.
type RequestMessage struct {
	RequestID string `json:"request_id"`
	GroupID   int32  `json:"group_id"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
	Origin    int    `json:"origin"`
	Operation string `json:"operation"`
}

// ValidationMessage broadcasts a resolved payment outcome. Never published
// for requests still in PENDING.
type ValidationMessage struct {
	GroupID     int32  `json:"group_id"`
	RequestID   string `json:"request_id"`
	BuyOrder    string `json:"buy_order"`
	Status      string `json:"status"`
	Reason      string `json:"reason"`
	AmountCLP   int64  `json:"amount_clp"`
	PropertyURL string `json:"property_url"`
	Timestamp   string `json:"timestamp"`
}

// AuctionMessage carries every negotiation operation. AuctionID and
// ProposalID are the cross-group idempotency keys; handlers key all effects
// on them, never on arrival order.
type AuctionMessage struct {
	AuctionID  string           `json:"auction_id"`
	ProposalID string           `json:"proposal_id"`
	URL        string           `json:"url"`
	Timestamp  string           `json:"timestamp"`
	Quantity   int              `json:"quantity"`
	GroupID    int32            `json:"group_id"`
	Operation  AuctionOperation `json:"operation"`
}

// ParseInfo validates an inbound listing payload at the boundary.
func ParseInfo(data []byte) (*InfoMessage, error) {
	var m InfoMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: malformed info payload: %v", pkgerrors.ErrValidation, err)
	}
	if m.URL == "" {
		return nil, fmt.Errorf("%w: info payload missing url", pkgerrors.ErrValidation)
	}
	return &m, nil
}

// ParseRequest validates an inbound purchase-intent payload.
func ParseRequest(data []byte) (*RequestMessage, error) {
	var m RequestMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: malformed request payload: %v", pkgerrors.ErrValidation, err)
	}
	if m.RequestID == "" || m.URL == "" {
		return nil, fmt.Errorf("%w: request payload missing request_id or url", pkgerrors.ErrValidation)
	}
	return &m, nil
}

// ParseValidation validates an inbound payment-outcome payload.
func ParseValidation(data []byte) (*ValidationMessage, error) {
	var m ValidationMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: malformed validation payload: %v", pkgerrors.ErrValidation, err)
	}
	if m.RequestID == "" {
		return nil, fmt.Errorf("%w: validation payload missing request_id", pkgerrors.ErrValidation)
	}
	return &m, nil
}

// ParseAuction validates an inbound negotiation payload and its operation
// tag. The operation discriminates the variant before dispatch into the
// coordinator.
func ParseAuction(data []byte) (*AuctionMessage, error) {
	var m AuctionMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: malformed auction payload: %v", pkgerrors.ErrValidation, err)
	}
	if m.AuctionID == "" {
		return nil, fmt.Errorf("%w: auction payload missing auction_id", pkgerrors.ErrValidation)
	}
	switch m.Operation {
	case OpOffer:
	case OpProposal, OpAcceptance, OpRejection:
		if m.ProposalID == "" {
			return nil, fmt.Errorf("%w: %s payload missing proposal_id", pkgerrors.ErrValidation, m.Operation)
		}
	default:
		return nil, fmt.Errorf("%w: unknown auction operation %q", pkgerrors.ErrValidation, m.Operation)
	}
	return &m, nil
}
