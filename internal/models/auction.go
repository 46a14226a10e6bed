package models

import "time"

type AuctionStatus string

const (
	AuctionOpen   AuctionStatus = "OPEN"
	AuctionClosed AuctionStatus = "CLOSED"
)

// Auction is one open offer of a schedule to the other groups. AuctionUUID is
// the cross-group idempotency key; shadow copies on non-owner groups share it.
type Auction struct {
	ID           int64         `json:"id"`
	AuctionUUID  string        `json:"auction_uuid"`
	ScheduleID   *int64        `json:"schedule_id,omitempty"`
	PropertyURL  string        `json:"property_url"`
	OwnerGroupID int32         `json:"owner_group_id"`
	MinPrice     int64         `json:"min_price"`
	Status       AuctionStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "PENDING"
	ProposalAccepted ProposalStatus = "ACCEPTED"
	ProposalRejected ProposalStatus = "REJECTED"
)

// ExchangeProposal is one group's bid on another group's auction, optionally
// offering a schedule of its own in exchange.
type ExchangeProposal struct {
	ID                 int64          `json:"id"`
	ProposalUUID       string         `json:"proposal_uuid"`
	AuctionUUID        string         `json:"auction_uuid"`
	FromGroupID        int32          `json:"from_group_id"`
	ToGroupID          int32          `json:"to_group_id"`
	OfferingScheduleID *int64         `json:"offering_schedule_id,omitempty"`
	Message            string         `json:"message,omitempty"`
	Status             ProposalStatus `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}
