package errors

import (
	"errors"
	"fmt"
)

// Category sentinels. Every domain error wraps exactly one of these so the
// HTTP layer and broker handlers can branch with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrUpstream   = errors.New("upstream unavailable")
	ErrInternal   = errors.New("internal error")
)

var (
	ErrPropertyNotFound   = fmt.Errorf("%w: property", ErrNotFound)
	ErrRequestNotFound    = fmt.Errorf("%w: purchase request", ErrNotFound)
	ErrScheduleNotFound   = fmt.Errorf("%w: schedule", ErrNotFound)
	ErrAuctionNotFound    = fmt.Errorf("%w: auction", ErrNotFound)
	ErrProposalNotFound   = fmt.Errorf("%w: exchange proposal", ErrNotFound)
	ErrNoVisitsAvailable  = fmt.Errorf("%w: no visits available", ErrConflict)
	ErrRetryNotAllowed    = fmt.Errorf("%w: request is not in a failed state", ErrConflict)
	ErrRetryAlreadyUsed   = fmt.Errorf("%w: retry already used", ErrConflict)
	ErrAuctionNotOpen     = fmt.Errorf("%w: auction is not open", ErrConflict)
	ErrProposalResolved   = fmt.Errorf("%w: proposal already resolved", ErrConflict)
	ErrScheduleNotForSale = fmt.Errorf("%w: schedule not available", ErrConflict)
	ErrNotRequestOwner    = fmt.Errorf("%w: you do not own this request", ErrForbidden)
	ErrNotScheduleOwner   = fmt.Errorf("%w: schedule owned by another group", ErrForbidden)
	ErrNotAuctionOwner    = fmt.Errorf("%w: auction owned by another group", ErrForbidden)
	ErrOwnAuction         = fmt.Errorf("%w: cannot propose to your own auction", ErrValidation)
	ErrUnknownCurrency    = fmt.Errorf("%w: unknown currency", ErrValidation)
)
