package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"homestead/core/types"
)

const (
	EventTypeListed     = "listing.created"
	EventTypeDeposit    = "listing.deposit"
	EventTypeInspection = "listing.inspection"
	EventTypeApproved   = "listing.approved"
	EventTypeFinalized  = "listing.finalized"
	EventTypeCancelled  = "listing.cancelled"
)

// NewListedEvent returns the canonical event payload for a newly created
// listing.
func NewListedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeListed, l, nil)
}

// NewDepositEvent returns the event payload emitted when funds are credited
// toward a listing.
func NewDepositEvent(l *Listing, from [20]byte, amount *big.Int) *types.Event {
	return newListingEvent(EventTypeDeposit, l, map[string]string{
		"from":   hex.EncodeToString(from[:]),
		"amount": cloneBigInt(amount).String(),
	})
}

// NewInspectionEvent returns the event payload emitted when the inspector
// records an inspection outcome.
func NewInspectionEvent(l *Listing, passed bool) *types.Event {
	return newListingEvent(EventTypeInspection, l, map[string]string{
		"passed": strconv.FormatBool(passed),
	})
}

// NewApprovedEvent returns the event payload emitted the first time an account
// signs off on a listing.
func NewApprovedEvent(l *Listing, account [20]byte) *types.Event {
	return newListingEvent(EventTypeApproved, l, map[string]string{
		"account": hex.EncodeToString(account[:]),
	})
}

// NewFinalizedEvent returns the event payload emitted when a sale settles.
func NewFinalizedEvent(l *Listing, payout *big.Int) *types.Event {
	return newListingEvent(EventTypeFinalized, l, map[string]string{
		"payout": cloneBigInt(payout).String(),
	})
}

// NewCancelledEvent returns the event payload emitted when a listing is
// unwound and its contributions refunded.
func NewCancelledEvent(l *Listing, caller [20]byte, refunded *big.Int) *types.Event {
	return newListingEvent(EventTypeCancelled, l, map[string]string{
		"caller":   hex.EncodeToString(caller[:]),
		"refunded": cloneBigInt(refunded).String(),
	})
}

func newListingEvent(eventType string, l *Listing, extra map[string]string) *types.Event {
	attrs := make(map[string]string)
	if l != nil {
		attrs["id"] = strconv.FormatUint(l.ID, 10)
		attrs["seller"] = hex.EncodeToString(l.Seller[:])
		attrs["buyer"] = hex.EncodeToString(l.Buyer[:])
		attrs["purchasePrice"] = cloneBigInt(l.PurchasePrice).String()
		attrs["escrowAmount"] = cloneBigInt(l.EscrowAmount).String()
		attrs["status"] = l.Status.String()
	}
	for key, value := range extra {
		attrs[key] = value
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
