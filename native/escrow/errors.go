package escrow

import (
	"errors"
	"strings"
)

var (
	errNilState = errors.New("escrow engine: state not configured")

	// ErrUnauthorized marks a caller lacking the role an operation demands.
	ErrUnauthorized = errors.New("escrow: unauthorized caller")
	// ErrInvalidAmount marks a numeric argument violating a stated
	// constraint, e.g. an escrow amount above the purchase price.
	ErrInvalidAmount = errors.New("escrow: invalid amount")
	// ErrUnknownListing marks an operation referencing a listing id that
	// was never created.
	ErrUnknownListing = errors.New("escrow: unknown listing")
	// ErrAlreadyListed marks an attempt to relist a deed whose listing is
	// still open. Finalized or cancelled records do not block a new listing.
	ErrAlreadyListed = errors.New("escrow: listing already exists")
	// ErrListingClosed marks a workflow transition attempted against a
	// finalized or cancelled listing.
	ErrListingClosed = errors.New("escrow: listing closed")
	// ErrInsufficientFunds marks a deposit exceeding the caller's balance.
	ErrInsufficientFunds = errors.New("escrow: insufficient funds")
)

// Names of the finalize requirements as reported by PreconditionError.
const (
	CondInspectionPassed = "inspection passed"
	CondBuyerApproved    = "buyer approved"
	CondSellerApproved   = "seller approved"
	CondLenderApproved   = "lender approved"
	CondFullyFunded      = "deposited balance covers purchase price"
)

// PreconditionError reports every finalize requirement that was unmet when the
// sale was attempted. The failed call leaves the listing untouched.
type PreconditionError struct {
	Unmet []string
}

func (e *PreconditionError) Error() string {
	if e == nil || len(e.Unmet) == 0 {
		return "escrow: preconditions not met"
	}
	return "escrow: preconditions not met: " + strings.Join(e.Unmet, ", ")
}

// IsPrecondition reports whether err is a PreconditionError and returns it.
func IsPrecondition(err error) (*PreconditionError, bool) {
	var pe *PreconditionError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
