package escrow

import (
	"fmt"
	"math/big"
	"time"

	"homestead/core/events"
	"homestead/core/types"
)

type engineState interface {
	ListingPut(*Listing) error
	ListingGet(id uint64) (*Listing, bool)
	VaultAddress() [20]byte
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	DeedOwner(id uint64) ([20]byte, bool)
	DeedSetOwner(id uint64, owner [20]byte) error
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine enforces the listing -> payment -> inspection -> approval -> finalize
// workflow against external state. The inspector and lender roles are fixed
// for the lifetime of the engine; the seller and buyer are recorded per
// listing at creation time.
//
// Every mutating operation validates fully before touching state, so a failed
// call leaves the ledger unchanged.
type Engine struct {
	state     engineState
	emitter   events.Emitter
	inspector [20]byte
	lender    [20]byte
	nowFn     func() int64
}

// NewEngine creates an escrow engine with the given fixed role accounts and a
// no-op emitter. Callers can override the emitter via SetEmitter.
func NewEngine(inspector, lender [20]byte) *Engine {
	return &Engine{
		emitter:   events.NoopEmitter{},
		inspector: inspector,
		lender:    lender,
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Inspector returns the fixed inspector role account.
func (e *Engine) Inspector() [20]byte { return e.inspector }

// Lender returns the fixed lender role account.
func (e *Engine) Lender() [20]byte { return e.lender }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func (e *Engine) loadListing(id uint64) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	listing, ok := e.state.ListingGet(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownListing, id)
	}
	return listing, nil
}

func (e *Engine) storeListing(listing *Listing) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.ListingPut(listing)
}

func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("%w: negative transfer", ErrInvalidAmount)
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return ErrInsufficientFunds
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

// ListProperty creates the listing for a deed the caller owns and moves
// custody of the deed into the engine vault. The deed identifier doubles as
// the listing identifier.
func (e *Engine) ListProperty(id uint64, caller, buyer [20]byte, purchasePrice, escrowAmount *big.Int) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	price := cloneBigInt(purchasePrice)
	if price.Sign() < 0 {
		return nil, fmt.Errorf("%w: purchase price must be non-negative", ErrInvalidAmount)
	}
	down := cloneBigInt(escrowAmount)
	if down.Sign() < 0 {
		return nil, fmt.Errorf("%w: escrow amount must be non-negative", ErrInvalidAmount)
	}
	if down.Cmp(price) > 0 {
		return nil, fmt.Errorf("%w: escrow amount exceeds purchase price", ErrInvalidAmount)
	}
	// A terminal record does not block the deed from going back on the
	// market; a new listing replaces it.
	if existing, ok := e.state.ListingGet(id); ok && existing.Open() {
		return nil, fmt.Errorf("%w: id %d", ErrAlreadyListed, id)
	}
	owner, ok := e.state.DeedOwner(id)
	if !ok {
		return nil, fmt.Errorf("%w: deed %d has no owner of record", ErrUnauthorized, id)
	}
	if owner != caller {
		return nil, fmt.Errorf("%w: caller does not own deed %d", ErrUnauthorized, id)
	}
	if err := e.state.DeedSetOwner(id, e.state.VaultAddress()); err != nil {
		return nil, err
	}
	listing := &Listing{
		ID:               id,
		Seller:           caller,
		Buyer:            buyer,
		PurchasePrice:    price,
		EscrowAmount:     down,
		Approvals:        make(map[[20]byte]bool),
		DepositedBalance: big.NewInt(0),
		Contributions:    make(map[[20]byte]*big.Int),
		CreatedAt:        e.now(),
		Status:           ListingOpen,
	}
	if err := e.storeListing(listing); err != nil {
		return nil, err
	}
	e.emit(NewListedEvent(listing))
	return listing.Clone(), nil
}

// DepositDownPayment moves amount from the caller to the engine vault and
// credits it toward the listing. Any account may contribute; contributions are
// tracked per account so a cancellation can unwind them.
func (e *Engine) DepositDownPayment(id uint64, caller [20]byte, amount *big.Int) error {
	listing, err := e.loadListing(id)
	if err != nil {
		return err
	}
	if !listing.Open() {
		return fmt.Errorf("%w: cannot deposit in status %s", ErrListingClosed, listing.Status)
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("%w: deposit must be positive", ErrInvalidAmount)
	}
	if err := e.transfer(caller, e.state.VaultAddress(), amt); err != nil {
		return err
	}
	listing.DepositedBalance = new(big.Int).Add(listing.DepositedBalance, amt)
	prior := cloneBigInt(listing.Contributions[caller])
	listing.Contributions[caller] = prior.Add(prior, amt)
	if err := e.storeListing(listing); err != nil {
		return err
	}
	e.emit(NewDepositEvent(listing, caller, amt))
	return nil
}

// UpdateInspectionStatus records the inspection outcome. Only the fixed
// inspector role may call it.
func (e *Engine) UpdateInspectionStatus(id uint64, caller [20]byte, passed bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != e.inspector {
		return fmt.Errorf("%w: only the inspector may update inspection status", ErrUnauthorized)
	}
	listing, err := e.loadListing(id)
	if err != nil {
		return err
	}
	if !listing.Open() {
		return fmt.Errorf("%w: cannot inspect in status %s", ErrListingClosed, listing.Status)
	}
	listing.InspectionPassed = passed
	if err := e.storeListing(listing); err != nil {
		return err
	}
	e.emit(NewInspectionEvent(listing, passed))
	return nil
}

// ApproveSale records the caller's sign-off. Any account may approve; only the
// buyer, seller and lender approvals gate finalization. The operation is
// idempotent and there is no unapprove transition.
func (e *Engine) ApproveSale(id uint64, caller [20]byte) error {
	listing, err := e.loadListing(id)
	if err != nil {
		return err
	}
	if !listing.Open() {
		return fmt.Errorf("%w: cannot approve in status %s", ErrListingClosed, listing.Status)
	}
	if listing.Approvals[caller] {
		return nil
	}
	listing.Approvals[caller] = true
	if err := e.storeListing(listing); err != nil {
		return err
	}
	e.emit(NewApprovedEvent(listing, caller))
	return nil
}

// FinalizeSale settles the listing: the full held balance moves to the seller
// and deed custody moves from the vault to the buyer. Only the recorded seller
// may finalize, and every precondition must hold; otherwise the call fails
// with a PreconditionError naming each unmet requirement. Finalizing an
// already finalized listing is a no-op.
func (e *Engine) FinalizeSale(id uint64, caller [20]byte) error {
	listing, err := e.loadListing(id)
	if err != nil {
		return err
	}
	if listing.Status == ListingFinalized {
		return nil
	}
	if listing.Status == ListingCancelled {
		return fmt.Errorf("%w: cannot finalize a cancelled listing", ErrListingClosed)
	}
	if caller != listing.Seller {
		return fmt.Errorf("%w: only the seller may finalize", ErrUnauthorized)
	}
	var unmet []string
	if !listing.InspectionPassed {
		unmet = append(unmet, CondInspectionPassed)
	}
	if !listing.ApprovedBy(listing.Buyer) {
		unmet = append(unmet, CondBuyerApproved)
	}
	if !listing.ApprovedBy(listing.Seller) {
		unmet = append(unmet, CondSellerApproved)
	}
	if !listing.ApprovedBy(e.lender) {
		unmet = append(unmet, CondLenderApproved)
	}
	if listing.DepositedBalance.Cmp(listing.PurchasePrice) < 0 {
		unmet = append(unmet, CondFullyFunded)
	}
	if len(unmet) > 0 {
		return &PreconditionError{Unmet: unmet}
	}
	payout := cloneBigInt(listing.DepositedBalance)
	settled := listing.Clone()
	settled.DepositedBalance = big.NewInt(0)
	settled.Contributions = make(map[[20]byte]*big.Int)
	settled.Status = ListingFinalized
	settled.ClosedAt = e.now()
	// Validate the settled record before funds or custody move so a store
	// rejection cannot strand partial state.
	if _, err := SanitizeListing(settled); err != nil {
		return err
	}
	if err := e.transfer(e.state.VaultAddress(), listing.Seller, payout); err != nil {
		return err
	}
	if err := e.state.DeedSetOwner(id, listing.Buyer); err != nil {
		return err
	}
	if err := e.storeListing(settled); err != nil {
		return err
	}
	e.emit(NewFinalizedEvent(settled, payout))
	return nil
}

// CancelListing unwinds an open listing: every recorded contribution is
// refunded to its contributor, deed custody returns to the seller and the
// listing becomes terminal. The buyer or the seller may cancel. Cancelling an
// already cancelled listing is a no-op.
func (e *Engine) CancelListing(id uint64, caller [20]byte) error {
	listing, err := e.loadListing(id)
	if err != nil {
		return err
	}
	if listing.Status == ListingCancelled {
		return nil
	}
	if listing.Status == ListingFinalized {
		return fmt.Errorf("%w: cannot cancel a finalized listing", ErrListingClosed)
	}
	if caller != listing.Buyer && caller != listing.Seller {
		return fmt.Errorf("%w: only the buyer or seller may cancel", ErrUnauthorized)
	}
	vault := e.state.VaultAddress()
	for contributor, amount := range listing.Contributions {
		if err := e.transfer(vault, contributor, amount); err != nil {
			return err
		}
	}
	if err := e.state.DeedSetOwner(id, listing.Seller); err != nil {
		return err
	}
	refunded := cloneBigInt(listing.DepositedBalance)
	listing.DepositedBalance = big.NewInt(0)
	listing.Contributions = make(map[[20]byte]*big.Int)
	listing.Status = ListingCancelled
	listing.ClosedAt = e.now()
	if err := e.storeListing(listing); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(listing, caller, refunded))
	return nil
}

// --- Query accessors ---

// GetListing returns a copy of the listing record.
func (e *Engine) GetListing(id uint64) (*Listing, error) {
	return e.loadListing(id)
}

// IsListed reports whether the listing exists and has not reached a terminal
// state.
func (e *Engine) IsListed(id uint64) (bool, error) {
	listing, err := e.loadListing(id)
	if err != nil {
		return false, err
	}
	return listing.Open(), nil
}

// PurchasePrice returns the listing's total sale price.
func (e *Engine) PurchasePrice(id uint64) (*big.Int, error) {
	listing, err := e.loadListing(id)
	if err != nil {
		return nil, err
	}
	return listing.PurchasePrice, nil
}

// EscrowAmount returns the required down payment for the listing.
func (e *Engine) EscrowAmount(id uint64) (*big.Int, error) {
	listing, err := e.loadListing(id)
	if err != nil {
		return nil, err
	}
	return listing.EscrowAmount, nil
}

// Buyer returns the designated counterparty account for the listing.
func (e *Engine) Buyer(id uint64) ([20]byte, error) {
	listing, err := e.loadListing(id)
	if err != nil {
		return [20]byte{}, err
	}
	return listing.Buyer, nil
}

// Seller returns the account that created the listing.
func (e *Engine) Seller(id uint64) ([20]byte, error) {
	listing, err := e.loadListing(id)
	if err != nil {
		return [20]byte{}, err
	}
	return listing.Seller, nil
}

// InspectionPassed reports the recorded inspection outcome.
func (e *Engine) InspectionPassed(id uint64) (bool, error) {
	listing, err := e.loadListing(id)
	if err != nil {
		return false, err
	}
	return listing.InspectionPassed, nil
}

// Approved reports whether the given account has signed off on the listing.
func (e *Engine) Approved(id uint64, account [20]byte) (bool, error) {
	listing, err := e.loadListing(id)
	if err != nil {
		return false, err
	}
	return listing.ApprovedBy(account), nil
}

// BuyerApproved reports whether the recorded buyer has signed off.
func (e *Engine) BuyerApproved(id uint64) (bool, error) {
	listing, err := e.loadListing(id)
	if err != nil {
		return false, err
	}
	return listing.ApprovedBy(listing.Buyer), nil
}

// SellerApproved reports whether the recorded seller has signed off.
func (e *Engine) SellerApproved(id uint64) (bool, error) {
	listing, err := e.loadListing(id)
	if err != nil {
		return false, err
	}
	return listing.ApprovedBy(listing.Seller), nil
}

// LenderApproved reports whether the fixed lender role has signed off.
func (e *Engine) LenderApproved(id uint64) (bool, error) {
	listing, err := e.loadListing(id)
	if err != nil {
		return false, err
	}
	return listing.ApprovedBy(e.lender), nil
}

// CurrentBalance returns the funds held toward the listing. Balances are
// scoped per listing, not engine-wide.
func (e *Engine) CurrentBalance(id uint64) (*big.Int, error) {
	listing, err := e.loadListing(id)
	if err != nil {
		return nil, err
	}
	return listing.DepositedBalance, nil
}
