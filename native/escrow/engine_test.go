package escrow

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"homestead/core/events"
	"homestead/core/types"
)

type mockState struct {
	listings map[uint64]*Listing
	accounts map[[20]byte]*types.Account
	deeds    map[uint64][20]byte
	vault    [20]byte
}

func newMockState() *mockState {
	return &mockState{
		listings: make(map[uint64]*Listing),
		accounts: make(map[[20]byte]*types.Account),
		deeds:    make(map[uint64][20]byte),
		vault:    newTestAddress(0xAA),
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func (m *mockState) ListingPut(l *Listing) error {
	sanitized, err := SanitizeListing(l)
	if err != nil {
		return err
	}
	m.listings[sanitized.ID] = sanitized
	return nil
}

func (m *mockState) ListingGet(id uint64) (*Listing, bool) {
	listing, ok := m.listings[id]
	if !ok {
		return nil, false
	}
	return listing.Clone(), true
}

func (m *mockState) VaultAddress() [20]byte { return m.vault }

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) != 20 {
		return nil, fmt.Errorf("unexpected address length %d", len(addr))
	}
	var key [20]byte
	copy(key[:], addr)
	acc, ok := m.accounts[key]
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	return acc.Clone(), nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) != 20 {
		return fmt.Errorf("unexpected address length %d", len(addr))
	}
	var key [20]byte
	copy(key[:], addr)
	m.accounts[key] = account.Clone()
	return nil
}

func (m *mockState) DeedOwner(id uint64) ([20]byte, bool) {
	owner, ok := m.deeds[id]
	return owner, ok
}

func (m *mockState) DeedSetOwner(id uint64, owner [20]byte) error {
	m.deeds[id] = owner
	return nil
}

func (m *mockState) setBalance(addr [20]byte, amount int64) {
	m.accounts[addr] = &types.Account{Balance: big.NewInt(amount)}
}

func (m *mockState) balance(t *testing.T, addr [20]byte) *big.Int {
	t.Helper()
	acc, err := m.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return acc.Balance
}

var (
	seller    = newTestAddress(0x01)
	buyer     = newTestAddress(0x02)
	inspector = newTestAddress(0x03)
	lender    = newTestAddress(0x04)
	stranger  = newTestAddress(0x05)
)

func newTestEngine(t *testing.T) (*Engine, *mockState, *events.Recorder) {
	t.Helper()
	state := newMockState()
	recorder := events.NewRecorder(0)
	engine := NewEngine(inspector, lender)
	engine.SetState(state)
	engine.SetEmitter(recorder)
	engine.SetNowFunc(func() int64 { return 1700000000 })
	return engine, state, recorder
}

func mustList(t *testing.T, engine *Engine, state *mockState, id uint64, price, down int64) *Listing {
	t.Helper()
	state.deeds[id] = seller
	listing, err := engine.ListProperty(id, seller, buyer, big.NewInt(price), big.NewInt(down))
	if err != nil {
		t.Fatalf("list property: %v", err)
	}
	return listing
}

func eventTypes(recorder *events.Recorder) []string {
	recorded := recorder.Events()
	out := make([]string, 0, len(recorded))
	for _, evt := range recorded {
		out = append(out, evt.EventType())
	}
	return out
}

func countEvents(recorder *events.Recorder, eventType string) int {
	count := 0
	for _, evt := range recorder.Events() {
		if evt.EventType() == eventType {
			count++
		}
	}
	return count
}

func TestListPropertyRoundTrip(t *testing.T) {
	engine, state, recorder := newTestEngine(t)

	listing := mustList(t, engine, state, 1, 10, 1)
	if listing.ID != 1 {
		t.Fatalf("expected listing id 1, got %d", listing.ID)
	}
	if listing.Seller != seller || listing.Buyer != buyer {
		t.Fatalf("unexpected parties on listing")
	}
	if listing.Status != ListingOpen {
		t.Fatalf("expected open status, got %s", listing.Status)
	}

	if owner := state.deeds[1]; owner != state.vault {
		t.Fatalf("expected deed custody with vault, got %x", owner)
	}

	stored, err := engine.GetListing(1)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if stored.PurchasePrice.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected price 10, got %s", stored.PurchasePrice)
	}
	if stored.EscrowAmount.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected escrow 1, got %s", stored.EscrowAmount)
	}
	if stored.DepositedBalance.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", stored.DepositedBalance)
	}
	if stored.InspectionPassed {
		t.Fatalf("expected inspection to start unset")
	}

	listed, err := engine.IsListed(1)
	if err != nil || !listed {
		t.Fatalf("expected listing to be open, got %v %v", listed, err)
	}
	price, err := engine.PurchasePrice(1)
	if err != nil || price.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unexpected purchase price %s %v", price, err)
	}
	gotBuyer, err := engine.Buyer(1)
	if err != nil || gotBuyer != buyer {
		t.Fatalf("unexpected buyer %x %v", gotBuyer, err)
	}
	gotSeller, err := engine.Seller(1)
	if err != nil || gotSeller != seller {
		t.Fatalf("unexpected seller %x %v", gotSeller, err)
	}

	if got := eventTypes(recorder); len(got) != 1 || got[0] != EventTypeListed {
		t.Fatalf("expected single %s event, got %v", EventTypeListed, got)
	}
}

func TestListPropertyValidation(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	state.deeds[1] = seller

	if _, err := engine.ListProperty(1, seller, buyer, big.NewInt(10), big.NewInt(11)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for escrow above price, got %v", err)
	}
	if _, err := engine.ListProperty(1, seller, buyer, big.NewInt(-1), big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative price, got %v", err)
	}
	if _, ok := state.listings[1]; ok {
		t.Fatalf("failed listing attempts must not create records")
	}
	if owner := state.deeds[1]; owner != seller {
		t.Fatalf("failed listing attempts must not move the deed")
	}

	if _, err := engine.ListProperty(1, stranger, buyer, big.NewInt(10), big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-owner, got %v", err)
	}
	if _, err := engine.ListProperty(2, seller, buyer, big.NewInt(10), big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for deed without owner, got %v", err)
	}

	mustList(t, engine, state, 1, 10, 1)
	state.deeds[3] = seller
	if _, err := engine.ListProperty(1, seller, buyer, big.NewInt(10), big.NewInt(1)); !errors.Is(err, ErrAlreadyListed) {
		t.Fatalf("expected ErrAlreadyListed, got %v", err)
	}
}

func TestDepositAccumulates(t *testing.T) {
	engine, state, recorder := newTestEngine(t)
	mustList(t, engine, state, 1, 10, 1)
	state.setBalance(buyer, 5)
	state.setBalance(lender, 20)

	if err := engine.DepositDownPayment(1, buyer, big.NewInt(2)); err != nil {
		t.Fatalf("buyer deposit: %v", err)
	}
	if err := engine.DepositDownPayment(1, lender, big.NewInt(3)); err != nil {
		t.Fatalf("lender deposit: %v", err)
	}

	balance, err := engine.CurrentBalance(1)
	if err != nil {
		t.Fatalf("current balance: %v", err)
	}
	if balance.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected balance 5, got %s", balance)
	}
	if got := state.balance(t, state.vault); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected vault balance 5, got %s", got)
	}
	if got := state.balance(t, buyer); got.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("expected buyer balance 3, got %s", got)
	}

	listing, err := engine.GetListing(1)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if got := listing.Contributions[buyer]; got.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected buyer contribution 2, got %s", got)
	}
	if got := listing.Contributions[lender]; got.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("expected lender contribution 3, got %s", got)
	}

	if err := engine.DepositDownPayment(1, buyer, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero deposit, got %v", err)
	}
	if err := engine.DepositDownPayment(1, buyer, big.NewInt(100)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	balance, _ = engine.CurrentBalance(1)
	if balance.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("failed deposits must not change the balance, got %s", balance)
	}
	if got := countEvents(recorder, EventTypeDeposit); got != 2 {
		t.Fatalf("expected 2 deposit events, got %d", got)
	}
}

func TestInspectionRequiresInspector(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	mustList(t, engine, state, 1, 10, 1)

	for _, caller := range [][20]byte{seller, buyer, lender, stranger} {
		if err := engine.UpdateInspectionStatus(1, caller, true); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for caller %x, got %v", caller, err)
		}
	}
	passed, err := engine.InspectionPassed(1)
	if err != nil || passed {
		t.Fatalf("rejected calls must leave inspection unset, got %v %v", passed, err)
	}

	if err := engine.UpdateInspectionStatus(1, inspector, true); err != nil {
		t.Fatalf("inspector update: %v", err)
	}
	passed, _ = engine.InspectionPassed(1)
	if !passed {
		t.Fatalf("expected inspection to pass")
	}

	if err := engine.UpdateInspectionStatus(1, inspector, false); err != nil {
		t.Fatalf("inspector revoke: %v", err)
	}
	passed, _ = engine.InspectionPassed(1)
	if passed {
		t.Fatalf("expected inspection to be revoked")
	}
}

func TestApproveSaleIdempotent(t *testing.T) {
	engine, state, recorder := newTestEngine(t)
	mustList(t, engine, state, 1, 10, 1)

	if err := engine.ApproveSale(1, buyer); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := engine.ApproveSale(1, buyer); err != nil {
		t.Fatalf("repeat approve: %v", err)
	}

	approved, err := engine.BuyerApproved(1)
	if err != nil || !approved {
		t.Fatalf("expected buyer approval, got %v %v", approved, err)
	}
	if got := countEvents(recorder, EventTypeApproved); got != 1 {
		t.Fatalf("repeat approvals must not re-emit, got %d events", got)
	}

	if err := engine.ApproveSale(1, stranger); err != nil {
		t.Fatalf("any account may approve: %v", err)
	}
	approved, _ = engine.Approved(1, stranger)
	if !approved {
		t.Fatalf("expected stranger approval to be recorded")
	}
	approved, _ = engine.LenderApproved(1)
	if approved {
		t.Fatalf("lender approval must not be set")
	}
}

func TestFinalizeCollectsUnmetConditions(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	mustList(t, engine, state, 1, 10, 1)

	err := engine.FinalizeSale(1, seller)
	pe, ok := IsPrecondition(err)
	if !ok {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
	expect := []string{CondInspectionPassed, CondBuyerApproved, CondSellerApproved, CondLenderApproved, CondFullyFunded}
	if len(pe.Unmet) != len(expect) {
		t.Fatalf("expected %d unmet conditions, got %v", len(expect), pe.Unmet)
	}
	for i, cond := range expect {
		if pe.Unmet[i] != cond {
			t.Fatalf("expected condition %q at %d, got %q", cond, i, pe.Unmet[i])
		}
	}

	listing, _ := engine.GetListing(1)
	if listing.Status != ListingOpen {
		t.Fatalf("failed finalize must leave the listing open")
	}

	if err := engine.FinalizeSale(1, buyer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-seller, got %v", err)
	}
}

func TestFinalizeFailsWithoutLenderApproval(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	mustList(t, engine, state, 1, 10, 1)
	state.setBalance(buyer, 10)

	if err := engine.DepositDownPayment(1, buyer, big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.UpdateInspectionStatus(1, inspector, true); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if err := engine.ApproveSale(1, buyer); err != nil {
		t.Fatalf("buyer approve: %v", err)
	}
	if err := engine.ApproveSale(1, seller); err != nil {
		t.Fatalf("seller approve: %v", err)
	}

	err := engine.FinalizeSale(1, seller)
	pe, ok := IsPrecondition(err)
	if !ok {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
	if len(pe.Unmet) != 1 || pe.Unmet[0] != CondLenderApproved {
		t.Fatalf("expected only lender approval unmet, got %v", pe.Unmet)
	}
}

func TestFinalizeHappyPath(t *testing.T) {
	engine, state, recorder := newTestEngine(t)
	mustList(t, engine, state, 1, 10, 1)
	state.setBalance(buyer, 1)
	state.setBalance(lender, 9)

	if err := engine.DepositDownPayment(1, buyer, big.NewInt(1)); err != nil {
		t.Fatalf("buyer deposit: %v", err)
	}
	if err := engine.UpdateInspectionStatus(1, inspector, true); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, caller := range [][20]byte{buyer, seller, lender} {
		if err := engine.ApproveSale(1, caller); err != nil {
			t.Fatalf("approve %x: %v", caller, err)
		}
	}
	if err := engine.DepositDownPayment(1, lender, big.NewInt(9)); err != nil {
		t.Fatalf("lender deposit: %v", err)
	}
	if err := engine.FinalizeSale(1, seller); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if got := state.balance(t, seller); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected seller paid 10, got %s", got)
	}
	if got := state.balance(t, state.vault); got.Sign() != 0 {
		t.Fatalf("expected empty vault, got %s", got)
	}
	if owner := state.deeds[1]; owner != buyer {
		t.Fatalf("expected deed owned by buyer, got %x", owner)
	}

	listing, _ := engine.GetListing(1)
	if listing.Status != ListingFinalized {
		t.Fatalf("expected finalized status, got %s", listing.Status)
	}
	if listing.DepositedBalance.Sign() != 0 {
		t.Fatalf("expected drained balance, got %s", listing.DepositedBalance)
	}
	if len(listing.Contributions) != 0 {
		t.Fatalf("expected cleared contributions after settlement, got %v", listing.Contributions)
	}
	if listing.ClosedAt == 0 {
		t.Fatalf("expected ClosedAt to be set")
	}
	listed, _ := engine.IsListed(1)
	if listed {
		t.Fatalf("finalized listing must not report as listed")
	}

	// Terminal transitions are idempotent; repeat finalize is a no-op.
	if err := engine.FinalizeSale(1, seller); err != nil {
		t.Fatalf("repeat finalize: %v", err)
	}
	if got := countEvents(recorder, EventTypeFinalized); got != 1 {
		t.Fatalf("expected 1 finalize event, got %d", got)
	}

	if err := engine.DepositDownPayment(1, buyer, big.NewInt(1)); !errors.Is(err, ErrListingClosed) {
		t.Fatalf("expected ErrListingClosed after finalize, got %v", err)
	}
	if err := engine.ApproveSale(1, stranger); !errors.Is(err, ErrListingClosed) {
		t.Fatalf("expected ErrListingClosed for approve, got %v", err)
	}
	if err := engine.UpdateInspectionStatus(1, inspector, false); !errors.Is(err, ErrListingClosed) {
		t.Fatalf("expected ErrListingClosed for inspect, got %v", err)
	}
	if err := engine.CancelListing(1, seller); !errors.Is(err, ErrListingClosed) {
		t.Fatalf("expected ErrListingClosed for cancel, got %v", err)
	}
}

func TestCancelRefundsContributors(t *testing.T) {
	engine, state, recorder := newTestEngine(t)
	mustList(t, engine, state, 1, 10, 1)
	state.setBalance(buyer, 4)
	state.setBalance(lender, 6)

	if err := engine.DepositDownPayment(1, buyer, big.NewInt(4)); err != nil {
		t.Fatalf("buyer deposit: %v", err)
	}
	if err := engine.DepositDownPayment(1, lender, big.NewInt(6)); err != nil {
		t.Fatalf("lender deposit: %v", err)
	}

	if err := engine.CancelListing(1, stranger); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for stranger cancel, got %v", err)
	}
	if err := engine.CancelListing(1, lender); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for lender cancel, got %v", err)
	}

	if err := engine.CancelListing(1, buyer); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if got := state.balance(t, buyer); got.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("expected buyer refunded to 4, got %s", got)
	}
	if got := state.balance(t, lender); got.Cmp(big.NewInt(6)) != 0 {
		t.Fatalf("expected lender refunded to 6, got %s", got)
	}
	if got := state.balance(t, state.vault); got.Sign() != 0 {
		t.Fatalf("expected empty vault, got %s", got)
	}
	if owner := state.deeds[1]; owner != seller {
		t.Fatalf("expected deed back with seller, got %x", owner)
	}

	listing, _ := engine.GetListing(1)
	if listing.Status != ListingCancelled {
		t.Fatalf("expected cancelled status, got %s", listing.Status)
	}
	if listing.DepositedBalance.Sign() != 0 || len(listing.Contributions) != 0 {
		t.Fatalf("expected cleared contributions, got %s %v", listing.DepositedBalance, listing.Contributions)
	}

	// Repeat cancel is a no-op.
	if err := engine.CancelListing(1, buyer); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
	if got := countEvents(recorder, EventTypeCancelled); got != 1 {
		t.Fatalf("expected 1 cancel event, got %d", got)
	}

	if err := engine.FinalizeSale(1, seller); !errors.Is(err, ErrListingClosed) {
		t.Fatalf("expected ErrListingClosed finalizing cancelled listing, got %v", err)
	}
}

func TestFinalizeLeavesSettledRecordConsistent(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	mustList(t, engine, state, 1, 10, 1)
	state.setBalance(buyer, 1)
	state.setBalance(lender, 9)

	if err := engine.DepositDownPayment(1, buyer, big.NewInt(1)); err != nil {
		t.Fatalf("buyer deposit: %v", err)
	}
	if err := engine.DepositDownPayment(1, lender, big.NewInt(9)); err != nil {
		t.Fatalf("lender deposit: %v", err)
	}
	if err := engine.UpdateInspectionStatus(1, inspector, true); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, caller := range [][20]byte{buyer, seller, lender} {
		if err := engine.ApproveSale(1, caller); err != nil {
			t.Fatalf("approve %x: %v", caller, err)
		}
	}

	// A fully funded listing with recorded contributions must settle cleanly
	// and leave a record the store accepts again.
	if err := engine.FinalizeSale(1, seller); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	listing, err := engine.GetListing(1)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if listing.Status != ListingFinalized {
		t.Fatalf("expected finalized status, got %s", listing.Status)
	}
	if listing.DepositedBalance.Sign() != 0 || len(listing.Contributions) != 0 {
		t.Fatalf("settled record not drained: balance %s, contributions %v",
			listing.DepositedBalance, listing.Contributions)
	}
	if _, err := SanitizeListing(listing); err != nil {
		t.Fatalf("settled record fails sanitize: %v", err)
	}
	if got := state.balance(t, seller); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected seller paid in full, got %s", got)
	}
	if owner := state.deeds[1]; owner != buyer {
		t.Fatalf("expected deed with buyer, got %x", owner)
	}
}

func TestRelistAfterCancel(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	mustList(t, engine, state, 1, 10, 1)
	state.setBalance(buyer, 3)

	if err := engine.DepositDownPayment(1, buyer, big.NewInt(3)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.CancelListing(1, seller); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	listing, err := engine.ListProperty(1, seller, buyer, big.NewInt(12), big.NewInt(2))
	if err != nil {
		t.Fatalf("relist after cancel: %v", err)
	}
	if listing.Status != ListingOpen {
		t.Fatalf("expected fresh open listing, got %s", listing.Status)
	}
	if listing.PurchasePrice.Cmp(big.NewInt(12)) != 0 {
		t.Fatalf("expected new terms, got price %s", listing.PurchasePrice)
	}
	if listing.DepositedBalance.Sign() != 0 || len(listing.Contributions) != 0 || len(listing.Approvals) != 0 {
		t.Fatalf("relisting must start from a clean record: %+v", listing)
	}
	if owner := state.deeds[1]; owner != state.vault {
		t.Fatalf("expected vault custody after relist, got %x", owner)
	}
}

func TestRelistAfterFinalizeByNewOwner(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	mustList(t, engine, state, 1, 10, 1)
	state.setBalance(buyer, 10)

	if err := engine.DepositDownPayment(1, buyer, big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.UpdateInspectionStatus(1, inspector, true); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, caller := range [][20]byte{buyer, seller, lender} {
		if err := engine.ApproveSale(1, caller); err != nil {
			t.Fatalf("approve %x: %v", caller, err)
		}
	}
	if err := engine.FinalizeSale(1, seller); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// The previous seller no longer owns the deed and cannot relist it.
	if _, err := engine.ListProperty(1, seller, stranger, big.NewInt(20), big.NewInt(2)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for former owner, got %v", err)
	}

	listing, err := engine.ListProperty(1, buyer, stranger, big.NewInt(20), big.NewInt(2))
	if err != nil {
		t.Fatalf("relist by new owner: %v", err)
	}
	if listing.Seller != buyer || listing.Buyer != stranger {
		t.Fatalf("unexpected parties on relisted property")
	}
}

func TestSellerMayCancel(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	mustList(t, engine, state, 1, 10, 1)

	if err := engine.CancelListing(1, seller); err != nil {
		t.Fatalf("seller cancel: %v", err)
	}
	if owner := state.deeds[1]; owner != seller {
		t.Fatalf("expected deed back with seller, got %x", owner)
	}
}

func TestUnknownListingErrors(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	if _, err := engine.GetListing(99); !errors.Is(err, ErrUnknownListing) {
		t.Fatalf("expected ErrUnknownListing from get, got %v", err)
	}
	if err := engine.DepositDownPayment(99, buyer, big.NewInt(1)); !errors.Is(err, ErrUnknownListing) {
		t.Fatalf("expected ErrUnknownListing from deposit, got %v", err)
	}
	if err := engine.UpdateInspectionStatus(99, inspector, true); !errors.Is(err, ErrUnknownListing) {
		t.Fatalf("expected ErrUnknownListing from inspect, got %v", err)
	}
	if err := engine.ApproveSale(99, buyer); !errors.Is(err, ErrUnknownListing) {
		t.Fatalf("expected ErrUnknownListing from approve, got %v", err)
	}
	if err := engine.FinalizeSale(99, seller); !errors.Is(err, ErrUnknownListing) {
		t.Fatalf("expected ErrUnknownListing from finalize, got %v", err)
	}
	if err := engine.CancelListing(99, seller); !errors.Is(err, ErrUnknownListing) {
		t.Fatalf("expected ErrUnknownListing from cancel, got %v", err)
	}
}

func TestEngineWithoutStateFails(t *testing.T) {
	engine := NewEngine(inspector, lender)
	if _, err := engine.ListProperty(1, seller, buyer, big.NewInt(10), big.NewInt(1)); err == nil {
		t.Fatalf("expected error when state is not configured")
	}
}
