package core

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"homestead/core/events"
	"homestead/core/state"
	"homestead/core/types"
	"homestead/native/escrow"
	"homestead/native/registry"
)

// Node wires the state store, the deed registry and the escrow workflow
// engine into the operation surface consumed by the RPC server, the gateway
// and the CLI. Every mutating call is serialized under a single mutex so
// callers observe either a fully-applied transition or none, matching the
// ledger execution model.
type Node struct {
	mu       sync.Mutex
	state    *state.StateDB
	deeds    *registry.Engine
	escrow   *escrow.Engine
	recorder *events.Recorder
	logger   *slog.Logger
}

// NewNode constructs a node over the given state with the fixed inspector and
// lender role accounts.
func NewNode(st *state.StateDB, inspector, lender [20]byte, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	recorder := events.NewRecorder(0)

	deedEngine := registry.NewEngine()
	deedEngine.SetState(st)
	deedEngine.SetEmitter(recorder)

	escrowEngine := escrow.NewEngine(inspector, lender)
	escrowEngine.SetState(st)
	escrowEngine.SetEmitter(recorder)

	return &Node{
		state:    st,
		deeds:    deedEngine,
		escrow:   escrowEngine,
		recorder: recorder,
		logger:   logger,
	}
}

// ListingView is the full per-listing snapshot exposed to presentation
// surfaces: the stored record plus the derived role approvals.
type ListingView struct {
	Listing        *escrow.Listing
	BuyerApproved  bool
	SellerApproved bool
	LenderApproved bool
}

// --- Mutating operations (serialized) ---

// MintDeed records a new deed for owner referencing tokenURI.
func (n *Node) MintDeed(owner [20]byte, tokenURI string) (*registry.Deed, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	deed, err := n.deeds.Mint(owner, tokenURI)
	if err != nil {
		return nil, err
	}
	n.logger.Info("deed minted", slog.Uint64("id", deed.ID), slog.String("tokenURI", deed.TokenURI))
	return deed, nil
}

// ListProperty creates a listing for a deed the caller owns.
func (n *Node) ListProperty(id uint64, caller, buyer [20]byte, purchasePrice, escrowAmount *big.Int) (*escrow.Listing, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	listing, err := n.escrow.ListProperty(id, caller, buyer, purchasePrice, escrowAmount)
	if err != nil {
		return nil, err
	}
	n.logger.Info("property listed",
		slog.Uint64("id", id),
		slog.String("price", listing.PurchasePrice.String()),
		slog.String("escrowAmount", listing.EscrowAmount.String()))
	return listing, nil
}

// Deposit credits amount from caller toward the listing.
func (n *Node) Deposit(id uint64, caller [20]byte, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.escrow.DepositDownPayment(id, caller, amount); err != nil {
		return err
	}
	n.logger.Info("down payment received", slog.Uint64("id", id))
	return nil
}

// SetInspection records the inspection outcome; inspector only.
func (n *Node) SetInspection(id uint64, caller [20]byte, passed bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.escrow.UpdateInspectionStatus(id, caller, passed); err != nil {
		return err
	}
	n.logger.Info("inspection updated", slog.Uint64("id", id), slog.Bool("passed", passed))
	return nil
}

// Approve records the caller's sign-off on the listing.
func (n *Node) Approve(id uint64, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrow.ApproveSale(id, caller)
}

// Finalize settles the listing; seller only.
func (n *Node) Finalize(id uint64, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.escrow.FinalizeSale(id, caller); err != nil {
		return err
	}
	n.logger.Info("sale finalized", slog.Uint64("id", id))
	return nil
}

// Cancel unwinds the listing and refunds contributions; buyer or seller only.
func (n *Node) Cancel(id uint64, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.escrow.CancelListing(id, caller); err != nil {
		return err
	}
	n.logger.Info("listing cancelled", slog.Uint64("id", id))
	return nil
}

// FaucetFund credits amount to the account. Development networks only; the
// RPC server exposes it behind the auth token.
func (n *Node) FaucetFund(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("faucet amount must be positive")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	account, err := n.state.GetAccount(addr[:])
	if err != nil {
		return err
	}
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	return n.state.PutAccount(addr[:], account)
}

// --- Read-only operations ---

// GetListing returns the stored listing plus derived role approvals.
func (n *Node) GetListing(id uint64) (*ListingView, error) {
	listing, err := n.escrow.GetListing(id)
	if err != nil {
		return nil, err
	}
	return &ListingView{
		Listing:        listing,
		BuyerApproved:  listing.ApprovedBy(listing.Buyer),
		SellerApproved: listing.ApprovedBy(listing.Seller),
		LenderApproved: listing.ApprovedBy(n.escrow.Lender()),
	}, nil
}

// ListingIDs returns every known listing identifier in ascending order.
func (n *Node) ListingIDs() []uint64 {
	return n.state.ListingIDs()
}

// DeedOwner returns the owner of record for the deed.
func (n *Node) DeedOwner(id uint64) ([20]byte, error) {
	return n.deeds.OwnerOf(id)
}

// Deed returns the full deed record.
func (n *Node) Deed(id uint64) (*registry.Deed, error) {
	return n.deeds.Get(id)
}

// GetBalance returns the spendable balance of the account.
func (n *Node) GetBalance(addr [20]byte) (*big.Int, error) {
	account, err := n.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	if account.Balance == nil {
		return big.NewInt(0), nil
	}
	return account.Balance, nil
}

// VaultAddress returns the module account holding escrowed funds and deeds.
func (n *Node) VaultAddress() [20]byte {
	return n.state.VaultAddress()
}

// VaultBalance returns the total funds currently custodied by the engine.
func (n *Node) VaultBalance() (*big.Int, error) {
	return n.GetBalance(n.state.VaultAddress())
}

// Inspector returns the fixed inspector role account.
func (n *Node) Inspector() [20]byte { return n.escrow.Inspector() }

// Lender returns the fixed lender role account.
func (n *Node) Lender() [20]byte { return n.escrow.Lender() }

// Events returns the recent event feed, oldest first.
func (n *Node) Events() []*types.Event {
	recorded := n.recorder.Events()
	out := make([]*types.Event, 0, len(recorded))
	for _, ev := range recorded {
		carrier, ok := ev.(interface{ Event() *types.Event })
		if !ok || carrier.Event() == nil {
			continue
		}
		out = append(out, carrier.Event())
	}
	return out
}
