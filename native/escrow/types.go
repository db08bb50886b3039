package escrow

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
)

// ListingStatus represents the lifecycle states of a property listing managed
// by the escrow engine. DownPaymentReceived, Inspected and the individual
// approvals are independent sub-states tracked on the listing record itself;
// only the terminal transitions change the status value.
type ListingStatus uint8

const (
	ListingOpen ListingStatus = iota + 1
	ListingFinalized
	ListingCancelled
)

// Valid reports whether the status value is within the supported range.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingOpen, ListingFinalized, ListingCancelled:
		return true
	default:
		return false
	}
}

func (s ListingStatus) String() string {
	switch s {
	case ListingOpen:
		return "open"
	case ListingFinalized:
		return "finalized"
	case ListingCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Listing captures the sale terms and runtime workflow state for a single
// property. The listing identifier is the deed (asset) identifier; custody of
// the deed is held by the engine vault while the listing is open.
//
// DepositedBalance is scoped per listing and always equals the sum of the
// recorded contributions. Approvals record every account that has signed off;
// only the buyer, seller and lender approvals are consulted at finalize time.
type Listing struct {
	ID               uint64
	Seller           [20]byte
	Buyer            [20]byte
	PurchasePrice    *big.Int
	EscrowAmount     *big.Int
	InspectionPassed bool
	Approvals        map[[20]byte]bool
	DepositedBalance *big.Int
	Contributions    map[[20]byte]*big.Int
	CreatedAt        int64
	ClosedAt         int64
	Status           ListingStatus
}

// Open reports whether the listing still accepts workflow transitions.
func (l *Listing) Open() bool {
	return l != nil && l.Status == ListingOpen
}

// ApprovedBy reports whether the given account has recorded its sign-off.
func (l *Listing) ApprovedBy(account [20]byte) bool {
	if l == nil || l.Approvals == nil {
		return false
	}
	return l.Approvals[account]
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	clone.PurchasePrice = cloneBigInt(l.PurchasePrice)
	clone.EscrowAmount = cloneBigInt(l.EscrowAmount)
	clone.DepositedBalance = cloneBigInt(l.DepositedBalance)
	clone.Approvals = make(map[[20]byte]bool, len(l.Approvals))
	for account, approved := range l.Approvals {
		clone.Approvals[account] = approved
	}
	clone.Contributions = make(map[[20]byte]*big.Int, len(l.Contributions))
	for account, amount := range l.Contributions {
		clone.Contributions[account] = cloneBigInt(amount)
	}
	return &clone
}

// SanitizeListing validates and normalises the supplied listing, returning a
// cloned instance with non-nil amounts and maps. The original is not mutated.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("nil listing")
	}
	clone := l.Clone()
	if clone.PurchasePrice.Sign() < 0 {
		return nil, fmt.Errorf("listing purchase price must be non-negative")
	}
	if clone.EscrowAmount.Sign() < 0 {
		return nil, fmt.Errorf("listing escrow amount must be non-negative")
	}
	if clone.EscrowAmount.Cmp(clone.PurchasePrice) > 0 {
		return nil, fmt.Errorf("listing escrow amount exceeds purchase price")
	}
	if clone.DepositedBalance.Sign() < 0 {
		return nil, fmt.Errorf("listing deposited balance must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid listing status: %d", clone.Status)
	}
	total := big.NewInt(0)
	for _, amount := range clone.Contributions {
		if amount.Sign() < 0 {
			return nil, fmt.Errorf("listing contribution must be non-negative")
		}
		total.Add(total, amount)
	}
	if total.Cmp(clone.DepositedBalance) != 0 {
		return nil, fmt.Errorf("listing contributions do not sum to deposited balance")
	}
	return clone, nil
}

// listingJSON is the persisted wire form. Fixed-size byte arrays are encoded
// as hex strings because JSON object keys must be strings.
type listingJSON struct {
	ID               uint64            `json:"id"`
	Seller           string            `json:"seller"`
	Buyer            string            `json:"buyer"`
	PurchasePrice    string            `json:"purchasePrice"`
	EscrowAmount     string            `json:"escrowAmount"`
	InspectionPassed bool              `json:"inspectionPassed"`
	Approvals        map[string]bool   `json:"approvals,omitempty"`
	DepositedBalance string            `json:"depositedBalance"`
	Contributions    map[string]string `json:"contributions,omitempty"`
	CreatedAt        int64             `json:"createdAt"`
	ClosedAt         int64             `json:"closedAt,omitempty"`
	Status           uint8             `json:"status"`
}

func (l *Listing) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("null"), nil
	}
	out := listingJSON{
		ID:               l.ID,
		Seller:           hex.EncodeToString(l.Seller[:]),
		Buyer:            hex.EncodeToString(l.Buyer[:]),
		PurchasePrice:    cloneBigInt(l.PurchasePrice).String(),
		EscrowAmount:     cloneBigInt(l.EscrowAmount).String(),
		InspectionPassed: l.InspectionPassed,
		DepositedBalance: cloneBigInt(l.DepositedBalance).String(),
		CreatedAt:        l.CreatedAt,
		ClosedAt:         l.ClosedAt,
		Status:           uint8(l.Status),
	}
	if len(l.Approvals) > 0 {
		out.Approvals = make(map[string]bool, len(l.Approvals))
		for account, approved := range l.Approvals {
			out.Approvals[hex.EncodeToString(account[:])] = approved
		}
	}
	if len(l.Contributions) > 0 {
		out.Contributions = make(map[string]string, len(l.Contributions))
		for account, amount := range l.Contributions {
			out.Contributions[hex.EncodeToString(account[:])] = cloneBigInt(amount).String()
		}
	}
	return json.Marshal(out)
}

func (l *Listing) UnmarshalJSON(data []byte) error {
	var in listingJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	seller, err := decodeAddressHex(in.Seller)
	if err != nil {
		return fmt.Errorf("listing seller: %w", err)
	}
	buyer, err := decodeAddressHex(in.Buyer)
	if err != nil {
		return fmt.Errorf("listing buyer: %w", err)
	}
	price, err := decodeAmount(in.PurchasePrice)
	if err != nil {
		return fmt.Errorf("listing purchase price: %w", err)
	}
	escrowAmt, err := decodeAmount(in.EscrowAmount)
	if err != nil {
		return fmt.Errorf("listing escrow amount: %w", err)
	}
	balance, err := decodeAmount(in.DepositedBalance)
	if err != nil {
		return fmt.Errorf("listing deposited balance: %w", err)
	}
	approvals := make(map[[20]byte]bool, len(in.Approvals))
	for encoded, approved := range in.Approvals {
		account, err := decodeAddressHex(encoded)
		if err != nil {
			return fmt.Errorf("listing approval key: %w", err)
		}
		approvals[account] = approved
	}
	contributions := make(map[[20]byte]*big.Int, len(in.Contributions))
	for encoded, raw := range in.Contributions {
		account, err := decodeAddressHex(encoded)
		if err != nil {
			return fmt.Errorf("listing contribution key: %w", err)
		}
		amount, err := decodeAmount(raw)
		if err != nil {
			return fmt.Errorf("listing contribution amount: %w", err)
		}
		contributions[account] = amount
	}
	*l = Listing{
		ID:               in.ID,
		Seller:           seller,
		Buyer:            buyer,
		PurchasePrice:    price,
		EscrowAmount:     escrowAmt,
		InspectionPassed: in.InspectionPassed,
		Approvals:        approvals,
		DepositedBalance: balance,
		Contributions:    contributions,
		CreatedAt:        in.CreatedAt,
		ClosedAt:         in.ClosedAt,
		Status:           ListingStatus(in.Status),
	}
	return nil
}

func decodeAddressHex(encoded string) ([20]byte, error) {
	var out [20]byte
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return out, err
	}
	if len(raw) != 20 {
		return out, fmt.Errorf("expected 20 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func decodeAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
