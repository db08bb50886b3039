package state

import (
	"math/big"
	"testing"

	"homestead/core/types"
	"homestead/native/escrow"
	"homestead/native/registry"
	"homestead/storage"
)

func testAddr(b byte) [20]byte {
	var addr [20]byte
	addr[19] = b
	return addr
}

func TestAccountsSurviveReopen(t *testing.T) {
	db := storage.NewMemDB()
	st, err := Open(db)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	addr := testAddr(0x01)
	if err := st.PutAccount(addr[:], &types.Account{Nonce: 3, Balance: big.NewInt(42)}); err != nil {
		t.Fatalf("put account: %v", err)
	}

	reopened, err := Open(db)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	account, err := reopened.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Nonce != 3 || account.Balance.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("account did not survive reopen: %+v", account)
	}
}

func TestGetAccountReturnsClone(t *testing.T) {
	st, err := Open(storage.NewMemDB())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	addr := testAddr(0x01)
	if err := st.PutAccount(addr[:], &types.Account{Balance: big.NewInt(5)}); err != nil {
		t.Fatalf("put account: %v", err)
	}

	account, err := st.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	account.Balance.SetInt64(999)

	fresh, err := st.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if fresh.Balance.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("caller mutation leaked into stored account: %s", fresh.Balance)
	}
}

func TestUnknownAccountHasZeroBalance(t *testing.T) {
	st, err := Open(storage.NewMemDB())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	addr := testAddr(0x7F)
	account, err := st.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Balance == nil || account.Balance.Sign() != 0 {
		t.Fatalf("expected zero balance view, got %+v", account)
	}
}

func TestListingsSurviveReopen(t *testing.T) {
	db := storage.NewMemDB()
	st, err := Open(db)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	contributor := testAddr(0x02)
	listing := &escrow.Listing{
		ID:               5,
		Seller:           testAddr(0x01),
		Buyer:            contributor,
		PurchasePrice:    big.NewInt(10),
		EscrowAmount:     big.NewInt(1),
		InspectionPassed: true,
		Approvals:        map[[20]byte]bool{contributor: true},
		DepositedBalance: big.NewInt(4),
		Contributions:    map[[20]byte]*big.Int{contributor: big.NewInt(4)},
		CreatedAt:        1700000000,
		Status:           escrow.ListingOpen,
	}
	if err := st.ListingPut(listing); err != nil {
		t.Fatalf("put listing: %v", err)
	}

	reopened, err := Open(db)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	stored, ok := reopened.ListingGet(5)
	if !ok {
		t.Fatalf("listing missing after reopen")
	}
	if stored.DepositedBalance.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("expected balance 4, got %s", stored.DepositedBalance)
	}
	if !stored.ApprovedBy(contributor) {
		t.Fatalf("approvals missing after reopen")
	}
	if got := stored.Contributions[contributor]; got == nil || got.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("contributions missing after reopen: %v", got)
	}
}

func TestListingPutRejectsInvalidRecords(t *testing.T) {
	st, err := Open(storage.NewMemDB())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	listing := &escrow.Listing{
		ID:               1,
		PurchasePrice:    big.NewInt(10),
		EscrowAmount:     big.NewInt(11),
		DepositedBalance: big.NewInt(0),
		Status:           escrow.ListingOpen,
	}
	if err := st.ListingPut(listing); err == nil {
		t.Fatalf("expected sanitize rejection for escrow above price")
	}
	if _, ok := st.ListingGet(1); ok {
		t.Fatalf("rejected listing must not be stored")
	}
}

func TestListingIDsSorted(t *testing.T) {
	st, err := Open(storage.NewMemDB())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, id := range []uint64{30, 2, 117} {
		listing := &escrow.Listing{
			ID:               id,
			PurchasePrice:    big.NewInt(1),
			EscrowAmount:     big.NewInt(0),
			DepositedBalance: big.NewInt(0),
			Status:           escrow.ListingOpen,
		}
		if err := st.ListingPut(listing); err != nil {
			t.Fatalf("put listing %d: %v", id, err)
		}
	}
	ids := st.ListingIDs()
	want := []uint64{2, 30, 117}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
}

func TestDeedsAndSequenceSurviveReopen(t *testing.T) {
	db := storage.NewMemDB()
	st, err := Open(db)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	first, err := st.NextDeedID()
	if err != nil || first != 1 {
		t.Fatalf("expected first id 1, got %d %v", first, err)
	}

	owner := testAddr(0x01)
	deed := &registry.Deed{ID: first, Owner: owner, TokenURI: "ipfs://Qm/1.json", MintedAt: 1700000000}
	deed.EncodeOwner()
	if err := st.DeedPut(deed); err != nil {
		t.Fatalf("put deed: %v", err)
	}

	reopened, err := Open(db)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	stored, ok := reopened.DeedGet(first)
	if !ok || stored.Owner != owner || stored.TokenURI != "ipfs://Qm/1.json" {
		t.Fatalf("deed did not survive reopen: %+v %v", stored, ok)
	}
	gotOwner, ok := reopened.DeedOwner(first)
	if !ok || gotOwner != owner {
		t.Fatalf("unexpected deed owner %x %v", gotOwner, ok)
	}

	next, err := reopened.NextDeedID()
	if err != nil || next != 2 {
		t.Fatalf("expected sequence to resume at 2, got %d %v", next, err)
	}
}

func TestDeedSetOwnerPersists(t *testing.T) {
	db := storage.NewMemDB()
	st, err := Open(db)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	owner := testAddr(0x01)
	next := testAddr(0x02)

	deed := &registry.Deed{ID: 1, Owner: owner, TokenURI: "ipfs://Qm/1.json"}
	deed.EncodeOwner()
	if err := st.DeedPut(deed); err != nil {
		t.Fatalf("put deed: %v", err)
	}
	if err := st.DeedSetOwner(1, next); err != nil {
		t.Fatalf("set owner: %v", err)
	}

	reopened, err := Open(db)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	gotOwner, ok := reopened.DeedOwner(1)
	if !ok || gotOwner != next {
		t.Fatalf("owner change did not persist: %x %v", gotOwner, ok)
	}
}

func TestVaultAddressIsStable(t *testing.T) {
	first, err := Open(storage.NewMemDB())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	second, err := Open(storage.NewMemDB())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if first.VaultAddress() != second.VaultAddress() {
		t.Fatalf("vault address must be deterministic")
	}
	if first.VaultAddress() == ([20]byte{}) {
		t.Fatalf("vault address must be non-zero")
	}
}
