package state

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"homestead/core/types"
	"homestead/native/escrow"
	"homestead/native/registry"
	"homestead/storage"
)

const (
	accountPrefix  = "account/"
	listingPrefix  = "listing/"
	deedPrefix     = "deed/"
	nextDeedKey    = "meta/nextdeed"
	vaultLabel     = "homestead/escrow-vault"
	firstDeedID    = 1
	maxUint64Width = 20
)

// StateDB is the single authoritative store for accounts, deeds and listings.
// Records live in memory and are written through to the backing key-value
// database as JSON, so a node restart reloads the full ledger.
//
// StateDB implements the state interfaces of both the escrow and the deed
// registry engines.
type StateDB struct {
	mu       sync.RWMutex
	db       storage.Database
	accounts map[[20]byte]*types.Account
	listings map[uint64]*escrow.Listing
	deeds    map[uint64]*registry.Deed
	nextDeed uint64
	vault    [20]byte
}

// Open loads (or initialises) the ledger from the backing database.
func Open(db storage.Database) (*StateDB, error) {
	s := &StateDB{
		db:       db,
		accounts: make(map[[20]byte]*types.Account),
		listings: make(map[uint64]*escrow.Listing),
		deeds:    make(map[uint64]*registry.Deed),
		nextDeed: firstDeedID,
	}
	copy(s.vault[:], ethcrypto.Keccak256([]byte(vaultLabel))[:20])
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *StateDB) load() error {
	if err := s.db.Iterate([]byte(accountPrefix), func(key, value []byte) bool {
		raw, err := hex.DecodeString(string(key[len(accountPrefix):]))
		if err != nil || len(raw) != 20 {
			return true
		}
		var addr [20]byte
		copy(addr[:], raw)
		account := &types.Account{}
		if err := json.Unmarshal(value, account); err != nil {
			return true
		}
		s.accounts[addr] = account
		return true
	}); err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	if err := s.db.Iterate([]byte(listingPrefix), func(key, value []byte) bool {
		listing := &escrow.Listing{}
		if err := json.Unmarshal(value, listing); err != nil {
			return true
		}
		s.listings[listing.ID] = listing
		return true
	}); err != nil {
		return fmt.Errorf("load listings: %w", err)
	}
	if err := s.db.Iterate([]byte(deedPrefix), func(key, value []byte) bool {
		deed := &registry.Deed{}
		if err := json.Unmarshal(value, deed); err != nil {
			return true
		}
		if err := deed.DecodeOwner(); err != nil {
			return true
		}
		s.deeds[deed.ID] = deed
		return true
	}); err != nil {
		return fmt.Errorf("load deeds: %w", err)
	}
	if raw, err := s.db.Get([]byte(nextDeedKey)); err == nil {
		if next, err := strconv.ParseUint(string(raw), 10, 64); err == nil && next >= firstDeedID {
			s.nextDeed = next
		}
	}
	return nil
}

// VaultAddress returns the module account that custodies escrowed funds and
// listed deeds. The address is derived from a fixed label so it never
// collides with a key-derived account.
func (s *StateDB) VaultAddress() [20]byte { return s.vault }

// --- Accounts ---

// GetAccount returns a copy of the account, creating a zero-balance record
// view for unknown addresses.
func (s *StateDB) GetAccount(addr []byte) (*types.Account, error) {
	key, err := addressKey(addr)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[key].Clone(), nil
}

// PutAccount stores the account and persists it.
func (s *StateDB) PutAccount(addr []byte, account *types.Account) error {
	key, err := addressKey(addr)
	if err != nil {
		return err
	}
	clone := account.Clone()
	raw, err := json.Marshal(clone)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put([]byte(accountPrefix+hex.EncodeToString(key[:])), raw); err != nil {
		return err
	}
	s.accounts[key] = clone
	return nil
}

// --- Listings ---

// ListingPut validates, stores and persists the listing.
func (s *StateDB) ListingPut(listing *escrow.Listing) error {
	sanitized, err := escrow.SanitizeListing(listing)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sanitized)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put(listingKey(sanitized.ID), raw); err != nil {
		return err
	}
	s.listings[sanitized.ID] = sanitized
	return nil
}

// ListingGet returns a copy of the stored listing.
func (s *StateDB) ListingGet(id uint64) (*escrow.Listing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	listing, ok := s.listings[id]
	if !ok {
		return nil, false
	}
	return listing.Clone(), true
}

// ListingIDs returns the identifiers of every stored listing in ascending
// order.
func (s *StateDB) ListingIDs() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uint64, 0, len(s.listings))
	for id := range s.listings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// --- Deeds ---

// DeedPut stores and persists the deed record.
func (s *StateDB) DeedPut(deed *registry.Deed) error {
	if deed == nil {
		return fmt.Errorf("nil deed")
	}
	clone := deed.Clone()
	clone.EncodeOwner()
	raw, err := json.Marshal(clone)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put(deedKey(clone.ID), raw); err != nil {
		return err
	}
	s.deeds[clone.ID] = clone
	return nil
}

// DeedGet returns a copy of the stored deed.
func (s *StateDB) DeedGet(id uint64) (*registry.Deed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	deed, ok := s.deeds[id]
	if !ok {
		return nil, false
	}
	return deed.Clone(), true
}

// DeedOwner returns the owner of record for the deed.
func (s *StateDB) DeedOwner(id uint64) ([20]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	deed, ok := s.deeds[id]
	if !ok {
		return [20]byte{}, false
	}
	return deed.Owner, true
}

// DeedSetOwner rewrites the owner of record. Used by the escrow engine for
// custody moves; authorization happens in the engines.
func (s *StateDB) DeedSetOwner(id uint64, owner [20]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	deed, ok := s.deeds[id]
	if !ok {
		return fmt.Errorf("deed %d not found", id)
	}
	clone := deed.Clone()
	clone.Owner = owner
	clone.EncodeOwner()
	raw, err := json.Marshal(clone)
	if err != nil {
		return err
	}
	if err := s.db.Put(deedKey(id), raw); err != nil {
		return err
	}
	s.deeds[id] = clone
	return nil
}

// NextDeedID allocates and persists the next sequential deed identifier.
func (s *StateDB) NextDeedID() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextDeed
	next := id + 1
	if err := s.db.Put([]byte(nextDeedKey), []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, err
	}
	s.nextDeed = next
	return id, nil
}

func addressKey(addr []byte) ([20]byte, error) {
	var key [20]byte
	if len(addr) != 20 {
		return key, fmt.Errorf("address must be 20 bytes, got %d", len(addr))
	}
	copy(key[:], addr)
	return key, nil
}

func listingKey(id uint64) []byte {
	return []byte(listingPrefix + pad(id))
}

func deedKey(id uint64) []byte {
	return []byte(deedPrefix + pad(id))
}

// pad keeps lexicographic key order aligned with numeric id order.
func pad(id uint64) string {
	return fmt.Sprintf("%0*d", maxUint64Width, id)
}
