package registry

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"homestead/core/events"
	"homestead/core/types"
)

var (
	errNilState = errors.New("deed registry: state not configured")

	// ErrUnknownDeed marks an operation referencing a deed id that was
	// never minted.
	ErrUnknownDeed = errors.New("registry: unknown deed")
	// ErrUnauthorized marks a transfer attempted by an account other than
	// the recorded owner.
	ErrUnauthorized = errors.New("registry: unauthorized caller")
)

const (
	EventTypeDeedMinted      = "deed.minted"
	EventTypeDeedTransferred = "deed.transferred"
)

// Deed is the owner-of-record entry for a single property asset. TokenURI
// points at the external metadata resource describing the property.
type Deed struct {
	ID       uint64   `json:"id"`
	Owner    [20]byte `json:"-"`
	OwnerHex string   `json:"owner"`
	TokenURI string   `json:"tokenURI"`
	MintedAt int64    `json:"mintedAt"`
}

// Clone returns a copy of the deed.
func (d *Deed) Clone() *Deed {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}

// EncodeOwner refreshes the persisted hex form from the fixed-size owner.
func (d *Deed) EncodeOwner() {
	d.OwnerHex = hex.EncodeToString(d.Owner[:])
}

// DecodeOwner restores the fixed-size owner from the persisted hex form.
func (d *Deed) DecodeOwner() error {
	raw, err := hex.DecodeString(d.OwnerHex)
	if err != nil {
		return fmt.Errorf("deed owner: %w", err)
	}
	if len(raw) != 20 {
		return fmt.Errorf("deed owner: expected 20 bytes, got %d", len(raw))
	}
	copy(d.Owner[:], raw)
	return nil
}

type engineState interface {
	DeedPut(*Deed) error
	DeedGet(id uint64) (*Deed, bool)
	NextDeedID() (uint64, error)
}

// Engine maintains the deed owner-of-record table. Custody moves during the
// escrow workflow go through the escrow engine; this engine covers minting,
// direct transfers and lookups.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a deed registry engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source; intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e registryEvent) Event() *types.Event { return e.evt }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(registryEvent{evt: event})
}

// Mint records a new deed for owner referencing the supplied metadata URI and
// returns it. Deed identifiers are assigned sequentially starting at 1.
func (e *Engine) Mint(owner [20]byte, tokenURI string) (*Deed, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if owner == ([20]byte{}) {
		return nil, fmt.Errorf("registry: owner required")
	}
	uri := strings.TrimSpace(tokenURI)
	if uri == "" {
		return nil, fmt.Errorf("registry: token URI required")
	}
	id, err := e.state.NextDeedID()
	if err != nil {
		return nil, err
	}
	deed := &Deed{
		ID:       id,
		Owner:    owner,
		TokenURI: uri,
		MintedAt: e.nowFn(),
	}
	deed.EncodeOwner()
	if err := e.state.DeedPut(deed); err != nil {
		return nil, err
	}
	e.emit(&types.Event{Type: EventTypeDeedMinted, Attributes: map[string]string{
		"id":       strconv.FormatUint(id, 10),
		"owner":    hex.EncodeToString(owner[:]),
		"tokenURI": uri,
	}})
	return deed.Clone(), nil
}

// OwnerOf returns the current owner of record for the deed.
func (e *Engine) OwnerOf(id uint64) ([20]byte, error) {
	deed, err := e.load(id)
	if err != nil {
		return [20]byte{}, err
	}
	return deed.Owner, nil
}

// TokenURI returns the metadata URI recorded at mint time.
func (e *Engine) TokenURI(id uint64) (string, error) {
	deed, err := e.load(id)
	if err != nil {
		return "", err
	}
	return deed.TokenURI, nil
}

// Get returns a copy of the full deed record.
func (e *Engine) Get(id uint64) (*Deed, error) {
	return e.load(id)
}

// Transfer moves the deed from its current owner to another account. The
// caller must be the recorded owner.
func (e *Engine) Transfer(id uint64, caller, to [20]byte) error {
	deed, err := e.load(id)
	if err != nil {
		return err
	}
	if deed.Owner != caller {
		return fmt.Errorf("%w: caller does not own deed %d", ErrUnauthorized, id)
	}
	deed.Owner = to
	deed.EncodeOwner()
	if err := e.state.DeedPut(deed); err != nil {
		return err
	}
	e.emit(&types.Event{Type: EventTypeDeedTransferred, Attributes: map[string]string{
		"id":   strconv.FormatUint(id, 10),
		"from": hex.EncodeToString(caller[:]),
		"to":   hex.EncodeToString(to[:]),
	}})
	return nil
}

func (e *Engine) load(id uint64) (*Deed, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	deed, ok := e.state.DeedGet(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownDeed, id)
	}
	return deed, nil
}
