package rpc

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"homestead/core"
	"homestead/crypto"
	"homestead/native/escrow"
	"homestead/native/registry"
)

const (
	codeEscrowInvalidParams = -32021
	codeEscrowNotFound      = -32022
	codeEscrowForbidden     = -32023
	codeEscrowConflict      = -32024
	codeEscrowInternal      = -32025
)

type mintDeedParams struct {
	Owner    string `json:"owner"`
	TokenURI string `json:"tokenURI"`
}

type mintDeedResult struct {
	ID uint64 `json:"id"`
}

type listPropertyParams struct {
	ID            uint64 `json:"id"`
	Caller        string `json:"caller"`
	Buyer         string `json:"buyer"`
	PurchasePrice string `json:"purchasePrice"`
	EscrowAmount  string `json:"escrowAmount"`
}

type depositParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type inspectParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
	Passed bool   `json:"passed"`
}

type actorParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
}

type fundParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type idParams struct {
	ID uint64 `json:"id"`
}

type addressParams struct {
	Address string `json:"address"`
}

type listingJSON struct {
	ID               uint64          `json:"id"`
	Seller           string          `json:"seller"`
	Buyer            string          `json:"buyer"`
	PurchasePrice    string          `json:"purchasePrice"`
	EscrowAmount     string          `json:"escrowAmount"`
	InspectionPassed bool            `json:"inspectionPassed"`
	DepositedBalance string          `json:"depositedBalance"`
	BuyerApproved    bool            `json:"buyerApproved"`
	SellerApproved   bool            `json:"sellerApproved"`
	LenderApproved   bool            `json:"lenderApproved"`
	Status           string          `json:"status"`
	IsListed         bool            `json:"isListed"`
	Approvals        map[string]bool `json:"approvals,omitempty"`
	CreatedAt        int64           `json:"createdAt"`
	ClosedAt         int64           `json:"closedAt,omitempty"`
}

func (s *Server) handleMintDeed(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params mintDeedParams
	if !decodeParams(w, req, &params) {
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	deed, err := s.node.MintDeed(owner, params.TokenURI)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, mintDeedResult{ID: deed.ID})
}

func (s *Server) handleListProperty(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params listPropertyParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	price, err := parseAmount(params.PurchasePrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	down, err := parseAmount(params.EscrowAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	listing, err := s.node.ListProperty(params.ID, caller, buyer, price, down)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, idParams{ID: listing.ID})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params depositParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.Deposit(params.ID, caller, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params inspectParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.SetInspection(params.ID, caller, params.Passed); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleTransition(w, req, s.node.Approve)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleTransition(w, req, s.node.Finalize)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleTransition(w, req, s.node.Cancel)
}

func (s *Server) handleTransition(w http.ResponseWriter, req *RPCRequest, fn func(uint64, [20]byte) error) {
	var params actorParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := fn(params.ID, caller); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params fundParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.FaucetFund(addr, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params idParams
	if !decodeParams(w, req, &params) {
		return
	}
	view, err := s.node.GetListing(params.ID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatListingJSON(view))
}

func (s *Server) handleGetListings(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	ids := s.node.ListingIDs()
	out := make([]listingJSON, 0, len(ids))
	for _, id := range ids {
		view, err := s.node.GetListing(id)
		if err != nil {
			continue
		}
		out = append(out, formatListingJSON(view))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params addressParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.node.GetBalance(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"address": params.Address,
		"balance": balance.String(),
	})
}

func (s *Server) handleDeedOwner(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params idParams
	if !decodeParams(w, req, &params) {
		return
	}
	deed, err := s.node.Deed(params.ID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"owner":    formatAddress(deed.Owner),
		"tokenURI": deed.TokenURI,
	})
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, s.node.Events())
}

func decodeParams(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", "exactly one parameter object expected")
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return false
	}
	return true
}

func parseAddress(addr string) ([20]byte, error) {
	decoded, err := crypto.DecodeAddress(addr)
	if err != nil {
		return [20]byte{}, err
	}
	return decoded.Array(), nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, errors.New("invalid amount")
	}
	if amount.Sign() < 0 {
		return nil, errors.New("amount must be non-negative")
	}
	return amount, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.HSTPrefix, addr[:]).String()
}

func formatListingJSON(view *core.ListingView) listingJSON {
	listing := view.Listing
	out := listingJSON{
		ID:               listing.ID,
		Seller:           formatAddress(listing.Seller),
		Buyer:            formatAddress(listing.Buyer),
		PurchasePrice:    listing.PurchasePrice.String(),
		EscrowAmount:     listing.EscrowAmount.String(),
		InspectionPassed: listing.InspectionPassed,
		DepositedBalance: listing.DepositedBalance.String(),
		BuyerApproved:    view.BuyerApproved,
		SellerApproved:   view.SellerApproved,
		LenderApproved:   view.LenderApproved,
		Status:           listing.Status.String(),
		IsListed:         listing.Open(),
		CreatedAt:        listing.CreatedAt,
		ClosedAt:         listing.ClosedAt,
	}
	if len(listing.Approvals) > 0 {
		out.Approvals = make(map[string]bool, len(listing.Approvals))
		for account, approved := range listing.Approvals {
			out.Approvals[formatAddress(account)] = approved
		}
	}
	return out
}

func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	if err == nil {
		return
	}
	status := http.StatusInternalServerError
	code := codeEscrowInternal
	message := "internal_error"
	var pe *escrow.PreconditionError
	switch {
	case errors.Is(err, escrow.ErrUnknownListing) || errors.Is(err, registry.ErrUnknownDeed):
		status = http.StatusNotFound
		code = codeEscrowNotFound
		message = "not_found"
	case errors.Is(err, escrow.ErrUnauthorized) || errors.Is(err, registry.ErrUnauthorized):
		status = http.StatusForbidden
		code = codeEscrowForbidden
		message = "forbidden"
	case errors.Is(err, escrow.ErrInvalidAmount):
		status = http.StatusBadRequest
		code = codeEscrowInvalidParams
		message = "invalid_params"
	case errors.As(err, &pe),
		errors.Is(err, escrow.ErrListingClosed),
		errors.Is(err, escrow.ErrAlreadyListed),
		errors.Is(err, escrow.ErrInsufficientFunds):
		status = http.StatusConflict
		code = codeEscrowConflict
		message = "conflict"
	}
	writeError(w, status, id, code, message, err.Error())
}
