// Package gateway serves a read-only REST facade over the node, joining
// on-chain listing state with off-chain property metadata for browser
// front-ends.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"homestead/core"
	"homestead/crypto"
	"homestead/gateway/middleware"
	"homestead/metadata"
	"homestead/native/escrow"
)

const metadataFetchTimeout = 5 * time.Second

type Config struct {
	ListenAddress   string
	RateLimitPerMin float64
	RateLimitBurst  int
}

type Server struct {
	node     *core.Node
	metadata *metadata.Client
	logger   *slog.Logger
	router   chi.Router
	obs      *middleware.Observability
}

func NewServer(node *core.Node, metadataClient *metadata.Client, logger *slog.Logger, cfg Config) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		node:     node,
		metadata: metadataClient,
		logger:   logger,
		obs:      middleware.NewObservability(),
	}

	limiter := middleware.NewRateLimiter(middleware.RateLimit{
		RequestsPerMinute: cfg.RateLimitPerMin,
		Burst:             cfg.RateLimitBurst,
	})

	r := chi.NewRouter()
	r.Use(middleware.CORS(middleware.CORSConfig{}))
	r.Use(limiter.Middleware())

	r.Method(http.MethodGet, "/healthz", s.obs.Middleware("/healthz")(http.HandlerFunc(s.handleHealthz)))
	r.Method(http.MethodGet, "/listings", s.obs.Middleware("/listings")(http.HandlerFunc(s.handleListings)))
	r.Method(http.MethodGet, "/listings/{id}", s.obs.Middleware("/listings/{id}")(http.HandlerFunc(s.handleListing)))
	r.Method(http.MethodGet, "/deeds/{id}", s.obs.Middleware("/deeds/{id}")(http.HandlerFunc(s.handleDeed)))
	r.Handle("/metrics", s.obs.MetricsHandler())

	s.router = r
	return s
}

// Handler exposes the routing tree for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("gateway listening", slog.String("address", addr))
	return srv.ListenAndServe()
}

// listingResponse joins the on-chain listing record with the property
// document behind the deed's token URI. Property is null when the metadata
// fetch fails; listing state is always served.
type listingResponse struct {
	ID               uint64             `json:"id"`
	Seller           string             `json:"seller"`
	Buyer            string             `json:"buyer"`
	PurchasePrice    string             `json:"purchasePrice"`
	EscrowAmount     string             `json:"escrowAmount"`
	DepositedBalance string             `json:"depositedBalance"`
	InspectionPassed bool               `json:"inspectionPassed"`
	BuyerApproved    bool               `json:"buyerApproved"`
	SellerApproved   bool               `json:"sellerApproved"`
	LenderApproved   bool               `json:"lenderApproved"`
	Status           string             `json:"status"`
	TokenURI         string             `json:"tokenURI,omitempty"`
	Property         *metadata.Property `json:"property"`
	CreatedAt        int64              `json:"createdAt"`
	ClosedAt         int64              `json:"closedAt,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	ids := s.node.ListingIDs()
	out := make([]*listingResponse, 0, len(ids))
	for _, id := range ids {
		view, err := s.node.GetListing(id)
		if err != nil {
			continue
		}
		out = append(out, s.buildListingResponse(r.Context(), id, view))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"listings": out})
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	view, err := s.node.GetListing(id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "listing not found")
		return
	}
	writeJSON(w, http.StatusOK, s.buildListingResponse(r.Context(), id, view))
}

func (s *Server) handleDeed(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	deed, err := s.node.Deed(id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "deed not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       deed.ID,
		"owner":    formatAddress(deed.Owner),
		"tokenURI": deed.TokenURI,
		"mintedAt": deed.MintedAt,
	})
}

func (s *Server) buildListingResponse(ctx context.Context, id uint64, view *core.ListingView) *listingResponse {
	listing := view.Listing
	resp := &listingResponse{
		ID:               listing.ID,
		Seller:           formatAddress(listing.Seller),
		Buyer:            formatAddress(listing.Buyer),
		PurchasePrice:    listing.PurchasePrice.String(),
		EscrowAmount:     listing.EscrowAmount.String(),
		DepositedBalance: listing.DepositedBalance.String(),
		InspectionPassed: listing.InspectionPassed,
		BuyerApproved:    view.BuyerApproved,
		SellerApproved:   view.SellerApproved,
		LenderApproved:   view.LenderApproved,
		Status:           statusLabel(listing.Status),
		CreatedAt:        listing.CreatedAt,
		ClosedAt:         listing.ClosedAt,
	}
	deed, err := s.node.Deed(id)
	if err != nil {
		return resp
	}
	resp.TokenURI = deed.TokenURI

	fetchCtx, cancel := context.WithTimeout(ctx, metadataFetchTimeout)
	defer cancel()
	property, err := s.metadata.Fetch(fetchCtx, deed.TokenURI)
	if err != nil {
		s.logger.Warn("metadata fetch failed",
			slog.Uint64("id", id),
			slog.String("tokenURI", deed.TokenURI),
			slog.String("error", err.Error()))
		return resp
	}
	resp.Property = property
	return resp
}

func statusLabel(status escrow.ListingStatus) string {
	switch status {
	case escrow.ListingOpen:
		return "open"
	case escrow.ListingFinalized:
		return "finalized"
	case escrow.ListingCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func formatAddress(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.HSTPrefix, addr[:]).String()
}

func parseID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
