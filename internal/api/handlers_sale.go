package api

import (
	"math/big"
	"net/http"
	"strconv"

	apperrors "github.com/crowdsale-engine/internal/errors"
	"github.com/crowdsale-engine/internal/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// CreateSaleRequest carries the sale parameters. All monetary and unit
// values are decimal strings.
type CreateSaleRequest struct {
	ID          string `json:"id,omitempty"` // generated when omitted
	TokenName   string `json:"tokenName"`
	TokenSymbol string `json:"tokenSymbol"`
	Decimals    uint8  `json:"decimals"`
	TeamWallet  string `json:"teamWallet"`
	TotalSupply string `json:"totalSupply"`
	SellCap     string `json:"sellCap"`
	StartPrice  string `json:"startPrice"`
	EndPrice    string `json:"endPrice"`
	StartTime   uint64 `json:"startTime"`
	Duration    uint64 `json:"duration"`
	Whitelisted bool   `json:"whitelisted"`
}

// CreateSaleResponse returns the assigned sale ID.
type CreateSaleResponse struct {
	SaleID string `json:"saleId"`
}

// PurchaseRequest carries one purchase attempt. The optional At timestamp
// supports deterministic replay; when omitted the server clock is used.
type PurchaseRequest struct {
	Buyer     string  `json:"buyer"`
	AmountWei string  `json:"amountWei"`
	At        *uint64 `json:"at,omitempty"`
}

// PurchaseResponse reports a committed purchase.
type PurchaseResponse struct {
	SaleID      string `json:"saleId"`
	Buyer       string `json:"buyer"`
	Units       string `json:"units"`
	AcceptedWei string `json:"acceptedWei"`
	RefundWei   string `json:"refundWei"`
	PriceWei    string `json:"priceWei"`
	Timestamp   uint64 `json:"timestamp"`
}

// SetMinimumRequest sets the open-sale first-purchase floor.
type SetMinimumRequest struct {
	MinimumUnits string `json:"minimumUnits"`
}

// SetWhitelistEntryRequest sets per-address purchase constraints.
type SetWhitelistEntryRequest struct {
	MinimumUnits      string `json:"minimumUnits"`
	MaxSpendRemaining string `json:"maxSpendRemaining"`
}

// handleCreateSale creates a new sale.
func (s *Server) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body", nil)
		return
	}

	wallet, err := parseAddress(req.TeamWallet)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	cfg := &models.SaleConfig{
		ID:          req.ID,
		TokenName:   req.TokenName,
		TokenSymbol: req.TokenSymbol,
		Decimals:    req.Decimals,
		TeamWallet:  wallet,
		StartTime:   req.StartTime,
		Duration:    req.Duration,
		Whitelisted: req.Whitelisted,
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}

	fields := []struct {
		name  string
		value string
		dst   **big.Int
	}{
		{"totalSupply", req.TotalSupply, &cfg.TotalSupply},
		{"sellCap", req.SellCap, &cfg.SellCap},
		{"startPrice", req.StartPrice, &cfg.StartPrice},
		{"endPrice", req.EndPrice, &cfg.EndPrice},
	}
	for _, f := range fields {
		v, err := parseBigInt(f.name, f.value)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		*f.dst = v
	}

	if err := s.engine.CreateSale(r.Context(), cfg); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, CreateSaleResponse{SaleID: cfg.ID})
}

// handleInitialize marks a sale ready for purchases.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	saleID := mux.Vars(r)["saleID"]

	if err := s.engine.Initialize(r.Context(), saleID); err != nil {
		respondServiceError(w, err)
		return
	}
	s.invalidateStatus(r, saleID)

	respondJSON(w, http.StatusOK, map[string]string{"saleId": saleID, "status": "initialized"})
}

// handleFinalize flips the finalized flag.
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	saleID := mux.Vars(r)["saleID"]

	if err := s.engine.Finalize(r.Context(), saleID); err != nil {
		respondServiceError(w, err)
		return
	}
	s.invalidateStatus(r, saleID)

	respondJSON(w, http.StatusOK, map[string]string{"saleId": saleID, "status": "finalized"})
}

// handlePurchase executes a purchase.
func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	saleID := mux.Vars(r)["saleID"]

	var req PurchaseRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body", nil)
		return
	}

	buyer, err := parseAddress(req.Buyer)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	amount, err := parseBigInt("amountWei", req.AmountWei)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	now := s.clock.Now()
	if req.At != nil {
		now = *req.At
	}

	receipt, err := s.engine.Purchase(r.Context(), saleID, buyer, amount, now)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	s.invalidateStatus(r, saleID)

	respondJSON(w, http.StatusOK, PurchaseResponse{
		SaleID:      receipt.SaleID,
		Buyer:       receipt.Buyer.Hex(),
		Units:       receipt.Units.String(),
		AcceptedWei: receipt.AcceptedWei.String(),
		RefundWei:   receipt.RefundWei.String(),
		PriceWei:    receipt.PriceWei.String(),
		Timestamp:   receipt.Timestamp,
	})
}

// handleSetGlobalMinimum sets the open-sale minimum first purchase.
func (s *Server) handleSetGlobalMinimum(w http.ResponseWriter, r *http.Request) {
	saleID := mux.Vars(r)["saleID"]

	var req SetMinimumRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body", nil)
		return
	}

	units, err := parseBigInt("minimumUnits", req.MinimumUnits)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if err := s.engine.SetGlobalMinimum(r.Context(), saleID, units); err != nil {
		respondServiceError(w, err)
		return
	}
	s.invalidateStatus(r, saleID)

	respondJSON(w, http.StatusOK, map[string]string{"saleId": saleID, "minimumUnits": units.String()})
}

// handleSetWhitelistEntry sets per-address constraints.
func (s *Server) handleSetWhitelistEntry(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	saleID := vars["saleID"]

	addr, err := parseAddress(vars["address"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	var req SetWhitelistEntryRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body", nil)
		return
	}

	minimum, err := parseBigInt("minimumUnits", req.MinimumUnits)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	remaining, err := parseBigInt("maxSpendRemaining", req.MaxSpendRemaining)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	entry := &models.WhitelistEntry{MinimumUnits: minimum, MaxSpendRemaining: remaining}
	if err := s.engine.SetWhitelistEntry(r.Context(), saleID, addr, entry); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"saleId": saleID, "address": addr.Hex()})
}

// invalidateStatus drops the cached status projection after a mutation.
func (s *Server) invalidateStatus(r *http.Request, saleID string) {
	if s.statusCache == nil {
		return
	}
	if err := s.statusCache.Invalidate(r.Context(), saleID); err != nil {
		// stale entries expire with the TTL anyway
		return
	}
}

// parseAddress validates and parses a hex address.
func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, apperrors.NewInvalidAddressError(raw)
	}
	return common.HexToAddress(raw), nil
}

// parseBigInt parses a non-negative decimal string.
func parseBigInt(param, raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, apperrors.NewInvalidParameterError(param, "must be a non-negative decimal string")
	}
	return v, nil
}

// parseTimestamp parses an optional unix-seconds query parameter.
func parseTimestamp(raw string) (uint64, bool, error) {
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, apperrors.NewInvalidParameterError("at", "must be a unix timestamp")
	}
	return v, true, nil
}
