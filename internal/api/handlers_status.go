package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// handleGetInfo returns wei raised, team wallet, and lifecycle flags.
func (s *Server) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	saleID := mux.Vars(r)["saleID"]

	info, err := s.status.GetCrowdsaleInfo(r.Context(), saleID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// handleGetTokenInfo returns name, symbol, decimals, and total supply.
func (s *Server) handleGetTokenInfo(w http.ResponseWriter, r *http.Request) {
	saleID := mux.Vars(r)["saleID"]

	info, err := s.status.GetTokenInfo(r.Context(), saleID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// handleGetStatus returns the time-dependent sale projection. An explicit
// ?at= timestamp bypasses the cache so replayed queries stay deterministic.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	saleID := mux.Vars(r)["saleID"]

	at, explicit, err := parseTimestamp(r.URL.Query().Get("at"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if !explicit && s.statusCache != nil {
		if cached, err := s.statusCache.Get(r.Context(), saleID); err == nil && cached != nil {
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	now := at
	if !explicit {
		now = s.clock.Now()
	}

	status, err := s.status.GetCrowdsaleStatus(r.Context(), saleID, now)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if !explicit && s.statusCache != nil {
		_ = s.statusCache.Set(r.Context(), saleID, status)
	}

	respondJSON(w, http.StatusOK, status)
}

// handleGetTokensSold returns cumulative units issued.
func (s *Server) handleGetTokensSold(w http.ResponseWriter, r *http.Request) {
	saleID := mux.Vars(r)["saleID"]

	sold, err := s.status.GetTokensSold(r.Context(), saleID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"saleId": saleID, "tokensSold": sold.String()})
}

// handleGetTotalSupply returns the token's total supply in units.
func (s *Server) handleGetTotalSupply(w http.ResponseWriter, r *http.Request) {
	saleID := mux.Vars(r)["saleID"]

	supply, err := s.status.TotalSupply(r.Context(), saleID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"saleId": saleID, "totalSupply": supply.String()})
}

// handleGetWhitelist returns every whitelisted address with its limits.
func (s *Server) handleGetWhitelist(w http.ResponseWriter, r *http.Request) {
	saleID := mux.Vars(r)["saleID"]

	entries, err := s.status.GetCrowdsaleWhitelist(r.Context(), saleID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// handleGetWhitelistStatus returns whitelist constraints for one address.
func (s *Server) handleGetWhitelistStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	saleID := vars["saleID"]

	addr, err := parseAddress(vars["address"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	status, err := s.status.GetWhitelistStatus(r.Context(), saleID, addr)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// handleGetBalance returns the unit balance of an address.
func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	saleID := vars["saleID"]

	addr, err := parseAddress(vars["address"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	balance, err := s.status.BalanceOf(r.Context(), saleID, addr)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"saleId":  saleID,
		"address": addr.Hex(),
		"units":   balance.String(),
	})
}
