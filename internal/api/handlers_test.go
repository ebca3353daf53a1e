package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crowdsale-engine/internal/logging"
	"github.com/crowdsale-engine/internal/sale"
	"github.com/crowdsale-engine/internal/storage"
	"github.com/ethereum/go-ethereum/common"
)

// fixedClock pins the server clock for deterministic responses.
type fixedClock uint64

func (f fixedClock) Now() uint64 { return uint64(f) }

// nopPaymentSink accepts every payment.
type nopPaymentSink struct{}

func (nopPaymentSink) Pay(context.Context, string, common.Address, *big.Int) error { return nil }

// recordingStatusCache tracks cache traffic without a Redis instance.
type recordingStatusCache struct {
	entries     map[string]*sale.CrowdsaleStatus
	invalidated int
}

func newRecordingStatusCache() *recordingStatusCache {
	return &recordingStatusCache{entries: make(map[string]*sale.CrowdsaleStatus)}
}

func (c *recordingStatusCache) Get(_ context.Context, saleID string) (*sale.CrowdsaleStatus, error) {
	return c.entries[saleID], nil
}

func (c *recordingStatusCache) Set(_ context.Context, saleID string, status *sale.CrowdsaleStatus) error {
	c.entries[saleID] = status
	return nil
}

func (c *recordingStatusCache) Invalidate(_ context.Context, saleID string) error {
	delete(c.entries, saleID)
	c.invalidated++
	return nil
}

func newTestServer(cache StatusCacheInterface) *Server {
	store := storage.NewMemoryStore()
	logger := logging.NewLogger(logging.LevelError, logging.FormatText)
	engine := sale.NewEngine(store, nopPaymentSink{}, nil, logger)
	status := sale.NewStatusService(store)

	cfg := &ServerConfig{
		Host:              "127.0.0.1",
		Port:              "0",
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       30 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             1000,
	}
	return NewServer(cfg, engine, status, cache, fixedClock(1500))
}

func doRequest(server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)
	return w
}

func createTestSale(t *testing.T, server *Server, whitelisted bool) string {
	t.Helper()

	w := doRequest(server, "POST", "/api/v1/sales", CreateSaleRequest{
		TokenName:   "Test Token",
		TokenSymbol: "TST",
		Decimals:    0,
		TeamWallet:  "0x00000000000000000000000000000000000000aa",
		TotalSupply: "1000",
		SellCap:     "1000",
		StartPrice:  "1000",
		EndPrice:    "1000",
		StartTime:   1000,
		Duration:    1000,
		Whitelisted: whitelisted,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create sale status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp CreateSaleResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if resp.SaleID == "" {
		t.Fatal("create sale returned empty ID")
	}

	w = doRequest(server, "POST", "/api/v1/sales/"+resp.SaleID+"/initialize", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("initialize status = %d, body = %s", w.Code, w.Body.String())
	}
	return resp.SaleID
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v (body %s)", err, w.Body.String())
	}
	return resp.Error.Code
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(nil)

	w := doRequest(server, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", w.Code)
	}
}

func TestPurchaseFlow(t *testing.T) {
	server := newTestServer(nil)
	saleID := createTestSale(t, server, false)
	at := uint64(1500)

	w := doRequest(server, "POST", "/api/v1/sales/"+saleID+"/purchase", PurchaseRequest{
		Buyer:     "0x00000000000000000000000000000000000000b1",
		AmountWei: "10000",
		At:        &at,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("purchase status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp PurchaseResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode purchase response: %v", err)
	}
	if resp.Units != "10" || resp.AcceptedWei != "10000" || resp.RefundWei != "0" {
		t.Errorf("receipt = %+v, want 10 units for 10000 wei", resp)
	}
	if resp.Timestamp != 1500 {
		t.Errorf("timestamp = %d, want 1500", resp.Timestamp)
	}

	w = doRequest(server, "GET", "/api/v1/sales/"+saleID+"/tokens-sold", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tokens-sold status = %d", w.Code)
	}
	var sold map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &sold); err != nil {
		t.Fatalf("decode tokens-sold: %v", err)
	}
	if sold["tokensSold"] != "10" {
		t.Errorf("tokensSold = %s, want 10", sold["tokensSold"])
	}

	w = doRequest(server, "GET", "/api/v1/sales/"+saleID+"/balances/0x00000000000000000000000000000000000000b1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("balance status = %d", w.Code)
	}
	var balance map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance["units"] != "10" {
		t.Errorf("balance = %s, want 10", balance["units"])
	}
}

func TestPurchaseRejectionOnTheWire(t *testing.T) {
	server := newTestServer(nil)
	saleID := createTestSale(t, server, false)

	tests := []struct {
		name       string
		amount     string
		at         uint64
		wantStatus int
		wantCode   string
	}{
		{"before start", "1000", 500, http.StatusConflict, "BeforeStartTime"},
		{"past end", "1000", 2000, http.StatusConflict, "CrowdsaleFinished"},
		{"zero payment", "0", 1500, http.StatusBadRequest, "NoWeiSent"},
		{"below one unit", "999", 1500, http.StatusBadRequest, "InvalidPurchaseAmount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := tt.at
			w := doRequest(server, "POST", "/api/v1/sales/"+saleID+"/purchase", PurchaseRequest{
				Buyer:     "0x00000000000000000000000000000000000000b1",
				AmountWei: tt.amount,
				At:        &at,
			})
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if code := errorCode(t, w); code != tt.wantCode {
				t.Errorf("error code = %s, want %s", code, tt.wantCode)
			}
		})
	}
}

func TestCreateSaleValidation(t *testing.T) {
	server := newTestServer(nil)

	t.Run("malformed JSON", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/sales", bytes.NewReader([]byte("not json")))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		server.Router().ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("bad team wallet", func(t *testing.T) {
		w := doRequest(server, "POST", "/api/v1/sales", CreateSaleRequest{
			TokenName:   "Test Token",
			TokenSymbol: "TST",
			TeamWallet:  "not-an-address",
			TotalSupply: "1000",
			SellCap:     "1000",
			StartPrice:  "1000",
			EndPrice:    "1000",
			StartTime:   1000,
			Duration:    1000,
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
		if code := errorCode(t, w); code != "INVALID_ADDRESS" {
			t.Errorf("error code = %s, want INVALID_ADDRESS", code)
		}
	})

	t.Run("bad numeric field", func(t *testing.T) {
		w := doRequest(server, "POST", "/api/v1/sales", CreateSaleRequest{
			TokenName:   "Test Token",
			TokenSymbol: "TST",
			TeamWallet:  "0x00000000000000000000000000000000000000aa",
			TotalSupply: "many",
			SellCap:     "1000",
			StartPrice:  "1000",
			EndPrice:    "1000",
			StartTime:   1000,
			Duration:    1000,
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
		if code := errorCode(t, w); code != "INVALID_PARAMETER" {
			t.Errorf("error code = %s, want INVALID_PARAMETER", code)
		}
	})

	t.Run("zero duration", func(t *testing.T) {
		w := doRequest(server, "POST", "/api/v1/sales", CreateSaleRequest{
			TokenName:   "Test Token",
			TokenSymbol: "TST",
			TeamWallet:  "0x00000000000000000000000000000000000000aa",
			TotalSupply: "1000",
			SellCap:     "1000",
			StartPrice:  "1000",
			EndPrice:    "1000",
			StartTime:   1000,
			Duration:    0,
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
		if code := errorCode(t, w); code != "INVALID_SALE_CONFIG" {
			t.Errorf("error code = %s, want INVALID_SALE_CONFIG", code)
		}
	})
}

func TestWhitelistEndpoints(t *testing.T) {
	server := newTestServer(nil)
	saleID := createTestSale(t, server, true)
	addr := "0x00000000000000000000000000000000000000b1"

	w := doRequest(server, "PUT", fmt.Sprintf("/api/v1/sales/%s/whitelist/%s", saleID, addr), SetWhitelistEntryRequest{
		MinimumUnits:      "5",
		MaxSpendRemaining: "50",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("set whitelist status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doRequest(server, "GET", fmt.Sprintf("/api/v1/sales/%s/whitelist/%s", saleID, addr), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get whitelist status = %d", w.Code)
	}
	var status sale.WhitelistStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode whitelist status: %v", err)
	}
	if !status.Listed || status.MinimumUnits != "5" || status.MaxSpendRemaining != "50" {
		t.Errorf("whitelist status = %+v, want listed with 5/50", status)
	}

	w = doRequest(server, "GET", "/api/v1/sales/"+saleID+"/whitelist", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list whitelist status = %d", w.Code)
	}
	var entries []*sale.WhitelistStatus
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode whitelist list: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("whitelist size = %d, want 1", len(entries))
	}

	// A whitelisted sale rejects buyers without an entry.
	at := uint64(1500)
	w = doRequest(server, "POST", "/api/v1/sales/"+saleID+"/purchase", PurchaseRequest{
		Buyer:     "0x00000000000000000000000000000000000000b2",
		AmountWei: "1000",
		At:        &at,
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("unlisted purchase status = %d, want 403", w.Code)
	}
	if code := errorCode(t, w); code != "SpendAmountExceeded" {
		t.Errorf("error code = %s, want SpendAmountExceeded", code)
	}
}

func TestSetGlobalMinimumEndpoint(t *testing.T) {
	server := newTestServer(nil)
	saleID := createTestSale(t, server, false)

	w := doRequest(server, "PUT", "/api/v1/sales/"+saleID+"/minimum", SetMinimumRequest{MinimumUnits: "10"})
	if w.Code != http.StatusOK {
		t.Fatalf("set minimum status = %d, body = %s", w.Code, w.Body.String())
	}

	at := uint64(1500)
	w = doRequest(server, "POST", "/api/v1/sales/"+saleID+"/purchase", PurchaseRequest{
		Buyer:     "0x00000000000000000000000000000000000000b1",
		AmountWei: "8999",
		At:        &at,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("under-minimum purchase status = %d, want 400", w.Code)
	}
	if code := errorCode(t, w); code != "UnderMinCap" {
		t.Errorf("error code = %s, want UnderMinCap", code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	server := newTestServer(nil)
	saleID := createTestSale(t, server, false)

	// Explicit timestamp drives the projection.
	w := doRequest(server, "GET", "/api/v1/sales/"+saleID+"/status?at=1500", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status request = %d", w.Code)
	}
	var status sale.CrowdsaleStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.At != 1500 || status.CurrentPrice != "1000" {
		t.Errorf("status = %+v, want at=1500 price=1000", status)
	}

	// A bad timestamp is rejected.
	w = doRequest(server, "GET", "/api/v1/sales/"+saleID+"/status?at=later", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad timestamp status = %d, want 400", w.Code)
	}
}

func TestStatusCacheInteraction(t *testing.T) {
	cache := newRecordingStatusCache()
	server := newTestServer(cache)
	saleID := createTestSale(t, server, false)
	invalidatedAfterSetup := cache.invalidated

	// An implicit-clock query populates the cache.
	w := doRequest(server, "GET", "/api/v1/sales/"+saleID+"/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status request = %d", w.Code)
	}
	if cache.entries[saleID] == nil {
		t.Fatal("status query did not populate the cache")
	}

	// An explicit ?at= query bypasses the cached projection.
	cache.entries[saleID].CurrentPrice = "poisoned"
	w = doRequest(server, "GET", "/api/v1/sales/"+saleID+"/status?at=1500", nil)
	var status sale.CrowdsaleStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.CurrentPrice == "poisoned" {
		t.Error("explicit-timestamp query served the cached projection")
	}

	// A purchase invalidates the cached entry.
	at := uint64(1500)
	w = doRequest(server, "POST", "/api/v1/sales/"+saleID+"/purchase", PurchaseRequest{
		Buyer:     "0x00000000000000000000000000000000000000b1",
		AmountWei: "1000",
		At:        &at,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("purchase status = %d, body = %s", w.Code, w.Body.String())
	}
	if cache.invalidated <= invalidatedAfterSetup {
		t.Error("purchase did not invalidate the status cache")
	}
	if _, ok := cache.entries[saleID]; ok {
		t.Error("cached entry survived a purchase")
	}
}

func TestUnknownSaleReturns404(t *testing.T) {
	server := newTestServer(nil)

	w := doRequest(server, "GET", "/api/v1/sales/missing/info", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if code := errorCode(t, w); code != "SALE_NOT_FOUND" {
		t.Errorf("error code = %s, want SALE_NOT_FOUND", code)
	}
}
