package carriers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/pkg/logging"
	"github.com/lms-platform/shipping-core/pkg/money"
	"github.com/lms-platform/shipping-core/pkg/resilience"
)

func testDeps() Deps {
	logger := logging.NewNop()
	return Deps{Logger: logger, Breakers: resilience.NewCircuitBreakerRegistry(logger.Logger)}
}

func dropConnection(w http.ResponseWriter) {
	conn, _, err := w.(http.Hijacker).Hijack()
	if err == nil {
		_ = conn.Close()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func quoteRequest() domain.QuoteRequest {
	return domain.QuoteRequest{
		OriginPincode:      "110001",
		DestinationPincode: "400001",
		ChargeableWeightKg: decimal.RequireFromString("1"),
		OrderType:          domain.OrderTypeCOD,
		CollectableValue:   decimal.RequireFromString("500"),
		DeclaredValue:      decimal.RequireFromString("500"),
	}
}

func newDelhivery(t *testing.T, handler http.HandlerFunc) *DelhiveryAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewDelhiveryAdapter(DelhiveryConfig{BaseURL: server.URL, Token: "dl-token", PickupLocation: "WH-DEL"}, time.Second, testDeps())
}

func TestDelhiveryQuote(t *testing.T) {
	adapter := newDelhivery(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/kinko/v1/invoice/charges/.json", r.URL.Path)
		assert.Equal(t, "Token dl-token", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "S", q.Get("md"))
		assert.Equal(t, "Delivered", q.Get("ss"))
		assert.Equal(t, "1000", q.Get("cgm"))
		assert.Equal(t, "COD", q.Get("pt"))
		assert.Equal(t, "500.00", q.Get("cod"))

		writeJSON(w, http.StatusOK, []map[string]any{{
			"status":         "success",
			"total_amount":   150.5,
			"charged_weight": 1000,
			"zone":           "D",
			"charge_freight": 110,
			"charge_cod":     35,
			"charge_fs":      5.5,
		}})
	})

	quote, err := adapter.Quote(context.Background(), quoteRequest())
	require.NoError(t, err)
	require.NotNil(t, quote)

	assert.Equal(t, "delhivery", quote.CarrierName)
	assert.Equal(t, "surface", quote.ServiceType)
	assert.Equal(t, "D", quote.Zone)
	assert.Equal(t, 1.0, quote.ChargedWeight)
	assert.Equal(t, "150.50", quote.TotalCharge.String())
	assert.Equal(t, "110.00", quote.FreightCharge.String())
	assert.Equal(t, "35.00", quote.CODCharge.String())
	assert.Equal(t, "5.50", quote.FuelSurcharge.String())
	assert.Equal(t, domain.SourceLiveCarrierAPI, quote.SourceKind)
}

func TestDelhiveryQuote_SoftFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		mutate  func(*domain.QuoteRequest)
		calls   int32
	}{
		{
			name: "bad request",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pin"})
			},
			calls: 1,
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			calls:   1,
		},
		{
			name:    "malformed payload",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<html>")) },
			calls:   1,
		},
		{
			name:    "no usable charge",
			handler: func(w http.ResponseWriter, r *http.Request) { writeJSON(w, http.StatusOK, []map[string]any{}) },
			calls:   1,
		},
		{
			name:    "zero weight",
			handler: func(w http.ResponseWriter, r *http.Request) { t.Error("carrier must not be called") },
			mutate:  func(q *domain.QuoteRequest) { q.ChargeableWeightKg = decimal.Zero },
		},
		{
			name:    "missing pincode",
			handler: func(w http.ResponseWriter, r *http.Request) { t.Error("carrier must not be called") },
			mutate:  func(q *domain.QuoteRequest) { q.DestinationPincode = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			adapter := newDelhivery(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.handler(w, r)
			})

			req := quoteRequest()
			if tt.mutate != nil {
				tt.mutate(&req)
			}

			quote, err := adapter.Quote(context.Background(), req)
			assert.NoError(t, err)
			assert.Nil(t, quote)
			assert.Equal(t, tt.calls, calls.Load())
		})
	}
}

func TestQuote_RetriesOnceOnTransportFailure(t *testing.T) {
	var calls atomic.Int32
	adapter := newDelhivery(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			dropConnection(w)
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{{"total_amount": 99, "charge_freight": 99}})
	})

	quote, err := adapter.Quote(context.Background(), quoteRequest())
	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.Equal(t, "99.00", quote.TotalCharge.String())
	assert.Equal(t, int32(2), calls.Load())
}

func TestQuote_GivesUpAfterSecondTransportFailure(t *testing.T) {
	var calls atomic.Int32
	adapter := newDelhivery(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		dropConnection(w)
	})

	quote, err := adapter.Quote(context.Background(), quoteRequest())
	assert.Error(t, err)
	assert.Nil(t, quote)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTrack_IsNotRetried(t *testing.T) {
	var calls atomic.Int32
	adapter := newDelhivery(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		dropConnection(w)
	})

	_, err := adapter.Track(context.Background(), "AWB1")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGateway_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	adapter := newDelhivery(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < int(resilience.DefaultFailureThreshold); i++ {
		_, err := adapter.Track(context.Background(), "AWB1")
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusServiceUnavailable, se.Status)
	}

	_, err := adapter.Track(context.Background(), "AWB1")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(resilience.DefaultFailureThreshold), calls.Load())
}

func TestDelhiveryTrack_Undelivered(t *testing.T) {
	adapter := newDelhivery(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AWB1", r.URL.Query().Get("waybill"))
		writeJSON(w, http.StatusOK, map[string]any{
			"ShipmentData": []map[string]any{{
				"Shipment": map[string]any{
					"AWB": "AWB1",
					"Status": map[string]any{
						"Status":         "Undelivered",
						"StatusType":     "UD",
						"StatusLocation": "Mumbai_Andheri_D",
						"StatusDateTime": "2026-10-12T18:30:00.000",
						"Instructions":   "Consignee not available",
					},
					"Scans": []map[string]any{
						{"ScanDetail": map[string]any{"Scan": "Manifested", "ScanType": "UD", "ScanDateTime": "2026-10-09T10:00:00"}},
						{"ScanDetail": map[string]any{"Scan": "Undelivered", "ScanType": "UD", "ScanDateTime": "2026-10-11T18:00:00", "Instructions": "Door locked"}},
						{"ScanDetail": map[string]any{"Scan": "Undelivered", "ScanType": "UD", "ScanDateTime": "2026-10-12T18:30:00", "Instructions": "Consignee not available"}},
					},
				},
			}},
		})
	})

	snap, err := adapter.Track(context.Background(), "AWB1")
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, domain.TrackingUndelivered, snap.Status)
	assert.Equal(t, 2, snap.FailedAttempts)
	assert.Equal(t, domain.FailureCustomerUnavailable, snap.FailureReason)
	assert.Equal(t, "Mumbai_Andheri_D", snap.Location)
	assert.Len(t, snap.Scans, 3)
	assert.Equal(t, time.Date(2026, 10, 12, 13, 0, 0, 0, time.UTC), snap.Timestamp)
}

func TestDelhiveryTrack_Empty(t *testing.T) {
	adapter := newDelhivery(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ShipmentData": []any{}})
	})

	snap, err := adapter.Track(context.Background(), "AWB1")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestDelhiveryStatus(t *testing.T) {
	tests := []struct {
		statusType, status string
		expected           domain.TrackingStatus
	}{
		{"DL", "Delivered", domain.TrackingDelivered},
		{"DL", "RTO", domain.TrackingRTO},
		{"RT", "In Transit", domain.TrackingRTO},
		{"UD", "Undelivered", domain.TrackingUndelivered},
		{"UD", "In Transit", domain.TrackingInTransit},
		{"UD", "Manifested", domain.TrackingBooked},
		{"LT", "Lost", domain.TrackingLost},
		{"CN", "Cancelled", domain.TrackingCancelled},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, delhiveryStatus(tt.statusType, tt.status), "%s/%s", tt.statusType, tt.status)
	}
}

func TestDelhiveryBook(t *testing.T) {
	adapter := newDelhivery(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/cmu/create.json", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "json", r.PostForm.Get("format"))

		var data struct {
			Shipments []map[string]string `json:"shipments"`
			Pickup    map[string]string   `json:"pickup_location"`
		}
		assert.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("data")), &data))
		if assert.Len(t, data.Shipments, 1) {
			assert.Equal(t, "COD", data.Shipments[0]["payment_mode"])
			assert.Equal(t, "400001", data.Shipments[0]["pin"])
			assert.Equal(t, "1500", data.Shipments[0]["weight"])
		}
		assert.Equal(t, "WH-DEL", data.Pickup["name"])

		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"upload_wbn": "UPL-9",
			"packages":   []map[string]any{{"waybill": "1234567890", "status": "Success"}},
		})
	})

	result, err := adapter.Book(context.Background(), bookingRequest())
	require.NoError(t, err)
	assert.Equal(t, "1234567890", result.AWB)
	assert.Equal(t, "UPL-9", result.Reference)
}

func TestDelhiveryBook_Rejected(t *testing.T) {
	adapter := newDelhivery(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  false,
			"rmk":      "failed",
			"packages": []map[string]any{{"waybill": "", "remarks": []string{"Crashing while saving package"}}},
		})
	})

	_, err := adapter.Book(context.Background(), bookingRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Crashing while saving package")
}

func TestDelhiveryNDRAction(t *testing.T) {
	adapter := newDelhivery(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/p/update", r.URL.Path)
		var body struct {
			Data []map[string]string `json:"data"`
		}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) && assert.Len(t, body.Data, 1) {
			assert.Equal(t, "RE-ATTEMPT", body.Data[0]["act"])
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": true, "request_id": "req-1"})
	})

	result, err := adapter.SubmitNDRAction(context.Background(), "AWB1", domain.NDRActionReattempt, domain.NDRActionData{})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, "req-1", result.Reference)
}

func bookingRequest() domain.BookingRequest {
	return domain.BookingRequest{
		ShipmentID:  "SHP-1",
		ServiceType: "surface",
		WeightKg:    decimal.RequireFromString("1.5"),
		Order: &domain.Order{
			OrderID:          "ORD-1",
			UserID:           "user-1",
			OrderType:        domain.OrderTypeCOD,
			CollectableValue: moneyOf("500"),
			DeclaredValue:    moneyOf("500"),
			ActualWeightKg:   1.5,
			Consignee: &domain.Consignee{
				Name: "Asha", Phone: "9876543210", Address: "12 MG Road", City: "Mumbai", State: "MH", Pincode: "400001",
			},
		},
		Pickup: &domain.Warehouse{WarehouseID: "WH-1", Name: "Main", Pincode: "110001"},
	}
}

func moneyOf(s string) money.Amount {
	return money.MustParse(s)
}

type shiprocketServer struct {
	logins atomic.Int32
	calls  atomic.Int32
	tokens []string
	handle func(w http.ResponseWriter, r *http.Request, token string)
}

func (s *shiprocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/v1/external/auth/login" {
		n := int(s.logins.Add(1))
		token := s.tokens[len(s.tokens)-1]
		if n <= len(s.tokens) {
			token = s.tokens[n-1]
		}
		time.Sleep(20 * time.Millisecond)
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
		return
	}
	s.calls.Add(1)
	auth := r.Header.Get("Authorization")
	s.handle(w, r, auth[len("Bearer "):])
}

func newShiprocket(t *testing.T, srv *shiprocketServer) *ShiprocketAdapter {
	t.Helper()
	server := httptest.NewServer(srv)
	t.Cleanup(server.Close)
	return NewShiprocketAdapter(ShiprocketConfig{BaseURL: server.URL, Email: "ops@example.com", Password: "secret", TokenTTL: time.Hour}, time.Second, testDeps())
}

var shiprocketDelivered = map[string]any{
	"tracking_data": map[string]any{
		"track_status":    1,
		"shipment_status": 7,
		"shipment_track":  []map[string]any{{"current_status": "Delivered", "updated_time": "2026-10-10 12:00:00"}},
		"shipment_track_activities": []map[string]any{
			{"date": "2026-10-10 12:00:00", "activity": "Delivered", "location": "Mumbai", "sr-status-label": "DELIVERED"},
		},
	},
}

func TestShiprocket_ReauthenticatesOnceOn401(t *testing.T) {
	srv := &shiprocketServer{tokens: []string{"t1", "t2"}}
	srv.handle = func(w http.ResponseWriter, r *http.Request, token string) {
		if token == "t1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, shiprocketDelivered)
	}
	adapter := newShiprocket(t, srv)

	snap, err := adapter.Track(context.Background(), "SR1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, domain.TrackingDelivered, snap.Status)
	assert.Equal(t, "Mumbai", snap.Location)
	assert.Equal(t, int32(2), srv.logins.Load())
	assert.Equal(t, int32(2), srv.calls.Load())

	_, err = adapter.Track(context.Background(), "SR1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), srv.logins.Load(), "refreshed token is reused")
}

func TestShiprocket_ReplaysOnlyOnce(t *testing.T) {
	srv := &shiprocketServer{tokens: []string{"t1", "t2", "t3"}}
	srv.handle = func(w http.ResponseWriter, r *http.Request, token string) {
		w.WriteHeader(http.StatusUnauthorized)
	}
	adapter := newShiprocket(t, srv)

	_, err := adapter.Track(context.Background(), "SR1")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Equal(t, int32(2), srv.logins.Load())
	assert.Equal(t, int32(2), srv.calls.Load())
}

func TestShiprocket_ConcurrentCallersShareOneLogin(t *testing.T) {
	srv := &shiprocketServer{tokens: []string{"t1"}}
	srv.handle = func(w http.ResponseWriter, r *http.Request, token string) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": 200,
			"data": map[string]any{"available_courier_companies": []map[string]any{
				{"courier_name": "Delhivery Surface", "rate": 120, "freight_charge": 100, "cod_charges": 20},
				{"courier_name": "Ekart Logistics", "rate": 110, "freight_charge": 80, "cod_charges": 30},
			}},
		})
	}
	adapter := newShiprocket(t, srv)

	var wg sync.WaitGroup
	quotes := make([]*domain.ChargeBreakdown, 10)
	for i := range quotes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			quotes[i], _ = adapter.Quote(context.Background(), quoteRequest())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), srv.logins.Load())
	for _, q := range quotes {
		require.NotNil(t, q)
		assert.Equal(t, "Ekart Logistics", q.ServiceType)
		assert.Equal(t, "110.00", q.TotalCharge.String())
	}
}

func TestFromShiprocketQuote_NamedCourier(t *testing.T) {
	var body shiprocketServiceability
	body.Data.AvailableCourierCompanies = []shiprocketCourier{
		{CourierName: "Delhivery Surface", Rate: 120, FreightCharge: 100, CODCharges: 20},
		{CourierName: "Ekart Logistics", Rate: 110, FreightCharge: 80, CODCharges: 30},
	}

	q, err := fromShiprocketQuote(body, "delhivery surface")
	require.NoError(t, err)
	assert.Equal(t, "120.00", q.TotalCharge.String())

	_, err = fromShiprocketQuote(body, "bluedart")
	var se *softError
	assert.ErrorAs(t, err, &se)
}

func TestShiprocketStatus(t *testing.T) {
	assert.Equal(t, domain.TrackingDelivered, shiprocketStatus(7))
	assert.Equal(t, domain.TrackingCancelled, shiprocketStatus(8))
	assert.Equal(t, domain.TrackingRTO, shiprocketStatus(9))
	assert.Equal(t, domain.TrackingRTO, shiprocketStatus(10))
	assert.Equal(t, domain.TrackingLost, shiprocketStatus(11))
	assert.Equal(t, domain.TrackingUndelivered, shiprocketStatus(21))
	assert.Equal(t, domain.TrackingInTransit, shiprocketStatus(6))
}

func TestSelectSlab(t *testing.T) {
	slabs := []xpressbeesSlab{
		{Name: "Surface 2kg", MinWeight: 2000, TotalCharges: 150},
		{Name: "Surface 0.5kg", MinWeight: 500, TotalCharges: 70},
		{Name: "Surface 5kg", MinWeight: 5000, TotalCharges: 260},
		{Name: "Surface 1kg", MinWeight: 1000, TotalCharges: 95},
	}

	tests := []struct {
		grams    string
		expected float64
	}{
		{"400", 500},
		{"500", 500},
		{"1000", 1000},
		{"1200", 2000},
		{"6000", 5000},
	}
	for _, tt := range tests {
		s, ok := selectSlab(slabs, decimal.RequireFromString(tt.grams))
		require.True(t, ok)
		assert.Equal(t, tt.expected, s.MinWeight, "weight %sg", tt.grams)
	}

	_, ok := selectSlab(nil, decimal.NewFromInt(1000))
	assert.False(t, ok)
}

func TestXpressbeesQuote(t *testing.T) {
	var logins atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/users/login":
			logins.Add(1)
			writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": "xb-token"})
		case "/api/courier/serviceability":
			assert.Equal(t, "Bearer xb-token", r.Header.Get("Authorization"))
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, float64(1500), body["weight"])
			assert.Equal(t, "cod", body["payment_type"])
			writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": []map[string]any{
				{"id": "1", "name": "Surface 1kg", "min_weight": 1000, "freight_charges": 80, "cod_charges": 35, "total_charges": 119},
				{"id": "2", "name": "Surface 2kg", "min_weight": 2000, "freight_charges": 120, "cod_charges": 35, "total_charges": 161},
				{"id": "3", "name": "Air 2kg", "min_weight": 2000, "freight_charges": 200, "cod_charges": 35, "total_charges": 245},
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	adapter := NewXpressbeesAdapter(XpressbeesConfig{BaseURL: server.URL, Email: "ops@example.com", Password: "secret", TokenTTL: time.Hour}, time.Second, testDeps())

	req := quoteRequest()
	req.ChargeableWeightKg = decimal.RequireFromString("1.5")
	quote, err := adapter.Quote(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, quote)

	assert.Equal(t, "xpressbees", quote.CarrierName)
	assert.Equal(t, "surface", quote.ServiceType)
	assert.Equal(t, 2.0, quote.ChargedWeight)
	assert.Equal(t, "161.00", quote.TotalCharge.String())
	assert.Equal(t, "6.00", quote.FuelSurcharge.String())
	assert.Equal(t, int32(1), logins.Load())
}

func TestTokenCache_Expiry(t *testing.T) {
	var logins int
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	cache := newTokenCache("test", time.Hour, func(ctx context.Context) (string, error) {
		logins++
		return "token", nil
	}, nil)
	cache.now = func() time.Time { return now }

	_, err := cache.Get(context.Background())
	require.NoError(t, err)
	_, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, logins)

	now = now.Add(time.Hour)
	_, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, logins)

	cache.Invalidate("other")
	_, _ = cache.Get(context.Background())
	assert.Equal(t, 2, logins)

	cache.Invalidate("token")
	_, _ = cache.Get(context.Background())
	assert.Equal(t, 3, logins)
}

func TestTokenCache_LoginFailure(t *testing.T) {
	cache := newTokenCache("test", time.Hour, func(ctx context.Context) (string, error) {
		return "", errors.New("bad credentials")
	}, nil)

	_, err := cache.Get(context.Background())
	assert.EqualError(t, err, "bad credentials")
}

func TestClassifyFailure(t *testing.T) {
	assert.Equal(t, domain.FailureCustomerUnavailable, classifyFailure("Consignee not available"))
	assert.Equal(t, domain.FailureAddressIssue, classifyFailure("Address incomplete"))
	assert.Equal(t, domain.FailureRefused, classifyFailure("Customer refused delivery"))
	assert.Equal(t, domain.FailureCODNotReady, classifyFailure("COD not ready"))
	assert.Equal(t, domain.FailureOther, classifyFailure("Vehicle breakdown"))
	assert.Equal(t, domain.FailureReason(""), classifyFailure(""))
}

type stubAdapter struct {
	domain.CarrierAdapter
	name string
}

func (s stubAdapter) Name() string { return s.name }

func TestRegistry(t *testing.T) {
	registry := NewRegistry(stubAdapter{name: "xpressbees"}, stubAdapter{name: "delhivery"}, stubAdapter{name: "shiprocket"})

	assert.Equal(t, []string{"delhivery", "shiprocket", "xpressbees"}, registry.Names())
	all := registry.All()
	require.Len(t, all, 3)
	assert.Equal(t, "delhivery", all[0].Name())

	a, err := registry.Get("shiprocket")
	require.NoError(t, err)
	assert.Equal(t, "shiprocket", a.Name())

	_, err = registry.Get("bluedart")
	assert.ErrorIs(t, err, domain.ErrCarrierNotFound)
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Delhivery.Enabled = true
	cfg.Xpressbees.Enabled = true

	registry := NewRegistryFromConfig(cfg, testDeps())
	assert.Equal(t, []string{"delhivery", "xpressbees"}, registry.Names())
}

func TestFromEnv(t *testing.T) {
	env := map[string]string{
		"CARRIER_TIMEOUT":     "2s",
		"SHIPROCKET_ENABLED":  "true",
		"SHIPROCKET_EMAIL":    "ops@example.com",
		"SHIPROCKET_PASSWORD": "secret",
		"DELHIVERY_BASE_URL":  "http://delhivery.local",
	}
	cfg := FromEnv(func(key string) string { return env[key] })

	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.True(t, cfg.Shiprocket.Enabled)
	assert.Equal(t, "ops@example.com", cfg.Shiprocket.Email)
	assert.Equal(t, "https://apiv2.shiprocket.in", cfg.Shiprocket.BaseURL)
	assert.False(t, cfg.Delhivery.Enabled)
	assert.Equal(t, "http://delhivery.local", cfg.Delhivery.BaseURL)
	assert.False(t, cfg.Xpressbees.Enabled)

	assert.Equal(t, 5*time.Second, FromEnv(func(string) string { return "" }).Timeout)
}

func newXpressbees(t *testing.T, handle http.HandlerFunc) *XpressbeesAdapter {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/users/login" {
			writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": "xb-token"})
			return
		}
		handle(w, r)
	}))
	t.Cleanup(server.Close)
	return NewXpressbeesAdapter(XpressbeesConfig{BaseURL: server.URL, Email: "ops@example.com", Password: "secret", TokenTTL: time.Hour}, time.Second, testDeps())
}

func TestDelhiveryCancel(t *testing.T) {
	adapter := newDelhivery(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/p/edit", r.URL.Path)
		assert.Equal(t, "Token dl-token", r.Header.Get("Authorization"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "1234567890", body["waybill"])
		assert.Equal(t, "true", body["cancellation"])
		writeJSON(w, http.StatusOK, map[string]any{"status": true, "remark": "Shipment has been cancelled."})
	})

	require.NoError(t, adapter.Cancel(context.Background(), "1234567890"))
}

func TestDelhiveryCancel_Refused(t *testing.T) {
	adapter := newDelhivery(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "remark": "Shipment is already dispatched"})
	})

	err := adapter.Cancel(context.Background(), "1234567890")
	var rejected *domain.CarrierRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, DelhiveryName, rejected.Carrier)
	assert.Equal(t, "1234567890", rejected.AWB)
	assert.Equal(t, "Shipment is already dispatched", rejected.Reason)
}

func TestShiprocketCancel(t *testing.T) {
	srv := &shiprocketServer{tokens: []string{"t1"}}
	srv.handle = func(w http.ResponseWriter, r *http.Request, token string) {
		assert.Equal(t, "/v1/external/orders/cancel/shipment/awbs", r.URL.Path)
		var body map[string][]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["awbs"][0] == "SR-PICKED" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Cannot cancel, shipment already picked up"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Bulk Shipment cancellation is in progress."})
	}
	adapter := newShiprocket(t, srv)

	require.NoError(t, adapter.Cancel(context.Background(), "SR1"))

	err := adapter.Cancel(context.Background(), "SR-PICKED")
	var rejected *domain.CarrierRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Reason, "already picked up")
}

func TestXpressbeesCancel(t *testing.T) {
	var cancelled []string
	adapter := newXpressbees(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/shipments2/cancel", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch body["awb"] {
		case "XB-DOWN":
			w.WriteHeader(http.StatusBadGateway)
		case "XB-OLD":
			writeJSON(w, http.StatusOK, map[string]any{"status": false, "message": "AWB already in transit"})
		default:
			cancelled = append(cancelled, body["awb"])
			writeJSON(w, http.StatusOK, map[string]any{"status": true, "message": "Cancelled"})
		}
	})

	require.NoError(t, adapter.Cancel(context.Background(), "XB1"))
	assert.Equal(t, []string{"XB1"}, cancelled)

	err := adapter.Cancel(context.Background(), "XB-OLD")
	var rejected *domain.CarrierRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "AWB already in transit", rejected.Reason)

	err = adapter.Cancel(context.Background(), "XB-DOWN")
	require.Error(t, err)
	assert.False(t, errors.As(err, &rejected), "outages are not refusals")
}

func TestXpressbeesQuoteServices(t *testing.T) {
	var calls atomic.Int32
	adapter := newXpressbees(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": []map[string]any{
			{"id": "1", "name": "Surface 1kg", "min_weight": 1000, "freight_charges": 80, "cod_charges": 35, "total_charges": 119},
			{"id": "2", "name": "Surface 2kg", "min_weight": 2000, "freight_charges": 120, "cod_charges": 35, "total_charges": 161},
			{"id": "3", "name": "Air 2kg", "min_weight": 2000, "freight_charges": 200, "cod_charges": 35, "total_charges": 245},
		}})
	})

	req := quoteRequest()
	req.ChargeableWeightKg = decimal.RequireFromString("1.5")
	quotes, err := adapter.QuoteServices(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, int32(1), calls.Load())

	assert.Equal(t, "surface", quotes[0].ServiceType)
	assert.Equal(t, "161.00", quotes[0].TotalCharge.String())
	assert.Equal(t, "express", quotes[1].ServiceType)
	assert.Equal(t, "245.00", quotes[1].TotalCharge.String())

	req.ServiceType = "express"
	express, err := adapter.Quote(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, express)
	assert.Equal(t, "245.00", express.TotalCharge.String())
}

func TestSlabService(t *testing.T) {
	assert.Equal(t, "surface", slabService("Surface 0.5kg"))
	assert.Equal(t, "express", slabService("Air 2kg"))
	assert.Equal(t, "express", slabService("XB Express 1kg"))
	assert.Equal(t, "", slabService("Repair kit"))
}

func TestTokenCache_CancelledCallerDoesNotFailWaiters(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var logins atomic.Int32
	cache := newTokenCache("test", time.Hour, func(ctx context.Context) (string, error) {
		logins.Add(1)
		close(started)
		select {
		case <-release:
			return "token", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Get(firstCtx)
		firstErr <- err
	}()
	<-started

	second := make(chan string, 1)
	go func() {
		token, _ := cache.Get(context.Background())
		second <- token
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	select {
	case token := <-second:
		assert.Equal(t, "token", token)
	case <-time.After(time.Second):
		t.Fatal("waiting caller never got the token")
	}
	assert.Equal(t, int32(1), logins.Load())
}

func TestTokenCache_LoginHasItsOwnDeadline(t *testing.T) {
	cache := newTokenCache("test", time.Hour, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}, nil)
	cache.timeout = 20 * time.Millisecond

	_, err := cache.Get(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
