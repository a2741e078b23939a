//go:build pact

package carriers

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/pact-foundation/pact-go/v2/consumer"
	"github.com/pact-foundation/pact-go/v2/matchers"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lms-platform/shipping-core/internal/domain"
)

const (
	consumerName = "shipping-core"
	pactDir      = "../../build/pacts"
)

func newPact(t *testing.T, provider string) *consumer.V4HTTPMockProvider {
	t.Helper()
	mock, err := consumer.NewV4Pact(consumer.MockHTTPProviderConfig{
		Consumer: consumerName,
		Provider: provider,
		PactDir:  pactDir,
	})
	require.NoError(t, err)
	return mock
}

func mockURL(config consumer.MockServerConfig) string {
	return fmt.Sprintf("http://%s:%d", config.Host, config.Port)
}

func jsonHeader(b *consumer.V4ResponseBuilder) *consumer.V4ResponseBuilder {
	return b.Header("Content-Type", matchers.String("application/json"))
}

func TestDelhiveryContract(t *testing.T) {
	t.Run("track undelivered package", func(t *testing.T) {
		mock := newPact(t, "delhivery")

		err := mock.
			AddInteraction().
			Given("waybill 1234567890 had a failed delivery attempt").
			UponReceiving("a tracking request for one waybill").
			WithRequest(http.MethodGet, "/api/v1/packages/json/", func(b *consumer.V4RequestBuilder) {
				b.Query("waybill", matchers.String("1234567890")).
					Header("Authorization", matchers.String("Token dl-token"))
			}).
			WillRespondWith(http.StatusOK, func(b *consumer.V4ResponseBuilder) {
				jsonHeader(b).JSONBody(matchers.Map{
					"ShipmentData": matchers.EachLike(matchers.Map{
						"Shipment": matchers.Map{
							"AWB": matchers.String("1234567890"),
							"Status": matchers.Map{
								"Status":         matchers.String("Undelivered"),
								"StatusType":     matchers.String("UD"),
								"StatusLocation": matchers.String("Mumbai_Andheri_D"),
								"StatusDateTime": matchers.String("2026-10-12T18:30:00.000"),
								"Instructions":   matchers.String("Consignee not available"),
							},
							"Scans": matchers.EachLike(matchers.Map{
								"ScanDetail": matchers.Map{
									"Scan":            matchers.String("Undelivered"),
									"ScanType":        matchers.String("UD"),
									"ScanDateTime":    matchers.String("2026-10-12T18:30:00"),
									"ScannedLocation": matchers.String("Mumbai_Andheri_D"),
									"Instructions":    matchers.String("Consignee not available"),
								},
							}, 1),
						},
					}, 1),
				})
			}).
			ExecuteTest(t, func(config consumer.MockServerConfig) error {
				adapter := NewDelhiveryAdapter(DelhiveryConfig{BaseURL: mockURL(config), Token: "dl-token"}, 5*time.Second, testDeps())
				snap, err := adapter.Track(context.Background(), "1234567890")
				if err != nil {
					return err
				}
				assert.Equal(t, domain.TrackingUndelivered, snap.Status)
				assert.Equal(t, domain.FailureCustomerUnavailable, snap.FailureReason)
				return nil
			})
		require.NoError(t, err)
	})

	t.Run("cancel manifested waybill", func(t *testing.T) {
		mock := newPact(t, "delhivery")

		err := mock.
			AddInteraction().
			Given("waybill 1234567890 is manifested and not picked up").
			UponReceiving("a cancellation request").
			WithRequest(http.MethodPost, "/api/p/edit", func(b *consumer.V4RequestBuilder) {
				b.Header("Content-Type", matchers.String("application/json")).
					Header("Authorization", matchers.String("Token dl-token")).
					JSONBody(matchers.Map{
						"waybill":      matchers.String("1234567890"),
						"cancellation": matchers.String("true"),
					})
			}).
			WillRespondWith(http.StatusOK, func(b *consumer.V4ResponseBuilder) {
				jsonHeader(b).JSONBody(matchers.Map{
					"status": matchers.Like(true),
					"remark": matchers.String("Shipment has been cancelled."),
				})
			}).
			ExecuteTest(t, func(config consumer.MockServerConfig) error {
				adapter := NewDelhiveryAdapter(DelhiveryConfig{BaseURL: mockURL(config), Token: "dl-token"}, 5*time.Second, testDeps())
				return adapter.Cancel(context.Background(), "1234567890")
			})
		require.NoError(t, err)
	})
}

func shiprocketLogin(mock *consumer.V4HTTPMockProvider) {
	mock.
		AddInteraction().
		UponReceiving("a login with api user credentials").
		WithRequest(http.MethodPost, "/v1/external/auth/login", func(b *consumer.V4RequestBuilder) {
			b.JSONBody(matchers.Map{
				"email":    matchers.String("ops@example.com"),
				"password": matchers.String("secret"),
			})
		}).
		WillRespondWith(http.StatusOK, func(b *consumer.V4ResponseBuilder) {
			jsonHeader(b).JSONBody(matchers.Map{"token": matchers.String("sr-token")})
		})
}

func TestShiprocketContract(t *testing.T) {
	t.Run("cancel shipment by awb", func(t *testing.T) {
		mock := newPact(t, "shiprocket")
		shiprocketLogin(mock)

		err := mock.
			AddInteraction().
			Given("awb SR1 belongs to an unpicked shipment").
			UponReceiving("a cancellation request for one awb").
			WithRequest(http.MethodPost, "/v1/external/orders/cancel/shipment/awbs", func(b *consumer.V4RequestBuilder) {
				b.Header("Authorization", matchers.String("Bearer sr-token")).
					JSONBody(matchers.Map{"awbs": matchers.EachLike(matchers.String("SR1"), 1)})
			}).
			WillRespondWith(http.StatusOK, func(b *consumer.V4ResponseBuilder) {
				jsonHeader(b).JSONBody(matchers.Map{"message": matchers.String("Bulk Shipment cancellation is in progress.")})
			}).
			ExecuteTest(t, func(config consumer.MockServerConfig) error {
				adapter := NewShiprocketAdapter(ShiprocketConfig{
					BaseURL: mockURL(config), Email: "ops@example.com", Password: "secret", TokenTTL: time.Hour,
				}, 5*time.Second, testDeps())
				return adapter.Cancel(context.Background(), "SR1")
			})
		require.NoError(t, err)
	})
}

func TestXpressbeesContract(t *testing.T) {
	t.Run("serviceability prices every product", func(t *testing.T) {
		mock := newPact(t, "xpressbees")
		mock.
			AddInteraction().
			UponReceiving("a login with api user credentials").
			WithRequest(http.MethodPost, "/api/users/login", func(b *consumer.V4RequestBuilder) {
				b.JSONBody(matchers.Map{
					"email":    matchers.String("ops@example.com"),
					"password": matchers.String("secret"),
				})
			}).
			WillRespondWith(http.StatusOK, func(b *consumer.V4ResponseBuilder) {
				jsonHeader(b).JSONBody(matchers.Map{"status": matchers.Like(true), "data": matchers.String("xb-token")})
			})

		err := mock.
			AddInteraction().
			Given("lane 110001 to 400001 is serviceable").
			UponReceiving("a serviceability request for a cod parcel").
			WithRequest(http.MethodPost, "/api/courier/serviceability", func(b *consumer.V4RequestBuilder) {
				b.Header("Authorization", matchers.String("Bearer xb-token")).
					JSONBody(matchers.Map{
						"origin":       matchers.String("110001"),
						"destination":  matchers.String("400001"),
						"payment_type": matchers.String("cod"),
						"order_amount": matchers.String("500.00"),
						"weight":       matchers.Integer(1500),
						"is_reverse":   matchers.Like(false),
					})
			}).
			WillRespondWith(http.StatusOK, func(b *consumer.V4ResponseBuilder) {
				jsonHeader(b).JSONBody(matchers.Map{
					"status": matchers.Like(true),
					"data": matchers.Like([]map[string]any{
						{"id": "2", "name": "Surface 2kg", "min_weight": 2000, "freight_charges": 120, "cod_charges": 35, "total_charges": 161},
						{"id": "3", "name": "Air 2kg", "min_weight": 2000, "freight_charges": 200, "cod_charges": 35, "total_charges": 245},
					}),
				})
			}).
			ExecuteTest(t, func(config consumer.MockServerConfig) error {
				adapter := NewXpressbeesAdapter(XpressbeesConfig{
					BaseURL: mockURL(config), Email: "ops@example.com", Password: "secret", TokenTTL: time.Hour,
				}, 5*time.Second, testDeps())

				req := quoteRequest()
				req.ChargeableWeightKg = decimal.RequireFromString("1.5")
				quotes, err := adapter.QuoteServices(context.Background(), req)
				if err != nil {
					return err
				}
				if assert.Len(t, quotes, 2) {
					assert.Equal(t, "express", quotes[1].ServiceType)
				}
				return nil
			})
		require.NoError(t, err)
	})

	t.Run("cancel booked awb", func(t *testing.T) {
		mock := newPact(t, "xpressbees")
		mock.
			AddInteraction().
			UponReceiving("a login before cancelling").
			WithRequest(http.MethodPost, "/api/users/login", func(b *consumer.V4RequestBuilder) {
				b.JSONBody(matchers.Map{
					"email":    matchers.String("ops@example.com"),
					"password": matchers.String("secret"),
				})
			}).
			WillRespondWith(http.StatusOK, func(b *consumer.V4ResponseBuilder) {
				jsonHeader(b).JSONBody(matchers.Map{"status": matchers.Like(true), "data": matchers.String("xb-token")})
			})

		err := mock.
			AddInteraction().
			Given("awb XB1 is booked and not picked up").
			UponReceiving("a cancellation request").
			WithRequest(http.MethodPost, "/api/shipments2/cancel", func(b *consumer.V4RequestBuilder) {
				b.Header("Authorization", matchers.String("Bearer xb-token")).
					JSONBody(matchers.Map{"awb": matchers.String("XB1")})
			}).
			WillRespondWith(http.StatusOK, func(b *consumer.V4ResponseBuilder) {
				jsonHeader(b).JSONBody(matchers.Map{"status": matchers.Like(true), "message": matchers.String("Cancelled")})
			}).
			ExecuteTest(t, func(config consumer.MockServerConfig) error {
				adapter := NewXpressbeesAdapter(XpressbeesConfig{
					BaseURL: mockURL(config), Email: "ops@example.com", Password: "secret", TokenTTL: time.Hour,
				}, 5*time.Second, testDeps())
				return adapter.Cancel(context.Background(), "XB1")
			})
		require.NoError(t, err)
	})
}
