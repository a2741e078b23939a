package carriers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lms-platform/shipping-core/internal/domain"
)

// ShiprocketName is the carrier code of Shiprocket
const ShiprocketName = "shiprocket"

// ShiprocketAdapter talks to the Shiprocket external API. Shiprocket
// aggregates several couriers, so its service type is the courier name.
type ShiprocketAdapter struct {
	gw  *gateway
	cfg ShiprocketConfig
}

// NewShiprocketAdapter creates a Shiprocket adapter
func NewShiprocketAdapter(cfg ShiprocketConfig, timeout time.Duration, deps Deps) *ShiprocketAdapter {
	a := &ShiprocketAdapter{gw: newGateway(ShiprocketName, cfg.BaseURL, timeout, deps), cfg: cfg}
	a.gw.tokens = newTokenCache(ShiprocketName, cfg.TokenTTL, a.login, deps.Metrics)
	return a
}

// Name returns the carrier code
func (a *ShiprocketAdapter) Name() string {
	return ShiprocketName
}

func (a *ShiprocketAdapter) login(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.gw.timeout)
	defer cancel()

	res, err := a.gw.sendOnce(ctx, request{
		Operation: "login",
		Method:    http.MethodPost,
		Path:      "/v1/external/auth/login",
		JSON:      map[string]string{"email": a.cfg.Email, "password": a.cfg.Password},
	}, "")
	if err != nil {
		return "", err
	}
	if err := a.gw.expectOK(res); err != nil {
		return "", err
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := res.decode(&body); err != nil {
		return "", err
	}
	if body.Token == "" {
		return "", fmt.Errorf("shiprocket login returned no token")
	}
	return body.Token, nil
}

type shiprocketCourier struct {
	CourierName      string  `json:"courier_name"`
	CourierCompanyID int     `json:"courier_company_id"`
	Rate             float64 `json:"rate"`
	FreightCharge    float64 `json:"freight_charge"`
	CODCharges       float64 `json:"cod_charges"`
	Zone             string  `json:"zone"`
	ChargeableWeight float64 `json:"chargeable_weight"`
}

type shiprocketServiceability struct {
	Status int `json:"status"`
	Data   struct {
		AvailableCourierCompanies []shiprocketCourier `json:"available_courier_companies"`
	} `json:"data"`
}

// Quote returns the cheapest courier, or the named one when ServiceType is set
func (a *ShiprocketAdapter) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.ChargeBreakdown, error) {
	if !req.ChargeableWeightKg.IsPositive() || req.OriginPincode == "" || req.DestinationPincode == "" {
		return nil, nil
	}

	return a.gw.quote(ctx, func(ctx context.Context) (*domain.ChargeBreakdown, error) {
		res, err := a.gw.do(ctx, toShiprocketQuoteRequest(req))
		if err != nil {
			return nil, err
		}
		if err := a.gw.expectOK(res); err != nil {
			return nil, err
		}

		var body shiprocketServiceability
		if err := res.decode(&body); err != nil {
			return nil, soft("malformed shiprocket quote: %v", err)
		}
		return fromShiprocketQuote(body, req.ServiceType)
	})
}

func toShiprocketQuoteRequest(req domain.QuoteRequest) request {
	q := url.Values{}
	q.Set("pickup_postcode", req.OriginPincode)
	q.Set("delivery_postcode", req.DestinationPincode)
	q.Set("weight", req.ChargeableWeightKg.String())
	q.Set("declared_value", req.DeclaredValue.StringFixed(2))
	cod := "0"
	if req.OrderType == domain.OrderTypeCOD {
		cod = "1"
	}
	q.Set("cod", cod)
	if req.Reverse {
		q.Set("is_return", "1")
	}
	return request{Operation: "quote", Method: http.MethodGet, Path: "/v1/external/courier/serviceability", Query: q}
}

func fromShiprocketQuote(body shiprocketServiceability, serviceType string) (*domain.ChargeBreakdown, error) {
	var best *shiprocketCourier
	for i := range body.Data.AvailableCourierCompanies {
		c := &body.Data.AvailableCourierCompanies[i]
		if c.Rate <= 0 {
			continue
		}
		if serviceType != "" && !strings.EqualFold(c.CourierName, serviceType) {
			continue
		}
		if best == nil || c.Rate < best.Rate {
			best = c
		}
	}
	if best == nil {
		return nil, soft("shiprocket has no courier for this lane")
	}
	return breakdown(ShiprocketName, best.CourierName, best.Zone, best.ChargeableWeight, best.Rate, best.FreightCharge, best.CODCharges), nil
}

type shiprocketActivity struct {
	Date          string `json:"date"`
	Status        string `json:"status"`
	Activity      string `json:"activity"`
	Location      string `json:"location"`
	SRStatusLabel string `json:"sr-status-label"`
}

type shiprocketTrackResponse struct {
	TrackingData struct {
		TrackStatus    int `json:"track_status"`
		ShipmentStatus int `json:"shipment_status"`
		ShipmentTrack  []struct {
			AWBCode       string `json:"awb_code"`
			CurrentStatus string `json:"current_status"`
			UpdatedTime   string `json:"updated_time"`
			Destination   string `json:"destination"`
		} `json:"shipment_track"`
		Activities []shiprocketActivity `json:"shipment_track_activities"`
	} `json:"tracking_data"`
}

// Track fetches the tracking data of an AWB
func (a *ShiprocketAdapter) Track(ctx context.Context, awb string) (*domain.ShipmentStatusSnapshot, error) {
	res, err := a.gw.do(ctx, request{
		Operation: "track",
		Method:    http.MethodGet,
		Path:      "/v1/external/courier/track/awb/" + url.PathEscape(awb),
	})
	if err != nil {
		return nil, err
	}
	if err := a.gw.expectOK(res); err != nil {
		return nil, err
	}

	var body shiprocketTrackResponse
	if err := res.decode(&body); err != nil {
		return nil, err
	}
	return fromShiprocketTracking(awb, body), nil
}

func fromShiprocketTracking(awb string, body shiprocketTrackResponse) *domain.ShipmentStatusSnapshot {
	td := body.TrackingData
	if td.TrackStatus == 0 {
		return nil
	}

	snap := &domain.ShipmentStatusSnapshot{
		AWB:     awb,
		Carrier: ShiprocketName,
		Status:  shiprocketStatus(td.ShipmentStatus),
	}
	if len(td.ShipmentTrack) > 0 {
		st := td.ShipmentTrack[0]
		snap.CarrierStatus = st.CurrentStatus
		snap.Timestamp = parseCarrierTime(st.UpdatedTime)
	}

	// activities arrive newest first
	lastFailure := ""
	for i, act := range td.Activities {
		snap.Scans = append(snap.Scans, domain.TrackingScan{
			Status:    act.SRStatusLabel,
			Location:  act.Location,
			Remarks:   act.Activity,
			Timestamp: parseCarrierTime(act.Date),
		})
		if i == 0 {
			snap.Location = act.Location
			snap.Remarks = act.Activity
			if snap.Timestamp.IsZero() {
				snap.Timestamp = parseCarrierTime(act.Date)
			}
		}
		if strings.EqualFold(act.SRStatusLabel, "UNDELIVERED") {
			snap.FailedAttempts++
			if lastFailure == "" {
				lastFailure = act.Activity
			}
		}
	}

	if snap.Status == domain.TrackingUndelivered {
		snap.FailureReason = classifyFailure(lastFailure)
		if snap.FailedAttempts == 0 {
			snap.FailedAttempts = 1
		}
	}
	return snap
}

func shiprocketStatus(id int) domain.TrackingStatus {
	switch id {
	case 1, 2, 3, 4, 5, 13:
		return domain.TrackingBooked
	case 7:
		return domain.TrackingDelivered
	case 8:
		return domain.TrackingCancelled
	case 9, 10:
		return domain.TrackingRTO
	case 11, 12:
		return domain.TrackingLost
	case 21:
		return domain.TrackingUndelivered
	}
	return domain.TrackingInTransit
}

// SubmitNDRAction forwards an NDR decision through the NDR action API
func (a *ShiprocketAdapter) SubmitNDRAction(ctx context.Context, awb string, action domain.NDRAction, data domain.NDRActionData) (*domain.ActionResult, error) {
	payload := map[string]string{"comments": data.Remarks}
	switch action {
	case domain.NDRActionReattempt:
		payload["action"] = "re-attempt"
	case domain.NDRActionReturn:
		payload["action"] = "return"
	case domain.NDRActionChangeAddress:
		payload["action"] = "re-attempt"
		payload["address1"] = data.Address
		payload["pincode"] = data.Pincode
	case domain.NDRActionChangePhone:
		payload["action"] = "re-attempt"
		payload["phone"] = data.Phone
	default:
		return nil, fmt.Errorf("shiprocket does not support ndr action %q", action)
	}
	if data.ReattemptDate != nil {
		payload["deferred_date"] = data.ReattemptDate.In(ist).Format("2006-01-02")
	}

	res, err := a.gw.do(ctx, request{
		Operation: "ndr",
		Method:    http.MethodPost,
		Path:      "/v1/external/ndr/" + url.PathEscape(awb) + "/action",
		JSON:      payload,
	})
	if err != nil {
		return nil, err
	}
	if res.Status == http.StatusUnprocessableEntity || res.Status == http.StatusBadRequest {
		var rejected struct {
			Message string `json:"message"`
		}
		_ = res.decode(&rejected)
		return &domain.ActionResult{Accepted: false, Message: rejected.Message}, nil
	}
	if err := a.gw.expectOK(res); err != nil {
		return nil, err
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := res.decode(&body); err != nil {
		return nil, err
	}
	return &domain.ActionResult{Accepted: true, Reference: awb, Message: body.Message}, nil
}

type shiprocketOrder struct {
	OrderID          string  `json:"order_id"`
	OrderDate        string  `json:"order_date"`
	PickupLocation   string  `json:"pickup_location"`
	BillingName      string  `json:"billing_customer_name"`
	BillingAddress   string  `json:"billing_address"`
	BillingCity      string  `json:"billing_city"`
	BillingPincode   string  `json:"billing_pincode"`
	BillingState     string  `json:"billing_state"`
	BillingCountry   string  `json:"billing_country"`
	BillingPhone     string  `json:"billing_phone"`
	ShippingIsBill   bool    `json:"shipping_is_billing"`
	PaymentMethod    string  `json:"payment_method"`
	SubTotal         float64 `json:"sub_total"`
	Length           float64 `json:"length"`
	Breadth          float64 `json:"breadth"`
	Height           float64 `json:"height"`
	Weight           float64 `json:"weight"`
	OrderItems       []any   `json:"order_items"`
	CollectableValue float64 `json:"cod_amount,omitempty"`
}

// Book creates an adhoc order and assigns an AWB to it
func (a *ShiprocketAdapter) Book(ctx context.Context, req domain.BookingRequest) (*domain.BookingResult, error) {
	order, err := toShiprocketOrder(req)
	if err != nil {
		return nil, err
	}

	path := "/v1/external/orders/create/adhoc"
	if req.Reverse {
		path = "/v1/external/orders/create/return"
	}
	res, err := a.gw.do(ctx, request{Operation: "book", Method: http.MethodPost, Path: path, JSON: order})
	if err != nil {
		return nil, err
	}
	if err := a.gw.expectOK(res); err != nil {
		return nil, err
	}

	var created struct {
		OrderID    int    `json:"order_id"`
		ShipmentID int    `json:"shipment_id"`
		AWBCode    string `json:"awb_code"`
	}
	if err := res.decode(&created); err != nil {
		return nil, err
	}
	if created.ShipmentID == 0 {
		return nil, fmt.Errorf("shiprocket created no shipment for %s", req.ShipmentID)
	}

	reference := strconv.Itoa(created.ShipmentID)
	if created.AWBCode != "" {
		return &domain.BookingResult{AWB: created.AWBCode, Reference: reference, BookedAt: time.Now().UTC()}, nil
	}

	res, err = a.gw.do(ctx, request{
		Operation: "assign-awb",
		Method:    http.MethodPost,
		Path:      "/v1/external/courier/assign/awb",
		JSON:      map[string]any{"shipment_id": created.ShipmentID},
	})
	if err != nil {
		return nil, err
	}
	if err := a.gw.expectOK(res); err != nil {
		return nil, err
	}

	var assigned struct {
		AWBAssignStatus int `json:"awb_assign_status"`
		Response        struct {
			Data struct {
				AWBCode string `json:"awb_code"`
			} `json:"data"`
		} `json:"response"`
	}
	if err := res.decode(&assigned); err != nil {
		return nil, err
	}
	if assigned.Response.Data.AWBCode == "" {
		return nil, fmt.Errorf("shiprocket assigned no awb to shipment %d", created.ShipmentID)
	}

	return &domain.BookingResult{AWB: assigned.Response.Data.AWBCode, Reference: reference, BookedAt: time.Now().UTC()}, nil
}

// Cancel cancels the shipment behind an AWB. Shiprocket answers 4xx once the
// courier has picked the parcel up.
func (a *ShiprocketAdapter) Cancel(ctx context.Context, awb string) error {
	res, err := a.gw.do(ctx, request{
		Operation: "cancel",
		Method:    http.MethodPost,
		Path:      "/v1/external/orders/cancel/shipment/awbs",
		JSON:      map[string][]string{"awbs": {awb}},
	})
	if err != nil {
		return err
	}
	return a.gw.refusal(res, "cancel", awb)
}

func toShiprocketOrder(req domain.BookingRequest) (*shiprocketOrder, error) {
	if req.Order == nil || req.Order.Consignee == nil || req.Pickup == nil {
		return nil, fmt.Errorf("booking %s needs an order, a consignee and a pickup warehouse", req.ShipmentID)
	}
	o := req.Order
	c := o.Consignee

	payment := "Prepaid"
	cod := 0.0
	if o.IsCOD() && !req.Reverse {
		payment = "COD"
		cod = o.CollectableValue.InexactFloat64()
	}
	weight, _ := req.WeightKg.Float64()

	return &shiprocketOrder{
		OrderID:          req.ShipmentID + "-" + o.OrderID,
		OrderDate:        time.Now().In(ist).Format("2006-01-02 15:04"),
		PickupLocation:   req.Pickup.Name,
		BillingName:      c.Name,
		BillingAddress:   c.Address,
		BillingCity:      c.City,
		BillingPincode:   c.Pincode,
		BillingState:     c.State,
		BillingCountry:   "India",
		BillingPhone:     c.Phone,
		ShippingIsBill:   true,
		PaymentMethod:    payment,
		SubTotal:         o.DeclaredValue.InexactFloat64(),
		Length:           o.Dimensions.LengthCm,
		Breadth:          o.Dimensions.BreadthCm,
		Height:           o.Dimensions.HeightCm,
		Weight:           weight,
		OrderItems:       []any{map[string]any{"name": o.OrderID, "sku": o.OrderID, "units": 1, "selling_price": o.DeclaredValue.InexactFloat64()}},
		CollectableValue: cod,
	}, nil
}
