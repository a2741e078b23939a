package carriers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lms-platform/shipping-core/internal/domain"
)

// XpressbeesName is the carrier code of Xpressbees
const XpressbeesName = "xpressbees"

// XpressbeesAdapter talks to the Xpressbees franchise API. Xpressbees prices
// coarse weight slabs, each offered as its own courier product.
type XpressbeesAdapter struct {
	gw  *gateway
	cfg XpressbeesConfig
}

// NewXpressbeesAdapter creates an Xpressbees adapter
func NewXpressbeesAdapter(cfg XpressbeesConfig, timeout time.Duration, deps Deps) *XpressbeesAdapter {
	a := &XpressbeesAdapter{gw: newGateway(XpressbeesName, cfg.BaseURL, timeout, deps), cfg: cfg}
	a.gw.tokens = newTokenCache(XpressbeesName, cfg.TokenTTL, a.login, deps.Metrics)
	return a
}

// Name returns the carrier code
func (a *XpressbeesAdapter) Name() string {
	return XpressbeesName
}

type xpressbeesEnvelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func (a *XpressbeesAdapter) login(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.gw.timeout)
	defer cancel()

	res, err := a.gw.sendOnce(ctx, request{
		Operation: "login",
		Method:    http.MethodPost,
		Path:      "/api/users/login",
		JSON:      map[string]string{"email": a.cfg.Email, "password": a.cfg.Password},
	}, "")
	if err != nil {
		return "", err
	}
	if err := a.gw.expectOK(res); err != nil {
		return "", err
	}

	var body xpressbeesEnvelope[string]
	if err := res.decode(&body); err != nil {
		return "", err
	}
	if !body.Status || body.Data == "" {
		return "", fmt.Errorf("xpressbees login failed: %s", body.Message)
	}
	return body.Data, nil
}

// xpressbeesSlab is one priced courier product. MinWeight is the slab size in grams.
type xpressbeesSlab struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	FreightCharges float64 `json:"freight_charges"`
	CODCharges     float64 `json:"cod_charges"`
	TotalCharges   float64 `json:"total_charges"`
	MinWeight      float64 `json:"min_weight"`
}

// xpressbeesServices are the products offered when no service is asked for
var xpressbeesServices = []string{"surface", "express"}

// Quote prices the slab nearest to the chargeable weight
func (a *XpressbeesAdapter) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.ChargeBreakdown, error) {
	if !req.ChargeableWeightKg.IsPositive() || req.OriginPincode == "" || req.DestinationPincode == "" {
		return nil, nil
	}

	return a.gw.quote(ctx, func(ctx context.Context) (*domain.ChargeBreakdown, error) {
		slabs, err := a.serviceability(ctx, req)
		if err != nil {
			return nil, err
		}
		return fromXpressbeesQuote(slabs, req)
	})
}

// QuoteServices prices every Xpressbees product from one serviceability call
func (a *XpressbeesAdapter) QuoteServices(ctx context.Context, req domain.QuoteRequest) ([]domain.ChargeBreakdown, error) {
	if !req.ChargeableWeightKg.IsPositive() || req.OriginPincode == "" || req.DestinationPincode == "" {
		return nil, nil
	}

	return quoteWith(ctx, a.gw, func(ctx context.Context) ([]domain.ChargeBreakdown, error) {
		slabs, err := a.serviceability(ctx, req)
		if err != nil {
			return nil, err
		}

		var quotes []domain.ChargeBreakdown
		for _, service := range xpressbeesServices {
			r := req
			r.ServiceType = service
			charge, err := fromXpressbeesQuote(slabs, r)
			if err != nil {
				continue
			}
			quotes = append(quotes, *charge)
		}
		if len(quotes) == 0 {
			return nil, soft("xpressbees has no slab for this lane")
		}
		return quotes, nil
	})
}

func (a *XpressbeesAdapter) serviceability(ctx context.Context, req domain.QuoteRequest) ([]xpressbeesSlab, error) {
	res, err := a.gw.do(ctx, toXpressbeesQuoteRequest(req))
	if err != nil {
		return nil, err
	}
	if err := a.gw.expectOK(res); err != nil {
		return nil, err
	}

	var body xpressbeesEnvelope[[]xpressbeesSlab]
	if err := res.decode(&body); err != nil {
		return nil, soft("malformed xpressbees quote: %v", err)
	}
	if !body.Status {
		return nil, soft("xpressbees cannot quote: %s", body.Message)
	}
	return body.Data, nil
}

func xpressbeesService(serviceType string) string {
	if serviceType == "" {
		return "surface"
	}
	return strings.ToLower(serviceType)
}

func toXpressbeesQuoteRequest(req domain.QuoteRequest) request {
	payment := "prepaid"
	if req.OrderType == domain.OrderTypeCOD {
		payment = "cod"
	}
	return request{
		Operation: "quote",
		Method:    http.MethodPost,
		Path:      "/api/courier/serviceability",
		JSON: map[string]any{
			"origin":       req.OriginPincode,
			"destination":  req.DestinationPincode,
			"payment_type": payment,
			"order_amount": req.CollectableValue.StringFixed(2),
			"weight":       req.ChargeableWeightKg.Shift(3).Ceil().IntPart(),
			"is_reverse":   req.Reverse,
		},
	}
}

func fromXpressbeesQuote(slabs []xpressbeesSlab, req domain.QuoteRequest) (*domain.ChargeBreakdown, error) {
	service := xpressbeesService(req.ServiceType)

	var matching []xpressbeesSlab
	for _, s := range slabs {
		if s.TotalCharges > 0 && s.MinWeight > 0 && slabService(s.Name) == service {
			matching = append(matching, s)
		}
	}

	slab, ok := selectSlab(matching, req.ChargeableWeightKg.Shift(3))
	if !ok {
		return nil, soft("xpressbees has no %s slab for this lane", service)
	}
	return breakdown(XpressbeesName, service, "", slab.MinWeight/1000, slab.TotalCharges, slab.FreightCharges, slab.CODCharges), nil
}

// slabService maps a product name such as "Air 2kg" to its service type
func slabService(name string) string {
	for _, word := range strings.Fields(strings.ToLower(name)) {
		switch word {
		case "surface":
			return "surface"
		case "air", "express":
			return "express"
		}
	}
	return ""
}

// selectSlab picks the smallest slab that covers grams, or the largest slab
// below it when none does
func selectSlab(slabs []xpressbeesSlab, grams decimal.Decimal) (xpressbeesSlab, bool) {
	if len(slabs) == 0 {
		return xpressbeesSlab{}, false
	}
	sorted := append([]xpressbeesSlab(nil), slabs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinWeight < sorted[j].MinWeight })

	w := grams.InexactFloat64()
	for _, s := range sorted {
		if s.MinWeight >= w {
			return s, true
		}
	}
	return sorted[len(sorted)-1], true
}

type xpressbeesTracking struct {
	AWBNumber string `json:"awb_number"`
	Status    string `json:"status"`
	History   []struct {
		StatusCode string `json:"status_code"`
		Location   string `json:"location"`
		EventTime  string `json:"event_time"`
		Message    string `json:"message"`
	} `json:"history"`
}

// Track fetches the tracking history of an AWB
func (a *XpressbeesAdapter) Track(ctx context.Context, awb string) (*domain.ShipmentStatusSnapshot, error) {
	res, err := a.gw.do(ctx, request{
		Operation: "track",
		Method:    http.MethodGet,
		Path:      "/api/shipments2/track/" + url.PathEscape(awb),
	})
	if err != nil {
		return nil, err
	}
	if err := a.gw.expectOK(res); err != nil {
		return nil, err
	}

	var body xpressbeesEnvelope[xpressbeesTracking]
	if err := res.decode(&body); err != nil {
		return nil, err
	}
	if !body.Status {
		return nil, nil
	}
	return fromXpressbeesTracking(awb, body.Data), nil
}

func fromXpressbeesTracking(awb string, t xpressbeesTracking) *domain.ShipmentStatusSnapshot {
	snap := &domain.ShipmentStatusSnapshot{
		AWB:           awb,
		Carrier:       XpressbeesName,
		CarrierStatus: t.Status,
		Status:        xpressbeesStatus(t.Status),
	}

	// history arrives newest first
	lastFailure := ""
	for i, h := range t.History {
		ts := parseCarrierTime(h.EventTime)
		snap.Scans = append(snap.Scans, domain.TrackingScan{Status: h.StatusCode, Location: h.Location, Remarks: h.Message, Timestamp: ts})
		if i == 0 {
			snap.Location = h.Location
			snap.Remarks = h.Message
			snap.Timestamp = ts
		}
		if strings.EqualFold(h.StatusCode, "UD") {
			snap.FailedAttempts++
			if lastFailure == "" {
				lastFailure = h.Message
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

func xpressbeesStatus(status string) domain.TrackingStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "pending pickup", "booked", "pickup scheduled":
		return domain.TrackingBooked
	case "delivered":
		return domain.TrackingDelivered
	case "exception", "undelivered", "ndr":
		return domain.TrackingUndelivered
	case "rto", "rto in transit", "rto delivered":
		return domain.TrackingRTO
	case "lost":
		return domain.TrackingLost
	case "cancelled":
		return domain.TrackingCancelled
	}
	return domain.TrackingInTransit
}

// SubmitNDRAction forwards an NDR decision
func (a *XpressbeesAdapter) SubmitNDRAction(ctx context.Context, awb string, action domain.NDRAction, data domain.NDRActionData) (*domain.ActionResult, error) {
	actionData := map[string]string{}
	switch action {
	case domain.NDRActionReattempt:
		if data.ReattemptDate != nil {
			actionData["re_attempt_date"] = data.ReattemptDate.In(ist).Format("2006-01-02")
		}
	case domain.NDRActionChangeAddress:
		actionData["address_1"] = data.Address
		actionData["pincode"] = data.Pincode
	case domain.NDRActionChangePhone:
		actionData["phone"] = data.Phone
	case domain.NDRActionReturn:
	default:
		return nil, fmt.Errorf("xpressbees does not support ndr action %q", action)
	}

	res, err := a.gw.do(ctx, request{
		Operation: "ndr",
		Method:    http.MethodPost,
		Path:      "/api/ndr/create",
		JSON:      []map[string]any{{"awb": awb, "action": string(action), "action_data": actionData}},
	})
	if err != nil {
		return nil, err
	}
	if err := a.gw.expectOK(res); err != nil {
		return nil, err
	}

	var body []struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
	}
	if err := res.decode(&body); err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("xpressbees returned no result for ndr action on %s", awb)
	}
	return &domain.ActionResult{Accepted: body[0].Status, Reference: awb, Message: body[0].Message}, nil
}

// Book creates a shipment and returns its AWB
func (a *XpressbeesAdapter) Book(ctx context.Context, req domain.BookingRequest) (*domain.BookingResult, error) {
	payload, err := toXpressbeesShipment(req)
	if err != nil {
		return nil, err
	}

	res, err := a.gw.do(ctx, request{Operation: "book", Method: http.MethodPost, Path: "/api/shipments2", JSON: payload})
	if err != nil {
		return nil, err
	}
	if err := a.gw.expectOK(res); err != nil {
		return nil, err
	}

	var body xpressbeesEnvelope[struct {
		AWBNumber  string `json:"awb_number"`
		OrderID    string `json:"order_id"`
		ShipmentID string `json:"shipment_id"`
	}]
	if err := res.decode(&body); err != nil {
		return nil, err
	}
	if !body.Status || body.Data.AWBNumber == "" {
		return nil, fmt.Errorf("xpressbees rejected booking of %s: %s", req.ShipmentID, body.Message)
	}

	return &domain.BookingResult{AWB: body.Data.AWBNumber, Reference: body.Data.ShipmentID, BookedAt: time.Now().UTC()}, nil
}

// Cancel cancels a booked shipment that has not been picked up
func (a *XpressbeesAdapter) Cancel(ctx context.Context, awb string) error {
	res, err := a.gw.do(ctx, request{
		Operation: "cancel",
		Method:    http.MethodPost,
		Path:      "/api/shipments2/cancel",
		JSON:      map[string]string{"awb": awb},
	})
	if err != nil {
		return err
	}
	if err := a.gw.refusal(res, "cancel", awb); err != nil {
		return err
	}

	var body xpressbeesEnvelope[any]
	if err := res.decode(&body); err != nil {
		return err
	}
	if !body.Status {
		return &domain.CarrierRejectedError{Carrier: XpressbeesName, Operation: "cancel", AWB: awb, Reason: body.Message}
	}
	return nil
}

func toXpressbeesShipment(req domain.BookingRequest) (map[string]any, error) {
	if req.Order == nil || req.Order.Consignee == nil || req.Pickup == nil {
		return nil, fmt.Errorf("booking %s needs an order, a consignee and a pickup warehouse", req.ShipmentID)
	}
	o := req.Order
	c := o.Consignee
	p := req.Pickup

	payment := "prepaid"
	collectable := "0.00"
	if o.IsCOD() && !req.Reverse {
		payment = "cod"
		collectable = o.CollectableValue.StringFixed(2)
	}

	return map[string]any{
		"order_number":       req.ShipmentID + "-" + o.OrderID,
		"payment_type":       payment,
		"order_amount":       o.DeclaredValue.StringFixed(2),
		"collectable_amount": collectable,
		"package_weight":     req.WeightKg.Shift(3).Ceil().IntPart(),
		"package_length":     o.Dimensions.LengthCm,
		"package_breadth":    o.Dimensions.BreadthCm,
		"package_height":     o.Dimensions.HeightCm,
		"is_reverse":         req.Reverse,
		"consignee": map[string]string{
			"name":    c.Name,
			"address": c.Address,
			"city":    c.City,
			"state":   c.State,
			"pincode": c.Pincode,
			"phone":   c.Phone,
		},
		"pickup": map[string]string{
			"warehouse_name": p.Name,
			"name":           p.ContactName,
			"address":        p.Address,
			"city":           p.City,
			"state":          p.State,
			"pincode":        p.Pincode,
			"phone":          p.Phone,
		},
	}, nil
}
