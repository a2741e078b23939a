package carriers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lms-platform/shipping-core/internal/domain"
)

// DelhiveryName is the carrier code of Delhivery
const DelhiveryName = "delhivery"

// DelhiveryAdapter talks to the Delhivery B2C API with a static token
type DelhiveryAdapter struct {
	gw             *gateway
	pickupLocation string
}

// NewDelhiveryAdapter creates a Delhivery adapter
func NewDelhiveryAdapter(cfg DelhiveryConfig, timeout time.Duration, deps Deps) *DelhiveryAdapter {
	gw := newGateway(DelhiveryName, cfg.BaseURL, timeout, deps)
	token := cfg.Token
	gw.authorize = func(r *http.Request) {
		r.Header.Set("Authorization", "Token "+token)
	}
	return &DelhiveryAdapter{gw: gw, pickupLocation: cfg.PickupLocation}
}

// Name returns the carrier code
func (a *DelhiveryAdapter) Name() string {
	return DelhiveryName
}

type delhiveryCharge struct {
	Status        string  `json:"status"`
	TotalAmount   float64 `json:"total_amount"`
	ChargedWeight float64 `json:"charged_weight"`
	Zone          string  `json:"zone"`
	FreightCharge float64 `json:"charge_freight"`
	CODCharge     float64 `json:"charge_cod"`
	FuelSurcharge float64 `json:"charge_fs"`
}

// Quote prices a consignment with the invoice charges API
func (a *DelhiveryAdapter) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.ChargeBreakdown, error) {
	if !req.ChargeableWeightKg.IsPositive() || req.OriginPincode == "" || req.DestinationPincode == "" {
		return nil, nil
	}

	return a.gw.quote(ctx, func(ctx context.Context) (*domain.ChargeBreakdown, error) {
		res, err := a.gw.do(ctx, toDelhiveryQuoteRequest(req))
		if err != nil {
			return nil, err
		}
		if err := a.gw.expectOK(res); err != nil {
			return nil, err
		}

		var rows []delhiveryCharge
		if err := res.decode(&rows); err != nil {
			return nil, soft("malformed delhivery quote: %v", err)
		}
		return fromDelhiveryQuote(rows, delhiveryService(req.ServiceType))
	})
}

func delhiveryService(serviceType string) string {
	if serviceType == "" {
		return "surface"
	}
	return strings.ToLower(serviceType)
}

func toDelhiveryQuoteRequest(req domain.QuoteRequest) request {
	mode := "S"
	if delhiveryService(req.ServiceType) == "express" {
		mode = "E"
	}
	status := "Delivered"
	if req.Reverse {
		status = "DTO"
	}
	paymentType := "Pre-paid"
	if req.OrderType == domain.OrderTypeCOD {
		paymentType = "COD"
	}

	q := url.Values{}
	q.Set("md", mode)
	q.Set("ss", status)
	q.Set("o_pin", req.OriginPincode)
	q.Set("d_pin", req.DestinationPincode)
	q.Set("cgm", req.ChargeableWeightKg.Shift(3).Ceil().String())
	q.Set("pt", paymentType)
	q.Set("cod", req.CollectableValue.StringFixed(2))

	return request{Operation: "quote", Method: http.MethodGet, Path: "/api/kinko/v1/invoice/charges/.json", Query: q}
}

func fromDelhiveryQuote(rows []delhiveryCharge, service string) (*domain.ChargeBreakdown, error) {
	for _, r := range rows {
		if r.Status != "" && !strings.EqualFold(r.Status, "success") && !strings.EqualFold(r.Status, "ok") {
			continue
		}
		if r.TotalAmount <= 0 {
			continue
		}
		return breakdown(DelhiveryName, service, r.Zone, r.ChargedWeight/1000, r.TotalAmount, r.FreightCharge, r.CODCharge), nil
	}
	return nil, soft("delhivery returned no usable charge")
}

type delhiveryTrackResponse struct {
	ShipmentData []struct {
		Shipment struct {
			AWB    string `json:"AWB"`
			Status struct {
				Status         string `json:"Status"`
				StatusType     string `json:"StatusType"`
				StatusLocation string `json:"StatusLocation"`
				StatusDateTime string `json:"StatusDateTime"`
				Instructions   string `json:"Instructions"`
			} `json:"Status"`
			Scans []struct {
				ScanDetail struct {
					Scan            string `json:"Scan"`
					ScanType        string `json:"ScanType"`
					ScanDateTime    string `json:"ScanDateTime"`
					ScannedLocation string `json:"ScannedLocation"`
					Instructions    string `json:"Instructions"`
				} `json:"ScanDetail"`
			} `json:"Scans"`
		} `json:"Shipment"`
	} `json:"ShipmentData"`
}

// Track fetches the latest package status
func (a *DelhiveryAdapter) Track(ctx context.Context, awb string) (*domain.ShipmentStatusSnapshot, error) {
	q := url.Values{}
	q.Set("waybill", awb)

	res, err := a.gw.do(ctx, request{Operation: "track", Method: http.MethodGet, Path: "/api/v1/packages/json/", Query: q})
	if err != nil {
		return nil, err
	}
	if err := a.gw.expectOK(res); err != nil {
		return nil, err
	}

	var body delhiveryTrackResponse
	if err := res.decode(&body); err != nil {
		return nil, err
	}
	return fromDelhiveryTracking(awb, body), nil
}

func fromDelhiveryTracking(awb string, body delhiveryTrackResponse) *domain.ShipmentStatusSnapshot {
	if len(body.ShipmentData) == 0 {
		return nil
	}
	s := body.ShipmentData[0].Shipment

	snap := &domain.ShipmentStatusSnapshot{
		AWB:           awb,
		Carrier:       DelhiveryName,
		Status:        delhiveryStatus(s.Status.StatusType, s.Status.Status),
		CarrierStatus: s.Status.Status,
		Location:      s.Status.StatusLocation,
		Remarks:       s.Status.Instructions,
		Timestamp:     parseCarrierTime(s.Status.StatusDateTime),
	}

	lastFailure := ""
	for _, scan := range s.Scans {
		d := scan.ScanDetail
		snap.Scans = append(snap.Scans, domain.TrackingScan{
			Status:    d.Scan,
			Location:  d.ScannedLocation,
			Remarks:   d.Instructions,
			Timestamp: parseCarrierTime(d.ScanDateTime),
		})
		if strings.EqualFold(d.Scan, "Undelivered") {
			snap.FailedAttempts++
			lastFailure = d.Instructions
		}
	}

	if snap.Status == domain.TrackingUndelivered {
		if lastFailure == "" {
			lastFailure = s.Status.Instructions
		}
		snap.FailureReason = classifyFailure(lastFailure)
		if snap.FailedAttempts == 0 {
			snap.FailedAttempts = 1
		}
	}
	return snap
}

func delhiveryStatus(statusType, status string) domain.TrackingStatus {
	status = strings.ToLower(status)
	switch strings.ToUpper(statusType) {
	case "DL":
		if strings.Contains(status, "rto") {
			return domain.TrackingRTO
		}
		return domain.TrackingDelivered
	case "RT":
		return domain.TrackingRTO
	case "LT":
		return domain.TrackingLost
	case "CN":
		return domain.TrackingCancelled
	case "PP", "PU":
		return domain.TrackingBooked
	case "UD":
		switch status {
		case "undelivered":
			return domain.TrackingUndelivered
		case "manifested", "not picked":
			return domain.TrackingBooked
		}
	}
	return domain.TrackingInTransit
}

type delhiveryActionResponse struct {
	Status    bool   `json:"status"`
	RequestID string `json:"request_id"`
	Remark    string `json:"remark"`
	Error     string `json:"error"`
}

// SubmitNDRAction forwards an NDR decision. Address and phone changes go
// through the package edit API, everything else through the NDR update API.
func (a *DelhiveryAdapter) SubmitNDRAction(ctx context.Context, awb string, action domain.NDRAction, data domain.NDRActionData) (*domain.ActionResult, error) {
	req, err := toDelhiveryNDRRequest(awb, action, data)
	if err != nil {
		return nil, err
	}

	res, err := a.gw.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := a.gw.expectOK(res); err != nil {
		return nil, err
	}

	var body delhiveryActionResponse
	if err := res.decode(&body); err != nil {
		return nil, err
	}

	msg := body.Remark
	if msg == "" {
		msg = body.Error
	}
	return &domain.ActionResult{Accepted: body.Status, Reference: body.RequestID, Message: msg}, nil
}

func toDelhiveryNDRRequest(awb string, action domain.NDRAction, data domain.NDRActionData) (request, error) {
	switch action {
	case domain.NDRActionReattempt, domain.NDRActionReturn:
		act := "RE-ATTEMPT"
		if action == domain.NDRActionReturn {
			act = "RTO"
		}
		entry := map[string]string{"waybill": awb, "act": act}
		if data.ReattemptDate != nil {
			entry["action_data"] = data.ReattemptDate.In(ist).Format("2006-01-02")
		}
		return request{
			Operation: "ndr",
			Method:    http.MethodPost,
			Path:      "/api/p/update",
			JSON:      map[string]any{"data": []map[string]string{entry}},
		}, nil
	case domain.NDRActionChangeAddress, domain.NDRActionChangePhone:
		edit := map[string]string{"waybill": awb}
		if data.Address != "" {
			edit["add"] = data.Address
		}
		if data.Phone != "" {
			edit["phone"] = data.Phone
		}
		return request{Operation: "ndr", Method: http.MethodPost, Path: "/api/p/edit", JSON: edit}, nil
	}
	return request{}, fmt.Errorf("delhivery does not support ndr action %q", action)
}

type delhiveryShipment struct {
	Name         string `json:"name"`
	Address      string `json:"add"`
	Pin          string `json:"pin"`
	City         string `json:"city"`
	State        string `json:"state"`
	Country      string `json:"country"`
	Phone        string `json:"phone"`
	Order        string `json:"order"`
	PaymentMode  string `json:"payment_mode"`
	CODAmount    string `json:"cod_amount"`
	TotalAmount  string `json:"total_amount"`
	WeightGrams  string `json:"weight"`
	ShippingMode string `json:"shipping_mode"`
	ReturnPin    string `json:"return_pin,omitempty"`
	ReturnAdd    string `json:"return_add,omitempty"`
	ReturnCity   string `json:"return_city,omitempty"`
	ReturnState  string `json:"return_state,omitempty"`
	ReturnPhone  string `json:"return_phone,omitempty"`
	ReturnName   string `json:"return_name,omitempty"`
}

type delhiveryCreateResponse struct {
	Success  bool   `json:"success"`
	RMK      string `json:"rmk"`
	Packages []struct {
		Waybill string          `json:"waybill"`
		Refnum  string          `json:"refnum"`
		Status  string          `json:"status"`
		Remarks json.RawMessage `json:"remarks"`
	} `json:"packages"`
	UploadWbn string `json:"upload_wbn"`
}

// Book creates a consignment through the CMU API
func (a *DelhiveryAdapter) Book(ctx context.Context, req domain.BookingRequest) (*domain.BookingResult, error) {
	form, err := a.toDelhiveryCreateForm(req)
	if err != nil {
		return nil, err
	}

	res, err := a.gw.do(ctx, request{Operation: "book", Method: http.MethodPost, Path: "/api/cmu/create.json", Form: form})
	if err != nil {
		return nil, err
	}
	if err := a.gw.expectOK(res); err != nil {
		return nil, err
	}

	var body delhiveryCreateResponse
	if err := res.decode(&body); err != nil {
		return nil, err
	}
	if !body.Success || len(body.Packages) == 0 || body.Packages[0].Waybill == "" {
		msg := body.RMK
		if len(body.Packages) > 0 {
			if r := remarksText(body.Packages[0].Remarks); r != "" {
				msg = r
			}
		}
		return nil, fmt.Errorf("delhivery rejected booking of %s: %s", req.ShipmentID, msg)
	}

	return &domain.BookingResult{AWB: body.Packages[0].Waybill, Reference: body.UploadWbn, BookedAt: time.Now().UTC()}, nil
}

// Cancel withdraws a manifested waybill through the package edit API
func (a *DelhiveryAdapter) Cancel(ctx context.Context, awb string) error {
	res, err := a.gw.do(ctx, request{
		Operation: "cancel",
		Method:    http.MethodPost,
		Path:      "/api/p/edit",
		JSON:      map[string]string{"waybill": awb, "cancellation": "true"},
	})
	if err != nil {
		return err
	}
	if err := a.gw.refusal(res, "cancel", awb); err != nil {
		return err
	}

	var body struct {
		Status bool   `json:"status"`
		Remark string `json:"remark"`
		Error  string `json:"error"`
	}
	if err := res.decode(&body); err != nil {
		return err
	}
	if !body.Status {
		reason := body.Remark
		if reason == "" {
			reason = body.Error
		}
		return &domain.CarrierRejectedError{Carrier: DelhiveryName, Operation: "cancel", AWB: awb, Reason: reason}
	}
	return nil
}

func (a *DelhiveryAdapter) toDelhiveryCreateForm(req domain.BookingRequest) (url.Values, error) {
	if req.Order == nil || req.Order.Consignee == nil || req.Pickup == nil {
		return nil, fmt.Errorf("booking %s needs an order, a consignee and a pickup warehouse", req.ShipmentID)
	}
	o := req.Order
	c := o.Consignee

	mode := "Prepaid"
	if o.IsCOD() {
		mode = "COD"
	}
	shippingMode := "Surface"
	if delhiveryService(req.ServiceType) == "express" {
		shippingMode = "Express"
	}

	s := delhiveryShipment{
		Name:         c.Name,
		Address:      c.Address,
		Pin:          c.Pincode,
		City:         c.City,
		State:        c.State,
		Country:      "India",
		Phone:        c.Phone,
		Order:        o.OrderID,
		PaymentMode:  mode,
		CODAmount:    o.CollectableValue.StringFixed(2),
		TotalAmount:  o.DeclaredValue.StringFixed(2),
		WeightGrams:  req.WeightKg.Shift(3).Ceil().String(),
		ShippingMode: shippingMode,
	}

	pickup := req.Pickup
	if req.Reverse {
		// reverse pickups collect from the consignee and deliver to the warehouse
		s.PaymentMode = "Pickup"
		s.CODAmount = "0.00"
	}
	if ret := req.Return; ret != nil {
		s.ReturnName = ret.ContactName
		s.ReturnAdd = ret.Address
		s.ReturnPin = ret.Pincode
		s.ReturnCity = ret.City
		s.ReturnState = ret.State
		s.ReturnPhone = ret.Phone
	}

	location := a.pickupLocation
	if location == "" {
		location = pickup.Name
	}

	data, err := json.Marshal(map[string]any{
		"shipments":       []delhiveryShipment{s},
		"pickup_location": map[string]string{"name": location},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode delhivery shipment: %w", err)
	}

	form := url.Values{}
	form.Set("format", "json")
	form.Set("data", string(data))
	return form, nil
}

// remarksText accepts the string or string-array remarks Delhivery returns
func remarksText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return string(raw)
}
