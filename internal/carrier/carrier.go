package carrier

import (
    "context"

    "shipbatch/internal/model"
    "shipbatch/internal/payload"
)

// Carrier is the normalized carrier surface the engine talks to. Every
// method returns either a typed result or an error carrying a stable
// engine error code; native carrier codes never escape this package.
type Carrier interface {
    // QuoteRate prices one shipment without committing anything.
    QuoteRate(ctx context.Context, req payload.RateRequest) (RateQuote, error)
    // ShopRates prices one shipment across all eligible services.
    ShopRates(ctx context.Context, req payload.RateRequest) ([]RateQuote, error)
    // CreateShipment submits a shipment. Financially committal: the caller
    // owns retry policy, this method attempts exactly once.
    CreateShipment(ctx context.Context, req payload.ShipmentRequest) (ShipmentResult, error)
    // VoidShipment cancels a previously created shipment.
    VoidShipment(ctx context.Context, shipmentID string) (VoidResult, error)
    // ValidateAddress checks a destination address before submission.
    ValidateAddress(ctx context.Context, addr model.Address) (AddressVerdict, error)
}

// RateQuote is one priced service option.
type RateQuote struct {
    ServiceCode string `json:"serviceCode"`
    CostCents   int64  `json:"costCents"`
    Currency    string `json:"currency"`
}

// ShipmentResult is a successful shipment creation.
type ShipmentResult struct {
    ShipmentID     string `json:"shipmentId"`
    TrackingNumber string `json:"trackingNumber"`
    LabelB64       string `json:"-"`
    CostCents      int64  `json:"costCents"`
    Currency       string `json:"currency"`
}

// VoidResult reports the outcome of a void request.
type VoidResult struct {
    Voided      bool   `json:"voided"`
    StatusCode  string `json:"statusCode"`
    Description string `json:"description,omitempty"`
}

// Address validation statuses.
const (
    AddressValid     = "valid"
    AddressAmbiguous = "ambiguous"
    AddressInvalid   = "invalid"
    AddressUnknown   = "unknown"
)

// AddressVerdict is the normalized address validation outcome.
type AddressVerdict struct {
    Status     string          `json:"status"`
    Candidates []model.Address `json:"candidates,omitempty"`
}
