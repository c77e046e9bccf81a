package carrier

import (
    "context"
    "encoding/base64"
    "fmt"
    "sync"

    "shipbatch/internal/model"
    "shipbatch/internal/payload"
)

// Fake is a scriptable in-memory Carrier for tests. Zero value works:
// every call succeeds with deterministic tracking numbers and a flat rate.
type Fake struct {
    mu sync.Mutex

    QuoteFn    func(payload.RateRequest) (RateQuote, error)
    ShopFn     func(payload.RateRequest) ([]RateQuote, error)
    CreateFn   func(payload.ShipmentRequest) (ShipmentResult, error)
    VoidFn     func(string) (VoidResult, error)
    ValidateFn func(model.Address) (AddressVerdict, error)

    QuoteCalls  int
    CreateCalls int
    VoidCalls   int
    Created     []payload.ShipmentRequest
}

var _ Carrier = (*Fake)(nil)

// FakeLabel is the base64 label body every default Fake shipment carries.
var FakeLabel = base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 fake label"))

func (f *Fake) QuoteRate(ctx context.Context, req payload.RateRequest) (RateQuote, error) {
    f.mu.Lock()
    f.QuoteCalls++
    fn := f.QuoteFn
    f.mu.Unlock()
    if fn != nil { return fn(req) }
    return RateQuote{ServiceCode: req.Shipment.Service.Code, CostCents: 1250, Currency: "USD"}, nil
}

func (f *Fake) ShopRates(ctx context.Context, req payload.RateRequest) ([]RateQuote, error) {
    f.mu.Lock()
    fn := f.ShopFn
    f.mu.Unlock()
    if fn != nil { return fn(req) }
    return []RateQuote{
        {ServiceCode: "03", CostCents: 1250, Currency: "USD"},
        {ServiceCode: "02", CostCents: 2890, Currency: "USD"},
        {ServiceCode: "01", CostCents: 5410, Currency: "USD"},
    }, nil
}

func (f *Fake) CreateShipment(ctx context.Context, req payload.ShipmentRequest) (ShipmentResult, error) {
    f.mu.Lock()
    f.CreateCalls++
    n := f.CreateCalls
    f.Created = append(f.Created, req)
    fn := f.CreateFn
    f.mu.Unlock()
    if fn != nil { return fn(req) }
    return ShipmentResult{
        ShipmentID:     fmt.Sprintf("1ZFAKE%06d", n),
        TrackingNumber: fmt.Sprintf("1ZFAKE%06d", n),
        LabelB64:       FakeLabel,
        CostCents:      1250,
        Currency:       "USD",
    }, nil
}

func (f *Fake) VoidShipment(ctx context.Context, shipmentID string) (VoidResult, error) {
    f.mu.Lock()
    f.VoidCalls++
    fn := f.VoidFn
    f.mu.Unlock()
    if fn != nil { return fn(shipmentID) }
    return VoidResult{Voided: true, StatusCode: "1"}, nil
}

func (f *Fake) ValidateAddress(ctx context.Context, addr model.Address) (AddressVerdict, error) {
    f.mu.Lock()
    fn := f.ValidateFn
    f.mu.Unlock()
    if fn != nil { return fn(addr) }
    return AddressVerdict{Status: AddressValid}, nil
}
