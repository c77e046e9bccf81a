package payload

import (
    "fmt"
    "strconv"
)

// Carrier wire types. The carrier JSON API represents numerics as strings
// and booleans as presence indicators (an empty-string field that is either
// present or absent), which is why indicator fields are *string.

type CodeDesc struct {
    Code        string `json:"Code"`
    Description string `json:"Description,omitempty"`
}

type WirePhone struct {
    Number string `json:"Number"`
}

type WireAddress struct {
    AddressLine       []string `json:"AddressLine"`
    City              string   `json:"City"`
    StateProvinceCode string   `json:"StateProvinceCode,omitempty"`
    PostalCode        string   `json:"PostalCode,omitempty"`
    CountryCode       string   `json:"CountryCode"`
}

type WireParty struct {
    Name          string      `json:"Name"`
    AttentionName string      `json:"AttentionName,omitempty"`
    Phone         *WirePhone  `json:"Phone,omitempty"`
    ShipperNumber string      `json:"ShipperNumber,omitempty"`
    Address       WireAddress `json:"Address"`
}

type BillShipper struct {
    AccountNumber string `json:"AccountNumber"`
}

type ShipmentCharge struct {
    Type        string      `json:"Type"`
    BillShipper BillShipper `json:"BillShipper"`
}

type PaymentInformation struct {
    ShipmentCharge ShipmentCharge `json:"ShipmentCharge"`
}

type PackageWeight struct {
    UnitOfMeasurement CodeDesc `json:"UnitOfMeasurement"`
    Weight            string   `json:"Weight"`
}

type Dimensions struct {
    UnitOfMeasurement CodeDesc `json:"UnitOfMeasurement"`
    Length            string   `json:"Length"`
    Width             string   `json:"Width"`
    Height            string   `json:"Height"`
}

type DeclaredValue struct {
    CurrencyCode  string `json:"CurrencyCode"`
    MonetaryValue string `json:"MonetaryValue"`
}

type DeliveryConfirmation struct {
    DCISType string `json:"DCISType"`
}

type PackageServiceOptions struct {
    DeclaredValue        *DeclaredValue        `json:"DeclaredValue,omitempty"`
    DeliveryConfirmation *DeliveryConfirmation `json:"DeliveryConfirmation,omitempty"`
}

type WirePackage struct {
    Description                 string                 `json:"Description,omitempty"`
    Packaging                   CodeDesc               `json:"Packaging"`
    Dimensions                  *Dimensions            `json:"Dimensions,omitempty"`
    PackageWeight               PackageWeight          `json:"PackageWeight"`
    PackageServiceOptions       *PackageServiceOptions `json:"PackageServiceOptions,omitempty"`
    LargePackageIndicator       *string                `json:"LargePackageIndicator,omitempty"`
    AdditionalHandlingIndicator *string                `json:"AdditionalHandlingIndicator,omitempty"`
}

type ProductUnit struct {
    Number            string   `json:"Number"`
    Value             string   `json:"Value"`
    UnitOfMeasurement CodeDesc `json:"UnitOfMeasurement"`
}

type Product struct {
    Description       []string    `json:"Description"`
    Unit              ProductUnit `json:"Unit"`
    CommodityCode     string      `json:"CommodityCode"`
    OriginCountryCode string      `json:"OriginCountryCode"`
}

type InternationalForms struct {
    FormType        string    `json:"FormType"`
    CurrencyCode    string    `json:"CurrencyCode,omitempty"`
    ReasonForExport string    `json:"ReasonForExport,omitempty"`
    Product         []Product `json:"Product,omitempty"`
}

type ShipmentServiceOptions struct {
    SaturdayDeliveryIndicator    *string             `json:"SaturdayDeliveryIndicator,omitempty"`
    HoldForPickupIndicator       *string             `json:"HoldForPickupIndicator,omitempty"`
    LiftGateForDeliveryIndicator *string             `json:"LiftGateForDeliveryIndicator,omitempty"`
    InsideDeliveryIndicator      *string             `json:"InsideDeliveryIndicator,omitempty"`
    UPSCarbonNeutralIndicator    *string             `json:"UPSCarbonNeutralIndicator,omitempty"`
    InternationalForms           *InternationalForms `json:"InternationalForms,omitempty"`
}

type InvoiceLineTotal struct {
    CurrencyCode  string `json:"CurrencyCode"`
    MonetaryValue string `json:"MonetaryValue"`
}

type ShipmentRatingOptions struct {
    NegotiatedRatesIndicator *string `json:"NegotiatedRatesIndicator,omitempty"`
}

type WireShipment struct {
    Description            string                  `json:"Description,omitempty"`
    Shipper                WireParty               `json:"Shipper"`
    ShipTo                 WireParty               `json:"ShipTo"`
    ShipFrom               *WireParty              `json:"ShipFrom,omitempty"`
    PaymentInformation     PaymentInformation      `json:"PaymentInformation"`
    Service                CodeDesc                `json:"Service"`
    Package                []WirePackage           `json:"Package"`
    ShipmentRatingOptions  *ShipmentRatingOptions  `json:"ShipmentRatingOptions,omitempty"`
    ShipmentServiceOptions *ShipmentServiceOptions `json:"ShipmentServiceOptions,omitempty"`
    InvoiceLineTotal       *InvoiceLineTotal       `json:"InvoiceLineTotal,omitempty"`
}

type LabelStockSize struct {
    Height string `json:"Height"`
    Width  string `json:"Width"`
}

type LabelSpecification struct {
    LabelImageFormat CodeDesc       `json:"LabelImageFormat"`
    LabelStockSize   LabelStockSize `json:"LabelStockSize"`
}

type RequestOptions struct {
    RequestOption        string               `json:"RequestOption,omitempty"`
    TransactionReference TransactionReference `json:"TransactionReference"`
}

type TransactionReference struct {
    CustomerContext string `json:"CustomerContext,omitempty"`
}

// ShipmentRequest is the execute-time wire payload.
type ShipmentRequest struct {
    Request            RequestOptions     `json:"Request"`
    Shipment           WireShipment       `json:"Shipment"`
    LabelSpecification LabelSpecification `json:"LabelSpecification"`
}

// RateRequest is the preview-time wire payload. Same Shipment shape, no
// label section.
type RateRequest struct {
    Request  RequestOptions `json:"Request"`
    Shipment WireShipment   `json:"Shipment"`
}

// present is the carrier's boolean: the field exists with an empty value.
func present() *string {
    s := ""
    return &s
}

func centsToMoney(cents int64) string {
    return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func formatDim(v float64) string {
    return strconv.FormatFloat(v, 'f', -1, 64)
}

func wireParty(p Party, account string) WireParty {
    lines := []string{p.Line1}
    if p.Line2 != "" { lines = append(lines, p.Line2) }
    out := WireParty{
        Name:          p.Name,
        AttentionName: p.AttentionName,
        ShipperNumber: account,
        Address: WireAddress{
            AddressLine:       lines,
            City:              p.City,
            StateProvinceCode: p.StateProvince,
            PostalCode:        p.PostalCode,
            CountryCode:       p.CountryCode,
        },
    }
    if p.Phone != "" { out.Phone = &WirePhone{Number: p.Phone} }
    return out
}

func wirePackages(s Simplified) []WirePackage {
    out := make([]WirePackage, 0, len(s.Packages))
    for _, p := range s.Packages {
        wp := WirePackage{
            Description: p.Description,
            Packaging:   CodeDesc{Code: p.PackagingCode},
            PackageWeight: PackageWeight{
                UnitOfMeasurement: CodeDesc{Code: "LBS"},
                Weight:            strconv.FormatFloat(p.WeightLbs, 'f', -1, 64),
            },
        }
        if p.LengthIn > 0 && p.WidthIn > 0 && p.HeightIn > 0 {
            wp.Dimensions = &Dimensions{
                UnitOfMeasurement: CodeDesc{Code: "IN"},
                Length:            formatDim(p.LengthIn),
                Width:             formatDim(p.WidthIn),
                Height:            formatDim(p.HeightIn),
            }
        }
        var pso PackageServiceOptions
        usePSO := false
        if p.DeclaredValueCents > 0 {
            pso.DeclaredValue = &DeclaredValue{CurrencyCode: "USD", MonetaryValue: centsToMoney(p.DeclaredValueCents)}
            usePSO = true
        }
        if s.Options.SignatureRequired {
            pso.DeliveryConfirmation = &DeliveryConfirmation{DCISType: "2"}
            usePSO = true
        }
        if usePSO { wp.PackageServiceOptions = &pso }
        if s.Options.LargePackage { wp.LargePackageIndicator = present() }
        if s.Options.AdditionalHandling { wp.AdditionalHandlingIndicator = present() }
        out = append(out, wp)
    }
    return out
}

func serviceOptions(s Simplified) *ShipmentServiceOptions {
    var sso ShipmentServiceOptions
    used := false
    if s.Options.SaturdayDelivery { sso.SaturdayDeliveryIndicator = present(); used = true }
    if s.Options.HoldForPickup { sso.HoldForPickupIndicator = present(); used = true }
    if s.Options.LiftGate { sso.LiftGateForDeliveryIndicator = present(); used = true }
    if s.Options.InsideDelivery { sso.InsideDeliveryIndicator = present(); used = true }
    if s.Options.CarbonNeutral { sso.UPSCarbonNeutralIndicator = present(); used = true }
    if s.FormType != "" && len(s.Commodities) > 0 {
        sso.InternationalForms = internationalForms(s)
        used = true
    }
    if !used { return nil }
    return &sso
}

func internationalForms(s Simplified) *InternationalForms {
    forms := &InternationalForms{
        FormType:        s.FormType,
        CurrencyCode:    s.InvoiceCurrency,
        ReasonForExport: "SALE",
    }
    for _, c := range s.Commodities {
        forms.Product = append(forms.Product, Product{
            Description: []string{TruncateText(c.Description, maxFieldLen)},
            Unit: ProductUnit{
                Number:            strconv.Itoa(c.Quantity),
                Value:             centsToMoney(c.UnitValueCents),
                UnitOfMeasurement: CodeDesc{Code: "PCS"},
            },
            CommodityCode:     c.HSCode,
            OriginCountryCode: c.OriginCountry,
        })
    }
    return forms
}

func wireShipment(s Simplified) WireShipment {
    ship := WireShipment{
        Description: s.Description,
        Shipper:     wireParty(s.Shipper, s.AccountNumber),
        ShipTo:      wireParty(s.ShipTo, ""),
        PaymentInformation: PaymentInformation{
            ShipmentCharge: ShipmentCharge{Type: "01", BillShipper: BillShipper{AccountNumber: s.AccountNumber}},
        },
        Service: CodeDesc{Code: s.ServiceCode},
        Package: wirePackages(s),
        ShipmentRatingOptions: &ShipmentRatingOptions{
            NegotiatedRatesIndicator: present(),
        },
        ShipmentServiceOptions: serviceOptions(s),
    }
    if s.ShipFrom != nil {
        from := wireParty(*s.ShipFrom, "")
        ship.ShipFrom = &from
    }
    if s.InvoiceCurrency != "" && s.InvoiceValueCents > 0 {
        ship.InvoiceLineTotal = &InvoiceLineTotal{
            CurrencyCode:  s.InvoiceCurrency,
            MonetaryValue: centsToMoney(s.InvoiceValueCents),
        }
    }
    return ship
}

// BuildWire renders the execute payload: the full shipment plus a PDF 4x6
// label specification.
func BuildWire(s Simplified) ShipmentRequest {
    return ShipmentRequest{
        Request: RequestOptions{
            RequestOption:        "nonvalidate",
            TransactionReference: TransactionReference{CustomerContext: s.Reference},
        },
        Shipment: wireShipment(s),
        LabelSpecification: LabelSpecification{
            LabelImageFormat: CodeDesc{Code: "PDF"},
            LabelStockSize:   LabelStockSize{Height: "6", Width: "4"},
        },
    }
}

// BuildRateForm renders the preview payload. Every surcharge indicator from
// the execute payload appears here too, so a preview quote prices the same
// shipment the execute call will create.
func BuildRateForm(s Simplified) RateRequest {
    return RateRequest{
        Request: RequestOptions{
            RequestOption:        "Rate",
            TransactionReference: TransactionReference{CustomerContext: s.Reference},
        },
        Shipment: wireShipment(s),
    }
}
