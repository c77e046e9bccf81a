package payload

import (
    "fmt"
    "strings"

    "shipbatch/internal/model"
    "shipbatch/internal/validate"
)

// Two-stage payload construction. Stage one (BuildSimplified) maps an order
// record to a carrier-neutral simplified form with every field normalized.
// Stage two (BuildWire, wire.go) renders the simplified form as the carrier
// wire JSON. Both stages are deterministic so a preview snapshot and the
// execute-time payload for the same record are byte-identical.

type Party struct {
    Name          string `json:"name"`
    AttentionName string `json:"attentionName,omitempty"`
    Phone         string `json:"phone,omitempty"`
    Line1         string `json:"addressLine1"`
    Line2         string `json:"addressLine2,omitempty"`
    City          string `json:"city"`
    StateProvince string `json:"stateProvinceCode,omitempty"`
    PostalCode    string `json:"postalCode,omitempty"`
    CountryCode   string `json:"countryCode"`
}

type Package struct {
    WeightLbs          float64 `json:"weight"`
    LengthIn           float64 `json:"length,omitempty"`
    WidthIn            float64 `json:"width,omitempty"`
    HeightIn           float64 `json:"height,omitempty"`
    PackagingCode      string  `json:"packagingType"`
    Description        string  `json:"description,omitempty"`
    DeclaredValueCents int64   `json:"declaredValueCents,omitempty"`
}

// Simplified is the stage-one form. It carries everything the wire stage
// needs, already normalized and truncated to carrier field limits.
type Simplified struct {
    Shipper           Party                 `json:"shipper"`
    ShipFrom          *Party                `json:"shipFrom,omitempty"`
    ShipTo            Party                 `json:"shipTo"`
    Packages          []Package             `json:"packages"`
    ServiceCode       string                `json:"serviceCode"`
    Description       string                `json:"description"`
    Reference         string                `json:"reference,omitempty"`
    AccountNumber     string                `json:"accountNumber"`
    Options           model.ShipmentOptions `json:"options"`
    Commodities       []model.Commodity     `json:"commodities,omitempty"`
    InvoiceCurrency   string                `json:"invoiceCurrency,omitempty"`
    InvoiceValueCents int64                 `json:"invoiceValueCents,omitempty"`
    International     bool                  `json:"international"`
    FormType          string                `json:"formType,omitempty"`
}

func buildParty(a model.Address) Party {
    return Party{
        Name:          TruncateText(a.Name, maxFieldLen),
        AttentionName: TruncateText(a.AttentionName, maxFieldLen),
        Phone:         NormalizePhone(a.Phone),
        Line1:         TruncateText(a.Line1, maxFieldLen),
        Line2:         TruncateText(a.Line2, maxFieldLen),
        City:          strings.TrimSpace(a.City),
        StateProvince: strings.ToUpper(strings.TrimSpace(a.StateProvince)),
        PostalCode:    NormalizeZip(a.PostalCode),
        CountryCode:   strings.ToUpper(strings.TrimSpace(a.CountryCode)),
    }
}

const maxFieldLen = 35

// BuildSimplified maps a validated (and corrected) record to the simplified
// form. It assumes the record already passed validation: it does not
// re-check compatibility, only shapes fields.
func BuildSimplified(rec *model.OrderRecord, shipper model.ShipperContext, serviceCode string) Simplified {
    s := Simplified{
        Shipper:       buildParty(shipper.Address),
        ShipTo:        buildParty(rec.Recipient),
        ServiceCode:   serviceCode,
        AccountNumber: shipper.AccountNumber,
        Options:       rec.Options,
        Reference:     strings.TrimSpace(rec.OrderNumber),
    }
    if s.ShipTo.Name == "" { s.ShipTo.Name = s.ShipTo.AttentionName }

    origin := shipper.Address
    if rec.OriginOverride != nil {
        origin = *rec.OriginOverride
        from := buildParty(origin)
        s.ShipFrom = &from
    }

    pkg := Package{
        WeightLbs:          rec.WeightLbs,
        PackagingCode:      rec.PackagingCode,
        DeclaredValueCents: rec.DeclaredValueCents,
        Description:        TruncateText(rec.Description, maxFieldLen),
    }
    if pkg.PackagingCode == "" { pkg.PackagingCode = validate.DefaultPackaging }
    if rec.LengthIn > 0 && rec.WidthIn > 0 && rec.HeightIn > 0 {
        pkg.LengthIn, pkg.WidthIn, pkg.HeightIn = rec.LengthIn, rec.WidthIn, rec.HeightIn
    }
    s.Packages = []Package{pkg}

    s.Description = strings.TrimSpace(rec.Description)
    if s.Description == "" && s.Reference != "" {
        s.Description = fmt.Sprintf("Order #%s", s.Reference)
    }
    if s.Description == "" { s.Description = "Shipment" }
    s.Description = TruncateText(s.Description, maxFieldLen)

    req := validate.LaneRequirements(origin.CountryCode, rec.Recipient.CountryCode, serviceCode)
    s.International = req.International
    if req.RequiresCustomsForms {
        s.FormType = req.FormType
        s.Commodities = append([]model.Commodity(nil), rec.Commodities...)
    }
    if req.RequiresInvoiceLineTotal {
        s.InvoiceCurrency = strings.ToUpper(rec.InvoiceCurrency)
        s.InvoiceValueCents = rec.InvoiceValueCents
    }
    return s
}
