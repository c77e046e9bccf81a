package carrier

import (
    "encoding/json"
    "strconv"
    "strings"
)

// Carrier response shapes. The carrier API returns single-element
// collections as bare objects instead of one-element arrays; multi is the
// one place that quirk is normalized, everything downstream sees slices.

type multi[T any] []T

func (m *multi[T]) UnmarshalJSON(b []byte) error {
    t := strings.TrimSpace(string(b))
    if strings.HasPrefix(t, "[") {
        return json.Unmarshal(b, (*[]T)(m))
    }
    var one T
    if err := json.Unmarshal(b, &one); err != nil { return err }
    *m = []T{one}
    return nil
}

type charge struct {
    CurrencyCode  string `json:"CurrencyCode"`
    MonetaryValue string `json:"MonetaryValue"`
}

type negotiatedCharges struct {
    TotalCharge charge `json:"TotalCharge"`
}

type shippingLabel struct {
    GraphicImage string `json:"GraphicImage"`
}

type packageResult struct {
    TrackingNumber string        `json:"TrackingNumber"`
    ShippingLabel  shippingLabel `json:"ShippingLabel"`
}

type shipmentCharges struct {
    TotalCharges charge `json:"TotalCharges"`
}

type shipmentResults struct {
    ShipmentIdentificationNumber string                `json:"ShipmentIdentificationNumber"`
    PackageResults               multi[packageResult]  `json:"PackageResults"`
    NegotiatedRateCharges        negotiatedCharges     `json:"NegotiatedRateCharges"`
    ShipmentCharges              shipmentCharges       `json:"ShipmentCharges"`
}

type shipmentResponse struct {
    ShipmentResponse struct {
        ShipmentResults shipmentResults `json:"ShipmentResults"`
    } `json:"ShipmentResponse"`
}

type ratedShipment struct {
    Service struct {
        Code string `json:"Code"`
    } `json:"Service"`
    TotalCharges          charge            `json:"TotalCharges"`
    NegotiatedRateCharges negotiatedCharges `json:"NegotiatedRateCharges"`
}

type rateResponse struct {
    RateResponse struct {
        RatedShipment multi[ratedShipment] `json:"RatedShipment"`
    } `json:"RateResponse"`
}

type addressKeyFormat struct {
    AddressLine         multi[string] `json:"AddressLine"`
    PoliticalDivision2  string        `json:"PoliticalDivision2"`
    PoliticalDivision1  string        `json:"PoliticalDivision1"`
    PostcodePrimaryLow  string        `json:"PostcodePrimaryLow"`
    CountryCode         string        `json:"CountryCode"`
}

type xavCandidate struct {
    AddressKeyFormat addressKeyFormat `json:"AddressKeyFormat"`
}

type xavResponse struct {
    XAVResponse struct {
        ValidAddressIndicator     *string             `json:"ValidAddressIndicator"`
        AmbiguousAddressIndicator *string             `json:"AmbiguousAddressIndicator"`
        NoCandidatesIndicator     *string             `json:"NoCandidatesIndicator"`
        Candidate                 multi[xavCandidate] `json:"Candidate"`
    } `json:"XAVResponse"`
}

type voidResponse struct {
    VoidShipmentResponse struct {
        SummaryResult struct {
            Status struct {
                Code        string `json:"Code"`
                Description string `json:"Description"`
            } `json:"Status"`
        } `json:"SummaryResult"`
    } `json:"VoidShipmentResponse"`
}

// errorEnvelope is the carrier's error body for non-2xx responses.
type errorEnvelope struct {
    Response struct {
        Errors []struct {
            Code    string `json:"code"`
            Message string `json:"message"`
        } `json:"errors"`
    } `json:"response"`
}

// parseMoney converts a carrier decimal string to integer cents. Carrier
// amounts always carry at most two fraction digits.
func parseMoney(s string) int64 {
    s = strings.TrimSpace(s)
    if s == "" { return 0 }
    whole, frac, _ := strings.Cut(s, ".")
    neg := strings.HasPrefix(whole, "-")
    whole = strings.TrimPrefix(whole, "-")
    w, err := strconv.ParseInt(whole, 10, 64)
    if err != nil { return 0 }
    cents := w * 100
    if frac != "" {
        if len(frac) > 2 { frac = frac[:2] }
        for len(frac) < 2 { frac += "0" }
        f, err := strconv.ParseInt(frac, 10, 64)
        if err == nil { cents += f }
    }
    if neg { cents = -cents }
    return cents
}

// bestCharge prefers the negotiated total over the published one.
func bestCharge(negotiated, published charge) charge {
    if negotiated.MonetaryValue != "" { return negotiated }
    return published
}
