package validate

import (
    "fmt"
    "regexp"
    "strings"

    "shipbatch/internal/model"
)

// Compatibility & enrichment validator. Pure: no carrier calls, no clock, no
// mutation of the input record. Validate reports; ApplyCorrections repairs
// the subset of issues defined as auto-correctable and reports everything.

var hsCodeRe = regexp.MustCompile(`^\d{6,10}$`)

func issue(field, code, message, severity string) model.Issue {
    return model.Issue{Field: field, Code: code, Message: message, Severity: severity}
}

// originOf resolves the physical origin address for a record: the per-row
// override when present, the job shipper otherwise.
func originOf(rec *model.OrderRecord, shipper model.ShipperContext) model.Address {
    if rec.OriginOverride != nil { return *rec.OriginOverride }
    return shipper.Address
}

// Validate inspects a record + resolved service code and returns every issue
// found. Auto-correctable findings come back as warnings with
// AutoCorrected=false (Validate never mutates); fatal findings are errors.
func Validate(rec *model.OrderRecord, shipper model.ShipperContext, serviceCode string) []model.Issue {
    var issues []model.Issue

    origin := originOf(rec, shipper)
    dest := strings.ToUpper(strings.TrimSpace(rec.Recipient.CountryCode))

    // Destination country is never defaulted; absence is a finding.
    if dest == "" {
        issues = append(issues, issue("recipient.countryCode", "MISSING_DESTINATION_COUNTRY",
            "Destination country code is required.", model.SeverityError))
        return issues
    }
    domestic := strings.EqualFold(origin.CountryCode, dest) && dest != "PR"

    // Packaging <-> service class compatibility (auto-correctable).
    if expressOnlyPackaging[rec.PackagingCode] && !expressClassServices[serviceCode] {
        issues = append(issues, issue("packagingCode", "PACKAGING_SERVICE_MISMATCH",
            fmt.Sprintf("Packaging %q requires an express-class service; service %q selected. Packaging will be reset to %q.",
                rec.PackagingCode, serviceCode, DefaultPackaging),
            model.SeverityWarning))
    }

    // Cross-border-only packaging on a domestic lane (fatal).
    if domestic && internationalOnlyPackaging[rec.PackagingCode] {
        issues = append(issues, issue("packagingCode", "INTERNATIONAL_PACKAGING_DOMESTIC",
            fmt.Sprintf("Packaging %q is only valid for cross-border shipments.", rec.PackagingCode),
            model.SeverityError))
    }

    // Weight ceilings (fatal, never corrected).
    if rec.WeightLbs <= 0 {
        issues = append(issues, issue("weightLbs", "INVALID_WEIGHT",
            "Package weight must be a positive number.", model.SeverityError))
    } else {
        if rec.PackagingCode == PkgLetter && rec.WeightLbs > LetterMaxWeightLbs {
            issues = append(issues, issue("weightLbs", "WEIGHT_EXCEEDS_PACKAGING_LIMIT",
                fmt.Sprintf("Weight %.2f lbs exceeds the %.1f lb letter limit.", rec.WeightLbs, LetterMaxWeightLbs),
                model.SeverityError))
        }
        if rec.WeightLbs > ServiceMaxWeightLbs {
            issues = append(issues, issue("weightLbs", "WEIGHT_EXCEEDS_SERVICE_LIMIT",
                fmt.Sprintf("Weight %.2f lbs exceeds the %.0f lb service ceiling.", rec.WeightLbs, ServiceMaxWeightLbs),
                model.SeverityError))
        }
    }

    // Delivery-option compatibility (auto-correctable).
    if rec.Options.SaturdayDelivery && !saturdayDeliveryServices[serviceCode] {
        issues = append(issues, issue("options.saturdayDelivery", "SATURDAY_DELIVERY_UNSUPPORTED",
            fmt.Sprintf("Saturday delivery is not available with service %q; the add-on will be removed.", serviceCode),
            model.SeverityWarning))
    }

    issues = append(issues, crossBorderIssues(rec, origin, dest, serviceCode)...)
    return issues
}

// crossBorderIssues applies the lane rule set and field readiness checks.
func crossBorderIssues(rec *model.OrderRecord, origin model.Address, dest, serviceCode string) []model.Issue {
    req := LaneRequirements(origin.CountryCode, dest, serviceCode)

    if req.NotShippableReason != "" {
        code := "UNSUPPORTED_LANE"
        if domesticOnlyServices[serviceCode] || (req.International && !supportedInternationalServices[serviceCode] && supportedLanes[strings.ToUpper(origin.CountryCode)+"-"+dest]) {
            code = "SERVICE_UNAVAILABLE_FOR_LANE"
        }
        return []model.Issue{issue("recipient.countryCode", code, req.NotShippableReason, model.SeverityError)}
    }
    if !req.International && !req.RequiresInvoiceLineTotal { return nil }

    var issues []model.Issue
    missing := func(field, code, what string) {
        issues = append(issues, issue(field, code,
            what+" is required for cross-border shipments.", model.SeverityError))
    }

    if req.RequiresShipperContact {
        if strings.TrimSpace(origin.AttentionName) == "" {
            missing("shipper.attentionName", "MISSING_SHIPPER_ATTENTION_NAME", "Shipper attention name")
        }
        if strings.TrimSpace(origin.Phone) == "" {
            missing("shipper.phone", "MISSING_SHIPPER_PHONE", "Shipper phone number")
        }
    }
    if req.RequiresRecipientContact {
        if strings.TrimSpace(rec.Recipient.AttentionName) == "" && strings.TrimSpace(rec.Recipient.Name) == "" {
            missing("recipient.attentionName", "MISSING_RECIPIENT_ATTENTION_NAME", "Recipient attention name")
        }
        if strings.TrimSpace(rec.Recipient.Phone) == "" {
            missing("recipient.phone", "MISSING_RECIPIENT_PHONE", "Recipient phone number")
        }
    }
    if req.RequiresDescription && strings.TrimSpace(rec.Description) == "" {
        missing("description", "MISSING_SHIPMENT_DESCRIPTION", "Description of goods")
    }
    if req.RequiresInvoiceLineTotal {
        if rec.InvoiceCurrency == "" {
            missing("invoiceCurrency", "MISSING_INVOICE_CURRENCY", "Invoice currency code")
        }
        if rec.InvoiceValueCents <= 0 {
            missing("invoiceValueCents", "MISSING_INVOICE_VALUE", "Invoice total monetary value")
        }
    }

    if req.RequiresCommodities {
        if len(rec.Commodities) == 0 {
            issues = append(issues, issue("commodities", "MISSING_COMMODITIES",
                "At least one commodity line is required for cross-border shipments.", model.SeverityError))
        }
        for i, c := range rec.Commodities {
            path := fmt.Sprintf("commodities[%d]", i)
            if strings.TrimSpace(c.Description) == "" {
                issues = append(issues, issue(path+".description", "MISSING_COMMODITY_DESCRIPTION",
                    fmt.Sprintf("Commodity %d is missing a description.", i+1), model.SeverityError))
            }
            switch {
            case c.HSCode == "":
                issues = append(issues, issue(path+".hsCode", "MISSING_HS_CODE",
                    fmt.Sprintf("Commodity %d is missing an HS tariff code.", i+1), model.SeverityError))
            case !hsCodeRe.MatchString(c.HSCode):
                issues = append(issues, issue(path+".hsCode", "INVALID_HS_CODE",
                    fmt.Sprintf("Commodity %d has invalid HS code %q; must be 6-10 digits.", i+1, c.HSCode), model.SeverityError))
            }
            if strings.TrimSpace(c.OriginCountry) == "" {
                issues = append(issues, issue(path+".originCountry", "MISSING_ORIGIN_COUNTRY",
                    fmt.Sprintf("Commodity %d is missing an origin country.", i+1), model.SeverityError))
            }
            if c.Quantity <= 0 {
                issues = append(issues, issue(path+".quantity", "INVALID_COMMODITY_QUANTITY",
                    fmt.Sprintf("Commodity %d must have a positive quantity.", i+1), model.SeverityError))
            }
            if c.UnitValueCents <= 0 {
                issues = append(issues, issue(path+".unitValueCents", "MISSING_COMMODITY_VALUE",
                    fmt.Sprintf("Commodity %d is missing a unit value.", i+1), model.SeverityError))
            }
        }
    }

    // Currency consistency between commodity lines and the invoice total.
    if req.RequiresInvoiceLineTotal && rec.InvoiceCurrency != "" {
        want := strings.ToUpper(rec.InvoiceCurrency)
        for i, c := range rec.Commodities {
            got := strings.ToUpper(c.CurrencyCode)
            if got == "" { got = want }
            if got != want {
                issues = append(issues, issue(fmt.Sprintf("commodities[%d].currencyCode", i), "CURRENCY_MISMATCH",
                    fmt.Sprintf("Commodity %d uses currency %q but the invoice uses %q.", i+1, got, want),
                    model.SeverityError))
            }
        }
    }
    return issues
}

// ApplyCorrections runs Validate, applies every auto-correctable repair to a
// copy of the record, and returns the copy plus all issues (repairs flagged
// AutoCorrected). Idempotent: running it on its own output yields an
// identical record and no new corrections.
func ApplyCorrections(rec *model.OrderRecord, shipper model.ShipperContext, serviceCode string) (model.OrderRecord, []model.Issue) {
    out := *rec
    if rec.OriginOverride != nil {
        o := *rec.OriginOverride
        out.OriginOverride = &o
    }
    out.Commodities = append([]model.Commodity(nil), rec.Commodities...)

    issues := Validate(rec, shipper, serviceCode)
    for i := range issues {
        if issues[i].Severity != model.SeverityWarning { continue }
        switch issues[i].Code {
        case "PACKAGING_SERVICE_MISMATCH":
            out.PackagingCode = DefaultPackaging
            issues[i].AutoCorrected = true
        case "SATURDAY_DELIVERY_UNSUPPORTED":
            out.Options.SaturdayDelivery = false
            issues[i].AutoCorrected = true
        }
    }
    return out, issues
}

// HasFatal reports whether any issue is severity error.
func HasFatal(issues []model.Issue) bool {
    for _, is := range issues {
        if is.Severity == model.SeverityError { return true }
    }
    return false
}

// Warnings extracts warning messages for preview display.
func Warnings(issues []model.Issue) []string {
    var out []string
    for _, is := range issues {
        if is.Severity == model.SeverityWarning { out = append(out, is.Message) }
    }
    return out
}
