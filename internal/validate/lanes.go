package validate

import (
    "fmt"
    "os"
    "sort"
    "strings"
)

// Lane rule set. Cross-border compliance requirements are driven by the
// origin/destination pair and the selected service, versioned so audit
// records can name the rules that produced a decision.

const RuleVersion = "1.0.0"

// supportedInternationalServices may be used on supported cross-border lanes.
var supportedInternationalServices = map[string]bool{
    SvcWorldwideExpress:   true,
    SvcWorldwideExpedited: true,
    SvcStandard:           true,
    SvcWorldwideExprPlus:  true,
    SvcWorldwideSaver:     true,
}

// domesticOnlyServices cannot cross a border.
var domesticOnlyServices = map[string]bool{
    SvcNextDayAir:      true,
    SvcSecondDayAir:    true,
    SvcGround:          true,
    SvcThreeDaySelect:  true,
    SvcNextDayAirSaver: true,
    SvcNextDayAirEarly: true,
}

// supportedLanes are the cross-border lanes the engine can build customs
// forms for.
var supportedLanes = map[string]bool{
    "US-CA": true,
    "US-MX": true,
}

// invoiceLineTotalLanes require an invoice total even when not fully
// international (US territories with customs billing).
var invoiceLineTotalLanes = map[string]bool{
    "US-CA": true,
    "US-PR": true,
}

// Requirements describes what a lane and service demand of a record.
type Requirements struct {
    RuleVersion              string
    International            bool
    RequiresDescription      bool
    RequiresShipperContact   bool
    RequiresRecipientContact bool
    RequiresInvoiceLineTotal bool
    RequiresCustomsForms     bool
    RequiresCommodities      bool
    CurrencyCode             string
    FormType                 string
    NotShippableReason       string
}

// laneEnabled checks the kill switch. Lanes must be explicitly enabled via
// INTERNATIONAL_ENABLED_LANES (comma-separated, "*" enables all supported).
func laneEnabled(origin, destination string) bool {
    enabled := os.Getenv("INTERNATIONAL_ENABLED_LANES")
    if enabled == "" { return false }
    key := origin + "-" + destination
    for _, lane := range strings.Split(enabled, ",") {
        lane = strings.ToUpper(strings.TrimSpace(lane))
        if lane == "*" || lane == key { return true }
    }
    return false
}

func sortedServices(set map[string]bool) []string {
    out := make([]string, 0, len(set))
    for s := range set { out = append(out, s) }
    sort.Strings(out)
    return out
}

// LaneRequirements resolves the requirement set for an origin country,
// destination country, and service code. A non-empty NotShippableReason means
// the combination can never submit, regardless of record contents.
func LaneRequirements(origin, destination, serviceCode string) Requirements {
    origin = strings.ToUpper(strings.TrimSpace(origin))
    destination = strings.ToUpper(strings.TrimSpace(destination))
    serviceCode = strings.TrimSpace(serviceCode)
    laneKey := origin + "-" + destination

    // Domestic, same country (PR is special-cased below).
    if origin == destination && destination != "PR" {
        return Requirements{RuleVersion: RuleVersion}
    }

    // US territory lane: domestic service set but customs billing total.
    if origin == "US" && destination == "PR" {
        return Requirements{
            RuleVersion:              RuleVersion,
            RequiresInvoiceLineTotal: true,
        }
    }

    if !supportedLanes[laneKey] {
        return Requirements{
            RuleVersion:   RuleVersion,
            International: true,
            NotShippableReason: fmt.Sprintf(
                "shipping lane %s to %s is not supported; supported lanes: US-CA, US-MX",
                origin, destination),
        }
    }

    // Kill switch checked before service validity: disabled lanes are not
    // shippable even with a valid international service.
    if !laneEnabled(origin, destination) {
        return Requirements{
            RuleVersion:   RuleVersion,
            International: true,
            NotShippableReason: fmt.Sprintf(
                "international shipping to %s is not enabled; set INTERNATIONAL_ENABLED_LANES to include %s",
                destination, laneKey),
        }
    }

    if domesticOnlyServices[serviceCode] {
        return Requirements{
            RuleVersion:   RuleVersion,
            International: true,
            NotShippableReason: fmt.Sprintf(
                "service %q is domestic-only and cannot be used for %s to %s; use one of: %s",
                serviceCode, origin, destination,
                strings.Join(sortedServices(supportedInternationalServices), ", ")),
        }
    }

    if !supportedInternationalServices[serviceCode] {
        return Requirements{
            RuleVersion:   RuleVersion,
            International: true,
            NotShippableReason: fmt.Sprintf(
                "unknown service code %q; supported international services: %s",
                serviceCode,
                strings.Join(sortedServices(supportedInternationalServices), ", ")),
        }
    }

    return Requirements{
        RuleVersion:              RuleVersion,
        International:            true,
        RequiresDescription:      true,
        RequiresShipperContact:   true,
        RequiresRecipientContact: true,
        RequiresInvoiceLineTotal: invoiceLineTotalLanes[laneKey],
        RequiresCustomsForms:     true,
        RequiresCommodities:      true,
        CurrencyCode:             "USD",
        FormType:                 "01",
    }
}
