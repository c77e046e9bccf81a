package validate

import "strings"

// Carrier service and packaging code tables. Single source of truth; the
// payload builder and the engine import these instead of inline literals.

// Service codes.
const (
    SvcNextDayAir         = "01"
    SvcSecondDayAir       = "02"
    SvcGround             = "03"
    SvcWorldwideExpress   = "07"
    SvcWorldwideExpedited = "08"
    SvcStandard           = "11"
    SvcThreeDaySelect     = "12"
    SvcNextDayAirSaver    = "13"
    SvcNextDayAirEarly    = "14"
    SvcWorldwideExprPlus  = "54"
    SvcSecondDayAirAM     = "59"
    SvcWorldwideSaver     = "65"
)

// Packaging codes.
const (
    PkgLetter           = "01"
    PkgCustomerSupplied = "02"
    PkgTube             = "03"
    PkgPak              = "04"
    PkgExpressBox       = "21"
    PkgBox25KG          = "24"
    PkgBox10KG          = "25"
    PkgPallet           = "30"
    PkgSmallExpressBox  = "2a"
    PkgMediumExpressBox = "2b"
    PkgLargeExpressBox  = "2c"
)

const DefaultPackaging = PkgCustomerSupplied
const DefaultService = SvcGround

// ServiceNames maps codes to display names.
var ServiceNames = map[string]string{
    SvcNextDayAir:         "Next Day Air",
    SvcSecondDayAir:       "2nd Day Air",
    SvcGround:             "Ground",
    SvcWorldwideExpress:   "Worldwide Express",
    SvcWorldwideExpedited: "Worldwide Expedited",
    SvcStandard:           "Standard",
    SvcThreeDaySelect:     "3 Day Select",
    SvcNextDayAirSaver:    "Next Day Air Saver",
    SvcNextDayAirEarly:    "Next Day Air Early",
    SvcWorldwideExprPlus:  "Worldwide Express Plus",
    SvcSecondDayAirAM:     "2nd Day Air A.M.",
    SvcWorldwideSaver:     "Worldwide Saver",
}

// serviceAliases resolves human-readable hints to codes.
var serviceAliases = map[string]string{
    "ground":                 SvcGround,
    "ups ground":             SvcGround,
    "overnight":              SvcNextDayAir,
    "next day":               SvcNextDayAir,
    "next day air":           SvcNextDayAir,
    "nda":                    SvcNextDayAir,
    "express":                SvcNextDayAir,
    "2 day":                  SvcSecondDayAir,
    "2-day":                  SvcSecondDayAir,
    "two day":                SvcSecondDayAir,
    "2nd day air":            SvcSecondDayAir,
    "second day air":         SvcSecondDayAir,
    "3 day":                  SvcThreeDaySelect,
    "3-day":                  SvcThreeDaySelect,
    "three day":              SvcThreeDaySelect,
    "3 day select":           SvcThreeDaySelect,
    "three day select":       SvcThreeDaySelect,
    "saver":                  SvcNextDayAirSaver,
    "next day air saver":     SvcNextDayAirSaver,
    "nda saver":              SvcNextDayAirSaver,
    "next day air early":     SvcNextDayAirEarly,
    "early am":               SvcNextDayAirEarly,
    "2nd day air am":         SvcSecondDayAirAM,
    "2 day am":               SvcSecondDayAirAM,
    "second day air am":      SvcSecondDayAirAM,
    "standard":               SvcStandard,
    "worldwide express":      SvcWorldwideExpress,
    "worldwide expedited":    SvcWorldwideExpedited,
    "worldwide saver":        SvcWorldwideSaver,
    "worldwide express plus": SvcWorldwideExprPlus,
}

// expressOnlyPackaging lists packaging restricted to express-class services.
var expressOnlyPackaging = map[string]bool{
    PkgLetter:           true,
    PkgTube:             true,
    PkgPak:              true,
    PkgExpressBox:       true,
    PkgSmallExpressBox:  true,
    PkgMediumExpressBox: true,
    PkgLargeExpressBox:  true,
}

// expressClassServices are the services express-only packaging may ride on.
var expressClassServices = map[string]bool{
    SvcNextDayAir:        true,
    SvcSecondDayAir:      true,
    SvcNextDayAirSaver:   true,
    SvcNextDayAirEarly:   true,
    SvcSecondDayAirAM:    true,
    SvcWorldwideExpress:  true,
    SvcWorldwideExprPlus: true,
    SvcWorldwideSaver:    true,
}

// saturdayDeliveryServices support the Saturday delivery add-on.
var saturdayDeliveryServices = map[string]bool{
    SvcNextDayAir:      true,
    SvcSecondDayAir:    true,
    SvcNextDayAirSaver: true,
    SvcNextDayAirEarly: true,
    SvcSecondDayAirAM:  true,
}

// internationalOnlyPackaging is invalid on domestic lanes.
var internationalOnlyPackaging = map[string]bool{
    PkgBox25KG: true,
    PkgBox10KG: true,
}

// Weight ceilings in lbs. Letter-class packaging has its own limit; the
// general ceiling applies to every service. Never auto-corrected: silently
// truncating weight would misrepresent physical reality.
const (
    LetterMaxWeightLbs  = 1.1
    ServiceMaxWeightLbs = 150.0
)

// Field length limits on the carrier wire.
const (
    AddressMaxLen  = 35
    PhoneMaxDigits = 15
    PhoneMinDigits = 10
)

// ResolveServiceCode maps a hint (numeric code or alias) to a service code.
// Unknown hints fall back to the default rather than failing a whole row.
func ResolveServiceCode(hint string) string {
    h := strings.ToLower(strings.TrimSpace(hint))
    if h == "" { return DefaultService }
    if isDigits(h) { return h }
    if code, ok := serviceAliases[h]; ok { return code }
    return DefaultService
}

func isDigits(s string) bool {
    if s == "" { return false }
    for i := 0; i < len(s); i++ {
        if s[i] < '0' || s[i] > '9' { return false }
    }
    return true
}
