package errcode

import "strings"

// Carrier-native error translation. The carrier adapter extracts a native
// code/message pair (including codes buried in nested detail arrays) and maps
// it here. Unmapped codes fall back to SB-3005 rather than failing to
// translate.

// TableVersion identifies the translation table revision in audit records.
const TableVersion = "1.0.0"

// carrierCodeMap maps carrier-native numeric codes to registry codes.
var carrierCodeMap = map[string]string{
    // Address validation
    "120100": CodeBadAddress,
    "120101": CodeBadAddress,
    "120102": CodeBadAddress,
    "120104": CodeBadAddress,
    // Service availability
    "111030": CodeServiceUnavail,
    "111050": CodeServiceUnavail,
    "111057": CodeServiceUnavail,
    "111210": CodeServiceUnavail,
    // Weight / dimensions
    "120500": CodeInvalidWeight,
    "120501": CodeInvalidWeight,
    "120502": CodeInvalidWeight,
    // Customs
    "121500": CodeCustoms,
    // Auth
    "250001": CodeBadCredentials,
    "250002": CodeBadCredentials,
    "250003": CodeTokenExpired,
    // System availability
    "190001": CodeCarrierDown,
    "190002": CodeCarrierDown,
    "190100": CodeRateLimited,
}

// messagePatterns is the fallback for carrier errors that arrive without a
// usable code; matched case-insensitively against the message text.
var messagePatterns = []struct {
    substr string
    code   string
}{
    {"invalid postal", CodeBadAddress},
    {"invalid zip", CodeBadAddress},
    {"address not found", CodeBadAddress},
    {"service unavailable", CodeCarrierDown},
    {"temporarily unavailable", CodeCarrierDown},
    {"rate limit", CodeRateLimited},
    {"too many requests", CodeRateLimited},
    {"unauthorized", CodeBadCredentials},
    {"token expired", CodeTokenExpired},
    {"customs", CodeCustoms},
}

// TranslateCarrier converts a carrier-native (code, message) pair into a
// structured Error. Never returns nil.
func TranslateCarrier(nativeCode, nativeMessage string) *Error {
    if code, ok := carrierCodeMap[nativeCode]; ok {
        return New(code, carrierMessage(code, nativeMessage))
    }
    lower := strings.ToLower(nativeMessage)
    for _, p := range messagePatterns {
        if strings.Contains(lower, p.substr) {
            return New(p.code, carrierMessage(p.code, nativeMessage))
        }
    }
    msg := nativeMessage
    if msg == "" { msg = "carrier code " + nativeCode }
    return New(CodeCarrierUnknown, "Carrier returned an unexpected error: "+msg)
}

func carrierMessage(code, nativeMessage string) string {
    title := Registry[code].Title
    if nativeMessage == "" { return title }
    return title + ": " + nativeMessage
}
