package errcode

import "fmt"

// Error code registry with SB-XXXX format codes.
//
// Categories:
//   SB-1xxx data errors
//   SB-2xxx validation errors
//   SB-3xxx carrier API errors
//   SB-4xxx system/internal errors
//   SB-5xxx authentication errors

type Category string

const (
    CatData       Category = "data"
    CatValidation Category = "validation"
    CatCarrier    Category = "carrier"
    CatSystem     Category = "system"
    CatAuth       Category = "auth"
)

// Def is the static definition of one error code.
type Def struct {
    Code        string
    Category    Category
    Title       string
    Remediation string
    Retryable   bool
}

// Error is a structured error carrying a registry code. Callers branch on
// Code and Retryable instead of inspecting message text.
type Error struct {
    Code        string `json:"code"`
    Message     string `json:"message"`
    Remediation string `json:"remediation,omitempty"`
    Retryable   bool   `json:"retryable"`
}

func (e *Error) Error() string { return fmt.Sprintf("[%s] %s", e.Code, e.Message) }

// New builds an Error for a registered code. Unknown codes get the generic
// system fallback so a bad code never panics mid-batch.
func New(code, message string) *Error {
    def, ok := Registry[code]
    if !ok {
        return &Error{Code: CodeInternal, Message: message}
    }
    if message == "" { message = def.Title }
    return &Error{Code: def.Code, Message: message, Remediation: def.Remediation, Retryable: def.Retryable}
}

// Newf is New with formatting.
func Newf(code, format string, args ...any) *Error {
    return New(code, fmt.Sprintf(format, args...))
}

// Well-known codes referenced from other packages.
const (
    CodeMissingField     = "SB-1001"
    CodeEmptyJob         = "SB-1002"
    CodeInvalidWeight    = "SB-2004"
    CodeIntlField        = "SB-2013"
    CodeHSCode           = "SB-2014"
    CodeUnsupportedLane  = "SB-2015"
    CodeLaneService      = "SB-2016"
    CodeCurrencyMismatch = "SB-2017"
    CodePackaging        = "SB-2018"
    CodeCarrierDown      = "SB-3001"
    CodeRateLimited      = "SB-3002"
    CodeBadAddress       = "SB-3003"
    CodeServiceUnavail   = "SB-3004"
    CodeCarrierUnknown   = "SB-3005"
    CodeCustoms          = "SB-3006"
    CodeDatabase         = "SB-4001"
    CodeFilesystem       = "SB-4002"
    CodeInternal         = "SB-4005"
    CodeBadCredentials   = "SB-5001"
    CodeTokenExpired     = "SB-5002"
)

// Registry holds every defined code. The translation table in translate.go
// maps carrier-native codes into these.
var Registry = map[string]Def{
    CodeMissingField: {
        Code: CodeMissingField, Category: CatData, Title: "Missing Required Field",
        Remediation: "Add the missing field to the source data and retry.",
    },
    CodeEmptyJob: {
        Code: CodeEmptyJob, Category: CatData, Title: "Empty Job",
        Remediation: "Check the filter criteria or verify the source contains rows.",
    },
    CodeInvalidWeight: {
        Code: CodeInvalidWeight, Category: CatValidation, Title: "Invalid Weight",
        Remediation: "Correct the weight value; it must be positive and within the service ceiling.",
    },
    CodeIntlField: {
        Code: CodeIntlField, Category: CatValidation, Title: "Missing International Field",
        Remediation: "Add the missing field to the source data or provide it before execution.",
    },
    CodeHSCode: {
        Code: CodeHSCode, Category: CatValidation, Title: "Invalid HS Tariff Code",
        Remediation: "Check the harmonized system code against the tariff schedule; 6-10 digits.",
    },
    CodeUnsupportedLane: {
        Code: CodeUnsupportedLane, Category: CatValidation, Title: "Unsupported Shipping Lane",
        Remediation: "Check that the lane is enabled via INTERNATIONAL_ENABLED_LANES.",
    },
    CodeLaneService: {
        Code: CodeLaneService, Category: CatValidation, Title: "Service Unavailable For Lane",
        Remediation: "Use one of the supported international services for this destination.",
    },
    CodeCurrencyMismatch: {
        Code: CodeCurrencyMismatch, Category: CatValidation, Title: "Currency Mismatch",
        Remediation: "All commodity values must use the same currency as the invoice total.",
    },
    CodePackaging: {
        Code: CodePackaging, Category: CatValidation, Title: "Incompatible Packaging",
        Remediation: "Use packaging compatible with the selected service and lane.",
    },
    CodeCarrierDown: {
        Code: CodeCarrierDown, Category: CatCarrier, Title: "Carrier Service Unavailable",
        Remediation: "Wait a few minutes and retry. Check carrier system status if it persists.",
        Retryable:   true,
    },
    CodeRateLimited: {
        Code: CodeRateLimited, Category: CatCarrier, Title: "Carrier Rate Limit Exceeded",
        Remediation: "Wait 60 seconds and retry. Consider reducing batch size.",
        Retryable:   true,
    },
    CodeBadAddress: {
        Code: CodeBadAddress, Category: CatCarrier, Title: "Address Validation Failed",
        Remediation: "Verify the address is complete and correct. Check for typos.",
    },
    CodeServiceUnavail: {
        Code: CodeServiceUnavail, Category: CatCarrier, Title: "Service Not Available",
        Remediation: "Try a different service level or verify the destination is serviceable.",
    },
    CodeCarrierUnknown: {
        Code: CodeCarrierUnknown, Category: CatCarrier, Title: "Carrier Unknown Error",
        Remediation: "Contact support with this code and the carrier message.",
    },
    CodeCustoms: {
        Code: CodeCustoms, Category: CatCarrier, Title: "Customs Validation Failed",
        Remediation: "Review commodity descriptions, HS codes, and declared values.",
    },
    CodeDatabase: {
        Code: CodeDatabase, Category: CatSystem, Title: "Database Error",
        Remediation: "Retry the operation. Contact support if it persists.",
        Retryable:   true,
    },
    CodeFilesystem: {
        Code: CodeFilesystem, Category: CatSystem, Title: "File System Error",
        Remediation: "Check disk space and permissions, then retry.",
        Retryable:   true,
    },
    CodeInternal: {
        Code: CodeInternal, Category: CatSystem, Title: "Internal Error",
        Remediation: "This is a system error; the row may be retried by an operator.",
    },
    CodeBadCredentials: {
        Code: CodeBadCredentials, Category: CatAuth, Title: "Invalid Carrier Credentials",
        Remediation: "Check the configured carrier client id/secret and environment.",
    },
    CodeTokenExpired: {
        Code: CodeTokenExpired, Category: CatAuth, Title: "Carrier Token Expired",
        Remediation: "The session token expired; the adapter refreshes automatically on retry.",
        Retryable:   true,
    },
}

// IsRetryable reports whether err is an *Error with the retryable flag set.
func IsRetryable(err error) bool {
    if e, ok := err.(*Error); ok { return e.Retryable }
    return false
}

// CodeOf returns the registry code of err, or the internal fallback.
func CodeOf(err error) string {
    if e, ok := err.(*Error); ok { return e.Code }
    return CodeInternal
}
