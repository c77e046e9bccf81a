package model

// Core domain types for batch shipment execution.

// Address is a postal address plus contact info in the carrier's flat shape.
type Address struct {
    Name          string `json:"name,omitempty"`
    AttentionName string `json:"attentionName,omitempty"`
    Phone         string `json:"phone,omitempty"`
    Line1         string `json:"addressLine1,omitempty"`
    Line2         string `json:"addressLine2,omitempty"`
    City          string `json:"city,omitempty"`
    StateProvince string `json:"stateProvinceCode,omitempty"`
    PostalCode    string `json:"postalCode,omitempty"`
    CountryCode   string `json:"countryCode,omitempty"`
}

// ShipperContext is the job-level origin + billing identity, resolved once.
type ShipperContext struct {
    AccountNumber string  `json:"accountNumber"`
    Address       Address `json:"address"`
}

// Commodity is one line item on a cross-border commercial invoice.
type Commodity struct {
    Description    string `json:"description,omitempty"`
    HSCode         string `json:"hsCode,omitempty"`
    OriginCountry  string `json:"originCountry,omitempty"`
    Quantity       int    `json:"quantity,omitempty"`
    UnitValueCents int64  `json:"unitValueCents,omitempty"`
    CurrencyCode   string `json:"currencyCode,omitempty"`
}

// ShipmentOptions are the surcharge-triggering indicators. Every one of these
// must appear in both the rate form and the execute payload so preview cost
// matches executed cost.
type ShipmentOptions struct {
    SaturdayDelivery   bool `json:"saturdayDelivery,omitempty"`
    HoldForPickup      bool `json:"holdForPickup,omitempty"`
    LiftGate           bool `json:"liftGate,omitempty"`
    InsideDelivery     bool `json:"insideDelivery,omitempty"`
    LargePackage       bool `json:"largePackage,omitempty"`
    AdditionalHandling bool `json:"additionalHandling,omitempty"`
    CarbonNeutral      bool `json:"carbonNeutral,omitempty"`
    SignatureRequired  bool `json:"signatureRequired,omitempty"`
}

// OrderRecord is one normalized input row. Immutable once handed to the
// engine; corrections work on a copy.
type OrderRecord struct {
    Ordinal int `json:"ordinal"`

    Recipient Address `json:"recipient"`

    WeightLbs          float64 `json:"weightLbs,omitempty"`
    LengthIn           float64 `json:"lengthIn,omitempty"`
    WidthIn            float64 `json:"widthIn,omitempty"`
    HeightIn           float64 `json:"heightIn,omitempty"`
    DeclaredValueCents int64   `json:"declaredValueCents,omitempty"`
    PackagingCode      string  `json:"packagingCode,omitempty"`

    ServiceHint string `json:"serviceHint,omitempty"`
    OrderNumber string `json:"orderNumber,omitempty"`
    Description string `json:"description,omitempty"`

    Options ShipmentOptions `json:"options,omitempty"`

    Commodities       []Commodity `json:"commodities,omitempty"`
    InvoiceCurrency   string      `json:"invoiceCurrency,omitempty"`
    InvoiceValueCents int64       `json:"invoiceValueCents,omitempty"`

    // OriginOverride replaces the shipper's physical origin for this row
    // only. Billing identity always comes from the job's ShipperContext.
    OriginOverride *Address `json:"originOverride,omitempty"`
}

// Task status values. Transitions are monotonic: pending is the only
// non-terminal state.
const (
    TaskPending     = "pending"
    TaskCompleted   = "completed"
    TaskFailed      = "failed"
    TaskNeedsReview = "needs_review"
)

// Job status values.
const (
    JobPending   = "pending"
    JobRunning   = "running"
    JobCompleted = "completed"
    JobCancelled = "cancelled"
    JobFailed    = "failed"
)

// Job modes.
const (
    ModePreview = "preview"
    ModeExecute = "execute"
)

// ShipmentTask is the durable unit of work: one OrderRecord's journey through
// validation, submission, and outcome. Never deleted; operator retry creates
// a fresh attempt record instead of mutating a terminal one.
type ShipmentTask struct {
    ID      string `json:"id"`
    JobID   string `json:"jobId"`
    Ordinal int    `json:"ordinal"`
    Attempt int    `json:"attempt"`
    Status  string `json:"status"`

    // OrderData is the normalized input record as JSON, captured at job
    // creation so a resumed job processes exactly what was submitted.
    OrderData string `json:"orderData,omitempty"`

    ServiceCode     string `json:"serviceCode,omitempty"`
    PayloadSnapshot string `json:"payloadSnapshot,omitempty"`

    TrackingNumber string `json:"trackingNumber,omitempty"`
    LabelPath      string `json:"labelPath,omitempty"`
    CostCents      int64  `json:"costCents,omitempty"`
    Currency       string `json:"currency,omitempty"`

    ErrorCode      string `json:"errorCode,omitempty"`
    ErrorMessage   string `json:"errorMessage,omitempty"`
    ErrorRetryable bool   `json:"errorRetryable,omitempty"`

    CreatedAt   string `json:"createdAt"`
    ProcessedAt string `json:"processedAt,omitempty"`
}

// Job aggregates the tasks of one invocation sharing one shipper context.
type Job struct {
    ID     string `json:"id"`
    Name   string `json:"name"`
    Mode   string `json:"mode"`
    Status string `json:"status"`

    Shipper ShipperContext `json:"shipper"`

    TotalRows      int    `json:"totalRows"`
    Successful     int    `json:"successful"`
    Failed         int    `json:"failed"`
    NeedsReview    int    `json:"needsReview"`
    TotalCostCents int64  `json:"totalCostCents"`
    Currency       string `json:"currency,omitempty"`

    CreatedAt   string `json:"createdAt"`
    StartedAt   string `json:"startedAt,omitempty"`
    CompletedAt string `json:"completedAt,omitempty"`

    ErrorCode    string `json:"errorCode,omitempty"`
    ErrorMessage string `json:"errorMessage,omitempty"`
}

// Issue is one validator finding. Severity is "error" or "warning";
// AutoCorrected warnings describe a repair that was already applied.
type Issue struct {
    Field         string `json:"field"`
    Code          string `json:"code"`
    Message       string `json:"message"`
    Severity      string `json:"severity"`
    AutoCorrected bool   `json:"autoCorrected,omitempty"`
}

const (
    SeverityError   = "error"
    SeverityWarning = "warning"
)

// PreviewRow is one row of the non-committal cost preview.
type PreviewRow struct {
    Ordinal            int      `json:"ordinal"`
    RecipientName      string   `json:"recipientName"`
    CityState          string   `json:"cityState"`
    ServiceCode        string   `json:"serviceCode"`
    EstimatedCostCents int64    `json:"estimatedCostCents"`
    Warnings           []string `json:"warnings,omitempty"`
    NotShippable       bool     `json:"notShippable,omitempty"`
    RateError          string   `json:"rateError,omitempty"`
}

// PreviewResult is the whole preview: sampled rows plus an extrapolated total.
type PreviewResult struct {
    JobID                   string       `json:"jobId"`
    TotalRows               int          `json:"totalRows"`
    Rows                    []PreviewRow `json:"previewRows"`
    AdditionalRows          int          `json:"additionalRows"`
    TotalEstimatedCostCents int64        `json:"totalEstimatedCostCents"`
    RowsWithWarnings        int          `json:"rowsWithWarnings"`
    Currency                string       `json:"currency"`
}

// ExecuteResult is the final batch outcome. Failures and reviews are counts,
// never an abort.
type ExecuteResult struct {
    JobID          string `json:"jobId"`
    Total          int    `json:"total"`
    Successful     int    `json:"successful"`
    Failed         int    `json:"failed"`
    NeedsReview    int    `json:"needsReview"`
    TotalCostCents int64  `json:"totalCostCents"`
    Currency       string `json:"currency"`
    Cancelled      bool   `json:"cancelled,omitempty"`
}

// ProgressEvent is emitted after every row transition.
type ProgressEvent struct {
    JobID          string `json:"jobId"`
    Ordinal        int    `json:"ordinal"`
    Status         string `json:"status"`
    TrackingNumber string `json:"trackingNumber,omitempty"`
    CostCents      int64  `json:"costCents,omitempty"`
    ErrorCode      string `json:"errorCode,omitempty"`
    ErrorMessage   string `json:"errorMessage,omitempty"`
}

// InterruptedJob summarizes a job found in running state at startup.
type InterruptedJob struct {
    JobID         string `json:"jobId"`
    Name          string `json:"name"`
    CompletedRows int    `json:"completedRows"`
    TotalRows     int    `json:"totalRows"`
    RemainingRows int    `json:"remainingRows"`
    LastOrdinal   int    `json:"lastOrdinal,omitempty"`
    LastTracking  string `json:"lastTracking,omitempty"`
}
