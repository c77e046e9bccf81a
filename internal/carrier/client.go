package carrier

import (
    "bytes"
    "context"
    "encoding/base64"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strconv"
    "strings"
    "sync"
    "time"

    "golang.org/x/time/rate"

    "shipbatch/internal/errcode"
    "shipbatch/internal/model"
    "shipbatch/internal/payload"
)

const (
    apiVersion     = "v2403"
    tokenSkew      = 60 * time.Second
    defaultTimeout = 30 * time.Second
    readRetries    = 3
    retryBase      = 500 * time.Millisecond
)

// Config holds carrier endpoint and credential settings.
type Config struct {
    BaseURL      string
    ClientID     string
    ClientSecret string
    MaxRPS       float64
}

// Client is the HTTP carrier adapter. One instance per process: it caches
// the OAuth token and applies a shared per-account rate limit across all
// concurrent jobs.
type Client struct {
    http    *http.Client
    baseURL string
    id      string
    secret  string
    limiter *rate.Limiter

    mu       sync.Mutex
    token    string
    tokenExp time.Time
}

func NewClient(cfg Config) *Client {
    rps := cfg.MaxRPS
    if rps <= 0 { rps = 5 }
    return &Client{
        http:    &http.Client{Timeout: defaultTimeout},
        baseURL: strings.TrimRight(cfg.BaseURL, "/"),
        id:      cfg.ClientID,
        secret:  cfg.ClientSecret,
        limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
    }
}

// bearerToken returns a cached token, refreshing when it is near expiry.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.token != "" && time.Now().Before(c.tokenExp.Add(-tokenSkew)) {
        return c.token, nil
    }
    form := url.Values{"grant_type": {"client_credentials"}}
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/security/v1/oauth/token", strings.NewReader(form.Encode()))
    if err != nil { return "", errcode.Newf(errcode.CodeInternal, "build token request: %v", err) }
    req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
    req.SetBasicAuth(c.id, c.secret)

    resp, err := c.http.Do(req)
    if err != nil { return "", errcode.Newf(errcode.CodeCarrierDown, "token request: %v", err) }
    defer resp.Body.Close()
    body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
    if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
        return "", errcode.New(errcode.CodeBadCredentials, "carrier rejected client credentials")
    }
    if resp.StatusCode != http.StatusOK {
        return "", errcode.Newf(errcode.CodeCarrierDown, "token endpoint returned %d", resp.StatusCode)
    }
    var tok struct {
        AccessToken string `json:"access_token"`
        ExpiresIn   string `json:"expires_in"`
    }
    if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
        return "", errcode.New(errcode.CodeCarrierUnknown, "malformed token response")
    }
    ttl := 3600
    if n, err := strconv.Atoi(tok.ExpiresIn); err == nil && n > 0 { ttl = n }
    c.token = tok.AccessToken
    c.tokenExp = time.Now().Add(time.Duration(ttl) * time.Second)
    return c.token, nil
}

func (c *Client) invalidateToken() {
    c.mu.Lock()
    c.token = ""
    c.mu.Unlock()
}

// do performs one authenticated call. readonly selects the bounded retry
// policy; mutating calls go out exactly once.
func (c *Client) do(ctx context.Context, method, path string, in, out any, readonly bool) error {
    attempts := 1
    if readonly { attempts = readRetries }
    var lastErr error
    for attempt := 0; attempt < attempts; attempt++ {
        if attempt > 0 {
            delay := retryBase << (attempt - 1)
            select {
            case <-ctx.Done():
                return errcode.Newf(errcode.CodeInternal, "cancelled: %v", ctx.Err())
            case <-time.After(delay):
            }
        }
        lastErr = c.doOnce(ctx, method, path, in, out)
        if lastErr == nil { return nil }
        if !errcode.IsRetryable(lastErr) { return lastErr }
    }
    return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, in, out any) error {
    if err := c.limiter.Wait(ctx); err != nil {
        return errcode.Newf(errcode.CodeInternal, "rate limiter: %v", err)
    }
    token, err := c.bearerToken(ctx)
    if err != nil { return err }

    var body io.Reader
    if in != nil {
        buf, err := json.Marshal(in)
        if err != nil { return errcode.Newf(errcode.CodeInternal, "encode request: %v", err) }
        body = bytes.NewReader(buf)
    }
    req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
    if err != nil { return errcode.Newf(errcode.CodeInternal, "build request: %v", err) }
    req.Header.Set("Authorization", "Bearer "+token)
    if in != nil { req.Header.Set("Content-Type", "application/json") }

    resp, err := c.http.Do(req)
    if err != nil { return errcode.Newf(errcode.CodeCarrierDown, "carrier request: %v", err) }
    defer resp.Body.Close()
    raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))

    if resp.StatusCode >= 200 && resp.StatusCode < 300 {
        if out == nil { return nil }
        if err := json.Unmarshal(raw, out); err != nil {
            return errcode.Newf(errcode.CodeCarrierUnknown, "malformed carrier response: %v", err)
        }
        return nil
    }
    return c.httpError(resp.StatusCode, raw)
}

// httpError maps a non-2xx response to an engine error, preferring the
// structured error envelope when the carrier sent one.
func (c *Client) httpError(status int, raw []byte) error {
    var env errorEnvelope
    if err := json.Unmarshal(raw, &env); err == nil && len(env.Response.Errors) > 0 {
        first := env.Response.Errors[0]
        if status == http.StatusUnauthorized { c.invalidateToken() }
        return errcode.TranslateCarrier(first.Code, first.Message)
    }
    switch {
    case status == http.StatusUnauthorized, status == http.StatusForbidden:
        c.invalidateToken()
        return errcode.New(errcode.CodeBadCredentials, "carrier rejected credentials")
    case status == http.StatusTooManyRequests:
        return errcode.New(errcode.CodeRateLimited, "carrier rate limit exceeded")
    case status >= 500:
        return errcode.Newf(errcode.CodeCarrierDown, "carrier returned %d", status)
    default:
        return errcode.Newf(errcode.CodeCarrierUnknown, "carrier returned %d", status)
    }
}

func (c *Client) QuoteRate(ctx context.Context, req payload.RateRequest) (RateQuote, error) {
    var out rateResponse
    wrapped := map[string]payload.RateRequest{"RateRequest": req}
    if err := c.do(ctx, http.MethodPost, "/api/rating/"+apiVersion+"/Rate", wrapped, &out, true); err != nil {
        return RateQuote{}, err
    }
    rated := out.RateResponse.RatedShipment
    if len(rated) == 0 {
        return RateQuote{}, errcode.New(errcode.CodeCarrierUnknown, "rate response had no rated shipment")
    }
    return quoteOf(rated[0]), nil
}

func (c *Client) ShopRates(ctx context.Context, req payload.RateRequest) ([]RateQuote, error) {
    req.Request.RequestOption = "Shop"
    var out rateResponse
    wrapped := map[string]payload.RateRequest{"RateRequest": req}
    if err := c.do(ctx, http.MethodPost, "/api/rating/"+apiVersion+"/Shop", wrapped, &out, true); err != nil {
        return nil, err
    }
    quotes := make([]RateQuote, 0, len(out.RateResponse.RatedShipment))
    for _, r := range out.RateResponse.RatedShipment {
        quotes = append(quotes, quoteOf(r))
    }
    return quotes, nil
}

func quoteOf(r ratedShipment) RateQuote {
    ch := bestCharge(r.NegotiatedRateCharges.TotalCharge, r.TotalCharges)
    currency := ch.CurrencyCode
    if currency == "" { currency = "USD" }
    return RateQuote{ServiceCode: r.Service.Code, CostCents: parseMoney(ch.MonetaryValue), Currency: currency}
}

func (c *Client) CreateShipment(ctx context.Context, req payload.ShipmentRequest) (ShipmentResult, error) {
    var out shipmentResponse
    wrapped := map[string]payload.ShipmentRequest{"ShipmentRequest": req}
    if err := c.do(ctx, http.MethodPost, "/api/shipments/"+apiVersion+"/ship", wrapped, &out, false); err != nil {
        return ShipmentResult{}, err
    }
    results := out.ShipmentResponse.ShipmentResults
    if len(results.PackageResults) == 0 || results.PackageResults[0].TrackingNumber == "" {
        return ShipmentResult{}, errcode.New(errcode.CodeCarrierUnknown, "shipment response had no tracking number")
    }
    first := results.PackageResults[0]
    if _, err := base64.StdEncoding.DecodeString(first.ShippingLabel.GraphicImage); err != nil {
        return ShipmentResult{}, errcode.New(errcode.CodeCarrierUnknown, "shipment response label is not valid base64")
    }
    ch := bestCharge(results.NegotiatedRateCharges.TotalCharge, results.ShipmentCharges.TotalCharges)
    currency := ch.CurrencyCode
    if currency == "" { currency = "USD" }
    return ShipmentResult{
        ShipmentID:     results.ShipmentIdentificationNumber,
        TrackingNumber: first.TrackingNumber,
        LabelB64:       first.ShippingLabel.GraphicImage,
        CostCents:      parseMoney(ch.MonetaryValue),
        Currency:       currency,
    }, nil
}

func (c *Client) VoidShipment(ctx context.Context, shipmentID string) (VoidResult, error) {
    if shipmentID == "" {
        return VoidResult{}, errcode.New(errcode.CodeInternal, "void requires a shipment id")
    }
    var out voidResponse
    path := fmt.Sprintf("/api/shipments/%s/void/cancel/%s", apiVersion, url.PathEscape(shipmentID))
    if err := c.do(ctx, http.MethodDelete, path, nil, &out, false); err != nil {
        return VoidResult{}, err
    }
    status := out.VoidShipmentResponse.SummaryResult.Status
    return VoidResult{Voided: status.Code == "1", StatusCode: status.Code, Description: status.Description}, nil
}

func (c *Client) ValidateAddress(ctx context.Context, addr model.Address) (AddressVerdict, error) {
    lines := []string{addr.Line1}
    if addr.Line2 != "" { lines = append(lines, addr.Line2) }
    in := map[string]any{
        "XAVRequest": map[string]any{
            "AddressKeyFormat": map[string]any{
                "ConsigneeName":      addr.Name,
                "AddressLine":        lines,
                "PoliticalDivision2": addr.City,
                "PoliticalDivision1": addr.StateProvince,
                "PostcodePrimaryLow": payload.NormalizeZip(addr.PostalCode),
                "CountryCode":        addr.CountryCode,
            },
        },
    }
    var out xavResponse
    if err := c.do(ctx, http.MethodPost, "/api/addressvalidation/v2/1", in, &out, true); err != nil {
        return AddressVerdict{}, err
    }
    xav := out.XAVResponse
    verdict := AddressVerdict{Status: AddressUnknown}
    switch {
    case xav.ValidAddressIndicator != nil:
        verdict.Status = AddressValid
    case xav.AmbiguousAddressIndicator != nil:
        verdict.Status = AddressAmbiguous
    case xav.NoCandidatesIndicator != nil:
        verdict.Status = AddressInvalid
    }
    for _, cand := range xav.Candidate {
        akf := cand.AddressKeyFormat
        a := model.Address{
            City:          akf.PoliticalDivision2,
            StateProvince: akf.PoliticalDivision1,
            PostalCode:    akf.PostcodePrimaryLow,
            CountryCode:   akf.CountryCode,
        }
        if len(akf.AddressLine) > 0 { a.Line1 = akf.AddressLine[0] }
        if len(akf.AddressLine) > 1 { a.Line2 = akf.AddressLine[1] }
        verdict.Candidates = append(verdict.Candidates, a)
    }
    return verdict, nil
}
