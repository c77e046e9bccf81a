package validate

import (
	"reflect"
	"testing"

	"shipbatch/internal/model"
)

func usShipper() model.ShipperContext {
	return model.ShipperContext{
		AccountNumber: "A1B2C3",
		Address: model.Address{
			Name: "Acme Fulfillment", AttentionName: "Dock 4", Phone: "6175550100",
			Line1: "1 Acme Way", City: "Boston", StateProvince: "MA",
			PostalCode: "02110", CountryCode: "US",
		},
	}
}

func domesticRecord() model.OrderRecord {
	return model.OrderRecord{
		Ordinal: 1,
		Recipient: model.Address{
			Name: "Jane Buyer", Phone: "2125550147",
			Line1: "350 5th Ave", City: "New York", StateProvince: "NY",
			PostalCode: "10118", CountryCode: "US",
		},
		WeightLbs: 4.5, PackagingCode: PkgCustomerSupplied,
		OrderNumber: "ORD-1001", Description: "ceramic mugs",
	}
}

func caRecord() model.OrderRecord {
	r := domesticRecord()
	r.Recipient.CountryCode = "CA"
	r.Recipient.AttentionName = "Jane Buyer"
	r.Recipient.StateProvince = "ON"
	r.Recipient.City = "Toronto"
	r.Recipient.PostalCode = "M5H 2N2"
	r.InvoiceCurrency = "USD"
	r.InvoiceValueCents = 4200
	r.Commodities = []model.Commodity{{
		Description: "ceramic mug", HSCode: "691200", OriginCountry: "US",
		Quantity: 6, UnitValueCents: 700, CurrencyCode: "USD",
	}}
	return r
}

func findIssue(t *testing.T, issues []model.Issue, code string) model.Issue {
	t.Helper()
	for _, is := range issues {
		if is.Code == code {
			return is
		}
	}
	t.Fatalf("issue %s not found in %+v", code, issues)
	return model.Issue{}
}

func hasIssue(issues []model.Issue, code string) bool {
	for _, is := range issues {
		if is.Code == code {
			return true
		}
	}
	return false
}

func TestResolveServiceCode(t *testing.T) {
	cases := []struct{ in, want string }{
		{"ground", SvcGround},
		{" Next Day Air ", SvcNextDayAir},
		{"2nd day air", SvcSecondDayAir},
		{"07", SvcWorldwideExpress},
		{"", DefaultService},
		{"something weird", DefaultService},
	}
	for _, c := range cases {
		if got := ResolveServiceCode(c.in); got != c.want {
			t.Errorf("ResolveServiceCode(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestValidateCleanDomestic(t *testing.T) {
	rec := domesticRecord()
	issues := Validate(&rec, usShipper(), SvcGround)
	if len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
}

func TestValidateDoesNotMutate(t *testing.T) {
	rec := domesticRecord()
	rec.PackagingCode = PkgExpressBox
	rec.Options.SaturdayDelivery = true
	before := rec
	Validate(&rec, usShipper(), SvcGround)
	if !reflect.DeepEqual(before, rec) {
		t.Fatalf("Validate mutated the record: %+v != %+v", before, rec)
	}
}

func TestValidateMissingDestinationCountry(t *testing.T) {
	rec := domesticRecord()
	rec.Recipient.CountryCode = ""
	issues := Validate(&rec, usShipper(), SvcGround)
	is := findIssue(t, issues, "MISSING_DESTINATION_COUNTRY")
	if is.Severity != model.SeverityError {
		t.Fatalf("expected error severity, got %q", is.Severity)
	}
}

func TestValidateWeightCeilings(t *testing.T) {
	rec := domesticRecord()
	rec.PackagingCode = PkgLetter
	rec.WeightLbs = 1.5
	issues := Validate(&rec, usShipper(), SvcGround)
	findIssue(t, issues, "WEIGHT_EXCEEDS_PACKAGING_LIMIT")

	rec = domesticRecord()
	rec.WeightLbs = 151
	issues = Validate(&rec, usShipper(), SvcGround)
	findIssue(t, issues, "WEIGHT_EXCEEDS_SERVICE_LIMIT")

	rec = domesticRecord()
	rec.WeightLbs = 0
	issues = Validate(&rec, usShipper(), SvcGround)
	findIssue(t, issues, "INVALID_WEIGHT")
}

func TestApplyCorrectionsPackagingMismatch(t *testing.T) {
	rec := domesticRecord()
	rec.PackagingCode = PkgExpressBox
	out, issues := ApplyCorrections(&rec, usShipper(), SvcGround)
	is := findIssue(t, issues, "PACKAGING_SERVICE_MISMATCH")
	if !is.AutoCorrected || is.Severity != model.SeverityWarning {
		t.Fatalf("expected auto-corrected warning, got %+v", is)
	}
	if out.PackagingCode != DefaultPackaging {
		t.Fatalf("packaging not reset: %q", out.PackagingCode)
	}
	if rec.PackagingCode != PkgExpressBox {
		t.Fatalf("input record mutated")
	}
	// Express-class service keeps express packaging untouched.
	rec2 := domesticRecord()
	rec2.PackagingCode = PkgExpressBox
	out2, issues2 := ApplyCorrections(&rec2, usShipper(), SvcNextDayAir)
	if hasIssue(issues2, "PACKAGING_SERVICE_MISMATCH") || out2.PackagingCode != PkgExpressBox {
		t.Fatalf("express packaging on express service should pass: %+v", issues2)
	}
}

func TestApplyCorrectionsSaturdayDelivery(t *testing.T) {
	rec := domesticRecord()
	rec.Options.SaturdayDelivery = true
	out, issues := ApplyCorrections(&rec, usShipper(), SvcGround)
	is := findIssue(t, issues, "SATURDAY_DELIVERY_UNSUPPORTED")
	if !is.AutoCorrected {
		t.Fatalf("expected auto-corrected, got %+v", is)
	}
	if out.Options.SaturdayDelivery {
		t.Fatalf("saturday delivery not stripped")
	}
	// Supported service keeps the add-on.
	rec2 := domesticRecord()
	rec2.Options.SaturdayDelivery = true
	out2, issues2 := ApplyCorrections(&rec2, usShipper(), SvcNextDayAir)
	if hasIssue(issues2, "SATURDAY_DELIVERY_UNSUPPORTED") || !out2.Options.SaturdayDelivery {
		t.Fatalf("saturday delivery should survive on next day air")
	}
}

func TestApplyCorrectionsIdempotent(t *testing.T) {
	rec := domesticRecord()
	rec.PackagingCode = PkgExpressBox
	rec.Options.SaturdayDelivery = true
	first, _ := ApplyCorrections(&rec, usShipper(), SvcGround)
	second, issues := ApplyCorrections(&first, usShipper(), SvcGround)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("second pass changed the record: %+v != %+v", first, second)
	}
	for _, is := range issues {
		if is.AutoCorrected {
			t.Fatalf("second pass produced a correction: %+v", is)
		}
	}
}

func TestValidateInternationalReadiness(t *testing.T) {
	t.Setenv("INTERNATIONAL_ENABLED_LANES", "*")
	rec := caRecord()
	issues := Validate(&rec, usShipper(), SvcWorldwideExpress)
	if HasFatal(issues) {
		t.Fatalf("complete CA record should validate: %+v", issues)
	}

	rec = caRecord()
	rec.Recipient.Phone = ""
	rec.Commodities[0].HSCode = "12345"
	rec.Commodities[0].OriginCountry = ""
	issues = Validate(&rec, usShipper(), SvcWorldwideExpress)
	for _, code := range []string{"MISSING_RECIPIENT_PHONE", "INVALID_HS_CODE", "MISSING_ORIGIN_COUNTRY"} {
		findIssue(t, issues, code)
	}
}

func TestValidateCurrencyMismatch(t *testing.T) {
	t.Setenv("INTERNATIONAL_ENABLED_LANES", "*")
	rec := caRecord()
	rec.Commodities[0].CurrencyCode = "CAD"
	issues := Validate(&rec, usShipper(), SvcWorldwideExpress)
	findIssue(t, issues, "CURRENCY_MISMATCH")
}

func TestValidateUnsupportedLane(t *testing.T) {
	t.Setenv("INTERNATIONAL_ENABLED_LANES", "*")
	rec := caRecord()
	rec.Recipient.CountryCode = "DE"
	issues := Validate(&rec, usShipper(), SvcWorldwideExpress)
	is := findIssue(t, issues, "UNSUPPORTED_LANE")
	if is.Severity != model.SeverityError {
		t.Fatalf("expected error severity, got %+v", is)
	}
}

func TestValidateDomesticOnlyServiceOnInternationalLane(t *testing.T) {
	t.Setenv("INTERNATIONAL_ENABLED_LANES", "*")
	rec := caRecord()
	issues := Validate(&rec, usShipper(), SvcGround)
	findIssue(t, issues, "SERVICE_UNAVAILABLE_FOR_LANE")
}

func TestValidateLaneKillSwitch(t *testing.T) {
	t.Setenv("INTERNATIONAL_ENABLED_LANES", "US-MX")
	rec := caRecord()
	issues := Validate(&rec, usShipper(), SvcWorldwideExpress)
	findIssue(t, issues, "UNSUPPORTED_LANE")
}
