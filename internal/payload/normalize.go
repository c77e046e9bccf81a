package payload

import "strings"

// Field normalization for the carrier wire. Normalization happens here, at
// the payload boundary, and nowhere else; records flow through validation
// untouched.

// NormalizePhone strips formatting and returns digits only. Numbers outside
// the 10-15 digit carrier range come back empty; the caller surfaces the
// problem instead of papering over it with a placeholder.
func NormalizePhone(phone string) string {
    var b strings.Builder
    for i := 0; i < len(phone); i++ {
        if phone[i] >= '0' && phone[i] <= '9' { b.WriteByte(phone[i]) }
    }
    digits := b.String()
    if len(digits) < phoneMinDigits { return "" }
    if len(digits) > phoneMaxDigits { digits = digits[:phoneMaxDigits] }
    return digits
}

const (
    phoneMinDigits = 10
    phoneMaxDigits = 15
)

// NormalizeZip canonicalizes US postal codes to 5-digit or ZIP+4 form.
// Codes with fewer than five digits are returned trimmed as-is, which
// covers international formats like Canadian postal codes.
func NormalizeZip(postal string) string {
    postal = strings.TrimSpace(postal)
    var b strings.Builder
    for i := 0; i < len(postal); i++ {
        if postal[i] >= '0' && postal[i] <= '9' { b.WriteByte(postal[i]) }
    }
    digits := b.String()
    switch {
    case len(digits) >= 9:
        return digits[:5] + "-" + digits[5:9]
    case len(digits) >= 5:
        return digits[:5]
    default:
        return postal
    }
}

// TruncateText shortens a value to max characters, preferring a word
// boundary so names and street lines stay readable on the label. The limit
// counts runes, not bytes, so a cut never splits a multibyte character.
func TruncateText(s string, max int) string {
    s = strings.TrimSpace(s)
    runes := []rune(s)
    if len(runes) <= max { return s }
    cut := string(runes[:max])
    if i := strings.LastIndexByte(cut, ' '); i > 0 { return cut[:i] }
    return cut
}
