package auth

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used for numbers entered without a country code.
const DefaultPhoneRegion = "CN"

// PhoneNormalizer turns user input into E.164 numbers.
type PhoneNormalizer struct {
	region string
}

// NewPhoneNormalizer builds a normalizer for region, DefaultPhoneRegion
// when empty.
func NewPhoneNormalizer(region string) PhoneNormalizer {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = DefaultPhoneRegion
	}
	return PhoneNormalizer{region: region}
}

// Normalize parses raw and returns its E.164 form.
func (p PhoneNormalizer) Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", invalidRequest("phone number is required", nil)
	}

	num, err := phonenumbers.Parse(raw, p.region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", invalidRequest("phone number is invalid", map[string]any{"phone": raw})
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// MaskPhone hides the middle digits of the national number, 138****5678.
func MaskPhone(phone string) string {
	national := phone
	if num, err := phonenumbers.Parse(phone, ""); err == nil {
		national = phonenumbers.GetNationalSignificantNumber(num)
	}

	if len(national) <= 7 {
		keep := 3
		if len(national) < keep {
			keep = len(national)
		}
		return national[:keep] + "****"
	}
	return national[:3] + "****" + national[7:]
}

// phoneSuffix returns the last n digits of phone.
func phoneSuffix(phone string, n int) string {
	if len(phone) <= n {
		return phone
	}
	return phone[len(phone)-n:]
}
