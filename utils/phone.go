package utils

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

const defaultPhoneRegion = "ZA"

// NormalizePhone parses a customer/guest phone number and returns it in
// E.164 form. Numbers without a country code are assumed to be local
// (South African). Unparsable input is returned trimmed, not rejected:
// contact details must never block a sale.
func NormalizePhone(phone string) string {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return ""
	}
	num, err := libphonenumber.Parse(trimmed, defaultPhoneRegion)
	if err != nil {
		return trimmed
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}
