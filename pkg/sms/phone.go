package sms

import (
	"regexp"

	"github.com/sf7293/job-notifier/internal/domain"
)

var (
	nonDialPattern     = regexp.MustCompile(`[^\d+]`)
	e164Pattern        = regexp.MustCompile(`^\+\d{10,15}$`)
	defaultCountryCode = "+1"
)

// FormatPhoneNumber normalizes a stored phone number into dialable form,
// prepending the default country code when none is present.
func FormatPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	phone = nonDialPattern.ReplaceAllString(phone, "")
	if len(phone) > 0 && phone[0] == '+' {
		return phone
	}

	return defaultCountryCode + phone
}

// ValidatePhoneNumber reports whether the number is usable for SMS delivery.
func ValidatePhoneNumber(phone string) bool {
	return e164Pattern.MatchString(phone)
}

// PickMobile selects the candidate's best reachable number: mobile first,
// then work, then home.
func PickMobile(c domain.Candidate) string {
	if c.Mobile != "" {
		return c.Mobile
	}
	if c.WorkPhone != "" {
		return c.WorkPhone
	}

	return c.HomePhone
}
