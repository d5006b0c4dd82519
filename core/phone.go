package core

import (
	"regexp"
	"strings"
)

// CountryCallingCode is the dialing prefix for the supported region
const CountryCallingCode = "+91"

// Indian mobile numbers are ten digits and start with 6, 7, 8 or 9.
var mobilePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)

// NormalizePhone validates a raw phone number against the regional mobile
// pattern and returns it in international format. The country prefix is
// accepted on input and stripped before matching.
func NormalizePhone(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	p = strings.ReplaceAll(p, " ", "")
	p = strings.ReplaceAll(p, "-", "")

	if strings.HasPrefix(p, CountryCallingCode) && len(p) == len(CountryCallingCode)+10 {
		p = p[len(CountryCallingCode):]
	}

	if !mobilePattern.MatchString(p) {
		return "", ErrInvalidPhoneFormat
	}

	return CountryCallingCode + p, nil
}

// IsValidPasscode reports whether a passcode has the expected six digit shape
func IsValidPasscode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
