// Package phone turns user-typed phone numbers into the canonical key used
// to find a customer's bills.
package phone

import (
	"errors"
	"strings"

	"github.com/ttacon/libphonenumber"
)

var ErrInvalid = errors.New("invalid phone number")

type Normalizer struct {
	region string
}

func NewNormalizer(region string) *Normalizer {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = "PK"
	}
	return &Normalizer{region: region}
}

func (n *Normalizer) Region() string {
	return n.region
}

// Normalize returns the E.164 form of raw, resolving national numbers in
// the normalizer's default region.
func (n *Normalizer) Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalid
	}
	num, err := libphonenumber.Parse(raw, n.region)
	if err != nil {
		return "", ErrInvalid
	}
	if !libphonenumber.IsPossibleNumber(num) {
		return "", ErrInvalid
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

// Digits strips everything but digits; used for prefix search where the
// query is a partial number.
func Digits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SupportedRegion reports whether libphonenumber has metadata for region.
func SupportedRegion(region string) bool {
	return libphonenumber.GetCountryCodeForRegion(strings.ToUpper(strings.TrimSpace(region))) != 0
}
