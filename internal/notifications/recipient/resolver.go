// Package recipient normalizes raw recipient strings into channel wire formats.
package recipient

import (
	"fmt"
	"net/mail"
	"strings"

	apperrors "kennel-notifications/internal/common/errors"
	"kennel-notifications/internal/models"
)

const (
	minPhoneDigits = 8
	maxPhoneDigits = 15
)

type Kind int

const (
	KindPhone Kind = iota
	KindEmail
)

// NormalizedAddress holds a phone number in +E.164 form or a lower-cased email.
type NormalizedAddress struct {
	Kind  Kind
	Value string
}

func (a NormalizedAddress) String() string {
	return a.Value
}

// ForChannel returns the address in the format the channel's provider expects.
// WhatsApp takes bare digits, SMS takes +E.164.
func (a NormalizedAddress) ForChannel(channel models.Channel) string {
	if a.Kind == KindPhone && channel == models.ChannelWhatsApp {
		return strings.TrimPrefix(a.Value, "+")
	}
	return a.Value
}

type Resolver struct {
	countryCode string
}

// NewResolver takes the default calling code used for local numbers, with or
// without a leading "+".
func NewResolver(defaultCountryCode string) (*Resolver, error) {
	cc := strings.TrimPrefix(strings.TrimSpace(defaultCountryCode), "+")
	if cc == "" || len(cc) > 3 || digitsOnly(cc) != cc || cc[0] == '0' {
		return nil, apperrors.NewConfigInvalidError(fmt.Sprintf("default country code %q", defaultCountryCode))
	}
	return &Resolver{countryCode: cc}, nil
}

func (r *Resolver) CountryCode() string {
	return r.countryCode
}

// Resolve normalizes raw for the given channel.
func (r *Resolver) Resolve(channel models.Channel, raw string) (NormalizedAddress, error) {
	switch channel {
	case models.ChannelWhatsApp, models.ChannelSMS:
		return r.Normalize(raw)
	case models.ChannelEmail:
		return NormalizeEmail(raw)
	default:
		return NormalizedAddress{}, apperrors.NewChannelNotConfiguredError(string(channel))
	}
}

// Normalize maps a phone number to +E.164:
//   - a leading "+" keeps the digits as given
//   - a leading "00" international prefix is dropped
//   - a leading trunk "0" is replaced by the default country code
//   - digits already carrying the default country code pass through
//   - anything else is treated as local and gets the default country code
func (r *Resolver) Normalize(raw string) (NormalizedAddress, error) {
	trimmed := strings.TrimSpace(raw)
	digits := digitsOnly(trimmed)
	if digits == "" {
		return NormalizedAddress{}, apperrors.NewInvalidAddressError(raw, "no digits")
	}

	var e164 string
	switch {
	case strings.HasPrefix(trimmed, "+"):
		e164 = digits
	case strings.HasPrefix(digits, "00"):
		e164 = digits[2:]
	case strings.HasPrefix(digits, "0"):
		e164 = r.countryCode + digits[1:]
	case strings.HasPrefix(digits, r.countryCode) && len(digits) >= len(r.countryCode)+minPhoneDigits:
		e164 = digits
	default:
		e164 = r.countryCode + digits
	}

	if n := len(e164); n < minPhoneDigits || n > maxPhoneDigits {
		return NormalizedAddress{}, apperrors.NewInvalidAddressError(raw, fmt.Sprintf("%d digits after normalization", n))
	}
	if e164[0] == '0' {
		return NormalizedAddress{}, apperrors.NewInvalidAddressError(raw, "country code cannot start with 0")
	}

	return NormalizedAddress{Kind: KindPhone, Value: "+" + e164}, nil
}

// NormalizeEmail accepts "user@host" or "Name <user@host>" and returns the
// lower-cased bare address.
func NormalizeEmail(raw string) (NormalizedAddress, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return NormalizedAddress{}, apperrors.NewInvalidAddressError(raw, "empty")
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return NormalizedAddress{}, apperrors.NewInvalidAddressError(raw, err.Error())
	}
	return NormalizedAddress{Kind: KindEmail, Value: strings.ToLower(addr.Address)}, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}
