package recipient

import (
	stderrors "errors"
	"testing"

	apperrors "kennel-notifications/internal/common/errors"
	"kennel-notifications/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T, cc string) *Resolver {
	t.Helper()
	r, err := NewResolver(cc)
	require.NoError(t, err)
	return r
}

func TestResolver_Normalize(t *testing.T) {
	r := newResolver(t, "972")

	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{name: "trunk zero replaced", raw: "0501234567", expected: "+972501234567"},
		{name: "plus keeps foreign code", raw: "+1 555-123-4567", expected: "+15551234567"},
		{name: "formatted local with trunk", raw: "050-123-4567", expected: "+972501234567"},
		{name: "already has default code", raw: "972501234567", expected: "+972501234567"},
		{name: "plus with default code", raw: "+972 50 123 4567", expected: "+972501234567"},
		{name: "international 00 prefix", raw: "00441632960961", expected: "+441632960961"},
		{name: "local without trunk", raw: "501234567", expected: "+972501234567"},
		{name: "surrounding whitespace", raw: "  (050) 1234567 ", expected: "+972501234567"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := r.Normalize(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, addr.Value)
			assert.Equal(t, KindPhone, addr.Kind)
		})
	}
}

func TestResolver_Normalize_Invalid(t *testing.T) {
	r := newResolver(t, "972")

	for _, raw := range []string{"", "abc", "   ", "+", "12", "+1234567890123456", "+0123456789"} {
		t.Run(raw, func(t *testing.T) {
			_, err := r.Normalize(raw)
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, apperrors.ErrInvalidAddress))
		})
	}
}

func TestResolver_DefaultCountryCodeIsConfigurable(t *testing.T) {
	r := newResolver(t, "+44")

	addr, err := r.Normalize("07700900123")
	require.NoError(t, err)
	assert.Equal(t, "+447700900123", addr.Value)
	assert.Equal(t, "44", r.CountryCode())
}

func TestNewResolver_InvalidCountryCode(t *testing.T) {
	for _, cc := range []string{"", "0", "12a", "1234"} {
		_, err := NewResolver(cc)
		assert.Error(t, err, cc)
	}
}

func TestNormalizedAddress_ForChannel(t *testing.T) {
	r := newResolver(t, "972")
	addr, err := r.Normalize("0501234567")
	require.NoError(t, err)

	assert.Equal(t, "972501234567", addr.ForChannel(models.ChannelWhatsApp))
	assert.Equal(t, "+972501234567", addr.ForChannel(models.ChannelSMS))
}

func TestResolver_Resolve(t *testing.T) {
	r := newResolver(t, "972")

	t.Run("email", func(t *testing.T) {
		addr, err := r.Resolve(models.ChannelEmail, " Dana Levi <Dana@Example.COM> ")
		require.NoError(t, err)
		assert.Equal(t, KindEmail, addr.Kind)
		assert.Equal(t, "dana@example.com", addr.ForChannel(models.ChannelEmail))
	})

	t.Run("invalid email", func(t *testing.T) {
		_, err := r.Resolve(models.ChannelEmail, "not-an-email")
		assert.True(t, stderrors.Is(err, apperrors.ErrInvalidAddress))
	})

	t.Run("sms", func(t *testing.T) {
		addr, err := r.Resolve(models.ChannelSMS, "0501234567")
		require.NoError(t, err)
		assert.Equal(t, "+972501234567", addr.String())
	})

	t.Run("unknown channel", func(t *testing.T) {
		_, err := r.Resolve(models.Channel("fax"), "0501234567")
		assert.True(t, stderrors.Is(err, apperrors.ErrChannelNotConfigured))
	})
}
