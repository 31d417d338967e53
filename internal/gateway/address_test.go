package gateway

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveAddressDeterministic(t *testing.T) {
	first := DeriveAddress("secret", "usdt-trc20", 42)
	second := DeriveAddress("secret", "usdt-trc20", 42)
	assert.Equal(t, first, second, "same user and currency must map to the same address")
}

func TestDeriveAddressDistinct(t *testing.T) {
	base := DeriveAddress("secret", "usdt-trc20", 42)
	assert.NotEqual(t, base, DeriveAddress("secret", "usdt-trc20", 43), "different users must get different addresses")
	assert.NotEqual(t, base, DeriveAddress("secret", "eth", 42), "different currencies must get different addresses")
	assert.NotEqual(t, base, DeriveAddress("other-secret", "usdt-trc20", 42), "different secrets must get different addresses")
}

func TestDeriveAddressFormats(t *testing.T) {
	assert.True(t, strings.HasPrefix(DeriveAddress("secret", "usdt-trc20", 1), "T"))
	assert.True(t, strings.HasPrefix(DeriveAddress("secret", "eth", 1), "0x"))
	assert.Len(t, DeriveAddress("secret", "eth", 1), 42)
	assert.True(t, strings.HasPrefix(DeriveAddress("secret", "btc", 1), "bc1q"))
}
