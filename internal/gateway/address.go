package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DeriveAddress maps (user, currency) onto a deterministic receiving
// address: HMAC-SHA256 keyed with the master secret, rendered in the
// rail's address format. The same user always pays the same address for a
// given currency, which bounds the set of addresses the monitors watch.
func DeriveAddress(masterSecret, currencyCode string, userID int64) string {
	mac := hmac.New(sha256.New, []byte(masterSecret))
	fmt.Fprintf(mac, "%s:%d", currencyCode, userID)
	digest := mac.Sum(nil)

	switch currencyCode {
	case "eth":
		return "0x" + hex.EncodeToString(digest[:20])
	case "btc":
		return "bc1q" + bech32Encode(digest[:20])
	default:
		// tron-style base58 rails (usdt-trc20 and friends)
		return "T" + base58Encode(digest[:23])
	}
}
