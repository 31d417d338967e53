package gateway

import "math/big"

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
const bech32Alphabet = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

func base58Encode(input []byte) string {
	num := new(big.Int).SetBytes(input)
	base := big.NewInt(58)
	zero := big.NewInt(0)
	mod := new(big.Int)

	var encoded []byte
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		encoded = append(encoded, base58Alphabet[mod.Int64()])
	}
	for _, b := range input {
		if b != 0 {
			break
		}
		encoded = append(encoded, base58Alphabet[0])
	}
	for i, j := 0, len(encoded)-1; i < j; i, j = i+1, j-1 {
		encoded[i], encoded[j] = encoded[j], encoded[i]
	}
	return string(encoded)
}

// bech32Encode maps each input byte onto the bech32 charset. This is the
// data-part encoding only; no checksum, the address is an internal watch
// target, not a spendable wallet.
func bech32Encode(input []byte) string {
	encoded := make([]byte, len(input))
	for i, b := range input {
		encoded[i] = bech32Alphabet[int(b)%32]
	}
	return string(encoded)
}
