// Package identity provides participant addresses and the issuer key
// machinery behind signature-gated token issuance.
package identity

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/secp256k1/ecdsa"
	"golang.org/x/crypto/sha3"
)

// AddressLength is the byte length of an Address.
const AddressLength = 20

// Address is a 20-byte participant identity, rendered as 0x-prefixed hex.
type Address [AddressLength]byte

// ZeroAddress is the null identity. It never owns tokens or receives funds.
var ZeroAddress = Address{}

// Hex returns the 0x-prefixed lowercase hex encoding of the address.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// String implements fmt.Stringer.
func (a Address) String() string { return a.Hex() }

// IsZero reports whether the address is the null identity.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Bytes returns a copy of the address bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressLength)
	copy(b, a[:])
	return b
}

// MarshalText implements encoding.TextMarshaler so addresses round-trip
// through JSON scenario files and journal exports as hex strings.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a hex address string, with or without 0x prefix.
func ParseAddress(s string) (Address, error) {
	var a Address
	trimmed := strings.TrimPrefix(s, "0x")
	if len(trimmed) != AddressLength*2 {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	copy(a[:], b)
	return a, nil
}

// AddressFromKey derives the address of a secp256k1 public key: the last
// 20 bytes of the Keccak-256 hash of its serialized form.
func AddressFromKey(pub *ecdsa.PublicKey) Address {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub.Bytes())
	sum := h.Sum(nil)

	var a Address
	copy(a[:], sum[len(sum)-AddressLength:])
	return a
}
