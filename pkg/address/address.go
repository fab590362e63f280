// Package address provides the 20-byte holder address used to key balances,
// allowances and controllers.
//
// Addresses are written as 40 hex digits with an optional "0x" prefix. String
// renders the EIP-55 mixed-case checksum form:
//
//	0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed
//
// Parsing accepts any case; a mixed-case input must carry a valid checksum.
package address

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Length is the number of bytes in an address.
const Length = 20

// Address identifies a holder, spender or controller.
type Address [Length]byte

// Zero is the all-zero address. As a controller it disables every
// controller-gated operation.
var Zero Address

// Parse parses a hex address with or without the 0x prefix.
func Parse(raw string) (Address, error) {
	var a Address

	s := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(raw), "0x"), "0X")
	if len(s) != Length*2 {
		return a, fmt.Errorf("invalid address %q: expected %d hex digits, got %d", raw, Length*2, len(s))
	}
	if _, err := hex.Decode(a[:], []byte(s)); err != nil {
		return a, fmt.Errorf("invalid address %q: %w", raw, err)
	}

	// All-lower and all-upper inputs carry no checksum.
	if s != strings.ToLower(s) && s != strings.ToUpper(s) {
		if want := a.checksumHex(); want != s {
			return Address{}, fmt.Errorf("invalid address %q: bad checksum", raw)
		}
	}
	return a, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(raw string) Address {
	a, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return a
}

// FromBytes returns the address made of the last 20 bytes of b, left-padding
// shorter input with zeros.
func FromBytes(b []byte) Address {
	var a Address
	if len(b) > Length {
		b = b[len(b)-Length:]
	}
	copy(a[Length-len(b):], b)
	return a
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == Zero }

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, Length)
	copy(b, a[:])
	return b
}

// Hex returns the lowercase 0x-prefixed form.
func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

// String returns the EIP-55 checksummed form.
func (a Address) String() string { return "0x" + a.checksumHex() }

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// checksumHex applies EIP-55: a hex letter is upper-cased when the matching
// nibble of keccak256(lowercase hex) is 8 or greater.
func (a Address) checksumHex() string {
	lower := []byte(hex.EncodeToString(a[:]))

	h := sha3.NewLegacyKeccak256()
	h.Write(lower)
	digest := h.Sum(nil)

	for i, c := range lower {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			lower[i] = c - 32
		}
	}
	return string(lower)
}
