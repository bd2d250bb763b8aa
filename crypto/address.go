package crypto

import (
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix is the human-readable part of a bech32 account address.
type AddressPrefix string

// DVMPrefix is the prefix carried by every devmarket account address.
const DVMPrefix AddressPrefix = "dvm"

// AddressLength is the raw payload size of an account address in bytes.
const AddressLength = 20

// Address represents a 20-byte account handle with a bech32 prefix. The
// settlement engine treats the payload as opaque; only the RPC boundary
// encodes and decodes the human-readable form.
type Address struct {
	prefix AddressPrefix
	bytes  [AddressLength]byte
}

// NewAddress wraps the raw payload with the supplied prefix.
func NewAddress(prefix AddressPrefix, b [AddressLength]byte) Address {
	return Address{prefix: prefix, bytes: b}
}

// MustNewAddress builds an address from an arbitrary-length slice, panicking
// when the payload is not exactly AddressLength bytes. Intended for fixed
// module addresses and tests.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != AddressLength {
		panic(fmt.Sprintf("address payload must be %d bytes, got %d", AddressLength, len(b)))
	}
	var raw [AddressLength]byte
	copy(raw[:], b)
	return Address{prefix: prefix, bytes: raw}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns the fixed-size payload of the address.
func (a Address) Bytes() [AddressLength]byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether the payload is the all-zero address.
func (a Address) IsZero() bool {
	return a.bytes == [AddressLength]byte{}
}

// DecodeAddress parses a bech32 account address, enforcing the devmarket
// prefix and payload length.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("invalid address payload length: %d", len(conv))
	}
	if AddressPrefix(prefix) != DVMPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	var raw [AddressLength]byte
	copy(raw[:], conv)
	return Address{prefix: AddressPrefix(prefix), bytes: raw}, nil
}
