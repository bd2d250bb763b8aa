package crypto

import (
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	var raw [AddressLength]byte
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	addr := NewAddress(DVMPrefix, raw)
	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(DVMPrefix)+"1") {
		t.Fatalf("expected dvm prefix, got %q", encoded)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bytes() != raw {
		t.Fatalf("round trip mismatch: %x != %x", decoded.Bytes(), raw)
	}
	if decoded.Prefix() != DVMPrefix {
		t.Fatalf("unexpected prefix %q", decoded.Prefix())
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-an-address"); err == nil {
		t.Fatalf("expected error for invalid bech32")
	}
	if _, err := DecodeAddress(""); err == nil {
		t.Fatalf("expected error for empty string")
	}
}

func TestMustNewAddressEnforcesLength(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for short payload")
		}
	}()
	MustNewAddress(DVMPrefix, []byte{0x01})
}

func TestIsZero(t *testing.T) {
	var raw [AddressLength]byte
	if !NewAddress(DVMPrefix, raw).IsZero() {
		t.Fatalf("all-zero payload must report zero")
	}
	raw[0] = 1
	if NewAddress(DVMPrefix, raw).IsZero() {
		t.Fatalf("non-zero payload must not report zero")
	}
}
