package crypto

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

// AddressKind identifies the human-readable prefix of an address.
type AddressKind string

const (
	ImplicitEd25519   AddressKind = "tz1"
	ImplicitSecp256k1 AddressKind = "tz2"
	ImplicitP256      AddressKind = "tz3"
	Originated        AddressKind = "KT1"
)

const payloadLength = 20

var (
	ErrInvalidAddress = errors.New("crypto: invalid address")
	ErrBadChecksum    = errors.New("crypto: address checksum mismatch")
	ErrNotKeyHash     = errors.New("crypto: originated address is not a key hash")
)

var kindPrefixes = map[AddressKind][]byte{
	ImplicitEd25519:   {6, 161, 159},
	ImplicitSecp256k1: {6, 161, 161},
	ImplicitP256:      {6, 161, 164},
	Originated:        {2, 90, 121},
}

// Address is a 20-byte account or contract hash tagged with its kind. The zero
// value is the unset address. Address values are comparable with ==.
type Address struct {
	kind    AddressKind
	payload [payloadLength]byte
}

// NewAddress builds an address of the given kind. It panics when b is not 20 bytes.
func NewAddress(kind AddressKind, b []byte) Address {
	if len(b) != payloadLength {
		panic("address must be 20 bytes long")
	}
	if _, ok := kindPrefixes[kind]; !ok {
		panic(fmt.Sprintf("unknown address kind %q", kind))
	}
	addr := Address{kind: kind}
	copy(addr.payload[:], b)
	return addr
}

// Kind returns the address prefix.
func (a Address) Kind() AddressKind { return a.kind }

// Bytes returns a copy of the 20-byte payload.
func (a Address) Bytes() []byte {
	if a.IsZero() {
		return nil
	}
	out := make([]byte, payloadLength)
	copy(out, a.payload[:])
	return out
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a.kind == "" }

// IsContract reports whether the address designates an originated contract.
func (a Address) IsContract() bool { return a.kind == Originated }

func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	data := make([]byte, 0, 3+payloadLength+4)
	data = append(data, kindPrefixes[a.kind]...)
	data = append(data, a.payload[:]...)
	data = append(data, checksum(data)...)
	return base58.Encode(data)
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input yields the
// zero address.
func (a *Address) UnmarshalText(text []byte) error {
	if len(bytes.TrimSpace(text)) == 0 {
		*a = Address{}
		return nil
	}
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// DecodeAddress parses a base58check encoded address.
func DecodeAddress(s string) (Address, error) {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < 3 {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	kind := AddressKind(trimmed[:3])
	prefix, ok := kindPrefixes[kind]
	if !ok {
		return Address{}, fmt.Errorf("%w: unknown prefix %q", ErrInvalidAddress, trimmed[:3])
	}
	raw := base58.Decode(trimmed)
	if len(raw) != len(prefix)+payloadLength+4 {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	body, sum := raw[:len(raw)-4], raw[len(raw)-4:]
	if !bytes.Equal(checksum(body), sum) {
		return Address{}, ErrBadChecksum
	}
	if !bytes.Equal(body[:len(prefix)], prefix) {
		return Address{}, fmt.Errorf("%w: prefix bytes do not match %s", ErrInvalidAddress, kind)
	}
	return NewAddress(kind, body[len(prefix):]), nil
}

// MustDecodeAddress is DecodeAddress for constants and tests.
func MustDecodeAddress(s string) Address {
	addr, err := DecodeAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// KeyHash names a baker or voting candidate. Only implicit accounts hash keys.
type KeyHash struct {
	addr Address
}

// NewKeyHash converts an implicit address into a key hash.
func NewKeyHash(addr Address) (KeyHash, error) {
	if addr.IsZero() || addr.IsContract() {
		return KeyHash{}, ErrNotKeyHash
	}
	return KeyHash{addr: addr}, nil
}

// ParseKeyHash decodes a tz1/tz2/tz3 key hash.
func ParseKeyHash(s string) (KeyHash, error) {
	addr, err := DecodeAddress(s)
	if err != nil {
		return KeyHash{}, err
	}
	return NewKeyHash(addr)
}

func (k KeyHash) String() string { return k.addr.String() }

// IsZero reports whether the key hash is unset.
func (k KeyHash) IsZero() bool { return k.addr.IsZero() }

// Address returns the implicit account controlled by the key.
func (k KeyHash) Address() Address { return k.addr }

// MarshalText implements encoding.TextMarshaler.
func (k KeyHash) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *KeyHash) UnmarshalText(text []byte) error {
	if len(bytes.TrimSpace(text)) == 0 {
		*k = KeyHash{}
		return nil
	}
	parsed, err := ParseKeyHash(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func checksum(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:4]
}
