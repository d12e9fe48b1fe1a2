package registry

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// HashSize es el tamaño del digest de compromiso (Keccak-256).
const HashSize = 32

// Hash es el compromiso que liga la metadata off-chain con un registro.
type Hash [HashSize]byte

// ZeroHash es el digest vacío; nunca es un certHash válido.
var ZeroHash Hash

func (h Hash) IsZero() bool { return h == ZeroHash }

func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }

func (h *Hash) UnmarshalText(b []byte) error {
	parsed, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash acepta hex de 64 caracteres, con o sin prefijo 0x.
func ParseHash(s string) (Hash, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != HashSize*2 {
		return Hash{}, fmt.Errorf("hash must be %d hex chars, got %d", HashSize*2, len(s))
	}
	var h Hash
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return Hash{}, fmt.Errorf("hash: %w", err)
	}
	return h, nil
}

// HashFromBytes copia b a un Hash; b debe tener exactamente HashSize bytes.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Commitment calcula keccak256(payload), el mismo digest que usa el tooling
// original para ligar el JSON de metadata al registro.
func Commitment(payload []byte) Hash {
	d := sha3.NewLegacyKeccak256()
	_, _ = d.Write(payload)
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}
