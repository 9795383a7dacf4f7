// Package pseudonym derives the irreversible lookup key stored in place of a
// patient's NHS number. The derivation is scrypt over the digits-only number,
// salted with the patient's birth date, so the same person always maps to the
// same pseudonym while the number itself is never recoverable from storage.
package pseudonym

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// InsecureSentinelEnv is the environment variable that can select the fast
// hashing mode. It only takes effect when set to InsecureSentinelValue.
const (
	InsecureSentinelEnv   = "STUPIDLY_HOBBLE_SECURITY"
	InsecureSentinelValue = "I_AM_AN_IDIOT_YES_I_REALLY_MEAN_IT"
)

// Mode selects the scrypt work factors.
type Mode int

const (
	// ModeSecure is slow on purpose and is the only mode fit for real data.
	ModeSecure Mode = iota
	// ModeInsecure is fast and offers no protection. Tests and local
	// fixtures only.
	ModeInsecure
)

func (m Mode) String() string {
	switch m {
	case ModeSecure:
		return "secure"
	case ModeInsecure:
		return "insecure"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ModeFromSentinel maps the raw environment value to a Mode. Anything other
// than the exact sentinel, including "true", "1" and lower-cased variants,
// yields ModeSecure.
func ModeFromSentinel(value string) Mode {
	if value == InsecureSentinelValue {
		return ModeInsecure
	}
	return ModeSecure
}

// Params are the scrypt cost parameters for one mode.
type Params struct {
	N      int
	R      int
	P      int
	KeyLen int
}

var (
	secureParams   = Params{N: 32768, R: 12, P: 6, KeyLen: 64}
	insecureParams = Params{N: 16, R: 12, P: 1, KeyLen: 64}
)

// ParamsFor returns the work factors used by a mode.
func ParamsFor(m Mode) Params {
	if m == ModeInsecure {
		return insecureParams
	}
	return secureParams
}

// Hasher computes pseudonyms with a fixed mode chosen at construction.
type Hasher struct {
	mode   Mode
	params Params
}

// NewHasher returns a Hasher for the given mode.
func NewHasher(m Mode) *Hasher {
	return &Hasher{mode: m, params: ParamsFor(m)}
}

// Mode reports which work factors the hasher uses.
func (h *Hasher) Mode() Mode {
	return h.mode
}

// Hash returns the hex-encoded scrypt key of identifier salted with salt.
// Identical inputs always produce identical output.
func (h *Hasher) Hash(identifier, salt string) (string, error) {
	key, err := scrypt.Key([]byte(identifier), []byte(salt), h.params.N, h.params.R, h.params.P, h.params.KeyLen)
	if err != nil {
		return "", fmt.Errorf("derive pseudonym: %w", err)
	}
	return hex.EncodeToString(key), nil
}
