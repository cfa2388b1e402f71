// Package sig verifies the ECDSA signature over a completed firmware
// image (§4.6, §6, P4). It is one of the core's external
// collaborators — an implementer could swap curves entirely — but
// this package grounds it the way the pack does: secp256k1 public
// keys and raw (r‖s) signatures, the same shapes cmd/picosign in the
// teacher pack rewrites on signed firmware images.
package sig

import (
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// RawSignatureLen is the length of a raw (r‖s) secp256k1 signature,
// matching cmd/picosign's -sigfmt=raw convention.
const RawSignatureLen = 64

// Verifier checks a signature over a 32-byte digest against a
// provisioned public key.
type Verifier interface {
	Verify(pubKey []byte, digest [32]byte, signature []byte) error
}

// Secp256k1 verifies raw secp256k1/ECDSA signatures.
type Secp256k1 struct{}

// Verify parses pubKey as a compressed secp256k1 public key and
// signature as a raw 64-byte (r‖s) pair, then checks signature over
// digest.
func (Secp256k1) Verify(pubKey []byte, digest [32]byte, signature []byte) error {
	if len(signature) != RawSignatureLen {
		return errors.New("sig: signature must be 64 raw bytes")
	}
	key, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return err
	}
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(signature[:32]); overflow {
		return errors.New("sig: signature r out of range")
	}
	if overflow := s.SetByteSlice(signature[32:]); overflow {
		return errors.New("sig: signature s out of range")
	}
	parsed := ecdsa.NewSignature(&r, &s)
	if !parsed.Verify(digest[:], key) {
		return errors.New("sig: signature verification failed")
	}
	return nil
}
