package sig

import (
	"crypto/sha256"
	"encoding/asn1"
	"math/big"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// rawSignature converts a DER-encoded ECDSA signature to the raw
// (r||s) form Verify expects, the same conversion cmd/picosign's sign
// command applies to an externally produced DER signature.
func rawSignature(t *testing.T, der []byte) []byte {
	t.Helper()
	var parsed struct {
		B1, B2 *big.Int
	}
	rest, err := asn1.Unmarshal(der, &parsed)
	if err != nil {
		t.Fatalf("asn1.Unmarshal: %v", err)
	}
	if len(rest) > 0 {
		t.Fatalf("trailing data after signature")
	}
	raw := make([]byte, RawSignatureLen)
	parsed.B1.FillBytes(raw[:32])
	parsed.B2.FillBytes(raw[32:])
	return raw
}

func TestSecp256k1VerifyAccepts(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	digest := sha256.Sum256([]byte("firmware image bytes"))
	sig := ecdsa.Sign(priv, digest[:])
	raw := rawSignature(t, sig.Serialize())

	v := Secp256k1{}
	if err := v.Verify(priv.PubKey().SerializeCompressed(), digest, raw); err != nil {
		t.Errorf("Verify() = %v, want nil", err)
	}
}

func TestSecp256k1VerifyRejectsWrongKey(t *testing.T) {
	priv, _ := secp256k1.GeneratePrivateKey()
	other, _ := secp256k1.GeneratePrivateKey()
	digest := sha256.Sum256([]byte("firmware image bytes"))
	sig := ecdsa.Sign(priv, digest[:])
	raw := rawSignature(t, sig.Serialize())

	v := Secp256k1{}
	if err := v.Verify(other.PubKey().SerializeCompressed(), digest, raw); err == nil {
		t.Error("expected verification with the wrong key to fail")
	}
}

func TestSecp256k1VerifyRejectsTamperedDigest(t *testing.T) {
	priv, _ := secp256k1.GeneratePrivateKey()
	digest := sha256.Sum256([]byte("firmware image bytes"))
	sig := ecdsa.Sign(priv, digest[:])
	raw := rawSignature(t, sig.Serialize())

	tampered := sha256.Sum256([]byte("different firmware image bytes"))
	v := Secp256k1{}
	if err := v.Verify(priv.PubKey().SerializeCompressed(), tampered, raw); err == nil {
		t.Error("expected verification of a tampered digest to fail")
	}
}

func TestSecp256k1VerifyRejectsWrongLength(t *testing.T) {
	priv, _ := secp256k1.GeneratePrivateKey()
	digest := sha256.Sum256([]byte("x"))
	v := Secp256k1{}
	if err := v.Verify(priv.PubKey().SerializeCompressed(), digest, []byte{1, 2, 3}); err == nil {
		t.Error("expected a non-64-byte signature to be rejected")
	}
}
