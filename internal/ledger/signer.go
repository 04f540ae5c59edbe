package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"filippo.io/edwards25519"
)

// Signer holds the ledger service's ed25519 private key. Verification needs
// only the public key carried on each entry, so any third party can check an
// entry without possessing a secret.
type Signer struct {
	priv ed25519.PrivateKey
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return &Signer{priv: priv}, nil
}

// SignerFromSeedHex restores a signer from a hex-encoded 32-byte seed.
func SignerFromSeedHex(seedHex string) (*Signer, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("decode signing seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Signer{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// PublicKeyHex returns the hex-encoded public key distributed to verifiers.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.priv.Public().(ed25519.PublicKey))
}

// Sign returns the hex-encoded signature over msg.
func (s *Signer) Sign(msg []byte) string {
	return hex.EncodeToString(ed25519.Sign(s.priv, msg))
}

// VerifySignature checks a hex signature over msg against a hex public key.
// Returns a human-readable reason when invalid. The public key must decode
// to a canonical edwards25519 point; a malformed key is an integrity
// failure, not a transport error.
func VerifySignature(pubHex, sigHex string, msg []byte) (bool, string) {
	pub, err := hex.DecodeString(pubHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false, "malformed public key"
	}
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return false, "public key is not a canonical curve point"
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false, "malformed signature"
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		return false, "signature does not match signed envelope"
	}
	return true, ""
}
