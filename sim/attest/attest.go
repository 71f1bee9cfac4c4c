// Package attest implements the closed-world attestation scheme used to
// authenticate inter-cell signals. Every cell owns a Signer; a run owns a
// single PublicKeyDirectory holding the published verification keys. The
// scheme binds (signer identity, step index, payload hash) into a signed
// claim. It simulates hardware-backed signing; there is no real TPM and no
// key distribution problem — the directory is the trust root of the run.
package attest

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Verification failures. Verify returns one of these (possibly wrapped) so
// callers can distinguish a stale claim from a forged one.
var (
	ErrInvalidated     = errors.New("attestation marked invalid")
	ErrFutureStep      = errors.New("attestation step is in the future")
	ErrStale           = errors.New("attestation older than freshness window")
	ErrPayloadMismatch = errors.New("attestation payload hash mismatch")
	ErrUnknownSigner   = errors.New("signer has no published key")
	ErrBadSignature    = errors.New("signature verification failed")
)

// FreshnessWindow is how many steps behind the current step an attestation
// may be and still verify. Signals produced in step N are consumed in step
// N+1, so the window must be at least 1.
const FreshnessWindow = 1

// Attestation is a signed claim binding a signer identity, a step index,
// and a payload hash.
type Attestation struct {
	Signer      string `json:"signer"`
	Step        int    `json:"step"`
	PayloadHash string `json:"payload_hash"`
	Signature   []byte `json:"signature"`
	Valid       bool   `json:"valid"`
}

// hashPayload produces the hex digest bound into an attestation.
func hashPayload(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// message is the canonical byte string that is actually signed: the step
// index and the payload hash, never the raw payload.
func message(step int, payloadHash string) []byte {
	return []byte(fmt.Sprintf("%d:%s", step, payloadHash))
}

// Signer holds one cell's private signing material.
type Signer struct {
	ID string
	// Compromised signers refuse to attest; this models a captured node
	// whose key has been revoked by the scenario.
	Compromised bool

	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner generates a key pair for id from the supplied random stream and
// returns the signer. Using a deterministic stream keeps whole simulation
// runs reproducible.
func NewSigner(id string, random io.Reader) (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("generate key for %s: %w", id, err)
	}
	return &Signer{ID: id, priv: priv, pub: pub}, nil
}

// PublicKey returns the verification key to publish in a directory.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.pub
}

// Attest signs a claim over (step, payload). Returns nil and false when the
// signer is compromised.
func (s *Signer) Attest(step int, payload string) (*Attestation, bool) {
	if s.Compromised {
		return nil, false
	}
	payloadHash := hashPayload(payload)
	sig := ed25519.Sign(s.priv, message(step, payloadHash))
	return &Attestation{
		Signer:      s.ID,
		Step:        step,
		PayloadHash: payloadHash,
		Signature:   sig,
		Valid:       true,
	}, true
}

// PublicKeyDirectory maps agent identities to their published verification
// keys. It is an explicit service object owned by the simulation run; there
// is no process-wide registry.
type PublicKeyDirectory struct {
	keys map[string]ed25519.PublicKey
}

// NewDirectory returns an empty directory.
func NewDirectory() *PublicKeyDirectory {
	return &PublicKeyDirectory{keys: make(map[string]ed25519.PublicKey)}
}

// Register publishes a signer's verification key. Re-registering an identity
// overwrites the previous key.
func (d *PublicKeyDirectory) Register(id string, key ed25519.PublicKey) {
	d.keys[id] = key
}

// Remove withdraws an identity's key, e.g. when the cell dies.
func (d *PublicKeyDirectory) Remove(id string) {
	delete(d.keys, id)
}

// Len reports how many identities have published keys.
func (d *PublicKeyDirectory) Len() int {
	return len(d.keys)
}

// Verify checks an attestation against the current step and the payload the
// receiver observed. It fails unless the claim is marked valid, is fresh
// (not future, at most FreshnessWindow steps stale), binds the recomputed
// payload hash, and carries a signature that verifies against the claimed
// signer's published key.
func (d *PublicKeyDirectory) Verify(att *Attestation, currentStep int, payload string) error {
	if att == nil {
		return ErrInvalidated
	}
	if !att.Valid {
		return ErrInvalidated
	}
	if att.Step > currentStep {
		return ErrFutureStep
	}
	if currentStep-att.Step > FreshnessWindow {
		return ErrStale
	}
	if att.PayloadHash != hashPayload(payload) {
		return ErrPayloadMismatch
	}
	key, ok := d.keys[att.Signer]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSigner, att.Signer)
	}
	if !ed25519.Verify(key, message(att.Step, att.PayloadHash), att.Signature) {
		return ErrBadSignature
	}
	return nil
}
