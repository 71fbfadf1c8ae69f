// Package signer implements the Request Signer (C3): canonical-string
// Ed25519 signing of outbound requests, with key material kept behind an
// immutable snapshot so rotation never exposes a half-updated state
// (spec.md §4.3, §9).
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/avicenne-studio/bridge-hub/internal/domain"
)

// Headers are the six X-Hub-* headers attached to every signed request.
type Headers struct {
	HubID     string
	KeyID     string
	Timestamp string
	Nonce     string
	BodyHash  string
	Signature string
}

func (h Headers) Map() map[string]string {
	return map[string]string{
		"X-Hub-Id":    h.HubID,
		"X-Key-Id":    h.KeyID,
		"X-Timestamp": h.Timestamp,
		"X-Nonce":     h.Nonce,
		"X-Body-Hash": h.BodyHash,
		"X-Signature": h.Signature,
	}
}

// Signer holds a rotatable, immutable HubKeys snapshot. Rotate swaps the
// whole snapshot atomically; in-flight Sign calls always see a complete
// one, never a torn write.
type Signer struct {
	snapshot atomic.Pointer[domain.HubKeys]
	now      func() time.Time
}

func New(keys domain.HubKeys) *Signer {
	s := &Signer{now: time.Now}
	s.snapshot.Store(&keys)
	return s
}

// Rotate publishes a new HubKeys snapshot. Readers pick it up at their
// next Sign call.
func (s *Signer) Rotate(keys domain.HubKeys) {
	s.snapshot.Store(&keys)
}

// Keys returns the current snapshot.
func (s *Signer) Keys() domain.HubKeys {
	return *s.snapshot.Load()
}

// Sign builds the canonical string for (method, url, body), signs it
// with the current private key, and returns the X-Hub-* headers.
func (s *Signer) Sign(method, url string, body []byte) (Headers, error) {
	keys := *s.snapshot.Load()
	if keys.Current.PrivateKey == nil {
		return Headers{}, fmt.Errorf("signer: current key %q has no private key material", keys.Current.KeyID)
	}

	nonce, err := freshNonce()
	if err != nil {
		return Headers{}, fmt.Errorf("generating nonce: %w", err)
	}
	timestamp := strconv.FormatInt(s.now().Unix(), 10)
	bodyHash := hashBody(body)

	canonical := canonicalString(method, url, keys.HubID, timestamp, nonce, bodyHash)
	sig := ed25519.Sign(keys.Current.PrivateKey, []byte(canonical))

	return Headers{
		HubID:     keys.HubID,
		KeyID:     keys.Current.KeyID,
		Timestamp: timestamp,
		Nonce:     nonce,
		BodyHash:  bodyHash,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}, nil
}

func canonicalString(method, url, hubID, timestamp, nonce, bodyHash string) string {
	return fmt.Sprintf(
		"%s\n%s\nhubId=%s\ntimestamp=%s\nnonce=%s\nbodyhash=%s\n",
		method, url, hubID, timestamp, nonce, bodyHash,
	)
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func freshNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
