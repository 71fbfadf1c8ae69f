package signer

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avicenne-studio/bridge-hub/internal/domain"
)

func testKeys(t *testing.T, keyID string) domain.HubKeys {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return domain.HubKeys{
		HubID:   "hub-1",
		Current: domain.KeyMaterial{KeyID: keyID, PublicKey: pub, PrivateKey: priv},
	}
}

func TestSign_ProducesVerifiableSignature(t *testing.T) {
	keys := testKeys(t, "k1")
	s := New(keys)

	headers, err := s.Sign("GET", "/api/health", nil)
	require.NoError(t, err)
	assert.Equal(t, "hub-1", headers.HubID)
	assert.Equal(t, "k1", headers.KeyID)

	canonical := canonicalString("GET", "/api/health", "hub-1", headers.Timestamp, headers.Nonce, headers.BodyHash)
	sig, err := base64.StdEncoding.DecodeString(headers.Signature)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(keys.Current.PublicKey, []byte(canonical), sig))
}

func TestSign_NoncesAreFreshPerCall(t *testing.T) {
	s := New(testKeys(t, "k1"))
	h1, err := s.Sign("GET", "/x", nil)
	require.NoError(t, err)
	h2, err := s.Sign("GET", "/x", nil)
	require.NoError(t, err)
	assert.NotEqual(t, h1.Nonce, h2.Nonce)
}

func TestSign_EmptyBodyHashesEmptyString(t *testing.T) {
	s := New(testKeys(t, "k1"))
	h, err := s.Sign("GET", "/x", nil)
	require.NoError(t, err)
	assert.Equal(t, hashBody(nil), h.BodyHash)
	assert.Equal(t, hashBody([]byte{}), h.BodyHash)
}

func TestRotate_SwapsSnapshotAtomically(t *testing.T) {
	s := New(testKeys(t, "k1"))
	next := testKeys(t, "k2")
	s.Rotate(next)
	assert.Equal(t, "k2", s.Keys().Current.KeyID)

	h, err := s.Sign("GET", "/x", nil)
	require.NoError(t, err)
	assert.Equal(t, "k2", h.KeyID)
}

func TestSign_FailsWithoutPrivateKey(t *testing.T) {
	keys := testKeys(t, "k1")
	keys.Current.PrivateKey = nil
	s := New(keys)
	_, err := s.Sign("GET", "/x", nil)
	assert.Error(t, err)
}

func TestSign_TimestampIsUnixSeconds(t *testing.T) {
	s := New(testKeys(t, "k1"))
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	h, err := s.Sign("GET", "/x", nil)
	require.NoError(t, err)
	assert.Equal(t, "1700000000", h.Timestamp)
}
