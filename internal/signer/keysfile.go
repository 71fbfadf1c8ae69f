package signer

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/avicenne-studio/bridge-hub/internal/domain"
)

// keyMaterialWire is the on-disk shape of one key pair: base64-encoded
// raw Ed25519 key bytes. PrivateKey is omitted for a "next" key that has
// been announced but isn't active yet.
type keyMaterialWire struct {
	KeyID      string `json:"kid"`
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey,omitempty"`
}

type hubKeysWire struct {
	HubID   string           `json:"hubId"`
	Current keyMaterialWire  `json:"current"`
	Next    *keyMaterialWire `json:"next,omitempty"`
}

// LoadKeysFile reads HUB_KEYS_FILE's JSON document into a domain.HubKeys
// snapshot, ready to hand to New or Rotate.
func LoadKeysFile(path string) (domain.HubKeys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.HubKeys{}, fmt.Errorf("reading hub keys file: %w", err)
	}

	var wire hubKeysWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return domain.HubKeys{}, fmt.Errorf("parsing hub keys file: %w", err)
	}

	current, err := wire.Current.toKeyMaterial()
	if err != nil {
		return domain.HubKeys{}, fmt.Errorf("decoding current key: %w", err)
	}

	keys := domain.HubKeys{HubID: wire.HubID, Current: current}
	if wire.Next != nil {
		next, err := wire.Next.toKeyMaterial()
		if err != nil {
			return domain.HubKeys{}, fmt.Errorf("decoding next key: %w", err)
		}
		keys.Next = &next
	}
	return keys, nil
}

func (w keyMaterialWire) toKeyMaterial() (domain.KeyMaterial, error) {
	pub, err := base64.StdEncoding.DecodeString(w.PublicKey)
	if err != nil {
		return domain.KeyMaterial{}, fmt.Errorf("decoding public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return domain.KeyMaterial{}, fmt.Errorf("public key %q has wrong length %d", w.KeyID, len(pub))
	}

	km := domain.KeyMaterial{KeyID: w.KeyID, PublicKey: ed25519.PublicKey(pub)}
	if w.PrivateKey != "" {
		priv, err := base64.StdEncoding.DecodeString(w.PrivateKey)
		if err != nil {
			return domain.KeyMaterial{}, fmt.Errorf("decoding private key: %w", err)
		}
		if len(priv) != ed25519.PrivateKeySize {
			return domain.KeyMaterial{}, fmt.Errorf("private key %q has wrong length %d", w.KeyID, len(priv))
		}
		km.PrivateKey = ed25519.PrivateKey(priv)
	}
	return km, nil
}
