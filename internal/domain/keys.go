package domain

import "crypto/ed25519"

// KeyMaterial is one Ed25519 key pair identified by a key id.
type KeyMaterial struct {
	KeyID      string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey // nil for a "next" key not yet promoted
}

// HubKeys is the process-wide, immutable-after-load identity snapshot
// (spec.md §3). Key rotation replaces the whole snapshot; readers always
// see either the old or the new one, never a half-updated one.
type HubKeys struct {
	HubID   string
	Current KeyMaterial
	Next    *KeyMaterial // optional
}
