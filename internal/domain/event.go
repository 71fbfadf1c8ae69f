package domain

import "time"

// EventType is one of the six on-chain bridge event kinds (spec.md §3).
type EventType string

const (
	// Chain S
	EventOutbound         EventType = "outbound"
	EventOverrideOutbound EventType = "override-outbound"
	EventInbound          EventType = "inbound"
	// Chain Q
	EventLock         EventType = "lock"
	EventOverrideLock EventType = "override-lock"
	EventUnlock       EventType = "unlock"
)

// StoredEvent is a deduplicated on-chain bridge event record.
type StoredEvent struct {
	ID        int64     `json:"id"`
	Signature string    `json:"signature"`
	Slot      *int64    `json:"slot,omitempty"` // absent for chain Q
	Chain     Chain     `json:"chain"`
	Type      EventType `json:"type"`
	Nonce     string    `json:"nonce"` // hex32, lowercase, 64 chars
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

// Key returns the dedup tuple (signature, type, nonce).
func (e *StoredEvent) Key() EventKey {
	return EventKey{Signature: e.Signature, Type: e.Type, Nonce: e.Nonce}
}

// EventKey is the uniqueness tuple enforced by the Events Repository.
type EventKey struct {
	Signature string
	Type      EventType
	Nonce     string
}

// EventCursor is the (createdAt, id) pagination cursor for listAfterCreatedAt.
type EventCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        int64     `json:"id"`
}
