// Package domain holds the Bridge Hub's core types and invariants — Order,
// Signature, StoredEvent, OracleHealth, and HubKeys (spec.md §3).
package domain

import (
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"
)

// Chain identifies one of the two bridged networks.
type Chain string

const (
	ChainS Chain = "chainS" // Solana-like
	ChainQ Chain = "chainQ" // Qubic-like
)

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	StatusPending       OrderStatus = "pending"
	StatusInProgress    OrderStatus = "in-progress"
	StatusReadyForRelay OrderStatus = "ready-for-relay"
	StatusRelayed       OrderStatus = "relayed"
	StatusFailed        OrderStatus = "failed"
	StatusFinalized     OrderStatus = "finalized"
)

// Terminal reports whether status can no longer transition back to
// ready-for-relay (spec.md §3 invariant).
func (s OrderStatus) Terminal() bool {
	return s == StatusFinalized || s == StatusRelayed
}

// Order is a single cross-chain transfer request.
type Order struct {
	ID                  string      `json:"id"`
	Source              Chain       `json:"source"`
	Dest                Chain       `json:"dest"`
	From                string      `json:"from"`
	To                  string      `json:"to"`
	Amount              math.Int    `json:"amount"`
	RelayerFee          math.Int    `json:"relayerFee"`
	OriginTrxHash       string      `json:"origin_trx_hash"`
	DestinationTrxHash  string      `json:"destination_trx_hash,omitempty"` // optional, empty when unset
	SourceNonce         string      `json:"source_nonce"`
	SourcePayload       string      `json:"source_payload"`
	FailureReasonPublic string      `json:"failure_reason_public,omitempty"` // optional
	OracleAcceptToRelay bool        `json:"oracle_accept_to_relay"`
	Status              OrderStatus `json:"status"`
	CreatedAt           time.Time   `json:"createdAt"`
	UpdatedAt           time.Time   `json:"updatedAt"`
}

// Validate enforces the invariants of spec.md §3 that are cheap to check
// in-process; repository implementations enforce the rest (uniqueness).
func (o *Order) Validate() error {
	if o.Source == o.Dest {
		return errInvalidOrder("source and dest must differ")
	}
	if o.Amount.IsNil() || o.Amount.IsNegative() {
		return errInvalidOrder("amount must be non-negative")
	}
	return nil
}

func errInvalidOrder(msg string) error {
	return &InvalidOrderError{Msg: msg}
}

// InvalidOrderError reports a violated Order invariant.
type InvalidOrderError struct{ Msg string }

func (e *InvalidOrderError) Error() string { return "invalid order: " + e.Msg }

// NewID generates a fresh UUID-shaped order id.
func NewID() string {
	return uuid.New().String()
}

// Signature is an oracle's endorsement of an order.
type Signature struct {
	OrderID   string `json:"order_id"`
	Signature string `json:"signature"`
}

// OrderWithSignatures pairs an order with its accumulated signatures.
type OrderWithSignatures struct {
	Order      *Order
	Signatures []string
}
