// Package reconcile implements the Order Reconciliator (C7): a pure
// function that turns a group of oracle reports for the same order into
// one consensus view, per spec.md §4.7.
package reconcile

import (
	"cosmossdk.io/math"

	"github.com/avicenne-studio/bridge-hub/internal/bherr"
	"github.com/avicenne-studio/bridge-hub/internal/domain"
)

// Report is one oracle's view of an order, with its own accumulated
// signature. Per-report transport metadata (e.g. which oracle URL
// produced it) is stripped by the caller before Reconcile sees it.
type Report struct {
	OrderID             string
	Source              domain.Chain
	Dest                domain.Chain
	From                string
	To                  string
	Amount              math.Int
	RelayerFee          math.Int
	OriginTrxHash       string
	OracleAcceptToRelay bool
	Status              domain.OrderStatus
	DestinationTrxHash  string // optional, "" when absent
	Signature           string
}

// Consensus is the reconciled view of a report group: the first report
// with Status (and DestinationTrxHash, if elected) overridden.
type Consensus struct {
	Report
	Signatures []string // every report's signature in the group, in order
}

// Reconcile implements spec.md §4.7. group must be non-empty — an empty
// group is a programmer error (InvariantViolation), not a runtime
// condition to recover from.
func Reconcile(group []Report) (*Consensus, error) {
	if len(group) == 0 {
		return nil, bherr.New(bherr.KindInvariantViolation, "reconcile called with empty group")
	}

	first := group[0]
	for _, r := range group[1:] {
		if !sameImmutableFields(first, r) {
			return nil, bherr.WithMeta(bherr.KindReconcileMismatch, "reports disagree on immutable fields", map[string]interface{}{
				"orderId": first.OrderID,
			})
		}
	}

	status, err := electStatus(group, first.OrderID)
	if err != nil {
		return nil, err
	}

	destHash := electDestinationTrxHash(group)

	sigs := make([]string, 0, len(group))
	for _, r := range group {
		sigs = append(sigs, r.Signature)
	}

	out := first
	out.Status = status
	out.DestinationTrxHash = destHash
	return &Consensus{Report: out, Signatures: sigs}, nil
}

func sameImmutableFields(a, b Report) bool {
	return a.Source == b.Source &&
		a.Dest == b.Dest &&
		a.From == b.From &&
		a.To == b.To &&
		a.Amount.Equal(b.Amount) &&
		a.RelayerFee.Equal(b.RelayerFee) &&
		a.OriginTrxHash == b.OriginTrxHash &&
		a.OracleAcceptToRelay == b.OracleAcceptToRelay
}

// electStatus runs a plurality vote; a strict tie for the lead fails
// with NoConsensus.
func electStatus(group []Report, orderID string) (domain.OrderStatus, error) {
	counts := make(map[domain.OrderStatus]int)
	order := make([]domain.OrderStatus, 0, len(group))
	for _, r := range group {
		if _, seen := counts[r.Status]; !seen {
			order = append(order, r.Status)
		}
		counts[r.Status]++
	}

	best := order[0]
	bestCount := counts[best]
	tied := false
	for _, s := range order[1:] {
		c := counts[s]
		if c > bestCount {
			best, bestCount, tied = s, c, false
		} else if c == bestCount {
			tied = true
		}
	}
	if tied {
		return "", bherr.WithMeta(bherr.KindNoConsensus, "no status achieved a plurality", map[string]interface{}{
			"orderId": orderID,
		})
	}
	return best, nil
}

// electDestinationTrxHash elects by plurality among non-empty values,
// ties broken in first-seen order; absent if no report has one.
func electDestinationTrxHash(group []Report) string {
	counts := make(map[string]int)
	order := make([]string, 0, len(group))
	for _, r := range group {
		if r.DestinationTrxHash == "" {
			continue
		}
		if _, seen := counts[r.DestinationTrxHash]; !seen {
			order = append(order, r.DestinationTrxHash)
		}
		counts[r.DestinationTrxHash]++
	}
	if len(order) == 0 {
		return ""
	}

	best := order[0]
	bestCount := counts[best]
	for _, h := range order[1:] {
		if counts[h] > bestCount {
			best, bestCount = h, counts[h]
		}
	}
	return best
}
