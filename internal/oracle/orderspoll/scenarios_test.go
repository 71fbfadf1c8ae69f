package orderspoll

import (
	"context"
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avicenne-studio/bridge-hub/internal/domain"
	"github.com/avicenne-studio/bridge-hub/internal/oracle/reconcile"
	"github.com/avicenne-studio/bridge-hub/internal/orders"
	"github.com/avicenne-studio/bridge-hub/pkg/logger"
)

const scenarioOrderID = "00000000-0000-4000-8000-000000000101"

func baseReport(status domain.OrderStatus, sig string, amount int64) reconcile.Report {
	return reconcile.Report{
		OrderID:       scenarioOrderID,
		Source:        domain.ChainS,
		Dest:          domain.ChainQ,
		From:          "alice",
		To:            "bob",
		Amount:        math.NewInt(amount),
		RelayerFee:    math.NewInt(1),
		OriginTrxHash: "0xabc",
		Status:        status,
		Signature:     sig,
	}
}

// S1 — consensus moves order to relayed (finalized here, matching spec's use
// of "finalized" in its own described outcome) once threshold is met.
func TestScenarioS1_ConsensusMovesOrderToFinalized(t *testing.T) {
	repo := orders.NewMemRepository()
	log := logger.New("test")
	ctx := context.Background()

	group := []reconcile.Report{
		baseReport(domain.StatusFinalized, "sig1", 10),
		baseReport(domain.StatusFinalized, "sig2", 10),
		baseReport(domain.StatusPending, "sig3", 10),
	}

	processGroup(ctx, scenarioOrderID, group, repo, 2, log)

	stored, err := repo.FindByID(ctx, scenarioOrderID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.StatusFinalized, stored.Status)
	assert.False(t, stored.OracleAcceptToRelay)

	withSigs, err := repo.FindByIDsWithSignatures(ctx, []string{scenarioOrderID})
	require.NoError(t, err)
	require.Len(t, withSigs, 1)
	assert.Len(t, withSigs[0].Signatures, 3)
}

// S2 — a single healthy oracle below threshold keeps the order pending.
func TestScenarioS2_ThresholdNotMetKeepsPending(t *testing.T) {
	repo := orders.NewMemRepository()
	log := logger.New("test")
	ctx := context.Background()

	group := []reconcile.Report{baseReport(domain.StatusPending, "sig1", 10)}
	required := ComputeRequiredSignatures(0.6, 3)
	require.Equal(t, 2, required)

	processGroup(ctx, scenarioOrderID, group, repo, required, log)

	stored, err := repo.FindByID(ctx, scenarioOrderID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.StatusPending, stored.Status)

	withSigs, err := repo.FindByIDsWithSignatures(ctx, []string{scenarioOrderID})
	require.NoError(t, err)
	require.Len(t, withSigs, 1)
	assert.Len(t, withSigs[0].Signatures, 1)
}

// S3 — mismatched reports are skipped: no order created, no signatures added.
func TestScenarioS3_MismatchedReportsSkipped(t *testing.T) {
	repo := orders.NewMemRepository()
	log := logger.New("test")
	ctx := context.Background()

	group := []reconcile.Report{
		baseReport(domain.StatusFinalized, "sig1", 10),
		baseReport(domain.StatusFinalized, "sig2", 10),
		baseReport(domain.StatusFinalized, "sig3", 11),
	}

	processGroup(ctx, scenarioOrderID, group, repo, 2, log)

	stored, err := repo.FindByID(ctx, scenarioOrderID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestProcessGroup_ReadyForRelayWhenThresholdMetAndNotTerminal(t *testing.T) {
	repo := orders.NewMemRepository()
	log := logger.New("test")
	ctx := context.Background()

	group := []reconcile.Report{
		baseReport(domain.StatusInProgress, "sig1", 10),
		baseReport(domain.StatusInProgress, "sig2", 10),
	}
	processGroup(ctx, scenarioOrderID, group, repo, 2, log)

	stored, err := repo.FindByID(ctx, scenarioOrderID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.StatusReadyForRelay, stored.Status)
}

func TestProcessGroup_TerminalStatusNeverBecomesReadyForRelay(t *testing.T) {
	repo := orders.NewMemRepository()
	log := logger.New("test")
	ctx := context.Background()

	group := []reconcile.Report{
		baseReport(domain.StatusRelayed, "sig1", 10),
		baseReport(domain.StatusRelayed, "sig2", 10),
	}
	processGroup(ctx, scenarioOrderID, group, repo, 1, log)

	stored, err := repo.FindByID(ctx, scenarioOrderID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.StatusRelayed, stored.Status)
}
