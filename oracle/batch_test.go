package oracle

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oerrors "github.com/lalalune/babylon-oracle/errors"
)

func batchOf(n int) []GameInput {
	games := make([]GameInput, n)
	for i := range games {
		games[i] = GameInput{
			QuestionID:     fmt.Sprintf("batch-q-%d", i),
			QuestionNumber: uint64(i + 1),
			Question:       fmt.Sprintf("question number %d", i+1),
			Category:       "sports",
			Outcome:        i%2 == 0,
		}
	}
	return games
}

func TestBatchCommitGames(t *testing.T) {
	svc, mock, _ := newTestService(t)

	result, err := svc.BatchCommitGames(context.Background(), batchOf(3))
	require.NoError(t, err)
	require.Len(t, result.Successful, 3)
	assert.Empty(t, result.Failed)

	// one transaction for the whole batch
	assert.Equal(t, []string{"batchCommitGames"}, mock.submittedKinds)

	// session ids follow item order and gas is shared evenly
	for i, item := range result.Successful {
		assert.Equal(t, fmt.Sprintf("batch-q-%d", i), item.QuestionID)
		assert.NotEmpty(t, item.SessionID)
		assert.Equal(t, mock.gasUsed/3, item.GasUsed)
		if i > 0 {
			assert.NotEqual(t, result.Successful[i-1].SessionID, item.SessionID)
		}
	}

	pending, err := svc.ListPendingCommitments()
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, p := range pending {
		assert.Equal(t, result.Successful[i].SessionID, p.SessionID)
	}
}

func TestBatchCommitGamesIsolatesPreparationFailures(t *testing.T) {
	svc, mock, _ := newTestService(t)

	// salt generation fails for the second item only
	calls := 0
	svc.generateSalt = func() (string, error) {
		calls++
		if calls == 2 {
			return "", oerrors.NewInternalError("entropy source unavailable", nil)
		}
		return fmt.Sprintf("0x%064x", calls), nil
	}

	result, err := svc.BatchCommitGames(context.Background(), batchOf(3))
	require.NoError(t, err)

	require.Len(t, result.Successful, 2)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "batch-q-1", result.Failed[0].QuestionID)
	assert.Contains(t, result.Failed[0].Error, "entropy source unavailable")

	// the failed item never reached the chain
	require.Len(t, mock.committedItems, 2)
	assert.Equal(t, "batch-q-0", mock.committedItems[0].QuestionID)
	assert.Equal(t, "batch-q-2", mock.committedItems[1].QuestionID)
}

func TestBatchCommitGamesNoSurvivorsSkipsChain(t *testing.T) {
	svc, mock, _ := newTestService(t)

	svc.generateSalt = func() (string, error) {
		return "", oerrors.NewInternalError("entropy source unavailable", nil)
	}

	result, err := svc.BatchCommitGames(context.Background(), batchOf(2))
	require.NoError(t, err)
	assert.Empty(t, result.Successful)
	assert.Len(t, result.Failed, 2)
	assert.Empty(t, mock.submittedKinds)
}

func TestBatchCommitGamesChainFailureFailsEveryItem(t *testing.T) {
	svc, mock, _ := newTestService(t)
	mock.submitErr = oerrors.NewRPCError("all rpc endpoints failed", nil)

	result, err := svc.BatchCommitGames(context.Background(), batchOf(3))
	require.NoError(t, err)

	assert.Empty(t, result.Successful)
	require.Len(t, result.Failed, 3)
	for i, item := range result.Failed {
		assert.Equal(t, fmt.Sprintf("batch-q-%d", i), item.QuestionID)
		assert.Equal(t, result.Failed[0].Error, item.Error)
	}

	// salts were persisted before the broadcast, so the items can be retried
	pending, err := svc.ListPendingCommitments()
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestBatchRevealGames(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	games := batchOf(3)
	committed, err := svc.BatchCommitGames(ctx, games)
	require.NoError(t, err)
	require.Len(t, committed.Successful, 3)

	reveals := make([]RevealInput, len(games))
	for i, g := range games {
		reveals[i] = RevealInput{QuestionID: g.QuestionID, Outcome: g.Outcome}
	}

	result, err := svc.BatchRevealGames(ctx, reveals)
	require.NoError(t, err)
	require.Len(t, result.Successful, 3)
	assert.Empty(t, result.Failed)

	for i, item := range result.Successful {
		assert.Equal(t, committed.Successful[i].SessionID, item.SessionID)
		assert.Equal(t, games[i].Outcome, item.Outcome)
	}

	pending, err := svc.ListPendingCommitments()
	require.NoError(t, err)
	assert.Empty(t, pending)

	stats, err := svc.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.Revealed)
	assert.Equal(t, uint64(0), stats.Pending)
}

func TestBatchRevealGamesSkipsUnknownQuestions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	games := batchOf(2)
	_, err := svc.BatchCommitGames(ctx, games)
	require.NoError(t, err)

	reveals := []RevealInput{
		{QuestionID: games[0].QuestionID, Outcome: games[0].Outcome},
		{QuestionID: "never-committed", Outcome: true},
		{QuestionID: games[1].QuestionID, Outcome: games[1].Outcome},
	}

	result, err := svc.BatchRevealGames(ctx, reveals)
	require.NoError(t, err)
	require.Len(t, result.Successful, 2)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "never-committed", result.Failed[0].QuestionID)
	assert.Contains(t, result.Failed[0].Error, "never-committed")
}

func TestBatchRevealGamesRevertFailsEveryItem(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	games := batchOf(2)
	_, err := svc.BatchCommitGames(ctx, games)
	require.NoError(t, err)

	// one mismatched outcome reverts the whole transaction
	reveals := []RevealInput{
		{QuestionID: games[0].QuestionID, Outcome: games[0].Outcome},
		{QuestionID: games[1].QuestionID, Outcome: !games[1].Outcome},
	}

	result, err := svc.BatchRevealGames(ctx, reveals)
	require.NoError(t, err)
	assert.Empty(t, result.Successful)
	require.Len(t, result.Failed, 2)
	for _, item := range result.Failed {
		assert.Contains(t, item.Error, "reverted")
	}

	// nothing was revealed, so every record survives for the retry
	pending, err := svc.ListPendingCommitments()
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
