package oracle

import (
	"context"
	"math/big"
	"sync"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/lalalune/babylon-oracle/chain"
	"github.com/lalalune/babylon-oracle/commitment"
	oerrors "github.com/lalalune/babylon-oracle/errors"
)

// mockGasPriceWei is the effective gas price every mock receipt reports.
const mockGasPriceWei = 2_000_000_000

// mockChain simulates the oracle contract behind the Submitter interface. It
// assigns sequential session ids on commit, emits GameCommitted events in
// input order, and rejects reveals whose (outcome, salt) does not hash to the
// committed value, the way the real contract would.
type mockChain struct {
	t *testing.T

	mu         sync.Mutex
	oracleAddr ethcommon.Address

	submitErr error // forced Submit failure
	waitErr   error // forced WaitForReceipt failure

	contractCode  []byte
	signerBalance *big.Int
	version       string
	stats         chain.Statistics
	gasUsed       uint64

	nextSession uint64
	nextTx      uint64
	commitments map[ethcommon.Hash]ethcommon.Hash // session id -> committed hash
	games       map[ethcommon.Hash]*chain.GameInfo
	receipts    map[ethcommon.Hash]*types.Receipt
	reverted    map[ethcommon.Hash]bool

	submittedKinds []string
	committedItems []chain.CommitParams
	revealedItems  []chain.RevealParams
}

func newMockChain(t *testing.T) *mockChain {
	return &mockChain{
		t:             t,
		oracleAddr:    ethcommon.HexToAddress("0x00000000000000000000000000000000000000aa"),
		contractCode:  []byte{0x60, 0x80},
		signerBalance: big.NewInt(1_000_000_000_000_000_000),
		version:       "1.0.0",
		gasUsed:       180_000,
		commitments:   make(map[ethcommon.Hash]ethcommon.Hash),
		games:         make(map[ethcommon.Hash]*chain.GameInfo),
		receipts:      make(map[ethcommon.Hash]*types.Receipt),
		reverted:      make(map[ethcommon.Hash]bool),
	}
}

func (m *mockChain) OracleAddress() ethcommon.Address { return m.oracleAddr }

func (m *mockChain) Submit(_ context.Context, calldata []byte, _ uint64) (ethcommon.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.submitErr != nil {
		return ethcommon.Hash{}, m.submitErr
	}

	kind := chain.CallKind(calldata)
	m.submittedKinds = append(m.submittedKinds, kind)

	m.nextTx++
	txHash := ethcommon.BigToHash(new(big.Int).SetUint64(m.nextTx))

	switch kind {
	case "commitGame":
		p, err := chain.UnpackCommitGameInput(calldata)
		if err != nil {
			m.t.Fatalf("mock received malformed commitGame calldata: %v", err)
		}
		m.committedItems = append(m.committedItems, *p)
		m.receipts[txHash] = m.receiptWithCommits(txHash, []chain.CommitParams{*p})

	case "batchCommitGames":
		items, err := chain.UnpackBatchCommitGamesInput(calldata)
		if err != nil {
			m.t.Fatalf("mock received malformed batchCommitGames calldata: %v", err)
		}
		m.committedItems = append(m.committedItems, items...)
		m.receipts[txHash] = m.receiptWithCommits(txHash, items)

	case "revealGame":
		p, err := chain.UnpackRevealGameInput(calldata)
		if err != nil {
			m.t.Fatalf("mock received malformed revealGame calldata: %v", err)
		}
		m.revealedItems = append(m.revealedItems, *p)
		m.settleReveals(txHash, []chain.RevealParams{*p})

	case "batchRevealGames":
		items, err := chain.UnpackBatchRevealGamesInput(calldata)
		if err != nil {
			m.t.Fatalf("mock received malformed batchRevealGames calldata: %v", err)
		}
		m.revealedItems = append(m.revealedItems, items...)
		m.settleReveals(txHash, items)

	default:
		m.t.Fatalf("mock received unexpected calldata kind %q", kind)
	}

	return txHash, nil
}

func (m *mockChain) receiptWithCommits(txHash ethcommon.Hash, items []chain.CommitParams) *types.Receipt {
	logs := make([]*types.Log, 0, len(items))
	for _, item := range items {
		m.nextSession++
		sessionID := ethcommon.BigToHash(new(big.Int).SetUint64(m.nextSession))
		m.commitments[sessionID] = item.Commitment
		m.games[sessionID] = &chain.GameInfo{
			QuestionID:     item.QuestionID,
			QuestionNumber: item.QuestionNumber,
			Question:       item.Question,
			Category:       item.Category,
			Commitment:     item.Commitment,
		}
		data, err := chain.EncodeGameCommittedData(item.QuestionID)
		if err != nil {
			m.t.Fatalf("failed to encode event data: %v", err)
		}
		logs = append(logs, &types.Log{
			Address: m.oracleAddr,
			Topics:  []ethcommon.Hash{chain.GameCommittedTopic(), sessionID},
			Data:    data,
		})
	}
	m.stats.Committed += uint64(len(items))
	m.stats.Pending += uint64(len(items))
	return &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		TxHash:            txHash,
		BlockNumber:       big.NewInt(int64(100 + m.nextTx)),
		GasUsed:           m.gasUsed,
		EffectiveGasPrice: big.NewInt(mockGasPriceWei),
		Logs:              logs,
	}
}

// settleReveals verifies each reveal the way the contract would; one bad item
// reverts the whole transaction.
func (m *mockChain) settleReveals(txHash ethcommon.Hash, items []chain.RevealParams) {
	for _, item := range items {
		committed, ok := m.commitments[item.SessionID]
		if !ok {
			m.reverted[txHash] = true
			return
		}
		recomputed, err := commitment.Compute(item.Outcome, hexutil.Encode(item.Salt[:]))
		if err != nil || recomputed != committed {
			m.reverted[txHash] = true
			return
		}
	}
	for _, item := range items {
		game := m.games[item.SessionID]
		game.Revealed = true
		game.Outcome = item.Outcome
	}
	m.stats.Revealed += uint64(len(items))
	m.stats.Pending -= uint64(len(items))
	m.receipts[txHash] = &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		TxHash:            txHash,
		BlockNumber:       big.NewInt(int64(100 + m.nextTx)),
		GasUsed:           m.gasUsed,
		EffectiveGasPrice: big.NewInt(mockGasPriceWei),
	}
}

func (m *mockChain) WaitForReceipt(_ context.Context, txHash ethcommon.Hash) (*types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.waitErr != nil {
		return nil, m.waitErr
	}
	if m.reverted[txHash] {
		return nil, oerrors.NewChainError("transaction reverted", nil).
			WithContext("tx_hash", txHash.Hex())
	}
	receipt, ok := m.receipts[txHash]
	if !ok {
		return nil, oerrors.NewTimeoutError("transaction not confirmed")
	}
	return receipt, nil
}

func (m *mockChain) Call(_ context.Context, calldata []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch chain.CallKind(calldata) {
	case "getStatistics":
		stats := m.stats
		return chain.EncodeStatistics(&stats)
	case "version":
		return chain.EncodeVersion(m.version)
	case "getGameInfo":
		sessionID := ethcommon.BytesToHash(calldata[4:])
		game, ok := m.games[sessionID]
		if !ok {
			return nil, oerrors.NewChainError("game not found", nil)
		}
		return chain.EncodeGameInfo(game)
	}
	return nil, oerrors.NewChainError("unexpected read call", nil)
}

func (m *mockChain) ContractCode(_ context.Context) ([]byte, error) {
	return m.contractCode, nil
}

func (m *mockChain) SignerBalance(_ context.Context) (*big.Int, error) {
	return m.signerBalance, nil
}
