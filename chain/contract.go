package chain

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	oerrors "github.com/lalalune/babylon-oracle/errors"
)

// Fixed wire contract of the on-chain oracle. Parameter order matters for
// encoding; it must match the deployed contract exactly.
const (
	sigCommitGame       = "commitGame(string,uint256,string,bytes32,string)"
	sigRevealGame       = "revealGame(bytes32,bool,bytes32,bytes,address[],uint256)"
	sigBatchCommitGames = "batchCommitGames(string[],uint256[],string[],bytes32[],string[])"
	sigBatchRevealGames = "batchRevealGames(bytes32[],bool[],bytes32[],bytes[],address[][],uint256[])"
	sigGetGameInfo      = "getGameInfo(bytes32)"
	sigGetStatistics    = "getStatistics()"
	sigVersion          = "version()"

	sigGameCommittedEvent = "GameCommitted(bytes32,string)"
)

var (
	typString       = mustType("string")
	typUint256      = mustType("uint256")
	typBytes32      = mustType("bytes32")
	typBool         = mustType("bool")
	typBytes        = mustType("bytes")
	typAddressSlice = mustType("address[]")

	typStringSlice       = mustType("string[]")
	typUint256Slice      = mustType("uint256[]")
	typBytes32Slice      = mustType("bytes32[]")
	typBoolSlice         = mustType("bool[]")
	typBytesSlice        = mustType("bytes[]")
	typAddressSliceSlice = mustType("address[][]")

	commitGameArgs = abi.Arguments{
		{Type: typString},  // questionId
		{Type: typUint256}, // questionNumber
		{Type: typString},  // question
		{Type: typBytes32}, // commitment
		{Type: typString},  // category
	}
	revealGameArgs = abi.Arguments{
		{Type: typBytes32},      // sessionId
		{Type: typBool},         // outcome
		{Type: typBytes32},      // salt
		{Type: typBytes},        // proof
		{Type: typAddressSlice}, // winners
		{Type: typUint256},      // totalPayout
	}
	batchCommitGamesArgs = abi.Arguments{
		{Type: typStringSlice},
		{Type: typUint256Slice},
		{Type: typStringSlice},
		{Type: typBytes32Slice},
		{Type: typStringSlice},
	}
	batchRevealGamesArgs = abi.Arguments{
		{Type: typBytes32Slice},
		{Type: typBoolSlice},
		{Type: typBytes32Slice},
		{Type: typBytesSlice},
		{Type: typAddressSliceSlice},
		{Type: typUint256Slice},
	}
	getGameInfoArgs = abi.Arguments{
		{Type: typBytes32},
	}
	gameInfoReturn = abi.Arguments{
		{Type: typString},  // questionId
		{Type: typUint256}, // questionNumber
		{Type: typString},  // question
		{Type: typString},  // category
		{Type: typBytes32}, // commitment
		{Type: typBool},    // revealed
		{Type: typBool},    // outcome
	}
	statisticsReturn = abi.Arguments{
		{Type: typUint256}, // committed
		{Type: typUint256}, // revealed
		{Type: typUint256}, // pending
	}
	versionReturn = abi.Arguments{
		{Type: typString},
	}
	committedEventData = abi.Arguments{
		{Type: typString}, // questionId (non-indexed)
	}

	gameCommittedTopic = crypto.Keccak256Hash([]byte(sigGameCommittedEvent))
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

// CommitParams are the arguments of a single commitGame call.
type CommitParams struct {
	QuestionID     string
	QuestionNumber uint64
	Question       string
	Category       string
	Commitment     ethcommon.Hash
}

// RevealParams are the arguments of a single revealGame call.
type RevealParams struct {
	SessionID   ethcommon.Hash
	Outcome     bool
	Salt        [32]byte
	Proof       []byte
	Winners     []ethcommon.Address
	TotalPayout *big.Int
}

// Statistics mirrors the contract's getStatistics() return.
type Statistics struct {
	Committed uint64 `json:"committed"`
	Revealed  uint64 `json:"revealed"`
	Pending   uint64 `json:"pending"`
}

// GameInfo mirrors the contract's getGameInfo() return.
type GameInfo struct {
	QuestionID     string         `json:"questionId"`
	QuestionNumber uint64         `json:"questionNumber"`
	Question       string         `json:"question"`
	Category       string         `json:"category"`
	Commitment     ethcommon.Hash `json:"commitment"`
	Revealed       bool           `json:"revealed"`
	Outcome        bool           `json:"outcome"`
}

// PackCommitGame encodes a commitGame call.
func PackCommitGame(p CommitParams) ([]byte, error) {
	encoded, err := commitGameArgs.Pack(
		p.QuestionID,
		new(big.Int).SetUint64(p.QuestionNumber),
		p.Question,
		[32]byte(p.Commitment),
		p.Category,
	)
	if err != nil {
		return nil, oerrors.NewInternalError("failed to pack commitGame arguments", err)
	}
	return append(selector(sigCommitGame), encoded...), nil
}

// PackRevealGame encodes a revealGame call.
func PackRevealGame(p RevealParams) ([]byte, error) {
	payout := p.TotalPayout
	if payout == nil {
		payout = big.NewInt(0)
	}
	winners := p.Winners
	if winners == nil {
		winners = []ethcommon.Address{}
	}
	proof := p.Proof
	if proof == nil {
		proof = []byte{}
	}

	encoded, err := revealGameArgs.Pack(
		[32]byte(p.SessionID),
		p.Outcome,
		p.Salt,
		proof,
		winners,
		payout,
	)
	if err != nil {
		return nil, oerrors.NewInternalError("failed to pack revealGame arguments", err)
	}
	return append(selector(sigRevealGame), encoded...), nil
}

// PackBatchCommitGames encodes one batchCommitGames call carrying parallel
// arrays in the order of the given items. Positional correspondence between
// these arrays and the emitted events is a contract invariant; callers must
// not reorder items between packing and result parsing.
func PackBatchCommitGames(items []CommitParams) ([]byte, error) {
	questionIDs := make([]string, len(items))
	questionNumbers := make([]*big.Int, len(items))
	questions := make([]string, len(items))
	commitments := make([][32]byte, len(items))
	categories := make([]string, len(items))

	for i, item := range items {
		questionIDs[i] = item.QuestionID
		questionNumbers[i] = new(big.Int).SetUint64(item.QuestionNumber)
		questions[i] = item.Question
		commitments[i] = [32]byte(item.Commitment)
		categories[i] = item.Category
	}

	encoded, err := batchCommitGamesArgs.Pack(questionIDs, questionNumbers, questions, commitments, categories)
	if err != nil {
		return nil, oerrors.NewInternalError("failed to pack batchCommitGames arguments", err)
	}
	return append(selector(sigBatchCommitGames), encoded...), nil
}

// PackBatchRevealGames encodes one batchRevealGames call carrying parallel
// arrays in the order of the given items.
func PackBatchRevealGames(items []RevealParams) ([]byte, error) {
	sessionIDs := make([][32]byte, len(items))
	outcomes := make([]bool, len(items))
	salts := make([][32]byte, len(items))
	proofs := make([][]byte, len(items))
	winners := make([][]ethcommon.Address, len(items))
	payouts := make([]*big.Int, len(items))

	for i, item := range items {
		sessionIDs[i] = [32]byte(item.SessionID)
		outcomes[i] = item.Outcome
		salts[i] = item.Salt
		if item.Proof != nil {
			proofs[i] = item.Proof
		} else {
			proofs[i] = []byte{}
		}
		if item.Winners != nil {
			winners[i] = item.Winners
		} else {
			winners[i] = []ethcommon.Address{}
		}
		if item.TotalPayout != nil {
			payouts[i] = item.TotalPayout
		} else {
			payouts[i] = big.NewInt(0)
		}
	}

	encoded, err := batchRevealGamesArgs.Pack(sessionIDs, outcomes, salts, proofs, winners, payouts)
	if err != nil {
		return nil, oerrors.NewInternalError("failed to pack batchRevealGames arguments", err)
	}
	return append(selector(sigBatchRevealGames), encoded...), nil
}

// PackGetGameInfo encodes a getGameInfo read call.
func PackGetGameInfo(sessionID ethcommon.Hash) ([]byte, error) {
	encoded, err := getGameInfoArgs.Pack([32]byte(sessionID))
	if err != nil {
		return nil, oerrors.NewInternalError("failed to pack getGameInfo arguments", err)
	}
	return append(selector(sigGetGameInfo), encoded...), nil
}

// PackGetStatistics encodes a getStatistics read call.
func PackGetStatistics() []byte {
	return selector(sigGetStatistics)
}

// PackVersion encodes a version liveness read call.
func PackVersion() []byte {
	return selector(sigVersion)
}

// UnpackStatistics decodes a getStatistics return value.
func UnpackStatistics(data []byte) (*Statistics, error) {
	out, err := statisticsReturn.Unpack(data)
	if err != nil {
		return nil, oerrors.NewInternalError("failed to unpack getStatistics return", err)
	}
	return &Statistics{
		Committed: out[0].(*big.Int).Uint64(),
		Revealed:  out[1].(*big.Int).Uint64(),
		Pending:   out[2].(*big.Int).Uint64(),
	}, nil
}

// UnpackGameInfo decodes a getGameInfo return value.
func UnpackGameInfo(data []byte) (*GameInfo, error) {
	out, err := gameInfoReturn.Unpack(data)
	if err != nil {
		return nil, oerrors.NewInternalError("failed to unpack getGameInfo return", err)
	}
	return &GameInfo{
		QuestionID:     out[0].(string),
		QuestionNumber: out[1].(*big.Int).Uint64(),
		Question:       out[2].(string),
		Category:       out[3].(string),
		Commitment:     ethcommon.Hash(out[4].([32]byte)),
		Revealed:       out[5].(bool),
		Outcome:        out[6].(bool),
	}, nil
}

// UnpackVersion decodes a version() return value.
func UnpackVersion(data []byte) (string, error) {
	out, err := versionReturn.Unpack(data)
	if err != nil {
		return "", oerrors.NewInternalError("failed to unpack version return", err)
	}
	return out[0].(string), nil
}

// EncodeStatistics ABI-encodes a getStatistics return value. Exported for
// test doubles that answer read calls.
func EncodeStatistics(s *Statistics) ([]byte, error) {
	return statisticsReturn.Pack(
		new(big.Int).SetUint64(s.Committed),
		new(big.Int).SetUint64(s.Revealed),
		new(big.Int).SetUint64(s.Pending),
	)
}

// EncodeGameInfo ABI-encodes a getGameInfo return value.
func EncodeGameInfo(g *GameInfo) ([]byte, error) {
	return gameInfoReturn.Pack(
		g.QuestionID,
		new(big.Int).SetUint64(g.QuestionNumber),
		g.Question,
		g.Category,
		[32]byte(g.Commitment),
		g.Revealed,
		g.Outcome,
	)
}

// EncodeVersion ABI-encodes a version() return value.
func EncodeVersion(v string) ([]byte, error) {
	return versionReturn.Pack(v)
}

// CallKind names the contract function a piece of calldata targets, or
// returns an empty string for an unknown selector.
func CallKind(calldata []byte) string {
	if len(calldata) < 4 {
		return ""
	}
	for _, sig := range []string{
		sigCommitGame,
		sigRevealGame,
		sigBatchCommitGames,
		sigBatchRevealGames,
		sigGetGameInfo,
		sigGetStatistics,
		sigVersion,
	} {
		if bytes.Equal(calldata[:4], selector(sig)) {
			return sig[:bytes.IndexByte([]byte(sig), '(')]
		}
	}
	return ""
}

// GameCommittedTopic returns the topic hash of the GameCommitted event.
func GameCommittedTopic() ethcommon.Hash {
	return gameCommittedTopic
}

// EncodeGameCommittedData ABI-encodes the non-indexed data of a GameCommitted
// event. Exported for test fixtures that fabricate receipts.
func EncodeGameCommittedData(questionID string) ([]byte, error) {
	return committedEventData.Pack(questionID)
}

// ParseCommittedSessionIDs extracts contract-assigned session ids from the
// GameCommitted events in a receipt's logs, in log order. Unrelated events in
// the same transaction are skipped rather than treated as errors.
func ParseCommittedSessionIDs(logs []*types.Log, contractAddr ethcommon.Address) []ethcommon.Hash {
	var sessions []ethcommon.Hash
	for _, log := range logs {
		if log == nil || log.Address != contractAddr {
			continue
		}
		if len(log.Topics) < 2 || log.Topics[0] != gameCommittedTopic {
			continue
		}
		sessions = append(sessions, log.Topics[1])
	}
	return sessions
}

// UnpackCommitGameInput decodes commitGame calldata. Used for transaction
// verification and by test doubles simulating the contract.
func UnpackCommitGameInput(calldata []byte) (*CommitParams, error) {
	args, err := unpackInput(calldata, sigCommitGame, commitGameArgs)
	if err != nil {
		return nil, err
	}
	return &CommitParams{
		QuestionID:     args[0].(string),
		QuestionNumber: args[1].(*big.Int).Uint64(),
		Question:       args[2].(string),
		Commitment:     ethcommon.Hash(args[3].([32]byte)),
		Category:       args[4].(string),
	}, nil
}

// UnpackRevealGameInput decodes revealGame calldata.
func UnpackRevealGameInput(calldata []byte) (*RevealParams, error) {
	args, err := unpackInput(calldata, sigRevealGame, revealGameArgs)
	if err != nil {
		return nil, err
	}
	return &RevealParams{
		SessionID:   ethcommon.Hash(args[0].([32]byte)),
		Outcome:     args[1].(bool),
		Salt:        args[2].([32]byte),
		Proof:       args[3].([]byte),
		Winners:     args[4].([]ethcommon.Address),
		TotalPayout: args[5].(*big.Int),
	}, nil
}

// UnpackBatchCommitGamesInput decodes batchCommitGames calldata back into
// per-item params, preserving input order.
func UnpackBatchCommitGamesInput(calldata []byte) ([]CommitParams, error) {
	args, err := unpackInput(calldata, sigBatchCommitGames, batchCommitGamesArgs)
	if err != nil {
		return nil, err
	}

	questionIDs := args[0].([]string)
	questionNumbers := args[1].([]*big.Int)
	questions := args[2].([]string)
	commitments := args[3].([][32]byte)
	categories := args[4].([]string)

	items := make([]CommitParams, len(questionIDs))
	for i := range questionIDs {
		items[i] = CommitParams{
			QuestionID:     questionIDs[i],
			QuestionNumber: questionNumbers[i].Uint64(),
			Question:       questions[i],
			Commitment:     ethcommon.Hash(commitments[i]),
			Category:       categories[i],
		}
	}
	return items, nil
}

// UnpackBatchRevealGamesInput decodes batchRevealGames calldata back into
// per-item params, preserving input order.
func UnpackBatchRevealGamesInput(calldata []byte) ([]RevealParams, error) {
	args, err := unpackInput(calldata, sigBatchRevealGames, batchRevealGamesArgs)
	if err != nil {
		return nil, err
	}

	sessionIDs := args[0].([][32]byte)
	outcomes := args[1].([]bool)
	salts := args[2].([][32]byte)
	proofs := args[3].([][]byte)
	winners := args[4].([][]ethcommon.Address)
	payouts := args[5].([]*big.Int)

	items := make([]RevealParams, len(sessionIDs))
	for i := range sessionIDs {
		items[i] = RevealParams{
			SessionID:   ethcommon.Hash(sessionIDs[i]),
			Outcome:     outcomes[i],
			Salt:        salts[i],
			Proof:       proofs[i],
			Winners:     winners[i],
			TotalPayout: payouts[i],
		}
	}
	return items, nil
}

func unpackInput(calldata []byte, signature string, args abi.Arguments) ([]interface{}, error) {
	sel := selector(signature)
	if len(calldata) < len(sel) || !bytes.Equal(calldata[:len(sel)], sel) {
		return nil, oerrors.NewValidationError(fmt.Sprintf("calldata is not a %s call", signature))
	}
	out, err := args.Unpack(calldata[len(sel):])
	if err != nil {
		return nil, oerrors.NewInternalError(fmt.Sprintf("failed to unpack %s calldata", signature), err)
	}
	return out, nil
}
