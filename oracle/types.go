package oracle

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// GameInput is what the game engine hands the oracle when an outcome has been
// decided and must be committed.
type GameInput struct {
	QuestionID     string
	QuestionNumber uint64
	Question       string
	Category       string
	Outcome        bool
}

// RevealInput triggers the reveal phase for a previously committed question.
type RevealInput struct {
	QuestionID  string
	Outcome     bool
	Winners     []ethcommon.Address
	TotalPayout *big.Int
}

// CommitResult describes a confirmed commit transaction.
type CommitResult struct {
	QuestionID  string `json:"questionId"`
	SessionID   string `json:"sessionId"`
	Commitment  string `json:"commitment"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
}

// RevealResult describes a confirmed reveal transaction.
type RevealResult struct {
	QuestionID  string `json:"questionId"`
	SessionID   string `json:"sessionId"`
	Outcome     bool   `json:"outcome"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
}

// BatchItemError attributes a failure to one item of a batch.
type BatchItemError struct {
	QuestionID string `json:"questionId"`
	Error      string `json:"error"`
}

// BatchCommitResult partitions a batch commit into per-item outcomes.
// GasUsed on each successful item is a pro-rated share of the batch
// transaction's total (an estimate, not a per-item measurement).
type BatchCommitResult struct {
	Successful []CommitResult   `json:"successful"`
	Failed     []BatchItemError `json:"failed"`
}

// BatchRevealResult partitions a batch reveal into per-item outcomes.
type BatchRevealResult struct {
	Successful []RevealResult   `json:"successful"`
	Failed     []BatchItemError `json:"failed"`
}

// HealthStatus is a cheap, structured health probe result. It never carries
// an error value: monitoring polls this and branches on Healthy.
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}
