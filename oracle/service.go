// Package oracle implements the commit-reveal publishing flow against the
// on-chain oracle contract. A Service commits outcome hashes, keeps the salts
// in the local encrypted store until settlement, and reveals them once the
// game resolves.
package oracle

import (
	"context"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/lalalune/babylon-oracle/chain"
	"github.com/lalalune/babylon-oracle/commitment"
	"github.com/lalalune/babylon-oracle/commitstore"
	oerrors "github.com/lalalune/babylon-oracle/errors"
	"github.com/lalalune/babylon-oracle/secrets"
	"github.com/lalalune/babylon-oracle/store"
)

// Fixed gas limits per call shape. Writes are priced generously so a slightly
// heavier contract path does not fail with out-of-gas; the unused remainder is
// refunded. Batch limits scale with item count.
const (
	commitGasLimit        = 500_000
	revealGasLimit        = 800_000
	batchCommitGasPerItem = 300_000
	batchRevealGasPerItem = 500_000
)

// Submitter is the chain surface the service depends on. *chain.Client
// implements it; tests substitute a simulated contract.
type Submitter interface {
	Submit(ctx context.Context, calldata []byte, gasLimit uint64) (ethcommon.Hash, error)
	WaitForReceipt(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error)
	Call(ctx context.Context, calldata []byte) ([]byte, error)
	ContractCode(ctx context.Context) ([]byte, error)
	SignerBalance(ctx context.Context) (*big.Int, error)
	OracleAddress() ethcommon.Address
}

var _ Submitter = (*chain.Client)(nil)

// Service drives commits and reveals. All dependencies are injected; the
// service holds no global state.
type Service struct {
	store   *commitstore.Store
	chain   Submitter
	auditDB *gorm.DB
	logger  zerolog.Logger

	// seam for deterministic salts in tests
	generateSalt func() (string, error)
}

// NewService creates an oracle service from its dependencies. auditDB receives
// one OracleTransaction row per submission attempt; pass the same handle the
// commitment store uses.
func NewService(cs *commitstore.Store, submitter Submitter, auditDB *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		store:        cs,
		chain:        submitter,
		auditDB:      auditDB,
		logger:       logger.With().Str("component", "oracle_service").Logger(),
		generateSalt: secrets.GenerateSalt,
	}
}

// CommitGame publishes the commitment for a decided game. The salt is
// persisted (encrypted) before the transaction is broadcast so a crash between
// broadcast and confirmation never strands an unrevealable commitment on
// chain. After confirmation the record is updated with the contract-assigned
// session id parsed from the GameCommitted event.
func (s *Service) CommitGame(ctx context.Context, in GameInput) (*CommitResult, error) {
	if in.QuestionID == "" {
		return nil, oerrors.NewValidationError("question id is required")
	}

	salt, err := s.generateSalt()
	if err != nil {
		return nil, err
	}
	hash, err := commitment.Compute(in.Outcome, salt)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Store(commitstore.Commitment{
		QuestionID: in.QuestionID,
		Salt:       salt,
		Commitment: hash.Hex(),
	}); err != nil {
		return nil, err
	}

	calldata, err := chain.PackCommitGame(chain.CommitParams{
		QuestionID:     in.QuestionID,
		QuestionNumber: in.QuestionNumber,
		Question:       in.Question,
		Category:       in.Category,
		Commitment:     hash,
	})
	if err != nil {
		return nil, err
	}

	audit := s.beginAudit(in.QuestionID, store.TxTypeCommit)

	txHash, err := s.chain.Submit(ctx, calldata, commitGasLimit)
	if err != nil {
		s.failAudit(audit, txHash, err)
		return nil, err
	}

	receipt, err := s.chain.WaitForReceipt(ctx, txHash)
	if err != nil {
		s.failAudit(audit, txHash, err)
		return nil, err
	}

	sessionID := s.sessionFromReceipt(receipt, in.QuestionID)

	// confirmed on chain from here on; the audit row must say so even if the
	// local re-persist below fails
	s.confirmAudit(audit, txHash, receipt)

	if _, err := s.store.Store(commitstore.Commitment{
		QuestionID: in.QuestionID,
		SessionID:  sessionID,
		Salt:       salt,
		Commitment: hash.Hex(),
	}); err != nil {
		s.logger.Error().Err(err).
			Str("question_id", in.QuestionID).
			Str("session_id", sessionID).
			Msg("commit confirmed but session id not persisted")
		return nil, err
	}

	s.logger.Info().
		Str("question_id", in.QuestionID).
		Str("session_id", sessionID).
		Str("tx_hash", txHash.Hex()).
		Uint64("gas_used", receipt.GasUsed).
		Msg("game committed")

	return &CommitResult{
		QuestionID:  in.QuestionID,
		SessionID:   sessionID,
		Commitment:  hash.Hex(),
		TxHash:      txHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

// RevealGame opens the commitment for a settled game. The local record is
// deleted only after the reveal transaction confirms; if the chain rejects the
// reveal the record stays so the salt can be inspected or retried.
func (s *Service) RevealGame(ctx context.Context, in RevealInput) (*RevealResult, error) {
	stored, err := s.store.Retrieve(in.QuestionID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, oerrors.NewNotFoundError(in.QuestionID)
	}

	salt, err := commitment.ParseSalt(stored.Salt)
	if err != nil {
		return nil, err
	}

	calldata, err := chain.PackRevealGame(chain.RevealParams{
		SessionID:   ethcommon.HexToHash(stored.SessionID),
		Outcome:     in.Outcome,
		Salt:        salt,
		Winners:     in.Winners,
		TotalPayout: in.TotalPayout,
	})
	if err != nil {
		return nil, err
	}

	audit := s.beginAudit(in.QuestionID, store.TxTypeReveal)

	txHash, err := s.chain.Submit(ctx, calldata, revealGasLimit)
	if err != nil {
		s.failAudit(audit, txHash, err)
		return nil, err
	}

	receipt, err := s.chain.WaitForReceipt(ctx, txHash)
	if err != nil {
		s.failAudit(audit, txHash, err)
		return nil, err
	}

	if err := s.store.Delete(in.QuestionID); err != nil {
		// The reveal is final on chain; a failed local delete is logged and
		// left for the next reveal attempt or a manual sweep.
		s.logger.Error().Err(err).
			Str("question_id", in.QuestionID).
			Msg("reveal confirmed but local record not deleted")
	}

	s.confirmAudit(audit, txHash, receipt)

	s.logger.Info().
		Str("question_id", in.QuestionID).
		Str("session_id", stored.SessionID).
		Bool("outcome", in.Outcome).
		Str("tx_hash", txHash.Hex()).
		Msg("game revealed")

	return &RevealResult{
		QuestionID:  in.QuestionID,
		SessionID:   stored.SessionID,
		Outcome:     in.Outcome,
		TxHash:      txHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

// sessionFromReceipt pulls the first session id out of the receipt's
// GameCommitted events. A missing event leaves the session empty; the reveal
// path then needs the id recovered out of band, so this is loud.
func (s *Service) sessionFromReceipt(receipt *types.Receipt, questionID string) string {
	sessions := chain.ParseCommittedSessionIDs(receipt.Logs, s.chain.OracleAddress())
	if len(sessions) == 0 {
		s.logger.Warn().
			Str("question_id", questionID).
			Str("tx_hash", receipt.TxHash.Hex()).
			Msg("commit confirmed but no GameCommitted event found")
		return ""
	}
	return sessions[0].Hex()
}

// Audit rows are observability, not control flow: a failed write is logged
// and the calling operation proceeds.

func (s *Service) beginAudit(questionID, txType string) *store.OracleTransaction {
	var prior int64
	if questionID != "" {
		s.auditDB.Model(&store.OracleTransaction{}).
			Where("question_id = ? AND tx_type = ?", questionID, txType).
			Count(&prior)
	}
	rec := &store.OracleTransaction{
		RecordID:   uuid.New().String(),
		QuestionID: questionID,
		TxType:     txType,
		Status:     store.TxStatusPending,
		RetryCount: int(prior),
	}
	if err := s.auditDB.Create(rec).Error; err != nil {
		s.logger.Error().Err(err).
			Str("question_id", questionID).
			Str("tx_type", txType).
			Msg("failed to record transaction attempt")
	}
	return rec
}

func (s *Service) confirmAudit(rec *store.OracleTransaction, txHash ethcommon.Hash, receipt *types.Receipt) {
	now := time.Now()
	rec.TxHash = txHash.Hex()
	rec.Status = store.TxStatusConfirmed
	rec.BlockNumber = receipt.BlockNumber.Uint64()
	rec.GasUsed = receipt.GasUsed
	if receipt.EffectiveGasPrice != nil {
		rec.GasPrice = receipt.EffectiveGasPrice.String()
	}
	rec.ConfirmedAt = &now
	if err := s.auditDB.Save(rec).Error; err != nil {
		s.logger.Error().Err(err).
			Str("record_id", rec.RecordID).
			Msg("failed to update transaction record")
	}
}

func (s *Service) failAudit(rec *store.OracleTransaction, txHash ethcommon.Hash, cause error) {
	if txHash != (ethcommon.Hash{}) {
		rec.TxHash = txHash.Hex()
	}
	rec.Status = store.TxStatusFailed
	rec.Error = cause.Error()
	if err := s.auditDB.Save(rec).Error; err != nil {
		s.logger.Error().Err(err).
			Str("record_id", rec.RecordID).
			Msg("failed to update transaction record")
	}
}
