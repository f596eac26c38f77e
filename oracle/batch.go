package oracle

import (
	"context"

	ethcommon "github.com/ethereum/go-ethereum/common"

	oerrors "github.com/lalalune/babylon-oracle/errors"

	"github.com/lalalune/babylon-oracle/chain"
	"github.com/lalalune/babylon-oracle/commitment"
	"github.com/lalalune/babylon-oracle/commitstore"
	"github.com/lalalune/babylon-oracle/store"
)

type preparedCommit struct {
	input GameInput
	salt  string
	param chain.CommitParams
}

// BatchCommitGames commits many games in one transaction. Preparation
// failures (salt generation, local persistence) knock out only the failed
// item; the transaction carries the survivors. A chain-level failure applies
// to every item that made it into the transaction, since none of them landed.
// Per-item errors land in the result rather than the error return.
func (s *Service) BatchCommitGames(ctx context.Context, games []GameInput) (*BatchCommitResult, error) {
	result := &BatchCommitResult{
		Successful: []CommitResult{},
		Failed:     []BatchItemError{},
	}

	prepared := make([]preparedCommit, 0, len(games))
	for _, game := range games {
		if game.QuestionID == "" {
			result.Failed = append(result.Failed, BatchItemError{Error: "question id is required"})
			continue
		}

		salt, err := s.generateSalt()
		if err != nil {
			result.Failed = append(result.Failed, BatchItemError{QuestionID: game.QuestionID, Error: err.Error()})
			continue
		}
		hash, err := commitment.Compute(game.Outcome, salt)
		if err != nil {
			result.Failed = append(result.Failed, BatchItemError{QuestionID: game.QuestionID, Error: err.Error()})
			continue
		}
		if _, err := s.store.Store(commitstore.Commitment{
			QuestionID: game.QuestionID,
			Salt:       salt,
			Commitment: hash.Hex(),
		}); err != nil {
			result.Failed = append(result.Failed, BatchItemError{QuestionID: game.QuestionID, Error: err.Error()})
			continue
		}

		prepared = append(prepared, preparedCommit{
			input: game,
			salt:  salt,
			param: chain.CommitParams{
				QuestionID:     game.QuestionID,
				QuestionNumber: game.QuestionNumber,
				Question:       game.Question,
				Category:       game.Category,
				Commitment:     hash,
			},
		})
	}

	if len(prepared) == 0 {
		return result, nil
	}

	params := make([]chain.CommitParams, len(prepared))
	for i, p := range prepared {
		params[i] = p.param
	}
	calldata, err := chain.PackBatchCommitGames(params)
	if err != nil {
		s.failAll(result, prepared, err)
		return result, nil
	}

	audit := s.beginAudit("", store.TxTypeCommit)
	gasLimit := uint64(batchCommitGasPerItem * len(prepared))

	txHash, err := s.chain.Submit(ctx, calldata, gasLimit)
	if err != nil {
		s.failAudit(audit, txHash, err)
		s.failAll(result, prepared, err)
		return result, nil
	}

	receipt, err := s.chain.WaitForReceipt(ctx, txHash)
	if err != nil {
		s.failAudit(audit, txHash, err)
		s.failAll(result, prepared, err)
		return result, nil
	}

	sessions := chain.ParseCommittedSessionIDs(receipt.Logs, s.chain.OracleAddress())
	if len(sessions) != len(prepared) {
		s.logger.Warn().
			Int("expected", len(prepared)).
			Int("found", len(sessions)).
			Str("tx_hash", txHash.Hex()).
			Msg("batch commit event count mismatch")
	}

	s.confirmAudit(audit, txHash, receipt)

	gasPerItem := receipt.GasUsed / uint64(len(prepared))

	// Events and items correspond positionally; session i belongs to item i.
	for i, p := range prepared {
		sessionID := ""
		if i < len(sessions) {
			sessionID = sessions[i].Hex()
		}
		if _, err := s.store.Store(commitstore.Commitment{
			QuestionID: p.input.QuestionID,
			SessionID:  sessionID,
			Salt:       p.salt,
			Commitment: p.param.Commitment.Hex(),
		}); err != nil {
			s.logger.Error().Err(err).
				Str("question_id", p.input.QuestionID).
				Msg("failed to persist session id after batch commit")
		}
		result.Successful = append(result.Successful, CommitResult{
			QuestionID:  p.input.QuestionID,
			SessionID:   sessionID,
			Commitment:  p.param.Commitment.Hex(),
			TxHash:      txHash.Hex(),
			BlockNumber: receipt.BlockNumber.Uint64(),
			GasUsed:     gasPerItem,
		})
	}

	s.logger.Info().
		Int("committed", len(result.Successful)).
		Int("failed", len(result.Failed)).
		Str("tx_hash", txHash.Hex()).
		Msg("batch commit confirmed")

	return result, nil
}

type preparedReveal struct {
	input  RevealInput
	stored *commitstore.Commitment
	param  chain.RevealParams
}

// BatchRevealGames reveals many games in one transaction, with the same
// failure semantics as BatchCommitGames. Items without a stored commitment
// fail individually; local records of revealed items are deleted only after
// the transaction confirms.
func (s *Service) BatchRevealGames(ctx context.Context, reveals []RevealInput) (*BatchRevealResult, error) {
	result := &BatchRevealResult{
		Successful: []RevealResult{},
		Failed:     []BatchItemError{},
	}

	prepared := make([]preparedReveal, 0, len(reveals))
	for _, in := range reveals {
		stored, err := s.store.Retrieve(in.QuestionID)
		if err != nil {
			result.Failed = append(result.Failed, BatchItemError{QuestionID: in.QuestionID, Error: err.Error()})
			continue
		}
		if stored == nil {
			result.Failed = append(result.Failed, BatchItemError{
				QuestionID: in.QuestionID,
				Error:      oerrors.NewNotFoundError(in.QuestionID).Error(),
			})
			continue
		}
		salt, err := commitment.ParseSalt(stored.Salt)
		if err != nil {
			result.Failed = append(result.Failed, BatchItemError{QuestionID: in.QuestionID, Error: err.Error()})
			continue
		}

		prepared = append(prepared, preparedReveal{
			input:  in,
			stored: stored,
			param: chain.RevealParams{
				SessionID:   ethcommon.HexToHash(stored.SessionID),
				Outcome:     in.Outcome,
				Salt:        salt,
				Winners:     in.Winners,
				TotalPayout: in.TotalPayout,
			},
		})
	}

	if len(prepared) == 0 {
		return result, nil
	}

	params := make([]chain.RevealParams, len(prepared))
	for i, p := range prepared {
		params[i] = p.param
	}
	calldata, err := chain.PackBatchRevealGames(params)
	if err != nil {
		s.failAllReveals(result, prepared, err)
		return result, nil
	}

	audit := s.beginAudit("", store.TxTypeReveal)
	gasLimit := uint64(batchRevealGasPerItem * len(prepared))

	txHash, err := s.chain.Submit(ctx, calldata, gasLimit)
	if err != nil {
		s.failAudit(audit, txHash, err)
		s.failAllReveals(result, prepared, err)
		return result, nil
	}

	receipt, err := s.chain.WaitForReceipt(ctx, txHash)
	if err != nil {
		s.failAudit(audit, txHash, err)
		s.failAllReveals(result, prepared, err)
		return result, nil
	}

	s.confirmAudit(audit, txHash, receipt)

	gasPerItem := receipt.GasUsed / uint64(len(prepared))

	for _, p := range prepared {
		if err := s.store.Delete(p.input.QuestionID); err != nil {
			s.logger.Error().Err(err).
				Str("question_id", p.input.QuestionID).
				Msg("reveal confirmed but local record not deleted")
		}
		result.Successful = append(result.Successful, RevealResult{
			QuestionID:  p.input.QuestionID,
			SessionID:   p.stored.SessionID,
			Outcome:     p.input.Outcome,
			TxHash:      txHash.Hex(),
			BlockNumber: receipt.BlockNumber.Uint64(),
			GasUsed:     gasPerItem,
		})
	}

	s.logger.Info().
		Int("revealed", len(result.Successful)).
		Int("failed", len(result.Failed)).
		Str("tx_hash", txHash.Hex()).
		Msg("batch reveal confirmed")

	return result, nil
}

func (s *Service) failAll(result *BatchCommitResult, prepared []preparedCommit, cause error) {
	for _, p := range prepared {
		result.Failed = append(result.Failed, BatchItemError{
			QuestionID: p.input.QuestionID,
			Error:      cause.Error(),
		})
	}
}

func (s *Service) failAllReveals(result *BatchRevealResult, prepared []preparedReveal, cause error) {
	for _, p := range prepared {
		result.Failed = append(result.Failed, BatchItemError{
			QuestionID: p.input.QuestionID,
			Error:      cause.Error(),
		})
	}
}
