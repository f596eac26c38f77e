package oracle

import (
	"context"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/lalalune/babylon-oracle/chain"
	"github.com/lalalune/babylon-oracle/commitstore"
)

// GetGameInfo reads the contract's view of a committed game by session id.
func (s *Service) GetGameInfo(ctx context.Context, sessionID ethcommon.Hash) (*chain.GameInfo, error) {
	calldata, err := chain.PackGetGameInfo(sessionID)
	if err != nil {
		return nil, err
	}
	ret, err := s.chain.Call(ctx, calldata)
	if err != nil {
		return nil, err
	}
	return chain.UnpackGameInfo(ret)
}

// GetStatistics reads the contract's aggregate commit/reveal counters.
func (s *Service) GetStatistics(ctx context.Context) (*chain.Statistics, error) {
	ret, err := s.chain.Call(ctx, chain.PackGetStatistics())
	if err != nil {
		return nil, err
	}
	return chain.UnpackStatistics(ret)
}

// ListPendingCommitments returns every locally stored commitment, oldest
// first. After a crash these are the questions that were committed but never
// revealed.
func (s *Service) ListPendingCommitments() ([]commitstore.Commitment, error) {
	return s.store.ListPending()
}

// HealthCheck probes the three preconditions for publishing: contract code at
// the configured address, a funded signer, and a responsive read path. It
// reports rather than errors so monitoring can poll it unconditionally.
func (s *Service) HealthCheck(ctx context.Context) HealthStatus {
	code, err := s.chain.ContractCode(ctx)
	if err != nil {
		return HealthStatus{Error: "failed to read contract code: " + err.Error()}
	}
	if len(code) == 0 {
		return HealthStatus{Error: "no contract code at oracle address " + s.chain.OracleAddress().Hex()}
	}

	balance, err := s.chain.SignerBalance(ctx)
	if err != nil {
		return HealthStatus{Error: "failed to read signer balance: " + err.Error()}
	}
	if balance.Sign() == 0 {
		return HealthStatus{Error: "signer wallet has zero balance"}
	}

	ret, err := s.chain.Call(ctx, chain.PackVersion())
	if err != nil {
		return HealthStatus{Error: "contract version call failed: " + err.Error()}
	}
	if _, err := chain.UnpackVersion(ret); err != nil {
		return HealthStatus{Error: "contract version call returned malformed data: " + err.Error()}
	}

	return HealthStatus{Healthy: true}
}
