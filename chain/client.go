// Package chain is the narrow chain client consumed by the oracle service:
// a JSON-RPC failover pool, one signing key, transaction submission with
// gas handling, bounded confirmation waits, and read-only contract calls.
package chain

import (
	"context"
	"crypto/ecdsa"
	stderrors "errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/lalalune/babylon-oracle/config"
	oerrors "github.com/lalalune/babylon-oracle/errors"
)

// receiptPollInterval is how often the confirmation wait re-checks the chain.
const receiptPollInterval = 2 * time.Second

// Client wraps a pool of ethclient connections with a signing wallet.
type Client struct {
	clients []*ethclient.Client
	index   uint64
	mu      sync.RWMutex

	// sendMu serializes nonce assignment and broadcast. The signing wallet's
	// nonce is the one genuinely shared mutating resource in this subsystem.
	sendMu sync.Mutex

	key        *ecdsa.PrivateKey
	signerAddr ethcommon.Address
	oracleAddr ethcommon.Address
	chainID    int64

	gasMultiplier       float64
	maxGasPrice         *big.Int
	confirmations       uint64
	confirmationTimeout time.Duration

	logger zerolog.Logger
}

// NewClient dials the configured RPC endpoints and validates their chain ids.
// Endpoints that fail to connect or report the wrong chain are skipped; at
// least one usable endpoint is required.
func NewClient(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	log := logger.With().Str("component", "chain_client").Logger()

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SignerKey, "0x"))
	if err != nil {
		return nil, oerrors.NewConfigError(fmt.Sprintf("invalid signer key: %v", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clients := make([]*ethclient.Client, 0, len(cfg.RPCURLs))
	for _, url := range cfg.RPCURLs {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("failed to connect to RPC endpoint, skipping")
			continue
		}

		clientChainID, err := client.ChainID(ctx)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("failed to verify chain ID, proceeding with client anyway")
			clients = append(clients, client)
			continue
		}
		if clientChainID.Int64() != cfg.ChainID {
			client.Close()
			log.Warn().
				Str("url", url).
				Int64("expected_chain_id", cfg.ChainID).
				Int64("actual_chain_id", clientChainID.Int64()).
				Msg("chain ID mismatch, closing client")
			continue
		}

		clients = append(clients, client)
		log.Info().Str("url", url).Msg("connected to RPC endpoint")
	}

	if len(clients) == 0 {
		return nil, oerrors.NewRPCError("failed to connect to any valid RPC endpoints", nil)
	}

	return &Client{
		clients:             clients,
		key:                 key,
		signerAddr:          crypto.PubkeyToAddress(key.PublicKey),
		oracleAddr:          cfg.ContractAddress(),
		chainID:             cfg.ChainID,
		gasMultiplier:       cfg.GasMultiplier,
		maxGasPrice:         cfg.MaxGasPrice,
		confirmations:       cfg.Confirmations,
		confirmationTimeout: cfg.ConfirmationTimeout,
		logger:              log,
	}, nil
}

// executeWithFailover executes a function with round-robin failover
func (c *Client) executeWithFailover(ctx context.Context, operation string, fn func(*ethclient.Client) error) error {
	c.mu.RLock()
	clients := c.clients
	c.mu.RUnlock()

	if len(clients) == 0 {
		return oerrors.NewRPCError(fmt.Sprintf("no RPC clients available for %s", operation), nil)
	}

	var lastErr error
	maxAttempts := len(clients)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		index := atomic.AddUint64(&c.index, 1) - 1
		client := clients[index%uint64(len(clients))]

		err := fn(client)
		if err == nil {
			return nil
		}
		lastErr = err

		c.logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt+1).
			Err(err).
			Msg("operation failed, trying next endpoint")
	}

	return oerrors.NewRPCError(
		fmt.Sprintf("operation %s failed after trying %d endpoints", operation, maxAttempts), lastErr)
}

// SignerAddress returns the address of the signing wallet.
func (c *Client) SignerAddress() ethcommon.Address {
	return c.signerAddr
}

// OracleAddress returns the oracle contract address.
func (c *Client) OracleAddress() ethcommon.Address {
	return c.oracleAddr
}

// gasPrice returns the suggested gas price scaled by the configured
// multiplier and capped at the configured maximum.
func (c *Client) gasPrice(ctx context.Context) (*big.Int, error) {
	var suggested *big.Int
	err := c.executeWithFailover(ctx, "suggest_gas_price", func(client *ethclient.Client) error {
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		var innerErr error
		suggested, innerErr = client.SuggestGasPrice(callCtx)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	scaled := new(big.Float).Mul(new(big.Float).SetInt(suggested), big.NewFloat(c.gasMultiplier))
	price, _ := scaled.Int(nil)

	if c.maxGasPrice != nil && price.Cmp(c.maxGasPrice) > 0 {
		c.logger.Warn().
			Str("scaled_gas_price", price.String()).
			Str("max_gas_price", c.maxGasPrice.String()).
			Msg("gas price capped at configured maximum")
		price = new(big.Int).Set(c.maxGasPrice)
	}

	return price, nil
}

// Submit signs and broadcasts a transaction carrying calldata to the oracle
// contract and returns its hash. Nonce assignment and broadcast are
// serialized so concurrent submissions from the one signing wallet cannot
// race on the nonce.
func (c *Client) Submit(ctx context.Context, calldata []byte, gasLimit uint64) (ethcommon.Hash, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	gasPrice, err := c.gasPrice(ctx)
	if err != nil {
		return ethcommon.Hash{}, err
	}

	var nonce uint64
	err = c.executeWithFailover(ctx, "pending_nonce", func(client *ethclient.Client) error {
		var innerErr error
		nonce, innerErr = client.PendingNonceAt(ctx, c.signerAddr)
		return innerErr
	})
	if err != nil {
		return ethcommon.Hash{}, err
	}

	tx := types.NewTransaction(nonce, c.oracleAddr, big.NewInt(0), gasLimit, gasPrice, calldata)
	signer := types.NewEIP155Signer(big.NewInt(c.chainID))
	signedTx, err := types.SignTx(tx, signer, c.key)
	if err != nil {
		return ethcommon.Hash{}, oerrors.NewInternalError("failed to sign transaction", err)
	}

	txHash := signedTx.Hash()
	err = c.executeWithFailover(ctx, "send_transaction", func(client *ethclient.Client) error {
		return client.SendTransaction(ctx, signedTx)
	})
	if err != nil {
		return txHash, oerrors.NewChainError("failed to broadcast transaction", err).
			WithContext("tx_hash", txHash.Hex())
	}

	c.logger.Info().
		Str("tx_hash", txHash.Hex()).
		Uint64("nonce", nonce).
		Uint64("gas_limit", gasLimit).
		Str("gas_price_wei", gasPrice.String()).
		Msg("transaction broadcast")

	return txHash, nil
}

// WaitForReceipt polls until the transaction has the configured number of
// confirmations, bounded by the configured timeout. A timeout is a distinct
// error kind from a chain rejection: the transaction may still confirm later,
// so callers should re-check by hash before retrying. A receipt with failed
// status is a chain rejection.
func (c *Client) WaitForReceipt(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.confirmationTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.receiptWithConfirmations(waitCtx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return nil, oerrors.NewChainError("transaction reverted", nil).
					WithContext("tx_hash", txHash.Hex()).
					WithContext("block_number", receipt.BlockNumber.Uint64())
			}
			return receipt, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, oerrors.NewTimeoutError(
				fmt.Sprintf("transaction %s not confirmed within %s", txHash.Hex(), c.confirmationTimeout))
		case <-ticker.C:
		}
	}
}

// receiptWithConfirmations returns the receipt once it has enough
// confirmations, or (nil, nil) while it is still pending.
func (c *Client) receiptWithConfirmations(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.executeWithFailover(ctx, "get_transaction_receipt", func(client *ethclient.Client) error {
		var innerErr error
		receipt, innerErr = client.TransactionReceipt(ctx, txHash)
		return innerErr
	})
	if err != nil {
		// Not yet mined: keep polling.
		return nil, nil
	}

	var latest uint64
	err = c.executeWithFailover(ctx, "get_block_number", func(client *ethclient.Client) error {
		var innerErr error
		latest, innerErr = client.BlockNumber(ctx)
		return innerErr
	})
	if err != nil {
		return nil, nil
	}

	if latest < receipt.BlockNumber.Uint64() {
		return nil, nil
	}
	confirmations := latest - receipt.BlockNumber.Uint64() + 1
	if confirmations < c.confirmations {
		return nil, nil
	}
	return receipt, nil
}

// Call performs a read-only call against the oracle contract.
func (c *Client) Call(ctx context.Context, calldata []byte) ([]byte, error) {
	msg := ethereum.CallMsg{
		To:   &c.oracleAddr,
		Data: calldata,
	}

	var out []byte
	err := c.executeWithFailover(ctx, "call_contract", func(client *ethclient.Client) error {
		var innerErr error
		out, innerErr = client.CallContract(ctx, msg, nil)
		return innerErr
	})
	return out, err
}

// ContractCode returns the deployed bytecode at the oracle contract address.
func (c *Client) ContractCode(ctx context.Context) ([]byte, error) {
	var code []byte
	err := c.executeWithFailover(ctx, "code_at", func(client *ethclient.Client) error {
		var innerErr error
		code, innerErr = client.CodeAt(ctx, c.oracleAddr, nil)
		return innerErr
	})
	return code, err
}

// SignerBalance returns the signing wallet's native balance for gas.
func (c *Client) SignerBalance(ctx context.Context) (*big.Int, error) {
	var balance *big.Int
	err := c.executeWithFailover(ctx, "balance_at", func(client *ethclient.Client) error {
		var innerErr error
		balance, innerErr = client.BalanceAt(ctx, c.signerAddr, nil)
		return innerErr
	})
	return balance, err
}

// TransactionStatus re-checks a previously submitted transaction by hash.
// Intended for recovery after a confirmation timeout. found is only meaningful
// when err is nil: a transport failure is reported as an error, not as a
// missing transaction, so a recovery job never mistakes an RPC outage for
// "never broadcast" and blindly re-submits.
func (c *Client) TransactionStatus(ctx context.Context, txHash ethcommon.Hash) (found bool, confirmations uint64, status uint64, err error) {
	var receipt *types.Receipt
	err = c.executeWithFailover(ctx, "get_transaction_receipt", func(client *ethclient.Client) error {
		var innerErr error
		receipt, innerErr = client.TransactionReceipt(ctx, txHash)
		return innerErr
	})
	if err != nil {
		if stderrors.Is(err, ethereum.NotFound) {
			return false, 0, 0, nil
		}
		return false, 0, 0, err
	}

	var latest uint64
	err = c.executeWithFailover(ctx, "get_block_number", func(client *ethclient.Client) error {
		var innerErr error
		latest, innerErr = client.BlockNumber(ctx)
		return innerErr
	})
	if err != nil {
		return false, 0, 0, err
	}
	if latest >= receipt.BlockNumber.Uint64() {
		confirmations = latest - receipt.BlockNumber.Uint64() + 1
	}

	return true, confirmations, receipt.Status, nil
}

// Close closes all RPC connections.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, client := range c.clients {
		if client != nil {
			client.Close()
		}
	}
	c.clients = nil
}
