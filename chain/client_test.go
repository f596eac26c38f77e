package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lalalune/babylon-oracle/config"
	oerrors "github.com/lalalune/babylon-oracle/errors"
	"github.com/lalalune/babylon-oracle/logger"
)

// well-known throwaway test key, never funded anywhere real
const testSignerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// rpcServer serves JSON-RPC over HTTP, answering each method from the given
// map. Methods without an entry get a 500, simulating a failing endpoint.
func rpcServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, ok := results[req.Method]
		if !ok {
			http.Error(w, "endpoint unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, req.ID, result)
	}))
}

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	cfg := &config.Config{
		OracleAddress:       "0x00000000000000000000000000000000000000aa",
		SignerKey:           testSignerKey,
		RPCURLs:             []string{url},
		ChainID:             1,
		GasMultiplier:       1.2,
		Confirmations:       1,
		ConfirmationTimeout: 5 * time.Second,
	}
	client, err := NewClient(cfg, logger.New(5, "console"))
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

// receiptJSON is a minimal but complete receipt body the client can decode.
func receiptJSON(txHash string, blockNumber uint64, status uint64) string {
	return fmt.Sprintf(`{
		"transactionHash": %q,
		"transactionIndex": "0x0",
		"blockHash": "0x%064x",
		"blockNumber": "0x%x",
		"from": "0x0000000000000000000000000000000000000001",
		"to": "0x00000000000000000000000000000000000000aa",
		"cumulativeGasUsed": "0x5208",
		"gasUsed": "0x5208",
		"effectiveGasPrice": "0x77359400",
		"contractAddress": null,
		"logs": [],
		"logsBloom": "0x%s",
		"type": "0x0",
		"status": "0x%x"
	}`, txHash, blockNumber, blockNumber, strings.Repeat("00", 256), status)
}

func TestTransactionStatusConfirmed(t *testing.T) {
	txHash := ethcommon.BigToHash(ethcommon.Big1)
	srv := rpcServer(t, map[string]string{
		"eth_chainId":               `"0x1"`,
		"eth_getTransactionReceipt": receiptJSON(txHash.Hex(), 16, 1),
		"eth_blockNumber":           `"0x14"`,
	})
	defer srv.Close()

	client := testClient(t, srv.URL)

	found, confirmations, status, err := client.TransactionStatus(context.Background(), txHash)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(5), confirmations) // blocks 16..20 inclusive
	assert.Equal(t, types.ReceiptStatusSuccessful, status)
}

func TestTransactionStatusUnknownHash(t *testing.T) {
	srv := rpcServer(t, map[string]string{
		"eth_chainId":               `"0x1"`,
		"eth_getTransactionReceipt": `null`,
	})
	defer srv.Close()

	client := testClient(t, srv.URL)

	found, _, _, err := client.TransactionStatus(context.Background(), ethcommon.BigToHash(ethcommon.Big2))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTransactionStatusReportsOutage(t *testing.T) {
	// the endpoint answers the chain id check at construction, then fails
	// every subsequent call
	srv := rpcServer(t, map[string]string{
		"eth_chainId": `"0x1"`,
	})
	defer srv.Close()

	client := testClient(t, srv.URL)

	// an RPC outage must surface as an error, never as "transaction not
	// found", or a recovery job would re-broadcast a transaction that may
	// already be confirmed
	found, _, _, err := client.TransactionStatus(context.Background(), ethcommon.BigToHash(ethcommon.Big1))
	require.Error(t, err)
	assert.True(t, oerrors.HasCode(err, oerrors.ErrCodeRPC))
	assert.False(t, found)
}
