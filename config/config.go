// Package config holds the oracle configuration surface. Values come from the
// environment (optionally via a .env file loaded by the process entry point)
// and are validated fail-fast: a missing contract address, signing key, or
// encryption key is a construction-time error, never a runtime surprise.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	oerrors "github.com/lalalune/babylon-oracle/errors"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultGasMultiplier       = 1.2
	DefaultConfirmations       = 1
	DefaultConfirmationTimeout = 120 * time.Second
	DefaultDBDir               = "data"
	DefaultDBFile              = "oracle_data.db"
	DefaultLogLevel            = 1 // zerolog info
	DefaultLogFormat           = "console"
)

// Environment variable names.
const (
	EnvOracleAddress       = "ORACLE_CONTRACT_ADDRESS"
	EnvSignerKey           = "ORACLE_SIGNER_KEY"
	EnvRPCURLs             = "ORACLE_RPC_URLS"
	EnvChainID             = "ORACLE_CHAIN_ID"
	EnvGasMultiplier       = "ORACLE_GAS_MULTIPLIER"
	EnvMaxGasPrice         = "ORACLE_MAX_GAS_PRICE_WEI"
	EnvConfirmations       = "ORACLE_CONFIRMATIONS"
	EnvConfirmationTimeout = "ORACLE_CONFIRMATION_TIMEOUT_SECONDS"
	EnvEncryptionKey       = "ORACLE_SALT_ENCRYPTION_KEY"
	EnvDBDir               = "ORACLE_DB_DIR"
	EnvDBFile              = "ORACLE_DB_FILE"
	EnvLogLevel            = "LOG_LEVEL"
	EnvLogFormat           = "LOG_FORMAT"
)

// Config is the full configuration for the oracle service.
type Config struct {
	// Chain
	OracleAddress string   // oracle contract address (0x...)
	SignerKey     string   // hex-encoded ECDSA private key for the signing wallet
	RPCURLs       []string // JSON-RPC endpoints, tried round-robin
	ChainID       int64

	// Gas and confirmations
	GasMultiplier       float64  // applied to the suggested gas price
	MaxGasPrice         *big.Int // optional cap in wei; nil means uncapped
	Confirmations       uint64   // blocks to wait past inclusion
	ConfirmationTimeout time.Duration

	// Secrets
	EncryptionKeyHex string // 64-char hex AES-256 key for salt encryption

	// Storage
	DBDir  string
	DBFile string

	// Logging
	LogLevel  int
	LogFormat string // "json" or "console"
}

// FromEnv builds a Config from environment variables and validates it.
func FromEnv() (*Config, error) {
	cfg := &Config{
		OracleAddress:       os.Getenv(EnvOracleAddress),
		SignerKey:           os.Getenv(EnvSignerKey),
		ChainID:             0,
		GasMultiplier:       DefaultGasMultiplier,
		Confirmations:       DefaultConfirmations,
		ConfirmationTimeout: DefaultConfirmationTimeout,
		EncryptionKeyHex:    os.Getenv(EnvEncryptionKey),
		DBDir:               DefaultDBDir,
		DBFile:              DefaultDBFile,
		LogLevel:            DefaultLogLevel,
		LogFormat:           DefaultLogFormat,
	}

	if v := os.Getenv(EnvRPCURLs); v != "" {
		for _, url := range strings.Split(v, ",") {
			if url = strings.TrimSpace(url); url != "" {
				cfg.RPCURLs = append(cfg.RPCURLs, url)
			}
		}
	}
	if v := os.Getenv(EnvChainID); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, oerrors.NewConfigError(fmt.Sprintf("%s is not an integer: %v", EnvChainID, err))
		}
		cfg.ChainID = id
	}
	if v := os.Getenv(EnvGasMultiplier); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, oerrors.NewConfigError(fmt.Sprintf("%s is not a number: %v", EnvGasMultiplier, err))
		}
		cfg.GasMultiplier = m
	}
	if v := os.Getenv(EnvMaxGasPrice); v != "" {
		price, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, oerrors.NewConfigError(fmt.Sprintf("%s is not an integer", EnvMaxGasPrice))
		}
		cfg.MaxGasPrice = price
	}
	if v := os.Getenv(EnvConfirmations); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, oerrors.NewConfigError(fmt.Sprintf("%s is not an integer: %v", EnvConfirmations, err))
		}
		cfg.Confirmations = n
	}
	if v := os.Getenv(EnvConfirmationTimeout); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, oerrors.NewConfigError(fmt.Sprintf("%s is not an integer: %v", EnvConfirmationTimeout, err))
		}
		cfg.ConfirmationTimeout = time.Duration(secs) * time.Second
	}
	if v := os.Getenv(EnvDBDir); v != "" {
		cfg.DBDir = v
	}
	if v := os.Getenv(EnvDBFile); v != "" {
		cfg.DBFile = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		lvl, err := strconv.Atoi(v)
		if err != nil {
			return nil, oerrors.NewConfigError(fmt.Sprintf("%s is not an integer: %v", EnvLogLevel, err))
		}
		cfg.LogLevel = lvl
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.LogFormat = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.OracleAddress == "" {
		return oerrors.NewConfigError("oracle contract address is required")
	}
	if !ethcommon.IsHexAddress(c.OracleAddress) {
		return oerrors.NewConfigError(fmt.Sprintf("invalid oracle contract address: %s", c.OracleAddress))
	}
	if c.SignerKey == "" {
		return oerrors.NewConfigError("signer key is required")
	}
	if len(c.RPCURLs) == 0 {
		return oerrors.NewConfigError("at least one RPC URL is required")
	}
	if c.ChainID <= 0 {
		return oerrors.NewConfigError("chain id must be positive")
	}
	if c.GasMultiplier < 1.0 {
		return oerrors.NewConfigError("gas multiplier must be >= 1.0")
	}
	if c.Confirmations == 0 {
		return oerrors.NewConfigError("confirmations must be at least 1")
	}
	if c.ConfirmationTimeout <= 0 {
		return oerrors.NewConfigError("confirmation timeout must be positive")
	}
	// No compiled-in fallback key: encryption is always on and the key always
	// comes from the environment.
	if c.EncryptionKeyHex == "" {
		return oerrors.NewConfigError("salt encryption key is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return oerrors.NewConfigError("log format must be 'json' or 'console'")
	}
	return nil
}

// ContractAddress returns the oracle contract address in parsed form.
func (c *Config) ContractAddress() ethcommon.Address {
	return ethcommon.HexToAddress(c.OracleAddress)
}
