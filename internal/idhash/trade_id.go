package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade id using SHA256.
// Formula: SHA256(result_key|symbol|strategy_id|entry_time_ms|exit_time_ms)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	resultKey string,
	symbol string,
	strategyID string,
	entryTimeMs int64,
	exitTimeMs int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d",
		resultKey,
		symbol,
		strategyID,
		entryTimeMs,
		exitTimeMs,
	)

	return hashHex(data)
}

// ComputeResultID computes a deterministic backtest result id.
// Formula: SHA256(symbol|strategy_id|interval|from_ms|to_ms|initial_balance|config_key)
func ComputeResultID(
	symbol string,
	strategyID string,
	interval string,
	fromMs int64,
	toMs int64,
	initialBalance string,
	configKey string,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d|%s|%s",
		symbol,
		strategyID,
		interval,
		fromMs,
		toMs,
		initialBalance,
		configKey,
	)

	return hashHex(data)
}

func hashHex(data string) string {
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
