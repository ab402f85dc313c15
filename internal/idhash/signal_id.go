package idhash

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// signalNamespace scopes signal ids so they never collide with other v5 uuids.
var signalNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("signal-lab/signal"))

// ComputeSignalID returns a name-based (v5) uuid for a signal.
// Formula: UUIDv5(ns, symbol|strategy_id|created_at_ms|direction|entry)
func ComputeSignalID(
	symbol string,
	strategyID string,
	createdAtMs int64,
	direction string,
	entry float64,
) string {
	data := fmt.Sprintf("%s|%s|%d|%s|%s",
		symbol,
		strategyID,
		createdAtMs,
		direction,
		strconv.FormatFloat(entry, 'g', -1, 64),
	)
	return uuid.NewSHA1(signalNamespace, []byte(data)).String()
}

// ComputeSignalRecordID derives the learning record id from the signal id and mode.
// Formula: SHA256(signal_id|mode)
func ComputeSignalRecordID(signalID, mode string) string {
	return hashHex(signalID + "|" + mode)
}
