package core

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// ComputeTransferHash commits to a single outbound token movement.
//
// Formula: SHA256(token + "|" + recipient + "|" + amount)
func ComputeTransferHash(token, recipient string, amount Amount) string {
	data := fmt.Sprintf("%s|%s|%d", token, recipient, uint64(amount))
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ComputeSettlementHash commits to every transfer a transaction produced, in
// emission order. Receipts carry it so a bidder can check their own transfer
// was part of the settlement without learning the others.
//
// Formula: SHA256(tx_id + "|" + transfer_hash_1 + "|" + transfer_hash_2 + ...)
func ComputeSettlementHash(txID string, transferHashes []string) string {
	data := txID
	if len(transferHashes) > 0 {
		data += "|" + strings.Join(transferHashes, "|")
	}
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
