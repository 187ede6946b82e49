package core

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestComputeTransferHash(t *testing.T) {
	hash := ComputeTransferHash("secret1bid", "secret1seller", 2_200_000)

	check.Equal(t, 64, len(hash))
	check.Equal(t, hash, ComputeTransferHash("secret1bid", "secret1seller", 2_200_000))
	check.NotEqual(t, hash, ComputeTransferHash("secret1bid", "secret1seller", 2_200_001))
	check.NotEqual(t, hash, ComputeTransferHash("secret1sell", "secret1seller", 2_200_000))

	expected := fmt.Sprintf("%x", sha256.Sum256([]byte("secret1bid|secret1seller|2200000")))
	check.Equal(t, expected, hash)
}

func TestComputeSettlementHash(t *testing.T) {
	h1 := ComputeTransferHash("bid", "seller", 10)
	h2 := ComputeTransferHash("sell", "winner", 20)

	hash := ComputeSettlementHash("tx1", []string{h1, h2})
	expected := fmt.Sprintf("%x", sha256.Sum256([]byte("tx1|"+h1+"|"+h2)))
	check.Equal(t, expected, hash)

	// Order of transfers is part of the commitment
	check.NotEqual(t, hash, ComputeSettlementHash("tx1", []string{h2, h1}))

	empty := fmt.Sprintf("%x", sha256.Sum256([]byte("tx1")))
	check.Equal(t, empty, ComputeSettlementHash("tx1", nil))
}
