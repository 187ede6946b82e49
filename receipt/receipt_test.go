package receipt

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/creditauction/core"
	"github.com/cloudx-io/creditauction/ledger"
)

func testTx() *ledger.TxResult {
	return &ledger.TxResult{
		ID:       "01hqv4m3y0a7x6k5c2n8p9r1st",
		Height:   42,
		Time:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Contract: "secret1auction",
		Data:     []byte(`{"close_auction":{"status":"success"}}`),
		Transfers: []ledger.Transfer{
			{Token: "secret1bid", From: "secret1auction", To: "secret1seller", Amount: 2_000_000},
			{Token: "secret1sell", From: "secret1auction", To: "secret1alice", Amount: 1_000_000},
			{Token: "secret1bid", From: "secret1auction", To: "secret1bob", Amount: 1_900_000},
		},
	}
}

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := GenerateKey()
	assert.NoError(t, err)
	s, err := NewSigner(key)
	assert.NoError(t, err)
	return s
}

func TestFromTx(t *testing.T) {
	p := FromTx(testTx())

	check.Equal(t, "01hqv4m3y0a7x6k5c2n8p9r1st", p.TxID)
	check.Equal(t, uint64(42), p.Height)
	check.Equal(t, int64(1709294400), p.Time)
	check.Equal(t, 3, len(p.TransferHashes))
	check.Equal(t, core.ComputeTransferHash("secret1bid", "secret1seller", 2_000_000), p.TransferHashes[0])
	check.Equal(t, 64, len(p.AnswerHash))
	check.NoError(t, p.CheckSettlement())

	check.True(t, p.Includes("secret1bid", "secret1bob", 1_900_000))
	check.False(t, p.Includes("secret1bid", "secret1bob", 1_900_001))
	check.False(t, p.Includes("secret1sell", "secret1bob", 1_900_000))
}

func TestFromTxWithoutTransfers(t *testing.T) {
	tx := testTx()
	tx.Transfers = nil
	p := FromTx(tx)

	check.Equal(t, 0, len(p.TransferHashes))
	check.Equal(t, core.ComputeSettlementHash(tx.ID, nil), p.SettlementHash)
}

func TestSignVerify(t *testing.T) {
	s := newTestSigner(t)
	want := FromTx(testTx())

	signed, err := s.Sign(want)
	assert.NoError(t, err)

	got, err := Verify(signed, s.PublicKey())
	assert.NoError(t, err)
	check.Equal(t, want, *got)
	check.Equal(t, 16, len(s.KeyID()))
}

func TestVerifyRejectsOtherKey(t *testing.T) {
	s := newTestSigner(t)
	other := newTestSigner(t)

	signed, err := s.Sign(FromTx(testTx()))
	assert.NoError(t, err)

	_, err = Verify(signed, other.PublicKey())
	check.True(t, errors.Is(err, ErrInvalidReceipt))
}

func TestVerifyRejectsTampering(t *testing.T) {
	s := newTestSigner(t)

	signed, err := s.Sign(FromTx(testTx()))
	assert.NoError(t, err)
	signed[len(signed)-1] ^= 0xff
	_, err = Verify(signed, s.PublicKey())
	check.True(t, errors.Is(err, ErrInvalidReceipt))

	_, err = Verify([]byte("not a receipt"), s.PublicKey())
	check.True(t, errors.Is(err, ErrInvalidReceipt))
}

func TestVerifyRejectsBadSettlement(t *testing.T) {
	s := newTestSigner(t)
	p := FromTx(testTx())
	p.TransferHashes = p.TransferHashes[:2]

	signed, err := s.Sign(p)
	assert.NoError(t, err)
	_, err = Verify(signed, s.PublicKey())
	check.True(t, errors.Is(err, ErrSettlementMismatch))
}

func TestLoadOrGenerateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipt.pem")

	first, err := LoadOrGenerateKey(path)
	assert.NoError(t, err)
	second, err := LoadOrGenerateKey(path)
	assert.NoError(t, err)
	check.True(t, first.Equal(second))

	pemStr, err := PublicKeyPEM(&first.PublicKey)
	assert.NoError(t, err)
	pub, err := ParsePublicKeyPEM([]byte(pemStr))
	assert.NoError(t, err)
	check.True(t, first.PublicKey.Equal(pub))

	_, err = ParsePublicKeyPEM([]byte("garbage"))
	check.Error(t, err)
}
