package receipt

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/creditauction/core"
	"github.com/cloudx-io/creditauction/ledger"
)

var (
	// ErrInvalidReceipt is returned for receipts that fail to decode or verify.
	ErrInvalidReceipt = errors.New("invalid receipt")

	// ErrSettlementMismatch is returned when the settlement hash does not
	// commit to the listed transfer hashes.
	ErrSettlementMismatch = errors.New("settlement hash mismatch")
)

// Payload is the signed content of a settlement receipt. Transfers appear only
// as hashes, so a holder can check for their own transfer without learning the
// amounts paid to anyone else.
type Payload struct {
	TxID           string   `cbor:"tx_id" json:"tx_id"`
	Height         uint64   `cbor:"height" json:"height"`
	Time           int64    `cbor:"time" json:"time"`
	Contract       string   `cbor:"contract" json:"contract"`
	AnswerHash     string   `cbor:"answer_hash" json:"answer_hash"`
	TransferHashes []string `cbor:"transfer_hashes" json:"transfer_hashes"`
	SettlementHash string   `cbor:"settlement_hash" json:"settlement_hash"`
}

// FromTx builds the receipt payload for a committed transaction.
func FromTx(res *ledger.TxResult) Payload {
	hashes := make([]string, 0, len(res.Transfers))
	for _, t := range res.Transfers {
		hashes = append(hashes, core.ComputeTransferHash(t.Token, t.To, t.Amount))
	}
	answer := sha256.Sum256(res.Data)
	return Payload{
		TxID:           res.ID,
		Height:         res.Height,
		Time:           res.Time.Unix(),
		Contract:       res.Contract,
		AnswerHash:     hex.EncodeToString(answer[:]),
		TransferHashes: hashes,
		SettlementHash: core.ComputeSettlementHash(res.ID, hashes),
	}
}

// Includes reports whether the settlement paid amount of token to recipient.
func (p Payload) Includes(token, recipient string, amount core.Amount) bool {
	return slices.Contains(p.TransferHashes, core.ComputeTransferHash(token, recipient, amount))
}

// CheckSettlement recomputes the settlement hash from the transfer hashes.
func (p Payload) CheckSettlement() error {
	if got := core.ComputeSettlementHash(p.TxID, p.TransferHashes); got != p.SettlementHash {
		return fmt.Errorf("%w: expected %s, computed %s", ErrSettlementMismatch, p.SettlementHash, got)
	}
	return nil
}

// Signer issues ES256 COSE_Sign1 receipts.
type Signer struct {
	key    *ecdsa.PrivateKey
	signer cose.Signer
	keyID  []byte
}

// NewSigner returns a signer for a P-256 key.
func NewSigner(key *ecdsa.PrivateKey) (*Signer, error) {
	signer, err := cose.NewSigner(cose.AlgorithmES256, key)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}
	kid, err := keyID(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key, signer: signer, keyID: kid}, nil
}

// PublicKey returns the key receipts verify against.
func (s *Signer) PublicKey() *ecdsa.PublicKey {
	return &s.key.PublicKey
}

// KeyID returns the hex key id carried in every receipt header.
func (s *Signer) KeyID() string {
	return hex.EncodeToString(s.keyID)
}

// Sign encodes p as CBOR and signs it into a tagged COSE_Sign1 message.
func (s *Signer) Sign(p Payload) ([]byte, error) {
	payload, err := cbor.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES256)
	msg.Headers.Unprotected[cose.HeaderLabelKeyID] = s.keyID
	msg.Payload = payload

	if err := msg.Sign(rand.Reader, nil, s.signer); err != nil {
		return nil, fmt.Errorf("sign receipt: %w", err)
	}
	return msg.MarshalCBOR()
}

// Verify checks a receipt's signature against pub and returns its payload.
// The settlement hash is checked against the transfer hashes as well.
func Verify(receipt []byte, pub *ecdsa.PublicKey) (*Payload, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(receipt); err != nil {
		return nil, fmt.Errorf("%w: parse COSE_Sign1: %v", ErrInvalidReceipt, err)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES256, pub)
	if err != nil {
		return nil, fmt.Errorf("create verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}

	var p Payload
	if err := cbor.Unmarshal(msg.Payload, &p); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrInvalidReceipt, err)
	}
	if err := p.CheckSettlement(); err != nil {
		return nil, err
	}
	return &p, nil
}

func keyID(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return sum[:8], nil
}
