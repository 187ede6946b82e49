package node

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/creditauction/ledger"
)

const (
	// MaxCallTTL bounds how far in the future a signed call may expire.
	MaxCallTTL = 5 * time.Minute

	maxNonceLen = 64
)

// ErrUnauthenticated is returned for instantiate and execute requests without
// a valid signed call.
var ErrUnauthenticated = errors.New("unauthenticated")

// Call is the signed body of an instantiate or execute request. The sender is
// the account of PublicKey; it is never taken from the request itself.
type Call struct {
	Type      string `cbor:"type" json:"type"`
	Code      string `cbor:"code,omitempty" json:"code,omitempty"`
	Contract  string `cbor:"contract,omitempty" json:"contract,omitempty"`
	Msg       []byte `cbor:"msg" json:"msg"`
	Nonce     string `cbor:"nonce" json:"nonce"`
	Expires   int64  `cbor:"expires" json:"expires"` // unix seconds
	PublicKey []byte `cbor:"public_key" json:"public_key"`
}

// Address returns the account address of the key that signs c.
func (c Call) Address() string {
	return ledger.AccountAddress(c.PublicKey)
}

// AccountOf returns the account address controlled by pub.
func AccountOf(pub *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return ledger.AccountAddress(der), nil
}

// SignCall signs c with key into a request. A missing nonce is filled with a
// random one and a zero expiry with MaxCallTTL from now.
func SignCall(key *ecdsa.PrivateKey, c Call) (Request, error) {
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return Request{}, fmt.Errorf("marshal public key: %w", err)
	}
	c.PublicKey = der
	if c.Nonce == "" {
		c.Nonce = uuid.NewString()
	}
	if c.Expires == 0 {
		c.Expires = time.Now().Add(MaxCallTTL).Unix()
	}
	payload, err := cbor.Marshal(c)
	if err != nil {
		return Request{}, fmt.Errorf("marshal call: %w", err)
	}

	signer, err := cose.NewSigner(cose.AlgorithmES256, key)
	if err != nil {
		return Request{}, fmt.Errorf("create signer: %w", err)
	}
	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES256)
	msg.Payload = payload
	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		return Request{}, fmt.Errorf("sign call: %w", err)
	}
	signed, err := msg.MarshalCBOR()
	if err != nil {
		return Request{}, err
	}
	return Request{Type: c.Type, Call: base64.StdEncoding.EncodeToString(signed)}, nil
}

// verifyCall checks the signed call of req and returns it with the sender's
// address. Each sender nonce is accepted once while its call is unexpired.
func (s *Server) verifyCall(req Request, now time.Time) (Call, string, error) {
	var c Call
	if req.Call == "" {
		return c, "", fmt.Errorf("%w: %s needs a signed call", ErrUnauthenticated, req.Type)
	}
	signed, err := base64.StdEncoding.DecodeString(req.Call)
	if err != nil {
		return c, "", fmt.Errorf("%w: decoding call: %v", ErrUnauthenticated, err)
	}
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(signed); err != nil {
		return c, "", fmt.Errorf("%w: parse COSE_Sign1: %v", ErrUnauthenticated, err)
	}
	if err := cbor.Unmarshal(msg.Payload, &c); err != nil {
		return c, "", fmt.Errorf("%w: decode call: %v", ErrUnauthenticated, err)
	}

	pub, err := parseCallKey(c.PublicKey)
	if err != nil {
		return c, "", err
	}
	verifier, err := cose.NewVerifier(cose.AlgorithmES256, pub)
	if err != nil {
		return c, "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return c, "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	expires := time.Unix(c.Expires, 0)
	switch {
	case c.Type != req.Type:
		return c, "", fmt.Errorf("%w: call signed for %q, sent as %q", ErrUnauthenticated, c.Type, req.Type)
	case !now.Before(expires):
		return c, "", fmt.Errorf("%w: call expired %s", ErrUnauthenticated, expires.UTC().Format(time.RFC3339))
	case expires.Sub(now) > MaxCallTTL:
		return c, "", fmt.Errorf("%w: call expiry is more than %s away", ErrUnauthenticated, MaxCallTTL)
	case c.Nonce == "" || len(c.Nonce) > maxNonceLen:
		return c, "", fmt.Errorf("%w: nonce must be 1 to %d bytes", ErrUnauthenticated, maxNonceLen)
	}

	sender := c.Address()
	if !s.nonces.claim(sender+"|"+c.Nonce, expires, now) {
		return c, "", fmt.Errorf("%w: nonce %q already used", ErrUnauthenticated, c.Nonce)
	}
	return c, sender, nil
}

func parseCallKey(der []byte) (*ecdsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse public key: %v", ErrUnauthenticated, err)
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok || pub.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: call key must be ECDSA P-256", ErrUnauthenticated)
	}
	return pub, nil
}

// nonceCache remembers used nonces until their calls expire.
type nonceCache struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newNonceCache() *nonceCache {
	return &nonceCache{seen: make(map[string]time.Time)}
}

// claim records key and reports whether it was unused.
func (c *nonceCache) claim(key string, expires, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, exp := range c.seen {
		if !now.Before(exp) {
			delete(c.seen, k)
		}
	}
	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = expires
	return true
}
