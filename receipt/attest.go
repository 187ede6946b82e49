package receipt

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

// awsNitroRootCA is the root certificate for AWS Nitro Enclaves, a P-384
// self-signed certificate valid until 2049-10-28.
const awsNitroRootCA = `-----BEGIN CERTIFICATE-----
MIICETCCAZagAwIBAgIRAPkxdWgbkK/hHUbMtOTn+FYwCgYIKoZIzj0EAwMwSTEL
MAkGA1UEBhMCVVMxDzANBgNVBAoMBkFtYXpvbjEMMAoGA1UECwwDQVdTMRswGQYD
VQQDDBJhd3Mubml0cm8tZW5jbGF2ZXMwHhcNMTkxMDI4MTMyODA1WhcNNDkxMDI4
MTQyODA1WjBJMQswCQYDVQQGEwJVUzEPMA0GA1UECgwGQW1hem9uMQwwCgYDVQQL
DANBV1MxGzAZBgNVBAMMEmF3cy5uaXRyby1lbmNsYXZlczB2MBAGByqGSM49AgEG
BSuBBAAiA2IABPwCVOumCMHzaHDimtqQvkY4MpJzbolL//Zy2YlES1BR5TSksfbb
48C8WBoyt7F2Bw7eEtaaP+ohG2bnUs990d0JX28TcPQXCEPZ3BABIeTPYwEoCWZE
h8l5YoQwTcU/9KNCMEAwDwYDVR0TAQH/BAUwAwEB/zAdBgNVHQ4EFgQUkCW1DdkF
R+eWw5b6cp3PmanfS5YwDgYDVR0PAQH/BAQDAgGGMAoGCCqGSM49BAMDA2kAMGYC
MQCjfy+Rocm9Xue4YnwWmNJVA44fA0P5W2OpYow9OYCVRaEevL8uO1XYru5xtMPW
rfMCMQCi85sWBbJwKKXdS6BptQFuZbT73o/gBh1qUxl/nNr12UO8Yfwr6wPLb+6N
IwLz3/Y=
-----END CERTIFICATE-----`

// ErrAttestationMismatch is returned when an attestation does not vouch for
// the expected receipt key.
var ErrAttestationMismatch = errors.New("attestation does not match receipt key")

// EnclaveAttester produces Nitro attestation documents.
type EnclaveAttester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// KeyAttestationUserData binds a receipt signing key to an enclave.
type KeyAttestationUserData struct {
	KeyAlgorithm string `json:"key_algorithm"`
	PublicKey    string `json:"public_key"`
	KeyID        string `json:"key_id"`
}

// AttestationDocument is the raw CBOR document inside a Nitro attestation.
type AttestationDocument struct {
	ModuleID    string            `cbor:"module_id"`
	Digest      string            `cbor:"digest"`
	Timestamp   uint64            `cbor:"timestamp"` // unix millis
	PCRs        map[uint64][]byte `cbor:"pcrs"`
	Certificate []byte            `cbor:"certificate"`
	CABundle    [][]byte          `cbor:"cabundle"`
	PublicKey   []byte            `cbor:"public_key"`
	UserData    []byte            `cbor:"user_data"`
	Nonce       []byte            `cbor:"nonce"`
}

// PCR returns the hex measurement in register i, empty if unset.
func (d *AttestationDocument) PCR(i uint64) string {
	return hex.EncodeToString(d.PCRs[i])
}

// AttestKey asks the enclave to attest the signer's public key, so receipts
// can be traced back to a measured build.
func AttestKey(attester EnclaveAttester, s *Signer) ([]byte, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	publicKeyPEM, err := PublicKeyPEM(s.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("failed to convert public key to PEM: %w", err)
	}
	userData, err := json.Marshal(KeyAttestationUserData{
		KeyAlgorithm: "ECDSA-P256",
		PublicKey:    publicKeyPEM,
		KeyID:        s.KeyID(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key user data: %w", err)
	}

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("entropy generation failed: %w", err)
	}

	doc, err := attester.Attest(enclave.AttestationOptions{
		UserData: userData,
		Nonce:    []byte(hex.EncodeToString(nonce)),
	})
	if err != nil {
		return nil, fmt.Errorf("NSM key attestation failed: %w", err)
	}
	return doc, nil
}

// ParseAttestation decodes an untagged COSE_Sign1 attestation without
// verifying it.
// COSE_Sign1 structure: [protected, unprotected, payload, signature]
func ParseAttestation(coseBytes []byte) (*AttestationDocument, *KeyAttestationUserData, error) {
	_, payload, _, err := splitSign1(coseBytes)
	if err != nil {
		return nil, nil, err
	}

	var doc AttestationDocument
	if err := cbor.Unmarshal(payload, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse attestation document: %w", err)
	}
	var userData KeyAttestationUserData
	if err := json.Unmarshal(doc.UserData, &userData); err != nil {
		return nil, nil, fmt.Errorf("parse user data: %w", err)
	}
	return &doc, &userData, nil
}

// VerifyAttestation checks the attestation signature against the document's
// certificate, the certificate chain against roots (the AWS Nitro root when
// nil), and that the attested key is pub.
func VerifyAttestation(coseBytes []byte, roots *x509.CertPool, pub *ecdsa.PublicKey) (*AttestationDocument, error) {
	protected, payload, signature, err := splitSign1(coseBytes)
	if err != nil {
		return nil, err
	}
	doc, userData, err := ParseAttestation(coseBytes)
	if err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(doc.Certificate)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	if err := verifyChain(cert, doc, roots); err != nil {
		return nil, err
	}

	ecdsaKey, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate public key is not ECDSA")
	}
	// Sig_structure for COSE_Sign1 with empty external_aad
	sigStructure, err := cbor.Marshal([]any{"Signature1", protected, []byte{}, payload})
	if err != nil {
		return nil, fmt.Errorf("marshal Sig_structure: %w", err)
	}
	verifier, err := cose.NewVerifier(cose.AlgorithmES384, ecdsaKey)
	if err != nil {
		return nil, fmt.Errorf("create verifier: %w", err)
	}
	if err := verifier.Verify(sigStructure, signature); err != nil {
		return nil, fmt.Errorf("COSE signature verification failed: %w", err)
	}

	want, err := PublicKeyPEM(pub)
	if err != nil {
		return nil, err
	}
	if userData.PublicKey != want {
		return nil, ErrAttestationMismatch
	}
	return doc, nil
}

func verifyChain(cert *x509.Certificate, doc *AttestationDocument, roots *x509.CertPool) error {
	if roots == nil {
		roots = x509.NewCertPool()
		if !roots.AppendCertsFromPEM([]byte(awsNitroRootCA)) {
			return fmt.Errorf("failed to parse AWS Nitro root CA")
		}
	}

	intermediates := x509.NewCertPool()
	for _, der := range doc.CABundle {
		ca, err := x509.ParseCertificate(der)
		if err != nil {
			return fmt.Errorf("parse CA certificate: %w", err)
		}
		intermediates.AddCert(ca)
	}

	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	// Enclave certificates live for hours; check them at attestation time.
	if doc.Timestamp > 0 {
		opts.CurrentTime = time.UnixMilli(int64(doc.Timestamp))
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate chain validation failed: %w", err)
	}
	return nil
}

func splitSign1(coseBytes []byte) (protected, payload, signature []byte, err error) {
	var coseArray []any
	if err := cbor.Unmarshal(coseBytes, &coseArray); err != nil {
		return nil, nil, nil, fmt.Errorf("parse COSE array: %w", err)
	}
	if len(coseArray) != 4 {
		return nil, nil, nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}

	var ok bool
	if protected, ok = coseArray[0].([]byte); !ok {
		return nil, nil, nil, fmt.Errorf("invalid protected headers")
	}
	if payload, ok = coseArray[2].([]byte); !ok {
		return nil, nil, nil, fmt.Errorf("invalid payload in COSE structure")
	}
	if signature, ok = coseArray[3].([]byte); !ok {
		return nil, nil, nil, fmt.Errorf("invalid signature")
	}
	return protected, payload, signature, nil
}
