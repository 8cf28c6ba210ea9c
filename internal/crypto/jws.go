// Package crypto signs and verifies manifests as detached RS256 JWS.
package crypto

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
)

const algRS256 = "RS256"

var (
	ErrSignatureMismatch = errors.New("jws signature does not verify")

	b64 = base64.RawURLEncoding
)

// JWS is the flattened JSON serialization of a signature over a manifest.
type JWS struct {
	Protected string `json:"protected"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

type jwsHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// signedDigest is the SHA-256 of the JWS signing input.
func (j JWS) signedDigest() []byte {
	sum := sha256.Sum256([]byte(j.Protected + "." + j.Payload))
	return sum[:]
}

// SignDetachedJWS signs payload with the RSA key in privateKeyPEM, which
// may be PKCS#1 or PKCS#8 encoded.
func SignDetachedJWS(payload, privateKeyPEM []byte) (JWS, error) {
	key, err := parseRSAPrivateKey(privateKeyPEM)
	if err != nil {
		return JWS{}, fmt.Errorf("signing key: %w", err)
	}
	header, err := json.Marshal(jwsHeader{Alg: algRS256, Typ: "JWT"})
	if err != nil {
		return JWS{}, err
	}
	j := JWS{
		Protected: b64.EncodeToString(header),
		Payload:   b64.EncodeToString(payload),
	}
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, j.signedDigest())
	if err != nil {
		return JWS{}, fmt.Errorf("sign: %w", err)
	}
	j.Signature = b64.EncodeToString(sig)
	return j, nil
}

// VerifyDetachedJWS checks that jws signs payload with the key of the PEM
// certificate certPEM.
func VerifyDetachedJWS(payload []byte, jws JWS, certPEM []byte) error {
	cert, err := ParseCertificate(certPEM)
	if err != nil {
		return err
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("certificate key is %T, want RSA", cert.PublicKey)
	}
	hb, err := b64.DecodeString(jws.Protected)
	if err != nil {
		return fmt.Errorf("decode protected header: %w", err)
	}
	var hdr jwsHeader
	if err := json.Unmarshal(hb, &hdr); err != nil {
		return fmt.Errorf("parse protected header: %w", err)
	}
	if hdr.Alg != algRS256 {
		return fmt.Errorf("unsupported jws alg %q", hdr.Alg)
	}
	embedded, err := b64.DecodeString(jws.Payload)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if !bytes.Equal(embedded, payload) {
		return fmt.Errorf("%w: payload differs", ErrSignatureMismatch)
	}
	sig, err := b64.DecodeString(jws.Signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, jws.signedDigest(), sig); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}
	return nil
}

func ParseCertificate(pemBytes []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("parse cert: no PEM block found")
	}
	return x509.ParseCertificate(block.Bytes)
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is %T, want RSA", key)
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
}
