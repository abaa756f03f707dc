package crypto

import (
	"crypto/rand"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// secp256k1CurveOrder is N from SEC 2: the order of the secp256k1 base point.
var secp256k1CurveOrder, _ = new(big.Int).SetString(
	"FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)

var secp256k1HalfOrder = new(big.Int).Rsh(secp256k1CurveOrder, 1)

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	key *btcec.PrivateKey
}

// PublicKey wraps a secp256k1 public key in its 33-byte compressed form.
type PublicKey struct {
	key *btcec.PublicKey
}

// GeneratePrivateKey returns a fresh secp256k1 key pair.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes parses a 32-byte big-endian scalar into a private key.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, errors.New("crypto: private key must be 32 bytes")
	}
	key, pub := btcec.PrivKeyFromBytes(b)
	if pub == nil {
		return nil, errors.New("crypto: invalid private key bytes")
	}
	return &PrivateKey{key: key}, nil
}

// Bytes returns the 32-byte big-endian scalar.
func (k *PrivateKey) Bytes() []byte {
	return k.key.Serialize()
}

// PublicKey returns the corresponding public key.
func (k *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{key: k.key.PubKey()}
}

// SerializeCompressed returns the 33-byte compressed public key encoding.
func (k *PublicKey) SerializeCompressed() []byte {
	return k.key.SerializeCompressed()
}

// ParsePublicKey parses a compressed (33-byte) secp256k1 public key.
func ParsePublicKey(b []byte) (*PublicKey, error) {
	key, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse public key: %w", err)
	}
	return &PublicKey{key: key}, nil
}

// Sign produces a deterministic (RFC 6979) ECDSA signature over hash, which
// must be the 32-byte digest of the canonical signing payload. The resulting
// signature is always normalized to low-S form.
func (k *PrivateKey) Sign(hash [32]byte) []byte {
	sig := ecdsa.Sign(k.key, hash[:])
	return sig.Serialize()
}

// Verify checks a DER-encoded ECDSA signature over hash against pub, rejecting
// any signature whose S value is not in canonical low-S form even if the
// underlying curve math would otherwise accept it. This enforces signature
// malleability resistance independent of how the signature was produced.
func Verify(pub *PublicKey, hash [32]byte, sigDER []byte) bool {
	if !isLowS(sigDER) {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(sigDER)
	if err != nil {
		return false
	}
	return sig.Verify(hash[:], pub.key)
}

type derSignature struct {
	R *big.Int
	S *big.Int
}

// isLowS reports whether the DER-encoded signature's S component is
// canonical (S <= order/2). ecdsa.Sign always produces canonical
// signatures; this independently re-derives S from the wire bytes so a
// signature crafted by a non-canonical signer is still rejected.
func isLowS(sigDER []byte) bool {
	var sig derSignature
	if _, err := asn1.Unmarshal(sigDER, &sig); err != nil {
		return false
	}
	if sig.S == nil || sig.S.Sign() <= 0 {
		return false
	}
	return sig.S.Cmp(secp256k1HalfOrder) <= 0
}

// Rand is exposed so callers (e.g. ephemeral nonce generation in tests) can
// use a single source of system randomness consistent with key generation.
var Rand = rand.Reader
