// Package crypto provides the consensus hash and signature primitives: SHA-256
// commitments and secp256k1 ECDSA keys, signing, and verification.
package crypto

import "crypto/sha256"

// SHA256 returns the single-round SHA-256 digest of b. This is the only hash
// function consensus code may use for txid, block hash, Merkle nodes, and
// address checksums.
func SHA256(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// DoubleSHA256 returns SHA256(SHA256(b)), used for address checksums.
func DoubleSHA256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}
