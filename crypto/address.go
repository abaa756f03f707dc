package crypto

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // address hash160, not used for any security-sensitive hashing
)

// Network selects the address prefix byte, matching the "distinct mainnet vs
// testnet prefixes" requirement.
type Network byte

const (
	Mainnet Network = 0x1a
	Testnet Network = 0x6f
)

// String returns the canonical network name used in config and on-disk
// paths, or a hex fallback for an unrecognized prefix byte.
func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(n))
	}
}

const (
	hash160Len  = 20
	checksumLen = 4
)

// CoinbaseSentinel and BurnSentinel are the two reserved pseudo-sender
// addresses. They never round-trip through DecodeAddress (hash160 can't
// produce them) and are recognized by direct string comparison.
const (
	CoinbaseSentinel = "COINBASE"
	BurnSentinel     = "BURN"
)

// hash160 computes RIPEMD160(SHA256(b)), the address payload hash.
func hash160(b []byte) []byte {
	sha := SHA256(b)
	r := ripemd160.New()
	_, _ = r.Write(sha[:])
	return r.Sum(nil)
}

// DeriveAddress computes the base58check address for a compressed public key
// on the given network: prefix(1) || hash160(pubkey)(20) || checksum(4).
func DeriveAddress(net Network, pubCompressed []byte) string {
	payload := make([]byte, 0, 1+hash160Len)
	payload = append(payload, byte(net))
	payload = append(payload, hash160(pubCompressed)...)

	sum := DoubleSHA256(payload)
	full := append(payload, sum[:checksumLen]...)
	return base58.Encode(full)
}

// ValidateAddress checks that addr decodes to a well-formed payload for net:
// correct prefix, correct length, and a matching checksum. Reserved sentinel
// addresses are accepted separately by identity, not through this function.
func ValidateAddress(net Network, addr string) error {
	if addr == CoinbaseSentinel || addr == BurnSentinel {
		return nil
	}
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("crypto: address: invalid base58: %w", err)
	}
	if len(raw) != 1+hash160Len+checksumLen {
		return errors.New("crypto: address: wrong length")
	}
	if Network(raw[0]) != net {
		return errors.New("crypto: address: wrong network prefix")
	}
	payload := raw[:1+hash160Len]
	wantChecksum := raw[1+hash160Len:]
	sum := DoubleSHA256(payload)
	for i := 0; i < checksumLen; i++ {
		if sum[i] != wantChecksum[i] {
			return errors.New("crypto: address: checksum mismatch")
		}
	}
	return nil
}

// AddressOfPublicKey returns the address that a public key must hash to
// (the consensus identity check: sender == address_of(public_key)).
func AddressOfPublicKey(net Network, pub *PublicKey) string {
	return DeriveAddress(net, pub.SerializeCompressed())
}
