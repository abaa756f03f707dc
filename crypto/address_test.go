package crypto

import "testing"

func TestDeriveAddressRoundTrip(t *testing.T) {
	priv, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	addr := AddressOfPublicKey(Mainnet, priv.PublicKey())
	if err := ValidateAddress(Mainnet, addr); err != nil {
		t.Fatalf("expected valid address, got %v", err)
	}
}

func TestValidateAddressRejectsWrongNetwork(t *testing.T) {
	priv, _ := GeneratePrivateKey()
	addr := AddressOfPublicKey(Mainnet, priv.PublicKey())
	if err := ValidateAddress(Testnet, addr); err == nil {
		t.Fatalf("expected mainnet address to fail testnet validation")
	}
}

func TestValidateAddressRejectsChecksumTamper(t *testing.T) {
	priv, _ := GeneratePrivateKey()
	addr := AddressOfPublicKey(Mainnet, priv.PublicKey())
	tampered := addr[:len(addr)-1] + "x"
	if tampered == addr {
		t.Skip("tamper collided with original address")
	}
	if err := ValidateAddress(Mainnet, tampered); err == nil {
		t.Fatalf("expected tampered address to fail checksum validation")
	}
}

func TestValidateAddressAcceptsSentinels(t *testing.T) {
	if err := ValidateAddress(Mainnet, CoinbaseSentinel); err != nil {
		t.Fatalf("coinbase sentinel should validate: %v", err)
	}
	if err := ValidateAddress(Testnet, BurnSentinel); err != nil {
		t.Fatalf("burn sentinel should validate: %v", err)
	}
}

func TestValidateAddressRejectsGarbage(t *testing.T) {
	if err := ValidateAddress(Mainnet, "not-a-real-address!!"); err == nil {
		t.Fatalf("expected garbage address to fail")
	}
}
