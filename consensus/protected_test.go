package consensus

import "testing"

func TestProtectedPolicyUnregisteredAddressAlwaysAuthorized(t *testing.T) {
	p := NewProtectedPolicy(nil)
	if p.IsProtected("alice") {
		t.Fatalf("unregistered address must not be protected")
	}
	if !p.Authorized("alice", TxTransfer) {
		t.Fatalf("unregistered address must be authorized for any tx_type")
	}
}

func TestProtectedPolicyRestrictsRegisteredAddress(t *testing.T) {
	p := NewProtectedPolicy(map[Address][]TxType{
		"reserve": {TxAirdrop, TxRefund},
	})
	if !p.IsProtected("reserve") {
		t.Fatalf("registered address must be protected")
	}
	if !p.Authorized("reserve", TxAirdrop) {
		t.Fatalf("reserve should be authorized for airdrop")
	}
	if p.Authorized("reserve", TxTransfer) {
		t.Fatalf("reserve should not be authorized for transfer")
	}
}
