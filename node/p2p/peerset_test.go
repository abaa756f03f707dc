package p2p

import (
	"net"
	"testing"
)

func fakePeer(t *testing.T, endpoint string) *Peer {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	p, err := NewPeer(a, PeerRoleInbound, endpoint, PeerConfig{Magic: 1, Secret: []byte("secret")})
	if err != nil {
		t.Fatalf("new peer: %v", err)
	}
	return p
}

func TestPeerSetAdmitsDistinctSubnets(t *testing.T) {
	s := NewPeerSet(8, 1, 0, nil)
	if err := s.Admit(fakePeer(t, "10.0.0.1:9000")); err != nil {
		t.Fatalf("admit 1: %v", err)
	}
	if err := s.Admit(fakePeer(t, "10.0.1.1:9000")); err != nil {
		t.Fatalf("admit 2: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}
}

func TestPeerSetRejectsSubnetOverflow(t *testing.T) {
	s := NewPeerSet(8, 1, 0, nil)
	if err := s.Admit(fakePeer(t, "10.0.0.1:9000")); err != nil {
		t.Fatalf("admit 1: %v", err)
	}
	if err := s.Admit(fakePeer(t, "10.0.0.2:9000")); err == nil {
		t.Fatalf("expected second peer on the same /16 to be rejected")
	}
}

func TestPeerSetRejectsASNOverflow(t *testing.T) {
	lookup := func(host string) (string, bool) { return "AS-EXAMPLE", true }
	s := NewPeerSet(8, 8, 1, lookup)
	if err := s.Admit(fakePeer(t, "10.0.0.1:9000")); err != nil {
		t.Fatalf("admit 1: %v", err)
	}
	if err := s.Admit(fakePeer(t, "172.16.0.1:9000")); err == nil {
		t.Fatalf("expected second peer in the same ASN to be rejected")
	}
}

func TestPeerSetRejectsDuplicateEndpoint(t *testing.T) {
	s := NewPeerSet(8, 8, 0, nil)
	if err := s.Admit(fakePeer(t, "10.0.0.1:9000")); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := s.Admit(fakePeer(t, "10.0.0.1:9000")); err == nil {
		t.Fatalf("expected duplicate endpoint rejection")
	}
}

func TestPeerSetRejectsWhenFull(t *testing.T) {
	s := NewPeerSet(1, 8, 0, nil)
	if err := s.Admit(fakePeer(t, "10.0.0.1:9000")); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := s.Admit(fakePeer(t, "10.0.1.1:9000")); err == nil {
		t.Fatalf("expected the set to reject once full")
	}
}

func TestPeerSetRemoveFreesSubnetSlot(t *testing.T) {
	s := NewPeerSet(8, 1, 0, nil)
	if err := s.Admit(fakePeer(t, "10.0.0.1:9000")); err != nil {
		t.Fatalf("admit: %v", err)
	}
	s.Remove("10.0.0.1:9000")
	if err := s.Admit(fakePeer(t, "10.0.0.2:9000")); err != nil {
		t.Fatalf("expected slot to be freed after remove: %v", err)
	}
}

func TestPeerSetDiverseRequiresDistinctSubnets(t *testing.T) {
	s := NewPeerSet(8, 8, 0, nil)
	_ = s.Admit(fakePeer(t, "10.0.0.1:9000"))
	if s.Diverse(2) {
		t.Fatalf("one subnet should not satisfy a 2-subnet diversity requirement")
	}
	_ = s.Admit(fakePeer(t, "172.16.0.1:9000"))
	if !s.Diverse(2) {
		t.Fatalf("two distinct subnets should satisfy a 2-subnet diversity requirement")
	}
}
