package p2p

import (
	"fmt"
	"net"
	"strings"
	"sync"
)

// subnetKey groups an endpoint's host by IP /16 (IPv4) or the leading 32
// bits (IPv6), the granularity spec.md's eclipse-resistance rule uses.
func subnetKey(host string) string {
	ip := net.ParseIP(host)
	if ip == nil {
		return host
	}
	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.0.0/16", v4[0], v4[1])
	}
	v6 := ip.To16()
	return fmt.Sprintf("%02x%02x:%02x%02x::/32", v6[0], v6[1], v6[2], v6[3])
}

func hostOf(endpoint string) string {
	host, _, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint
	}
	return host
}

// ASNLookup resolves a host to an autonomous system identifier. Unknown
// hosts returning ok=false are exempt from ASN diversity (but not subnet
// diversity), matching spec.md's "(if known) ASN" qualifier.
type ASNLookup func(host string) (asn string, ok bool)

// PeerSet is a bounded, diversity-enforcing peer pool. At most maxPerSubnet
// peers may share an IP /16 and at most maxPerASN may share an ASN, so a
// single operator controlling many addresses in one block or provider
// cannot fill the set and eclipse the node's view of the network.
type PeerSet struct {
	mu sync.Mutex

	maxPeers     int
	maxPerSubnet int
	maxPerASN    int
	asnLookup    ASNLookup

	peers        map[string]*Peer
	subnetCounts map[string]int
	asnCounts    map[string]int
}

func NewPeerSet(maxPeers, maxPerSubnet, maxPerASN int, asnLookup ASNLookup) *PeerSet {
	return &PeerSet{
		maxPeers:     maxPeers,
		maxPerSubnet: maxPerSubnet,
		maxPerASN:    maxPerASN,
		asnLookup:    asnLookup,
		peers:        make(map[string]*Peer),
		subnetCounts: make(map[string]int),
		asnCounts:    make(map[string]int),
	}
}

// Admit adds candidate if capacity and diversity limits allow it, returning
// an error naming the limit that rejected it otherwise.
func (s *PeerSet) Admit(candidate *Peer) error {
	if candidate == nil {
		return fmt.Errorf("p2p: peerset: nil candidate")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.peers[candidate.Endpoint]; exists {
		return fmt.Errorf("p2p: peerset: %s already admitted", candidate.Endpoint)
	}
	if len(s.peers) >= s.maxPeers {
		return fmt.Errorf("p2p: peerset: full (%d/%d)", len(s.peers), s.maxPeers)
	}

	subnet := subnetKey(hostOf(candidate.Endpoint))
	if s.maxPerSubnet > 0 && s.subnetCounts[subnet] >= s.maxPerSubnet {
		return fmt.Errorf("p2p: peerset: subnet %s at capacity (%d)", subnet, s.maxPerSubnet)
	}

	var asn string
	var hasASN bool
	if s.asnLookup != nil {
		asn, hasASN = s.asnLookup(hostOf(candidate.Endpoint))
		if hasASN && s.maxPerASN > 0 && s.asnCounts[asn] >= s.maxPerASN {
			return fmt.Errorf("p2p: peerset: asn %s at capacity (%d)", asn, s.maxPerASN)
		}
	}

	s.peers[candidate.Endpoint] = candidate
	s.subnetCounts[subnet]++
	if hasASN {
		s.asnCounts[asn]++
	}
	return nil
}

// Remove evicts a peer (ban, disconnect, or periodic refresh), releasing its
// diversity-accounting slot.
func (s *PeerSet) Remove(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	peer, ok := s.peers[endpoint]
	if !ok {
		return
	}
	delete(s.peers, endpoint)

	subnet := subnetKey(hostOf(endpoint))
	if s.subnetCounts[subnet] > 0 {
		s.subnetCounts[subnet]--
	}
	if s.asnLookup != nil {
		if asn, ok := s.asnLookup(hostOf(endpoint)); ok && s.asnCounts[asn] > 0 {
			s.asnCounts[asn]--
		}
	}
}

func (s *PeerSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Snapshot returns the currently admitted peers. Callers must not mutate
// the returned slice's Peer pointers' membership-relevant fields.
func (s *PeerSet) Snapshot() []*Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

// Diverse reports whether at least minDistinctSubnets distinct /16s are
// represented, the precondition spec.md sets for trusting discovery
// results: "require a quorum of agreeing peers" only means something once
// those peers are not all the same operator.
func (s *PeerSet) Diverse(minDistinctSubnets int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subnetCounts) >= minDistinctSubnets
}

func (s *PeerSet) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	eps := make([]string, 0, len(s.peers))
	for ep := range s.peers {
		eps = append(eps, ep)
	}
	return strings.Join(eps, ",")
}
