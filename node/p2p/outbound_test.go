package p2p

import "testing"

func TestOutboundQueueDropsLowestPriorityWhenFull(t *testing.T) {
	q := NewOutboundQueue(2)
	q.Push(OutboundItem{Priority: PriorityDiscovery, Command: CmdAnnounce})
	q.Push(OutboundItem{Priority: PriorityGossip, Command: CmdTx})
	if !q.Push(OutboundItem{Priority: PriorityGossip, Command: CmdBlock}) {
		t.Fatalf("expected the higher-priority item to evict the discovery item")
	}

	drained := q.Drain()
	if len(drained) != 2 {
		t.Fatalf("drained %d items, want 2", len(drained))
	}
	for _, item := range drained {
		if item.Command == CmdAnnounce {
			t.Fatalf("discovery item should have been dropped")
		}
	}
}

func TestOutboundQueueDropsIncomingWhenNotHigherPriority(t *testing.T) {
	q := NewOutboundQueue(1)
	q.Push(OutboundItem{Priority: PriorityGossip, Command: CmdTx})
	if q.Push(OutboundItem{Priority: PriorityDiscovery, Command: CmdAnnounce}) {
		t.Fatalf("a lower-priority arrival should be the one dropped")
	}
	drained := q.Drain()
	if len(drained) != 1 || drained[0].Command != CmdTx {
		t.Fatalf("unexpected queue contents: %+v", drained)
	}
}

func TestOutboundQueueDrainOrdersHighestPriorityFirst(t *testing.T) {
	q := NewOutboundQueue(3)
	q.Push(OutboundItem{Priority: PriorityDiscovery, Command: CmdAnnounce})
	q.Push(OutboundItem{Priority: PriorityGossip, Command: CmdTx})
	q.Push(OutboundItem{Priority: PriorityDiscovery, Command: CmdGetPeers})

	drained := q.Drain()
	if drained[0].Priority != PriorityGossip {
		t.Fatalf("expected gossip item first, got %+v", drained[0])
	}
	if q.Len() != 0 {
		t.Fatalf("drain should empty the queue")
	}
}
