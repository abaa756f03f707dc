package node

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"ledgerforge.dev/node/consensus"
	"ledgerforge.dev/node/node/p2p"
)

// GossipHandler implements p2p.PeerHandler against an Engine: it decodes
// wire payloads, feeds them through the engine's validation/apply paths,
// and relays accepted items onward per spec.md §4.9's relay discipline
// (dedupe by txid/hash, never echo an item back to the peer that sent it).
type GossipHandler struct {
	engine *Engine
	peers  *p2p.PeerSet
	log    *logrus.Entry

	committee     CheckpointCommittee
	minPeerEchoes int

	mu         sync.Mutex
	seenTx     map[[32]byte]struct{}
	seenBlocks map[[32]byte]struct{}
	echoes     map[[32]byte]map[string]CheckpointClaim
}

func NewGossipHandler(engine *Engine, peers *p2p.PeerSet, committee CheckpointCommittee, minPeerEchoes int, log *logrus.Entry) *GossipHandler {
	return &GossipHandler{
		engine:        engine,
		peers:         peers,
		committee:     committee,
		minPeerEchoes: minPeerEchoes,
		log:           log,
		seenTx:        make(map[[32]byte]struct{}),
		seenBlocks:    make(map[[32]byte]struct{}),
		echoes:        make(map[[32]byte]map[string]CheckpointClaim),
	}
}

func (g *GossipHandler) relay(origin *p2p.Peer, command string, payload []byte) {
	for _, peer := range g.peers.Snapshot() {
		if peer == origin {
			continue
		}
		if err := peer.Send(command, payload); err != nil {
			g.log.WithError(err).WithField("peer", peer.Endpoint).Warn("gossip: relay send failed")
		}
	}
}

func (g *GossipHandler) OnTx(peer *p2p.Peer, txBytes []byte) error {
	tx, err := consensus.DecodeTransactionFull(txBytes)
	if err != nil {
		return fmt.Errorf("node: gossip: decode tx: %w", err)
	}

	g.mu.Lock()
	_, dup := g.seenTx[tx.Txid]
	g.seenTx[tx.Txid] = struct{}{}
	g.mu.Unlock()
	if dup {
		return nil
	}

	if err := g.engine.SubmitTransaction(tx); err != nil {
		return fmt.Errorf("node: gossip: submit tx: %w", err)
	}
	g.relay(peer, p2p.CmdTx, txBytes)
	return nil
}

func (g *GossipHandler) OnBlock(peer *p2p.Peer, blockBytes []byte) error {
	block, err := consensus.DecodeBlock(blockBytes)
	if err != nil {
		return fmt.Errorf("node: gossip: decode block: %w", err)
	}

	g.mu.Lock()
	_, dup := g.seenBlocks[block.Hash]
	g.seenBlocks[block.Hash] = struct{}{}
	g.mu.Unlock()
	if dup {
		return nil
	}

	if err := g.engine.ApplyBlock(block); err != nil {
		return fmt.Errorf("node: gossip: apply block: %w", err)
	}
	g.relay(peer, p2p.CmdBlock, blockBytes)
	return nil
}

func (g *GossipHandler) OnGetBlocks(peer *p2p.Peer, req p2p.GetBlocksPayload) (p2p.BlocksPayload, error) {
	limit := req.Limit
	if limit == 0 || limit > p2p.MaxBlocksPerRange {
		limit = p2p.MaxBlocksPerRange
	}

	var out [][]byte
	for height := req.SinceHeight + 1; uint32(len(out)) < limit; height++ {
		header, ok := g.engine.HeaderAtHeight(height)
		if !ok {
			break
		}
		hash := consensus.BlockHash(header)
		block, ok, err := g.engine.dbGetBlock(hash)
		if err != nil {
			return p2p.BlocksPayload{}, err
		}
		if !ok {
			break
		}
		encoded, err := consensus.EncodeBlock(block)
		if err != nil {
			return p2p.BlocksPayload{}, err
		}
		out = append(out, encoded)
	}
	return p2p.BlocksPayload{Blocks: out}, nil
}

func (g *GossipHandler) OnBlocks(peer *p2p.Peer, resp p2p.BlocksPayload) error {
	for _, raw := range resp.Blocks {
		block, err := consensus.DecodeBlock(raw)
		if err != nil {
			g.log.WithError(err).Warn("gossip: sync: undecodable block, skipping rest of batch")
			return nil
		}
		if err := g.engine.ApplyBlock(block); err != nil {
			g.log.WithError(err).WithField("peer", peer.Endpoint).Warn("gossip: sync: rejected block")
			return nil
		}
	}
	return nil
}

func (g *GossipHandler) OnGetPeers(peer *p2p.Peer) (p2p.PeersPayload, error) {
	var endpoints []string
	for _, other := range g.peers.Snapshot() {
		if other == peer {
			continue
		}
		endpoints = append(endpoints, other.Endpoint)
	}
	return p2p.PeersPayload{Endpoints: endpoints}, nil
}

func (g *GossipHandler) OnPeers(peer *p2p.Peer, resp p2p.PeersPayload) error {
	return nil
}

func (g *GossipHandler) OnAnnounce(peer *p2p.Peer, ann p2p.AnnouncePayload) error {
	return nil
}

func (g *GossipHandler) OnGetCheckpoint(peer *p2p.Peer, req p2p.GetCheckpointPayload) (p2p.CheckpointPayload, error) {
	height := g.engine.CheckpointHeight()
	header, ok := g.engine.HeaderAtHeight(height)
	if !ok {
		return p2p.CheckpointPayload{}, fmt.Errorf("node: gossip: no checkpoint known")
	}
	hash := consensus.BlockHash(header)
	work, ok := g.engine.CumulativeWorkAt(hash)
	if !ok {
		return p2p.CheckpointPayload{}, fmt.Errorf("node: gossip: checkpoint block not indexed")
	}
	return p2p.CheckpointPayload{Height: height, Hash: hash, CumulativeWork: work}, nil
}

// OnCheckpoint tallies independent peer echoes of the same claimed tuple
// and, once minPeerEchoes distinct peers have echoed it, attempts to adopt
// it. A claim from a single chatty peer repeating itself never reaches
// quorum because echoes are keyed by peer endpoint.
func (g *GossipHandler) OnCheckpoint(peer *p2p.Peer, cp p2p.CheckpointPayload) error {
	claim := CheckpointClaim{
		Height:         cp.Height,
		Hash:           cp.Hash,
		CumulativeWork: cp.CumulativeWork,
		StateRoot:      cp.StateRoot,
		Signatures:     cp.Signatures,
	}

	g.mu.Lock()
	if g.echoes[cp.Hash] == nil {
		g.echoes[cp.Hash] = make(map[string]CheckpointClaim)
	}
	g.echoes[cp.Hash][peer.Endpoint] = claim
	count := len(g.echoes[cp.Hash])
	g.mu.Unlock()

	if count < g.minPeerEchoes {
		return nil
	}
	if err := g.engine.AdoptCheckpoint(g.committee, claim, count, g.minPeerEchoes); err != nil {
		g.log.WithError(err).Warn("gossip: checkpoint adoption failed")
		return nil
	}
	return nil
}
