package p2p

import (
	"context"
	"fmt"
	"net"
	"time"
)

type PeerRole int

const (
	PeerRoleUnknown PeerRole = iota
	PeerRoleInbound
	PeerRoleOutbound
)

// PeerHandler reacts to messages a Peer's read loop decodes. Handler errors
// that indicate a protocol violation (bad tx, bad block, malformed query)
// cost the peer reputation; errors that just mean "I don't have that" do
// not.
type PeerHandler interface {
	// OnTx is called for a pushed transaction (consensus.EncodeTransactionFull bytes).
	OnTx(peer *Peer, txBytes []byte) error
	// OnBlock is called for a pushed block (consensus.EncodeBlock bytes).
	OnBlock(peer *Peer, blockBytes []byte) error
	// OnGetBlocks answers a sync range request.
	OnGetBlocks(peer *Peer, req GetBlocksPayload) (BlocksPayload, error)
	// OnBlocks is called for an unsolicited or requested blocks response.
	OnBlocks(peer *Peer, resp BlocksPayload) error
	// OnGetPeers answers a discovery request.
	OnGetPeers(peer *Peer) (PeersPayload, error)
	// OnPeers is called for a peers response.
	OnPeers(peer *Peer, resp PeersPayload) error
	// OnAnnounce is called when a peer advertises a new endpoint.
	OnAnnounce(peer *Peer, ann AnnouncePayload) error
	// OnGetCheckpoint answers a checkpoint exchange request.
	OnGetCheckpoint(peer *Peer, req GetCheckpointPayload) (CheckpointPayload, error)
	// OnCheckpoint is called for a checkpoint response or unsolicited echo.
	OnCheckpoint(peer *Peer, cp CheckpointPayload) error
}

// PeerConfig parameterizes one connection's transport: the network magic,
// shared authentication secret, and idle-read deadline.
type PeerConfig struct {
	Magic       uint32
	Secret      []byte
	IdleTimeout time.Duration
}

// Peer wraps one authenticated gossip connection.
type Peer struct {
	Conn     net.Conn
	Role     PeerRole
	Endpoint string
	Config   PeerConfig

	Rep Reputation
}

func NewPeer(conn net.Conn, role PeerRole, endpoint string, cfg PeerConfig) (*Peer, error) {
	if conn == nil {
		return nil, fmt.Errorf("p2p: peer: nil conn")
	}
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("p2p: peer: empty shared secret")
	}
	return &Peer{Conn: conn, Role: role, Endpoint: endpoint, Config: cfg}, nil
}

func (p *Peer) Send(command string, payload []byte) error {
	return WriteMessage(p.Conn, p.Config.Secret, p.Config.Magic, command, payload)
}

// Run drives the read loop until ctx is cancelled, the connection closes, or
// the peer is banned outright.
func (p *Peer) Run(ctx context.Context, h PeerHandler) error {
	if h == nil {
		return fmt.Errorf("p2p: peer: nil handler")
	}

	if ctx != nil {
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = p.Conn.Close()
			case <-done:
			}
		}()
		defer close(done)
	}

	for {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		if p.Config.IdleTimeout > 0 {
			_ = p.Conn.SetReadDeadline(time.Now().Add(p.Config.IdleTimeout))
		}
		msg, rerr := ReadMessage(p.Conn, p.Config.Secret, p.Config.Magic)
		if rerr != nil {
			now := time.Now()
			p.Rep.AddViolation(now, rerr.ReputationHit)
			if p.Rep.ShouldBan(now) {
				return fmt.Errorf("p2p: peer: banned (score=%d): %w", p.Rep.Score(now), rerr.Err)
			}
			if rerr.Disconnect {
				return rerr
			}
			continue
		}

		now := time.Now()
		if p.Rep.ShouldThrottle(now) {
			time.Sleep(ThrottleDelay)
		}

		if err := p.dispatch(now, msg, h); err != nil {
			return err
		}
	}
}

func (p *Peer) dispatch(now time.Time, msg *Message, h PeerHandler) error {
	switch msg.Command {
	case CmdPing:
		return p.Send(CmdPong, msg.Payload)
	case CmdPong:
		return nil

	case CmdTx:
		if err := h.OnTx(p, msg.Payload); err != nil {
			p.Rep.AddViolation(now, 5)
		}
		return nil

	case CmdBlock:
		if err := h.OnBlock(p, msg.Payload); err != nil {
			p.Rep.AddViolation(now, 100)
			if p.Rep.ShouldBan(now) {
				return fmt.Errorf("p2p: peer: invalid block (banned): %w", err)
			}
		}
		return nil

	case CmdGetBlocks:
		req, err := DecodeGetBlocksPayload(msg.Payload)
		if err != nil {
			p.Rep.AddViolation(now, 10)
			return nil
		}
		resp, err := h.OnGetBlocks(p, req)
		if err != nil {
			return nil
		}
		payload, err := EncodeBlocksPayload(resp)
		if err != nil {
			return nil
		}
		return p.Send(CmdBlocks, payload)

	case CmdBlocks:
		resp, err := DecodeBlocksPayload(msg.Payload)
		if err != nil {
			p.Rep.AddViolation(now, 10)
			return nil
		}
		return h.OnBlocks(p, resp)

	case CmdGetPeers:
		resp, err := h.OnGetPeers(p)
		if err != nil {
			return nil
		}
		payload, err := EncodePeersPayload(resp)
		if err != nil {
			return nil
		}
		return p.Send(CmdPeers, payload)

	case CmdPeers:
		resp, err := DecodePeersPayload(msg.Payload)
		if err != nil {
			p.Rep.AddViolation(now, 10)
			return nil
		}
		return h.OnPeers(p, resp)

	case CmdAnnounce:
		ann, err := DecodeAnnouncePayload(msg.Payload)
		if err != nil {
			p.Rep.AddViolation(now, 10)
			return nil
		}
		if err := h.OnAnnounce(p, ann); err != nil {
			p.Rep.AddViolation(now, 5)
		}
		return nil

	case CmdGetCheckpoint:
		req, err := DecodeGetCheckpointPayload(msg.Payload)
		if err != nil {
			p.Rep.AddViolation(now, 10)
			return nil
		}
		resp, err := h.OnGetCheckpoint(p, req)
		if err != nil {
			return nil
		}
		payload, err := EncodeCheckpointPayload(resp)
		if err != nil {
			return nil
		}
		return p.Send(CmdCheckpoint, payload)

	case CmdCheckpoint:
		cp, err := DecodeCheckpointPayload(msg.Payload)
		if err != nil {
			p.Rep.AddViolation(now, 10)
			return nil
		}
		if err := h.OnCheckpoint(p, cp); err != nil {
			p.Rep.AddViolation(now, 20)
		}
		return nil

	default:
		return nil
	}
}
