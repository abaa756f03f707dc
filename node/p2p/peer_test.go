package p2p

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

type testHandler struct {
	txCalled atomic.Int32
}

func (h *testHandler) OnTx(_ *Peer, _ []byte) error   { h.txCalled.Add(1); return nil }
func (h *testHandler) OnBlock(_ *Peer, _ []byte) error { return nil }
func (h *testHandler) OnGetBlocks(_ *Peer, _ GetBlocksPayload) (BlocksPayload, error) {
	return BlocksPayload{Blocks: [][]byte{[]byte("block-payload")}}, nil
}
func (h *testHandler) OnBlocks(_ *Peer, _ BlocksPayload) error { return nil }
func (h *testHandler) OnGetPeers(_ *Peer) (PeersPayload, error) {
	return PeersPayload{Endpoints: []string{"10.0.0.1:9000"}}, nil
}
func (h *testHandler) OnPeers(_ *Peer, _ PeersPayload) error          { return nil }
func (h *testHandler) OnAnnounce(_ *Peer, _ AnnouncePayload) error    { return nil }
func (h *testHandler) OnGetCheckpoint(_ *Peer, _ GetCheckpointPayload) (CheckpointPayload, error) {
	return CheckpointPayload{Height: 7}, nil
}
func (h *testHandler) OnCheckpoint(_ *Peer, _ CheckpointPayload) error { return nil }

func TestPeerPingPongLoopback(t *testing.T) {
	magic := uint32(0xFEED0001)
	secret := []byte("shared-secret")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		defer c.Close()
		p, err := NewPeer(c, PeerRoleInbound, "server", PeerConfig{Magic: magic, Secret: secret})
		if err != nil {
			serverErr <- err
			return
		}
		go func() { time.Sleep(300 * time.Millisecond); cancel() }()
		serverErr <- p.Run(ctx, &testHandler{})
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	client, err := NewPeer(conn, PeerRoleOutbound, "client", PeerConfig{Magic: magic, Secret: secret})
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Send(CmdPing, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, rerr := ReadMessage(conn, secret, magic)
	if rerr != nil {
		t.Fatal(rerr)
	}
	if msg.Command != CmdPong || string(msg.Payload) != "hello" {
		t.Fatalf("expected pong echo, got %+v", msg)
	}

	<-serverErr
}

func TestPeerDispatchGetPeersRespondsWithPeers(t *testing.T) {
	magic := uint32(0xFEED0002)
	secret := []byte("shared-secret")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		defer c.Close()
		p, err := NewPeer(c, PeerRoleInbound, "server", PeerConfig{Magic: magic, Secret: secret})
		if err != nil {
			serverErr <- err
			return
		}
		go func() { time.Sleep(300 * time.Millisecond); cancel() }()
		serverErr <- p.Run(ctx, &testHandler{})
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := WriteMessage(conn, secret, magic, CmdGetPeers, nil); err != nil {
		t.Fatal(err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, rerr := ReadMessage(conn, secret, magic)
	if rerr != nil {
		t.Fatal(rerr)
	}
	if msg.Command != CmdPeers {
		t.Fatalf("expected peers response, got %q", msg.Command)
	}
	resp, err := DecodePeersPayload(msg.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Endpoints) != 1 || resp.Endpoints[0] != "10.0.0.1:9000" {
		t.Fatalf("unexpected peers response: %+v", resp)
	}

	<-serverErr
}
