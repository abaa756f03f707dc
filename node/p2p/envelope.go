package p2p

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"unicode"
)

const (
	// TransportPrefixBytes is the fixed header length ahead of the payload:
	// magic(4) + command(12) + payload_length(4) + hmac_tag(32).
	TransportPrefixBytes = 52
	CommandBytes         = 12
	tagBytes             = 32
)

// Message is one framed, authenticated gossip message.
type Message struct {
	Magic   uint32
	Command string
	Payload []byte
}

// ReadError conveys how a peer loop should treat a malformed message: drop
// it and keep the connection, or disconnect outright, plus the reputation
// penalty to apply either way.
type ReadError struct {
	Err           error
	ReputationHit int
	Disconnect    bool
}

func (e *ReadError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func authTag(secret []byte, magic uint32, command string, payload []byte) [tagBytes]byte {
	mac := hmac.New(sha256.New, secret)
	var magicBuf [4]byte
	binary.BigEndian.PutUint32(magicBuf[:], magic)
	mac.Write(magicBuf[:])
	mac.Write([]byte(command))
	mac.Write(payload)
	var out [tagBytes]byte
	copy(out[:], mac.Sum(nil))
	return out
}

func encodeCommand(cmd string) ([CommandBytes]byte, error) {
	var out [CommandBytes]byte
	if cmd == "" {
		return out, fmt.Errorf("p2p: empty command")
	}
	if len(cmd) > CommandBytes {
		return out, fmt.Errorf("p2p: command too long")
	}
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		if c >= 0x80 || c == 0x00 || !unicode.IsPrint(rune(c)) {
			return out, fmt.Errorf("p2p: command contains non-printable ASCII")
		}
		out[i] = c
	}
	return out, nil
}

func decodeCommand(b [CommandBytes]byte) (string, error) {
	n := CommandBytes
	for i := 0; i < CommandBytes; i++ {
		if b[i] == 0x00 {
			n = i
			break
		}
	}
	for i := n; i < CommandBytes; i++ {
		if b[i] != 0x00 {
			return "", fmt.Errorf("p2p: command not NUL-right-padded")
		}
	}
	cmd := string(b[:n])
	if cmd == "" {
		return "", fmt.Errorf("p2p: empty command")
	}
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		if c >= 0x80 || c == 0x00 || !unicode.IsPrint(rune(c)) {
			return "", fmt.Errorf("p2p: command contains non-printable ASCII")
		}
	}
	return cmd, nil
}

// WriteMessage frames and authenticates one message with the shared peer
// secret, then writes it to w.
func WriteMessage(w io.Writer, secret []byte, magic uint32, command string, payload []byte) error {
	if len(secret) == 0 {
		return fmt.Errorf("p2p: empty peer secret")
	}
	cmd12, err := encodeCommand(command)
	if err != nil {
		return err
	}
	if uint64(len(payload)) > MaxRelayMsgBytes {
		return fmt.Errorf("p2p: payload too large")
	}
	tag := authTag(secret, magic, command, payload)

	var hdr [TransportPrefixBytes]byte
	binary.BigEndian.PutUint32(hdr[0:4], magic)
	copy(hdr[4:16], cmd12[:])
	binary.LittleEndian.PutUint32(hdr[16:20], uint32(len(payload)))
	copy(hdr[20:52], tag[:])

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err = w.Write(payload)
	return err
}

// ReadMessage reads and authenticates exactly one message from r.
//
// Policy: magic mismatch disconnects without penalty (wrong network, not an
// attack); oversize payload_length disconnects immediately; a bad HMAC tag
// drops the message and hits reputation but keeps the connection open;
// truncation disconnects and hits reputation harder.
func ReadMessage(r io.Reader, secret []byte, expectedMagic uint32) (*Message, *ReadError) {
	if len(secret) == 0 {
		return nil, &ReadError{Err: fmt.Errorf("p2p: empty peer secret"), Disconnect: true}
	}

	var hdr [TransportPrefixBytes]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, &ReadError{Err: err, Disconnect: true}
	}

	magic := binary.BigEndian.Uint32(hdr[0:4])
	if magic != expectedMagic {
		return nil, &ReadError{Err: fmt.Errorf("p2p: magic mismatch"), Disconnect: true}
	}

	var cmdBytes [CommandBytes]byte
	copy(cmdBytes[:], hdr[4:16])
	cmd, err := decodeCommand(cmdBytes)
	if err != nil {
		return nil, &ReadError{Err: err, ReputationHit: 10}
	}

	payloadLen := binary.LittleEndian.Uint32(hdr[16:20])
	if payloadLen > MaxRelayMsgBytes {
		return nil, &ReadError{Err: fmt.Errorf("p2p: payload_length exceeds MAX_RELAY_MSG_BYTES"), Disconnect: true}
	}

	var expectedTag [tagBytes]byte
	copy(expectedTag[:], hdr[20:52])

	payload := make([]byte, int(payloadLen))
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, &ReadError{Err: err, ReputationHit: 20, Disconnect: true}
		}
	}

	computedTag := authTag(secret, magic, cmd, payload)
	if !hmac.Equal(expectedTag[:], computedTag[:]) {
		return nil, &ReadError{Err: fmt.Errorf("p2p: hmac tag mismatch"), ReputationHit: 10}
	}
	return &Message{Magic: magic, Command: cmd, Payload: payload}, nil
}
