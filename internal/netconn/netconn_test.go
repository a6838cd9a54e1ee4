package netconn

import (
	"errors"
	"testing"
	"time"

	"github.com/rusty-dusty/doomnet-client/internal/transport"
	"github.com/rusty-dusty/doomnet-client/internal/wire"
)

func TestHandshakeHappyPath(t *testing.T) {
	client, server := transport.NewLoopbackPair("client", "server")
	serverAddr, _ := client.Resolve("server")
	clientAddr, _ := server.Resolve("client")

	c := Dial(client, serverAddr, "doomnet-1.0", wire.ConnectData{MaxPlayers: 8}, "tester")

	now := time.Now()
	if err := c.Poll(now); err != nil {
		t.Fatalf("unexpected poll error: %v", err)
	}

	_, payload, ok, err := server.Recv()
	if err != nil || !ok {
		t.Fatalf("expected server to receive SYN, ok=%v err=%v", ok, err)
	}
	r := wire.NewReader(payload)
	tagVal, _ := r.ReadU16()
	tag, _ := wire.UnpackTag(tagVal)
	if tag != wire.TagSyn {
		t.Fatalf("expected SYN, got tag %d", tag)
	}

	// Server accepts: reply with its own SYN.
	if err := server.Send(clientAddr, wire.EncodeSyn("doomnet-1.0", SupportedProtocols, wire.ConnectData{}, "server")); err != nil {
		t.Fatalf("server send: %v", err)
	}

	_, payload, ok, err = client.Recv()
	if err != nil || !ok {
		t.Fatalf("expected client to receive server SYN, ok=%v err=%v", ok, err)
	}
	rr := wire.NewReader(payload)
	tagVal, _ = rr.ReadU16()
	tag, reliable, _ := wire.PeekTag(payload)
	_ = tagVal
	if err := c.HandleMessage(tag, reliable, rr); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if c.State() != Connected {
		t.Fatalf("expected Connected, got %s", c.State())
	}
}

func TestHandshakeRejected(t *testing.T) {
	client, server := transport.NewLoopbackPair("client", "server")
	serverAddr, _ := client.Resolve("server")
	clientAddr, _ := server.Resolve("client")

	c := Dial(client, serverAddr, "doomnet-1.0", wire.ConnectData{}, "tester")
	_ = c.Poll(time.Now())

	_, _, ok, _ := server.Recv()
	if !ok {
		t.Fatalf("expected SYN at server")
	}
	if err := server.Send(clientAddr, wire.EncodeRejected("version mismatch")); err != nil {
		t.Fatalf("server send: %v", err)
	}

	_, payload, ok, _ := client.Recv()
	if !ok {
		t.Fatalf("expected REJECTED at client")
	}
	r := wire.NewReader(payload)
	r.ReadU16()
	tag, reliable, _ := wire.PeekTag(payload)
	err := c.HandleMessage(tag, reliable, r)
	if err == nil || !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if c.State() != Disconnected {
		t.Fatalf("expected Disconnected, got %s", c.State())
	}
	if c.RejectReason() != "version mismatch" {
		t.Fatalf("reject reason = %q", c.RejectReason())
	}
}

func TestConnectTimeout(t *testing.T) {
	client, _ := transport.NewLoopbackPair("client", "server")
	serverAddr, _ := client.Resolve("server")
	c := Dial(client, serverAddr, "doomnet-1.0", wire.ConnectData{}, "tester")

	start := time.Now()
	if err := c.Poll(start); err != nil {
		t.Fatalf("unexpected error on first poll: %v", err)
	}
	err := c.Poll(start.Add(connectTimeout + time.Second))
	if !errors.Is(err, ErrHandshakeTimeout) {
		t.Fatalf("expected ErrHandshakeTimeout, got %v", err)
	}
	if c.State() != Disconnected {
		t.Fatalf("expected Disconnected after timeout, got %s", c.State())
	}
}

func TestReliableLaunchIsAckedAndRetransmitted(t *testing.T) {
	client, server := transport.NewLoopbackPair("client", "server")
	serverAddr, _ := client.Resolve("server")
	clientAddr, _ := server.Resolve("client")

	c := Dial(client, serverAddr, "v", wire.ConnectData{}, "tester")
	c.state = Connected // skip handshake bookkeeping for this test

	var launched bool
	c.OnLaunch = func(numPlayers uint8) { launched = true }

	_ = server.Send(clientAddr, wire.EncodeLaunch(3, 2))
	_, payload, ok, _ := client.Recv()
	if !ok {
		t.Fatalf("expected LAUNCH at client")
	}
	r := wire.NewReader(payload)
	r.ReadU16()
	tag, reliable, _ := wire.PeekTag(payload)
	if err := c.HandleMessage(tag, reliable, r); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !launched {
		t.Fatalf("expected OnLaunch to fire")
	}

	_, ackPayload, ok, _ := server.Recv()
	if !ok {
		t.Fatalf("expected RELIABLE_ACK at server")
	}
	ar := wire.NewReader(ackPayload)
	ar.ReadU16()
	id, ok := wire.DecodeReliableAck(ar)
	if !ok || id != 3 {
		t.Fatalf("ack id = %d ok=%v, want 3", id, ok)
	}
}

func TestDisconnectHandshakeCompletesOnAck(t *testing.T) {
	client, server := transport.NewLoopbackPair("client", "server")
	serverAddr, _ := client.Resolve("server")
	clientAddr, _ := server.Resolve("client")

	c := Dial(client, serverAddr, "v", wire.ConnectData{}, "tester")
	c.state = Connected

	c.Disconnect()
	_, payload, ok, _ := server.Recv()
	if !ok {
		t.Fatalf("expected DISCONNECT at server")
	}
	r := wire.NewReader(payload)
	r.ReadU16()
	id, ok := wire.DecodeDisconnect(r)
	if !ok {
		t.Fatalf("malformed disconnect")
	}

	_ = server.Send(clientAddr, wire.EncodeReliableAck(id))
	_, ackPayload, ok, _ := client.Recv()
	if !ok {
		t.Fatalf("expected RELIABLE_ACK at client")
	}
	ar := wire.NewReader(ackPayload)
	ar.ReadU16()
	tag, reliable, _ := wire.PeekTag(ackPayload)
	if err := c.HandleMessage(tag, reliable, ar); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if c.State() != Disconnected {
		t.Fatalf("expected Disconnected after ack, got %s", c.State())
	}
}
