// Package drc implements Dithers Relay Chat, a minimal message relay for
// real-time chat.
//
// Clients connect over TCP and exchange length-delimited frames. Every frame a
// client sends is forwarded to all other connected clients. There are no
// rooms, no history and no authentication: the relay is one flat broadcast
// domain.
//
// # Quick Start
//
//	import "github.com/luciancaetano/drc/server"
//
//	cfg := server.DefaultConfig() // 0.0.0.0:6969
//	srv, err := server.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err) // wraps drc.ErrBindFailure
//	}
//	defer srv.Stop(context.Background())
//
// The client package dials a relay and speaks the same protocol:
//
//	conn, err := client.Dial(ctx, "127.0.0.1:6969", "alice")
//	conn.Send("hello")
//	msg, err := conn.Receive() // msg.String() == "bob: hi"
//
// # Protocol Format
//
// Each frame is a 4-byte big-endian payload length followed by the payload:
//
//	[4 bytes: length (uint32, big-endian)][N bytes: payload]
//
// The payload is the sender's tag, one 0x00 byte, then the message body:
//
//	alice\x00hello
//
// The relay splits on the first 0x00 only, so the body may contain more.
// The tag is whatever the client claims; the relay identifies connections
// by their remote address and never checks the tag against it.
//
// Frames without a 0x00 delimiter disconnect the sender. Messages with an
// empty tag or a blank body are dropped silently. A frame with a zero
// length ends the sender's session.
//
// Maximum payload: 10MB.
//
// # Delivery
//
//   - A sender never receives its own message.
//   - Relayed frames are byte-for-byte the frames the sender wrote.
//   - All recipients see messages in the same relative order.
//   - Each client has a bounded outbound queue (256 frames by default). When
//     it is full the relay waits up to EnqueueTimeout (1s by default) for
//     room. A client whose queue stays full is disconnected as a slow
//     consumer once the frames already queued for it have been flushed.
//   - Delivery to clients that connect later is never attempted.
//
// # WebSocket Bridge
//
// With server.Config.HTTPAddr set, browsers can join the same relay over
// WebSocket at /ws. Each binary message carries exactly one frame in the
// format above. Text messages are treated as malformed. The same listener serves Prometheus metrics at /metrics and
// a JSON health check at /healthz.
//
// # Rate Limiting
//
// Inbound frames can be limited per client with a token bucket:
//
//	cfg.RateLimitConfig = server.DefaultRateLimitConfig() // 100 frames/s, burst 200
//
// A client exceeding its limit is disconnected.
package drc
