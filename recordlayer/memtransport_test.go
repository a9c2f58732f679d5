package recordlayer_test

import (
	"github.com/hrissan/dtlsrecord/transport"
)

// memTransport is a small in-memory datagram pipe used to drive
// RecordLayer pairs in tests without opening real sockets, in the spirit
// of the teacher's mirror-model test helpers (replay/window_test.go)
// rather than net.UDPConn plumbing.
type memTransport struct {
	inbox           chan []byte
	reliableOrdered bool
}

func newMemTransport(capacity int) *memTransport {
	return &memTransport{inbox: make(chan []byte, capacity)}
}

func (m *memTransport) ReadDatagram(buf []byte) (int, transport.Result, error) {
	select {
	case pkt := <-m.inbox:
		return copy(buf, pkt), transport.Ok, nil
	default:
		return 0, transport.Retry, nil
	}
}

func (m *memTransport) WriteDatagram(datagram []byte) (transport.Result, error) {
	m.inbox <- append([]byte(nil), datagram...)
	return transport.Ok, nil
}

func (m *memTransport) ReliableOrdered() bool { return m.reliableOrdered }

type discardWriter struct{}

func (discardWriter) WriteDatagram(d []byte) (transport.Result, error) { return transport.Ok, nil }

// flakyWriter reports Retry for its first N writes, then Ok, recording
// every datagram it was asked to send.
type flakyWriter struct {
	retriesLeft int
	sent        [][]byte
}

func (f *flakyWriter) WriteDatagram(d []byte) (transport.Result, error) {
	if f.retriesLeft > 0 {
		f.retriesLeft--
		return transport.Retry, nil
	}
	f.sent = append(f.sent, append([]byte(nil), d...))
	return transport.Ok, nil
}

// recordingWriter snoops every datagram handed to WriteRecords before
// forwarding it to next, so a test can inspect the raw wire bytes (e.g.
// the explicit IV) a live pipeline pair never exposes otherwise.
type recordingWriter struct {
	next transport.Writer
	sent [][]byte
}

func (r *recordingWriter) WriteDatagram(d []byte) (transport.Result, error) {
	r.sent = append(r.sent, append([]byte(nil), d...))
	return r.next.WriteDatagram(d)
}
