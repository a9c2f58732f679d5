// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

// recordecho is a minimal demonstration binary for the record layer: a
// server side that installs an AES-GCM epoch and echoes back whatever
// application-data payload it receives, and a client side that installs
// the same epoch and sends one line per stdin line, printing the echo.
// It exercises the public API end to end over real UDP sockets, the way
// the teacher's cmd/ binaries exercise dtlscore over net.UDPConn.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/hrissan/dtlsrecord/cipher"
	"github.com/hrissan/dtlsrecord/dtlsrand"
	"github.com/hrissan/dtlsrecord/record"
	"github.com/hrissan/dtlsrecord/recordlayer"
	"github.com/hrissan/dtlsrecord/transport"
	"github.com/hrissan/dtlsrecord/transport/sockets"
)

// echoEpoch derives a single demonstration AES-GCM epoch. Both ends call
// this with a fixed PSK-like key so the exchange is decipherable without a
// handshake, since recordecho only exercises the record layer.
func echoEpoch() recordlayer.EpochState {
	rnd := dtlsrand.FixedRand()
	key := make([]byte, 16)
	rnd.Read(key)
	fixedIV := make([]byte, 12)
	rnd.Read(fixedIV)
	return recordlayer.EpochState{
		Epoch:        1,
		Cipher:       cipher.NewAESGCMSuite(key),
		FixedWriteIV: fixedIV,
		FixedReadIV:  fixedIV,
	}
}

func main() {
	listenAddr := flag.String("listen", "", "address to listen on, e.g. 127.0.0.1:4433")
	dialAddr := flag.String("dial", "", "address to dial, e.g. 127.0.0.1:4433")
	flag.Parse()

	switch {
	case *listenAddr != "":
		runServer(*listenAddr)
	case *dialAddr != "":
		runClient(*dialAddr)
	default:
		fmt.Fprintln(os.Stderr, "usage: recordecho -listen addr | -dial addr")
		os.Exit(2)
	}
}

// peerTransport adapts an unconnected *net.UDPConn into transport.Reader
// and transport.Writer, learning its correspondent's address from the
// first datagram it reads. transport.UDPTransport assumes an
// already-connected socket (the client's shape); a listening server
// socket needs this instead since it has no fixed remote until one
// arrives.
type peerTransport struct {
	conn *net.UDPConn
	peer *net.UDPAddr
}

func (p *peerTransport) ReadDatagram(buf []byte) (int, transport.Result, error) {
	n, addr, err := p.conn.ReadFromUDP(buf)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return 0, transport.Retry, nil
		}
		return 0, transport.Fatal, err
	}
	p.peer = addr
	return n, transport.Ok, nil
}

func (p *peerTransport) WriteDatagram(datagram []byte) (transport.Result, error) {
	if p.peer == nil {
		return transport.Retry, nil
	}
	if _, err := p.conn.WriteToUDP(datagram, p.peer); err != nil {
		return transport.Fatal, err
	}
	return transport.Ok, nil
}

func (p *peerTransport) ReliableOrdered() bool { return false }

func runServer(addr string) {
	conn := sockets.OpenSocketMust(addr)
	defer conn.Close()

	pt := &peerTransport{conn: conn}
	opts := recordlayer.DefaultOptions()
	opts.Role = recordlayer.RoleServer
	opts.Reader = pt
	opts.Writer = pt
	opts.Successor = discardWriter{}
	rl, err := recordlayer.New(opts)
	if err != nil {
		log.Fatalf("recordecho: New: %v", err)
	}
	rl.InstallNextEpoch(echoEpoch())

	log.Printf("recordecho: server listening on %s", addr)
	for {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		outcome, err := rl.GetMoreRecords()
		switch outcome {
		case recordlayer.OutcomeDelivered:
			rec := rl.ReadRecord()
			log.Printf("recordecho: server got %q, echoing", rec.Payload)
			if _, werr := rl.WriteRecords(recordlayer.WriteTemplate{
				Type:    record.TypeApplicationData,
				Version: record.VersionDTLS1_2,
				Payload: rec.Payload,
			}); werr != nil {
				log.Printf("recordecho: echo write failed: %v", werr)
			}
			rl.ReleaseRecord()
		case recordlayer.OutcomeFatal:
			log.Fatalf("recordecho: fatal alert %d: %v", rl.GetAlertCode(), err)
		case recordlayer.OutcomeRetry, recordlayer.OutcomeNoRecord:
			// keep polling
		}
	}
}

func runClient(addr string) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		log.Fatalf("recordecho: resolve %s: %v", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		log.Fatalf("recordecho: dial %s: %v", addr, err)
	}
	defer conn.Close()

	ut := transport.NewUDPTransport(conn)
	opts := recordlayer.DefaultOptions()
	opts.Role = recordlayer.RoleClient
	opts.Reader = ut
	opts.Writer = ut
	opts.Successor = discardWriter{}
	rl, err := recordlayer.New(opts)
	if err != nil {
		log.Fatalf("recordecho: New: %v", err)
	}
	rl.InstallNextEpoch(echoEpoch())

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Bytes()
		if _, err := rl.WriteRecords(recordlayer.WriteTemplate{
			Type:    record.TypeApplicationData,
			Version: record.VersionDTLS1_2,
			Payload: line,
		}); err != nil {
			log.Fatalf("recordecho: write failed: %v", err)
		}

		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		for {
			outcome, err := rl.GetMoreRecords()
			if outcome == recordlayer.OutcomeDelivered {
				rec := rl.ReadRecord()
				fmt.Printf("echo: %s\n", rec.Payload)
				rl.ReleaseRecord()
				break
			}
			if outcome == recordlayer.OutcomeFatal {
				log.Fatalf("recordecho: fatal alert %d: %v", rl.GetAlertCode(), err)
			}
			if outcome == recordlayer.OutcomeRetry {
				fmt.Println("echo: timed out waiting for reply")
				break
			}
		}
	}
}

type discardWriter struct{}

func (discardWriter) WriteDatagram(d []byte) (transport.Result, error) { return transport.Ok, nil }
