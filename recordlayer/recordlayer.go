// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

// Package recordlayer implements the orchestrating state machine of §4.6 /
// §4.7: RecordLayer owns one direction (read or write) of one DTLS
// connection endpoint, routing records through the epoch router, replay
// window, deferred queue, and cipher/MAC/compression contexts the caller
// injected at construction.
package recordlayer

import (
	"github.com/hrissan/dtlsrecord/deferred"
	"github.com/hrissan/dtlsrecord/record"
)

// RecordLayer is one direction at one endpoint (§3 "RecordLayer"). Not
// safe for concurrent use: §5 "single-threaded cooperative per RecordLayer
// instance, no internal locks".
type RecordLayer struct {
	opts Options

	isFirstRecord     bool
	negotiatedVersion uint16
	negotiatedMajor   byte
	maxFragLen        int
	inInit            bool

	// current is epoch 0's window state once data flows without protection,
	// or whatever epoch is presently installed; next tracks the replay
	// window for the as-yet-keyless epoch+1 while candidate records are
	// buffered (§3 "at most two live windows").
	current EpochState
	next    EpochState
	// unprocessedEpoch is the epoch the unprocessed queue is currently
	// buffering for; kept in lockstep with current.Epoch+1 so a queue left
	// over from a prior epoch transition is recognized as stale (§4.3).
	unprocessedEpoch uint16

	unprocessed *deferred.Queue // future-epoch records, buffered during in_init (§3, §4.6 step 8)
	processed   *deferred.Queue // decrypted-but-withheld records (renegotiation pause, §4.6 step 1)

	pending pendingWrite

	delivered *DeliveredRecord
	alertCode byte

	closed bool
}

// pendingWrite is the one behavior preserved from ssl3_write_pending
// (§9, SPEC_FULL §D.6): once the transport reports Retry, the layer holds
// the fully-built datagram and rejects any WriteRecords call that is not
// a RetryPendingWrite for that exact attempt, instead of silently
// encoding and sending something new over a write the caller never
// finished.
type pendingWrite struct {
	active   bool
	recType  byte
	datagram []byte
}

// DeliveredRecord is the upward "record view" of §6 (read_record /
// release_record): the payload a caller reads after GetMoreRecords
// succeeds. Payload aliases RecordLayer-owned storage and is invalidated
// by the next GetMoreRecords call.
type DeliveredRecord struct {
	Type    byte
	Epoch   uint16
	SeqNum  uint64
	Version uint16
	Payload []byte
}

// New constructs a RecordLayer from Options, validating it first (mirrors
// dtlscore's options.Validate-then-construct pattern). Every failure path
// here returns before allocating the deferred queues, so there is nothing
// for a caller to leak (§9 open question / SPEC_FULL §D.5): unlike
// dtls_new_record_layer, construction either fully succeeds or allocates
// nothing.
func New(opts Options) (*RecordLayer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	rl := &RecordLayer{
		opts:              opts,
		isFirstRecord:     true,
		negotiatedVersion: opts.ProtocolVersion,
		negotiatedMajor:   byte(record.VersionDTLS1_2 >> 8),
		maxFragLen:        opts.MaxFragmentLen,
		current:           opts.InitialEpochState,
		unprocessedEpoch:  opts.InitialEpoch + 1,
		unprocessed:       deferred.New(),
		processed:         deferred.New(),
	}
	rl.current.Epoch = opts.InitialEpoch
	return rl, nil
}

func (rl *RecordLayer) SetInInit(v bool)          { rl.inInit = v }
func (rl *RecordLayer) SetProtocolVersion(v uint16) {
	rl.negotiatedVersion = v
}
func (rl *RecordLayer) SetMaxFragLen(n int) { rl.maxFragLen = n }
func (rl *RecordLayer) GetCompression() bool { return rl.current.Compression != nil }
func (rl *RecordLayer) GetAlertCode() byte   { return rl.alertCode }
func (rl *RecordLayer) CurrentEpoch() uint16 { return rl.current.Epoch }

// InstallNextEpoch promotes state to be the new current epoch, resetting
// its replay window (§3 "reset when a new epoch is installed") and
// advancing the unprocessed-queue target so the next EpochCheck round
// recognizes records for the epoch after this one. Records already
// sitting in the unprocessed queue for this epoch are decrypted now that
// its keys exist and pushed onto the processed queue, so GetMoreRecords
// delivers them on subsequent calls (Scenario 3: "the buffered record is
// delivered"). A buffered record that fails to decrypt under the new
// epoch's keys is dropped the same way a live one would be (§4.6 steps
// 9-11); it never reaches the processed queue.
func (rl *RecordLayer) InstallNextEpoch(state EpochState) {
	state.window.Reset()
	rl.current = state
	rl.current.Epoch = state.Epoch
	rl.unprocessedEpoch = state.Epoch + 1
	rl.next = EpochState{}

	for {
		item, ok := rl.unprocessed.PopMin()
		if !ok {
			break
		}
		var hdr record.Header
		if _, err := hdr.Parse(item.Packet); err != nil {
			continue
		}
		plaintext, outcome, _ := rl.decryptBody(&rl.current, hdr)
		if outcome != OutcomeDelivered {
			continue
		}
		rl.current.window.Update(hdr.SeqNum)
		packed := make([]byte, 0, 1+len(plaintext))
		packed = append(packed, hdr.Type)
		packed = append(packed, plaintext...)
		rl.processed.Insert(item.Priority, packed)
	}
}

// Close tears the layer down, draining the unprocessed queue to Successor
// in ascending (epoch, seq) order (§8 P7, SPEC_FULL §E "deferred-queue
// draining target"), then draining the processed queue to Successor the
// same way; processed entries are written as the record type byte
// followed by the decrypted payload, not as the original wire datagram.
// Only the unprocessed drain's error is returned. Calling Close twice is a
// programmer error, matching
// the teacher's "closed connections are not touched twice" discipline
// (dtlscore/connection.go).
func (rl *RecordLayer) Close() error {
	if rl.closed {
		panic("recordlayer: Close called twice")
	}
	rl.closed = true
	err := rl.unprocessed.DrainTo(func(packet []byte) error {
		_, werr := rl.opts.Successor.WriteDatagram(packet)
		return werr
	})
	_ = rl.processed.DrainTo(func(packet []byte) error {
		_, werr := rl.opts.Successor.WriteDatagram(packet)
		return werr
	})
	return err
}
