package recordlayer_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/hrissan/dtlsrecord/cipher"
	"github.com/hrissan/dtlsrecord/dtlsrand"
	"github.com/hrissan/dtlsrecord/record"
	"github.com/hrissan/dtlsrecord/recordlayer"
	"github.com/hrissan/dtlsrecord/transport"
)

func newPair(t *testing.T) (a, b *recordlayer.RecordLayer, pipe *memTransport) {
	t.Helper()
	pipe = newMemTransport(16)
	aOpts := recordlayer.DefaultOptions()
	aOpts.Writer = pipe
	aOpts.Reader = newMemTransport(1) // A never reads in these tests
	aOpts.Successor = discardWriter{}

	bOpts := recordlayer.DefaultOptions()
	bOpts.Reader = pipe
	bOpts.Writer = newMemTransport(1)
	bOpts.Successor = discardWriter{}

	var err error
	a, err = recordlayer.New(aOpts)
	if err != nil {
		t.Fatalf("New(a): %v", err)
	}
	b, err = recordlayer.New(bOpts)
	if err != nil {
		t.Fatalf("New(b): %v", err)
	}
	return a, b, pipe
}

// P5: round trip over cleartext epoch 0.
func TestRoundTripCleartext(t *testing.T) {
	a, b, _ := newPair(t)
	payload := []byte("hello dtls record layer")
	if _, err := a.WriteRecords(recordlayer.WriteTemplate{
		Type: record.TypeApplicationData, Version: record.VersionDTLS1_2, Payload: payload,
	}); err != nil {
		t.Fatalf("WriteRecords: %v", err)
	}
	outcome, err := b.GetMoreRecords()
	if err != nil || outcome != recordlayer.OutcomeDelivered {
		t.Fatalf("GetMoreRecords: outcome=%v err=%v", outcome, err)
	}
	got := b.ReadRecord()
	if got == nil || !bytes.Equal(got.Payload, payload) || got.Type != record.TypeApplicationData {
		t.Fatalf("delivered record mismatch: %+v", got)
	}
	b.ReleaseRecord()
}

// P5: round trip over an AES-GCM protected epoch.
func TestRoundTripAESGCM(t *testing.T) {
	a, b, _ := newPair(t)
	rnd := dtlsrand.FixedRand()
	key := make([]byte, 16)
	rnd.Read(key)
	fixedIV := make([]byte, 12)
	rnd.Read(fixedIV)

	es := func() recordlayer.EpochState {
		return recordlayer.EpochState{
			Epoch:        1,
			Cipher:       cipher.NewAESGCMSuite(key),
			FixedWriteIV: fixedIV,
			FixedReadIV:  fixedIV,
		}
	}
	a.InstallNextEpoch(es())
	b.InstallNextEpoch(es())

	payload := []byte("application data under AES-GCM")
	if _, err := a.WriteRecords(recordlayer.WriteTemplate{
		Type: record.TypeApplicationData, Version: record.VersionDTLS1_2, Payload: payload,
	}); err != nil {
		t.Fatalf("WriteRecords: %v", err)
	}
	outcome, err := b.GetMoreRecords()
	if err != nil || outcome != recordlayer.OutcomeDelivered {
		t.Fatalf("GetMoreRecords: outcome=%v err=%v", outcome, err)
	}
	got := b.ReadRecord()
	if got == nil || !bytes.Equal(got.Payload, payload) {
		t.Fatalf("delivered record mismatch: %+v", got)
	}
}

// CBC round trip through the full pipeline in both MAC orderings, with
// two records in the same epoch. The explicit IVs themselves are checked
// by TestCBCExplicitIVIsFreshPerRecord.
func TestRoundTripAESCBC(t *testing.T) {
	for _, etm := range []bool{false, true} {
		name := "MtE"
		if etm {
			name = "ETM"
		}
		t.Run(name, func(t *testing.T) {
			a, b, _ := newPair(t)
			rnd := dtlsrand.FixedRand()
			key := make([]byte, 16)
			rnd.Read(key)
			macKey := make([]byte, 32)
			rnd.Read(macKey)

			es := func() recordlayer.EpochState {
				return recordlayer.EpochState{
					Epoch:          1,
					Cipher:         cipher.NewAESCBCSuite(key),
					MAC:            cipher.HMACSHA256(macKey),
					EncryptThenMAC: etm,
				}
			}
			a.InstallNextEpoch(es())
			b.InstallNextEpoch(es())

			payloads := [][]byte{
				[]byte("first CBC record"),
				[]byte("second CBC record, same epoch"),
			}
			for _, p := range payloads {
				if _, err := a.WriteRecords(recordlayer.WriteTemplate{
					Type: record.TypeApplicationData, Version: record.VersionDTLS1_2, Payload: p,
				}); err != nil {
					t.Fatalf("WriteRecords: %v", err)
				}
				outcome, err := b.GetMoreRecords()
				if err != nil || outcome != recordlayer.OutcomeDelivered {
					t.Fatalf("GetMoreRecords: outcome=%v err=%v", outcome, err)
				}
				got := b.ReadRecord()
				if got == nil || !bytes.Equal(got.Payload, p) {
					t.Fatalf("delivered record mismatch: got %+v, want %q", got, p)
				}
				b.ReleaseRecord()
			}
		})
	}
}

// Same as TestRoundTripAESCBC but inspects the raw datagrams to confirm
// two records in the same epoch never carry the same explicit IV.
func TestCBCExplicitIVIsFreshPerRecord(t *testing.T) {
	pipe := newMemTransport(16)
	rec := &recordingWriter{next: pipe}
	aOpts := recordlayer.DefaultOptions()
	aOpts.Writer = rec
	aOpts.Reader = newMemTransport(1)
	aOpts.Successor = discardWriter{}
	a, err := recordlayer.New(aOpts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rnd := dtlsrand.FixedRand()
	key := make([]byte, 16)
	rnd.Read(key)
	a.InstallNextEpoch(recordlayer.EpochState{Epoch: 1, Cipher: cipher.NewAESCBCSuite(key)})

	for i := 0; i < 2; i++ {
		if _, err := a.WriteRecords(recordlayer.WriteTemplate{
			Type: record.TypeApplicationData, Version: record.VersionDTLS1_2, Payload: []byte("x"),
		}); err != nil {
			t.Fatalf("WriteRecords: %v", err)
		}
	}
	if len(rec.sent) != 2 {
		t.Fatalf("expected 2 sent datagrams, got %d", len(rec.sent))
	}
	ivLen := 16
	iv1 := rec.sent[0][record.HeaderSize : record.HeaderSize+ivLen]
	iv2 := rec.sent[1][record.HeaderSize : record.HeaderSize+ivLen]
	if bytes.Equal(iv1, iv2) {
		t.Fatalf("explicit IV reused across records: %x == %x", iv1, iv2)
	}
}

// Scenario 1 (replay rejection) exercised through the full pipeline, not
// just replay.Window directly.
func TestReplayRejectionThroughPipeline(t *testing.T) {
	_, b, pipe := newPair(t)
	datagram := record.WriteHeader(nil, record.TypeApplicationData, record.VersionDTLS1_2, 0, 5, 4)
	datagram = append(datagram, []byte("data")...)
	pipe.inbox <- append([]byte(nil), datagram...)

	outcome, err := b.GetMoreRecords()
	if err != nil || outcome != recordlayer.OutcomeDelivered {
		t.Fatalf("first delivery: outcome=%v err=%v", outcome, err)
	}
	b.ReleaseRecord()

	pipe.inbox <- append([]byte(nil), datagram...) // re-inject identical datagram
	outcome, err = b.GetMoreRecords()
	if err != nil || outcome != recordlayer.OutcomeNoRecord {
		t.Fatalf("replayed datagram should be silently dropped: outcome=%v err=%v", outcome, err)
	}
}

// Scenario 3: next-epoch buffering during in_init, delivered once keys
// install.
func TestNextEpochBufferingAndDelivery(t *testing.T) {
	aOpts := recordlayer.DefaultOptions()
	pipe := newMemTransport(4)
	aOpts.Reader = pipe
	aOpts.Writer = newMemTransport(1)
	aOpts.Successor = discardWriter{}
	aOpts.InitialEpoch = 3
	rl, err := recordlayer.New(aOpts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rl.SetInInit(true)

	future := record.WriteHeader(nil, record.TypeHandshake, record.VersionDTLS1_2, 4, 0, 3)
	future = append(future, []byte("abc")...)
	pipe.inbox <- append([]byte(nil), future...)

	outcome, err := rl.GetMoreRecords()
	if err != nil || outcome != recordlayer.OutcomeNoRecord {
		t.Fatalf("next-epoch record should buffer, not deliver: outcome=%v err=%v", outcome, err)
	}

	rl.InstallNextEpoch(recordlayer.EpochState{Epoch: 4})

	outcome, err = rl.GetMoreRecords()
	if err != nil || outcome != recordlayer.OutcomeDelivered {
		t.Fatalf("buffered record should deliver after key install: outcome=%v err=%v", outcome, err)
	}
	got := rl.ReadRecord()
	if got == nil || !bytes.Equal(got.Payload, []byte("abc")) {
		t.Fatalf("delivered buffered record mismatch: %+v", got)
	}
}

// P4: silent-drop idempotence. Random bytes never produce a delivered
// record and never panic.
func TestRandomBytesAreSilentlyDropped(t *testing.T) {
	pipe := newMemTransport(1)
	opts := recordlayer.DefaultOptions()
	opts.Reader = pipe
	opts.Writer = newMemTransport(1)
	opts.Successor = discardWriter{}
	rl, err := recordlayer.New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rnd := rand.New(rand.NewSource(9))
	for i := 0; i < 500; i++ {
		n := rnd.Intn(64)
		garbage := make([]byte, n)
		rnd.Read(garbage)
		pipe.inbox <- garbage

		outcome, err := rl.GetMoreRecords()
		if outcome == recordlayer.OutcomeDelivered {
			t.Fatalf("iter %d: random bytes must never deliver a record", i)
		}
		_ = err
	}
}

// §8 P6 / §4.6 step 8: the unprocessed queue surfaces fatal once full,
// rather than silently growing past its cap.
func TestDeferredQueueFullSurfacesFatal(t *testing.T) {
	pipe := newMemTransport(200)
	opts := recordlayer.DefaultOptions()
	opts.Reader = pipe
	opts.Writer = newMemTransport(1)
	opts.Successor = discardWriter{}
	opts.InitialEpoch = 3
	rl, err := recordlayer.New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rl.SetInInit(true)

	for seq := uint64(0); seq < 101; seq++ {
		d := record.WriteHeader(nil, record.TypeHandshake, record.VersionDTLS1_2, 4, seq, 1)
		d = append(d, byte(seq))
		pipe.inbox <- d
	}

	var lastOutcome recordlayer.Outcome
	var lastErr error
	for i := 0; i < 101; i++ {
		lastOutcome, lastErr = rl.GetMoreRecords()
		if lastOutcome == recordlayer.OutcomeFatal {
			break
		}
	}
	if lastOutcome != recordlayer.OutcomeFatal || lastErr == nil {
		t.Fatalf("expected a fatal outcome once the queue fills: outcome=%v err=%v", lastOutcome, lastErr)
	}
	if rl.GetAlertCode() != record.AlertDescInternalError {
		t.Fatalf("alert=%d want internal_error", rl.GetAlertCode())
	}
}

// Bad write retry guard (§9, SPEC_FULL §D.6): a fresh WriteRecords call
// while a write is still pending a retry is rejected, and
// RetryPendingWrite eventually flushes the original attempt unchanged.
func TestWriteRetryGuard(t *testing.T) {
	writer := &flakyWriter{retriesLeft: 2}
	opts := recordlayer.DefaultOptions()
	opts.Writer = writer
	opts.Reader = newMemTransport(1)
	opts.Successor = discardWriter{}
	a, err := recordlayer.New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := a.WriteRecords(recordlayer.WriteTemplate{
		Type: record.TypeApplicationData, Version: record.VersionDTLS1_2, Payload: []byte("payload"),
	})
	if err != nil || result != transport.Retry {
		t.Fatalf("first attempt: result=%v err=%v, want Retry", result, err)
	}

	if _, err := a.WriteRecords(recordlayer.WriteTemplate{
		Type: record.TypeApplicationData, Version: record.VersionDTLS1_2, Payload: []byte("different"),
	}); err == nil {
		t.Fatal("starting a new write while one is pending must be rejected")
	}

	result, err = a.RetryPendingWrite()
	if err != nil || result != transport.Retry {
		t.Fatalf("second retry: result=%v err=%v, want Retry", result, err)
	}
	result, err = a.RetryPendingWrite()
	if err != nil || result != transport.Ok {
		t.Fatalf("third retry: result=%v err=%v, want Ok", result, err)
	}
	if len(writer.sent) != 1 {
		t.Fatalf("expected exactly one flushed datagram, got %d", len(writer.sent))
	}
}
