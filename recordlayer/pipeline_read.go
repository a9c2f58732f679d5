// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package recordlayer

import (
	"github.com/hrissan/dtlsrecord/cipher"
	"github.com/hrissan/dtlsrecord/constants"
	"github.com/hrissan/dtlsrecord/dtlserrors"
	"github.com/hrissan/dtlsrecord/record"
	"github.com/hrissan/dtlsrecord/replay"
	"github.com/hrissan/dtlsrecord/transport"
)

// Outcome is the upward result of GetMoreRecords (§6 "get_more_records() ->
// {success, retry, fatal, eof}", collapsed to the cases a datagram
// transport can actually produce: eof has no UDP analogue).
type Outcome int

const (
	// OutcomeDelivered means ReadRecord now returns a record.
	OutcomeDelivered Outcome = iota
	// OutcomeNoRecord means the call consumed one datagram (or one
	// deferred item) but produced nothing to deliver — a silent drop
	// (§7 kind 1), a zero-length record, or a record buffered for later.
	// The caller is expected to call GetMoreRecords again.
	OutcomeNoRecord
	// OutcomeRetry means the transport had nothing ready; pipeline state
	// is unchanged and the caller should retry once the transport is
	// ready again (§5 "suspension points").
	OutcomeRetry
	// OutcomeFatal means a fatal alert was raised; GetAlertCode reports
	// which one, and the layer should be torn down.
	OutcomeFatal
)

// GetMoreRecords runs one iteration of the read pipeline (§4.6): drains a
// renegotiation-withheld record if one is queued, otherwise reads exactly
// one datagram and carries it through parse/route/replay/decrypt/
// decompress. On OutcomeDelivered the result is available via ReadRecord
// until the next GetMoreRecords call.
func (rl *RecordLayer) GetMoreRecords() (Outcome, error) {
	if rl.closed {
		panic("recordlayer: GetMoreRecords called after Close")
	}

	// Step 1: drain deferred processed queue (renegotiation-paused records).
	if item, ok := rl.processed.PopMin(); ok {
		rl.delivered = &DeliveredRecord{
			Type:    item.Packet[0],
			Epoch:   item.Priority.Epoch(),
			SeqNum:  item.Priority.SeqNum(),
			Version: rl.negotiatedVersion,
			Payload: item.Packet[1:],
		}
		rl.opts.Observer.RecordDelivered(rl.delivered.Type, rl.delivered.Epoch, rl.delivered.SeqNum, len(rl.delivered.Payload))
		return OutcomeDelivered, nil
	}

	// Steps 2-4: read and parse the next datagram.
	buf := make([]byte, record.MaxEncryptedLength+record.HeaderSize)
	n, res, err := rl.opts.Reader.ReadDatagram(buf)
	switch res {
	case transport.Retry:
		return OutcomeRetry, nil
	case transport.Fatal:
		return OutcomeFatal, err
	}
	datagram := buf[:n]

	var hdr record.Header
	if _, perr := hdr.Parse(datagram); perr != nil {
		rl.opts.Observer.RecordDropped(perr.Error(), 0, 0)
		return OutcomeNoRecord, nil
	}
	if verr := hdr.Validate(rl.isFirstRecord, rl.negotiatedVersion, rl.negotiatedMajor, rl.maxFragLen); verr != nil {
		rl.opts.Observer.RecordDropped(verr.Error(), hdr.Epoch, hdr.SeqNum)
		return OutcomeNoRecord, nil
	}
	rl.isFirstRecord = false

	// Step 5: route via the epoch router (§4.3).
	epochState, isNextEpoch, routed := rl.route(hdr.Epoch, hdr.Type)
	if !routed {
		rl.opts.Observer.RecordDropped("no route for epoch", hdr.Epoch, hdr.SeqNum)
		return OutcomeNoRecord, nil
	}

	// Step 6: replay check, unless the transport is reliable and ordered.
	if !rl.opts.Reader.ReliableOrdered() {
		status := epochState.window.Check(hdr.SeqNum)
		if status != replay.Fresh {
			rl.opts.Observer.RecordDropped("replay: "+status.String(), hdr.Epoch, hdr.SeqNum)
			return OutcomeNoRecord, nil
		}
	}

	// Step 7: zero-length payload.
	if len(hdr.Body) == 0 {
		return OutcomeNoRecord, nil
	}

	// Step 8: next-epoch branch.
	if isNextEpoch {
		if rl.inInit {
			if rl.unprocessed.Len() >= constants.MaxDeferredQueueSize {
				rl.opts.Observer.DeferredQueueRejected("unprocessed", hdr.Epoch, hdr.SeqNum)
				rl.alertCode = dtlserrors.ErrDeferredQueueFull.Alert()
				return OutcomeFatal, dtlserrors.ErrDeferredQueueFull
			}
			if !rl.unprocessed.Insert(record.NumberWith(hdr.Epoch, hdr.SeqNum), datagram) {
				// The queue has room, so the rejection is a duplicate
				// (epoch, seq): a silent drop, not a fatal error.
				rl.opts.Observer.RecordDropped("duplicate buffered record", hdr.Epoch, hdr.SeqNum)
			}
		}
		return OutcomeNoRecord, nil
	}

	// Steps 9-11: decrypt / verify MAC.
	plaintext, outcome, derr := rl.decryptBody(epochState, hdr)
	if outcome != OutcomeDelivered {
		if derr != nil {
			rl.alertCode = derr.(interface{ Alert() byte }).Alert()
			rl.opts.Observer.FatalAlert(rl.alertCode, derr.Error())
		} else {
			rl.opts.Observer.RecordDropped("decrypt/MAC failed", hdr.Epoch, hdr.SeqNum)
		}
		return outcome, derr
	}

	// Step 12: decompress.
	if epochState.Compression != nil {
		decompressed, derr := epochState.Compression.Decompress(nil, plaintext)
		if derr != nil || len(decompressed) > constants.MaxCompressedLength {
			rl.alertCode = dtlserrors.ErrDecompressionFailure.Alert()
			rl.opts.Observer.FatalAlert(rl.alertCode, "decompression failed or oversized")
			return OutcomeFatal, dtlserrors.ErrDecompressionFailure
		}
		plaintext = decompressed
	}

	// Step 13: max-fragment check.
	if rl.maxFragLen > 0 && len(plaintext) > rl.maxFragLen {
		rl.alertCode = dtlserrors.ErrRecordOverflow.Alert()
		rl.opts.Observer.FatalAlert(rl.alertCode, "fragment exceeds negotiated max length")
		return OutcomeFatal, dtlserrors.ErrRecordOverflow
	}

	// Step 14: commit.
	epochState.window.Update(hdr.SeqNum)
	rl.delivered = &DeliveredRecord{
		Type:    hdr.Type,
		Epoch:   hdr.Epoch,
		SeqNum:  hdr.SeqNum,
		Version: hdr.Version,
		Payload: plaintext,
	}
	rl.opts.Observer.RecordDelivered(hdr.Type, hdr.Epoch, hdr.SeqNum, len(plaintext))
	return OutcomeDelivered, nil
}

// route implements EpochRouter (§4.3).
func (rl *RecordLayer) route(epoch uint16, recType byte) (*EpochState, bool, bool) {
	if epoch == rl.current.Epoch {
		return &rl.current, false, true
	}
	if epoch == rl.current.Epoch+1 && epoch == rl.unprocessedEpoch &&
		(recType == record.TypeHandshake || recType == record.TypeAlert) {
		return &rl.next, true, true
	}
	return nil, false, false
}

// decryptBody implements §4.6 steps 9-11: ETM verifies the MAC over the
// ciphertext before attempting decryption (a mismatch is fatal, §7 kind 2);
// MtE decrypts first and verifies the MAC over the recovered plaintext (a
// decrypt failure or MAC mismatch is a silent drop, §4.6 step 10-11). AEAD
// suites carry their own integrity and ignore EncryptThenMAC entirely.
//
// hdr.Body carries the explicit IV the write path prepended
// (pipeline_write.go's ExplicitIVLen bytes) ahead of the actual ciphertext;
// every branch below strips it before handing anything to es.Cipher.
func (rl *RecordLayer) decryptBody(es *EpochState, hdr record.Header) ([]byte, Outcome, error) {
	if es.Cipher == nil {
		return hdr.Body, OutcomeDelivered, nil // epoch 0, cleartext
	}

	ivLen := es.Cipher.ExplicitIVLen()
	if len(hdr.Body) < ivLen {
		return nil, OutcomeNoRecord, nil
	}
	explicitIV := hdr.Body[:ivLen]
	ciphertextPart := hdr.Body[ivLen:]

	if es.Cipher.IsAEAD() {
		// The nonce is reconstructed from the fixed IV and the header's
		// own sequence number, the same derivation the write path used;
		// the transmitted explicit IV bytes are that derivation's low
		// bytes, not an independent input.
		nonce := nonceFor(es.FixedReadIV, hdr.SeqNum)
		aad := associatedData(hdr.Type, hdr.Version, hdr.Epoch, hdr.SeqNum, int(hdr.Length))
		result := es.Cipher.Decrypt(nonce, aad, ciphertextPart)
		if result.Status != cipher.DecryptOk {
			return nil, OutcomeNoRecord, nil
		}
		return result.Plaintext, OutcomeDelivered, nil
	}

	if es.EncryptThenMAC && es.MAC != nil {
		macSize := es.MAC.Size()
		if len(hdr.Body) < ivLen+macSize {
			return nil, OutcomeFatal, dtlserrors.ErrDecodeErrorShortETM
		}
		// withIV is explicit IV + ciphertext, excluding the trailing MAC;
		// the MAC covers that span's length, not the full on-wire body.
		withIV := hdr.Body[:len(hdr.Body)-macSize]
		gotMAC := hdr.Body[len(hdr.Body)-macSize:]
		aad := associatedData(hdr.Type, hdr.Version, hdr.Epoch, hdr.SeqNum, len(withIV))
		if !cipher.Verify(es.MAC, aad, withIV, gotMAC) {
			return nil, OutcomeFatal, dtlserrors.ErrBadRecordMAC
		}
		result := es.Cipher.Decrypt(explicitIV, nil, withIV[ivLen:])
		if result.Status != cipher.DecryptOk {
			// ETM already authenticated the ciphertext; a decrypt failure
			// here means the cipher itself is misconfigured, not an
			// attack, but §4.6 does not special-case it — treat as a
			// silent drop like any other decrypt failure.
			return nil, OutcomeNoRecord, nil
		}
		return result.Plaintext, OutcomeDelivered, nil
	}

	// MtE: decrypt first, verify MAC over the recovered plaintext.
	result := es.Cipher.Decrypt(explicitIV, nil, ciphertextPart)
	if result.Status != cipher.DecryptOk {
		return nil, OutcomeNoRecord, nil
	}
	plain := result.Plaintext
	if es.MAC != nil {
		macSize := es.MAC.Size()
		if len(plain) < macSize || len(plain) > constants.MaxCompressedLength+macSize {
			return nil, OutcomeNoRecord, nil
		}
		dataPart := plain[:len(plain)-macSize]
		gotMAC := plain[len(plain)-macSize:]
		// The MAC covers the bare plaintext fragment, before padding was
		// ever added, so its length field is dataPart's length, not the
		// on-wire body's.
		aad := associatedData(hdr.Type, hdr.Version, hdr.Epoch, hdr.SeqNum, len(dataPart))
		if !cipher.Verify(es.MAC, aad, dataPart, gotMAC) {
			return nil, OutcomeNoRecord, nil
		}
		plain = dataPart
	}
	return plain, OutcomeDelivered, nil
}

// ReadRecord returns the record delivered by the most recent
// OutcomeDelivered GetMoreRecords call (§6 "read_record() -> record view").
func (rl *RecordLayer) ReadRecord() *DeliveredRecord {
	return rl.delivered
}

// ReleaseRecord invalidates the current delivered record (§6
// "release_record()"); callers must not retain Payload past this call.
func (rl *RecordLayer) ReleaseRecord() {
	rl.delivered = nil
}
