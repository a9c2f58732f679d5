// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package recordlayer

import (
	"github.com/hrissan/dtlsrecord/dtlserrors"
	"github.com/hrissan/dtlsrecord/record"
	"github.com/hrissan/dtlsrecord/safecast"
	"github.com/hrissan/dtlsrecord/transport"
)

// WriteTemplate is the caller's request to emit one record (§3
// "WriteTemplate"). DTLS emits one record per datagram, so unlike a
// stream TLS record layer there is no batching call — see SPEC_FULL §E.
type WriteTemplate struct {
	Type    byte
	Version uint16
	Payload []byte
}

// WriteRecords runs the write path of §4.7 over a single template and
// flushes the result through the configured transport.Writer. If a prior
// write is still pending a retry (the transport last reported Retry),
// WriteRecords refuses to start a new one — call RetryPendingWrite
// instead (§9, SPEC_FULL §D.6).
func (rl *RecordLayer) WriteRecords(tmpl WriteTemplate) (transport.Result, error) {
	if rl.closed {
		panic("recordlayer: WriteRecords called after Close")
	}
	if rl.pending.active {
		rl.alertCode = dtlserrors.ErrBadWriteRetry.Alert()
		return transport.Fatal, dtlserrors.ErrBadWriteRetry
	}
	es := &rl.current

	// Step 3: explicit IV.
	explicitIVLen := 0
	if es.Cipher != nil {
		explicitIVLen = es.Cipher.ExplicitIVLen()
	}

	// Step 4: compress (or copy) plaintext.
	plaintext := tmpl.Payload
	if es.Compression != nil {
		plaintext = es.Compression.Compress(nil, plaintext)
	}

	seq := es.writeSeq
	var body []byte

	if es.Cipher == nil {
		body = append([]byte(nil), plaintext...)
	} else if es.Cipher.IsAEAD() {
		nonce := nonceFor(es.FixedWriteIV, seq)
		explicitIV := nonce[len(nonce)-explicitIVLen:]
		// The AAD's length field covers the full on-wire body (explicit IV
		// plus sealed ciphertext), matching what the reader's hdr.Length
		// actually measures — the explicit IV is part of the record body,
		// not a separate out-of-band value.
		aad := associatedData(tmpl.Type, tmpl.Version, es.Epoch, seq, explicitIVLen+len(plaintext)+es.Cipher.Overhead())
		ciphertext := es.Cipher.Encrypt(nonce, aad, append([]byte(nil), plaintext...))
		body = make([]byte, 0, explicitIVLen+len(ciphertext))
		if explicitIVLen > 0 {
			body = append(body, explicitIV...)
		}
		body = append(body, ciphertext...)
	} else {
		// Explicit IV for a block cipher is independent randomness, not
		// derived from the sequence number or reused across records
		// (GLOSSARY "Explicit IV": a per-record IV component) — a fresh
		// one is drawn from rl.opts.Rand for every call.
		explicitIV := make([]byte, explicitIVLen)
		rl.opts.Rand.Read(explicitIV)

		data := append([]byte(nil), plaintext...)
		if !es.EncryptThenMAC && es.MAC != nil {
			// Step 5: MtE MAC over the plaintext fragment, before padding
			// or encryption; the length field covers just that fragment.
			aad := associatedData(tmpl.Type, tmpl.Version, es.Epoch, seq, len(data))
			data = append(data, es.MAC.Compute(aad, data)...)
		}

		// Step 6: encrypt.
		ciphertext := es.Cipher.Encrypt(explicitIV, nil, data)

		if es.EncryptThenMAC && es.MAC != nil {
			// Step 7: ETM MAC over explicit IV + ciphertext, excluding the
			// MAC itself; the length field covers that span, not the full
			// on-wire body (the MAC that follows it is not self-covering).
			withIV := append(append([]byte(nil), explicitIV...), ciphertext...)
			aad := associatedData(tmpl.Type, tmpl.Version, es.Epoch, seq, len(withIV))
			mac := es.MAC.Compute(aad, withIV)
			body = append(withIV, mac...)
		} else {
			body = append(append([]byte(nil), explicitIV...), ciphertext...)
		}
	}

	// The length field is 16 bits on the wire; a caller-supplied payload
	// too large to fit is an internal consistency failure, not something
	// a peer could induce (§7 kind 2 "internal allocation/consistency
	// failure").
	bodyLen, lerr := safecast.TryCast[uint16](len(body))
	if lerr != nil {
		rl.alertCode = dtlserrors.ErrInternalError.Alert()
		return transport.Fatal, dtlserrors.ErrInternalError
	}

	datagram := record.WriteHeader(make([]byte, 0, record.HeaderSize+len(body)),
		tmpl.Type, tmpl.Version, es.Epoch, seq, bodyLen)
	datagram = append(datagram, body...)

	// Step 9: advance the write sequence counter.
	es.writeSeq++

	// Step 10: flush; a Retry result latches the pending-write slot.
	return rl.flush(tmpl.Type, datagram)
}

// RetryPendingWrite re-attempts the exact datagram a prior WriteRecords
// call built but could not flush (transport returned Retry). Calling it
// with no write pending is a programmer error (§9 ssl3_write_pending: a
// retry with nothing outstanding does not correspond to any real state).
func (rl *RecordLayer) RetryPendingWrite() (transport.Result, error) {
	if !rl.pending.active {
		panic("recordlayer: RetryPendingWrite called with no write pending")
	}
	return rl.flush(rl.pending.recType, rl.pending.datagram)
}

func (rl *RecordLayer) flush(recType byte, datagram []byte) (transport.Result, error) {
	result, err := rl.opts.Writer.WriteDatagram(datagram)
	switch result {
	case transport.Retry:
		rl.pending = pendingWrite{active: true, recType: recType, datagram: datagram}
		return transport.Retry, nil
	case transport.Fatal:
		// A datagram write either lands whole or is discarded (§4.7 step
		// 10); there is nothing partial to retry, so the pending slot is
		// cleared rather than latched for a future retry.
		rl.pending = pendingWrite{}
		return transport.Fatal, err
	default:
		rl.pending = pendingWrite{}
		return transport.Ok, nil
	}
}

// associatedData builds the bytes an AEAD suite authenticates, or the
// header a MACAlgorithm covers: seq_num(8, epoch<<48|seq) || type ||
// version || length. length is NOT always the header's on-wire Length
// field — it is whatever span the caller is actually protecting: the full
// on-wire body for an AEAD tag, the explicit-IV-plus-ciphertext span
// (excluding the trailing tag) for ETM's outer MAC, or the bare plaintext
// fragment (before padding) for MtE's inner MAC. See the call sites in
// WriteRecords and decryptBody for which one applies.
func associatedData(recType byte, version uint16, epoch uint16, seq uint64, length int) []byte {
	n := record.NumberWith(epoch, seq)
	p := n.Priority()
	aad := make([]byte, 0, 13)
	aad = append(aad, p[:]...)
	aad = append(aad, recType)
	aad = append(aad, byte(version>>8), byte(version))
	aad = append(aad, byte(length>>8), byte(length))
	return aad
}
