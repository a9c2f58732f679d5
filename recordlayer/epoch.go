// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package recordlayer

import (
	"github.com/hrissan/dtlsrecord/cipher"
	"github.com/hrissan/dtlsrecord/replay"
)

// EpochState bundles everything tied to one epoch's keys (§3 "Epoch"):
// the cipher/MAC/compression context, whether MAC is applied before or
// after encryption, and (on the read side) the replay window. A RecordLayer
// keeps at most two of these live at once (§3 invariant "at most two live
// windows").
type EpochState struct {
	Epoch uint16

	Cipher      cipher.CipherState // nil at epoch 0 (cleartext)
	MAC         cipher.MACAlgorithm
	Compression cipher.CompressionMethod
	// EncryptThenMAC selects the ordering in §4.6 steps 9-11 / §4.7 steps
	// 5-7. Ignored when Cipher.IsAEAD(): an AEAD suite is neither ETM nor
	// MtE, its tag covers everything in one pass.
	EncryptThenMAC bool
	// FixedWriteIV / FixedReadIV are the per-epoch salt an AEAD suite's
	// nonce is derived from (nonceFor XORs it with the sequence number,
	// the ChaCha20-Poly1305/TLS1.3-style construction); meaning is
	// suite-specific and is the caller/pipeline's responsibility, matching
	// how little the teacher's SymmetricKeys assumes about nonce shape.
	// Unused for CBC epochs: those draw a fresh explicit IV per record
	// from Options.Rand instead (§4.7 step 3).
	FixedWriteIV []byte
	FixedReadIV  []byte

	window   replay.Window
	writeSeq uint64
}

// nonceFor builds an AEAD nonce for seq, as long as fixedIV (12 bytes for
// the shipped suites), XORing the fixed IV's low 8 bytes with the sequence
// number (the ChaCha20-Poly1305/TLS1.3
// style construction); CBC suites ignore the fixed IV and instead receive
// a fresh explicit IV per record from the pipeline, so this helper is only
// exercised for AEAD epochs.
func nonceFor(fixedIV []byte, seq uint64) []byte {
	nonce := append([]byte(nil), fixedIV...)
	if len(nonce) < 8 {
		return nonce
	}
	base := len(nonce) - 8
	for i := 0; i < 8; i++ {
		nonce[base+i] ^= byte(seq >> uint(56-8*i))
	}
	return nonce
}
