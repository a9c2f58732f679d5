// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

// Package cipher provides the CipherState/MACAlgorithm/CompressionMethod
// interfaces the record layer consumes (§6 "downward dependency injection")
// plus reference implementations used by tests and cmd/recordecho. Per §1
// these primitives are out of scope for the record layer itself — it only
// depends on the interfaces.
package cipher

// DecryptStatus is the tri-state result of §9's design note: "make decrypt
// return a richer result {Ok, Silent, Fatal(alert)}" instead of modeling
// OpenSSL's thread-local error-mark stack.
type DecryptStatus int

const (
	DecryptOk DecryptStatus = iota
	DecryptSilent
	DecryptFatal
)

// DecryptResult is returned by CipherState.Decrypt. Plaintext is only valid
// when Status is DecryptOk. Alert is only meaningful when Status is
// DecryptFatal (§7 kind 2).
type DecryptResult struct {
	Status    DecryptStatus
	Plaintext []byte
	Alert     byte
}

// CipherState is the confidentiality primitive a RecordLayer is configured
// with at construction (§6). Nonce is the fully-built per-record nonce or
// IV (fixed salt combined with the explicit IV/sequence number, per
// whatever convention the concrete suite uses internally); aad is the
// associated data an AEAD suite authenticates alongside the ciphertext —
// block-cipher suites ignore it, since their integrity comes from a
// separately configured MACAlgorithm (§4.6 steps 9-11, §4.7 steps 3-7).
type CipherState interface {
	// ExplicitIVLen is the number of explicit-IV bytes sent in the clear
	// per record (§4.7 step 3, §9 "dispatch via explicit IV length"):
	// 0 for a stream/implicit-nonce AEAD, 8 for GCM/CCM, the cipher's
	// block size for CBC.
	ExplicitIVLen() int
	// IsAEAD distinguishes suites whose ciphertext carries its own
	// integrity tag (no external MACAlgorithm should be configured
	// alongside them) from block-cipher suites that require one.
	IsAEAD() bool
	// Overhead is the worst-case number of bytes Encrypt adds beyond the
	// plaintext length: the AEAD tag, or block padding for CBC.
	Overhead() int
	Encrypt(nonce, aad, plaintext []byte) []byte
	Decrypt(nonce, aad, ciphertext []byte) DecryptResult
}

// MACAlgorithm computes and verifies the external MAC used by MtE and ETM
// modes (§4.6 steps 9-11, §4.7 steps 5-7). AEAD suites are configured with
// a nil MACAlgorithm.
type MACAlgorithm interface {
	Size() int
	Compute(header, data []byte) []byte
}

// CompressionMethod is consulted at §4.6 step 12 / §4.7 step 4. A record
// layer with no compression negotiated is constructed with a nil
// CompressionMethod, in which case the pipeline copies plaintext through
// unchanged.
type CompressionMethod interface {
	Compress(dst, src []byte) []byte
	Decompress(dst, src []byte) ([]byte, error)
}
