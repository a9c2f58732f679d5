// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"

	"golang.org/x/crypto/chacha20poly1305"
)

// aeadState wraps a stdlib/x-crypto AEAD into the CipherState shape. The
// two constructors below differ only in ExplicitIVLen and the AEAD
// construction, mirroring the teacher's per-suite files
// (tls_aes_128_gcm_sha256.go, tls_chacha20_poly1305_sha256.go) without the
// handshake-bound ResetSymmetricKeys/transcript-hash machinery those carry.
type aeadState struct {
	aead          gocipher.AEAD
	explicitIVLen int
}

func (a *aeadState) ExplicitIVLen() int { return a.explicitIVLen }
func (a *aeadState) IsAEAD() bool       { return true }
func (a *aeadState) Overhead() int      { return a.aead.Overhead() }

func (a *aeadState) Encrypt(nonce, aad, plaintext []byte) []byte {
	return a.aead.Seal(plaintext[:0], nonce, plaintext, aad)
}

func (a *aeadState) Decrypt(nonce, aad, ciphertext []byte) DecryptResult {
	plain, err := a.aead.Open(ciphertext[:0], nonce, ciphertext, aad)
	if err != nil {
		// Opaque AEAD failure in non-ETM mode is a silent drop (§4.6 step 10):
		// the pipeline cannot distinguish a forged packet from corruption.
		return DecryptResult{Status: DecryptSilent}
	}
	return DecryptResult{Status: DecryptOk, Plaintext: plain}
}

// NewAESGCMSuite builds an AES-GCM CipherState. key must be 16 or 32 bytes.
// GCM uses an 8-byte explicit IV per record (§4.7 step 3).
func NewAESGCMSuite(key []byte) CipherState {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic("cipher: aes.NewCipher: " + err.Error())
	}
	gcm, err := gocipher.NewGCM(block)
	if err != nil {
		panic("cipher: cipher.NewGCM: " + err.Error())
	}
	return &aeadState{aead: gcm, explicitIVLen: 8}
}

// NewChaCha20Poly1305Suite builds a ChaCha20-Poly1305 CipherState
// (golang.org/x/crypto/chacha20poly1305). key must be 32 bytes. Per
// RFC 7905 the nonce is derived implicitly from the fixed IV and sequence
// number, so no explicit IV is sent on the wire.
func NewChaCha20Poly1305Suite(key []byte) CipherState {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		panic("cipher: chacha20poly1305.New: " + err.Error())
	}
	return &aeadState{aead: aead, explicitIVLen: 0}
}
