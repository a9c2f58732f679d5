// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package constants

// MaxPlaintextLength bounds a record's plaintext (post-decompression)
// payload. [rfc6347:4.1] SSL3_RT_MAX_PLAIN_LENGTH equivalent.
const MaxPlaintextLength = 1 << 14

// MaxCompressedLength bounds a record's compressed payload, allowing room
// for compression expansion on pathological inputs. SSL3_RT_MAX_COMPRESSED_LENGTH.
const MaxCompressedLength = MaxPlaintextLength + 1024

// MaxEncryptedOverhead is the maximum bytes AEAD/CBC framing can add beyond
// the compressed length: explicit IV, MAC, and block padding.
// SSL3_RT_MAX_ENCRYPTED_OVERHEAD.
const MaxEncryptedOverhead = 0 + 1 + 256 + 256 // mac + padding + padding counter, generous

// ReplayWindowWidth is the number of trailing sequence numbers a replay
// window's bitmap tracks. Fixed at 64, the bit width of the bitmap; the
// saturating-subtract clamp (SatSubClamp, 128) is wider, so every distance
// inside the window is exact (§4.1, §4.2).
const ReplayWindowWidth = 64

// MaxDeferredQueueSize bounds each DeferredRecordQueue (§4.5): a DoS
// ceiling on records an attacker can make us buffer before keys arrive.
const MaxDeferredQueueSize = 100

// SatSubClamp is the saturation boundary for SequenceArithmetic (§4.1).
const SatSubClamp = 128
