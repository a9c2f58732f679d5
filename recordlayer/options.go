// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package recordlayer

import (
	"errors"

	"github.com/hrissan/dtlsrecord/dtlsrand"
	"github.com/hrissan/dtlsrecord/record"
	"github.com/hrissan/dtlsrecord/transport"
)

// Role mirrors the teacher's client/server tagging (dtlscore/options.go)
// without the handshake-specific fields that accompanied it there.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// Direction selects whether a RecordLayer is the read or write half of a
// connection (§6 "direction (read/write)"): per §5 a RecordLayer is
// single-direction, so a connection constructs one of each.
type Direction int

const (
	DirectionRead Direction = iota
	DirectionWrite
)

// Options configures one RecordLayer at construction, following the
// teacher's Options-struct-with-DefaultOptions-and-Validate shape
// (dtlscore/options.go) rather than CLI flags or environment variables
// (§6 "no persisted state, no environment variables, no CLI").
type Options struct {
	Role      Role
	Direction Direction

	// InitialEpoch is the epoch a freshly constructed layer starts at
	// (usually 0, cleartext).
	InitialEpoch uint16
	// InitialEpochState configures the cipher/MAC/compression for
	// InitialEpoch. May be the zero value for epoch 0 (no protection).
	InitialEpochState EpochState

	ProtocolVersion uint16 // 0 means undetermined (§4.4 "DTLS_ANY_VERSION")
	MaxFragmentLen  int    // 0 means no fragment-budget check beyond MaxEncryptedLength

	Reader    transport.Reader
	Writer    transport.Writer
	Successor transport.Writer // drain target on Close (§9 open question)

	Observer Observer

	// Rand mints the per-record explicit IV for block-cipher (CBC) suites
	// (§4.7 step 3). AEAD suites never consult it: their nonce is derived
	// from FixedWriteIV and the sequence number instead (epoch.go's
	// nonceFor).
	Rand dtlsrand.Rand
}

var (
	ErrNilReader    = errors.New("recordlayer: Options.Reader must not be nil")
	ErrNilWriter    = errors.New("recordlayer: Options.Writer must not be nil")
	ErrNilSuccessor = errors.New("recordlayer: Options.Successor must not be nil")
)

// DefaultOptions returns an epoch-0, version-undetermined configuration
// with LogObserver; callers fill in Reader/Writer/Successor.
func DefaultOptions() Options {
	return Options{
		InitialEpoch: 0,
		Observer:     LogObserver{},
		Rand:         dtlsrand.CryptoRand(),
	}
}

func (o *Options) Validate() error {
	if o.Reader == nil {
		return ErrNilReader
	}
	if o.Writer == nil {
		return ErrNilWriter
	}
	if o.Successor == nil {
		return ErrNilSuccessor
	}
	if o.ProtocolVersion != 0 && byte(o.ProtocolVersion>>8) != byte(record.VersionDTLS1_2>>8) {
		return errors.New("recordlayer: ProtocolVersion must be a DTLS major version or 0")
	}
	if o.Rand == nil {
		o.Rand = dtlsrand.CryptoRand()
	}
	return nil
}
