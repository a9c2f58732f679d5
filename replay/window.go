// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package replay

import (
	"github.com/hrissan/dtlsrecord/constants"
	"github.com/hrissan/dtlsrecord/record"
)

// Width is the number of trailing sequence numbers tracked by the bitmap.
const Width = constants.ReplayWindowWidth

type Status int

const (
	Fresh Status = iota
	Duplicate
	Stale
)

func (s Status) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Duplicate:
		return "duplicate"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// Window is the per-epoch sliding replay window of §3/§4.2: maxSeq is the
// highest accepted 48-bit sequence number, and bit (maxSeq-s) of bitmap is
// set iff sequence s was accepted.
type Window struct {
	maxSeq uint64
	bitmap uint64
}

// Reset clears a window to its just-installed state, used when a new epoch
// replaces it (§3).
func (w *Window) Reset() {
	w.maxSeq = 0
	w.bitmap = 0
}

func (w *Window) MaxSeq() uint64 { return w.maxSeq }

// Check classifies seq without mutating the window (§4.2). The pipeline
// must call Check before spending decryption work, and only Update after
// authentication succeeds — acknowledging receipt before verifying would
// let a forged packet advance the window (§4.2 rationale).
func (w *Window) Check(seq uint64) Status {
	d := record.SatSub(seq, w.maxSeq)
	if d > 0 {
		return Fresh
	}
	shift := uint(-d)
	if shift >= Width {
		return Stale
	}
	if w.bitmap&(uint64(1)<<shift) != 0 {
		return Duplicate
	}
	return Fresh
}

// Update records receipt of seq. Call only after the record has passed
// decryption/MAC verification (§4.2).
func (w *Window) Update(seq uint64) {
	d := record.SatSub(seq, w.maxSeq)
	if d > 0 {
		shift := uint(d)
		if shift < Width {
			w.bitmap <<= shift
			w.bitmap |= 1
		} else {
			w.bitmap = 1
		}
		w.maxSeq = seq
		return
	}
	shift := uint(-d)
	if shift < Width {
		w.bitmap |= uint64(1) << shift
	}
}
