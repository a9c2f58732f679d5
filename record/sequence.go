// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package record

import "github.com/hrissan/dtlsrecord/constants"

// SatSub is the saturating subtract described in §4.1: the signed
// difference a-b of two 48-bit sequence numbers, clamped to
// [-SatSubClamp, +SatSubClamp]. It is the sole primitive the replay window
// needs — the magnitude indexes a ReplayWindowWidth-bit bitmap, and any
// distance beyond that width is uniformly "too far" in either direction.
//
// a and b are full uint64 values (not just the 48-bit sequence number) so
// the same function serves both raw 48-bit sequence numbers and the
// epoch-packed Number.epochSeqNum representation; wrap-around of either
// operand clamps to the boundary with matching sign, mirroring OpenSSL's
// satsub64be.
func SatSub(a, b uint64) int32 {
	diff := int64(a) - int64(b)
	if a > b && diff < 0 {
		return constants.SatSubClamp
	}
	if b > a && diff > 0 {
		return -constants.SatSubClamp
	}
	if diff > constants.SatSubClamp {
		return constants.SatSubClamp
	}
	if diff < -constants.SatSubClamp {
		return -constants.SatSubClamp
	}
	return int32(diff)
}
