// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package recordlayer

import "log"

// Observer is the ambient logging seam (§ SPEC ambient stack): the
// record layer itself never imports a concrete logging library, matching
// the teacher's transport/stats.Stats shape, trimmed to the events a
// record layer (rather than a full handshake stack) produces.
type Observer interface {
	RecordDropped(reason string, epoch uint16, seqNum uint64)
	RecordDelivered(recType byte, epoch uint16, seqNum uint64, length int)
	FatalAlert(alert byte, reason string)
	DeferredQueueRejected(queue string, epoch uint16, seqNum uint64)
}

// LogObserver is the default Observer, backed by the standard log package
// exactly as the teacher's StatsLog is (no external logging dependency —
// see DESIGN.md for why this one ambient concern stays on the standard
// library).
type LogObserver struct{}

func (LogObserver) RecordDropped(reason string, epoch uint16, seqNum uint64) {
	log.Printf("dtlsrecord: dropped record epoch=%d seq=%d: %s", epoch, seqNum, reason)
}

func (LogObserver) RecordDelivered(recType byte, epoch uint16, seqNum uint64, length int) {
	log.Printf("dtlsrecord: delivered record type=%d epoch=%d seq=%d len=%d", recType, epoch, seqNum, length)
}

func (LogObserver) FatalAlert(alert byte, reason string) {
	log.Printf("dtlsrecord: fatal alert=%d: %s", alert, reason)
}

func (LogObserver) DeferredQueueRejected(queue string, epoch uint16, seqNum uint64) {
	log.Printf("dtlsrecord: %s queue rejected epoch=%d seq=%d", queue, epoch, seqNum)
}

// NopObserver discards every event; useful for tests that want a quiet
// pipeline.
type NopObserver struct{}

func (NopObserver) RecordDropped(string, uint16, uint64)          {}
func (NopObserver) RecordDelivered(byte, uint16, uint64, int)     {}
func (NopObserver) FatalAlert(byte, string)                       {}
func (NopObserver) DeferredQueueRejected(string, uint16, uint64)  {}
