// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

// Package dtlserrors carries the fatal-alert error values of §7 kind 2.
// Silent drops (§7 kind 1) are never represented by a value from this
// package: every silent-drop path in recordlayer returns OutcomeNoRecord
// with a nil error and the caller simply loops, matching OpenSSL's "RLAYERfatal already called, else
// silently drop" split without reusing its thread-local error-stack
// mechanism (§9 "error-mark mechanism").
package dtlserrors

import (
	"fmt"

	"github.com/hrissan/dtlsrecord/record"
)

// we do not allocate on the silent-drop path, so every fatal error below
// is a static value constructed once at package init

type Error struct {
	alert byte
	text  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("dtlsrecord: fatal alert %d: %s", e.alert, e.text)
}

// Alert is the alert description byte the caller should emit to the peer
// (§6 "get_alert_code").
func (e *Error) Alert() byte { return e.alert }

func NewFatal(alert byte, text string) *Error {
	return &Error{alert: alert, text: text}
}

var (
	ErrDecompressionFailure = NewFatal(record.AlertDescDecompressionFailure, "decompression failed or produced an oversized record")
	ErrBadRecordMAC         = NewFatal(record.AlertDescBadRecordMac, "encrypt-then-MAC verification failed")
	ErrDecodeErrorShortETM  = NewFatal(record.AlertDescDecodeError, "record shorter than the configured MAC size under encrypt-then-MAC")
	ErrRecordOverflow       = NewFatal(record.AlertDescRecordOverflow, "decompressed or decrypted record exceeds the negotiated fragment limit")
	ErrDeferredQueueFull    = NewFatal(record.AlertDescInternalError, "deferred record queue is full")
	ErrBadWriteRetry        = NewFatal(record.AlertDescInternalError, "write retry does not match the originally attempted write")
	ErrInternalError        = NewFatal(record.AlertDescInternalError, "internal record layer consistency failure")
)
