// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package cipher

import (
	"bytes"
	"compress/flate"
	"errors"
	"io"
)

// ErrDecompressionFailed maps to the fatal alert decompression_failure
// (§7 kind 2, §4.6 step 12).
var ErrDecompressionFailed = errors.New("cipher: decompression failed")

// flateCompression is the one CompressionMethod reference implementation.
// No compression algorithm is specified by §1 ("compression algorithms ...
// not specified here"); this exists only so the pipeline's §4.6 step 12
// overflow/failure paths have something real to exercise.
type flateCompression struct{}

func FlateCompression() CompressionMethod { return &flateCompression{} }

func (flateCompression) Compress(dst, src []byte) []byte {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	_, _ = w.Write(src)
	_ = w.Close()
	return append(dst, buf.Bytes()...)
}

func (flateCompression) Decompress(dst, src []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, ErrDecompressionFailed
	}
	return append(dst, out...), nil
}
