// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package record writes readings as text, JSON lines or a CBOR sequence.
package record

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Format selects the encoding
type Format string

// Supported formats
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ParseFormat validates s
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatCBOR:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown format %q (use text, json or cbor)", s)
	}
}

// encMode encodes timestamps as RFC 3339 strings
var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Writer encodes one record per Write
type Writer struct {
	format Format
	out    io.Writer
	json   *json.Encoder
	cbor   *cbor.Encoder
}

// NewWriter creates a writer for format
func NewWriter(out io.Writer, format Format) *Writer {
	w := &Writer{format: format, out: out}
	switch format {
	case FormatJSON:
		w.json = json.NewEncoder(out)
	case FormatCBOR:
		w.cbor = encMode.NewEncoder(out)
	}
	return w
}

// Write encodes v. Text output uses v's String method when it has one.
func (w *Writer) Write(v any) error {
	switch w.format {
	case FormatJSON:
		return w.json.Encode(v)
	case FormatCBOR:
		return w.cbor.Encode(v)
	default:
		text := fmt.Sprint(v)
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		_, err := io.WriteString(w.out, text)
		return err
	}
}

// Decoder reads back a CBOR sequence written by Writer
type Decoder struct {
	dec *cbor.Decoder
}

// NewDecoder creates a CBOR sequence decoder
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: cbor.NewDecoder(r)}
}

// Decode reads the next record into v. It returns io.EOF at the end.
func (d *Decoder) Decode(v any) error {
	return d.dec.Decode(v)
}
