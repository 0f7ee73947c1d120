// Package format stamps persisted values with a small header so readers
// can reject values of another kind or version.
package format

import (
	"errors"
	"fmt"
)

// Header layout (4 bytes):
//
//	signature (1 byte, 's' = 0x73)
//	type (1 byte, identifies the value kind)
//	version (1 byte)
//	flags (1 byte, reserved)
//
// Type codes:
//
//	'c' = stored checkpoint
const (
	Signature  = 's'
	HeaderSize = 4

	TypeCheckpoint = 'c'
)

var (
	ErrHeaderTooSmall    = errors.New("header too small")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrVersionMismatch   = errors.New("version mismatch")
)

// Header is the common 4-byte header.
type Header struct {
	Type    byte
	Version byte
	Flags   byte
}

// Encode returns the header bytes.
func (h Header) Encode() [HeaderSize]byte {
	return [HeaderSize]byte{Signature, h.Type, h.Version, h.Flags}
}

// Wrap returns the header followed by payload.
func (h Header) Wrap(payload []byte) []byte {
	enc := h.Encode()
	out := make([]byte, 0, HeaderSize+len(payload))
	out = append(out, enc[:]...)
	return append(out, payload...)
}

// Decode reads a header from buf.
func Decode(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrHeaderTooSmall
	}
	if buf[0] != Signature {
		return Header{}, ErrSignatureMismatch
	}
	return Header{Type: buf[1], Version: buf[2], Flags: buf[3]}, nil
}

// Unwrap checks the header of buf against want and returns the payload.
// Values written by a newer version fail with ErrVersionMismatch.
func Unwrap(buf []byte, want Header) ([]byte, error) {
	h, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	if h.Type != want.Type {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrTypeMismatch, h.Type, want.Type)
	}
	if h.Version != want.Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, h.Version, want.Version)
	}
	return buf[HeaderSize:], nil
}
