// Package codec serializes small values into text tokens: msgpack, then
// zstd, then base64. Stage options and checkpoint tokens use it.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// maxDecoded bounds the decompressed size of a token.
const maxDecoded = 16 << 20

var (
	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
)

func init() {
	var err error
	zstdEnc, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic("codec: init zstd encoder: " + err.Error())
	}
	zstdDec, err = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(maxDecoded),
	)
	if err != nil {
		panic("codec: init zstd decoder: " + err.Error())
	}
}

// ErrCorrupt is returned for tokens that do not decode.
var ErrCorrupt = errors.New("corrupt token")

// Encode packs v into a token using enc for the text form.
func Encode(enc *base64.Encoding, v any) (string, error) {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	return enc.EncodeToString(zstdEnc.EncodeAll(raw, nil)), nil
}

// Decode unpacks a token produced by Encode with the same encoding.
func Decode(enc *base64.Encoding, token string, v any) error {
	compressed, err := enc.DecodeString(token)
	if err != nil {
		return fmt.Errorf("%w: base64: %w", ErrCorrupt, err)
	}
	raw, err := zstdDec.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("%w: zstd: %w", ErrCorrupt, err)
	}
	if err := msgpack.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: msgpack: %w", ErrCorrupt, err)
	}
	return nil
}
