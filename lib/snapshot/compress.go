// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the algorithm a snapshot payload was
// compressed with. The tag is stored in the file header (1 byte);
// the values are format constants.
type CompressionTag uint8

const (
	// CompressionNone stores the payload uncompressed. Chosen
	// automatically when compression would not shrink the payload.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is LZ4 block compression: fastest decode, a
	// modest ratio.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is zstd at its default level. Listing payloads
	// are path-heavy text, where zstd ratios are strong; this is the
	// default.
	CompressionZstd CompressionTag = 2
)

// String returns the name of the tag as used in configuration.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseCompressionTag parses a configuration value into a tag.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4, or zstd)", name)
	}
}

// compress compresses payload with the requested algorithm, falling
// back to CompressionNone when the output would not be smaller.
// Returns the bytes to store and the tag they were stored with.
func compress(payload []byte, tag CompressionTag) ([]byte, CompressionTag, error) {
	var compressed []byte
	var err error

	switch tag {
	case CompressionNone:
		return payload, CompressionNone, nil
	case CompressionLZ4:
		compressed, err = compressLZ4(payload)
	case CompressionZstd:
		compressed, err = compressZstd(payload)
	default:
		return nil, 0, fmt.Errorf("unsupported compression tag %d", tag)
	}

	if errors.Is(err, errIncompressible) {
		return payload, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return compressed, tag, nil
}

// decompress reverses compress. The expected uncompressed size comes
// from the file header and is verified exactly.
func decompress(stored []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(stored) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed payload is %d bytes, header says %d", len(stored), uncompressedSize)
		}
		return stored, nil
	case CompressionLZ4:
		return decompressLZ4(stored, uncompressedSize)
	case CompressionZstd:
		return decompressZstd(stored, uncompressedSize)
	default:
		return nil, fmt.Errorf("unsupported compression tag %d", tag)
	}
}

func compressLZ4(payload []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(payload)))

	written, err := lz4.CompressBlock(payload, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock reports 0 for incompressible input; output at
	// least as large as the input is not worth storing either.
	if written == 0 || written >= len(payload) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(stored []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(stored, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, header says %d", read, uncompressedSize)
	}
	return destination, nil
}

// zstdEncoder and zstdDecoder are shared across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("snapshot: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("snapshot: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(payload []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(payload, nil)
	if len(compressed) >= len(payload) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(stored []byte, uncompressedSize int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(stored, make([]byte, 0, uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, header says %d", len(result), uncompressedSize)
	}
	return result, nil
}

// errIncompressible signals that compression would not shrink the
// payload; compress falls back to CompressionNone on it.
var errIncompressible = errors.New("payload is incompressible")
