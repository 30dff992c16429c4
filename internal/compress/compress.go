// Package compress frames payloads with a one-byte algorithm tag and the
// uncompressed length, so readers need no out-of-band metadata.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm identifies the compression of a frame. Values are stored in
// frame headers and must not change.
type Algorithm uint8

const (
	None Algorithm = 0
	LZ4  Algorithm = 1
	Zstd Algorithm = 2
)

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// Extension returns a file suffix for the algorithm.
func (a Algorithm) Extension() string {
	switch a {
	case LZ4:
		return ".lz4"
	case Zstd:
		return ".zst"
	default:
		return ""
	}
}

// Parse maps a configuration name to an algorithm.
func Parse(name string) (Algorithm, error) {
	switch name {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return None, fmt.Errorf("unknown compression %q", name)
	}
}

var errIncompressible = errors.New("incompressible")

// zstd encoders and decoders are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

// Encode compresses data into a frame. Data that does not shrink is stored
// uncompressed under the None tag.
func Encode(data []byte, alg Algorithm) ([]byte, error) {
	var payload []byte
	var err error
	switch alg {
	case None:
		payload = data
	case LZ4:
		payload, err = compressLZ4(data)
	case Zstd:
		payload, err = compressZstd(data)
	default:
		return nil, fmt.Errorf("unsupported compression %s", alg)
	}
	if errors.Is(err, errIncompressible) {
		alg, payload, err = None, data, nil
	}
	if err != nil {
		return nil, err
	}
	header := make([]byte, 1, 1+binary.MaxVarintLen64+len(payload))
	header[0] = byte(alg)
	header = binary.AppendUvarint(header, uint64(len(data)))
	return append(header, payload...), nil
}

// Decode reverses Encode and verifies the recorded length.
func Decode(frame []byte) ([]byte, error) {
	if len(frame) < 2 {
		return nil, errors.New("compress: frame too short")
	}
	alg := Algorithm(frame[0])
	size, n := binary.Uvarint(frame[1:])
	if n <= 0 {
		return nil, errors.New("compress: invalid length header")
	}
	payload := frame[1+n:]
	var out []byte
	var err error
	switch alg {
	case None:
		out = payload
	case LZ4:
		out, err = decompressLZ4(payload, int(size))
	case Zstd:
		out, err = zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
	default:
		return nil, fmt.Errorf("compress: unsupported algorithm %s", alg)
	}
	if err != nil {
		return nil, fmt.Errorf("compress: %s decode: %w", alg, err)
	}
	if uint64(len(out)) != size {
		return nil, fmt.Errorf("compress: decoded %d bytes, header says %d", len(out), size)
	}
	return out, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return dst[:written], nil
}

func decompressLZ4(payload []byte, size int) ([]byte, error) {
	dst := make([]byte, size)
	read, err := lz4.UncompressBlock(payload, dst)
	if err != nil {
		return nil, err
	}
	return dst[:read], nil
}

func compressZstd(data []byte) ([]byte, error) {
	out := zstdEncoder.EncodeAll(data, nil)
	if len(out) >= len(data) {
		return nil, errIncompressible
	}
	return out, nil
}
