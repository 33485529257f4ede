// Package compression provides the stream codecs used for precompressed
// sidecars and output bundles.
package compression

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/paulschiretz/pgl-stage/pkg/util"
)

// Codec is a single-stream compression format.
type Codec string

const (
	Gzip Codec = "gzip"
	Zstd Codec = "zstd"
)

var codecToString = map[Codec]string{
	Gzip: "gzip",
	Zstd: "zstd",
}

var stringToCodec map[string]Codec

func init() {
	stringToCodec = util.InvertMap(codecToString)
}

func (c Codec) String() string {
	if str, ok := codecToString[c]; ok {
		return str
	}
	return fmt.Sprintf("unknown_codec(%s)", string(c))
}

// ParseCodec parses "gzip" or "zstd".
func ParseCodec(s string) (Codec, error) {
	if c, ok := stringToCodec[s]; ok {
		return c, nil
	}
	return "", fmt.Errorf("invalid compression codec: %q. Must be 'gzip' or 'zstd'", s)
}

// Extension returns the file suffix for the codec, including the dot.
func (c Codec) Extension() string {
	switch c {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	default:
		return ""
	}
}

// NewWriter wraps w in a compressing writer. Closing it flushes the stream
// but does not close w.
func NewWriter(w io.Writer, codec Codec, level Level) (io.WriteCloser, error) {
	switch codec {
	case Zstd:
		var encoderLevel zstd.EncoderLevel
		switch level {
		case Fastest:
			encoderLevel = zstd.SpeedFastest
		case Better:
			encoderLevel = zstd.SpeedBetterCompression
		case Best:
			encoderLevel = zstd.SpeedBestCompression
		default:
			encoderLevel = zstd.SpeedDefault
		}
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(encoderLevel))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return zw, nil
	case Gzip:
		var lvl int
		switch level {
		case Fastest:
			lvl = pgzip.BestSpeed
		case Better:
			lvl = 6
		case Best:
			lvl = pgzip.BestCompression
		default:
			lvl = pgzip.DefaultCompression
		}
		gw, err := pgzip.NewWriterLevel(w, lvl)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", codec)
	}
}

// NewReader wraps r in the matching decompressing reader.
func NewReader(r io.Reader, codec Codec) (io.ReadCloser, error) {
	switch codec {
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	case Gzip:
		gr, err := pgzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gr, nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", codec)
	}
}
