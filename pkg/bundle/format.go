package bundle

import (
	"fmt"

	"github.com/paulschiretz/pgl-stage/pkg/compression"
	"github.com/paulschiretz/pgl-stage/pkg/util"
)

// Format is the archive format of a bundle.
type Format string

const (
	TarGz  Format = "tar.gz"
	TarZst Format = "tar.zst"
)

var formatToString = map[Format]string{
	TarGz:  "tar.gz",
	TarZst: "tar.zst",
}

var stringToFormat map[string]Format

func init() {
	stringToFormat = util.InvertMap(formatToString)
}

func (f Format) String() string {
	if str, ok := formatToString[f]; ok {
		return str
	}
	return fmt.Sprintf("unknown_format(%s)", string(f))
}

// ParseFormat parses "tar.gz" or "tar.zst".
func ParseFormat(s string) (Format, error) {
	if format, ok := stringToFormat[s]; ok {
		return format, nil
	}
	return "", fmt.Errorf("invalid bundle format: %q. Must be 'tar.gz' or 'tar.zst'", s)
}

// Codec returns the stream codec wrapping the tar stream.
func (f Format) Codec() compression.Codec {
	if f == TarGz {
		return compression.Gzip
	}
	return compression.Zstd
}
