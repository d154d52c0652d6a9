package records

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the container wrapped around a records file.
type Compression string

// Supported compressions.
const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// DetectCompression picks the decompressor from the file extension.
func DetectCompression(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return CompressionGzip
	case ".zst", ".zstd":
		return CompressionZstd
	case ".lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// readerOnly hides Close so the file is closed exactly once by Reader.Close.
type readerOnly struct {
	io.Reader
}

func (c Compression) newReader(src io.Reader) (io.Reader, error) {
	switch c {
	case CompressionGzip:
		zr, err := gzip.NewReader(src)
		if errors.Is(err, io.EOF) {
			return readerOnly{bytes.NewReader(nil)}, nil
		}

		if err != nil {
			return nil, fmt.Errorf("gzip header: %w", err)
		}

		return zr, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}

		return dec.IOReadCloser(), nil
	case CompressionLZ4:
		return readerOnly{lz4.NewReader(src)}, nil
	default:
		return readerOnly{src}, nil
	}
}
