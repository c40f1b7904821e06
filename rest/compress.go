package rest

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Content codings accepted in Options.Compression.
const (
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

// compressBody applies the configured content coding to an encoded request
// body. It returns the (possibly unchanged) body and the Content-Encoding
// value to send, empty for identity.
func compressBody(data []byte, coding string) ([]byte, string, error) {
	switch coding {
	case "":
		return data, "", nil
	case CompressionGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, "", err
		}
		if err := zw.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), CompressionGzip, nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, "", err
		}
		out := zw.EncodeAll(data, nil)
		if err := zw.Close(); err != nil {
			return nil, "", err
		}
		return out, CompressionZstd, nil
	default:
		return nil, "", fmt.Errorf("unsupported content coding %q", coding)
	}
}

// decompressBody reads a response body, undoing the content coding the
// server applied. Unknown codings are an error rather than passed through.
func decompressBody(r io.Reader, coding string) ([]byte, error) {
	switch coding {
	case "", "identity":
		return io.ReadAll(r)
	case CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("unsupported content coding %q", coding)
	}
}
