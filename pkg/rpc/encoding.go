package rpc

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/fortiblox/X1-Chrono/pkg/vm"
)

// EncodeTrace encodes traced steps according to the specified encoding.
// Binary encodings carry one rendered step per line.
func EncodeTrace(steps []vm.Step, encoding Encoding) (interface{}, error) {
	switch encoding {
	case EncodingJSON:
		out := make([]TraceStep, len(steps))
		for i, s := range steps {
			out[i] = TraceStep{
				IP:        s.IP,
				Op:        s.Op.String(),
				Operand:   s.Operand,
				Registers: [3]uint64(s.Registers),
			}
		}
		return out, nil

	case EncodingBase64:
		return []string{base64.StdEncoding.EncodeToString(traceText(steps)), string(EncodingBase64)}, nil

	case EncodingBase64Zstd, "":
		compressed, err := compressZstd(traceText(steps))
		if err != nil {
			return nil, fmt.Errorf("zstd compression failed: %w", err)
		}
		return []string{base64.StdEncoding.EncodeToString(compressed), string(EncodingBase64Zstd)}, nil

	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// DecodeTrace decodes a binary-encoded trace back to its text lines.
func DecodeTrace(encoded string, encoding Encoding) ([]string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 decode failed: %w", err)
	}
	if encoding == EncodingBase64Zstd {
		raw, err = decompressZstd(raw)
		if err != nil {
			return nil, err
		}
	}
	text := strings.TrimSuffix(string(raw), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

func traceText(steps []vm.Step) []byte {
	var sb strings.Builder
	for _, s := range steps {
		sb.WriteString(s.String())
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// compressZstd compresses data using zstd.
func compressZstd(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, nil), nil
}

// decompressZstd decompresses zstd-compressed data.
func decompressZstd(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()
	return decoder.DecodeAll(data, nil)
}
