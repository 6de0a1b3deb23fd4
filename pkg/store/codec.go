package store

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/sha3"
)

// Stored value layout:
//
//	[0:32]  SHA3-256 of the gob payload
//	[32:]   zstd-compressed gob payload
const checksumSize = 32

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func initCodec() {
	encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if codecErr != nil {
		return
	}
	decoder, codecErr = zstd.NewReader(nil)
}

// encodeRecord serializes v for storage.
func encodeRecord(v interface{}) ([]byte, error) {
	codecOnce.Do(initCodec)
	if codecErr != nil {
		return nil, fmt.Errorf("init zstd: %w", codecErr)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	payload := buf.Bytes()

	sum := sha3.Sum256(payload)
	out := make([]byte, checksumSize, checksumSize+len(payload)/2)
	copy(out, sum[:])
	return encoder.EncodeAll(payload, out), nil
}

// decodeRecord verifies and deserializes data into v.
func decodeRecord(data []byte, v interface{}) error {
	codecOnce.Do(initCodec)
	if codecErr != nil {
		return fmt.Errorf("init zstd: %w", codecErr)
	}

	if len(data) < checksumSize {
		return fmt.Errorf("%w: short value (%d bytes)", ErrCorrupt, len(data))
	}
	payload, err := decoder.DecodeAll(data[checksumSize:], nil)
	if err != nil {
		return fmt.Errorf("%w: decompress: %v", ErrCorrupt, err)
	}
	sum := sha3.Sum256(payload)
	if !bytes.Equal(sum[:], data[:checksumSize]) {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrCorrupt, err)
	}
	return nil
}
