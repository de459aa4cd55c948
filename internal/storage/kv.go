// internal/storage/kv.go
package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"
)

// KV is the raw string key/value store saves are written to
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// ErrDigestMismatch is returned when a stored value no longer matches its digest
var ErrDigestMismatch = errors.New("stored value digest mismatch")

// Codec compresses values at rest and computes their content digest
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCodec creates a zstd codec at the given compression level
func NewCodec(level int) (*Codec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Codec{encoder: encoder, decoder: decoder}, nil
}

// Compress encodes a value for storage
func (c *Codec) Compress(value string) []byte {
	return c.encoder.EncodeAll([]byte(value), nil)
}

// Decompress decodes a stored value
func (c *Codec) Decompress(data []byte) (string, error) {
	out, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return "", fmt.Errorf("decompress: %w", err)
	}
	return string(out), nil
}

// Close releases the encoder and decoder
func (c *Codec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

// Digest returns the hex blake2b-256 digest of a plain value
func Digest(value string) string {
	sum := blake2b.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
