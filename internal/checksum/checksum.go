// internal/checksum/checksum.go
package checksum

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Supported checksum algorithms
const (
	AlgFNV1a32 = "fnv1a32"
	AlgXXH64   = "xxh64"
)

// DefaultAlg is used when an envelope does not name its algorithm
const DefaultAlg = AlgFNV1a32

// Canonicalize returns a deterministic JSON encoding of v. Object keys are
// sorted and number literals are preserved, so two values that differ only in
// key order produce the same string.
func Canonicalize(v any) (string, error) {
	generic, err := normalize(v)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// normalize round-trips v through JSON so structs, typed maps and slices all
// become map[string]any / []any / json.Number.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("canonicalize: decode: %w", err)
	}
	return out, nil
}

// Hash is a fast, order-sensitive, non-cryptographic hash (FNV-1a, 32 bit).
// It detects corruption, not tampering.
func Hash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// Sum hashes s with the named algorithm and returns the lowercase hex digest.
func Sum(alg, s string) (string, error) {
	switch alg {
	case "", AlgFNV1a32:
		return fmt.Sprintf("%08x", Hash(s)), nil
	case AlgXXH64:
		return strconv.FormatUint(xxhash.Sum64String(s), 16), nil
	default:
		return "", fmt.Errorf("unsupported checksum algorithm %q", alg)
	}
}
