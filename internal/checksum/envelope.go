// internal/checksum/envelope.go
package checksum

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Validation failure reasons
const (
	ReasonInvalidSnapshot   = "invalid_snapshot"
	ReasonMissingState      = "missing_state"
	ReasonMissingChecksum   = "missing_checksum"
	ReasonChecksumMismatch  = "checksum_mismatch"
	ReasonValidateException = "validate_exception"
)

// Envelope is the checksummed wrapper persisted around a save blob
type Envelope struct {
	Version     int    `json:"version"`
	State       any    `json:"state"`
	Meta        any    `json:"meta"`
	SavedAt     string `json:"savedAt"`
	Checksum    string `json:"checksum"`
	ChecksumAlg string `json:"checksumAlg"`
}

// Result is the outcome of Validate
type Result struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Seal builds an envelope and stamps it with a fresh checksum
func Seal(version int, state, meta any, savedAt, alg string) (*Envelope, error) {
	if alg == "" {
		alg = DefaultAlg
	}
	sum, err := digest(version, state, meta, savedAt, alg)
	if err != nil {
		return nil, fmt.Errorf("seal snapshot: %w", err)
	}
	return &Envelope{
		Version:     version,
		State:       state,
		Meta:        meta,
		SavedAt:     savedAt,
		Checksum:    sum,
		ChecksumAlg: alg,
	}, nil
}

func digest(version, state, meta, savedAt any, alg string) (string, error) {
	payload := map[string]any{
		"version": version,
		"state":   state,
		"meta":    meta,
		"savedAt": savedAt,
	}
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	return Sum(alg, canonical)
}

// IsEnvelope reports whether a parsed value has the envelope shape rather than
// the legacy direct-blob shape.
func IsEnvelope(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	if _, hasPlayer := m["player"]; hasPlayer {
		return false
	}
	_, hasState := m["state"]
	_, hasSum := m["checksum"]
	_, hasAlg := m["checksumAlg"]
	return hasState && (hasSum || hasAlg)
}

// Validate recomputes the checksum over {version, state, meta, savedAt} and
// compares it to the stored one. It never mutates v and never panics.
func Validate(v any) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Reason: ReasonValidateException}
		}
	}()

	m, ok := asMap(v)
	if !ok {
		return Result{Reason: ReasonInvalidSnapshot}
	}
	if state, ok := m["state"]; !ok || state == nil {
		return Result{Reason: ReasonMissingState}
	}
	stored, _ := m["checksum"].(string)
	if stored == "" {
		return Result{Reason: ReasonMissingChecksum}
	}
	alg, _ := m["checksumAlg"].(string)

	sum, err := digest(m["version"], m["state"], m["meta"], m["savedAt"], alg)
	if err != nil {
		return Result{Reason: ReasonValidateException}
	}
	if sum != stored {
		return Result{Reason: ReasonChecksumMismatch}
	}
	return Result{OK: true}
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return t, true
	case *Envelope:
		if t == nil {
			return nil, false
		}
	case Envelope:
	default:
		return nil, false
	}
	generic, err := normalize(v)
	if err != nil {
		return nil, false
	}
	m, ok := generic.(map[string]any)
	return m, ok
}

// Decode parses raw envelope text into its generic form, keeping number
// literals intact so Validate sees exactly what was hashed.
func Decode(text string) (any, error) {
	var out any
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode snapshot: trailing data after value")
	}
	return out, nil
}
