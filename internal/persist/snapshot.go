// internal/persist/snapshot.go
package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alsub25/Pocket-RPG-sub006/internal/checksum"
	"github.com/alsub25/Pocket-RPG-sub006/internal/game"
	"github.com/alsub25/Pocket-RPG-sub006/internal/migrate"
)

// Builder turns the live state into save text. It only reads the state.
type Builder struct {
	// Envelope wraps the blob in a checksummed envelope. When false the
	// legacy direct blob is written.
	Envelope    bool
	ChecksumAlg string
	Patch       string
	Now         func() time.Time
}

// Build returns the current-schema blob for st. Combat fields are null
// outside of combat and currentEnemy always mirrors enemies[targetEnemyIndex].
func (b *Builder) Build(st *game.State) (migrate.Blob, error) {
	if st == nil {
		return nil, errors.New("build snapshot: no live state")
	}

	raw, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var blob migrate.Blob
	if err := dec.Decode(&blob); err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}

	blob["meta"] = map[string]any{
		"schema":  migrate.CurrentSchema,
		"patch":   b.Patch,
		"savedAt": b.now().UTC().Format(time.RFC3339Nano),
	}

	if !st.InCombat {
		blob["enemies"] = nil
		blob["targetEnemyIndex"] = nil
		blob["currentEnemy"] = nil
		return blob, nil
	}
	enemies, _ := blob["enemies"].([]any)
	idx := st.TargetEnemyIndex
	if idx >= 0 && idx < len(enemies) {
		blob["currentEnemy"] = enemies[idx]
	} else {
		blob["currentEnemy"] = nil
	}
	return blob, nil
}

// Snapshot returns what gets persisted: a sealed envelope or the bare blob
func (b *Builder) Snapshot(st *game.State) (any, error) {
	blob, err := b.Build(st)
	if err != nil {
		return nil, err
	}
	if !b.Envelope {
		return blob, nil
	}
	meta := blob["meta"].(map[string]any)
	env, err := checksum.Seal(migrate.CurrentSchema, blob, meta, meta["savedAt"].(string), b.ChecksumAlg)
	if err != nil {
		return nil, err
	}
	return env, nil
}

// Text returns the snapshot serialized for the store
func (b *Builder) Text(st *game.State) (string, error) {
	snap, err := b.Snapshot(st)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(data), nil
}

func (b *Builder) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

// DecodeSave parses stored save text. Envelopes are validated and unwrapped
// into the legacy blob shape so both formats migrate the same way. The
// result has not been migrated yet.
func DecodeSave(text string) (any, error) {
	v, err := checksum.Decode(text)
	if err != nil {
		return nil, &CorruptionError{Op: "decode", Reason: "unparseable save text", At: time.Now(), Err: err}
	}
	if !checksum.IsEnvelope(v) {
		return v, nil
	}
	if res := checksum.Validate(v); !res.OK {
		return nil, &ChecksumError{Op: "decode", Reason: res.Reason, At: time.Now()}
	}
	return unwrapEnvelope(v.(map[string]any)), nil
}

// unwrapEnvelope lifts the envelope state, filling meta from the envelope
// header wherever the state itself does not carry it
func unwrapEnvelope(env map[string]any) any {
	state, ok := env["state"].(map[string]any)
	if !ok {
		return env["state"]
	}

	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}

	meta := map[string]any{}
	if m, ok := state["meta"].(map[string]any); ok {
		for k, v := range m {
			meta[k] = v
		}
	}
	header, _ := env["meta"].(map[string]any)
	if _, ok := meta["schema"]; !ok {
		if s, ok := header["schema"]; ok {
			meta["schema"] = s
		} else if v, ok := env["version"]; ok {
			meta["schema"] = v
		}
	}
	if _, ok := meta["patch"]; !ok {
		if p, ok := header["patch"]; ok {
			meta["patch"] = p
		}
	}
	if _, ok := meta["savedAt"]; !ok {
		if at, ok := env["savedAt"]; ok {
			meta["savedAt"] = at
		}
	}
	out["meta"] = meta
	return out
}
