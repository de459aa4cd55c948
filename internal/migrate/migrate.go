// internal/migrate/migrate.go
package migrate

import (
	"fmt"
	"time"
)

// CurrentSchema is the schema version written by this build
const CurrentSchema = 6

// Keys set on a corruption stub
const (
	CorruptKey = "__corrupt"
	ReasonKey  = "__reason"
)

// Blob is the generic, JSON-shaped form of a save
type Blob = map[string]any

// step upgrades a blob from schema From to From+1. Every step must be pure
// with respect to anything but its argument, and idempotent.
type step struct {
	From  int
	Name  string
	Apply func(Blob)
}

var steps = []step{
	{From: 1, Name: "containers", Apply: fillContainers},
	{From: 2, Name: "field-aliases", Apply: normalizeAliases},
	{From: 3, Name: "multi-enemy", Apply: splitEnemies},
	{From: 4, Name: "world-records", Apply: addWorldRecords},
	{From: 5, Name: "quest-map", Apply: keyQuestsAndBaseStats},
}

var stepIndex = mustIndex(steps)

// mustIndex panics at startup when the step table leaves a version gap, so a
// missing migration can never be skipped silently at load time.
func mustIndex(list []step) map[int]step {
	idx, err := indexSteps(list, CurrentSchema)
	if err != nil {
		panic(err)
	}
	return idx
}

func indexSteps(list []step, current int) (map[int]step, error) {
	idx := make(map[int]step, len(list))
	for _, s := range list {
		if s.From < 1 || s.From >= current {
			return nil, fmt.Errorf("migrate: step %q starts at schema %d outside [1,%d)", s.Name, s.From, current)
		}
		if s.Apply == nil {
			return nil, fmt.Errorf("migrate: step %q has no transform", s.Name)
		}
		if prev, dup := idx[s.From]; dup {
			return nil, fmt.Errorf("migrate: steps %q and %q both start at schema %d", prev.Name, s.Name, s.From)
		}
		idx[s.From] = s
	}
	for v := 1; v < current; v++ {
		if _, ok := idx[v]; !ok {
			return nil, fmt.Errorf("migrate: no step from schema %d to %d", v, v+1)
		}
	}
	return idx, nil
}

// Migrator upgrades save blobs to CurrentSchema
type Migrator struct {
	// Patch is stamped on blobs that carry no build label
	Patch string
	Now   func() time.Time
}

// New creates a Migrator stamping the given build label
func New(patch string) *Migrator {
	return &Migrator{Patch: patch, Now: time.Now}
}

var defaultMigrator = New("unknown")

// Migrate upgrades raw with the default migrator
func Migrate(raw any) Blob {
	return defaultMigrator.Migrate(raw)
}

// Migrate returns an up-to-date copy of raw, or a corruption stub when raw is
// unusable. raw itself is never modified.
func (m *Migrator) Migrate(raw any) Blob {
	src, ok := raw.(map[string]any)
	if !ok || src == nil {
		return m.corrupt("save data is not an object")
	}

	blob := deepCopy(src).(map[string]any)
	integerize(blob)

	meta := m.ensureMeta(blob)
	version := schemaOf(meta)
	if version > CurrentSchema {
		return m.corrupt(fmt.Sprintf("save schema %d is newer than supported schema %d", version, CurrentSchema))
	}

	for version < CurrentSchema {
		stepIndex[version].Apply(blob)
		version++
		meta["schema"] = version
	}

	if !sanitize(blob) {
		return m.corrupt("save has no player record")
	}
	meta["schema"] = CurrentSchema
	return blob
}

// IsCorrupt reports whether b is a corruption stub
func IsCorrupt(b Blob) bool {
	if b == nil {
		return true
	}
	flag, _ := b[CorruptKey].(bool)
	return flag
}

// CorruptReason returns the reason recorded on a corruption stub
func CorruptReason(b Blob) string {
	reason, _ := b[ReasonKey].(string)
	return reason
}

func (m *Migrator) corrupt(reason string) Blob {
	return Blob{
		CorruptKey: true,
		ReasonKey:  reason,
		"meta":     m.freshMeta(),
	}
}

func (m *Migrator) freshMeta() map[string]any {
	return map[string]any{
		"schema":  CurrentSchema,
		"patch":   m.patch(),
		"savedAt": m.now().UTC().Format(time.RFC3339Nano),
	}
}

func (m *Migrator) patch() string {
	if m.Patch == "" {
		return "unknown"
	}
	return m.Patch
}

func (m *Migrator) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

// ensureMeta returns the blob's meta record, creating it and filling the
// schema, patch and savedAt stamps when absent.
func (m *Migrator) ensureMeta(blob Blob) map[string]any {
	meta, ok := blob["meta"].(map[string]any)
	if !ok {
		meta = map[string]any{}
		blob["meta"] = meta
	}

	// Pre-meta builds stamped a top-level version number
	if legacy, ok := blob["version"].(int); ok {
		if _, has := meta["schema"]; !has {
			meta["schema"] = legacy
		}
		delete(blob, "version")
	}

	if v, ok := meta["schema"].(int); !ok || v < 1 {
		meta["schema"] = 1
	}
	if p, ok := meta["patch"].(string); !ok || p == "" {
		meta["patch"] = m.patch()
	}
	switch at := meta["savedAt"].(type) {
	case string:
		if at == "" {
			meta["savedAt"] = m.now().UTC().Format(time.RFC3339Nano)
		}
	case int:
		// Older builds stored epoch milliseconds
		meta["savedAt"] = time.UnixMilli(int64(at)).UTC().Format(time.RFC3339Nano)
	default:
		meta["savedAt"] = m.now().UTC().Format(time.RFC3339Nano)
	}
	return meta
}

func schemaOf(meta map[string]any) int {
	v, _ := meta["schema"].(int)
	if v < 1 {
		return 1
	}
	return v
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
