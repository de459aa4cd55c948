// internal/migrate/sanitize.go
package migrate

import (
	"encoding/json"
	"math"
	"strconv"
)

// maxSafeInt keeps integers inside the range older builds could represent exactly
const maxSafeInt = 1<<53 - 1

// sanitize clamps numeric fields into range and repairs combat flags. It
// returns false when the blob has no usable player record.
func sanitize(b Blob) bool {
	p, ok := b["player"].(map[string]any)
	if !ok {
		return false
	}

	p["level"] = atLeast(intOf(p["level"], 1), 1)
	p["xp"] = atLeast(intOf(p["xp"], 0), 0)
	p["gold"] = atLeast(intOf(p["gold"], 0), 0)
	clampHealth(p)

	maxMana := atLeast(intOf(p["maxMana"], 0), 0)
	p["maxMana"] = maxMana
	p["mana"] = clampInt(intOf(p["mana"], maxMana), 0, maxMana)

	b["inCombat"] = truthy(b["inCombat"])
	b["targetEnemyIndex"] = atLeast(intOf(b["targetEnemyIndex"], 0), 0)

	if list, ok := b["enemies"].([]any); ok {
		kept := make([]any, 0, len(list))
		for _, raw := range list {
			e, isObj := raw.(map[string]any)
			if !isObj {
				continue
			}
			clampHealth(e)
			kept = append(kept, e)
		}
		b["enemies"] = kept
	}
	if e, ok := b["currentEnemy"].(map[string]any); ok {
		clampHealth(e)
	}
	if b["inCombat"] == true {
		if list, _ := b["enemies"].([]any); len(list) == 0 {
			// A single-enemy fight keeps going as a one-element list
			if current, isObj := b["currentEnemy"].(map[string]any); isObj {
				b["enemies"] = []any{deepCopy(current)}
			} else {
				clearCombat(b)
			}
		}
	}

	if items, ok := b["inventory"].([]any); ok {
		for _, raw := range items {
			if item, isObj := raw.(map[string]any); isObj {
				item["quantity"] = atLeast(intOf(item["quantity"], 1), 1)
			}
		}
	}

	if c, ok := b["companion"].(map[string]any); ok {
		clampHealth(c)
	}
	if bank, ok := b["bank"].(map[string]any); ok {
		bank["balance"] = atLeast(intOf(bank["balance"], 0), 0)
	}
	return true
}

// clampHealth raises maxHp to at least max(1, hp) and then clamps hp into [0, maxHp]
func clampHealth(m map[string]any) {
	hp := intOf(m["hp"], 0)
	maxHP := intOf(m["maxHp"], 0)
	if maxHP < hp {
		maxHP = hp
	}
	if maxHP < 1 {
		maxHP = 1
	}
	m["maxHp"] = maxHP
	m["hp"] = clampInt(hp, 0, maxHP)
}

// integerize converts every number in v to a saturated int, in place
func integerize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = integerize(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = integerize(val)
		}
		return t
	default:
		if n, ok := toInt(v); ok {
			return n
		}
		return v
	}
}

// toInt converts numeric values to int, saturating at ±maxSafeInt and
// truncating fractions. Non-numbers report false.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return saturate(float64(n)), true
	case int64:
		return saturate(float64(n)), true
	case int32:
		return int(n), true
	case float64:
		return saturate(n), true
	case float32:
		return saturate(float64(n)), true
	case json.Number:
		if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
			return saturate(float64(i)), true
		}
		if f, err := n.Float64(); err == nil {
			return saturate(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func saturate(f float64) int {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= maxSafeInt:
		return maxSafeInt
	case f <= -maxSafeInt:
		return -maxSafeInt
	default:
		return int(f)
	}
}

func intOf(v any, def int) int {
	if n, ok := toInt(v); ok {
		return n
	}
	return def
}

func atLeast(v, floor int) int {
	if v < floor {
		return floor
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
