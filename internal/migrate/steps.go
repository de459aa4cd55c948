// internal/migrate/steps.go
package migrate

import "fmt"

// 1 -> 2: allocate the containers later code assumes exist
func fillContainers(b Blob) {
	if _, ok := b["inventory"].([]any); !ok {
		b["inventory"] = []any{}
	}
	switch b["quests"].(type) {
	case map[string]any, []any:
		// a legacy list is keyed in step 5
	default:
		b["quests"] = map[string]any{}
	}
	if _, ok := b["flags"].(map[string]any); !ok {
		b["flags"] = map[string]any{}
	}

	logs, ok := b["log"].([]any)
	if !ok {
		logs = []any{}
	}
	for i, entry := range logs {
		if text, isText := entry.(string); isText {
			logs[i] = map[string]any{"text": text, "kind": "info", "day": 0}
		}
	}
	b["log"] = logs

	if p, ok := b["player"].(map[string]any); ok {
		if _, ok := p["equipment"].(map[string]any); !ok {
			p["equipment"] = map[string]any{}
		}
	}
}

// 2 -> 3: move renamed fields to their canonical names
func normalizeAliases(b Blob) {
	p, hasPlayer := b["player"].(map[string]any)
	if hasPlayer {
		if gold, ok := b["gold"]; ok {
			if _, has := p["gold"]; !has {
				p["gold"] = gold
			}
		}
		renameKey(p, "health", "hp")
		renameKey(p, "maxHealth", "maxHp")
		renameKey(p, "exp", "xp")
		renameKey(p, "heroName", "name")
		renameKey(p, "class", "classId")
	}
	delete(b, "gold")

	items, _ := b["inventory"].([]any)
	for i, raw := range items {
		switch item := raw.(type) {
		case string:
			// Very old builds stored bare item ids
			items[i] = map[string]any{"id": item, "name": item, "kind": "misc", "quantity": 1}
		case map[string]any:
			renameKey(item, "qty", "quantity")
			renameKey(item, "count", "quantity")
			qty, ok := item["quantity"].(int)
			if !ok || qty < 1 {
				qty = 1
			}
			item["quantity"] = qty
		}
	}
}

// 3 -> 4: introduce the enemy list alongside the single currentEnemy field
func splitEnemies(b Blob) {
	if _, ok := b["enemies"].([]any); !ok {
		if current, isObj := b["currentEnemy"].(map[string]any); isObj {
			b["enemies"] = []any{deepCopy(current)}
		} else {
			b["enemies"] = []any{}
		}
	}
	if _, ok := b["targetEnemyIndex"].(int); !ok {
		b["targetEnemyIndex"] = 0
	}

	b["inCombat"] = truthy(b["inCombat"])
	if b["inCombat"] == true && len(b["enemies"].([]any)) == 0 {
		clearCombat(b)
	}
}

// 4 -> 5: world sub-records. Absent records stay null and are materialized by
// the initializers at load time.
func addWorldRecords(b Blob) {
	if area, ok := b["area"].(string); !ok || area == "" {
		b["area"] = "village"
	}

	if _, ok := b["time"].(map[string]any); !ok {
		day, ok := b["day"].(int)
		if !ok || day < 1 {
			day = 1
		}
		b["time"] = map[string]any{"day": day, "partIndex": 0}
	}
	delete(b, "day")

	if balance, ok := b["bankBalance"]; ok {
		if _, has := b["bank"].(map[string]any); !has {
			b["bank"] = map[string]any{"balance": balance}
		}
		delete(b, "bankBalance")
	}

	for _, key := range []string{"economy", "government", "population", "bank", "merchant"} {
		if _, ok := b[key].(map[string]any); !ok {
			b[key] = nil
		}
	}
}

// 5 -> 6: quests keyed by id, companion slot, and nested base stats
func keyQuestsAndBaseStats(b Blob) {
	if list, ok := b["quests"].([]any); ok {
		keyed := make(map[string]any, len(list))
		for i, raw := range list {
			q, isObj := raw.(map[string]any)
			if !isObj {
				continue
			}
			id, _ := q["id"].(string)
			if id == "" {
				id = fmt.Sprintf("quest_%d", i)
				q["id"] = id
			}
			keyed[id] = q
		}
		b["quests"] = keyed
	}

	if _, ok := b["companion"]; !ok {
		b["companion"] = nil
	}

	p, ok := b["player"].(map[string]any)
	if !ok {
		return
	}
	if _, ok := p["base"].(map[string]any); ok {
		return
	}
	base := map[string]any{"attack": 1, "defense": 0, "magic": 0, "speed": 1}
	for _, stat := range []string{"attack", "defense", "magic", "speed"} {
		if v, ok := p[stat].(int); ok {
			base[stat] = v
		}
		delete(p, stat)
	}
	p["base"] = base
}

func renameKey(m map[string]any, from, to string) {
	v, ok := m[from]
	if !ok {
		return
	}
	if _, has := m[to]; !has {
		m[to] = v
	}
	delete(m, from)
}

func clearCombat(b Blob) {
	b["inCombat"] = false
	b["currentEnemy"] = nil
	b["targetEnemyIndex"] = 0
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case string:
		return t != "" && t != "false" && t != "0"
	default:
		return false
	}
}
