// internal/audit/audit.go
package audit

import (
	"fmt"
	"time"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/alsub25/Pocket-RPG-sub006/internal/game"
)

// Severity grades an audit report
type Severity string

const (
	SeverityOK       Severity = "ok"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Stage names the point in the lifecycle an audit runs at
type Stage string

const (
	StageSave   Stage = "save"
	StageLoad   Stage = "load"
	StageManual Stage = "manual"
)

// Rule is a named boolean expression over the audit environment. When the
// expression evaluates to true the rule reports an issue.
type Rule struct {
	Name     string
	Expr     string
	Message  string
	Severity Severity
}

// Issue is one failed rule
type Issue struct {
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Report is the result of one audit run
type Report struct {
	Stage    Stage     `json:"stage"`
	Severity Severity  `json:"severity"`
	Issues   []Issue   `json:"issues,omitempty"`
	At       time.Time `json:"at"`
}

// DefaultRules is the consistency rule set run on every save and load
var DefaultRules = []Rule{
	{Name: "missing_player", Expr: `!hasPlayer`, Message: "state has no player", Severity: SeverityCritical},
	{Name: "invalid_max_hp", Expr: `hasPlayer && maxHp < 1`, Message: "player maxHp is below 1", Severity: SeverityCritical},
	{Name: "invalid_level", Expr: `hasPlayer && level < 1`, Message: "player level is below 1", Severity: SeverityCritical},
	{Name: "hp_out_of_range", Expr: `hasPlayer && (hp < 0 || hp > maxHp)`, Message: "player hp outside [0, maxHp]", Severity: SeverityWarning},
	{Name: "negative_gold", Expr: `hasPlayer && gold < 0`, Message: "player gold is negative", Severity: SeverityWarning},
	{Name: "combat_without_enemies", Expr: `inCombat && livingEnemies == 0`, Message: "combat active with no living enemy", Severity: SeverityWarning},
	{Name: "target_out_of_range", Expr: `inCombat && (targetEnemyIndex < 0 || targetEnemyIndex >= enemyCount)`, Message: "combat target index out of range", Severity: SeverityWarning},
	{Name: "current_enemy_desync", Expr: `inCombat && !currentEnemyMatches`, Message: "currentEnemy does not match the targeted enemy", Severity: SeverityWarning},
	{Name: "stale_enemy_pointer", Expr: `!inCombat && hasCurrentEnemy`, Message: "currentEnemy set outside of combat", Severity: SeverityWarning},
	{Name: "bad_item_quantity", Expr: `badQuantities > 0`, Message: "inventory holds stacks with quantity below 1", Severity: SeverityWarning},
	{Name: "missing_clock", Expr: `stage == "load" && !hasTime`, Message: "world clock missing after load", Severity: SeverityWarning},
}

type compiledRule struct {
	Rule
	program *exprvm.Program
}

// Auditor runs a compiled rule set against live state
type Auditor struct {
	rules []compiledRule
	now   func() time.Time
}

// New compiles rules into an Auditor
func New(rules ...Rule) (*Auditor, error) {
	a := &Auditor{now: time.Now}
	sample := environment(nil, StageManual)
	for _, r := range rules {
		if r.Expr == "" {
			return nil, fmt.Errorf("audit: rule %q has empty expression", r.Name)
		}
		program, err := exprlang.Compile(r.Expr, exprlang.Env(sample), exprlang.AsBool())
		if err != nil {
			return nil, fmt.Errorf("audit: compile rule %q: %w", r.Name, err)
		}
		if r.Severity == "" {
			r.Severity = SeverityWarning
		}
		a.rules = append(a.rules, compiledRule{Rule: r, program: program})
	}
	return a, nil
}

// Default returns an Auditor over DefaultRules
func Default() *Auditor {
	a, err := New(DefaultRules...)
	if err != nil {
		panic(err)
	}
	return a
}

// Run evaluates every rule. It never fails: a rule that cannot be evaluated
// is reported as a warning.
func (a *Auditor) Run(st *game.State, stage Stage) Report {
	report := Report{Stage: stage, Severity: SeverityOK, At: a.now()}
	env := environment(st, stage)

	for _, r := range a.rules {
		out, err := exprlang.Run(r.program, env)
		if err != nil {
			report.add(Issue{Rule: r.Name, Message: fmt.Sprintf("rule failed: %v", err), Severity: SeverityWarning})
			continue
		}
		if hit, _ := out.(bool); hit {
			report.add(Issue{Rule: r.Name, Message: r.Message, Severity: r.Severity})
		}
	}
	return report
}

func (r *Report) add(issue Issue) {
	r.Issues = append(r.Issues, issue)
	if issue.Severity.rank() > r.Severity.rank() {
		r.Severity = issue.Severity
	}
}

// Critical reports whether the audit found an issue that must block a save
func (r Report) Critical() bool {
	return r.Severity == SeverityCritical
}

// environment flattens the state into the variables rules can reference
func environment(st *game.State, stage Stage) map[string]any {
	env := map[string]any{
		"stage":               string(stage),
		"hasPlayer":           false,
		"hp":                  0,
		"maxHp":               0,
		"level":               0,
		"gold":                0,
		"inCombat":            false,
		"enemyCount":          0,
		"livingEnemies":       0,
		"targetEnemyIndex":    0,
		"hasCurrentEnemy":     false,
		"currentEnemyMatches": false,
		"badQuantities":       0,
		"hasTime":             false,
	}
	if st == nil {
		return env
	}

	if p := st.Player; p != nil {
		env["hasPlayer"] = true
		env["hp"] = p.HP
		env["maxHp"] = p.MaxHP
		env["level"] = p.Level
		env["gold"] = p.Gold
	}

	living := 0
	for _, e := range st.Enemies {
		if e.Alive() {
			living++
		}
	}
	env["inCombat"] = st.InCombat
	env["enemyCount"] = len(st.Enemies)
	env["livingEnemies"] = living
	env["targetEnemyIndex"] = st.TargetEnemyIndex
	env["hasCurrentEnemy"] = st.CurrentEnemy != nil

	idx := st.TargetEnemyIndex
	env["currentEnemyMatches"] = idx >= 0 && idx < len(st.Enemies) && st.Enemies[idx] == st.CurrentEnemy

	bad := 0
	for _, item := range st.Inventory {
		if item.Quantity < 1 {
			bad++
		}
	}
	env["badQuantities"] = bad
	env["hasTime"] = st.Time != nil
	return env
}
