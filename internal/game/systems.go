// internal/game/systems.go
package game

import "math"

// Default world values used when a record is absent or partial
const (
	DefaultArea       = "village"
	DefaultProsperity = 50
	DefaultStability  = 50
	DefaultPriceIndex = 100
	DefaultRuler      = "Council of Elders"
	RestockInterval   = 3
)

var defaultSettlements = map[string]int{
	"village": 120,
	"farms":   60,
	"keep":    40,
}

var defaultStock = map[string]int{
	"potion": 5,
	"bread":  10,
	"arrow":  40,
}

// RescaleOptions controls companion recomputation
type RescaleOptions struct {
	// Heal restores the companion to full HP. Load passes false.
	Heal bool
}

// Systems is the reference implementation of the state factory and the
// idempotent repair helpers. Every method is safe on full, partial, or
// absent input.
type Systems struct{}

// NewSystems returns the default collaborators
func NewSystems() *Systems {
	return &Systems{}
}

// CreateEmptyState returns a fresh state with every container allocated
func (s *Systems) CreateEmptyState() *State {
	return &State{
		Player: &Player{
			Level:     1,
			HP:        20,
			MaxHP:     20,
			Mana:      5,
			MaxMana:   5,
			Base:      Stats{Attack: 3, Defense: 1, Magic: 1, Speed: 2},
			Equipment: map[string]string{},
		},
		Area:      DefaultArea,
		Inventory: []Item{},
		Quests:    map[string]Quest{},
		Log:       []LogEntry{},
		Flags:     map[string]bool{},
	}
}

// InitTime fills in the world clock
func (s *Systems) InitTime(st *State) {
	if st.Time == nil {
		st.Time = &TimeState{}
	}
	if st.Time.Day < 1 {
		st.Time.Day = 1
	}
	if st.Time.PartIndex < 0 || st.Time.PartIndex > 2 {
		st.Time.PartIndex = 0
	}
}

// InitEconomy fills in market defaults
func (s *Systems) InitEconomy(st *State) {
	if st.Economy == nil {
		st.Economy = &Economy{
			Prosperity: DefaultProsperity,
			Trade:      DefaultProsperity,
			Stability:  DefaultStability,
		}
	}
	st.Economy.Prosperity = clamp(st.Economy.Prosperity, 0, 100)
	st.Economy.Trade = clamp(st.Economy.Trade, 0, 100)
	st.Economy.Stability = clamp(st.Economy.Stability, 0, 100)
	if st.Economy.PriceIndex <= 0 {
		st.Economy.PriceIndex = DefaultPriceIndex
	}
}

// InitGovernment fills in the ruling council
func (s *Systems) InitGovernment(st *State) {
	if st.Government == nil {
		st.Government = &Government{Stability: DefaultStability}
	}
	if st.Government.Ruler == "" {
		st.Government.Ruler = DefaultRuler
	}
	st.Government.Stability = clamp(st.Government.Stability, 0, 100)
	st.Government.Unrest = clamp(st.Government.Unrest, 0, 100)
	if st.Government.Decrees == nil {
		st.Government.Decrees = []string{}
	}
}

// EnsurePopulation makes sure every known settlement has a head count
func (s *Systems) EnsurePopulation(st *State) {
	if st.Population == nil {
		st.Population = &Population{}
	}
	if st.Population.Settlements == nil {
		st.Population.Settlements = map[string]int{}
	}
	for name, count := range defaultSettlements {
		if _, ok := st.Population.Settlements[name]; !ok {
			st.Population.Settlements[name] = count
		}
	}
	for name, count := range st.Population.Settlements {
		if count < 0 {
			st.Population.Settlements[name] = 0
		}
	}
}

// InitBank fills in an empty account
func (s *Systems) InitBank(st *State) {
	if st.Bank == nil {
		st.Bank = &Bank{}
	}
	if st.Bank.Balance < 0 {
		st.Bank.Balance = 0
	}
	if st.Bank.Loans == nil {
		st.Bank.Loans = []Loan{}
	}
}

// InitMerchant stocks the village shop
func (s *Systems) InitMerchant(st *State) {
	if st.Merchant == nil {
		st.Merchant = &Merchant{}
	}
	if st.Merchant.Stock == nil {
		st.Merchant.Stock = make(map[string]int, len(defaultStock))
		for item, qty := range defaultStock {
			st.Merchant.Stock[item] = qty
		}
	}
	if st.Merchant.RestockDay <= 0 {
		day := 1
		if st.Time != nil && st.Time.Day > 0 {
			day = st.Time.Day
		}
		st.Merchant.RestockDay = day + RestockInterval
	}
}

// EnsureEnemyRuntime rebuilds the transient fields of one enemy
func (s *Systems) EnsureEnemyRuntime(e *Enemy) {
	if e == nil {
		return
	}
	if e.MaxHP < 1 {
		e.MaxHP = 1
	}
	e.HP = clamp(e.HP, 0, e.MaxHP)
	if e.Level < 1 {
		e.Level = 1
	}
	if e.Statuses == nil {
		e.Statuses = []string{}
	}
	if e.Runtime == nil {
		e.Runtime = &EnemyRuntime{Intent: "attack"}
	}
	if e.Runtime.Cooldowns == nil {
		e.Runtime.Cooldowns = map[string]int{}
	}
}

// EnsureCombatTurnState allocates the turn tracker for an active fight
func (s *Systems) EnsureCombatTurnState(st *State) {
	if !st.InCombat {
		st.Turn = nil
		return
	}
	if st.Turn == nil {
		st.Turn = &TurnState{Round: 1, PlayerTurn: true, ActionsLeft: 1}
	}
}

// EnsureCombatPointers repairs the target index and the currentEnemy pointer
// so that the single-enemy and multi-enemy views agree.
func (s *Systems) EnsureCombatPointers(st *State) {
	if !st.InCombat {
		st.CurrentEnemy = nil
		st.TargetEnemyIndex = 0
		return
	}
	if len(st.Enemies) == 0 && st.CurrentEnemy != nil {
		st.Enemies = []*Enemy{st.CurrentEnemy}
	}
	if st.TargetEnemyIndex < 0 || st.TargetEnemyIndex >= len(st.Enemies) {
		st.TargetEnemyIndex = 0
	}
	if len(st.Enemies) == 0 {
		st.CurrentEnemy = nil
		return
	}
	st.CurrentEnemy = st.Enemies[st.TargetEnemyIndex]
}

// RecalcPlayerStats derives combat stats from base values, level and gear.
// HP and mana are clamped to their maximums but never restored.
func (s *Systems) RecalcPlayerStats(st *State) {
	p := st.Player
	if p == nil {
		return
	}
	if p.Level < 1 {
		p.Level = 1
	}
	if p.Equipment == nil {
		p.Equipment = map[string]string{}
	}

	stats := p.Base
	levelBonus := p.Level - 1
	stats.Attack = SatAdd(stats.Attack, levelBonus)
	stats.Defense = SatAdd(stats.Defense, levelBonus/2)

	for _, itemID := range p.Equipment {
		for _, item := range st.Inventory {
			if item.ID != itemID {
				continue
			}
			stats.Attack = SatAdd(stats.Attack, item.Bonus.Attack)
			stats.Defense = SatAdd(stats.Defense, item.Bonus.Defense)
			stats.Magic = SatAdd(stats.Magic, item.Bonus.Magic)
			stats.Speed = SatAdd(stats.Speed, item.Bonus.Speed)
			break
		}
	}
	p.Stats = stats

	if p.MaxHP < 1 {
		p.MaxHP = 1
	}
	p.HP = clamp(p.HP, 0, p.MaxHP)
	if p.MaxMana < 0 {
		p.MaxMana = 0
	}
	p.Mana = clamp(p.Mana, 0, p.MaxMana)
}

// RescaleCompanion matches the companion to the hero's level
func (s *Systems) RescaleCompanion(st *State, opts RescaleOptions) {
	c := st.Companion
	if c == nil {
		return
	}
	level := 1
	if st.Player != nil && st.Player.Level > 0 {
		level = st.Player.Level
	}
	c.Level = level
	if c.BaseMaxHP < 1 {
		c.BaseMaxHP = 10
	}
	if c.BaseAttack < 0 {
		c.BaseAttack = 0
	}
	c.MaxHP = SatAdd(c.BaseMaxHP, 4*(level-1))
	c.Attack = SatAdd(c.BaseAttack, level-1)
	if opts.Heal {
		c.HP = c.MaxHP
		return
	}
	c.HP = clamp(c.HP, 0, c.MaxHP)
}

// SatAdd adds two ints, saturating at the int range instead of wrapping
func SatAdd(a, b int) int {
	if b > 0 && a > math.MaxInt-b {
		return math.MaxInt
	}
	if b < 0 && a < math.MinInt-b {
		return math.MinInt
	}
	return a + b
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
