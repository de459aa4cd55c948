// internal/game/models.go
package game

// State is the authoritative live state of one playthrough
type State struct {
	Player     *Player     `json:"player"`
	Area       string      `json:"area"`
	Time       *TimeState  `json:"time"`
	Economy    *Economy    `json:"economy"`
	Government *Government `json:"government"`
	Population *Population `json:"population"`
	Bank       *Bank       `json:"bank"`
	Merchant   *Merchant   `json:"merchant"`

	InCombat         bool     `json:"inCombat"`
	Enemies          []*Enemy `json:"enemies"`
	TargetEnemyIndex int      `json:"targetEnemyIndex"`
	CurrentEnemy     *Enemy   `json:"currentEnemy"`

	Inventory []Item           `json:"inventory"`
	Quests    map[string]Quest `json:"quests"`
	Companion *Companion       `json:"companion"`
	Log       []LogEntry       `json:"log"`
	Flags     map[string]bool  `json:"flags"`
	Meta      Meta             `json:"meta"`

	// Turn is rebuilt on load and never persisted
	Turn *TurnState `json:"-"`
}

// Meta is the version stamp carried by every save blob
type Meta struct {
	Schema  int    `json:"schema"`
	Patch   string `json:"patch"`
	SavedAt string `json:"savedAt"`
}

// Stats holds combat attributes
type Stats struct {
	Attack  int `json:"attack"`
	Defense int `json:"defense"`
	Magic   int `json:"magic"`
	Speed   int `json:"speed"`
}

// Player is the hero entity
type Player struct {
	Name      string            `json:"name"`
	ClassID   string            `json:"classId"`
	ClassName string            `json:"className"`
	Level     int               `json:"level"`
	XP        int               `json:"xp"`
	HP        int               `json:"hp"`
	MaxHP     int               `json:"maxHp"`
	Mana      int               `json:"mana"`
	MaxMana   int               `json:"maxMana"`
	Gold      int               `json:"gold"`
	Base      Stats             `json:"base"`
	Stats     Stats             `json:"stats"`
	Equipment map[string]string `json:"equipment"`
}

// Enemy is one combatant on the enemy side
type Enemy struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Level    int      `json:"level"`
	HP       int      `json:"hp"`
	MaxHP    int      `json:"maxHp"`
	Attack   int      `json:"attack"`
	Defense  int      `json:"defense"`
	Statuses []string `json:"statuses"`

	Runtime *EnemyRuntime `json:"-"`
}

// Alive reports whether the enemy can still act
func (e *Enemy) Alive() bool {
	return e != nil && e.HP > 0
}

// EnemyRuntime holds per-fight fields that are cheaper to rebuild than persist
type EnemyRuntime struct {
	Intent    string         `json:"intent"`
	Cooldowns map[string]int `json:"cooldowns"`
	Stunned   bool           `json:"stunned"`
}

// TurnState tracks whose turn it is during a fight
type TurnState struct {
	Round       int  `json:"round"`
	PlayerTurn  bool `json:"playerTurn"`
	ActionsLeft int  `json:"actionsLeft"`
}

// Item is one inventory stack
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Quantity int    `json:"quantity"`
	Slot     string `json:"slot,omitempty"`
	Bonus    Stats  `json:"bonus"`
}

// Quest tracks progress on one quest line
type Quest struct {
	ID     string `json:"id"`
	Stage  int    `json:"stage"`
	Status string `json:"status"`
}

// Companion is the optional party member that scales with the hero
type Companion struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Level      int    `json:"level"`
	HP         int    `json:"hp"`
	MaxHP      int    `json:"maxHp"`
	BaseMaxHP  int    `json:"baseMaxHp"`
	Attack     int    `json:"attack"`
	BaseAttack int    `json:"baseAttack"`
}

// LogEntry is one line of the adventure log
type LogEntry struct {
	Text string `json:"text"`
	Kind string `json:"kind"`
	Day  int    `json:"day"`
}

// TimeState is the world clock
type TimeState struct {
	Day       int `json:"day"`
	PartIndex int `json:"partIndex"`
}

// Economy is the regional market condition
type Economy struct {
	Prosperity int `json:"prosperity"`
	Trade      int `json:"trade"`
	Stability  int `json:"stability"`
	PriceIndex int `json:"priceIndex"`
}

// Government is the ruling council state
type Government struct {
	Ruler     string   `json:"ruler"`
	Stability int      `json:"stability"`
	Unrest    int      `json:"unrest"`
	Decrees   []string `json:"decrees"`
}

// Population tracks settlement head counts
type Population struct {
	Settlements map[string]int `json:"settlements"`
}

// Bank holds the hero's deposits and loans
type Bank struct {
	Balance    int    `json:"balance"`
	Loans      []Loan `json:"loans"`
	LastPaidOn int    `json:"lastPaidOn"`
}

// Loan is one outstanding bank loan
type Loan struct {
	Principal int `json:"principal"`
	RatePct   int `json:"ratePct"`
	DueDay    int `json:"dueDay"`
}

// Merchant is the village shop stock
type Merchant struct {
	Stock      map[string]int `json:"stock"`
	RestockDay int            `json:"restockDay"`
}
