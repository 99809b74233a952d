package board

// TileType is the terrain of a single grid cell.
type TileType int

const (
	King     TileType = iota // crown, one per player
	City                     // spawner
	Fog                      // unknown to the viewer, no owner
	Obstacle                 // city or mountain, unknown to the viewer
	Plain
	Mountain
	Swamp
)

func (t TileType) String() string {
	switch t {
	case King:
		return "king"
	case City:
		return "city"
	case Fog:
		return "fog"
	case Obstacle:
		return "obstacle"
	case Plain:
		return "plain"
	case Mountain:
		return "mountain"
	case Swamp:
		return "swamp"
	}
	return "unknown"
}

// Passable reports whether armies can move onto the terrain.
func (t TileType) Passable() bool {
	return t != Mountain && t != Obstacle
}

// Tile is one cell of the room board. Color 0 means neutral.
type Tile struct {
	X              int      `json:"x"`
	Y              int      `json:"y"`
	Type           TileType `json:"type"`
	Units          int64    `json:"unit"`
	Color          int16    `json:"color"`
	Team           int16    `json:"team"`
	AlwaysRevealed bool     `json:"is_always_revealed"`
}

// InitKing places a king with its single starting unit.
func (t *Tile) InitKing(color, team int16) {
	t.Type = King
	t.Units = 1
	t.DominatedBy(color, team)
}

func (t *Tile) DominatedBy(color, team int16) {
	t.Color = color
	t.Team = team
}

// Enter resolves a force of units arriving on the tile.
//
// Friendly forces reinforce and take over ownership, except on a king whose
// color never changes this way. Hostile forces fight the garrison: the tile
// falls to the attacker only when it brings strictly more units.
func (t *Tile) Enter(color, team int16, units int64) {
	if t.Team == team {
		t.Units += units
		if t.Type != King {
			t.DominatedBy(color, team)
		}
		return
	}
	if t.Units >= units {
		t.Units -= units
		return
	}
	t.Units = units - t.Units
	t.DominatedBy(color, team)
}

// MovableUnits is the part of the garrison that may leave. One unit always stays.
func (t *Tile) MovableUnits() int64 {
	return max(t.Units-1, 0)
}
