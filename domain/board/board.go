package board

import (
	"encoding/json"
	"errors"
)

var (
	ErrOutOfBounds   = errors.New("position out of bounds")
	ErrNotAdjacent   = errors.New("tiles are not adjacent")
	ErrNotOwned      = errors.New("source tile not owned by mover")
	ErrImpassable    = errors.New("target tile is impassable")
	ErrNothingToMove = errors.New("no movable units")
)

// Pos addresses a tile on the board.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Board is a W×H grid stored row-major.
type Board struct {
	W, H  int
	Tiles []Tile
}

// NewBoard returns a board of neutral plain tiles.
func NewBoard(w, h int) *Board {
	b := &Board{W: w, H: h, Tiles: make([]Tile, w*h)}
	for i := range b.Tiles {
		x, y := b.xy(i)
		b.Tiles[i] = Tile{X: x, Y: y, Type: Plain}
	}
	return b
}

func (b *Board) idx(x, y int) int      { return y*b.W + x }
func (b *Board) xy(idx int) (int, int) { return idx % b.W, idx / b.W }

func (b *Board) InBounds(p Pos) bool {
	return p.X >= 0 && p.X < b.W && p.Y >= 0 && p.Y < b.H
}

// Tile returns the tile at p, or nil when p is outside the board.
func (b *Board) Tile(p Pos) *Tile {
	if !b.InBounds(p) {
		return nil
	}
	return &b.Tiles[b.idx(p.X, p.Y)]
}

func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	c := &Board{W: b.W, H: b.H, Tiles: make([]Tile, len(b.Tiles))}
	copy(c.Tiles, b.Tiles)
	return c
}

// Rows returns the grid as [y][x] for serialization.
func (b *Board) Rows() [][]Tile {
	rows := make([][]Tile, b.H)
	for y := range rows {
		rows[y] = append([]Tile(nil), b.Tiles[y*b.W:(y+1)*b.W]...)
	}
	return rows
}

func (b *Board) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Rows())
}

// Move sends every movable unit of from into the orthogonally adjacent tile to.
// It returns the number of units deployed.
func (b *Board) Move(from, to Pos, color int16) (int64, error) {
	src, dst := b.Tile(from), b.Tile(to)
	if src == nil || dst == nil {
		return 0, ErrOutOfBounds
	}
	if manhattan(from, to) != 1 {
		return 0, ErrNotAdjacent
	}
	if src.Color != color {
		return 0, ErrNotOwned
	}
	if !dst.Type.Passable() {
		return 0, ErrImpassable
	}
	units := src.MovableUnits()
	if units == 0 {
		return 0, ErrNothingToMove
	}
	src.Units -= units
	dst.Enter(src.Color, src.Team, units)
	return units, nil
}

func manhattan(a, b Pos) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}
