package world

import (
	"fmt"
	"math"
	"sort"

	"github.com/EvilPatrick06/DnD-sub018/internal/grid"
)

// Token is a snapshot of a map token in cell coordinates.
type Token struct {
	ID           string  `yaml:"id"`
	Name         string  `yaml:"name"`
	X            int     `yaml:"x"`
	Y            int     `yaml:"y"`
	Floor        int     `yaml:"floor"`
	VisionRadius float64 `yaml:"vision_radius"`
	Hidden       bool    `yaml:"hidden"` // only revealed to observers that can see it
}

// Cell returns the cell the token stands on.
func (t Token) Cell() grid.CellCoord {
	return grid.CellCoord{X: t.X, Y: t.Y}
}

func (t Token) validate() error {
	if t.ID == "" {
		return fmt.Errorf("token without id: %w", grid.ErrInvalidGeometry)
	}
	if err := grid.ValidateRadius("vision radius of "+t.ID, t.VisionRadius); err != nil {
		return err
	}
	return nil
}

// State holds the tokens of the active map as the map document last reported
// them. Accessed only from the session loop goroutine, so there are no locks.
type State struct {
	tokens map[string]*Token
	aoi    *AOIGrid
	aoiBuf []string
}

func NewState() *State {
	return &State{
		tokens: make(map[string]*Token),
		aoi:    NewAOIGrid(),
	}
}

// Place adds a token or replaces the token with the same id.
func (s *State) Place(t Token) error {
	if err := t.validate(); err != nil {
		return err
	}
	if old := s.tokens[t.ID]; old != nil {
		s.aoi.Remove(old.ID, old.X, old.Y, old.Floor)
	}
	tok := t
	s.tokens[t.ID] = &tok
	s.aoi.Add(tok.ID, tok.X, tok.Y, tok.Floor)
	return nil
}

// Move relocates a token. Returns the updated snapshot and false if the id is unknown.
func (s *State) Move(id string, x, y, floor int) (Token, bool) {
	t := s.tokens[id]
	if t == nil {
		return Token{}, false
	}
	s.aoi.Move(id, t.X, t.Y, t.Floor, x, y, floor)
	t.X, t.Y, t.Floor = x, y, floor
	return *t, true
}

// SetVisionRadius changes a token's sight range (e.g. blinded).
func (s *State) SetVisionRadius(id string, r float64) (Token, error) {
	t := s.tokens[id]
	if t == nil {
		return Token{}, fmt.Errorf("token %q not found", id)
	}
	if err := grid.ValidateRadius("vision radius of "+id, r); err != nil {
		return Token{}, err
	}
	t.VisionRadius = r
	return *t, nil
}

// Remove deletes a token and returns its last snapshot.
func (s *State) Remove(id string) (Token, bool) {
	t := s.tokens[id]
	if t == nil {
		return Token{}, false
	}
	s.aoi.Remove(id, t.X, t.Y, t.Floor)
	delete(s.tokens, id)
	return *t, true
}

// Token looks up a token snapshot by id.
func (s *State) Token(id string) (Token, bool) {
	t := s.tokens[id]
	if t == nil {
		return Token{}, false
	}
	return *t, true
}

// Anchor returns the cell centre of a token, used as a light anchor.
func (s *State) Anchor(id string) (x, y float64, floor int, ok bool) {
	t := s.tokens[id]
	if t == nil {
		return 0, 0, 0, false
	}
	x, y = t.Cell().Center()
	return x, y, t.Floor, true
}

// TokenCount returns the number of tokens on the map.
func (s *State) TokenCount() int {
	return len(s.tokens)
}

// AllTokens calls fn for every token in id order.
func (s *State) AllTokens(fn func(Token)) {
	ids := make([]string, 0, len(s.tokens))
	for id := range s.tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fn(*s.tokens[id])
	}
}

// Nearby returns tokens on the floor whose cell lies within Euclidean
// distance r of (x, y).
func (s *State) Nearby(floor, x, y int, r float64) []Token {
	if !grid.Finite(r) || r < 0 {
		return nil
	}
	reach := int(math.Ceil(r))
	s.aoiBuf = s.aoi.GetNearbyInto(x, y, floor, reach, s.aoiBuf)
	result := make([]Token, 0, len(s.aoiBuf))
	for _, id := range s.aoiBuf {
		t := s.tokens[id]
		if t == nil || t.Floor != floor {
			continue
		}
		if math.Hypot(float64(t.X-x), float64(t.Y-y)) <= r {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
