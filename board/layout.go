package board

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default_layout.yaml
var defaultLayout []byte

// Layout describes the slots of a table and the things placed on it at the
// start of a match.
type Layout struct {
	Slots  []SlotGroup  `yaml:"slots"`
	Things []ThingGroup `yaml:"things"`
}

// SlotGroup expands to Count slots named "<Name>.<i>", placed at
// Origin + i*Step.
type SlotGroup struct {
	Name      string     `yaml:"name"`
	Count     int        `yaml:"count"`
	Origin    [3]float64 `yaml:"origin"`
	Step      [3]float64 `yaml:"step"`
	Rotations []Rotation `yaml:"rotations"`
}

// ThingGroup lists things of one type. Ranks come either from Indices or
// from the range From..To repeated Copies times, skipping Except. Things fill
// the free slots of SlotGroup in order.
type ThingGroup struct {
	Type      ThingType `yaml:"type"`
	Indices   []int     `yaml:"indices"`
	From      int       `yaml:"from"`
	To        int       `yaml:"to"`
	Copies    int       `yaml:"copies"`
	Except    []int     `yaml:"except"`
	SlotGroup string    `yaml:"slot_group"`
}

func (g ThingGroup) ranks() []int {
	if len(g.Indices) > 0 {
		return g.Indices
	}
	skip := make(map[int]bool, len(g.Except))
	for _, e := range g.Except {
		skip[e] = true
	}
	copies := g.Copies
	if copies == 0 {
		copies = 1
	}
	var out []int
	for c := 0; c < copies; c++ {
		for r := g.From; r <= g.To; r++ {
			if !skip[r] {
				out = append(out, r)
			}
		}
	}
	return out
}

// DefaultLayout returns the embedded layout.
//
// Postcondition: Returns a validated Layout or a non-nil error.
func DefaultLayout() (*Layout, error) {
	return ParseLayout(defaultLayout)
}

// LoadLayout reads a layout from a YAML file. An empty path selects the
// embedded default.
//
// Postcondition: Returns a validated Layout or a non-nil error.
func LoadLayout(path string) (*Layout, error) {
	if path == "" {
		return DefaultLayout()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading layout file %s: %w", path, err)
	}
	return ParseLayout(data)
}

// ParseLayout parses and validates a layout from YAML bytes.
//
// Precondition: data must be valid YAML conforming to the layout schema.
// Postcondition: Returns a validated Layout or a non-nil error.
func ParseLayout(data []byte) (*Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parsing layout YAML: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Validate checks group names, counts and that every thing group fits in its
// slot group.
func (l *Layout) Validate() error {
	var errs []error
	capacity := make(map[string]int, len(l.Slots))
	for _, g := range l.Slots {
		switch {
		case g.Name == "":
			errs = append(errs, errors.New("slot group name must not be empty"))
			continue
		case g.Count < 1:
			errs = append(errs, fmt.Errorf("slot group %q: count must be >= 1, got %d", g.Name, g.Count))
		case len(g.Rotations) == 0:
			errs = append(errs, fmt.Errorf("slot group %q: at least one rotation required", g.Name))
		}
		if _, dup := capacity[g.Name]; dup {
			errs = append(errs, fmt.Errorf("slot group %q defined twice", g.Name))
		}
		capacity[g.Name] += g.Count
	}
	for i, g := range l.Things {
		switch g.Type {
		case Tile, Stick, Marker:
		default:
			errs = append(errs, fmt.Errorf("thing group %d: unknown type %q", i, g.Type))
		}
		room, ok := capacity[g.SlotGroup]
		if !ok {
			errs = append(errs, fmt.Errorf("thing group %d: unknown slot group %q", i, g.SlotGroup))
			continue
		}
		n := len(g.ranks())
		if n == 0 {
			errs = append(errs, fmt.Errorf("thing group %d: no things", i))
		}
		if n > room {
			errs = append(errs, fmt.Errorf("thing group %d: %d things exceed %d free slots in %q", i, n, room, g.SlotGroup))
		}
		capacity[g.SlotGroup] = room - n
	}
	return errors.Join(errs...)
}

// New builds a fresh board from l with every thing placed, unclaimed and
// at rotation 0.
//
// Precondition: l must have passed Validate.
func New(l *Layout) *Board {
	b := &Board{slotByName: make(map[string]int)}
	groupSlots := make(map[string][]int, len(l.Slots))
	for _, g := range l.Slots {
		for i := 0; i < g.Count; i++ {
			s := Slot{
				Name:      fmt.Sprintf("%s.%d", g.Name, i),
				Rotations: g.Rotations,
				occupant:  None,
			}
			for k := range s.Position {
				s.Position[k] = g.Origin[k] + float64(i)*g.Step[k]
			}
			b.slotByName[s.Name] = len(b.slots)
			groupSlots[g.Name] = append(groupSlots[g.Name], len(b.slots))
			b.slots = append(b.slots, s)
		}
	}
	for _, g := range l.Things {
		free := groupSlots[g.SlotGroup]
		for _, rank := range g.ranks() {
			slot := free[0]
			free = free[1:]
			idx := len(b.things)
			b.things = append(b.things, Thing{
				Index:     idx,
				Type:      g.Type,
				TypeIndex: rank,
				ClaimedBy: None,
				slot:      slot,
				shiftSlot: None,
			})
			b.slots[slot].occupant = idx
		}
		groupSlots[g.SlotGroup] = free
	}
	return b
}
