// Package races holds the catalog of races an activity can be fitted to.
package races

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jrgparkinson/tracksplits/internal/models"
)

//go:embed races.toml
var defaultCatalog string

var (
	ErrUnknownRace   = errors.New("unknown race")
	ErrDuplicateRace = errors.New("duplicate race")
	ErrInvalidRace   = errors.New("invalid race")
)

// Catalog is an immutable, ordered set of races keyed by display name.
type Catalog struct {
	races  []models.Race
	byName map[string]int
}

type catalogFile struct {
	Race []models.Race `toml:"race"`
}

// New builds a catalog from races, keeping their order.
func New(races []models.Race) (*Catalog, error) {
	c := &Catalog{
		races:  make([]models.Race, 0, len(races)),
		byName: make(map[string]int, len(races)),
	}
	for _, r := range races {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRace, err)
		}
		if _, ok := c.byName[r.DisplayName]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRace, r.DisplayName)
		}
		c.byName[r.DisplayName] = len(c.races)
		c.races = append(c.races, r)
	}
	return c, nil
}

// Load reads a TOML catalog of [[race]] tables.
func Load(r io.Reader) (*Catalog, error) {
	var f catalogFile
	md, err := toml.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse race catalog: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("race catalog has unknown keys: %v", undecoded)
	}
	if len(f.Race) == 0 {
		return nil, errors.New("race catalog is empty")
	}
	return New(f.Race)
}

// LoadFile reads a TOML catalog from path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open race catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Default returns the built-in catalog of standard track races.
func Default() *Catalog {
	c, err := Load(strings.NewReader(defaultCatalog))
	if err != nil {
		panic(fmt.Sprintf("races: embedded catalog is invalid: %v", err))
	}
	return c
}

// Lookup finds a race by display name.
func (c *Catalog) Lookup(name string) (models.Race, error) {
	i, ok := c.byName[name]
	if !ok {
		return models.Race{}, fmt.Errorf("%w: %q", ErrUnknownRace, name)
	}
	return c.races[i], nil
}

// Races returns a copy of the catalog in order.
func (c *Catalog) Races() []models.Race {
	return append([]models.Race(nil), c.races...)
}

// Names lists the race names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.races))
	for i, r := range c.races {
		names[i] = r.DisplayName
	}
	return names
}

// Len is the number of races in the catalog.
func (c *Catalog) Len() int { return len(c.races) }
