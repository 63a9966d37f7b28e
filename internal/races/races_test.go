package races

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jrgparkinson/tracksplits/internal/models"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	if c.Len() == 0 {
		t.Fatal("default catalog is empty")
	}

	r, err := c.Lookup("1500m")
	if err != nil {
		t.Fatalf("Lookup(1500m): %v", err)
	}
	want := models.Race{DisplayName: "1500m", Distance: 1500, LapLength: 400}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("Lookup(1500m) mismatch (-want +got):\n%s", diff)
	}

	names := c.Names()
	if names[0] != "200m" || names[len(names)-1] != "10000m" {
		t.Errorf("default catalog order changed: %v", names)
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Default().Lookup("marathon")
	if !errors.Is(err, ErrUnknownRace) {
		t.Fatalf("expected ErrUnknownRace, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	src := `
[[race]]
display_name = "Indoor 1500m"
distance = 1500
lap_length = 200

[[race]]
display_name = "Indoor 3000m"
distance = 3000
lap_length = 200
`
	c, err := Load(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []models.Race{
		{DisplayName: "Indoor 1500m", Distance: 1500, LapLength: 200},
		{DisplayName: "Indoor 3000m", Distance: 3000, LapLength: 200},
	}
	if diff := cmp.Diff(want, c.Races()); diff != "" {
		t.Errorf("Races() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejects(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want error
	}{
		{
			name: "duplicate name",
			src: `
[[race]]
display_name = "800m"
distance = 800
lap_length = 200
[[race]]
display_name = "800m"
distance = 800
lap_length = 400
`,
			want: ErrDuplicateRace,
		},
		{
			name: "zero distance",
			src: `
[[race]]
display_name = "broken"
distance = 0
lap_length = 400
`,
			want: ErrInvalidRace,
		},
		{
			name: "missing lap length",
			src: `
[[race]]
display_name = "broken"
distance = 1500
`,
			want: ErrInvalidRace,
		},
	}

	for _, tc := range testCases {
		_, err := Load(strings.NewReader(tc.src))
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestLoadUnknownKeys(t *testing.T) {
	src := `
[[race]]
display_name = "1500m"
distance = 1500
lap_length = 400
laps = 3.75
`
	if _, err := Load(strings.NewReader(src)); err == nil {
		t.Fatal("expected an error for an unknown key")
	}
}

func TestLoadEmpty(t *testing.T) {
	if _, err := Load(strings.NewReader("")); err == nil {
		t.Fatal("expected an error for an empty catalog")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "races.toml")
	src := "[[race]]\ndisplay_name = \"Mile\"\ndistance = 1609.34\nlap_length = 400\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 race, got %d", c.Len())
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestRacesReturnsCopy(t *testing.T) {
	c := Default()
	rs := c.Races()
	rs[0].Distance = -1
	r, _ := c.Lookup(rs[0].DisplayName)
	if r.Distance == -1 {
		t.Fatal("mutating Races() changed the catalog")
	}
}
