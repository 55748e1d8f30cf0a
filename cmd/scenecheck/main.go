// scenecheck loads a scene fixture into a fresh session and reports what each
// token sees, how every cell is lit and what the listener hears.
//
// Usage:
//
//	go run ./cmd/scenecheck -scene data/scenes/crypt.yaml [-at 90s] [-format yaml]
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/EvilPatrick06/DnD-sub018/internal/data"
	"github.com/EvilPatrick06/DnD-sub018/internal/lighting"
	"github.com/EvilPatrick06/DnD-sub018/internal/perception"
	"github.com/EvilPatrick06/DnD-sub018/internal/scripting"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Report structures
// ---------------------------------------------------------------------------

type Report struct {
	Scene    string        `yaml:"scene"`
	At       string        `yaml:"at"`
	Ambient  string        `yaml:"ambient"`
	Tokens   []TokenReport `yaml:"tokens"`
	Lights   []LightReport `yaml:"lights,omitempty"`
	Emitters []SoundReport `yaml:"emitters,omitempty"`
	Floors   []FloorMap    `yaml:"floors"`
}

type TokenReport struct {
	ID       string   `yaml:"id"`
	Cell     string   `yaml:"cell"`
	Floor    int      `yaml:"floor"`
	Cells    int      `yaml:"cells_visible"`
	Sees     []string `yaml:"sees,omitempty"`
	Lighting string   `yaml:"standing_in"`
}

type LightReport struct {
	Entity    string `yaml:"entity"`
	Name      string `yaml:"name"`
	Source    string `yaml:"source"`
	Remaining string `yaml:"remaining"`
}

type SoundReport struct {
	ID   string  `yaml:"id"`
	Gain float64 `yaml:"gain"`
}

// FloorMap is a lighting map of one floor: '#' bright, '+' dim, '.' dark.
type FloorMap struct {
	Floor int      `yaml:"floor"`
	MinX  int      `yaml:"min_x"`
	MinY  int      `yaml:"min_y"`
	Rows  []string `yaml:"rows"`
}

func main() {
	scenePath := flag.String("scene", "data/scenes/crypt.yaml", "scene fixture")
	catalogPath := flag.String("catalog", "data/yaml/light_sources.yaml", "light source table")
	scripts := flag.String("scripts", "", "illumination scripts dir (empty = built-in falloff)")
	dim := flag.Float64("dim", 0.5, "intensity of the dim ring")
	at := flag.Duration("at", 0, "evaluate this long after the scene is lit")
	format := flag.String("format", "text", "text or yaml")
	verbose := flag.Bool("v", false, "log session events")
	flag.Parse()

	log := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			log = l
		}
	}
	defer log.Sync()

	rep, err := check(*scenePath, *catalogPath, *scripts, *dim, *at, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scenecheck: %v\n", err)
		os.Exit(1)
	}
	switch *format {
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		err = enc.Encode(rep)
	default:
		err = writeText(os.Stdout, rep)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "scenecheck: %v\n", err)
		os.Exit(1)
	}
}

func check(scenePath, catalogPath, scriptsDir string, dim float64, at time.Duration, log *zap.Logger) (*Report, error) {
	sc, err := data.LoadScene(scenePath)
	if err != nil {
		return nil, err
	}
	lights, err := data.LoadLightTable(catalogPath)
	if err != nil {
		return nil, err
	}
	clock := lighting.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	opts := perception.Options{
		Name:     sc.Name,
		CellSize: sc.CellSize,
		Clock:    clock,
		Falloff:  lighting.StepFalloff{DimIntensity: dim},
	}
	if scriptsDir != "" {
		engine, err := scripting.NewEngine(scriptsDir, dim, log)
		if err != nil {
			return nil, err
		}
		defer engine.Close()
		opts.Falloff = engine
		opts.Bands = engine.Bands()
	}

	sess, err := perception.NewSession(opts, lights, log)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	if err := sess.ApplyScene(sc); err != nil {
		return nil, err
	}
	if at > 0 {
		clock.Advance(at)
		sess.Tick(clock.Now())
	}

	rep := &Report{
		Scene:   sc.Name,
		At:      at.String(),
		Ambient: sess.Ambient().Level.String(),
	}
	for _, t := range sess.Tokens() {
		set, _ := sess.VisionSet(t.ID)
		tr := TokenReport{
			ID:       t.ID,
			Cell:     t.Cell().String(),
			Floor:    t.Floor,
			Cells:    set.Len(),
			Lighting: sess.LightingAtCell(t.Floor, t.Cell()).Level.String(),
		}
		for _, other := range sess.TokensShownTo(t.ID) {
			if other.ID != t.ID && sess.IsTokenInVisionSet(t.ID, other) {
				tr.Sees = append(tr.Sees, other.ID)
			}
		}
		rep.Tokens = append(rep.Tokens, tr)
	}
	now := sess.Now()
	for _, l := range sess.ActiveLights() {
		remaining := "permanent"
		if !l.Permanent() {
			remaining = l.Remaining(now).String()
		}
		rep.Lights = append(rep.Lights, LightReport{Entity: l.EntityID, Name: l.DisplayName, Source: l.SourceKey, Remaining: remaining})
	}
	for _, e := range sess.Audio().Emitters() {
		gain, _ := sess.Audio().Volume(e.ID)
		rep.Emitters = append(rep.Emitters, SoundReport{ID: e.ID, Gain: math.Round(gain*1000) / 1000})
	}
	rep.Floors = floorMaps(sess, sc)
	return rep, nil
}

// floorMaps renders every floor that has walls or tokens over the bounding
// box of its walls and tokens.
func floorMaps(sess *perception.Session, sc *data.Scene) []FloorMap {
	type box struct{ minX, minY, maxX, maxY int }
	boxes := make(map[int]*box)
	grow := func(floor, x, y int) {
		b := boxes[floor]
		if b == nil {
			boxes[floor] = &box{x, y, x, y}
			return
		}
		b.minX, b.maxX = min(b.minX, x), max(b.maxX, x)
		b.minY, b.maxY = min(b.minY, y), max(b.maxY, y)
	}
	for _, w := range sc.Walls {
		grow(w.Floor, int(math.Floor(w.X1)), int(math.Floor(w.Y1)))
		grow(w.Floor, int(math.Floor(w.X2)), int(math.Floor(w.Y2)))
	}
	for _, t := range sess.Tokens() {
		grow(t.Floor, t.X, t.Y)
	}

	floors := make([]int, 0, len(boxes))
	for f := range boxes {
		floors = append(floors, f)
	}
	sort.Ints(floors)

	out := make([]FloorMap, 0, len(floors))
	for _, f := range floors {
		b := boxes[f]
		fm := FloorMap{Floor: f, MinX: b.minX, MinY: b.minY}
		for y := b.minY; y <= b.maxY; y++ {
			var row strings.Builder
			for x := b.minX; x <= b.maxX; x++ {
				ill := sess.GetLightingAtPoint(f, float64(x)+0.5, float64(y)+0.5)
				switch ill.Level {
				case lighting.Bright:
					row.WriteByte('#')
				case lighting.Dim:
					row.WriteByte('+')
				default:
					row.WriteByte('.')
				}
			}
			fm.Rows = append(fm.Rows, row.String())
		}
		out = append(out, fm)
	}
	return out
}

func writeText(w io.Writer, rep *Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s at +%s, ambient %s\n\n", rep.Scene, rep.At, rep.Ambient)
	b.WriteString("tokens:\n")
	for _, t := range rep.Tokens {
		sees := "no one"
		if len(t.Sees) > 0 {
			sees = strings.Join(t.Sees, ", ")
		}
		fmt.Fprintf(&b, "  %-10s %-8s floor %d  %4d cells  %-6s  sees %s\n", t.ID, t.Cell, t.Floor, t.Cells, t.Lighting, sees)
	}
	if len(rep.Lights) > 0 {
		b.WriteString("\nlights:\n")
		for _, l := range rep.Lights {
			fmt.Fprintf(&b, "  %-10s %-16s %-14s %s\n", l.Entity, l.Name, l.Source, l.Remaining)
		}
	}
	if len(rep.Emitters) > 0 {
		b.WriteString("\nemitters:\n")
		for _, e := range rep.Emitters {
			fmt.Fprintf(&b, "  %-10s gain %.3f\n", e.ID, e.Gain)
		}
	}
	for _, fm := range rep.Floors {
		fmt.Fprintf(&b, "\nfloor %d from (%d,%d):\n", fm.Floor, fm.MinX, fm.MinY)
		for _, row := range fm.Rows {
			b.WriteString("  " + row + "\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
