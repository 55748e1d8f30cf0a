package handler

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/EvilPatrick06/DnD-sub018/internal/audio"
	"github.com/EvilPatrick06/DnD-sub018/internal/lighting"
	"github.com/EvilPatrick06/DnD-sub018/internal/occlusion"
	"github.com/EvilPatrick06/DnD-sub018/internal/perception"
	"github.com/EvilPatrick06/DnD-sub018/internal/world"
	"go.uber.org/zap"
)

var (
	ErrQuit           = errors.New("quit")
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
)

// HandleCommand parses one console line and applies it to the session,
// writing the reply to out. Blank lines and "#" comments are ignored.
// "quit" returns ErrQuit; the caller decides how to shut down.
func HandleCommand(line string, out io.Writer, deps *Deps) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	parts := strings.Fields(line)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		cmdHelp(out)
	case "place":
		err = cmdPlace(out, args, deps)
	case "move":
		err = cmdMove(out, args, deps, false)
	case "drag":
		err = cmdMove(out, args, deps, true)
	case "remove", "rm":
		err = cmdRemove(out, args, deps)
	case "sight":
		err = cmdSight(out, args, deps)
	case "light":
		err = cmdLight(out, args, deps)
	case "douse", "extinguish":
		err = cmdDouse(out, args, deps)
	case "lights":
		cmdLights(out, deps)
	case "sources":
		cmdSources(out, deps)
	case "wall":
		err = cmdWall(out, args, deps)
	case "unwall":
		err = cmdUnwall(out, args, deps)
	case "ambient":
		err = cmdAmbient(out, args, deps)
	case "look":
		err = cmdLook(out, args, deps)
	case "lux":
		err = cmdLux(out, args, deps)
	case "listen":
		err = cmdListen(out, args, deps)
	case "emitters", "sounds":
		cmdEmitters(out, deps)
	case "stats":
		cmdStats(out, deps)
	case "quit", "exit":
		return ErrQuit
	default:
		err = fmt.Errorf("%w %q, try help", ErrUnknownCommand, cmd)
	}
	if err != nil {
		deps.log().Debug("console command rejected", zap.String("line", line), zap.Error(err))
	}
	return err
}

func reply(out io.Writer, format string, a ...any) {
	fmt.Fprintf(out, format+"\n", a...)
}

func usage(form string) error {
	return fmt.Errorf("%w: %s", ErrUsage, form)
}

func parseInts(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", a)
		}
		out[i] = v
	}
	return out, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return v, nil
}

// parseDuration accepts seconds, a Go duration ("10m") or "inf".
func parseDuration(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "inf", "forever", "permanent":
		return math.Inf(1), nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a duration", s)
	}
	return d.Seconds(), nil
}

func formatRemaining(l lighting.ActiveLight, now time.Time) string {
	if l.Permanent() {
		return "permanent"
	}
	return l.Remaining(now).Truncate(time.Second).String()
}

func cmdHelp(out io.Writer) {
	reply(out, "place <id> <x> <y> [radius] [floor] [hidden]  put a token on the map")
	reply(out, "move|drag <id> <x> <y> [floor]                commit or drag a token")
	reply(out, "remove <id>                                   take a token off the map")
	reply(out, "sight <id> <radius>                           change vision radius")
	reply(out, "light <id> <source> [seconds|10m|inf]         light a source on a token")
	reply(out, "douse <id>                                    put a light out")
	reply(out, "lights | sources                              list burning lights or the catalog")
	reply(out, "wall <id> <x1> <y1> <x2> <y2> [floor]         add or move a wall")
	reply(out, "unwall <id>                                   delete a wall")
	reply(out, "ambient <dark|dim|bright|0..1>                set the ambient baseline")
	reply(out, "look <id>                                     what a token can see")
	reply(out, "lux <x> <y> [floor]                           illumination at a point")
	reply(out, "listen <id> | listen <x> <y>                  move the audio listener")
	reply(out, "emitters | stats | quit")
}

func cmdPlace(out io.Writer, args []string, deps *Deps) error {
	const form = "place <id> <x> <y> [radius] [floor] [hidden]"
	if len(args) < 3 || len(args) > 6 {
		return usage(form)
	}
	xy, err := parseInts(args[1:3])
	if err != nil {
		return err
	}
	t := world.Token{ID: args[0], Name: args[0], X: xy[0], Y: xy[1]}
	if len(args) > 3 {
		if t.VisionRadius, err = parseFloat(args[3]); err != nil {
			return err
		}
	}
	if len(args) > 4 {
		if t.Floor, err = strconv.Atoi(args[4]); err != nil {
			return fmt.Errorf("%q is not a floor", args[4])
		}
	}
	if len(args) > 5 {
		if args[5] != "hidden" {
			return usage(form)
		}
		t.Hidden = true
	}
	if err := deps.Session.PlaceToken(t); err != nil {
		return err
	}
	reply(out, "placed %s at (%d,%d) floor %d", t.ID, t.X, t.Y, t.Floor)
	return nil
}

func cmdMove(out io.Writer, args []string, deps *Deps, drag bool) error {
	if len(args) < 3 || len(args) > 4 {
		if drag {
			return usage("drag <id> <x> <y> [floor]")
		}
		return usage("move <id> <x> <y> [floor]")
	}
	nums, err := parseInts(args[1:])
	if err != nil {
		return err
	}
	floor := 0
	if cur, ok := deps.Session.Token(args[0]); ok {
		floor = cur.Floor
	}
	if len(nums) == 3 {
		floor = nums[2]
	}
	if drag {
		err = deps.Session.DragToken(args[0], nums[0], nums[1], floor)
	} else {
		err = deps.Session.MoveToken(args[0], nums[0], nums[1], floor)
	}
	if err != nil {
		return err
	}
	verb := "moved"
	if drag {
		verb = "dragging"
	}
	reply(out, "%s %s to (%d,%d) floor %d", verb, args[0], nums[0], nums[1], floor)
	return nil
}

func cmdRemove(out io.Writer, args []string, deps *Deps) error {
	if len(args) != 1 {
		return usage("remove <id>")
	}
	if !deps.Session.RemoveToken(args[0]) {
		return fmt.Errorf("remove %s: %w", args[0], perception.ErrUnknownToken)
	}
	reply(out, "removed %s", args[0])
	return nil
}

func cmdSight(out io.Writer, args []string, deps *Deps) error {
	if len(args) != 2 {
		return usage("sight <id> <radius>")
	}
	r, err := parseFloat(args[1])
	if err != nil {
		return err
	}
	if err := deps.Session.SetVisionRadius(args[0], r); err != nil {
		return err
	}
	set, _ := deps.Session.VisionSet(args[0])
	reply(out, "%s sees %d cells", args[0], set.Len())
	return nil
}

func cmdLight(out io.Writer, args []string, deps *Deps) error {
	if len(args) < 2 || len(args) > 3 {
		return usage("light <id> <source> [seconds|10m|inf]")
	}
	id, key := args[0], strings.ToLower(args[1])
	s := deps.Session
	var err error
	if len(args) == 2 {
		err = s.LightFromCatalog(id, key)
	} else {
		var dur float64
		if dur, err = parseDuration(args[2]); err != nil {
			return err
		}
		src, ok := s.Catalog().Get(key)
		if !ok {
			return fmt.Errorf("light %q on %s: %w", key, id, lighting.ErrUnknownSource)
		}
		err = s.LightSource(id, src.Label, key, dur)
	}
	if err != nil {
		return err
	}
	for _, l := range s.ActiveLights() {
		if l.EntityID == id {
			reply(out, "%s lit on %s (%s)", l.DisplayName, id, formatRemaining(l, s.Now()))
		}
	}
	return nil
}

func cmdDouse(out io.Writer, args []string, deps *Deps) error {
	if len(args) != 1 {
		return usage("douse <id>")
	}
	if !deps.Session.Extinguish(args[0]) {
		reply(out, "%s carries no light", args[0])
		return nil
	}
	reply(out, "doused %s", args[0])
	return nil
}

func cmdLights(out io.Writer, deps *Deps) {
	s := deps.Session
	lights := s.ActiveLights()
	if len(lights) == 0 {
		reply(out, "no lights burning")
		return
	}
	now := s.Now()
	for _, l := range lights {
		reply(out, "%-12s %-16s %-14s %s", l.EntityID, l.DisplayName, l.SourceKey, formatRemaining(l, now))
	}
}

func cmdSources(out io.Writer, deps *Deps) {
	if deps.Lights == nil {
		reply(out, "no light catalog loaded")
		return
	}
	for _, key := range deps.Lights.Keys() {
		src, _ := deps.Lights.Get(key)
		dur := "permanent"
		if !math.IsInf(src.DurationSeconds, 1) {
			dur = time.Duration(src.DurationSeconds * float64(time.Second)).String()
		}
		reply(out, "%-18s %-18s r%-4g bright %-4g %s", key, src.Label, src.RadiusCells, src.Bright(), dur)
	}
}

func cmdWall(out io.Writer, args []string, deps *Deps) error {
	if len(args) < 5 || len(args) > 6 {
		return usage("wall <id> <x1> <y1> <x2> <y2> [floor]")
	}
	w := occlusion.Wall{ID: args[0]}
	coords := make([]float64, 4)
	for i := range coords {
		v, err := parseFloat(args[i+1])
		if err != nil {
			return err
		}
		coords[i] = v
	}
	w.X1, w.Y1, w.X2, w.Y2 = coords[0], coords[1], coords[2], coords[3]
	if len(args) == 6 {
		f, err := strconv.Atoi(args[5])
		if err != nil {
			return fmt.Errorf("%q is not a floor", args[5])
		}
		w.Floor = f
	}
	if err := deps.Session.UpsertWall(w); err != nil {
		return err
	}
	reply(out, "wall %s (%g,%g)-(%g,%g) floor %d", w.ID, w.X1, w.Y1, w.X2, w.Y2, w.Floor)
	return nil
}

func cmdUnwall(out io.Writer, args []string, deps *Deps) error {
	if len(args) != 1 {
		return usage("unwall <id>")
	}
	if !deps.Session.RemoveWall(args[0]) {
		return fmt.Errorf("no wall %q", args[0])
	}
	reply(out, "wall %s removed", args[0])
	return nil
}

func cmdAmbient(out io.Writer, args []string, deps *Deps) error {
	s := deps.Session
	if len(args) == 0 {
		a := s.Ambient()
		reply(out, "ambient %s (%.2f)", a.Level, a.Intensity)
		return nil
	}
	if len(args) != 1 {
		return usage("ambient <dark|dim|bright|0..1>")
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		lvl, perr := lighting.ParseLevel(args[0])
		if perr != nil {
			return perr
		}
		v = lvl.Intensity()
	}
	if err := s.SetAmbient(v); err != nil {
		return err
	}
	a := s.Ambient()
	reply(out, "ambient %s (%.2f)", a.Level, a.Intensity)
	return nil
}

func cmdLook(out io.Writer, args []string, deps *Deps) error {
	if len(args) != 1 {
		return usage("look <id>")
	}
	s := deps.Session
	obs, ok := s.Token(args[0])
	if !ok {
		return fmt.Errorf("look %s: %w", args[0], perception.ErrUnknownToken)
	}
	set, _ := s.VisionSet(obs.ID)
	var seen []string
	for _, t := range s.TokensShownTo(obs.ID) {
		if t.ID == obs.ID || !s.IsTokenInVisionSet(obs.ID, t) {
			continue
		}
		seen = append(seen, t.ID)
	}
	ill := s.LightingAtCell(obs.Floor, obs.Cell())
	reply(out, "%s at %s floor %d: %d cells, standing in %s light", obs.ID, obs.Cell(), obs.Floor, set.Len(), ill.Level)
	if len(seen) == 0 {
		reply(out, "  sees no one")
		return nil
	}
	reply(out, "  sees %s", strings.Join(seen, ", "))
	return nil
}

func cmdLux(out io.Writer, args []string, deps *Deps) error {
	if len(args) < 2 || len(args) > 3 {
		return usage("lux <x> <y> [floor]")
	}
	x, err := parseFloat(args[0])
	if err != nil {
		return err
	}
	y, err := parseFloat(args[1])
	if err != nil {
		return err
	}
	floor := 0
	if len(args) == 3 {
		if floor, err = strconv.Atoi(args[2]); err != nil {
			return fmt.Errorf("%q is not a floor", args[2])
		}
	}
	ill := deps.Session.GetLightingAtPoint(floor, x, y)
	src := ill.SourceEntity
	if src == "" {
		src = "ambient"
	}
	reply(out, "%s %.2f from %s %s", ill.Level, ill.Intensity, src, ill.Color)
	return nil
}

func cmdListen(out io.Writer, args []string, deps *Deps) error {
	s := deps.Session
	switch len(args) {
	case 1:
		if err := s.BindListener(args[0]); err != nil {
			return err
		}
		reply(out, "listener follows %s", args[0])
	case 2:
		x, err := parseFloat(args[0])
		if err != nil {
			return err
		}
		y, err := parseFloat(args[1])
		if err != nil {
			return err
		}
		if err := s.SetListener(x, y); err != nil {
			return err
		}
		reply(out, "listener at (%g,%g)", x, y)
	default:
		return usage("listen <id> | listen <x> <y>")
	}
	return nil
}

func cmdEmitters(out io.Writer, deps *Deps) {
	layer := deps.Session.Audio()
	emitters := layer.Emitters()
	if len(emitters) == 0 {
		reply(out, "no emitters")
		return
	}
	for _, e := range emitters {
		v, _ := layer.Volume(e.ID)
		reply(out, "%-12s %-18s %s gain %.2f", e.ID, e.Track, describeEmitter(e), v)
	}
}

func describeEmitter(e audio.Emitter) string {
	state := "playing"
	if !e.Playing {
		state = "paused"
	}
	if !e.Spatial {
		return state + " everywhere"
	}
	return fmt.Sprintf("%s at (%g,%g) r%g", state, e.X, e.Y, e.Radius)
}

func cmdStats(out io.Writer, deps *Deps) {
	st := deps.Session.Stats()
	reply(out, "%s: %d tokens, %d observers, %d walls, %d lights, %d emitters",
		deps.Session.Name(), st.Tokens, st.Observers, st.Walls, st.Lights, st.Emitters)
}
