package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/EvilPatrick06/DnD-sub018/internal/audio"
	"github.com/EvilPatrick06/DnD-sub018/internal/config"
	coresys "github.com/EvilPatrick06/DnD-sub018/internal/core/system"
	"github.com/EvilPatrick06/DnD-sub018/internal/data"
	"github.com/EvilPatrick06/DnD-sub018/internal/handler"
	"github.com/EvilPatrick06/DnD-sub018/internal/lighting"
	"github.com/EvilPatrick06/DnD-sub018/internal/perception"
	"github.com/EvilPatrick06/DnD-sub018/internal/persist"
	"github.com/EvilPatrick06/DnD-sub018/internal/scripting"
	"github.com/EvilPatrick06/DnD-sub018/internal/system"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Daemon ─────────────────────────────────────────────────────────

func run() error {
	// 1. Config and logger
	cfgPath := config.Path("config/perception.toml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// 2. Light catalog and illumination scripts
	printSection("Data")
	lights, err := data.LoadLightTable(cfg.Session.Catalog)
	if err != nil {
		return fmt.Errorf("load light catalog: %w", err)
	}
	printStat("Light sources", lights.Count())

	var falloff lighting.Falloff = lighting.StepFalloff{DimIntensity: cfg.Lighting.DimIntensity}
	bands := lighting.DefaultBands
	if cfg.Lighting.ScriptsDir != "" {
		engine, err := scripting.NewEngine(cfg.Lighting.ScriptsDir, cfg.Lighting.DimIntensity, log)
		if err != nil {
			return fmt.Errorf("lua engine: %w", err)
		}
		defer engine.Close()
		falloff = engine
		bands = engine.Bands()
		printOK("Illumination scripts loaded from " + cfg.Lighting.ScriptsDir)
	}

	ambient, err := lighting.ParseLevel(cfg.Session.Ambient)
	if err != nil {
		return fmt.Errorf("session.ambient: %w", err)
	}

	// 3. Session
	sr := beep.SampleRate(cfg.Audio.SampleRate)
	sess, err := perception.NewSession(perception.Options{
		Name:      cfg.Session.Name,
		CellSize:  cfg.Session.CellSize,
		Ambient:   ambient.Intensity(),
		Settle:    cfg.Vision.Settle,
		MaxRadius: cfg.Vision.MaxRadius,
		Falloff:   falloff,
		Bands:     bands,
		Tracks:    audio.NewWavLoader(cfg.Audio.TracksDir, sr, log),
	}, lights, log)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	defer sess.Close()

	if cfg.Session.Scene != "" {
		scene, err := data.LoadScene(cfg.Session.Scene)
		if err != nil {
			return fmt.Errorf("load scene: %w", err)
		}
		if err := sess.ApplyScene(scene); err != nil {
			return err
		}
		st := sess.Stats()
		printStat("Tokens", st.Tokens)
		printStat("Walls", st.Walls)
		printStat("Lights", st.Lights)
		printStat("Emitters", st.Emitters)
	}
	fmt.Println()

	// 4. Light history (optional)
	runner := coresys.NewRunner()
	var lightLog *system.LightLogSystem
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := persist.NewDB(ctx, cfg.Database, log)
	switch {
	case errors.Is(err, persist.ErrDisabled):
		log.Info("light history disabled")
	case err != nil:
		return fmt.Errorf("database: %w", err)
	default:
		defer db.Close()
		version, err := persist.RunMigrations(ctx, db.Pool)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK(fmt.Sprintf("Light history database ready (schema %d)", version))
		lightLog = system.NewLightLogSystem(sess.Bus(), persist.NewLightLogRepo(db), sess.Name(), sess.Now, 10, log)
		runner.Register(lightLog)
	}

	// 5. Audio output (optional)
	if cfg.Audio.Speaker {
		if err := speaker.Init(sr, sr.N(cfg.Audio.Buffer)); err != nil {
			log.Warn("speaker unavailable, audio muted", zap.Error(err))
		} else {
			speaker.Play(sess.Audio())
			defer speaker.Close()
			printOK("Speaker output started")
		}
	}

	// 6. Systems
	commands := make(chan system.Command, cfg.Loop.CommandQueueSize)
	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }

	deps := &handler.Deps{Session: sess, Lights: lights, Log: log}
	runner.Register(system.NewInputSystem(commands, deps, cfg.Loop.MaxCommandsPerTick, quit, log))
	runner.Register(system.NewEventDispatchSystem(sess.Bus()))
	runner.Register(system.NewLightExpirySystem(sess, log))
	runner.Register(system.NewVisionSystem(sess, log))
	runner.Register(system.NewAudioSystem(sess))

	go readConsole(commands, quit)

	// 7. Loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Loop.TickRate)
	defer ticker.Stop()

	printSection("Ready")
	printReady(fmt.Sprintf("Session %q (tick %s), type help", sess.Name(), cfg.Loop.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Loop.TickRate)
			if d := runner.LastTick(); d > cfg.Loop.TickRate {
				log.Warn("tick overran", zap.Duration("took", d), zap.Uint64("tick", runner.Ticks()))
			}
		case sig := <-shutdownCh:
			log.Info("shutdown signal", zap.String("signal", sig.String()))
			shutdown(sess, runner, lightLog, log)
			return nil
		case <-quitCh:
			shutdown(sess, runner, lightLog, log)
			return nil
		}
	}
}

// readConsole forwards stdin lines to the session loop. EOF quits.
func readConsole(commands chan<- system.Command, quit func()) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		commands <- system.Command{Line: sc.Text(), Reply: os.Stdout}
	}
	quit()
}

// shutdown drains pending commands and events, then writes the remaining
// light history.
func shutdown(sess *perception.Session, runner *coresys.Runner, lightLog *system.LightLogSystem, log *zap.Logger) {
	runner.TickPhase(coresys.PhaseInput, 0)
	sess.Bus().SwapBuffers()
	sess.Bus().DispatchAll()
	if lightLog != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lightLog.Flush(ctx); err != nil {
			log.Error("final light history flush failed", zap.Int("pending", lightLog.Pending()), zap.Error(err))
		}
	}
	log.Info("perception daemon stopped")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
