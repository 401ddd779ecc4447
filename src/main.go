package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/eiannone/keyboard"
	"golang.org/x/sync/errgroup"

	"elevsim/src/config"
	"elevsim/src/engine"
	"elevsim/src/request"
	"elevsim/src/timer"
	"elevsim/src/types"
	"elevsim/src/utils"
)

const statusInterval = time.Second

func main() {
	configPath := flag.String("config", "", "YAML config file")
	envPath := flag.String("env", "", ".env file with ELEVSIM_* overrides")
	algorithm := flag.String("algorithm", "", "hybrid or scan, overrides the config")
	interactive := flag.Bool("interactive", true, "read single-key commands from the terminal")
	autostart := flag.Bool("start", true, "start the simulation immediately")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *envPath)
	if err != nil {
		slog.Error("Config rejected", "err", err)
		os.Exit(1)
	}
	if *algorithm != "" {
		cfg.Algorithm = *algorithm
	}
	InitLogger(cfg.SlogLevel())

	sim, err := engine.New(cfg, timer.RealClock{})
	if err != nil {
		slog.Error("Engine rejected config", "err", err)
		os.Exit(1)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx, quit := context.WithCancel(sigCtx)
	defer quit()

	if *autostart {
		sim.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		printStatus(gctx, sim.Updates())
		return nil
	})
	if *interactive {
		g.Go(func() error {
			return runConsole(gctx, sim, quit)
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("Shutting down", "err", err)
	}
	sim.Stop()
	fmt.Println()
	slog.Info("Bye", "served", sim.Metrics().ServedTotal)
}

func loadConfig(path, envPath string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if envPath != "" {
		return config.ApplyEnvFile(cfg, envPath)
	}
	return cfg, nil
}

func InitLogger(level slog.Level) {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("15:04:05"))
				}
			}
			// file:line without the directory
			if a.Key == slog.SourceKey {
				if source, ok := a.Value.Any().(*slog.Source); ok {
					a.Value = slog.StringValue(filepath.Base(source.File) + ":" + strconv.Itoa(source.Line))
				}
			}
			return a
		},
	})
	slog.SetDefault(slog.New(handler))
}

// printStatus redraws the status line at most once per statusInterval.
func printStatus(ctx context.Context, updates <-chan types.Update) {
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			if time.Since(last) < statusInterval {
				continue
			}
			last = time.Now()
			fmt.Printf("\r%s   ", utils.FormatStatus(u))
		}
	}
}

// runConsole maps single keys to engine controls.
//   - s start/stop, r reset, e emergency stop
//   - h hybrid, c scan
//   - a add a random trip, m toggle maintenance on car 0
//   - q or Ctrl-C quit
func runConsole(ctx context.Context, sim *engine.Engine, quit context.CancelFunc) error {
	keys, err := keyboard.GetKeys(10)
	if err != nil {
		slog.Warn("Keyboard unavailable, console disabled", "err", err)
		return nil
	}
	defer keyboard.Close()

	maintenance := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-keys:
			if ev.Err != nil {
				return fmt.Errorf("keyboard: %w", ev.Err)
			}
			if ev.Key == keyboard.KeyCtrlC || ev.Rune == 'q' {
				quit()
				return nil
			}
			switch ev.Rune {
			case 's':
				if !sim.Start(ctx) {
					sim.Stop()
				}
			case 'r':
				sim.Reset()
			case 'e':
				sim.EmergencyStop()
			case 'h', 'c':
				name := "hybrid"
				if ev.Rune == 'c' {
					name = "scan"
				}
				if err := sim.SwitchAlgorithm(name); err != nil {
					slog.Warn("Switch failed", "err", err)
				}
			case 'a':
				floors := sim.Config().NumFloors
				d := request.Data{Origin: 1 + rand.IntN(floors), Destination: 1 + rand.IntN(floors-1)}
				if d.Destination >= d.Origin {
					d.Destination++
				}
				if _, err := sim.AddRequest(d); err != nil {
					slog.Warn("Request rejected", "err", err)
				}
			case 'm':
				maintenance = !maintenance
				if err := sim.SetMaintenance(0, maintenance); err != nil {
					slog.Warn("Maintenance toggle failed", "err", err)
				}
			}
		}
	}
}
