// Command fsm-diagram renders a YAML machine document as a Mermaid
// flowchart or a PlantUML state diagram.
//
//	fsm-diagram -format mermaid -direction LR light.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"

	fsm "github.com/stateforward/go-fsm"
	"github.com/stateforward/go-fsm/config"
	"github.com/stateforward/go-fsm/pkg/diagram"
	"github.com/stateforward/go-fsm/pkg/telemetry"
)

type Config struct {
	Format    string     `env:"FSM_DIAGRAM_FORMAT" envDefault:"mermaid"`
	Direction string     `env:"FSM_DIAGRAM_DIRECTION" envDefault:"TD"`
	LogLevel  slog.Level `env:"FSM_LOG_LEVEL" envDefault:"WARN"`
	LogJSON   bool       `env:"FSM_LOG_JSON" envDefault:"false"`
	// Trace sends -check spans to the global OpenTelemetry provider.
	Trace     bool       `env:"FSM_TRACE" envDefault:"false"`
	Spec      fsm.Config
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return err
	}
	flags := flag.NewFlagSet("fsm-diagram", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&cfg.Format, "format", cfg.Format, "output format: mermaid or plantuml")
	flags.StringVar(&cfg.Direction, "direction", cfg.Direction, "mermaid flowchart direction: TD, TB, BT, LR or RL")
	check := flags.Bool("check", false, "start and destroy an instance to validate the initial state")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return errors.New("expected exactly one document")
	}
	logger := newLogger(cfg, stderr)

	path := flags.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := fsm.ParseDocument(data, fsm.Registry{Placeholders: true})
	if err != nil {
		return err
	}
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	spec := fsm.NewSpec(id, fsm.WithConfig(cfg.Spec), fsm.WithSpecLogger(logger))
	if err := spec.Define(doc); err != nil {
		return err
	}
	logger.Debug("document loaded", "spec", id, "states", len(spec.States()), "edges", len(spec.Edges()))

	if *check {
		tracer := telemetry.NewProvider().Tracer(telemetry.ScopeName)
		if cfg.Trace {
			tracer = otel.Tracer(telemetry.ScopeName)
		}
		sm, err := fsm.New(ctx, spec, fsm.WithLogger(logger), fsm.WithTrace(telemetry.New(tracer)))
		if err != nil {
			return err
		}
		if err := sm.Destroy(); err != nil {
			return err
		}
	}

	switch strings.ToLower(cfg.Format) {
	case "mermaid":
		return diagram.Mermaid(stdout, spec, diagram.Direction(strings.ToUpper(cfg.Direction)))
	case "plantuml":
		return diagram.PlantUML(stdout, spec)
	}
	return fmt.Errorf("unknown format %q", cfg.Format)
}

func newLogger(cfg Config, w io.Writer) *slog.Logger {
	options := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}
