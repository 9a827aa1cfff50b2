package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/stackup/internal/build"
	"github.com/loykin/stackup/internal/config"
	"github.com/loykin/stackup/internal/env"
	"github.com/loykin/stackup/internal/journal/factory"
	"github.com/loykin/stackup/internal/logger"
	"github.com/loykin/stackup/internal/metrics"
	"github.com/loykin/stackup/internal/process"
	"github.com/loykin/stackup/internal/reclaim"
	"github.com/loykin/stackup/internal/server"
	"github.com/loykin/stackup/internal/supervisor"
)

// Version is set via -ldflags at release build time.
var Version = "dev"

type command struct {
	flags *GlobalFlags
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	reclaimFlags := &ReclaimFlags{}
	statusFlags := &StatusFlags{}
	historyFlags := &HistoryFlags{}

	c := command{flags: globalFlags}

	root := &cobra.Command{
		Use:           "stackup",
		Short:         "Build, launch, and supervise a local multi-service stack",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&globalFlags.ConfigPath, "config", "c", "stackup.toml", "path to stack config file")
	root.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "enable debug logging")

	root.AddCommand(
		createUpCommand(c),
		createBuildCommand(c),
		createGenCommand(c),
		createReclaimCommand(c, reclaimFlags),
		createStatusCommand(statusFlags),
		createHistoryCommand(c, historyFlags),
		createVersionCommand(),
	)
	return root
}

func createUpCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Run the full sequence: build, codegen, reclaim ports, launch, run client, tear down",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Up()
		},
	}
}

func createBuildCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build every configured service, in startup order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Build()
		},
	}
}

func createGenCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "gen",
		Short: "Regenerate client stubs from interface definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Gen()
		},
	}
}

func createReclaimCommand(c command, f *ReclaimFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Free the configured service ports (or one port) by signaling their listeners",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Reclaim(*f)
		},
	}
	cmd.Flags().IntVar(&f.Port, "port", 0, "reclaim only this port (default: all configured ports)")
	cmd.Flags().DurationVar(&f.Grace, "grace", reclaim.DefaultGrace, "grace period for the listener to exit")
	return cmd
}

func createStatusCommand(f *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running launcher's status endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(*f)
		},
	}
	cmd.Flags().StringVar(&f.URL, "url", "http://127.0.0.1:7070", "base URL of the status endpoint")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func createHistoryCommand(c command, f *HistoryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent lifecycle events from the run journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.History(*f)
		},
	}
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum number of events to show")
	return cmd
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the stackup version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}
}

func (c command) newLogger() *slog.Logger {
	level := slog.LevelInfo
	if c.flags.Debug {
		level = slog.LevelDebug
	}
	log := logger.NewConsole(level)
	slog.SetDefault(log)
	return log
}

// loadStack loads the config and prepares the merged run environment.
func (c command) loadStack() (*config.FileConfig, *env.Env, error) {
	fc, err := config.Load(c.flags.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", c.flags.ConfigPath, err)
	}
	genv, err := fc.GlobalEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("compose environment: %w", err)
	}
	e := env.New()
	e.FromPairs(genv)
	return fc, e, nil
}

func buildSteps(fc *config.FileConfig, e *env.Env) []supervisor.BuildStep {
	var steps []supervisor.BuildStep
	for _, sc := range fc.SortedServices() {
		if sc.Build == "" {
			continue
		}
		steps = append(steps, supervisor.BuildStep{
			Name: sc.Name,
			Step: build.Builder{Name: sc.Name, Command: sc.Build, WorkDir: sc.WorkDir, Env: e.Merge(sc.Env)},
		})
	}
	return steps
}

// Up drives the whole lifecycle. The interrupt handler is installed before
// the first phase so no window exists where a signal leaks a running child.
func (c command) Up() error {
	log := c.newLogger()
	fc, e, err := c.loadStack()
	if err != nil {
		return err
	}
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := supervisor.Options{
		Logger:    log,
		Specs:     fc.Specs(),
		Builds:    buildSteps(fc, e),
		Reclaimer: reclaim.Reclaimer{Grace: fc.Reclaim.Grace, Logger: log},
		Launcher:  supervisor.ProcLauncher{Env: e},
	}
	if fc.Codegen.Command != "" {
		opts.Codegen = build.Codegen{
			Command:  fc.Codegen.Command,
			ProtoDir: fc.Codegen.ProtoDir,
			OutDir:   fc.Codegen.OutDir,
			WorkDir:  fc.Codegen.WorkDir,
			Env:      e.Merge(fc.Codegen.Env),
		}
	}
	if fc.Client.Command != "" {
		opts.Client = build.Client{
			Command: fc.Client.Command,
			WorkDir: fc.Client.WorkDir,
			Env:     e.Merge(fc.Client.Env),
		}
	}
	if fc.Journal.DSN != "" {
		st, err := factory.NewFromDSN(fc.Journal.DSN)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		if err := st.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("journal schema: %w", err)
		}
		defer func() { _ = st.Close() }()
		opts.Journal = st
	}

	var sup *supervisor.Supervisor
	if fc.Server.Listen != "" {
		listen := fc.Server.Listen
		opts.OnRunning = func(snapshot func() []process.Status) (stopFn func()) {
			_, stopSrv := server.NewServer(listen, "", server.Snapshot{
				Phase:    func() string { return string(sup.Phase()) },
				Services: snapshot,
			})
			log.Info("status endpoint listening", "addr", listen)
			return stopSrv
		}
	}
	sup = supervisor.New(opts)
	if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Build runs only the build phase for every configured service.
func (c command) Build() error {
	log := c.newLogger()
	fc, e, err := c.loadStack()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	for _, step := range buildSteps(fc, e) {
		log.Info("building service", "name", step.Name)
		if err := step.Step.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Gen runs only the codegen step.
func (c command) Gen() error {
	log := c.newLogger()
	fc, e, err := c.loadStack()
	if err != nil {
		return err
	}
	if fc.Codegen.Command == "" {
		return fmt.Errorf("no codegen command configured in %s", c.flags.ConfigPath)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Info("generating client stubs")
	g := build.Codegen{
		Command:  fc.Codegen.Command,
		ProtoDir: fc.Codegen.ProtoDir,
		OutDir:   fc.Codegen.OutDir,
		WorkDir:  fc.Codegen.WorkDir,
		Env:      e.Merge(fc.Codegen.Env),
	}
	return g.Run(ctx)
}

// Reclaim frees the configured ports without launching anything.
func (c command) Reclaim(f ReclaimFlags) error {
	log := c.newLogger()
	r := reclaim.Reclaimer{Grace: f.Grace, Logger: log}
	if f.Port > 0 {
		return r.Reclaim(f.Port)
	}
	fc, _, err := c.loadStack()
	if err != nil {
		return err
	}
	for _, spec := range fc.Specs() {
		if err := r.Reclaim(spec.Port); err != nil {
			log.Warn("port reclaim failed", "port", spec.Port, "error", err)
		}
	}
	return nil
}

func runStatus(f StatusFlags) error {
	client := &http.Client{Timeout: f.Timeout}
	resp, err := client.Get(f.URL + "/status")
	if err != nil {
		return fmt.Errorf("launcher not reachable at %s: %w", f.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status endpoint returned %d: %s", resp.StatusCode, string(body))
	}
	fmt.Println(string(body))
	return nil
}

// History prints recent journal events as JSON lines.
func (c command) History(f HistoryFlags) error {
	fc, _, err := c.loadStack()
	if err != nil {
		return err
	}
	if fc.Journal.DSN == "" {
		return fmt.Errorf("no journal configured in %s", c.flags.ConfigPath)
	}
	st, err := factory.NewFromDSN(fc.Journal.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}
	recs, err := st.Recent(ctx, f.Limit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}
