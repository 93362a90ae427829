// Command reliefsim runs the disaster relief allocation simulator.
//
//	reliefsim run      one simulation, printed as a zone table
//	reliefsim serve    HTTP API
//	reliefsim import   load a dataset into the database baseline
//	reliefsim generate write a synthetic dataset
//	reliefsim runs     list recent runs from the database
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/talgya/reliefsim/internal/api"
	"github.com/talgya/reliefsim/internal/config"
	"github.com/talgya/reliefsim/internal/engine"
	"github.com/talgya/reliefsim/internal/observability"
	"github.com/talgya/reliefsim/internal/persistence"
	"github.com/talgya/reliefsim/internal/relief"
	"github.com/talgya/reliefsim/internal/report"
	"github.com/talgya/reliefsim/internal/world"
)

const defaultConfigPath = "reliefsim.yaml"

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "run":
			runCmd(os.Args[2:])
			return
		case "serve":
			serveCmd(os.Args[2:])
			return
		case "import":
			importCmd(os.Args[2:])
			return
		case "generate":
			generateCmd(os.Args[2:])
			return
		case "runs":
			runsCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: reliefsim <run|serve|import|generate|runs> [flags]")
	os.Exit(2)
}

// setup loads configuration and installs the default logger. A missing
// default config file falls back to built-in defaults.
func setup(path string) config.Config {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) && path == defaultConfigPath {
		cfg, err = config.Default(), nil
	}
	if err == nil {
		err = cfg.ApplyEnv()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return cfg
}

func openDB(path string) *persistence.DB {
	if dir := filepath.Dir(path); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	db, err := persistence.Open(path)
	if err != nil {
		slog.Error("failed to open database", "path", path, "error", err)
		os.Exit(1)
	}
	slog.Info("database opened", "path", path)
	return db
}

// newService loads the baseline and assembles the relief service. With
// fromDB set, an imported database baseline wins over the dataset file.
func newService(cfg config.Config, db *persistence.DB, fromDB bool) *relief.Service {
	var (
		baseline *world.Baseline
		err      error
	)
	if fromDB && db != nil && db.HasBaseline() {
		baseline, err = db.LoadBaseline()
		slog.Info("baseline loaded from database")
	} else {
		baseline, err = world.Load(cfg.Dataset)
		slog.Info("baseline loaded from dataset", "path", cfg.Dataset)
	}
	if err != nil {
		fail("load baseline", err)
	}
	slog.Info("baseline ready", "zones", baseline.Len(), "population", baseline.TotalPopulation())

	ec, err := cfg.Engine()
	if err != nil {
		fail("engine config", err)
	}
	svc, err := relief.NewService(baseline, ec)
	if err != nil {
		fail("relief service", err)
	}
	svc.DB = db
	svc.DefaultPolicy = cfg.Policy.Default

	learned, err := cfg.LearnedPolicy()
	switch {
	case err != nil && cfg.Policy.Default == relief.PolicyLearned:
		fail("learned policy", err)
	case err != nil:
		svc.LearnedErr = err
		slog.Warn("learned policy unavailable", "reason", engine.ReasonOf(err), "error", err)
	case learned != nil:
		svc.Learned = learned
		slog.Info("learned policy enabled",
			"features", learned.Convention().String(),
			"output", learned.Output().String(),
		)
	}
	return svc
}

// fail logs err with its failure reason and exits.
func fail(what string, err error) {
	slog.Error(what+" failed", "reason", engine.ReasonOf(err), "error", err)
	os.Exit(1)
}

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config file")
	dataset := fs.String("dataset", "", "dataset path (overrides config; ignores the database baseline)")
	extraA := fs.Int("extra-ambulances", 0, "ambulances added to every hub")
	extraS := fs.Int("extra-shelters", 0, "shelters added to every hub")
	policyName := fs.String("policy", "", "heuristic or learned (default from config)")
	history := fs.Bool("history", false, "record the run in the database")
	asJSON := fs.Bool("json", false, "print the full report as JSON")
	_ = fs.Parse(args)

	cfg := setup(*cfgPath)
	if *dataset != "" {
		cfg.Dataset = *dataset
	}

	var db *persistence.DB
	if *history || *dataset == "" {
		db = openDB(cfg.DB)
		defer db.Close()
	}
	svc := newService(cfg, db, *dataset == "")
	if !*history {
		svc.DB = nil
	}

	out, err := svc.Simulate(context.Background(), relief.Request{
		ExtraAmbulances: *extraA,
		ExtraShelters:   *extraS,
		Policy:          *policyName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulation failed: %s\n", engine.ReasonOf(err))
		slog.Debug("simulation error", "error", err)
		if db != nil {
			db.Close()
		}
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(out)
		return
	}
	printReport(out.Report)
	if out.RunID != "" {
		fmt.Printf("Run ID: %s\n", out.RunID)
	}
}

func printReport(rep *report.Report) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Zone\tRemaining Population\tAmbulances\tShelters\t")
	for _, z := range rep.Zones {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t\n", z.ZoneID, z.RemainingPopulation, z.Ambulances, z.Shelters)
	}
	tw.Flush()
	fmt.Printf("\nTotal Lives Saved: %d (%s policy, %d ticks)\n", rep.TotalSaved, rep.Policy, rep.Ticks)
}

func serveCmd(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config file")
	port := fs.Int("port", 0, "listen port (overrides config)")
	_ = fs.Parse(args)

	cfg := setup(*cfgPath)
	if *port > 0 {
		cfg.Port = *port
	}

	db := openDB(cfg.DB)
	defer db.Close()
	svc := newService(cfg, db, true)

	observability.RegisterMetrics()
	apiServer := &api.Server{
		Relief:            svc,
		Port:              cfg.Port,
		AdminKey:          os.Getenv("RELIEFSIM_ADMIN_KEY"),
		SimulatePerMinute: cfg.SimulatePerMinute,
	}
	srv := apiServer.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}
	fmt.Println("reliefsim stopped.")
}

func importCmd(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config file")
	dataset := fs.String("dataset", "", "dataset to import (default from config)")
	_ = fs.Parse(args)

	cfg := setup(*cfgPath)
	if *dataset != "" {
		cfg.Dataset = *dataset
	}

	b, err := world.Load(cfg.Dataset)
	if err != nil {
		fail("load dataset", err)
	}
	db := openDB(cfg.DB)
	defer db.Close()
	if err := db.SaveBaseline(b); err != nil {
		slog.Error("baseline import failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("imported %d zone/hub pairs (population %.0f) from %s\n", b.Len(), b.TotalPopulation(), cfg.Dataset)
}

func generateCmd(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	out := fs.String("out", "data/world.json", "output path (.zst suffix compresses)")
	gc := world.DefaultGenConfig()
	fs.IntVar(&gc.Zones, "zones", gc.Zones, "number of zone/hub pairs")
	fs.Int64Var(&gc.Seed, "seed", gc.Seed, "noise seed")
	fs.Float64Var(&gc.MaxPopulation, "max-population", gc.MaxPopulation, "largest zone population")
	fs.IntVar(&gc.MaxUnits, "max-units", gc.MaxUnits, "largest per-resource hub stock")
	_ = fs.Parse(args)

	setup(defaultConfigPath)

	b, err := world.Generate(gc)
	if err != nil {
		fail("generate", err)
	}
	if dir := filepath.Dir(*out); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	if err := world.Save(*out, b); err != nil {
		slog.Error("write dataset failed", "path", *out, "error", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d zone/hub pairs (population %.0f) to %s\n", b.Len(), b.TotalPopulation(), *out)
}

func runsCmd(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config file")
	limit := fs.Int("limit", 20, "number of runs to list")
	_ = fs.Parse(args)

	cfg := setup(*cfgPath)
	db := openDB(cfg.DB)
	defer db.Close()

	runs, err := db.RecentRuns(*limit)
	if err != nil {
		slog.Error("list runs failed", "error", err)
		os.Exit(1)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCreated\tPolicy\t+A\t+S\tStatus\tSaved")
	for _, r := range runs {
		status := r.Status
		if r.Reason != "" {
			status += " (" + r.Reason + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%d\n",
			r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Policy,
			r.ExtraAmbulances, r.ExtraShelters, status, r.TotalSaved)
	}
	tw.Flush()
}
