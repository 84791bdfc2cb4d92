package main

import (
	"bytes"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/rocketmpc/internal/automation"
	"github.com/san-kum/rocketmpc/internal/config"
	"github.com/san-kum/rocketmpc/internal/dynamo"
	"github.com/san-kum/rocketmpc/internal/experiment"
	"github.com/san-kum/rocketmpc/internal/export"
	"github.com/san-kum/rocketmpc/internal/logging"
	"github.com/san-kum/rocketmpc/internal/optim"
	"github.com/san-kum/rocketmpc/internal/sim"
	"github.com/san-kum/rocketmpc/internal/storage"
	"github.com/san-kum/rocketmpc/internal/tui"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gopkg.in/yaml.v3"
)

var (
	dataDir   string
	logLevel  string
	logFormat string

	configFile string
	preset     string
	runName    string
	duration   float64
	noSave     bool

	outFile string
	format  string
	kind    string
	width   int
	height  int

	runs    int
	workers int
	spread  float64
	seed    int64

	tuneParams []string
	metric     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "rocketmpc",
		Short:         "model predictive trajectory control for a planar rocket",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".rocketmpc", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); defaults to $"+logging.LevelEnv)
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "fly a mission and store its history",
		Args:  cobra.NoArgs,
		RunE:  runMission,
	}
	missionFlags(runCmd)
	runCmd.Flags().StringVar(&runName, "name", "", "run name (defaults to the preset or model)")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run-id]",
		Short: "plot a stored run in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run-id]",
		Short: "write a stored run as JSON to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run-id]",
		Short: "write a stored run as CSV to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	renderCmd := &cobra.Command{
		Use:   "render [run-id]",
		Short: "render a stored run to an SVG or PNG file",
		Args:  cobra.ExactArgs(1),
		RunE:  renderRun,
	}
	renderCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (defaults to <run-id>_<kind>.<format>)")
	renderCmd.Flags().StringVar(&format, "format", "svg", "image format (svg, png)")
	renderCmd.Flags().StringVar(&kind, "kind", "trajectory", "figure (trajectory, altitude); svg supports trajectory only")
	renderCmd.Flags().IntVar(&width, "width", 800, "svg width in pixels")
	renderCmd.Flags().IntVar(&height, "height", 400, "svg height in pixels")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "fly a mission from scattered initial positions in parallel",
		Args:  cobra.NoArgs,
		RunE:  sweepMissions,
	}
	missionFlags(sweepCmd)
	sweepCmd.Flags().IntVar(&runs, "runs", 8, "number of missions")
	sweepCmd.Flags().IntVar(&workers, "workers", 4, "parallel workers")
	sweepCmd.Flags().Float64Var(&spread, "spread", 5, "half-width of the initial position offset")
	sweepCmd.Flags().Int64Var(&seed, "seed", 1, "random seed")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "fly a mission in the terminal",
		Args:  cobra.NoArgs,
		RunE:  liveMission,
	}
	missionFlags(liveCmd)

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list mission presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "print a mission configuration as YAML",
		Args:  cobra.NoArgs,
		RunE:  printConfig,
	}
	configCmd.Flags().StringVar(&preset, "preset", "", "preset to print (defaults to the reference mission)")
	configCmd.Flags().StringVarP(&outFile, "out", "o", "", "write to a file instead of stdout")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "fly the missions scripted in a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	scenarioCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the runs")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search mission knobs for the lowest metric",
		Args:  cobra.NoArgs,
		RunE:  tuneMission,
	}
	missionFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&tuneParams, "param", nil, "knob values as name=v1,v2,... (repeatable)")
	tuneCmd.Flags().StringVar(&metric, "metric", "tracking_error", "metric to minimize")

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, exportJSONCmd, exportCSVCmd, renderCmd, sweepCmd, liveCmd, presetsCmd, configCmd, scenarioCmd, tuneCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func missionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Float64Var(&duration, "time", 0, "override the mission duration in seconds")
}

func newLogger() *logging.Logger {
	level := logLevel
	if level == "" {
		level = os.Getenv(logging.LevelEnv)
	}
	return logging.New(os.Stderr, logFormat, logging.ParseLevel(level))
}

// loadConfig resolves --config, then --preset, then the reference mission.
func loadConfig() (*config.Config, string, error) {
	var (
		cfg  *config.Config
		name string
	)
	switch {
	case configFile != "":
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		name = strings.TrimSuffix(filepath.Base(configFile), filepath.Ext(configFile))
	case preset != "":
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, "", fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		name = preset
	default:
		cfg = config.DefaultConfig()
		name = "original"
	}

	if duration > 0 {
		cfg.Duration = duration
	}
	return cfg, name, nil
}

func runMission(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadConfig()
	if err != nil {
		return err
	}
	if runName != "" {
		name = runName
	}

	logger := newLogger()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx = logging.WithRunID(ctx, name)

	m, err := experiment.Build(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info(ctx, "mission started", "model", cfg.Model, "plant", cfg.PlantModelName(),
		"waypoints", len(cfg.Waypoints), "steps", cfg.Steps())
	result, runErr := m.Run(ctx)

	meta := m.Metadata(name)
	m.Record(&meta, result, runErr)
	if !noSave && result != nil {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		id, err := st.Save(meta, result)
		if err != nil {
			return logging.WrapError(err, "saving run", "name", name)
		}
		fmt.Printf("run id: %s\n", id)
	}

	if result != nil {
		printSummary(result, m, len(cfg.Waypoints))
	}
	return runErr
}

func printSummary(result *sim.Result, m *experiment.Mission, waypoints int) {
	diag := m.Controller.Diagnostics()
	final := result.Final()

	fmt.Printf("steps: %d/%d\n", result.StepsTaken, m.Config.Steps())
	fmt.Printf("waypoint: %d/%d\n", result.Waypoints[len(result.Waypoints)-1]+1, waypoints)
	fmt.Printf("final: x=%.2f y=%.2f theta=%.3f\n", final[dynamo.IdxX], final[dynamo.IdxY], final[dynamo.IdxTheta])
	fmt.Printf("solves: %d (failures %d, fallbacks %d), solver time %v\n",
		diag.Solves, diag.Failures, diag.Fallbacks, diag.TotalRuntime)
	fmt.Println("\nmetrics:")
	for name, val := range result.Metrics {
		fmt.Printf("  %s: %.6f\n", name, val)
	}
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tPLANT\tTIME\tSTEPS\tSTATUS")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s/%s\t%s\t%d\t%s\n",
			run.ID,
			run.Model,
			run.PlantModel,
			run.PlantIntegrator,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Steps,
			run.Status,
		)
	}

	return w.Flush()
}

func loadRun(runID string) (*storage.RunMetadata, *sim.History, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	h, err := st.LoadHistory(runID)
	if err != nil {
		return nil, nil, err
	}
	if h.Len() == 0 {
		return nil, nil, fmt.Errorf("run %s has no data", runID)
	}
	return meta, h, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, h, err := loadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s (plant %s/%s)\n", meta.Model, meta.PlantModel, meta.PlantIntegrator)
	fmt.Printf("status: %s\n", meta.Status)
	fmt.Printf("samples: %d\n\n", h.Len())

	type series struct {
		caption string
		data    []float64
	}
	plots := []series{
		{"downrange x", h.Column(dynamo.IdxX)},
		{"altitude y", h.Column(dynamo.IdxY)},
		{"pitch theta", h.Column(dynamo.IdxTheta)},
	}
	if len(h.Controls) > 1 {
		thrust := make([]float64, len(h.Controls))
		for i, u := range h.Controls {
			thrust[i] = u[dynamo.IdxThrust]
		}
		plots = append(plots, series{"thrust", thrust})
	}

	for _, s := range plots {
		graph := asciigraph.Plot(s.data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(s.caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	if transitions := h.Transitions(); len(transitions) > 0 {
		fmt.Println("waypoints reached:")
		for _, i := range transitions {
			fmt.Printf("  #%d at t=%.2fs\n", h.Waypoints[i-1]+1, h.Times[i])
		}
	}
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, h, err := loadRun(args[0])
	if err != nil {
		return err
	}
	return storage.ExportJSON(os.Stdout, *meta, h)
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, h, err := loadRun(args[0])
	if err != nil {
		return err
	}
	return storage.WriteCSV(os.Stdout, h)
}

func renderRun(cmd *cobra.Command, args []string) error {
	meta, h, err := loadRun(args[0])
	if err != nil {
		return err
	}

	waypoints := make([]dynamo.State, len(meta.Waypoints))
	for i, wp := range meta.Waypoints {
		waypoints[i] = dynamo.State(wp)
	}

	var buf bytes.Buffer
	switch format {
	case "svg":
		if kind != "trajectory" {
			return fmt.Errorf("svg supports the trajectory figure only, got %q", kind)
		}
		svg := export.TrajectoryToSVG(h, waypoints, width, height, "#00ffff")
		if svg == "" {
			return fmt.Errorf("run %s is too short to draw", meta.ID)
		}
		buf.WriteString(svg)
	case "png":
		p, err := renderPlot(h, waypoints, meta.AltitudeFloor)
		if err != nil {
			return err
		}
		opts := export.DefaultPlotOptions()
		if cmd.Flags().Changed("width") {
			opts.Width = vg.Length(width) * vg.Inch / vg.Length(opts.DPI)
		}
		if cmd.Flags().Changed("height") {
			opts.Height = vg.Length(height) * vg.Inch / vg.Length(opts.DPI)
		}
		if err := export.WritePNG(&buf, p, opts); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	path := outFile
	if path == "" {
		path = fmt.Sprintf("%s_%s.%s", meta.ID, kind, format)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func renderPlot(h *sim.History, waypoints []dynamo.State, floor float64) (*plot.Plot, error) {
	switch kind {
	case "trajectory":
		return export.TrajectoryPlot(h, waypoints)
	case "altitude":
		return export.AltitudePlot(h, floor)
	}
	return nil, fmt.Errorf("unknown figure: %s", kind)
}

func sweepMissions(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx = logging.WithRunID(ctx, name+"_sweep")

	logger.Info(ctx, "sweep started", "runs", runs, "workers", workers, "spread", spread)
	outcomes, err := experiment.Sweep(ctx, cfg, experiment.SweepOptions{
		Runs:    runs,
		Workers: workers,
		Spread:  spread,
		Seed:    seed,
	}, logger)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tX0\tY0\tSTEPS\tWAYPOINT\tMIN ALT\tSTATUS")
	for _, o := range outcomes {
		status := storage.StatusCompleted
		if o.Err != nil {
			status = o.Err.Error()
		}
		if o.Result == nil {
			fmt.Fprintf(w, "%d\t-\t-\t-\t-\t-\t%s\n", o.Run, status)
			continue
		}
		fmt.Fprintf(w, "%d\t%.2f\t%.2f\t%d\t%d/%d\t%.3f\t%s\n",
			o.Run,
			o.X0[dynamo.IdxX],
			o.X0[dynamo.IdxY],
			o.Result.StepsTaken,
			o.Result.Waypoints[len(o.Result.Waypoints)-1]+1,
			len(cfg.Waypoints),
			o.Result.Metrics["min_altitude"],
			status,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if n := sim.Failures(outcomes); n > 0 {
		return fmt.Errorf("%d of %d missions failed", n, len(outcomes))
	}
	return nil
}

func liveMission(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadConfig()
	if err != nil {
		return err
	}

	// The live view owns the terminal, so logs are dropped.
	m, err := experiment.Build(cfg, logging.Discard())
	if err != nil {
		return err
	}

	return tui.Run(tui.Options{
		Name:      name,
		Waypoints: cfg.WaypointStates(),
		Floor:     cfg.AltitudeFloor,
		Start:     m.Start,
	})
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tMODEL\tPLANT\tWAYPOINTS\tDURATION\tFALLBACK")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%s\t%s/%s\t%d\t%.0fs\t%s\n",
			name,
			cfg.Model,
			cfg.PlantModelName(),
			cfg.PlantIntegrator,
			len(cfg.Waypoints),
			cfg.Duration,
			cfg.Solver.Fallback,
		)
	}
	return w.Flush()
}

func printConfig(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}

	if outFile != "" {
		if err := config.Save(outFile, cfg); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", outFile)
		return nil
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	var st *storage.Store
	if !noSave {
		st = storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	results, err := automation.RunScenario(ctx, sc, st, newLogger())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tRUN ID\tSTEPS\tSTATUS")
	for _, r := range results {
		status := storage.StatusCompleted
		if r.Err != nil {
			status = r.Err.Error()
		}
		steps := 0
		if r.Result != nil {
			steps = r.Result.StepsTaken
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.Name, r.RunID, steps, status)
	}
	if flushErr := w.Flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	return err
}

func tuneMission(cmd *cobra.Command, args []string) error {
	if len(tuneParams) == 0 {
		return fmt.Errorf("at least one --param is required (knobs: %v)", optim.KnobNames())
	}
	cfg, name, err := loadConfig()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(tuneParams))
	ranges := make([][]float64, 0, len(tuneParams))
	for _, p := range tuneParams {
		n, values, err := optim.ParseParam(p)
		if err != nil {
			return err
		}
		names = append(names, n)
		ranges = append(ranges, values)
	}
	grid, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx = logging.WithRunID(ctx, name+"_tune")

	best, all, err := grid.Search(ctx, cfg, metric, newLogger())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\tSTATUS\n", strings.ToUpper(strings.Join(names, "\t")), strings.ToUpper(metric))
	for _, c := range all {
		cols := make([]string, len(names))
		for i, n := range names {
			cols[i] = fmt.Sprintf("%g", c.Params[n])
		}
		status := "ok"
		if c.Err != nil {
			status = c.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%.6g\t%s\n", strings.Join(cols, "\t"), c.Value, status)
	}
	if flushErr := w.Flush(); flushErr != nil {
		return flushErr
	}
	if err != nil {
		return err
	}

	fmt.Printf("\nbest %s=%.6g at %v\n", metric, best.Value, best.Params)
	return nil
}
