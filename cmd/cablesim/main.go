package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/cablesim/internal/analysis"
	"github.com/san-kum/cablesim/internal/config"
	"github.com/san-kum/cablesim/internal/export"
	"github.com/san-kum/cablesim/internal/hines"
	"github.com/san-kum/cablesim/internal/logging"
	"github.com/san-kum/cablesim/internal/metrics"
	"github.com/san-kum/cablesim/internal/record"
	"github.com/san-kum/cablesim/internal/sim"
	"github.com/san-kum/cablesim/internal/storage"
	"github.com/san-kum/cablesim/internal/sweep"
	"github.com/san-kum/cablesim/internal/viz"
)

var (
	dataDir  string
	logLevel string
	logger   *slog.Logger

	dt      float64
	tstop   float64
	vInit   float64
	celsius float64
	solver  string
	amp     float64
	nseg    map[string]int

	configFile string
	preset     string
	workers    int
	output     string
	configOut  string
	threshold  float64
	xLabel     string
	yLabel     string
	theme      string
)

// main registers the commands and exits with status 1 if the command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:           "cablesim",
		Short:         "compartmental neuron simulator",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewLogger(logLevel, os.Stderr)
			slog.SetDefault(logger)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".cablesim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (error, warn, info, debug, trace)")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run simulation and store the traces",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulation,
	}
	addModelFlags(runCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "run a stimulus amplitude x nseg grid in parallel",
		Args:  cobra.ExactArgs(1),
		RunE:  runSweep,
	}
	addModelFlags(sweepCmd)
	sweepCmd.Flags().IntVar(&workers, "workers", 0, "parallel runs (0 = GOMAXPROCS)")

	sweepsCmd := &cobra.Command{
		Use:   "sweeps",
		Short: "list stored sweeps",
		RunE:  listSweeps,
	}

	showSweepCmd := &cobra.Command{
		Use:   "sweep-show [sweep_id]",
		Short: "show the points of a stored sweep",
		Args:  cobra.ExactArgs(1),
		RunE:  showSweep,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run traces",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVarP(&output, "output", "o", "", "also write a figure (.png, .svg or .pdf)")

	pngCmd := &cobra.Command{
		Use:   "png [run_id]",
		Short: "render run traces to a figure",
		Args:  cobra.ExactArgs(1),
		RunE:  renderFigure,
	}
	pngCmd.Flags().StringVarP(&output, "output", "o", "", "output path, .png, .svg or .pdf (default <run_id>.png)")

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "phase plane of two traces",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().StringVar(&xLabel, "x", "", "trace on the x axis (default: first)")
	phaseCmd.Flags().StringVar(&yLabel, "y", "", "trace on the y axis (default: second)")
	phaseCmd.Flags().StringVarP(&output, "output", "o", "", "also write a figure (.png, .svg or .pdf)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "spike and trace statistics",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().Float64Var(&threshold, "threshold", sweep.SpikeThreshold, "spike threshold (mV)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run traces to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&output, "output", "o", "", "output path (default <run_id>.csv)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run metadata and traces to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&output, "output", "o", "", "output path (default stdout)")

	liveCmd := &cobra.Command{
		Use:   "live [model]",
		Short: "run simulation with live visualization",
		Args:  cobra.ExactArgs(1),
		RunE:  runLive,
	}
	addModelFlags(liveCmd)
	liveCmd.Flags().StringVar(&theme, "theme", viz.CurrentTheme.Name, "color theme ("+strings.Join(viz.ThemeNames(), ", ")+")")

	benchCmd := &cobra.Command{
		Use:   "bench [model]",
		Short: "benchmark solvers over segment counts",
		Args:  cobra.ExactArgs(1),
		RunE:  benchModel,
	}
	addModelFlags(benchCmd)

	compareCmd := &cobra.Command{
		Use:   "compare [model] [solver1] [solver2] ...",
		Short: "compare linear solvers on the same cell",
		Args:  cobra.MinimumNArgs(2),
		RunE:  compareSolvers,
	}
	addModelFlags(compareCmd)

	topologyCmd := &cobra.Command{
		Use:   "topology [model]",
		Short: "print the section tree",
		Args:  cobra.ExactArgs(1),
		RunE:  printTopology,
	}
	addModelFlags(topologyCmd)

	initConfigCmd := &cobra.Command{
		Use:   "init-config [model]",
		Short: "write a preset as an editable yaml config",
		Args:  cobra.ExactArgs(1),
		RunE:  initConfig,
	}
	addModelFlags(initConfigCmd)
	initConfigCmd.Flags().StringVarP(&configOut, "output", "o", "cell.yaml", "output path")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for model: %s (models: %s)\n", args[0], strings.Join(config.ListModels(), ", "))
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list built-in cells",
		Run: func(cmd *cobra.Command, args []string) {
			for _, m := range config.ListModels() {
				fmt.Println(m)
			}
		},
	}

	rootCmd.AddCommand(runCmd, sweepCmd, sweepsCmd, showSweepCmd, listCmd, plotCmd, pngCmd, phaseCmd, analyzeCmd,
		exportCSVCmd, exportJSONCmd, liveCmd, benchCmd, compareCmd, topologyCmd, initConfigCmd, presetsCmd, modelsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep (ms)")
	cmd.Flags().Float64Var(&tstop, "tstop", config.DefaultTStop, "stop time (ms)")
	cmd.Flags().Float64Var(&vInit, "v-init", config.DefaultVInit, "initial voltage (mV)")
	cmd.Flags().Float64Var(&celsius, "celsius", config.DefaultCelsius, "temperature (degC)")
	cmd.Flags().StringVar(&solver, "solver", config.DefaultSolver, "linear solver ("+strings.Join(hines.Names(), ", ")+")")
	cmd.Flags().Float64Var(&amp, "amp", 0, "amplitude of the first stimulus (nA)")
	cmd.Flags().StringToIntVar(&nseg, "nseg", nil, "segments per section, e.g. dend=101")
}

// loadConfig resolves the config file or preset for model and applies the
// flags the user set explicitly. Flags override both.
func loadConfig(cmd *cobra.Command, model, defaultPreset string) (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	} else {
		name := preset
		if name == "" {
			name = defaultPreset
		}
		cfg = config.GetPreset(model, name)
		if cfg == nil && preset == "" {
			if names := config.ListPresets(model); len(names) > 0 {
				cfg = config.GetPreset(model, names[0])
			}
		}
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %q for model %q (available: %v)", name, model, config.ListPresets(model))
		}
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Run.Dt = dt
	}
	if flags.Changed("tstop") {
		cfg.Run.TStop = tstop
	}
	if flags.Changed("v-init") {
		cfg.Run.VInit = vInit
	}
	if flags.Changed("celsius") {
		cfg.Run.Celsius = celsius
	}
	if flags.Changed("solver") {
		cfg.Run.Solver = solver
	}
	if flags.Changed("amp") {
		if len(cfg.Stimuli) == 0 {
			return nil, fmt.Errorf("model %q has no stimulus to set --amp on", cfg.Model)
		}
		cfg.Stimuli[0].Amp = amp
	}
	for name, n := range nseg {
		sec, ok := cfg.Section(name)
		if !ok {
			return nil, fmt.Errorf("--nseg: unknown section %q", name)
		}
		sec.Nseg = n
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// attachMetrics adds peak, spike count and drift summaries to every
// voltage trace.
func attachMetrics(s *sim.Simulator) error {
	for _, tr := range s.Traces() {
		if tr.Probe.Variable != record.Voltage {
			continue
		}
		for _, m := range []sim.Metric{metrics.NewPeak(), metrics.NewSpikeCount(sweep.SpikeThreshold), metrics.NewDrift()} {
			if err := s.AddMetric(tr.Label, m); err != nil {
				return err
			}
		}
	}
	return nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args[0], "default")
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	s, err := cfg.Build()
	if err != nil {
		return err
	}
	if err := attachMetrics(s); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	logger.Info("running simulation", "model", cfg.Model, "segments", s.Cable().Len(), "solver", s.Solver(), "dt", cfg.Run.Dt, "tstop", cfg.Run.TStop)
	start := time.Now()

	result, runErr := s.Run(ctx, cfg.SimConfig())
	if result == nil {
		return runErr
	}
	elapsed := time.Since(start)

	runID, err := st.Save(cfg, result, runErr)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %s\n", humanize.Comma(int64(result.StepsTaken)))
	fmt.Println("\nmetrics:")
	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, result.Metrics[name])
	}

	if runErr != nil {
		logger.Error("run stopped early", "run", runID, "t", result.T, "error", runErr)
		return fmt.Errorf("run %s: %w", runID, runErr)
	}
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args[0], "sweep")
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("workers") && cfg.Sweep != nil {
		cfg.Sweep.Workers = workers
	}

	runner, err := sweep.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	start := time.Now()
	outcomes, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("sweep finished", "points", len(outcomes), "elapsed", time.Since(start))

	var labels []string
	for _, rc := range cfg.Records {
		if rc.Variable == "" || rc.Variable == record.Voltage {
			labels = append(labels, rc.Label)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := "IDX\tAMP (nA)\tNSEG"
	for _, l := range labels {
		header += "\t" + strings.ToUpper(l) + " PEAK\tSPIKES"
	}
	fmt.Fprintln(w, header+"\tERROR")
	for _, o := range outcomes {
		row := fmt.Sprintf("%d\t%.4g\t%s", o.Index, o.Amp, nsegText(o.Nseg))
		for _, l := range labels {
			peak, ok := o.Peak[l]
			if !ok {
				row += "\t-\t-"
				continue
			}
			row += fmt.Sprintf("\t%.2f\t%d", peak, o.Spikes[l])
		}
		errText := ""
		if o.Err != nil {
			errText = o.Err.Error()
		}
		fmt.Fprintln(w, row+"\t"+errText)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	catalog, err := openCatalog(ctx)
	if err != nil {
		return err
	}
	defer catalog.Close()

	id, err := catalog.SaveSweep(ctx, cfg.Model, outcomes)
	if err != nil {
		return err
	}
	fmt.Printf("\nsweep id: %s\n", id)
	return nil
}

func nsegText(n int) string {
	if n == 0 {
		return "-"
	}
	return fmt.Sprint(n)
}

func openCatalog(ctx context.Context) (*storage.Catalog, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	catalog := storage.NewCatalog(filepath.Join(dataDir, "catalog.db"))
	if err := catalog.Init(ctx); err != nil {
		return nil, err
	}
	return catalog, nil
}

func listSweeps(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	catalog, err := openCatalog(ctx)
	if err != nil {
		return err
	}
	defer catalog.Close()

	sweeps, err := catalog.Sweeps(ctx)
	if err != nil {
		return err
	}
	if len(sweeps) == 0 {
		fmt.Println("no sweeps found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tCREATED\tPOINTS\tFAILED")
	for _, s := range sweeps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", s.ID, s.Model, humanize.Time(s.CreatedAt), s.Points, s.Failed)
	}
	return w.Flush()
}

func showSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	catalog, err := openCatalog(ctx)
	if err != nil {
		return err
	}
	defer catalog.Close()

	points, ok, err := catalog.Points(ctx, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no sweep %q", args[0])
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDX\tAMP (nA)\tNSEG\tTRACE\tPEAK\tSPIKES\tERROR")
	for _, p := range points {
		peak := "-"
		if !math.IsNaN(p.Peak) {
			peak = fmt.Sprintf("%.2f", p.Peak)
		}
		fmt.Fprintf(w, "%d\t%.4g\t%s\t%s\t%s\t%d\t%s\n", p.Index, p.Amp, nsegText(p.Nseg), p.Label, peak, p.Spikes, p.Error)
	}
	return w.Flush()
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
	fmt.Fprintln(w, "ID\tMODEL\tWHEN\tSTEPS\tT\tDT\tSOLVER\tSTATUS")

	for _, run := range runs {
		status := "ok"
		if run.Error != "" {
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2fms\t%.4fms\t%s\t%s\n",
			run.ID,
			run.Model,
			humanize.Time(run.Timestamp),
			humanize.Comma(int64(run.StepsTaken)),
			run.T,
			run.Dt,
			run.Solver,
			status,
		)
	}

	return w.Flush()
}

func loadRun(runID string) (*storage.RunMetadata, []*record.Trace, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	traces, err := st.LoadTraces(runID)
	if err != nil {
		return nil, nil, err
	}
	if len(traces) == 0 || traces[0].Len() == 0 {
		return nil, nil, fmt.Errorf("run %s has no data", runID)
	}
	return meta, traces, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, traces, err := loadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("samples: %d\n\n", traces[0].Len())

	for _, tr := range traces {
		graph := asciigraph.Plot(tr.Y,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("%s: %s vs time (0-%.1f ms)", tr.Label, tr.Probe, meta.T)),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	if output != "" {
		if err := export.SaveTraces(output, meta.ID, traces); err != nil {
			return err
		}
		fmt.Printf("figure written to %s\n", output)
	}
	return nil
}

func renderFigure(cmd *cobra.Command, args []string) error {
	meta, traces, err := loadRun(args[0])
	if err != nil {
		return err
	}
	path := output
	if path == "" {
		path = meta.ID + ".png"
	}
	if err := export.SaveTraces(path, fmt.Sprintf("%s (%s)", meta.Model, meta.ID), traces); err != nil {
		return err
	}
	fmt.Printf("figure written to %s\n", path)
	return nil
}

func findTrace(traces []*record.Trace, label string, fallback int) (*record.Trace, error) {
	if label == "" {
		if fallback >= len(traces) {
			return nil, fmt.Errorf("run has %d traces, need at least %d", len(traces), fallback+1)
		}
		return traces[fallback], nil
	}
	for _, tr := range traces {
		if tr.Label == label {
			return tr, nil
		}
	}
	return nil, fmt.Errorf("no trace %q", label)
}

func phasePlot(cmd *cobra.Command, args []string) error {
	meta, traces, err := loadRun(args[0])
	if err != nil {
		return err
	}
	x, err := findTrace(traces, xLabel, 0)
	if err != nil {
		return err
	}
	y, err := findTrace(traces, yLabel, 1)
	if err != nil {
		return err
	}
	pp, err := analysis.NewPhasePlane(x, y)
	if err != nil {
		return err
	}

	fmt.Printf("phase plane: %s\n", meta.ID)
	fmt.Printf("x-axis: %s, y-axis: %s\n\n", x.Label, y.Label)
	fmt.Println(pp.ASCII(70, 24))

	if output != "" {
		p, err := export.PhasePlot(pp)
		if err != nil {
			return err
		}
		if err := export.Save(output, p); err != nil {
			return err
		}
		fmt.Printf("figure written to %s\n", output)
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, traces, err := loadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("spike analysis: %s\n", meta.ID)
	fmt.Printf("model: %s, threshold: %.1f mV\n\n", meta.Model, threshold)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRACE\tSAMPLES\tINITIAL\tMEAN\tMIN\tPEAK\tPEAK T\tSPIKES\tLATENCY")
	for _, tr := range traces {
		s := analysis.Summarize(tr, threshold)
		latency := "-"
		if !math.IsNaN(s.Latency) {
			latency = fmt.Sprintf("%.3f", s.Latency)
		}
		fmt.Fprintf(w, "%s\t%d\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%d\t%s\n",
			s.Label, s.Samples, s.Initial, s.Mean, s.Min, s.Peak, s.PeakTime, s.Spikes, latency)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, tr := range traces {
		if tr.Probe.Variable != record.Voltage {
			continue
		}
		spikes := analysis.DetectSpikes(tr, threshold)
		if len(spikes) == 0 {
			continue
		}
		fmt.Printf("\n%s spikes:\n", tr.Label)
		if len(spikes) > 1 {
			if f, err := analysis.DominantFrequency(tr); err == nil {
				fmt.Printf("  dominant frequency: %.1f hz\n", f)
			}
		}
		for i, sp := range spikes {
			hw := "open"
			if !math.IsNaN(sp.HalfWidth) {
				hw = fmt.Sprintf("%.3f ms", sp.HalfWidth)
			}
			fmt.Printf("  %d: onset %.3f ms, peak %.2f mV at %.3f ms, half-width %s\n", i+1, sp.Time, sp.Peak, sp.PeakTime, hw)
		}
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	runID := args[0]
	_, traces, err := loadRun(runID)
	if err != nil {
		return err
	}

	path := output
	if path == "" {
		path = runID + ".csv"
	}
	if err := storage.ExportCSV(path, traces); err != nil {
		return err
	}
	fmt.Printf("exported %d traces to %s\n", len(traces), path)
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, traces, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if output == "" {
		return storage.ExportJSONStdout(*meta, traces)
	}
	if err := storage.ExportJSON(output, *meta, traces); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", output)
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args[0], "default")
	if err != nil {
		return err
	}
	viz.SetTheme(theme)

	s, clamps, err := cfg.BuildWithClamps()
	if err != nil {
		return err
	}
	m, err := viz.NewModel(s, clamps, cfg.SimConfig(), cfg.Model)
	if err != nil {
		return err
	}
	return viz.Run(m)
}

// benchSection is the section whose nseg the benchmark varies: the last
// one declared, which for the built-in cells is the dendrite.
func benchSection(cfg *config.Config) *config.SectionConfig {
	return &cfg.Sections[len(cfg.Sections)-1]
}

func benchModel(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(cmd, args[0], "default")
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("tstop") {
		base.Run.TStop = 10
	}

	ctx, stop := signalContext()
	defer stop()

	sec := benchSection(base)
	fmt.Printf("benchmarking %s, varying nseg of %s over %.1f ms\n\n", base.Model, sec.Name, base.Run.TStop)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOLVER\tNSEG\tSEGMENTS\tSTEPS\tTIME\tSTEPS/SEC")

	for _, name := range hines.Names() {
		for _, n := range []int{1, 11, 101, 1001} {
			// dense LU is cubic in the segment count
			if name == "dense" && n > 101 {
				continue
			}
			cfg := base.Clone()
			cfg.Run.Solver = name
			benchSection(cfg).Nseg = n

			s, err := cfg.Build()
			if err != nil {
				return err
			}
			start := time.Now()
			result, err := s.Run(ctx, cfg.SimConfig())
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			stepsPerSec := float64(result.StepsTaken) / elapsed.Seconds()
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%v\t%s\n",
				name, n, s.Cable().Len(), humanize.Comma(int64(result.StepsTaken)), elapsed.Round(time.Microsecond), humanize.Comma(int64(stepsPerSec)))
		}
	}

	return w.Flush()
}

func compareSolvers(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(cmd, args[0], "default")
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("comparing solvers for %s (dt=%.4f ms, tstop=%.1f ms)\n\n", base.Model, base.Run.Dt, base.Run.TStop)
	fmt.Printf("%-10s  %-14s  %-14s  %-12s\n", "solver", "final_v (mV)", "max_dev (mV)", "time_ms")

	var reference []*record.Trace
	for _, name := range args[1:] {
		cfg := base.Clone()
		cfg.Run.Solver = name

		s, err := cfg.Build()
		if err != nil {
			fmt.Printf("%-10s  error: %v\n", name, err)
			continue
		}
		start := time.Now()
		result, err := s.Run(ctx, cfg.SimConfig())
		elapsed := time.Since(start)
		if err != nil {
			fmt.Printf("%-10s  error: %v\n", name, err)
			continue
		}
		if len(result.Traces) == 0 {
			return fmt.Errorf("model %q records nothing to compare", cfg.Model)
		}

		if reference == nil {
			reference = result.Traces
		}
		dev := 0.0
		for i, tr := range result.Traces {
			for j, y := range tr.Y {
				dev = math.Max(dev, math.Abs(y-reference[i].Y[j]))
			}
		}
		_, final, _ := result.Traces[0].Last()
		fmt.Printf("%-10s  %14.6f  %14.2e  %12.2f\n", name, final, dev, float64(elapsed.Microseconds())/1000)
	}
	return nil
}

func printTopology(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args[0], "default")
	if err != nil {
		return err
	}
	m, err := cfg.Morphology()
	if err != nil {
		return err
	}
	topo, err := m.Topology()
	if err != nil {
		return err
	}
	fmt.Print(topo)
	return nil
}

func initConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args[0], "default")
	if err != nil {
		return err
	}
	if err := config.Save(configOut, cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s config to %s\n", cfg.Model, configOut)
	return nil
}
