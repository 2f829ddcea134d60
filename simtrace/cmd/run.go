package cmd

import (
	"log/slog"

	"github.com/pkg/errors"
	"github.com/pkg/profile"
	"github.com/sarchlab/simtrace/config"
	"github.com/sarchlab/simtrace/datarecording"
	"github.com/sarchlab/simtrace/sim"
	"github.com/sarchlab/simtrace/simulation"
	"github.com/sarchlab/simtrace/vcd"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "run [flags] [-- plusargs...]",
		Short: "Simulate a design and record its waveform.",
		Long: "`run` creates one instance of a design, evaluates it --steps " +
			"times and writes a frame at time i*scale after step i. " +
			"Arguments after `--` are handed to the design untouched.",
		Args: cobra.ArbitraryArgs,
		RunE: runSimulation,
	}

	d := config.Default()
	f := c.Flags()
	f.String("design", d.Design, "name of the design to simulate")
	f.Int("steps", d.Steps, "number of evaluation steps")
	f.Uint64("scale", d.Scale, "time units per step")
	f.Int("depth", d.Depth, "number of hierarchy levels to trace")
	f.String("output", d.Output, "waveform destination")
	f.String("timescale", d.Timescale, "timescale written in the waveform")
	f.String("config", "", "TOML file to read the configuration from")
	f.String("env-file", "", "dotenv file with SIMTRACE_* variables")
	f.String("record", "", "also record frames into this SQLite database")
	f.Bool("monitor", false, "serve the progress of the run over HTTP")
	f.Int("monitor-port", 0, "port of the monitoring server, random if 0")
	f.Bool("open-browser", false, "open the monitoring page in a browser")
	f.String("cpuprofile", "", "directory to write a CPU profile into")
	f.Bool("sequential-ids", false,
		"number runs sequentially so that reruns record identical ids")

	return c
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}

// loadConfig applies defaults, the TOML file, the environment and the flags
// that were set, in that order.
func loadConfig(cmd *cobra.Command, args []string) (config.Config, error) {
	cfg := config.Default()
	f := cmd.Flags()

	path, _ := f.GetString("config")
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}

	envFile, _ := f.GetString("env-file")

	var dotenvFiles []string
	if envFile != "" {
		dotenvFiles = append(dotenvFiles, envFile)
	}

	if err := cfg.LoadEnv(dotenvFiles...); err != nil {
		return cfg, err
	}

	applyFlags(cmd, &cfg)

	if len(args) > 0 {
		cfg.Args = args
	}

	return cfg, cfg.Validate()
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()

	if f.Changed("design") {
		cfg.Design, _ = f.GetString("design")
	}

	if f.Changed("steps") {
		cfg.Steps, _ = f.GetInt("steps")
	}

	if f.Changed("scale") {
		cfg.Scale, _ = f.GetUint64("scale")
	}

	if f.Changed("depth") {
		cfg.Depth, _ = f.GetInt("depth")
	}

	if f.Changed("output") {
		cfg.Output, _ = f.GetString("output")
	}

	if f.Changed("timescale") {
		cfg.Timescale, _ = f.GetString("timescale")
	}

	if f.Changed("record") {
		cfg.Record, _ = f.GetString("record")
	}

	if f.Changed("monitor") {
		cfg.Monitor, _ = f.GetBool("monitor")
	}

	if f.Changed("monitor-port") {
		cfg.MonitorPort, _ = f.GetInt("monitor-port")
	}

	if f.Changed("cpuprofile") {
		cfg.CPUProfile, _ = f.GetString("cpuprofile")
	}

	if f.Changed("sequential-ids") {
		cfg.SequentialIDs, _ = f.GetBool("sequential-ids")
	}
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	p := newPrinter(cmd, cmd.ErrOrStderr())
	logger := newLogger(cmd)

	if cfg.CPUProfile != "" {
		defer profile.Start(
			profile.CPUProfile,
			profile.ProfilePath(cfg.CPUProfile),
			profile.Quiet,
		).Stop()
	}

	ts, err := vcd.ParseTimescale(cfg.Timescale)
	if err != nil {
		return err
	}

	if err := useIDGenerator(cfg.SequentialIDs); err != nil {
		return err
	}

	b := simulation.MakeBuilder().
		WithDesign(cfg.Design).
		WithArgs(cfg.Args).
		WithSteps(cfg.Steps).
		WithScale(sim.VTime(cfg.Scale)).
		WithDepth(cfg.Depth).
		WithOutput(cfg.Output).
		WithTimescale(ts).
		WithVersion("simtrace " + Version).
		WithLogger(logger)

	if verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose"); verbose {
		b = b.WithHook(sim.NewLogHook(logger, slog.LevelInfo))
	}

	if cfg.Record != "" {
		recorder := datarecording.NewRecorder(cfg.Record)
		b = b.WithRecorder(recorder)

		p.note("Recording frames into %s", recorder.Filename())
	}

	if cfg.Monitor {
		m, stop, err := startMonitor(cmd, cfg, p, logger)
		if err != nil {
			return err
		}
		defer stop()

		b = b.WithHook(m)
	}

	driver, err := b.Build()
	if err != nil {
		return err
	}

	if err := driver.Run(); err != nil {
		return errors.Wrapf(err, "simulate %s", cfg.Design)
	}

	last, _ := driver.Session().LastTimestamp()
	p.ok("Simulated %s for %d steps, %d frames up to t=%d written to %s",
		cfg.Design, cfg.Steps, driver.Session().Frames(), last, cfg.Output)

	return nil
}

func useIDGenerator(sequential bool) error {
	if sequential {
		return sim.UseSequentialIDGenerator()
	}

	return sim.UseUniqueIDGenerator()
}
