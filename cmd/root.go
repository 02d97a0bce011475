package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"iiifload/internal/banner"
	"iiifload/internal/cli"
	"iiifload/internal/config"
	"iiifload/internal/corpus"
	"iiifload/internal/dummy"
	"iiifload/internal/export"
	"iiifload/internal/iiif"
	"iiifload/internal/logging"
	"iiifload/internal/metrics"
	"iiifload/internal/outcome"
	"iiifload/internal/runner"
	"iiifload/internal/stats"
	"iiifload/internal/tui"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "iiifload",
	Short: "iiifload - IIIF Image API load generator",
	Long: `
iiifload drives an IIIF Image API server with the request mix of real
viewers: thumbnails, deep zoom, tile sweeps, regions and full images.

Every request is classified by response time and appended to the request log.
Runs end on --duration, --max-requests or Ctrl+C.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.BindEnv(v); err != nil {
			return err
		}
		return config.ReadFile(v, cfgFile)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoad(cmd.Context())
	},
}

func Execute() {
	// Custom Help with Banner
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		_ = cmd.Usage()
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(dummyCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.iiifload.yaml)")

	f := rootCmd.Flags()
	f.StringP(config.KeyURLList, "f", "", "File with one info.json URL per line (env URL_LIST)")
	f.String(config.KeyLogFile, "default.log", "Request log file, - for stdout (env LOG_FILE)")
	f.String(config.KeyLogLevel, "WARNING", "DEBUG, INFO, WARNING, ERROR or CRITICAL (env LOG_LEVEL)")
	f.String(config.KeyLogFormat, logging.FormatConsole, "Request log format: console or json")
	f.StringP(config.KeyTasks, "t", "", "Comma separated tasks to run with equal weight (env TASKS)")
	f.StringP(config.KeyWeights, "w", "", "Weight overrides, e.g. "+config.WeightsExample)
	f.IntP(config.KeyUsers, "U", 10, "Concurrent simulated users")
	f.Float64(config.KeySpawnRate, 1, "Users started per second, 0 starts all at once")
	f.DurationP(config.KeyDuration, "d", 0, "Stop after this long, 0 runs until interrupted")
	f.Uint64P(config.KeyMaxRequests, "n", 0, "Stop after this many requests, 0 for no limit")
	f.Float64P(config.KeyRate, "r", 0, "Cap task starts per second across all users, 0 for no cap")
	f.Duration(config.KeyThinkTime, 0, "Pause between tasks of one user")
	f.Duration(config.KeyTimeout, config.DefaultTimeout, "Per request timeout")
	f.Int64(config.KeySeed, 0, "Random seed, 0 picks one from the clock")
	f.String(config.KeyMetricsAddr, "", "Serve Prometheus metrics on this address, e.g. :9100")
	f.Bool(config.KeyTUI, false, "Show the live dashboard")
	f.String(config.KeyCSVLog, "", "Also write one CSV row per request to this file")

	config.SetDefaults(v)
	if err := v.BindPFlags(f); err != nil {
		panic(err)
	}
}

func runLoad(ctx context.Context) error {
	diag := logging.Diagnostics(os.Stderr)
	defer func() { _ = diag.Sync() }()

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if _, ok := logging.ParseLevel(cfg.LogLevel); !ok {
		diag.Warn("unknown log level, using WARNING", zap.String("level", cfg.LogLevel))
	}

	catalog, err := config.Catalog(cfg, runner.DefaultCatalog())
	if err != nil {
		return err
	}

	images, err := corpus.Load(cfg.URLList, diag)
	if err != nil {
		return err
	}
	diag.Info("loaded url list", zap.String("path", cfg.URLList), zap.Int("images", images.Len()))

	logger, closeLog, err := logging.New(cfg.Logging())
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	st := stats.NewStats()
	collector := metrics.NewCollector()
	observers := []outcome.Observer{st, collector}

	if cfg.CSVLog != "" {
		csvLog, err := export.Create(cfg.CSVLog)
		if err != nil {
			return err
		}
		defer func() {
			if err := csvLog.Close(); err != nil {
				diag.Error("csv log", zap.Error(err))
			}
		}()
		observers = append(observers, csvLog)
	}
	recorder := outcome.NewRecorder(logger, os.Stderr, observers...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := collector.Serve(ctx, cfg.MetricsAddr); err != nil {
				diag.Error("metrics endpoint stopped", zap.Error(err))
			}
		}()
		diag.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
	}

	var updates runner.StatsUpdateChan
	if cfg.TUI {
		updates = make(runner.StatsUpdateChan, 100)
	}

	r, err := runner.NewRunner(cfg.Runner(), runner.Deps{
		Corpus:   images,
		Catalog:  catalog,
		Geometry: iiif.DefaultBuilder(),
		Recorder: recorder,
		Stats:    st,
		Gauges:   collector,
		Logger:   diag,
	}, updates)
	if err != nil {
		return err
	}

	if cfg.TUI {
		if err := tui.Run(ctx, r, catalog.Names()); err != nil {
			return err
		}
		cli.PrintSummary(os.Stdout, r)
	} else {
		cli.Start(ctx, r, catalog.Names(), os.Stdout)
	}

	return nil
}

// --- Dummy Subcommand ---
var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run a synthetic IIIF image server",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		count, _ := cmd.Flags().GetInt("images")
		profiles, _ := cmd.Flags().GetStringSlice("profiles")
		urlList, _ := cmd.Flags().GetString("url-list")

		diag := logging.Diagnostics(os.Stderr)
		defer func() { _ = diag.Sync() }()

		srv := dummy.ServerConfig{Port: port, Images: count, Profiles: profiles}
		if urlList != "" {
			base := fmt.Sprintf("http://localhost:%d", port)
			if err := dummy.WriteURLList(urlList, base, dummy.Catalog(srv.Images, srv.Profiles)); err != nil {
				return err
			}
			diag.Info("wrote url list", zap.String("path", urlList))
		}
		return dummy.Run(cmd.Context(), srv, diag)
	},
}

func init() {
	dummyCmd.Flags().IntP("port", "p", 8080, "Port to run dummy server on")
	dummyCmd.Flags().Int("images", 50, "Number of synthetic images")
	dummyCmd.Flags().StringSlice("profiles", nil, "Latency profiles to use: fast, medium, slow, spike, error")
	dummyCmd.Flags().String("url-list", "", "Write the info.json URLs to this file")
}
