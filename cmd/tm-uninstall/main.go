package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nragusa/tm-rapid7-uninstall/internal/cli"
	"github.com/nragusa/tm-rapid7-uninstall/internal/command"
	"github.com/nragusa/tm-rapid7-uninstall/internal/config"
	"github.com/nragusa/tm-rapid7-uninstall/internal/dispatch"
	"github.com/nragusa/tm-rapid7-uninstall/internal/logging"
	"github.com/nragusa/tm-rapid7-uninstall/internal/report"
	"github.com/nragusa/tm-rapid7-uninstall/internal/run"
	"github.com/nragusa/tm-rapid7-uninstall/internal/runid"
	"github.com/nragusa/tm-rapid7-uninstall/internal/source"
)

var (
	flagPackage   string
	flagMode      string
	flagRegion    string
	flagLogFile   string
	flagMetrics   string
	flagCollector string
	flagCollCA    string
	flagPreflight bool
	flagYes       bool
)

var rootCmd = &cobra.Command{
	Use:   "tm-uninstall [flags] <instance-ids.csv>",
	Short: "Uninstall a package from a fleet of EC2 instances via SSM Run Command",
	Long: `tm-uninstall reads a CSV of EC2 instance IDs (header row skipped, first
column used), validates each ID, and dispatches one SSM Run Command
uninstall request per valid instance. Command delivery, retries and
execution status are owned by SSM; failed rows are reported and the
run continues. Re-run the tool on a CSV of previously failed IDs to
retry.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runUninstall,
}

func init() {
	rootCmd.Flags().StringVarP(&flagPackage, "package", "p", "", "name of the package to uninstall (required)")
	rootCmd.Flags().StringVar(&flagMode, "mode", string(command.ModeDistributor), "uninstall template: distributor or powershell")
	rootCmd.Flags().StringVar(&flagRegion, "region", "", "AWS region (default "+config.DefaultRegion+", env "+config.EnvRegion+")")
	rootCmd.Flags().StringVar(&flagLogFile, "log-file", "uninstall.log", "path of the rotating run log")
	rootCmd.Flags().StringVar(&flagMetrics, "metrics-addr", "", "serve Prometheus metrics on this address for the run (e.g. :9090)")
	rootCmd.Flags().StringVar(&flagCollector, "collector-endpoint", "", "stream per-row outcomes to this https:// or wss:// collector")
	rootCmd.Flags().StringVar(&flagCollCA, "collector-ca", "", "PEM file of CAs to trust for the collector TLS cert")
	rootCmd.Flags().BoolVar(&flagPreflight, "preflight", false, "check each instance's SSM agent is online before dispatching")
	rootCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.MarkFlagRequired("package")
}

func runUninstall(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	cfg.Package = flagPackage
	cfg.Mode = flagMode
	cfg.File = args[0]
	cfg.Preflight = flagPreflight
	cfg.AssumeYes = flagYes
	if flagRegion != "" {
		cfg.Region = flagRegion
	}
	if flagMetrics != "" {
		cfg.MetricsAddr = flagMetrics
	}
	if flagCollector != "" {
		cfg.CollectorEndpoint = flagCollector
	}
	if flagCollCA != "" {
		cfg.CollectorCA = flagCollCA
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Operator input errors are checked once here, never per row.
	mode, err := command.ParseMode(cfg.Mode)
	if err != nil {
		return &config.Error{Msg: "bad --mode", Err: err}
	}
	spec, err := command.ForPackage(mode, cfg.Package)
	if err != nil {
		return &config.Error{Msg: "bad --mode", Err: err}
	}

	log := logging.Init(flagLogFile)

	runID, err := runid.New()
	if err != nil {
		return err
	}
	log = log.With("run_id", runID)

	if !cfg.AssumeYes {
		plan := cli.Plan{Package: cfg.Package, Mode: string(mode), Region: cfg.Region, File: cfg.File}
		if !cli.Confirm(os.Stdout, os.Stdin, plan) {
			log.Info("run declined at confirmation prompt")
			fmt.Println("Nothing dispatched.")
			return nil
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return &config.Error{Msg: "load AWS config", Err: err}
	}
	dispatcher := dispatch.NewFromConfig(awsCfg, runID, cfg.Package)

	var reporter run.Reporter
	if cfg.CollectorEndpoint != "" {
		client, err := report.Dial(report.Options{
			Endpoint:     cfg.CollectorEndpoint,
			RunID:        runID,
			CABundlePath: cfg.CollectorCA,
		})
		if err != nil {
			return &config.Error{Msg: "collector endpoint", Err: err}
		}
		defer client.Close()
		reporter = client
	}

	if cfg.MetricsAddr != "" {
		run.ServeMetrics(ctx, cfg.MetricsAddr, log)
	}

	src, err := source.Open(cfg.File)
	if err != nil {
		return &config.Error{Msg: "input file", Err: err}
	}
	defer src.Close()

	log.Info("run starting",
		"package", cfg.Package, "mode", mode, "region", cfg.Region,
		"file", cfg.File, "log_group", dispatch.LogGroup(cfg.Package))

	runner := &run.Runner{
		Dispatcher: dispatcher,
		Spec:       spec,
		Log:        log,
		Reporter:   reporter,
		Preflight:  cfg.Preflight,
	}
	s := runner.Process(ctx, src)

	log.Info("run finished",
		"total", s.Total, "malformed", s.Malformed, "invalid", s.Invalid,
		"failed", s.Failed, "dispatched", s.Dispatched)
	summary := color.New(color.Bold)
	summary.Printf("Done: %d rows, %d dispatched, %d invalid, %d malformed, %d failed\n",
		s.Total, s.Dispatched, s.Invalid, s.Malformed, s.Failed)

	// Per-row failures are reported above, not fatal: exit 0 so the
	// operator can re-run with a filtered CSV.
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
