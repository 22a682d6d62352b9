// imagepub publishes every image in a directory to a message broker.
//
// Each file is base64-encoded and sent to <prefix>/<filename> with its
// filename, content type and encoding attached as message properties.
// Broker settings come from flags, SOLACE_* environment variables, or an
// optional YAML file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nerrad567/imagepub/internal/image"
	"github.com/nerrad567/imagepub/internal/infrastructure/config"
	"github.com/nerrad567/imagepub/internal/infrastructure/influxdb"
	"github.com/nerrad567/imagepub/internal/infrastructure/logging"
	"github.com/nerrad567/imagepub/internal/publisher"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Process exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitConfig      = 2
	exitConnection  = 3
	exitInterrupted = 130
)

// errConfig marks configuration and flag errors.
var errConfig = errors.New("invalid configuration")

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := newRootCommand().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	cancel()
	os.Exit(exitCode(err))
}

// exitCode maps a run error onto the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case publisher.IsInterrupted(err):
		return exitInterrupted
	case errors.Is(err, errConfig):
		return exitConfig
	case errors.Is(err, publisher.ErrConnectionFailed):
		return exitConnection
	default:
		return exitError
	}
}

// newRootCommand builds the imagepub command.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imagepub",
		Short: "Publish a directory of images to a message broker",
		Long: `Publish every image in a directory to a message broker.

Each image is sent base64-encoded to <topic-prefix>/<filename> with the
properties filename, content-type (image/<ext>) and encoding (base64).

Broker settings fall back to the SOLACE_HOST, SOLACE_VPN, SOLACE_USERNAME
and SOLACE_PASSWORD environment variables.

Examples:
  imagepub                                  # publish ./images to localhost
  imagepub --images-dir ./pics --debug      # verbose run
  imagepub --host tcps://broker:8883 --protocol mqtt3`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	defaults := config.Default()
	flags := cmd.Flags()
	flags.String("config", os.Getenv("IMAGEPUB_CONFIG"), "optional YAML configuration file (env IMAGEPUB_CONFIG)")
	flags.String("images-dir", defaults.ImagesDir, "directory containing images to publish")
	flags.String("host", defaults.Broker.Host, "broker URL (env SOLACE_HOST)")
	flags.String("vpn", defaults.Broker.VPN, "message VPN name (env SOLACE_VPN)")
	flags.String("username", defaults.Auth.Username, "broker username (env SOLACE_USERNAME)")
	flags.String("password", defaults.Auth.Password, "broker password (env SOLACE_PASSWORD)")
	flags.String("protocol", defaults.Broker.Protocol, "broker protocol: mqtt5 or mqtt3")
	flags.String("topic-prefix", defaults.Publish.TopicPrefix, "topic prefix for published images")
	flags.Duration("delay", defaults.Publish.Delay, "pause after each publish")
	flags.Bool("debug", false, "enable debug logging and payload diagnostics")

	return cmd
}

// loadConfig loads defaults, the optional file and the environment, then
// applies the flags the user set explicitly.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	path, _ := flags.GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}

	if err := applyFlags(flags, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}

	return cfg, nil
}

// applyFlags copies changed flags onto cfg. Unchanged flags keep the
// file and environment values.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	stringFlags := map[string]*string{
		"images-dir":   &cfg.ImagesDir,
		"host":         &cfg.Broker.Host,
		"vpn":          &cfg.Broker.VPN,
		"username":     &cfg.Auth.Username,
		"password":     &cfg.Auth.Password,
		"protocol":     &cfg.Broker.Protocol,
		"topic-prefix": &cfg.Publish.TopicPrefix,
	}
	for name, dst := range stringFlags {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return fmt.Errorf("reading --%s: %w", name, err)
		}
		*dst = v
	}

	if flags.Changed("delay") {
		d, err := flags.GetDuration("delay")
		if err != nil {
			return fmt.Errorf("reading --delay: %w", err)
		}
		cfg.Publish.Delay = d
	}

	if flags.Changed("debug") {
		debug, err := flags.GetBool("debug")
		if err != nil {
			return fmt.Errorf("reading --debug: %w", err)
		}
		cfg.Debug = debug
	}

	return nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - cfg: Validated configuration
//
// Returns:
//   - error: nil on success or a no-op run, or error describing failure
func run(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Logging, cfg.Debug, version)
	log.Info("starting imagepub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	files, err := image.Scan(cfg.ImagesDir)
	if errors.Is(err, image.ErrDirectoryNotFound) {
		if mkErr := os.MkdirAll(cfg.ImagesDir, 0o755); mkErr != nil {
			return fmt.Errorf("creating images directory: %w", mkErr)
		}
		log.Info("created images directory, add images and run again", "dir", cfg.ImagesDir)
		return nil
	}
	if errors.Is(err, image.ErrNotDirectory) {
		log.Warn("images path is not a directory, no images found", "dir", cfg.ImagesDir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("scanning images: %w", err)
	}
	if len(files) == 0 {
		log.Info("no images found", "dir", cfg.ImagesDir)
		return nil
	}
	log.Info("found images", "dir", cfg.ImagesDir, "count", len(files))

	registry := prometheus.NewRegistry()
	metrics := publisher.MustNewMetrics(registry)

	transport := newTransport(cfg, log)
	session := publisher.NewSession(transport, publisher.Config{
		TopicPrefix: cfg.Publish.TopicPrefix,
		Delay:       cfg.Publish.Delay,
		Debug:       cfg.Debug,
	})
	session.SetLogger(log)
	session.SetServiceEventListener(publisher.MultiListener{
		publisher.NewLogListener(log),
		metrics,
	})
	session.AddRecorder(metrics)

	influx := connectInfluxDB(ctx, cfg, log)
	if influx != nil {
		defer func() {
			log.Info("closing InfluxDB")
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		session.AddRecorder(&influxRecorder{client: influx})
	}

	log.Info("connecting to broker",
		"host", cfg.Broker.Host,
		"vpn", cfg.Broker.VPN,
		"protocol", cfg.Broker.Protocol,
		"client_id", cfg.ClientID(),
		"username", cfg.Auth.Username,
	)

	start := time.Now()
	result, runErr := session.Run(ctx, files)
	elapsed := time.Since(start)

	metrics.ObserveRunDuration(elapsed.Seconds())
	if influx != nil {
		influx.WriteRunSummary(result.Published, result.Skipped, result.Failed, elapsed)
	}
	pushMetrics(cfg, registry, log)

	log.Info("run finished",
		"published", result.Published,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", elapsed,
	)

	return runErr
}

// connectInfluxDB returns a telemetry client, or nil when InfluxDB is
// disabled or unreachable. Telemetry never blocks publishing.
func connectInfluxDB(ctx context.Context, cfg *config.Config, log *logging.Logger) *influxdb.Client {
	if !cfg.InfluxDB.Enabled {
		return nil
	}

	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if err != nil {
		log.Warn("InfluxDB unavailable, continuing without telemetry", "error", err)
		return nil
	}

	client.SetTags(map[string]string{
		"vpn":       cfg.Broker.VPN,
		"client_id": cfg.ClientID(),
	})
	client.SetOnError(func(err error) {
		log.Warn("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)

	return client
}
