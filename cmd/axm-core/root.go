package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	"github.com/BigBirdReturns/axm-core/pkg/graphstore"
	"github.com/BigBirdReturns/axm-core/pkg/lock/local"
	"github.com/BigBirdReturns/axm-core/pkg/manifest"
	"github.com/BigBirdReturns/axm-core/pkg/opstore"
	"github.com/BigBirdReturns/axm-core/pkg/prometheus"
	"github.com/BigBirdReturns/axm-core/pkg/vault"
)

const (
	serviceName    = "axm-core"
	serviceVersion = "dev"
)

// newCommand builds the root CLI command: global flags for the shard
// path, logging, tracing, and an optional operational store, sourceable
// from a TOML or YAML config file, plus one subcommand per public Vault
// operation.
func newCommand() *cli.Command {
	var (
		configPath   string
		otelShutdown func(context.Context) error
	)

	flagSources := func(configFileKey, envVar string) cli.ValueSourceChain {
		return cli.NewValueSourceChain(
			toml.TOML(configFileKey, altsrc.NewStringPtrSourcer(&configPath)),
			yaml.YAML(configFileKey, altsrc.NewStringPtrSourcer(&configPath)),
			cli.EnvVar(envVar),
		)
	}

	return &cli.Command{
		Name:  "axm-core",
		Usage: "mount and query AXM Genesis shards",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "path to a TOML or YAML config file",
				Sources:     cli.EnvVars("AXM_CONFIG_FILE"),
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:    "shard",
				Usage:   "path to the AXM Genesis shard to mount",
				Sources: flagSources("shard", "AXM_SHARD"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "zerolog level: trace, debug, info, warn, error",
				Sources: flagSources("log.level", "AXM_LOG_LEVEL"),
				Validator: func(lvl string) error {
					_, err := zerolog.ParseLevel(lvl)

					return err
				},
			},
			&cli.BoolFlag{
				Name:    "log-console-writer-enabled",
				Usage:   "use zerolog's human-readable console writer instead of JSON",
				Sources: flagSources("log.console-writer-enabled", "AXM_LOG_CONSOLE_WRITER_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "otel-exporter",
				Value:   string(otelExporterDiscard),
				Usage:   "trace exporter: discard, stdout, otlp",
				Sources: flagSources("opentelemetry.exporter", "AXM_OTEL_EXPORTER"),
			},
			&cli.StringFlag{
				Name:    "opstore-url",
				Usage:   "operational store URL (sqlite://, postgres://, mysql://); unset disables history recording",
				Sources: flagSources("opstore.url", "AXM_OPSTORE_URL"),
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "serve Prometheus metrics at /metrics on this address for the command's duration; unset disables it",
				Sources: flagSources("metrics.addr", "AXM_METRICS_ADDR"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logger := newLogger(cmd.String("log-level"), cmd.Bool("log-console-writer-enabled"))
			ctx = logger.WithContext(ctx)

			shutdown, err := setupOTelSDK(ctx, otelExporterKind(cmd.String("otel-exporter")), serviceName, serviceVersion)
			if err != nil {
				return ctx, err
			}

			otelShutdown = shutdown

			return ctx, nil
		},
		After: func(ctx context.Context, _ *cli.Command) error {
			if otelShutdown != nil {
				return otelShutdown(ctx)
			}

			return nil
		},
		Commands: []*cli.Command{
			mountCommand(),
			queryCommand(),
			allClaimsCommand(),
			entityCommand(),
			sliceCommand(),
			sqlCommand(),
			statsCommand(),
			verifyCommand(),
		},
	}
}

func newLogger(level string, consoleWriter bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger

	if consoleWriter {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	return logger.Level(lvl).With().Timestamp().Logger()
}

// maybeServeMetrics starts a Prometheus /metrics endpoint on addr when
// addr is non-empty and registers it as the process's global OTel meter
// provider. The returned func shuts the listener and meter provider down;
// it is a no-op when addr is empty.
func maybeServeMetrics(ctx context.Context, addr string) (func(context.Context) error, error) {
	if addr == "" {
		return func(context.Context) error { return nil }, nil
	}

	gatherer, shutdownMeter, err := prometheus.SetupPrometheusMetrics(ctx, serviceName, serviceVersion)
	if err != nil {
		return nil, fmt.Errorf("axm-core: setting up Prometheus metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("metrics server stopped unexpectedly")
		}
	}()

	return func(shutdownCtx context.Context) error {
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}

		return shutdownMeter(shutdownCtx)
	}, nil
}

// withMountedVault opens the operational store (if configured), starts the
// optional metrics endpoint, mounts the shard named by --shard, runs fn,
// and always unmounts and tears everything back down before returning.
func withMountedVault(ctx context.Context, cmd *cli.Command, fn func(context.Context, *vault.Vault) error) error {
	shardPath := cmd.String("shard")
	if shardPath == "" {
		return fmt.Errorf("axm-core: --shard is required")
	}

	shutdownMetrics, err := maybeServeMetrics(ctx, cmd.String("metrics-addr"))
	if err != nil {
		return err
	}

	defer func() { _ = shutdownMetrics(ctx) }()

	var ops *opstore.Store

	if url := cmd.String("opstore-url"); url != "" {
		var err error

		ops, err = opstore.Open(ctx, url, nil)
		if err != nil {
			return fmt.Errorf("axm-core: opening operational store: %w", err)
		}

		defer func() { _ = ops.Close() }()
	}

	v := vault.New(local.NewRWLocker(), ops)

	if _, err := v.Mount(ctx, shardPath); err != nil {
		return fmt.Errorf("axm-core: mount failed: %w", err)
	}

	defer func() { _ = v.Unmount(ctx) }()

	return fn(ctx, v)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func mountCommand() *cli.Command {
	return &cli.Command{
		Name:  "mount",
		Usage: "mount the shard and print its metadata",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withMountedVault(ctx, cmd, func(ctx context.Context, v *vault.Vault) error {
				return printJSON(v.GetMetadata(ctx))
			})
		},
	}
}

func queryOptionsFromFlags(cmd *cli.Command) graphstore.QueryOptions {
	var opts graphstore.QueryOptions

	if cmd.IsSet("max-tier") {
		t := int(cmd.Int("max-tier"))
		opts.MaxTier = &t
	}

	if cmd.IsSet("limit") {
		l := int(cmd.Int("limit"))
		opts.Limit = &l
	}

	opts.IncludeOrphanClaims = cmd.Bool("include-orphan-claims")

	return opts
}

func queryOptionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "max-tier", Usage: "only include claims with tier <= this value"},
		&cli.IntFlag{Name: "limit", Usage: "maximum number of claims to return"},
		&cli.BoolFlag{Name: "include-orphan-claims", Usage: "accepted for forward compatibility; currently a no-op"},
	}
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "substring search over subject/object/predicate",
		ArgsUsage: "<term>",
		Flags:     queryOptionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("axm-core: query requires exactly one term argument")
			}

			return withMountedVault(ctx, cmd, func(ctx context.Context, v *vault.Vault) error {
				claims, err := v.Query(ctx, cmd.Args().First(), queryOptionsFromFlags(cmd))
				if err != nil {
					return err
				}

				return printJSON(claims)
			})
		},
	}
}

func allClaimsCommand() *cli.Command {
	return &cli.Command{
		Name:  "claims",
		Usage: "list all claims subject to max-tier/limit filters",
		Flags: queryOptionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withMountedVault(ctx, cmd, func(ctx context.Context, v *vault.Vault) error {
				claims, err := v.GetAllClaims(ctx, queryOptionsFromFlags(cmd))
				if err != nil {
					return err
				}

				return printJSON(claims)
			})
		},
	}
}

func entityCommand() *cli.Command {
	return &cli.Command{
		Name:      "entity",
		Usage:     "list every claim touching an entity as subject or object",
		ArgsUsage: "<entity_id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("axm-core: entity requires exactly one entity_id argument")
			}

			return withMountedVault(ctx, cmd, func(ctx context.Context, v *vault.Vault) error {
				claims, err := v.GetClaimsForEntity(ctx, cmd.Args().First())
				if err != nil {
					return err
				}

				return printJSON(claims)
			})
		},
	}
}

func sliceCommand() *cli.Command {
	return &cli.Command{
		Name:      "slice",
		Usage:     "print the exact source substring for a provenance triple",
		ArgsUsage: "<source_hash> <byte_start> <byte_end>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 3 {
				return fmt.Errorf("axm-core: slice requires source_hash, byte_start, byte_end")
			}

			var start, end int
			if _, err := fmt.Sscanf(args.Get(1), "%d", &start); err != nil {
				return fmt.Errorf("axm-core: invalid byte_start: %w", err)
			}

			if _, err := fmt.Sscanf(args.Get(2), "%d", &end); err != nil {
				return fmt.Errorf("axm-core: invalid byte_end: %w", err)
			}

			return withMountedVault(ctx, cmd, func(ctx context.Context, v *vault.Vault) error {
				slice, err := v.GetContentSlice(ctx, args.First(), start, end)
				if err != nil {
					return err
				}

				fmt.Println(slice)

				return nil
			})
		},
	}
}

func sqlCommand() *cli.Command {
	return &cli.Command{
		Name:      "sql",
		Usage:     "evaluate read-only SQL against the bound claims/entities/provenance/spans views",
		ArgsUsage: "<query>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("axm-core: sql requires exactly one query argument")
			}

			return withMountedVault(ctx, cmd, func(ctx context.Context, v *vault.Vault) error {
				rows, err := v.ExecuteSQL(ctx, cmd.Args().First())
				if err != nil {
					return err
				}

				return printJSON(rows)
			})
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "print tallies and the Merkle/signature verification flags",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withMountedVault(ctx, cmd, func(ctx context.Context, v *vault.Vault) error {
				stats, err := v.GetStatistics(ctx)
				if err != nil {
					return err
				}

				return printJSON(stats)
			})
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "compute the Merkle root of --shard and compare against its manifest (does not mount)",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			shardPath := cmd.String("shard")
			if shardPath == "" {
				return fmt.Errorf("axm-core: --shard is required")
			}

			trustLevel, err := vault.VerifyShard(ctx, shardPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
			}

			return printJSON(map[string]manifest.TrustLevel{"trust_level": trustLevel})
		},
	}
}
