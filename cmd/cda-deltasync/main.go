// Command cda-deltasync reads a CDA export's manifest and synthesises (or
// extends) a Delta Lake transaction log over its parquet files, never
// copying the underlying data bytes.
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/guidewire-oss/cda-deltasync/deltalog"
	"github.com/guidewire-oss/cda-deltasync/manifest"
	"github.com/guidewire-oss/cda-deltasync/metrics"
	"github.com/guidewire-oss/cda-deltasync/model"
	"github.com/guidewire-oss/cda-deltasync/orchestrator"
	"github.com/guidewire-oss/cda-deltasync/store"
)

func main() {

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	var (
		flagManifest       string
		flagSourceBucket   string
		flagTargetBucket   string
		flagCloud          string
		flagSourceCloud    string
		flagTables         []string
		flagCheckpoint     int
		flagFanout         int
		flagRetryCap       int
		flagMaxWorkers     int
		flagSequential     bool
		flagResumeCacheDir string
		flagMetricsAddr    string
		flagLog            string
	)

	pflag.StringVarP(&flagManifest, "manifest", "m", "", "key of the CDA manifest object in the source store")
	pflag.StringVar(&flagSourceBucket, "source-bucket", "", "source store bucket/container")
	pflag.StringVar(&flagTargetBucket, "target-bucket", "", "target store bucket/container")
	pflag.StringVar(&flagCloud, "target-cloud", "aws", "target cloud: aws, azure, or gcp")
	pflag.StringVar(&flagSourceCloud, "source-cloud", "aws", "source cloud: aws, azure, or gcp")
	pflag.StringSliceVarP(&flagTables, "table", "t", nil, "restrict processing to these table names (repeatable); default is all")
	pflag.IntVar(&flagCheckpoint, "checkpoint-interval", model.DefaultCheckpointInterval, "versions between Delta checkpoints")
	pflag.IntVar(&flagFanout, "fanout", model.DefaultFanout, "bounded concurrency for listing within one entity")
	pflag.IntVar(&flagRetryCap, "retry-cap", model.DefaultRetryCap, "commit-conflict retries before an entity fails fatally")
	pflag.IntVar(&flagMaxWorkers, "max-workers", 0, "entity-level worker pool size (0 = runtime.NumCPU())")
	pflag.BoolVar(&flagSequential, "sequential", false, "process entities one at a time instead of in parallel")
	pflag.StringVar(&flagResumeCacheDir, "resume-cache", "", "optional local badger directory accelerating Open on warm re-runs")
	pflag.StringVar(&flagMetricsAddr, "metrics-addr", "", "address to serve /metrics on; empty disables the metrics server")
	pflag.StringVarP(&flagLog, "log", "l", "info", "log output level")

	pflag.Parse()

	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	level, err := zerolog.ParseLevel(flagLog)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid log level")
	}
	log = log.Level(level)

	if flagManifest == "" || flagSourceBucket == "" || flagTargetBucket == "" {
		log.Fatal().Msg("--manifest, --source-bucket, and --target-bucket are required")
	}

	targetCloud, err := model.ParseTargetCloud(flagCloud)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid --target-cloud")
	}
	sourceCloud, err := model.ParseTargetCloud(flagSourceCloud)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid --source-cloud")
	}

	ctx := context.Background()

	sourceGW, err := buildGateway(ctx, sourceCloud, flagSourceBucket, store.RoleSource, flagRetryCap)
	if err != nil {
		log.Fatal().Err(err).Msg("could not build source gateway")
	}
	targetGW, err := buildGateway(ctx, targetCloud, flagTargetBucket, store.RoleTarget, flagRetryCap)
	if err != nil {
		log.Fatal().Err(err).Msg("could not build target gateway")
	}

	reader := manifest.NewReader(log, sourceGW, flagManifest)

	opts := []model.Option{
		model.WithCheckpointInterval(flagCheckpoint),
		model.WithFanout(flagFanout),
		model.WithRetryCap(flagRetryCap),
		model.WithParallel(!flagSequential),
		model.WithMaxWorkers(flagMaxWorkers),
	}
	if len(flagTables) > 0 {
		opts = append(opts, model.WithTableNames(flagTables...))
	}
	cfg := model.NewConfig(flagManifest, targetCloud, opts...)

	var orchOpts []orchestrator.Option

	if flagResumeCacheDir != "" {
		cache, err := deltalog.OpenResumeCache(flagResumeCacheDir)
		if err != nil {
			log.Fatal().Err(err).Msg("could not open resume cache")
		}
		defer cache.Close()
		orchOpts = append(orchOpts, orchestrator.WithResumeCache(cache))
	}

	var metricsServer *metrics.Server
	if flagMetricsAddr != "" {
		m := metrics.New()
		orchOpts = append(orchOpts, orchestrator.WithMetrics(m))
		metricsServer = metrics.NewServer(log, flagMetricsAddr)
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	orch := orchestrator.New(log, sourceGW, targetGW, reader, cfg, orchOpts...)

	runCtx, cancelRun := context.WithCancel(ctx)
	done := make(chan []model.Result, 1)
	go func() {
		start := time.Now()
		log.Info().Time("start", start).Msg("cda-deltasync starting")
		results, err := orch.Run(runCtx)
		if err != nil {
			log.Error().Err(err).Msg("run failed fatally")
		}
		finish := time.Now()
		log.Info().Time("finish", finish).Str("duration", finish.Sub(start).Round(time.Second).String()).Msg("cda-deltasync stopped")
		done <- results
	}()

	var results []model.Result
	select {
	case <-sig:
		log.Info().Msg("cda-deltasync stopping")
		cancelRun()
		results = <-done
	case results = <-done:
		log.Info().Msg("cda-deltasync done")
	}
	go func() {
		<-sig
		log.Warn().Msg("forcing exit")
		os.Exit(1)
	}()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("could not stop metrics server")
		}
		cancel()
	}

	exitCode := 0
	for _, r := range results {
		log.Info().Str("table", r.Table).Int64("version", r.ProcessFinishVersion).
			Int("batches", len(r.Watermarks)).Int("warnings", len(r.Warnings)).
			Bool("ok", r.OK()).Msg("entity finished")
		for _, w := range r.Warnings {
			log.Warn().Str("table", r.Table).Msg(w)
		}
		for _, e := range r.Errors {
			log.Error().Str("table", r.Table).Err(e).Msg("entity failed")
		}
		if !r.OK() {
			exitCode = 1
		}
	}

	os.Exit(exitCode)
}

func buildGateway(ctx context.Context, cloud model.TargetCloud, bucket string, role store.Role, retryCap int) (store.Gateway, error) {
	creds := store.ResolveCredentials(role)
	switch cloud {
	case model.CloudAWS:
		return store.NewS3Gateway(creds, bucket, retryCap)
	case model.CloudAzure:
		return store.NewAzureGateway(creds, bucket, retryCap)
	case model.CloudGCP:
		return store.NewGCSGateway(ctx, creds, bucket, retryCap)
	default:
		panic("unreachable: unhandled TargetCloud")
	}
}
