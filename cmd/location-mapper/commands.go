package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"location_mapper/internal/artifact"
	"location_mapper/internal/events"
	"location_mapper/internal/locations/cache"
	"location_mapper/internal/mapper"
	"location_mapper/internal/scheduler"
	"location_mapper/platform/textnorm"
	"location_mapper/platform/validator"
)

type runFlags struct {
	seedsFile      string
	outputDir      string
	maxQueries     int
	maxDepth       int
	concurrency    int
	expandSynonyms bool
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [seed...]",
		Short: "Run one discovery pass and write the artifact to every configured sink",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("seeds-file") {
				a.cfg.DiscoverySeedsFile = f.seedsFile
			}
			if cmd.Flags().Changed("output-dir") {
				a.cfg.ArtifactOutputDir = f.outputDir
			}

			req, err := mapper.ResolveRequest(a.cfg, args, validator.New())
			if err != nil {
				return err
			}
			req.RequestedBy = "cli"
			req.Options = flagOverrides(cmd, f, req.Options)

			ctx := cmd.Context()
			bus := events.NewInMemoryBus(a.log)
			svc, cleanup, err := mapper.NewFromConfig(ctx, a.cfg, bus, a.log)
			if err != nil {
				return err
			}
			defer cleanup()

			a.log.Info("starting taxonomy run", "seeds", len(req.Seeds), "search_url", a.cfg.GetLocationSearchURL())
			report, err := svc.Run(ctx, req)
			if err != nil {
				return err
			}
			bus.Wait()

			res := report.Result
			if ctx.Err() != nil {
				a.log.Warn("run interrupted, partial artifact written", "run_id", res.RunID, "not_attempted", len(res.NotAttempted))
			}
			if report.Failed() {
				if res.Diagnostic != nil {
					a.log.Error("taxonomy run aborted", "run_id", res.RunID, "diagnostic", res.Diagnostic.Error())
				}
				return errRunFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&f.seedsFile, "seeds-file", "", "YAML seed file (terms and option overrides)")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "", "directory for the file sink")
	cmd.Flags().IntVar(&f.maxQueries, "max-queries", 0, "maximum distinct search terms, 0 for unlimited")
	cmd.Flags().IntVar(&f.maxDepth, "max-depth", 0, "maximum expansion depth, 0 for unlimited")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 1, "number of in-flight searches")
	cmd.Flags().BoolVar(&f.expandSynonyms, "expand-synonyms", false, "also search the aliases of newly found places")
	return cmd
}

// flagOverrides layers explicitly set flags on top of the seed file overrides.
func flagOverrides(cmd *cobra.Command, f runFlags, base *mapper.OptionOverrides) *mapper.OptionOverrides {
	o := &mapper.OptionOverrides{}
	if base != nil {
		*o = *base
	}
	flags := cmd.Flags()
	if flags.Changed("max-queries") {
		o.MaxQueries = &f.maxQueries
	}
	if flags.Changed("max-depth") {
		o.MaxDepth = &f.maxDepth
	}
	if flags.Changed("concurrency") {
		o.Concurrency = &f.concurrency
	}
	if flags.Changed("expand-synonyms") {
		o.ExpandSynonyms = &f.expandSynonyms
	}
	return o
}

func newEnqueueCmd(a *app) *cobra.Command {
	var requestedBy string

	cmd := &cobra.Command{
		Use:   "enqueue [seed...]",
		Short: "Queue a taxonomy rebuild for the scheduler worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := scheduler.NewClient(a.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			id, err := client.EnqueueRebuild(cmd.Context(), scheduler.TaxonomyRebuildPayload{
				Seeds:       args,
				RequestedBy: requestedBy,
			})
			if err != nil {
				return fmt.Errorf("enqueue rebuild: %w", err)
			}
			a.log.Info("taxonomy rebuild enqueued", "task_id", id, "queue", a.cfg.GetAsynqQueueName())
			return nil
		},
	}
	cmd.Flags().StringVar(&requestedBy, "requested-by", "cli", "who asked for the rebuild")
	return cmd
}

func newLookupCmd(a *app) *cobra.Command {
	var synonymsFile string

	cmd := &cobra.Command{
		Use:   "lookup <text...>",
		Short: "Resolve free text against a written synonyms.json",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if synonymsFile == "" {
				synonymsFile = filepath.Join(a.cfg.GetArtifactOutputDir(), artifact.FileSynonyms)
			}
			b, err := os.ReadFile(synonymsFile)
			if err != nil {
				return err
			}
			var index map[string]string
			if err := json.Unmarshal(b, &index); err != nil {
				return fmt.Errorf("decode %s: %w", synonymsFile, err)
			}

			key := textnorm.NormalizeKey(strings.Join(args, " "))
			path, ok := index[key]
			if !ok {
				return fmt.Errorf("no location matches %q", key)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&synonymsFile, "synonyms", "", "synonyms.json to read (default: <output dir>/synonyms.json)")
	return cmd
}

func newPurgeCacheCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-cache",
		Short: "Delete every cached search result from Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.GetRedisURL() == "" {
				return fmt.Errorf("REDIS_URL is not set")
			}
			rdb, err := cache.NewRedisClient(a.cfg.GetRedisURL(), a.cfg.GetRedisTLSInsecure())
			if err != nil {
				return err
			}
			defer func() { _ = rdb.Close() }()

			deleted, err := cache.New(nil, rdb, a.cfg.GetQueryCacheTTL(), a.log).Purge(cmd.Context())
			if err != nil {
				return err
			}
			a.log.Info("query cache purged", "deleted", deleted)
			return nil
		},
	}
}
