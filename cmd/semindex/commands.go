package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/httpapi"
	"github.com/poiesic/semindex/indexing"
	"github.com/poiesic/semindex/search"
)

func initCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	idx, _, err := openIndex(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	err = idx.Initialize(ctx, func(p ai.Progress) {
		fmt.Fprintf(os.Stderr, "\r%-8s %5.1f%% %s", p.Stage, p.Percent, p.Message)
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("model initialization failed: %w", err)
	}
	fmt.Fprintln(c.App.Writer, "Model ready")
	return nil
}

func indexCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	if c.Int("report-interval") <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	corpus, err := loadCorpus(c.String("corpus"))
	if err != nil {
		return err
	}

	idx, cfg, err := openIndex(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	opts := []indexing.IndexOption{indexing.WithDocumentSummaries(c.Bool("summaries"))}
	if c.Bool("force") {
		opts = append(opts, indexing.WithForceReindex())
	}

	fmt.Fprintf(os.Stderr, "Database: %s (%s)\n", cfg.DBPath, cfg.Store)
	fmt.Fprintf(os.Stderr, "Corpus: %s\n", c.String("corpus"))
	fmt.Fprintln(os.Stderr)

	tracker := indexing.NewProgressTracker(os.Stderr, c.Int("report-interval"))
	summary, err := idx.IndexAll(ctx, corpus.Jobs, corpus.Stories, corpus.Documents, tracker.Func(), opts...)
	tracker.Finish()
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Indexed %d entities: %d embedded, %d unchanged, %d blank, %d records in %s\n",
		summary.Items, summary.Embedded, summary.Skipped, summary.Blank, summary.Records,
		summary.Duration.Round(time.Millisecond))
	return nil
}

func searchCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("a query is required")
	}

	idx, cfg, err := openIndex(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	opts := cfg.SearchOptions()
	if names := c.StringSlice("type"); len(names) > 0 {
		types := make([]core.EntityType, 0, len(names))
		for _, name := range names {
			t, err := core.ParseEntityType(name)
			if err != nil {
				return err
			}
			types = append(types, t)
		}
		opts = append(opts, search.WithEntityTypes(types...))
	}
	if c.IsSet("limit") {
		opts = append(opts, search.WithLimit(c.Int("limit")))
	}
	if c.IsSet("threshold") {
		opts = append(opts, search.WithThreshold(float32(c.Float64("threshold"))))
	}
	opts = append(opts, search.WithMonitor(&search.LogMonitor{Logger: slog.Default()}))

	var results []*core.SearchResult
	if jobID := c.String("job"); jobID != "" {
		results, err = idx.SearchWithinJob(ctx, query, jobID, opts...)
	} else {
		results, err = idx.SemanticSearch(ctx, query, opts...)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	printResults(c.App.Writer, results)
	return nil
}

func similarCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	idx, _, err := openIndex(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	results, err := idx.FindSimilarJobs(ctx, c.String("job"), c.Int("limit"))
	if err != nil {
		return fmt.Errorf("similar jobs failed: %w", err)
	}
	printResults(c.App.Writer, results)
	return nil
}

func statsCommand(c *cli.Context) error {
	idx, cfg, err := openIndex(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	counts, err := idx.Counts(c.Context)
	if err != nil {
		return fmt.Errorf("failed to count entities: %w", err)
	}
	status := idx.Status()

	w := c.App.Writer
	fmt.Fprintf(w, "Database: %s (%s)\n", cfg.DBPath, cfg.Store)
	fmt.Fprintf(w, "Backend:  %s\n", cfg.Model.Backend)
	fmt.Fprintf(w, "Model:    %s\n", status.State)
	fmt.Fprintf(w, "Records:  %d\n", status.Records)
	for _, t := range core.EntityTypes {
		fmt.Fprintf(w, "  %-12s %d\n", t, counts[t])
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	jobID := c.String("job")
	typeName, id := c.String("type"), c.String("id")
	switch {
	case jobID != "" && (typeName != "" || id != ""):
		return fmt.Errorf("use either --job or --type with --id")
	case jobID == "" && (typeName == "" || id == ""):
		return fmt.Errorf("--type and --id are required unless --job is given")
	}

	var entityType core.EntityType
	if jobID == "" {
		var err error
		if entityType, err = core.ParseEntityType(typeName); err != nil {
			return err
		}
	}

	idx, _, err := openIndex(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	if jobID != "" {
		if err := idx.DeleteJob(c.Context, jobID); err != nil {
			return fmt.Errorf("failed to delete job: %w", err)
		}
		fmt.Fprintf(c.App.Writer, "Deleted job %s and its dependents\n", jobID)
		return nil
	}
	if err := idx.DeleteEntity(c.Context, entityType, id); err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Deleted %s\n", core.EntityKey{Type: entityType, ID: id})
	return nil
}

func clearCommand(c *cli.Context) error {
	idx, _, err := openIndex(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	if err := idx.Clear(c.Context); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	fmt.Fprintln(c.App.Writer, "Index cleared")
	return nil
}

func serveCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	idx, cfg, err := openIndex(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	addr := cfg.Server.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}
	server := httpapi.NewServer(idx, addr,
		httpapi.WithLogger(slog.Default()),
		httpapi.WithRequestTimeout(cfg.Server.RequestTimeout),
	)

	go func() {
		if err := idx.Initialize(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("model initialization failed", "err", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func printResults(w io.Writer, results []*core.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results")
		return
	}
	for i, r := range results {
		line := fmt.Sprintf("%2d. %.4f  %s", i+1, r.Score, r.Record.Key())
		if r.Record.ParentJobID != "" {
			line += "  (job " + r.Record.ParentJobID + ")"
		}
		fmt.Fprintln(w, line)
	}
}
