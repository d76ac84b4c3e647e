// Package main provides the loopfeed entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/okian/loopfeed/internal/adapters/http/api"
	"github.com/okian/loopfeed/internal/adapters/http/swagger"
	app "github.com/okian/loopfeed/internal/app"
	"github.com/okian/loopfeed/internal/config"
	"github.com/okian/loopfeed/internal/domain/model"
	"github.com/okian/loopfeed/pkg/logger"
	"github.com/okian/loopfeed/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 30 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd creates the root command.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "loopfeed",
		Short:        "Aggregate and rank short-video feeds from Nostr relays",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate("loopfeed version {{.Version}}\n")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newFeedCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// setup loads configuration and initializes logging from it.
func setup(ctx context.Context, logOut io.Writer) (*config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(logger.WithWriter(logOut), logger.WithFormat(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve feeds, sessions, stats and metrics over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := setup(ctx, os.Stdout)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides LOOPFEED_ADDR")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	// Drop the default collectors; system stats are published by the updater below.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	log := logger.Get()
	svc := app.New(cfg, app.WithLogger(log.Named("service")))
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Error(stopCtx, "service shutdown failed", logger.Error(err))
		}
	}()

	go startSystemMetricsUpdater(ctx)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	log.Info(shutdownCtx, "server stopped")
	return nil
}

// feedFlags mirror the fields of a feed request.
type feedFlags struct {
	feedType string
	tag      string
	author   string
	viewer   string
	rank     string
	limit    int
	ids      []string
	asJSON   bool
	watch    bool
}

func (f feedFlags) request() model.Request {
	req := model.Request{
		Type:     model.FeedType(f.feedType),
		Tag:      f.tag,
		Author:   f.author,
		Viewer:   f.viewer,
		RankMode: model.RankMode(f.rank),
		PageSize: f.limit,
		IDs:      f.ids,
	}
	if len(req.IDs) > 0 {
		req.Type = model.FeedLookup
	}
	return req
}

func newFeedCmd() *cobra.Command {
	var flags feedFlags

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Load one feed page and print it",
		Long:  "Load one feed page from the configured relays. With --watch the feed stays open and is reprinted on every scheduled refresh.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := setup(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			svc := app.New(cfg)
			if err := svc.Start(ctx); err != nil {
				return fmt.Errorf("start service: %w", err)
			}
			defer func() { _ = svc.Stop(context.Background()) }()

			out := cmd.OutOrStdout()
			show := func(p model.Page) {
				if err := printPage(out, p, flags.asJSON); err != nil {
					logger.Get().Error(ctx, "print page failed", logger.Error(err))
				}
			}

			if !flags.watch {
				page, err := svc.LoadFeed(ctx, flags.request())
				if err != nil {
					return err
				}
				show(page)
				return nil
			}

			sess, err := svc.OpenSession(ctx, flags.request(), app.WithOnUpdate(show))
			if err != nil {
				return err
			}
			if !sess.Refreshing() {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s feeds are not refreshed; showing a single page\n", sess.Request().Type)
				return nil
			}
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.feedType, "type", "t", string(model.FeedRecent), "feed type: discovery, trending, tag, author, personalized, recent, lookup")
	cmd.Flags().StringVar(&flags.tag, "tag", "", "hashtag for tag feeds")
	cmd.Flags().StringVar(&flags.author, "author", "", "hex public key for author feeds")
	cmd.Flags().StringVar(&flags.viewer, "viewer", "", "hex public key whose follows drive personalized feeds")
	cmd.Flags().StringVar(&flags.rank, "rank", "", "rank mode: chronological, popular, hot, top, rising, controversial")
	cmd.Flags().IntVarP(&flags.limit, "limit", "n", 0, "page size")
	cmd.Flags().StringSliceVar(&flags.ids, "id", nil, "event ids for a direct lookup")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "keep the feed open and print every refresh")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "loopfeed version %s\n", version)
		},
	}
}

type printedItem struct {
	Slug        string    `json:"slug"`
	Publisher   string    `json:"publisher"`
	EffectiveAt time.Time `json:"effective_at"`
	Loops       int64     `json:"loops"`
	Reposts     int       `json:"reposts"`
	Title       string    `json:"title,omitempty"`
	MediaURL    string    `json:"media_url"`
}

func printPage(w io.Writer, p model.Page, asJSON bool) error {
	items := make([]printedItem, len(p.Items))
	for i := range p.Items {
		it := &p.Items[i]
		items[i] = printedItem{
			Slug:        it.Slug,
			Publisher:   it.Publisher,
			EffectiveAt: it.EffectiveAt.UTC(),
			Loops:       it.Loops(),
			Reposts:     len(it.Reposts),
			Title:       it.Title,
			MediaURL:    it.MediaURL,
		}
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tPUBLISHER\tEFFECTIVE\tLOOPS\tREPOSTS\tTITLE")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			it.Slug, short(it.Publisher), it.EffectiveAt.Format(time.RFC3339), it.Loops, it.Reposts, it.Title)
	}
	if p.NextCursor != nil {
		fmt.Fprintf(tw, "\nnext cursor: %d\n", p.NextCursor.Unix())
	}
	return tw.Flush()
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

// startSystemMetricsUpdater updates system metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
