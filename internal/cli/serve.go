// internal/cli/serve.go
package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/primer-cli/primerbatch/internal/batch"
	"github.com/primer-cli/primerbatch/internal/params"
	"github.com/primer-cli/primerbatch/internal/wsui"
)

var (
	serveAddr     string
	serveHeadless bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose batch control and progress over a local websocket",
	Long: `Serve a websocket at ws://ADDR/ws for a front end.

Clients send {"type":"start","text":"chr1 100\n..."} or {"type":"stop"} and
receive progress, stats and terminal events for every batch.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Serve.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		opts := cfg.SessionOptions()
		if cmd.Flags().Changed("headless") {
			opts.Launch.Headless = serveHeadless
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store := params.NewStore(cfg.PresetsFile)
		hub := wsui.NewHub(ctx, nil, wsui.Defaults{
			Build:   cfg.DefaultBuild(),
			Browser: cfg.BrowserKind(),
			Preset: func(name string) (params.Parameters, error) {
				p, _, err := store.Resolve(name)
				return p, err
			},
		}, logger)

		eng, err := newEngine(cfg, opts, "", batch.Observers{hub, logObserver{}}, logger)
		if err != nil {
			return err
		}
		defer eng.Close()
		hub.SetController(eng.orchestrator)

		if p, name, err := store.Resolve(""); err == nil {
			if err := eng.orchestrator.UpdateParameters(p); err != nil {
				logger.Warn("default preset rejected", "preset", name, "err", err)
			}
		}

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		server := &http.Server{Handler: hub.Handler(), ReadHeaderTimeout: 10 * time.Second}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("serving", "addr", "ws://"+ln.Addr().String()+"/ws")
			if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down")
			eng.orchestrator.RequestStop()
			eng.orchestrator.Wait()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, 127.0.0.1:8765)")
	serveCmd.Flags().BoolVar(&serveHeadless, "headless", false, "Run the browser without a window")
}

// logObserver mirrors batch notifications into the process log.
type logObserver struct{}

func (logObserver) Progress(msg string) { logger.Info(msg, "comp", "progress") }

func (logObserver) Stats(s batch.ProcessingStats) {
	logger.Debug("stats", "processed", s.Processed, "total", s.Total, "percent", s.Percent())
}

func (logObserver) Terminal(o batch.Outcome) {
	logger.Info("batch finished", "run_id", o.RunID, "outcome", string(o.Kind), "err", o.Err)
}
