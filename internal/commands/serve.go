package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"little-giant/handler"
	"little-giant/internal/config"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(deps Dependencies, flags *rootFlags) *cobra.Command {
	var (
		listen    string
		chromeURL string
		headless  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the side panel over HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadEnv(cmd, deps, flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				env.ListenAddr = listen
			}
			if cmd.Flags().Changed("chrome-url") {
				env.BrowserDebuggerURL = chromeURL
			}
			if cmd.Flags().Changed("headless") {
				env.BrowserHeadless = headless
			}
			return runServe(cmd.Context(), env, deps)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", config.DefaultListenAddr, "Listen address")
	cmd.Flags().StringVar(&chromeURL, "chrome-url", "", "DevTools websocket URL of a running Chrome (default: launch one)")
	cmd.Flags().BoolVar(&headless, "headless", false, "Launch Chrome headless")
	return cmd
}

func runServe(ctx context.Context, env config.Env, deps Dependencies) error {
	logger := deps.Logger
	a, err := buildApp(ctx, env, deps.Getenv, logger, buildOptions{withBrowser: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:              env.ListenAddr,
		Handler:           handler.NewServer(a.router, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", env.ListenAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if env.SettingsFile != "" {
		if err := os.MkdirAll(filepath.Dir(env.SettingsFile), 0o755); err != nil {
			logger.Warn("settings directory unavailable, not watching", "err", err)
		} else {
			w := config.NewWatcher(env.SettingsFile, a.reloader.OnChange, logger)
			g.Go(func() error { return w.Run(gctx) })
		}
	}
	return g.Wait()
}

func newLambdaCommand(deps Dependencies, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run as an AWS Lambda behind API Gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadEnv(cmd, deps, flags)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), env, deps.Getenv, deps.Logger, buildOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			h, err := handler.NewHandler(a.router, deps.Logger)
			if err != nil {
				return err
			}
			lambda.Start(h.Handle)
			return nil
		},
	}
}
