package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amonks/daybook/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API and a board page over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var serveAddr string

const shutdownTimeout = 5 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8080", "Address to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, openOptions{})
	if err != nil {
		return err
	}
	logger := a.log.Logger
	server := &http.Server{
		Addr:              serveAddr,
		Handler:           web.NewHandler(a.svc, web.Options{Window: a.settings.Window, Logger: &logger}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "Serving daybook on http://%s\n", serveAddr)
	logger.Info().Str("addr", serveAddr).Msg("serving")

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
