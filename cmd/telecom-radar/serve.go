package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/telecom-radar/internal/httpapi"
	"github.com/joelkehle/telecom-radar/internal/relational"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the report API over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	handler := httpapi.NewServer(httpapi.Options{
		Runner: a.pipeline,
		Preview: func(ctx context.Context, tables []string, countries []string, limit int) ([]relational.TablePreview, error) {
			return a.builder.Preview(ctx, a.db, tables, countries, limit)
		},
		Ping:           a.db.Ping,
		DefaultTables:  a.cfg.Pipeline.Tables,
		DefaultTests:   a.cfg.Pipeline.Tests,
		DefaultHorizon: a.cfg.Pipeline.HorizonDays,
		PreviewRows:    a.cfg.Pipeline.PreviewRows,
		Logger:         a.log,
	})

	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.log.Info("listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
