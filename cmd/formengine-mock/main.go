package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	formengine "github.com/goliatone/go-formengine"
	"github.com/goliatone/go-formengine/internal/config"
	"github.com/goliatone/go-formengine/internal/logging"
	"github.com/goliatone/go-formengine/internal/mockbackend"
	"github.com/goliatone/go-formengine/pkg/engine"
	"github.com/goliatone/go-formengine/pkg/renderers/html"
	"github.com/goliatone/go-formengine/pkg/schema"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "formengine-mock: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(config.Flags("formengine-mock"), args)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	forms, err := loadForms(cfg.Mock.Schemas)
	if err != nil {
		return err
	}
	logger.Info("schemas loaded", zap.Strings("forms", forms.IDs()))

	previews := engine.New(nil, engine.WithLogger(logger.Named("preview")))
	renderer := html.New(html.WithLogger(logger.Named("html")))
	backend := mockbackend.New(forms,
		mockbackend.WithLogger(logger.Named("mock")),
		mockbackend.WithCeilings(cfg.Capacity.SlotCeiling, cfg.Capacity.ExamDateCeiling),
		mockbackend.WithSigningKey([]byte(cfg.Mock.SigningKey)),
		mockbackend.WithPreview(func(form schema.FormSchema) ([]byte, error) {
			session, err := previews.OpenSchema(form)
			if err != nil {
				return nil, err
			}
			return renderer.Render(session.View())
		}),
	)

	srv := &http.Server{
		Addr:              cfg.Mock.Addr,
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Mock.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func loadForms(dir string) (*schema.Store, error) {
	if dir == "" {
		return formengine.SampleSchemas()
	}
	return schema.LoadFS(os.DirFS(dir))
}
