package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	formengine "github.com/goliatone/go-formengine"
	"github.com/goliatone/go-formengine/internal/config"
	"github.com/goliatone/go-formengine/internal/logging"
	"github.com/goliatone/go-formengine/pkg/backend"
	"github.com/goliatone/go-formengine/pkg/capacity"
	"github.com/goliatone/go-formengine/pkg/engine"
	"github.com/goliatone/go-formengine/pkg/payment"
	"github.com/goliatone/go-formengine/pkg/renderers/html"
	"github.com/goliatone/go-formengine/pkg/renderers/tui"
	"github.com/goliatone/go-formengine/pkg/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "formengine: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := config.Flags("formengine-cli")
	htmlOut := flags.String("html", "", "write the form as HTML to this file instead of prompting")
	cfg, err := config.Load(flags, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.Args) != 1 {
		return errors.New("usage: formengine-cli [flags] <form-id>")
	}
	formID := cfg.Args[0]

	logger, err := logging.New(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if cfg.File != "" {
		logger.Debug("config loaded", zap.String("file", cfg.File))
	}

	opts, cleanup, err := engineOptions(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	stack, err := formengine.NewStack(cfg.Backend.URL,
		formengine.WithBackendOptions(
			backend.WithTimeout(cfg.Backend.Timeout),
			backend.WithProbeRate(cfg.Backend.ProbeRate, 1),
			backend.WithLogger(logger.Named("backend")),
		),
		formengine.WithEngineOptions(opts...),
	)
	if err != nil {
		return err
	}
	if cfg.Auth.Email != "" {
		sess, err := stack.Login(ctx, cfg.Auth.Email, cfg.Auth.Password)
		if err != nil {
			return err
		}
		logger.Info("logged in", zap.String("email", sess.Email), zap.String("role", sess.Role))
	}

	form, err := stack.Open(ctx, formID)
	if err != nil {
		return err
	}

	if *htmlOut != "" {
		out, err := formengine.RenderHTML(form, html.WithLogger(logger.Named("html")))
		if err != nil {
			return err
		}
		if err := os.WriteFile(*htmlOut, out, 0o644); err != nil {
			return fmt.Errorf("write html: %w", err)
		}
		fmt.Fprintf(stdout, "Form written to %s\n", *htmlOut)
		return nil
	}

	result, err := tui.New(tui.WithLogger(logger.Named("tui"))).Run(ctx, form)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Submission %s received.\n", result.SubmissionID)
	if !result.PaymentRequired {
		return nil
	}
	return settlePayment(ctx, form, stdout)
}

func engineOptions(ctx context.Context, cfg config.Config, logger *zap.Logger) ([]engine.Option, func(), error) {
	cleanup := func() {}
	policy, err := cfg.FailurePolicy()
	if err != nil {
		return nil, cleanup, err
	}
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithCeilings(cfg.Capacity.SlotCeiling, cfg.Capacity.ExamDateCeiling),
		engine.WithFailurePolicy(policy),
		engine.WithMinimumAge(cfg.Validation.MinimumAge),
		engine.WithPolling(cfg.Payment.PollInterval, cfg.Payment.MaxWait),
	}

	if cfg.Capacity.RedisAddr != "" {
		rdb, err := capacity.DialRedis(ctx, cfg.Capacity.RedisAddr, cfg.Capacity.RedisPassword, cfg.Capacity.RedisDB)
		if err != nil {
			return nil, cleanup, err
		}
		opts = append(opts, engine.WithCapacityCache(capacity.NewRedisCache(rdb, cfg.Capacity.CacheTTL)))
		cleanup = func() { _ = rdb.Close() }
	} else {
		opts = append(opts, engine.WithCapacityCache(capacity.NewMemoryCache(cfg.Capacity.CacheTTL)))
	}

	if cfg.Payment.Gateway == config.GatewayStripe {
		gateway, err := payment.NewStripeGateway(payment.StripeConfig{
			SecretKey:  cfg.Payment.StripeKey,
			SuccessURL: cfg.Payment.SuccessURL,
			CancelURL:  cfg.Payment.CancelURL,
		}, nil)
		if err != nil {
			return nil, cleanup, err
		}
		opts = append(opts, engine.WithGateway(gateway))
	}

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		rec, err := telemetry.NewPrometheus(reg)
		if err != nil {
			return nil, cleanup, err
		}
		opts = append(opts, engine.WithRecorder(rec))
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           telemetry.Handler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		prev := cleanup
		cleanup = func() {
			_ = srv.Close()
			prev()
		}
	}
	return opts, cleanup, nil
}

func settlePayment(ctx context.Context, form *engine.Form, stdout io.Writer) error {
	checkout, err := form.Pay(ctx)
	if err != nil {
		return err
	}
	if checkout.RedirectURL != "" {
		fmt.Fprintf(stdout, "Complete the payment at %s\n", checkout.RedirectURL)
	} else {
		fmt.Fprintf(stdout, "Order %s created for %.2f %s. Waiting for payment confirmation...\n",
			checkout.OrderID, checkout.Amount/100, checkout.Currency)
	}

	status, err := form.Payment().Await(ctx)
	switch {
	case errors.Is(err, payment.ErrPollTimeout):
		fmt.Fprintln(stdout, "Payment is still pending. Check the submission status later.")
		return nil
	case err != nil:
		return err
	}
	fmt.Fprintf(stdout, "Payment %s.\n", status)
	return nil
}
