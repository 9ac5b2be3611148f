package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"english-tutor/handler"
	"english-tutor/internal/config"
	"english-tutor/internal/httpapi"
	"english-tutor/internal/integrations/openai"
	"english-tutor/internal/integrations/paramstore"
	"english-tutor/internal/observability"
	"english-tutor/internal/usecase"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	cfg, err := config.LoadRelay()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// ---- Provider keys ----
	var keys *paramstore.Client
	if cfg.ParamPrefix != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			slog.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
		keys, err = paramstore.New(awsssm.NewFromConfig(awsCfg), cfg.ParamPrefix)
		if err != nil {
			slog.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
	}

	// ---- Clients ----
	llm, err := openai.NewClient(
		openai.Flavor(cfg.ProviderFlavor),
		endpoint(cfg.Chat, keys, "chat-api-key"),
		endpoint(cfg.Realtime, keys, "realtime-api-key"),
	)
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}

	settings := usecase.Settings{
		Voice:                  cfg.RealtimeVoice,
		TranslationPrompt:      cfg.TranslationPrompt,
		ExplanationPrompt:      cfg.ExplanationPrompt,
		ChatTemperature:        &cfg.ChatTemperature,
		TranslationTemperature: &cfg.TranslationTemperature,
		ExplanationTemperature: &cfg.ExplanationTemperature,
	}
	switch {
	case !cfg.ChatPromptEnabled:
		off := ""
		settings.ChatPrompt = &off
	case cfg.ChatSystemPrompt != "":
		settings.ChatPrompt = &cfg.ChatSystemPrompt
	}
	relay, err := usecase.NewRelayService(llm, settings)
	if err != nil {
		slog.Error("failed to create relay service", "err", err)
		os.Exit(1)
	}

	// ---- Transport ----
	srv, err := httpapi.New(relay, observability.NewMetrics(cfg.MetricsNamespace),
		httpapi.WithLogger(logger),
		httpapi.WithAllowOrigin(cfg.AllowOrigin),
	)
	if err != nil {
		slog.Error("failed to create server", "err", err)
		os.Exit(1)
	}
	router := srv.Router()

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		h, err := handler.NewHandler(router)
		if err != nil {
			slog.Error("failed to create handler", "err", err)
			os.Exit(1)
		}
		lambda.Start(h.Handle)
		return
	}

	if err := serve(cfg, router); err != nil {
		slog.Error("relay stopped", "err", err)
		os.Exit(1)
	}
}

// endpoint prefers a key from the environment and falls back to SSM.
func endpoint(p config.Provider, keys *paramstore.Client, param string) openai.Endpoint {
	e := openai.Endpoint{
		BaseURL:    p.Endpoint,
		Deployment: p.Deployment,
		APIVersion: p.APIVersion,
		Key:        openai.StaticKey(p.APIKey),
	}
	if p.APIKey == "" && keys != nil {
		e.Key = func(ctx context.Context) (string, error) {
			return keys.APIKey(ctx, param)
		}
	}
	return e
}

func serve(cfg config.Relay, h http.Handler) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("relay listening", "addr", cfg.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("relay shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		_ = httpSrv.Close()
		return err
	}
	return nil
}
