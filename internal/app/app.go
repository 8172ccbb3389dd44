package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"timeline-ai/backend/internal/api"
	"timeline-ai/backend/internal/config"
	"timeline-ai/backend/internal/llm"
	"timeline-ai/backend/internal/service"
)

const shutdownTimeout = 10 * time.Second

// App holds the wired application.
type App struct {
	Server   *http.Server
	Provider llm.LLMProvider
}

// NewApp builds the provider, services and HTTP server from cfg.
func NewApp(cfg *config.Config) (*App, error) {
	provider, err := newProvider(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	timelineService := service.NewTimelineService(llm.NewSessionFactory(provider), service.TimelineConfig{
		ClassifierModel: cfg.ClassifierModel,
		GeneratorModel:  cfg.GeneratorModel,
		SystemPrompt:    cfg.SystemPrompt,
	})
	timelineHandler := api.NewTimelineHandler(timelineService, cfg.MaxEventLength)
	router := api.NewRouter(timelineHandler)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		WriteTimeout:      0, // Disabled for streaming endpoints
		IdleTimeout:       120 * time.Second,
	}

	return &App{Server: server, Provider: provider}, nil
}

func Run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		// slog is not yet configured, so use the default logger for this critical error.
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	setupLogger(cfg.LogLevel)

	logConfigSource(cfg)

	app, err := NewApp(cfg)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.ModelProvider == config.ProviderOllama {
		if err := waitForOllama(ctx, cfg.OllamaURL); err != nil {
			slog.Info("Shutting down before Ollama became ready")
			return 0
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "port", cfg.AppPort, "provider", app.Provider.Name())
		serverErr <- app.Server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			return 1
		}
	case <-ctx.Done():
		slog.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.Server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
			return 1
		}
	}

	return 0
}

func newProvider(ctx context.Context, cfg *config.Config) (llm.LLMProvider, error) {
	switch cfg.ModelProvider {
	case config.ProviderOllama:
		return llm.NewOllamaProvider(cfg.OllamaURL), nil
	case config.ProviderOpenAI:
		return llm.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		return llm.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL), nil
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required for the gemini provider")
		}
		return llm.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiBaseURL)
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.ModelProvider)
	}
}

func logConfigSource(cfg *config.Config) {
	if cfg.ConfigFile != "" {
		slog.Info("Successfully loaded configuration from file.", "file", cfg.ConfigFile)
	} else {
		slog.Info("Configuration file not found. Using environment variables and defaults.")
	}
}

func setupLogger(logLevel string) {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

// waitForOllama blocks until the Ollama server answers or ctx is done.
func waitForOllama(ctx context.Context, ollamaURL string) error {
	slog.Info("Waiting for Ollama to be ready...")
	client := &http.Client{Timeout: 2 * time.Second}
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ollamaURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if resp != nil {
			if bErr := resp.Body.Close(); bErr != nil {
				slog.Warn("Failed to close response body in ollama health check", "error", bErr)
			}
		}
		if err == nil && resp.StatusCode == http.StatusOK {
			slog.Info("Ollama is ready.")
			return nil
		}
		slog.Debug("Ollama not ready yet, retrying in 3 seconds...", "url", ollamaURL, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
}
