package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakchai-t/doclens/config"
	"github.com/sakchai-t/doclens/internal/analysis"
	"github.com/sakchai-t/doclens/internal/chat"
	"github.com/sakchai-t/doclens/internal/language"
	"github.com/sakchai-t/doclens/internal/ledger"
	"github.com/sakchai-t/doclens/internal/llm"
	"github.com/sakchai-t/doclens/internal/pipeline"
	"github.com/sakchai-t/doclens/internal/retrieval"
	"github.com/sakchai-t/doclens/internal/store"
	"github.com/sakchai-t/doclens/models"
	"github.com/sakchai-t/doclens/provider"
	"github.com/sakchai-t/doclens/repository"
)

func Run(cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code, msg := mapError(err)
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	if cfg.Telemetry.Enabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	ctx := context.Background()
	dsn, err := cfg.Databases.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	clock := ledger.SystemClock(cfg.Quota.Timezone)
	stores, err := repository.NewStores(ctx, repository.RepoTypeRedis, cfg.Databases.Redis, clock, cfg.Chat.CancelTTL)
	if err != nil {
		return err
	}

	prov, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}
	guardrail := ledger.NewGuardrail(stores.Counters, cfg.Quota.DailyCallLimits, clock)
	tokens := ledger.NewTokenLedger(stores.Counters, cfg.Quota.TokenBudgets, clock)
	gatewayLogger := log.New(log.Writer(), "[GATEWAY] ", log.LstdFlags)
	gateway := llm.NewGateway(prov, guardrail, tokens, st, gatewayLogger)

	retriever := retrieval.New(st, retrieval.Config{
		MinScore:        cfg.Retrieval.MinScore,
		MinMatchedTerms: cfg.Retrieval.MinMatchedTerms,
		ReferenceLength: cfg.Retrieval.ChunkSize,
		ExcerptRadius:   260,
	})
	analyzer := analysis.NewService(gateway, log.New(log.Writer(), "[ANALYSIS] ", log.LstdFlags))
	processor := pipeline.NewProcessor(st, analyzer, cfg.Retrieval.ChunkSize, cfg.Retrieval.Overlap,
		log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags))
	chatSvc := chat.NewService(chat.Options{
		Chat:             cfg.Chat,
		TopK:             cfg.Retrieval.TopK,
		FallbackLanguage: language.Lang(cfg.General.FallbackLanguage),
	}, retriever, gateway, st, st, st, log.New(log.Writer(), "[CHAT] ", log.LstdFlags))

	secret := cfg.General.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (general.jwt_secret)")
	}
	auth := &AuthHandler{Store: st, Secret: []byte(secret)}

	api := e.Group("/api")
	auth.Register(api.Group("/auth"))

	dh := &DocumentsHandler{Store: st, Processor: processor}
	dh.Register(api.Group("/documents"), auth.Secret)

	nh := &NotebooksHandler{Store: st, Analyzer: analyzer}
	nh.Register(api.Group("/notebooks"), auth.Secret)

	ch := &ConversationsHandler{Store: st, Chat: chatSvc, Cancels: stores.Cancels}
	ch.Register(api.Group("/conversations"), auth.Secret)

	uh := &UsageHandler{Tokens: tokens}
	uh.Register(api.Group("/usage"), auth.Secret)

	if addr == "" {
		addr = cfg.General.Listen
		if addr != "" && addr[0] != ':' {
			addr = ":" + addr
		}
		if addr == "" {
			addr = ":10011"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// mapError translates domain errors to HTTP status codes.
func mapError(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := he.Error()
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, msg
	}
	switch {
	case errors.Is(err, llm.ErrQuotaExceeded), errors.Is(err, llm.ErrTokenBudgetExceeded):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, models.ErrDocumentNotFound),
		errors.Is(err, models.ErrNotebookNotFound),
		errors.Is(err, models.ErrConversationNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, chat.ErrEmptyQuestion):
		return http.StatusBadRequest, err.Error()
	}
	var genErr *llm.GenerationError
	if errors.As(err, &genErr) {
		return http.StatusBadGateway, genErr.Error()
	}
	return http.StatusInternalServerError, err.Error()
}
