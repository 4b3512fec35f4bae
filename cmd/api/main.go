package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/rejoinhq/rejoin/internal/accounts"
	"github.com/rejoinhq/rejoin/internal/api"
	"github.com/rejoinhq/rejoin/internal/auth"
	"github.com/rejoinhq/rejoin/internal/config"
	"github.com/rejoinhq/rejoin/internal/conversation"
	"github.com/rejoinhq/rejoin/internal/database"
	"github.com/rejoinhq/rejoin/internal/dispatch"
	"github.com/rejoinhq/rejoin/internal/governance"
	"github.com/rejoinhq/rejoin/internal/governance/audit"
	"github.com/rejoinhq/rejoin/internal/governance/quota"
	"github.com/rejoinhq/rejoin/internal/llm"
	"github.com/rejoinhq/rejoin/internal/memory"
	mw "github.com/rejoinhq/rejoin/internal/middleware"
	inats "github.com/rejoinhq/rejoin/internal/nats"
	"github.com/rejoinhq/rejoin/internal/operators"
	"github.com/rejoinhq/rejoin/internal/orchestrator"
	iredis "github.com/rejoinhq/rejoin/internal/redis"
	"github.com/rejoinhq/rejoin/internal/server"
	"github.com/rejoinhq/rejoin/internal/skills"
	"github.com/rejoinhq/rejoin/internal/timewindow"
	"github.com/rejoinhq/rejoin/internal/xmpp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS JetStream
	natsClient, err := inats.NewClient(ctx, cfg.NATS)
	if err != nil {
		slog.Error("connecting to nats", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	publisher := inats.NewPublisher(natsClient.JetStream())
	consumerMgr := inats.NewConsumerManager(natsClient.JetStream())

	// LLM
	model, err := llm.New(cfg.LLM)
	if err != nil {
		slog.Error("creating llm client", "error", err)
		os.Exit(1)
	}
	var embedder llm.Embedder
	if e := llm.NewEmbedder(cfg.LLM); e != nil {
		embedder = e
	}

	// Auth
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(jwtManager, redisClient)
	operatorRepo := operators.NewRepository(pool)
	operatorSvc := operators.NewService(operatorRepo)
	authHandler := auth.NewHandler(authSvc, operatorSvc)

	// Accounts
	accountRepo := accounts.NewRepository(pool)
	accountSvc := accounts.NewService(accountRepo, cfg.Encryption.Key, cfg.XMPP.Domain)
	accountHandler := accounts.NewHandler(accountSvc)

	// Memory
	memoryRepo := memory.NewPostgresRepository(pool)
	memorySvc := memory.NewService(memoryRepo, memory.NewExtractor(model), memory.NewConsolidator(model), embedder)
	memoryHandler := memory.NewHandler(memorySvc)

	// Skills
	skillIndex := skills.NewIndex(os.DirFS(cfg.Skills.Dir))
	if err := skillIndex.Load(); err != nil {
		slog.Error("loading skill catalog", "error", err, "dir", cfg.Skills.Dir)
		os.Exit(1)
	}
	customStore := skills.NewCustomizationStore(pool)
	composer := skills.NewComposer(skillIndex, customStore, memorySvc)
	skillHandler := skills.NewHandler(skillIndex, customStore)

	// Governance
	quotaRepo := quota.NewRepository(pool)
	quotaLimiter := quota.NewRateLimiter(redisClient)
	quotaSvc := quota.NewService(quotaRepo, quotaLimiter, cfg.Governance)
	auditRepo := audit.NewRepository(pool)
	governanceHandler := governance.NewHandler(quotaSvc, auditRepo)

	// Conversation engine and dispatch plumbing
	gate := timewindow.NewGate(cfg.QuietHours.StartHour, cfg.QuietHours.EndHour, cfg.QuietHours.DefaultTimezone)
	convStore := conversation.NewStore(pool)
	dispatcher := dispatch.NewGovernedDispatcher(dispatch.NewNATSDispatcher(publisher), quotaSvc)
	deferrals := dispatch.NewDeferralQueue(redisClient)
	approvals := dispatch.NewApprovalStore(pool)
	engine := conversation.NewEngine(convStore, composer, model, gate, dispatcher, deferrals, approvals)

	decisionPublisher := orchestrator.NewDecisionPublisher(publisher)
	convHandler := conversation.NewHandler(engine, convStore, accountSvc, decisionPublisher)

	dispatchSvc := dispatch.NewService(approvals, deferrals, dispatcher, convStore, gate)
	dispatchHandler := dispatch.NewHandler(dispatchSvc, accountSvc)

	// Background loops
	releaser := dispatch.NewReleaser(deferrals, dispatcher, convStore, time.Minute)
	go releaser.Run(ctx)

	auditConsumer := audit.NewConsumer(auditRepo, consumerMgr)
	go func() {
		if err := auditConsumer.Start(ctx); err != nil {
			slog.Error("audit consumer stopped", "error", err)
		}
	}()

	memoryConsumer := memory.NewConsumer(memorySvc, convStore, consumerMgr)
	go func() {
		if err := memoryConsumer.Start(ctx); err != nil {
			slog.Error("memory consumer stopped", "error", err)
		}
	}()

	orch := orchestrator.NewOrchestrator(
		publisher,
		consumerMgr,
		orchestrator.NewRouter(accountSvc),
		orchestrator.NewValidator(),
		quotaSvc,
		accountSvc,
		engine,
	)
	go func() {
		if err := orch.Start(ctx); err != nil {
			slog.Error("orchestrator stopped", "error", err)
		}
	}()

	// XMPP channel gateway (optional)
	if cfg.XMPP.Enabled {
		xmppHandler := xmpp.NewHandler(publisher)
		component, err := xmpp.NewComponent(cfg.XMPP, xmppHandler)
		if err != nil {
			slog.Error("creating xmpp component", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := component.Start(ctx); err != nil {
				slog.Error("xmpp component stopped", "error", err)
			}
		}()

		relay := xmpp.NewOutboundRelay(xmppHandler, component.Sender(), consumerMgr)
		go func() {
			if err := relay.Start(ctx); err != nil {
				slog.Error("xmpp outbound relay stopped", "error", err)
			}
		}()
	}

	// Router
	authRateLimiter := mw.NewRateLimiter(redisClient, 10, 60)
	router := api.NewRouter(pool, natsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		AuthRateLimiter:    authRateLimiter.Middleware,
	}, api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,

		CreateAccount:       accountHandler.Create,
		ListAccounts:        accountHandler.List,
		GetAccount:          accountHandler.Get,
		UpdateAccount:       accountHandler.Update,
		DeleteAccount:       accountHandler.Delete,
		OwnershipMiddleware: accountHandler.OwnershipMiddleware,

		ListThreads:    convHandler.ListThreads,
		EvaluateThread: convHandler.Evaluate,
		StartOutreach:  convHandler.StartOutreach,
		ReopenThread:   convHandler.Reopen,
		ListMessages:   convHandler.ListMessages,
		ThreadState:    convHandler.State,

		ListPendingDispatches: dispatchHandler.ListPending,
		ApproveDispatch:       dispatchHandler.Approve,
		RejectDispatch:        dispatchHandler.Reject,

		ListMemories:   memoryHandler.List,
		CreateMemory:   memoryHandler.Create,
		SearchMemories: memoryHandler.Search,
		DeleteMemory:   memoryHandler.Delete,

		ListSkills:          skillHandler.List,
		ReloadSkills:        skillHandler.Reload,
		ListCustomizations:  skillHandler.ListCustomizations,
		UpsertCustomization: skillHandler.UpsertCustomization,
		DeleteCustomization: skillHandler.DeleteCustomization,

		GetQuota:      governanceHandler.GetQuota,
		ListAuditLogs: governanceHandler.ListAuditLogs,

		AuthMiddleware: auth.Middleware(authSvc),
	})

	// Start server (blocks until shutdown signal)
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
