package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-governance-gateway/internal/audit"
	"github.com/xela07ax/spaceai-governance-gateway/internal/connectors"
	"github.com/xela07ax/spaceai-governance-gateway/internal/engine"
	"github.com/xela07ax/spaceai-governance-gateway/internal/infra"
	"github.com/xela07ax/spaceai-governance-gateway/internal/infra/auth"
	"github.com/xela07ax/spaceai-governance-gateway/internal/limits"
	"github.com/xela07ax/spaceai-governance-gateway/internal/policy"
	"github.com/xela07ax/spaceai-governance-gateway/internal/repository/postgres"
	"github.com/xela07ax/spaceai-governance-gateway/internal/risk"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gateway stopped with error", zap.Error(err))
	}
}

// loadConfig: GATEWAY_CONFIG указывает файл, иначе ищем config.yaml в . и ./configs.
func loadConfig() (*infra.Config, error) {
	if path := os.Getenv("GATEWAY_CONFIG"); path != "" {
		return infra.LoadConfigFile(path)
	}
	return infra.LoadConfig()
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	// Контекст фоновых горутин (слушатели Redis). cancel() остановит их при выходе.
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Инфраструктура: Redis и Postgres опциональны
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(appCtx).Err(); err != nil {
			// не фатально: слушатели будут переподключаться
			logger.Warn("redis unreachable at startup", zap.Error(err))
		}
	} else {
		logger.Warn("redis is not configured, agent state stays local to this instance")
	}

	var (
		auditStorage audit.StorageInterface = audit.NewZapStorage(logger)
		agentStore   engine.AgentStatusStore
	)
	if cfg.Database.URL != "" {
		db, err := postgres.Open(appCtx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(int(cfg.Database.MaxConns))
		db.SetMaxIdleConns(int(cfg.Database.MinConns))
		if err := postgres.Migrate(appCtx, db); err != nil {
			return fmt.Errorf("database migrate: %w", err)
		}
		auditStorage = postgres.NewAuditRepo(db)
		agentStore = postgres.NewAgentRepo(db)
	}

	// 2. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// 3. Политики
	var policyRepo policy.PolicyRepository
	switch cfg.Policy.Source {
	case "postgres":
		if cfg.Database.URL == "" {
			return errors.New("policy source postgres requires database.url")
		}
		repo, err := postgres.NewPolicyRepo(appCtx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("policy repo: %w", err)
		}
		defer repo.Close()
		policyRepo = repo
	default:
		policyRepo = policy.NewFileRepository(cfg.Policy.Dir)
	}
	policies := policy.NewStore(policyRepo, rdb, logger)
	if err := policies.Refresh(appCtx); err != nil {
		return fmt.Errorf("policies: %w", err)
	}
	go engine.ListenPolicyUpdates(appCtx, rdb, policies, logger)

	// 4. Admission control
	limitsEngine, err := limits.NewEngine(engine.LimitsEngineConfig(cfg.Limits), limits.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	limitsEngine.Start()
	defer limitsEngine.Stop()

	// 5. Control Plane: kill switch и sandbox
	ksm := engine.NewKillSwitchManager(rdb, agentStore, cfg.Engine.BlockedAgents, logger)
	if err := ksm.Init(appCtx); err != nil {
		return fmt.Errorf("kill-switch manager: %w", err)
	}
	go ksm.StartListener(appCtx)

	sm := engine.NewSandboxManager(rdb, agentStore, cfg.Engine.SandboxAgents, logger)
	if err := sm.Init(appCtx); err != nil {
		return fmt.Errorf("sandbox manager: %w", err)
	}
	go sm.StartListener(appCtx)

	// 6. Аудит: пачками в Postgres или в лог
	agentFS := audit.NewAgentFS(auditStorage, engine.AuditConfig(cfg.Engine), logger)
	agentFS.OnOverflow(metrics.AuditDropped.Inc)
	agentFS.Start()
	defer agentFS.Stop()

	// 7. Execution Layer (egress + надежность)
	tools, err := engine.CompileTools(cfg.Tools)
	if err != nil {
		return err
	}
	executor := engine.NewReliableExecutor(
		connectors.NewExecutor(nil, logger),
		engine.ReliabilityConfig(cfg.Engine),
		engine.ProviderLimits(cfg.Egress),
		metrics,
		logger,
	)

	gw := engine.NewGateway(engine.GatewayDeps{
		Limits:     limitsEngine,
		Policies:   policies,
		Tools:      tools,
		Registry:   engine.ProviderRegistry(cfg.Egress),
		Executor:   executor,
		KillSwitch: ksm,
		Sandbox:    sm,
		Analyzer:   risk.NewAnalyzer(engine.RiskConfig(cfg.Content), ksm, logger),
		Auditor:    agentFS,
		Metrics:    metrics,
		Content: engine.ContentOptions{
			Enabled:        cfg.Content.Enabled,
			Transform:      engine.TransformConfig(cfg.Content),
			RedactRequest:  cfg.Content.RedactRequest,
			RedactResponse: cfg.Content.RedactResponse,
		},
		UserAgent: cfg.Egress.UserAgent,
		Logger:    logger,
	})

	// 8. HTTP
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		return fmt.Errorf("auth public key: %w", err)
	}
	validator := auth.NewValidator(pubKey, auth.ValidatorOptions{
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	})
	handler := engine.NewServer(gw, validator, engine.ServerOptions{
		ResourceURL:          cfg.Server.ResourceURL,
		AuthorizationServers: cfg.Auth.AuthorizationServers,
		ScopesSupported:      cfg.Auth.ScopesSupported,
		TenantClaim:          cfg.Auth.TenantClaim,
		AdminKeyHash:         cfg.Admin.KeyHash,
	}, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}

	// 9. gRPC health для оркестратора
	grpcSrv, health := engine.NewGRPCServer(logger)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		return fmt.Errorf("listen gRPC: %w", err)
	}

	errCh := make(chan error, 3)
	go func() {
		logger.Info("gRPC health server started", zap.String("addr", lis.Addr().String()))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics server started", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics: %w", err)
		}
	}()
	go func() {
		logger.Info("gateway started",
			zap.String("addr", srv.Addr),
			zap.Int("tools", len(tools)),
			zap.Strings("policy_sets", policies.Names()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	// 10. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-stop:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		logger.Error("server failed", zap.Error(runErr))
	}

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	health.Shutdown()
	grpcSrv.GracefulStop()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}
	cancel()

	// defer: agentFS.Stop дописывает буфер аудита до закрытия БД
	logger.Info("gateway exited properly")
	return runErr
}
