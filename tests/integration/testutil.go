//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rejoinhq/rejoin/internal/accounts"
	"github.com/rejoinhq/rejoin/internal/api"
	"github.com/rejoinhq/rejoin/internal/auth"
	"github.com/rejoinhq/rejoin/internal/config"
	"github.com/rejoinhq/rejoin/internal/conversation"
	"github.com/rejoinhq/rejoin/internal/dispatch"
	"github.com/rejoinhq/rejoin/internal/governance"
	"github.com/rejoinhq/rejoin/internal/governance/audit"
	"github.com/rejoinhq/rejoin/internal/governance/quota"
	"github.com/rejoinhq/rejoin/internal/llm"
	"github.com/rejoinhq/rejoin/internal/memory"
	"github.com/rejoinhq/rejoin/internal/operators"
	"github.com/rejoinhq/rejoin/internal/skills"
	"github.com/rejoinhq/rejoin/internal/timewindow"
)

// scriptedModel is an llm.Client whose responses are queued by tests.
// When the queue is empty it falls back to a harmless reply decision so
// unrelated tests never block on model output.
type scriptedModel struct {
	mu        sync.Mutex
	responses []string
}

const defaultDecision = `{"action":"reply","reply":"Thanks for reaching out! See you at the gym soon.","outcomeScore":55,"resolved":false}`

func (m *scriptedModel) Complete(ctx context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) == 0 {
		return defaultDecision, nil
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	return next, nil
}

func (m *scriptedModel) Provider() string { return "scripted" }

// Script queues responses returned in order by subsequent Complete calls.
func (m *scriptedModel) Script(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

// stubEmbedder produces deterministic embeddings so similarity search is
// exercised without an embeddings API.
type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 1536)
	for i, r := range text {
		vec[(i*31+int(r))%1536] += 1
	}
	return vec, nil
}

// capturingDispatcher records every dispatched reply for assertions.
type capturingDispatcher struct {
	mu   sync.Mutex
	sent []conversation.Dispatch
}

func (d *capturingDispatcher) Send(ctx context.Context, dd conversation.Dispatch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, dd)
	return nil
}

func (d *capturingDispatcher) Sent() []conversation.Dispatch {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]conversation.Dispatch, len(d.sent))
	copy(out, d.sent)
	return out
}

type TestEnv struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Server      *httptest.Server
	Model       *scriptedModel
	Dispatcher  *capturingDispatcher
	AccountSvc  *accounts.Service
	Composer    *skills.Composer
	MemorySvc   *memory.Service
	QuotaSvc    *quota.Service
	ConvStore   conversation.Store
	Engine      *conversation.Engine
}

var testEnv *TestEnv

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	// Start PostgreSQL container
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "pgvector/pgvector:0.8.1-pg16",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "rejoin_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	// Start Redis container
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	// Connect to PostgreSQL
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/rejoin_test?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	_, err = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS "vector";`)
	if err != nil {
		t.Fatalf("enabling extensions: %v", err)
	}

	// Run migrations
	m, err := migrate.New(
		fmt.Sprintf("file://%s", getMigrationsPath()),
		dsn,
	)
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("running migrations: %v", err)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	t.Cleanup(func() { redisClient.Close() })

	// Setup services
	encryptionKey := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	channelDomain := "rejoin.test"

	jwtManager := auth.NewJWTManager("test-access-secret-32-chars-long!!", "test-refresh-secret-32-chars-long!!", 15*time.Minute, 7*24*time.Hour)
	authSvc := auth.NewService(jwtManager, redisClient)
	operatorRepo := operators.NewRepository(pool)
	operatorSvc := operators.NewService(operatorRepo)
	authHandler := auth.NewHandler(authSvc, operatorSvc)

	accountRepo := accounts.NewRepository(pool)
	accountSvc := accounts.NewService(accountRepo, encryptionKey, channelDomain)
	accountHandler := accounts.NewHandler(accountSvc)

	model := &scriptedModel{}

	memoryRepo := memory.NewPostgresRepository(pool)
	memorySvc := memory.NewService(memoryRepo, memory.NewExtractor(model), memory.NewConsolidator(model), stubEmbedder{})
	memoryHandler := memory.NewHandler(memorySvc)

	skillIndex := skills.NewIndex(os.DirFS(getSkillsPath()))
	if err := skillIndex.Load(); err != nil {
		t.Fatalf("loading skill catalog: %v", err)
	}
	customStore := skills.NewCustomizationStore(pool)
	composer := skills.NewComposer(skillIndex, customStore, memorySvc)
	skillHandler := skills.NewHandler(skillIndex, customStore)

	// A start==end window is never quiet, so dispatch assertions do not
	// depend on the wall-clock hour the suite runs at. Quiet-hour tests
	// use per-account overrides.
	gate := timewindow.NewGate(8, 8, "UTC")
	convStore := conversation.NewStore(pool)
	dispatcher := &capturingDispatcher{}
	deferrals := dispatch.NewDeferralQueue(redisClient)
	approvals := dispatch.NewApprovalStore(pool)
	engine := conversation.NewEngine(convStore, composer, model, gate, dispatcher, deferrals, approvals)
	convHandler := conversation.NewHandler(engine, convStore, accountSvc, nil)

	dispatchSvc := dispatch.NewService(approvals, deferrals, dispatcher, convStore, gate)
	dispatchHandler := dispatch.NewHandler(dispatchSvc, accountSvc)

	quotaRepo := quota.NewRepository(pool)
	limiter := quota.NewRateLimiter(redisClient)
	quotaSvc := quota.NewService(quotaRepo, limiter, config.GovernanceConfig{
		MaxLLMCallsPerMinute: 10,
		MaxOutboundPerDay:    50,
	})
	auditRepo := audit.NewRepository(pool)
	governanceHandler := governance.NewHandler(quotaSvc, auditRepo)

	router := api.NewRouter(pool, nil, api.RouterConfig{}, api.HandlerSet{
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

	server := httptest.NewServer(router)
	t.Cleanup(func() { server.Close() })

	testEnv = &TestEnv{
		Pool:        pool,
		RedisClient: redisClient,
		Server:      server,
		Model:       model,
		Dispatcher:  dispatcher,
		AccountSvc:  accountSvc,
		Composer:    composer,
		MemorySvc:   memorySvc,
		QuotaSvc:    quotaSvc,
		ConvStore:   convStore,
		Engine:      engine,
	}

	return testEnv
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

func getSkillsPath() string {
	paths := []string{
		"../../skills",
		"../../../skills",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("skills directory not found")
	return ""
}

// Helper functions

func RegisterOperator(t *testing.T, env *TestEnv, email, password string) map[string]any {
	t.Helper()
	body := map[string]string{"email": email, "password": password}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/register", body, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed: status %d", resp.StatusCode)
	}
	return ParseResponse(t, resp)
}

func LoginOperator(t *testing.T, env *TestEnv, email, password string) string {
	t.Helper()
	body := map[string]string{"email": email, "password": password}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/login", body, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: status %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	return data["access_token"].(string)
}

// CreateAccount provisions a gym account over the API and returns its
// response payload.
func CreateAccount(t *testing.T, env *TestEnv, token string, body map[string]any) map[string]any {
	t.Helper()
	if body == nil {
		body = map[string]any{}
	}
	if _, ok := body["gym_name"]; !ok {
		body["gym_name"] = "Iron Temple"
	}
	if _, ok := body["timezone"]; !ok {
		body["timezone"] = "UTC"
	}
	resp := DoRequest(t, env, "POST", "/api/v1/accounts", body, token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create account failed: status %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	return result["data"].(map[string]any)
}

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}

var _uniqueCounter int64

func uniqueID() int64 {
	_uniqueCounter++
	return _uniqueCounter
}
