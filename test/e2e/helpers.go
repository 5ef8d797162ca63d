//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/noesis-ai/noesis/internal/api/handlers"
	"github.com/noesis-ai/noesis/internal/index"
	"github.com/noesis-ai/noesis/internal/jobs"
	"github.com/noesis-ai/noesis/internal/openai"
	"github.com/noesis-ai/noesis/internal/repository"
	"github.com/noesis-ai/noesis/internal/server"
	"github.com/noesis-ai/noesis/internal/service"
	"github.com/noesis-ai/noesis/internal/testutil"
)

const embeddingDims = 1536

// stubEmbedder produces deterministic vectors so retrieval works
// without calling OpenAI. Texts sharing words land close together.
type stubEmbedder struct{}

func (stubEmbedder) GenerateEmbedding(ctx context.Context, text string) (*openai.Embedding, error) {
	vec := make([]float32, embeddingDims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(word))
		idx := binary.BigEndian.Uint32(sum[:4]) % embeddingDims
		vec[idx] += 1
	}
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		inv := 1 / float32(math.Sqrt(float64(norm)))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return &openai.Embedding{Vector: vec, Model: "stub-embedder", Dimensions: embeddingDims}, nil
}

func (stubEmbedder) Model() string   { return "stub-embedder" }
func (stubEmbedder) Dimensions() int { return embeddingDims }

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	Logger       *jobs.RetrievalLogger
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with a database
// container and an in-process server.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, closer, logger := startServer(t, pool, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: closer,
		Logger:       logger,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

func startServer(t *testing.T, pool *pgxpool.Pool, port int) (string, func(), *jobs.RetrievalLogger) {
	entryRepo := repository.NewEntryRepository(pool)
	versionRepo := repository.NewEntryVersionRepository(pool)
	retrievalLogRepo := repository.NewRetrievalLogRepository(pool)
	analyticsRepo := repository.NewAnalyticsRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	embedder := stubEmbedder{}
	backend := index.NewPgvectorIndex(pool)
	coordinator := service.NewIndexingCoordinator(embedder, backend, entryRepo)

	entrySvc := service.NewEntryService(txRunner, entryRepo, versionRepo, coordinator)
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, retrievalLogRepo)

	logger := jobs.NewRetrievalLogger(retrievalLogRepo, 64)
	loggerCtx, stopLogger := context.WithCancel(context.Background())
	go logger.Start(loggerCtx)

	retrievalSvc := service.NewRetrievalService(embedder, backend, entryRepo, logger)

	router := server.NewRouter(server.RouterConfig{
		EntryHandler:     handlers.NewEntryHandler(entrySvc),
		RetrievalHandler: handlers.NewRetrievalHandler(retrievalSvc),
		AnalyticsHandler: handlers.NewAnalyticsHandler(analyticsSvc),
		AdminHandler:     handlers.NewAdminHandler(coordinator),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Errorf("server failed: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitForServer(t, serverURL)

	closer := func() {
		stopLogger()
		logger.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}

	return serverURL, closer, logger
}

func waitForServer(t *testing.T, serverURL string) {
	client := &http.Client{Timeout: time.Second}
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(serverURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("server did not become ready")
}

func getFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request as the given actor
func (e *E2ETestEnv) Get(path, actorID string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, actorID)
}

// Post performs a POST request as the given actor
func (e *E2ETestEnv) Post(path string, body interface{}, actorID string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, actorID)
}

// Patch performs a PATCH request as the given actor
func (e *E2ETestEnv) Patch(path string, body interface{}, actorID string) (*APIResponse, error) {
	return e.doRequest("PATCH", path, body, actorID)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, actorID string) (*APIResponse, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if actorID != "" {
		req.Header.Set("X-Actor-ID", actorID)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// WaitForEmbedding polls until the entry reaches the wanted embedding status.
func (e *E2ETestEnv) WaitForEmbedding(entryID, want string) {
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := e.Get("/entries/"+entryID, "e2e-admin")
		if err == nil {
			var entry struct {
				EmbeddingStatus string `json:"embedding_status"`
			}
			if json.Unmarshal(resp.Data, &entry) == nil && entry.EmbeddingStatus == want {
				return
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	e.T.Fatalf("entry %s never reached embedding status %q", entryID, want)
}
