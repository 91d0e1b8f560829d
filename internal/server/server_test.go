package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agenthands/cardgraph/internal/config"
	"github.com/agenthands/cardgraph/internal/core"
	"github.com/agenthands/cardgraph/internal/core/dedupe"
	"github.com/agenthands/cardgraph/internal/core/model"
	"github.com/agenthands/cardgraph/internal/core/summary"
	"github.com/agenthands/cardgraph/internal/llm"
	"github.com/agenthands/cardgraph/internal/notify"
	"github.com/agenthands/cardgraph/internal/observability"
	"github.com/agenthands/cardgraph/internal/store"
)

type mockMirror struct {
	mu      sync.Mutex
	merged  []string
	expired []string
}

func (m *mockMirror) FactExpired(_ context.Context, f model.Fact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired = append(m.expired, f.ID)
	return nil
}

func (m *mockMirror) EntitiesMerged(_ context.Context, absorbedID string, _ model.Entity, _ []model.Fact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merged = append(m.merged, absorbedID)
	return nil
}

type testServer struct {
	srv    *Server
	router *gin.Engine
	mirror *mockMirror
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t)
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "cardgraph.db"), store.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tracker := notify.NewTracker()
	pipeline := core.NewPipeline(st, st, core.WithNotifier(tracker), core.WithLogger(logger))
	mirror := &mockMirror{}

	opts = append([]Option{
		WithLogger(logger),
		WithGraphMirror(mirror),
		WithMetrics(observability.NewCollector("cardgraph")),
	}, opts...)
	srv := NewServer(st, pipeline, tracker, config.Default(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return &testServer{srv: srv, router: srv.SetupRouter(), mirror: mirror}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) putCard(t *testing.T, id, title string) {
	t.Helper()
	w := ts.do(t, http.MethodPut, "/cards/"+id, gin.H{"board_id": "board-1", "title": title})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

const scenarioTitle = "Fix auth-service bug, depends on v2.1.0, assigned to @john"

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestUpsertCard_InvalidRequest(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPut, "/cards/card-1", gin.H{"title": "no board"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExtractCard_Sync(t *testing.T) {
	ts := newTestServer(t)
	ts.putCard(t, "card-1", scenarioTitle)

	w := ts.do(t, http.MethodPost, "/cards/card-1/extract?sync=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[model.ExtractionResult](t, w)
	assert.Equal(t, "card-1", result.CardID)
	assert.Len(t, result.Entities, 4)
	assert.Len(t, result.Facts, 3)

	w = ts.do(t, http.MethodGet, "/cards/card-1/extraction", nil)
	require.Equal(t, http.StatusOK, w.Code)
	job := decode[notify.Job](t, w)
	assert.Equal(t, notify.JobDone, job.State)
	require.NotNil(t, job.Counts)
	assert.Equal(t, 3, job.Counts.Facts)

	w = ts.do(t, http.MethodGet, "/cards/card-1/knowledge", nil)
	require.Equal(t, http.StatusOK, w.Code)
	knowledge := decode[struct {
		Facts    []model.Fact    `json:"facts"`
		Mentions []model.Mention `json:"mentions"`
	}](t, w)
	assert.Len(t, knowledge.Facts, 3)
	assert.Len(t, knowledge.Mentions, 2)
}

func TestExtractCard_Async(t *testing.T) {
	ts := newTestServer(t)
	ts.putCard(t, "card-1", scenarioTitle)

	w := ts.do(t, http.MethodPost, "/cards/card-1/extract", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "card-1", decode[notify.Job](t, w).CardID)

	require.Eventually(t, func() bool {
		job, ok := ts.srv.Tracker.Get("card-1")
		return ok && job.State == notify.JobDone
	}, 5*time.Second, 10*time.Millisecond)
}

func TestExtractCard_Errors(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/cards/missing/extract", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/cards/missing/extraction", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	ts.putCard(t, "card-1", scenarioTitle)
	require.NoError(t, ts.srv.Tracker.Enqueue("card-1"))
	w = ts.do(t, http.MethodPost, "/cards/card-1/extract", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestExtractBoard(t *testing.T) {
	ts := newTestServer(t)
	ts.putCard(t, "card-1", scenarioTitle)
	ts.putCard(t, "card-2", "Owned by @maria")

	w := ts.do(t, http.MethodPost, "/boards/board-1/extract", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[struct {
		Items []core.BulkItem `json:"items"`
	}](t, w)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "card-1", resp.Items[0].CardID)
	assert.Equal(t, "card-2", resp.Items[1].CardID)
	assert.Empty(t, resp.Items[0].Error)

	w = ts.do(t, http.MethodGet, "/boards/board-1/entities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entities := decode[[]model.Entity](t, w)
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "John")
	assert.Contains(t, names, "Maria")
}

func TestBoardFacts_ExpireAndInclude(t *testing.T) {
	ts := newTestServer(t)
	ts.putCard(t, "card-1", scenarioTitle)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/cards/card-1/extract?sync=true", nil).Code)

	w := ts.do(t, http.MethodGet, "/boards/board-1/facts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	facts := decode[[]model.Fact](t, w)
	require.Len(t, facts, 3)

	w = ts.do(t, http.MethodDelete, "/facts/"+facts[0].ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, decode[model.Fact](t, w).ValidUntil)
	assert.Equal(t, []string{facts[0].ID}, ts.mirror.expired)

	w = ts.do(t, http.MethodGet, "/boards/board-1/facts", nil)
	assert.Len(t, decode[[]model.Fact](t, w), 2)
	w = ts.do(t, http.MethodGet, "/boards/board-1/facts?include_expired=true", nil)
	assert.Len(t, decode[[]model.Fact](t, w), 3)

	w = ts.do(t, http.MethodGet, "/boards/board-1/facts?include_expired=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodDelete, "/facts/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func seedEntities(t *testing.T, st *store.Store, board string, names ...string) []model.Entity {
	t.Helper()
	ctx := context.Background()
	domain, err := st.EnsureDomain(ctx, board, model.DefaultDomainName)
	require.NoError(t, err)
	out := make([]model.Entity, 0, len(names))
	for _, name := range names {
		e, _, err := st.FindOrCreateEntity(ctx, model.Entity{
			DomainID: domain.ID, Name: name, EntityType: model.EntitySystem, Confidence: 0.8,
		})
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func TestMergeEntities(t *testing.T) {
	ts := newTestServer(t)
	entities := seedEntities(t, ts.srv.Store, "board-1", "Payment Service", "PaySvc")

	w := ts.do(t, http.MethodPost, "/boards/board-1/entities/merge",
		gin.H{"target_id": entities[0].ID, "absorbed_id": entities[1].ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	merged := decode[model.Entity](t, w)
	assert.Contains(t, merged.Aliases, "PaySvc")
	assert.Equal(t, []string{entities[1].ID}, ts.mirror.merged)

	_, err := ts.srv.Store.GetEntity(context.Background(), entities[1].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMergeEntities_Errors(t *testing.T) {
	ts := newTestServer(t)
	entities := seedEntities(t, ts.srv.Store, "board-1", "Payment Service", "PaySvc")

	w := ts.do(t, http.MethodPost, "/boards/board-1/entities/merge", gin.H{"target_id": entities[0].ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/boards/board-2/entities/merge",
		gin.H{"target_id": entities[0].ID, "absorbed_id": entities[1].ID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/boards/board-1/entities/merge",
		gin.H{"target_id": entities[0].ID, "absorbed_id": entities[0].ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, ts.mirror.merged)
}

func TestAddAlias(t *testing.T) {
	ts := newTestServer(t)
	entities := seedEntities(t, ts.srv.Store, "board-1", "Payment Service")

	w := ts.do(t, http.MethodPost, "/entities/"+entities[0].ID+"/aliases", gin.H{"alias": "PayService"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"PayService"}, decode[model.Entity](t, w).Aliases)

	w = ts.do(t, http.MethodPost, "/entities/"+entities[0].ID+"/aliases", gin.H{"alias": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/entities/missing/aliases", gin.H{"alias": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReviewQueue(t *testing.T) {
	ts := newTestServer(t)
	seedEntities(t, ts.srv.Store, "board-1", "Payment Service")

	w := ts.do(t, http.MethodGet, "/boards/board-1/review", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[struct {
		Entities []model.Entity `json:"entities"`
	}](t, w).Entities)

	w = ts.do(t, http.MethodGet, "/boards/board-1/review?threshold=0.9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Entities []model.Entity `json:"entities"`
	}](t, w).Entities, 1)

	w = ts.do(t, http.MethodGet, "/boards/board-1/review?threshold=2", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBoardClusters(t *testing.T) {
	ts := newTestServer(t)
	ts.putCard(t, "card-1", scenarioTitle)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/cards/card-1/extract?sync=true", nil).Code)

	w := ts.do(t, http.MethodGet, "/boards/board-1/clusters", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	clusters := decode[[]model.Cluster](t, w)
	require.NotEmpty(t, clusters)
	for _, c := range clusters {
		assert.NotEmpty(t, c.Label)
		assert.GreaterOrEqual(t, len(c.Entities), 2)
	}
}

func TestLLMRoutes_Unavailable(t *testing.T) {
	ts := newTestServer(t)
	entities := seedEntities(t, ts.srv.Store, "board-1", "Payment Service")

	w := ts.do(t, http.MethodPost, "/boards/board-1/reconcile", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = ts.do(t, http.MethodPost, "/entities/"+entities[0].ID+"/summarize", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLLMRoutes(t *testing.T) {
	client := &llm.MockClient{Response: `{"summary":"Handles payments.","duplicates":[],"contradicted_fact_ids":[]}`}
	prompts := config.DefaultPrompts()
	ts := newTestServer(t,
		WithReconciler(dedupe.NewDeduplicator(client, prompts, 0.9)),
		WithSummarizer(summary.NewSummarizer(client, prompts)))
	entities := seedEntities(t, ts.srv.Store, "board-1", "Payment Service", "PaySvc")

	w := ts.do(t, http.MethodPost, "/boards/board-1/reconcile", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[dedupe.Report](t, w)
	assert.Equal(t, "board-1", report.BoardID)
	assert.Empty(t, report.Merged)

	w = ts.do(t, http.MethodPost, "/entities/"+entities[0].ID+"/summarize", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Handles payments.", decode[model.Entity](t, w).Description)

	w = ts.do(t, http.MethodPost, "/entities/missing/summarize", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/health", nil)

	w := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `cardgraph_http_requests_total{method="GET",route="/health",status="200"} 1`)
}
