package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoengine/evoengine/pkg/models"
)

func TestOrchestrateHandlerEnqueuesVariatorForPendingJob(t *testing.T) {
	srv, s, _ := newTestServer(t)
	ctx := context.Background()
	job := &models.Job{JobID: "http-orch-1", EvolutionConfig: models.EvolutionConfig{Generations: 1}}
	require.NoError(t, s.CreateJob(ctx, job))

	body, err := json.Marshal(OrchestrateRequest{JobID: "http-orch-1"})
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/orchestrate", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httpReq)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp OrchestrateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(models.DecisionCreateTask), resp.Action)
}

func TestOrchestrateHandlerReturnsNotFoundForUnknownJob(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body, err := json.Marshal(OrchestrateRequest{JobID: "no-such-job"})
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/orchestrate", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httpReq)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
