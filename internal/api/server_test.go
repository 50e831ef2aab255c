package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/north-cloud/prospect-research/internal/auth"
	"github.com/north-cloud/prospect-research/internal/domain"
	"github.com/north-cloud/prospect-research/internal/engine"
	"github.com/north-cloud/prospect-research/internal/logger"
	"github.com/north-cloud/prospect-research/internal/provider"
	"github.com/north-cloud/prospect-research/internal/ratelimit"
	"github.com/north-cloud/prospect-research/internal/store"
)

const (
	testProviderID = "fake"
	testCredential = "FAKE_API_KEY"
	testCSV        = "Company,Website\nAcme Corp,acme.com\nBeta LLC,beta.io\n"
)

type scriptedAdapter struct {
	text string
}

func (a *scriptedAdapter) Generate(context.Context, provider.Definition, provider.Request) (*provider.Result, error) {
	return &provider.Result{
		Text:  a.text,
		Usage: domain.TokenUsage{Input: 100, Output: 200},
	}, nil
}

type apiRig struct {
	router *gin.Engine
	store  *store.Store
	engine *engine.Engine
}

func newAPIRig(t *testing.T) *apiRig {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(":memory:", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg := provider.NewRegistry()
	reg.Register(provider.Definition{
		ID:             testProviderID,
		DisplayName:    "Fake",
		Model:          "fake-1",
		Format:         testProviderID,
		Costs:          provider.CostRates{InputPerMTok: 1, OutputPerMTok: 2},
		CredentialName: testCredential,
		Workers:        2,
	}, &scriptedAdapter{text: "Acme builds industrial robots for mid-market factories in Ohio."})

	gov := ratelimit.NewGovernorWith(time.Microsecond, 50*time.Millisecond, time.Millisecond)
	eng := engine.New(st, reg, gov, nil, logger.NewNop(), engine.Config{
		MaxAttempts:    3,
		EmptyRetryBase: time.Millisecond,
		EmptyRetryCap:  5 * time.Millisecond,
	})
	issuer := auth.NewIssuer("test-secret", time.Hour)
	srv := NewServer(st, eng, reg, issuer, nil, logger.NewNop())

	return &apiRig{router: srv.Router(false), store: st, engine: eng}
}

func (rig *apiRig) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	rig.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (rig *apiRig) signupUser(t *testing.T, email string) string {
	t.Helper()
	rec := rig.do(t, http.MethodPost, "/api/signup", "", gin.H{
		"email":    email,
		"password": "hunter22",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := decode(t, rec)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

// submitBatch sets the provider key, posts a research batch, and waits for
// the resulting job to finish.
func (rig *apiRig) submitBatch(t *testing.T, token string) string {
	t.Helper()
	rec := rig.do(t, http.MethodPost, "/api/setkey", token, gin.H{
		"envName": testCredential,
		"key":     "sk-test",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = rig.do(t, http.MethodPost, "/api/research", token, gin.H{
		"csv":      testCSV,
		"provider": testProviderID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	jobID, _ := resp["jobId"].(string)
	require.NotEmpty(t, jobID)
	assert.Equal(t, float64(2), resp["total"])

	require.Eventually(t, func() bool {
		if rig.engine.Running(jobID) {
			return false
		}
		job, err := rig.store.GetJob(context.Background(), jobID)
		return err == nil && job.Status == domain.JobComplete
	}, 5*time.Second, 5*time.Millisecond)
	return jobID
}

func TestSignupLoginFlow(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.do(t, http.MethodPost, "/api/signup", "", gin.H{
		"email":    "Pat@Example.com",
		"password": "hunter22",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	assert.NotEmpty(t, resp["token"])
	user := resp["user"].(map[string]any)
	assert.Equal(t, "pat@example.com", user["email"])
	assert.Equal(t, "pat", user["name"])

	rec = rig.do(t, http.MethodPost, "/api/login", "", gin.H{
		"email":    "pat@example.com",
		"password": "hunter22",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	token := decode(t, rec)["token"].(string)

	rec = rig.do(t, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pat@example.com", decode(t, rec)["email"])
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	rig := newAPIRig(t)
	rig.signupUser(t, "pat@example.com")

	rec := rig.do(t, http.MethodPost, "/api/login", "", gin.H{
		"email":    "pat@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid email or password", decode(t, rec)["error"])
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	rig := newAPIRig(t)
	rig.signupUser(t, "pat@example.com")

	rec := rig.do(t, http.MethodPost, "/api/signup", "", gin.H{
		"email":    "pat@example.com",
		"password": "hunter22",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthedRoutesRequireToken(t *testing.T) {
	rig := newAPIRig(t)
	rec := rig.do(t, http.MethodGet, "/api/jobs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSetKeyReflectsInProviderStatus(t *testing.T) {
	rig := newAPIRig(t)
	token := rig.signupUser(t, "pat@example.com")

	rec := rig.do(t, http.MethodGet, "/api/providers", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var statuses map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	require.Contains(t, statuses, testProviderID)
	assert.Equal(t, false, statuses[testProviderID]["hasKey"])

	rec = rig.do(t, http.MethodPost, "/api/setkey", token, gin.H{
		"envName": testCredential,
		"key":     "sk-test",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	assert.Equal(t, true, statuses[testProviderID]["hasKey"])
}

func TestSetKeyRejectsUnknownCredential(t *testing.T) {
	rig := newAPIRig(t)
	token := rig.signupUser(t, "pat@example.com")

	rec := rig.do(t, http.MethodPost, "/api/setkey", token, gin.H{
		"envName": "NOT_A_KEY",
		"key":     "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreviewBuildsPrompts(t *testing.T) {
	rig := newAPIRig(t)
	token := rig.signupUser(t, "pat@example.com")

	rec := rig.do(t, http.MethodPost, "/api/preview", token, gin.H{"csv": testCSV})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode(t, rec)

	assert.Equal(t, float64(2), resp["total"])
	colMap := resp["colMap"].(map[string]any)
	assert.Equal(t, "Company", colMap["company"])
	previews := resp["previews"].([]any)
	require.Len(t, previews, 2)
	first := previews[0].(map[string]any)
	assert.Equal(t, "Acme Corp", first["company"])
	assert.Contains(t, first["prompt"], "acme.com")
}

func TestResearchRequiresAPIKey(t *testing.T) {
	rig := newAPIRig(t)
	token := rig.signupUser(t, "pat@example.com")

	rec := rig.do(t, http.MethodPost, "/api/research", token, gin.H{
		"csv":      testCSV,
		"provider": testProviderID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "No API key")
}

func TestResearchRejectsUnknownProvider(t *testing.T) {
	rig := newAPIRig(t)
	token := rig.signupUser(t, "pat@example.com")

	rec := rig.do(t, http.MethodPost, "/api/research", token, gin.H{
		"csv":      testCSV,
		"provider": "nope",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unknown provider", decode(t, rec)["error"])
}

func TestResearchRequiresCompanyColumn(t *testing.T) {
	rig := newAPIRig(t)
	token := rig.signupUser(t, "pat@example.com")
	rec := rig.do(t, http.MethodPost, "/api/setkey", token, gin.H{
		"envName": testCredential,
		"key":     "sk-test",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = rig.do(t, http.MethodPost, "/api/research", token, gin.H{
		"csv":      "Color,Size\nred,large\n",
		"provider": testProviderID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No Company column", decode(t, rec)["error"])
}

func TestResearchRunsJobToCompletion(t *testing.T) {
	rig := newAPIRig(t)
	token := rig.signupUser(t, "pat@example.com")
	jobID := rig.submitBatch(t, token)

	rec := rig.do(t, http.MethodGet, "/api/jobs", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, jobID, jobs[0]["id"])
	assert.Equal(t, "complete", jobs[0]["status"])
	assert.Equal(t, float64(2), jobs[0]["succeeded"])
	assert.Equal(t, "2 prospects via Fake", jobs[0]["name"])
	assert.Equal(t, "Fake", jobs[0]["providerName"])
}

func TestExportStreamsCSVInInputOrder(t *testing.T) {
	rig := newAPIRig(t)
	token := rig.signupUser(t, "pat@example.com")
	jobID := rig.submitBatch(t, token)

	rec := rig.do(t, http.MethodGet, "/api/export/"+jobID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "prospect_research_")

	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "\uFEFF"))
	lines := strings.Split(strings.TrimRight(body, "\r\n"), "\r\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Company,Status,Research Brief")
	assert.True(t, strings.HasPrefix(lines[1], "Acme Corp,success,"))
	assert.True(t, strings.HasPrefix(lines[2], "Beta LLC,success,"))
}

func TestStreamReplaysFinishedJob(t *testing.T) {
	rig := newAPIRig(t)
	token := rig.signupUser(t, "pat@example.com")
	jobID := rig.submitBatch(t, token)

	rec := rig.do(t, http.MethodGet, "/api/stream/"+jobID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var types []string
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		if typ, ok := ev["type"].(string); ok {
			types = append(types, typ)
		}
	}
	assert.Contains(t, types, "result")
	assert.Equal(t, "done", types[len(types)-1])
}

func TestJobRoutesEnforceOwnership(t *testing.T) {
	rig := newAPIRig(t)
	owner := rig.signupUser(t, "owner@example.com")
	other := rig.signupUser(t, "other@example.com")
	jobID := rig.submitBatch(t, owner)

	for _, req := range []struct{ method, path string }{
		{http.MethodGet, "/api/export/" + jobID},
		{http.MethodGet, "/api/stream/" + jobID},
		{http.MethodPost, "/api/cancel/" + jobID},
		{http.MethodPost, "/api/resume/" + jobID},
		{http.MethodDelete, "/api/jobs/" + jobID},
	} {
		rec := rig.do(t, req.method, req.path, other, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, req.path)
	}
}

func TestResumeRejectsJobWithoutPendingRows(t *testing.T) {
	rig := newAPIRig(t)
	token := rig.signupUser(t, "pat@example.com")
	jobID := rig.submitBatch(t, token)

	rec := rig.do(t, http.MethodPost, "/api/resume/"+jobID, token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No pending rows", decode(t, rec)["error"])
}

func TestDeleteJobRemovesIt(t *testing.T) {
	rig := newAPIRig(t)
	token := rig.signupUser(t, "pat@example.com")
	jobID := rig.submitBatch(t, token)

	rec := rig.do(t, http.MethodDelete, "/api/jobs/"+jobID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = rig.do(t, http.MethodGet, "/api/export/"+jobID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTemplatesArePublic(t *testing.T) {
	rig := newAPIRig(t)
	rec := rig.do(t, http.MethodGet, "/api/templates", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	require.Contains(t, resp, "b2b-outreach")
}

func TestHealthEndpoint(t *testing.T) {
	rig := newAPIRig(t)
	rec := rig.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}
