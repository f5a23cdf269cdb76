package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/agenthands/storyline/internal/app"
	"github.com/agenthands/storyline/internal/config"
	"github.com/agenthands/storyline/internal/core"
	"github.com/agenthands/storyline/internal/core/cluster"
	"github.com/agenthands/storyline/internal/core/model"
	"github.com/agenthands/storyline/internal/core/references"
	"github.com/agenthands/storyline/internal/store"
	"github.com/agenthands/storyline/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s, err := store.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewServer(app.NewWith(config.Default(), s, nil)).SetupRouter()
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// seed imports the auth story, saves Jane and returns the built cluster id.
func seed(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := do(t, r, http.MethodPost, "/activities", ImportRequest{Activities: testutil.AuthStory()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/personas", testutil.Jane())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/clusters/build", BuildRequest{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[cluster.Result](t, w)
	require.Len(t, res.Clusters, 1)
	return res.Clusters[0].ID
}

func TestFrameworksAndPatterns(t *testing.T) {
	r := setup(t)

	w := do(t, r, http.MethodGet, "/frameworks", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	fw := decode[map[string][]map[string]any](t, w)
	assert.Len(t, fw["frameworks"], 5)

	w = do(t, r, http.MethodGet, "/patterns?tool_type=jira", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	ps := decode[map[string][]patternView](t, w)
	require.NotEmpty(t, ps["patterns"])
	for _, p := range ps["patterns"] {
		assert.Equal(t, model.ToolJira, p.ToolType)
	}
}

func TestExtractReferences(t *testing.T) {
	r := setup(t)
	text := "Merged the fix for AUTH-123 today"

	w := do(t, r, http.MethodPost, "/references/extract", ExtractRequest{Texts: []*string{&text, nil}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[references.Result](t, w)
	assert.Contains(t, res.References, "AUTH-123")

	w = do(t, r, http.MethodPost, "/references/extract", ExtractRequest{Texts: []*string{&text}, MinConfidence: "sure"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateNarrative(t *testing.T) {
	r := setup(t)
	id := seed(t, r)

	w := do(t, r, http.MethodPost, "/narratives/generate", GenerateRequest{ClusterID: id, PersonaID: "p-jane", Framework: "car"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[core.GenerationResult](t, w)
	assert.Equal(t, core.StateDone, res.State)
	require.NotNil(t, res.Narrative)
	assert.Equal(t, "car", res.Narrative.Framework)
	assert.Len(t, res.Narrative.Components, 3)
	assert.False(t, res.Narrative.Enriched)
}

func TestGenerateNarrative_Errors(t *testing.T) {
	r := setup(t)
	id := seed(t, r)

	tests := []struct {
		name   string
		req    any
		status int
		code   string
	}{
		{"malformed", "not an object", http.StatusBadRequest, ""},
		{"missing ids", GenerateRequest{ClusterID: id}, http.StatusBadRequest, ""},
		{"unknown cluster", GenerateRequest{ClusterID: "nope", PersonaID: "p-jane"}, http.StatusNotFound, "CLUSTER_NOT_FOUND"},
		{"unknown persona", GenerateRequest{ClusterID: id, PersonaID: "nobody"}, http.StatusNotFound, "PERSONA_NOT_FOUND"},
		{"unknown framework", GenerateRequest{ClusterID: id, PersonaID: "p-jane", Framework: "haiku"}, http.StatusBadRequest, "UNKNOWN_FRAMEWORK"},
		{
			"gates fail",
			GenerateRequest{
				Cluster: &model.Cluster{ID: "inline", ActivityIDs: []string{"pr-1"}, SharedReferences: []string{"AUTH-123"}},
				Persona: func() *model.Persona { p := testutil.Jane(); return &p }(),
			},
			http.StatusUnprocessableEntity, "VALIDATION_GATES_FAILED",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/narratives/generate", tt.req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.code != "" {
				body := decode[map[string]any](t, w)
				assert.Equal(t, tt.code, body["code"])
			}
		})
	}
}

func TestGenerateBatch(t *testing.T) {
	r := setup(t)
	id := seed(t, r)

	w := do(t, r, http.MethodPost, "/narratives/batch", BatchRequest{ClusterIDs: []string{id, "missing"}, PersonaID: "p-jane"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Results   []batchItem `json:"results"`
		Succeeded int         `json:"succeeded"`
		Failed    int         `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Results, 2)
	assert.Equal(t, id, body.Results[0].ClusterID)
	assert.Equal(t, http.StatusOK, body.Results[0].Status)
	assert.Equal(t, http.StatusNotFound, body.Results[1].Status)
	assert.Equal(t, 1, body.Succeeded)
	assert.Equal(t, 1, body.Failed)

	w = do(t, r, http.MethodPost, "/narratives/batch", BatchRequest{PersonaID: "p-jane"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBuildClusters_InMemory(t *testing.T) {
	r := setup(t)

	w := do(t, r, http.MethodPost, "/clusters/build", BuildRequest{Activities: testutil.AuthStory(), MinClusterSize: 4})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[cluster.Result](t, w)
	assert.Empty(t, res.Clusters)
	assert.Len(t, res.Unclustered, 3)

	dup := append(testutil.AuthStory(), testutil.AuthStory()[0])
	w = do(t, r, http.MethodPost, "/clusters/build", BuildRequest{Activities: dup})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
