package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/agenthands/storyline/internal/app"
	"github.com/agenthands/storyline/internal/core"
	"github.com/agenthands/storyline/internal/core/cluster"
	"github.com/agenthands/storyline/internal/core/common"
	"github.com/agenthands/storyline/internal/core/model"
	"github.com/agenthands/storyline/internal/core/narrative"
	"github.com/agenthands/storyline/internal/core/patterns"
	"github.com/agenthands/storyline/internal/core/references"
	"github.com/agenthands/storyline/internal/logging"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

type Server struct {
	App    *app.App
	Logger *log.Logger
}

func NewServer(a *app.App) *Server {
	return &Server{
		App:    a,
		Logger: logging.WithPrefix("server"),
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/frameworks", s.ListFrameworks)
	r.GET("/patterns", s.ListPatterns)

	r.POST("/references/extract", s.ExtractReferences)
	r.POST("/activities", s.ImportActivities)
	r.POST("/personas", s.SavePersona)
	r.POST("/clusters/build", s.BuildClusters)
	r.POST("/narratives/generate", s.GenerateNarrative)
	r.POST("/narratives/batch", s.GenerateBatch)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

type ExtractRequest struct {
	Texts         []*string `json:"texts"`
	SourceURL     string    `json:"source_url"`
	PatternIDs    []string  `json:"pattern_ids"`
	ToolTypes     []string  `json:"tool_types"`
	MinConfidence string    `json:"min_confidence"`
	IncludeURL    bool      `json:"include_url"`
	Debug         bool      `json:"debug"`
}

func (s *Server) ExtractReferences(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	conf, err := model.ParseConfidence(req.MinConfidence)
	if err != nil {
		badRequest(c, err)
		return
	}
	opts := references.Options{
		Debug:         req.Debug,
		PatternIDs:    req.PatternIDs,
		MinConfidence: conf,
		IncludeURL:    req.IncludeURL,
	}
	for _, t := range req.ToolTypes {
		opts.ToolTypes = append(opts.ToolTypes, model.ParseToolType(t))
	}
	c.JSON(http.StatusOK, s.App.References.Extract(req.Texts, req.SourceURL, opts))
}

type ImportRequest struct {
	Activities []model.Activity `json:"activities"`
}

func (s *Server) ImportActivities(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.App.Import(c.Request.Context(), req.Activities)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": len(req.Activities), "references": res})
}

func (s *Server) SavePersona(c *gin.Context) {
	var p model.Persona
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	if p.ID == "" {
		badRequest(c, errors.New("persona id is required"))
		return
	}
	if err := s.App.Store.SavePersona(c.Request.Context(), p); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "id": p.ID})
}

type BuildRequest struct {
	// Activities, when present, are clustered in memory and nothing is
	// persisted. Otherwise the stored activities are reclustered.
	Activities     []model.Activity `json:"activities"`
	MinClusterSize int              `json:"min_cluster_size"`
	Start          *time.Time       `json:"start"`
	End            *time.Time       `json:"end"`
}

func (s *Server) BuildClusters(c *gin.Context) {
	var req BuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	opts := app.ClusterOptions(s.App.Config)
	if req.MinClusterSize > 0 {
		opts.MinClusterSize = req.MinClusterSize
	}
	if req.Start != nil || req.End != nil {
		opts.DateRange = &cluster.DateRange{}
		if req.Start != nil {
			opts.DateRange.From = *req.Start
		}
		if req.End != nil {
			opts.DateRange.To = *req.End
		}
	}

	var (
		res *cluster.Result
		err error
	)
	if len(req.Activities) > 0 {
		var acts []model.Activity
		if acts, _, err = s.App.Annotate(req.Activities); err == nil {
			res, err = s.App.Builder.Build(acts, opts)
		}
	} else {
		res, err = s.App.Recluster(c.Request.Context(), opts)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type GenerateRequest struct {
	ClusterID      string         `json:"cluster_id"`
	PersonaID      string         `json:"persona_id"`
	Cluster        *model.Cluster `json:"cluster"`
	Persona        *model.Persona `json:"persona"`
	Framework      string         `json:"framework"`
	SkipEnrichment bool           `json:"skip_enrichment"`
}

func (s *Server) GenerateNarrative(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	opts := core.GenerateOptions{Framework: req.Framework, SkipEnrichment: req.SkipEnrichment}
	ctx := c.Request.Context()

	var (
		res *core.GenerationResult
		err error
	)
	switch {
	case req.Cluster != nil && req.Persona != nil:
		res, err = s.App.Generator.GenerateFromCluster(ctx, *req.Cluster, *req.Persona, opts)
	case req.ClusterID != "" && req.PersonaID != "":
		res, err = s.App.Generator.Generate(ctx, req.ClusterID, req.PersonaID, opts)
	default:
		badRequest(c, errors.New("either cluster_id and persona_id or cluster and persona are required"))
		return
	}
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "code": common.CodeOf(err), "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

type BatchRequest struct {
	ClusterIDs     []string `json:"cluster_ids"`
	PersonaID      string   `json:"persona_id"`
	Framework      string   `json:"framework"`
	SkipEnrichment bool     `json:"skip_enrichment"`
}

type batchItem struct {
	ClusterID string                 `json:"cluster_id"`
	Status    int                    `json:"status"`
	Error     string                 `json:"error,omitempty"`
	Result    *core.GenerationResult `json:"result,omitempty"`
}

func (s *Server) GenerateBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if len(req.ClusterIDs) == 0 || req.PersonaID == "" {
		badRequest(c, errors.New("cluster_ids and persona_id are required"))
		return
	}

	opts := core.GenerateOptions{Framework: req.Framework, SkipEnrichment: req.SkipEnrichment}
	results := s.App.Generator.GenerateBatch(c.Request.Context(), req.ClusterIDs, req.PersonaID, opts)

	items := make([]batchItem, len(results))
	succeeded := 0
	for i, r := range results {
		items[i] = batchItem{ClusterID: r.ClusterID, Status: http.StatusOK, Result: r.Result}
		if r.Err != nil {
			items[i].Status = statusFor(r.Err)
			items[i].Error = r.Err.Error()
			continue
		}
		succeeded++
	}
	c.JSON(http.StatusOK, gin.H{"results": items, "succeeded": succeeded, "failed": len(items) - succeeded})
}

func (s *Server) ListFrameworks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"frameworks": narrative.Frameworks()})
}

type patternView struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Version    int              `json:"version"`
	ToolType   model.ToolType   `json:"tool_type"`
	Confidence model.Confidence `json:"confidence"`
	Regex      string           `json:"regex"`
	Supersedes string           `json:"supersedes,omitempty"`
	Active     bool             `json:"active"`
}

// ListPatterns returns every registered pattern. Superseded ones are listed
// with active=false.
func (s *Server) ListPatterns(c *gin.Context) {
	opts := patterns.ListOptions{}
	if tt := c.Query("tool_type"); tt != "" {
		opts.ToolTypes = []model.ToolType{model.ParseToolType(tt)}
	}
	active := make(map[string]bool)
	for _, p := range s.App.Patterns.ListActive(opts) {
		active[p.ID] = true
	}

	views := []patternView{}
	for _, p := range s.App.Patterns.All() {
		if len(opts.ToolTypes) > 0 && p.ToolType != opts.ToolTypes[0] {
			continue
		}
		views = append(views, patternView{
			ID:         p.ID,
			Name:       p.Name,
			Version:    p.Version,
			ToolType:   p.ToolType,
			Confidence: p.Confidence,
			Regex:      p.Regex.String(),
			Supersedes: p.Supersedes,
			Active:     active[p.ID],
		})
	}
	c.JSON(http.StatusOK, gin.H{"patterns": views})
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.Logger.Error("request failed", "path", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": common.CodeOf(err)})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
}

func statusFor(err error) int {
	code := common.CodeOf(err)
	switch {
	case strings.HasSuffix(code, "_NOT_FOUND") && code != common.CodeActivitiesNotFound:
		return http.StatusNotFound
	case common.IsValidationFailure(err):
		return http.StatusUnprocessableEntity
	case common.IsInput(err):
		return http.StatusBadRequest
	case common.IsPartialData(err):
		return http.StatusUnprocessableEntity
	case common.IsDependency(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
