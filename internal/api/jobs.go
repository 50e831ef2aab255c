package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/north-cloud/prospect-research/internal/auth"
	"github.com/north-cloud/prospect-research/internal/domain"
	"github.com/north-cloud/prospect-research/internal/importer"
	"github.com/north-cloud/prospect-research/internal/logger"
	"github.com/north-cloud/prospect-research/internal/templates"
)

const (
	previewLimit = 20
	maxUploadMiB = 20
	jobListLimit = 100
)

type batchRequest struct {
	CSV            string                 `json:"csv"`
	Provider       string                 `json:"provider"`
	UseWebSearch   *bool                  `json:"useWebSearch"`
	SystemPrompt   string                 `json:"systemPrompt"`
	TemplateID     string                 `json:"templateId"`
	ColMapOverride map[string]string      `json:"colMapOverride"`
	Fallback       *domain.FallbackConfig `json:"fallback"`
	Email          *domain.EmailConfig    `json:"email"`
}

// readBatch accepts either a JSON body carrying inline CSV text or a
// multipart upload (CSV or .xlsx) with the other fields as form values.
func readBatch(c *gin.Context) (*importer.Batch, *batchRequest, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return nil, nil, fmt.Errorf("missing file upload")
		}
		if fileHeader.Size > maxUploadMiB<<20 {
			return nil, nil, fmt.Errorf("file exceeds %d MiB", maxUploadMiB)
		}
		f, err := fileHeader.Open()
		if err != nil {
			return nil, nil, err
		}
		defer func() { _ = f.Close() }()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, nil, err
		}
		batch, err := importer.Parse(fileHeader.Filename, data)
		if err != nil {
			return nil, nil, err
		}
		req := &batchRequest{
			Provider:     c.PostForm("provider"),
			SystemPrompt: c.PostForm("systemPrompt"),
			TemplateID:   c.PostForm("templateId"),
		}
		return batch, req, nil
	}

	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, nil, fmt.Errorf("invalid request body")
	}
	if strings.TrimSpace(req.CSV) == "" {
		return nil, nil, fmt.Errorf("no data")
	}
	batch, err := importer.Parse("upload.csv", []byte(req.CSV))
	if err != nil {
		return nil, nil, err
	}
	return batch, &req, nil
}

func (s *Server) preview(c *gin.Context) {
	batch, req, err := readBatch(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mapping := req.ColMapOverride
	if mapping == nil {
		mapping = importer.AutoGuess(batch.Headers)
	}

	n := len(batch.Records)
	if n > previewLimit {
		n = previewLimit
	}
	previews := make([]gin.H, n)
	for i := 0; i < n; i++ {
		built := importer.BuildPrompt(batch.Records[i], mapping, i)
		previews[i] = gin.H{"company": built.Label, "prompt": built.Prompt}
	}

	c.JSON(http.StatusOK, gin.H{
		"headers":  batch.Headers,
		"colMap":   mapping,
		"total":    len(batch.Records),
		"previews": previews,
	})
}

func (s *Server) research(c *gin.Context) {
	userID, _ := auth.UserID(c)

	batch, req, err := readBatch(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	def, err := s.registry.Get(req.Provider)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown provider"})
		return
	}
	key, err := s.store.GetKey(c.Request.Context(), userID, def.CredentialName)
	if err != nil || key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("No API key for %s. Add your key first.", def.DisplayName)})
		return
	}

	mapping := req.ColMapOverride
	if mapping == nil {
		mapping = importer.AutoGuess(batch.Headers)
	}
	if mapping["company"] == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No Company column"})
		return
	}

	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = templates.Get(templates.DefaultTemplateID).Prompt
	}
	templateID := req.TemplateID
	if templateID == "" {
		templateID = "custom"
	}
	useWeb := req.UseWebSearch == nil || *req.UseWebSearch

	built := importer.BuildRows(batch, mapping)
	rows := make([]domain.Row, len(built))
	for i, b := range built {
		rows[i] = domain.Row{Label: b.Label, Prompt: b.Prompt}
	}

	job := &domain.Job{
		UserID:       userID,
		Name:         fmt.Sprintf("%d prospects via %s", len(rows), def.DisplayName),
		Provider:     def.ID,
		TemplateID:   templateID,
		SystemPrompt: systemPrompt,
		UseWebSearch: useWeb && def.WebSearch,
		ColumnMap:    mapping,
		Fallback:     req.Fallback,
		Email:        req.Email,
	}

	jobID, err := s.engine.Submit(c.Request.Context(), job, rows)
	if err != nil {
		s.log.Error("submit job", logger.Int64("user_id", userID), logger.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.log.Info("job submitted",
		logger.String("job_id", jobID),
		logger.Int64("user_id", userID),
		logger.String("provider", def.ID),
		logger.Int("total", len(rows)))

	c.JSON(http.StatusOK, gin.H{
		"jobId":    jobID,
		"total":    len(rows),
		"provider": def.DisplayName,
	})
}

func (s *Server) resume(c *gin.Context) {
	job, ok := s.ownedJob(c)
	if !ok {
		return
	}
	if s.engine.Running(job.ID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Already running"})
		return
	}

	def, err := s.registry.Get(job.Provider)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown provider"})
		return
	}
	key, err := s.store.GetKey(c.Request.Context(), job.UserID, def.CredentialName)
	if err != nil || key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No API key"})
		return
	}

	pending, err := s.store.PendingRows(c.Request.Context(), job.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rows"})
		return
	}
	if len(pending) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No pending rows"})
		return
	}

	if err := s.engine.Resume(c.Request.Context(), job.ID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobId":     job.ID,
		"remaining": len(pending),
		"total":     job.TotalRows,
	})
}

func (s *Server) cancel(c *gin.Context) {
	job, ok := s.ownedJob(c)
	if !ok {
		return
	}
	if err := s.engine.Cancel(c.Request.Context(), job.ID); err != nil {
		s.log.Error("cancel job", logger.String("job_id", job.ID), logger.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) listJobs(c *gin.Context) {
	userID, _ := auth.UserID(c)
	jobs, err := s.store.ListJobs(c.Request.Context(), userID, jobListLimit)
	if err != nil {
		s.log.Error("list jobs", logger.Int64("user_id", userID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
		return
	}

	out := make([]gin.H, len(jobs))
	for i, j := range jobs {
		tpl := templates.Get(j.TemplateID)
		providerName := j.Provider
		if def, err := s.registry.Get(j.Provider); err == nil {
			providerName = def.DisplayName
		}
		out[i] = gin.H{
			"id":            j.ID,
			"name":          j.Name,
			"provider":      j.Provider,
			"providerName":  providerName,
			"templateId":    j.TemplateID,
			"templateName":  tpl.Name,
			"templateIcon":  tpl.Icon,
			"status":        j.Status,
			"totalRows":     j.TotalRows,
			"succeeded":     j.Succeeded,
			"failed":        j.Failed,
			"cost":          j.CostUSD,
			"elapsed":       j.ElapsedSec,
			"fallbackSpend": j.FallbackSpend,
			"createdAt":     j.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) deleteJob(c *gin.Context) {
	job, ok := s.ownedJob(c)
	if !ok {
		return
	}
	if err := s.store.DeleteJob(c.Request.Context(), job.ID, job.UserID); err != nil {
		s.log.Error("delete job", logger.String("job_id", job.ID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete job"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
