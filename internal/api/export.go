package api

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/north-cloud/prospect-research/internal/domain"
	"github.com/north-cloud/prospect-research/internal/logger"
)

// export streams the job results as CSV in original input order. The BOM
// and CRLF line endings keep Excel happy.
func (s *Server) export(c *gin.Context) {
	job, ok := s.ownedJob(c)
	if !ok {
		return
	}

	rows, err := s.store.AllRows(c.Request.Context(), job.ID)
	if err != nil {
		s.log.Error("export rows", logger.String("job_id", job.ID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rows"})
		return
	}

	providerName := job.Provider
	if def, err := s.registry.Get(job.Provider); err == nil {
		providerName = def.DisplayName
	}

	var buf bytes.Buffer
	buf.WriteString("\uFEFF")
	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	header := []string{
		"Company", "Status", "Research Brief", "Score", "Tier",
		"Email Draft", "Input Tokens", "Output Tokens", "Provider",
	}
	_ = w.Write(header)

	for _, row := range rows {
		text := row.Research
		if row.Status == domain.RowError {
			text = row.ErrorMsg
		}
		score := ""
		if row.Score != domain.UngradedScore {
			score = strconv.Itoa(row.Score)
		}
		_ = w.Write([]string{
			row.Label,
			string(row.Status),
			flattenNewlines(text),
			score,
			string(row.Tier),
			flattenNewlines(row.EmailDraft),
			strconv.FormatInt(row.Usage.Input, 10),
			strconv.FormatInt(row.Usage.Output, 10),
			providerName,
		})
	}
	w.Flush()

	filename := fmt.Sprintf("prospect_research_%s.csv", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func flattenNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
