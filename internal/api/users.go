package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/north-cloud/prospect-research/internal/auth"
	"github.com/north-cloud/prospect-research/internal/logger"
	"github.com/north-cloud/prospect-research/internal/templates"
)

const minPasswordLength = 6

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type userResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (s *Server) signup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password required"})
		return
	}
	if len(req.Password) < minPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be 6+ characters"})
		return
	}
	if existing, err := s.store.UserByEmail(c.Request.Context(), email); err == nil && existing != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
		return
	}

	name := req.Name
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.log.Error("hash password", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Signup failed"})
		return
	}

	userID, err := s.store.CreateUser(c.Request.Context(), email, hash, name)
	if err != nil {
		s.log.Error("create user", logger.String("email", email), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Signup failed"})
		return
	}

	token, err := s.issuer.Issue(userID, email)
	if err != nil {
		s.log.Error("issue token", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Signup failed"})
		return
	}

	s.log.Info("user signed up", logger.Int64("user_id", userID))
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  userResponse{ID: userID, Email: email, Name: name},
	})
}

func (s *Server) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password required"})
		return
	}

	user, err := s.store.UserByEmail(c.Request.Context(), email)
	if err != nil || !auth.VerifyPassword(req.Password, user.PasswordHash) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email or password"})
		return
	}

	token, err := s.issuer.Issue(user.ID, user.Email)
	if err != nil {
		s.log.Error("issue token", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  userResponse{ID: user.ID, Email: user.Email, Name: user.Name},
	})
}

func (s *Server) me(c *gin.Context) {
	userID, _ := auth.UserID(c)
	user, err := s.store.UserByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	c.JSON(http.StatusOK, userResponse{ID: user.ID, Email: user.Email, Name: user.Name})
}

func (s *Server) listTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, templates.Library)
}

// providerStatus is the per-provider payload for the key-management UI.
type providerStatus struct {
	Name           string  `json:"name"`
	HasKey         bool    `json:"hasKey"`
	InputCost      float64 `json:"inputCost"`
	OutputCost     float64 `json:"outputCost"`
	WebSearch      bool    `json:"webSearch"`
	WebCostPerCall float64 `json:"webCostPerCall"`
}

func (s *Server) providerStatuses(c *gin.Context, userID int64) (map[string]providerStatus, error) {
	keys, err := s.store.ListKeys(c.Request.Context(), userID)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(keys))
	for _, k := range keys {
		have[k] = true
	}

	out := make(map[string]providerStatus)
	for _, def := range s.registry.All() {
		out[def.ID] = providerStatus{
			Name:           def.DisplayName,
			HasKey:         have[def.CredentialName],
			InputCost:      def.Costs.InputPerMTok,
			OutputCost:     def.Costs.OutputPerMTok,
			WebSearch:      def.WebSearch,
			WebCostPerCall: def.Costs.WebSearchPerCall,
		}
	}
	return out, nil
}

func (s *Server) listProviders(c *gin.Context) {
	userID, _ := auth.UserID(c)
	statuses, err := s.providerStatuses(c, userID)
	if err != nil {
		s.log.Error("list providers", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list providers"})
		return
	}
	c.JSON(http.StatusOK, statuses)
}

type setKeyRequest struct {
	EnvName string `json:"envName"`
	Key     string `json:"key"`
}

func (s *Server) setKey(c *gin.Context) {
	userID, _ := auth.UserID(c)

	var req setKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if !s.registry.CredentialNames()[req.EnvName] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid key name"})
		return
	}

	if err := s.store.SetKey(c.Request.Context(), userID, req.EnvName, req.Key); err != nil {
		s.log.Error("set key", logger.Int64("user_id", userID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store key"})
		return
	}

	statuses, err := s.providerStatuses(c, userID)
	if err != nil {
		s.log.Error("list providers", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list providers"})
		return
	}
	c.JSON(http.StatusOK, statuses)
}
