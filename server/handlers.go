package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/drivebridge/drivebridge/drive"
	"github.com/drivebridge/drivebridge/health"
	"github.com/drivebridge/drivebridge/version"
)

// handleUploadFile accepts a multipart form with fields:
//
//	file: the file to upload (required)
//	folder_path: destination folder path, created if missing
//	overwrite: "true" replaces an existing file with the same name
func (s *Server) handleUploadFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(c, http.StatusBadRequest, "bad_request", "multipart field 'file' is required")
		return
	}

	overwrite := false
	if raw := c.PostForm("overwrite"); raw != "" {
		overwrite, err = strconv.ParseBool(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "bad_request", "field 'overwrite' must be a boolean")
			return
		}
	}

	src, err := fileHeader.Open()
	if err != nil {
		writeError(c, http.StatusBadRequest, "bad_request", "failed to read uploaded file")
		return
	}
	defer src.Close()

	file, err := s.deps.Storage.UploadFile(c.Request.Context(), drive.UploadRequest{
		Name:       fileHeader.Filename,
		FolderPath: c.PostForm("folder_path"),
		Content:    src,
		MimeType:   fileHeader.Header.Get("Content-Type"),
		Overwrite:  overwrite,
	})
	if err != nil {
		writeStorageError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"file": gin.H{
			"id":   file.ID,
			"name": file.Name,
		},
		"folder_path": c.PostForm("folder_path"),
	})
}

// handleDeleteFolder deletes a folder by path. Deleting a folder that does
// not exist reports success, matching the storage client semantics.
func (s *Server) handleDeleteFolder(c *gin.Context) {
	var body struct {
		FolderPath string `json:"folder_path"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "bad_request", "JSON body with 'folder_path' is required")
		return
	}
	if body.FolderPath == "" {
		writeError(c, http.StatusBadRequest, "bad_request", "'folder_path' must not be empty")
		return
	}

	if err := s.deps.Storage.DeleteFolder(c.Request.Context(), body.FolderPath); err != nil {
		writeStorageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "folder_path": body.FolderPath})
}

// handleAuthorize redirects the caller to the provider consent screen.
func (s *Server) handleAuthorize(c *gin.Context) {
	url, err := s.deps.Auth.AuthCodeURL()
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal", "failed to build authorization URL")
		return
	}
	c.Redirect(http.StatusFound, url)
}

// handleSubmitAuthCode exchanges a manually pasted authorization code.
func (s *Server) handleSubmitAuthCode(c *gin.Context) {
	var body struct {
		AuthCode string `json:"auth_code"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.AuthCode == "" {
		writeError(c, http.StatusBadRequest, "bad_request", "JSON body with 'auth_code' is required")
		return
	}

	if err := s.deps.Auth.SubmitCode(c.Request.Context(), body.AuthCode); err != nil {
		writeError(c, http.StatusBadRequest, "auth_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "authorized"})
}

// handleOAuthCallback completes the redirect flow.
func (s *Server) handleOAuthCallback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		writeError(c, http.StatusBadRequest, "auth_failed", "provider denied authorization: "+errParam)
		return
	}

	err := s.deps.Auth.HandleCallback(c.Request.Context(), c.Query("code"), c.Query("state"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "auth_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "authorized"})
}

// handleAuthStatus reports the stored credential state.
func (s *Server) handleAuthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Auth.Status())
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// handleHealth runs all health checks and answers 503 when unhealthy so load
// balancers can rotate the instance out.
func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		return
	}

	results := s.deps.Health.CheckAll(c.Request.Context())
	overall := s.deps.Health.OverallStatus(results)

	checks := make(gin.H, len(results))
	for name, result := range results {
		check := gin.H{
			"status":   result.Status.String(),
			"message":  result.Message,
			"duration": result.Duration.String(),
		}
		if len(result.Details) > 0 {
			check["details"] = result.Details
		}
		if result.Error != nil {
			check["error"] = result.Error.Error()
		}
		checks[name] = check
	}

	status := http.StatusOK
	if overall == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": overall.String(), "checks": checks})
}

// handleServiceStatus exposes the resilience guard snapshots.
func (s *Server) handleServiceStatus(c *gin.Context) {
	status := gin.H{}

	if s.deps.Breaker != nil {
		snap := s.deps.Breaker.Snapshot()
		breaker := gin.H{
			"state":                snap.State.String(),
			"consecutive_failures": snap.ConsecutiveFailures,
			"trial_in_flight":      snap.TrialInFlight,
		}
		if !snap.OpenedAt.IsZero() {
			breaker["opened_at"] = snap.OpenedAt.UTC()
		}
		status["circuit_breaker"] = breaker
	}
	if s.deps.Limiter != nil {
		cfg := s.deps.Limiter.Config()
		status["rate_limiter"] = gin.H{
			"rate":   cfg.Rate,
			"burst":  cfg.Burst,
			"tokens": s.deps.Limiter.Tokens(),
		}
	}
	if s.deps.Bulkhead != nil {
		snap := s.deps.Bulkhead.Snapshot()
		status["bulkhead"] = gin.H{
			"active":         snap.Active,
			"max_concurrent": snap.MaxConcurrent,
			"rejected":       snap.Rejected,
		}
	}

	c.JSON(http.StatusOK, status)
}

// handleInfo describes the service.
func (s *Server) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "drivebridge",
		"version": version.Get().Version,
		"endpoints": []string{
			"POST /upload_file",
			"POST /delete_folder",
			"GET /authorize_gdrive",
			"POST /submit_auth_code",
			"GET /oauth/callback",
			"GET /auth/status",
			"GET /ping",
			"GET /health",
			"GET /service/status",
			"GET /info",
			"GET /version",
			"GET /metrics",
		},
	})
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}
