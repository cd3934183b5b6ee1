package cmd

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/littlejohn-app/littlejohn/internal/config"
	"github.com/littlejohn-app/littlejohn/internal/state"
	"github.com/littlejohn-app/littlejohn/internal/utils"
)

// enqueueRequest is a direct-download request from a local client, e.g.
// a browser extension handing over an unrestricted link.
type enqueueRequest struct {
	URL      string `json:"url" binding:"required"`
	Filename string `json:"filename"`
	Start    bool   `json:"start"`
}

// startControlServer serves the local control API on 127.0.0.1. Every
// endpoint except /health requires the bearer token from the token file.
func startControlServer(port int) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	token := ensureControlToken()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "port": port})
	})

	api := r.Group("/", requireToken(token))
	{
		api.GET("/list", func(c *gin.Context) {
			c.JSON(http.StatusOK, GlobalManager.List())
		})

		api.POST("/enqueue", func(c *gin.Context) {
			var req enqueueRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if strings.ContainsAny(req.Filename, `/\`) || strings.Contains(req.Filename, "..") {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filename"})
				return
			}
			task := GlobalManager.Enqueue(req.URL, req.Filename)
			if req.Start {
				if err := GlobalManager.Start(task.ID); err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
					return
				}
			}
			c.JSON(http.StatusAccepted, gin.H{"status": "queued", "id": task.ID})
		})

		api.POST("/pause", taskAction(GlobalManager.Pause))
		api.POST("/resume", taskAction(GlobalManager.Resume))
		api.POST("/cancel", taskAction(GlobalManager.Cancel))

		api.GET("/history", func(c *gin.Context) {
			entries, err := state.ListHistory(100)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, entries)
		})
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	if err := r.Run(addr); err != nil {
		utils.Debug("control server error: %v", err)
	}
}

// taskAction adapts a manager method taking a task id into a handler.
func taskAction(fn func(string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Query("id")
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing id parameter"})
			return
		}
		if err := fn(id); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "id": id})
	}
}

func requireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		provided, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || len(provided) != len(token) ||
			subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// ensureControlToken reads the control API token, generating one on
// first use.
func ensureControlToken() string {
	tokenFile := filepath.Join(config.GetAppDir(), "control-token")
	if data, err := os.ReadFile(tokenFile); err == nil {
		return strings.TrimSpace(string(data))
	}

	token := uuid.NewString()
	if err := os.WriteFile(tokenFile, []byte(token), 0o600); err != nil {
		utils.Debug("failed to write control token: %v", err)
	}
	return token
}
