package http

import (
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ochronus/gomonsterapi/internal/app"
	"github.com/ochronus/gomonsterapi/internal/config"
	"github.com/ochronus/gomonsterapi/internal/models"
	"github.com/ochronus/gomonsterapi/internal/services/monster"
	"github.com/sirupsen/logrus"
)

// Handler contains the HTTP handlers of the local gateway.
type Handler struct {
	container *app.Container
	config    *config.Config
	client    monster.ClientAPI
	logger    *logrus.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(container *app.Container) *Handler {
	return &Handler{
		container: container,
		config:    container.Config,
		client:    container.Client,
		logger:    container.Logger,
	}
}

// RequireAuth rejects requests without valid Basic Auth credentials. It is a
// no-op when no username is configured.
func (h *Handler) RequireAuth(c *gin.Context) {
	if h.validateUser(c) {
		c.Next()
		return
	}
	c.Header("WWW-Authenticate", `Basic realm="gomonsterapi"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// Submit handles POST /v1/generate/:model.
func (h *Handler) Submit(c *gin.Context) {
	model := c.Param("model")
	params, ok := h.bindParams(c, model)
	if !ok {
		return
	}

	resp, err := h.client.Submit(c.Request.Context(), model, params)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Infof("[%s]: job submitted to %s", resp.ProcessID, model)
	c.JSON(http.StatusOK, gin.H{"process_id": resp.ProcessID})
}

// Status handles GET /v1/status/:id.
func (h *Handler) Status(c *gin.Context) {
	id := c.Param("id")

	status, err := h.client.Status(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if status.ProcessID == "" {
		status.ProcessID = id
	}

	c.JSON(http.StatusOK, status)
}

// Result handles GET /v1/result/:id, waiting for the job to finish.
func (h *Handler) Result(c *gin.Context) {
	id := c.Param("id")

	timeout := h.config.WaitTimeout()
	if raw := c.Query("timeout"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < config.MinTimeout || seconds > config.MaxTimeout {
			c.JSON(http.StatusBadRequest, gin.H{"error": "timeout must be a number of seconds between 1 and 86400"})
			return
		}
		timeout = time.Duration(seconds) * time.Second
	}

	result, err := h.client.Wait(c.Request.Context(), id, timeout)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"process_id": id, "result": result})
}

// Run handles POST /v1/run/:model: submit and wait in one call.
func (h *Handler) Run(c *gin.Context) {
	model := c.Param("model")
	params, ok := h.bindParams(c, model)
	if !ok {
		return
	}

	result, err := h.client.Generate(c.Request.Context(), model, params)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"model": model, "result": result})
}

// Upload handles POST /v1/upload with the file in the "file" form field.
// When a "model" field is present the presigned model-input flow is used.
func (h *Handler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	dir, err := os.MkdirTemp("", "gomonsterapi-upload-")
	if err != nil {
		h.logger.Errorf("creating temp dir: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, filepath.Base(header.Filename))
	if err := c.SaveUploadedFile(header, path); err != nil {
		h.logger.Errorf("saving upload %s: %v", header.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var downloadURL string
	if model := c.PostForm("model"); model != "" {
		downloadURL, err = h.client.UploadModelInput(c.Request.Context(), model, c.DefaultPostForm("filetype", "file"), path)
	} else {
		downloadURL, err = h.client.Upload(c.Request.Context(), path)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Infof("[%s]: uploaded", header.Filename)
	c.JSON(http.StatusOK, gin.H{"download_url": downloadURL})
}

// Models handles GET /v1/models.
func (h *Handler) Models(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": models.All()})
}

// bindParams decodes the JSON request body and checks it against the model
// catalog. It writes the error response itself and reports whether to go on.
func (h *Handler) bindParams(c *gin.Context, model string) (map[string]any, bool) {
	if strings.TrimSpace(model) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model is required"})
		return nil, false
	}

	var params map[string]any
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	if err := h.container.CheckParams(model, params); err != nil {
		h.writeError(c, err)
		return nil, false
	}
	return params, true
}

// writeError maps err to a JSON error response.
func (h *Handler) writeError(c *gin.Context, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "violations": verr.Violations})
		return
	}

	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	} else {
		h.logger.Warnf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}

	body := gin.H{"error": err.Error(), "kind": monster.KindOf(err).String()}
	if upstream := monster.StatusCode(err); upstream != 0 {
		body["upstream_status"] = upstream
	}
	c.JSON(code, body)
}

func statusFor(err error) int {
	switch monster.KindOf(err) {
	case monster.KindHTTPStatus, monster.KindTransport, monster.KindDecode:
		return http.StatusBadGateway
	case monster.KindJobFailed:
		return http.StatusUnprocessableEntity
	case monster.KindTimeout:
		return http.StatusGatewayTimeout
	case monster.KindFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case monster.KindCanceled:
		return http.StatusServiceUnavailable
	case monster.KindIO:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// validateUser validates the Basic Auth credentials.
func (h *Handler) validateUser(c *gin.Context) bool {
	if h.config.Server.Username == "" {
		return true
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return false
	}

	if !strings.HasPrefix(authHeader, "Basic ") {
		return false
	}

	encoded := strings.TrimPrefix(authHeader, "Basic ")
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return false
	}

	username := parts[0]
	password := parts[1]

	return username == h.config.Server.Username && password == h.config.Server.Password
}
