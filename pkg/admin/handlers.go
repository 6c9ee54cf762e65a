package admin

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/cert"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/description"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/history"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/model"
)

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Message: message})
}

// health handles GET /api/health.
func (r *Router) health(c *gin.Context) {
	loaded := r.config.Simulator.Appliance() != nil
	status := "healthy"
	if !loaded {
		status = "idle"
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:          status,
		ApplianceLoaded: loaded,
		Sessions:        len(r.config.Simulator.Sessions()),
		Timestamp:       time.Now(),
	})
}

// fileUpload handles POST /api/file_upload. The description is read from
// the "file" field, or the first file part when there is none; "psk" is an
// optional form field.
func (r *Router) fileUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, r.config.MaxUploadSize)

	header, err := uploadedFile(c)
	if err != nil {
		abort(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	f, err := header.Open()
	if err != nil {
		abort(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		abort(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	psk := c.PostForm("psk")
	if r.config.PSK != "" {
		psk = r.config.PSK
	}

	r.logger.Info("description uploaded", "filename", header.Filename, "size", len(data))
	if err := r.config.Simulator.LoadUpload(c.Request.Context(), header.Filename, data, psk); err != nil {
		status, code := http.StatusInternalServerError, "load_failed"
		if isClientError(err) {
			status, code = http.StatusBadRequest, "invalid_description"
		}
		r.logger.Warn("upload rejected", "filename", header.Filename, "error", err)
		abort(c, status, code, err.Error())
		return
	}

	entities := 0
	if a := r.config.Simulator.Appliance(); a != nil {
		entities = len(a.Entities())
	}
	c.JSON(http.StatusOK, UploadResponse{
		Status:   "loaded",
		Filename: header.Filename,
		Entities: entities,
	})
}

func uploadedFile(c *gin.Context) (*multipart.FileHeader, error) {
	if header, err := c.FormFile("file"); err == nil {
		return header, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("multipart form: %w", err)
	}
	for _, headers := range form.File {
		if len(headers) > 0 {
			return headers[0], nil
		}
	}
	return nil, errors.New("no file in upload")
}

func isClientError(err error) bool {
	for _, target := range []error{
		description.ErrInvalidDescription,
		description.ErrUnsupportedFormat,
		model.ErrConstruction,
		model.ErrValidation,
		model.ErrUnknownEntity,
		cert.ErrNoPSK,
		cert.ErrInvalidPSK,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// appliance handles GET /api/appliance.
func (r *Router) appliance(c *gin.Context) {
	a := r.config.Simulator.Appliance()
	if a == nil {
		abort(c, http.StatusNotFound, "not_found", "no appliance loaded")
		return
	}
	dump := a.Dump()
	dump["info"] = a.Info()
	c.JSON(http.StatusOK, dump)
}

// sessions handles GET /api/sessions.
func (r *Router) sessions(c *gin.Context) {
	list := r.config.Simulator.Sessions()
	c.JSON(http.StatusOK, SessionsResponse{Sessions: list, Count: len(list)})
}

// history handles GET /api/history?uid=&limit=.
func (r *Router) history(c *gin.Context) {
	if r.config.Journal == nil {
		abort(c, http.StatusServiceUnavailable, "disabled", "history is not enabled")
		return
	}

	var q history.Query
	if s := c.Query("uid"); s != "" {
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			abort(c, http.StatusBadRequest, "bad_request", "uid must be an integer")
			return
		}
		q.UID = uid
	}
	if s := c.Query("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			abort(c, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
			return
		}
		q.Limit = limit
	}

	records, err := r.config.Journal.List(c.Request.Context(), q)
	if err != nil {
		abort(c, http.StatusInternalServerError, "history_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{Records: records, Count: len(records)})
}

// static serves the admin UI. Unknown paths get index.html so the UI can
// route on the client; unknown API paths get a JSON 404.
func (r *Router) static(c *gin.Context) {
	p := c.Request.URL.Path
	if r.config.StaticDir == "" || strings.HasPrefix(p, "/api/") || c.Request.Method != http.MethodGet {
		abort(c, http.StatusNotFound, "not_found", "no route for "+p)
		return
	}

	name := filepath.Join(r.config.StaticDir, filepath.FromSlash(path.Clean("/"+p)))
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		c.File(name)
		return
	}
	index := filepath.Join(r.config.StaticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		abort(c, http.StatusNotFound, "not_found", "admin UI not installed")
		return
	}
	c.File(index)
}
