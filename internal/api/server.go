package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"LogFormatPump/internal/format"
	"LogFormatPump/internal/watcher"
)

// maxDetectBody: сколько байт тела запроса /api/detect учитывается.
const maxDetectBody = 1 << 20

// FileLister отдаёт состояние отслеживаемых файлов.
type FileLister interface {
	Files() []watcher.FileState
}

// Server: HTTP API статуса сервиса.
type Server struct {
	engine  *gin.Engine
	reg     *format.Registry
	files   FileLister
	logger  *zap.Logger
	started time.Time
}

type formatInfo struct {
	Name       string       `json:"name"`
	Title      string       `json:"title,omitempty"`
	Type       string       `json:"type"`
	Builtin    bool         `json:"builtin"`
	Collisions []string     `json:"collides_with,omitempty"`
	Columns    []columnInfo `json:"columns"`
}

type columnInfo struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Hidden      bool   `json:"hidden,omitempty"`
	Description string `json:"description,omitempty"`
}

func New(reg *format.Registry, files FileLister, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, reg: reg, files: files, logger: logger, started: time.Now()}
	s.setupRoutes()
	return s
}

// Handler возвращает http.Handler для встраивания и тестов.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		files := s.files.Files()
		tailed := 0
		for _, f := range files {
			if f.Tailed {
				tailed++
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"uptime":       time.Since(s.started).Round(time.Second).String(),
			"formats":      len(s.reg.Order()),
			"files_known":  len(files),
			"files_tailed": tailed,
		})
	})
	s.engine.GET("/api/formats", s.listFormats)
	s.engine.GET("/api/files", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.files.Files())
	})
	s.engine.POST("/api/detect", s.detect)
}

func (s *Server) listFormats(c *gin.Context) {
	collisions := s.reg.Collisions()
	out := make([]formatInfo, 0, len(s.reg.Order()))
	for _, d := range s.reg.Order() {
		cols := make([]columnInfo, 0, len(d.Columns()))
		for _, col := range d.Columns() {
			cols = append(cols, columnInfo{Name: col.Name, Kind: col.Kind.String(), Hidden: col.Hidden, Description: col.Description})
		}
		out = append(out, formatInfo{
			Name:       d.Name,
			Title:      d.Title,
			Type:       d.Type.String(),
			Builtin:    d.Builtin,
			Collisions: collisions[d.Name],
			Columns:    cols,
		})
	}
	c.JSON(http.StatusOK, out)
}

// detect определяет формат присланного фрагмента журнала.
// Имя файла для file-pattern передаётся параметром filename.
func (s *Server) detect(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDetectBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	def := s.reg.DetectFormat(c.Query("filename"), data)
	if def == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "format not detected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"format": def.Name, "type": def.Type.String()})
}

// Run обслуживает запросы на addr до отмены ctx.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("API статуса запущен", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
