package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"image-converter-go/internal/batch"
	"image-converter-go/internal/config"
	"image-converter-go/internal/converter"
	"image-converter-go/internal/format"
	"image-converter-go/internal/logger"
	"image-converter-go/internal/statistics"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

//go:embed templates/index.html
var templates embed.FS

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	converter  *converter.Converter
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.Mutex

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	currentRun     string
	lastRun        *RunSummary
	sessionStats   *statistics.Statistics
	runWG          sync.WaitGroup
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ResizeRequest is the optional resize part of a conversion request.
type ResizeRequest struct {
	Enabled bool `json:"enabled"`
	Width   int  `json:"width"`
	Height  int  `json:"height"`
}

// ConvertRequest starts a single-file or batch conversion.
type ConvertRequest struct {
	Mode    string        `json:"mode"` // "single" or "batch"
	Input   string        `json:"input"`
	Output  string        `json:"output"`
	Format  string        `json:"format,omitempty"`
	Quality int           `json:"quality"`
	Resize  ResizeRequest `json:"resize"`
}

// RunSummary describes a finished run.
type RunSummary struct {
	ID        string                 `json:"id"`
	Mode      string                 `json:"mode"`
	Success   bool                   `json:"success"`
	Message   string                 `json:"message"`
	Stats     map[string]interface{} `json:"statistics,omitempty"`
	StartedAt time.Time              `json:"started_at"`
	EndedAt   time.Time              `json:"ended_at"`
}

type DirectoryInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	IsDirectory  bool   `json:"is_directory"`
	Supported    bool   `json:"supported"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

type FormatInfo struct {
	Name          string   `json:"name"`
	Extension     string   `json:"extension"`
	Extensions    []string `json:"extensions"`
	SupportsAlpha bool     `json:"supports_alpha"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// job is a validated conversion request.
type job struct {
	id      string
	mode    string
	input   string
	output  string
	format  format.Format
	options converter.Options
}

func NewServer(cfg *config.Config, log *logrus.Logger, conv *converter.Converter) *Server {
	s := &Server{
		cfg:          cfg,
		log:          log,
		converter:    conv,
		router:       mux.NewRouter(),
		wsClients:    make(map[*websocket.Conn]bool),
		sessionStats: statistics.NewStatistics(),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: sameOrigin,
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/formats", s.handleFormats).Methods("GET")
	api.HandleFunc("/convert", s.handleConvert).Methods("POST")
	api.HandleFunc("/directories", s.handleListDirectories).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://%s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop shuts the HTTP server down and waits for a running conversion.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}

	s.wsMutex.Lock()
	for conn := range s.wsClients {
		conn.Close()
		delete(s.wsClients, conn)
	}
	s.wsMutex.Unlock()
	return err
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := templates.ReadFile("templates/index.html")
	if err != nil {
		s.writeError(w, "page not available", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	current := s.currentRun
	last := s.lastRun
	s.operationMutex.RUnlock()

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":     running,
			"current_run": current,
			"last_run":    last,
			"session":     s.sessionStats.Snapshot(),
			"defaults": map[string]interface{}{
				"format":  s.cfg.Conversion.Format,
				"quality": s.cfg.Conversion.Quality,
				"width":   s.cfg.Conversion.Resize.Width,
				"height":  s.cfg.Conversion.Resize.Height,
			},
		},
	})
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	var formats []FormatInfo
	for _, f := range format.All() {
		formats = append(formats, FormatInfo{
			Name:          f.String(),
			Extension:     f.Extension(),
			Extensions:    f.Extensions(),
			SupportsAlpha: f.SupportsAlpha(),
		})
	}
	s.writeJSON(w, APIResponse{Success: true, Data: formats})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if !sameOrigin(r) {
		s.writeError(w, "Cross-origin requests are not allowed", http.StatusForbidden)
		return
	}
	// A JSON content type cannot be sent cross-site without a CORS preflight.
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
		s.writeError(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return
	}

	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	j, err := s.buildJob(req)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The check and the claim happen under one lock so two requests cannot
	// both start a worker.
	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Conversion already in progress", http.StatusConflict)
		return
	}
	s.isRunning = true
	s.currentRun = j.id
	s.runWG.Add(1)
	s.operationMutex.Unlock()

	go s.runConversionAsync(j)

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Conversion started",
		Data:    map[string]string{"run_id": j.id},
	})
}

// buildJob validates a request and fills in configured defaults.
func (s *Server) buildJob(req ConvertRequest) (job, error) {
	j := job{id: uuid.NewString(), mode: req.Mode}
	if j.mode == "" {
		j.mode = "single"
	}
	if j.mode != "single" && j.mode != "batch" {
		return j, fmt.Errorf("invalid mode %q (valid: single, batch)", req.Mode)
	}
	if strings.TrimSpace(req.Input) == "" || strings.TrimSpace(req.Output) == "" {
		return j, errors.New("input and output are required")
	}
	j.input = req.Input
	j.output = req.Output

	quality := req.Quality
	if quality == 0 {
		quality = s.cfg.Conversion.Quality
	}
	j.options = converter.Options{Quality: quality}
	if req.Resize.Enabled {
		j.options.Width = req.Resize.Width
		j.options.Height = req.Resize.Height
		if j.options.Width <= 0 || j.options.Height <= 0 {
			return j, fmt.Errorf("%w: resize width and height must be positive", converter.ErrValidation)
		}
	}
	if err := j.options.Validate(); err != nil {
		return j, err
	}

	if j.mode == "batch" {
		name := req.Format
		if name == "" {
			name = s.cfg.Conversion.Format
		}
		f, err := format.Parse(name)
		if err != nil {
			return j, err
		}
		j.format = f
	}
	return j, nil
}

// runConversionAsync is the single background worker. It talks to the
// page only through broadcasts and always announces run_finished.
func (s *Server) runConversionAsync(j job) {
	started := time.Now()
	summary := &RunSummary{ID: j.id, Mode: j.mode, StartedAt: started}

	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("Conversion worker panicked: %v", r)
			summary.Success = false
			summary.Message = fmt.Sprintf("internal error: %v", r)
		}
		summary.EndedAt = time.Now()

		s.operationMutex.Lock()
		s.isRunning = false
		s.currentRun = ""
		s.lastRun = summary
		s.operationMutex.Unlock()

		s.broadcastWSMessage("run_finished", summary)
		s.runWG.Done()
	}()

	logger.WithOperation(s.log, "convert").WithField("run_id", j.id).Infof("Starting %s run: %s -> %s", j.mode, j.input, j.output)
	s.broadcastWSMessage("run_started", map[string]interface{}{
		"id":     j.id,
		"mode":   j.mode,
		"input":  j.input,
		"output": j.output,
	})

	hook := func(level, message string) {
		s.broadcastWSMessage("log", map[string]string{
			"run_id":  j.id,
			"level":   level,
			"message": message,
		})
	}
	runner := batch.NewRunnerWithLogHook(s.converter, s.log, hook)

	switch j.mode {
	case "single":
		hook("info", fmt.Sprintf("conversion started: %s", j.input))
		res := runner.ConvertFile(j.input, j.output, j.options)
		run := statistics.NewStatistics()
		run.AddFilesFound(1)
		run.Record(res)
		run.Finalize()
		s.sessionStats.Merge(run)

		summary.Success = res.Success
		summary.Stats = run.Snapshot()
		if res.Success {
			summary.Message = "Conversion complete"
		} else {
			summary.Message = res.Message
		}

	case "batch":
		hook("info", fmt.Sprintf("input folder: %s", j.input))
		hook("info", fmt.Sprintf("output folder: %s", j.output))
		stats, err := runner.ConvertDirectory(context.Background(), batch.Params{
			InputDir:  j.input,
			OutputDir: j.output,
			Format:    j.format,
			Options:   j.options,
		})
		s.sessionStats.Merge(stats)
		summary.Stats = stats.Snapshot()

		switch {
		case err != nil:
			summary.Message = err.Error()
		case stats.Failed() > 0:
			summary.Message = fmt.Sprintf("Batch finished: %d converted, %d failed", stats.Converted(), stats.Failed())
		default:
			summary.Success = true
			summary.Message = fmt.Sprintf("Batch conversion complete: %d converted", stats.Converted())
		}
	}

	if summary.Success {
		s.broadcastWSMessage("run_completed", summary)
	} else {
		s.broadcastWSMessage("run_failed", summary)
	}
}

func (s *Server) handleListDirectories(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "."
	}
	path = filepath.Clean(path)

	entries, err := os.ReadDir(path)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to read directory: %v", err), http.StatusBadRequest)
		return
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	directories := make([]DirectoryInfo, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		directories = append(directories, DirectoryInfo{
			Path:         filepath.Join(abs, entry.Name()),
			Name:         entry.Name(),
			IsDirectory:  entry.IsDir(),
			Supported:    !entry.IsDir() && format.IsSupported(entry.Name()),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format(time.RFC3339),
		})
	}
	sort.Slice(directories, func(i, j int) bool {
		if directories[i].IsDirectory != directories[j].IsDirectory {
			return directories[i].IsDirectory
		}
		return directories[i].Name < directories[j].Name
	})

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"path":    abs,
			"parent":  filepath.Dir(abs),
			"entries": directories,
		},
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// broadcastWSMessage sends a message to every client. Writes are
// serialized by wsMutex; gorilla connections allow one writer at a time.
func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

// sameOrigin accepts requests without an Origin header and those whose
// Origin host matches the Host they were sent to.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
