package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/audiolibrelab/mediactl/internal/media"
	"github.com/audiolibrelab/mediactl/internal/service"
)

// Server exposes a media service over HTTP
type Server struct {
	service service.Service
	port    string
}

// GenericResponse represents a generic API response
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OpenResponse is returned when a media handle is created
type OpenResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// ValueResponse carries a numeric query result
type ValueResponse struct {
	Success bool    `json:"success"`
	ID      string  `json:"id"`
	Value   float64 `json:"value"`
}

// ListResponse represents the JSON response for the media list
type ListResponse struct {
	Media []service.MediaStatus `json:"media"`
	Count int                   `json:"count"`
}

// StatusResponse represents the JSON response for the status endpoint
type StatusResponse struct {
	Bridge service.BridgeStatus `json:"bridge"`
}

// New creates a new web server instance
func New(svc service.Service, port string) *Server {
	return &Server{
		service: svc,
		port:    port,
	}
}

// Handler returns the routes of the control surface
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /events", s.handleEvents)

	mux.HandleFunc("POST /media", s.handleOpen)
	mux.HandleFunc("GET /media", s.handleList)
	mux.HandleFunc("POST /media/force-stop", s.handleForceStop)
	mux.HandleFunc("GET /media/{id}", s.handleMediaStatus)
	mux.HandleFunc("DELETE /media/{id}", s.handleRelease)

	// Playback
	mux.HandleFunc("POST /media/{id}/play", s.handlePlay)
	mux.HandleFunc("POST /media/{id}/pause", s.command("pause", s.service.Pause))
	mux.HandleFunc("POST /media/{id}/stop", s.command("stop", s.service.Stop))
	mux.HandleFunc("POST /media/{id}/seek", s.handleSeek)
	mux.HandleFunc("POST /media/{id}/volume", s.handleVolume)
	mux.HandleFunc("POST /media/{id}/rate", s.handleRate)
	mux.HandleFunc("GET /media/{id}/position", s.query("position", s.service.Position))

	// Recording
	mux.HandleFunc("POST /media/{id}/record/start", s.command("start recording", s.service.StartRecord))
	mux.HandleFunc("POST /media/{id}/record/stop", s.command("stop recording", s.service.StopRecord))
	mux.HandleFunc("POST /media/{id}/record/pause", s.command("pause recording", s.service.PauseRecord))
	mux.HandleFunc("POST /media/{id}/record/resume", s.command("resume recording", s.service.ResumeRecord))
	mux.HandleFunc("GET /media/{id}/amplitude", s.query("amplitude", s.service.Amplitude))

	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting media control server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", getLocalIP(), s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down media control server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	fmt.Fprint(w, endpointList)
}

const endpointList = `mediactl control server

GET    /status
GET    /events
POST   /media                      src
GET    /media
POST   /media/force-stop
GET    /media/{id}
DELETE /media/{id}
POST   /media/{id}/play            loops
POST   /media/{id}/pause
POST   /media/{id}/stop
POST   /media/{id}/seek            ms
POST   /media/{id}/volume          volume
POST   /media/{id}/rate            rate
GET    /media/{id}/position
POST   /media/{id}/record/start
POST   /media/{id}/record/stop
POST   /media/{id}/record/pause
POST   /media/{id}/record/resume
GET    /media/{id}/amplitude
`

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Bridge: s.service.GetBridgeStatus()})
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	params, err := requestParams(r)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "operation", "open")
		return
	}

	src := params.Get("src")
	if src == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "src is required", "operation", "open")
		return
	}

	id, err := s.service.Open(r.Context(), src)
	if err != nil {
		s.sendServiceError(w, fmt.Sprintf("Failed to open %s: %v", src, err), err, "operation", "open", "id", id)
		return
	}

	slog.Info("Media opened", "id", id, "src", src)
	writeJSON(w, http.StatusOK, OpenResponse{Success: true, ID: id})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	list := s.service.List()
	writeJSON(w, http.StatusOK, ListResponse{Media: list, Count: len(list)})
}

func (s *Server) handleMediaStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, err := s.service.Status(id)
	if err != nil {
		s.sendServiceError(w, err.Error(), err, "operation", "status", "id", id)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	s.command("release", s.service.Release)(w, r)
}

func (s *Server) handleForceStop(w http.ResponseWriter, r *http.Request) {
	s.service.ForceStop()
	slog.Info("All media force stopped")
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "All media stopped and released"})
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	params, err := requestParams(r)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "operation", "play")
		return
	}

	var opts media.PlayOptions
	if v := params.Get("loops"); v != "" {
		loops, err := strconv.Atoi(v)
		if err != nil || loops < 0 {
			s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid loops %q", v), "operation", "play")
			return
		}
		opts.NumberOfLoops = loops
	}
	if v := params.Get("when_locked"); v != "" {
		locked, err := strconv.ParseBool(v)
		if err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid when_locked %q", v), "operation", "play")
			return
		}
		opts.PlayAudioWhenScreenIsLocked = &locked
	}

	s.command("play", func(ctx context.Context, id string) error {
		return s.service.Play(ctx, id, opts)
	})(w, r)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	ms, ok := s.numberParam(w, r, "ms", "seek")
	if !ok {
		return
	}
	if math.IsNaN(ms) || ms < 0 || ms > math.MaxInt32 {
		s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("ms out of range: %v", ms), "operation", "seek")
		return
	}
	s.command("seek", func(ctx context.Context, id string) error {
		return s.service.SeekTo(ctx, id, int(ms))
	})(w, r)
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	volume, ok := s.numberParam(w, r, "volume", "volume")
	if !ok {
		return
	}
	s.command("volume", func(ctx context.Context, id string) error {
		return s.service.SetVolume(ctx, id, volume)
	})(w, r)
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	rate, ok := s.numberParam(w, r, "rate", "rate")
	if !ok {
		return
	}
	s.command("rate", func(ctx context.Context, id string) error {
		return s.service.SetRate(ctx, id, rate)
	})(w, r)
}

// handleEvents streams accepted status events as server-sent events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendErrorResponse(w, http.StatusInternalServerError, "Streaming not supported", "operation", "events")
		return
	}

	events, cancel := s.service.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	slog.Debug("Event stream opened", "remote", r.RemoteAddr)
	for {
		select {
		case <-r.Context().Done():
			slog.Debug("Event stream closed", "remote", r.RemoteAddr)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(eventPayload(ev))
			if err != nil {
				slog.Warn("Skipping unencodable status event", "id", ev.ID, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

type statusEvent struct {
	ID      string `json:"id"`
	MsgType int    `json:"msg_type"`
	Type    string `json:"type"`
	Value   any    `json:"value"`
}

func eventPayload(ev media.StatusEvent) statusEvent {
	return statusEvent{
		ID:      ev.ID,
		MsgType: int(ev.Type),
		Type:    ev.Type.String(),
		Value:   ev.Value,
	}
}

// command adapts a service call on the path id into a handler
func (s *Server) command(name string, fn func(ctx context.Context, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := fn(r.Context(), id); err != nil {
			s.sendServiceError(w, fmt.Sprintf("Failed to %s: %v", name, err), err, "operation", name, "id", id)
			return
		}
		slog.Debug("Media command completed", "operation", name, "id", id)
		writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: name + " ok"})
	}
}

func (s *Server) query(name string, fn func(ctx context.Context, id string) (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		v, err := fn(r.Context(), id)
		if err != nil {
			s.sendServiceError(w, fmt.Sprintf("Failed to get %s: %v", name, err), err, "operation", name, "id", id)
			return
		}
		writeJSON(w, http.StatusOK, ValueResponse{Success: true, ID: id, Value: v})
	}
}

func (s *Server) numberParam(w http.ResponseWriter, r *http.Request, name, operation string) (float64, bool) {
	params, err := requestParams(r)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "operation", operation)
		return 0, false
	}
	raw := params.Get(name)
	if raw == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, name+" is required", "operation", operation)
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid %s %q", name, raw), "operation", operation)
		return 0, false
	}
	return v, true
}

// requestParams reads form values, or a flat JSON object for JSON bodies
func requestParams(r *http.Request) (url.Values, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("failed to parse form: %w", err)
		}
		return r.Form, nil
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to parse JSON body: %w", err)
	}
	params := r.URL.Query()
	for k, v := range body {
		if v == nil {
			continue
		}
		params.Set(k, fmt.Sprint(v))
	}
	return params, nil
}

func statusCodeFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, media.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) sendServiceError(w http.ResponseWriter, errorMsg string, err error, logContext ...interface{}) {
	s.sendErrorResponse(w, statusCodeFor(err), errorMsg, logContext...)
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	writeJSON(w, statusCode, GenericResponse{Success: false, Error: errorMsg})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
