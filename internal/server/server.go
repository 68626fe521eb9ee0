// Package server exposes a capture session over HTTP and a WebSocket so a
// browser can drive it and preview stills.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/offlinefirst/framegrab/pkg/capture"
	"github.com/offlinefirst/framegrab/pkg/elapsed"
	"github.com/offlinefirst/framegrab/pkg/logging"
	"github.com/offlinefirst/framegrab/pkg/output"
)

const shutdownTimeout = 5 * time.Second

// Controller is the part of *capture.Controller the server drives.
type Controller interface {
	RequestCapture(ctx context.Context, req capture.Request) error
	CaptureNow(ctx context.Context, delay time.Duration) error
	CancelDelay(ctx context.Context) error
	Stop(ctx context.Context) error
	Snapshot(ctx context.Context) (capture.Snapshot, error)
}

// Blobs retains screenshot images so they can be served by id.
type Blobs interface {
	Handle(ev capture.Event) (output.Blob, bool)
	Store() *output.Store
}

type Options struct {
	Controller     Controller
	Blobs          Blobs
	Logger         *slog.Logger
	AllowedOrigins []string
	Request        capture.Request
}

type Server struct {
	ctrl           Controller
	blobs          Blobs
	logger         *slog.Logger
	broadcaster    *Broadcaster
	request        capture.Request
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.Component(logger, "server")
	s := &Server{
		ctrl:           opts.Controller,
		blobs:          opts.Blobs,
		logger:         logger,
		broadcaster:    NewBroadcaster(logger),
		request:        opts.Request,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}
	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	return s
}

// Broadcaster exposes the socket fan-out.
func (s *Server) Broadcaster() *Broadcaster { return s.broadcaster }

// Listener converts controller events into socket messages. Screenshot
// events are retained in Blobs first so the message can carry a URL.
func (s *Server) Listener() capture.Listener {
	return func(ev capture.Event) {
		var blob output.Blob
		if ev.Kind == capture.EventScreenshot && s.blobs != nil {
			blob, _ = s.blobs.Handle(ev)
		}
		msg, ok := eventMessage(ev, blob)
		if !ok {
			return
		}
		s.broadcaster.Broadcast(msg)
	}
}

// OnSaved reports finished downloads to clients.
func (s *Server) OnSaved(saved output.Saved) {
	s.broadcaster.Broadcast(savedMessage(saved))
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /api/command", s.handleCommand)
	mux.HandleFunc("GET /blobs/{id}", s.handleBlob)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		s.broadcaster.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.broadcaster.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errCh
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", logging.KeyError, err)
		return
	}

	s.logger.Info("ws client connected", "remote", r.RemoteAddr)
	c := s.broadcaster.AddClient(conn)
	if snap, err := s.ctrl.Snapshot(r.Context()); err == nil {
		s.broadcaster.SendTo(c, snapshotMessage(snap))
	}

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			s.logger.Info("ws client disconnected", "remote", r.RemoteAddr)
		}()
		ctx := context.Background()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd Command
			if err := json.Unmarshal(data, &cmd); err != nil {
				s.broadcaster.SendTo(c, WSMessage{Type: MsgError, Payload: ErrorPayload{Message: "invalid command"}})
				continue
			}
			// start blocks until the prompt resolves; keep reading so a
			// stop can cancel it.
			if cmd.Type == CmdStart {
				go s.reply(ctx, c, cmd)
				continue
			}
			s.reply(ctx, c, cmd)
		}
	}()
}

func (s *Server) reply(ctx context.Context, c *client, cmd Command) {
	if err := s.dispatch(ctx, cmd); err != nil && !surfaced(err) {
		s.broadcaster.SendTo(c, WSMessage{Type: MsgError, Payload: ErrorPayload{Command: cmd.Type, Message: err.Error()}})
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctrl.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshotMessage(snap).Payload)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd Command
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&cmd); err != nil {
		http.Error(w, "invalid command", http.StatusBadRequest)
		return
	}
	err := s.dispatch(r.Context(), cmd)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, errUnknownCommand), errors.Is(err, capture.ErrInvalidDelay):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case surfaced(err):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusConflict)
	}
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil {
		http.NotFound(w, r)
		return
	}
	blob, ok := s.blobs.Store().Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "blob released", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", blob.MIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", blob.Filename))
	w.Header().Set("Cache-Control", "no-store")
	w.Write(blob.Data)
}

var errUnknownCommand = errors.New("unknown command")

func (s *Server) dispatch(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case CmdStart:
		return s.ctrl.RequestCapture(ctx, s.request)
	case CmdScreenshot:
		delay, err := capture.DelayFromSeconds(cmd.Delay)
		if err != nil {
			return err
		}
		return s.ctrl.CaptureNow(ctx, delay)
	case CmdStop:
		return s.ctrl.Stop(ctx)
	case CmdCancelDelay:
		return s.ctrl.CancelDelay(ctx)
	}
	return fmt.Errorf("%w %q", errUnknownCommand, cmd.Type)
}

// surfaced reports errors the controller already broadcast as a status.
func surfaced(err error) bool {
	var acquireErr *capture.AcquireError
	return errors.As(err, &acquireErr)
}

func snapshotMessage(snap capture.Snapshot) WSMessage {
	return WSMessage{Type: MsgSnapshot, Payload: SnapshotPayload{
		Snapshot:       snap,
		ElapsedDisplay: elapsed.Format(snap.Elapsed),
	}}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Hostname()
	if parsed.Host == r.Host {
		return true
	}
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
