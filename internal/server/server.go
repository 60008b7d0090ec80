package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"okey/internal/history"
	"okey/internal/room"
	"okey/internal/session"
)

// HistorySource serves the journal.
type HistorySource interface {
	History(code string) ([]history.Entry, error)
	Rooms(status string) ([]history.RoomRecord, error)
}

// Server is the HTTP server.
type Server struct {
	router   chi.Router
	registry *room.Registry
	sessions *session.Manager
	history  HistorySource
	log      *zap.Logger
}

// New creates a server with all routes. hist may be nil, in which case the
// history endpoints report 404.
func New(registry *room.Registry, sessions *session.Manager, hist HistorySource, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		router:   chi.NewRouter(),
		registry: registry,
		sessions: sessions,
		history:  hist,
		log:      log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.log))
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/ws", s.handleWebSocket)
	s.router.Route("/api/rooms", func(r chi.Router) {
		r.Get("/", s.handleListRooms)
		r.Get("/{code}", s.handleGetRoom)
		r.Get("/{code}/history", s.handleRoomHistory)
	})
	s.router.Get("/api/history/rooms", s.handleJournaledRooms)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type healthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Rooms:       len(s.registry.List()),
		Connections: s.sessions.Count(),
	})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	pub, err := s.registry.Public(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pub)
}

func (s *Server) handleRoomHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, errorPayload{Code: "HISTORY_DISABLED", Message: "history is not recorded"})
		return
	}
	entries, err := s.history.History(chi.URLParam(r, "code"))
	if err != nil {
		s.log.Error("read history", zap.String("room", chi.URLParam(r, "code")), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleJournaledRooms lists rooms from the journal, closed ones included.
// ?status= filters by state.
func (s *Server) handleJournaledRooms(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, errorPayload{Code: "HISTORY_DISABLED", Message: "history is not recorded"})
		return
	}
	rooms, err := s.history.Rooms(r.URL.Query().Get("status"))
	if errors.Is(err, history.ErrUnknownStatus) {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}
	if err != nil {
		s.log.Error("list journaled rooms", zap.Error(err))
		writeError(w, err)
		return
	}
	if rooms == nil {
		rooms = []history.RoomRecord{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, room.ErrRoomNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, errorPayload{Code: room.Code(err), Message: err.Error()})
}

// requestLogger logs one line per request once the handler returns.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
