// Package adminapi exposes the thin, read-only HTTP/JSON surface over
// the order book: snapshot reads for the admin UI and a health probe.
// It never mutates the book.
package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/Demiserular/crucible-exchange/internal/matching"
)

// Logger is the narrow slice of structured logging the server needs,
// satisfied by *zap.SugaredLogger.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Infow(string, ...interface{}) {}

// Server is the admin HTTP server.
type Server struct {
	book   *matching.OrderBook
	router *mux.Router
	log    Logger
}

// NewServer builds a Server reading from book. wsHandler, if non-nil,
// is mounted at /ws — the browser push channel for book and execution
// events; passing nil omits the route entirely. A nil logger installs
// a no-op.
func NewServer(book *matching.OrderBook, wsHandler http.Handler, log Logger) *Server {
	if log == nil {
		log = noopLogger{}
	}
	s := &Server{book: book, router: mux.NewRouter(), log: log}
	s.setupRoutes(wsHandler)
	return s
}

func (s *Server) setupRoutes(wsHandler http.Handler) {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/book/{symbol}", s.handleBook).Methods("GET")
	api.HandleFunc("/executions/{symbol}", s.handleExecutions).Methods("GET")
	if wsHandler != nil {
		s.router.Handle("/ws", wsHandler)
	}
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped router, ready to pass to
// http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// ListenAndServe starts the admin server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.log.Infow("admin api listening", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

type bookView struct {
	Symbol string           `json:"symbol"`
	Bids   []matching.Order `json:"bids"`
	Asks   []matching.Order `json:"asks"`
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	snap := s.book.Snapshot(symbol)
	respondJSON(w, http.StatusOK, bookView{Symbol: snap.Symbol, Bids: snap.Bids, Asks: snap.Asks})
}

type executionsView struct {
	Symbol     string               `json:"symbol"`
	Executions []matching.Execution `json:"executions"`
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	snap := s.book.Snapshot(symbol)
	respondJSON(w, http.StatusOK, executionsView{Symbol: snap.Symbol, Executions: snap.Executions})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
