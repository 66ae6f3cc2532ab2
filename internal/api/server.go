// Package api serves a read-only operator view of the running engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"spread-trading/internal/book"
	"spread-trading/internal/catalog"
	"spread-trading/internal/store"
)

type Options struct {
	// Status returns the current runtime status, usually engine.Runner.Status.
	Status         func() store.RuntimeStatus
	Catalog        catalog.Catalog
	Book           *book.TradeHistory
	Metrics        http.Handler
	Hub            *Hub
	AllowedOrigins []string
	Log            *zap.SugaredLogger
}

type Server struct {
	opts   Options
	log    *zap.SugaredLogger
	router *mux.Router
}

type assetView struct {
	Symbol     string          `json:"symbol"`
	Buy        decimal.Decimal `json:"buy"`
	Sell       decimal.Decimal `json:"sell"`
	Quantity   decimal.Decimal `json:"quantity"`
	TradeLimit int             `json:"trade_limit"`
	Open       book.Counts     `json:"open"`
}

type ordersView struct {
	Symbol   string                     `json:"symbol"`
	Buy      []book.Record              `json:"buy"`
	Sell     []book.Record              `json:"sell"`
	Deferred map[string]decimal.Decimal `json:"deferred,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewServer(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{opts: opts, log: log, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/assets", s.handleAssets).Methods(http.MethodGet)
	v1.HandleFunc("/assets/{symbol}/orders", s.handleOrders).Methods(http.MethodGet)
	if s.opts.Metrics != nil {
		s.router.Handle("/metrics", s.opts.Metrics).Methods(http.MethodGet)
	}
	if s.opts.Hub != nil {
		s.router.HandleFunc("/ws", s.opts.Hub.ServeWS)
	}
}

// Handler returns the router wrapped in the CORS policy.
func (s *Server) Handler() http.Handler {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// ListenAndServe blocks until ctx is done or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("api_listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warnw("api_shutdown_failed", "err", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Status == nil {
		respondError(w, http.StatusServiceUnavailable, "status unavailable")
		return
	}
	respondJSON(w, http.StatusOK, s.opts.Status())
}

func (s *Server) handleAssets(w http.ResponseWriter, _ *http.Request) {
	out := make([]assetView, 0, s.opts.Catalog.Len())
	for _, e := range s.opts.Catalog.Assets {
		v := assetView{Symbol: e.Symbol, Buy: e.Buy, Sell: e.Sell, Quantity: e.Quantity, TradeLimit: e.TradeLimit}
		if s.opts.Book != nil {
			v.Open, _ = s.opts.Book.Counts(e.Symbol)
		}
		out = append(out, v)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToLower(mux.Vars(r)["symbol"])
	if _, ok := s.opts.Catalog.Get(symbol); !ok || s.opts.Book == nil {
		respondError(w, http.StatusNotFound, "unknown asset "+symbol)
		return
	}
	as, ok := s.opts.Book.Snapshot(time.Now()).Assets[symbol]
	if !ok {
		respondError(w, http.StatusNotFound, "unknown asset "+symbol)
		return
	}
	respondJSON(w, http.StatusOK, ordersView{Symbol: symbol, Buy: as.Buy, Sell: as.Sell, Deferred: as.Deferred})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}
