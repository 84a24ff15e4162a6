// Package server serves the issues RPC API and mounts the web UI.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/amonks/issues/api"
	"github.com/amonks/issues/auth"
	"github.com/amonks/issues/internal/logging"
	internalstrings "github.com/amonks/issues/internal/strings"
	"github.com/amonks/issues/store"
	"github.com/amonks/issues/web"
	"github.com/charmbracelet/log"
)

const shutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	Store  *store.Store
	Auth   *auth.Service
	Logger *log.Logger
}

// Server handles issue RPCs.
type Server struct {
	store  *store.Store
	auth   *auth.Service
	logger *log.Logger
}

// New creates a server.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{store: opts.Store, auth: opts.Auth, logger: logger}, nil
}

// Handler returns the HTTP handler for the API and web UI.
func (s *Server) Handler() http.Handler {
	return s.handler("")
}

func (s *Server) handler(baseURL string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(api.RouteSignUp, s.handleSignUp)
	mux.HandleFunc(api.RouteSignIn, s.handleSignIn)
	mux.HandleFunc(api.RouteSignOut, s.handleSignOut)
	mux.HandleFunc(api.RouteWhoAmI, s.handleWhoAmI)
	mux.HandleFunc(api.RouteList, s.handleList)
	mux.HandleFunc(api.RouteCreate, s.handleCreate)
	mux.HandleFunc(api.RouteUpdate, s.handleUpdate)
	mux.HandleFunc(api.RouteDelete, s.handleDelete)
	mux.HandleFunc(api.RouteSimilar, s.handleSimilar)
	mux.HandleFunc(api.RouteSubscribe, s.handleSubscribe)
	mux.HandleFunc(api.RouteImport, s.handleImport)
	mux.HandleFunc(api.RouteHealth, s.handleHealth)
	webHandler := web.NewHandler(web.Options{BaseURL: baseURL, Logger: s.logger.WithPrefix("web")})
	mux.Handle("/web/", webHandler)
	mux.Handle("/web", http.RedirectHandler("/web/issues", http.StatusFound))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/web/issues", http.StatusFound)
	})
	return s.recoverHandler(mux)
}

// Serve runs the server on addr until SIGINT or SIGTERM, then shuts down
// gracefully.
func (s *Server) Serve(addr string) error {
	// Cancelling baseCtx ends open subscription streams so Shutdown can
	// finish.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	server := &http.Server{
		Addr:              addr,
		Handler:           s.handler(resolveWebBaseURL(addr)),
		ErrorLog:          s.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	listenErrs := make(chan error, 1)
	go func() {
		listenErrs <- server.ListenAndServe()
	}()
	s.logger.Info("listening", "addr", addr)

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)

	select {
	case err := <-listenErrs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server stopped", "err", err)
			return err
		}
		return nil
	case sig := <-interrupts:
		s.logger.Info("shutting down", "signal", sig.String())
		cancelBase()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		shutdownErr := server.Shutdown(shutdownCtx)
		cancel()
		listenErr := <-listenErrs
		if errors.Is(listenErr, http.ErrServerClosed) {
			listenErr = nil
		}
		if errors.Is(shutdownErr, http.ErrServerClosed) {
			shutdownErr = nil
		}
		if err := errors.Join(shutdownErr, listenErr); err != nil {
			return err
		}
		return nil
	}
}

func resolveWebBaseURL(addr string) string {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return internalstrings.TrimTrailingSlash(trimmed)
	}
	host := trimmed
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	if strings.HasPrefix(host, "0.0.0.0:") {
		host = "127.0.0.1:" + strings.TrimPrefix(host, "0.0.0.0:")
	}
	return "http://" + host
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) recoverHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writer := &responseTracker{ResponseWriter: w}
		defer func() {
			if recovered := recover(); recovered != nil {
				s.logger.Error("panic handling request", "method", r.Method, "path", r.URL.Path, "panic", recovered, "stack", string(debug.Stack()))
				if writer.wroteHeader {
					return
				}
				writeJSON(writer, http.StatusInternalServerError, api.ErrorResponse{Error: "internal server error"})
			}
		}()
		next.ServeHTTP(writer, r)
	})
}

// identify returns the email behind the request's bearer token.
func (s *Server) identify(r *http.Request) (string, error) {
	token, ok := bearerToken(r)
	if !ok {
		return "", auth.ErrUnauthenticated
	}
	return s.auth.Identify(r.Context(), token)
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (s *Server) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	s.writeError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	return false
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	if decoder.More() {
		return fmt.Errorf("unexpected extra JSON data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.logRequestError(r, status, err)
	writeJSON(w, status, api.ErrorResponse{Error: err.Error()})
}

// writeStoreError reports err with the status its kind maps to.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status := api.StatusForError(err)
	if errors.Is(err, store.ErrPermissionDenied) {
		status = http.StatusForbidden
	}
	s.writeError(w, r, status, err)
}

func (s *Server) logRequestError(r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
		return
	}
	s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
}

type responseTracker struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *responseTracker) WriteHeader(status int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseTracker) Write(data []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(data)
}

func (w *responseTracker) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseTracker) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
