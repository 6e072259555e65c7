package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/aegisd/aegis/internal/bus"
	"github.com/aegisd/aegis/internal/config"
	"github.com/aegisd/aegis/internal/gate"
	"github.com/aegisd/aegis/internal/suspend"
	"github.com/aegisd/aegis/internal/version"
)

// Authorizer is the slice of the gate the HTTP API exposes.
type Authorizer interface {
	Authorize(ctx context.Context, conversationID, principal string, calls []schema.ToolCall) (gate.BatchResult, error)
	Resume(ctx context.Context, input gate.ResumeInput) (gate.BatchResult, error)
}

// SuspensionReader lists and fetches suspensions for review endpoints.
type SuspensionReader interface {
	Get(id string) (suspend.Record, error)
	List(query suspend.Query) ([]suspend.Record, error)
}

type Server struct {
	cfg        config.GatewayConfig
	authorizer Authorizer
	store      SuspensionReader
	httpServer *http.Server
}

func New(cfg config.GatewayConfig, authorizer Authorizer, store SuspensionReader) *Server {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := cfg.Port
	if port <= 0 {
		port = 18890
	}

	cfg.Host = host
	cfg.Port = port
	return &Server{
		cfg:        cfg,
		authorizer: authorizer,
		store:      store,
	}
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Server) Start() error {
	mux := NewHandler(s.cfg.Token, s.authorizer, s.store)
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("gateway listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// NewHandler builds the gateway routes.
func NewHandler(token string, authorizer Authorizer, store SuspensionReader) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"request_id": requestID,
		})
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version":    version.Version,
			"request_id": requestID,
		})
	})

	mux.HandleFunc("/v1/batches", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodPost {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		if !authorized(r, token) {
			writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		if authorizer == nil {
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "gate is not configured")
			return
		}

		var req struct {
			ConversationID string            `json:"conversation_id"`
			Principal      string            `json:"principal"`
			Calls          []schema.ToolCall `json:"calls"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
			return
		}
		if strings.TrimSpace(req.ConversationID) == "" {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "conversation_id is required")
			return
		}
		if len(req.Calls) == 0 {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "calls must not be empty")
			return
		}

		ctx := bus.WithRequestID(r.Context(), requestID)
		result, err := authorizer.Authorize(ctx, req.ConversationID, req.Principal, req.Calls)
		if err != nil {
			if errors.Is(err, gate.ErrSuspensionOutstanding) {
				writeError(w, requestID, http.StatusConflict, "suspension_outstanding", err.Error())
				return
			}
			slog.Error("batch authorization failed", "request_id", requestID, "conversation_id", req.ConversationID, "error", err)
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "failed to authorize batch")
			return
		}

		status := http.StatusOK
		if result.Suspended {
			status = http.StatusAccepted
		}
		writeJSON(w, status, map[string]any{
			"batch":      result,
			"request_id": requestID,
		})
	})

	mux.HandleFunc("/v1/suspensions", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		if !authorized(r, token) {
			writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		if store == nil {
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "suspension store is not configured")
			return
		}

		query := suspend.Query{
			ConversationID: strings.TrimSpace(r.URL.Query().Get("conversation_id")),
			Status:         suspend.Status(strings.TrimSpace(r.URL.Query().Get("status"))),
		}
		records, err := store.List(query)
		if err != nil {
			slog.Error("listing suspensions failed", "request_id", requestID, "error", err)
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "failed to list suspensions")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"suspensions": records,
			"request_id":  requestID,
		})
	})

	mux.HandleFunc("/v1/suspensions/", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !authorized(r, token) {
			writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}

		id, action := splitSuspensionPath(r.URL.Path)
		if id == "" {
			writeError(w, requestID, http.StatusNotFound, "not_found", "suspension id is required")
			return
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			if store == nil {
				writeError(w, requestID, http.StatusInternalServerError, "internal_error", "suspension store is not configured")
				return
			}
			rec, err := store.Get(id)
			if err != nil {
				writeError(w, requestID, http.StatusNotFound, "not_found", err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"suspension": rec,
				"request_id": requestID,
			})

		case action == "decisions" && r.Method == http.MethodPost:
			if authorizer == nil {
				writeError(w, requestID, http.StatusInternalServerError, "internal_error", "gate is not configured")
				return
			}
			var input gate.ResumeInput
			if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
				writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
				return
			}
			input.SuspensionID = id

			ctx := bus.WithRequestID(r.Context(), requestID)
			result, err := authorizer.Resume(ctx, input)
			if err != nil {
				switch {
				case errors.Is(err, suspend.ErrNotFound):
					writeError(w, requestID, http.StatusNotFound, "not_found", err.Error())
				case errors.Is(err, suspend.ErrNotPending):
					writeError(w, requestID, http.StatusConflict, "not_pending", err.Error())
				default:
					slog.Error("resume failed", "request_id", requestID, "suspension_id", id, "error", err)
					writeError(w, requestID, http.StatusInternalServerError, "internal_error", "failed to resume suspension")
				}
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"batch":      result,
				"request_id": requestID,
			})

		default:
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		}
	})

	return mux
}

func splitSuspensionPath(path string) (id, action string) {
	rest := strings.TrimPrefix(path, "/v1/suspensions/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	id = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		action = strings.TrimSpace(parts[1])
	}
	return id, action
}

func authorized(r *http.Request, expected string) bool {
	if strings.TrimSpace(expected) == "" {
		return true
	}
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	if got == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(got, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(got, prefix))
	return token == expected
}

func getRequestID(r *http.Request) string {
	rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if rid != "" {
		return rid
	}
	return uuid.NewString()
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":       code,
		"message":    message,
		"request_id": requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
