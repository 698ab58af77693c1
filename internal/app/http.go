package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"padlink/api/internal/auth"
	"padlink/api/internal/etherpad"
)

const (
	errorOrigin  = "padlink"
	maxBodyBytes = 1 << 20
	readyTimeout = 5 * time.Second
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
	schemas    *requestSchemas
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		logger:     logger.Named("http"),
		schemas:    mustCompileSchemas(),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/ready" {
		s.handleReady(w, r)
		return
	}

	parts := splitPath(r.URL.Path)

	// Public read-only access, no member required.
	if r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "etherpad" && parts[1] == "read" {
		s.handlePublicRead(w, r, parts[2])
		return
	}

	if len(parts) == 0 || (parts[0] != "etherpad" && parts[0] != "items") {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	member, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	switch {
	case parts[0] == "etherpad" && len(parts) == 2 && parts[1] == "create":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		s.handleCreate(w, r, member)
	case parts[0] == "etherpad" && len(parts) == 3 && parts[1] == "view":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		s.handleView(w, r, member, parts[2])
	case parts[0] == "items" && len(parts) == 2:
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		s.handleDeleteItem(w, r, member, parts[1])
	case parts[0] == "items" && len(parts) == 3 && parts[2] == "copy":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		s.handleCopyItem(w, r, member, parts[1])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
		"etherpad": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	if err := s.service.PingEtherpad(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["etherpad"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleCreate(w http.ResponseWriter, r *http.Request, member auth.Member) {
	if err := validateQuery(s.schemas.createQuery, r.URL.Query()); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid query string", err.Error())
		return
	}
	raw, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := validateBody(s.schemas.createBody, raw); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid body", err.Error())
		return
	}
	var body struct {
		Name     string `json:"name"`
		InitHTML string `json:"initHtml"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
		return
	}

	item, err := s.service.CreateEtherpadItem(r.Context(), member, body.Name, r.URL.Query().Get("parentId"), body.InitHTML)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleView(w http.ResponseWriter, r *http.Request, member auth.Member, itemID string) {
	if err := validateParams(s.schemas.itemParams, map[string]string{"itemId": itemID}); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid item id", err.Error())
		return
	}
	if err := validateQuery(s.schemas.viewQuery, r.URL.Query()); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid query string", err.Error())
		return
	}

	access, err := s.service.GetEtherpadFromItem(r.Context(), member, itemID, ParseMode(r.URL.Query().Get("mode")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if access.Cookie != nil {
		http.SetCookie(w, access.Cookie.HTTPCookie())
	}
	writeJSON(w, http.StatusOK, access)
}

func (s *HTTPServer) handlePublicRead(w http.ResponseWriter, r *http.Request, itemID string) {
	if err := validateParams(s.schemas.itemParams, map[string]string{"itemId": itemID}); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid item id", err.Error())
		return
	}
	access, err := s.service.GetPublicEtherpad(r.Context(), itemID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, access)
}

func (s *HTTPServer) handleDeleteItem(w http.ResponseWriter, r *http.Request, member auth.Member, itemID string) {
	if err := validateParams(s.schemas.itemParams, map[string]string{"itemId": itemID}); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid item id", err.Error())
		return
	}
	deleted, err := s.service.DeleteItem(r.Context(), member, itemID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": len(deleted)})
}

func (s *HTTPServer) handleCopyItem(w http.ResponseWriter, r *http.Request, member auth.Member, itemID string) {
	if err := validateParams(s.schemas.itemParams, map[string]string{"itemId": itemID}); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid item id", err.Error())
		return
	}
	if err := validateQuery(s.schemas.createQuery, r.URL.Query()); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid query string", err.Error())
		return
	}
	item, err := s.service.CopyItem(r.Context(), member, itemID, r.URL.Query().Get("parentId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) requireMember(w http.ResponseWriter, r *http.Request) (auth.Member, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return auth.Member{}, false
	}
	member, err := s.service.MemberFromToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return auth.Member{}, false
	}
	return member, true
}

// fail writes the response for err and logs server-side failures.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.String("code", code),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Duration("duration", time.Since(started)),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	if corsOrigin != "*" {
		// The session cookie only reaches the browser on credentialed requests.
		header.Set("Access-Control-Allow-Credentials", "true")
	}
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":       code,
		"message":    message,
		"origin":     errorOrigin,
		"statusCode": status,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, fmt.Errorf("missing JSON body")
	}
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(raw) > maxBodyBytes {
		return nil, fmt.Errorf("body too large")
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, fmt.Errorf("missing JSON body")
	}
	return raw, nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if etherpad.IsServerError(err) {
		d := errEtherpadServer(err)
		return d.Status, d.Code, d.Message, nil
	}
	if errors.Is(err, ErrIllegalState) {
		return http.StatusInternalServerError, "ILLEGAL_STATE", err.Error(), nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
