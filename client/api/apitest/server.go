// Package apitest provides a scriptable in-process background-removal
// service for tests.
package apitest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"go.uber.org/zap"

	"idPhoto/client/dto"
	"idPhoto/client/middleware"
)

const (
	Username = "test_user"
	Password = "test_password"
)

// Server counts every call and answers according to its script fields.
// Script fields must be set before the first request.
type Server struct {
	*httptest.Server

	// Statuses is returned in order by status queries; the last entry repeats.
	Statuses []string
	// FailReason is reported alongside a "failed" status.
	FailReason string
	// Result is the body served by the result endpoint.
	Result []byte
	// LoginStatus, SubmitStatus and ResultStatus force an error status when non-zero.
	LoginStatus  int
	SubmitStatus int
	ResultStatus int
	// StatusCodes forces an error status on the n-th (1-based) status query.
	StatusCodes map[int]int
	Presets     []dto.PresetResponse

	mu          sync.Mutex
	logger      *zap.Logger
	tokens      map[string]bool
	loginCalls  int
	submitCalls int
	statusCalls int
	resultCalls int
	lastConfig  string
	traceIDs    []string
}

func NewServer(logger *zap.Logger) *Server {
	s := &Server{
		Statuses: []string{"completed"},
		logger:   logger,
		tokens:   make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth", s.login)
	mux.HandleFunc("POST /background/remove", s.submit)
	mux.HandleFunc("GET /background/status/{id}", s.status)
	mux.HandleFunc("GET /background/result/{id}", s.result)
	mux.HandleFunc("GET /background-configs", s.listPresets)
	mux.HandleFunc("GET /background-configs/{id}", s.getPreset)

	s.Server = httptest.NewServer(mux)
	return s
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.loginCalls++
	n := s.loginCalls
	forced := s.LoginStatus
	s.mu.Unlock()

	if forced != 0 {
		s.handleError(w, r, "Login rejected", nil, forced)
		return
	}

	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.handleError(w, r, "Invalid login body", err, http.StatusBadRequest)
		return
	}
	if req.Username != Username || req.Password != Password {
		s.handleError(w, r, "Invalid credentials", nil, http.StatusUnauthorized)
		return
	}

	token := fmt.Sprintf("token-%d", n)
	s.mu.Lock()
	s.tokens[token] = true
	s.mu.Unlock()

	s.respondJSON(w, http.StatusOK, dto.LoginResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	s.record(r, &s.submitCalls)
	if !s.authorized(w, r) {
		return
	}
	if code := s.SubmitStatus; code != 0 {
		s.handleError(w, r, "Submit rejected", nil, code)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.handleError(w, r, "Failed to parse form", err, http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.handleError(w, r, "Failed to get file", err, http.StatusBadRequest)
		return
	}
	file.Close()

	s.mu.Lock()
	s.lastConfig = r.URL.Query().Get("config_id")
	s.mu.Unlock()

	s.logger.Info("File uploaded",
		zap.String("trace_id", r.Header.Get(middleware.TraceIDHeader)),
		zap.String("filename", header.Filename),
	)
	s.respondJSON(w, http.StatusOK, dto.SubmitResponse{TaskID: "task-1", Message: "Task submitted successfully"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	n := s.record(r, &s.statusCalls)
	if !s.authorized(w, r) {
		return
	}
	if code, ok := s.StatusCodes[n]; ok {
		s.handleError(w, r, "Status query rejected", nil, code)
		return
	}

	idx := n - 1
	if idx >= len(s.Statuses) {
		idx = len(s.Statuses) - 1
	}
	resp := dto.StatusResponse{TaskID: r.PathValue("id"), Status: s.Statuses[idx]}
	if resp.Status == "failed" && s.FailReason != "" {
		reason := s.FailReason
		resp.Error = &reason
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) result(w http.ResponseWriter, r *http.Request) {
	s.record(r, &s.resultCalls)
	if !s.authorized(w, r) {
		return
	}
	if code := s.ResultStatus; code != 0 {
		s.handleError(w, r, "Result rejected", nil, code)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(s.Result)
}

func (s *Server) listPresets(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	s.respondJSON(w, http.StatusOK, s.Presets)
}

func (s *Server) getPreset(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	for _, p := range s.Presets {
		if fmt.Sprint(p.ID) == r.PathValue("id") {
			s.respondJSON(w, http.StatusOK, p)
			return
		}
	}
	s.handleError(w, r, "Preset not found", errors.New("no such preset"), http.StatusNotFound)
}

func (s *Server) record(r *http.Request, counter *int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	*counter++
	s.traceIDs = append(s.traceIDs, r.Header.Get(middleware.TraceIDHeader))
	return *counter
}

func (s *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	ok := s.tokens[token]
	s.mu.Unlock()

	if !ok {
		s.handleError(w, r, "Not authenticated", nil, http.StatusUnauthorized)
	}
	return ok
}

// RevokeAll invalidates every issued token.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]bool)
}

// IssueToken registers token as valid without a login call.
func (s *Server) IssueToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = true
}

func (s *Server) LoginCalls() int  { return s.count(&s.loginCalls) }
func (s *Server) SubmitCalls() int { return s.count(&s.submitCalls) }
func (s *Server) StatusCalls() int { return s.count(&s.statusCalls) }
func (s *Server) ResultCalls() int { return s.count(&s.resultCalls) }

// LastConfigID returns the config_id query value of the latest submission.
func (s *Server) LastConfigID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastConfig
}

// TraceIDs returns the X-Trace-ID header of every authorized-endpoint call.
func (s *Server) TraceIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.traceIDs...)
}

func (s *Server) count(p *int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *p
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, message string, err error, status int) {
	s.logger.Debug(message,
		zap.String("trace_id", r.Header.Get(middleware.TraceIDHeader)),
		zap.Int("status", status),
		zap.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{Error: message})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
