// Package etherpadtest runs an in-process fake Etherpad API for tests.
package etherpadtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"padlink/api/internal/etherpad"
)

const APIKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// Reply is the canned response of one API method.
type Reply struct {
	Status int
	Code   int
	// Message defaults to "ok" for code 0.
	Message string
	Data    any
}

// OK builds a successful reply carrying data.
func OK(data any) Reply {
	return Reply{Status: http.StatusOK, Code: etherpad.CodeOK, Message: "ok", Data: data}
}

// Fail builds an application-level error reply.
func Fail(message string) Reply {
	return Reply{Status: http.StatusOK, Code: etherpad.CodeWrongParams, Message: message}
}

// HTTPStatus builds a transport-level failure with an empty body.
func HTTPStatus(status int) Reply {
	return Reply{Status: status}
}

// Call records one request received by the fake server.
type Call struct {
	Method string
	Params url.Values
}

type Server struct {
	*httptest.Server

	mu      sync.Mutex
	replies map[string]func(url.Values) Reply
	calls   []Call
}

// New starts a fake server which is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{replies: map[string]func(url.Values) Reply{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Client returns an etherpad client pointed at the fake server.
func (s *Server) Client() *etherpad.Client {
	return etherpad.New(etherpad.Options{BaseURL: s.URL, APIKey: APIKey})
}

// Reply registers a fixed reply for method.
func (s *Server) Reply(method string, reply Reply) {
	s.Handle(method, func(url.Values) Reply { return reply })
}

// Handle registers a dynamic reply for method.
func (s *Server) Handle(method string, fn func(url.Values) Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[method] = fn
}

// Calls returns every call received so far, in order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the parameters of every call to method.
func (s *Server) CallsTo(method string) []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	var params []url.Values
	for _, call := range s.calls {
		if call.Method == method {
			params = append(params, call.Params)
		}
	}
	return params
}

// Last returns the parameters of the last call to method, or nil.
func (s *Server) Last(method string) url.Values {
	calls := s.CallsTo(method)
	if len(calls) == 0 {
		return nil
	}
	return calls[len(calls)-1]
}

// Methods returns the names of the methods called so far, in order.
func (s *Server) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	methods := make([]string, 0, len(s.calls))
	for _, call := range s.calls {
		methods = append(methods, call.Method)
	}
	return methods
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "api" {
		http.NotFound(w, r)
		return
	}
	method := parts[2]
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	params := url.Values{}
	for key, values := range r.Form {
		params[key] = values
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: method, Params: params})
	fn, ok := s.replies[method]
	s.mu.Unlock()

	if params.Get("apikey") != APIKey {
		writeReply(w, Reply{Status: http.StatusUnauthorized, Code: etherpad.CodeWrongAPIKey, Message: "no or wrong API Key"})
		return
	}
	if !ok {
		writeReply(w, Reply{Status: http.StatusNotFound, Code: etherpad.CodeNoSuchFunc, Message: "no such function"})
		return
	}
	writeReply(w, fn(params))
}

func writeReply(w http.ResponseWriter, reply Reply) {
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	if reply.Message == "" && reply.Code == etherpad.CodeOK && reply.Data == nil && status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	message := reply.Message
	if message == "" && reply.Code == etherpad.CodeOK {
		message = "ok"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    reply.Code,
		"message": message,
		"data":    reply.Data,
	})
}
