// Package carriertest provides an in-process fake of the carrier CDR API.
package carriertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

const Token = "tok-123"

// Server serves login, export, poll, download and DID endpoints. Exports
// become ready after PendingPolls poll requests. A non-zero LoginStatus,
// ExportStatus or PollStatus makes that endpoint answer with the status.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	Records      []map[string]any
	DIDs         []map[string]any
	PendingPolls int
	NeverReady   bool
	LoginStatus  int
	ExportStatus int
	PollStatus   int
	PollBody     string

	polls        int
	exports      []map[string]string
	AuthHeaders  []string
	downloadHits int
}

func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", s.login)
	mux.HandleFunc("/api/cdr/", s.cdr)
	mux.HandleFunc("/api/dids/", s.dids)
	mux.HandleFunc("/files/", s.download)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) LoginURL() string { return s.URL + "/api/login" }
func (s *Server) CDRURL() string   { return s.URL + "/api/cdr/" }
func (s *Server) DIDURL() string   { return s.URL + "/api/dids/" }

func (s *Server) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func (s *Server) Downloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloadHits
}

// Exports returns the bodies of every export request received.
func (s *Server) Exports() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.exports...)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.LoginStatus
	s.mu.Unlock()
	if status != 0 {
		http.Error(w, "bad credentials", status)
		return
	}
	writeJSON(w, map[string]string{"token": Token})
}

func (s *Server) cdr(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AuthHeaders = append(s.AuthHeaders, r.Header.Get("Authorization"))
	if r.Header.Get("Authorization") != "Token "+Token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.exports = append(s.exports, body)
		if s.ExportStatus != 0 {
			http.Error(w, "export rejected", s.ExportStatus)
			return
		}
		writeJSON(w, map[string]string{"file_reference": "ref-1"})
	case http.MethodGet:
		s.polls++
		if s.PollStatus != 0 {
			http.Error(w, "export list unavailable", s.PollStatus)
			return
		}
		if s.PollBody != "" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(s.PollBody))
			return
		}
		entry := map[string]any{"file_reference": "ref-1", "file_status": 1, "download_link": ""}
		if !s.NeverReady && s.polls > s.PendingPolls {
			entry["file_status"] = 2
			entry["download_link"] = "/files/ref-1.json"
		}
		writeJSON(w, []any{
			map[string]any{"file_reference": "other", "file_status": 2, "download_link": "/files/other.json"},
			entry,
		})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) dids(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, s.DIDs)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloadHits++
	if s.Records == nil {
		writeJSON(w, []any{})
		return
	}
	writeJSON(w, s.Records)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
