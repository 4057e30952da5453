package daemon

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"
)

// authHeader is the fixed header carrying the control-server token (spec §4.6).
const authHeader = "x-touchgrass-auth"

// EventSink dispatches the generic "CLI -> daemon" event routes
// (/remote/:id/{tool-call,tool-result,approval-needed,question,thinking,
// assistant,typing,background-job}, spec §4.6) to whatever owns chat
// delivery, the status board, and the activity log. Kept as an interface so
// this package never needs to import the command router or chat bridge.
type EventSink interface {
	OnSessionEvent(sessionID, kind string, body []byte) (any, error)
}

// ChannelLister answers GET /channels; nil disables the route (empty list).
type ChannelLister interface {
	ListChannels() (any, error)
}

// CodeGenerator answers POST /generate-code; nil disables the route.
type CodeGenerator interface {
	GenerateCode() (any, error)
}

// Server is the authenticated control HTTP server (spec §4.6): one
// net/http.ServeMux served over a UNIX socket and/or localhost TCP.
type Server struct {
	Manager   *Manager
	AuthToken string
	StartedAt time.Time

	Events   EventSink
	Channels ChannelLister
	Codes    CodeGenerator
	Camp     *CampRegistry

	// OnShutdown is invoked after the /shutdown response is written and
	// before the server closes its listeners.
	OnShutdown func()

	mux *http.ServeMux
}

func (s *Server) handler() http.Handler {
	if s.mux != nil {
		return s.withAuth(s.mux)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
	mux.HandleFunc("POST /generate-code", s.handleGenerateCode)
	mux.HandleFunc("GET /channels", s.handleChannels)
	mux.HandleFunc("POST /camp/register", s.handleCampRegister)
	mux.HandleFunc("GET /camp/requests", s.handleCampRequests)
	mux.HandleFunc("POST /remote/register", s.handleRegister)
	mux.HandleFunc("POST /remote/bind-chat", s.handleBindChat)
	mux.HandleFunc("GET /remote/{id}/input", s.handleInput)
	mux.HandleFunc("POST /remote/{id}/send-input", s.handleSendInput)
	mux.HandleFunc("POST /remote/{id}/exit", s.handleExit)
	mux.HandleFunc("GET /remote/{id}/subscribed-groups", s.handleSubscribedGroups)
	for _, kind := range []string{"tool-call", "tool-result", "approval-needed", "question", "thinking", "assistant", "typing", "background-job", "usage"} {
		mux.HandleFunc("POST /remote/{id}/"+kind, s.handleEvent(kind))
	}
	s.mux = mux
	return s.withAuth(mux)
}

// withAuth rejects any request without a matching x-touchgrass-auth header
// (spec §4.6), comparing in constant time to avoid a timing oracle.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(authHeader)
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.AuthToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Serve runs the control server on both listeners (either may be nil) until
// one of them errors or the process is signaled to stop; errors other than
// http.ErrServerClosed are logged, not fatal (spec §7 propagation policy).
func (s *Server) Serve(unixLn, tcpLn net.Listener) {
	h := s.handler()
	srv := &http.Server{Handler: h}
	errCh := make(chan error, 2)
	if unixLn != nil {
		go func() { errCh <- srv.Serve(unixLn) }()
	}
	if tcpLn != nil {
		go func() { errCh <- srv.Serve(tcpLn) }()
	}
	for err := range errCh {
		if err != nil && err != http.ErrServerClosed {
			log.Printf("daemon: control server error: %v", err)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"pid":       os.Getpid(),
		"startedAt": s.StartedAt,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessions := s.Manager.ListSessions()
	out := make([]map[string]any, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, map[string]any{
			"id":        sess.ID,
			"command":   sess.Command,
			"state":     "running",
			"createdAt": sess.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pid":      os.Getpid(),
		"uptime":   time.Since(s.StartedAt).Seconds(),
		"sessions": out,
	})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	if s.OnShutdown != nil {
		go s.OnShutdown()
	}
}

func (s *Server) handleGenerateCode(w http.ResponseWriter, r *http.Request) {
	if s.Codes == nil {
		writeError(w, http.StatusNotImplemented, "pairing codes are not configured")
		return
	}
	result, err := s.Codes.GenerateCode()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if s.Channels == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	result, err := s.Channels.ListChannels()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type campRegisterRequest struct {
	Root string `json:"root"`
}

func (s *Server) handleCampRegister(w http.ResponseWriter, r *http.Request) {
	if s.Camp == nil {
		writeError(w, http.StatusNotImplemented, "camp is not configured")
		return
	}
	var req campRegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.Camp.Register(req.Root)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleCampRequests(w http.ResponseWriter, r *http.Request) {
	if s.Camp == nil {
		writeJSON(w, http.StatusOK, map[string]any{"requests": []CampRequest{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": s.Camp.DrainRequests()})
}

type registerRequest struct {
	Command     string `json:"command"`
	ChatID      string `json:"chatId"`
	OwnerUserID string `json:"ownerUserId"`
	CWD         string `json:"cwd"`
	ExistingID  string `json:"existingId"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := s.Manager.RegisterRemote(req.Command, req.ChatID, req.OwnerUserID, req.CWD, req.ExistingID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	bound, _ := s.Manager.GetBoundChat(sess.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":       sess.ID,
		"dmBusy":          bound != "" && bound != req.ChatID,
		"linkedGroups":    s.Manager.GetSubscribedGroups(sess.ID),
		"allLinkedGroups": s.Manager.GetSubscribedGroups(sess.ID),
	})
}

type bindChatRequest struct {
	SessionID string `json:"sessionId"`
	ChatID    string `json:"chatId"`
}

func (s *Server) handleBindChat(w http.ResponseWriter, r *http.Request) {
	var req bindChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.Manager.Attach(req.ChatID, req.SessionID) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.Manager.GetRemote(id); !ok {
		writeJSON(w, http.StatusOK, map[string]any{"unknown": true})
		return
	}
	s.Manager.Touch(id)
	input := s.Manager.DrainRemoteInput(id)
	action := s.Manager.DrainRemoteControl(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"input":   input,
		"control": action,
	})
}

type sendInputRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSendInput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req sendInputRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.Manager.EnqueueInput(id, req.Text) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type exitRequest struct {
	ExitCode int `json:"exitCode"`
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req exitRequest
	decodeJSON(w, r, &req) // body optional
	s.Manager.RemoveRemote(id)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSubscribedGroups(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	bound, _ := s.Manager.GetBoundChat(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"chatIds":   s.Manager.GetSubscribedGroups(id),
		"boundChat": bound,
	})
}

func (s *Server) handleEvent(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := s.Manager.GetRemote(id); !ok {
			writeJSON(w, http.StatusOK, map[string]any{"unknown": true})
			return
		}
		s.Manager.Touch(id)
		body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body: "+err.Error())
			return
		}
		if s.Events == nil {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		result, err := s.Events.OnSessionEvent(id, kind, body)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if result == nil {
			result = map[string]any{"ok": true}
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg, "status": status})
}
