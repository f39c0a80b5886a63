package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// Server registers the contract subset routes against a ServeMux,
// logging with the same structured logger the rest of the app uses.
// There is no auth/CSRF middleware here; that layer is out of scope.
type Server struct {
	core   *Core
	logger *slog.Logger
}

// NewServer builds a Server around core.
func NewServer(core *Core, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{core: core, logger: logger}
}

// Routes registers every contract route on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/poll", s.handlePoll)
	mux.HandleFunc("GET /api/connection", s.handleConnection)
	mux.HandleFunc("POST /api/messages/send", s.handleSendMessage)
	mux.HandleFunc("POST /api/traceroute", s.handleTraceroute)
	mux.HandleFunc("POST /api/position/request", s.handlePositionRequest)
	mux.HandleFunc("POST /api/nodes/{id}/favorite", s.handleSetFavorite)
	mux.HandleFunc("POST /api/nodes/{id}/ignored", s.handleSetIgnored)
	mux.HandleFunc("DELETE /api/messages/{id}", s.handleDeleteMessage)
	mux.HandleFunc("DELETE /api/messages/channels/{ch}", s.handleDeleteChannelMessages)
	mux.HandleFunc("DELETE /api/messages/direct-messages/{nodeNum}", s.handleDeleteDirectMessages)
	mux.HandleFunc("DELETE /api/messages/nodes/{nodeNum}", s.handleDeleteNodeMessages)
	mux.HandleFunc("POST /api/messages/nodes/{nodeNum}/purge-from-device", s.handlePurgeNode)
	mux.HandleFunc("POST /api/nodes/refresh", s.handleRefreshNodes)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.Poll())
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.ConnectionStatus())
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text        string `json:"text"`
		Channel     *int   `json:"channel"`
		Destination string `json:"destination"`
		ReplyID     string `json:"replyId"`
		Emoji       bool   `json:"emoji"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	requestID, err := s.core.SendMessage(SendMessageRequest{
		Text:        body.Text,
		Channel:     body.Channel,
		Destination: body.Destination,
		ReplyID:     body.ReplyID,
		Emoji:       body.Emoji,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"requestId": requestID})
}

func (s *Server) handleTraceroute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Destination string `json:"destination"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	requestID, err := s.core.SendTraceroute(r.Context(), body.Destination)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"requestId": requestID})
}

func (s *Server) handlePositionRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Destination string `json:"destination"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	requestID, err := s.core.RequestPosition(body.Destination)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"requestId": requestID})
}

func (s *Server) handleSetFavorite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Favorite bool `json:"favorite"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := s.core.SetFavorite(r.PathValue("id"), body.Favorite); err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetIgnored(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Ignored bool `json:"ignored"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := s.core.SetIgnored(r.PathValue("id"), body.Ignored); err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	localID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.core.DeleteMessage(localID); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteChannelMessages(w http.ResponseWriter, r *http.Request) {
	channel, err := strconv.Atoi(r.PathValue("ch"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.core.DeleteChannelMessages(channel); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteDirectMessages(w http.ResponseWriter, r *http.Request) {
	if err := s.core.DeleteDirectMessages(r.PathValue("nodeNum")); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteNodeMessages(w http.ResponseWriter, r *http.Request) {
	if err := s.core.DeleteNodeMessages(r.PathValue("nodeNum")); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePurgeNode(w http.ResponseWriter, r *http.Request) {
	if err := s.core.PurgeNodeFromDevice(r.PathValue("nodeNum")); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshNodes(w http.ResponseWriter, r *http.Request) {
	if err := s.core.RefreshNodes(r.Context()); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		return true
	}
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, http.ErrBodyNotAllowed) {
		if !strings.Contains(err.Error(), "EOF") {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return false
		}
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encode http response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Warn("http request failed", "status", status, "error", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
