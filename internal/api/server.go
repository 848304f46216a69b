package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"nestchat/internal/chat"
	"nestchat/pkg/interfaces"
	"nestchat/pkg/types"
)

type contextKey string

const userIDKey contextKey = "userID"

// HealthChecker is the store subset the health endpoint needs.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionStats is the registry subset the health endpoint needs.
type ConnectionStats interface {
	Stats() map[string]int
}

// Server is the REST fallback gateway. It persists through the same chat
// service as the realtime path but performs no push delivery: a client
// relying only on REST must poll. That gap is deliberate; the fallback
// exists for clients without a live connection, not as a second realtime
// surface.
type Server struct {
	chat     *chat.Service
	verifier interfaces.SessionVerifier
	health   HealthChecker
	stats    ConnectionStats
	handler  http.Handler
}

// NewServer builds the gateway with its routes and middleware.
func NewServer(chatService *chat.Service, verifier interfaces.SessionVerifier,
	health HealthChecker, stats ConnectionStats) *Server {
	s := &Server{
		chat:     chatService,
		verifier: verifier,
		health:   health,
		stats:    stats,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)

	chats := r.PathPrefix("/api/chats").Subrouter()
	chats.Use(s.authMiddleware)
	chats.HandleFunc("/rooms", s.listRooms).Methods(http.MethodGet)
	chats.HandleFunc("/rooms", s.createOrGetRoom).Methods(http.MethodPost)
	chats.HandleFunc("/rooms/{roomID}/messages", s.listMessages).Methods(http.MethodGet)
	chats.HandleFunc("/rooms/{roomID}/messages", s.sendMessage).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	s.handler = c.Handler(r)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// authMiddleware verifies the Bearer session token and stashes the caller
// id in the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			s.sendError(w, "Missing bearer token", http.StatusUnauthorized)
			return
		}

		userID, err := s.verifier.VerifySession(r.Context(), header[len(prefix):])
		if err != nil {
			s.sendError(w, "Invalid or expired session token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

type createRoomRequest struct {
	AgentID    string `json:"agent_id"`
	PropertyID string `json:"property_id,omitempty"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

// createOrGetRoom handles POST /api/chats/rooms: get-or-create the room
// for (caller, agent, listing) and return it populated.
func (s *Server) createOrGetRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.AgentID == "" {
		s.sendError(w, "agent_id is required", http.StatusBadRequest)
		return
	}

	room, err := s.chat.GetOrCreateRoom(r.Context(), callerID(r), req.AgentID, req.PropertyID)
	if err != nil {
		s.sendDomainError(w, err, "Failed to create room")
		return
	}

	s.sendJSON(w, http.StatusOK, room)
}

// listRooms handles GET /api/chats/rooms.
func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.chat.ListRooms(r.Context(), callerID(r))
	if err != nil {
		s.sendDomainError(w, err, "Failed to list rooms")
		return
	}
	if rooms == nil {
		rooms = []*types.RoomSummary{}
	}
	s.sendJSON(w, http.StatusOK, rooms)
}

// listMessages handles GET /api/chats/rooms/{roomID}/messages with page
// and limit query parameters. Reading history marks the other party's
// messages read.
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 30)

	messages, err := s.chat.HistoryPage(r.Context(), callerID(r), roomID, page, limit)
	if err != nil {
		s.sendDomainError(w, err, "Failed to load messages")
		return
	}
	if messages == nil {
		messages = []*types.Message{}
	}
	s.sendJSON(w, http.StatusOK, messages)
}

// sendMessage handles POST /api/chats/rooms/{roomID}/messages. Persists
// and touches the room pointer exactly like the realtime path, without
// pushing to joined connections.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	message, err := s.chat.Send(r.Context(), callerID(r), roomID, req.Content, req.Type)
	if err != nil {
		s.sendDomainError(w, err, "Failed to send message")
		return
	}

	s.sendJSON(w, http.StatusCreated, message)
}

// healthCheck handles GET /health.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, dbStatus := "healthy", "healthy"
	if err := s.health.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = err.Error()
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}

	s.sendJSON(w, code, healthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.stats.Stats(),
	})
}

// sendDomainError maps chat-layer errors onto the REST taxonomy.
func (s *Server) sendDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, interfaces.ErrRoomNotFound):
		s.sendError(w, "Chat room not found", http.StatusNotFound)
	case errors.Is(err, chat.ErrNotParticipant):
		s.sendError(w, "Not a participant", http.StatusForbidden)
	case errors.Is(err, types.ErrEmptyContent),
		errors.Is(err, types.ErrContentTooLong),
		errors.Is(err, types.ErrInvalidMessageType),
		errors.Is(err, types.ErrInvalidUserID),
		errors.Is(err, types.ErrInvalidRoomID):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("REST error: %v", err)
		s.sendError(w, fallback, http.StatusInternalServerError)
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, errorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
