package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/vetclinic-ai-platform/internal/conversation"
	"github.com/wolfman30/vetclinic-ai-platform/internal/messaging"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// TurnHandler runs one conversation turn.
type TurnHandler interface {
	Handle(ctx context.Context, in conversation.Turn) (conversation.TurnResult, error)
}

// Handler manages web chat connections. Every inbound frame is answered
// synchronously on the same socket.
type Handler struct {
	turns    TurnHandler
	logger   *logging.Logger
	widgetJS []byte

	mu       sync.RWMutex
	sessions map[string]*wsConn // sessionID -> active connection
}

type wsConn struct {
	conn     *websocket.Conn
	clinicID string
	phone    string
	sendMu   sync.Mutex
}

func (c *wsConn) send(msg OutboundMessage) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return websocket.JSON.Send(c.conn, msg)
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type  string `json:"type"` // "message", "ping"
	ID    string `json:"id,omitempty"`
	Phone string `json:"phone,omitempty"`
	Text  string `json:"text"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string `json:"type"` // "session", "message", "typing", "end", "error", "pong"
	Text      string `json:"text,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	State     string `json:"state,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

const (
	msgPhoneRequired = "Para continuar necesitamos tu número de celular."
	msgFailure       = "Lo sentimos, algo salió mal. Intenta de nuevo."
)

func NewHandler(turns TurnHandler, widgetJS []byte, logger *logging.Logger) *Handler {
	if turns == nil {
		panic("webchat: turn handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		turns:    turns,
		logger:   logger,
		widgetJS: widgetJS,
		sessions: make(map[string]*wsConn),
	}
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket serves GET /webchat/ws?clinic=<id>&phone=<e164>&session=<id>.
// The phone may also arrive on the first frame.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	q := r.URL.Query()
	clinicID := strings.TrimSpace(q.Get("clinic"))
	if clinicID == "" {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "missing clinic parameter"})
		return
	}
	sessionID := q.Get("session")
	if sessionID == "" {
		sessionID = generateSessionID()
	}
	wsc := &wsConn{conn: conn, clinicID: clinicID, phone: messaging.NormalizeE164(q.Get("phone"))}
	_ = wsc.send(OutboundMessage{Type: "session", SessionID: sessionID})

	h.mu.Lock()
	h.sessions[sessionID] = wsc
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.sessions[sessionID] == wsc {
			delete(h.sessions, sessionID)
		}
		h.mu.Unlock()
	}()

	h.logger.Info("webchat: connection opened", "clinic_id", clinicID, "session_id", sessionID)
	ctx := r.Context()
	if wsc.phone != "" {
		if h.turn(ctx, wsc, sessionID, InboundMessage{}) {
			return
		}
	}

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "clinic_id", clinicID, "error", err)
			return
		}
		switch msg.Type {
		case "ping":
			_ = wsc.send(OutboundMessage{Type: "pong"})
			continue
		case "message":
		default:
			continue
		}
		if wsc.phone == "" {
			wsc.phone = messaging.NormalizeE164(msg.Phone)
			if wsc.phone == "" {
				_ = wsc.send(OutboundMessage{Type: "error", Text: msgPhoneRequired})
				continue
			}
		}
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		if h.turn(ctx, wsc, sessionID, msg) {
			return
		}
	}
}

// turn runs one engine turn and reports whether the conversation ended.
func (h *Handler) turn(ctx context.Context, wsc *wsConn, sessionID string, msg InboundMessage) bool {
	_ = wsc.send(OutboundMessage{Type: "typing"})
	res, err := h.turns.Handle(ctx, conversation.Turn{
		ClinicID:   wsc.clinicID,
		Channel:    conversation.ChannelWebchat,
		Phone:      wsc.phone,
		Text:       msg.Text,
		ExternalID: msg.ID,
		SessionID:  sessionID,
	})
	if err != nil {
		h.logger.Error("webchat: turn failed", "error", err, "clinic_id", wsc.clinicID, "session_id", sessionID)
		if !errors.Is(err, conversation.ErrPersistence) {
			_ = wsc.send(OutboundMessage{Type: "error", Text: msgFailure})
			return false
		}
	}
	_ = wsc.send(OutboundMessage{
		Type:      "message",
		Role:      conversation.RoleAssistant,
		Text:      res.ReplyText,
		State:     string(res.State),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if res.EndConversation {
		_ = wsc.send(OutboundMessage{Type: "end"})
		return true
	}
	return false
}

// SendToPhone pushes text to every open session of phone at clinicID and
// reports whether one was found.
func (h *Handler) SendToPhone(clinicID, phone, text string) bool {
	phone = messaging.NormalizeE164(phone)
	h.mu.RLock()
	var targets []*wsConn
	for _, c := range h.sessions {
		if c.phone == phone && (clinicID == "" || c.clinicID == clinicID) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		_ = c.send(OutboundMessage{
			Type:      "message",
			Role:      conversation.RoleAssistant,
			Text:      text,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
	return len(targets) > 0
}

type messageRequest struct {
	ClinicID  string `json:"clinic_id"`
	Phone     string `json:"phone"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	ID        string `json:"id"`
}

type messageResponse struct {
	SessionID       string `json:"session_id"`
	Reply           string `json:"reply"`
	State           string `json:"state"`
	EndConversation bool   `json:"end_conversation"`
}

// HandleMessage is the HTTP fallback, POST /webchat/message.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Phone = messaging.NormalizeE164(req.Phone)
	if req.ClinicID == "" || req.Phone == "" {
		http.Error(w, "clinic_id and phone are required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = generateSessionID()
	}
	res, err := h.turns.Handle(r.Context(), conversation.Turn{
		ClinicID:   req.ClinicID,
		Channel:    conversation.ChannelWebchat,
		Phone:      req.Phone,
		Text:       req.Text,
		ExternalID: req.ID,
		SessionID:  req.SessionID,
	})
	if err != nil && !errors.Is(err, conversation.ErrPersistence) {
		h.logger.Error("webchat: turn failed", "error", err, "clinic_id", req.ClinicID)
		http.Error(w, "turn failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(messageResponse{
		SessionID:       req.SessionID,
		Reply:           res.ReplyText,
		State:           string(res.State),
		EndConversation: res.EndConversation,
	})
}

// HandleWidgetJS serves the embeddable widget script.
func (h *Handler) HandleWidgetJS(w http.ResponseWriter, r *http.Request) {
	if len(h.widgetJS) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(h.widgetJS)
}
