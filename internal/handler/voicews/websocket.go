package voicews

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/irislabs/voice-gateway/internal/config"
	"github.com/irislabs/voice-gateway/internal/protocol"
	"github.com/irislabs/voice-gateway/internal/voice"
)

// Close codes the gateway uses beyond the standard set.
const (
	closeMissingUser       = 4001
	closeProtocolViolation = 4002
)

const (
	pingInterval = 54 * time.Second
	readTimeout  = 70 * time.Second
)

// Handler upgrades /ws/voice connections and pumps frames into a Session.
type Handler struct {
	deps     voice.Deps
	cfg      config.VoiceConfig
	upgrader websocket.Upgrader
}

// New builds the websocket handler around the shared session dependencies.
func New(deps voice.Deps, cfg config.VoiceConfig) *Handler {
	return &Handler{
		deps: deps,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/voice", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[voicews] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		closeWith(conn, closeMissingUser, "userId query parameter is required")
		return
	}

	binary := r.URL.Query().Get("binary") == "true"

	styleName := r.URL.Query().Get("style")
	if styleName == "" {
		styleName = h.cfg.DefaultStyle
	}
	chunkMode := r.URL.Query().Get("chunkMode")
	if chunkMode == "" {
		chunkMode = h.cfg.ChunkMode
	}

	session := voice.NewSession(conn, binary, voice.Config{
		UserID:        userID,
		Style:         voice.StyleByName(styleName),
		ChunkMode:     chunkMode,
		CaptureMax:    time.Duration(h.cfg.CaptureMaxSeconds) * time.Second,
		QueueCapacity: h.cfg.OutboundQueueCap,
	}, h.deps)
	defer session.Close()
	session.Start()

	stop := make(chan struct{})
	defer close(stop)
	go h.pingLoop(conn, stop)

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[voicews] session %s read failed: %v", session.ID(), err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg *protocol.Message
		switch msgType {
		case websocket.BinaryMessage:
			msg, err = protocol.Parse(data)
		case websocket.TextMessage:
			msg, err = protocol.ParseEnvelope(data)
		default:
			continue
		}
		if err != nil {
			log.Printf("[voicews] session %s dropped: %v", session.ID(), err)
			// The ERROR frame must reach the client before the close
			// handshake; Close drains the session writer.
			session.SendError(voice.CodeProtocol, err.Error())
			session.Close()
			closeWith(conn, closeProtocolViolation, err.Error())
			return
		}

		if err := session.HandleFrame(msg); err != nil {
			log.Printf("[voicews] session %s terminated: %v", session.ID(), err)
			return
		}
	}
}

// pingLoop keeps intermediaries from idling the connection out. Control
// frames are safe to write concurrently with the session writer.
func (h *Handler) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}
