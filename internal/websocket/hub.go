package websocket

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// session is one authenticated socket. Writes are serialized because
// gorilla connections allow a single concurrent writer.
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *session) send(data []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub relays ingestion progress events to connected browsers. The worker
// pool publishes onto user_updates:{userID}; the hub subscribes per user
// while at least one of their sockets is open and fans messages out to all
// of them.
type Hub struct {
	mu          sync.RWMutex
	sessions    map[uuid.UUID][]*session
	subCancels  map[uuid.UUID]context.CancelFunc
	redisClient *redis.Client
	jwtSecret   []byte
}

func NewHub(redisClient *redis.Client, jwtSecret string) *Hub {
	return &Hub{
		sessions:    make(map[uuid.UUID][]*session),
		subCancels:  make(map[uuid.UUID]context.CancelFunc),
		redisClient: redisClient,
		jwtSecret:   []byte(jwtSecret),
	}
}

// HandleWebSocket upgrades an authenticated request. Browsers cannot set
// headers on websocket dials, so the JWT arrives as a query param.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s := &session{conn: conn}
	h.attach(userID, s)

	go func() {
		defer h.detach(userID, s)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) authenticate(r *http.Request) (uuid.UUID, bool) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		return uuid.Nil, false
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, false
	}

	userIDStr, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, false
	}
	return userID, true
}

func (h *Hub) attach(userID uuid.UUID, s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sessions[userID] = append(h.sessions[userID], s)

	// First socket for this user starts the pub/sub relay.
	if len(h.sessions[userID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.subCancels[userID] = cancel
		go h.relay(ctx, userID)
	}

	log.Printf("WebSocket connected: user %s (sockets: %d)", userID, len(h.sessions[userID]))
}

func (h *Hub) detach(userID uuid.UUID, s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s.conn.Close()

	open := h.sessions[userID]
	for i, other := range open {
		if other == s {
			h.sessions[userID] = append(open[:i], open[i+1:]...)
			break
		}
	}

	if len(h.sessions[userID]) == 0 {
		delete(h.sessions, userID)
		if cancel, ok := h.subCancels[userID]; ok {
			cancel()
			delete(h.subCancels, userID)
		}
	}

	log.Printf("WebSocket disconnected: user %s", userID)
}

func (h *Hub) relay(ctx context.Context, userID uuid.UUID) {
	channel := "user_updates:" + userID.String()
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.fanOut(userID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) fanOut(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.sessions[userID] {
		s.send(data)
	}
}
