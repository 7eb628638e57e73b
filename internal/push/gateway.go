package push

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/yoyowasa/BOT-WEBULL/internal/infrastructure"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// envelope is the frame delivered to clients: the payload tagged with its
// kind and the concrete subject it arrived on.
type envelope struct {
	Type  string          `json:"type"` // "bar" or "signal"
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

type errorFrame struct {
	Error string `json:"error"`
	Topic string `json:"topic,omitempty"`
}

// topicKind maps a subject to the payload kind it carries. Anything outside
// the bar and signal subject spaces returns "".
func topicKind(topic string) string {
	switch {
	case strings.HasPrefix(topic, infrastructure.SubjectBarsPrefix):
		return "bar"
	case strings.HasPrefix(topic, infrastructure.SubjectSignalsPrefix):
		return "signal"
	}
	return ""
}

// validTopic accepts concrete or wildcard subjects inside the bar and signal
// spaces, e.g. "market.bars.AAPL", "market.bars.*", "market.signals.A.*".
func validTopic(topic string) bool {
	kind := topicKind(topic)
	if kind == "" {
		return false
	}
	rest := strings.TrimPrefix(topic, infrastructure.SubjectBarsPrefix)
	if kind == "signal" {
		rest = strings.TrimPrefix(topic, infrastructure.SubjectSignalsPrefix)
	}
	return rest != "" && !strings.ContainsAny(rest, " \t>")
}

type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// PushGateway fans bar and signal subjects out to websocket clients. Clients
// subscribe per topic; topics outside the two subject spaces are refused, and
// the JetStream subscription for a topic lives only while at least one client
// holds it.
type PushGateway struct {
	logger        *zap.Logger
	js            nats.JetStreamContext
	clients       map[*Client]bool
	subscriptions map[string]map[*Client]bool
	natsSubs      map[string]*nats.Subscription
	mu            sync.RWMutex
}

func NewPushGateway(js nats.JetStreamContext, logger *zap.Logger) *PushGateway {
	return &PushGateway{
		logger:        logger,
		js:            js,
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
		natsSubs:      make(map[string]*nats.Subscription),
	}
}

func (g *PushGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("failed to upgrade websocket", zap.Error(err))
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
	}

	g.mu.Lock()
	g.clients[client] = true
	g.mu.Unlock()
	infrastructure.PushClients.Inc()

	go g.writePump(client)
	g.readPump(client)
}

func (g *PushGateway) readPump(c *Client) {
	defer func() {
		g.removeClient(c)
		infrastructure.PushClients.Dec()
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		g.handleControl(c, message)
	}
}

// handleControl applies one subscribe/unsubscribe frame from a client.
func (g *PushGateway) handleControl(c *Client, message []byte) {
	var req struct {
		Action string `json:"action"` // "subscribe", "unsubscribe"
		Topic  string `json:"topic"`  // e.g. "market.bars.AAPL", "market.signals.*.*"
	}
	if err := json.Unmarshal(message, &req); err != nil {
		return
	}

	if !validTopic(req.Topic) {
		g.reject(c, req.Topic)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	switch req.Action {
	case "subscribe":
		if g.subscriptions[req.Topic] == nil {
			g.subscriptions[req.Topic] = make(map[*Client]bool)
			if err := g.subscribeToNATS(req.Topic); err != nil {
				g.logger.Error("failed to subscribe to NATS", zap.String("topic", req.Topic), zap.Error(err))
			}
		}
		g.subscriptions[req.Topic][c] = true
		g.logger.Info("client subscribed to topic", zap.String("topic", req.Topic))
	case "unsubscribe":
		if clients, ok := g.subscriptions[req.Topic]; ok {
			delete(clients, c)
			if len(clients) == 0 {
				g.dropTopic(req.Topic)
			}
		}
	}
}

// reject tells the client its topic is outside the bar/signal subject spaces.
func (g *PushGateway) reject(c *Client, topic string) {
	frame, _ := json.Marshal(errorFrame{Error: "unsupported topic", Topic: topic})
	select {
	case c.send <- frame:
	default:
	}
	g.logger.Warn("rejected topic outside market subjects", zap.String("topic", topic))
}

// removeClient detaches c from every topic and closes its send channel. Once
// the maps no longer hold c, no relay callback can reach the channel.
func (g *PushGateway) removeClient(c *Client) {
	g.mu.Lock()
	delete(g.clients, c)
	for topic, clients := range g.subscriptions {
		delete(clients, c)
		if len(clients) == 0 {
			g.dropTopic(topic)
		}
	}
	g.mu.Unlock()
	close(c.send)
}

// dropTopic unsubscribes from NATS once no client holds the topic. Caller
// holds the write lock.
func (g *PushGateway) dropTopic(topic string) {
	if sub, ok := g.natsSubs[topic]; ok {
		sub.Unsubscribe()
		delete(g.natsSubs, topic)
		g.logger.Info("unsubscribed from NATS as no clients left", zap.String("topic", topic))
	}
	delete(g.subscriptions, topic)
}

func (g *PushGateway) writePump(c *Client) {
	defer c.conn.Close()
	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// relay wraps one stream message for the clients holding topic.
func (g *PushGateway) relay(topic string, msg *nats.Msg) {
	frame, err := json.Marshal(envelope{
		Type:  topicKind(msg.Subject),
		Topic: msg.Subject,
		Data:  json.RawMessage(msg.Data),
	})
	if err != nil {
		g.logger.Error("failed to marshal push frame", zap.Error(err))
		return
	}

	g.mu.RLock()
	for c := range g.subscriptions[topic] {
		select {
		case c.send <- frame:
		default:
			// Do not block, just drop if channel is full
		}
	}
	g.mu.RUnlock()
}

// subscribeToNATS attaches the relay for topic. Caller holds the write lock.
func (g *PushGateway) subscribeToNATS(topic string) error {
	sub, err := g.js.Subscribe(topic, func(msg *nats.Msg) {
		g.relay(topic, msg)
		msg.Ack()
	}, nats.ManualAck())

	if err != nil {
		return err
	}

	g.natsSubs[topic] = sub
	g.logger.Info("subscribed to NATS topic", zap.String("topic", topic))
	return nil
}
