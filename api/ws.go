package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"exchange-core-go/market"
	"exchange-core-go/monitor"
)

const (
	writeWait      = 10 * time.Second
	clientBuffer   = 256
	subscribeDepth = 1024
)

// Hub 把撮合核心发出的 Order/Trade/Depth 事件广播给全部 WebSocket
// 订阅者。投递是 fire-and-forget：写不动的客户端直接踢掉，核心
// 不会因为慢消费者被拖住。
type Hub struct {
	pub *market.FanoutPublisher
	mon *monitor.Monitor

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan market.Event
}

func NewHub(pub *market.FanoutPublisher, mon *monitor.Monitor) *Hub {
	return &Hub{
		pub:     pub,
		mon:     mon,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run 消费发布器事件并分发，阻塞直到 ctx 取消。
func (h *Hub) Run(ctx context.Context) {
	events := h.pub.Subscribe(subscribeDepth)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev := <-events:
			if h.mon != nil {
				h.mon.EventPublished(string(ev.Type))
			}
			h.broadcast(ev)
		}
	}
}

func (h *Hub) broadcast(ev market.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			// 慢消费者：断开，投递责任在下游。
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.mon != nil {
		h.mon.WSClientConnected()
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if h.mon != nil {
		h.mon.WSClientDisconnected()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS 升级连接并开始推送事件流。
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, hello interface{}) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsClient{conn: conn, send: make(chan market.Event, clientBuffer)}
	h.add(c)

	if hello != nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(hello); err != nil {
			h.remove(c)
			conn.Close()
			return
		}
	}

	// 读泵只负责发现断连。
	go func() {
		defer func() {
			h.remove(c)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer conn.Close()
		for ev := range c.send {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.remove(c)
				return
			}
		}
	}()
}
