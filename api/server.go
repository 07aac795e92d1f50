package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"exchange-core-go/book"
	"exchange-core-go/config"
	"exchange-core-go/engine"
	"exchange-core-go/infrastructure/logger"
	"exchange-core-go/instrument"
	"exchange-core-go/market"
	"exchange-core-go/monitor"
	"exchange-core-go/risk"
)

// Server 撮合核心的 REST/WS 表示层。业务规则全部在 engine/risk，
// 这里只做解码、鉴错和编码。
type Server struct {
	cfg    config.ServerConfig
	eng    *engine.Engine
	hub    *Hub
	log    *logger.Logger
	mon    *monitor.Monitor
	router *mux.Router

	httpSrv *http.Server
}

func NewServer(cfg config.ServerConfig, eng *engine.Engine, pub *market.FanoutPublisher, log *logger.Logger, mon *monitor.Monitor) *Server {
	s := &Server{
		cfg:    cfg,
		eng:    eng,
		hub:    NewHub(pub, mon),
		log:    log,
		mon:    mon,
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleCancelOrder).Methods("DELETE")

	api.HandleFunc("/instruments", s.handleListInstruments).Methods("GET")
	api.HandleFunc("/instruments/{symbol}/depth", s.handleDepth).Methods("GET")
	api.HandleFunc("/instruments/{symbol}/price", s.handlePrice).Methods("GET")
	api.HandleFunc("/instruments/{symbol}/settle", s.handleSettle).Methods("POST")
	api.HandleFunc("/instruments/{symbol}/invalidate", s.handleInvalidate).Methods("POST")

	api.HandleFunc("/positions", s.handlePositions).Methods("GET")
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
}

// Handler 组装完整的中间件链，测试直接打这里。
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	if s.cfg.RateLimit > 0 {
		burst := s.cfg.RateBurst
		if burst <= 0 {
			burst = int(s.cfg.RateLimit)
		}
		h = NewTokenBucketLimiter(s.cfg.RateLimit, burst).Middleware(h)
	}
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(h)
}

// Start 启动 HTTP 服务和 WS 分发泵，阻塞直到 ctx 取消后完成
// 优雅停机。
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if s.log != nil {
			s.log.WithFields(map[string]interface{}{"addr": s.cfg.Addr}).Info("api server listening")
		}
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

// ---- 请求/响应载体 ----

type submitOrderRequest struct {
	Trader      string  `json:"trader"`
	Account     string  `json:"account"`
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"` // "buy" | "sell"
	Quantity    float64 `json:"quantity"`
	LimitPrice  float64 `json:"limit_price"`
	MaxShowSize float64 `json:"max_show_size"`
	Expiration  string  `json:"expiration"` // RFC3339，空为 GTC
}

type orderResponse struct {
	ID             int64   `json:"id"`
	Symbol         string  `json:"symbol"`
	Trader         string  `json:"trader"`
	Side           string  `json:"side"`
	Quantity       float64 `json:"quantity"`
	LimitPrice     float64 `json:"limit_price"`
	MaxShowSize    float64 `json:"max_show_size"`
	CurrSlice      float64 `json:"curr_slice"`
	FilledQuantity float64 `json:"filled_quantity"`
	Status         string  `json:"status"`
}

type instrumentResponse struct {
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Currency   string  `json:"currency"`
	MinPrice   float64 `json:"min_price"`
	MaxPrice   float64 `json:"max_price"`
	QtyMult    float64 `json:"qty_mult"`
	PriceMult  float64 `json:"price_mult"`
	Expiration string  `json:"expiration"`
	Settled    bool    `json:"settled"`
	ClosePrice float64 `json:"close_price,omitempty"`
	IsValid    bool    `json:"is_valid"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func sideOf(isBuy bool) string {
	if isBuy {
		return "buy"
	}
	return "sell"
}

func toOrderResponse(o book.Order) orderResponse {
	return orderResponse{
		ID:             o.ID,
		Symbol:         o.Symbol,
		Trader:         o.Trader,
		Side:           sideOf(o.IsBuy),
		Quantity:       o.Quantity,
		LimitPrice:     o.LimitPrice,
		MaxShowSize:    o.MaxShowSize,
		CurrSlice:      o.CurrSlice,
		FilledQuantity: o.FilledQuantity,
		Status:         string(o.Status),
	}
}

func toInstrumentResponse(in instrument.Instrument) instrumentResponse {
	return instrumentResponse{
		Symbol:     in.Symbol,
		Name:       in.Name,
		Currency:   in.Currency,
		MinPrice:   in.MinPrice,
		MaxPrice:   in.MaxPrice,
		QtyMult:    in.QtyMult,
		PriceMult:  in.PriceMult,
		Expiration: in.Expiration.UTC().Format(time.RFC3339),
		Settled:    in.IsSettled(),
		ClosePrice: in.ClosePrice,
		IsValid:    in.IsValid,
	}
}

// ---- 处理器 ----

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Trader == "" || req.Symbol == "" {
		respondError(w, http.StatusBadRequest, "trader and symbol are required")
		return
	}
	var isBuy bool
	switch req.Side {
	case "buy":
		isBuy = true
	case "sell":
		isBuy = false
	default:
		respondError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}
	var expiration time.Time
	if req.Expiration != "" {
		t, err := time.Parse(time.RFC3339, req.Expiration)
		if err != nil {
			respondError(w, http.StatusBadRequest, "expiration must be RFC3339")
			return
		}
		expiration = t
	}

	o, err := s.eng.Submit(engine.SubmitRequest{
		Trader:      req.Trader,
		Account:     req.Account,
		Symbol:      req.Symbol,
		IsBuy:       isBuy,
		Quantity:    req.Quantity,
		LimitPrice:  req.LimitPrice,
		MaxShowSize: req.MaxShowSize,
		Expiration:  expiration,
	})
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	trader := r.URL.Query().Get("trader")
	if trader == "" {
		respondError(w, http.StatusBadRequest, "trader query parameter is required")
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	o, err := s.eng.Cancel(trader, id)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	o, ok := s.eng.Order(id)
	if !ok {
		respondError(w, http.StatusNotFound, "order not found")
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	trader := r.URL.Query().Get("trader")
	if trader == "" {
		respondError(w, http.StatusBadRequest, "trader query parameter is required")
		return
	}
	orders := s.eng.WorkingOrders(trader)
	res := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		res = append(res, toOrderResponse(o))
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	list := s.eng.Registry().List()
	res := make([]instrumentResponse, 0, len(list))
	for _, in := range list {
		res = append(res, toInstrumentResponse(in))
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	rows, err := s.eng.Depth(symbol)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if _, err := s.eng.Registry().Get(symbol); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"price":  s.eng.MarketPrice(symbol),
	})
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	var req struct {
		ClosePrice float64 `json:"close_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.eng.Settle(symbol, req.ClosePrice); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "settled"})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		respondError(w, http.StatusBadRequest, "reason is required")
		return
	}
	if err := s.eng.Invalidate(symbol, req.Reason); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	now := s.eng.Now()
	trades := s.eng.Trades()
	reg := s.eng.Registry()
	var res []risk.PositionReport
	if trader := r.URL.Query().Get("trader"); trader != "" {
		res = risk.Positions(trader, trades, reg, s.eng, now)
	} else {
		res = risk.AllPositions(trades, reg, s.eng, now)
	}
	if res == nil {
		res = []risk.PositionReport{}
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	now := s.eng.Now()
	entries := risk.Leaderboard(s.eng.Trades(), s.eng.Registry(), s.eng, now)
	if entries == nil {
		entries = []risk.LeaderboardEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	list := s.eng.Registry().List()
	hello := make([]instrumentResponse, 0, len(list))
	for _, in := range list {
		hello = append(hello, toInstrumentResponse(in))
	}
	s.hub.ServeWS(w, r, map[string]interface{}{
		"_type":       "hello",
		"instruments": hello,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondEngineError 把领域错误翻译成 HTTP 状态码。
func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, risk.ErrInsufficientCredit):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, engine.ErrOrderNotFound),
		errors.Is(err, instrument.ErrUnknownInstrument):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, instrument.ErrAlreadySettled):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrInvalidQuantity),
		errors.Is(err, engine.ErrPriceOutOfBounds),
		errors.Is(err, engine.ErrInstrumentExpired),
		errors.Is(err, engine.ErrInstrumentInvalid):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		if s.log != nil {
			s.log.LogError(err, map[string]interface{}{"stage": "api"})
		}
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}
