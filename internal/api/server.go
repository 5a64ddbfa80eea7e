// Package api exposes the operator HTTP surface: auth, trade queries,
// manual execution, reservations, metrics and the websocket stream.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tradesentry/internal/cooldown"
	"tradesentry/internal/events"
	"tradesentry/internal/execution"
	"tradesentry/internal/monitor"
	"tradesentry/internal/strategy"
	"tradesentry/pkg/cache"
	"tradesentry/pkg/db"
)

// Server holds the API's collaborators and the gin engine.
type Server struct {
	engine       *gin.Engine
	store        *db.Database
	reservations *db.ReservationStore
	coordinator  *execution.Coordinator
	cooldowns    *cooldown.Tracker
	prices       *cache.PriceCache
	bus          *events.Bus
	metrics      *monitor.SystemMetrics
	auth         *AuthService
	startedAt    time.Time
	platforms    []string
}

// NewServer wires routes and middleware.
func NewServer(store *db.Database, reservations *db.ReservationStore,
	coordinator *execution.Coordinator, cooldowns *cooldown.Tracker,
	prices *cache.PriceCache, bus *events.Bus, metrics *monitor.SystemMetrics,
	auth *AuthService, platforms []string) *Server {

	s := &Server{
		store:        store,
		reservations: reservations,
		coordinator:  coordinator,
		cooldowns:    cooldowns,
		prices:       prices,
		bus:          bus,
		metrics:      metrics,
		auth:         auth,
		startedAt:    time.Now(),
		platforms:    platforms,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestID(), RequestLogger(metrics),
		RateLimit(50, 100), Timeout(30*time.Second), CORS())

	engine.GET("/health", s.handleHealth)
	engine.POST("/api/auth/register", s.handleRegister)
	engine.POST("/api/auth/login", s.handleLogin)

	authorized := engine.Group("/", auth.Middleware())
	authorized.GET("/ws", s.handleWebsocket)
	apiGroup := authorized.Group("/api")
	{
		apiGroup.GET("/trades", s.handleTrades)
		apiGroup.GET("/trades/open", s.handleOpenTrades)
		apiGroup.POST("/trades/:id/close", s.handleCloseTrade)
		apiGroup.POST("/execute", s.handleExecute)
		apiGroup.GET("/reservations", s.handleReservations)
		apiGroup.GET("/prices", s.handlePrices)
		apiGroup.GET("/metrics", s.handleMetrics)
		apiGroup.GET("/system/status", s.handleStatus)
	}

	s.engine = engine
	return s
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.auth.Register(req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) handleTrades(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	trades, err := s.store.ListTrades(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": tradeViews(trades)})
}

func (s *Server) handleOpenTrades(c *gin.Context) {
	trades, err := s.store.ListOpenTrades()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": tradeViews(trades)})
}

type executeRequest struct {
	Platform   string  `json:"platform" binding:"required"`
	Asset      string  `json:"asset" binding:"required"`
	Direction  string  `json:"direction" binding:"required,oneof=BUY SELL"`
	Strategy   string  `json:"strategy" binding:"required"`
	Confidence float64 `json:"confidence"`
	Regime     string  `json:"regime"`
	Blackout   bool    `json:"news_blackout"`
}

func (s *Server) handleExecute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	regime := strategy.Regime(req.Regime)
	if req.Regime == "" {
		regime = strategy.RegimeRanging
	}

	result, err := s.coordinator.Execute(c.Request.Context(), execution.Request{
		Platform:   req.Platform,
		Asset:      req.Asset,
		Direction:  req.Direction,
		Strategy:   req.Strategy,
		Confidence: req.Confidence,
		Conditions: strategy.Conditions{Regime: regime, NewsBlackout: req.Blackout},
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"outcome":  result.Outcome,
		"strategy": result.Strategy,
		"detail":   result.Detail,
	}
	if result.Wait > 0 {
		resp["retry_after_seconds"] = int64(result.Wait.Seconds())
	}
	if result.Trade != nil {
		resp["trade"] = tradeView(result.Trade)
	}
	status := http.StatusOK
	if result.Outcome != execution.OutcomeOK {
		status = http.StatusConflict
	}
	c.JSON(status, resp)
}

type closeRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCloseTrade(c *gin.Context) {
	trade, err := s.store.GetTrade(c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trade not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if trade.Status != "OPEN" {
		c.JSON(http.StatusConflict, gin.H{"error": "trade already closed"})
		return
	}

	var req closeRequest
	_ = c.ShouldBindJSON(&req)
	reason := req.Reason
	if reason == "" {
		reason = "manual"
	}

	price, ok := s.prices.Get(trade.Asset)
	if !ok || price <= 0 {
		price = trade.EntryPrice
	}
	if err := s.coordinator.Close(c.Request.Context(), trade, price, reason); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed", "exit_price": price})
}

func (s *Server) handleReservations(c *gin.Context) {
	if s.reservations == nil {
		c.JSON(http.StatusOK, gin.H{"reservations": []any{}})
		return
	}
	active, err := s.reservations.ListActive()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	views := make([]gin.H, 0, len(active))
	for _, r := range active {
		views = append(views, gin.H{
			"resource_type": r.ResourceType,
			"resource_id":   r.ResourceID,
			"owner":         r.Owner,
			"acquired_at":   r.AcquiredAt,
			"expires_at":    r.ExpiresAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"reservations": views})
}

func (s *Server) handlePrices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"prices": s.prices.GetAll()})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleStatus(c *gin.Context) {
	openCount := 0
	if open, err := s.store.ListOpenTrades(); err == nil {
		openCount = len(open)
	}

	cooldowns := gin.H{}
	for key, wait := range s.cooldowns.Remaining() {
		cooldowns[key] = wait.Round(time.Second).String()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "running",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"platforms":      s.platforms,
		"open_trades":    openCount,
		"cooldowns":      cooldowns,
		"cached_symbols": s.prices.Len(),
	})
}

// tradeView flattens a db.Trade for JSON responses.
func tradeView(t *db.Trade) gin.H {
	view := gin.H{
		"id":          t.ID,
		"platform":    t.Platform,
		"asset":       t.Asset,
		"direction":   t.Direction,
		"entry_price": t.EntryPrice,
		"quantity":    t.Quantity,
		"strategy":    t.Strategy,
		"status":      t.Status,
		"stop_loss":   t.StopLoss,
		"take_profit": t.TakeProfit,
		"peak_profit": t.PeakProfit,
		"confidence":  t.Confidence,
		"opened_at":   t.OpenedAt,
	}
	if t.ClosedAt != nil {
		view["closed_at"] = *t.ClosedAt
	}
	if t.ExitPrice != nil {
		view["exit_price"] = *t.ExitPrice
	}
	if t.ProfitLoss != nil {
		view["profit_loss"] = *t.ProfitLoss
	}
	if t.CloseReason != nil {
		view["close_reason"] = *t.CloseReason
	}
	return view
}

func tradeViews(trades []*db.Trade) []gin.H {
	views := make([]gin.H, 0, len(trades))
	for _, t := range trades {
		views = append(views, tradeView(t))
	}
	return views
}
