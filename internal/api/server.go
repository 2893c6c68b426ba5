package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"syntax-engine/internal/observability"
	"syntax-engine/internal/storage"
)

const defaultEquityHours = 24

// Server exposes the read-only dashboard API. It never writes: all decision
// and sync logic lives in the evaluation engine and the broker monitor.
type Server struct {
	Router *gin.Engine

	accounts  storage.AccountStore
	states    storage.TradingStateStore
	snapshots storage.EquitySnapshotStore
	logger    *zap.SugaredLogger
	now       func() time.Time
}

// Options configures a Server.
type Options struct {
	Accounts  storage.AccountStore
	States    storage.TradingStateStore
	Snapshots storage.EquitySnapshotStore
	Logger    *zap.SugaredLogger
	Now       func() time.Time // test hook
}

// NewServer creates the router with all routes registered.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		Router:    router,
		accounts:  opts.Accounts,
		states:    opts.States,
		snapshots: opts.Snapshots,
		logger:    logger,
		now:       now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", gin.WrapH(observability.Handler()))

	api := s.Router.Group("/api")
	{
		api.GET("/traders", s.listTraders)
		api.GET("/accounts", s.listAccounts)
		api.GET("/equity/:email", s.equityHistory)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// traderView is one row of the live dashboard.
type traderView struct {
	UserEmail   string          `json:"user_email"`
	Balance     decimal.Decimal `json:"balance"`
	Equity      decimal.Decimal `json:"equity"`
	DailyPnL    decimal.Decimal `json:"daily_pnl"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	LastTradeAt *time.Time      `json:"last_trade_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (s *Server) listTraders(c *gin.Context) {
	states, err := s.states.ListActive(c.Request.Context())
	if err != nil {
		s.fail(c, "list trading states", err)
		return
	}

	views := make([]traderView, 0, len(states))
	for _, st := range states {
		views = append(views, traderView{
			UserEmail:   st.UserEmail,
			Balance:     st.Balance,
			Equity:      st.Equity,
			DailyPnL:    st.DailyPnL,
			Currency:    st.Currency,
			Status:      string(st.Status),
			LastTradeAt: st.LastTradeAt,
			UpdatedAt:   st.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"traders": views})
}

// accountView is an account configuration row. Broker tokens are never
// serialized.
type accountView struct {
	UserEmail        string          `json:"user_email"`
	BrokerType       string          `json:"broker_type"`
	StartBalance     decimal.Decimal `json:"start_balance"`
	ProfitTarget     decimal.Decimal `json:"profit_target"`
	MaxDrawdownLimit decimal.Decimal `json:"max_drawdown_limit"`
	ChallengeStatus  *string         `json:"challenge_status"`
	IsActive         bool            `json:"is_active"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (s *Server) listAccounts(c *gin.Context) {
	accounts, err := s.accounts.ListActive(c.Request.Context())
	if err != nil {
		s.fail(c, "list accounts", err)
		return
	}

	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		var status *string
		if a.ChallengeStatus != nil {
			v := string(*a.ChallengeStatus)
			status = &v
		}
		views = append(views, accountView{
			UserEmail:        a.UserEmail,
			BrokerType:       a.BrokerType,
			StartBalance:     a.StartBalance,
			ProfitTarget:     a.ProfitTarget,
			MaxDrawdownLimit: a.MaxDrawdownLimit,
			ChallengeStatus:  status,
			IsActive:         a.IsActive,
			UpdatedAt:        a.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"accounts": views})
}

// equityPoint is one sample of the equity chart.
type equityPoint struct {
	TimestampMs int64           `json:"timestamp_ms"`
	Balance     decimal.Decimal `json:"balance"`
	Equity      decimal.Decimal `json:"equity"`
	DailyPnL    decimal.Decimal `json:"daily_pnl"`
}

func (s *Server) equityHistory(c *gin.Context) {
	email := c.Param("email")

	hours := defaultEquityHours
	if raw := c.Query("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be a positive integer"})
			return
		}
		hours = parsed
	}

	end := s.now().UTC()
	start := end.Add(-time.Duration(hours) * time.Hour)

	points, err := s.snapshots.GetByUserRange(c.Request.Context(), email, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		s.fail(c, "equity history", err)
		return
	}

	views := make([]equityPoint, 0, len(points))
	for _, p := range points {
		views = append(views, equityPoint{
			TimestampMs: p.TimestampMs,
			Balance:     p.Balance,
			Equity:      p.Equity,
			DailyPnL:    p.DailyPnL,
		})
	}
	c.JSON(http.StatusOK, gin.H{"user_email": email, "hours": hours, "points": views})
}

func (s *Server) fail(c *gin.Context, operation string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	s.logger.Errorw("api request failed", "operation", operation, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
