package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"borsa/internal/correlation"
	"borsa/internal/database"
	"borsa/internal/ledger"
	"borsa/internal/performance"
	"borsa/internal/service"
)

type Handler struct {
	repo *database.Repo
	svc  *service.Analytics
	log  *logrus.Logger
}

func NewHandler(r *database.Repo, svc *service.Analytics, log *logrus.Logger) *Handler {
	return &Handler{repo: r, svc: svc, log: log}
}

// Register wires every route onto the engine.
func (h *Handler) Register(rg *gin.Engine) {
	rg.POST("/portfolios", h.CreatePortfolio)
	rg.GET("/portfolios/:id/holdings", h.GetHoldings)
	rg.GET("/portfolios/:id/performance", h.GetPerformance)
	rg.GET("/portfolios/:id/transactions", h.ListTransactions)
	rg.POST("/portfolios/:id/transactions", h.PostTransaction)
	rg.DELETE("/portfolios/:id/transactions/:txid", h.DeleteTransaction)
	rg.GET("/correlations/:index", h.GetCorrelations)
}

type PortfolioRequest struct {
	Name     string `json:"name" binding:"required"`
	Currency string `json:"currency"`
}

func (h *Handler) CreatePortfolio(c *gin.Context) {
	var req PortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("invalid portfolio body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.repo.CreatePortfolio(c.Request.Context(), req.Name, req.Currency)
	if err != nil {
		h.log.Errorf("create portfolio failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"portfolio_id": id})
}

type TransactionRequest struct {
	Symbol    string    `json:"symbol" binding:"required"`
	Type      string    `json:"type" binding:"required"`
	Quantity  string    `json:"quantity" binding:"required"`
	UnitPrice string    `json:"unit_price" binding:"required"`
	Fees      string    `json:"fees"`
	Timestamp time.Time `json:"timestamp" binding:"required"`
}

func (h *Handler) PostTransaction(c *gin.Context) {
	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("invalid transaction body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txType, err := ledger.ParseType(req.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity format"})
		return
	}
	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid unit_price format"})
		return
	}
	fees := decimal.Zero
	if req.Fees != "" {
		if fees, err = decimal.NewFromString(req.Fees); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fees format"})
			return
		}
	}

	id, err := h.svc.AddTransaction(c.Request.Context(), ledger.Transaction{
		PortfolioID: c.Param("id"),
		Symbol:      req.Symbol,
		Type:        txType,
		Timestamp:   req.Timestamp,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Fees:        fees,
	})
	switch {
	case errors.Is(err, ledger.ErrInsufficientShares):
		c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient shares for sale"})
		return
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "portfolio not found"})
		return
	case err != nil:
		h.log.Errorf("create transaction failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction_id": id})
}

func (h *Handler) DeleteTransaction(c *gin.Context) {
	err := h.svc.RemoveTransaction(c.Request.Context(), c.Param("id"), c.Param("txid"))
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	case err != nil:
		h.log.Errorf("delete transaction failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) ListTransactions(c *gin.Context) {
	txs, err := h.repo.ListTransactions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.log.Errorf("list transactions failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, txs)
}

func (h *Handler) GetHoldings(c *gin.Context) {
	portfolioID := c.Param("id")
	holdings, err := h.repo.GetHoldings(c.Request.Context(), portfolioID)
	if err != nil {
		h.log.Errorf("get holdings failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	total, err := h.repo.LatestHoldingValue(c.Request.Context(), portfolioID)
	if err != nil {
		h.log.Errorf("value holdings failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"holdings": holdings, "total_value": total.StringFixed(4)})
}

func (h *Handler) GetPerformance(c *gin.Context) {
	days := 0
	if v := c.Query("days"); v != "" {
		iv, err := strconv.Atoi(v)
		if err != nil || iv <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = iv
	}

	summary, err := h.svc.Performance(c.Request.Context(), c.Param("id"), days)
	switch {
	case errors.Is(err, performance.ErrInsufficientData):
		c.JSON(http.StatusNotFound, gin.H{"error": "no performance data for this portfolio"})
		return
	case err != nil:
		h.log.Errorf("get performance failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) GetCorrelations(c *gin.Context) {
	result, err := h.svc.Correlations(c.Request.Context(), c.Param("index"))
	switch {
	case errors.Is(err, correlation.ErrInsufficientData):
		c.JSON(http.StatusNotFound, gin.H{"error": "not enough priced instruments for correlation analysis"})
		return
	case err != nil:
		h.log.Errorf("get correlations failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}
