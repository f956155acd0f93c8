package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"venue-core/internal/binary"
	"venue-core/internal/contract"
	"venue-core/internal/errs"
)

type placeContractRequest struct {
	Symbol     string  `json:"symbol" binding:"required,min=1"`
	Direction  string  `json:"direction" binding:"required,oneof=long short"`
	Quantity   float64 `json:"quantity" binding:"gt=0"`
	Leverage   float64 `json:"leverage" binding:"gte=1"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

type placeBinaryRequest struct {
	StrategyID string  `json:"strategy_id" binding:"required,min=1"`
	Direction  string  `json:"direction" binding:"required,oneof=up down"`
	Stake      float64 `json:"stake" binding:"gt=0"`
}

type fundAmountRequest struct {
	Amount float64 `json:"amount" binding:"gt=0"`
}

type fundSharesRequest struct {
	Shares float64 `json:"shares" binding:"gt=0"`
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// respondEngineError maps the error taxonomy onto HTTP statuses: caller
// faults 400/404, business rejections 422, state conflicts 409, everything
// else 500.
func respondEngineError(c *gin.Context, err error) {
	var (
		ve *errs.ValidationError
		nf *errs.NotFoundError
		ib *errs.InsufficientBalanceError
		im *errs.InsufficientMarginError
		is *errs.InvalidStateError
	)
	switch {
	case errors.As(err, &ve):
		respondError(c, http.StatusBadRequest, "VALIDATION", err.Error())
	case errors.As(err, &nf):
		respondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.As(err, &ib):
		respondError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE", err.Error())
	case errors.As(err, &im):
		respondError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_MARGIN", err.Error())
	case errors.As(err, &is):
		respondError(c, http.StatusConflict, "INVALID_STATE", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

// --- Market ---

func (s *Server) getAllMarketData(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"market": s.Svc.GetAllMarketData(c.Request.Context())})
}

func (s *Server) getMarketData(c *gin.Context) {
	data, err := s.Svc.GetMarketData(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (s *Server) getPriceHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, http.StatusBadRequest, "VALIDATION", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	ticks, err := s.Svc.GetPriceHistory(c.Request.Context(), c.Param("symbol"), limit)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": c.Param("symbol"), "history": ticks})
}

// --- Contract Orders ---

func (s *Server) placeContractOrder(c *gin.Context) {
	var req placeContractRequest
	if err := c.BindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
		return
	}

	o, err := s.Svc.PlaceContractOrder(c.Request.Context(), contract.OpenRequest{
		UserID:     CurrentUserID(c),
		Symbol:     req.Symbol,
		Direction:  contract.Direction(req.Direction),
		Quantity:   req.Quantity,
		Leverage:   req.Leverage,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
	})
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (s *Server) getContractOrders(c *gin.Context) {
	orders := s.Svc.GetContractOrders(c.Request.Context(), CurrentUserID(c))
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) closeContractPosition(c *gin.Context) {
	o, err := s.Svc.CloseContractPosition(c.Request.Context(), CurrentUserID(c), c.Param("id"))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// --- Binary Options ---

func (s *Server) getBinaryStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": s.Svc.ListBinaryStrategies(c.Request.Context())})
}

func (s *Server) placeBinaryOrder(c *gin.Context) {
	var req placeBinaryRequest
	if err := c.BindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
		return
	}

	o, err := s.Svc.PlaceBinaryOrder(c.Request.Context(), CurrentUserID(c), req.StrategyID, binary.Direction(req.Direction), req.Stake)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (s *Server) getBinaryActiveOrders(c *gin.Context) {
	orders := s.Svc.GetBinaryActiveOrders(c.Request.Context(), CurrentUserID(c))
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// --- Funds ---

func (s *Server) getFunds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"funds": s.Svc.ListFunds(c.Request.Context())})
}

func (s *Server) subscribeFund(c *gin.Context) {
	var req fundAmountRequest
	if err := c.BindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
		return
	}

	h, err := s.Svc.SubscribeFund(c.Request.Context(), CurrentUserID(c), c.Param("id"), req.Amount)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, h)
}

func (s *Server) redeemFund(c *gin.Context) {
	var req fundSharesRequest
	if err := c.BindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
		return
	}

	proceeds, err := s.Svc.RedeemFund(c.Request.Context(), CurrentUserID(c), c.Param("id"), req.Shares)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proceeds": proceeds})
}

// --- Account & Portfolio ---

func (s *Server) getBalance(c *gin.Context) {
	c.JSON(http.StatusOK, s.Svc.GetBalance(c.Request.Context(), CurrentUserID(c)))
}

func (s *Server) getPortfolio(c *gin.Context) {
	c.JSON(http.StatusOK, s.Svc.GetUserPortfolio(c.Request.Context(), CurrentUserID(c)))
}

// --- System ---

func (s *Server) getSystemStatus(c *gin.Context) {
	status := s.Svc.GetSystemStatus(c.Request.Context())
	status.ServerTime = status.ServerTime.UTC()
	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"sessions": s.Gateway.SessionCount(),
	})
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}
