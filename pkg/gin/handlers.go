package gin

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/relayer"
)

const maxBodyBytes = 64 << 10

type handlers struct {
	services Services
	logger   *zap.Logger
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "chainId": h.services.ChainID})
}

// gaslessSwap validates the body before handing it to the relayer.
func (h *handlers) gaslessSwap(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		abortFundError(c, fund.WrapFundError(fund.ErrCodeInvalidRequest, "Invalid request body", err))
		return
	}

	if result := validateSwapRequest(body); !result.Valid() {
		message := "Invalid request"
		if result.Missing {
			message = relayer.ErrMissingParameters.Message
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   message,
			"code":    fund.ErrCodeInvalidRequest,
			"details": result.Errors,
		})
		return
	}

	var req relayer.SwapRequest
	if err := json.Unmarshal(body, &req); err != nil {
		abortFundError(c, fund.WrapFundError(fund.ErrCodeInvalidRequest, "Invalid request body", err))
		return
	}

	resp, err := h.services.Relayer.Submit(c.Request.Context(), &req)
	if err != nil {
		h.logger.Warn("gasless swap rejected",
			zap.String("request_id", c.GetString(ginKeyRequestID)),
			zap.String("user", req.UserAddress),
			zap.Error(err))
		abortFundError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) relayerStatus(c *gin.Context) {
	status, err := h.services.Relayer.Status(c.Request.Context())
	if err != nil {
		abortFundError(c, fund.WrapFundError(fund.ErrCodeRelayerUnavailable, "Relayer status unavailable", err))
		return
	}
	c.JSON(http.StatusOK, status)
}

type orderStatusResponse struct {
	OrderUID    string           `json:"orderUid"`
	Status      fund.OrderStatus `json:"status"`
	IsExecuted  bool             `json:"isExecuted"`
	IsPending   bool             `json:"isPending"`
	IsFailed    bool             `json:"isFailed"`
	TxHash      string           `json:"txHash,omitempty"`
	BasescanURL string           `json:"basescanUrl,omitempty"`
}

func (h *handlers) orderStatus(c *gin.Context) {
	uid := c.Query("orderUid")
	if uid == "" {
		abortFundError(c, fund.NewFundError(fund.ErrCodeInvalidRequest, "Order UID is required", nil))
		return
	}

	info, err := h.services.Orders.OrderStatus(c.Request.Context(), uid)
	if err != nil {
		h.logger.Warn("order status lookup failed", zap.String("orderUid", uid), zap.Error(err))
		abortFundError(c, fund.WrapFundError(fund.ErrCodeNetwork, "Failed to fetch order status", err))
		return
	}

	resp := orderStatusResponse{
		OrderUID:   uid,
		Status:     info.Status,
		IsExecuted: info.Status == fund.OrderFulfilled,
		IsPending:  info.Status.Pending(),
		IsFailed:   info.Status.Failed(),
		TxHash:     info.TxHash,
	}
	if info.TxHash != "" {
		if network, err := evm.GetNetworkConfig(h.services.ChainID); err == nil {
			resp.BasescanURL = network.TxURL(info.TxHash)
		}
	}
	c.JSON(http.StatusOK, resp)
}

type progressResponse struct {
	TotalRaised      string    `json:"totalRaised"`
	ContributorCount int       `json:"contributorCount"`
	Goal             string    `json:"goal"`
	Percentage       string    `json:"percentage"`
	ProjectID        int       `json:"projectId"`
	LastUpdated      time.Time `json:"lastUpdated"`
	Fallback         bool      `json:"fallback"`
}

func (h *handlers) juiceboxData(c *gin.Context) {
	projectID := h.services.Progress.ProjectID()
	if raw := c.Query("projectId"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			abortFundError(c, fund.NewFundError(fund.ErrCodeInvalidRequest, "Invalid project id", nil))
			return
		}
		projectID = id
	}

	p := h.services.Progress.Fetch(c.Request.Context(), projectID)
	c.JSON(http.StatusOK, progressResponse{
		TotalRaised:      p.TotalRaised.String(),
		ContributorCount: p.ContributorCount,
		Goal:             p.Goal.String(),
		Percentage:       p.Percentage().StringFixed(1),
		ProjectID:        projectID,
		LastUpdated:      p.UpdatedAt,
		Fallback:         p.Fallback,
	})
}

func (h *handlers) price(c *gin.Context) {
	rate := h.services.Prices.Rate()
	c.JSON(http.StatusOK, gin.H{
		"usd":       rate.USD.String(),
		"fallback":  rate.Fallback,
		"updatedAt": rate.UpdatedAt,
	})
}

// statusFor maps an error code to the HTTP status returned for it.
func statusFor(code string) int {
	switch code {
	case fund.ErrCodeInvalidRequest, fund.ErrCodeInvalidAmount, fund.ErrCodeInsufficientBalance, fund.ErrCodeNoAddress:
		return http.StatusBadRequest
	case fund.ErrCodeRelayerUnavailable:
		return http.StatusServiceUnavailable
	case fund.ErrCodeOrderFailed, fund.ErrCodeTransactionFailed, fund.ErrCodeNetwork, fund.ErrCodeGasEstimation:
		return http.StatusBadGateway
	case fund.ErrCodeInFlight:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortFundError(c *gin.Context, err error) {
	var fe *fund.FundError
	if !errors.As(err, &fe) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal error",
		})
		return
	}
	body := gin.H{
		"success": false,
		"error":   fe.Message,
		"code":    fe.Code,
	}
	if len(fe.Details) > 0 {
		body["details"] = fe.Details
	}
	c.AbortWithStatusJSON(statusFor(fe.Code), body)
}
