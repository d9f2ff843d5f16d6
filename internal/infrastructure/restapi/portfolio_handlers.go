package restapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/domain/entity"
)

// APIPositionsResponse is the envelope for the positions endpoint.
type APIPositionsResponse struct {
	Data struct {
		Summary *entity.PortfolioSummary `json:"summary"`
	} `json:"data"`
	StatusMessage string `json:"status_message"`
}

// APIProtocolsResponse is the envelope for the protocol listing endpoint.
type APIProtocolsResponse struct {
	Data struct {
		Protocols []entity.ProtocolInfo `json:"protocols"`
	} `json:"data"`
	StatusMessage string `json:"status_message"`
}

// APIErrorResponse carries a rejected or failed request.
type APIErrorResponse struct {
	Error        string                `json:"error"`
	FailedChains []entity.ChainFailure `json:"failed_chains,omitempty"`
}

// PortfolioHandler serves the position aggregation endpoints.
type PortfolioHandler struct {
	aggregator port.PositionAggregator
	registry   port.HandlerRegistry
	logger     port.Logger
}

// NewPortfolioHandler creates a new PortfolioHandler.
func NewPortfolioHandler(aggregator port.PositionAggregator, registry port.HandlerRegistry, logger port.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		aggregator: aggregator,
		registry:   registry,
		logger:     logger,
	}
}

// GetPositionsHandler scans one wallet across the requested chains. With no
// chains query parameter every configured chain is scanned.
func (h *PortfolioHandler) GetPositionsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	address := c.Param("address")
	chains := parseChainsQuery(c.Query("chains"))

	summary, err := h.aggregator.ScanAddress(ctx, address, chains)
	if err != nil {
		h.writeScanError(c, address, err)
		return
	}

	response := APIPositionsResponse{}
	response.Data.Summary = summary

	switch {
	case len(summary.FailedChains) > 0:
		response.StatusMessage = "Positions retrieved. Some chains failed, their data is missing."
	case len(summary.Positions) == 0:
		response.StatusMessage = "No positions found for this wallet on the scanned chains."
	default:
		response.StatusMessage = "Positions retrieved successfully."
	}

	c.JSON(http.StatusOK, response)
}

// GetProtocolsHandler lists the registered protocol handlers.
func (h *PortfolioHandler) GetProtocolsHandler(c *gin.Context) {
	response := APIProtocolsResponse{StatusMessage: "Protocols retrieved successfully."}
	response.Data.Protocols = h.registry.Protocols()
	c.JSON(http.StatusOK, response)
}

func (h *PortfolioHandler) writeScanError(c *gin.Context, address string, err error) {
	switch {
	case errors.Is(err, entity.ErrInvalidAddress), errors.Is(err, entity.ErrUnknownChain):
		c.JSON(http.StatusBadRequest, APIErrorResponse{Error: err.Error()})
	default:
		var allFailed *entity.AllChainsFailedError
		if errors.As(err, &allFailed) {
			c.JSON(http.StatusBadGateway, APIErrorResponse{
				Error:        allFailed.Error(),
				FailedChains: allFailed.Failures,
			})
			return
		}
		h.logger.Error("Position scan failed", "address", address, "error", err)
		c.JSON(http.StatusInternalServerError, APIErrorResponse{Error: "internal error"})
	}
}

func parseChainsQuery(raw string) []string {
	if raw == "" {
		return nil
	}
	var chains []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			chains = append(chains, part)
		}
	}
	return chains
}
