package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"portfolio_tracker/internal/entity"
	"portfolio_tracker/internal/pkg/utils"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefiLlamaClient defines the interface for the DefiLlama coins price API.
type DefiLlamaClient interface {
	GetCurrentPrices(ctx context.Context, coinIDs []string) (map[string]entity.LlamaCoinPrice, error)
}

// defiLlamaClientImpl is the implementation of DefiLlamaClient.
type defiLlamaClientImpl struct {
	client             *fasthttp.Client
	baseURL            string
	timeout            time.Duration
	logger             *zap.Logger
	limiter            *rate.Limiter
	maxCoinsPerRequest int
}

// NewDefiLlamaClient creates a new instance of defiLlamaClientImpl.
// requestsPerMinute <= 0 disables client-side rate limiting.
func NewDefiLlamaClient(baseURL string, timeout time.Duration, logger *zap.Logger, maxCoinsPerRequest, requestsPerMinute int) DefiLlamaClient {
	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1)
	}
	return &defiLlamaClientImpl{
		client:             &fasthttp.Client{},
		baseURL:            strings.TrimRight(baseURL, "/"),
		timeout:            timeout,
		logger:             logger.Named("DefiLlamaClient"),
		limiter:            limiter,
		maxCoinsPerRequest: maxCoinsPerRequest,
	}
}

// GetCurrentPrices implements the DefiLlamaClient interface. Coin identifiers
// use the "chain:address" form; requests larger than maxCoinsPerRequest are
// split into several API calls and the responses merged.
func (c *defiLlamaClientImpl) GetCurrentPrices(ctx context.Context, coinIDs []string) (map[string]entity.LlamaCoinPrice, error) {
	if len(coinIDs) == 0 {
		return nil, fmt.Errorf("coinIDs cannot be empty")
	}

	merged := make(map[string]entity.LlamaCoinPrice, len(coinIDs))
	for _, chunk := range utils.BatchStrings(coinIDs, c.maxCoinsPerRequest) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter interrupted: %w", err)
			}
		}

		coins, err := c.fetchChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		for id, price := range coins {
			merged[id] = price
		}
	}

	c.logger.Debug("Resolved prices from DefiLlama",
		zap.Int("requested", len(coinIDs)),
		zap.Int("resolved", len(merged)))
	return merged, nil
}

func (c *defiLlamaClientImpl) fetchChunk(ctx context.Context, coinIDs []string) (map[string]entity.LlamaCoinPrice, error) {
	requestURL := fmt.Sprintf("%s/prices/current/%s", c.baseURL, strings.Join(coinIDs, ","))

	c.logger.Debug("Requesting prices from DefiLlama", zap.String("url", requestURL))

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.SetContentTypeBytes([]byte("application/json"))

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			c.logger.Error("Failed to execute request to DefiLlama", zap.String("url", requestURL), zap.Error(err))
			return nil, fmt.Errorf("failed to execute request to %s: %w", requestURL, err)
		}
	} else {
		if err := c.client.DoTimeout(req, resp, c.timeout); err != nil {
			c.logger.Error("Failed to execute request to DefiLlama (with default timeout)", zap.String("url", requestURL), zap.Error(err))
			return nil, fmt.Errorf("failed to execute request to %s with default timeout: %w", requestURL, err)
		}
	}

	rawBody := resp.Body()

	if resp.StatusCode() != fasthttp.StatusOK {
		c.logger.Error("DefiLlama API request failed",
			zap.String("url", requestURL),
			zap.Int("statusCode", resp.StatusCode()),
			zap.ByteString("responseBody", rawBody),
		)
		return nil, fmt.Errorf("DefiLlama API request to %s failed with status %d: %s", requestURL, resp.StatusCode(), string(rawBody))
	}

	var parsed entity.LlamaPriceResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		c.logger.Error("Failed to unmarshal DefiLlama response",
			zap.String("url", requestURL),
			zap.ByteString("responseBody", rawBody),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to unmarshal DefiLlama response from %s: %w", requestURL, err)
	}

	if len(parsed.Coins) == 0 {
		c.logger.Warn("DefiLlama returned 200 OK with no priced coins. Check coin identifiers.",
			zap.String("url", requestURL),
			zap.ByteString("responseBody", rawBody))
	}

	return parsed.Coins, nil
}
