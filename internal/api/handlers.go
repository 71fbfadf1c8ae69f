package api

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cosmossdk.io/math"
	"github.com/gin-gonic/gin"

	"github.com/avicenne-studio/bridge-hub/internal/domain"
	"github.com/avicenne-studio/bridge-hub/internal/fees"
	"github.com/avicenne-studio/bridge-hub/internal/orders"
	"github.com/avicenne-studio/bridge-hub/internal/respcache"
)

// respCacheTTL bounds how stale a cached GET /api/orders or
// GET /api/orders/events response may be; short enough that a newly
// created order or event is visible well within a poller interval.
const respCacheTTL = 3 * time.Second

// handleHealthBridge reports the hub's relaying posture. This
// implementation never relays on its own behalf (spec.md §1 Non-goals),
// so it is always paused.
func (s *Server) handleHealthBridge(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (s *Server) handleHealthOracles(c *gin.Context) {
	list := s.deps.Registry.List()
	out := make([]gin.H, 0, len(list))
	for _, h := range list {
		out = append(out, gin.H{
			"url":              h.URL,
			"status":           h.Status,
			"timestamp":        h.Timestamp.Format(time.RFC3339),
			"relayerFeeSolana": strconv.FormatInt(h.RelayerFeeS, 10),
			"relayerFeeQubic":  strconv.FormatInt(h.RelayerFeeQ, 10),
		})
	}
	c.JSON(http.StatusOK, gin.H{"oracles": out})
}

func (s *Server) handleKeys(c *gin.Context) {
	keys := s.deps.Signer.Keys()

	current, err := keyView(keys.Current)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{"hubId": keys.HubID, "current": current}
	if keys.Next != nil {
		next, err := keyView(*keys.Next)
		if err != nil {
			writeError(c, err)
			return
		}
		resp["next"] = next
	}
	c.JSON(http.StatusOK, resp)
}

func keyView(km domain.KeyMaterial) (gin.H, error) {
	der, err := x509.MarshalPKIXPublicKey(km.PublicKey)
	if err != nil {
		return nil, err
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	sum := sha256.Sum256(pemBytes)
	return gin.H{
		"kid":          km.KeyID,
		"publicKeyPem": string(pemBytes),
		"fingerprint":  hex.EncodeToString(sum[:]),
	}, nil
}

type ordersPage struct {
	Data       []domain.Order `json:"data"`
	Pagination struct {
		Page  int `json:"page"`
		Limit int `json:"limit"`
		Total int `json:"total"`
	} `json:"pagination"`
}

func (s *Server) handleListOrders(c *gin.Context) {
	f, err := parseOrderFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_query", "message": err.Error()})
		return
	}

	var resp ordersPage
	err = respcache.WithJSON(c.Request.Context(), s.deps.Cache, "orders?"+c.Request.URL.RawQuery, respCacheTTL, &resp, func() error {
		page, err := s.deps.Orders.Paginate(c.Request.Context(), f)
		if err != nil {
			return err
		}
		resp.Data = page.Orders
		resp.Pagination.Page = f.Page
		resp.Pagination.Limit = f.Limit
		resp.Pagination.Total = page.Total
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func parseOrderFilter(c *gin.Context) (orders.Filter, error) {
	f := orders.Filter{
		Page:  queryInt(c, "page", 1),
		Limit: queryInt(c, "limit", 20),
		Order: queryDefault(c, "order", "desc"),
	}
	if f.Limit > 200 {
		f.Limit = 200
	}

	if v := c.Query("source"); v != "" {
		chain := domain.Chain(v)
		f.Source = &chain
	}
	if v := c.Query("dest"); v != "" {
		chain := domain.Chain(v)
		f.Dest = &chain
	}
	if v := c.Query("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			f.Status = append(f.Status, domain.OrderStatus(strings.TrimSpace(s)))
		}
	}
	if v := c.Query("from"); v != "" {
		f.From = &v
	}
	if v := c.Query("to"); v != "" {
		f.To = &v
	}
	if v := c.Query("id"); v != "" {
		f.ID = &v
	}
	if v := c.Query("amount_min"); v != "" {
		amt, err := math.NewIntFromString(v)
		if err != nil {
			return f, err
		}
		f.AmountMin = &amt
	}
	if v := c.Query("amount_max"); v != "" {
		amt, err := math.NewIntFromString(v)
		if err != nil {
			return f, err
		}
		f.AmountMax = &amt
	}
	if v := c.Query("created_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.CreatedAfter = &t
	}
	if v := c.Query("created_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.CreatedBefore = &t
	}
	return f, nil
}

func (s *Server) handleOrderSignatures(c *gin.Context) {
	ids, err := s.deps.Orders.FindRelayableIDs(c.Request.Context(), 0)
	if err != nil {
		writeError(c, err)
		return
	}

	withSigs, err := s.deps.Orders.FindByIDsWithSignatures(c.Request.Context(), ids)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]gin.H, 0, len(withSigs))
	for _, ows := range withSigs {
		out = append(out, gin.H{"orderId": ows.Order.ID, "signatures": ows.Signatures})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

type eventsPage struct {
	Data   []domain.StoredEvent `json:"data"`
	Cursor domain.EventCursor   `json:"cursor"`
}

func (s *Server) handleOrderEvents(c *gin.Context) {
	createdAfter := time.Time{}
	if v := c.Query("created_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_query", "message": "created_after must be RFC3339"})
			return
		}
		createdAfter = t
	}
	afterID := int64(queryInt(c, "after_id", 0))
	limit := queryInt(c, "limit", 50)
	if limit > 500 {
		limit = 500
	}

	var resp eventsPage
	err := respcache.WithJSON(c.Request.Context(), s.deps.Cache, "events?"+c.Request.URL.RawQuery, respCacheTTL, &resp, func() error {
		evs, err := s.deps.Events.ListAfterCreatedAt(c.Request.Context(), createdAfter, afterID, limit)
		if err != nil {
			return err
		}

		cursor := domain.EventCursor{CreatedAt: createdAfter, ID: afterID}
		if len(evs) > 0 {
			last := evs[len(evs)-1]
			cursor = domain.EventCursor{CreatedAt: last.CreatedAt, ID: last.ID}
		}
		resp.Data = evs
		resp.Cursor = cursor
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleOrderByTrxHash(c *gin.Context) {
	hash := c.Query("hash")
	if hash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_query", "message": "hash is required"})
		return
	}

	order, err := s.deps.Orders.FindByOriginTrxHash(c.Request.Context(), hash)
	if err != nil {
		writeError(c, err)
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) handleOrderByID(c *gin.Context) {
	order, err := s.deps.Orders.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

type estimateRequest struct {
	NetworkIn   domain.Chain `json:"networkIn"`
	NetworkOut  domain.Chain `json:"networkOut"`
	FromAddress string       `json:"fromAddress"`
	ToAddress   string       `json:"toAddress"`
	Amount      string       `json:"amount"`
}

func (s *Server) handleEstimate(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body", "message": err.Error()})
		return
	}

	amount, err := math.NewIntFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body", "message": "amount must be a non-negative integer string"})
		return
	}

	out, err := s.deps.Estimator.Estimate(c.Request.Context(), fees.EstimateInput{
		NetworkIn:   req.NetworkIn,
		NetworkOut:  req.NetworkOut,
		FromAddress: req.FromAddress,
		ToAddress:   req.ToAddress,
		Amount:      amount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) handleStats(c *gin.Context) {
	ctx := c.Request.Context()
	statusCounts := gin.H{}
	for _, status := range []domain.OrderStatus{
		domain.StatusPending, domain.StatusInProgress, domain.StatusReadyForRelay,
		domain.StatusRelayed, domain.StatusFailed, domain.StatusFinalized,
	} {
		page, err := s.deps.Orders.Paginate(ctx, orders.Filter{Page: 1, Limit: 1, Status: []domain.OrderStatus{status}})
		if err != nil {
			writeError(c, err)
			return
		}
		statusCounts[string(status)] = page.Total
	}

	healthy := s.deps.Registry.Healthy()
	c.JSON(http.StatusOK, gin.H{
		"uptimeSeconds": int(time.Since(s.startedAt).Seconds()),
		"ordersByStatus": statusCounts,
		"oracles": gin.H{
			"healthy": len(healthy),
			"total":   s.deps.Registry.Count(),
		},
	})
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryDefault(c *gin.Context, key, def string) string {
	if v := c.Query(key); v != "" {
		return v
	}
	return def
}
