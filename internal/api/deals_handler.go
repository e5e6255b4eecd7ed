package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dealmungchi/dealcrawler/internal/deal"
	"github.com/dealmungchi/dealcrawler/services/store"
)

func (s *Server) listDeals(c *gin.Context) {
	limit, offset := parseLimitOffset(c, store.DefaultLimit, 0)
	filter := store.Filter{
		Source:   c.Query("source"),
		Category: c.Query("category"),
		Status:   deal.Status(c.Query("status")),
		Limit:    limit,
		Offset:   offset,
	}
	switch filter.Status {
	case "", deal.StatusActive, deal.StatusEnded:
	default:
		respondBadRequest(c, "status must be active or ended")
		return
	}

	deals, err := s.deals.FindAll(c.Request.Context(), filter)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list deals")
		respondInternalError(c, "failed to list deals")
		return
	}
	if deals == nil {
		deals = []deal.Deal{}
	}

	c.JSON(http.StatusOK, gin.H{
		"deals":  deals,
		"count":  len(deals),
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) getDeal(c *gin.Context) {
	d, err := s.deals.FindByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		respondNotFound(c, "deal")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("id", c.Param("id")).Msg("Failed to get deal")
		respondInternalError(c, "failed to get deal")
		return
	}
	c.JSON(http.StatusOK, d)
}
