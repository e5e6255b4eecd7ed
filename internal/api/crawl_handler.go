package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dealmungchi/dealcrawler/internal/engine"
)

// crawl runs a crawl job. With ?async=true it answers 202 with the job id
// and the job keeps running after the request ends.
func (s *Server) crawl(c *gin.Context) {
	var req engine.CrawlJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	async, _ := strconv.ParseBool(c.Query("async"))
	if async {
		s.startCrawl(c, req)
		return
	}

	result, err := s.crawler.ExecuteCrawlJob(c.Request.Context(), req)
	if err != nil {
		s.respondJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) startCrawl(c *gin.Context, req engine.CrawlJobRequest) {
	jobID, done, err := s.crawler.StartCrawlJob(s.ctx, req)
	if err != nil {
		s.respondJobError(c, err)
		return
	}

	go func() {
		result, ok := <-done
		if !ok || result == nil {
			return
		}
		s.log.ForJob(jobID).Info().
			Bool("success", result.Success).
			Int("total_saved", result.Stats.TotalSaved).
			Msg("Async crawl job finished")
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"jobId":  jobID,
		"status": "accepted",
	})
}

func (s *Server) respondJobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrNoSources),
		errors.Is(err, engine.ErrUnknownSource),
		errors.Is(err, engine.ErrInvalidOptions):
		respondBadRequest(c, err.Error())
	default:
		s.log.Error().Err(err).Msg("Crawl job failed to start")
		respondInternalError(c, "failed to run crawl job")
	}
}

func (s *Server) sources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": s.crawler.Sources()})
}
