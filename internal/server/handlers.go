package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agenthands/cardgraph/internal/core/model"
	"github.com/agenthands/cardgraph/internal/store"
)

type upsertCardRequest struct {
	BoardID     string `json:"board_id" binding:"required"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type mergeRequest struct {
	TargetID   string `json:"target_id" binding:"required"`
	AbsorbedID string `json:"absorbed_id" binding:"required"`
}

type aliasRequest struct {
	Alias string `json:"alias" binding:"required"`
}

func (s *Server) UpsertCard(c *gin.Context) {
	var req upsertCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	card, err := s.Store.UpsertCard(c.Request.Context(), model.Card{
		ID:          c.Param("id"),
		BoardID:     req.BoardID,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

// ExtractCard starts a run in the background and answers 202. With
// ?sync=true it runs inline and returns the result.
func (s *Server) ExtractCard(c *gin.Context) {
	cardID := c.Param("id")
	if _, err := s.Store.FindCard(c.Request.Context(), cardID); err != nil {
		s.fail(c, err)
		return
	}
	inline, _ := strconv.ParseBool(c.Query("sync"))

	if err := s.Tracker.Enqueue(cardID); err != nil {
		s.fail(c, err)
		return
	}

	if inline {
		result, err := s.Pipeline.Run(c.Request.Context(), cardID)
		if err != nil {
			s.Tracker.Fail(cardID, err)
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		if _, err := s.Pipeline.Run(s.ctx, cardID); err != nil {
			s.Logger.Warn("extraction failed", zap.String("card_id", cardID), zap.Error(err))
			s.Tracker.Fail(cardID, err)
		}
	}()

	job, _ := s.Tracker.Get(cardID)
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) ExtractionStatus(c *gin.Context) {
	job, ok := s.Tracker.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no extraction for card"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) CardKnowledge(c *gin.Context) {
	ctx := c.Request.Context()
	card, err := s.Store.FindCard(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	mentions, err := s.Store.ListCardMentions(ctx, card.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	facts, err := s.Store.ListCardFacts(ctx, card.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"card": card, "mentions": mentions, "facts": facts})
}

func (s *Server) ExtractBoard(c *gin.Context) {
	boardID := c.Param("id")
	cards, err := s.Store.ListBoardCards(c.Request.Context(), boardID)
	if err != nil {
		s.fail(c, err)
		return
	}
	ids := make([]string, len(cards))
	for i, card := range cards {
		ids[i] = card.ID
	}
	items := s.Pipeline.RunMany(c.Request.Context(), ids, s.BulkLimit)
	c.JSON(http.StatusOK, gin.H{"board_id": boardID, "items": items})
}

func (s *Server) BoardEntities(c *gin.Context) {
	entities, err := s.Store.ListBoardEntities(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entities)
}

func (s *Server) BoardFacts(c *gin.Context) {
	includeExpired := false
	if v := c.Query("include_expired"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "include_expired must be a boolean"})
			return
		}
		includeExpired = b
	}
	facts, err := s.Store.ListBoardFacts(c.Request.Context(), c.Param("id"), includeExpired)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, facts)
}

// ReviewQueue lists inferred rows below the review threshold. ?threshold
// overrides the configured value.
func (s *Server) ReviewQueue(c *gin.Context) {
	threshold := s.ReviewThreshold
	if v := c.Query("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 || t > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be between 0 and 1"})
			return
		}
		threshold = t
	}
	ctx := c.Request.Context()
	boardID := c.Param("id")
	entities, err := s.Store.ListReviewEntities(ctx, boardID, threshold)
	if err != nil {
		s.fail(c, err)
		return
	}
	facts, err := s.Store.ListReviewFacts(ctx, boardID, threshold)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"threshold": threshold, "entities": entities, "facts": facts})
}

func (s *Server) BoardClusters(c *gin.Context) {
	clusters, err := s.Clusters.Build(c.Request.Context(), s.Store, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, clusters)
}

func (s *Server) ReconcileBoard(c *gin.Context) {
	if s.Dedupe == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconciliation needs an LLM provider"})
		return
	}
	ctx := c.Request.Context()
	report, err := s.Dedupe.Reconcile(ctx, s.Store, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	for _, pair := range report.Merged {
		s.mirrorMerge(ctx, pair.OriginalID, pair.DuplicateID)
	}
	for _, id := range report.Expired {
		if f, err := s.Store.GetFact(ctx, id); err == nil {
			s.mirrorExpire(ctx, f)
		}
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) MergeEntities(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	ctx := c.Request.Context()
	if err := s.onBoard(ctx, c.Param("id"), req.TargetID); err != nil {
		s.fail(c, err)
		return
	}
	merged, err := s.Store.MergeEntities(ctx, req.TargetID, req.AbsorbedID)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.mirrorMerge(ctx, merged.ID, req.AbsorbedID)
	c.JSON(http.StatusOK, merged)
}

func (s *Server) AddAlias(c *gin.Context) {
	var req aliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	entity, err := s.Store.AddAlias(c.Request.Context(), c.Param("id"), req.Alias)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

func (s *Server) SummarizeEntity(c *gin.Context) {
	if s.Summarizer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "summaries need an LLM provider"})
		return
	}
	entity, err := s.Summarizer.Refresh(c.Request.Context(), s.Store, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

func (s *Server) ExpireFact(c *gin.Context) {
	ctx := c.Request.Context()
	fact, err := s.Store.ExpireFact(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.mirrorExpire(ctx, fact)
	c.JSON(http.StatusOK, fact)
}

func (s *Server) onBoard(ctx context.Context, boardID, entityID string) error {
	e, err := s.Store.GetEntity(ctx, entityID)
	if err != nil {
		return err
	}
	d, err := s.Store.GetDomain(ctx, e.DomainID)
	if err != nil {
		return err
	}
	if d.BoardID != boardID {
		return fmt.Errorf("%w: entity %s on board %s", store.ErrNotFound, entityID, boardID)
	}
	return nil
}

// Graph mirror failures are logged; the store stays authoritative.

func (s *Server) mirrorMerge(ctx context.Context, targetID, absorbedID string) {
	if s.Graph == nil {
		return
	}
	target, err := s.Store.GetEntity(ctx, targetID)
	if err == nil {
		var facts []model.Fact
		if facts, err = s.Store.ListEntityFacts(ctx, targetID); err == nil {
			err = s.Graph.EntitiesMerged(ctx, absorbedID, target, facts)
		}
	}
	if err != nil {
		s.Logger.Warn("graph mirror: merge", zap.String("target_id", targetID), zap.Error(err))
	}
}

func (s *Server) mirrorExpire(ctx context.Context, f model.Fact) {
	if s.Graph == nil {
		return
	}
	if err := s.Graph.FactExpired(ctx, f); err != nil && !errors.Is(err, context.Canceled) {
		s.Logger.Warn("graph mirror: expire", zap.String("fact_id", f.ID), zap.Error(err))
	}
}
