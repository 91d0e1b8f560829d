// Package core runs the per-card knowledge extraction pipeline: deterministic
// pattern extraction, linking against known entities, an optional LLM pass,
// and one transactional write of everything found.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/cardgraph/internal/core/extraction"
	"github.com/agenthands/cardgraph/internal/core/linking"
	"github.com/agenthands/cardgraph/internal/core/model"
	"github.com/agenthands/cardgraph/internal/core/pattern"
	"github.com/agenthands/cardgraph/internal/store"
)

var ErrCardNotFound = errors.New("card not found")

type CardSource interface {
	FindCard(ctx context.Context, cardID string) (model.Card, error)
}

// KnowledgeStore is the persistence the pipeline reads known entities from
// and writes results to.
type KnowledgeStore interface {
	DefaultDomain(ctx context.Context, boardID string) (model.Domain, error)
	ListDomains(ctx context.Context, boardID string) ([]model.Domain, error)
	ListBoardEntities(ctx context.Context, boardID string) ([]model.Entity, error)
	WithTx(ctx context.Context, fn func(tx *store.Tx) error) error
}

// Notifier receives progress after every stage and the final result.
type Notifier interface {
	Progress(ctx context.Context, p model.Progress) error
	Complete(ctx context.Context, cardID string, result *model.ExtractionResult) error
}

type LLMExtractor interface {
	ExtractWithLLM(ctx context.Context, card model.Card, existing []model.Entity, domains []model.Domain) extraction.Result
}

type StageObserver interface {
	ObserveStage(stage string, status string, d time.Duration)
	ObserveRun(status string, d time.Duration)
}

type Pipeline struct {
	Cards    CardSource
	Store    KnowledgeStore
	Patterns *pattern.Extractor
	Linker   *linking.Linker
	// LLM is optional; a nil extractor always skips the LLM stage.
	LLM      LLMExtractor
	Policy   extraction.Policy
	Notifier Notifier
	Observer StageObserver
	Logger   *zap.Logger
}

type Option func(*Pipeline)

func WithLLM(ex LLMExtractor, policy extraction.Policy) Option {
	return func(p *Pipeline) {
		p.LLM = ex
		p.Policy = policy
	}
}

func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.Notifier = n }
}

func WithObserver(o StageObserver) Option {
	return func(p *Pipeline) { p.Observer = o }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.Logger = l }
}

func WithLinker(l *linking.Linker) Option {
	return func(p *Pipeline) { p.Linker = l }
}

func NewPipeline(cards CardSource, st KnowledgeStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		Cards:    cards,
		Store:    st,
		Patterns: pattern.NewExtractor(),
		Linker:   linking.NewLinker(linking.Config{}),
		Notifier: nopNotifier{},
		Logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type runState struct {
	cardID  string
	card    model.Card
	domain  model.Domain
	known   []model.Entity
	domains []model.Domain

	pattern   Outcome[pattern.Result]
	links     Outcome[[]model.CandidateMention]
	llm       Outcome[extraction.Result]
	persisted Outcome[*model.ExtractionResult]

	errors []string
	fatal  error
}

func (st *runState) recordError(format string, args ...any) {
	st.errors = append(st.errors, fmt.Sprintf(format, args...))
}

// Run extracts knowledge from one card. It only returns an error when the card
// cannot be loaded or its domain cannot be established; every other problem
// is reported in the result's Errors.
func (p *Pipeline) Run(ctx context.Context, cardID string) (*model.ExtractionResult, error) {
	started := time.Now()
	log := p.Logger.With(zap.String("card_id", cardID))
	st := &runState{cardID: cardID}

	stage := StageValidateInput
	for stage != StageDone {
		stageStart := time.Now()
		status := p.runStage(ctx, stage, st)
		if p.Observer != nil {
			p.Observer.ObserveStage(string(stage), string(status), time.Since(stageStart))
		}
		log.Debug("stage finished", zap.String("stage", string(stage)), zap.String("status", string(status)))
		p.notifyProgress(ctx, log, st, stage, status)
		stage = NextStage(stage, status)
	}

	if st.fatal != nil {
		if p.Observer != nil {
			p.Observer.ObserveRun(string(StatusFailed), time.Since(started))
		}
		log.Warn("extraction aborted", zap.Error(st.fatal))
		return nil, st.fatal
	}

	result := p.buildResult(st)
	if p.Observer != nil {
		p.Observer.ObserveRun(string(StatusSucceeded), time.Since(started))
	}
	counts := result.Counts()
	log.Info("extraction finished",
		zap.Int("entities", counts.Entities),
		zap.Int("facts", counts.Facts),
		zap.Int("mentions", counts.Mentions),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("elapsed", time.Since(started)))
	return result, nil
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, st *runState) Status {
	switch stage {
	case StageValidateInput:
		return p.validateInput(ctx, st)
	case StagePatternExtract:
		st.pattern = p.patternExtract(st)
		return p.settle(st, stage, st.pattern.Status, st.pattern.Err)
	case StageLinkEntities:
		st.links = p.linkEntities(st)
		return p.settle(st, stage, st.links.Status, st.links.Err)
	case StageLLMExtract:
		st.llm = p.llmExtract(ctx, st)
		return p.settle(st, stage, st.llm.Status, st.llm.Err)
	case StagePersistResults:
		st.persisted = p.persistResults(ctx, st)
		return p.settle(st, stage, st.persisted.Status, st.persisted.Err)
	case StageBroadcast:
		return p.broadcast(ctx, st)
	}
	return StatusFailed
}

func (p *Pipeline) settle(st *runState, stage Stage, status Status, err error) Status {
	if err != nil {
		st.recordError("%s: %v", stage, err)
	}
	return status
}

func (p *Pipeline) validateInput(ctx context.Context, st *runState) Status {
	card, err := p.Cards.FindCard(ctx, st.cardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, ErrCardNotFound) {
			st.fatal = fmt.Errorf("%w: %s", ErrCardNotFound, st.cardID)
		} else {
			st.fatal = fmt.Errorf("load card %s: %w", st.cardID, err)
		}
		return StatusFailed
	}
	st.card = card

	domain, err := p.Store.DefaultDomain(ctx, card.BoardID)
	if err != nil {
		st.fatal = fmt.Errorf("establish domain for board %s: %w", card.BoardID, err)
		return StatusFailed
	}
	st.domain = domain

	if st.known, err = p.Store.ListBoardEntities(ctx, card.BoardID); err != nil {
		st.recordError("%s: list entities: %v", StageValidateInput, err)
		st.known = nil
	}
	if st.domains, err = p.Store.ListDomains(ctx, card.BoardID); err != nil {
		st.recordError("%s: list domains: %v", StageValidateInput, err)
		st.domains = []model.Domain{domain}
	}
	return StatusSucceeded
}

func (p *Pipeline) patternExtract(st *runState) (out Outcome[pattern.Result]) {
	empty := pattern.Result{Entities: []model.ExtractedEntity{}, Facts: []model.ExtractedFact{}}
	defer func() {
		if r := recover(); r != nil {
			out = recovered(empty, fmt.Errorf("panic: %v", r))
		}
	}()
	res := p.Patterns.Extract(st.card.Title, model.FieldTitle)
	res = res.Merge(p.Patterns.Extract(st.card.Description, model.FieldDescription))
	return succeeded(res)
}

func (p *Pipeline) linkEntities(st *runState) (out Outcome[[]model.CandidateMention]) {
	defer func() {
		if r := recover(); r != nil {
			out = recovered([]model.CandidateMention{}, fmt.Errorf("panic: %v", r))
		}
	}()
	known := linkable(st.known, st.card.ID)
	if len(known) == 0 {
		return skipped([]model.CandidateMention{})
	}
	mentions := p.Linker.Link(st.card.Title, model.FieldTitle, known)
	mentions = append(mentions, p.Linker.Link(st.card.Description, model.FieldDescription, known)...)
	return succeeded(mentions)
}

// linkable drops the card's own artifact entity, whose name is the title.
func linkable(known []model.Entity, cardID string) []model.Entity {
	out := make([]model.Entity, 0, len(known))
	for _, e := range known {
		if e.ExternalSource != nil && *e.ExternalSource == CardExternalSource &&
			e.ExternalID != nil && *e.ExternalID == cardID {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (p *Pipeline) llmExtract(ctx context.Context, st *runState) Outcome[extraction.Result] {
	empty := extraction.Result{Entities: []model.ExtractedEntity{}, Facts: []model.ExtractedFact{}}
	if p.LLM == nil || !extraction.ShouldUseLLM(p.Policy, st.card, st.pattern.Value.Len()) {
		return skipped(empty)
	}
	res := p.LLM.ExtractWithLLM(ctx, st.card, st.known, st.domains)
	if res.Err != nil && res.Len() == 0 {
		return recovered(empty, res.Err)
	}
	if res.Err != nil {
		// Salvaged output is kept but the problem is still reported.
		return recovered(res, res.Err)
	}
	return succeeded(res)
}

func (p *Pipeline) persistResults(ctx context.Context, st *runState) Outcome[*model.ExtractionResult] {
	result := newResult(st.cardID)
	var itemErrors []string
	err := p.Store.WithTx(ctx, func(tx *store.Tx) error {
		w := newWriter(tx, st.card, st.domain, st.known, p.Logger)
		if err := w.write(ctx, st.pattern.Value, st.links.Value, st.llm.Value); err != nil {
			return err
		}
		w.fill(result)
		itemErrors = w.errors
		return nil
	})
	if err != nil {
		return failed(newResult(st.cardID), err)
	}
	st.errors = append(st.errors, itemErrors...)
	return succeeded(result)
}

func (p *Pipeline) broadcast(ctx context.Context, st *runState) Status {
	result := p.buildResult(st)
	if err := p.Notifier.Complete(ctx, st.cardID, result); err != nil {
		p.Logger.Warn("completion notification failed", zap.String("card_id", st.cardID), zap.Error(err))
		return StatusFailed
	}
	return StatusSucceeded
}

func (p *Pipeline) notifyProgress(ctx context.Context, log *zap.Logger, st *runState, stage Stage, status Status) {
	err := p.Notifier.Progress(ctx, model.Progress{
		CardID: st.cardID,
		Stage:  string(stage),
		Index:  stage.Index(),
		Total:  StageCount,
		Status: string(status),
	})
	if err != nil {
		log.Warn("progress notification failed", zap.String("stage", string(stage)), zap.Error(err))
	}
}

func (p *Pipeline) buildResult(st *runState) *model.ExtractionResult {
	result := st.persisted.Value
	if result == nil {
		result = newResult(st.cardID)
	}
	result.Errors = append([]string{}, st.errors...)
	result.Stats = model.ExtractionStats{
		Pattern: st.pattern.Value.Len(),
		LLM:     st.llm.Value.Len(),
		Linked:  len(st.links.Value),
	}
	return result
}

func newResult(cardID string) *model.ExtractionResult {
	return &model.ExtractionResult{
		CardID:   cardID,
		Entities: []model.Entity{},
		Facts:    []model.Fact{},
		Mentions: []model.Mention{},
		Errors:   []string{},
	}
}

type nopNotifier struct{}

func (nopNotifier) Progress(context.Context, model.Progress) error { return nil }

func (nopNotifier) Complete(context.Context, string, *model.ExtractionResult) error { return nil }
