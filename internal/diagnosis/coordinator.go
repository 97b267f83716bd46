// Package diagnosis orchestrates one analysis pass: classify, assess,
// remediate, ask the AI collaborator, correlate with history, recommend and
// persist.
//
// Analyze never fails. Each stage substitutes a safe default when its
// collaborator is missing or broken, so the caller always gets a usable
// record. Management operations (Get, History, Transition, ...) do return
// errors: types.ErrNotConfigured without a store, types.ErrNotFound for
// unknown ids.
package diagnosis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/medic/internal/ai"
	"github.com/steveyegge/medic/internal/capture"
	"github.com/steveyegge/medic/internal/classify"
	"github.com/steveyegge/medic/internal/metrics"
	"github.com/steveyegge/medic/internal/remediation"
	"github.com/steveyegge/medic/internal/retry"
	"github.com/steveyegge/medic/internal/storage"
	"github.com/steveyegge/medic/internal/types"
)

// DefaultRelatedLimit caps historical correlation results
const DefaultRelatedLimit = 5

// Remediator runs remediation for a classified event
type Remediator interface {
	Remediate(ctx context.Context, event types.ErrorEvent, classification types.Classification, rctx remediation.Context) types.RemediationResult
}

// ModelCache remembers resolved model names between analyses
type ModelCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// Config holds coordinator configuration. Every collaborator is optional.
type Config struct {
	Store      storage.AnalysisStore
	Remediator Remediator
	Classifier *classify.Classifier

	AI          ai.Client
	AIEnabled   bool
	Provider    string        // Recorded on AI analyses. Default: anthropic
	Model       string        // Preferred model; falls back to the first listed
	Temperature float64       // Default: 0.2
	AITimeout   time.Duration // Default: 90s
	Models      ModelCache    // Optional; cleared by memory relief

	RelatedLimit   int           // Default: 5
	RelatedTimeout time.Duration // Default: 10s
	PersistTimeout time.Duration // Default: 10s

	Logger *slog.Logger
}

// Options tune a single analysis
type Options struct {
	// Operation is the failed operation; retrying strategies re-run it
	Operation retry.Operation
	// StorageHandle selects the storage tuned by lock recovery
	StorageHandle string
	// DisableAI skips the AI stage for this analysis
	DisableAI bool
}

// Coordinator runs analyses and serves the management operations
type Coordinator struct {
	store      storage.AnalysisStore
	remediator Remediator
	classifier *classify.Classifier

	ai          ai.Client
	aiEnabled   bool
	provider    string
	model       string
	temperature float64
	aiTimeout   time.Duration
	models      ModelCache

	relatedLimit   int
	relatedTimeout time.Duration
	persistTimeout time.Duration

	logger *slog.Logger
	now    func() time.Time
}

// Compile-time check that Coordinator can drain a capture hub
var _ capture.Analyzer = (*Coordinator)(nil)

// New creates a coordinator
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		store:          cfg.Store,
		remediator:     cfg.Remediator,
		classifier:     cfg.Classifier,
		ai:             cfg.AI,
		aiEnabled:      cfg.AIEnabled,
		provider:       cfg.Provider,
		model:          cfg.Model,
		temperature:    cfg.Temperature,
		aiTimeout:      cfg.AITimeout,
		models:         cfg.Models,
		relatedLimit:   cfg.RelatedLimit,
		relatedTimeout: cfg.RelatedTimeout,
		persistTimeout: cfg.PersistTimeout,
		logger:         cfg.Logger,
		now:            time.Now,
	}
	if c.classifier == nil {
		c.classifier = classify.Default()
	}
	if c.provider == "" {
		c.provider = ai.ProviderAnthropic
	}
	if c.temperature == 0 {
		c.temperature = 0.2
	}
	if c.aiTimeout <= 0 {
		c.aiTimeout = 90 * time.Second
	}
	if c.relatedLimit <= 0 {
		c.relatedLimit = DefaultRelatedLimit
	}
	if c.relatedTimeout <= 0 {
		c.relatedTimeout = 10 * time.Second
	}
	if c.persistTimeout <= 0 {
		c.persistTimeout = 10 * time.Second
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "diagnosis")
	return c
}

// Analyze normalizes err and runs a full analysis pass
func (c *Coordinator) Analyze(ctx context.Context, err error) *types.AnalysisRecord {
	return c.AnalyzeEvent(ctx, capture.Normalize(err), Options{})
}

// HandleEvent analyzes an event delivered by the capture hub
func (c *Coordinator) HandleEvent(ctx context.Context, event types.ErrorEvent) {
	c.AnalyzeEvent(ctx, event, Options{})
}

// AnalyzeEvent runs a full analysis pass over an already normalized event.
// Caller cancellation is ignored: the pass always runs to completion within
// its own stage timeouts.
func (c *Coordinator) AnalyzeEvent(ctx context.Context, event types.ErrorEvent, opts Options) *types.AnalysisRecord {
	ctx = context.WithoutCancel(ctx)
	start := c.now()

	classification := c.classifier.Classify(event)
	severity := classify.Assess(classification)

	rec := &types.AnalysisRecord{
		ID:              uuid.NewString(),
		ErrorID:         event.ID,
		Event:           event,
		Classification:  classification,
		Severity:        severity,
		Keywords:        ExtractKeywords(event.Message),
		AIEnabled:       c.aiEnabled && c.ai != nil && !opts.DisableAI,
		RelatedIssues:   []types.RelatedIssue{},
		Recommendations: []types.Recommendation{},
		Status:          types.StatusAnalyzing,
		CreatedAt:       start,
		UpdatedAt:       start,
	}

	logger := c.logger.With("analysis_id", rec.ID, "classification", classification, "severity", severity)
	logger.Info("analyzing error", "message", event.Summary())

	rec.Remediation = c.remediate(ctx, event, classification, opts, logger)

	// AI diagnosis and historical correlation are independent
	var g errgroup.Group
	g.Go(func() error {
		rec.AIDiagnosis = c.diagnose(ctx, rec, logger)
		return nil
	})
	g.Go(func() error {
		rec.RelatedIssues = c.related(ctx, rec, logger)
		return nil
	})
	_ = g.Wait()

	rec.Recommendations = Recommend(rec)
	rec.Status = types.StatusAnalyzed
	rec.UpdatedAt = c.now()

	c.persist(ctx, rec, logger)

	metrics.AnalysesTotal.WithLabelValues(string(classification), string(severity)).Inc()
	metrics.AnalysisLatency.WithLabelValues(string(classification)).Observe(time.Since(start).Seconds())

	logger.Info("analysis complete",
		"remediated", rec.Remediation.Success,
		"ai_available", rec.AIDiagnosis != nil && rec.AIDiagnosis.Available,
		"related", len(rec.RelatedIssues),
		"duration", time.Since(start).Round(time.Millisecond))
	return rec
}

func (c *Coordinator) remediate(ctx context.Context, event types.ErrorEvent, classification types.Classification, opts Options, logger *slog.Logger) (res types.RemediationResult) {
	if c.remediator == nil {
		return types.NotAttempted(classification)
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("remediation panicked", "panic", r)
			res = types.RemediationResult{
				Attempted:      true,
				Classification: classification,
				Message:        fmt.Sprintf("remediation panicked: %v", r),
			}
		}
		strategy := res.Strategy
		if strategy == "" {
			strategy = "none"
		}
		metrics.RemediationsTotal.WithLabelValues(strategy, metrics.Outcome(res.Success)).Inc()
	}()

	return c.remediator.Remediate(ctx, event, classification, remediation.Context{
		Operation:     opts.Operation,
		StorageHandle: opts.StorageHandle,
	})
}

// diagnose asks the AI collaborator for a root-cause analysis. Any failure
// degrades to an unavailable analysis.
func (c *Coordinator) diagnose(ctx context.Context, rec *types.AnalysisRecord, logger *slog.Logger) (analysis *types.AIAnalysis) {
	if !rec.AIEnabled {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("AI diagnosis panicked", "panic", r)
			analysis = types.Unavailable(fmt.Sprintf("AI diagnosis panicked: %v", r))
			analysis.Provider = c.provider
		}
		metrics.AICallsTotal.WithLabelValues(metrics.Outcome(analysis != nil && analysis.Available)).Inc()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.aiTimeout)
	defer cancel()

	model, err := c.resolveModel(ctx)
	if err != nil {
		logger.Warn("AI model resolution failed", "error", err)
		analysis = types.Unavailable(err.Error())
		analysis.Provider = c.provider
		return analysis
	}

	resp, err := c.ai.Chat(ctx, ai.Messages(ai.PromptInput{
		Event:          rec.Event,
		Classification: rec.Classification,
		Severity:       rec.Severity,
		Remediation:    rec.Remediation,
	}), ai.ChatOptions{Model: model, Temperature: c.temperature})
	if err != nil {
		logger.Warn("AI diagnosis failed", "model", model, "error", err)
		analysis = types.Unavailable(err.Error())
		analysis.Provider = c.provider
		analysis.Model = model
		return analysis
	}

	if resp.Model != "" {
		model = resp.Model
	}
	sections := ai.ParseSections(resp.Content)
	return &types.AIAnalysis{
		Available:     true,
		Provider:      c.provider,
		Model:         model,
		RootCause:     sections.RootCause,
		Fixes:         sections.Fixes,
		BestPractices: sections.BestPractices,
		References:    sections.References,
		Raw:           resp.Content,
	}
}

func (c *Coordinator) resolveModel(ctx context.Context) (string, error) {
	key := "model:" + c.model
	if c.models != nil {
		if v, ok := c.models.Get(key); ok {
			if model, ok := v.(string); ok {
				return model, nil
			}
		}
	}
	model, err := ai.ResolveModel(ctx, c.ai, c.model)
	if err != nil {
		return "", err
	}
	if c.models != nil {
		c.models.Set(key, model)
	}
	return model, nil
}

// related queries prior analyses sharing keywords or classification
func (c *Coordinator) related(ctx context.Context, rec *types.AnalysisRecord, logger *slog.Logger) (out []types.RelatedIssue) {
	out = []types.RelatedIssue{}
	if c.store == nil {
		return out
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("related issue query panicked", "panic", r)
			out = []types.RelatedIssue{}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.relatedTimeout)
	defer cancel()

	related, err := c.store.FindRelated(ctx, rec.Keywords, rec.Classification, rec.ID, c.relatedLimit)
	if err != nil {
		logger.Warn("related issue query failed", "error", err)
		return out
	}
	if len(related) > c.relatedLimit {
		related = related[:c.relatedLimit]
	}
	return related
}

// persist inserts the record once. Failure is logged, never returned.
func (c *Coordinator) persist(ctx context.Context, rec *types.AnalysisRecord, logger *slog.Logger) {
	if c.store == nil {
		logger.Debug("no analysis store configured, record not persisted")
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("persisting analysis panicked", "panic", r)
			metrics.PersistFailures.Inc()
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.persistTimeout)
	defer cancel()

	if err := c.store.Insert(ctx, rec); err != nil {
		logger.Error("failed to persist analysis", "error", err)
		metrics.PersistFailures.Inc()
	}
}
