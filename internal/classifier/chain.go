package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/vetclinic-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// Stage names a classifier inside a chain, for logs and metrics.
type Stage struct {
	Name       string
	Classifier Classifier
}

// Chain tries each stage in order and returns the first success.
type Chain struct {
	stages  []Stage
	logger  *logging.Logger
	metrics *metrics.ConversationMetrics
}

// NewChain builds a chain. Nil classifiers are skipped so optional
// providers can be passed unconditionally.
func NewChain(logger *logging.Logger, m *metrics.ConversationMetrics, stages ...Stage) *Chain {
	if logger == nil {
		logger = logging.Default()
	}
	kept := make([]Stage, 0, len(stages))
	for _, s := range stages {
		if s.Classifier != nil {
			kept = append(kept, s)
		}
	}
	return &Chain{stages: kept, logger: logger, metrics: m}
}

func (c *Chain) Classify(ctx context.Context, text string, history []Message) (Result, error) {
	var errs []error
	for i, stage := range c.stages {
		res, err := stage.Classifier.Classify(ctx, text, history)
		if err == nil {
			if i > 0 {
				c.metrics.ObserveClassifierFallback(stage.Name)
			}
			return res, nil
		}
		c.logger.Warn("classifier stage failed", "stage", stage.Name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", stage.Name, err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return Result{}, errors.New("classifier: empty chain")
	}
	return Result{}, errors.Join(errs...)
}

// Safe never returns an error: any failure becomes Unclear. It also
// normalizes the result so downstream code can rely on its shape.
type Safe struct {
	inner   Classifier
	logger  *logging.Logger
	metrics *metrics.ConversationMetrics
}

func NewSafe(inner Classifier, logger *logging.Logger, m *metrics.ConversationMetrics) *Safe {
	if logger == nil {
		logger = logging.Default()
	}
	return &Safe{inner: inner, logger: logger, metrics: m}
}

func (s *Safe) Classify(ctx context.Context, text string, history []Message) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("classifier panicked", "panic", fmt.Sprint(r))
			s.metrics.ObserveClassifierFallback("safe")
			res, err = Unclear(), nil
		}
	}()
	if s.inner == nil {
		return Unclear(), nil
	}
	res, err = s.inner.Classify(ctx, text, history)
	if err != nil {
		s.logger.Warn("classification failed, treating as unclear", "error", err)
		s.metrics.ObserveClassifierFallback("safe")
		return Unclear(), nil
	}
	if _, ok := ParseIntent(string(res.Intent)); !ok {
		return Unclear(), nil
	}
	res.Confidence = clamp01(res.Confidence)
	if res.Urgency == "" {
		res.Urgency = UrgencyNone
	}
	return res, nil
}
