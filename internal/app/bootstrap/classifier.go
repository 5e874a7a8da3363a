package bootstrap

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/wolfman30/vetclinic-ai-platform/internal/classifier"
	appconfig "github.com/wolfman30/vetclinic-ai-platform/internal/config"
	"github.com/wolfman30/vetclinic-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// BuildClassifier chains the configured LLM providers in front of the
// keyword classifier and wraps the chain so it never fails a turn. awsCfg
// may be nil when Bedrock is not configured.
func BuildClassifier(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, m *metrics.ConversationMetrics, logger *logging.Logger) classifier.Classifier {
	var primary, secondary classifier.LLMClient
	if cfg.BedrockModelID != "" && awsCfg != nil {
		primary = classifier.NewBedrockLLMClient(bedrockruntime.NewFromConfig(*awsCfg))
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := classifier.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Warn("gemini client unavailable", "error", err)
		} else {
			secondary = gemini
		}
	}
	if primary == nil {
		primary, secondary = secondary, nil
	}

	stages := []classifier.Stage{}
	if primary != nil {
		llm := classifier.NewLLMClassifier(classifier.NewFallbackLLMClient(primary, secondary, logger), cfg.BedrockModelID, cfg.ClassifierTimeout)
		stages = append(stages, classifier.Stage{Name: "llm", Classifier: llm})
		logger.Info("llm classifier enabled", "bedrock_model", cfg.BedrockModelID, "gemini", cfg.GeminiAPIKey != "")
	} else {
		logger.Warn("no llm configured; classifying with keywords only")
	}
	stages = append(stages, classifier.Stage{Name: "keyword", Classifier: classifier.NewKeywordClassifier()})
	return classifier.NewSafe(classifier.NewChain(logger, m, stages...), logger, m)
}
