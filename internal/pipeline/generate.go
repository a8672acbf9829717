package pipeline

import (
	"context"

	"github.com/mohammad-safakhou/citesearch/provider"
	"github.com/mohammad-safakhou/citesearch/provider/models"
	"go.uber.org/zap"
)

// generate calls the text generation capability; any failure yields "".
func generate(ctx context.Context, gen provider.TextGenerator, logger *zap.Logger, capability string, req models.GenerateRequest) string {
	if gen == nil {
		return ""
	}
	out, err := gen.Generate(ctx, req)
	if err != nil {
		recordCapabilityFailure(ctx, capability)
		logger.Warn("text generation failed",
			zap.String("capability", capability),
			zap.String("model", req.Model),
			zap.Error(err))
		return ""
	}
	return out
}
