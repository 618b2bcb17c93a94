package dsn

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/inboundly/mailcore/dto"
	"github.com/inboundly/mailcore/interfaces"
	"github.com/inboundly/mailcore/internal/enum"
	er "github.com/inboundly/mailcore/internal/errors"
	"github.com/inboundly/mailcore/internal/logger"
	"github.com/inboundly/mailcore/internal/repository"
	"github.com/inboundly/mailcore/internal/tracing"
)

type dsnService struct {
	repositories *repository.Repositories
	dispatcher   interfaces.NotificationDispatcher
	cooldown     interfaces.CooldownStore
	log          logger.Logger
}

// NewDSNService builds the classifier/correlator pipeline. dispatcher and
// cooldown may be nil; attribution then runs without notifications.
func NewDSNService(repositories *repository.Repositories, dispatcher interfaces.NotificationDispatcher, cooldown interfaces.CooldownStore, log logger.Logger) interfaces.DSNService {
	return &dsnService{
		repositories: repositories,
		dispatcher:   dispatcher,
		cooldown:     cooldown,
		log:          log,
	}
}

func (s *dsnService) ClassifyAndCorrelate(ctx context.Context, userID string, raw []byte) (*dto.BounceAttribution, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "dsnService.ClassifyAndCorrelate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagComponentService(span)

	if userID == "" {
		tracing.TraceErr(span, er.ErrUserIdMissing)
		return nil, er.ErrUserIdMissing
	}
	if len(raw) == 0 {
		tracing.TraceErr(span, er.ErrRawContentMissing)
		return nil, er.ErrRawContentMissing
	}

	classification, err := Classify(raw)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if !classification.IsDsn {
		return &dto.BounceAttribution{IsDsn: false, BounceType: enum.BounceUndetermined}, nil
	}

	span.SetTag("bounce_type", classification.BounceType.String())
	span.SetTag("status_code", classification.DeliveryStatus.Status)

	return s.correlate(ctx, userID, classification)
}
