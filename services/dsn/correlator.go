package dsn

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/inboundly/mailcore/dto"
	"github.com/inboundly/mailcore/internal/enum"
	"github.com/inboundly/mailcore/internal/models"
	"github.com/inboundly/mailcore/internal/tracing"
	"github.com/inboundly/mailcore/internal/utils"
)

// bounceAlertCooldown throttles repeat notifications for the same
// domain + bounce class pair. MTAs retrying a dead mailbox can emit the same
// DSN for days.
const bounceAlertCooldown = 6 * time.Hour

// correlate resolves a classified DSN back to the outbound send that triggered
// it and fills in the ownership chain. Every lookup is account-scoped; a DSN
// can never attribute a bounce to another account's send.
func (s *dsnService) correlate(ctx context.Context, userID string, classification *dto.DsnClassification) (*dto.BounceAttribution, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "dsnService.correlate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	attribution := &dto.BounceAttribution{
		IsDsn:          true,
		BounceType:     classification.BounceType,
		StatusCode:     classification.DeliveryStatus.Status,
		FinalRecipient: classification.DeliveryStatus.FinalRecipient,
		DiagnosticText: classification.DiagnosticText,
		BouncedAt:      utils.Now(),
	}

	send, err := s.findTriggeringSend(ctx, userID, classification)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if send == nil {
		// Attribution degrades gracefully: the classification stands on its
		// own even when the send predates capture.
		s.log.Warnf("dsn for user %s could not be matched to an outbound send (original message-id %q)", userID, classification.OriginalMessage.MessageID)
		return attribution, nil
	}

	attribution.TriggeringMessageID = send.ID
	attribution.UserID = send.UserID
	attribution.DomainName = send.DomainName
	if attribution.DomainName == "" {
		attribution.DomainName = utils.ExtractDomainFromEmail(send.FromAddress)
	}

	if attribution.DomainName != "" {
		domain, err := s.repositories.DirectoryRepository.GetDomain(ctx, attribution.DomainName)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if domain != nil {
			attribution.TenantID = domain.TenantID
		}
	}

	if err := s.writeBackDeliveryStatus(ctx, send, attribution); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	s.maybeNotify(ctx, attribution)

	return attribution, nil
}

// findTriggeringSend tries the identifiers in priority order: the report's own
// In-Reply-To, then the first entry of the report's References, then the
// Message-ID echoed in the embedded original-message part. The embedded copy
// is the most reliable identity when present, but terse MTAs only set the
// report's own threading headers.
func (s *dsnService) findTriggeringSend(ctx context.Context, userID string, classification *dto.DsnClassification) (*models.OutboundEmail, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "dsnService.findTriggeringSend")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	candidates := make([]string, 0, 3)
	if classification.ReportInReplyTo != "" {
		candidates = append(candidates, classification.ReportInReplyTo)
	}
	if len(classification.ReportReferences) > 0 {
		candidates = append(candidates, classification.ReportReferences[0])
	}
	if classification.OriginalMessage.MessageID != "" {
		candidates = append(candidates, classification.OriginalMessage.MessageID)
	}

	tried := make(map[string]struct{}, len(candidates))
	for _, messageID := range candidates {
		if _, seen := tried[messageID]; seen {
			continue
		}
		tried[messageID] = struct{}{}
		send, err := s.repositories.OutboundEmailRepository.GetByMessageID(ctx, userID, messageID)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if send != nil {
			return send, nil
		}
	}

	return nil, nil
}

// writeBackDeliveryStatus records the DSN outcome on the send. A hard bounce
// is terminal and never downgraded by a later soft or success report; the
// other states follow the most recent DSN.
func (s *dsnService) writeBackDeliveryStatus(ctx context.Context, send *models.OutboundEmail, attribution *dto.BounceAttribution) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "dsnService.writeBackDeliveryStatus")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, send.ID)

	if send.DeliveryStatus == enum.DeliveryBounced {
		return nil
	}

	status := deliveryStatusForBounce(attribution.BounceType)
	detail := attribution.StatusCode
	if attribution.DiagnosticText != "" {
		detail = attribution.StatusCode + " " + attribution.DiagnosticText
	}

	var bouncedAt *time.Time
	if status == enum.DeliveryBounced {
		bouncedAt = utils.NowPtr()
	}

	return s.repositories.OutboundEmailRepository.SetDeliveryStatus(ctx, send.ID, status, detail, bouncedAt)
}

// maybeNotify dispatches a bounce alert unless one for the same domain and
// bounce class went out within the cooldown window. Notification failures are
// logged, never propagated; attribution already succeeded.
func (s *dsnService) maybeNotify(ctx context.Context, attribution *dto.BounceAttribution) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "dsnService.maybeNotify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if s.dispatcher == nil || attribution.BounceType == enum.BounceNone || attribution.BounceType == enum.BounceUndetermined {
		return
	}

	key := fmt.Sprintf("bounce:%s:%s", attribution.DomainName, attribution.BounceType)
	if s.cooldown != nil {
		ok, err := s.cooldown.ShouldNotify(ctx, key, bounceAlertCooldown)
		if err != nil {
			tracing.TraceErr(span, err)
			s.log.Warnf("bounce cooldown check failed for %s: %v", key, err)
			return
		}
		if !ok {
			return
		}
	}

	if err := s.dispatcher.DispatchBounce(ctx, attribution); err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("bounce notification dispatch failed for %s: %v", key, err)
	}
}
