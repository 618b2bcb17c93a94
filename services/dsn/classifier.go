package dsn

import (
	"bufio"
	"bytes"
	"net/textproto"
	"regexp"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"

	"github.com/inboundly/mailcore/dto"
	"github.com/inboundly/mailcore/internal/enum"
	"github.com/inboundly/mailcore/internal/utils"
)

var enhancedStatusRe = regexp.MustCompile(`\b([245])\.\d{1,3}\.\d{1,3}\b`)

// Classify decides whether raw content is a delivery status notification and,
// when it is, extracts the per-recipient status fields and the identifying
// headers of the embedded original message.
//
// Non-DSN input is not an error: the result carries IsDsn false and callers
// route the message down the normal ingestion path.
func Classify(raw []byte) (*dto.DsnClassification, error) {
	classification := &dto.DsnClassification{BounceType: enum.BounceUndetermined}

	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "parse message")
	}

	if !looksLikeDsn(envelope) {
		return classification, nil
	}
	classification.IsDsn = true

	if statusPart := findPart(envelope, "message/delivery-status"); statusPart != nil {
		info, diagnostic := parseDeliveryStatus(statusPart.Content)
		classification.DeliveryStatus = info
		classification.DiagnosticText = diagnostic
	} else {
		// Non-compliant reporting MTAs put the status in the human-readable
		// part. Scan it for an enhanced status code rather than giving up.
		classification.DeliveryStatus.Status = enhancedStatusRe.FindString(envelope.Text)
		classification.DiagnosticText = firstLine(envelope.Text)
	}

	classification.BounceType = bounceTypeForStatus(classification.DeliveryStatus.Status, classification.DeliveryStatus.Action)

	// The report's own threading headers point back at the bounced send even
	// when no copy of the original message is embedded.
	classification.ReportInReplyTo = utils.NormalizeMessageID(envelope.GetHeader("In-Reply-To"))
	for _, token := range strings.Fields(envelope.GetHeader("References")) {
		if id := utils.NormalizeMessageID(token); id != "" {
			classification.ReportReferences = append(classification.ReportReferences, id)
		}
	}

	classification.OriginalMessage = extractOriginalRefs(envelope)

	return classification, nil
}

// looksLikeDsn applies the structural and header markers. multipart/report
// with report-type delivery-status is authoritative; mailer-daemon senders
// and bounce subjects catch the non-compliant remainder.
func looksLikeDsn(envelope *enmime.Envelope) bool {
	contentType := strings.ToLower(envelope.GetHeader("Content-Type"))
	if strings.Contains(contentType, "multipart/report") && strings.Contains(contentType, "delivery-status") {
		return true
	}
	if findPart(envelope, "message/delivery-status") != nil {
		return true
	}

	from := strings.ToLower(utils.ExtractEmailAddress(envelope.GetHeader("From")))
	if strings.HasPrefix(from, "mailer-daemon@") || strings.HasPrefix(from, "postmaster@") {
		subject := strings.ToLower(envelope.GetHeader("Subject"))
		for _, marker := range []string{"undeliverable", "delivery status", "failure notice", "returned mail", "mail delivery failed", "delivery has failed"} {
			if strings.Contains(subject, marker) {
				return true
			}
		}
	}

	return false
}

func findPart(envelope *enmime.Envelope, contentType string) *enmime.Part {
	if envelope.Root == nil {
		return nil
	}
	return envelope.Root.DepthMatchFirst(func(part *enmime.Part) bool {
		return strings.EqualFold(part.ContentType, contentType)
	})
}

// parseDeliveryStatus reads the header-like blocks of a message/delivery-status
// part. The first block describes the reporting MTA; each following block is
// one recipient. Only the first recipient block with a Status field is used.
func parseDeliveryStatus(content []byte) (dto.DeliveryStatusInfo, string) {
	var info dto.DeliveryStatusInfo
	var diagnostic string

	reader := textproto.NewReader(bufio.NewReader(bytes.NewReader(content)))
	for {
		header, err := reader.ReadMIMEHeader()
		if len(header) == 0 && err != nil {
			break
		}
		status := header.Get("Status")
		if status == "" {
			continue
		}

		info.Status = enhancedStatusRe.FindString(status)
		if info.Status == "" {
			info.Status = strings.TrimSpace(status)
		}
		info.Action = strings.ToLower(strings.TrimSpace(header.Get("Action")))
		info.FinalRecipient = stripAddressType(header.Get("Final-Recipient"))
		info.RemoteMTA = stripAddressType(header.Get("Remote-MTA"))
		diagnostic = strings.TrimSpace(header.Get("Diagnostic-Code"))
		break
	}

	return info, diagnostic
}

// stripAddressType drops the leading "rfc822;" / "dns;" type token from DSN
// address fields.
func stripAddressType(value string) string {
	value = strings.TrimSpace(value)
	if idx := strings.Index(value, ";"); idx >= 0 {
		value = strings.TrimSpace(value[idx+1:])
	}
	return value
}

// extractOriginalRefs recovers Message-ID, In-Reply-To and References from the
// embedded copy of the original message, whether it arrived as a full
// message/rfc822 part or as text/rfc822-headers.
func extractOriginalRefs(envelope *enmime.Envelope) dto.OriginalMessageRefs {
	var refs dto.OriginalMessageRefs

	part := findPart(envelope, "message/rfc822")
	if part == nil {
		part = findPart(envelope, "text/rfc822-headers")
	}
	if part == nil {
		return refs
	}

	reader := textproto.NewReader(bufio.NewReader(bytes.NewReader(part.Content)))
	header, err := reader.ReadMIMEHeader()
	if len(header) == 0 && err != nil {
		return refs
	}

	refs.MessageID = utils.NormalizeMessageID(header.Get("Message-Id"))
	refs.InReplyTo = utils.NormalizeMessageID(header.Get("In-Reply-To"))
	for _, token := range strings.Fields(header.Get("References")) {
		if id := utils.NormalizeMessageID(token); id != "" {
			refs.References = append(refs.References, id)
		}
	}

	return refs
}

// bounceTypeForStatus maps the enhanced status code class: 5.x.x permanent,
// 4.x.x soft (transient when the MTA is still retrying), 2.x.x is a success
// notification, anything else stays undetermined.
func bounceTypeForStatus(status, action string) enum.BounceType {
	if status == "" {
		return enum.BounceUndetermined
	}
	switch status[0] {
	case '5':
		return enum.BounceHard
	case '4':
		if action == "delayed" {
			return enum.BounceTransient
		}
		return enum.BounceSoft
	case '2':
		return enum.BounceNone
	default:
		return enum.BounceUndetermined
	}
}

// deliveryStatusForBounce maps the classification onto the outbound send's
// delivery state for write-back.
func deliveryStatusForBounce(bounceType enum.BounceType) enum.DeliveryStatus {
	switch bounceType {
	case enum.BounceHard:
		return enum.DeliveryBounced
	case enum.BounceSoft, enum.BounceTransient:
		return enum.DeliveryDeferred
	case enum.BounceNone:
		return enum.DeliveryDelivered
	default:
		return enum.DeliveryFailed
	}
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
