package dto

import (
	"time"

	"github.com/inboundly/mailcore/internal/enum"
)

// DeliveryStatusInfo carries the per-recipient fields parsed from the
// message/delivery-status part of a DSN.
type DeliveryStatusInfo struct {
	Status         string `json:"status"` // RFC 3463 enhanced status code, e.g. 5.1.1
	Action         string `json:"action"`
	FinalRecipient string `json:"finalRecipient"`
	RemoteMTA      string `json:"remoteMta"`
}

// OriginalMessageRefs are the identifying headers recovered from the embedded
// original-message part of a DSN.
type OriginalMessageRefs struct {
	MessageID  string   `json:"messageId"`
	InReplyTo  string   `json:"inReplyTo"`
	References []string `json:"references"`
}

// DsnClassification is the full output of the DSN classifier.
// ReportInReplyTo and ReportReferences are the report's own threading
// headers; terse reporting MTAs set these without embedding any copy of the
// original message, so the correlator consults them first.
type DsnClassification struct {
	IsDsn            bool                `json:"isDsn"`
	BounceType       enum.BounceType     `json:"bounceType"`
	DeliveryStatus   DeliveryStatusInfo  `json:"deliveryStatus"`
	DiagnosticText   string              `json:"diagnosticText"`
	ReportInReplyTo  string              `json:"reportInReplyTo"`
	ReportReferences []string            `json:"reportReferences"`
	OriginalMessage  OriginalMessageRefs `json:"originalMessage"`
}

// BounceAttribution resolves a DSN back to the outbound send that triggered it
// and the account/domain/tenant that owns the send. Fields may legitimately be
// empty; consumers branch on what is populated.
type BounceAttribution struct {
	IsDsn               bool            `json:"isDsn"`
	BounceType          enum.BounceType `json:"bounceType"`
	StatusCode          string          `json:"statusCode"`
	FinalRecipient      string          `json:"finalRecipient"`
	DiagnosticText      string          `json:"diagnosticText"`
	TriggeringMessageID string          `json:"triggeringMessageId"` // storage id of the outbound send
	UserID              string          `json:"userId"`
	DomainName          string          `json:"domainName"`
	TenantID            string          `json:"tenantId"`
	BouncedAt           time.Time       `json:"bouncedAt"`
}
