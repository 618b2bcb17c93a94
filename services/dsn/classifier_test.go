package dsn

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboundly/mailcore/internal/enum"
)

// buildDsn assembles a multipart/report DSN with the given per-recipient
// status block and an embedded copy of the original message headers.
func buildDsn(statusBlock string) []byte {
	raw := strings.Join([]string{
		"From: Mail Delivery System <MAILER-DAEMON@mx.example.com>",
		"To: sender@mydomain.com",
		"Subject: Undeliverable: Quarterly report",
		"MIME-Version: 1.0",
		`Content-Type: multipart/report; report-type=delivery-status; boundary="rprt"`,
		"",
		"--rprt",
		"Content-Type: text/plain",
		"",
		"The following message could not be delivered to one or more recipients.",
		"",
		"--rprt",
		"Content-Type: message/delivery-status",
		"",
		"Reporting-MTA: dns; mx.example.com",
		"",
		statusBlock,
		"",
		"--rprt",
		"Content-Type: message/rfc822",
		"",
		"Message-Id: <orig@mydomain.com>",
		"In-Reply-To: <parent@remote.com>",
		"References: <grandparent@remote.com> <parent@remote.com>",
		"From: sender@mydomain.com",
		"To: bob@remote.com",
		"Subject: Quarterly report",
		"",
		"original body",
		"--rprt--",
		"",
	}, "\r\n")
	return []byte(raw)
}

func TestClassify_HardBounce(t *testing.T) {
	raw := buildDsn(strings.Join([]string{
		"Final-Recipient: rfc822; bob@remote.com",
		"Action: failed",
		"Status: 5.1.1",
		"Remote-MTA: dns; mail.remote.com",
		"Diagnostic-Code: smtp; 550 5.1.1 user unknown",
	}, "\r\n"))

	classification, err := Classify(raw)
	require.NoError(t, err)

	assert.True(t, classification.IsDsn)
	assert.Equal(t, enum.BounceHard, classification.BounceType)
	assert.Equal(t, "5.1.1", classification.DeliveryStatus.Status)
	assert.Equal(t, "failed", classification.DeliveryStatus.Action)
	assert.Equal(t, "bob@remote.com", classification.DeliveryStatus.FinalRecipient)
	assert.Equal(t, "mail.remote.com", classification.DeliveryStatus.RemoteMTA)
	assert.Equal(t, "smtp; 550 5.1.1 user unknown", classification.DiagnosticText)
}

func TestClassify_RecoversOriginalMessageRefs(t *testing.T) {
	raw := buildDsn(strings.Join([]string{
		"Final-Recipient: rfc822; bob@remote.com",
		"Action: failed",
		"Status: 5.1.1",
	}, "\r\n"))

	classification, err := Classify(raw)
	require.NoError(t, err)

	assert.Equal(t, "orig@mydomain.com", classification.OriginalMessage.MessageID)
	assert.Equal(t, "parent@remote.com", classification.OriginalMessage.InReplyTo)
	assert.Equal(t, []string{"grandparent@remote.com", "parent@remote.com"}, classification.OriginalMessage.References)
}

// The report's own threading headers are captured separately from the embedded
// original's so the correlator can prefer them.
func TestClassify_CapturesReportThreadingHeaders(t *testing.T) {
	raw := []byte(strings.Join([]string{
		"From: MAILER-DAEMON@mx.example.com",
		"To: sender@mydomain.com",
		"Subject: Undeliverable mail",
		"In-Reply-To: <abc@mydomain.com>",
		"References: <abc@mydomain.com> <earlier@mydomain.com>",
		"MIME-Version: 1.0",
		`Content-Type: multipart/report; report-type=delivery-status; boundary="rprt"`,
		"",
		"--rprt",
		"Content-Type: message/delivery-status",
		"",
		"Reporting-MTA: dns; mx.example.com",
		"",
		"Final-Recipient: rfc822; bob@remote.com",
		"Action: failed",
		"Status: 5.1.1",
		"",
		"--rprt--",
		"",
	}, "\r\n"))

	classification, err := Classify(raw)
	require.NoError(t, err)

	assert.True(t, classification.IsDsn)
	assert.Equal(t, "abc@mydomain.com", classification.ReportInReplyTo)
	assert.Equal(t, []string{"abc@mydomain.com", "earlier@mydomain.com"}, classification.ReportReferences)
	assert.Empty(t, classification.OriginalMessage.MessageID)
}

func TestClassify_DelayedIsTransient(t *testing.T) {
	raw := buildDsn(strings.Join([]string{
		"Final-Recipient: rfc822; bob@remote.com",
		"Action: delayed",
		"Status: 4.4.1",
		"Diagnostic-Code: smtp; 451 connection timed out, still retrying",
	}, "\r\n"))

	classification, err := Classify(raw)
	require.NoError(t, err)

	assert.True(t, classification.IsDsn)
	assert.Equal(t, enum.BounceTransient, classification.BounceType)
}

func TestClassify_FourHundredFailureIsSoft(t *testing.T) {
	raw := buildDsn(strings.Join([]string{
		"Final-Recipient: rfc822; bob@remote.com",
		"Action: failed",
		"Status: 4.2.2",
		"Diagnostic-Code: smtp; 452 mailbox full",
	}, "\r\n"))

	classification, err := Classify(raw)
	require.NoError(t, err)

	assert.Equal(t, enum.BounceSoft, classification.BounceType)
}

func TestClassify_SuccessNotification(t *testing.T) {
	raw := buildDsn(strings.Join([]string{
		"Final-Recipient: rfc822; bob@remote.com",
		"Action: delivered",
		"Status: 2.0.0",
	}, "\r\n"))

	classification, err := Classify(raw)
	require.NoError(t, err)

	assert.True(t, classification.IsDsn)
	assert.Equal(t, enum.BounceNone, classification.BounceType)
}

func TestClassify_RegularMessageIsNotDsn(t *testing.T) {
	raw := []byte(strings.Join([]string{
		"From: alice@example.com",
		"To: bob@mydomain.com",
		"Subject: lunch?",
		"Content-Type: text/plain",
		"",
		"are you free at noon",
		"",
	}, "\r\n"))

	classification, err := Classify(raw)
	require.NoError(t, err)

	assert.False(t, classification.IsDsn)
	assert.Equal(t, enum.BounceUndetermined, classification.BounceType)
}

// Some MTAs send plain-text bounces without a delivery-status part. The
// mailer-daemon sender plus a bounce subject still classifies it, with the
// status code scanned out of the body.
func TestClassify_NonCompliantTextBounce(t *testing.T) {
	raw := []byte(strings.Join([]string{
		"From: MAILER-DAEMON@mx.example.com",
		"To: sender@mydomain.com",
		"Subject: Mail delivery failed: returning message to sender",
		"Content-Type: text/plain",
		"",
		"550 5.1.1 <bob@remote.com>: user unknown",
		"",
		"This is a permanent error.",
		"",
	}, "\r\n"))

	classification, err := Classify(raw)
	require.NoError(t, err)

	assert.True(t, classification.IsDsn)
	assert.Equal(t, "5.1.1", classification.DeliveryStatus.Status)
	assert.Equal(t, enum.BounceHard, classification.BounceType)
	assert.Equal(t, "550 5.1.1 <bob@remote.com>: user unknown", classification.DiagnosticText)
}

// text/rfc822-headers is an accepted alternative to a full embedded message.
func TestClassify_HeadersOnlyOriginalPart(t *testing.T) {
	raw := []byte(strings.Join([]string{
		"From: MAILER-DAEMON@mx.example.com",
		"To: sender@mydomain.com",
		"Subject: Undeliverable mail",
		"MIME-Version: 1.0",
		`Content-Type: multipart/report; report-type=delivery-status; boundary="rprt"`,
		"",
		"--rprt",
		"Content-Type: message/delivery-status",
		"",
		"Reporting-MTA: dns; mx.example.com",
		"",
		"Final-Recipient: rfc822; bob@remote.com",
		"Action: failed",
		"Status: 5.2.1",
		"",
		"--rprt",
		"Content-Type: text/rfc822-headers",
		"",
		"Message-Id: <orig2@mydomain.com>",
		"Subject: hello",
		"",
		"--rprt--",
		"",
	}, "\r\n"))

	classification, err := Classify(raw)
	require.NoError(t, err)

	assert.True(t, classification.IsDsn)
	assert.Equal(t, enum.BounceHard, classification.BounceType)
	assert.Equal(t, "orig2@mydomain.com", classification.OriginalMessage.MessageID)
	assert.Empty(t, classification.OriginalMessage.InReplyTo)
}
