package dsn

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboundly/mailcore/dto"
	"github.com/inboundly/mailcore/interfaces"
	"github.com/inboundly/mailcore/internal/enum"
	"github.com/inboundly/mailcore/internal/logger"
	"github.com/inboundly/mailcore/internal/models"
	"github.com/inboundly/mailcore/internal/repository"
	"github.com/inboundly/mailcore/internal/repository/repositorytest"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

type fakeDispatcher struct {
	mu     sync.Mutex
	events []*dto.BounceAttribution
	err    error
}

func (d *fakeDispatcher) DispatchBounce(ctx context.Context, attribution *dto.BounceAttribution) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, attribution)
	return nil
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

// fakeCooldown grants each key once and suppresses it afterwards.
type fakeCooldown struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func newFakeCooldown() *fakeCooldown {
	return &fakeCooldown{claimed: make(map[string]bool)}
}

func (c *fakeCooldown) ShouldNotify(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimed[key] {
		return false, nil
	}
	c.claimed[key] = true
	return true, nil
}

type dsnFixture struct {
	store      *repositorytest.Store
	repos      *repository.Repositories
	dispatcher *fakeDispatcher
	cooldown   *fakeCooldown
	svc        interfaces.DSNService
}

func newDsnFixture(t *testing.T) *dsnFixture {
	t.Helper()
	store, repos := repositorytest.NewStore()
	dispatcher := &fakeDispatcher{}
	cooldown := newFakeCooldown()
	return &dsnFixture{
		store:      store,
		repos:      repos,
		dispatcher: dispatcher,
		cooldown:   cooldown,
		svc:        NewDSNService(repos, dispatcher, cooldown, getLogger()),
	}
}

func (f *dsnFixture) seedSend(ctx context.Context, t *testing.T, send *models.OutboundEmail) *models.OutboundEmail {
	t.Helper()
	if send.SentAt.IsZero() {
		send.SentAt = time.Now().UTC()
	}
	if send.DeliveryStatus == "" {
		send.DeliveryStatus = enum.DeliverySent
	}
	_, err := f.repos.OutboundEmailRepository.Create(ctx, send)
	require.NoError(t, err)
	return send
}

func hardBounceFor(messageID string) []byte {
	return buildDsnFor(messageID, "Action: failed", "Status: 5.1.1", "Diagnostic-Code: smtp; 550 5.1.1 user unknown")
}

func buildDsnFor(messageID string, statusLines ...string) []byte {
	lines := []string{
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
	}
	lines = append(lines, statusLines...)
	lines = append(lines,
		"",
		"--rprt",
		"Content-Type: text/rfc822-headers",
		"",
		"Message-Id: <"+messageID+">",
		"",
		"--rprt--",
		"",
	)
	return []byte(strings.Join(lines, "\r\n"))
}

// buildTerseDsn builds a report the way minimal MTAs do: the threading headers
// sit on the report itself and no copy of the original message is embedded.
func buildTerseDsn(threadingHeaders ...string) []byte {
	lines := []string{
		"From: MAILER-DAEMON@mx.example.com",
		"To: sender@mydomain.com",
		"Subject: Undeliverable mail",
	}
	lines = append(lines, threadingHeaders...)
	lines = append(lines,
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
	)
	return []byte(strings.Join(lines, "\r\n"))
}

func TestClassifyAndCorrelate_AttributesAndWritesBack(t *testing.T) {
	ctx := context.Background()
	f := newDsnFixture(t)

	_, err := f.repos.DirectoryRepository.Create(ctx, &models.MailDomain{
		UserID:     "user1",
		DomainName: "mydomain.com",
		TenantID:   "tenant1",
	})
	require.NoError(t, err)

	send := f.seedSend(ctx, t, &models.OutboundEmail{
		UserID:      "user1",
		DomainName:  "mydomain.com",
		MessageID:   "orig@mydomain.com",
		FromAddress: "sender@mydomain.com",
		ToAddresses: pq.StringArray{"bob@remote.com"},
	})

	attribution, err := f.svc.ClassifyAndCorrelate(ctx, "user1", hardBounceFor("orig@mydomain.com"))
	require.NoError(t, err)

	assert.True(t, attribution.IsDsn)
	assert.Equal(t, enum.BounceHard, attribution.BounceType)
	assert.Equal(t, send.ID, attribution.TriggeringMessageID)
	assert.Equal(t, "user1", attribution.UserID)
	assert.Equal(t, "mydomain.com", attribution.DomainName)
	assert.Equal(t, "tenant1", attribution.TenantID)
	assert.Equal(t, "bob@remote.com", attribution.FinalRecipient)

	// The send now carries the bounce
	updated, err := f.repos.OutboundEmailRepository.GetByID(ctx, send.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.DeliveryBounced, updated.DeliveryStatus)
	assert.Contains(t, updated.StatusDetail, "5.1.1")
	require.NotNil(t, updated.BouncedAt)

	assert.Equal(t, 1, f.dispatcher.count())
}

func TestClassifyAndCorrelate_HardBounceIsNeverDowngraded(t *testing.T) {
	ctx := context.Background()
	f := newDsnFixture(t)

	send := f.seedSend(ctx, t, &models.OutboundEmail{
		UserID:         "user1",
		MessageID:      "orig@mydomain.com",
		FromAddress:    "sender@mydomain.com",
		DeliveryStatus: enum.DeliveryBounced,
		StatusDetail:   "5.1.1 smtp; 550 5.1.1 user unknown",
	})

	// A late success report for the same send must not clear the bounce
	_, err := f.svc.ClassifyAndCorrelate(ctx, "user1",
		buildDsnFor("orig@mydomain.com", "Action: delivered", "Status: 2.0.0"))
	require.NoError(t, err)

	updated, err := f.repos.OutboundEmailRepository.GetByID(ctx, send.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.DeliveryBounced, updated.DeliveryStatus)
	assert.Equal(t, "5.1.1 smtp; 550 5.1.1 user unknown", updated.StatusDetail)
}

func TestClassifyAndCorrelate_UnmatchedSendDegradesGracefully(t *testing.T) {
	ctx := context.Background()
	f := newDsnFixture(t)

	attribution, err := f.svc.ClassifyAndCorrelate(ctx, "user1", hardBounceFor("never-seen@mydomain.com"))
	require.NoError(t, err)

	assert.True(t, attribution.IsDsn)
	assert.Equal(t, enum.BounceHard, attribution.BounceType)
	assert.Empty(t, attribution.TriggeringMessageID)
	assert.Empty(t, attribution.UserID)
	assert.Equal(t, 0, f.dispatcher.count(), "no alert without an attributed send")
}

func TestClassifyAndCorrelate_SoftBounceDefersDelivery(t *testing.T) {
	ctx := context.Background()
	f := newDsnFixture(t)

	send := f.seedSend(ctx, t, &models.OutboundEmail{
		UserID:      "user1",
		MessageID:   "orig@mydomain.com",
		FromAddress: "sender@mydomain.com",
	})

	_, err := f.svc.ClassifyAndCorrelate(ctx, "user1",
		buildDsnFor("orig@mydomain.com", "Action: failed", "Status: 4.2.2", "Diagnostic-Code: smtp; 452 mailbox full"))
	require.NoError(t, err)

	updated, err := f.repos.OutboundEmailRepository.GetByID(ctx, send.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.DeliveryDeferred, updated.DeliveryStatus)
	assert.Nil(t, updated.BouncedAt)
}

func TestClassifyAndCorrelate_ReportInReplyToResolvesSend(t *testing.T) {
	ctx := context.Background()
	f := newDsnFixture(t)

	send := f.seedSend(ctx, t, &models.OutboundEmail{
		UserID:      "user1",
		MessageID:   "abc@mydomain.com",
		FromAddress: "sender@mydomain.com",
	})

	attribution, err := f.svc.ClassifyAndCorrelate(ctx, "user1",
		buildTerseDsn("In-Reply-To: <abc@mydomain.com>"))
	require.NoError(t, err)

	assert.True(t, attribution.IsDsn)
	assert.Equal(t, send.ID, attribution.TriggeringMessageID)

	updated, err := f.repos.OutboundEmailRepository.GetByID(ctx, send.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.DeliveryBounced, updated.DeliveryStatus)
}

func TestClassifyAndCorrelate_ReportFirstReferenceResolvesSend(t *testing.T) {
	ctx := context.Background()
	f := newDsnFixture(t)

	send := f.seedSend(ctx, t, &models.OutboundEmail{
		UserID:      "user1",
		MessageID:   "abc@mydomain.com",
		FromAddress: "sender@mydomain.com",
	})

	attribution, err := f.svc.ClassifyAndCorrelate(ctx, "user1",
		buildTerseDsn("References: <abc@mydomain.com> <older@mydomain.com>"))
	require.NoError(t, err)

	assert.Equal(t, send.ID, attribution.TriggeringMessageID)
}

func TestClassifyAndCorrelate_ReportHeadersOutrankEmbeddedCopy(t *testing.T) {
	ctx := context.Background()
	f := newDsnFixture(t)

	direct := f.seedSend(ctx, t, &models.OutboundEmail{
		UserID:      "user1",
		MessageID:   "direct@mydomain.com",
		FromAddress: "sender@mydomain.com",
	})
	f.seedSend(ctx, t, &models.OutboundEmail{
		UserID:      "user1",
		MessageID:   "embedded@mydomain.com",
		FromAddress: "sender@mydomain.com",
	})

	// The report's own In-Reply-To names one send, the embedded original
	// another. The report header wins.
	raw := []byte(strings.Replace(
		string(hardBounceFor("embedded@mydomain.com")),
		"Subject: Undeliverable mail",
		"Subject: Undeliverable mail\r\nIn-Reply-To: <direct@mydomain.com>",
		1,
	))

	attribution, err := f.svc.ClassifyAndCorrelate(ctx, "user1", raw)
	require.NoError(t, err)
	assert.Equal(t, direct.ID, attribution.TriggeringMessageID)
}

func TestClassifyAndCorrelate_CooldownSuppressesRepeatAlerts(t *testing.T) {
	ctx := context.Background()
	f := newDsnFixture(t)

	f.seedSend(ctx, t, &models.OutboundEmail{
		UserID:      "user1",
		MessageID:   "first@mydomain.com",
		FromAddress: "sender@mydomain.com",
	})
	f.seedSend(ctx, t, &models.OutboundEmail{
		UserID:      "user1",
		MessageID:   "second@mydomain.com",
		FromAddress: "sender@mydomain.com",
	})

	_, err := f.svc.ClassifyAndCorrelate(ctx, "user1", hardBounceFor("first@mydomain.com"))
	require.NoError(t, err)
	_, err = f.svc.ClassifyAndCorrelate(ctx, "user1", hardBounceFor("second@mydomain.com"))
	require.NoError(t, err)

	// Same domain, same bounce class: the second alert is inside the window
	assert.Equal(t, 1, f.dispatcher.count())
}

func TestClassifyAndCorrelate_DispatchFailureDoesNotFailAttribution(t *testing.T) {
	ctx := context.Background()
	f := newDsnFixture(t)
	f.dispatcher.err = assert.AnError

	send := f.seedSend(ctx, t, &models.OutboundEmail{
		UserID:      "user1",
		MessageID:   "orig@mydomain.com",
		FromAddress: "sender@mydomain.com",
	})

	attribution, err := f.svc.ClassifyAndCorrelate(ctx, "user1", hardBounceFor("orig@mydomain.com"))
	require.NoError(t, err)
	assert.Equal(t, send.ID, attribution.TriggeringMessageID)
}

func TestClassifyAndCorrelate_NonDsnPassesThrough(t *testing.T) {
	ctx := context.Background()
	f := newDsnFixture(t)

	raw := []byte("From: alice@example.com\r\nTo: bob@mydomain.com\r\nSubject: hi\r\n\r\nhello\r\n")
	attribution, err := f.svc.ClassifyAndCorrelate(ctx, "user1", raw)
	require.NoError(t, err)

	assert.False(t, attribution.IsDsn)
	assert.Equal(t, enum.BounceUndetermined, attribution.BounceType)
	assert.Equal(t, 0, f.dispatcher.count())
}

func TestClassifyAndCorrelate_InputValidation(t *testing.T) {
	ctx := context.Background()
	f := newDsnFixture(t)

	_, err := f.svc.ClassifyAndCorrelate(ctx, "", []byte("x"))
	assert.Error(t, err)

	_, err = f.svc.ClassifyAndCorrelate(ctx, "user1", nil)
	assert.Error(t, err)
}
