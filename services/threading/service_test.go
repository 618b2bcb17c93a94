package threading

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboundly/mailcore/interfaces"
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

func newTestService(t *testing.T) (*repositorytest.Store, *repository.Repositories, interfaces.ThreadingService) {
	t.Helper()
	store, repos := repositorytest.NewStore()
	return store, repos, NewThreadingService(repos, getLogger())
}

func storedInbound(ctx context.Context, t *testing.T, repos *repository.Repositories, email *models.InboundEmail) *models.InboundEmail {
	t.Helper()
	if email.ReceivedAt.IsZero() {
		email.ReceivedAt = time.Now().UTC()
	}
	_, err := repos.InboundEmailRepository.Create(ctx, email)
	require.NoError(t, err)
	return email
}

func storedOutbound(ctx context.Context, t *testing.T, repos *repository.Repositories, email *models.OutboundEmail) *models.OutboundEmail {
	t.Helper()
	if email.SentAt.IsZero() {
		email.SentAt = time.Now().UTC()
	}
	_, err := repos.OutboundEmailRepository.Create(ctx, email)
	require.NoError(t, err)
	return email
}

func TestResolveInbound_NewThread(t *testing.T) {
	ctx := context.Background()
	_, repos, svc := newTestService(t)

	email := storedInbound(ctx, t, repos, &models.InboundEmail{
		UserID:      "user1",
		MessageID:   "root@example.com",
		Subject:     "Hello",
		FromAddress: "alice@example.com",
		ToAddresses: pq.StringArray{"bob@example.com"},
	})

	resolution, err := svc.ResolveInbound(ctx, email, interfaces.ResolveOptions{})
	require.NoError(t, err)

	assert.True(t, resolution.IsNewThread)
	assert.NotEmpty(t, resolution.ThreadID)
	assert.Equal(t, 0, resolution.ThreadPosition)
	assert.Equal(t, resolution.ThreadID, email.ThreadID)

	thread, err := repos.EmailThreadRepository.GetByID(ctx, "user1", resolution.ThreadID)
	require.NoError(t, err)
	require.NotNil(t, thread)
	assert.Equal(t, "root@example.com", thread.RootMessageID)
	assert.Equal(t, 1, thread.MessageCount)
	assert.ElementsMatch(t, []string{"alice@example.com", "bob@example.com"}, thread.Participants)
}

func TestResolveInbound_ReplyJoinsThread(t *testing.T) {
	ctx := context.Background()
	_, repos, svc := newTestService(t)

	root := storedOutbound(ctx, t, repos, &models.OutboundEmail{
		UserID:      "user1",
		MessageID:   "root@example.com",
		Subject:     "Hello",
		FromAddress: "me@mydomain.com",
		ToAddresses: pq.StringArray{"alice@example.com"},
	})
	rootResolution, err := svc.ResolveOutbound(ctx, root, interfaces.ResolveOptions{})
	require.NoError(t, err)

	reply := storedInbound(ctx, t, repos, &models.InboundEmail{
		UserID:      "user1",
		MessageID:   "reply@example.com",
		InReplyTo:   "root@example.com",
		Subject:     "Re: Hello",
		FromAddress: "alice@example.com",
		ToAddresses: pq.StringArray{"me@mydomain.com"},
	})
	replyResolution, err := svc.ResolveInbound(ctx, reply, interfaces.ResolveOptions{})
	require.NoError(t, err)

	assert.False(t, replyResolution.IsNewThread)
	assert.Equal(t, rootResolution.ThreadID, replyResolution.ThreadID)
	assert.Equal(t, 1, replyResolution.ThreadPosition)

	thread, err := repos.EmailThreadRepository.GetByID(ctx, "user1", rootResolution.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, 2, thread.MessageCount)
}

func TestResolveInbound_Idempotent(t *testing.T) {
	ctx := context.Background()
	_, repos, svc := newTestService(t)

	email := storedInbound(ctx, t, repos, &models.InboundEmail{
		UserID:    "user1",
		MessageID: "a@example.com",
	})

	first, err := svc.ResolveInbound(ctx, email, interfaces.ResolveOptions{})
	require.NoError(t, err)

	second, err := svc.ResolveInbound(ctx, email, interfaces.ResolveOptions{})
	require.NoError(t, err)

	assert.Equal(t, first.ThreadID, second.ThreadID)
	assert.Equal(t, first.ThreadPosition, second.ThreadPosition)
	assert.False(t, second.IsNewThread)

	thread, err := repos.EmailThreadRepository.GetByID(ctx, "user1", first.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, 1, thread.MessageCount)
}

// Message B replies to A but arrives first. When A finally shows up it must
// join B's thread through the recorded orphan reference.
func TestResolveInbound_OutOfOrderChainConverges(t *testing.T) {
	ctx := context.Background()
	store, repos, svc := newTestService(t)

	replyB := storedInbound(ctx, t, repos, &models.InboundEmail{
		UserID:    "user1",
		MessageID: "b@example.com",
		InReplyTo: "a@example.com",
	})
	resolutionB, err := svc.ResolveInbound(ctx, replyB, interfaces.ResolveOptions{})
	require.NoError(t, err)
	assert.True(t, resolutionB.IsNewThread)
	require.NotEmpty(t, store.Orphans)

	ancestorA := storedInbound(ctx, t, repos, &models.InboundEmail{
		UserID:    "user1",
		MessageID: "a@example.com",
	})
	resolutionA, err := svc.ResolveInbound(ctx, ancestorA, interfaces.ResolveOptions{})
	require.NoError(t, err)

	assert.False(t, resolutionA.IsNewThread)
	assert.Equal(t, resolutionB.ThreadID, resolutionA.ThreadID)
	// Orphan record is consumed once the ancestor arrives
	assert.Empty(t, store.Orphans)
}

// Full chain A <- B <- C with B arriving first: all three must land in one
// thread whatever the order.
func TestResolveInbound_ChainTransitivity(t *testing.T) {
	ctx := context.Background()
	_, repos, svc := newTestService(t)

	replyB := storedInbound(ctx, t, repos, &models.InboundEmail{
		UserID:    "user1",
		MessageID: "b@example.com",
		InReplyTo: "a@example.com",
	})
	resolutionB, err := svc.ResolveInbound(ctx, replyB, interfaces.ResolveOptions{})
	require.NoError(t, err)

	replyC := storedInbound(ctx, t, repos, &models.InboundEmail{
		UserID:    "user1",
		MessageID: "c@example.com",
		InReplyTo: "b@example.com",
	})
	resolutionC, err := svc.ResolveInbound(ctx, replyC, interfaces.ResolveOptions{})
	require.NoError(t, err)

	ancestorA := storedInbound(ctx, t, repos, &models.InboundEmail{
		UserID:    "user1",
		MessageID: "a@example.com",
	})
	resolutionA, err := svc.ResolveInbound(ctx, ancestorA, interfaces.ResolveOptions{})
	require.NoError(t, err)

	assert.Equal(t, resolutionB.ThreadID, resolutionC.ThreadID)
	assert.Equal(t, resolutionB.ThreadID, resolutionA.ThreadID)

	thread, err := repos.EmailThreadRepository.GetByID(ctx, "user1", resolutionB.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, 3, thread.MessageCount)
}

// A match through a non-immediate ancestor still lands in the right thread
// when the immediate parent was never captured.
func TestResolveInbound_SkipsMissingIntermediateAncestor(t *testing.T) {
	ctx := context.Background()
	_, repos, svc := newTestService(t)

	root := storedInbound(ctx, t, repos, &models.InboundEmail{
		UserID:    "user1",
		MessageID: "a@example.com",
	})
	rootResolution, err := svc.ResolveInbound(ctx, root, interfaces.ResolveOptions{})
	require.NoError(t, err)

	// References a missing parent b and the stored grandparent a
	leaf := storedInbound(ctx, t, repos, &models.InboundEmail{
		UserID:     "user1",
		MessageID:  "c@example.com",
		InReplyTo:  "b@example.com",
		References: pq.StringArray{"<a@example.com>", "<b@example.com>"},
	})
	leafResolution, err := svc.ResolveInbound(ctx, leaf, interfaces.ResolveOptions{})
	require.NoError(t, err)

	assert.Equal(t, rootResolution.ThreadID, leafResolution.ThreadID)
}

func TestResolveInbound_AccountIsolation(t *testing.T) {
	ctx := context.Background()
	_, repos, svc := newTestService(t)

	// user1's thread rooted at the shared message id
	rootUser1 := storedInbound(ctx, t, repos, &models.InboundEmail{
		UserID:    "user1",
		MessageID: "shared@example.com",
	})
	resolution1, err := svc.ResolveInbound(ctx, rootUser1, interfaces.ResolveOptions{})
	require.NoError(t, err)

	// user2's reply references the same message id but must not cross accounts
	replyUser2 := storedInbound(ctx, t, repos, &models.InboundEmail{
		UserID:    "user2",
		MessageID: "reply@example.com",
		InReplyTo: "shared@example.com",
	})
	resolution2, err := svc.ResolveInbound(ctx, replyUser2, interfaces.ResolveOptions{})
	require.NoError(t, err)

	assert.True(t, resolution2.IsNewThread)
	assert.NotEqual(t, resolution1.ThreadID, resolution2.ThreadID)
}

func TestResolveInbound_SubjectFallbackOptIn(t *testing.T) {
	ctx := context.Background()
	_, repos, svc := newTestService(t)

	root := storedInbound(ctx, t, repos, &models.InboundEmail{
		UserID:      "user1",
		MessageID:   "root@example.com",
		Subject:     "Invoice 42",
		FromAddress: "alice@example.com",
		ToAddresses: pq.StringArray{"me@mydomain.com"},
	})
	rootResolution, err := svc.ResolveInbound(ctx, root, interfaces.ResolveOptions{})
	require.NoError(t, err)

	// No reference headers at all, same subject, overlapping participants
	stray := storedInbound(ctx, t, repos, &models.InboundEmail{
		UserID:      "user1",
		MessageID:   "stray@example.com",
		Subject:     "Re: Invoice 42",
		FromAddress: "carol@other.com",
		ToAddresses: pq.StringArray{"me@mydomain.com"},
	})

	// Fallback disabled: a new thread
	strayResolution, err := svc.ResolveInbound(ctx, stray, interfaces.ResolveOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, rootResolution.ThreadID, strayResolution.ThreadID)

	// Fallback enabled: joins by subject + participant overlap
	stray2 := storedInbound(ctx, t, repos, &models.InboundEmail{
		UserID:      "user1",
		MessageID:   "stray2@example.com",
		Subject:     "Re: Invoice 42",
		FromAddress: "alice@example.com",
		ToAddresses: pq.StringArray{"me@mydomain.com"},
	})
	stray2Resolution, err := svc.ResolveInbound(ctx, stray2, interfaces.ResolveOptions{SubjectFallback: true})
	require.NoError(t, err)
	assert.Equal(t, rootResolution.ThreadID, stray2Resolution.ThreadID)
}

func TestResolveInbound_NoMessageIDGetsSynthesizedRoot(t *testing.T) {
	ctx := context.Background()
	_, repos, svc := newTestService(t)

	email := storedInbound(ctx, t, repos, &models.InboundEmail{
		UserID:  "user1",
		Subject: "No headers at all",
	})

	resolution, err := svc.ResolveInbound(ctx, email, interfaces.ResolveOptions{})
	require.NoError(t, err)
	assert.True(t, resolution.IsNewThread)

	thread, err := repos.EmailThreadRepository.GetByID(ctx, "user1", resolution.ThreadID)
	require.NoError(t, err)
	assert.NotEmpty(t, thread.RootMessageID, "a thread always has a root identity")
}

func TestResolveInbound_MissingUserID(t *testing.T) {
	ctx := context.Background()
	_, _, svc := newTestService(t)

	_, err := svc.ResolveInbound(ctx, &models.InboundEmail{ID: "iem_x"}, interfaces.ResolveOptions{})
	assert.Error(t, err)
}

func TestGetThread_MergesDirectionsByPosition(t *testing.T) {
	ctx := context.Background()
	_, repos, svc := newTestService(t)

	out := storedOutbound(ctx, t, repos, &models.OutboundEmail{
		UserID:      "user1",
		MessageID:   "m1@example.com",
		Subject:     "Plan",
		FromAddress: "me@mydomain.com",
		ToAddresses: pq.StringArray{"alice@example.com"},
	})
	outResolution, err := svc.ResolveOutbound(ctx, out, interfaces.ResolveOptions{})
	require.NoError(t, err)

	in := storedInbound(ctx, t, repos, &models.InboundEmail{
		UserID:      "user1",
		MessageID:   "m2@example.com",
		InReplyTo:   "m1@example.com",
		Subject:     "Re: Plan",
		FromAddress: "alice@example.com",
		ToAddresses: pq.StringArray{"me@mydomain.com"},
	})
	_, err = svc.ResolveInbound(ctx, in, interfaces.ResolveOptions{})
	require.NoError(t, err)

	view, err := svc.GetThread(ctx, "user1", outResolution.ThreadID)
	require.NoError(t, err)

	require.Len(t, view.Messages, 2)
	assert.Equal(t, "m1@example.com", view.Messages[0].MessageID)
	assert.Equal(t, "m2@example.com", view.Messages[1].MessageID)
	assert.Equal(t, 2, view.MessageCount)
}

func TestGetThread_NotFound(t *testing.T) {
	ctx := context.Background()
	_, _, svc := newTestService(t)

	_, err := svc.GetThread(ctx, "user1", "thrd_missing")
	assert.Error(t, err)
}

func TestGetThread_WrongAccount(t *testing.T) {
	ctx := context.Background()
	_, repos, svc := newTestService(t)

	email := storedInbound(ctx, t, repos, &models.InboundEmail{
		UserID:    "user1",
		MessageID: "a@example.com",
	})
	resolution, err := svc.ResolveInbound(ctx, email, interfaces.ResolveOptions{})
	require.NoError(t, err)

	_, err = svc.GetThread(ctx, "user2", resolution.ThreadID)
	assert.Error(t, err)
}
