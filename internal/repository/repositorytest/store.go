// Package repositorytest provides an in-memory implementation of the
// repository layer for service tests. It mirrors the transactional semantics
// of the real repositories: atomic thread assignment, the unassigned-row
// guard, and account scoping on every lookup.
package repositorytest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/inboundly/mailcore/interfaces"
	"github.com/inboundly/mailcore/internal/enum"
	"github.com/inboundly/mailcore/internal/models"
	"github.com/inboundly/mailcore/internal/repository"
	"github.com/inboundly/mailcore/internal/utils"
)

type Store struct {
	mu       sync.Mutex
	seq      int
	Inbound  map[string]*models.InboundEmail
	Outbound map[string]*models.OutboundEmail
	Threads  map[string]*models.EmailThread
	Orphans  []*models.OrphanReference
	Domains  map[string]*models.MailDomain
}

// NewStore returns an empty store and a Repositories wired to it.
func NewStore() (*Store, *repository.Repositories) {
	s := &Store{
		Inbound:  make(map[string]*models.InboundEmail),
		Outbound: make(map[string]*models.OutboundEmail),
		Threads:  make(map[string]*models.EmailThread),
		Domains:  make(map[string]*models.MailDomain),
	}
	return s, &repository.Repositories{
		InboundEmailRepository:    &inboundRepo{s},
		OutboundEmailRepository:   &outboundRepo{s},
		EmailThreadRepository:     &threadRepo{s},
		OrphanReferenceRepository: &orphanRepo{s},
		DirectoryRepository:       &domainRepo{s},
	}
}

func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_%06d", prefix, s.seq)
}

// stampMessage applies a thread assignment to a message row, enforcing the
// only-if-unassigned guard the real repository implements in SQL.
func (s *Store) stampMessage(assign interfaces.ThreadAssignment, threadID string, position int) error {
	if inbound, ok := s.Inbound[assign.MessageRowID]; ok {
		if inbound.ThreadID != "" {
			return repository.ErrAlreadyAssigned
		}
		inbound.ThreadID = threadID
		inbound.ThreadPosition = position
		return nil
	}
	if outbound, ok := s.Outbound[assign.MessageRowID]; ok {
		if outbound.ThreadID != "" {
			return repository.ErrAlreadyAssigned
		}
		outbound.ThreadID = threadID
		outbound.ThreadPosition = position
		return nil
	}
	return repository.ErrInvalidInput
}

type inboundRepo struct{ s *Store }

func (r *inboundRepo) Create(ctx context.Context, email *models.InboundEmail) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if email.ID == "" {
		email.ID = r.s.nextID("iem")
	}
	r.s.Inbound[email.ID] = email
	return email.ID, nil
}

func (r *inboundRepo) GetByID(ctx context.Context, id string) (*models.InboundEmail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.Inbound[id], nil
}

func (r *inboundRepo) GetByMessageID(ctx context.Context, userID, messageID string) (*models.InboundEmail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	messageID = strings.Trim(messageID, "<>")
	for _, email := range r.s.Inbound {
		if email.UserID == userID && email.MessageID == messageID {
			return email, nil
		}
	}
	return nil, nil
}

func (r *inboundRepo) ListByThread(ctx context.Context, userID, threadID string) ([]*models.InboundEmail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*models.InboundEmail
	for _, email := range r.s.Inbound {
		if email.UserID == userID && email.ThreadID == threadID {
			result = append(result, email)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ThreadPosition < result[j].ThreadPosition })
	return result, nil
}

func (r *inboundRepo) ListUnassigned(ctx context.Context, userID string, limit int) ([]*models.InboundEmail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*models.InboundEmail
	for _, email := range r.s.Inbound {
		if email.ThreadID == "" && (userID == "" || email.UserID == userID) {
			result = append(result, email)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ReceivedAt.Before(result[j].ReceivedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *inboundRepo) CountByThread(ctx context.Context, threadID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var count int64
	for _, email := range r.s.Inbound {
		if email.ThreadID == threadID {
			count++
		}
	}
	return count, nil
}

type outboundRepo struct{ s *Store }

func (r *outboundRepo) Create(ctx context.Context, email *models.OutboundEmail) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if email.ID == "" {
		email.ID = r.s.nextID("oem")
	}
	r.s.Outbound[email.ID] = email
	return email.ID, nil
}

func (r *outboundRepo) GetByID(ctx context.Context, id string) (*models.OutboundEmail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.Outbound[id], nil
}

func (r *outboundRepo) GetByMessageID(ctx context.Context, userID, messageID string) (*models.OutboundEmail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	messageID = strings.Trim(messageID, "<>")
	for _, email := range r.s.Outbound {
		if email.UserID == userID && email.MessageID == messageID {
			return email, nil
		}
	}
	return nil, nil
}

func (r *outboundRepo) ListByThread(ctx context.Context, userID, threadID string) ([]*models.OutboundEmail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*models.OutboundEmail
	for _, email := range r.s.Outbound {
		if email.UserID == userID && email.ThreadID == threadID {
			result = append(result, email)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ThreadPosition < result[j].ThreadPosition })
	return result, nil
}

func (r *outboundRepo) ListUnassigned(ctx context.Context, userID string, limit int) ([]*models.OutboundEmail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*models.OutboundEmail
	for _, email := range r.s.Outbound {
		if email.ThreadID == "" && (userID == "" || email.UserID == userID) {
			result = append(result, email)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SentAt.Before(result[j].SentAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *outboundRepo) CountByThread(ctx context.Context, threadID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var count int64
	for _, email := range r.s.Outbound {
		if email.ThreadID == threadID {
			count++
		}
	}
	return count, nil
}

func (r *outboundRepo) SetDeliveryStatus(ctx context.Context, id string, status enum.DeliveryStatus, detail string, bouncedAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email, ok := r.s.Outbound[id]
	if !ok {
		return repository.ErrInvalidInput
	}
	email.DeliveryStatus = status
	email.StatusDetail = detail
	if bouncedAt != nil {
		email.BouncedAt = bouncedAt
	}
	return nil
}

type threadRepo struct{ s *Store }

func (r *threadRepo) GetByID(ctx context.Context, userID, id string) (*models.EmailThread, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	thread, ok := r.s.Threads[id]
	if !ok || thread.UserID != userID {
		return nil, nil
	}
	return thread, nil
}

func (r *threadRepo) CreateWithFirstMessage(ctx context.Context, thread *models.EmailThread, assign interfaces.ThreadAssignment) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if thread.ID == "" {
		thread.ID = r.s.nextID("thrd")
	}
	if err := r.s.stampMessage(assign, thread.ID, 0); err != nil {
		return "", err
	}
	thread.MessageCount = 1
	thread.Participants = assign.Participants
	messageTime := assign.MessageTime
	thread.LastMessageAt = &messageTime
	r.s.Threads[thread.ID] = thread
	return thread.ID, nil
}

func (r *threadRepo) AssignMessage(ctx context.Context, userID, threadID string, assign interfaces.ThreadAssignment) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	thread, ok := r.s.Threads[threadID]
	if !ok || thread.UserID != userID {
		return 0, repository.ErrThreadNotFound
	}
	position := thread.MessageCount
	if err := r.s.stampMessage(assign, threadID, position); err != nil {
		return 0, err
	}
	thread.MessageCount++
	for _, participant := range assign.Participants {
		if !utils.ContainsFold(thread.Participants, participant) {
			thread.Participants = append(thread.Participants, participant)
		}
	}
	if thread.LastMessageAt == nil || assign.MessageTime.After(*thread.LastMessageAt) {
		messageTime := assign.MessageTime
		thread.LastMessageAt = &messageTime
	}
	return position, nil
}

func (r *threadRepo) FindBySubjectAndUser(ctx context.Context, subject, userID string) ([]*models.EmailThread, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*models.EmailThread
	for _, thread := range r.s.Threads {
		if thread.UserID == userID && strings.EqualFold(thread.Subject, subject) {
			result = append(result, thread)
		}
	}
	return result, nil
}

func (r *threadRepo) SetMessageCount(ctx context.Context, threadID string, count int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	thread, ok := r.s.Threads[threadID]
	if !ok {
		return repository.ErrThreadNotFound
	}
	thread.MessageCount = count
	return nil
}

func (r *threadRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.EmailThread, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*models.EmailThread
	for _, thread := range r.s.Threads {
		if thread.UserID == userID {
			result = append(result, thread)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		ti, tj := result[i].LastMessageAt, result[j].LastMessageAt
		if ti == nil || tj == nil {
			return result[i].ID < result[j].ID
		}
		return ti.After(*tj)
	})
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type orphanRepo struct{ s *Store }

func (r *orphanRepo) Create(ctx context.Context, orphan *models.OrphanReference) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if orphan.ID == "" {
		orphan.ID = r.s.nextID("orpn")
	}
	if orphan.CreatedAt.IsZero() {
		orphan.CreatedAt = time.Now().UTC()
	}
	r.s.Orphans = append(r.s.Orphans, orphan)
	return orphan.ID, nil
}

func (r *orphanRepo) GetByMessageID(ctx context.Context, userID, messageID string) (*models.OrphanReference, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, orphan := range r.s.Orphans {
		if orphan.UserID == userID && orphan.MessageID == messageID {
			return orphan, nil
		}
	}
	return nil, nil
}

func (r *orphanRepo) DeleteByThreadID(ctx context.Context, threadID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.Orphans[:0]
	for _, orphan := range r.s.Orphans {
		if orphan.ThreadID != threadID {
			kept = append(kept, orphan)
		}
	}
	r.s.Orphans = kept
	return nil
}

func (r *orphanRepo) DeleteOlderThan(ctx context.Context, cutoffDate time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.Orphans[:0]
	for _, orphan := range r.s.Orphans {
		if !orphan.CreatedAt.Before(cutoffDate) {
			kept = append(kept, orphan)
		}
	}
	r.s.Orphans = kept
	return nil
}

type domainRepo struct{ s *Store }

func (r *domainRepo) GetDomain(ctx context.Context, domainName string) (*models.MailDomain, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.Domains[domainName], nil
}

func (r *domainRepo) ListDomainsByUser(ctx context.Context, userID string) ([]*models.MailDomain, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*models.MailDomain
	for _, domain := range r.s.Domains {
		if domain.UserID == userID {
			result = append(result, domain)
		}
	}
	return result, nil
}

func (r *domainRepo) Create(ctx context.Context, domain *models.MailDomain) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if domain.ID == "" {
		domain.ID = r.s.nextID("dom")
	}
	r.s.Domains[domain.DomainName] = domain
	return domain.ID, nil
}
