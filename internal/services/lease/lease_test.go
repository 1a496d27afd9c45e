package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/credential-broker/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/credential-broker/internal/models"
	"github.com/magabrotheeeer/credential-broker/internal/storage/repository"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) SetAccess(ctx context.Context, userID string, active bool, expiry *time.Time) error {
	return m.Called(ctx, userID, active, expiry).Error(0)
}
func (m *RepoMock) ListActiveUsers(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}
func (m *RepoMock) ListExpiredActiveUsers(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

type PoolMock struct{ mock.Mock }

func (m *PoolMock) Free(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

// PubMock собирает опубликованные уведомления, чтобы проверять их
// после срабатывания таймеров из других горутин.
type PubMock struct {
	mu       sync.Mutex
	messages []publishedMessage
}

type publishedMessage struct {
	routingKey string
	msg        models.Notification
}

func (m *PubMock) Publish(routingKey string, message any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, publishedMessage{routingKey, message.(models.Notification)})
	return nil
}

func (m *PubMock) published() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishedMessage(nil), m.messages...)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestScheduler_Reclaim_FreesAndRevokes(t *testing.T) {
	repo := new(RepoMock)
	pool := new(PoolMock)
	pub := &PubMock{}
	s := New(repo, pool, pub, newNoopLogger(), time.Hour)

	pool.On("Free", mock.Anything, "user-1").Return("acc_a", nil).Once()
	repo.On("SetAccess", mock.Anything, "user-1", false, (*time.Time)(nil)).Return(nil).Once()

	err := s.Reclaim(context.Background(), "user-1")
	assert.NoError(t, err)

	msgs := pub.published()
	assert.Len(t, msgs, 2)
	assert.Equal(t, rabbitmq.RoutingKeyOperator, msgs[0].routingKey)
	assert.Contains(t, msgs[0].msg.Body, "acc_a")
	assert.Equal(t, rabbitmq.RoutingKeyUser, msgs[1].routingKey)
	assert.Equal(t, "user-1", msgs[1].msg.UserID)

	repo.AssertExpectations(t)
	pool.AssertExpectations(t)
}

func TestScheduler_Reclaim_AlreadyFreedManually(t *testing.T) {
	repo := new(RepoMock)
	pool := new(PoolMock)
	pub := &PubMock{}
	s := New(repo, pool, pub, newNoopLogger(), time.Hour)

	// Запись уже освобождена вручную: уборка пропускается, но доступ
	// всё равно снимается.
	pool.On("Free", mock.Anything, "user-1").Return("", nil).Once()
	repo.On("SetAccess", mock.Anything, "user-1", false, (*time.Time)(nil)).Return(nil).Once()

	err := s.Reclaim(context.Background(), "user-1")
	assert.NoError(t, err)

	msgs := pub.published()
	assert.Len(t, msgs, 1)
	assert.Equal(t, rabbitmq.RoutingKeyOperator, msgs[0].routingKey)
	assert.Equal(t, "Plan expired, cleanup skipped", msgs[0].msg.Subject)

	repo.AssertExpectations(t)
	pool.AssertExpectations(t)
}

func TestScheduler_Reclaim_StorageError(t *testing.T) {
	repo := new(RepoMock)
	pool := new(PoolMock)
	pub := &PubMock{}
	s := New(repo, pool, pub, newNoopLogger(), time.Hour)

	pool.On("Free", mock.Anything, "user-1").Return("", errors.New("db down")).Once()

	err := s.Reclaim(context.Background(), "user-1")
	assert.Error(t, err)
	assert.Empty(t, pub.published())
	pool.AssertExpectations(t)
}

func TestScheduler_ScheduleReclaim_FiresAfterDelay(t *testing.T) {
	repo := new(RepoMock)
	pool := new(PoolMock)
	pub := &PubMock{}
	s := New(repo, pool, pub, newNoopLogger(), time.Hour)

	done := make(chan struct{})
	pool.On("Free", mock.Anything, "user-1").Return("acc_a", nil).Once()
	repo.On("SetAccess", mock.Anything, "user-1", false, (*time.Time)(nil)).
		Run(func(_ mock.Arguments) { close(done) }).Return(nil).Once()

	s.ScheduleReclaim(context.Background(), "user-1", 10*time.Millisecond)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reclaim did not fire")
	}

	repo.AssertExpectations(t)
	pool.AssertExpectations(t)
}

func TestScheduler_ScheduleReclaim_SurvivesCallerCancel(t *testing.T) {
	repo := new(RepoMock)
	pool := new(PoolMock)
	pub := &PubMock{}
	s := New(repo, pool, pub, newNoopLogger(), time.Hour)

	done := make(chan struct{})
	pool.On("Free", mock.Anything, "user-1").Return("acc_a", nil).Once()
	repo.On("SetAccess", mock.Anything, "user-1", false, (*time.Time)(nil)).
		Run(func(_ mock.Arguments) { close(done) }).Return(nil).Once()

	// Контекст гаснет сразу после взведения, как у HTTP-запроса после
	// отправки ответа. Возврат обязан сработать всё равно, и его вызовы
	// хранилища не должны увидеть отменённый контекст.
	ctx, cancel := context.WithCancel(context.Background())
	s.ScheduleReclaim(ctx, "user-1", 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reclaim did not fire after caller context was canceled")
	}

	freeCtx := pool.Calls[0].Arguments.Get(0).(context.Context)
	assert.NoError(t, freeCtx.Err())

	repo.AssertExpectations(t)
	pool.AssertExpectations(t)
}

func TestScheduler_RecoverPending(t *testing.T) {
	repo := new(RepoMock)
	pool := new(PoolMock)
	pub := &PubMock{}
	s := New(repo, pool, pub, newNoopLogger(), time.Hour)

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(24 * time.Hour)
	users := []*models.User{
		{UserID: "expired", IsActive: true, PlanExpiry: &past},
		{UserID: "running", IsActive: true, PlanExpiry: &future},
	}

	repo.On("ListActiveUsers", mock.Anything).Return(users, nil).Once()

	// Просроченный срок обрезается до нуля и возвращается сразу,
	// таймер будущего срока в тесте не успевает сработать.
	done := make(chan struct{})
	pool.On("Free", mock.Anything, "expired").Return("acc_a", nil).Once()
	repo.On("SetAccess", mock.Anything, "expired", false, (*time.Time)(nil)).
		Run(func(_ mock.Arguments) { close(done) }).Return(nil).Once()

	err := s.RecoverPending(context.Background())
	assert.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recovered reclaim did not fire")
	}

	repo.AssertExpectations(t)
	pool.AssertExpectations(t)
}

func TestScheduler_RunSweep_ReclaimsExpired(t *testing.T) {
	repo := new(RepoMock)
	pool := new(PoolMock)
	pub := &PubMock{}
	s := New(repo, pool, pub, newNoopLogger(), time.Hour)

	past := time.Now().UTC().Add(-time.Hour)
	repo.On("ListExpiredActiveUsers", mock.Anything).
		Return([]*models.User{{UserID: "user-1", IsActive: true, PlanExpiry: &past}}, nil).Once()
	pool.On("Free", mock.Anything, "user-1").Return("acc_a", nil).Once()
	repo.On("SetAccess", mock.Anything, "user-1", false, (*time.Time)(nil)).Return(nil).Once()

	s.runSweepOnce(context.Background())

	repo.AssertExpectations(t)
	pool.AssertExpectations(t)
}

func TestScheduler_Reclaim_UserGone(t *testing.T) {
	repo := new(RepoMock)
	pool := new(PoolMock)
	pub := &PubMock{}
	s := New(repo, pool, pub, newNoopLogger(), time.Hour)

	pool.On("Free", mock.Anything, "user-1").Return("", repository.ErrUserNotFound).Once()
	repo.On("SetAccess", mock.Anything, "user-1", false, (*time.Time)(nil)).
		Return(repository.ErrUserNotFound).Once()

	err := s.Reclaim(context.Background(), "user-1")
	assert.NoError(t, err)
}
