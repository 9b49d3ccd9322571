package registry

import (
	"context"
	"errors"
	"lunchbell/internal/types"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type mockBinder struct {
	mock.Mock
}

func (m *mockBinder) CreateBinding(ctx context.Context, identity string, kind types.Kind, address string, extra map[string]string) (string, error) {
	args := m.Called(ctx, identity, kind, address, extra)
	return args.String(0), args.Error(1)
}

func (m *mockBinder) DeleteBinding(ctx context.Context, kind types.Kind, handle string) error {
	args := m.Called(ctx, kind, handle)
	return args.Error(0)
}

// memStore is an in-memory SnapshotStore. failSaves makes the next N saves fail.
type memStore struct {
	mu        sync.Mutex
	snap      types.Snapshot
	loadErr   error
	failSaves int
	saves     int
}

func (s *memStore) LoadSnapshot(ctx context.Context) (types.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.snap == nil {
		return nil, types.ErrNotFound
	}
	return s.snap.Clone(), nil
}

func (s *memStore) SaveSnapshot(ctx context.Context, snap types.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.failSaves > 0 {
		s.failSaves--
		return errors.New("disk full")
	}
	s.snap = snap.Clone()
	return nil
}

func (s *memStore) saved() types.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

type RegistryTestSuite struct {
	suite.Suite

	ctx    context.Context
	store  *memStore
	binder *mockBinder
	reg    *Registry
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

func (s *RegistryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = &memStore{}
	s.binder = &mockBinder{}
	s.reg = New(s.store, s.binder, WithBackOff(zeroBackOff))
}

func (s *RegistryTestSuite) TearDownTest() {
	s.reg.Flush()
	s.binder.AssertExpectations(s.T())
}

func (s *RegistryTestSuite) TestSubscribeAllSucceed() {
	s.binder.On("CreateBinding", mock.Anything, "jdoe", types.KindSMS, "+15550001", mock.Anything).
		Return("arn:sub:1", nil).Once()

	res, err := s.reg.Subscribe(s.ctx, "JDoe ", []types.Kind{types.KindSMS, types.KindSlack}, "+15550001")
	s.NoError(err)
	s.Empty(res.Failed)

	b, ok := s.reg.List()["jdoe"]
	s.True(ok)
	s.Equal(types.Bindings{types.KindSMS: "arn:sub:1", types.KindSlack: types.LocalBinding}, b)

	s.reg.Flush()
	s.Equal(s.reg.List(), s.store.saved())
}

func (s *RegistryTestSuite) TestSubscribeMixed() {
	s.binder.On("CreateBinding", mock.Anything, "jdoe", types.KindSMS, "+15550001", mock.Anything).
		Return("", errors.New("throttled")).Once()

	res, err := s.reg.Subscribe(s.ctx, "jdoe", []types.Kind{types.KindSMS, types.KindTelegram}, "+15550001")
	s.NoError(err)
	s.Len(res.Failed, 1)
	s.True(errors.Is(res.Failed[types.KindSMS], types.ErrChannelBinding))

	s.Equal(types.Bindings{types.KindTelegram: types.LocalBinding}, s.reg.List()["jdoe"])
}

func (s *RegistryTestSuite) TestSubscribeAllFailPrunes() {
	s.binder.On("CreateBinding", mock.Anything, "jdoe", types.KindSMS, "+15550001", mock.Anything).
		Return("", errors.New("throttled")).Once()

	res, err := s.reg.Subscribe(s.ctx, "jdoe", []types.Kind{types.KindSMS}, "+15550001")
	s.NoError(err)
	s.Empty(res.Bindings)
	_, ok := s.reg.List()["jdoe"]
	s.False(ok)
}

func (s *RegistryTestSuite) TestSubscribeAllFailKeepEmpty() {
	s.reg = New(s.store, s.binder, WithBackOff(zeroBackOff), WithKeepEmpty())
	s.binder.On("CreateBinding", mock.Anything, "jdoe", types.KindSMS, "+15550001", mock.Anything).
		Return("", errors.New("throttled")).Once()

	_, err := s.reg.Subscribe(s.ctx, "jdoe", []types.Kind{types.KindSMS}, "+15550001")
	s.NoError(err)
	b, ok := s.reg.List()["jdoe"]
	s.True(ok)
	s.Empty(b)
}

func (s *RegistryTestSuite) TestSubscribeNoChannels() {
	_, err := s.reg.Subscribe(s.ctx, "jdoe", nil, "+15550001")
	s.True(errors.Is(err, types.ErrNoValidChannels))
	s.Equal(0, s.reg.Len())
}

func (s *RegistryTestSuite) TestResubscribeReplaces() {
	s.binder.On("CreateBinding", mock.Anything, "jdoe", types.KindSMS, "+15550001", mock.Anything).
		Return("arn:sub:1", nil).Once()
	s.binder.On("DeleteBinding", mock.Anything, types.KindSMS, "arn:sub:1").Return(nil).Once()

	_, err := s.reg.Subscribe(s.ctx, "jdoe", []types.Kind{types.KindSMS, types.KindSlack}, "+15550001")
	s.NoError(err)
	_, err = s.reg.Subscribe(s.ctx, "jdoe", []types.Kind{types.KindTelegram}, "+15550001")
	s.NoError(err)

	s.Equal(types.Bindings{types.KindTelegram: types.LocalBinding}, s.reg.List()["jdoe"])
}

func (s *RegistryTestSuite) TestResubscribeReplacesPush() {
	s.binder.On("CreateBinding", mock.Anything, "jdoe", types.KindPush, "", map[string]string{"token": "tok"}).
		Return("arn:endpoint:1", nil).Once()
	s.binder.On("DeleteBinding", mock.Anything, types.KindPush, "arn:endpoint:1").Return(nil).Once()

	_, err := s.reg.BindPush(s.ctx, "jdoe", "tok")
	s.NoError(err)
	_, err = s.reg.Subscribe(s.ctx, "jdoe", []types.Kind{types.KindSlack}, "+15550001")
	s.NoError(err)

	s.Equal(types.Bindings{types.KindSlack: types.LocalBinding}, s.reg.List()["jdoe"])
}

func (s *RegistryTestSuite) TestSubscribePushOnlyHasNoValidChannels() {
	_, err := s.reg.Subscribe(s.ctx, "jdoe", []types.Kind{types.KindPush}, "+15550001")
	s.True(errors.Is(err, types.ErrNoValidChannels))
	s.Equal(0, s.reg.Len())
	s.binder.AssertNotCalled(s.T(), "CreateBinding", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *RegistryTestSuite) TestSubscribeSavesOncePerCall() {
	s.binder.On("CreateBinding", mock.Anything, "jdoe", types.KindSMS, "+15550001", mock.Anything).
		Return("arn:sub:1", nil).Once()

	_, err := s.reg.Subscribe(s.ctx, "jdoe", []types.Kind{types.KindSMS, types.KindSlack, types.KindTelegram}, "+15550001")
	s.NoError(err)
	s.reg.Flush()

	s.store.mu.Lock()
	saves := s.store.saves
	s.store.mu.Unlock()
	s.Equal(1, saves)
	s.Len(s.store.saved()["jdoe"], 3)
}

func (s *RegistryTestSuite) TestUnsubscribeUnknownIsNoop() {
	removed, err := s.reg.Unsubscribe(s.ctx, "ghost")
	s.NoError(err)
	s.False(removed)
	s.reg.Flush()
	s.Equal(0, s.store.saves)
}

func (s *RegistryTestSuite) TestUnsubscribeDeletesExternalBindings() {
	s.binder.On("CreateBinding", mock.Anything, "jdoe", types.KindSMS, "+15550001", mock.Anything).
		Return("arn:sub:1", nil).Once()
	s.binder.On("DeleteBinding", mock.Anything, types.KindSMS, "arn:sub:1").
		Return(errors.New("gone already")).Once()

	_, err := s.reg.Subscribe(s.ctx, "jdoe", []types.Kind{types.KindSMS, types.KindSlack}, "+15550001")
	s.NoError(err)

	removed, err := s.reg.Unsubscribe(s.ctx, "JDOE")
	s.NoError(err)
	s.True(removed)
	s.Equal(0, s.reg.Len())

	s.reg.Flush()
	s.Empty(s.store.saved())
}

func (s *RegistryTestSuite) TestBindAndUnbindPush() {
	s.binder.On("CreateBinding", mock.Anything, "jdoe", types.KindPush, "", map[string]string{"token": "tok"}).
		Return("arn:endpoint:1", nil).Once()
	s.binder.On("DeleteBinding", mock.Anything, types.KindPush, "arn:endpoint:1").Return(nil).Once()

	handle, err := s.reg.BindPush(s.ctx, "jdoe", "tok")
	s.NoError(err)
	s.Equal("arn:endpoint:1", handle)

	removed, err := s.reg.UnbindPush(s.ctx, "jdoe")
	s.NoError(err)
	s.True(removed)
	s.Equal(0, s.reg.Len())

	removed, err = s.reg.UnbindPush(s.ctx, "jdoe")
	s.NoError(err)
	s.False(removed)
}

func (s *RegistryTestSuite) TestBindPushFailure() {
	s.binder.On("CreateBinding", mock.Anything, "jdoe", types.KindPush, "", mock.Anything).
		Return("", errors.New("invalid token")).Once()

	_, err := s.reg.BindPush(s.ctx, "jdoe", "tok")
	s.True(errors.Is(err, types.ErrChannelBinding))
	s.Equal(0, s.reg.Len())
}

func (s *RegistryTestSuite) TestLoadMissingAndCorrupt() {
	s.reg.Load(s.ctx)
	s.Equal(0, s.reg.Len())

	s.store.loadErr = errors.New("unexpected end of JSON input")
	s.reg.Load(s.ctx)
	s.Equal(0, s.reg.Len())
}

func (s *RegistryTestSuite) TestLoadNormalizesAndPrunes() {
	s.store.snap = types.Snapshot{
		" JDoe": {types.KindSlack: types.LocalBinding},
		"empty": {},
	}
	s.reg.Load(s.ctx)
	s.Equal(types.Snapshot{"jdoe": {types.KindSlack: types.LocalBinding}}, s.reg.List())
}

func (s *RegistryTestSuite) TestPersistRetries() {
	s.store.failSaves = 2
	s.NoError(s.reg.Persist(s.ctx))
	s.Equal(3, s.store.saves)
}

func (s *RegistryTestSuite) TestPersistGivesUp() {
	s.store.failSaves = 100
	err := s.reg.Persist(s.ctx)
	s.True(errors.Is(err, types.ErrPersistence))
	s.Equal(maxPersistRetries+1, s.store.saves)
}

func (s *RegistryTestSuite) TestListIsACopy() {
	_, err := s.reg.Subscribe(s.ctx, "jdoe", []types.Kind{types.KindSlack}, "+15550001")
	s.NoError(err)

	snap := s.reg.List()
	snap["jdoe"][types.KindTelegram] = types.LocalBinding
	delete(snap, "jdoe")

	b, ok := s.reg.Get("jdoe")
	s.True(ok)
	s.Equal(types.Bindings{types.KindSlack: types.LocalBinding}, b)
}

func (s *RegistryTestSuite) TestConcurrentSubscribersDoNotInterfere() {
	var wg sync.WaitGroup
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.reg.Subscribe(s.ctx, id, []types.Kind{types.KindSlack}, "")
			s.NoError(err)
		}(id)
	}
	wg.Wait()
	s.Equal(len(ids), s.reg.Len())
}
