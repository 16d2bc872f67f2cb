package account

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/finsight/internal/domain"
	"github.com/mtlprog/finsight/internal/events"
)

const (
	ethAddr   = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	accountID = "6f1c2a3e-9a51-4c3c-8f0e-2b7d3f1e0a11"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ListAll(ctx context.Context) ([]domain.Account, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Account), args.Error(1)
}

func (m *MockRepository) ListByUser(ctx context.Context, userID string) ([]domain.Account, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Account), args.Error(1)
}

func (m *MockRepository) FindByID(ctx context.Context, id, userID string) (domain.Account, error) {
	args := m.Called(ctx, id, userID)
	return args.Get(0).(domain.Account), args.Error(1)
}

func (m *MockRepository) Create(ctx context.Context, acc domain.Account) (domain.Account, error) {
	args := m.Called(ctx, acc)
	return args.Get(0).(domain.Account), args.Error(1)
}

func (m *MockRepository) UpdateBalances(ctx context.Context, id string, current, available domain.SignedMoney) (domain.Account, error) {
	args := m.Called(ctx, id, current, available)
	return args.Get(0).(domain.Account), args.Error(1)
}

type MockReader struct {
	mock.Mock
}

func (m *MockReader) GetBaseUnits(ctx context.Context, network, address string) (domain.Money, error) {
	args := m.Called(ctx, network, address)
	return args.Get(0).(domain.Money), args.Error(1)
}

type published struct {
	topic string
	acc   domain.Account
}

type recordingPublisher struct {
	events []published
}

func (p *recordingPublisher) PublishAccount(_ context.Context, topic string, acc domain.Account) {
	p.events = append(p.events, published{topic: topic, acc: acc})
}

func TestLinkBankAccount(t *testing.T) {
	repo := new(MockRepository)
	pub := &recordingPublisher{}
	svc := NewService(repo, new(MockReader), pub)

	repo.On("Create", mock.Anything, mock.MatchedBy(func(a domain.Account) bool {
		return a.UserID == "user-1" && a.Name == "Checking" && a.Type == domain.AccountTypeDepository && a.ID != ""
	})).Return(domain.Account{ID: accountID, UserID: "user-1", Name: "Checking"}, nil)

	got, err := svc.Link(context.Background(), "user-1", LinkInput{
		Name:             " Checking ",
		Type:             domain.AccountTypeDepository,
		CurrentBalance:   domain.Positive(10000, "USD"),
		AvailableBalance: domain.Positive(9000, "USD"),
	})
	require.NoError(t, err)
	assert.Equal(t, accountID, got.ID)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TopicAccountCreated, pub.events[0].topic)
	repo.AssertExpectations(t)
}

func TestLinkWalletReadsChainBalance(t *testing.T) {
	repo := new(MockRepository)
	reader := new(MockReader)
	svc := NewService(repo, reader, &recordingPublisher{})

	wei := decimal.RequireFromString("1500000000000000000")
	reader.On("GetBaseUnits", mock.Anything, "ethereum", ethAddr).
		Return(domain.Money{Amount: wei, Currency: "ETH"}, nil)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(a domain.Account) bool {
		return a.Type == domain.AccountTypeCrypto &&
			a.CurrentBalance.Money.Amount.Equal(wei) &&
			a.CurrentBalance.Money.Currency == "ETH" &&
			a.AvailableBalance.Sign == domain.SignPositive
	})).Return(domain.Account{ID: accountID}, nil)

	_, err := svc.Link(context.Background(), "user-1", LinkInput{Name: "Cold wallet", Network: "Ethereum", Address: ethAddr})
	require.NoError(t, err)

	reader.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestLinkRejectsInvalidInput(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockReader), &recordingPublisher{})

	_, err := svc.Link(context.Background(), "user-1", LinkInput{Name: "W", Network: "ethereum", Address: "0x123"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Link(context.Background(), "user-1", LinkInput{Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Link(context.Background(), "user-1", LinkInput{Name: "No currency", CurrentBalance: domain.Positive(1, "")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestLinkDuplicateIsNotPublished(t *testing.T) {
	repo := new(MockRepository)
	reader := new(MockReader)
	pub := &recordingPublisher{}
	svc := NewService(repo, reader, pub)

	reader.On("GetBaseUnits", mock.Anything, "ethereum", ethAddr).
		Return(domain.Money{Amount: decimal.Zero, Currency: "ETH"}, nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(domain.Account{}, ErrDuplicate)

	_, err := svc.Link(context.Background(), "user-1", LinkInput{Name: "W", Network: "ethereum", Address: ethAddr})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Empty(t, pub.events)
}

func TestUpdateBalancesPublishesUpdated(t *testing.T) {
	repo := new(MockRepository)
	pub := &recordingPublisher{}
	svc := NewService(repo, new(MockReader), pub)

	current := domain.Negative(2500, "USD")
	available := domain.Positive(0, "USD")
	repo.On("FindByID", mock.Anything, accountID, "user-1").Return(domain.Account{ID: accountID, UserID: "user-1"}, nil)
	repo.On("UpdateBalances", mock.Anything, accountID, current, available).
		Return(domain.Account{ID: accountID, UserID: "user-1", CurrentBalance: current}, nil)

	got, err := svc.UpdateBalances(context.Background(), accountID, "user-1", current, available)
	require.NoError(t, err)
	assert.Equal(t, domain.SignNegative, got.CurrentBalance.Sign)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TopicAccountUpdated, pub.events[0].topic)
}

func TestGetRejectsMalformedID(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockReader), &recordingPublisher{})

	_, err := svc.Get(context.Background(), "42", "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
	repo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncAll(t *testing.T) {
	repo := new(MockRepository)
	reader := new(MockReader)
	pub := &recordingPublisher{}
	svc := NewService(repo, reader, pub)

	btcAddr := "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"
	repo.On("ListAll", mock.Anything).Return([]domain.Account{
		{ID: "bank", UserID: "u1", Type: domain.AccountTypeDepository},
		{ID: "eth", UserID: "u1", Type: domain.AccountTypeCrypto, Network: "ethereum", Address: ethAddr},
		{ID: "btc", UserID: "u2", Type: domain.AccountTypeCrypto, Network: "bitcoin", Address: btcAddr},
	}, nil)

	reader.On("GetBaseUnits", mock.Anything, "ethereum", ethAddr).
		Return(domain.Money{}, errors.New("all RPC endpoints failed"))
	sats := domain.Money{Amount: decimal.NewFromInt(150_000_000), Currency: "BTC"}
	reader.On("GetBaseUnits", mock.Anything, "bitcoin", btcAddr).Return(sats, nil)

	balance := domain.NewSignedMoney(sats.Amount, "BTC")
	repo.On("UpdateBalances", mock.Anything, "btc", balance, balance).
		Return(domain.Account{ID: "btc", UserID: "u2", CurrentBalance: balance}, nil)

	res, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Synced: 1, Skipped: 1, Failed: 1}, res)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "btc", pub.events[0].acc.ID)
	repo.AssertExpectations(t)
}

func TestSyncAllListError(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockReader), &recordingPublisher{})
	repo.On("ListAll", mock.Anything).Return([]domain.Account(nil), errors.New("db down"))

	_, err := svc.SyncAll(context.Background())
	assert.Error(t, err)
}
