package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/guildbank/internal/currencycache"
	"github.com/Proton-105/guildbank/internal/domain"
	errors "github.com/Proton-105/guildbank/internal/errors"
	"github.com/Proton-105/guildbank/internal/repository"
	"github.com/Proton-105/guildbank/internal/repository/memstore"
)

const guild = "-100123"

var (
	alice = domain.UserRef{ExternalID: "1", DisplayName: "alice"}
	bob   = domain.UserRef{ExternalID: "2", DisplayName: "bob"}
	carol = domain.UserRef{ExternalID: "3", DisplayName: "carol"}
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

func (m *mockStore) CurrencyEmojis(ctx context.Context, guild string) ([]string, error) {
	args := m.Called(ctx, guild)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockStore) Balances(ctx context.Context, filter domain.BalanceFilter) ([]domain.BalanceLine, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.BalanceLine), args.Error(1)
}

func (m *mockStore) MentionableRoleIDs(ctx context.Context, externalUserID, guild string) ([]string, error) {
	args := m.Called(ctx, externalUserID, guild)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockStore) SetRoleMentionable(ctx context.Context, externalRoleID string, state domain.MentionableState) (int64, error) {
	args := m.Called(ctx, externalRoleID, state)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) SetGuildChannel(ctx context.Context, channel *domain.GuildChannel) error {
	args := m.Called(ctx, channel)
	return args.Error(0)
}

func (m *mockStore) GuildChannel(ctx context.Context, guild string, kind domain.ChannelKind) (*domain.GuildChannel, error) {
	args := m.Called(ctx, guild, kind)
	channel, _ := args.Get(0).(*domain.GuildChannel)
	return channel, args.Error(1)
}

func newService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()

	store := memstore.New()
	return NewService(store, nil), store
}

func createGold(t *testing.T, svc *Service, owner domain.UserRef, amount int64) {
	t.Helper()

	_, err := svc.CreateCurrency(context.Background(), CreateCurrencyRequest{
		Name:          "gold",
		Guild:         guild,
		Emoji:         "🪙",
		InitialAmount: amount,
		Commissioner:  owner,
	})
	require.NoError(t, err)
}

func transfer(svc *Service, from, to domain.UserRef, amount int64) (*domain.TransferReceipt, error) {
	return svc.TransferFunds(context.Background(), TransferRequest{
		Sender:    from,
		Recipient: to,
		Amount:    amount,
		Emoji:     "🪙",
		Guild:     guild,
	})
}

func TestCreateCurrency_MintsInitialBalance(t *testing.T) {
	svc, store := newService(t)

	currency, err := svc.CreateCurrency(context.Background(), CreateCurrencyRequest{
		Name:          "gold",
		Guild:         guild,
		Emoji:         "🪙",
		InitialAmount: 1000,
		Commissioner:  alice,
	})
	require.NoError(t, err)
	assert.NotZero(t, currency.ID)
	assert.Equal(t, "gold", currency.Name)

	amount, ok := store.Balance(alice.ExternalID, guild, "🪙")
	require.True(t, ok)
	assert.Equal(t, int64(1000), amount)
}

func TestCreateCurrency_Duplicate(t *testing.T) {
	svc, store := newService(t)
	createGold(t, svc, alice, 1000)

	_, err := svc.CreateCurrency(context.Background(), CreateCurrencyRequest{
		Name:          "fake gold",
		Guild:         guild,
		Emoji:         "🪙",
		InitialAmount: 5000,
		Commissioner:  bob,
	})
	require.ErrorIs(t, err, errors.ErrDuplicateCurrency)

	amount, _ := store.Balance(alice.ExternalID, guild, "🪙")
	assert.Equal(t, int64(1000), amount)
	_, ok := store.Identity(bob.ExternalID)
	assert.False(t, ok)
}

func TestCreateCurrency_SameEmojiOtherGuild(t *testing.T) {
	svc, _ := newService(t)
	createGold(t, svc, alice, 1000)

	_, err := svc.CreateCurrency(context.Background(), CreateCurrencyRequest{
		Name:          "gold",
		Guild:         "-100999",
		Emoji:         "🪙",
		InitialAmount: 1000,
		Commissioner:  alice,
	})
	assert.NoError(t, err)
}

func TestCreateCurrency_Validation(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		valid  bool
	}{
		{name: "below minimum", amount: 999, valid: false},
		{name: "minimum", amount: 1000, valid: true},
		{name: "maximum", amount: domain.MaxAmount, valid: true},
		{name: "above maximum", amount: domain.MaxAmount + 1, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t)

			_, err := svc.CreateCurrency(context.Background(), CreateCurrencyRequest{
				Name:          "gold",
				Guild:         guild,
				Emoji:         "🪙",
				InitialAmount: tt.amount,
				Commissioner:  alice,
			})
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errors.ErrValidation)
			}
		})
	}
}

func TestTransferFunds_MovesCoins(t *testing.T) {
	svc, store := newService(t)
	createGold(t, svc, alice, 1000)

	receipt, err := transfer(svc, alice, bob, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(900), receipt.SenderBalance)
	assert.Equal(t, int64(100), receipt.RecipientBalance)

	lines, err := svc.GetBalances(context.Background(), GetBalancesRequest{Guild: guild})
	require.NoError(t, err)
	assert.Equal(t, []domain.BalanceLine{
		{Name: "bob", Emoji: "🪙", Coins: 100},
		{Name: "alice", Emoji: "🪙", Coins: 900},
	}, lines)

	_, ok := store.Identity(bob.ExternalID)
	assert.True(t, ok)
}

func TestTransferFunds_InsufficientFundsLeavesBalances(t *testing.T) {
	svc, store := newService(t)
	createGold(t, svc, alice, 1000)
	_, err := transfer(svc, alice, bob, 100)
	require.NoError(t, err)

	_, err = transfer(svc, alice, bob, 1000)
	require.ErrorIs(t, err, errors.ErrInsufficientFunds)

	aliceAmount, _ := store.Balance(alice.ExternalID, guild, "🪙")
	bobAmount, _ := store.Balance(bob.ExternalID, guild, "🪙")
	assert.Equal(t, int64(900), aliceAmount)
	assert.Equal(t, int64(100), bobAmount)
}

func TestTransferFunds_SenderWithoutHolding(t *testing.T) {
	svc, store := newService(t)
	createGold(t, svc, alice, 1000)

	_, err := transfer(svc, carol, bob, 1)
	require.ErrorIs(t, err, errors.ErrInsufficientFunds)

	_, ok := store.Identity(carol.ExternalID)
	assert.False(t, ok)
}

func TestTransferFunds_ConservesTotal(t *testing.T) {
	svc, _ := newService(t)
	createGold(t, svc, alice, 5000)

	moves := []struct {
		from, to domain.UserRef
		amount   int64
	}{
		{alice, bob, 1200},
		{bob, carol, 700},
		{carol, alice, 50},
		{alice, carol, 3000},
		{bob, alice, 600}, // rejected: bob holds 500
	}
	for _, mv := range moves {
		_, _ = transfer(svc, mv.from, mv.to, mv.amount)
	}

	lines, err := svc.GetBalances(context.Background(), GetBalancesRequest{Guild: guild, Emoji: "🪙"})
	require.NoError(t, err)

	var total int64
	for _, line := range lines {
		assert.GreaterOrEqual(t, line.Coins, int64(0))
		total += line.Coins
	}
	assert.Equal(t, int64(5000), total)
}

func TestTransferFunds_SelfTransferTouchesNoStore(t *testing.T) {
	store := new(mockStore)
	svc := NewService(store, nil)

	_, err := svc.TransferFunds(context.Background(), TransferRequest{
		Sender:    alice,
		Recipient: domain.UserRef{ExternalID: alice.ExternalID, DisplayName: "alice again"},
		Amount:    10,
		Emoji:     "🪙",
		Guild:     guild,
	})

	require.ErrorIs(t, err, errors.ErrSelfTransfer)
	store.AssertNotCalled(t, "InTx", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestTransferFunds_NoCurrency(t *testing.T) {
	svc, _ := newService(t)

	_, err := transfer(svc, alice, bob, 10)
	require.ErrorIs(t, err, errors.ErrNoCurrency)

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "🪙", appErr.Emoji)
}

func TestTransferFunds_AmountBounds(t *testing.T) {
	svc, _ := newService(t)
	createGold(t, svc, alice, 1000)

	_, err := transfer(svc, alice, bob, 0)
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = transfer(svc, alice, bob, domain.MaxAmount+1)
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = transfer(svc, alice, bob, 1000)
	assert.NoError(t, err)
}

// recordingStore wraps a memstore and records the identity upserts of every transaction.
type recordingStore struct {
	*memstore.Store

	upserts  [][]string
	debitErr error
}

func (s *recordingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	var ids []string
	err := s.Store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, &recordingTx{Tx: tx, ids: &ids, debitErr: s.debitErr})
	})
	s.upserts = append(s.upserts, ids)
	return err
}

type recordingTx struct {
	repository.Tx

	ids      *[]string
	debitErr error
}

func (t *recordingTx) UpsertIdentity(ctx context.Context, ref domain.UserRef) (*domain.Identity, error) {
	*t.ids = append(*t.ids, ref.ExternalID)
	return t.Tx.UpsertIdentity(ctx, ref)
}

func (t *recordingTx) DebitBalance(ctx context.Context, identityID, currencyID, amount int64) (int64, error) {
	if t.debitErr != nil {
		return 0, t.debitErr
	}
	return t.Tx.DebitBalance(ctx, identityID, currencyID, amount)
}

func TestTransferFunds_OppositeTransfersUpsertInOneOrder(t *testing.T) {
	store := &recordingStore{Store: memstore.New()}
	svc := NewService(store, nil)
	createGold(t, svc, alice, 1000)
	_, err := transfer(svc, alice, bob, 300)
	require.NoError(t, err)

	store.upserts = nil
	there, err := transfer(svc, alice, bob, 100)
	require.NoError(t, err)
	back, err := transfer(svc, bob, alice, 50)
	require.NoError(t, err)

	require.Len(t, store.upserts, 2)
	assert.Equal(t, []string{"1", "2"}, store.upserts[0])
	assert.Equal(t, store.upserts[0], store.upserts[1])

	assert.Equal(t, int64(600), there.SenderBalance)
	assert.Equal(t, int64(400), there.RecipientBalance)
	assert.Equal(t, int64(350), back.SenderBalance)
	assert.Equal(t, int64(650), back.RecipientBalance)
}

func TestTransferFunds_NegativeBalanceIsInsufficientFunds(t *testing.T) {
	store := &recordingStore{Store: memstore.New()}
	svc := NewService(store, nil)
	createGold(t, svc, alice, 1000)

	store.debitErr = repository.ErrNegativeBalance
	_, err := transfer(svc, alice, bob, 10)
	require.ErrorIs(t, err, errors.ErrInsufficientFunds)
	assert.NotErrorIs(t, err, errors.ErrDatabase)

	amount, _ := store.Balance(alice.ExternalID, guild, "🪙")
	assert.Equal(t, int64(1000), amount)
}

func TestTransferFunds_StoreFailureIsDatabaseError(t *testing.T) {
	store := new(mockStore)
	store.On("InTx", mock.Anything, mock.Anything).Return(assert.AnError).Once()
	svc := NewService(store, nil)

	_, err := transfer(svc, alice, bob, 10)
	require.ErrorIs(t, err, errors.ErrDatabase)
	assert.ErrorIs(t, err, assert.AnError)
	store.AssertExpectations(t)
}

func TestGetBalances_Filters(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	createGold(t, svc, alice, 1000)
	_, err := svc.CreateCurrency(ctx, CreateCurrencyRequest{
		Name:          "apples",
		Guild:         guild,
		Emoji:         "🍎",
		InitialAmount: 2000,
		Commissioner:  bob,
	})
	require.NoError(t, err)

	all, err := svc.GetBalances(ctx, GetBalancesRequest{Guild: guild})
	require.NoError(t, err)
	assert.Equal(t, []domain.BalanceLine{
		{Name: "bob", Emoji: "🍎", Coins: 2000},
		{Name: "alice", Emoji: "🪙", Coins: 1000},
	}, all)

	onlyGold, err := svc.GetBalances(ctx, GetBalancesRequest{Guild: guild, Emoji: "🪙"})
	require.NoError(t, err)
	assert.Len(t, onlyGold, 1)

	onlyBob, err := svc.GetBalances(ctx, GetBalancesRequest{Guild: guild, User: &bob})
	require.NoError(t, err)
	assert.Equal(t, []domain.BalanceLine{{Name: "bob", Emoji: "🍎", Coins: 2000}}, onlyBob)

	none, err := svc.GetBalances(ctx, GetBalancesRequest{Guild: "-100999"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetAllCurrenciesForGuild(t *testing.T) {
	svc, _ := newService(t)
	createGold(t, svc, alice, 1000)

	emojis, err := svc.GetAllCurrenciesForGuild(context.Background(), guild)
	require.NoError(t, err)
	assert.Equal(t, []string{"🪙"}, emojis)

	emojis, err = svc.GetAllCurrenciesForGuild(context.Background(), "-100999")
	require.NoError(t, err)
	assert.Empty(t, emojis)
}

func TestGetAllCurrenciesForGuild_ReadsThroughCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := currencycache.NewCache(client, time.Minute)
	svc := NewService(memstore.New(), nil).WithCache(cache)
	ctx := context.Background()
	createGold(t, svc, alice, 1000)

	emojis, err := svc.GetAllCurrenciesForGuild(ctx, guild)
	require.NoError(t, err)
	assert.Equal(t, []string{"🪙"}, emojis)

	cached, ok, err := cache.Get(ctx, guild)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"🪙"}, cached)

	_, err = svc.CreateCurrency(ctx, CreateCurrencyRequest{
		Name: "apples", Guild: guild, Emoji: "🍎", InitialAmount: 1000, Commissioner: bob,
	})
	require.NoError(t, err)

	emojis, err = svc.GetAllCurrenciesForGuild(ctx, guild)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"🍎", "🪙"}, emojis)
}

func TestGetAllCurrenciesForGuild_FallsBackWhenCacheDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	svc := NewService(memstore.New(), nil).WithCache(currencycache.NewCache(client, time.Minute))
	createGold(t, svc, alice, 1000)
	mr.Close()

	emojis, err := svc.GetAllCurrenciesForGuild(context.Background(), guild)
	require.NoError(t, err)
	assert.Equal(t, []string{"🪙"}, emojis)
}
