// Package memstore is an in-memory repository.Store. Every transaction works
// on a private copy of the state that replaces the shared state on commit, so
// a failed transaction leaves nothing behind.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Proton-105/guildbank/internal/domain"
	"github.com/Proton-105/guildbank/internal/repository"
)

type currencyKey struct {
	guild string
	emoji string
}

type balanceKey struct {
	identityID int64
	currencyID int64
}

type channelKey struct {
	guild string
	kind  domain.ChannelKind
}

type membershipKey struct {
	identityID int64
	roleID     int64
}

type state struct {
	nextID      int64
	identities  map[int64]domain.Identity
	byExternal  map[string]int64
	currencies  map[int64]domain.Currency
	byEmoji     map[currencyKey]int64
	balances    map[balanceKey]domain.Balance
	roles       map[int64]domain.Role
	memberships map[membershipKey]domain.Membership
	channels    map[channelKey]domain.GuildChannel
}

func newState() state {
	return state{
		identities:  map[int64]domain.Identity{},
		byExternal:  map[string]int64{},
		currencies:  map[int64]domain.Currency{},
		byEmoji:     map[currencyKey]int64{},
		balances:    map[balanceKey]domain.Balance{},
		roles:       map[int64]domain.Role{},
		memberships: map[membershipKey]domain.Membership{},
		channels:    map[channelKey]domain.GuildChannel{},
	}
}

func (s state) clone() state {
	cp := newState()
	cp.nextID = s.nextID
	for k, v := range s.identities {
		cp.identities[k] = v
	}
	for k, v := range s.byExternal {
		cp.byExternal[k] = v
	}
	for k, v := range s.currencies {
		cp.currencies[k] = v
	}
	for k, v := range s.byEmoji {
		cp.byEmoji[k] = v
	}
	for k, v := range s.balances {
		cp.balances[k] = v
	}
	for k, v := range s.roles {
		cp.roles[k] = v
	}
	for k, v := range s.memberships {
		cp.memberships[k] = v
	}
	for k, v := range s.channels {
		cp.channels[k] = v
	}
	return cp
}

func (s *state) newID() int64 {
	s.nextID++
	return s.nextID
}

// Store implements repository.Store. Transactions are serialized.
type Store struct {
	mu    sync.RWMutex
	state state
	nowFn func() time.Time
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		state: newState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

type tx struct {
	state *state
	now   time.Time
}

var _ repository.Tx = (*tx)(nil)

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(ctx, &tx{state: &working, now: s.nowFn()}); err != nil {
		return err
	}

	s.state = working
	return nil
}

func (s *Store) CurrencyEmojis(_ context.Context, guild string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	emojis := make([]string, 0)
	for _, c := range s.state.currencies {
		if c.Guild == guild {
			emojis = append(emojis, c.Emoji)
		}
	}
	sort.Strings(emojis)

	return emojis, nil
}

func (s *Store) Balances(_ context.Context, filter domain.BalanceFilter) ([]domain.BalanceLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]domain.BalanceLine, 0)
	for key, b := range s.state.balances {
		c := s.state.currencies[key.currencyID]
		if c.Guild != filter.Guild {
			continue
		}
		if filter.Emoji != "" && c.Emoji != filter.Emoji {
			continue
		}
		ident := s.state.identities[key.identityID]
		if filter.ExternalID != "" && ident.ExternalID != filter.ExternalID {
			continue
		}
		lines = append(lines, domain.BalanceLine{
			Name:  ident.DisplayName,
			Emoji: c.Emoji,
			Coins: b.Amount,
		})
	}

	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].Emoji != lines[j].Emoji {
			return lines[i].Emoji < lines[j].Emoji
		}
		if lines[i].Coins != lines[j].Coins {
			return lines[i].Coins < lines[j].Coins
		}
		return lines[i].Name < lines[j].Name
	})

	return lines, nil
}

func (s *Store) MentionableRoleIDs(_ context.Context, externalUserID, guild string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roleIDs := make([]string, 0)
	identityID, ok := s.state.byExternal[externalUserID]
	if !ok {
		return roleIDs, nil
	}

	for key, m := range s.state.memberships {
		if key.identityID != identityID || !m.Active {
			continue
		}
		role := s.state.roles[key.roleID]
		if role.Guild == guild && role.Mentionable == domain.MentionableAllowed {
			roleIDs = append(roleIDs, role.ExternalRoleID)
		}
	}
	sort.Strings(roleIDs)

	return roleIDs, nil
}

func (s *Store) SetRoleMentionable(_ context.Context, externalRoleID string, state domain.MentionableState) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	for id, role := range s.state.roles {
		if role.ExternalRoleID != externalRoleID {
			continue
		}
		role.Mentionable = state
		role.UpdatedAt = s.nowFn()
		s.state.roles[id] = role
		affected++
	}

	return affected, nil
}

func (s *Store) SetGuildChannel(_ context.Context, channel *domain.GuildChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	channel.UpdatedAt = s.nowFn()
	s.state.channels[channelKey{guild: channel.Guild, kind: channel.Kind}] = *channel

	return nil
}

func (s *Store) GuildChannel(_ context.Context, guild string, kind domain.ChannelKind) (*domain.GuildChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channel, ok := s.state.channels[channelKey{guild: guild, kind: kind}]
	if !ok {
		return nil, repository.ErrNotFound
	}

	return &channel, nil
}

// SeedRole stores role without checking the (guild, external id) key. Tests
// use it to reproduce duplicated role rows.
func (s *Store) SeedRole(role domain.Role) domain.Role {
	s.mu.Lock()
	defer s.mu.Unlock()

	role.ID = s.state.newID()
	role.CreatedAt = s.nowFn()
	role.UpdatedAt = role.CreatedAt
	s.state.roles[role.ID] = role

	return role
}

// Balance reports the committed amount a user holds in a guild currency.
func (s *Store) Balance(externalID, guild, emoji string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identityID, ok := s.state.byExternal[externalID]
	if !ok {
		return 0, false
	}
	currencyID, ok := s.state.byEmoji[currencyKey{guild: guild, emoji: emoji}]
	if !ok {
		return 0, false
	}
	b, ok := s.state.balances[balanceKey{identityID: identityID, currencyID: currencyID}]
	return b.Amount, ok
}

// Role returns the committed role rows matching (guild, externalRoleID).
func (s *Store) Role(guild, externalRoleID string) []domain.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return findRoles(&s.state, guild, externalRoleID)
}

// Members returns the external ids of active members of a role, sorted.
func (s *Store) Members(guild, externalRoleID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roles := findRoles(&s.state, guild, externalRoleID)
	if len(roles) == 0 {
		return nil
	}

	members := make([]string, 0)
	for key, m := range s.state.memberships {
		if key.roleID == roles[0].ID && m.Active {
			members = append(members, s.state.identities[key.identityID].ExternalID)
		}
	}
	sort.Strings(members)

	return members
}

// Membership returns the committed membership of a user in a role.
func (s *Store) Membership(guild, externalRoleID, externalID string) (domain.Membership, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roles := findRoles(&s.state, guild, externalRoleID)
	id, ok := s.state.byExternal[externalID]
	if len(roles) == 0 || !ok {
		return domain.Membership{}, false
	}

	m, ok := s.state.memberships[membershipKey{identityID: id, roleID: roles[0].ID}]
	return m, ok
}

// SetClock replaces the time source used to stamp rows.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = now
}

// Identity looks up a committed identity by external id.
func (s *Store) Identity(externalID string) (domain.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.state.byExternal[externalID]
	if !ok {
		return domain.Identity{}, false
	}
	return s.state.identities[id], true
}

func findRoles(st *state, guild, externalRoleID string) []domain.Role {
	var roles []domain.Role
	for _, role := range st.roles {
		if role.Guild == guild && role.ExternalRoleID == externalRoleID {
			roles = append(roles, role)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles
}

func (t *tx) UpsertIdentity(_ context.Context, ref domain.UserRef) (*domain.Identity, error) {
	if id, ok := t.state.byExternal[ref.ExternalID]; ok {
		ident := t.state.identities[id]
		ident.DisplayName = ref.DisplayName
		ident.UpdatedAt = t.now
		t.state.identities[id] = ident
		return &ident, nil
	}

	ident := domain.Identity{
		ID:          t.state.newID(),
		ExternalID:  ref.ExternalID,
		DisplayName: ref.DisplayName,
		CreatedAt:   t.now,
		UpdatedAt:   t.now,
	}
	t.state.identities[ident.ID] = ident
	t.state.byExternal[ident.ExternalID] = ident.ID

	return &ident, nil
}

func (t *tx) InsertCurrency(_ context.Context, currency *domain.Currency) error {
	key := currencyKey{guild: currency.Guild, emoji: currency.Emoji}
	if _, exists := t.state.byEmoji[key]; exists {
		return fmt.Errorf("insert currency: %w: currencies_emoji_guild_key", repository.ErrUniqueViolation)
	}

	currency.ID = t.state.newID()
	currency.CreatedAt = t.now
	currency.UpdatedAt = t.now
	t.state.currencies[currency.ID] = *currency
	t.state.byEmoji[key] = currency.ID

	return nil
}

func (t *tx) FindCurrency(_ context.Context, guild, emoji string) (*domain.Currency, error) {
	id, ok := t.state.byEmoji[currencyKey{guild: guild, emoji: emoji}]
	if !ok {
		return nil, repository.ErrNotFound
	}

	c := t.state.currencies[id]
	return &c, nil
}

func (t *tx) LockBalances(_ context.Context, currencyID int64, identityIDs []int64) ([]domain.Balance, error) {
	ids := append([]int64(nil), identityIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var balances []domain.Balance
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		if b, ok := t.state.balances[balanceKey{identityID: id, currencyID: currencyID}]; ok {
			balances = append(balances, b)
		}
	}

	return balances, nil
}

func (t *tx) CreditBalance(_ context.Context, identityID, currencyID, amount int64) (int64, error) {
	key := balanceKey{identityID: identityID, currencyID: currencyID}
	b, ok := t.state.balances[key]
	if !ok {
		b = domain.Balance{IdentityID: identityID, CurrencyID: currencyID, CreatedAt: t.now}
	}

	if b.Amount+amount < 0 {
		return 0, fmt.Errorf("credit balance: %w: balances_amount_check", repository.ErrNegativeBalance)
	}

	b.Amount += amount
	b.UpdatedAt = t.now
	t.state.balances[key] = b

	return b.Amount, nil
}

func (t *tx) DebitBalance(_ context.Context, identityID, currencyID, amount int64) (int64, error) {
	key := balanceKey{identityID: identityID, currencyID: currencyID}
	b, ok := t.state.balances[key]
	if !ok {
		return 0, repository.ErrNotFound
	}

	if b.Amount-amount < 0 {
		return 0, fmt.Errorf("debit balance: %w: balances_amount_check", repository.ErrNegativeBalance)
	}

	b.Amount -= amount
	b.UpdatedAt = t.now
	t.state.balances[key] = b

	return b.Amount, nil
}

func (t *tx) UpsertRole(_ context.Context, role *domain.Role) error {
	existing := findRoles(t.state, role.Guild, role.ExternalRoleID)
	if len(existing) == 0 {
		role.ID = t.state.newID()
		role.CreatedAt = t.now
		role.UpdatedAt = t.now
		t.state.roles[role.ID] = *role
		return nil
	}

	stored := existing[0]
	if role.DisplayName != "" {
		stored.DisplayName = role.DisplayName
	}
	if stored.Mentionable != domain.MentionableBlockedByUser {
		stored.Mentionable = role.Mentionable
	}
	stored.UpdatedAt = t.now
	t.state.roles[stored.ID] = stored
	*role = stored

	return nil
}

func (t *tx) LockRoles(_ context.Context, guild, externalRoleID string) ([]domain.Role, error) {
	return findRoles(t.state, guild, externalRoleID), nil
}

func (t *tx) UpdateRoleMentionable(_ context.Context, roleID int64, state domain.MentionableState) error {
	role, ok := t.state.roles[roleID]
	if !ok {
		return nil
	}

	role.Mentionable = state
	role.UpdatedAt = t.now
	t.state.roles[roleID] = role

	return nil
}

func (t *tx) ActivateMemberships(_ context.Context, roleID int64, identityIDs []int64) error {
	for _, id := range identityIDs {
		key := membershipKey{identityID: id, roleID: roleID}
		m, ok := t.state.memberships[key]
		if !ok {
			m = domain.Membership{IdentityID: id, RoleID: roleID, CreatedAt: t.now}
		}
		m.Active = true
		m.UpdatedAt = t.now
		t.state.memberships[key] = m
	}

	return nil
}

func (t *tx) DeactivateMemberships(_ context.Context, roleID int64, identityIDs []int64) error {
	for _, id := range identityIDs {
		key := membershipKey{identityID: id, roleID: roleID}
		m, ok := t.state.memberships[key]
		if !ok || !m.Active {
			continue
		}
		m.Active = false
		m.UpdatedAt = t.now
		t.state.memberships[key] = m
	}

	return nil
}
