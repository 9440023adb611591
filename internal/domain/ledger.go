package domain

import "time"

const (
	// MaxAmount bounds every amount accepted by the ledger: half of the largest
	// integer exactly representable as a float64, so two balances never overflow.
	MaxAmount int64 = (1<<53 - 1) / 2
	// MinInitialAmount is the smallest supply a new currency may start with.
	MinInitialAmount int64 = 1000
)

// Currency is a guild-scoped token identified by its emoji.
type Currency struct {
	ID        int64
	Name      string
	Emoji     string
	Guild     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Balance is the amount of one currency owned by one identity.
type Balance struct {
	IdentityID int64
	CurrencyID int64
	Amount     int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// BalanceLine is the read model returned by balance queries.
type BalanceLine struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
	Coins int64  `json:"coins"`
}

// BalanceFilter narrows a balance query. Empty fields are not filtered on.
type BalanceFilter struct {
	Guild      string
	Emoji      string
	ExternalID string
}

// TransferReceipt reports the balances of both parties after a transfer.
type TransferReceipt struct {
	Emoji            string `json:"emoji"`
	Amount           int64  `json:"amount"`
	SenderBalance    int64  `json:"sender_balance"`
	RecipientBalance int64  `json:"recipient_balance"`
}
