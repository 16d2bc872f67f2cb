package domain

import "time"

// AccountType classifies linked accounts.
type AccountType string

const (
	AccountTypeDepository AccountType = "depository"
	AccountTypeCredit     AccountType = "credit"
	AccountTypeLoan       AccountType = "loan"
	AccountTypeInvestment AccountType = "investment"
	AccountTypeBrokerage  AccountType = "brokerage"
	AccountTypeCrypto     AccountType = "crypto"
	AccountTypeOther      AccountType = "other"
)

// IsInvestment reports whether current and available balances combine into the effective balance.
func (t AccountType) IsInvestment() bool {
	return t == AccountTypeInvestment || t == AccountTypeBrokerage
}

// Account is a linked bank, brokerage or crypto account.
// Crypto wallets additionally carry the chain network and the public address.
type Account struct {
	ID               string      `json:"id"`
	UserID           string      `json:"userId"`
	Name             string      `json:"name"`
	Type             AccountType `json:"type"`
	CurrentBalance   SignedMoney `json:"currentBalance"`
	AvailableBalance SignedMoney `json:"availableBalance"`
	Network          string      `json:"network,omitempty"`
	Address          string      `json:"address,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// IsWallet reports whether the account balance is read from a blockchain.
func (a Account) IsWallet() bool {
	return a.Network != "" && a.Address != ""
}

// UserSettings holds per-user display preferences.
type UserSettings struct {
	UserID   string `json:"userId"`
	Currency string `json:"currency"`
	Timezone string `json:"timezone"`
}
