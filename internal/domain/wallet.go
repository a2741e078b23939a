package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lms-platform/shipping-core/pkg/money"
)

// User is the account collaborator record: pricing tier and wallet
type User struct {
	UserID        string       `bson:"userId" json:"userId"`
	Name          string       `bson:"name,omitempty" json:"name,omitempty"`
	CustomerType  string       `bson:"customerType" json:"customerType"`
	WalletBalance money.Amount `bson:"walletBalance" json:"walletBalance"`
	UpdatedAt     time.Time    `bson:"updatedAt" json:"updatedAt"`
}

// TransactionKind distinguishes wallet movements
type TransactionKind string

const (
	TransactionDebit  TransactionKind = "debit"
	TransactionRefund TransactionKind = "refund"
)

// Transaction is the wallet ledger entry written with each movement
type Transaction struct {
	TransactionID string          `bson:"transactionId" json:"transactionId"`
	UserID        string          `bson:"userId" json:"userId"`
	Kind          TransactionKind `bson:"kind" json:"kind"`
	Amount        money.Amount    `bson:"amount" json:"amount"`
	BalanceAfter  money.Amount    `bson:"balanceAfter" json:"balanceAfter"`
	OrderIDs      []string        `bson:"orderIds,omitempty" json:"orderIds,omitempty"`
	ShipmentIDs   []string        `bson:"shipmentIds,omitempty" json:"shipmentIds,omitempty"`
	Reference     string          `bson:"reference,omitempty" json:"reference,omitempty"`
	Description   string          `bson:"description" json:"description"`
	ActorID       string          `bson:"actorId,omitempty" json:"actorId,omitempty"`
	CreatedAt     time.Time       `bson:"createdAt" json:"createdAt"`
}

// NewTransaction creates a ledger entry. The amount is settled to paise.
func NewTransaction(userID string, kind TransactionKind, amount decimal.Decimal, orderIDs []string, reference, description string) (*Transaction, error) {
	settled := money.Settle(amount)
	if !settled.IsPositive() {
		return nil, ErrInvalidAmount
	}

	return &Transaction{
		TransactionID: uuid.New().String(),
		UserID:        userID,
		Kind:          kind,
		Amount:        money.New(settled),
		OrderIDs:      orderIDs,
		Reference:     reference,
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Event returns the wallet movement event for this entry
func (t *Transaction) Event() DomainEvent {
	return &WalletMovedEvent{
		TransactionID: t.TransactionID,
		UserID:        t.UserID,
		Kind:          string(t.Kind),
		Amount:        t.Amount.String(),
		ShipmentIDs:   t.ShipmentIDs,
		OrderIDs:      t.OrderIDs,
		At:            t.CreatedAt,
	}
}
