package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/pkg/money"
	pkgmongo "github.com/lms-platform/shipping-core/pkg/mongodb"
)

const (
	// UserCollection holds the account records carrying tier and wallet balance
	UserCollection = "users"
	// TransactionCollection is the wallet ledger
	TransactionCollection = "wallet_transactions"
)

// WalletRepository implements domain.WalletRepository
type WalletRepository struct {
	users        *mongo.Collection
	transactions *mongo.Collection
	db           *mongo.Database
	events       *eventWriter
}

// NewWalletRepository creates a new WalletRepository
func NewWalletRepository(db *mongo.Database) *WalletRepository {
	repo := &WalletRepository{
		users:        db.Collection(UserCollection),
		transactions: db.Collection(TransactionCollection),
		db:           db,
		events:       newEventWriter(db),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *WalletRepository) ensureIndexes(ctx context.Context) {
	r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	r.transactions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "transactionId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "reference", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
}

// GetUser returns the account record, or nil if it does not exist
func (r *WalletRepository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	err := r.users.FindOne(ctx, bson.M{"userId": userID}).Decode(&user)
	if pkgmongo.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// Debit subtracts tx.Amount with a conditional update so the balance never goes negative
func (r *WalletRepository) Debit(ctx context.Context, tx *domain.Transaction) error {
	return r.apply(ctx, tx, money.New(tx.Amount.Neg()), bson.M{
		"userId":        tx.UserID,
		"walletBalance": bson.M{"$gte": tx.Amount},
	})
}

// Credit adds tx.Amount to the balance
func (r *WalletRepository) Credit(ctx context.Context, tx *domain.Transaction) error {
	return r.apply(ctx, tx, tx.Amount, bson.M{"userId": tx.UserID})
}

func (r *WalletRepository) apply(ctx context.Context, tx *domain.Transaction, delta money.Amount, filter bson.M) error {
	var balanceAfter money.Amount

	err := pkgmongo.WithTransaction(ctx, r.db.Client(), func(sessCtx mongo.SessionContext) error {
		update := bson.M{
			"$inc": bson.M{"walletBalance": delta},
			"$set": bson.M{"updatedAt": pkgmongo.Now()},
		}
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

		var user domain.User
		err := r.users.FindOneAndUpdate(sessCtx, filter, update, opts).Decode(&user)
		if pkgmongo.IsNotFound(err) {
			return r.rejection(sessCtx, tx)
		}
		if err != nil {
			return fmt.Errorf("failed to update wallet balance: %w", err)
		}
		balanceAfter = user.WalletBalance

		entry := *tx
		entry.BalanceAfter = balanceAfter
		if _, err := r.transactions.InsertOne(sessCtx, &entry); err != nil {
			return fmt.Errorf("failed to insert wallet transaction: %w", err)
		}

		return r.events.write(sessCtx, tx.UserID, "Wallet", []domain.DomainEvent{entry.Event()})
	})
	if err != nil {
		return err
	}

	tx.BalanceAfter = balanceAfter
	return nil
}

// rejection explains why the conditional update matched nothing
func (r *WalletRepository) rejection(ctx context.Context, tx *domain.Transaction) error {
	user, err := r.GetUser(ctx, tx.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return domain.ErrUserNotFound
	}
	return &domain.InsufficientWalletBalanceError{
		UserID:    tx.UserID,
		Required:  tx.Amount.Decimal,
		Available: user.WalletBalance.Decimal,
	}
}
