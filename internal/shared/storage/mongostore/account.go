package mongostore

import (
	"context"

	"payments-portal/internal/shared/model"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// AccountStore
// ============================================================================

func (s *Store) CreateAccount(ctx context.Context, account *model.Account) error {
	if account.ID == "" {
		account.ID = newID()
	}
	return insertOne(ctx, s.col(account.Role.Collection()), account)
}

func (s *Store) GetAccountByUsername(ctx context.Context, role model.Role, username string) (*model.Account, error) {
	acc, err := findOne[model.Account](ctx, s.col(role.Collection()), bson.D{{Key: "username", Value: username}})
	return withRole(acc, role), err
}

func (s *Store) GetAccountByID(ctx context.Context, role model.Role, id string) (*model.Account, error) {
	acc, err := findByID[model.Account](ctx, s.col(role.Collection()), id)
	return withRole(acc, role), err
}

func (s *Store) ListAccounts(ctx context.Context, role model.Role) ([]*model.Account, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	accounts, err := findMany[model.Account](ctx, s.logger, s.col(role.Collection()), bson.D{}, opts)
	for _, acc := range accounts {
		withRole(acc, role)
	}
	return accounts, err
}

// withRole 早期文档可能没有 role 字段，以所在集合为准
func withRole(acc *model.Account, role model.Role) *model.Account {
	if acc != nil {
		acc.Role = role
	}
	return acc
}
