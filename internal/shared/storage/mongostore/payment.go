package mongostore

import (
	"context"
	"time"

	"payments-portal/internal/shared/model"
	"payments-portal/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// PaymentStore
// ============================================================================

func (s *Store) CreatePayment(ctx context.Context, payment *model.Payment) error {
	if payment.ID == "" {
		payment.ID = newID()
	}
	return insertOne(ctx, s.col(ColPayments), payment)
}

func (s *Store) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	return findByID[model.Payment](ctx, s.col(ColPayments), id)
}

func (s *Store) ListPayments(ctx context.Context, filter storage.PaymentFilter) ([]*model.Payment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	return findMany[model.Payment](ctx, s.logger, s.col(ColPayments), paymentFilter(filter), opts)
}

func (s *Store) CountPayments(ctx context.Context, filter storage.PaymentFilter) (int64, error) {
	n, err := s.col(ColPayments).CountDocuments(ctx, paymentFilter(filter))
	return n, wrapError(err)
}

// UpdatePaymentStatus 单次条件更新，前置状态检查与写入是原子的
func (s *Store) UpdatePaymentStatus(ctx context.Context, id string, from, to model.PaymentStatus, reviewer string, at time.Time) error {
	filter := append(idFilter(id), bson.E{Key: "status", Value: from})
	return updateWhere(ctx, s.logger, s.col(ColPayments), filter, bson.D{
		{Key: "status", Value: to},
		{Key: "reviewedBy", Value: reviewer},
		{Key: "reviewedAt", Value: at},
	})
}

func paymentFilter(f storage.PaymentFilter) bson.D {
	filter := bson.D{}
	if f.CustomerID != "" {
		filter = append(filter, bson.E{Key: "customerId", Value: f.CustomerID})
	}
	if f.Status != "" {
		filter = append(filter, bson.E{Key: "status", Value: f.Status})
	}
	return filter
}
