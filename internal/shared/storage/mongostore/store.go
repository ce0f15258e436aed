// Package mongostore 实现基于 MongoDB 的 PersistentStore
//
// 使用 mongo-go-driver v2，通过 bson tag 实现 model 结构体的序列化/反序列化。
// 所有 Collection 名称和索引在 ensureIndexes 中统一管理。
package mongostore

import (
	"context"
	"fmt"
	"log"
	"time"

	"payments-portal/internal/shared/model"
	"payments-portal/pkg/logging"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection 名称常量（账号集合见 model.Collection*）
const (
	ColPayments = "payments"
	ColPosts    = "posts"
)

// DefaultDBName 默认数据库名称
const DefaultDBName = "customer_payments"

// Store 实现 storage.PersistentStore 接口的 MongoDB 驱动
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *logging.Logger
}

// NewStore 创建 MongoDB 存储实例
//
// uri: MongoDB 连接 URI，如 "mongodb://localhost:27017" 或 "mongodb+srv://..."
// dbName: 数据库名称，为空时使用 DefaultDBName
func NewStore(ctx context.Context, uri, dbName string) (*Store, error) {
	if dbName == "" {
		dbName = DefaultDBName
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// 旧文档的 ObjectID _id 解码为十六进制字符串
	clientOpts := options.Client().
		ApplyURI(uri).
		SetBSONOptions(&options.BSONOptions{ObjectIDAsHexString: true})
	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect failed: %w", err)
	}

	// 验证连接
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping failed: %w", err)
	}

	s := &Store{client: client, db: client.Database(dbName), logger: logging.Default("mongostore")}

	// 创建索引
	if err := s.ensureIndexes(ctx); err != nil {
		log.Printf("WARNING: mongostore: ensure indexes failed: %v", err)
	}

	return s, nil
}

// SetLogger 替换查询日志器
func (s *Store) SetLogger(l *logging.Logger) {
	s.logger = l
}

// Close 关闭 MongoDB 连接
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping 检查数据库连通性
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// DatabaseName 返回当前数据库名称
func (s *Store) DatabaseName() string {
	return s.db.Name()
}

// col 获取指定 Collection
func (s *Store) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// ensureIndexes 创建所有必要的索引
func (s *Store) ensureIndexes(ctx context.Context) error {
	type idx struct {
		col    string
		keys   bson.D
		unique bool
	}

	indexes := []idx{
		// accounts：用户名在各自集合内唯一
		{model.CollectionCustomers, bson.D{{Key: "username", Value: 1}}, true},
		{model.CollectionEmployees, bson.D{{Key: "username", Value: 1}}, true},
		{model.CollectionUsers, bson.D{{Key: "username", Value: 1}}, true},

		// payments
		{ColPayments, bson.D{{Key: "customerId", Value: 1}, {Key: "createdAt", Value: -1}}, false},
		{ColPayments, bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}, false},
		{ColPayments, bson.D{{Key: "createdAt", Value: -1}}, false},
		{ColPayments, bson.D{{Key: "reference", Value: 1}}, true},
	}

	for _, i := range indexes {
		im := mongo.IndexModel{Keys: i.keys}
		if i.unique {
			im.Options = options.Index().SetUnique(true)
		}
		if _, err := s.col(i.col).Indexes().CreateOne(ctx, im); err != nil {
			return fmt.Errorf("create index on %s: %w", i.col, err)
		}
	}

	return nil
}
