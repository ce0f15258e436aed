package mongostore

import (
	"context"
	"errors"
	"time"

	"payments-portal/internal/shared/storage"
	"payments-portal/pkg/logging"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// wrapError 将 MongoDB 错误转换为领域错误
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrDuplicate
	}
	return err
}

// findOne 查找单个文档并解码到 result
// 文档不存在时返回 (nil, nil)
func findOne[T any](ctx context.Context, col *mongo.Collection, filter bson.D) (*T, error) {
	var result T
	err := col.FindOne(ctx, filter).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, wrapError(err)
	}
	return &result, nil
}

// findByID 按 _id 查找，不存在时返回 storage.ErrNotFound
func findByID[T any](ctx context.Context, col *mongo.Collection, id string) (*T, error) {
	var result T
	if err := col.FindOne(ctx, idFilter(id)).Decode(&result); err != nil {
		return nil, wrapError(err)
	}
	return &result, nil
}

// findMany 查找多个文档
func findMany[T any](ctx context.Context, l *logging.Logger, col *mongo.Collection, filter bson.D, opts ...options.Lister[options.FindOptions]) (results []*T, err error) {
	start := time.Now()
	defer func() { l.DBQueryLog(ctx, "find", col.Name(), time.Since(start), err) }()

	cursor, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, wrapError(err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var item T
		if err := cursor.Decode(&item); err != nil {
			return nil, err
		}
		results = append(results, &item)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	if results == nil {
		results = []*T{}
	}
	return results, nil
}

// insertOne 插入单个文档
func insertOne(ctx context.Context, col *mongo.Collection, doc interface{}) error {
	_, err := col.InsertOne(ctx, doc)
	return wrapError(err)
}

// deleteByID 按 _id 删除
func deleteByID(ctx context.Context, col *mongo.Collection, id string) error {
	res, err := col.DeleteOne(ctx, idFilter(id))
	if err != nil {
		return wrapError(err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// updateWhere 按条件更新指定字段，未命中返回 storage.ErrNotFound
//
// 未命中不记为查询失败，只有驱动错误进入错误日志。
func updateWhere(ctx context.Context, l *logging.Logger, col *mongo.Collection, filter, update bson.D) error {
	start := time.Now()
	res, err := col.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: update}})
	l.DBQueryLog(ctx, "update", col.Name(), time.Since(start), err)
	if err != nil {
		return wrapError(err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// idFilter 按 _id 匹配
//
// 新文档的 _id 是字符串；旧服务写入的文档 _id 是 ObjectID，两种都要命中。
func idFilter(id string) bson.D {
	if oid, err := bson.ObjectIDFromHex(id); err == nil {
		return bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{id, oid}}}}}
	}
	return bson.D{{Key: "_id", Value: id}}
}

// newID 生成文档 ID（ObjectID 十六进制字符串）
func newID() string {
	return bson.NewObjectID().Hex()
}
