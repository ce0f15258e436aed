package mongostore

import (
	"context"

	"payments-portal/internal/shared/model"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ============================================================================
// PostStore
// ============================================================================

func (s *Store) CreatePost(ctx context.Context, post *model.Post) error {
	if post.ID == "" {
		post.ID = newID()
	}
	return insertOne(ctx, s.col(ColPosts), post)
}

func (s *Store) GetPost(ctx context.Context, id string) (*model.Post, error) {
	return findByID[model.Post](ctx, s.col(ColPosts), id)
}

func (s *Store) ListPosts(ctx context.Context) ([]*model.Post, error) {
	return findMany[model.Post](ctx, s.logger, s.col(ColPosts), bson.D{})
}

func (s *Store) UpdatePost(ctx context.Context, post *model.Post) error {
	return updateWhere(ctx, s.logger, s.col(ColPosts), idFilter(post.ID), bson.D{
		{Key: "user", Value: post.User},
		{Key: "content", Value: post.Content},
		{Key: "image", Value: post.Image},
	})
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColPosts), id)
}
