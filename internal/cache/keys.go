package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	PostKeyPrefix         = "post:%d"
	PostCommentsKeyPrefix = "post:%d:comments"
	LeaseKeyPrefix        = "lease:%s"
)

const (
	PostTTL         = 30 * time.Minute
	PostCommentsTTL = 5 * time.Minute
)

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func PostCommentsKey(postID uint) string {
	return fmt.Sprintf(PostCommentsKeyPrefix, postID)
}

func LeaseKey(name string) string {
	return fmt.Sprintf(LeaseKeyPrefix, name)
}

func Invalidate(ctx context.Context, keys ...string) {
	if client != nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

// InvalidatePost drops every cached view derived from the post.
func InvalidatePost(ctx context.Context, postID uint) {
	Invalidate(ctx, PostKey(postID), PostCommentsKey(postID))
}

// InvalidateComments drops the cached comment tree of the post.
func InvalidateComments(ctx context.Context, postID uint) {
	Invalidate(ctx, PostCommentsKey(postID))
}
