package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix    = "user:%d"
	PostKeyPrefix    = "post:%d"
	RevokedKeyPrefix = "revoked:jti:%s"
)

const (
	UserTTL = 5 * time.Minute
	PostTTL = 5 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func RevokedKey(jti string) string {
	return fmt.Sprintf(RevokedKeyPrefix, jti)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

func InvalidatePost(ctx context.Context, postID uint) {
	Invalidate(ctx, PostKey(postID))
}

// RevokeToken blacklists a token ID until its natural expiry. The TTL keeps
// the blacklist from growing without bound.
func RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if client == nil {
		return fmt.Errorf("redis unavailable, cannot revoke token")
	}
	if ttl <= 0 {
		// Already expired; nothing to blacklist.
		return nil
	}
	return client.Set(ctx, RevokedKey(jti), "1", ttl).Err()
}

// IsTokenRevoked reports whether the token ID has been blacklisted.
// Without Redis every token is treated as live.
func IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if client == nil {
		return false, nil
	}
	n, err := client.Exists(ctx, RevokedKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
