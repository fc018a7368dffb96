// cache — Redis-хранилище исходов загрузок страницы приглашения.
// Нужно, когда web-edge запущен в нескольких экземплярах: обновление
// страницы ?load=... может прийти на другой экземпляр и должно увидеть
// тот же исход.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pribylovaa/go-outreach-web/internal/invitation"
)

// DefaultPrefix — префикс ключей, если не задан в конфигурации.
const DefaultPrefix = "web-edge:inv:"

// Outcomes реализует invitation.OutcomeStore поверх Redis.
type Outcomes struct {
	rdb    *redis.Client
	prefix string
}

var _ invitation.OutcomeStore = (*Outcomes)(nil)

// NewOutcomes создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется DefaultPrefix.
func NewOutcomes(ctx context.Context, redisURL, prefix string) (*Outcomes, error) {
	const op = "internal/cache/NewOutcomes"

	if prefix == "" {
		prefix = DefaultPrefix
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: parse url: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	return &Outcomes{rdb: rdb, prefix: prefix}, nil
}

func (c *Outcomes) key(loadID string) string { return c.prefix + loadID }

// Храним строкой вид ошибки (invitation.Kind.String()).
func (c *Outcomes) Get(ctx context.Context, loadID string) (invitation.Outcome, bool, error) {
	v, err := c.rdb.Get(ctx, c.key(loadID)).Result()
	if errors.Is(err, redis.Nil) {
		return invitation.Outcome{}, false, nil
	}
	if err != nil {
		return invitation.Outcome{}, false, err
	}

	return invitation.Outcome{Kind: invitation.ParseKind(v)}, true, nil
}

func (c *Outcomes) Put(ctx context.Context, loadID string, o invitation.Outcome, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	return c.rdb.Set(ctx, c.key(loadID), o.Kind.String(), ttl).Err()
}

// Ping — проверка готовности для /healthz.
func (c *Outcomes) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *Outcomes) Close() error { return c.rdb.Close() }
