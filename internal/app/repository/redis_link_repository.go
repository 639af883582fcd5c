package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sifan077/MiniLink/internal/app/model"
)

// Link hashes live under {prefix}:link:{shortCode}; {prefix}:links:recent is a
// sorted set of short codes scored by last access in unix milliseconds.
// A custom alias always equals its short code, so one key serves both lookups.
//
// The scripts touch two keys, so a clustered deployment needs both to hash to the same slot.
var (
	createLinkScript = redis.NewScript(`
		if redis.call('EXISTS', KEYS[1]) == 1 then
			return 0
		end
		redis.call('HSET', KEYS[1],
			'short_code', ARGV[1],
			'custom_alias', ARGV[2],
			'long_url', ARGV[3],
			'created_at', ARGV[4],
			'last_accessed', ARGV[5],
			'expiration_date', ARGV[6],
			'click_count', 0)
		redis.call('ZADD', KEYS[2], ARGV[5], ARGV[1])
		return 1
	`)

	recordClickScript = redis.NewScript(`
		if redis.call('EXISTS', KEYS[1]) == 0 then
			return -1
		end
		local now = tonumber(ARGV[1])
		local exp = redis.call('HGET', KEYS[1], 'expiration_date')
		if exp and exp ~= '' and now > tonumber(exp) then
			return -2
		end
		redis.call('HINCRBY', KEYS[1], 'click_count', 1)
		redis.call('HSET', KEYS[1], 'last_accessed', ARGV[1])
		local code = redis.call('HGET', KEYS[1], 'short_code')
		redis.call('ZADD', KEYS[2], ARGV[1], code)
		return redis.call('HGETALL', KEYS[1])
	`)

	deleteLinkScript = redis.NewScript(`
		local code = redis.call('HGET', KEYS[1], 'short_code')
		if not code then
			return 0
		end
		redis.call('DEL', KEYS[1])
		redis.call('ZREM', KEYS[2], code)
		return 1
	`)
)

type redisLinkRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisLinkRepository returns a LinkRepository storing links as Redis hashes.
func NewRedisLinkRepository(client *redis.Client, prefix string) LinkRepository {
	if prefix == "" {
		prefix = "minilink"
	}
	return &redisLinkRepository{client: client, prefix: prefix}
}

func (r *redisLinkRepository) linkKey(code string) string {
	return r.prefix + ":link:" + code
}

func (r *redisLinkRepository) recentKey() string {
	return r.prefix + ":links:recent"
}

func (r *redisLinkRepository) Create(ctx context.Context, link *model.Link) error {
	if link.CustomAlias != nil && *link.CustomAlias != link.ShortCode {
		return fmt.Errorf("redis store: alias %q must equal short code %q", *link.CustomAlias, link.ShortCode)
	}

	created, err := createLinkScript.Run(ctx, r.client,
		[]string{r.linkKey(link.ShortCode), r.recentKey()},
		link.ShortCode,
		link.Alias(),
		link.LongURL,
		link.CreatedAt.UnixMilli(),
		link.LastAccessed.UnixMilli(),
		formatMillis(link.ExpirationDate),
	).Int()
	if err != nil {
		return fmt.Errorf("redis store: create: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateLink, link.ShortCode)
	}
	return nil
}

func (r *redisLinkRepository) GetByCodeOrAlias(ctx context.Context, codeOrAlias string) (*model.Link, error) {
	fields, err := r.client.HGetAll(ctx, r.linkKey(codeOrAlias)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: get: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrLinkNotFound
	}
	return linkFromHash(fields)
}

func (r *redisLinkRepository) GetByAlias(ctx context.Context, alias string) (*model.Link, error) {
	link, err := r.GetByCodeOrAlias(ctx, alias)
	if err != nil {
		return nil, err
	}
	if link.Alias() != alias {
		return nil, ErrLinkNotFound
	}
	return link, nil
}

func (r *redisLinkRepository) List(ctx context.Context) ([]model.Link, error) {
	codes, err := r.client.ZRevRange(ctx, r.recentKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: list: %w", err)
	}

	links := make([]model.Link, 0, len(codes))
	if len(codes) == 0 {
		return links, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(codes))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, code := range codes {
			cmds[i] = pipe.HGetAll(ctx, r.linkKey(code))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis store: list: %w", err)
	}

	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// deleted between ZREVRANGE and HGETALL
			continue
		}
		link, err := linkFromHash(fields)
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	return links, nil
}

func (r *redisLinkRepository) RecordClick(ctx context.Context, codeOrAlias string, at time.Time) (*model.Link, error) {
	res, err := recordClickScript.Run(ctx, r.client,
		[]string{r.linkKey(codeOrAlias), r.recentKey()},
		at.UnixMilli(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: record click: %w", err)
	}

	switch v := res.(type) {
	case int64:
		if v == -2 {
			return nil, ErrLinkExpired
		}
		return nil, ErrLinkNotFound
	case []interface{}:
		fields, err := pairsToMap(v)
		if err != nil {
			return nil, err
		}
		return linkFromHash(fields)
	default:
		return nil, fmt.Errorf("redis store: unexpected click script reply %T", res)
	}
}

func (r *redisLinkRepository) Delete(ctx context.Context, codeOrAlias string) error {
	deleted, err := deleteLinkScript.Run(ctx, r.client,
		[]string{r.linkKey(codeOrAlias), r.recentKey()},
	).Int()
	if err != nil {
		return fmt.Errorf("redis store: delete: %w", err)
	}
	if deleted == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func (r *redisLinkRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func formatMillis(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

func pairsToMap(values []interface{}) (map[string]string, error) {
	if len(values)%2 != 0 {
		return nil, errors.New("redis store: odd number of hash fields")
	}
	fields := make(map[string]string, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		k, ok1 := values[i].(string)
		v, ok2 := values[i+1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("redis store: unexpected hash entry %T/%T", values[i], values[i+1])
		}
		fields[k] = v
	}
	return fields, nil
}

func linkFromHash(fields map[string]string) (*model.Link, error) {
	link := &model.Link{
		ShortCode: fields["short_code"],
		LongURL:   fields["long_url"],
	}
	if link.ShortCode == "" {
		return nil, errors.New("redis store: hash without short_code")
	}
	if alias := fields["custom_alias"]; alias != "" {
		link.CustomAlias = &alias
	}

	var err error
	if link.CreatedAt, err = parseMillis(fields["created_at"]); err != nil {
		return nil, fmt.Errorf("redis store: created_at for %s: %w", link.ShortCode, err)
	}
	if link.LastAccessed, err = parseMillis(fields["last_accessed"]); err != nil {
		return nil, fmt.Errorf("redis store: last_accessed for %s: %w", link.ShortCode, err)
	}
	if raw := fields["expiration_date"]; raw != "" {
		exp, err := parseMillis(raw)
		if err != nil {
			return nil, fmt.Errorf("redis store: expiration_date for %s: %w", link.ShortCode, err)
		}
		link.ExpirationDate = &exp
	}
	if raw := fields["click_count"]; raw != "" {
		if link.ClickCount, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("redis store: click_count for %s: %w", link.ShortCode, err)
		}
	}
	return link, nil
}
