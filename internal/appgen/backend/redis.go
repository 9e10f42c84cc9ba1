package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	errx "github.com/genapp-poc-v1/server/internal/core/error"
)

const (
	// InitializedKey is the sentinel set once a tenant's data has been seeded.
	InitializedKey = "db:initialized"
	// DataModelKey holds the model's description of its key layout.
	DataModelKey = "data_model"

	schemaKeyLimit = 200
)

var (
	allKeyVerbs = set("DEL", "EXISTS", "MGET", "SINTER", "SUNION", "SDIFF", "UNLINK", "TOUCH", "WATCH",
		"PFCOUNT", "SINTERSTORE", "SUNIONSTORE", "SDIFFSTORE", "PFMERGE")
	pairKeyVerbs  = set("MSET", "MSETNX")
	firstTwoVerbs = set("RENAME", "RENAMENX", "SMOVE", "RPOPLPUSH", "LMOVE", "COPY")
	numKeysVerbs  = set("ZUNIONSTORE", "ZINTERSTORE", "ZDIFFSTORE")
	keylessVerbs  = set("PING", "ECHO", "TIME")
	deniedVerbs   = set("FLUSHALL", "FLUSHDB", "SELECT", "SWAPDB", "CONFIG", "SHUTDOWN", "DEBUG", "SCAN",
		"RANDOMKEY", "DBSIZE", "MIGRATE", "MOVE", "CLIENT", "SCRIPT", "EVAL", "EVALSHA", "FUNCTION",
		"FCALL", "MONITOR", "SUBSCRIBE", "PSUBSCRIBE", "SAVE", "BGSAVE", "REPLICAOF", "SLAVEOF",
		"ACL", "CLUSTER", "MULTI", "EXEC", "BLPOP", "BRPOP", "BLMOVE", "BZPOPMIN", "BZPOPMAX")
	hashVerbs = set("HGETALL")
)

func set(vs ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(vs))
	for _, v := range vs {
		m[v] = struct{}{}
	}
	return m
}

func in(m map[string]struct{}, v string) bool {
	_, ok := m[v]
	return ok
}

// RedisClient is the key-value variant. All of a tenant's keys live under
// the namespace "app:{tenant}:" on a shared Redis connection pool.
type RedisClient struct {
	rdb       redis.UniversalClient
	namespace string
}

func NewRedisClient(rdb redis.UniversalClient, tenantID string) *RedisClient {
	return &RedisClient{rdb: rdb, namespace: Namespace(tenantID)}
}

// Namespace is the key prefix owned by a tenant.
func Namespace(tenantID string) string {
	return "app:" + tenantID + ":"
}

func (c *RedisClient) Variant() Variant { return KeyValue }

func (c *RedisClient) ExecuteCommands(ctx context.Context, cmds []Command) (Results, error) {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return nil, errx.WrapRedis(fmt.Errorf("redis unavailable: %w", err))
	}

	results := make(Results, len(cmds))
	for i, cmd := range cmds {
		kc, ok := cmd.(KVCommand)
		if !ok {
			results[resultKey(cmd, i)] = ErrorResult(fmt.Errorf("command of type %T is not a key-value command", cmd))
			continue
		}
		key := resultKey(kc, i)
		v, err := c.Do(ctx, kc.Command, kc.Args...)
		if err != nil {
			results[key] = ErrorResult(err)
			continue
		}
		results[key] = v
	}
	return results, nil
}

// Do runs a single command inside the tenant namespace and normalizes the reply.
// A missing key yields a nil value rather than an error.
func (c *RedisClient) Do(ctx context.Context, verb string, args ...string) (any, error) {
	verb = strings.ToUpper(strings.TrimSpace(verb))
	if verb == "" {
		return nil, errors.New("missing command")
	}
	if in(deniedVerbs, verb) {
		return nil, fmt.Errorf("command %s is not allowed", verb)
	}

	nsArgs, err := c.namespaceArgs(verb, args)
	if err != nil {
		return nil, err
	}

	full := make([]any, 0, len(nsArgs)+1)
	full = append(full, verb)
	for _, a := range nsArgs {
		full = append(full, a)
	}

	res, err := c.rdb.Do(ctx, full...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	v := normalize(res, in(hashVerbs, verb))
	if verb == "KEYS" {
		v = c.stripKeys(v)
	}
	return v, nil
}

func (c *RedisClient) namespaceArgs(verb string, args []string) ([]string, error) {
	out := append([]string(nil), args...)
	if len(out) == 0 || in(keylessVerbs, verb) {
		return out, nil
	}

	switch {
	case in(allKeyVerbs, verb):
		for i := range out {
			out[i] = c.namespace + out[i]
		}
	case in(pairKeyVerbs, verb):
		for i := 0; i < len(out); i += 2 {
			out[i] = c.namespace + out[i]
		}
	case in(firstTwoVerbs, verb):
		for i := 0; i < len(out) && i < 2; i++ {
			out[i] = c.namespace + out[i]
		}
	case in(numKeysVerbs, verb):
		out[0] = c.namespace + out[0]
		if len(out) < 2 {
			return out, nil
		}
		n, err := strconv.Atoi(out[1])
		if err != nil {
			return nil, fmt.Errorf("%s numkeys must be an integer: %w", verb, err)
		}
		for i := 2; i < len(out) && i < 2+n; i++ {
			out[i] = c.namespace + out[i]
		}
	default:
		out[0] = c.namespace + out[0]
	}
	return out, nil
}

func (c *RedisClient) stripKeys(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	keys := make([]string, 0, len(list))
	for _, k := range list {
		if s, ok := k.(string); ok {
			keys = append(keys, strings.TrimPrefix(s, c.namespace))
		}
	}
	sort.Strings(keys)
	return keys
}

// normalize decodes binary replies to text and folds hash replies into
// map[string]string for both RESP2 flat arrays and RESP3 maps.
func normalize(v any, hash bool) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case map[any]any:
		if hash {
			m := make(map[string]string, len(t))
			for k, val := range t {
				m[text(k)] = text(val)
			}
			return m
		}
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[text(k)] = normalize(val, false)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = normalize(val, false)
		}
		return m
	case []any:
		if hash {
			m := make(map[string]string, len(t)/2)
			for i := 0; i+1 < len(t); i += 2 {
				m[text(t[i])] = text(t[i+1])
			}
			return m
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e, false)
		}
		return out
	default:
		return v
	}
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func (c *RedisClient) IsInitialized(ctx context.Context) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.namespace+InitializedKey).Result()
	if err != nil {
		return false, errx.WrapRedis(fmt.Errorf("failed to check initialization sentinel: %w", err))
	}
	return n > 0, nil
}

func (c *RedisClient) MarkInitialized(ctx context.Context) error {
	if err := c.rdb.Set(ctx, c.namespace+InitializedKey, "1", 0).Err(); err != nil {
		return errx.WrapRedis(fmt.Errorf("failed to set initialization sentinel: %w", err))
	}
	return nil
}

func (c *RedisClient) GetSchema(ctx context.Context) (string, error) {
	var b strings.Builder

	dataModel, err := c.rdb.Get(ctx, c.namespace+DataModelKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", errx.WrapRedis(fmt.Errorf("failed to read data model: %w", err))
	}
	if dataModel != "" {
		b.WriteString("Data model:\n")
		b.WriteString(dataModel)
		b.WriteString("\n")
	}

	keys, err := c.rdb.Keys(ctx, c.namespace+"*").Result()
	if err != nil {
		return "", errx.WrapRedis(fmt.Errorf("failed to list keys: %w", err))
	}
	sort.Strings(keys)

	var listed int
	for _, k := range keys {
		name := strings.TrimPrefix(k, c.namespace)
		if name == DataModelKey || name == InitializedKey {
			continue
		}
		if listed == 0 {
			b.WriteString("Existing keys:\n")
		}
		if listed == schemaKeyLimit {
			fmt.Fprintf(&b, "... and %d more\n", len(keys)-listed)
			break
		}
		typ, err := c.rdb.Type(ctx, k).Result()
		if err != nil {
			typ = "unknown"
		}
		fmt.Fprintf(&b, "%s (%s)\n", name, typ)
		listed++
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (c *RedisClient) Template(ctx context.Context) any {
	return &RedisTemplateView{ctx: ctx, client: c}
}

// Close is a no-op; the pool is shared across tenants.
func (c *RedisClient) Close() error { return nil }

// RedisTemplateView is exposed to page templates as `db`. Every accessor is
// confined to the tenant namespace.
type RedisTemplateView struct {
	ctx    context.Context
	client *RedisClient
}

func (v *RedisTemplateView) Get(key string) (any, error) {
	return v.client.Do(v.ctx, "GET", key)
}

func (v *RedisTemplateView) HGetAll(key string) (any, error) {
	return v.client.Do(v.ctx, "HGETALL", key)
}

func (v *RedisTemplateView) SMembers(key string) (any, error) {
	return v.client.Do(v.ctx, "SMEMBERS", key)
}

func (v *RedisTemplateView) LRange(key string, start, stop int) (any, error) {
	return v.client.Do(v.ctx, "LRANGE", key, strconv.Itoa(start), strconv.Itoa(stop))
}

func (v *RedisTemplateView) ZRange(key string, start, stop int) (any, error) {
	return v.client.Do(v.ctx, "ZRANGE", key, strconv.Itoa(start), strconv.Itoa(stop))
}

func (v *RedisTemplateView) Keys(pattern string) (any, error) {
	return v.client.Do(v.ctx, "KEYS", pattern)
}

// RedisOpener hands out namespaced clients over one shared pool.
type RedisOpener struct {
	Client redis.UniversalClient
}

func (o RedisOpener) Variant() Variant { return KeyValue }

func (o RedisOpener) Open(_ context.Context, tenantID string) (Client, error) {
	return NewRedisClient(o.Client, tenantID), nil
}
