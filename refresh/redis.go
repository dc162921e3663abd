package refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusReplay   int64 = 2
	rotateStatusRotated  int64 = 3
)

// revokeChainLua walks replaced_by links starting at start_id and marks every unrevoked
// token as revoked. Keys are derived from the prefix so the walk stays inside one script;
// the prefix carries a hash tag, which keeps every ledger key in one cluster slot.
const revokeChainLua = `
local function revoke_chain(prefix, start_id, now, reason)
  local count = 0
  local next_id = start_id
  local guard = 0
  while next_id and next_id ~= "" and guard < 1000 do
    guard = guard + 1
    local h = redis.call("GET", prefix .. ":id:" .. next_id)
    if not h then
      break
    end
    local k = prefix .. ":tok:" .. h
    if redis.call("EXISTS", k) == 0 then
      break
    end
    local r = redis.call("HMGET", k, "revoked_at", "replaced_by")
    if (not r[1]) or r[1] == "" then
      redis.call("HSET", k, "revoked_at", now, "reason", reason)
      count = count + 1
    end
    next_id = r[2]
  end
  return count
end
`

const rotateTokenScript = revokeChainLua + `
local prefix = ARGV[1]
local now = ARGV[2]
local rec = redis.call("HMGET", KEYS[1], "id", "user_id", "expires_at", "revoked_at", "replaced_by")
if not rec[1] then
  return {0}
end

local id = rec[1]
local uid = rec[2]
local revoked = rec[4]
local replaced = rec[5]

if revoked and revoked ~= "" then
  if replaced and replaced ~= "" then
    local n = revoke_chain(prefix, replaced, now, "replay")
    return {2, uid, id, n}
  end
  return {0}
end

if tonumber(rec[3]) <= tonumber(now) then
  return {1, uid, id}
end

redis.call("HSET", KEYS[1], "revoked_at", now, "replaced_by", ARGV[3], "reason", "rotated")
redis.call("HSET", KEYS[2],
  "id", ARGV[3],
  "user_id", uid,
  "issued_at", now,
  "expires_at", ARGV[4],
  "ip", ARGV[5],
  "ua", ARGV[6],
  "revoked_at", "",
  "replaced_by", "",
  "reason", "")
redis.call("PEXPIREAT", KEYS[2], ARGV[7])
redis.call("SET", KEYS[3], ARGV[8])
redis.call("PEXPIREAT", KEYS[3], ARGV[7])
redis.call("SADD", prefix .. ":user:" .. uid, ARGV[8])
return {3, uid, id}
`

const revokeChainScript = revokeChainLua + `
return revoke_chain(ARGV[1], ARGV[2], ARGV[3], ARGV[4])
`

const revokeTokenScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local r = redis.call("HGET", KEYS[1], "revoked_at")
if r and r ~= "" then
  return 0
end
redis.call("HSET", KEYS[1], "revoked_at", ARGV[1], "reason", ARGV[2])
return 1
`

var (
	rotateTokenLua = redis.NewScript(rotateTokenScript)
	revokeChainRun = redis.NewScript(revokeChainScript)
	revokeTokenLua = redis.NewScript(revokeTokenScript)
)

// RedisLedger keeps token records in Redis hashes keyed by token hash, with a
// secondary id -> hash index used to follow rotation chains.
//
// Every key shares the hash tag {Prefix}. The Lua scripts derive chain keys at run time,
// so on Redis Cluster the whole ledger lives in a single slot.
type RedisLedger struct {
	redis     redis.UniversalClient
	cfg       Config
	keyPrefix string
}

func NewRedisLedger(client redis.UniversalClient, cfg Config) *RedisLedger {
	cfg = cfg.normalized()
	return &RedisLedger{redis: client, cfg: cfg, keyPrefix: hashTag(cfg.Prefix)}
}

// hashTag wraps prefix in braces unless it already names a hash tag.
func hashTag(prefix string) string {
	if strings.Contains(prefix, "{") && strings.Contains(prefix, "}") {
		return prefix
	}
	return "{" + prefix + "}"
}

func (l *RedisLedger) tokenKey(hash string) string {
	return l.keyPrefix + ":tok:" + hash
}

func (l *RedisLedger) idKey(id string) string {
	return l.keyPrefix + ":id:" + id
}

func (l *RedisLedger) userKey(userID string) string {
	return l.keyPrefix + ":user:" + userID
}

func (l *RedisLedger) retainUntil(expiresAt time.Time) time.Time {
	return expiresAt.Add(l.cfg.RetainAfterExpiry)
}

func (l *RedisLedger) Create(ctx context.Context, userID, ip, userAgent string) (*Token, error) {
	tok, err := mint(l.cfg, userID, ip, userAgent)
	if err != nil {
		return nil, err
	}
	rec := tok.Record
	until := l.retainUntil(rec.ExpiresAt)

	_, err = l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, l.tokenKey(rec.TokenHash),
			"id", rec.ID,
			"user_id", rec.UserID,
			"issued_at", rec.IssuedAt.UnixMilli(),
			"expires_at", rec.ExpiresAt.UnixMilli(),
			"ip", rec.CreatedByIP,
			"ua", rec.UserAgent,
			"revoked_at", "",
			"replaced_by", "",
			"reason", "",
		)
		pipe.PExpireAt(ctx, l.tokenKey(rec.TokenHash), until)
		pipe.Set(ctx, l.idKey(rec.ID), rec.TokenHash, 0)
		pipe.PExpireAt(ctx, l.idKey(rec.ID), until)
		pipe.SAdd(ctx, l.userKey(rec.UserID), rec.TokenHash)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return tok, nil
}

func (l *RedisLedger) FindActive(ctx context.Context, value string) (*Record, error) {
	rec, err := l.loadByHash(ctx, HashValue(value))
	if err != nil {
		return nil, err
	}
	if !rec.Active(l.cfg.Now()) {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (l *RedisLedger) Rotate(ctx context.Context, value, ip, userAgent string) (*Token, error) {
	next, err := mint(l.cfg, "", ip, userAgent)
	if err != nil {
		return nil, err
	}
	now := next.Record.IssuedAt

	res, err := rotateTokenLua.Run(
		ctx,
		l.redis,
		[]string{l.tokenKey(HashValue(value)), l.tokenKey(next.Record.TokenHash), l.idKey(next.Record.ID)},
		l.keyPrefix,
		now.UnixMilli(),
		next.Record.ID,
		next.Record.ExpiresAt.UnixMilli(),
		ip,
		userAgent,
		l.retainUntil(next.Record.ExpiresAt).UnixMilli(),
		next.Record.TokenHash,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: empty rotate response", ErrLedgerUnavailable)
	}

	status, _ := res[0].(int64)
	switch status {
	case rotateStatusRotated:
		next.Record.UserID = stringAt(res, 1)
		return next, nil
	case rotateStatusExpired:
		return nil, ErrExpired
	case rotateStatusReplay:
		revoked, _ := res[3].(int64)
		return nil, &ReplayError{UserID: stringAt(res, 1), TokenID: stringAt(res, 2), Revoked: int(revoked)}
	default:
		return nil, ErrNotFound
	}
}

func (l *RedisLedger) RevokeChain(ctx context.Context, tokenID, reason string) (int, error) {
	// KEYS[1] only routes the script to the ledger's slot.
	n, err := revokeChainRun.Run(ctx, l.redis, []string{l.idKey(tokenID)}, l.keyPrefix, tokenID, l.cfg.Now().UnixMilli(), reason).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return n, nil
}

func (l *RedisLedger) Revoke(ctx context.Context, value, reason string) error {
	return l.revokeHash(ctx, HashValue(value), reason)
}

func (l *RedisLedger) revokeHash(ctx context.Context, hash, reason string) error {
	err := revokeTokenLua.Run(ctx, l.redis, []string{l.tokenKey(hash)}, l.cfg.Now().UnixMilli(), reason).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

// RevokeAllForUser is not atomic across the user's tokens: a token created between the
// index read and the revocations survives until the next call or its expiry.
func (l *RedisLedger) RevokeAllForUser(ctx context.Context, userID, reason string) error {
	hashes, err := l.redis.SMembers(ctx, l.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	for _, h := range hashes {
		if err := l.revokeHash(ctx, h, reason); err != nil {
			return err
		}
	}
	return nil
}

func (l *RedisLedger) Chain(ctx context.Context, tokenID string) ([]Record, error) {
	var out []Record
	next := tokenID
	for i := 0; next != "" && i < maxChainLength; i++ {
		hash, err := l.redis.Get(ctx, l.idKey(next)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
		rec, err := l.loadByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				break
			}
			return nil, err
		}
		out = append(out, *rec)
		next = rec.ReplacedByTokenID
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (l *RedisLedger) loadByHash(ctx context.Context, hash string) (*Record, error) {
	fields, err := l.redis.HGetAll(ctx, l.tokenKey(hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	rec := &Record{
		ID:                fields["id"],
		UserID:            fields["user_id"],
		TokenHash:         hash,
		IssuedAt:          parseMillis(fields["issued_at"]),
		ExpiresAt:         parseMillis(fields["expires_at"]),
		CreatedByIP:       fields["ip"],
		UserAgent:         fields["ua"],
		RevokedReason:     fields["reason"],
		ReplacedByTokenID: fields["replaced_by"],
	}
	if v := fields["revoked_at"]; v != "" {
		t := parseMillis(v)
		rec.RevokedAt = &t
	}
	return rec, nil
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func stringAt(res []interface{}, i int) string {
	if i >= len(res) {
		return ""
	}
	s, _ := res[i].(string)
	return s
}
