package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Read procedures run as Lua scripts so each is one indivisible round trip.
// Every script takes the board key as KEYS[1] and the polarity ("asc" or
// "desc") as its last argument.

// countBetterScript: ARGV[1] score -> number of strictly better members.
var countBetterScript = redis.NewScript(`
	local key = KEYS[1]
	local score = ARGV[1]
	if ARGV[2] == 'asc' then
		return redis.call('ZCOUNT', key, '-inf', '(' .. score)
	end
	return redis.call('ZCOUNT', key, '(' .. score, '+inf')
`)

// positionScript: ARGV[1] member -> 0-origin index or nil.
var positionScript = redis.NewScript(`
	if ARGV[2] == 'asc' then
		return redis.call('ZRANK', KEYS[1], ARGV[1])
	end
	return redis.call('ZREVRANK', KEYS[1], ARGV[1])
`)

// scoreRankScript: ARGV[1] member -> {score, strictly better count} or nil.
var scoreRankScript = redis.NewScript(`
	local key = KEYS[1]
	local score = redis.call('ZSCORE', key, ARGV[1])
	if not score then
		return false
	end
	local better
	if ARGV[2] == 'asc' then
		better = redis.call('ZCOUNT', key, '-inf', '(' .. score)
	else
		better = redis.call('ZCOUNT', key, '(' .. score, '+inf')
	end
	return {score, better}
`)

// rangeScript: ARGV[1] start, ARGV[2] end -> flat {member, score, ...}.
var rangeScript = redis.NewScript(`
	if ARGV[3] == 'asc' then
		return redis.call('ZRANGE', KEYS[1], ARGV[1], ARGV[2], 'WITHSCORES')
	end
	return redis.call('ZREVRANGE', KEYS[1], ARGV[1], ARGV[2], 'WITHSCORES')
`)

var scripts = []*redis.Script{countBetterScript, positionScript, scoreRankScript, rangeScript}

// LoadScripts registers every read script on the server so later calls go
// through EVALSHA. Calls still fall back to EVAL if the script cache is flushed.
func LoadScripts(ctx context.Context, c redis.Scripter) error {
	for _, s := range scripts {
		if err := s.Load(ctx, c).Err(); err != nil {
			return fmt.Errorf("failed to load script: %w", err)
		}
	}
	return nil
}
