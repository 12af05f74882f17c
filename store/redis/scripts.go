package redis

import goredis "github.com/redis/go-redis/v9"

// enqueueScript stores a job hash and indexes it unless the ID exists.
//
// KEYS: job hash, job_ids, ready, delayed
// ARGV: id, created_ms, visible_ms, now_ms, field/value pairs...
var enqueueScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 5))
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
if tonumber(ARGV[3]) <= tonumber(ARGV[4]) then
	redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
else
	redis.call('ZADD', KEYS[4], ARGV[3], ARGV[1])
end
return 1
`)

// claimScript promotes due delayed jobs, then leases the oldest ready jobs
// across the requested queues.
//
// KEYS: leases, then ready and delayed keys for each queue in pairs
// ARGV: now_ms, lease_ms, worker, limit, lease_at, now_at, job key prefix
var claimScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[4])
local candidates = {}

for i = 2, #KEYS, 2 do
	local ready, delayed = KEYS[i], KEYS[i + 1]
	local due = redis.call('ZRANGEBYSCORE', delayed, '-inf', now)
	for _, id in ipairs(due) do
		local created = redis.call('HGET', ARGV[7] .. id, 'created_ms')
		redis.call('ZREM', delayed, id)
		redis.call('ZADD', ready, created, id)
	end
	local head = redis.call('ZRANGE', ready, 0, limit - 1, 'WITHSCORES')
	for j = 1, #head, 2 do
		table.insert(candidates, { id = head[j], score = tonumber(head[j + 1]), ready = ready })
	end
end

table.sort(candidates, function(a, b)
	if a.score == b.score then
		return a.id < b.id
	end
	return a.score < b.score
end)

local claimed = {}
for i = 1, math.min(limit, #candidates) do
	local c = candidates[i]
	redis.call('ZREM', c.ready, c.id)
	redis.call('ZADD', KEYS[1], ARGV[2], c.id)
	redis.call('HSET', ARGV[7] .. c.id,
		'state', 'claimed',
		'worker_id', ARGV[3],
		'lease_expires_at', ARGV[5],
		'lease_ms', ARGV[2],
		'updated_at', ARGV[6])
	table.insert(claimed, c.id)
end
return claimed
`)

// resolveScript applies a claim outcome if the worker still holds the lease.
// Returns 1 on success, 0 for a lost lease and -1 for a missing job.
//
// KEYS: job hash, leases, ready, delayed
// ARGV: id, worker, state, attempts, next_visible_at, visible_ms,
//
//	last_error, completed_at, updated_at, now_ms
var resolveScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local fields = redis.call('HMGET', KEYS[1], 'state', 'worker_id', 'created_ms')
if fields[1] ~= 'claimed' or fields[2] ~= ARGV[2] then
	return 0
end

redis.call('HSET', KEYS[1],
	'state', ARGV[3],
	'attempts', ARGV[4],
	'next_visible_at', ARGV[5],
	'last_error', ARGV[7],
	'updated_at', ARGV[9])
if ARGV[8] ~= '' then
	redis.call('HSET', KEYS[1], 'completed_at', ARGV[8])
end

if ARGV[3] ~= 'claimed' then
	redis.call('HSET', KEYS[1], 'worker_id', '', 'lease_expires_at', '', 'lease_ms', '')
	redis.call('ZREM', KEYS[2], ARGV[1])
end
if ARGV[3] == 'pending' then
	if tonumber(ARGV[6]) <= tonumber(ARGV[10]) then
		redis.call('ZADD', KEYS[3], fields[3], ARGV[1])
	else
		redis.call('ZADD', KEYS[4], ARGV[6], ARGV[1])
	end
end
return 1
`)

// renewScript extends a lease held by the given worker. Return codes match
// resolveScript.
//
// KEYS: job hash, leases
// ARGV: id, worker, lease_expires_at, lease_ms, updated_at
var renewScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local fields = redis.call('HMGET', KEYS[1], 'state', 'worker_id')
if fields[1] ~= 'claimed' or fields[2] ~= ARGV[2] then
	return 0
end
redis.call('HSET', KEYS[1], 'lease_expires_at', ARGV[3], 'lease_ms', ARGV[4], 'updated_at', ARGV[5])
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[1])
return 1
`)

// recoverScript returns every claim whose lease expired before now to the
// ready set of its queue.
//
// KEYS: leases
// ARGV: now_ms, now_at, job key prefix, ready key prefix
var recoverScript = goredis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
local recovered = {}
for _, id in ipairs(expired) do
	local key = ARGV[3] .. id
	local fields = redis.call('HMGET', key, 'state', 'queue', 'created_ms')
	redis.call('ZREM', KEYS[1], id)
	if fields[1] == 'claimed' then
		redis.call('HSET', key,
			'state', 'pending',
			'worker_id', '',
			'lease_expires_at', '',
			'lease_ms', '',
			'next_visible_at', ARGV[2],
			'updated_at', ARGV[2])
		redis.call('ZADD', ARGV[4] .. fields[2], fields[3], id)
		table.insert(recovered, id)
	end
end
return recovered
`)

// replayScript marks a DLQ entry replayed once. Returns 1 on success, 0 if
// already replayed and -1 if missing.
//
// KEYS: dlq hash
// ARGV: replayed_at, replay_job_id
var replayScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local replayed = redis.call('HGET', KEYS[1], 'replayed_at')
if replayed and replayed ~= '' then
	return 0
end
redis.call('HSET', KEYS[1], 'replayed_at', ARGV[1], 'replay_job_id', ARGV[2])
return 1
`)

var allScripts = []*goredis.Script{
	enqueueScript, claimScript, resolveScript, renewScript, recoverScript, replayScript,
}
