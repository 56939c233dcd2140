package redis

import "github.com/gomodule/redigo/redis"

// fetchScript pops up to ARGV[3] envelopes from the queues named in
// ARGV[5:], in order, and leases each one until ARGV[1]+ARGV[2] ms.
// KEYS: active hash, lease zset, attempts hash. Returns a flat list of
// envelope, attempt pairs.
var fetchScript = redis.NewScript(3, `
local deadline = tonumber(ARGV[1]) + tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local out = {}
local n = 0
for i = 5, #ARGV do
  local key = ARGV[4] .. 'queue:' .. ARGV[i]
  while n < limit do
    local raw = redis.call('LPOP', key)
    if not raw then break end
    local ok, env = pcall(cjson.decode, raw)
    if ok and type(env) == 'table' and env.id then
      redis.call('HSET', KEYS[1], env.id, raw)
      redis.call('ZADD', KEYS[2], deadline, env.id)
      local attempt = redis.call('HINCRBY', KEYS[3], env.id, 1)
      table.insert(out, raw)
      table.insert(out, attempt)
    else
      table.insert(out, raw)
      table.insert(out, 0)
    end
    n = n + 1
  end
  if n >= limit then break end
end
return out
`)

// reclaimScript returns jobs whose lease expired before ARGV[1] to the
// tail of their queue. KEYS: active hash, lease zset.
var reclaimScript = redis.NewScript(2, `
local ids = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, id in ipairs(ids) do
  local raw = redis.call('HGET', KEYS[1], id)
  redis.call('ZREM', KEYS[2], id)
  redis.call('HDEL', KEYS[1], id)
  if raw then
    local queue = 'default'
    local ok, env = pcall(cjson.decode, raw)
    if ok and type(env) == 'table' and type(env.queue) == 'string' and env.queue ~= '' then
      queue = env.queue
    end
    redis.call('RPUSH', ARGV[2] .. 'queue:' .. queue, raw)
  end
end
return #ids
`)

// ackScript settles ARGV[1] and, when ARGV[3] > 0, keeps ARGV[2] as its
// result for ARGV[3] seconds. KEYS: active, lease, attempts, result key.
var ackScript = redis.NewScript(4, `
if redis.call('HDEL', KEYS[1], ARGV[1]) == 0 then return 0 end
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[4], ARGV[2], 'EX', ARGV[3])
end
return 1
`)

// nackScript settles ARGV[1] and pushes {"job","error","failed_at"} onto
// the dead list, trimmed to ARGV[4] entries when positive.
// KEYS: active, lease, attempts, dead list.
var nackScript = redis.NewScript(4, `
local raw = redis.call('HGET', KEYS[1], ARGV[1])
if not raw then return 0 end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('LPUSH', KEYS[4], '{"job":' .. raw .. ',"error":' .. ARGV[2] .. ',"failed_at":"' .. ARGV[3] .. '"}')
if tonumber(ARGV[4]) > 0 then
  redis.call('LTRIM', KEYS[4], 0, tonumber(ARGV[4]) - 1)
end
return 1
`)
