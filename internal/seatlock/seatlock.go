package seatlock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Domenick1991/bookingsaga/internal/domain"
)

// Manager holds exclusive, TTL-bounded seat locks in Redis. Every mutating
// operation runs as a single Lua script so that concurrent callers racing on
// overlapping seats never interleave between check and set.
type Manager struct {
	client *redis.Client
	ttl    time.Duration
}

// LockResult is the outcome of a LockSeats call. On conflict FailedSeats
// lists every seat held by another booking and nothing is locked.
type LockResult struct {
	Success     bool
	LockedSeats []string
	FailedSeats []string
	LockKey     string
	ExpiresAt   time.Time
}

// lockScript checks every requested seat and writes all locks only if every
// seat is free. KEYS[1] is the per-booking key, KEYS[2..] the per-seat keys.
// ARGV: ttl seconds, booking id, user id, locked-at timestamp, then one seat
// number per seat key. A pre-existing booking key means an idempotent retry
// of the same saga step: the previously recorded seat list is returned and
// nothing is written.
var lockScript = redis.NewScript(`
local bookingKey = KEYS[1]
local ttl = tonumber(ARGV[1])
local bookingID = ARGV[2]
local userID = ARGV[3]
local lockedAt = ARGV[4]

if redis.call('EXISTS', bookingKey) == 1 then
	return {'held', redis.call('HGET', bookingKey, 'seats')}
end

local failed = {}
for i = 2, #KEYS do
	local owner = redis.call('HGET', KEYS[i], 'booking_id')
	if owner and owner ~= bookingID then
		failed[#failed + 1] = ARGV[3 + i]
	end
end
if #failed > 0 then
	return {'conflict', table.concat(failed, ',')}
end

for i = 2, #KEYS do
	redis.call('HSET', KEYS[i], 'booking_id', bookingID, 'user_id', userID, 'locked_at', lockedAt)
	redis.call('EXPIRE', KEYS[i], ttl)
end
local seats = table.concat({unpack(ARGV, 5)}, ',')
redis.call('HSET', bookingKey, 'user_id', userID, 'locked_at', lockedAt, 'seats', seats)
redis.call('EXPIRE', bookingKey, ttl)
return {'locked', seats}
`)

// releaseScript deletes every per-seat key listed in the booking key plus
// the booking key itself. A missing booking key (expired or already
// released) is a no-op.
var releaseScript = redis.NewScript(`
local bookingKey = KEYS[1]
local prefix = ARGV[1]
local seats = redis.call('HGET', bookingKey, 'seats')
if not seats then
	return 0
end
for seat in string.gmatch(seats, '([^,]+)') do
	redis.call('DEL', prefix .. seat)
end
redis.call('DEL', bookingKey)
return 1
`)

// extendScript extends the TTL of the booking key and every seat key it
// lists. Returns 0 if the booking key has already expired; an expired lock
// is not recoverable.
var extendScript = redis.NewScript(`
local bookingKey = KEYS[1]
local prefix = ARGV[1]
local extra = tonumber(ARGV[2])
local ttl = redis.call('TTL', bookingKey)
if ttl <= 0 then
	return 0
end
local newTTL = ttl + extra
local seats = redis.call('HGET', bookingKey, 'seats')
for seat in string.gmatch(seats, '([^,]+)') do
	redis.call('EXPIRE', prefix .. seat, newTTL)
end
redis.call('EXPIRE', bookingKey, newTTL)
return newTTL
`)

func NewManager(client *redis.Client, ttl time.Duration) *Manager {
	return &Manager{client: client, ttl: ttl}
}

// LockSeats atomically locks all requested seats for the booking, or none of
// them. Retrying with the same booking id returns the previously locked set
// without new writes.
func (m *Manager) LockSeats(ctx context.Context, flightID int64, seats []string, bookingID, userID string) (*LockResult, error) {
	if len(seats) == 0 {
		return nil, domain.BusinessError(fmt.Errorf("no seats requested"))
	}

	keys := make([]string, 0, len(seats)+1)
	keys = append(keys, bookingKey(flightID, bookingID))
	for _, seat := range seats {
		keys = append(keys, seatKey(flightID, seat))
	}

	argv := make([]interface{}, 0, len(seats)+4)
	argv = append(argv, int(m.ttl.Seconds()), bookingID, userID, time.Now().UTC().Format(time.RFC3339))
	for _, seat := range seats {
		argv = append(argv, seat)
	}

	raw, err := lockScript.Run(ctx, m.client, keys, argv...).Result()
	if err != nil {
		return nil, domain.TransientError(fmt.Errorf("seat lock store: %w", err))
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 2 {
		return nil, domain.TransientError(fmt.Errorf("seat lock store: unexpected reply %v", raw))
	}
	status, _ := reply[0].(string)
	payload, _ := reply[1].(string)

	switch status {
	case "locked", "held":
		return &LockResult{
			Success:     true,
			LockedSeats: strings.Split(payload, ","),
			LockKey:     keys[0],
			ExpiresAt:   time.Now().Add(m.ttl),
		}, nil
	case "conflict":
		return &LockResult{
			Success:     false,
			FailedSeats: strings.Split(payload, ","),
		}, nil
	default:
		return nil, domain.TransientError(fmt.Errorf("seat lock store: unknown status %q", status))
	}
}

// ReleaseSeats drops every lock held by the booking. Releasing an expired or
// already released lock is a no-op.
func (m *Manager) ReleaseSeats(ctx context.Context, flightID int64, bookingID string) error {
	keys := []string{bookingKey(flightID, bookingID)}
	if err := releaseScript.Run(ctx, m.client, keys, seatKeyPrefix(flightID)).Err(); err != nil {
		return domain.TransientError(fmt.Errorf("seat lock store: %w", err))
	}
	return nil
}

// ExtendLock adds extra time to every key of the booking's lock. Returns
// false if the lock already expired.
func (m *Manager) ExtendLock(ctx context.Context, flightID int64, bookingID string, extra time.Duration) (bool, error) {
	keys := []string{bookingKey(flightID, bookingID)}
	newTTL, err := extendScript.Run(ctx, m.client, keys, seatKeyPrefix(flightID), int(extra.Seconds())).Int64()
	if err != nil {
		return false, domain.TransientError(fmt.Errorf("seat lock store: %w", err))
	}
	return newTTL > 0, nil
}

// AreSeatsLocked reports for each seat whether an unexpired lock exists.
// Read-only.
func (m *Manager) AreSeatsLocked(ctx context.Context, flightID int64, seats []string) (map[string]bool, error) {
	pipe := m.client.Pipeline()
	cmds := make(map[string]*redis.IntCmd, len(seats))
	for _, seat := range seats {
		cmds[seat] = pipe.Exists(ctx, seatKey(flightID, seat))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, domain.TransientError(fmt.Errorf("seat lock store: %w", err))
	}

	locked := make(map[string]bool, len(seats))
	for seat, cmd := range cmds {
		locked[seat] = cmd.Val() == 1
	}
	return locked, nil
}

func seatKey(flightID int64, seat string) string {
	return seatKeyPrefix(flightID) + seat
}

func seatKeyPrefix(flightID int64) string {
	return fmt.Sprintf("seatlock:%d:seat:", flightID)
}

func bookingKey(flightID int64, bookingID string) string {
	return fmt.Sprintf("seatlock:%d:booking:%s", flightID, bookingID)
}
