package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// AnalyticsSink receives vitals transitions for out-of-band recording. It is
// explicitly not a persistence layer for world or entity state (spec.md §1's
// Non-goals exclude that); it is an append-only event stream an operator may
// plug in, mirroring how the vitals stage only ever produces values, never
// depends on what consumes them.
type AnalyticsSink interface {
	RecordTransition(ctx context.Context, t VitalsTransition)
}

// deathEventDoc is the document shape written to Mongo, named independently
// of VitalsTransition's field names so the wire/storage shape can evolve
// without forcing a core type change.
type deathEventDoc struct {
	Tick      int64     `bson:"tick"`
	EntityIdx uint32    `bson:"entity_index"`
	EntityGen uint32    `bson:"entity_generation"`
	Died      bool      `bson:"died"`
	Recorded  time.Time `bson:"recorded_at"`
}

// MongoAnalyticsSink appends every vitals transition to a capped-or-plain
// collection, grounded on the pack's mongo-driver/v2 usage for append-mostly
// game-state documents (nicoberrocal-galaxyCore's diplomacy/map stores).
type MongoAnalyticsSink struct {
	collection *mongo.Collection
}

// NewMongoAnalyticsSink wraps an already-connected collection handle; this
// core never owns connection lifecycle or credentials.
func NewMongoAnalyticsSink(collection *mongo.Collection) *MongoAnalyticsSink {
	return &MongoAnalyticsSink{collection: collection}
}

// RecordTransition implements AnalyticsSink. Write errors are discarded:
// they are neither returned nor logged, and a failed write is not retried,
// so it never affects tick pacing.
func (m *MongoAnalyticsSink) RecordTransition(ctx context.Context, t VitalsTransition) {
	doc := deathEventDoc{
		Tick:      t.Tick,
		EntityIdx: t.Entity.Index(),
		EntityGen: t.Entity.Generation(),
		Died:      t.Died,
		Recorded:  time.Now(),
	}
	_, _ = m.collection.InsertOne(ctx, doc)
}

// RedisPlayerCountSink publishes the Global player count to a shared Redis
// key on every tick's stats event, so a cross-process metrics aggregator can
// sum counts from several simulation processes behind one proxy (spec.md
// §4.8's analytics sink, redis variant) — grounded on etalazz-vsa's
// persistence.RedisPersister for the "single authoritative counter in Redis"
// shape, simplified here to a plain SET since idempotency markers are not
// needed for a gauge overwrite.
type RedisPlayerCountSink struct {
	client   *redis.Client
	key      string
	ttl      time.Duration
	instance string
}

// NewRedisPlayerCountSink returns a sink publishing under
// "hyperion:player_count:<instanceID>", expiring after ttl so a crashed
// instance's stale count does not linger in the aggregate.
func NewRedisPlayerCountSink(client *redis.Client, instanceID string, ttl time.Duration) *RedisPlayerCountSink {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisPlayerCountSink{
		client:   client,
		key:      fmt.Sprintf("hyperion:player_count:%s", instanceID),
		ttl:      ttl,
		instance: instanceID,
	}
}

// Publish writes the current player count, to be called from the metrics
// adapter's stats callback, never from the tick pipeline itself.
func (r *RedisPlayerCountSink) Publish(ctx context.Context, count int64) error {
	return r.client.Set(ctx, r.key, count, r.ttl).Err()
}
