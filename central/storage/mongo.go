// Package storage archives committed ledger records to MongoDB. The
// in-process ledger stays the source of truth; the archive is a durable
// copy for dashboard history beyond the process lifetime, so every failure
// here is logged and swallowed rather than propagated into the write path.
package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"k8s.io/klog/v2"

	"fleetledger/central/config"
	"fleetledger/ledger"
)

const (
	databaseName      = "fleetledger"
	metricsCollection = "metrics"
	eventsCollection  = "scaling_events"
)

// Archive subscribes to the ledger and mirrors each committed record into
// Mongo with a TTL on createdAt.
type Archive struct {
	led    *ledger.Ledger
	client *mongo.Client
	db     *mongo.Database
}

func Open(ctx context.Context, cfg *config.Config, led *ledger.Ledger) (*Archive, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(databaseName)
	ttlSeconds := int32(cfg.Mongo.TTLDays * 24 * 3600)
	for _, coll := range []string{metricsCollection, eventsCollection} {
		indexModel := mongo.IndexModel{
			Keys: bson.D{{Key: "createdAt", Value: 1}},
			Options: options.Index().
				SetName("ttl_createdAt").
				SetExpireAfterSeconds(ttlSeconds),
		}
		if _, err := db.Collection(coll).Indexes().CreateOne(ctx, indexModel); err != nil {
			klog.Warningf("Create TTL index on %s failed: %v", coll, err)
		}
	}

	klog.Infof("Mongo archive initialized (ttl %d days)", cfg.Mongo.TTLDays)
	return &Archive{led: led, client: client, db: db}, nil
}

func (a *Archive) Close(ctx context.Context) {
	if err := a.client.Disconnect(ctx); err != nil {
		klog.Warningf("Mongo disconnect failed: %v", err)
	}
}

type storedMetrics struct {
	ledger.MetricsRecord `bson:",inline"`
	CreatedAt            time.Time `bson:"createdAt"`
}

type storedEvent struct {
	ledger.ScalingEventRecord `bson:",inline"`
	CreatedAt                 time.Time `bson:"createdAt"`
}

// OnMetricsLogged archives the record behind the notification. The
// latest-state entry for the node is that record immediately after commit;
// if a newer report raced in, archiving the newer one is just as correct.
func (a *Archive) OnMetricsLogged(ev ledger.MetricsLogged) {
	rec := a.led.Latest(ev.NodeID)
	if rec.NodeID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	doc := storedMetrics{MetricsRecord: rec, CreatedAt: time.Now()}
	if _, err := a.db.Collection(metricsCollection).InsertOne(ctx, doc); err != nil {
		klog.Errorf("Archive metrics record for %s failed: %v", ev.NodeID, err)
	}
}

// OnScalingActionPerformed locates the committed event by scanning the
// event ledger from the tail; the match is the newest event carrying the
// notification's node, action and timestamp.
func (a *Archive) OnScalingActionPerformed(ev ledger.ScalingActionPerformed) {
	var rec ledger.ScalingEventRecord
	found := false
	for i := a.led.ScalingEventsCount() - 1; i >= 0; i-- {
		candidate, err := a.led.ScalingEventAt(i)
		if err != nil {
			break
		}
		if candidate.NodeID == ev.NodeID && candidate.Action == ev.Action && candidate.Timestamp == ev.Timestamp {
			rec = candidate
			found = true
			break
		}
	}
	if !found {
		klog.Warningf("Scaling event for %s not found behind notification, skipping archive", ev.NodeID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	doc := storedEvent{ScalingEventRecord: rec, CreatedAt: time.Now()}
	if _, err := a.db.Collection(eventsCollection).InsertOne(ctx, doc); err != nil {
		klog.Errorf("Archive scaling event for %s failed: %v", ev.NodeID, err)
	}
}
