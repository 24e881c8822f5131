// Package mongostore reads reports and routes from MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/commutewatch/riskengine/internal/adapters/repository"
	"github.com/commutewatch/riskengine/internal/domain/model"
	"github.com/commutewatch/riskengine/pkg/logger"
)

// Collection names.
const (
	ReportsCollection = "reports"
	RoutesCollection  = "routes"
)

const (
	connectTimeout = 15 * time.Second
	indexTimeout   = 10 * time.Second
)

// Store implements ReportStore, RouteStore, ScoredMarker and ReportWriter.
type Store struct {
	client  *mongo.Client
	reports *mongo.Collection
	routes  *mongo.Collection
	log     logger.Logger
}

// Connect dials uri, pings it and ensures indexes on db.
func Connect(ctx context.Context, uri, db string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	start := time.Now()
	dctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	c, err := mongo.Connect(dctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := c.Ping(dctx, nil); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s := &Store{
		client:  c,
		reports: c.Database(db).Collection(ReportsCollection),
		routes:  c.Database(db).Collection(RoutesCollection),
		log:     log,
	}
	if err := s.createIndexes(ctx); err != nil {
		log.Warn(ctx, "mongo index creation warnings", logger.Error(err))
	}
	log.Info(ctx, "mongo connected",
		logger.String("uri", redactURI(uri)),
		logger.String("db", db),
		logger.Duration("took", time.Since(start).Round(time.Millisecond)))
	return s, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) createIndexes(ctx context.Context) error {
	ictx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	var errs []string
	models := map[string]bson.D{
		"created_at":          {{Key: "created_at", Value: -1}},
		"route_id,created_at": {{Key: "route_id", Value: 1}, {Key: "created_at", Value: -1}},
		"status":              {{Key: "status", Value: 1}},
	}
	for name, keys := range models {
		if _, err := s.reports.Indexes().CreateOne(ictx, mongo.IndexModel{Keys: keys}); err != nil {
			errs = append(errs, name+": "+err.Error())
		}
	}
	if _, err := s.routes.Indexes().CreateOne(ictx, mongo.IndexModel{Keys: bson.D{{Key: "sacco_id", Value: 1}}}); err != nil {
		errs = append(errs, "sacco_id: "+err.Error())
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// FindReports implements repository.ReportStore. Documents that fail to
// decode are logged and skipped.
func (s *Store) FindReports(ctx context.Context, q repository.ReportQuery) ([]model.Report, error) {
	var routeIDs []string
	if q.SaccoID != "" {
		ids, err := s.routeIDsForSacco(ctx, q.SaccoID)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}
		routeIDs = ids
	}

	cur, err := s.reports.Find(ctx, reportFilter(q, routeIDs),
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, repository.Transient("mongo: find reports", err)
	}
	defer cur.Close(ctx)

	var out []model.Report
	for cur.Next(ctx) {
		var doc reportDoc
		if err := cur.Decode(&doc); err != nil {
			s.log.Warn(ctx, "skipping undecodable report", logger.String("raw_id", rawID(cur.Current)), logger.Error(err))
			continue
		}
		out = append(out, doc.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, repository.Transient("mongo: iterate reports", err)
	}
	return out, nil
}

func (s *Store) routeIDsForSacco(ctx context.Context, saccoID string) ([]string, error) {
	cur, err := s.routes.Find(ctx, bson.M{"sacco_id": saccoID}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, repository.Transient("mongo: find sacco routes", err)
	}
	defer cur.Close(ctx)
	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ID bson.RawValue `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			continue
		}
		ids = append(ids, idString(doc.ID))
	}
	if err := cur.Err(); err != nil {
		return nil, repository.Transient("mongo: iterate sacco routes", err)
	}
	return ids, nil
}

// Route implements repository.RouteStore.
func (s *Store) Route(ctx context.Context, id string) (model.Route, error) {
	var doc routeDoc
	err := s.routes.FindOne(ctx, bson.M{"_id": bson.M{"$in": idCandidates(id)}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Route{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Route{}, repository.Transient("mongo: find route", err)
	}
	return doc.toModel(), nil
}

// Routes implements repository.RouteStore.
func (s *Store) Routes(ctx context.Context) ([]model.Route, error) {
	cur, err := s.routes.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, repository.Transient("mongo: find routes", err)
	}
	defer cur.Close(ctx)
	var out []model.Route
	for cur.Next(ctx) {
		var doc routeDoc
		if err := cur.Decode(&doc); err != nil {
			s.log.Warn(ctx, "skipping undecodable route", logger.String("raw_id", rawID(cur.Current)), logger.Error(err))
			continue
		}
		out = append(out, doc.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, repository.Transient("mongo: iterate routes", err)
	}
	return out, nil
}

// MarkScored implements repository.ScoredMarker.
func (s *Store) MarkScored(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	var in []interface{}
	for _, id := range ids {
		in = append(in, idCandidates(id)...)
	}
	_, err := s.reports.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": in}},
		bson.M{"$set": bson.M{"last_scored_at": at}})
	if err != nil {
		return repository.Transient("mongo: mark scored", err)
	}
	return nil
}

// InsertReports implements repository.ReportWriter.
func (s *Store) InsertReports(ctx context.Context, reports []model.Report) error {
	if len(reports) == 0 {
		return nil
	}
	docs := make([]interface{}, len(reports))
	for i := range reports {
		docs[i] = fromReport(&reports[i])
	}
	if _, err := s.reports.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false)); err != nil {
		return repository.Transient("mongo: insert reports", err)
	}
	return nil
}

// UpsertRoutes implements repository.ReportWriter.
func (s *Store) UpsertRoutes(ctx context.Context, routes []model.Route) error {
	for _, r := range routes {
		doc := fromRoute(r)
		_, err := s.routes.ReplaceOne(ctx, bson.M{"_id": r.ID}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			return repository.Transient("mongo: upsert route", err)
		}
	}
	return nil
}

// reportFilter translates a query into a Mongo filter.
func reportFilter(q repository.ReportQuery, routeIDs []string) bson.M {
	filter := bson.M{}
	switch {
	case q.RouteID != "" && routeIDs != nil:
		allowed := false
		for _, id := range routeIDs {
			if id == q.RouteID {
				allowed = true
			}
		}
		if !allowed {
			filter["route_id"] = bson.M{"$in": []string{}}
		} else {
			filter["route_id"] = q.RouteID
		}
	case q.RouteID != "":
		filter["route_id"] = q.RouteID
	case routeIDs != nil:
		filter["route_id"] = bson.M{"$in": routeIDs}
	}
	if q.Status != "" {
		filter["status"] = string(q.Status)
	}
	rng := bson.M{}
	if !q.From.IsZero() {
		rng["$gte"] = q.From
	}
	if !q.To.IsZero() {
		rng["$lte"] = q.To
	}
	if len(rng) > 0 {
		filter["created_at"] = rng
	}
	return filter
}

// idCandidates matches both string ids and ObjectIDs written by other services.
func idCandidates(id string) []interface{} {
	out := []interface{}{id}
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		out = append(out, oid)
	}
	return out
}

func idString(v bson.RawValue) string {
	switch v.Type {
	case bson.TypeObjectID:
		return v.ObjectID().Hex()
	case bson.TypeString:
		return v.StringValue()
	default:
		return v.String()
	}
}

func rawID(doc bson.Raw) string {
	v, err := doc.LookupErr("_id")
	if err != nil {
		return ""
	}
	return idString(v)
}

func redactURI(raw string) string {
	if raw == "" || !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.UserPassword("****", "****")
	return u.String()
}
