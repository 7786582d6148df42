// Package mongostore is the MongoDB Repository: one collection per entity
// class, documents keyed by _id.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
	"github.com/JohnVinyard/annotate-api-sub000/internal/mapper"
	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
	"github.com/JohnVinyard/annotate-api-sub000/internal/querymongo"
	"github.com/JohnVinyard/annotate-api-sub000/internal/repository"
)

// Connect opens a client and verifies the server is reachable.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// Repository stores one entity class in a collection.
//
// Upserts are issued as one ordered bulk write per call. MongoDB has no
// cross-document transaction here, so a failure stops the batch and leaves
// earlier writes applied.
type Repository struct {
	coll    *mongo.Collection
	mapper  *mapper.Mapper
	indexes []repository.Index
}

var _ repository.Repository = (*Repository)(nil)

// New wraps coll. Indexes are declared by EnsureIndexes.
func New(coll *mongo.Collection, m *mapper.Mapper, indexes ...repository.Index) *Repository {
	return &Repository{coll: coll, mapper: m, indexes: indexes}
}

func (r *Repository) Mapper() *mapper.Mapper { return r.mapper }

// EnsureIndexes creates the repository's indexes. It is idempotent.
func (r *Repository) EnsureIndexes(ctx context.Context) ([]string, error) {
	if len(r.indexes) == 0 {
		return nil, nil
	}
	models := make([]mongo.IndexModel, len(r.indexes))
	for i, ix := range r.indexes {
		models[i] = mongo.IndexModel{
			Keys:    bson.D{{Key: ix.Name, Value: 1}},
			Options: options.Index().SetName(ix.Name).SetUnique(ix.Unique),
		}
	}
	names, err := r.coll.Indexes().CreateMany(ctx, models)
	if err != nil {
		return nil, fault.Backend("create indexes", err)
	}
	return names, nil
}

func (r *Repository) Upsert(ctx context.Context, updates ...repository.Update) error {
	if len(updates) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(updates))
	for _, u := range updates {
		filter, err := r.identityFilter(u)
		if err != nil {
			return err
		}
		set := bson.D{}
		for k, v := range u.Fields {
			if k == r.mapper.IdentityName() {
				continue
			}
			set = append(set, bson.E{Key: k, Value: v})
		}
		if len(set) == 0 {
			continue
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(filter).
			SetUpdate(bson.D{{Key: "$set", Value: set}}).
			SetUpsert(true))
	}
	if len(models) == 0 {
		return nil
	}

	_, err := r.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fault.Duplicate(r.mapper.Class().Name(), err)
		}
		return fault.Backend("bulk upsert", err)
	}
	return nil
}

func (r *Repository) identityFilter(u repository.Update) (bson.D, error) {
	if u.Identity != nil {
		return querymongo.Compile(u.Identity, r.mapper)
	}
	if u.Key == "" {
		return nil, fault.Argument("id", "upsert without an identity")
	}
	return bson.D{{Key: r.mapper.IdentityName(), Value: u.Key}}, nil
}

func (r *Repository) Filter(ctx context.Context, q query.Query, req repository.PageRequest) (repository.Page, error) {
	if err := req.Validate(); err != nil {
		return repository.Page{}, err
	}
	filter, err := querymongo.Compile(q, r.mapper)
	if err != nil {
		return repository.Page{}, err
	}
	sort, err := querymongo.Sort(req.Sort, r.mapper, r.mapper.IdentityName())
	if err != nil {
		return repository.Page{}, err
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return repository.Page{}, fault.Backend("count", err)
	}

	opts := options.Find().
		SetSort(sort).
		SetSkip(int64(req.Offset())).
		SetLimit(int64(req.Size))
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return repository.Page{}, fault.Backend("find", err)
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return repository.Page{}, fault.Backend("read cursor", err)
	}

	records := make([]mapper.Record, len(docs))
	for i, doc := range docs {
		records[i] = Normalize(doc)
	}
	return repository.NewPage(records, int(total), req), nil
}

func (r *Repository) Count(ctx context.Context, q query.Query) (int, error) {
	filter, err := querymongo.Compile(q, r.mapper)
	if err != nil {
		return 0, err
	}
	n, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fault.Backend("count", err)
	}
	return int(n), nil
}

// Len uses collection metadata rather than a scan.
func (r *Repository) Len(ctx context.Context) (int, error) {
	n, err := r.coll.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fault.Backend("estimated count", err)
	}
	return int(n), nil
}

func (r *Repository) DeleteAll(ctx context.Context) error {
	if _, err := r.coll.DeleteMany(ctx, bson.D{}); err != nil {
		return fault.Backend("delete all", err)
	}
	return nil
}

// Normalize converts decoded BSON into the plain Go values mappers expect:
// DateTime becomes time.Time, arrays become []any, ObjectIDs become hex
// strings and embedded documents become maps.
func Normalize(doc bson.M) mapper.Record {
	rec := make(mapper.Record, len(doc))
	for k, v := range doc {
		rec[k] = normalizeValue(v)
	}
	return rec
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case bson.DateTime:
		return t.Time().UTC()
	case bson.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeValue(item)
		}
		return out
	case bson.ObjectID:
		return t.Hex()
	case bson.M:
		return map[string]any(Normalize(t))
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case int32:
		return int64(t)
	}
	return v
}
