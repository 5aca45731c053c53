package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/formbase/formbase/internal/apperr"
	"github.com/formbase/formbase/internal/identifier"
	"github.com/formbase/formbase/internal/query"
	"github.com/formbase/formbase/internal/registry"
	"github.com/formbase/formbase/internal/schema"
)

const (
	schemaCollection = "datasources"
	appCollection    = "apps"
	pageCollection   = "pages"
)

// Mongo bundles the MongoDB-backed store implementations.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect establishes a MongoDB connection and verifies it with a ping.
func Connect(ctx context.Context, connectionString, database string) (*Mongo, error) {
	opts := options.Client().ApplyURI(connectionString)
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	return &Mongo{client: client, db: client.Database(database)}, nil
}

// Close disconnects from MongoDB.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Setup creates the metadata-collection indexes. The unique index on
// each public id is what turns an id collision into a retryable insert
// failure.
func (m *Mongo) Setup(ctx context.Context) error {
	type plan struct {
		collection string
		models     []mongo.IndexModel
	}
	plans := []plan{
		{schemaCollection, []mongo.IndexModel{
			{Keys: bson.D{{Key: "datasourceid", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "appid", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "category", Value: 1}}},
			{Keys: bson.D{{Key: "title", Value: 1}}},
		}},
		{appCollection, []mongo.IndexModel{
			{Keys: bson.D{{Key: "appid", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "appName", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		}},
		{pageCollection, []mongo.IndexModel{
			{Keys: bson.D{{Key: "pageid", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "appid", Value: 1}}},
		}},
	}

	for _, p := range plans {
		if _, err := m.db.Collection(p.collection).Indexes().CreateMany(ctx, p.models); err != nil {
			return fmt.Errorf("creating indexes on %s: %w", p.collection, err)
		}
	}
	return nil
}

// Schemas returns the schema store.
func (m *Mongo) Schemas() SchemaStore {
	return &mongoSchemaStore{col: m.db.Collection(schemaCollection)}
}

// Apps returns the app store.
func (m *Mongo) Apps() AppStore {
	return &mongoAppStore{col: m.db.Collection(appCollection)}
}

// Pages returns the page store.
func (m *Mongo) Pages() PageStore {
	return &mongoPageStore{col: m.db.Collection(pageCollection)}
}

// Records returns the dynamic-record store.
func (m *Mongo) Records() RecordStore {
	return &mongoRecordStore{db: m.db}
}

// Indexer returns the dynamic-collection indexer.
func (m *Mongo) Indexer() registry.Indexer {
	return &mongoIndexer{db: m.db}
}

// filterToBSON translates a neutral filter into a MongoDB filter
// document. Substring matches quote the user value, so filter input is
// never interpreted as a regular expression.
func filterToBSON(f query.Filter) bson.M {
	var and []bson.M
	for _, c := range f.All {
		and = append(and, conditionToBSON(c))
	}
	if len(f.Any) > 0 {
		or := make([]any, 0, len(f.Any))
		for _, c := range f.Any {
			or = append(or, conditionToBSON(c))
		}
		and = append(and, bson.M{"$or": or})
	}

	switch len(and) {
	case 0:
		return bson.M{}
	case 1:
		return and[0]
	default:
		all := make([]any, len(and))
		for i, m := range and {
			all[i] = m
		}
		return bson.M{"$and": all}
	}
}

func conditionToBSON(c query.Condition) bson.M {
	switch c.Op {
	case query.OpContains:
		return bson.M{c.Field: bson.M{
			"$regex":   regexp.QuoteMeta(fmt.Sprintf("%v", c.Value)),
			"$options": "i",
		}}
	case query.OpGte:
		return bson.M{c.Field: bson.M{"$gte": c.Value}}
	case query.OpIn:
		return bson.M{c.Field: bson.M{"$in": c.Value}}
	default:
		return bson.M{c.Field: c.Value}
	}
}

func sortToBSON(s query.Sort) bson.D {
	order := 1
	if s.Desc {
		order = -1
	}
	return bson.D{{Key: s.Field, Value: order}}
}

// mongoSchemaStore persists data-source definitions.
type mongoSchemaStore struct {
	col *mongo.Collection

	// newID is swappable for collision tests.
	newID func() string
}

func (s *mongoSchemaStore) generateID() string {
	if s.newID != nil {
		return s.newID()
	}
	return identifier.New(identifier.PrefixDataSource)
}

func (s *mongoSchemaStore) Create(ctx context.Context, ds *schema.DataSource) error {
	now := time.Now()
	ds.CreatedAt = now
	ds.UpdatedAt = now

	for attempt := 0; attempt < identifier.MaxAttempts; attempt++ {
		ds.ID = s.generateID()
		_, err := s.col.InsertOne(ctx, ds)
		if err == nil {
			return nil
		}
		if mongo.IsDuplicateKeyError(err) {
			continue
		}
		return apperr.Storage("inserting data source", err)
	}
	return apperr.ErrDuplicateIdentifier
}

func (s *mongoSchemaStore) Get(ctx context.Context, id string) (*schema.DataSource, error) {
	var ds schema.DataSource
	err := s.col.FindOne(ctx, bson.M{"datasourceid": id}).Decode(&ds)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("data source " + id)
	}
	if err != nil {
		return nil, apperr.Storage("loading data source", err)
	}
	return &ds, nil
}

func (s *mongoSchemaStore) GetFields(ctx context.Context, id string) (*schema.DataSource, error) {
	opts := options.FindOne().SetProjection(bson.M{
		"datasourceid": 1,
		"title":        1,
		"fields":       1,
		"_id":          0,
	})
	var ds schema.DataSource
	err := s.col.FindOne(ctx, bson.M{"datasourceid": id}, opts).Decode(&ds)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("data source " + id)
	}
	if err != nil {
		return nil, apperr.Storage("loading data source fields", err)
	}
	return &ds, nil
}

func (s *mongoSchemaStore) ListByApp(ctx context.Context, appID, status, category string) ([]*schema.DataSource, error) {
	filter := bson.M{"appid": appID}
	if status != "" {
		filter["status"] = status
	}
	if category != "" {
		filter["category"] = category
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Storage("listing data sources", err)
	}
	defer cursor.Close(ctx)

	var out []*schema.DataSource
	if err := cursor.All(ctx, &out); err != nil {
		return nil, apperr.Storage("decoding data sources", err)
	}
	return out, nil
}

func (s *mongoSchemaStore) Update(ctx context.Context, id string, patch SchemaPatch) (*schema.DataSource, error) {
	set := bson.M{"updatedAt": time.Now()}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Fields != nil {
		fields := *patch.Fields
		schema.NormalizeFields(fields)
		set["fields"] = fields
	}
	if patch.Version != nil {
		set["version"] = *patch.Version
	}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.Category != nil {
		set["category"] = *patch.Category
	}
	if patch.Tags != nil {
		set["tags"] = *patch.Tags
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var ds schema.DataSource
	err := s.col.FindOneAndUpdate(ctx, bson.M{"datasourceid": id}, bson.M{"$set": set}, opts).Decode(&ds)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("data source " + id)
	}
	if err != nil {
		return nil, apperr.Storage("updating data source", err)
	}
	return &ds, nil
}

func (s *mongoSchemaStore) Delete(ctx context.Context, id string) (*schema.DataSource, error) {
	var ds schema.DataSource
	err := s.col.FindOneAndDelete(ctx, bson.M{"datasourceid": id}).Decode(&ds)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("data source " + id)
	}
	if err != nil {
		return nil, apperr.Storage("deleting data source", err)
	}
	return &ds, nil
}

// mongoAppStore persists apps.
type mongoAppStore struct {
	col   *mongo.Collection
	newID func() string
}

func (s *mongoAppStore) generateID() string {
	if s.newID != nil {
		return s.newID()
	}
	return identifier.New(identifier.PrefixApp)
}

func (s *mongoAppStore) Create(ctx context.Context, app *App) error {
	now := time.Now()
	app.CreatedAt = now
	app.UpdatedAt = now
	if app.Pages == nil {
		app.Pages = []string{}
	}
	if app.DataSources == nil {
		app.DataSources = []string{}
	}

	for attempt := 0; attempt < identifier.MaxAttempts; attempt++ {
		app.ID = s.generateID()
		_, err := s.col.InsertOne(ctx, app)
		if err == nil {
			return nil
		}
		if mongo.IsDuplicateKeyError(err) {
			continue
		}
		return apperr.Storage("inserting app", err)
	}
	return apperr.ErrDuplicateIdentifier
}

func (s *mongoAppStore) Get(ctx context.Context, id string) (*App, error) {
	var app App
	err := s.col.FindOne(ctx, bson.M{"appid": id}).Decode(&app)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("app " + id)
	}
	if err != nil {
		return nil, apperr.Storage("loading app", err)
	}
	return &app, nil
}

func (s *mongoAppStore) List(ctx context.Context, status string) ([]*App, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Storage("listing apps", err)
	}
	defer cursor.Close(ctx)

	var out []*App
	if err := cursor.All(ctx, &out); err != nil {
		return nil, apperr.Storage("decoding apps", err)
	}
	return out, nil
}

func (s *mongoAppStore) Update(ctx context.Context, id string, patch AppPatch) (*App, error) {
	set := bson.M{"updatedAt": time.Now()}
	if patch.Name != nil {
		set["appName"] = *patch.Name
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Version != nil {
		set["version"] = *patch.Version
	}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.Tags != nil {
		set["tags"] = *patch.Tags
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var app App
	err := s.col.FindOneAndUpdate(ctx, bson.M{"appid": id}, bson.M{"$set": set}, opts).Decode(&app)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("app " + id)
	}
	if err != nil {
		return nil, apperr.Storage("updating app", err)
	}
	return &app, nil
}

func (s *mongoAppStore) Delete(ctx context.Context, id string) (*App, error) {
	var app App
	err := s.col.FindOneAndDelete(ctx, bson.M{"appid": id}).Decode(&app)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("app " + id)
	}
	if err != nil {
		return nil, apperr.Storage("deleting app", err)
	}
	return &app, nil
}

func (s *mongoAppStore) listOp(ctx context.Context, appID, op, key, value string) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"appid": appID},
		bson.M{op: bson.M{key: value}, "$set": bson.M{"updatedAt": time.Now()}},
	)
	if err != nil {
		return apperr.Storage("updating app "+key, err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("app " + appID)
	}
	return nil
}

func (s *mongoAppStore) AddDataSource(ctx context.Context, appID, dataSourceID string) error {
	return s.listOp(ctx, appID, "$addToSet", "dataSources", dataSourceID)
}

func (s *mongoAppStore) RemoveDataSource(ctx context.Context, appID, dataSourceID string) error {
	return s.listOp(ctx, appID, "$pull", "dataSources", dataSourceID)
}

func (s *mongoAppStore) AddPage(ctx context.Context, appID, pageID string) error {
	return s.listOp(ctx, appID, "$addToSet", "pages", pageID)
}

func (s *mongoAppStore) RemovePage(ctx context.Context, appID, pageID string) error {
	return s.listOp(ctx, appID, "$pull", "pages", pageID)
}

// mongoPageStore persists pages.
type mongoPageStore struct {
	col   *mongo.Collection
	newID func() string
}

func (s *mongoPageStore) generateID() string {
	if s.newID != nil {
		return s.newID()
	}
	return identifier.New(identifier.PrefixPage)
}

func (s *mongoPageStore) Create(ctx context.Context, page *Page) error {
	now := time.Now()
	page.CreatedAt = now
	page.UpdatedAt = now
	if page.Components == nil {
		page.Components = []Component{}
	}

	for attempt := 0; attempt < identifier.MaxAttempts; attempt++ {
		page.ID = s.generateID()
		_, err := s.col.InsertOne(ctx, page)
		if err == nil {
			return nil
		}
		if mongo.IsDuplicateKeyError(err) {
			continue
		}
		return apperr.Storage("inserting page", err)
	}
	return apperr.ErrDuplicateIdentifier
}

func (s *mongoPageStore) Get(ctx context.Context, id string) (*Page, error) {
	var page Page
	err := s.col.FindOne(ctx, bson.M{"pageid": id}).Decode(&page)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("page " + id)
	}
	if err != nil {
		return nil, apperr.Storage("loading page", err)
	}
	return &page, nil
}

func (s *mongoPageStore) ListByApp(ctx context.Context, appID string) ([]*Page, error) {
	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}})
	cursor, err := s.col.Find(ctx, bson.M{"appid": appID}, opts)
	if err != nil {
		return nil, apperr.Storage("listing pages", err)
	}
	defer cursor.Close(ctx)

	var out []*Page
	if err := cursor.All(ctx, &out); err != nil {
		return nil, apperr.Storage("decoding pages", err)
	}
	return out, nil
}

func (s *mongoPageStore) Update(ctx context.Context, id string, patch PagePatch) (*Page, error) {
	set := bson.M{"updatedAt": time.Now()}
	if patch.Name != nil {
		set["pageName"] = *patch.Name
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Components != nil {
		set["components"] = *patch.Components
	}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.Order != nil {
		set["order"] = *patch.Order
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var page Page
	err := s.col.FindOneAndUpdate(ctx, bson.M{"pageid": id}, bson.M{"$set": set}, opts).Decode(&page)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("page " + id)
	}
	if err != nil {
		return nil, apperr.Storage("updating page", err)
	}
	return &page, nil
}

func (s *mongoPageStore) Delete(ctx context.Context, id string) (*Page, error) {
	var page Page
	err := s.col.FindOneAndDelete(ctx, bson.M{"pageid": id}).Decode(&page)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("page " + id)
	}
	if err != nil {
		return nil, apperr.Storage("deleting page", err)
	}
	return &page, nil
}

// mongoRecordStore executes dynamic-collection operations.
type mongoRecordStore struct {
	db *mongo.Database
}

func (s *mongoRecordStore) collection(h *registry.Handle) *mongo.Collection {
	return s.db.Collection(h.CollectionName)
}

// normalizeID rewrites the storage ObjectID as its hex string.
func normalizeID(rec Record) Record {
	if oid, ok := rec["_id"].(bson.ObjectID); ok {
		rec["_id"] = oid.Hex()
	}
	return rec
}

func (s *mongoRecordStore) Insert(ctx context.Context, h *registry.Handle, rec Record) (Record, error) {
	res, err := s.collection(h).InsertOne(ctx, rec)
	if err != nil {
		return nil, apperr.Storage("inserting record into "+h.CollectionName, err)
	}
	if oid, ok := res.InsertedID.(bson.ObjectID); ok {
		rec["_id"] = oid.Hex()
	}
	return rec, nil
}

func (s *mongoRecordStore) Find(ctx context.Context, h *registry.Handle, f query.Filter, sort query.Sort, skip, limit int) ([]Record, error) {
	opts := options.Find().SetSort(sortToBSON(sort))
	if skip > 0 {
		opts.SetSkip(int64(skip))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.collection(h).Find(ctx, filterToBSON(f), opts)
	if err != nil {
		return nil, apperr.Storage("querying "+h.CollectionName, err)
	}
	defer cursor.Close(ctx)

	var out []Record
	if err := cursor.All(ctx, &out); err != nil {
		return nil, apperr.Storage("decoding records", err)
	}
	for i := range out {
		normalizeID(out[i])
	}
	return out, nil
}

func (s *mongoRecordStore) Count(ctx context.Context, h *registry.Handle, f query.Filter) (int64, error) {
	n, err := s.collection(h).CountDocuments(ctx, filterToBSON(f))
	if err != nil {
		return 0, apperr.Storage("counting records in "+h.CollectionName, err)
	}
	return n, nil
}

func (s *mongoRecordStore) FindByID(ctx context.Context, h *registry.Handle, id string) (Record, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.NotFound("record " + id)
	}

	var rec Record
	err = s.collection(h).FindOne(ctx, bson.M{"_id": oid}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("record " + id)
	}
	if err != nil {
		return nil, apperr.Storage("loading record", err)
	}
	return normalizeID(rec), nil
}

func (s *mongoRecordStore) UpdateByID(ctx context.Context, h *registry.Handle, id string, changes Record) (Record, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.NotFound("record " + id)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var rec Record
	err = s.collection(h).FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": changes}, opts).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("record " + id)
	}
	if err != nil {
		return nil, apperr.Storage("updating record", err)
	}
	return normalizeID(rec), nil
}

func (s *mongoRecordStore) DeleteByID(ctx context.Context, h *registry.Handle, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return apperr.NotFound("record " + id)
	}

	res, err := s.collection(h).DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return apperr.Storage("deleting record", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("record " + id)
	}
	return nil
}

func (s *mongoRecordStore) DeleteByIDs(ctx context.Context, h *registry.Handle, ids []string) (int64, error) {
	oids := make([]bson.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := bson.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return 0, nil
	}

	res, err := s.collection(h).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return 0, apperr.Storage("batch deleting records", err)
	}
	return res.DeletedCount, nil
}

func (s *mongoRecordStore) GroupCount(ctx context.Context, h *registry.Handle, field string, f query.Filter) ([]ValueCount, error) {
	pipeline := bson.A{
		bson.D{{Key: "$match", Value: filterToBSON(f)}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + field},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}}}},
	}

	cursor, err := s.collection(h).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperr.Storage("aggregating "+h.CollectionName+"."+field, err)
	}
	defer cursor.Close(ctx)

	var out []ValueCount
	if err := cursor.All(ctx, &out); err != nil {
		return nil, apperr.Storage("decoding aggregation", err)
	}
	return out, nil
}

// mongoIndexer creates dynamic-collection indexes.
type mongoIndexer struct {
	db *mongo.Database
}

func (ix *mongoIndexer) EnsureIndexes(ctx context.Context, collection string, specs []registry.IndexSpec) error {
	if len(specs) == 0 {
		return nil
	}

	models := make([]mongo.IndexModel, len(specs))
	for i, spec := range specs {
		opts := options.Index()
		if spec.Name != "" {
			opts.SetName(spec.Name)
		}
		models[i] = mongo.IndexModel{
			Keys:    bson.D{{Key: spec.Field, Value: 1}},
			Options: opts,
		}
	}

	if _, err := ix.db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("creating indexes on %s: %w", collection, err)
	}
	return nil
}
