// Package mongo provides a MongoDB-backed implementation of session.Store.
//
// Each session is a single document carrying its settings, counters and the
// embedded turn ledger. Turns are appended with $push so the ledger stays
// append-only at the storage level.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"

	"goa.design/aide/runtime/agent/session"
	"goa.design/aide/runtime/agent/tools"
)

const (
	defaultCollection = "agent_sessions"
	defaultOpTimeout  = 5 * time.Second
	storeName         = "session-mongo"
)

// Options configures the Mongo session store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store is a MongoDB-backed session.Store. It also implements health.Pinger
// so deployments can surface store connectivity on their health endpoint.
type Store struct {
	mongo    *mongodriver.Client
	sessions collection
	timeout  time.Duration
}

var (
	_ session.Store = (*Store)(nil)
	_ health.Pinger = (*Store)(nil)
)

// New returns a Store backed by MongoDB.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collName)
	wrapper := mongoCollection{coll: coll}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := ensureIndexes(ctx, wrapper); err != nil {
		return nil, err
	}
	return newStoreWithCollection(opts.Client, wrapper, timeout)
}

// Name implements health.Pinger.
func (s *Store) Name() string {
	return storeName
}

// Ping implements health.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.mongo.Ping(ctx, readpref.Primary())
}

// CreateSession implements session.Store.
func (s *Store) CreateSession(ctx context.Context, id string, createdAt time.Time, settings session.Settings) (session.Session, error) {
	if id == "" {
		return session.Session{}, errors.New("session id is required")
	}
	if createdAt.IsZero() {
		return session.Session{}, errors.New("created_at is required")
	}
	if err := settings.Validate(); err != nil {
		return session.Session{}, err
	}

	now := time.Now().UTC()
	doc := sessionDocument{
		SessionID:     id,
		Status:        session.StatusRunning,
		Iterations:    0,
		MaxIterations: settings.MaxIterations,
		MaxDurationMS: settings.MaxDuration.Milliseconds(),
		GrantedScopes: append([]string(nil), settings.GrantedScopes...),
		CreatedAt:     createdAt.UTC(),
		UpdatedAt:     now,
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.sessions.InsertOne(ctx, doc); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return session.Session{}, session.ErrDuplicateSession
		}
		return session.Session{}, err
	}
	return doc.toSession(), nil
}

// LoadSession implements session.Store.
func (s *Store) LoadSession(ctx context.Context, id string) (session.Session, error) {
	doc, err := s.loadDocument(ctx, id)
	if err != nil {
		return session.Session{}, err
	}
	return doc.toSession(), nil
}

// AppendTurn implements session.Store.
func (s *Store) AppendTurn(ctx context.Context, id string, turn session.Turn) (session.Turn, error) {
	doc, err := s.loadDocument(ctx, id)
	if err != nil {
		return session.Turn{}, err
	}
	if doc.Status.Terminal() {
		return session.Turn{}, session.ErrSessionEnded
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	} else {
		turn.CreatedAt = turn.CreatedAt.UTC()
	}
	if n := len(doc.Turns); n > 0 && turn.CreatedAt.Before(doc.Turns[n-1].CreatedAt) {
		return session.Turn{}, session.ErrTurnOutOfOrder
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"session_id": id, "status": session.StatusRunning}
	update := bson.M{
		"$push": bson.M{"turns": fromTurn(turn)},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	res, err := s.sessions.UpdateOne(ctx, filter, update)
	if err != nil {
		return session.Turn{}, err
	}
	if res.MatchedCount == 0 {
		// The session ended between the read and the write.
		return session.Turn{}, session.ErrSessionEnded
	}
	return turn, nil
}

// SetIterations implements session.Store.
func (s *Store) SetIterations(ctx context.Context, id string, iterations int) error {
	if iterations < 0 {
		return errors.New("iterations must not be negative")
	}
	if id == "" {
		return errors.New("session id is required")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"session_id": id}
	update := bson.M{
		"$set": bson.M{
			"iterations": iterations,
			"updated_at": time.Now().UTC(),
		},
	}
	res, err := s.sessions.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

// EndSession implements session.Store.
func (s *Store) EndSession(ctx context.Context, id string, status session.Status, reason session.Reason, endedAt time.Time) (session.Session, error) {
	if !status.Terminal() {
		return session.Session{}, errors.New("status must be terminal")
	}
	if endedAt.IsZero() {
		return session.Session{}, errors.New("ended_at is required")
	}

	doc, err := s.loadDocument(ctx, id)
	if err != nil {
		return session.Session{}, err
	}
	if doc.Status.Terminal() {
		if doc.Status == status {
			return doc.toSession(), nil
		}
		return session.Session{}, session.ErrSessionEnded
	}

	at := endedAt.UTC()
	ctxWithTimeout, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"session_id": id, "status": session.StatusRunning}
	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"reason":     reason,
			"ended_at":   at,
			"updated_at": time.Now().UTC(),
		},
	}
	res, err := s.sessions.UpdateOne(ctxWithTimeout, filter, update)
	if err != nil {
		return session.Session{}, err
	}
	if res.MatchedCount == 0 {
		return session.Session{}, session.ErrSessionEnded
	}
	return s.LoadSession(ctx, id)
}

func (s *Store) loadDocument(ctx context.Context, id string) (sessionDocument, error) {
	if id == "" {
		return sessionDocument{}, errors.New("session id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"session_id": id}
	var doc sessionDocument
	if err := s.sessions.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return sessionDocument{}, session.ErrSessionNotFound
		}
		return sessionDocument{}, err
	}
	return doc, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

type sessionDocument struct {
	SessionID     string         `bson:"session_id"`
	Status        session.Status `bson:"status"`
	Reason        session.Reason `bson:"reason,omitempty"`
	Turns         []turnDocument `bson:"turns,omitempty"`
	Iterations    int            `bson:"iterations"`
	MaxIterations int            `bson:"max_iterations"`
	MaxDurationMS int64          `bson:"max_duration_ms"`
	GrantedScopes []string       `bson:"granted_scopes,omitempty"`
	CreatedAt     time.Time      `bson:"created_at"`
	EndedAt       *time.Time     `bson:"ended_at,omitempty"`
	UpdatedAt     time.Time      `bson:"updated_at"`
}

type turnDocument struct {
	Role           session.Role `bson:"role"`
	Content        string       `bson:"content"`
	ToolName       string       `bson:"tool_name,omitempty"`
	ToolCallID     string       `bson:"tool_call_id,omitempty"`
	ErrorKind      string       `bson:"error_kind,omitempty"`
	Classification string       `bson:"classification,omitempty"`
	CreatedAt      time.Time    `bson:"created_at"`
}

func fromTurn(turn session.Turn) turnDocument {
	return turnDocument{
		Role:           turn.Role,
		Content:        turn.Content,
		ToolName:       string(turn.ToolName),
		ToolCallID:     turn.ToolCallID,
		ErrorKind:      turn.ErrorKind,
		Classification: turn.Classification,
		CreatedAt:      turn.CreatedAt.UTC(),
	}
}

func (doc turnDocument) toTurn() session.Turn {
	return session.Turn{
		Role:           doc.Role,
		Content:        doc.Content,
		ToolName:       tools.Ident(doc.ToolName),
		ToolCallID:     doc.ToolCallID,
		ErrorKind:      doc.ErrorKind,
		Classification: doc.Classification,
		CreatedAt:      doc.CreatedAt.UTC(),
	}
}

func (doc sessionDocument) toSession() session.Session {
	var endedAt *time.Time
	if doc.EndedAt != nil {
		at := doc.EndedAt.UTC()
		endedAt = &at
	}
	turns := make([]session.Turn, 0, len(doc.Turns))
	for _, t := range doc.Turns {
		turns = append(turns, t.toTurn())
	}
	if len(turns) == 0 {
		turns = nil
	}
	return session.Session{
		ID:            doc.SessionID,
		Status:        doc.Status,
		Reason:        doc.Reason,
		Turns:         turns,
		Iterations:    doc.Iterations,
		MaxIterations: doc.MaxIterations,
		MaxDuration:   time.Duration(doc.MaxDurationMS) * time.Millisecond,
		GrantedScopes: append([]string(nil), doc.GrantedScopes...),
		CreatedAt:     doc.CreatedAt.UTC(),
		EndedAt:       endedAt,
	}
}

func ensureIndexes(ctx context.Context, coll collection) error {
	sessionIndex := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	_, err := coll.Indexes().CreateOne(ctx, sessionIndex)
	return err
}

func newStoreWithCollection(mongoClient *mongodriver.Client, coll collection, timeout time.Duration) (*Store, error) {
	if coll == nil {
		return nil, errors.New("collection is required")
	}
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &Store{
		mongo:    mongoClient,
		sessions: coll,
		timeout:  timeout,
	}, nil
}

type collection interface {
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult
	InsertOne(ctx context.Context, doc any, opts ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error)
	UpdateOne(ctx context.Context, filter any, update any,
		opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel,
		opts ...options.Lister[options.CreateIndexesOptions]) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult {
	return mongoSingleResult{res: c.coll.FindOne(ctx, filter, opts...)}
}

func (c mongoCollection) InsertOne(ctx context.Context, doc any, opts ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, doc, opts...)
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter any, update any,
	opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoSingleResult struct {
	res *mongodriver.SingleResult
}

func (r mongoSingleResult) Decode(val any) error {
	return r.res.Decode(val)
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel,
	opts ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
