// Package mongo provides a MongoDB-backed implementation of tick.Store.
//
// Dialogs are persisted as one metadata document per dialog plus one snapshot
// document per (dialog, story) pair. MongoDB's single-document atomicity per
// snapshot gives the read-modify-write guarantee tick.Store requires for a
// (dialog, story) key.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"goa.design/clue/health"

	"github.com/dialogmesh/dialogmesh/runtime/tick"
)

const (
	defaultDialogsCollection   = "dialogs"
	defaultSnapshotsCollection = "tick_states"
	defaultOpTimeout           = 5 * time.Second
	storeClientName            = "dialog-mongo"
)

// Options configures the Mongo dialog store.
type Options struct {
	// Client is the Mongo connection. Required; callers own its lifecycle.
	Client *mongodriver.Client
	// Database is the database name. Required.
	Database string
	// DialogsCollection overrides the dialog metadata collection name.
	DialogsCollection string
	// SnapshotsCollection overrides the snapshot collection name.
	SnapshotsCollection string
	// Timeout bounds individual store operations. Defaults to 5s.
	Timeout time.Duration
}

// Store implements tick.Store over MongoDB.
type Store struct {
	mongo     *mongodriver.Client
	dialogs   collection
	snapshots collection
	timeout   time.Duration
}

// New returns a Store backed by MongoDB.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	dialogsCollection := opts.DialogsCollection
	if dialogsCollection == "" {
		dialogsCollection = defaultDialogsCollection
	}
	snapshotsCollection := opts.SnapshotsCollection
	if snapshotsCollection == "" {
		snapshotsCollection = defaultSnapshotsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	db := opts.Client.Database(opts.Database)
	dialogs := mongoCollection{coll: db.Collection(dialogsCollection)}
	snapshots := mongoCollection{coll: db.Collection(snapshotsCollection)}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := ensureIndexes(ctx, dialogs, snapshots); err != nil {
		return nil, err
	}
	return newStoreWithCollections(opts.Client, dialogs, snapshots, timeout)
}

// Ensure Store implements tick.Store and health.Pinger.
var (
	_ tick.Store    = (*Store)(nil)
	_ health.Pinger = (*Store)(nil)
)

// Name implements health.Pinger.
func (s *Store) Name() string {
	return storeClientName
}

// Ping implements health.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.mongo.Ping(ctx, readpref.Primary())
}

// LoadDialog implements tick.Store.
func (s *Store) LoadDialog(ctx context.Context, dialogID string) (*tick.Dialog, error) {
	if dialogID == "" {
		return nil, errors.New("dialog id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var meta dialogDocument
	if err := s.dialogs.FindOne(ctx, bson.M{"dialog_id": dialogID}).Decode(&meta); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, tick.ErrDialogNotFound
		}
		return nil, err
	}

	cur, err := s.snapshots.Find(ctx, bson.M{"dialog_id": dialogID})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()

	dialog := &tick.Dialog{
		ID:         meta.DialogID,
		TickStates: make(map[string]tick.Session),
		LastUpdate: meta.LastUpdate.UTC(),
	}
	for cur.Next(ctx) {
		var doc snapshotDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		dialog.TickStates[doc.StoryID] = doc.toSession()
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return dialog, nil
}

// SaveDialog implements tick.Store.
func (s *Store) SaveDialog(ctx context.Context, dialog *tick.Dialog) error {
	if dialog == nil {
		return errors.New("dialog is required")
	}
	if dialog.ID == "" {
		return errors.New("dialog id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	metaFilter := bson.M{"dialog_id": dialog.ID}
	metaUpdate := bson.M{
		"$set": bson.M{
			"dialog_id":   dialog.ID,
			"last_update": dialog.LastUpdate.UTC(),
			"updated_at":  now,
		},
	}
	if _, err := s.dialogs.UpdateOne(ctx, metaFilter, metaUpdate, options.Update().SetUpsert(true)); err != nil {
		return err
	}

	for storyID, session := range dialog.TickStates {
		doc := fromSession(dialog.ID, storyID, session, now)
		filter := bson.M{"dialog_id": dialog.ID, "story_id": storyID}
		update := bson.M{
			"$set": bson.M{
				"dialog_id":             doc.DialogID,
				"story_id":              doc.StoryID,
				"current_state":         doc.CurrentState,
				"contexts":              doc.Contexts,
				"ran_handlers":          doc.RanHandlers,
				"objectives_stack":      doc.ObjectivesStack,
				"init_date":             doc.InitDate,
				"unknown_handling_step": doc.UnknownHandlingStep,
				"handling_step":         doc.HandlingStep,
				"finished":              doc.Finished,
				"updated_at":            doc.UpdatedAt,
			},
		}
		if _, err := s.snapshots.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
			return err
		}
	}
	return nil
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

type dialogDocument struct {
	DialogID   string    `bson:"dialog_id"`
	LastUpdate time.Time `bson:"last_update"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

type snapshotDocument struct {
	DialogID            string            `bson:"dialog_id"`
	StoryID             string            `bson:"story_id"`
	CurrentState        *string           `bson:"current_state,omitempty"`
	Contexts            map[string]string `bson:"contexts,omitempty"`
	RanHandlers         []string          `bson:"ran_handlers,omitempty"`
	ObjectivesStack     []string          `bson:"objectives_stack,omitempty"`
	InitDate            time.Time         `bson:"init_date"`
	UnknownHandlingStep *string           `bson:"unknown_handling_step,omitempty"`
	HandlingStep        *string           `bson:"handling_step,omitempty"`
	Finished            bool              `bson:"finished"`
	UpdatedAt           time.Time         `bson:"updated_at"`
}

func fromSession(dialogID, storyID string, session tick.Session, now time.Time) snapshotDocument {
	return snapshotDocument{
		DialogID:            dialogID,
		StoryID:             storyID,
		CurrentState:        session.CurrentState,
		Contexts:            session.Contexts,
		RanHandlers:         session.RanHandlers,
		ObjectivesStack:     session.ObjectivesStack,
		InitDate:            session.InitDate.UTC(),
		UnknownHandlingStep: session.UnknownHandlingStep,
		HandlingStep:        session.HandlingStep,
		Finished:            session.Finished,
		UpdatedAt:           now,
	}
}

func (doc snapshotDocument) toSession() tick.Session {
	return tick.Session{
		CurrentState:        doc.CurrentState,
		Contexts:            doc.Contexts,
		RanHandlers:         doc.RanHandlers,
		ObjectivesStack:     doc.ObjectivesStack,
		InitDate:            doc.InitDate.UTC(),
		UnknownHandlingStep: doc.UnknownHandlingStep,
		HandlingStep:        doc.HandlingStep,
		Finished:            doc.Finished,
	}
}

func ensureIndexes(ctx context.Context, dialogsColl, snapshotsColl collection) error {
	dialogIndex := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "dialog_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := dialogsColl.Indexes().CreateOne(ctx, dialogIndex); err != nil {
		return err
	}
	snapshotIndex := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "dialog_id", Value: 1},
			{Key: "story_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	if _, err := snapshotsColl.Indexes().CreateOne(ctx, snapshotIndex); err != nil {
		return err
	}
	return nil
}

func newStoreWithCollections(mongoClient *mongodriver.Client, dialogsColl, snapshotsColl collection, timeout time.Duration) (*Store, error) {
	if dialogsColl == nil || snapshotsColl == nil {
		return nil, errors.New("collections are required")
	}
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &Store{
		mongo:     mongoClient,
		dialogs:   dialogsColl,
		snapshots: snapshotsColl,
		timeout:   timeout,
	}, nil
}
