package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"taskhub/model"
)

// Collection names.
const (
	usersCollection = "users"
	tasksCollection = "tasks"
)

// Connect opens a Mongo client and verifies connectivity.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// MongoUserStore implements UserStore on a Mongo collection.
type MongoUserStore struct {
	coll *mongo.Collection
}

// NewMongoUserStore creates a user store and ensures its unique indexes.
func NewMongoUserStore(ctx context.Context, db *mongo.Database) (*MongoUserStore, error) {
	coll := db.Collection(usersCollection)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return nil, err
	}

	return &MongoUserStore{coll: coll}, nil
}

// Insert adds a new user.
func (s *MongoUserStore) Insert(ctx context.Context, u *model.User) (*model.User, error) {
	inserted := *u
	if inserted.ID.IsZero() {
		inserted.ID = primitive.NewObjectID()
	}
	if inserted.CreatedAt.IsZero() {
		inserted.CreatedAt = time.Now().UTC()
	}

	if _, err := s.coll.InsertOne(ctx, &inserted); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return &inserted, nil
}

// FindByID returns the user with the given id.
func (s *MongoUserStore) FindByID(ctx context.Context, id primitive.ObjectID) (*model.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// FindByEmail returns the user with the given email.
func (s *MongoUserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

// FindByUsername returns the user with the given username.
func (s *MongoUserStore) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.findOne(ctx, bson.M{"username": username})
}

func (s *MongoUserStore) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	var u model.User
	err := s.coll.FindOne(ctx, filter).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// List returns all users sorted by username.
func (s *MongoUserStore) List(ctx context.Context) ([]model.User, error) {
	cursor, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []model.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// MongoTaskStore implements TaskStore on a Mongo collection.
type MongoTaskStore struct {
	coll *mongo.Collection
}

// NewMongoTaskStore creates a task store.
func NewMongoTaskStore(db *mongo.Database) *MongoTaskStore {
	return &MongoTaskStore{coll: db.Collection(tasksCollection)}
}

// Insert persists a new task.
func (s *MongoTaskStore) Insert(ctx context.Context, t *model.Task) (*model.Task, error) {
	inserted := t.Clone()
	if inserted.ID.IsZero() {
		inserted.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	inserted.CreatedAt = now
	inserted.UpdatedAt = now
	if inserted.Tags == nil {
		inserted.Tags = []string{}
	}

	if _, err := s.coll.InsertOne(ctx, inserted); err != nil {
		return nil, err
	}
	return inserted, nil
}

// FindByID returns the task with the given id.
func (s *MongoTaskStore) FindByID(ctx context.Context, id primitive.ObjectID) (*model.Task, error) {
	var t model.Task
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Save replaces the stored record, bumping updatedAt.
func (s *MongoTaskStore) Save(ctx context.Context, t *model.Task) (*model.Task, error) {
	saved := t.Clone()
	saved.UpdatedAt = time.Now().UTC()

	result, err := s.coll.ReplaceOne(ctx, bson.M{"_id": saved.ID}, saved)
	if err != nil {
		return nil, err
	}
	if result.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return saved, nil
}

// DeleteByID removes the task.
func (s *MongoTaskStore) DeleteByID(ctx context.Context, id primitive.ObjectID) error {
	result, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// FindAll returns every task sorted by updatedAt descending.
func (s *MongoTaskStore) FindAll(ctx context.Context) ([]model.Task, error) {
	cursor, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var tasks []model.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CountByStatus groups the user's created or assigned tasks by status.
func (s *MongoTaskStore) CountByStatus(ctx context.Context, userID primitive.ObjectID) (map[model.Status]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"$or": bson.A{
				bson.M{"assignedTo": userID},
				bson.M{"createdBy": userID},
			},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	counts := make(map[model.Status]int)
	for cursor.Next(ctx) {
		var row struct {
			Status model.Status `bson:"_id"`
			Count  int          `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		counts[row.Status] = row.Count
	}
	return counts, cursor.Err()
}
