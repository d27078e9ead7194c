package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/offsetx/carbon-tracker/internal/models"
)

const colUsers = "users"

// userDoc is the BSON shape of a user document.
type userDoc struct {
	ID              primitive.ObjectID      `bson:"_id,omitempty"`
	Name            string                  `bson:"name"`
	Username        string                  `bson:"username"`
	Password        string                  `bson:"password"`
	Mobile          string                  `bson:"mobile"`
	FoodLogs        []models.FoodLog        `bson:"food_logs"`
	TravelLogs      []models.TravelLog      `bson:"travel_logs"`
	ElectricityLogs []models.ElectricityLog `bson:"electricity_logs"`
	LifestyleLogs   []models.LifestyleLog   `bson:"lifestyle_logs"`
	CreatedAt       time.Time               `bson:"created_at"`
}

func (d *userDoc) toModel() *models.User {
	u := &models.User{
		ID:              d.ID.Hex(),
		Name:            d.Name,
		Username:        d.Username,
		Password:        d.Password,
		Mobile:          d.Mobile,
		FoodLogs:        d.FoodLogs,
		TravelLogs:      d.TravelLogs,
		ElectricityLogs: d.ElectricityLogs,
		LifestyleLogs:   d.LifestyleLogs,
		CreatedAt:       d.CreatedAt,
	}
	u.Normalize()
	return u
}

// MongoStore keeps one document per user in the users collection, with the
// four activity logs embedded as arrays.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{col: db.Collection(colUsers)}
}

// EnsureIndexes creates the unique username index that makes CreateUser
// race-free.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongo create username index: %w", err)
	}
	return nil
}

func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	user.Normalize()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	doc := userDoc{
		ID:              primitive.NewObjectID(),
		Name:            user.Name,
		Username:        user.Username,
		Password:        user.Password,
		Mobile:          user.Mobile,
		FoodLogs:        user.FoodLogs,
		TravelLogs:      user.TravelLogs,
		ElectricityLogs: user.ElectricityLogs,
		LifestyleLogs:   user.LifestyleLogs,
		CreatedAt:       user.CreatedAt,
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("create user %q: %w", user.Username, ErrDuplicateUsername)
		}
		return fmt.Errorf("mongo insert: %w", err)
	}
	user.ID = doc.ID.Hex()
	return nil
}

func (s *MongoStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"username": username})
}

func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDoc
	if err := s.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mongo find user: %w", err)
	}
	return doc.toModel(), nil
}

// AppendLog pushes entry onto the array for its kind in a single update.
func (s *MongoStore) AppendLog(ctx context.Context, id string, entry models.Entry) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$push": bson.M{entry.Kind().Field(): entry}},
	)
	if err != nil {
		return fmt.Errorf("mongo append %s log: %w", entry.Kind(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns every user, oldest first, without password hashes.
func (s *MongoStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetProjection(bson.M{"password": 0})
	cur, err := s.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo list users: %w", err)
	}
	defer cur.Close(ctx)

	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo list users: %w", err)
	}
	users := make([]*models.User, 0, len(docs))
	for i := range docs {
		users = append(users, docs[i].toModel())
	}
	return users, nil
}
