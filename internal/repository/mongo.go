package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wishday/wishday/internal/birthday"
	"github.com/wishday/wishday/internal/model"
)

const usersCollection = "users"

// Mongo is a Store backed by a MongoDB collection.
type Mongo struct {
	client *mongo.Client
	users  *mongo.Collection
}

// NewMongo connects to MongoDB, verifies the connection and ensures indexes.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	if database == "" {
		database = "wishday"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	m := &Mongo{
		client: client,
		users:  client.Database(database).Collection(usersCollection),
	}

	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "dateOfBirth", Value: 1}}},
		{Keys: bson.D{{Key: "email", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// CreateUser inserts a new user document.
func (m *Mongo) CreateUser(ctx context.Context, user *model.User) error {
	if _, err := m.users.InsertOne(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByEmail retrieves the newest user registered with email.
func (m *Mongo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})

	var user model.User
	if err := m.users.FindOne(ctx, bson.M{"email": email}, opts).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	normalize(&user)
	return &user, nil
}

// FindBirthdays selects users for a birthday scan.
func (m *Mongo) FindBirthdays(ctx context.Context, q birthday.Query) ([]*model.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := m.users.Find(ctx, birthdayFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query birthdays: %w", err)
	}
	defer cursor.Close(ctx)

	var users []*model.User
	for cursor.Next(ctx) {
		var user model.User
		if err := cursor.Decode(&user); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}
		normalize(&user)
		users = append(users, &user)
	}

	return users, cursor.Err()
}

// birthdayFilter translates a query into a MongoDB filter document.
func birthdayFilter(q birthday.Query) bson.M {
	if q.Mode != birthday.MatchAnniversary {
		return bson.M{"dateOfBirth": bson.M{
			"$gte": q.Window.Start,
			"$lt":  q.Window.End,
		}}
	}

	clauses := make(bson.A, 0, len(q.Days))
	for _, md := range q.Days {
		clauses = append(clauses, bson.M{"$and": bson.A{
			bson.M{"$eq": bson.A{
				bson.M{"$month": bson.M{"date": "$dateOfBirth", "timezone": "UTC"}},
				int(md.Month),
			}},
			bson.M{"$eq": bson.A{
				bson.M{"$dayOfMonth": bson.M{"date": "$dateOfBirth", "timezone": "UTC"}},
				md.Day,
			}},
		}})
	}

	return bson.M{"$expr": bson.M{"$or": clauses}}
}

// normalize converts decoded timestamps to UTC.
func normalize(user *model.User) {
	user.DateOfBirth = user.DateOfBirth.UTC()
	user.CreatedAt = user.CreatedAt.UTC()
}
