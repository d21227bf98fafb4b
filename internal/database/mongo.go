package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names in the Mongo database.
const (
	UsersCollection = "users"
	TurnsCollection = "chats"
	FilesCollection = "files"
)

// mongoStore implements Store on MongoDB. Documents use string UUIDs as _id.
type mongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
	turns  *mongo.Collection
	files  *mongo.Collection
	logger *slog.Logger
}

// NewMongoStore connects to uri, ensures indexes and returns a Store.
func NewMongoStore(ctx context.Context, uri, dbName string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(dbName)
	s := &mongoStore{
		client: client,
		users:  db.Collection(UsersCollection),
		turns:  db.Collection(TurnsCollection),
		files:  db.Collection(FilesCollection),
		logger: logger.With("component", "store", "driver", "mongo"),
	}

	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	s.logger.Info("Mongo store connected", "database", dbName)
	return s, nil
}

func (s *mongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}
	if _, err := s.turns.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "timestamp", Value: -1}},
	}); err != nil {
		return fmt.Errorf("failed to create chats index: %w", err)
	}
	return nil
}

func (s *mongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongo: %w", err)
	}
	s.logger.Info("Mongo connection closed successfully.")
	return nil
}

func (s *mongoStore) EnsureUser(ctx context.Context, user *User) (bool, error) {
	if user == nil {
		return false, fmt.Errorf("cannot save nil user")
	}
	if user.ChatID == 0 {
		return false, fmt.Errorf("user must have a non-zero chat_id")
	}

	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	// chat_id comes from the filter on insert.
	onInsert := bson.M{
		"_id":        user.ID,
		"first_name": user.FirstName,
		"username":   user.Username,
		"created_at": user.CreatedAt,
		"updated_at": user.UpdatedAt,
	}
	if user.Phone != nil {
		onInsert["phone"] = *user.Phone
	}

	res, err := s.users.UpdateOne(ctx,
		bson.M{"chat_id": user.ChatID},
		bson.M{"$setOnInsert": onInsert},
		options.Update().SetUpsert(true))
	if err != nil {
		s.logger.ErrorContext(ctx, "Error ensuring user", "chat_id", user.ChatID, "error", err)
		return false, fmt.Errorf("failed to ensure user for chat %d: %w", user.ChatID, err)
	}

	created := res.UpsertedCount == 1
	if created {
		s.logger.InfoContext(ctx, "New user registered", "chat_id", user.ChatID, "user_id", user.ID)
	}
	return created, nil
}

func (s *mongoStore) GetUser(ctx context.Context, chatID int64) (*User, error) {
	var user User
	err := s.users.FindOne(ctx, bson.M{"chat_id": chatID}).Decode(&user)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get user for chat %d: %w", chatID, err)
	}
	return &user, nil
}

func (s *mongoStore) UpdateUserPhone(ctx context.Context, chatID int64, phone string) error {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"chat_id": chatID},
		bson.M{"$set": bson.M{"phone": phone, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to update phone for chat %d: %w", chatID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user for chat %d: %w", chatID, ErrNotFound)
	}
	return nil
}

func (s *mongoStore) SaveTurn(ctx context.Context, turn *Turn) error {
	if turn == nil {
		return fmt.Errorf("cannot save nil turn")
	}
	if turn.ChatID == 0 {
		return fmt.Errorf("turn must have a non-zero chat_id")
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	if _, err := s.turns.InsertOne(ctx, turn); err != nil {
		s.logger.ErrorContext(ctx, "Error saving turn", "chat_id", turn.ChatID, "error", err)
		return fmt.Errorf("failed to save turn (chat %d): %w", turn.ChatID, err)
	}
	return nil
}

func (s *mongoStore) GetRecentTurns(ctx context.Context, chatID int64, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > MaxRecentTurns {
		limit = MaxRecentTurns
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.turns.Find(ctx, bson.M{"chat_id": chatID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent turns for chat %d: %w", chatID, err)
	}

	var turns []Turn
	if err := cursor.All(ctx, &turns); err != nil {
		return nil, fmt.Errorf("failed to decode turns for chat %d: %w", chatID, err)
	}

	slices.Reverse(turns)
	return turns, nil
}

func (s *mongoStore) PruneTurns(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.turns.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": before.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("failed to prune turns: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *mongoStore) SaveFile(ctx context.Context, file *File) error {
	if file == nil {
		return fmt.Errorf("cannot save nil file")
	}
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}
	file.Size = int64(len(file.Data))

	if _, err := s.files.InsertOne(ctx, file); err != nil {
		s.logger.ErrorContext(ctx, "Error saving file", "chat_id", file.ChatID, "file_name", file.FileName, "error", err)
		return fmt.Errorf("failed to save file %q: %w", file.FileName, err)
	}
	return nil
}

func (s *mongoStore) UpdateFileDescription(ctx context.Context, id, description string) error {
	res, err := s.files.UpdateByID(ctx, id, bson.M{"$set": bson.M{"description": description}})
	if err != nil {
		return fmt.Errorf("failed to update description of file %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("file %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *mongoStore) GetFile(ctx context.Context, id string) (*File, error) {
	var file File
	err := s.files.FindOne(ctx, bson.M{"_id": id}).Decode(&file)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get file %s: %w", id, err)
	}
	return &file, nil
}

// RunMaintenance only checks connectivity; Mongo compacts storage itself.
func (s *mongoStore) RunMaintenance(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("mongo maintenance ping failed: %w", err)
	}
	s.logger.InfoContext(ctx, "Mongo maintenance check completed")
	return nil
}
