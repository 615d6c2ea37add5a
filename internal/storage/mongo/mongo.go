package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"code_auth/internal/models"
	"code_auth/internal/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection  = "users"
	tokensCollection = "tokens"
)

type MongoRepo struct {
	client *mongo.Client
	users  *mongo.Collection
	tokens *mongo.Collection
}

type userDoc struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Email            string             `bson:"email,omitempty"`
	Mobile           string             `bson:"mobile,omitempty"`
	Username         string             `bson:"username,omitempty"`
	PassHash         []byte             `bson:"password_hash,omitempty"`
	IsEmailVerified  bool               `bson:"is_email_verified"`
	IsMobileVerified bool               `bson:"is_mobile_verified"`
	CreatedAt        time.Time          `bson:"created_at"`
}

type tokenDoc struct {
	Token       string    `bson:"token"`
	UserID      string    `bson:"user"`
	Type        string    `bson:"type"`
	ExpiresAt   time.Time `bson:"expires_at"`
	Blacklisted bool      `bson:"blacklisted"`
}

func New(ctx context.Context, uri, database string) (*MongoRepo, error) {
	const op = "storage.mongo.New"

	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	db := client.Database(database)

	repo := &MongoRepo{
		client: client,
		users:  db.Collection(usersCollection),
		tokens: db.Collection(tokensCollection),
	}

	if err := repo.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return repo, nil
}

// * ensureIndexes создает уникальные индексы и TTL индекс для токенов
func (r *MongoRepo) ensureIndexes(ctx context.Context) error {
	userIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("uniq_email").SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "mobile", Value: 1}},
			Options: options.Index().SetName("uniq_mobile").SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetName("uniq_username").SetUnique(true).SetSparse(true),
		},
	}

	if _, err := r.users.Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}

	tokenIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetName("uniq_token").SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "user", Value: 1},
				{Key: "type", Value: 1},
			},
			Options: options.Index().SetName("idx_user_type"),
		},
		{
			// expired tokens are removed by the server
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("ttl_expires_at").SetExpireAfterSeconds(0),
		},
	}

	if _, err := r.tokens.Indexes().CreateMany(ctx, tokenIndexes); err != nil {
		return fmt.Errorf("tokens indexes: %w", err)
	}

	return nil
}

func (r *MongoRepo) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const op = "storage.mongo.CreateUser"

	doc := toUserDoc(user)
	doc.ID = primitive.NilObjectID
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	res, err := r.users.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return models.User{}, fmt.Errorf("%s: unexpected inserted id %T", op, res.InsertedID)
	}

	doc.ID = id

	return doc.toModel(), nil
}

func (r *MongoRepo) UserByID(ctx context.Context, id string) (models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.User{}, storage.ErrUserNotFound
	}

	return r.findUser(ctx, "storage.mongo.UserByID", bson.M{"_id": oid})
}

func (r *MongoRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findUser(ctx, "storage.mongo.UserByEmail", bson.M{"email": email})
}

func (r *MongoRepo) UserByMobile(ctx context.Context, mobile string) (models.User, error) {
	return r.findUser(ctx, "storage.mongo.UserByMobile", bson.M{"mobile": mobile})
}

func (r *MongoRepo) UserByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findUser(ctx, "storage.mongo.UserByUsername", bson.M{"username": username})
}

func (r *MongoRepo) SetEmailVerified(ctx context.Context, id string) error {
	return r.updateUser(ctx, "storage.mongo.SetEmailVerified", id, bson.M{"is_email_verified": true})
}

func (r *MongoRepo) SetMobileVerified(ctx context.Context, id string) error {
	return r.updateUser(ctx, "storage.mongo.SetMobileVerified", id, bson.M{"is_mobile_verified": true})
}

func (r *MongoRepo) UpdatePassword(ctx context.Context, id string, passHash []byte) error {
	return r.updateUser(ctx, "storage.mongo.UpdatePassword", id, bson.M{"password_hash": passHash})
}

func (r *MongoRepo) SaveToken(ctx context.Context, token models.Token) error {
	const op = "storage.mongo.SaveToken"

	_, err := r.tokens.InsertOne(ctx, tokenDoc{
		Token:       token.Value,
		UserID:      token.UserID,
		Type:        string(token.Type),
		ExpiresAt:   token.ExpiresAt,
		Blacklisted: token.Blacklisted,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrTokenExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *MongoRepo) Token(ctx context.Context, value string) (models.Token, error) {
	const op = "storage.mongo.Token"

	var doc tokenDoc

	err := r.tokens.FindOne(ctx, bson.M{"token": value}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Token{}, storage.ErrTokenNotFound
		}

		return models.Token{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.Token{
		Value:       doc.Token,
		UserID:      doc.UserID,
		Type:        models.TokenType(doc.Type),
		ExpiresAt:   doc.ExpiresAt,
		Blacklisted: doc.Blacklisted,
	}, nil
}

func (r *MongoRepo) DeleteToken(ctx context.Context, value string) error {
	const op = "storage.mongo.DeleteToken"

	res, err := r.tokens.DeleteOne(ctx, bson.M{"token": value})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.DeletedCount == 0 {
		return storage.ErrTokenNotFound
	}

	return nil
}

func (r *MongoRepo) DeleteUserTokens(ctx context.Context, userID string, typ models.TokenType) (int64, error) {
	const op = "storage.mongo.DeleteUserTokens"

	res, err := r.tokens.DeleteMany(ctx, bson.M{"user": userID, "type": string(typ)})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return res.DeletedCount, nil
}

// * Close закрывает соединение с базой данных.
func (r *MongoRepo) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = r.client.Disconnect(ctx)
}

func (r *MongoRepo) findUser(ctx context.Context, op string, filter bson.M) (models.User, error) {
	var doc userDoc

	err := r.users.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return doc.toModel(), nil
}

func (r *MongoRepo) updateUser(ctx context.Context, op, id string, set bson.M) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return storage.ErrUserNotFound
	}

	res, err := r.users.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.MatchedCount == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func toUserDoc(u models.User) userDoc {
	doc := userDoc{
		Email:            u.Email,
		Mobile:           u.Mobile,
		Username:         u.Username,
		PassHash:         u.PassHash,
		IsEmailVerified:  u.IsEmailVerified,
		IsMobileVerified: u.IsMobileVerified,
		CreatedAt:        u.CreatedAt,
	}

	if oid, err := primitive.ObjectIDFromHex(u.ID); err == nil {
		doc.ID = oid
	}

	return doc
}

func (d userDoc) toModel() models.User {
	return models.User{
		ID:               d.ID.Hex(),
		Email:            d.Email,
		Mobile:           d.Mobile,
		Username:         d.Username,
		PassHash:         d.PassHash,
		IsEmailVerified:  d.IsEmailVerified,
		IsMobileVerified: d.IsMobileVerified,
		CreatedAt:        d.CreatedAt,
	}
}
