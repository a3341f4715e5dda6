// Package mongo is the document-store backend.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ledger/internal/core"
	"ledger/internal/storage"
)

const (
	expensesCollection = "expenses"
	usersCollection    = "users"
)

var _ storage.Store = (*Repository)(nil)

type expenseDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	OwnerID     string             `bson:"owner_id"`
	Title       string             `bson:"title"`
	AmountCents int64              `bson:"amount_cents"`
	Category    string             `bson:"category"`
	Date        string             `bson:"date"`
	Description string             `bson:"description"`
	Type        string             `bson:"type"`
	CreatedAt   time.Time          `bson:"created_at"`
}

func (d expenseDoc) expense() (core.Expense, error) {
	date, err := core.ParseDate(d.Date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %s has malformed date %q", d.ID.Hex(), d.Date)
	}
	return core.Expense{
		ID:          d.ID.Hex(),
		OwnerID:     d.OwnerID,
		Title:       d.Title,
		Amount:      core.Money{Cents: d.AmountCents},
		Category:    d.Category,
		Date:        date,
		Description: d.Description,
		Type:        core.ExpenseType(d.Type),
		CreatedAt:   d.CreatedAt.UTC(),
	}, nil
}

type userDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	EmailLower   string    `bson:"email_lower"`
	DisplayName  string    `bson:"display_name"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
}

func newUserDoc(u core.User) userDoc {
	return userDoc{
		ID:           u.ID,
		Email:        u.Email,
		EmailLower:   strings.ToLower(strings.TrimSpace(u.Email)),
		DisplayName:  u.DisplayName,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.UTC(),
	}
}

func (d userDoc) user() core.User {
	return core.User{
		ID:           d.ID,
		Email:        d.Email,
		DisplayName:  d.DisplayName,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

type Repository struct {
	cli      *mongo.Client
	db       *mongo.Database
	now      func() time.Time
	disowned bool
}

// Connect dials uri, verifies the connection and prepares indexes in database.
func Connect(ctx context.Context, uri, database string) (*Repository, error) {
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	r := &Repository{cli: cli, db: cli.Database(database), now: time.Now}
	if err := r.EnsureIndexes(ctx); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return r, nil
}

// New wraps a client the caller owns; Close will not disconnect it.
func New(cli *mongo.Client, database string) *Repository {
	return &Repository{cli: cli, db: cli.Database(database), now: time.Now, disowned: true}
}

// EnsureIndexes creates the listing and unique email indexes.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(expensesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "date", Value: -1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create expense index: %w", err)
	}
	_, err = r.db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email_lower", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create user email index: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	if r.disowned {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.cli.Disconnect(ctx)
}

func (r *Repository) Ping(ctx context.Context) error {
	return core.Transient("ping", r.cli.Ping(ctx, nil))
}

func (r *Repository) expenses() *mongo.Collection { return r.db.Collection(expensesCollection) }
func (r *Repository) users() *mongo.Collection    { return r.db.Collection(usersCollection) }

func (r *Repository) Create(ctx context.Context, ownerID string, f core.ExpenseFields) (string, error) {
	f, err := storage.PrepareCreate(ownerID, f)
	if err != nil {
		return "", err
	}
	doc := expenseDoc{
		ID:          primitive.NewObjectID(),
		OwnerID:     ownerID,
		Title:       f.Title,
		AmountCents: f.Amount.Cents,
		Category:    f.Category,
		Date:        f.Date.String(),
		Description: f.Description,
		Type:        string(f.Type),
		// BSON dates hold milliseconds.
		CreatedAt: r.now().UTC().Truncate(time.Millisecond),
	}
	if _, err := r.expenses().InsertOne(ctx, doc); err != nil {
		return "", core.Transient("create expense", err)
	}
	return doc.ID.Hex(), nil
}

func (r *Repository) Get(ctx context.Context, id string) (core.Expense, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return core.Expense{}, storage.NotFound(id)
	}
	var doc expenseDoc
	err = r.expenses().FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Expense{}, storage.NotFound(id)
	}
	if err != nil {
		return core.Expense{}, core.Transient("get expense", err)
	}
	e, err := doc.expense()
	if err != nil {
		return core.Expense{}, core.Transient("get expense", err)
	}
	return e, nil
}

func (r *Repository) Update(ctx context.Context, id string, p core.ExpensePatch) error {
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	next, err := storage.PrepareUpdate(current, p)
	if err != nil {
		return err
	}
	oid, _ := primitive.ObjectIDFromHex(id)
	res, err := r.expenses().UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, bson.D{{Key: "$set", Value: bson.D{
		{Key: "title", Value: next.Title},
		{Key: "amount_cents", Value: next.Amount.Cents},
		{Key: "category", Value: next.Category},
		{Key: "date", Value: next.Date.String()},
		{Key: "description", Value: next.Description},
		{Key: "type", Value: string(next.Type)},
	}}})
	if err != nil {
		return core.Transient("update expense", err)
	}
	if res.MatchedCount == 0 {
		return storage.NotFound(id)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return storage.NotFound(id)
	}
	res, err := r.expenses().DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return core.Transient("delete expense", err)
	}
	if res.DeletedCount == 0 {
		return storage.NotFound(id)
	}
	return nil
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID string, f core.TypeFilter) ([]core.Expense, error) {
	filter := bson.D{{Key: "owner_id", Value: ownerID}}
	if f != core.AllTypes && f != "" {
		filter = append(filter, bson.E{Key: "type", Value: string(f)})
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "date", Value: -1},
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: -1},
	})
	cursor, err := r.expenses().Find(ctx, filter, opts)
	if err != nil {
		return nil, core.Transient("list expenses", err)
	}
	defer cursor.Close(ctx)

	out := make([]core.Expense, 0)
	for cursor.Next(ctx) {
		var doc expenseDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, core.Transient("list expenses", err)
		}
		e, err := doc.expense()
		if err != nil {
			return nil, core.Transient("list expenses", err)
		}
		out = append(out, e)
	}
	if err := cursor.Err(); err != nil {
		return nil, core.Transient("list expenses", err)
	}
	return out, nil
}

func (r *Repository) CreateUser(ctx context.Context, u core.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now()
	}
	_, err := r.users().InsertOne(ctx, newUserDoc(u))
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrEmailTaken
	}
	return core.Transient("create user", err)
}

func (r *Repository) findUser(ctx context.Context, filter bson.D, key string) (core.User, error) {
	var doc userDoc
	err := r.users().FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.User{}, storage.UserNotFound(key)
	}
	if err != nil {
		return core.User{}, core.Transient("get user", err)
	}
	return doc.user(), nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (core.User, error) {
	return r.findUser(ctx, bson.D{{Key: "_id", Value: id}}, id)
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	return r.findUser(ctx, bson.D{{Key: "email_lower", Value: key}}, email)
}

func (r *Repository) UpdateUser(ctx context.Context, u core.User) error {
	doc := newUserDoc(u)
	res, err := r.users().UpdateOne(ctx, bson.D{{Key: "_id", Value: u.ID}}, bson.D{{Key: "$set", Value: bson.D{
		{Key: "email", Value: doc.Email},
		{Key: "email_lower", Value: doc.EmailLower},
		{Key: "display_name", Value: doc.DisplayName},
		{Key: "password_hash", Value: doc.PasswordHash},
	}}})
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrEmailTaken
	}
	if err != nil {
		return core.Transient("update user", err)
	}
	if res.MatchedCount == 0 {
		return storage.UserNotFound(u.ID)
	}
	return nil
}
