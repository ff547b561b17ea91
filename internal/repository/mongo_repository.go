package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/myhuemungusD/skatehubba/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ticketCollection = "matchTickets"
	lobbyCollection  = "lobbies"
	userCollection   = "users"
)

type ticketDoc struct {
	ID        string `bson:"_id"`
	UID       string `bson:"uid"`
	Mode      string `bson:"mode"`
	Skill     int    `bson:"skill"`
	CreatedAt int64  `bson:"createdAt"`
}

func (d ticketDoc) toModel() *models.Ticket {
	return &models.Ticket{ID: d.ID, UID: d.UID, Mode: d.Mode, Skill: d.Skill, CreatedAt: d.CreatedAt}
}

type lobbyDoc struct {
	ID           string   `bson:"_id"`
	Mode         string   `bson:"mode"`
	Players      []string `bson:"players"`
	SkillAverage int      `bson:"skillAverage"`
	CreatedAt    int64    `bson:"createdAt"`
	State        string   `bson:"state"`
}

type userDoc struct {
	UID       string    `bson:"_id"`
	Handle    string    `bson:"handle,omitempty"`
	LobbyID   *string   `bson:"lobbyId"`
	InMatch   bool      `bson:"inMatch"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// EnsureMongoIndexes 조회 패턴에 맞는 인덱스 생성
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(ticketCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "mode", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "uid", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create ticket indexes: %w", err)
	}

	_, err = db.Collection(lobbyCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create lobby indexes: %w", err)
	}
	return nil
}

// NewMongoStores MongoDB 저장소 묶음
func NewMongoStores(db *mongo.Database) Stores {
	return Stores{
		Tickets: NewMongoTicketRepository(db),
		Lobbies: NewMongoLobbyRepository(db),
		Users:   NewMongoUserRepository(db),
	}
}

// MongoTicketRepository MongoDB 매칭 티켓 저장소
type MongoTicketRepository struct {
	coll *mongo.Collection
}

func NewMongoTicketRepository(db *mongo.Database) *MongoTicketRepository {
	return &MongoTicketRepository{coll: db.Collection(ticketCollection)}
}

func (r *MongoTicketRepository) Create(ctx context.Context, ticket *models.Ticket) error {
	_, err := r.coll.InsertOne(ctx, ticketDoc{
		ID:        ticket.ID,
		UID:       ticket.UID,
		Mode:      ticket.Mode,
		Skill:     ticket.Skill,
		CreatedAt: ticket.CreatedAt,
	})
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

func (r *MongoTicketRepository) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*models.Ticket, error) {
	var doc ticketDoc
	err := r.coll.FindOne(ctx, filter, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

func (r *MongoTicketRepository) Get(ctx context.Context, id string) (*models.Ticket, error) {
	t, err := r.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return t, nil
}

func (r *MongoTicketRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete ticket: %w", err)
	}
	return result.DeletedCount > 0, nil
}

func (r *MongoTicketRepository) DeleteByUID(ctx context.Context, uid string) (int64, error) {
	result, err := r.coll.DeleteMany(ctx, bson.M{"uid": uid})
	if err != nil {
		return 0, fmt.Errorf("failed to delete tickets: %w", err)
	}
	return result.DeletedCount, nil
}

func (r *MongoTicketRepository) FindOldestOpponent(ctx context.Context, mode, excludeUID string) (*models.Ticket, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	t, err := r.findOne(ctx, bson.M{"mode": mode, "uid": bson.M{"$ne": excludeUID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find opponent: %w", err)
	}
	return t, nil
}

func (r *MongoTicketRepository) Oldest(ctx context.Context, limit int) ([]*models.Ticket, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []ticketDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode tickets: %w", err)
	}

	tickets := make([]*models.Ticket, 0, len(docs))
	for _, d := range docs {
		tickets = append(tickets, d.toModel())
	}
	return tickets, nil
}

func (r *MongoTicketRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.coll.DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff.UnixMilli()}})
	if err != nil {
		return 0, fmt.Errorf("failed to sweep tickets: %w", err)
	}
	return result.DeletedCount, nil
}

// MongoLobbyRepository MongoDB 로비 저장소
type MongoLobbyRepository struct {
	coll *mongo.Collection
}

func NewMongoLobbyRepository(db *mongo.Database) *MongoLobbyRepository {
	return &MongoLobbyRepository{coll: db.Collection(lobbyCollection)}
}

func (r *MongoLobbyRepository) Create(ctx context.Context, lobby *models.Lobby) (bool, error) {
	_, err := r.coll.InsertOne(ctx, lobbyDoc{
		ID:           lobby.ID,
		Mode:         lobby.Mode,
		Players:      lobby.Players,
		SkillAverage: lobby.SkillAverage,
		CreatedAt:    lobby.CreatedAt,
		State:        string(lobby.State),
	})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create lobby: %w", err)
	}
	return true, nil
}

func (r *MongoLobbyRepository) Get(ctx context.Context, id string) (*models.Lobby, error) {
	var doc lobbyDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lobby: %w", err)
	}

	return &models.Lobby{
		ID:           doc.ID,
		Mode:         doc.Mode,
		Players:      doc.Players,
		SkillAverage: doc.SkillAverage,
		CreatedAt:    doc.CreatedAt,
		State:        models.LobbyState(doc.State),
	}, nil
}

func (r *MongoLobbyRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.coll.DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff.UnixMilli()}})
	if err != nil {
		return 0, fmt.Errorf("failed to sweep lobbies: %w", err)
	}
	return result.DeletedCount, nil
}

// MongoUserRepository MongoDB 플레이어 저장소
type MongoUserRepository struct {
	coll *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{coll: db.Collection(userCollection)}
}

func (r *MongoUserRepository) Get(ctx context.Context, uid string) (*models.User, error) {
	var doc userDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": uid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return &models.User{
		UID:       doc.UID,
		Handle:    doc.Handle,
		LobbyID:   doc.LobbyID,
		InMatch:   doc.InMatch,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (r *MongoUserRepository) SetLobby(ctx context.Context, uid, lobbyID string) error {
	update := bson.M{"$set": bson.M{
		"lobbyId":   lobbyID,
		"inMatch":   true,
		"updatedAt": time.Now(),
	}}
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": uid}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to set user lobby: %w", err)
	}
	return nil
}

func (r *MongoUserRepository) ClearLobby(ctx context.Context, uid string) error {
	update := bson.M{"$set": bson.M{
		"lobbyId":   nil,
		"inMatch":   false,
		"updatedAt": time.Now(),
	}}
	if _, err := r.coll.UpdateOne(ctx, bson.M{"_id": uid}, update); err != nil {
		return fmt.Errorf("failed to clear user lobby: %w", err)
	}
	return nil
}
