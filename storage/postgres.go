package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gennia/domain/room"
)

// BotPrefix marks usernames that are registered on first connect.
const BotPrefix = "[Bot]"

const botEmail = "bot@gennia.online"

// Resolution is the outcome of resolving a connecting player.
type Resolution struct {
	Identity room.Identity
	// Registered is set when the player was created during this call.
	Registered bool
}

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(ctx context.Context, connString string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedDatabase, err)
	}
	return &PostgresRepo{pool: pool}, nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

// Resolve checks that playerID belongs to username. Unknown bots are
// registered on the spot; unknown humans are rejected.
func (r *PostgresRepo) Resolve(ctx context.Context, username, playerID string) (Resolution, error) {
	var stored string
	err := r.pool.QueryRow(ctx, "SELECT username FROM players WHERE id = $1", playerID).Scan(&stored)
	switch {
	case err == nil:
		if stored != username {
			return Resolution{}, ErrUsernameMismatch
		}
		return Resolution{Identity: room.Identity{PlayerID: playerID, Username: username}}, nil
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return Resolution{}, wrapDBError(err)
	}

	if !strings.HasPrefix(username, BotPrefix) {
		return Resolution{}, ErrPlayerNotRegistered
	}
	id, err := r.RegisterPlayer(ctx, username, botEmail)
	if err != nil {
		return Resolution{}, err
	}
	slog.Info("bot registered", "player", id, "username", username)
	return Resolution{Identity: room.Identity{PlayerID: id, Username: username}, Registered: true}, nil
}

func (r *PostgresRepo) RegisterPlayer(ctx context.Context, username, email string) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, "INSERT INTO players(username, email) VALUES($1, $2) RETURNING id", username, email).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 is unique_violation
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", ErrDuplicateUsername
		}
		return "", wrapDBError(err)
	}
	return id, nil
}

// LookupMap returns the metadata of a custom map, or room.ErrMapNotFound.
func (r *PostgresRepo) LookupMap(ctx context.Context, mapID string) (room.MapInfo, error) {
	if _, err := uuid.Parse(mapID); err != nil {
		return room.MapInfo{}, room.ErrMapNotFound
	}
	info := room.MapInfo{ID: mapID}
	err := r.pool.QueryRow(ctx, "SELECT name FROM custom_maps WHERE id = $1", mapID).Scan(&info.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return room.MapInfo{}, room.ErrMapNotFound
		}
		return room.MapInfo{}, wrapDBError(err)
	}
	return info, nil
}

// MapDetails is the public view of a stored custom map.
type MapDetails struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatorID *string   `json:"creator_id"`
	Views     int       `json:"views"`
	CreatedAt time.Time `json:"created_at"`
}

// ViewMap counts one view of a custom map and returns its details.
func (r *PostgresRepo) ViewMap(ctx context.Context, mapID string) (MapDetails, error) {
	if _, err := uuid.Parse(mapID); err != nil {
		return MapDetails{}, room.ErrMapNotFound
	}
	var d MapDetails
	err := r.pool.QueryRow(ctx,
		"UPDATE custom_maps SET views = views + 1 WHERE id = $1 RETURNING id, name, width, height, creator_id, views, created_at",
		mapID,
	).Scan(&d.ID, &d.Name, &d.Width, &d.Height, &d.CreatorID, &d.Views, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MapDetails{}, room.ErrMapNotFound
		}
		return MapDetails{}, wrapDBError(err)
	}
	return d, nil
}

// CreateMap stores the metadata of a custom map and returns its id.
func (r *PostgresRepo) CreateMap(ctx context.Context, name string, width, height int, creatorID string) (string, error) {
	var creator *string
	if creatorID != "" {
		creator = &creatorID
	}
	var id string
	err := r.pool.QueryRow(ctx,
		"INSERT INTO custom_maps(name, width, height, creator_id) VALUES($1, $2, $3, $4) RETURNING id",
		name, width, height, creator,
	).Scan(&id)
	if err != nil {
		return "", wrapDBError(err)
	}
	return id, nil
}

func wrapDBError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnexpectedDatabase, err)
}
