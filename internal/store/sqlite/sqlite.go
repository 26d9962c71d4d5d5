package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/izbachat/izba/internal/store"
	"github.com/mattn/go-sqlite3"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	name       TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rooms (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	visibility TEXT NOT NULL CHECK (visibility IN ('public', 'private')),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS room_members (
	room_id INTEGER NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	member  TEXT NOT NULL,
	PRIMARY KEY (room_id, member)
);

CREATE TABLE IF NOT EXISTS messages (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id   INTEGER NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	author    TEXT NOT NULL,
	content   TEXT NOT NULL,
	timestamp TEXT NOT NULL
);
`

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file (":memory:" works).
//
// Rooms are ephemeral: any rows left over from a previous run are wiped, so
// a restart looks like a fresh server to every client.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.reset(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("reset ephemeral state: %w", err)
	}

	return s, nil
}

// reset wipes all rows. Users go too: an active name is a liveness fact, not
// something to restore after a restart.
func (s *SQLiteStore) reset(ctx context.Context) error {
	for _, table := range []string{"messages", "room_members", "rooms", "users"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== Users ====

// CreateUser registers an active display name.
func (s *SQLiteStore) CreateUser(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (name) VALUES (?)`, name)
	if isUniqueViolation(err) {
		return store.ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UserExists reports whether name is currently claimed.
func (s *SQLiteStore) UserExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query user: %w", err)
	}
	return true, nil
}

// DeleteUser frees a display name.
func (s *SQLiteStore) DeleteUser(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

// ==== Rooms ====

// CreateRoom inserts a room. Name uniqueness is global across visibilities.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string, visibility store.Visibility) (*store.Room, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (name, visibility) VALUES (?, ?)`, name, string(visibility))
	if isUniqueViolation(err) {
		return nil, store.ErrRoomExists
	}
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}
	return s.GetRoom(ctx, name)
}

// GetRoom retrieves a room by name.
func (s *SQLiteStore) GetRoom(ctx context.Context, name string) (*store.Room, error) {
	var r store.Room
	var visibility string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, visibility, created_at FROM rooms WHERE name = ?`, name).
		Scan(&r.ID, &r.Name, &visibility, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query room: %w", err)
	}
	r.Visibility = store.Visibility(visibility)
	return &r, nil
}

// ListPublicRooms returns all public room names in creation order.
func (s *SQLiteStore) ListPublicRooms(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM rooms WHERE visibility = 'public' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query public rooms: %w", err)
	}
	defer rows.Close()
	return scanNames(rows)
}

// ListPrivateRooms returns names of private rooms the member belongs to.
func (s *SQLiteStore) ListPrivateRooms(ctx context.Context, member string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.name FROM rooms r
		JOIN room_members m ON m.room_id = r.id
		WHERE r.visibility = 'private' AND m.member = ?
		ORDER BY r.id`, member)
	if err != nil {
		return nil, fmt.Errorf("query private rooms: %w", err)
	}
	defer rows.Close()
	return scanNames(rows)
}

// ==== Membership ====

// AddMember adds member to a room's member set. Returns true if newly added.
func (s *SQLiteStore) AddMember(ctx context.Context, room, member string) (bool, error) {
	r, err := s.GetRoom(ctx, room)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO room_members (room_id, member) VALUES (?, ?)`, r.ID, member)
	if err != nil {
		return false, fmt.Errorf("insert member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// IsMember reports whether member is in the room's member set.
func (s *SQLiteStore) IsMember(ctx context.Context, room, member string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM room_members m
		JOIN rooms r ON r.id = m.room_id
		WHERE r.name = ? AND m.member = ?`, room, member).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query member: %w", err)
	}
	return true, nil
}

// ListMembers returns the room's members in join order.
func (s *SQLiteStore) ListMembers(ctx context.Context, room string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.member FROM room_members m
		JOIN rooms r ON r.id = m.room_id
		WHERE r.name = ?
		ORDER BY m.rowid`, room)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()
	return scanNames(rows)
}

// ==== Messages ====

// AppendMessage stores a message and trims the room history to limit entries.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg store.Message, limit int) error {
	r, err := s.GetRoom(ctx, msg.Room)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (room_id, author, content, timestamp) VALUES (?, ?, ?, ?)`,
		r.ID, msg.Author, msg.Content, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if limit > 0 {
		_, err = s.db.ExecContext(ctx, `
			DELETE FROM messages WHERE room_id = ? AND id NOT IN (
				SELECT id FROM messages WHERE room_id = ? ORDER BY id DESC LIMIT ?
			)`, r.ID, r.ID, limit)
		if err != nil {
			return fmt.Errorf("trim messages: %w", err)
		}
	}
	return nil
}

// ListMessages returns the room's history in insertion order.
func (s *SQLiteStore) ListMessages(ctx context.Context, room string) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, r.name, m.author, m.content, m.timestamp
		FROM messages m
		JOIN rooms r ON r.id = m.room_id
		WHERE r.name = ?
		ORDER BY m.id`, room)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]store.Message, 0)
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.Room, &m.Author, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func scanNames(rows *sql.Rows) ([]string, error) {
	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
