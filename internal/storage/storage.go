package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Sentinel errors returned by store operations. The HTTP boundary maps these
// to status codes; everything else is treated as a storage failure.
var (
	ErrEndpointNotFound = errors.New("endpoint not found")
	ErrUserNotFound     = errors.New("user not found")
)

// timeLayout is a fixed-width UTC format so that string comparison in SQL
// matches chronological order. Trimmed fractional-second formats (RFC3339Nano)
// do not sort correctly and the viewer depends on exact received_at ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store persists endpoints and their captured requests in SQLite.
//
// The database handle is deliberately restricted to a single connection:
// all reads and writes serialize through it. That is an explicit, documented
// constraint at this tool's scale, not an accident to be parallelized away.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database under dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "hookscope.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single shared connection; see the Store doc comment.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS endpoints (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS captured_requests (
		id TEXT PRIMARY KEY,
		endpoint_id TEXT NOT NULL,
		method TEXT NOT NULL,
		headers TEXT NOT NULL,
		body TEXT NOT NULL,
		received_at TEXT NOT NULL,
		FOREIGN KEY (endpoint_id) REFERENCES endpoints(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_endpoints_user ON endpoints(user_id);
	CREATE INDEX IF NOT EXISTS idx_requests_endpoint ON captured_requests(endpoint_id);
	CREATE INDEX IF NOT EXISTS idx_requests_received ON captured_requests(received_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Endpoint is a generated, owned address that external senders deliver to.
// The capture URL is derived from configuration at the HTTP boundary and is
// never stored.
type Endpoint struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CapturedRequest is an immutable record of one inbound call to an endpoint.
// Headers is a JSON object mapping header name to a single string value.
type CapturedRequest struct {
	ID         string    `json:"id"`
	EndpointID string    `json:"endpoint_id"`
	Method     string    `json:"method"`
	Headers    string    `json:"headers"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// User is an authenticated owner of endpoints.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateEndpoint generates a fresh id, stamps the creation time and persists
// the endpoint. userID may be empty in anonymous deployments.
func (s *Store) CreateEndpoint(ctx context.Context, userID, name string) (*Endpoint, error) {
	endpoint := &Endpoint{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO endpoints (id, user_id, name, created_at)
		VALUES (?, ?, ?, ?)`,
		endpoint.ID, endpoint.UserID, endpoint.Name, endpoint.CreatedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to insert endpoint: %w", err)
	}

	return endpoint, nil
}

// GetEndpoint fetches an endpoint scoped to its owner. An empty userID scopes
// by id alone (anonymous deployments). Returns ErrEndpointNotFound when no
// endpoint matches within the caller's scope.
func (s *Store) GetEndpoint(ctx context.Context, userID, id string) (*Endpoint, error) {
	query := `SELECT id, user_id, name, created_at FROM endpoints WHERE id = ?`
	args := []any{id}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	var endpoint Endpoint
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&endpoint.ID, &endpoint.UserID, &endpoint.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrEndpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query endpoint: %w", err)
	}

	if endpoint.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return &endpoint, nil
}

// ListEndpoints returns the caller's endpoints, most recently created first.
func (s *Store) ListEndpoints(ctx context.Context, userID string) ([]Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, created_at FROM endpoints
		WHERE user_id = ?
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query endpoints: %w", err)
	}
	defer rows.Close()

	endpoints := make([]Endpoint, 0)
	for rows.Next() {
		var endpoint Endpoint
		var createdAt string
		if err := rows.Scan(&endpoint.ID, &endpoint.UserID, &endpoint.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan endpoint: %w", err)
		}
		if endpoint.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		endpoints = append(endpoints, endpoint)
	}

	return endpoints, rows.Err()
}

// DeleteEndpoint removes an endpoint within the caller's scope. The schema's
// cascade rule removes all dependent captured requests atomically with it.
func (s *Store) DeleteEndpoint(ctx context.Context, userID, id string) error {
	query := `DELETE FROM endpoints WHERE id = ?`
	args := []any{id}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete endpoint: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

// InsertCapturedRequest records one inbound request against an endpoint.
// The endpoint's existence is verified at capture time; a missing endpoint
// yields ErrEndpointNotFound and no row is written.
func (s *Store) InsertCapturedRequest(ctx context.Context, endpointID, method, headersJSON, body string) (*CapturedRequest, error) {
	var exists string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM endpoints WHERE id = ?`, endpointID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrEndpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify endpoint: %w", err)
	}

	request := &CapturedRequest{
		ID:         uuid.NewString(),
		EndpointID: endpointID,
		Method:     method,
		Headers:    headersJSON,
		Body:       body,
		ReceivedAt: time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO captured_requests (id, endpoint_id, method, headers, body, received_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		request.ID, request.EndpointID, request.Method, request.Headers,
		request.Body, request.ReceivedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to insert captured request: %w", err)
	}

	return request, nil
}

// ListCapturedRequests returns all requests captured against an endpoint,
// most recent first. The ordering is exact; the viewer depends on it.
func (s *Store) ListCapturedRequests(ctx context.Context, endpointID string) ([]CapturedRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, endpoint_id, method, headers, body, received_at
		FROM captured_requests
		WHERE endpoint_id = ?
		ORDER BY received_at DESC`, endpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to query captured requests: %w", err)
	}
	defer rows.Close()

	requests := make([]CapturedRequest, 0)
	for rows.Next() {
		var request CapturedRequest
		var receivedAt string
		if err := rows.Scan(&request.ID, &request.EndpointID, &request.Method,
			&request.Headers, &request.Body, &receivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan captured request: %w", err)
		}
		if request.ReceivedAt, err = time.Parse(timeLayout, receivedAt); err != nil {
			return nil, fmt.Errorf("failed to parse received_at: %w", err)
		}
		requests = append(requests, request)
	}

	return requests, rows.Err()
}

// CreateUser persists a new user record.
func (s *Store) CreateUser(ctx context.Context, email, firstName, lastName string) (*User, error) {
	user := &User{
		ID:        uuid.NewString(),
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.FirstName, user.LastName, user.CreatedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return user, nil
}

// GetUserByEmail finds a user by email, returning ErrUserNotFound if absent.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name, created_at
		FROM users WHERE email = ?`, email).Scan(
		&user.ID, &user.Email, &user.FirstName, &user.LastName, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if user.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return &user, nil
}
