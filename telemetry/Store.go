// Package telemetry persists per-episode training statistics to a
// SQLite database so that runs can be compared and visualised later.
package telemetry

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS episodes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT    NOT NULL DEFAULT '',
	episode    INTEGER NOT NULL,
	reward     REAL    NOT NULL,
	cash       REAL    NOT NULL,
	value      REAL    NOT NULL,
	agent_name TEXT    NOT NULL,
	steps      INTEGER NOT NULL,
	y          BLOB,
	signals    BLOB,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_episodes_agent ON episodes (agent_name, episode);
`

// Episode is one row of the episodes table. Y and Signals are only
// recorded on snapshot episodes and are nil otherwise.
type Episode struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Episode   int       `json:"episode"`
	Reward    float64   `json:"reward"`
	Cash      float64   `json:"cash"`
	Value     float64   `json:"value"`
	AgentName string    `json:"agent_name"`
	Steps     int       `json:"steps"`
	Y         []float64 `json:"y,omitempty"`
	Signals   []float64 `json:"signals,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AgentSummary aggregates the stored episodes of one agent
type AgentSummary struct {
	Name        string  `json:"name"`
	Episodes    int     `json:"episodes"`
	LastEpisode int     `json:"last_episode"`
	BestReward  float64 `json:"best_reward"`
}

// Config holds database configuration
type Config struct {
	Path string
	Name string // Friendly name used in errors
}

// Store wraps the telemetry database connection
type Store struct {
	conn *sql.DB
	path string
	name string
}

// Open opens, and creates if needed, the database at c.Path. Paths
// beginning with "file:" are passed to the driver unchanged.
func Open(c Config) (*Store, error) {
	if c.Name == "" {
		c.Name = "telemetry"
	}

	connStr := c.Path
	if !strings.HasPrefix(c.Path, "file:") {
		absPath, err := filepath.Abs(c.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s: resolve path", c.Name)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, errors.Wrapf(err, "open %s: create directory", c.Name)
		}
		c.Path = absPath
		connStr = absPath + "?_pragma=journal_mode(WAL)" +
			"&_pragma=synchronous(NORMAL)" +
			"&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", c.Name)
	}

	// One connection serialises the runner's writes with readers in the
	// same process
	conn.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "open %s: ping", c.Name)
	}

	return &Store{conn: conn, path: c.Path, name: c.Name}, nil
}

// Migrate creates the episodes table if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return errors.Wrapf(err, "migrate %s", s.name)
	}
	return nil
}

// DeleteAgent removes every episode recorded for the named agent and
// returns the number of rows removed
func (s *Store) DeleteAgent(ctx context.Context, agentName string) (int64,
	error) {
	res, err := s.conn.ExecContext(ctx,
		"DELETE FROM episodes WHERE agent_name = ?", agentName)
	if err != nil {
		return 0, errors.Wrapf(err, "delete agent %q", agentName)
	}
	return res.RowsAffected()
}

// InsertEpisode appends one episode row and returns its id
func (s *Store) InsertEpisode(ctx context.Context, e Episode) (int64, error) {
	y, err := encode(e.Y)
	if err != nil {
		return 0, errors.Wrap(err, "insert episode: encode y")
	}
	signals, err := encode(e.Signals)
	if err != nil {
		return 0, errors.Wrap(err, "insert episode: encode signals")
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO episodes (run_id, episode, reward, cash, value,
			agent_name, steps, y, signals, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Episode, e.Reward, e.Cash, e.Value, e.AgentName,
		e.Steps, y, signals, createdAt.UnixMilli())
	if err != nil {
		return 0, errors.Wrapf(err, "insert episode %d", e.Episode)
	}
	return res.LastInsertId()
}

// Episodes returns the most recent limit episodes of an agent, newest
// first. A non-positive limit returns every episode.
func (s *Store) Episodes(ctx context.Context, agentName string,
	limit int) ([]Episode, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, run_id, episode, reward, cash, value, agent_name, steps,
			y, signals, created_at
		FROM episodes
		WHERE agent_name = ?
		ORDER BY episode DESC, id DESC
		LIMIT ?`, agentName, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "episodes of %q", agentName)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var (
			e          Episode
			y, signals []byte
			createdAt  int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Episode, &e.Reward, &e.Cash,
			&e.Value, &e.AgentName, &e.Steps, &y, &signals,
			&createdAt); err != nil {
			return nil, errors.Wrap(err, "episodes: scan")
		}
		if e.Y, err = decode(y); err != nil {
			return nil, errors.Wrapf(err, "episodes: decode y of %d", e.ID)
		}
		if e.Signals, err = decode(signals); err != nil {
			return nil, errors.Wrapf(err, "episodes: decode signals of %d",
				e.ID)
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		episodes = append(episodes, e)
	}
	return episodes, errors.Wrap(rows.Err(), "episodes")
}

// Agents summarises the episodes stored for every agent, ordered by
// agent name
func (s *Store) Agents(ctx context.Context) ([]AgentSummary, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT agent_name, COUNT(*), MAX(episode), MAX(reward)
		FROM episodes
		GROUP BY agent_name
		ORDER BY agent_name`)
	if err != nil {
		return nil, errors.Wrap(err, "agents")
	}
	defer rows.Close()

	var agents []AgentSummary
	for rows.Next() {
		var a AgentSummary
		if err := rows.Scan(&a.Name, &a.Episodes, &a.LastEpisode,
			&a.BestReward); err != nil {
			return nil, errors.Wrap(err, "agents: scan")
		}
		agents = append(agents, a)
	}
	return agents, errors.Wrap(rows.Err(), "agents")
}

// DB returns the underlying connection
func (s *Store) DB() *sql.DB {
	return s.conn
}

// Path returns the location of the database
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// encode msgpack encodes a series, storing NULL for nil series
func encode(series []float64) (interface{}, error) {
	if series == nil {
		return nil, nil
	}
	return msgpack.Marshal(series)
}

func decode(b []byte) ([]float64, error) {
	if b == nil {
		return nil, nil
	}
	var series []float64
	if err := msgpack.Unmarshal(b, &series); err != nil {
		return nil, err
	}
	return series, nil
}
