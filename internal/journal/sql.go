package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/petrijr/wireflow/pkg/api"
)

// Dialect selects the SQL flavour of a SQLStore.
type Dialect int

const (
	// SQLite expects a database/sql handle using modernc.org/sqlite.
	SQLite Dialect = iota
	// Postgres expects a database/sql handle using github.com/jackc/pgx/v5/stdlib.
	Postgres
)

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case Postgres:
		return "postgres"
	default:
		return "dialect(" + strconv.Itoa(int(d)) + ")"
	}
}

// SQLStore stores events in a runtime_events table.
//
// The caller is responsible for importing the driver for its side effects
// and opening the handle; Open does both for the configured drivers.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates the schema if needed and returns a store.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("journal %s schema: %w", dialect, err)
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	var stmts []string
	switch s.dialect {
	case SQLite:
		stmts = []string{`
			CREATE TABLE IF NOT EXISTS runtime_events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL,
				at INTEGER NOT NULL,
				type TEXT NOT NULL,
				flow_id TEXT NOT NULL DEFAULT '',
				node_id TEXT NOT NULL DEFAULT '',
				node_type TEXT NOT NULL DEFAULT '',
				detail TEXT NOT NULL DEFAULT ''
			)`,
		}
	case Postgres:
		stmts = []string{`
			CREATE TABLE IF NOT EXISTS runtime_events (
				id BIGSERIAL PRIMARY KEY,
				run_id TEXT NOT NULL,
				at BIGINT NOT NULL,
				type TEXT NOT NULL,
				flow_id TEXT NOT NULL DEFAULT '',
				node_id TEXT NOT NULL DEFAULT '',
				node_type TEXT NOT NULL DEFAULT '',
				detail TEXT NOT NULL DEFAULT ''
			)`,
		}
	default:
		return fmt.Errorf("%w: journal dialect %s", api.ErrNotSupported, s.dialect)
	}
	stmts = append(stmts, `CREATE INDEX IF NOT EXISTS idx_runtime_events_run ON runtime_events(run_id, id)`)

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders for the dialect.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Append(ctx context.Context, ev api.RuntimeEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO runtime_events (run_id, at, type, flow_id, node_id, node_type, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		ev.RunID,
		at.UnixNano(),
		string(ev.Type),
		idText(ev.FlowID),
		idText(ev.NodeID),
		ev.NodeType,
		ev.Detail,
	)
	return err
}

func (s *SQLStore) List(ctx context.Context, runID string) ([]api.RuntimeEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT run_id, at, type, flow_id, node_id, node_type, detail
		FROM runtime_events
		WHERE run_id = ?
		ORDER BY id ASC`), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.RuntimeEvent
	for rows.Next() {
		var (
			ev             api.RuntimeEvent
			atN            int64
			typ            string
			flowID, nodeID string
		)
		if err := rows.Scan(&ev.RunID, &atN, &typ, &flowID, &nodeID, &ev.NodeType, &ev.Detail); err != nil {
			return nil, err
		}
		ev.At = time.Unix(0, atN)
		ev.Type = api.EventType(typ)
		if ev.FlowID, err = parseIDText(flowID); err != nil {
			return nil, err
		}
		if ev.NodeID, err = parseIDText(nodeID); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// idText renders a zero id as the empty string so that flow events have no
// node column.
func idText(id api.ElementID) string {
	if id.IsZero() {
		return ""
	}
	return id.String()
}

func parseIDText(s string) (api.ElementID, error) {
	if s == "" {
		return 0, nil
	}
	return api.ParseElementID(s)
}
