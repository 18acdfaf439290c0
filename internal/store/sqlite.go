package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const (
	applicationID = 0x012F834B
	schemaVersion = 3
)

var tableNames = []string{
	"files", "pats", "pmts", "elem_streams", "lang_specs", "ttx_pages",
	"subtitles", "sdts", "services", "networks", "transport_streams",
	"ts_services", "vid_streams", "aud_streams",
}

const createSchemaSQL = `
CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	size INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS pats (
	id INTEGER PRIMARY KEY,
	file_rowid INTEGER NOT NULL REFERENCES files(id),
	tsid INTEGER NOT NULL,
	version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS pmts (
	id INTEGER PRIMARY KEY,
	pat_rowid INTEGER NOT NULL REFERENCES pats(id),
	program_number INTEGER NOT NULL,
	version INTEGER NOT NULL,
	pcr_pid INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS elem_streams (
	id INTEGER PRIMARY KEY,
	pmt_rowid INTEGER NOT NULL REFERENCES pmts(id),
	stream_type INTEGER NOT NULL,
	pid INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS lang_specs (
	id INTEGER PRIMARY KEY,
	elem_stream_rowid INTEGER NOT NULL REFERENCES elem_streams(id),
	language TEXT NOT NULL,
	audio_type INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS ttx_pages (
	id INTEGER PRIMARY KEY,
	elem_stream_rowid INTEGER NOT NULL REFERENCES elem_streams(id),
	language TEXT NOT NULL,
	teletext_type INTEGER NOT NULL,
	magazine_number INTEGER NOT NULL,
	page_number INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS subtitles (
	id INTEGER PRIMARY KEY,
	elem_stream_rowid INTEGER NOT NULL REFERENCES elem_streams(id),
	language TEXT NOT NULL,
	subtitling_type INTEGER NOT NULL,
	composition_page_id INTEGER NOT NULL,
	ancillary_page_id INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sdts (
	id INTEGER PRIMARY KEY,
	pat_rowid INTEGER NOT NULL REFERENCES pats(id),
	version INTEGER NOT NULL,
	onid INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS services (
	id INTEGER PRIMARY KEY,
	sdt_rowid INTEGER NOT NULL REFERENCES sdts(id),
	program_number INTEGER NOT NULL,
	running_status INTEGER NOT NULL,
	scrambled INTEGER NOT NULL,
	name TEXT,
	provider_name TEXT
);
CREATE TABLE IF NOT EXISTS networks (
	id INTEGER PRIMARY KEY,
	file_rowid INTEGER NOT NULL REFERENCES files(id),
	network_id INTEGER NOT NULL,
	name TEXT
);
CREATE TABLE IF NOT EXISTS transport_streams (
	id INTEGER PRIMARY KEY,
	network_rowid INTEGER NOT NULL REFERENCES networks(id),
	tsid INTEGER NOT NULL,
	onid INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS ts_services (
	id INTEGER PRIMARY KEY,
	ts_rowid INTEGER NOT NULL REFERENCES transport_streams(id),
	service_id INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS vid_streams (
	id INTEGER PRIMARY KEY,
	file_rowid INTEGER NOT NULL REFERENCES files(id),
	pid INTEGER NOT NULL,
	fmt TEXT,
	width INTEGER,
	height INTEGER,
	fps REAL,
	bitrate INTEGER
);
CREATE TABLE IF NOT EXISTS aud_streams (
	id INTEGER PRIMARY KEY,
	file_rowid INTEGER NOT NULL REFERENCES files(id),
	pid INTEGER NOT NULL,
	fmt TEXT,
	channels INTEGER,
	sample_rate INTEGER,
	bitrate INTEGER
);
`

// SQLiteSink is the concrete, file-backed Sink implementation.
type SQLiteSink struct {
	db *sql.DB
	tx *sql.Tx
}

var _ Sink = (*SQLiteSink)(nil)

// Open opens (creating if necessary) a SQLite-backed store at path.
func Open(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Close() error { return s.db.Close() }

// EnsureSchema implements the application_id / user_version contract:
// a brand new database is stamped with our application id and the current
// schema version. An existing database tagged with a foreign application
// id is rejected. An existing database tagged with our application id but
// a stale schema version has every known table dropped and recreated.
func (s *SQLiteSink) EnsureSchema(ctx context.Context) (SchemaResult, error) {
	appID, err := s.pragmaInt(ctx, "application_id")
	if err != nil {
		return 0, err
	}

	if appID == 0 {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA application_id = %d", applicationID)); err != nil {
			return 0, fmt.Errorf("store: set application_id: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return 0, fmt.Errorf("store: set user_version: %w", err)
		}
		if err := s.createTables(ctx); err != nil {
			return 0, err
		}
		return SchemaFresh, nil
	}

	if appID != applicationID {
		return SchemaMismatch, nil
	}

	version, err := s.pragmaInt(ctx, "user_version")
	if err != nil {
		return 0, err
	}
	if version != schemaVersion {
		if err := s.dropTables(ctx); err != nil {
			return 0, err
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return 0, fmt.Errorf("store: set user_version: %w", err)
		}
		if err := s.createTables(ctx); err != nil {
			return 0, err
		}
		return SchemaFresh, nil
	}

	if err := s.createTables(ctx); err != nil {
		return 0, err
	}
	return SchemaReused, nil
}

func (s *SQLiteSink) pragmaInt(ctx context.Context, name string) (int64, error) {
	var v int64
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("PRAGMA %s", name))
	if err := row.Scan(&v); err != nil {
		return 0, fmt.Errorf("store: read %s: %w", name, err)
	}
	return v, nil
}

func (s *SQLiteSink) createTables(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

func (s *SQLiteSink) dropTables(ctx context.Context) error {
	for _, name := range tableNames {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", name)); err != nil {
			return fmt.Errorf("store: drop %s: %w", name, err)
		}
	}
	return nil
}

func (s *SQLiteSink) Begin(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	s.tx = tx
	return nil
}

func (s *SQLiteSink) End(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func (s *SQLiteSink) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("store: rollback: %w", err)
	}
	return nil
}

// execer returns whatever the active transaction bracket is, falling back
// to the raw *sql.DB outside of a Begin/End pair.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteSink) execer() execer {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *SQLiteSink) insert(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.execer().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("store: insert: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteSink) HasFile(ctx context.Context, basename string, size int64) (bool, error) {
	var n int
	row := s.execer().QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE name = ? AND size = ?`, basename, size)
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("store: has_file: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteSink) InsertFile(ctx context.Context, basename string, size int64) (int64, error) {
	return s.insert(ctx, `INSERT INTO files (name, size) VALUES (?, ?)`, basename, size)
}

func (s *SQLiteSink) InsertPat(ctx context.Context, fileRowID int64, p Pat) (int64, error) {
	return s.insert(ctx, `INSERT INTO pats (file_rowid, tsid, version) VALUES (?, ?, ?)`,
		fileRowID, p.TSID, p.Version)
}

func (s *SQLiteSink) InsertPmt(ctx context.Context, patRowID int64, p Pmt) (int64, error) {
	return s.insert(ctx, `INSERT INTO pmts (pat_rowid, program_number, version, pcr_pid) VALUES (?, ?, ?, ?)`,
		patRowID, p.ProgramNumber, p.Version, p.PcrPID)
}

func (s *SQLiteSink) InsertElemStream(ctx context.Context, pmtRowID int64, e ElemStream) (int64, error) {
	return s.insert(ctx, `INSERT INTO elem_streams (pmt_rowid, stream_type, pid) VALUES (?, ?, ?)`,
		pmtRowID, e.StreamType, e.PID)
}

func (s *SQLiteSink) InsertLangSpec(ctx context.Context, elemStreamRowID int64, l LangSpec) (int64, error) {
	return s.insert(ctx, `INSERT INTO lang_specs (elem_stream_rowid, language, audio_type) VALUES (?, ?, ?)`,
		elemStreamRowID, l.Language, l.AudioType)
}

func (s *SQLiteSink) InsertTeletext(ctx context.Context, elemStreamRowID int64, t Teletext) (int64, error) {
	return s.insert(ctx, `INSERT INTO ttx_pages (elem_stream_rowid, language, teletext_type, magazine_number, page_number) VALUES (?, ?, ?, ?, ?)`,
		elemStreamRowID, t.Language, t.TeletextType, t.MagazineNumber, t.PageNumber)
}

func (s *SQLiteSink) InsertSubtitle(ctx context.Context, elemStreamRowID int64, sub Subtitle) (int64, error) {
	return s.insert(ctx, `INSERT INTO subtitles (elem_stream_rowid, language, subtitling_type, composition_page_id, ancillary_page_id) VALUES (?, ?, ?, ?, ?)`,
		elemStreamRowID, sub.Language, sub.SubtitlingType, sub.CompositionPageID, sub.AncillaryPageID)
}

func (s *SQLiteSink) InsertSdt(ctx context.Context, patRowID int64, sdt Sdt) (int64, error) {
	return s.insert(ctx, `INSERT INTO sdts (pat_rowid, version, onid) VALUES (?, ?, ?)`,
		patRowID, sdt.Version, sdt.OriginalNetworkID)
}

// nullableText binds an undecodable or absent text field as NULL rather
// than an empty string.
func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *SQLiteSink) InsertService(ctx context.Context, sdtRowID int64, svc Service) (int64, error) {
	scrambled := 0
	if svc.Scrambled {
		scrambled = 1
	}
	return s.insert(ctx, `INSERT INTO services (sdt_rowid, program_number, running_status, scrambled, name, provider_name) VALUES (?, ?, ?, ?, ?, ?)`,
		sdtRowID, svc.ProgramNumber, svc.RunningStatus, scrambled, nullableText(svc.Name), nullableText(svc.ProviderName))
}

func (s *SQLiteSink) InsertNetwork(ctx context.Context, fileRowID int64, n Network) (int64, error) {
	return s.insert(ctx, `INSERT INTO networks (file_rowid, network_id, name) VALUES (?, ?, ?)`,
		fileRowID, n.NetworkID, nullableText(n.Name))
}

func (s *SQLiteSink) InsertTS(ctx context.Context, networkRowID int64, t TransportStream) (int64, error) {
	return s.insert(ctx, `INSERT INTO transport_streams (network_rowid, tsid, onid) VALUES (?, ?, ?)`,
		networkRowID, t.TSID, t.NetworkID)
}

func (s *SQLiteSink) InsertTSService(ctx context.Context, tsRowID int64, serviceID uint16) (int64, error) {
	return s.insert(ctx, `INSERT INTO ts_services (ts_rowid, service_id) VALUES (?, ?)`, tsRowID, serviceID)
}

func (s *SQLiteSink) InsertVid(ctx context.Context, fileRowID int64, pid uint16, format string, width, height int, fps float64, bitrate int64) (int64, error) {
	return s.insert(ctx, `INSERT INTO vid_streams (file_rowid, pid, fmt, width, height, fps, bitrate) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fileRowID, pid, format, width, height, fps, bitrate)
}

func (s *SQLiteSink) InsertAud(ctx context.Context, fileRowID int64, pid uint16, format string, channels, sampleRate int, bitrate int64) (int64, error) {
	return s.insert(ctx, `INSERT INTO aud_streams (file_rowid, pid, fmt, channels, sample_rate, bitrate) VALUES (?, ?, ?, ?, ?, ?)`,
		fileRowID, pid, format, channels, sampleRate, bitrate)
}
