// Package datarecording stores traces in SQLite databases so that runs can be
// queried after the simulation.
package datarecording

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/sarchlab/simtrace/tracing"
	"github.com/tebeka/atexit"
	"github.com/vmihailenco/msgpack/v5"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	destination TEXT,
	started     INTEGER,
	finished    INTEGER,
	frames      INTEGER
);
CREATE TABLE IF NOT EXISTS signals (
	run_id TEXT,
	idx    INTEGER,
	scope  TEXT,
	name   TEXT,
	width  INTEGER
);
CREATE TABLE IF NOT EXISTS frames (
	run_id   TEXT,
	time     INTEGER,
	snapshot BLOB
);
`

type frameEntry struct {
	time     uint64
	snapshot []byte
}

// Recorder is a tracing.Sink that writes every frame into a SQLite database.
// Frames are buffered and written in batches.
type Recorder struct {
	*sql.DB

	dbName     string
	batchSize  int
	runID      string
	pending    []frameEntry
	frameCount int64
	open       bool
}

// NewRecorder creates a recorder that writes into path. The ".sqlite3"
// extension is added when missing. An empty path generates a unique name.
func NewRecorder(path string) *Recorder {
	r := &Recorder{
		dbName:    path,
		batchSize: 100000,
	}

	atexit.Register(func() { _ = r.Flush() })

	return r
}

// WithBatchSize sets how many frames are buffered before they are written.
func (r *Recorder) WithBatchSize(n int) *Recorder {
	if n < 1 {
		n = 1
	}

	r.batchSize = n

	return r
}

// Filename returns the database file the recorder writes to.
func (r *Recorder) Filename() string {
	return dbFilename(r.dbName)
}

// RunID returns the ID of the run being recorded.
func (r *Recorder) RunID() string {
	return r.runID
}

func dbFilename(name string) string {
	if strings.HasSuffix(name, ".sqlite3") {
		return name
	}

	return name + ".sqlite3"
}

// Open establishes a connection to the database and registers the run and its
// signals. The session ID is used as the run ID.
func (r *Recorder) Open(h tracing.Header) error {
	if r.open {
		return errors.New("recorder already open")
	}

	if r.dbName == "" {
		r.dbName = "simtrace_record_" + xid.New().String()
	}

	r.runID = h.SessionID
	if r.runID == "" {
		r.runID = xid.New().String()
	}

	db, err := sql.Open("sqlite3", r.Filename())
	if err != nil {
		return errors.Wrap(err, "open recording database")
	}

	r.DB = db

	err = r.registerRun(h)
	if err != nil {
		_ = db.Close()
		return err
	}

	fmt.Fprintf(os.Stderr, "Database created for recording: %s\n",
		r.Filename())

	r.open = true
	r.frameCount = 0

	return nil
}

func (r *Recorder) registerRun(h tracing.Header) error {
	if _, err := r.Exec(schema); err != nil {
		return errors.Wrap(err, "create recording tables")
	}

	tx, err := r.Begin()
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	_, err = tx.Exec(
		`INSERT INTO runs (id, destination, started, finished, frames)
		VALUES (?, ?, ?, 0, 0)`,
		r.runID, h.Path, time.Now().UnixNano())
	if err != nil {
		_ = tx.Rollback()
		return errors.Wrapf(err, "register run %s", r.runID)
	}

	for _, s := range h.Signals {
		_, err = tx.Exec(
			`INSERT INTO signals (run_id, idx, scope, name, width)
			VALUES (?, ?, ?, ?, ?)`,
			r.runID, s.Index, strings.Join(s.Scope, "."), s.Name, s.Width)
		if err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "register signal %s", s.FullName())
		}
	}

	return errors.Wrap(tx.Commit(), "commit run")
}

// WriteFrame buffers a frame. The values are copied.
func (r *Recorder) WriteFrame(f tracing.Frame) error {
	if !r.open {
		return errors.New("recorder is not open")
	}

	snapshot, err := msgpack.Marshal(f.Values)
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}

	r.pending = append(r.pending, frameEntry{
		time:     uint64(f.Time),
		snapshot: snapshot,
	})
	r.frameCount++

	if len(r.pending) >= r.batchSize {
		return r.Flush()
	}

	return nil
}

// Flush writes all the buffered frames into the database.
func (r *Recorder) Flush() error {
	if !r.open || len(r.pending) == 0 {
		return nil
	}

	tx, err := r.Begin()
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	stmt, err := tx.Prepare(
		"INSERT INTO frames (run_id, time, snapshot) VALUES (?, ?, ?)")
	if err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "prepare frame insert")
	}

	for _, e := range r.pending {
		// SQLite integers are signed. The bit pattern is kept and converted
		// back by the reader; frames are ordered by rowid, not by time.
		_, err = stmt.Exec(r.runID, int64(e.time), e.snapshot)
		if err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()

			return errors.Wrapf(err, "insert frame at %d", e.time)
		}
	}

	_ = stmt.Close()

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit frames")
	}

	r.pending = nil

	return nil
}

// Close flushes the remaining frames, marks the run as finished and closes
// the database.
func (r *Recorder) Close() error {
	if !r.open {
		return errors.New("recorder is not open")
	}

	err := r.Flush()
	if err == nil {
		_, err = r.Exec(
			"UPDATE runs SET finished = ?, frames = ? WHERE id = ?",
			time.Now().UnixNano(), r.frameCount, r.runID)
		err = errors.Wrap(err, "finish run")
	}

	r.open = false
	closeErr := r.DB.Close()

	if err != nil {
		return err
	}

	return errors.Wrap(closeErr, "close recording database")
}

// Discard drops the buffered frames, deletes the run from the database and
// closes it.
func (r *Recorder) Discard() error {
	if !r.open {
		return errors.New("recorder is not open")
	}

	r.pending = nil
	r.open = false

	var errs []error

	for _, q := range []string{
		"DELETE FROM frames WHERE run_id = ?",
		"DELETE FROM signals WHERE run_id = ?",
		"DELETE FROM runs WHERE id = ?",
	} {
		if _, err := r.Exec(q, r.runID); err != nil {
			errs = append(errs, errors.Wrapf(err, "discard run %s", r.runID))
		}
	}

	if err := r.DB.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "close recording database"))
	}

	return stderrors.Join(errs...)
}
