package datarecording

import (
	"database/sql"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sarchlab/simtrace/sim"
	"github.com/sarchlab/simtrace/tracing"
	"github.com/vmihailenco/msgpack/v5"
)

// A Run is one recorded trace session.
type Run struct {
	ID          string
	Destination string
	Started     time.Time
	Finished    time.Time
	Frames      int64
}

// Done tells if the run was closed properly.
func (r Run) Done() bool {
	return !r.Finished.IsZero()
}

// Reader reads runs back from a recording database.
type Reader struct {
	*sql.DB
}

// NewReader opens an existing recording database.
func NewReader(path string) (*Reader, error) {
	filename := dbFilename(path)

	if _, err := os.Stat(filename); err != nil {
		return nil, errors.Wrap(err, "open recording")
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, errors.Wrap(err, "open recording")
	}

	return &Reader{DB: db}, nil
}

// ListRuns returns the runs in the order they were started.
func (r *Reader) ListRuns() ([]Run, error) {
	rows, err := r.Query(
		`SELECT id, destination, started, finished, frames
		FROM runs ORDER BY started, id`)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		var (
			run               Run
			started, finished int64
		)

		err := rows.Scan(&run.ID, &run.Destination, &started, &finished,
			&run.Frames)
		if err != nil {
			return nil, errors.Wrap(err, "scan run")
		}

		run.Started = time.Unix(0, started)
		if finished != 0 {
			run.Finished = time.Unix(0, finished)
		}

		runs = append(runs, run)
	}

	return runs, errors.Wrap(rows.Err(), "list runs")
}

// Signals returns the signals recorded for a run.
func (r *Reader) Signals(runID string) ([]tracing.Signal, error) {
	rows, err := r.Query(
		`SELECT idx, scope, name, width FROM signals
		WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "list signals")
	}
	defer rows.Close()

	var signals []tracing.Signal

	for rows.Next() {
		var (
			s     tracing.Signal
			scope string
		)

		if err := rows.Scan(&s.Index, &scope, &s.Name, &s.Width); err != nil {
			return nil, errors.Wrap(err, "scan signal")
		}

		if scope != "" {
			s.Scope = strings.Split(scope, ".")
		}

		signals = append(signals, s)
	}

	return signals, errors.Wrap(rows.Err(), "list signals")
}

// Frames returns the frames recorded for a run, in the order they were
// written. A session only writes increasing timestamps, so this is also time
// order, including timestamps that do not fit a signed SQLite integer.
func (r *Reader) Frames(runID string) ([]tracing.Frame, error) {
	rows, err := r.Query(
		`SELECT time, snapshot FROM frames WHERE run_id = ? ORDER BY rowid`,
		runID)
	if err != nil {
		return nil, errors.Wrap(err, "list frames")
	}
	defer rows.Close()

	var frames []tracing.Frame

	for rows.Next() {
		var (
			t        int64
			snapshot []byte
			values   []uint64
		)

		if err := rows.Scan(&t, &snapshot); err != nil {
			return nil, errors.Wrap(err, "scan frame")
		}

		if err := msgpack.Unmarshal(snapshot, &values); err != nil {
			return nil, errors.Wrapf(err, "decode frame at %d", t)
		}

		frames = append(frames, tracing.Frame{
			Time:   sim.VTime(uint64(t)),
			Values: values,
		})
	}

	return frames, errors.Wrap(rows.Err(), "list frames")
}
