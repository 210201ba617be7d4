package videostorage

import (
	"bytes"
	"database/sql"

	"github.com/tauraamui/dragondelay/pkg/video/videoframe"
	"github.com/tauraamui/xerror"

	_ "github.com/mattn/go-sqlite3"
)

type Storage interface {
	SaveFrames(time int64, frames []videoframe.NoCloser) error
	Count() (int, error)
	Close() error
}

func NewStorage(path string) (Storage, error) {
	return newSQLite3Storage(path)
}

const SQLITE_INMEM_FILE_PATH = "file::memory:?cache=shared"

var frameDelimiter = []byte{0x34, 0xE7}

type sqlite3Storage struct {
	db *sql.DB
}

func newSQLite3Storage(path string) (*sqlite3Storage, error) {
	if len(path) == 0 {
		path = SQLITE_INMEM_FILE_PATH
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, xerror.Errorf("unable to open frame archive %s: %w", path, err)
	}

	s := sqlite3Storage{db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, xerror.Errorf("unable to prepare frame archive %s: %w", path, err)
	}

	return &s, nil
}

func (s *sqlite3Storage) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS autoinc(num INTEGER);
		INSERT INTO autoinc(num) SELECT 0 WHERE NOT EXISTS (SELECT 1 FROM autoinc);
		CREATE TABLE IF NOT EXISTS data(dt INTEGER, id INTEGER, data BLOB, PRIMARY KEY(dt, id)) WITHOUT ROWID;
		CREATE TRIGGER IF NOT EXISTS insert_trigger BEFORE INSERT ON data BEGIN UPDATE autoinc SET num=num+1; END;
	`)

	return err
}

// SaveFrames stores frames as one delimited blob keyed by time.
func (s *sqlite3Storage) SaveFrames(time int64, frames []videoframe.NoCloser) error {
	if len(frames) == 0 {
		return nil
	}

	blob, err := convertFramesToBlob(frames)
	if err != nil {
		return err
	}

	_, err = s.db.Exec("INSERT INTO data(dt, id, data) VALUES (?, (SELECT num FROM autoinc), ?);", time, blob)
	if err != nil {
		return xerror.Errorf("unable to save %d frames: %w", len(frames), err)
	}

	return nil
}

func (s *sqlite3Storage) Count() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM data;").Scan(&count); err != nil {
		return 0, xerror.Errorf("unable to count archived batches: %w", err)
	}
	return count, nil
}

func (s *sqlite3Storage) Close() error {
	return s.db.Close()
}

func convertFramesToBlob(frames []videoframe.NoCloser) ([]byte, error) {
	buff := bytes.Buffer{}
	framesCount := len(frames)
	for i := 0; i < framesCount; i++ {
		fb := frames[i].ToBytes()
		wc, err := buff.Write(fb)
		if err != nil {
			return nil, xerror.Errorf("unable to buffer frame bytes: %w", err)
		}

		if fc := len(fb); fc != wc {
			return nil, xerror.Errorf("writing all of the bytes from frames failed, wrote: %d out of %d", wc, fc)
		}

		if i+1 < framesCount {
			buff.Write(frameDelimiter)
		}
	}
	return buff.Bytes(), nil
}
