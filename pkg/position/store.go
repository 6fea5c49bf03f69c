package position

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Record is the persisted state of one device.
type Record struct {
	HeightSteps int64 `json:"height_steps"`
}

// StorageError is returned when the state file cannot be written. The
// in-memory position stays authoritative, but it will not survive a restart.
type StorageError struct {
	Path string
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("position store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Store maps device names to their last known height on disk. Several
// devices may share one Store; every Save re-reads the file and only
// replaces its own entry. There is no locking across processes.
type Store struct {
	mu       *sync.Mutex
	filepath string
}

func NewStore(path string) *Store {
	return &Store{
		mu:       &sync.Mutex{},
		filepath: path,
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.filepath
}

// Load returns the persisted height of name. A missing, empty or malformed
// file and an unknown name all read as 0.
func (s *Store) Load(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"path":   s.filepath,
			"device": name,
		}).Warnf("failed to read position state, assuming 0: %v", err)
		return 0
	}

	return records[name].HeightSteps
}

// Save persists the height of name, keeping all other entries intact.
func (s *Store) Save(name string, heightSteps int64) error {
	if heightSteps < 0 {
		return &StorageError{
			Path: s.filepath,
			Op:   "save",
			Err:  pkgerrors.Errorf("height of %s must not be negative, got %d", name, heightSteps),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		// An unreadable file is replaced rather than blocking every future save.
		logrus.WithField("path", s.filepath).Warnf("discarding unreadable position state: %v", err)
		records = map[string]Record{}
	}
	records[name] = Record{HeightSteps: heightSteps}

	if err := s.write(records); err != nil {
		return &StorageError{Path: s.filepath, Op: "save", Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"device":      name,
		"heightSteps": heightSteps,
	}).Trace("position saved")

	return nil
}

// Snapshot returns every persisted record.
func (s *Store) Snapshot() (map[string]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return nil, &StorageError{Path: s.filepath, Op: "read", Err: err}
	}
	return records, nil
}

// read returns an empty map for a missing or blank file.
func (s *Store) read() (map[string]Record, error) {
	records := map[string]Record{}

	fp, err := os.Open(s.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return records, nil
		}
		return records, pkgerrors.Wrapf(err, "failed to open file %s", s.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", s.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return records, pkgerrors.Wrapf(err, "failed to read file %s", s.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		return records, nil
	}

	err = json.Unmarshal(b, &records)
	if err != nil {
		return map[string]Record{}, pkgerrors.Wrapf(err, "failed to unmarshal positions from file %s", s.filepath)
	}
	if records == nil {
		// the file contained a JSON null
		records = map[string]Record{}
	}

	return records, nil
}

// write replaces the state file through a temporary file in the same
// directory, so a crash mid-write leaves the previous state intact.
func (s *Store) write(records map[string]Record) (err error) {
	dir := filepath.Dir(s.filepath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create directory %s", dir)
	}

	fp, err := os.CreateTemp(dir, "."+filepath.Base(s.filepath)+".tmp-*")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to create temporary file in %s", dir)
	}
	tmp := fp.Name()
	defer func() {
		if err == nil {
			return
		}
		if cerr := fp.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
			logrus.Warnf("failed to close file %s: %v", tmp, cerr)
		}
		if rerr := os.Remove(tmp); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			logrus.Warnf("failed to remove temporary file %s: %v", tmp, rerr)
		}
	}()

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	if err = enc.Encode(records); err != nil {
		return pkgerrors.Wrapf(err, "failed to encode positions to file %s", tmp)
	}
	if err = fp.Sync(); err != nil {
		return pkgerrors.Wrapf(err, "failed to sync file %s", tmp)
	}
	if err = fp.Close(); err != nil {
		return pkgerrors.Wrapf(err, "failed to close file %s", tmp)
	}
	// CreateTemp uses 0600.
	if err = os.Chmod(tmp, 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to chmod file %s", tmp)
	}
	if err = os.Rename(tmp, s.filepath); err != nil {
		return pkgerrors.Wrapf(err, "failed to replace file %s", s.filepath)
	}

	return nil
}
