package shiftlog

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/account"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/atomicfile"
)

//Store is an append-only, account scoped log of shifts. Load returns records in the order they
//were appended and an empty slice for accounts that never logged anything.
type Store interface {
	Append(account string, record Record) error
	Load(account string) ([]Record, error)
}

//FileStore keeps one CSV table per account below the resolver's data directory
type FileStore struct {
	paths *account.Resolver
	locks *account.Locks
}

//NewFileStore creates a file backed store
func NewFileStore(resolver *account.Resolver, locks *account.Locks) *FileStore {
	return &FileStore{paths: resolver, locks: locks}
}

//Append validates the record and rewrites the account's table with the record added last
func (s *FileStore) Append(acct string, record Record) error {
	paths, err := s.paths.Resolve(acct)
	if err != nil {
		return err
	}

	if err := Validate(record); err != nil {
		return err
	}

	unlock := s.locks.Lock(paths.Log)
	defer unlock()

	records, err := readFile(paths.Log)
	if err != nil {
		return err
	}

	records = append(records, record)

	return atomicfile.Write(paths.Log, func(w io.Writer) error {
		return WriteCSV(w, records)
	})
}

//Load returns all records for the account
func (s *FileStore) Load(acct string) ([]Record, error) {
	paths, err := s.paths.Resolve(acct)
	if err != nil {
		return nil, err
	}

	return readFile(paths.Log)
}

func readFile(path string) ([]Record, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open shift log %s: %w", path, err)
	}
	defer file.Close()

	records, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("shift log %s: %w", path, err)
	}

	return records, nil
}
