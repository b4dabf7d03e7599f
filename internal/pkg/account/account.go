package account

import (
	"fmt"
	"path/filepath"
	"sync"
)

const maxAccountLength = 64

//InvalidAccountError is returned for identifiers that are unsafe to use as a storage namespace
type InvalidAccountError struct {
	Account string
	Reason  string
}

func (e *InvalidAccountError) Error() string {
	return fmt.Sprintf("invalid account %q: %s", e.Account, e.Reason)
}

//Validate checks that an account identifier can be embedded in a file name without escaping
//the data directory or colliding with another identifier
func Validate(account string) error {
	if account == "" {
		return &InvalidAccountError{Account: account, Reason: "empty identifier"}
	}

	if len(account) > maxAccountLength {
		return &InvalidAccountError{Account: account, Reason: fmt.Sprintf("longer than %d characters", maxAccountLength)}
	}

	for i, c := range account {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
			if i == 0 {
				return &InvalidAccountError{Account: account, Reason: "must start with a letter or digit"}
			}
		case c == '/' || c == '\\':
			return &InvalidAccountError{Account: account, Reason: "contains a path separator"}
		case c >= 'A' && c <= 'Z':
			// case-insensitive filesystems would fold Alice and alice together
			return &InvalidAccountError{Account: account, Reason: "contains upper-case letters"}
		default:
			return &InvalidAccountError{Account: account, Reason: fmt.Sprintf("contains forbidden character %q", c)}
		}
	}

	return nil
}

//Paths holds the storage locations owned by a single account
type Paths struct {
	Log   string
	Model string
}

//Resolver maps account identifiers onto files below a data directory
type Resolver struct {
	root string
}

//NewResolver creates a resolver rooted at the provided data directory
func NewResolver(dataDir string) *Resolver {
	return &Resolver{root: dataDir}
}

//Root returns the data directory this resolver places files in
func (r *Resolver) Root() string {
	return r.root
}

//Resolve returns the log and model locations for an account
func (r *Resolver) Resolve(account string) (Paths, error) {
	if err := Validate(account); err != nil {
		return Paths{}, err
	}

	return Paths{
		Log:   filepath.Join(r.root, account+"_earnings.csv"),
		Model: filepath.Join(r.root, account+"_predictor.model"),
	}, nil
}

//Locks hands out one mutex per key so that writers for the same account are serialized
//while writers for different accounts never wait on each other. Entries are never evicted;
//the map holds at most one log key and one training key per account seen.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

//NewLocks creates an empty lock registry
func NewLocks() *Locks {
	return &Locks{locks: map[string]*sync.Mutex{}}
}

//Lock blocks until the mutex for key is held and returns the function that releases it
func (l *Locks) Lock(key string) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
