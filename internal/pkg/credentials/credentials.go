package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/account"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/atomicfile"
)

//FileName is the name of the credential file inside the data directory
const FileName = "user_credentials.json"

var (
	//ErrAccountExists is returned when registering a taken username
	ErrAccountExists = errors.New("username already exists")
	//ErrUnknownAccount is returned when authenticating a username that was never registered
	ErrUnknownAccount = errors.New("username not found")
	//ErrWrongSecret is returned when the password does not match
	ErrWrongSecret = errors.New("incorrect password")
	//ErrEmptySecret is returned when registering without a password
	ErrEmptySecret = errors.New("password must not be empty")
)

//Store keeps bcrypt hashes keyed by username in a JSON file
type Store struct {
	mu   sync.Mutex
	path string
	cost int
}

//NewStore creates a credential store persisted at path
func NewStore(path string) *Store {
	return &Store{path: path, cost: bcrypt.DefaultCost}
}

//NewStoreWithCost is like NewStore but with a custom bcrypt cost
func NewStoreWithCost(path string, cost int) *Store {
	return &Store{path: path, cost: cost}
}

func (s *Store) load() (map[string]string, error) {
	credentials := map[string]string{}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return credentials, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials: %w", err)
	}

	if err := json.Unmarshal(data, &credentials); err != nil {
		return nil, fmt.Errorf("credentials file %s is corrupt: %w", s.path, err)
	}

	return credentials, nil
}

//Register creates a new account with the given password
func (s *Store) Register(username, password string) error {
	if err := account.Validate(username); err != nil {
		return err
	}
	if password == "" {
		return ErrEmptySecret
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	credentials, err := s.load()
	if err != nil {
		return err
	}

	if _, ok := credentials[username]; ok {
		return ErrAccountExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("unable to hash password: %w", err)
	}
	credentials[username] = string(hash)

	return atomicfile.Write(s.path, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(credentials)
	})
}

//Exists reports whether username has been registered
func (s *Store) Exists(username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	credentials, err := s.load()
	if err != nil {
		return false, err
	}

	_, ok := credentials[username]
	return ok, nil
}

//Authenticate checks the password for username
func (s *Store) Authenticate(username, password string) error {
	s.mu.Lock()
	credentials, err := s.load()
	s.mu.Unlock()

	if err != nil {
		return err
	}

	hash, ok := credentials[username]
	if !ok {
		return ErrUnknownAccount
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return ErrWrongSecret
	}

	return nil
}
