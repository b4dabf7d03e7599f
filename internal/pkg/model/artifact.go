package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/account"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/atomicfile"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/features"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/forest"
)

//Format tags persisted artifacts so that foreign files are rejected on load
const Format = "shiftadvisor/bagged-regression-trees"

//ErrSchemaMismatch is returned when a persisted model was trained on a different feature layout
var ErrSchemaMismatch = errors.New("model was trained on a different feature schema")

//NoModelError is returned when an account has not been trained yet
type NoModelError struct {
	Account string
}

func (e *NoModelError) Error() string {
	return fmt.Sprintf("no trained model for account %s", e.Account)
}

//Artifact is a trained regressor bound to one account and the schema it was trained against
type Artifact struct {
	Format           string          `json:"format"`
	Schema           features.Schema `json:"schema"`
	Account          string          `json:"account"`
	RecordCount      int             `json:"record_count"`
	TrafficThreshold float64         `json:"traffic_threshold"`
	TrainedAt        time.Time       `json:"trained_at"`
	Forest           *forest.Forest  `json:"forest"`
}

//Predict returns the expected earnings for a feature vector
func (a *Artifact) Predict(v features.Vector) float64 {
	return a.Forest.Predict(v.Floats())
}

//Encoder returns an encoder using the threshold the model was trained with
func (a *Artifact) Encoder() features.Encoder {
	return features.NewEncoder(a.TrafficThreshold)
}

//Store persists one artifact per account
type Store struct {
	paths *account.Resolver
}

//NewStore creates an artifact store below the resolver's data directory
func NewStore(resolver *account.Resolver) *Store {
	return &Store{paths: resolver}
}

//Save replaces the account's artifact. Readers observe either the previous or the new model.
func (s *Store) Save(acct string, a *Artifact) error {
	paths, err := s.paths.Resolve(acct)
	if err != nil {
		return err
	}

	return atomicfile.Write(paths.Model, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(a)
	})
}

//Load reads the account's artifact in a single pass and verifies its schema
func (s *Store) Load(acct string) (*Artifact, error) {
	paths, err := s.paths.Resolve(acct)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(paths.Model)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NoModelError{Account: acct}
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read model %s: %w", paths.Model, err)
	}

	a := &Artifact{}
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("model %s is corrupt: %w", paths.Model, err)
	}

	if a.Format != Format {
		return nil, fmt.Errorf("model %s has unsupported format %q", paths.Model, a.Format)
	}
	if !a.Schema.Equal(features.CurrentSchema) {
		return nil, fmt.Errorf("model %s: %w", paths.Model, ErrSchemaMismatch)
	}
	if a.Account != acct {
		return nil, fmt.Errorf("model %s belongs to account %q", paths.Model, a.Account)
	}
	if a.Forest == nil || a.Forest.Width != features.Width {
		return nil, fmt.Errorf("model %s: %w", paths.Model, ErrSchemaMismatch)
	}
	if err := a.Forest.Check(); err != nil {
		return nil, fmt.Errorf("model %s is corrupt: %w", paths.Model, err)
	}

	return a, nil
}
