package model

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/account"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/features"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/forest"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/shiftlog"
)

//DefaultMinTrainingRecords is the smallest log a model will be fitted on
const DefaultMinTrainingRecords = 10

//InsufficientDataError is returned when an account has logged too few shifts to train on
type InsufficientDataError struct {
	Count    int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("not enough shifts to train a model: have %d, need %d", e.Count, e.Required)
}

//Outcome describes a successful training run
type Outcome struct {
	Account     string
	RecordCount int
	TrainedAt   time.Time
}

//Trainer fits and persists per account models
type Trainer struct {
	logs       shiftlog.Store
	models     *Store
	locks      *account.Locks
	encoder    features.Encoder
	minRecords int
	params     forest.Params
	now        func() time.Time
}

//NewTrainer wires a trainer over a shift log and an artifact store
func NewTrainer(logs shiftlog.Store, models *Store, locks *account.Locks, encoder features.Encoder, minRecords int, params forest.Params) *Trainer {
	if minRecords < 1 {
		minRecords = DefaultMinTrainingRecords
	}

	return &Trainer{
		logs:       logs,
		models:     models,
		locks:      locks,
		encoder:    encoder,
		minRecords: minRecords,
		params:     params,
		now:        time.Now,
	}
}

//MinRecords returns the training floor
func (t *Trainer) MinRecords() int {
	return t.minRecords
}

//Train fits a model on the account's full log and replaces any previous model. Concurrent
//trainings of the same account run one after the other.
func (t *Trainer) Train(ctx context.Context, acct string) (Outcome, error) {
	if err := account.Validate(acct); err != nil {
		return Outcome{}, err
	}

	unlock := t.locks.Lock("train/" + acct)
	defer unlock()

	records, err := t.logs.Load(acct)
	if err != nil {
		return Outcome{}, err
	}

	if len(records) < t.minRecords {
		return Outcome{}, &InsufficientDataError{Count: len(records), Required: t.minRecords}
	}

	X := make([][]float64, 0, len(records))
	y := make([]float64, 0, len(records))
	for idx, r := range records {
		v, err := t.encoder.EncodeRecord(r)
		if err != nil {
			return Outcome{}, fmt.Errorf("shift %d of account %s: %w", idx+1, acct, err)
		}
		X = append(X, v.Floats())
		y = append(y, r.Earnings)
	}

	fitted, err := forest.Fit(ctx, X, y, t.params)
	if err != nil {
		return Outcome{}, fmt.Errorf("unable to fit model for account %s: %w", acct, err)
	}

	trainedAt := t.now().UTC()
	artifact := &Artifact{
		Format:           Format,
		Schema:           features.CurrentSchema,
		Account:          acct,
		RecordCount:      len(records),
		TrafficThreshold: t.encoder.TrafficThreshold,
		TrainedAt:        trainedAt,
		Forest:           fitted,
	}

	if err := t.models.Save(acct, artifact); err != nil {
		return Outcome{}, err
	}

	log.WithFields(log.Fields{"account": acct, "records": len(records), "trees": len(fitted.Trees)}).Info("model trained")

	return Outcome{Account: acct, RecordCount: len(records), TrainedAt: trainedAt}, nil
}
