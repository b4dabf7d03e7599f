package advisor

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/account"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/features"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/livecontext"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/messaging/events"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/model"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/predictor"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/shiftlog"
)

//Publisher is used to announce shift and model changes to other services
type Publisher interface {
	PublishOnTopic(message messaging.TopicMessage) error
}

//State is where an account is in its lifecycle
type State string

const (
	StateNoData       State = "no_data"
	StateHasLogs      State = "has_logs"
	StateReadyToTrain State = "ready_to_train"
	StateTrained      State = "trained"
)

//Status summarises an account's log and model
type Status struct {
	Account              string     `json:"account"`
	State                State      `json:"state"`
	Records              int        `json:"records"`
	MinRecords           int        `json:"minRecords"`
	TrainedAt            *time.Time `json:"trainedAt,omitempty"`
	TrainedOnRecords     int        `json:"trainedOnRecords,omitempty"`
	RecordsSinceTraining int        `json:"recordsSinceTraining,omitempty"`
}

//Service ties the shift log, trainer and predictor together for one or more accounts
type Service struct {
	logs      shiftlog.Store
	models    predictor.ModelSource
	trainer   *model.Trainer
	predictor *predictor.Predictor
	provider  livecontext.Provider
	publisher Publisher
	now       func() time.Time
}

//New creates a service. provider and publisher may be nil.
func New(logs shiftlog.Store, models predictor.ModelSource, trainer *model.Trainer, provider livecontext.Provider, publisher Publisher) *Service {
	return &Service{
		logs:      logs,
		models:    models,
		trainer:   trainer,
		predictor: predictor.New(models),
		provider:  provider,
		publisher: publisher,
		now:       time.Now,
	}
}

//LogShift appends a shift to the account's log. A missing date becomes today. When a location
//is given, a missing weather label and unknown traffic are filled in from live conditions.
func (s *Service) LogShift(ctx context.Context, acct string, r shiftlog.Record, loc *livecontext.Location) (shiftlog.Record, error) {
	if err := account.Validate(acct); err != nil {
		shiftsRejected.Inc()
		return shiftlog.Record{}, err
	}

	if r.Date == "" {
		r.Date = s.now().Format(shiftlog.DateLayout)
	}

	if loc != nil && (r.Weather == "" || !r.Traffic.IsKnown()) {
		snapshot := livecontext.Safe(ctx, s.provider, *loc)
		if r.Weather == "" {
			r.Weather = snapshot.Condition
		}
		if !r.Traffic.IsKnown() {
			r.Traffic = snapshot.Congestion
		}
	}

	if err := s.logs.Append(acct, r); err != nil {
		shiftsRejected.Inc()
		return shiftlog.Record{}, err
	}

	shiftsLogged.Inc()
	log.WithFields(log.Fields{"account": acct, "date": r.Date, "start": r.StartHour}).Info("shift logged")

	s.publish(&events.ShiftLogged{
		ID:        uuid.NewString(),
		Account:   acct,
		Date:      r.Date,
		StartHour: r.StartHour,
		Earnings:  r.Earnings,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})

	return r, nil
}

//SkippedShift is a legacy row that failed validation during an import
type SkippedShift struct {
	Record shiftlog.Record
	Err    error
}

//ImportOutcome counts the rows appended by an import and lists the ones that were skipped
type ImportOutcome struct {
	Imported int
	Skipped  []SkippedShift
}

//Import appends every valid row of an earnings CSV to the account's log. Rows that fail
//validation are skipped and reported; any other failure aborts the import.
func (s *Service) Import(ctx context.Context, acct string, r io.Reader) (ImportOutcome, error) {
	if err := account.Validate(acct); err != nil {
		return ImportOutcome{}, err
	}

	records, err := shiftlog.ReadCSV(r)
	if err != nil {
		return ImportOutcome{}, err
	}

	outcome := ImportOutcome{}
	for _, record := range records {
		_, err := s.LogShift(ctx, acct, record, nil)

		var validation *shiftlog.ValidationError
		switch {
		case errors.As(err, &validation):
			outcome.Skipped = append(outcome.Skipped, SkippedShift{Record: record, Err: err})
		case err != nil:
			return outcome, err
		default:
			outcome.Imported++
		}
	}

	log.WithFields(log.Fields{"account": acct, "imported": outcome.Imported, "skipped": len(outcome.Skipped)}).Info("legacy log imported")

	return outcome, nil
}

//History returns the account's logged shifts in insertion order
func (s *Service) History(acct string) ([]shiftlog.Record, error) {
	return s.logs.Load(acct)
}

//Train fits a new model for the account
func (s *Service) Train(ctx context.Context, acct string) (model.Outcome, error) {
	start := time.Now()
	outcome, err := s.trainer.Train(ctx, acct)
	trainingDuration.Observe(time.Since(start).Seconds())

	var insufficient *model.InsufficientDataError
	switch {
	case errors.As(err, &insufficient):
		trainings.WithLabelValues("insufficient_data").Inc()
		return outcome, err
	case err != nil:
		trainings.WithLabelValues("error").Inc()
		return outcome, err
	}

	trainings.WithLabelValues("ok").Inc()

	s.publish(&events.ModelTrained{
		ID:          uuid.NewString(),
		Account:     acct,
		RecordCount: outcome.RecordCount,
		Timestamp:   outcome.TrainedAt.Format(time.RFC3339),
	})

	return outcome, nil
}

//BestHour sweeps the candidate hours under the given live conditions
func (s *Service) BestHour(acct string, live features.LiveContext) (predictor.Result, error) {
	if err := account.Validate(acct); err != nil {
		return predictor.Result{}, err
	}

	result, err := s.predictor.BestHour(acct, live)

	var noModel *model.NoModelError
	switch {
	case errors.As(err, &noModel):
		predictions.WithLabelValues("no_model").Inc()
	case err != nil:
		predictions.WithLabelValues("error").Inc()
	default:
		predictions.WithLabelValues("ok").Inc()
	}

	return result, err
}

//BestHourAt fetches live conditions for loc, falling back to neutral ones, and sweeps with them
func (s *Service) BestHourAt(ctx context.Context, acct string, loc livecontext.Location) (predictor.Result, livecontext.Snapshot, error) {
	if err := account.Validate(acct); err != nil {
		return predictor.Result{}, livecontext.Snapshot{}, err
	}

	snapshot := livecontext.Safe(ctx, s.provider, loc)
	result, err := s.BestHour(acct, snapshot.Features())

	return result, snapshot, err
}

//Status reports the account's position in the NoData → HasLogs → ReadyToTrain → Trained lifecycle
func (s *Service) Status(acct string) (Status, error) {
	records, err := s.logs.Load(acct)
	if err != nil {
		return Status{}, err
	}

	status := Status{Account: acct, Records: len(records), MinRecords: s.trainer.MinRecords()}

	artifact, err := s.models.Load(acct)

	var noModel *model.NoModelError
	switch {
	case err == nil:
		status.State = StateTrained
		trainedAt := artifact.TrainedAt
		status.TrainedAt = &trainedAt
		status.TrainedOnRecords = artifact.RecordCount
		status.RecordsSinceTraining = len(records) - artifact.RecordCount
	case !errors.As(err, &noModel):
		return Status{}, err
	case len(records) == 0:
		status.State = StateNoData
	case len(records) < status.MinRecords:
		status.State = StateHasLogs
	default:
		status.State = StateReadyToTrain
	}

	return status, nil
}

func (s *Service) publish(msg messaging.TopicMessage) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.PublishOnTopic(msg); err != nil {
		log.Warnf("Failed to publish message on topic %s: %s", msg.TopicName(), err.Error())
	}
}
