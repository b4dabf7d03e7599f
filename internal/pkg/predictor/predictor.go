package predictor

import (
	"fmt"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/features"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/model"
)

const (
	//FirstCandidateHour is the earliest hour the sweep considers
	FirstCandidateHour = 10
	//LastCandidateHour is the latest hour the sweep considers
	LastCandidateHour = 22
)

//Regressor predicts earnings for a feature vector
type Regressor interface {
	Predict(features.Vector) float64
}

//ModelSource loads the current model snapshot for an account
type ModelSource interface {
	Load(account string) (*model.Artifact, error)
}

//Candidate is one point of the sweep
type Candidate struct {
	Hour              int     `json:"hour"`
	PredictedEarnings float64 `json:"predictedEarnings"`
}

//Result is the best candidate together with the full sweep
type Result struct {
	Hour              int         `json:"hour"`
	PredictedEarnings float64     `json:"predictedEarnings"`
	Candidates        []Candidate `json:"candidates"`
}

//Sweep evaluates every hour in [first, last] under constant live flags and keeps the maximum.
//Hours are visited in ascending order and only a strictly larger prediction replaces the best,
//so ties go to the earliest hour.
func Sweep(r Regressor, encoder features.Encoder, live features.LiveContext, first, last int) (Result, error) {
	if first > last {
		return Result{}, fmt.Errorf("empty candidate range %d-%d", first, last)
	}

	result := Result{Candidates: make([]Candidate, 0, last-first+1)}

	for hour := first; hour <= last; hour++ {
		v, err := encoder.EncodeContext(hour, live)
		if err != nil {
			return Result{}, err
		}

		predicted := r.Predict(v)
		result.Candidates = append(result.Candidates, Candidate{Hour: hour, PredictedEarnings: predicted})

		if hour == first || predicted > result.PredictedEarnings {
			result.Hour = hour
			result.PredictedEarnings = predicted
		}
	}

	return result, nil
}

//Predictor answers best-hour queries from persisted per account models
type Predictor struct {
	models ModelSource
	first  int
	last   int
}

//New creates a predictor sweeping the standard 10-22 range
func New(models ModelSource) *Predictor {
	return &Predictor{models: models, first: FirstCandidateHour, last: LastCandidateHour}
}

//BestHour loads one snapshot of the account's model and sweeps the candidate hours with it.
//Accounts without a model fail with *model.NoModelError.
func (p *Predictor) BestHour(acct string, live features.LiveContext) (Result, error) {
	artifact, err := p.models.Load(acct)
	if err != nil {
		return Result{}, err
	}

	return Sweep(artifact, artifact.Encoder(), live, p.first, p.last)
}
