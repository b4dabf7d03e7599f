package model_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/account"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/features"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/forest"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/model"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/predictor"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/shiftlog"
	log "github.com/sirupsen/logrus"
)

func TestMain(m *testing.M) {
	log.SetFormatter(&log.JSONFormatter{})
	os.Exit(m.Run())
}

type fixture struct {
	dir     string
	logs    *shiftlog.FileStore
	models  *model.Store
	trainer *model.Trainer
}

func newFixture(t *testing.T) fixture {
	dir := t.TempDir()
	resolver := account.NewResolver(dir)
	locks := account.NewLocks()

	logs := shiftlog.NewFileStore(resolver, locks)
	models := model.NewStore(resolver)
	trainer := model.NewTrainer(logs, models, locks, features.NewEncoder(20), model.DefaultMinTrainingRecords, forest.DefaultParams())

	return fixture{dir: dir, logs: logs, models: models, trainer: trainer}
}

func (f fixture) logShifts(t *testing.T, acct string, count int) {
	for i := 0; i < count; i++ {
		hour := 10 + i%13
		earnings := 20.0
		if hour >= 17 && hour <= 19 {
			earnings = 60
		}
		err := f.logs.Append(acct, shiftlog.Record{
			Date:      "2024-05-12",
			StartHour: strconv.Itoa(hour),
			EndHour:   strconv.Itoa(hour + 1),
			Earnings:  earnings,
			Weather:   "Clear",
			Traffic:   shiftlog.KnownTraffic(5),
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
}

func TestTrainingFloorIsInclusiveAtTen(t *testing.T) {
	f := newFixture(t)
	f.logShifts(t, "alice", 9)

	_, err := f.trainer.Train(context.Background(), "alice")

	var insufficient *model.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Train returned %v, want InsufficientDataError", err)
	}
	if insufficient.Count != 9 || insufficient.Required != 10 {
		t.Errorf("error = %+v, want count 9 of 10", insufficient)
	}

	if _, err := f.models.Load("alice"); err == nil {
		t.Error("a refused training must not leave a model behind")
	}

	f.logShifts(t, "alice", 1)

	outcome, err := f.trainer.Train(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Train with 10 records failed: %v", err)
	}
	if outcome.RecordCount != 10 {
		t.Errorf("RecordCount = %d, want 10", outcome.RecordCount)
	}
}

func TestLoadWithoutTrainingIsNoModel(t *testing.T) {
	f := newFixture(t)

	_, err := f.models.Load("alice")

	var noModel *model.NoModelError
	if !errors.As(err, &noModel) {
		t.Fatalf("Load returned %v, want NoModelError", err)
	}
}

func TestRetrainingIsDeterministic(t *testing.T) {
	f := newFixture(t)
	f.logShifts(t, "alice", 26)

	predict := func() []float64 {
		if _, err := f.trainer.Train(context.Background(), "alice"); err != nil {
			t.Fatalf("Train failed: %v", err)
		}
		a, err := f.models.Load("alice")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		out := []float64{}
		for hour := 0; hour < 24; hour++ {
			out = append(out, a.Predict(features.Vector{Hour: hour}))
		}
		return out
	}

	first, second := predict(), predict()
	for hour := range first {
		if first[hour] != second[hour] {
			t.Errorf("hour %d: %g != %g after retraining on identical data", hour, first[hour], second[hour])
		}
	}
}

func TestRetrainOverwritesModel(t *testing.T) {
	f := newFixture(t)
	f.logShifts(t, "alice", 10)
	f.trainer.Train(context.Background(), "alice")

	f.logShifts(t, "alice", 5)
	f.trainer.Train(context.Background(), "alice")

	a, err := f.models.Load("alice")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if a.RecordCount != 15 {
		t.Errorf("RecordCount = %d, want 15 after retraining", a.RecordCount)
	}

	entries, _ := os.ReadDir(f.dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary file %s left behind", e.Name())
		}
	}
}

func TestModelsAreIsolatedPerAccount(t *testing.T) {
	f := newFixture(t)
	f.logShifts(t, "alice", 10)
	f.trainer.Train(context.Background(), "alice")

	var noModel *model.NoModelError
	if _, err := f.models.Load("bob"); !errors.As(err, &noModel) {
		t.Errorf("Load(bob) returned %v, want NoModelError", err)
	}

	var insufficient *model.InsufficientDataError
	if _, err := f.trainer.Train(context.Background(), "bob"); !errors.As(err, &insufficient) || insufficient.Count != 0 {
		t.Errorf("Train(bob) returned %v, want InsufficientDataError with no records", err)
	}
}

func TestLoadRejectsMismatchedSchema(t *testing.T) {
	f := newFixture(t)
	f.logShifts(t, "alice", 10)
	f.trainer.Train(context.Background(), "alice")

	path := filepath.Join(f.dir, "alice_predictor.model")
	data, _ := os.ReadFile(path)
	tampered := strings.Replace(string(data), `"traffic_flag"`, `"congestion_minutes"`, 1)
	os.WriteFile(path, []byte(tampered), 0o644)

	_, err := f.models.Load("alice")
	if !errors.Is(err, model.ErrSchemaMismatch) {
		t.Errorf("Load returned %v, want ErrSchemaMismatch", err)
	}
}

func TestLoadRejectsForeignFiles(t *testing.T) {
	f := newFixture(t)

	os.WriteFile(filepath.Join(f.dir, "alice_predictor.model"), []byte("\x80\x04\x95pickle"), 0o644)
	if _, err := f.models.Load("alice"); err == nil {
		t.Error("expected a non JSON model to be rejected")
	}

	os.WriteFile(filepath.Join(f.dir, "alice_predictor.model"), []byte(`{"format":"something-else"}`), 0o644)
	if _, err := f.models.Load("alice"); err == nil {
		t.Error("expected a foreign format to be rejected")
	}
}

func TestTrainingFailsOnUnencodableLegacyRows(t *testing.T) {
	f := newFixture(t)
	f.logShifts(t, "alice", 10)

	legacy := "date,start_hour,end_hour,earnings,weather,traffic\n"
	for i := 0; i < 10; i++ {
		legacy += "2024-03-01,sometime,later,10,clear,5\n"
	}
	os.WriteFile(filepath.Join(f.dir, "carol_earnings.csv"), []byte(legacy), 0o644)

	_, err := f.trainer.Train(context.Background(), "carol")

	var encodingErr *features.EncodingError
	if !errors.As(err, &encodingErr) {
		t.Errorf("Train returned %v, want EncodingError", err)
	}
}

func TestRetrainingWhileSweeping(t *testing.T) {
	f := newFixture(t)
	f.logShifts(t, "alice", 26)

	if _, err := f.trainer.Train(context.Background(), "alice"); err != nil {
		t.Fatalf("initial Train failed: %v", err)
	}

	p := predictor.New(f.models)
	live := features.LiveContext{Condition: "Clear", Congestion: shiftlog.KnownTraffic(5)}

	var wg sync.WaitGroup
	errs := make(chan error, 4*5+4*20)

	for i := 0; i < 4; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if _, err := f.trainer.Train(context.Background(), "alice"); err != nil {
					errs <- err
				}
			}
		}()

		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				result, err := p.BestHour("alice", live)
				if err != nil {
					errs <- err
					continue
				}
				if result.Hour < predictor.FirstCandidateHour || result.Hour > predictor.LastCandidateHour {
					errs <- errors.New("best hour outside the candidate range")
				}
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent train or sweep failed: %v", err)
	}

	artifact, err := f.models.Load("alice")
	if err != nil {
		t.Fatalf("Load after concurrent retraining failed: %v", err)
	}
	if artifact.RecordCount != 26 {
		t.Errorf("RecordCount = %d, want 26", artifact.RecordCount)
	}
}
