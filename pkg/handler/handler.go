package handler

import (
	"compress/flate"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/account"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/app"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/credentials"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/features"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/livecontext"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/model"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/predictor"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/shiftlog"
)

//RequestRouter wraps the concrete router implementation
type RequestRouter struct {
	impl *chi.Mux
}

type accountKey struct{}

//ShiftDTO is the wire form of a logged shift. Traffic is null when unknown.
type ShiftDTO struct {
	Date      string   `json:"date"`
	StartHour string   `json:"startHour"`
	EndHour   string   `json:"endHour"`
	Earnings  float64  `json:"earnings"`
	Weather   string   `json:"weather"`
	Traffic   *float64 `json:"traffic"`
	Latitude  *float64 `json:"lat,omitempty"`
	Longitude *float64 `json:"lon,omitempty"`
}

func newShiftDTO(r shiftlog.Record) ShiftDTO {
	dto := ShiftDTO{
		Date:      r.Date,
		StartHour: r.StartHour,
		EndHour:   r.EndHour,
		Earnings:  r.Earnings,
		Weather:   r.Weather,
	}
	if v, ok := r.Traffic.Value(); ok {
		dto.Traffic = &v
	}
	return dto
}

func (dto ShiftDTO) record() shiftlog.Record {
	r := shiftlog.Record{
		Date:      dto.Date,
		StartHour: dto.StartHour,
		EndHour:   dto.EndHour,
		Earnings:  dto.Earnings,
		Weather:   dto.Weather,
		Traffic:   shiftlog.UnknownTraffic,
	}
	if dto.Traffic != nil {
		r.Traffic = shiftlog.KnownTraffic(*dto.Traffic)
	}
	return r
}

func (dto ShiftDTO) location() *livecontext.Location {
	if dto.Latitude == nil || dto.Longitude == nil {
		return nil
	}
	return &livecontext.Location{Latitude: *dto.Latitude, Longitude: *dto.Longitude}
}

type credentialsDTO struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type bestHourDTO struct {
	Hour              int                   `json:"hour"`
	PredictedEarnings float64               `json:"predictedEarnings"`
	Weather           string                `json:"weather"`
	Traffic           *float64              `json:"traffic"`
	Candidates        []predictor.Candidate `json:"candidates"`
	Location          *livecontext.Location `json:"location,omitempty"`
}

func (router *RequestRouter) Post(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Post(pattern, handlerFn)
}

func (router *RequestRouter) Get(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Get(pattern, handlerFn)
}

func (router *RequestRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	router.impl.ServeHTTP(w, r)
}

func newRequestRouter() *RequestRouter {
	router := &RequestRouter{impl: chi.NewRouter()}

	router.impl.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		Debug:          false,
	}).Handler)

	compressor := middleware.NewCompressor(flate.DefaultCompression, "application/json")
	router.impl.Use(compressor.Handler)
	router.impl.Use(middleware.Logger)

	return router
}

func (router *RequestRouter) addShiftAdvisorHandlers(a *app.App) {
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.impl.Handle("/metrics", promhttp.Handler())

	router.Post("/api/accounts", NewRegisterHandler(a.Credentials))
	router.Post("/api/sessions", NewSessionHandler(a.Credentials, a.Tokens))

	router.impl.Group(func(r chi.Router) {
		r.Use(NewAuthenticator(a.Tokens))

		r.Get("/api/shifts", NewHistoryHandler(a))
		r.Post("/api/shifts", NewLogShiftHandler(a))
		r.Post("/api/model", NewTrainHandler(a))
		r.Get("/api/best-hour", NewBestHourHandler(a))
		r.Get("/api/status", NewStatusHandler(a))
	})
}

//CreateRouter creates a request router with all handlers registered
func CreateRouter(a *app.App) *RequestRouter {
	router := newRequestRouter()
	router.addShiftAdvisorHandlers(a)
	return router
}

//CreateRouterAndStartServing creates a request router, registers all handlers and starts serving requests.
func CreateRouterAndStartServing(a *app.App, port string) {
	router := CreateRouter(a)

	log.Printf("Starting api-shiftadvisor on port %s.\n", port)

	log.Fatal(http.ListenAndServe(":"+port, router.impl))
}

//NewAuthenticator rejects requests without a valid bearer token and stores the token's account in the request context
func NewAuthenticator(tokens *credentials.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			acct, err := tokens.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), accountKey{}, acct)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accountFrom(r *http.Request) string {
	acct, _ := r.Context().Value(accountKey{}).(string)
	return acct
}

//NewRegisterHandler creates a new account
func NewRegisterHandler(store *credentials.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := credentialsDTO{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}

		if err := store.Register(body.Username, body.Password); err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"username": body.Username})
	}
}

//NewSessionHandler exchanges a username and password for a bearer token
func NewSessionHandler(store *credentials.Store, tokens *credentials.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := credentialsDTO{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}

		if err := store.Authenticate(body.Username, body.Password); err != nil {
			writeServiceError(w, err)
			return
		}

		token, err := tokens.Issue(body.Username)
		if err != nil {
			log.Errorf("Failed to issue token: %s", err.Error())
			writeError(w, http.StatusInternalServerError, "unable to issue token")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}

//NewHistoryHandler lists the caller's logged shifts
func NewHistoryHandler(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := a.Service.History(accountFrom(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		shifts := make([]ShiftDTO, 0, len(records))
		for _, record := range records {
			shifts = append(shifts, newShiftDTO(record))
		}

		writeJSON(w, http.StatusOK, shifts)
	}
}

//NewLogShiftHandler appends a shift to the caller's log
func NewLogShiftHandler(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := ShiftDTO{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}

		stored, err := a.Service.LogShift(r.Context(), accountFrom(r), body.record(), body.location())
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, newShiftDTO(stored))
	}
}

//NewTrainHandler retrains the caller's model
func NewTrainHandler(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome, err := a.Service.Train(r.Context(), accountFrom(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"account":     outcome.Account,
			"recordCount": outcome.RecordCount,
			"trainedAt":   outcome.TrainedAt,
		})
	}
}

//NewBestHourHandler recommends a start hour. Explicit weather and traffic query parameters are used
//as given, otherwise live conditions are fetched for lat and lon, and otherwise neutral ones apply.
func NewBestHourHandler(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct := accountFrom(r)
		query := r.URL.Query()

		if query.Has("lat") && query.Has("lon") && !query.Has("weather") && !query.Has("traffic") {
			lat, errLat := strconv.ParseFloat(query.Get("lat"), 64)
			lon, errLon := strconv.ParseFloat(query.Get("lon"), 64)
			if errLat != nil || errLon != nil {
				writeError(w, http.StatusBadRequest, "lat and lon must be numbers")
				return
			}

			loc := livecontext.Location{Latitude: lat, Longitude: lon}
			result, snapshot, err := a.Service.BestHourAt(r.Context(), acct, loc)
			if err != nil {
				writeServiceError(w, err)
				return
			}

			dto := bestHourDTO{
				Hour:              result.Hour,
				PredictedEarnings: result.PredictedEarnings,
				Weather:           snapshot.Condition,
				Candidates:        result.Candidates,
				Location:          &loc,
			}
			if v, ok := snapshot.Congestion.Value(); ok {
				dto.Traffic = &v
			}
			writeJSON(w, http.StatusOK, dto)
			return
		}

		traffic, err := shiftlog.ParseTraffic(query.Get("traffic"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		live := features.LiveContext{Condition: query.Get("weather"), Congestion: traffic}
		result, err := a.Service.BestHour(acct, live)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		dto := bestHourDTO{
			Hour:              result.Hour,
			PredictedEarnings: result.PredictedEarnings,
			Weather:           live.Condition,
			Candidates:        result.Candidates,
		}
		if v, ok := traffic.Value(); ok {
			dto.Traffic = &v
		}
		writeJSON(w, http.StatusOK, dto)
	}
}

//NewStatusHandler reports where the caller is in the log and train lifecycle
func NewStatusHandler(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := a.Service.Status(accountFrom(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, status)
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	var (
		invalidAccount *account.InvalidAccountError
		validation     *shiftlog.ValidationError
		encoding       *features.EncodingError
		insufficient   *model.InsufficientDataError
		noModel        *model.NoModelError
	)

	switch {
	case errors.As(err, &invalidAccount), errors.As(err, &validation), errors.As(err, &encoding),
		errors.Is(err, credentials.ErrEmptySecret):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":    err.Error(),
			"count":    insufficient.Count,
			"required": insufficient.Required,
		})
	case errors.As(err, &noModel):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, credentials.ErrUnknownAccount), errors.Is(err, credentials.ErrWrongSecret):
		writeError(w, http.StatusUnauthorized, "invalid username or password")
	case errors.Is(err, credentials.ErrAccountExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Errorf("Request failed: %s", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("Failed to encode response: %s", err.Error())
	}
}
