package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const storeTimeout = 3 * time.Second

// NewRouter регистрирует маршруты /api/v1/people поверх хранилища st
func NewRouter(st Store) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	// Все записи в виде JSON-массива, от старых к новым
	api.HandleFunc("/people", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), storeTimeout)
		defer cancel()
		recs, err := st.List(ctx)
		if err != nil {
			storageFailure(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, ProjectPeople(recs), "\r\n")
	}).Methods(http.MethodGet)

	// Одна запись по id. Неверный id и отсутствующая запись для клиента неразличимы
	api.HandleFunc("/people/{id}", func(w http.ResponseWriter, req *http.Request) {
		raw := mux.Vars(req)["id"]
		notFound := func() {
			http.Error(w, fmt.Sprintf("Could not find person with ID %s", raw), http.StatusNotFound)
		}
		id, err := ParseID(raw)
		if err != nil {
			notFound()
			return
		}
		ctx, cancel := context.WithTimeout(req.Context(), storeTimeout)
		defer cancel()
		rec, err := st.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			notFound()
			return
		}
		if err != nil {
			storageFailure(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, ProjectPerson(rec), "")
	}).Methods(http.MethodGet)

	// Создание записи; в ответе только id. Ошибка валидации до вставки не доходит
	api.HandleFunc("/people", func(w http.ResponseWriter, req *http.Request) {
		raw, err := nameParam(req)
		if err != nil {
			http.Error(w, "Request body must be valid JSON.", http.StatusBadRequest)
			return
		}
		name, err := ValidateName(raw)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				http.Error(w, verr.Reason, http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(req.Context(), storeTimeout)
		defer cancel()
		id, err := st.Insert(ctx, Document{Name: name})
		if err != nil {
			storageFailure(w, req, err)
			return
		}
		hlog.FromRequest(req).Info().Str("id", id).Msg("person created")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(id))
	}).Methods(http.MethodPost)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return r
}

// nameParam достаёт name из JSON-тела или из form/query параметров.
// nil означает, что параметр не передан.
func nameParam(req *http.Request) (*string, error) {
	if ct, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type")); ct == "application/json" {
		var body struct {
			Name *string `json:"name"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return nil, err
		}
		return body.Name, nil
	}
	if err := req.ParseForm(); err != nil {
		return nil, err
	}
	if v, ok := req.Form["name"]; ok && len(v) > 0 {
		return &v[0], nil
	}
	return nil, nil
}

func writeJSON(w http.ResponseWriter, status int, v any, suffix string) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("encode response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, suffix...))
}

func storageFailure(w http.ResponseWriter, req *http.Request, err error) {
	hlog.FromRequest(req).Error().Err(err).Msg("store request failed")
	if errors.Is(err, ErrStorageUnavailable) {
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// withAccessLog оборачивает обработчик журналом запросов zerolog
func withAccessLog(h http.Handler) http.Handler {
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(h)
	h = hlog.RemoteAddrHandler("ip")(h)
	h = hlog.RequestIDHandler("req_id", "X-Request-Id")(h)
	return hlog.NewHandler(log.Logger)(h)
}

// создает маршрутизатор, настраивает сервер, запускает его в горутине
func StartHTTPServer(cfg *Config, st Store) *http.Server {
	handler := otelhttp.NewHandler(withAccessLog(NewRouter(st)), "people-service")
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	return srv
}
