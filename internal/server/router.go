package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// RequestObserver records every served request.
type RequestObserver interface {
	ObserveRequest(route, method string, code int, duration time.Duration)
}

// NewRouter registers every route with and without its trailing slash.
// metricsHandler may be nil.
func NewRouter(handler *Handler, observer RequestObserver, metricsHandler http.Handler) *mux.Router {
	router := mux.NewRouter()

	handle := func(path string, fn http.HandlerFunc, method string) {
		router.HandleFunc(path, fn).Methods(method)
		trimmed := strings.TrimSuffix(path, "/")
		if trimmed == "" {
			return
		}
		if trimmed == path {
			router.HandleFunc(path+"/", fn).Methods(method)
		} else {
			router.HandleFunc(trimmed, fn).Methods(method)
		}
	}

	handle("/", handler.Root, http.MethodGet)
	handle("/parties/", handler.GetParties, http.MethodGet)
	handle("/parties/add_node/", handler.AddNode, http.MethodPost)
	handle("/parties/create_cluster/", handler.CreateCluster, http.MethodPost)
	handle("/initialize/", handler.Initialize, http.MethodPost)
	handle("/run/", handler.Run, http.MethodPost)
	handle("/run/cancel/", handler.CancelRun, http.MethodPost)
	handle("/runs/{runId}", handler.GetRun, http.MethodGet)
	handle("/session/", handler.GetSession, http.MethodGet)
	handle("/session/reset/", handler.ResetSession, http.MethodPost)
	handle("/mock/gen/", handler.MockGen, http.MethodPost)

	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	if observer != nil {
		router.Use(instrument(observer))
	}

	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func instrument(observer RequestObserver) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if template, err := current.GetPathTemplate(); err == nil {
					route = "/" + strings.Trim(template, "/")
				}
			}

			recorder := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			observer.ObserveRequest(route, r.Method, recorder.status, time.Since(start))
		})
	}
}
