package publish

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/xerrors"

	"github.com/memoio/go-voicemint/build"
)

// NewHandler serves the persisted publications read-only:
//
//	GET /version
//	GET /publications
//	GET /publications/{id}
//
// extra handlers are mounted as given, e.g. "/metrics".
func NewHandler(w *Workflow, extra map[string]http.Handler) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/version", func(rw http.ResponseWriter, req *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]string{"version": build.UserVersion()})
	}).Methods(http.MethodGet)

	r.HandleFunc("/publications", func(rw http.ResponseWriter, req *http.Request) {
		all, err := w.List()
		if err != nil {
			logger.Warnf("list publications: %s", err)
			writeError(rw, http.StatusInternalServerError, err)
			return
		}
		writeJSON(rw, http.StatusOK, all)
	}).Methods(http.MethodGet)

	r.HandleFunc("/publications/{id}", func(rw http.ResponseWriter, req *http.Request) {
		res, err := w.Status(mux.Vars(req)["id"])
		switch {
		case err == nil:
			writeJSON(rw, http.StatusOK, res)
		case xerrors.Is(err, ErrUnknownPublication):
			writeError(rw, http.StatusNotFound, err)
		default:
			writeError(rw, http.StatusInternalServerError, err)
		}
	}).Methods(http.MethodGet)

	for path, h := range extra {
		r.Handle(path, h)
	}
	return r
}

func writeJSON(rw http.ResponseWriter, code int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		logger.Debugf("write response: %s", err)
	}
}

func writeError(rw http.ResponseWriter, code int, err error) {
	writeJSON(rw, code, map[string]string{"error": err.Error()})
}
