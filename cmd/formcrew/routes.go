package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/status"
	"github.com/dusk-indust/formcrew/internal/store"
)

const defaultItemLimit = 20

// itemRoutes mounts read-only work item status endpoints:
// GET /items?limit=N and GET /items/{id}.
func itemRoutes(src status.Source, log *zap.Logger) func(r *mux.Router) {
	return func(r *mux.Router) {
		r.HandleFunc("/items", func(w http.ResponseWriter, req *http.Request) {
			limit := defaultItemLimit
			if v := req.URL.Query().Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n <= 0 {
					http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
					return
				}
				limit = n
			}
			statuses, err := status.Recent(req.Context(), src, limit)
			if err != nil {
				log.Warn("list items failed", zap.Error(err))
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, statuses)
		}).Methods(http.MethodGet)

		r.HandleFunc("/items/{id}", func(w http.ResponseWriter, req *http.Request) {
			id := mux.Vars(req)["id"]
			st, err := status.Get(req.Context(), src, id)
			switch {
			case errors.Is(err, store.ErrNotFound):
				http.Error(w, "work item not found", http.StatusNotFound)
				return
			case err != nil:
				log.Warn("get item failed", zap.String("todo_id", id), zap.Error(err))
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, st)
		}).Methods(http.MethodGet)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
