package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/oakcellar/pricewatch-cli/internal/model"
	"github.com/oakcellar/pricewatch-cli/internal/store"
	"github.com/oakcellar/pricewatch-cli/pkg/priceapi"
)

const pageSize = 100

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := s.store.ListStores(r.Context())
	if err != nil {
		s.log.Error("list stores failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to list stores")
		return
	}
	if stores == nil {
		stores = []model.Store{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": stores})
}

func (s *Server) handleListStorePrices(w http.ResponseWriter, r *http.Request) {
	st, ok := s.lookupStore(w, r)
	if !ok {
		return
	}

	page := pageParam(r)
	prices, err := s.store.ListStorePrices(r.Context(), st.ID, store.PriceFilter{
		Limit:  pageSize + 1,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		s.log.Error("list store prices failed", zap.String("store", st.Key), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to list prices")
		return
	}

	hasNext := len(prices) > pageSize
	if hasNext {
		prices = prices[:pageSize]
	}
	if prices == nil {
		prices = []model.StorePrice{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"results": prices,
		"rel":     buildRel(r, page, hasNext),
	})
}

func (s *Server) handlePriceChanges(w http.ResponseWriter, r *http.Request) {
	page := pageParam(r)
	query := r.URL.Query().Get("query")

	changes, err := s.store.ListPriceChanges(r.Context(), store.PriceChangeFilter{
		Query:  query,
		Limit:  pageSize + 1,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		s.log.Error("list price changes failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to list price changes")
		return
	}

	hasNext := len(changes) > pageSize
	if hasNext {
		changes = changes[:pageSize]
	}
	if changes == nil {
		changes = []model.PriceChange{}
	}
	s.respondJSON(w, http.StatusOK, priceapi.PriceChangesResponse{
		Results: changes,
		Rel:     buildRel(r, page, hasNext),
	})
}

type submitRequest struct {
	Records []model.PriceSubmission `json:"records"`
}

func (s *Server) handleSubmitPrices(w http.ResponseWriter, r *http.Request) {
	st, ok := s.lookupStore(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Records) == 0 {
		s.respondError(w, http.StatusBadRequest, "records is required")
		return
	}

	result := priceapi.SubmitResult{}
	for _, rec := range req.Records {
		if rec.Name == "" || rec.Price <= 0 {
			result.Failed++
			continue
		}
		if err := s.store.UpsertStorePrice(r.Context(), st.ID, rec); err != nil {
			s.log.Warn("price upsert failed",
				zap.String("store", st.Key),
				zap.String("name", rec.Name),
				zap.Error(err),
			)
			result.Failed++
			continue
		}
		result.Accepted++
	}

	if result.Accepted > 0 {
		if err := s.store.MarkStoreRun(r.Context(), st.ID, time.Now()); err != nil {
			s.log.Warn("mark store run failed", zap.String("store", st.Key), zap.Error(err))
		}
	}

	s.log.Info("prices submitted",
		zap.String("store", st.Key),
		zap.Int("accepted", result.Accepted),
		zap.Int("failed", result.Failed),
	)
	s.respondJSON(w, http.StatusOK, result)
}

// lookupStore resolves the {storeKey} route param, writing a 404 when the
// store does not exist.
func (s *Server) lookupStore(w http.ResponseWriter, r *http.Request) (*model.Store, bool) {
	key := chi.URLParam(r, "storeKey")
	st, err := s.store.GetStoreByKey(r.Context(), key)
	if err != nil {
		s.log.Error("store lookup failed", zap.String("store", key), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "store lookup failed")
		return nil, false
	}
	if st == nil {
		s.respondError(w, http.StatusNotFound, "store not found")
		return nil, false
	}
	return st, true
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("encode response failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
