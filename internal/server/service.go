package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ThiagoRGoveia/tracer-ingest/internal/database"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/interpret"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/models"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

type RecordService struct {
	DBManager database.DBManager
	cache     *cache.Cache
	logger    *zap.Logger
}

// NewRecordService serves stored documents, keeping found ones in memory for ttl.
func NewRecordService(dbManager database.DBManager, ttl time.Duration, logger *zap.Logger) *RecordService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordService{
		DBManager: dbManager,
		cache:     cache.New(ttl, 2*ttl),
		logger:    logger,
	}
}

func (h *RecordService) GetRecord(w http.ResponseWriter, r *http.Request) {
	category, err := interpret.ParseCategory(r.PathValue("category"))
	if err != nil {
		http.Error(w, "Unknown category. Use ContributionData, ExpenditureData or LoanData.", http.StatusBadRequest)
		return
	}

	recordID := r.PathValue("recordId")
	if recordID == "" {
		http.Error(w, "Record id is required in the URL path /records/{category}/{recordId}", http.StatusBadRequest)
		return
	}

	key := string(category) + "/" + recordID
	if cached, found := h.cache.Get(key); found {
		writeJSON(w, cached.(models.Document))
		return
	}

	doc, err := h.DBManager.GetDocument(r.Context(), category, recordID)
	if errors.Is(err, database.ErrNotFound) {
		http.Error(w, "Record not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to retrieve record", zap.String("category", string(category)), zap.String("record_id", recordID), zap.Error(err))
		http.Error(w, "Failed to retrieve record", http.StatusInternalServerError)
		return
	}

	h.cache.SetDefault(key, doc)
	writeJSON(w, doc)
}

func writeJSON(w http.ResponseWriter, doc models.Document) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}
