package boardapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/zstd"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/options-board/src/eventmodels"
	"github.com/jiaming2012/options-board/src/scheduler"
)

// BoardReader serves cached snapshots.
type BoardReader interface {
	GetBoard(ctx context.Context, underlying string) (eventmodels.BoardSnapshot, bool, error)
	Assets(ctx context.Context) ([]string, error)
}

// Refresher runs an on-demand ingestion and enrichment pass for one asset.
type Refresher interface {
	Refresh(ctx context.Context, underlying string) (eventmodels.CycleReport, error)
}

type Handler struct {
	boards    BoardReader
	refresher Refresher
	encoder   *zstd.Encoder
}

func NewHandler(boards BoardReader, refresher Refresher) *Handler {
	// EncodeAll with a shared encoder is concurrency-safe
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		log.Fatalf("NewHandler: failed to create zstd encoder: %v", err)
	}

	return &Handler{boards: boards, refresher: refresher, encoder: encoder}
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("writeJSON: failed to marshal response: %v", err)
		w.WriteHeader(500)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if strings.Contains(r.Header.Get("Accept-Encoding"), "zstd") {
		w.Header().Set("Content-Encoding", "zstd")
		body = h.encoder.EncodeAll(body, nil)
	}

	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Errorf("writeJSON: failed to write response: %v", err)
	}
}

func (h *Handler) handleAssets(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(404)
		return
	}

	assets, err := h.boards.Assets(r.Context())
	if err != nil {
		log.Errorf("handleAssets: failed to list assets: %v", err)
		w.WriteHeader(500)
		return
	}

	h.writeJSON(w, r, 200, map[string][]string{"assets": assets})
}

func (h *Handler) handleBoard(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(404)
		return
	}

	asset := mux.Vars(r)["asset"]

	snapshot, found, err := h.boards.GetBoard(r.Context(), asset)
	if err != nil {
		log.Errorf("handleBoard: failed to read board for %s: %v", asset, err)
		w.WriteHeader(500)
		return
	}

	if !found {
		h.writeJSON(w, r, 404, map[string]string{"error": "no snapshot for asset " + asset})
		return
	}

	h.writeJSON(w, r, 200, snapshot)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(404)
		return
	}

	asset := mux.Vars(r)["asset"]

	report, err := h.refresher.Refresh(r.Context(), asset)
	if err != nil {
		if errors.Is(err, scheduler.ErrCycleInProgress) {
			h.writeJSON(w, r, 409, map[string]string{"error": "refresh already in progress"})
			return
		}
		log.Errorf("handleRefresh: refresh failed for %s: %v", asset, err)
		w.WriteHeader(500)
		return
	}

	h.writeJSON(w, r, 200, report)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(200)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Errorf("handleHealth: failed to write response: %v", err)
	}
}

func (h *Handler) SetupHandler(router *mux.Router) {
	router.HandleFunc("/assets", h.handleAssets)
	router.HandleFunc("/assets/{asset}", h.handleBoard)
	router.HandleFunc("/assets/{asset}/refresh", h.handleRefresh)
	router.HandleFunc("/health", handleHealth)
}
