package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"puzzle-mint/internal/catalog"
	"puzzle-mint/internal/domain"
	"puzzle-mint/internal/mint"
	"puzzle-mint/internal/observability"
	"puzzle-mint/internal/storage"
	"puzzle-mint/internal/upload"
)

const defaultListLimit = 50

// Minter is the part of mint.Minter the handlers use.
type Minter interface {
	Mint(ctx context.Context, in mint.MintInput, progress mint.ProgressFunc) (domain.MintOutcome, error)
}

// Server serves the minting HTTP API.
type Server struct {
	catalog    *catalog.Catalog
	minter     Minter
	mintStore  storage.MintRecordStore
	statsStore storage.SeriesStatsStore
	logger     *log.Logger
	started    time.Time
}

// routes returns the HTTP handler for all endpoints.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("GET /metrics", observability.Handler())

	mux.HandleFunc("GET /puzzles", s.handlePuzzles)
	mux.HandleFunc("POST /puzzles/{id}/mint", s.handleMint)
	mux.HandleFunc("GET /mints", s.handleMints)
	mux.HandleFunc("GET /status", s.handleStatus)

	return mux
}

// MintResponse is the JSON body of a successful mint.
type MintResponse struct {
	PuzzleID     int      `json:"puzzle_id"`
	TokenAddress string   `json:"token_address"`
	Signature    string   `json:"signature"`
	SeriesID     string   `json:"series_id"`
	ImageURI     string   `json:"image_uri"`
	MetadataURI  string   `json:"metadata_uri"`
	Stages       []string `json:"stages"`
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// MintRecordResponse is one entry of GET /mints.
type MintRecordResponse struct {
	SeriesID     string `json:"series_id"`
	PuzzleID     *int   `json:"puzzle_id,omitempty"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	TokenAddress string `json:"token_address"`
	Signature    string `json:"signature"`
	MetadataURI  string `json:"metadata_uri"`
	ImageURI     string `json:"image_uri"`
	Attempts     int    `json:"attempts"`
	MintedAt     int64  `json:"minted_at"`
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status   string         `json:"status"`
	Uptime   string         `json:"uptime"`
	Puzzles  int            `json:"puzzles"`
	Outcomes map[string]int `json:"outcomes,omitempty"`
}

func (s *Server) handlePuzzles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Puzzles)
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid puzzle id", Detail: r.PathValue("id")})
		return
	}

	p, err := s.catalog.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}

	in, err := s.catalog.MintInput(p)
	if err != nil {
		s.logger.Printf("puzzle %d: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: mint.MessageGeneric, Detail: err.Error()})
		return
	}

	resp := MintResponse{PuzzleID: id}
	progress := func(pr mint.Progress) {
		resp.Stages = append(resp.Stages, string(pr.Stage))
		resp.SeriesID = pr.SeriesID
		switch pr.Stage {
		case mint.StageUploadComplete:
			resp.ImageURI = pr.Locator
		case mint.StageMetadataComplete:
			resp.MetadataURI = pr.Locator
		}
	}

	outcome, err := s.minter.Mint(r.Context(), in, progress)
	if err != nil {
		s.logger.Printf("puzzle %d mint failed: %v", id, err)
		writeJSON(w, mintErrorStatus(err), ErrorResponse{Error: mint.UserMessage(err), Detail: err.Error()})
		return
	}

	resp.TokenAddress = outcome.TokenAddress
	resp.Signature = outcome.Signature
	s.logger.Printf("puzzle %d minted: token %s", id, outcome.TokenAddress)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMints(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		records []*domain.MintRecord
		err     error
	)
	if raw := r.URL.Query().Get("puzzle"); raw != "" {
		id, convErr := strconv.Atoi(raw)
		if convErr != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid puzzle id", Detail: raw})
			return
		}
		records, err = s.mintStore.GetByPuzzleID(ctx, id)
	} else {
		limit := defaultListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, convErr := strconv.Atoi(raw)
			if convErr != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid limit", Detail: raw})
				return
			}
			limit = n
		}
		records, err = s.mintStore.List(ctx, limit)
	}
	if err != nil {
		s.logger.Printf("list mints: %v", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: mint.MessageGeneric})
		return
	}

	out := make([]MintRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, MintRecordResponse{
			SeriesID:     rec.SeriesID,
			PuzzleID:     rec.PuzzleID,
			Name:         rec.Name,
			Symbol:       rec.Symbol,
			TokenAddress: rec.TokenAddress,
			Signature:    rec.Signature,
			MetadataURI:  rec.MetadataURI,
			ImageURI:     rec.ImageURI,
			Attempts:     rec.Attempts,
			MintedAt:     rec.MintedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:  "running",
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Puzzles: len(s.catalog.Puzzles),
	}

	if s.statsStore != nil {
		counts, err := s.statsStore.CountByOutcome(r.Context())
		if err != nil {
			s.logger.Printf("count outcomes: %v", err)
		} else {
			resp.Outcomes = make(map[string]int, len(counts))
			for outcome, n := range counts {
				resp.Outcomes[string(outcome)] = n
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// mintErrorStatus maps a mint error to an HTTP status.
func mintErrorStatus(err error) int {
	switch {
	case errors.Is(err, mint.ErrSignerUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, upload.ErrUploadFailed):
		return http.StatusBadGateway
	case errors.Is(err, mint.ErrExhausted):
		return http.StatusGatewayTimeout
	case errors.Is(err, mint.ErrSubmissionRejected), errors.Is(err, mint.ErrConfirmationFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
