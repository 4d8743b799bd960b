package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/salesinsight/salesinsight/internal/pipeline"
)

const (
	maxAskBodyBytes = 64 << 10
	maxQuestionRune = 2000
)

type askRequest struct {
	Question string `json:"question"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Analyst == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ask_not_configured", "question answering is not configured", false)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "invalid_json", "request body must be {\"question\": \"...\"}", false)
		return
	}
	if utf8.RuneCountInString(request.Question) > maxQuestionRune {
		writeError(r.Context(), w, http.StatusBadRequest, string(pipeline.KindInvalidQuestion), "question is too long", false)
		return
	}

	response, err := deps.Analyst.Ask(r.Context(), request.Question)
	if err != nil {
		writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func handleStats(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Analyst == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "stats_not_configured", "dataset statistics are not configured", false)
		return
	}
	stats, err := deps.Analyst.Stats(r.Context())
	if err != nil {
		writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Analyst == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "schema_not_configured", "schema description is not configured", false)
		return
	}
	description, err := deps.Analyst.Schema(r.Context())
	if err != nil {
		writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, description)
}

func handleCacheStats(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Analyst == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "cache_not_configured", "response cache is not configured", false)
		return
	}
	writeJSON(w, http.StatusOK, deps.Analyst.CacheStats(r.Context()))
}

func writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	var pipelineErr *pipeline.Error
	if !errors.As(err, &pipelineErr) {
		writeError(r.Context(), w, http.StatusInternalServerError, "internal_error", "internal error", false)
		return
	}
	writeError(r.Context(), w, statusForKind(pipelineErr.Kind), string(pipelineErr.Kind), pipelineErr.Message, pipelineErr.Retryable())
}

func statusForKind(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindInvalidQuestion:
		return http.StatusBadRequest
	case pipeline.KindGeneration:
		return http.StatusBadGateway
	case pipeline.KindUnsafeQuery:
		return http.StatusUnprocessableEntity
	case pipeline.KindExecution:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
