package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"
)

// Transcriber is the domain operation behind POST /transcribe.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

type TranscribeRequest struct {
	Path string `json:"path"`
}

type TranscribeResponse struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

type TranscribeHandler struct {
	svc Transcriber
}

func NewTranscribeHandler(svc Transcriber) *TranscribeHandler {
	return &TranscribeHandler{svc: svc}
}

func (h *TranscribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req TranscribeRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		WriteError(w, http.StatusBadRequest, "path is required")
		return
	}

	text, err := h.svc.Transcribe(r.Context(), req.Path)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			hlog.FromRequest(r).Warn().Str("path", req.Path).Msg("client gave up waiting for transcription")
			WriteError(w, http.StatusGatewayTimeout, "transcription still queued")
			return
		}
		WriteErrorDetail(w, http.StatusBadGateway, "transcription failed", err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, TranscribeResponse{Path: req.Path, Text: text})
}
