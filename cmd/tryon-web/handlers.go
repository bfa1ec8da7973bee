package main

import (
	"io"
	"net/http"

	"github.com/fpang/ai-virtual-tryon/internal/share"
	"github.com/fpang/ai-virtual-tryon/internal/workflow"
)

// maxUploadBytes caps a model photo upload (20 MB, matching the remote
// fetch cap during apparel normalization).
const maxUploadBytes = 20 << 20

type server struct {
	orch *workflow.Orchestrator
}

// GET /api/state
func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	respondJSON(w, http.StatusOK, s.orch.Snapshot())
}

// POST /api/model/upload (multipart, field "photo")
func (s *server) handleModelUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("photo")
	if err != nil {
		httpError(w, http.StatusBadRequest, "missing photo field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		httpError(w, http.StatusBadRequest, "could not read upload")
		return
	}
	if err := s.orch.UploadModel(r.Context(), data); err != nil {
		httpError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.orch.Snapshot())
}

// POST /api/model/extend
func (s *server) handleModelExtend(w http.ResponseWriter, r *http.Request) {
	s.runTransition(w, r, func() error {
		return s.orch.ExtendFullBody(r.Context())
	})
}

// POST /api/model/clear
func (s *server) handleModelClear(w http.ResponseWriter, r *http.Request) {
	s.runTransition(w, r, func() error {
		return s.orch.ClearModel(r.Context())
	})
}

// POST /api/key {key}
func (s *server) handleSaveKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	if err := s.orch.SaveAPIKey(r.Context(), req.Key); err != nil {
		httpError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.orch.Snapshot())
}

// POST /api/pick/toggle
func (s *server) handlePickToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	picking, err := s.orch.TogglePicking(r.Context())
	if err != nil {
		httpError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"picking": picking,
		"state":   s.orch.Snapshot(),
	})
}

// POST /api/apparel/extract {category}
func (s *server) handleApparelExtract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	if err := s.orch.ExtractApparel(r.Context(), req.Category); err != nil {
		httpError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.orch.Snapshot())
}

// POST /api/apparel/change
func (s *server) handleApparelChange(w http.ResponseWriter, r *http.Request) {
	s.runTransition(w, r, func() error {
		return s.orch.ChangeApparel(r.Context())
	})
}

// POST /api/apparel/back
func (s *server) handleApparelBack(w http.ResponseWriter, r *http.Request) {
	s.runTransition(w, r, s.orch.BackToPreview)
}

// POST /api/tryon
func (s *server) handleTryOn(w http.ResponseWriter, r *http.Request) {
	s.runTransition(w, r, func() error {
		return s.orch.VirtualTryOn(r.Context())
	})
}

// POST /api/regenerate {background, angle, custom}
func (s *server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Background string `json:"background"`
		Angle      string `json:"angle"`
		Custom     string `json:"custom"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	if err := s.orch.Regenerate(r.Context(), req.Background, req.Angle, req.Custom); err != nil {
		httpError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.orch.Snapshot())
}

// POST /api/startover
func (s *server) handleStartOver(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.orch.StartOver()
	respondJSON(w, http.StatusOK, s.orch.Snapshot())
}

// POST /api/preview {target}
func (s *server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	res, err := s.orch.Preview(r.Context(), workflow.PreviewTarget(req.Target))
	if err != nil {
		httpError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// POST /api/share {platform}
func (s *server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Platform string `json:"platform"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	shareURL, err := s.orch.Share(r.Context(), share.Platform(req.Platform))
	if err != nil {
		httpError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"shareUrl": shareURL})
}

// runTransition handles the bodyless POST transitions, all of which
// respond with the fresh state snapshot.
func (s *server) runTransition(w http.ResponseWriter, r *http.Request, transition func() error) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := transition(); err != nil {
		httpError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.orch.Snapshot())
}
