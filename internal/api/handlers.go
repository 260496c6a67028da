package api

import (
	"net/http"

	"github.com/sprite-ai/revroom/internal/diff"
	"github.com/sprite-ai/revroom/internal/model"
	"github.com/sprite-ai/revroom/internal/rank"
)

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Parse ---

type parseRequest struct {
	Patch string `json:"patch"`
	Mode  string `json:"mode,omitempty"`
}

type parseResponse struct {
	Lines   []model.PatchLine `json:"lines"`
	Unified []diff.UnifiedRow `json:"unified,omitempty"`
	Split   *diff.SplitView   `json:"split,omitempty"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	lines := diff.Parse(req.Patch)
	resp := parseResponse{Lines: lines}
	if resp.Lines == nil {
		resp.Lines = []model.PatchLine{}
	}

	if req.Mode != "" {
		mode, err := model.ParseViewMode(req.Mode)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		switch mode {
		case model.ViewUnified:
			resp.Unified = diff.Unified(lines)
		case model.ViewSplit:
			sv := diff.Split(lines)
			resp.Split = &sv
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// --- Enrich ---

type enrichRequest struct {
	Files       []model.FileEntry      `json:"files"`
	Ranking     *model.RankingResponse `json:"ranking"`
	Clustering  *model.ClusterResponse `json:"clustering"`
	ReviewOrder bool                   `json:"review_order"`
	ClusterID   *int                   `json:"cluster_id,omitempty"`
}

type enrichResponse struct {
	Files         []model.EnrichedFile `json:"files"`
	MLUnavailable bool                 `json:"ml_unavailable"`
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	files := rank.Enrich(req.Files, req.Ranking, req.Clustering)
	if req.ReviewOrder {
		files = rank.ReviewOrder(files)
	}
	files = rank.FilterCluster(files, req.ClusterID)
	if files == nil {
		files = []model.EnrichedFile{}
	}

	s.writeJSON(w, http.StatusOK, enrichResponse{
		Files:         files,
		MLUnavailable: rank.MLUnavailable(req.Ranking, req.Clustering),
	})
}

// --- Rooms ---

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]map[string]int{"rooms": s.hub.Rooms()})
}
