package server

import (
	"net/http"

	"github.com/vitwit/databox/types"
)

func (s *Server) handleHello(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"hello": "world"})
}

// downloadResponse is the retrieved content plus whatever the index knows
// about the dataset.
type downloadResponse struct {
	types.RetrievedContent
	Name     string `json:"name,omitempty"`
	Filetype string `json:"filetype,omitempty"`
	Type     string `json:"type,omitempty"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	handle := requestHandle(r)
	if handle == "" {
		writeError(w, http.StatusBadRequest, kindBadRequest, "missing id parameter", map[string]any{
			"usage": []string{"GET /download?id=<handle>", "GET /download/<handle>"},
		})
		return
	}

	content, err := s.gateway.Retrieve(r.Context(), handle)
	if err != nil {
		writeFailure(w, err)
		return
	}

	resp := downloadResponse{RetrievedContent: *content}
	if ds, ok := s.lookupDataset(r, handle); ok {
		resp.Name = ds.Name
		resp.Filetype = ds.Filetype
	}

	// Plain text with no file identity is a stored message.
	if content.Format == "text" && resp.Filetype == "" {
		resp.Type = "message"
	} else if resp.Filetype != "" {
		resp.Type = resp.Filetype
	} else {
		resp.Type = "application/octet-stream"
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) lookupDataset(r *http.Request, handle string) (types.Dataset, bool) {
	datasets, err := s.index.Datasets(r.Context())
	if err != nil {
		return types.Dataset{}, false
	}
	for _, ds := range datasets {
		if ds.Handle == handle {
			return ds, true
		}
	}
	return types.Dataset{}, false
}

func (s *Server) handleDiscoverAll(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.index.Datasets(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(datasets),
		"results": datasets,
	})
}

func (s *Server) handleDiscoverQuery(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, kindBadRequest, "query parameter 'q' is required", map[string]any{
			"usage": "GET /discover_query?q=search+term",
		})
		return
	}

	datasets, err := s.index.Datasets(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}

	match, ok := bestMatch(query, datasets)
	if !ok {
		writeError(w, http.StatusNotFound, kindNotFound, "no matching dataset found", map[string]any{
			"query": query,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"query":   query,
		"result":  match,
	})
}
