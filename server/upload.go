package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/vitwit/databox/types"
)

// uploadRequest carries one content source (message, base64 file, or url)
// plus the metadata every dataset must declare.
type uploadRequest struct {
	Message  string `json:"message"`
	File     string `json:"file"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	URL      string `json:"url" validate:"omitempty,url"`

	Name        string      `json:"name" validate:"required"`
	Description string      `json:"description" validate:"required"`
	PriceUSDC   json.Number `json:"priceUSDC"`
	PayAddress  string      `json:"payAddress" validate:"required"`
}

type uploadResponse struct {
	Success        bool   `json:"success"`
	Handle         string `json:"handle"`
	Size           int    `json:"size"`
	Type           string `json:"type"`
	Name           string `json:"name"`
	Filetype       string `json:"filetype"`
	Filename       string `json:"filename,omitempty"`
	Description    string `json:"description"`
	PriceUSDC      string `json:"priceUSDC"`
	PayAddress     string `json:"payAddress"`
	RegistryTxHash string `json:"registryTxHash,omitempty"`
	Message        string `json:"message"`
}

var extensionMime = map[string]string{
	"pdf":  "application/pdf",
	"txt":  "text/plain",
	"json": "application/json",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"mp4":  "video/mp4",
	"mp3":  "audio/mpeg",
	"zip":  "application/zip",
	"html": "text/html",
	"css":  "text/css",
	"js":   "application/javascript",
	"xml":  "application/xml",
}

// deduceFiletype prefers an explicit mime type, then the filename extension.
func deduceFiletype(mimeType, filename string) string {
	if mimeType != "" {
		return mimeType
	}
	if filename != "" {
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
		if m, ok := extensionMime[ext]; ok {
			return m
		}
	}
	return "application/octet-stream"
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, "request body is not valid JSON", nil)
		return
	}

	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, fmt.Sprintf("invalid upload: %v", err), nil)
		return
	}
	if req.PriceUSDC.String() == "" {
		writeError(w, http.StatusBadRequest, kindBadRequest, "priceUSDC is required (atomic 6-decimal units)", nil)
		return
	}
	if req.Message == "" && req.File == "" && req.URL == "" {
		writeError(w, http.StatusBadRequest, kindBadRequest, "one of message, file, or url is required", map[string]any{
			"usage": `POST /upload with {"message": "text"} or {"file": "<base64>", "filename": "doc.pdf"} or {"url": "https://..."}`,
		})
		return
	}

	var (
		data        []byte
		filename    string
		filetype    string
		uploadKind  string
		fetchedMime string
	)

	switch {
	case req.URL != "":
		fetched, urlName, urlMime, err := s.fetchURL(r, req.URL)
		if err != nil {
			writeError(w, http.StatusInternalServerError, kindInternal,
				fmt.Sprintf("could not download from url: %v", err), nil)
			return
		}
		data = fetched
		fetchedMime = urlMime
		filename = urlName
		if filename == "" {
			filename = req.Filename
		}
		if filename == "" {
			filename = req.Name
		}
		if fetchedMime == "" {
			fetchedMime = req.MimeType
		}
		filetype = deduceFiletype(fetchedMime, filename)
		uploadKind = "url"

	case req.File != "":
		if req.Filename == "" {
			writeError(w, http.StatusBadRequest, kindBadRequest, "filename is required when uploading a file", nil)
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(req.File)
		if err != nil {
			writeError(w, http.StatusBadRequest, kindBadRequest, "file is not valid base64", nil)
			return
		}
		data = decoded
		filename = req.Filename
		filetype = deduceFiletype(req.MimeType, req.Filename)
		uploadKind = "file"

	default:
		data = []byte(req.Message)
		filetype = "text/plain"
		uploadKind = "message"
	}

	record, err := s.gateway.Store(r.Context(), data, filetype)
	if err != nil {
		writeFailure(w, err)
		return
	}

	ds := types.Dataset{
		Handle:      record.Handle,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.PriceUSDC.String(),
		Filetype:    filetype,
	}

	// Registration is best effort: the blob is already stored, so a chain
	// failure is logged and the upload still succeeds.
	var registryTx string
	if s.registry != nil {
		registryTx, err = s.registry.RegisterUpload(r.Context(), ds, req.PayAddress)
		if err != nil {
			s.log.Error("registry registration failed", map[string]any{
				"handle": record.Handle,
				"error":  err.Error(),
			})
			registryTx = ""
		}
	}
	s.index.Add(ds)

	s.metrics.IncCounter("upload", map[string]string{"network": s.price.Network.String()})

	responseType := filetype
	if uploadKind == "message" {
		responseType = "message"
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Success:        true,
		Handle:         record.Handle,
		Size:           record.ByteLength,
		Type:           responseType,
		Name:           req.Name,
		Filetype:       filetype,
		Filename:       filename,
		Description:    req.Description,
		PriceUSDC:      req.PriceUSDC.String(),
		PayAddress:     req.PayAddress,
		RegistryTxHash: registryTx,
		Message:        uploadMessage(uploadKind, filename, req.URL),
	})
}

func uploadMessage(kind, filename, url string) string {
	switch kind {
	case "url":
		return fmt.Sprintf("File from url %q stored as %q", url, filename)
	case "file":
		return fmt.Sprintf("File %q stored", filename)
	default:
		return "Message stored"
	}
}

// fetchURL pulls the content behind a url-based upload.
func (s *Server) fetchURL(r *http.Request, url string) (data []byte, filename, mimeType string, err error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, "", "", err
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", "", fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", "", err
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if parsed, _, err := mime.ParseMediaType(ct); err == nil {
			mimeType = parsed
		}
	}

	if base := path.Base(resp.Request.URL.Path); base != "." && base != "/" {
		filename = base
	}
	return data, filename, mimeType, nil
}
