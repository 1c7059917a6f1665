package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cropsight/cropsight"
	"github.com/cropsight/cropsight/encoder"
)

// Server exposes the core operations over JSON HTTP: detect, learn, list.
type Server struct {
	hs     *http.Server
	cs     *cropsight.Cropsight
	logger *log.Logger
}

func NewServer(cs *cropsight.Cropsight, port string) *Server {
	srv := &Server{
		cs:     cs,
		logger: log.Default(),
	}

	srv.hs = &http.Server{
		Addr:    net.JoinHostPort("0.0.0.0", port),
		Handler: srv.serveHandler(),
	}

	return srv
}

func (s *Server) Start() error {
	return s.hs.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.hs.Shutdown(ctx)
}

func (s *Server) serveHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/detect", s.serveDetect())
	mux.Handle("POST /api/learn", s.serveLearn())
	mux.Handle("GET /api/prototypes", s.servePrototypes())
	mux.Handle("GET /healthz", s.serveHealth())

	return mux
}

func (s *Server) serveDetect() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		image, err := readImage(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}

		res, err := s.cs.Classify(req.Context(), image)
		if err != nil {
			s.writeDetectError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) writeDetectError(w http.ResponseWriter, err error) {
	var (
		inputErr *encoder.InputError
		allErr   *cropsight.AllProvidersFailedError
	)
	switch {
	case errors.As(err, &inputErr):
		writeError(w, http.StatusBadRequest, inputErr.Error(), nil)
	case errors.As(err, &allErr):
		reasons := make([]string, len(allErr.Failures))
		for i, f := range allErr.Failures {
			reasons[i] = f.Error()
		}
		writeError(w, http.StatusServiceUnavailable, "detection unavailable", reasons)
	default:
		s.logger.Printf("detect error - %s\n", err)
		writeError(w, http.StatusInternalServerError, "detection failed", nil)
	}
}

func (s *Server) serveLearn() http.HandlerFunc {
	type learnRequest struct {
		Label        string   `json:"label"`
		ImagesBase64 []string `json:"images_base64"`
	}

	return func(w http.ResponseWriter, req *http.Request) {
		var lr learnRequest
		if err := json.NewDecoder(req.Body).Decode(&lr); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body", nil)
			return
		}

		images := make([][]byte, len(lr.ImagesBase64))
		for i, b64 := range lr.ImagesBase64 {
			img, err := decodeBase64Image(b64)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error(), nil)
				return
			}
			images[i] = img
		}

		proto, err := s.cs.Learn(req.Context(), lr.Label, images)
		if err != nil {
			s.writeLearnError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, prototypeView(proto))
	}
}

func (s *Server) writeLearnError(w http.ResponseWriter, err error) {
	var (
		validationErr *cropsight.ValidationError
		duplicateErr  *cropsight.DuplicateClassError
		inputErr      *encoder.InputError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusUnprocessableEntity, validationErr.Error(), nil)
	case errors.As(err, &duplicateErr):
		writeError(w, http.StatusConflict, duplicateErr.Error(), nil)
	case errors.As(err, &inputErr):
		writeError(w, http.StatusBadRequest, inputErr.Error(), nil)
	default:
		s.logger.Printf("learn error - %s\n", err)
		writeError(w, http.StatusInternalServerError, "learn failed", nil)
	}
}

func (s *Server) servePrototypes() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		protos, err := s.cs.ListPrototypes(req.Context())
		if err != nil {
			s.logger.Printf("list error - %s\n", err)
			writeError(w, http.StatusInternalServerError, "listing prototypes failed", nil)
			return
		}

		views := make([]map[string]any, len(protos))
		for i, p := range protos {
			views[i] = prototypeView(p)
		}
		writeJSON(w, http.StatusOK, map[string]any{"prototypes": views})
	}
}

func (s *Server) serveHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":          "ok",
			"encoder":         s.cs.Encoder.Name(),
			"encoder_healthy": s.cs.Encoder.IsHealthy(),
		})
	}
}

func prototypeView(p *cropsight.Prototype) map[string]any {
	return map[string]any{
		"label":              p.Label,
		"sample_count":       p.SampleCount,
		"estimated_accuracy": p.EstAccuracy,
		"created_at":         p.CreatedAt.Format(time.RFC3339),
	}
}

// readImage accepts either a JSON body with image_base64 or a multipart
// upload under the "file" field.
func readImage(req *http.Request) ([]byte, error) {
	ct := req.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		file, _, err := req.FormFile("file")
		if err != nil {
			return nil, errors.New("no file uploaded")
		}
		defer file.Close()
		return io.ReadAll(file)
	}

	var body struct {
		ImageBase64 string `json:"image_base64"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return nil, errors.New("malformed request body")
	}
	return decodeBase64Image(body.ImageBase64)
}

// decodeBase64Image handles both raw base64 and data URI payloads
// ("data:image/jpeg;base64,...").
func decodeBase64Image(b64 string) ([]byte, error) {
	if strings.HasPrefix(b64, "data:") {
		if _, rest, found := strings.Cut(b64, "base64,"); found {
			b64 = rest
		}
	}

	image, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, errors.New("invalid base64 image encoding")
	}
	if len(image) == 0 {
		return nil, errors.New("empty image")
	}
	return image, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, details []string) {
	body := map[string]any{"error": msg}
	if len(details) > 0 {
		body["details"] = details
	}
	writeJSON(w, status, body)
}
