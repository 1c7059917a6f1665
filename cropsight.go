// Package cropsight identifies crop pests and diseases from images using
// few-shot prototype classification, with external vision providers as
// fallback and best-effort knowledge enrichment.
package cropsight

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/cropsight/cropsight/detector"
	"github.com/cropsight/cropsight/encoder"
	"github.com/cropsight/cropsight/internal/encsrv"
	"github.com/cropsight/cropsight/internal/gemini"
	"github.com/cropsight/cropsight/internal/onnxenc"
	"github.com/cropsight/cropsight/internal/openaivision"
	"github.com/cropsight/cropsight/knowledge"
)

type InitOptions struct {
	Config *Config

	HttpClient *http.Client // if nil uses http.DefaultClient
	Logger     *slog.Logger // if nil uses slog.Default()

	// Store and Encoder override what Config would construct. Tests inject
	// fakes here.
	Store   PrototypeStore
	Encoder encoder.Encoder
}

// Cropsight wires the store, encoder, detection chain, enrichment gate, and
// learner together behind the three caller-facing operations: Classify,
// Learn, ListPrototypes.
type Cropsight struct {
	Store   PrototypeStore
	Encoder encoder.Encoder
	Chain   *Chain
	Gate    *Gate
	Learner *Learner

	cfg    *Config
	logger *slog.Logger
	db     *DB // set when the store is sqlite-backed, for Close
}

func Init(ctx context.Context, opts InitOptions) (*Cropsight, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := opts.HttpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	cs := &Cropsight{cfg: cfg, logger: logger}

	switch {
	case opts.Store != nil:
		cs.Store = opts.Store
	case cfg.DBPath != "":
		db, err := NewDB(ctx, cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening prototype db: %w", err)
		}
		cs.db = db
		cs.Store = db
	default:
		cs.Store = NewMemStore()
	}

	enc := opts.Encoder
	if enc == nil {
		var err error
		switch cfg.Encoder.Backend {
		case "onnx":
			enc, err = onnxenc.New(cfg.Encoder.ModelPath, cfg.Encoder.Dim)
		case "remote":
			enc = encsrv.New(cfg.Encoder.Endpoint, cfg.Encoder.Dim, httpClient)
		default:
			err = fmt.Errorf("unknown encoder backend %q", cfg.Encoder.Backend)
		}
		if err != nil {
			return nil, err
		}
	}
	cs.Encoder = enc

	classifier := NewClassifier(cfg.RiskBands)

	// Detection and enrichment can share one Gemini client.
	var gem *gemini.Client
	geminiClient := func(model, keyEnv string) (*gemini.Client, error) {
		if gem != nil {
			return gem, nil
		}
		g, err := gemini.New(ctx, os.Getenv(keyEnv), model, cfg.RiskBands)
		if err != nil {
			return nil, err
		}
		gem = g
		return gem, nil
	}

	var providers []ChainProvider
	for _, pc := range cfg.Providers {
		var (
			d   detector.Detector
			err error
		)
		switch pc.Name {
		case "local-prototype":
			d = NewLocalDetector(enc, cs.Store, classifier)
		case "gemini":
			d, err = geminiClient(pc.Model, pc.APIKeyEnv)
		case "openai":
			d = openaivision.Init(httpClient, pc.Model, cfg.RiskBands)
		default:
			err = fmt.Errorf("unknown detection provider %q", pc.Name)
		}
		if err != nil {
			return nil, err
		}
		providers = append(providers, ChainProvider{Detector: d, Timeout: pc.Timeout()})
	}
	cs.Chain = NewChain(logger, providers...)

	var gen knowledge.Generator
	switch cfg.Enrichment.Generator {
	case "":
		// enrichment disabled
	case "gemini":
		g, err := geminiClient(cfg.Enrichment.Model, cfg.Enrichment.APIKeyEnv)
		if err != nil {
			return nil, err
		}
		gen = g
	default:
		return nil, fmt.Errorf("unknown knowledge generator %q", cfg.Enrichment.Generator)
	}
	cs.Gate = NewGate(gen, cfg.Enrichment.ConfidenceThreshold, logger)

	cs.Learner = NewLearner(enc, cs.Store)

	return cs, nil
}

// Classify runs the detection chain for one image and enriches the result
// when the gate asks for it. The returned result carries the provenance of
// whichever provider produced it.
func (cs *Cropsight) Classify(ctx context.Context, image []byte) (*detector.Result, error) {
	if err := cs.checkImage(image); err != nil {
		return nil, err
	}

	res, err := cs.Chain.Detect(ctx, image)
	if err != nil {
		return nil, err
	}

	if cs.Gate.ShouldEnrich(res) {
		ectx, cancel := context.WithTimeout(ctx, cs.cfg.Enrichment.Timeout())
		res = cs.Gate.Enrich(ectx, res)
		cancel()
	}

	return res, nil
}

// Learn registers a new class from exemplar images.
func (cs *Cropsight) Learn(ctx context.Context, label string, images [][]byte) (*Prototype, error) {
	for i, img := range images {
		if err := cs.checkImage(img); err != nil {
			return nil, fmt.Errorf("exemplar %d: %w", i+1, err)
		}
	}
	return cs.Learner.Learn(ctx, label, images)
}

// ListPrototypes returns a snapshot of every learned class.
func (cs *Cropsight) ListPrototypes(ctx context.Context) ([]*Prototype, error) {
	return cs.Store.All(ctx)
}

func (cs *Cropsight) Close() {
	if closer, ok := cs.Encoder.(interface{ Close() error }); ok {
		closer.Close()
	}
	if cs.db != nil {
		cs.db.Close()
	}
}

func (cs *Cropsight) checkImage(image []byte) error {
	if len(image) == 0 {
		return &encoder.InputError{Reason: "empty image"}
	}
	if limit := cs.cfg.MaxImageMB * 1024 * 1024; limit > 0 && len(image) > limit {
		return &encoder.InputError{
			Reason: fmt.Sprintf("image is %d bytes, limit is %d MB", len(image), cs.cfg.MaxImageMB),
		}
	}
	return nil
}
