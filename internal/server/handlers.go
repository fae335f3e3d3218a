// Package server exposes the generation pipeline over HTTP for
// harness integration. One daemon serves many rule packs; each request
// runs in its own output directory and publishes its results as
// downloadable artifacts.
package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"example.com/rrcforge/internal/common"
	"example.com/rrcforge/internal/config"
	"example.com/rrcforge/internal/field"
	"example.com/rrcforge/internal/mutate"
	"example.com/rrcforge/internal/report"
	"example.com/rrcforge/internal/rules"
	"example.com/rrcforge/internal/testcase"
	"example.com/rrcforge/internal/wire"
)

// Server coordinates HTTP handlers and manages temporary artifacts
// produced by generation requests.
type Server struct {
	artifacts   *ArtifactStore
	workDir     string
	uploadsDir  string
	packs       map[string]packEntry
	packIDs     []string
	cfg         config.Config
	concurrency int
}

// Artifact represents a file generated or stored by the daemon.
type Artifact struct {
	ID          string
	Path        string
	Name        string
	ContentType string
	Size        int64
	Kind        string
}

// ArtifactRef is the public representation returned in API responses.
type ArtifactRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// ArtifactStore keeps track of generated artifacts for later download.
type ArtifactStore struct {
	mu      sync.RWMutex
	entries map[string]Artifact
}

// NewServer constructs a Server rooted at a temporary workspace
// directory.
func NewServer(opts Options) (*Server, error) {
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(storageDir, "rrcforged-")
	if err != nil {
		return nil, err
	}
	uploadsDir := filepath.Join(workDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	packs, ids, err := buildPackMap(opts)
	if err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	cfg := opts.Engine
	if cfg.EnumerationCap == 0 {
		// Zero-valued engine options mean the caller never loaded a
		// config file.
		cfg = config.Default()
	}
	s := &Server{
		artifacts:   &ArtifactStore{entries: make(map[string]Artifact)},
		workDir:     workDir,
		uploadsDir:  uploadsDir,
		packs:       packs,
		packIDs:     ids,
		cfg:         cfg,
		concurrency: concurrency,
	}
	return s, nil
}

// Close removes any temporary state associated with the server.
func (s *Server) Close() error {
	if s == nil || s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

func (s *Server) addArtifact(path, displayName, contentType, kind string) (Artifact, error) {
	if path == "" {
		return Artifact{}, errors.New("empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	id := randomID()
	art := Artifact{
		ID:          id,
		Path:        path,
		Name:        displayName,
		ContentType: contentType,
		Size:        info.Size(),
		Kind:        kind,
	}
	if art.Name == "" {
		art.Name = filepath.Base(path)
	}
	if art.ContentType == "" {
		art.ContentType = guessContentType(art.Name)
	}
	s.artifacts.mu.Lock()
	s.artifacts.entries[id] = art
	s.artifacts.mu.Unlock()
	return art, nil
}

func (s *Server) getArtifact(id string) (Artifact, bool) {
	s.artifacts.mu.RLock()
	art, ok := s.artifacts.entries[id]
	s.artifacts.mu.RUnlock()
	return art, ok
}

func (s *Server) resolvePath(token string) (string, error) {
	if token == "" {
		return "", errors.New("empty input path")
	}
	if art, ok := s.getArtifact(token); ok {
		return art.Path, nil
	}
	abs := token
	if !filepath.IsAbs(token) {
		abs = filepath.Clean(token)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", err
	}
	return abs, nil
}

type generateRequest struct {
	Message    string          `json:"message"`
	Domains    string          `json:"domains"`
	PackID     string          `json:"packId"`
	RulePack   *rules.RulePack `json:"rulePack"`
	Mode       string          `json:"mode"`
	Exhaustive *bool           `json:"exhaustive"`
}

type generateResponse struct {
	Counters    testcase.Counters `json:"counters"`
	UniquePairs int               `json:"uniquePairs"`
	TestCases   []ArtifactRef     `json:"testCases"`
	Report      ArtifactRef       `json:"report"`
	ReportPDF   ArtifactRef       `json:"reportPdf"`
	Problems    ArtifactRef       `json:"problems"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stream := r.URL.Query().Get("stream") == "true"
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}
	messagePath, err := s.resolvePath(req.Message)
	if err != nil {
		http.Error(w, fmt.Sprintf("message resolve: %v", err), http.StatusBadRequest)
		return
	}
	var domainsPath string
	if req.Domains != "" {
		if domainsPath, err = s.resolvePath(req.Domains); err != nil {
			http.Error(w, fmt.Sprintf("domains resolve: %v", err), http.StatusBadRequest)
			return
		}
	}
	pack, err := s.loadRulePack(req.PackID, req.RulePack)
	if err != nil {
		http.Error(w, fmt.Sprintf("load rule pack: %v", err), http.StatusBadRequest)
		return
	}
	mode := mutate.Violate
	switch strings.ToLower(strings.TrimSpace(req.Mode)) {
	case "", "violate":
	case "satisfy":
		mode = mutate.Satisfy
	default:
		http.Error(w, fmt.Sprintf("unknown mode %q", req.Mode), http.StatusBadRequest)
		return
	}

	cfg := s.cfg
	cfg.Concurrency = s.concurrency
	if req.Exhaustive != nil {
		cfg.Exhaustive = *req.Exhaustive
	}
	outDir, err := os.MkdirTemp(s.workDir, "run-")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	cfg.OutDir = outDir

	resp, runErr := s.runGeneration(messagePath, domainsPath, pack, mode, cfg)
	if runErr != nil {
		http.Error(w, fmt.Sprintf("generation failed: %v", runErr), http.StatusBadRequest)
		return
	}

	if stream {
		w.Header().Set("Content-Type", "application/x-ndjson")
		writer := NewNDJSONWriter(w)
		problems, _ := common.ReadProblemLog(filepath.Join(outDir, "problems.ndjson"))
		for _, p := range problems {
			if err := writer.WriteProblem(p); err != nil {
				return
			}
		}
		_ = writer.WriteObject(map[string]any{"type": "summary", "result": resp})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) runGeneration(messagePath, domainsPath string, pack rules.RulePack, mode mutate.Mode, cfg config.Config) (*generateResponse, error) {
	flat, err := field.ReadFlatFields(messagePath)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	domains := map[int]field.DomainFile{}
	if domainsPath != "" {
		if domains, err = field.ReadDomainDir(domainsPath); err != nil {
			return nil, fmt.Errorf("read domains: %w", err)
		}
	}
	cat, err := field.Load(flat, domains)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	problemsPath := filepath.Join(cfg.OutDir, "problems.ndjson")
	plog := common.NewProblemLog(problemsPath)
	rc := testcase.NewRunContext(nil, plog, nil)
	asm := testcase.NewAssembler(cfg.OutDir, cfg.AllowsMultiVariant)

	engine := rules.NewEngine(pack, cfg)
	engine.SetMode(mode)
	engine.SetConcurrency(cfg.Concurrency)
	if err := engine.Run(rc, cat, asm); err != nil {
		return nil, err
	}

	digest, _, _ := common.Sha256OfFile(messagePath)
	rep := report.RunReport{
		GeneratedAt: time.Now().UTC(),
		MessageFile: filepath.Base(messagePath),
		InputDigest: digest,
		RulePackID:  pack.RulePackID,
		RuleVersion: pack.Version,
		OutDir:      cfg.OutDir,
		Mode:        modeString(mode),
		Counters:    rc.Summary(),
		UniquePairs: asm.Covered(),
	}
	rep.Problems, _ = common.ReadProblemLog(problemsPath)

	resp := &generateResponse{Counters: rep.Counters, UniquePairs: rep.UniquePairs}

	entries, err := os.ReadDir(cfg.OutDir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		art, err := s.addArtifact(filepath.Join(cfg.OutDir, name), name, "application/json", "testcase")
		if err != nil {
			continue
		}
		resp.TestCases = append(resp.TestCases, toRef(art))
	}
	sort.Slice(resp.TestCases, func(i, j int) bool { return resp.TestCases[i].Name < resp.TestCases[j].Name })

	reportPath := filepath.Join(cfg.OutDir, "run-report.json")
	if err := report.SaveRunJSON(rep, reportPath); err == nil {
		if art, err := s.addArtifact(reportPath, "run-report.json", "application/json", "report"); err == nil {
			resp.Report = toRef(art)
		}
	}
	pdfPath := filepath.Join(cfg.OutDir, "run-report.pdf")
	if err := report.SaveRunPDF(rep, pdfPath); err == nil {
		if art, err := s.addArtifact(pdfPath, "run-report.pdf", "application/pdf", "report"); err == nil {
			resp.ReportPDF = toRef(art)
		}
	}
	if _, err := os.Stat(problemsPath); err == nil {
		if art, err := s.addArtifact(problemsPath, "problems.ndjson", "application/x-ndjson", "problems"); err == nil {
			resp.Problems = toRef(art)
		}
	}
	return resp, nil
}

type classifyRequest struct {
	Rules []string `json:"rules"`
}

type classifyResult struct {
	Rule           string `json:"rule"`
	ConstraintType string `json:"constraintType,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Rules) == 0 {
		http.Error(w, "rules required", http.StatusBadRequest)
		return
	}
	results := make([]classifyResult, len(req.Rules))
	for i, expr := range req.Rules {
		rule := rules.Rule{DSLRule: expr, HasValidRule: true}
		results[i] = classifyResult{Rule: expr}
		if err := rule.Compile(); err != nil {
			results[i].Error = err.Error()
			continue
		}
		results[i].ConstraintType = string(rule.Type)
	}
	writeJSON(w, http.StatusOK, struct {
		Results []classifyResult `json:"results"`
	}{Results: results})
}

type diffRequest struct {
	Original string `json:"original"`
	Mutated  string `json:"mutated"`
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req diffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	original, err := wire.DecodeHex(req.Original)
	if err != nil {
		http.Error(w, fmt.Sprintf("original: %v", err), http.StatusBadRequest)
		return
	}
	mutated, err := wire.DecodeHex(req.Mutated)
	if err != nil {
		http.Error(w, fmt.Sprintf("mutated: %v", err), http.StatusBadRequest)
		return
	}
	edits, err := wire.Diff(original, mutated)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Edits     []wire.Edit `json:"edits"`
		PatchList string      `json:"patchList"`
	}{Edits: edits, PatchList: wire.FormatEdits(edits)})
}

func (s *Server) handlePacks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Packs []string `json:"packs"`
	}{Packs: s.packIDs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/artifacts/")
	if id == "" {
		writeJSON(w, http.StatusOK, struct {
			Artifacts []ArtifactRef `json:"artifacts"`
		}{Artifacts: s.listArtifacts()})
		return
	}
	art, ok := s.getArtifact(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(art.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Name))
	io.Copy(w, f)
}

func (s *Server) loadRulePack(packID string, override *rules.RulePack) (rules.RulePack, error) {
	if override != nil && len(override.Rules) > 0 {
		return *override, nil
	}
	id := strings.TrimSpace(packID)
	if id == "" {
		if len(s.packIDs) == 1 {
			id = s.packIDs[0]
		} else {
			return rules.RulePack{}, errors.New("packId required when no inline rule pack is given")
		}
	}
	entry, ok := s.packs[id]
	if !ok {
		return rules.RulePack{}, fmt.Errorf("unknown rule pack %s", id)
	}
	return rules.LoadRulePack(entry.rulesPath)
}

func (s *Server) listArtifacts() []ArtifactRef {
	s.artifacts.mu.RLock()
	refs := make([]ArtifactRef, 0, len(s.artifacts.entries))
	for _, art := range s.artifacts.entries {
		refs = append(refs, toRef(art))
	}
	s.artifacts.mu.RUnlock()
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}

func toRef(art Artifact) ArtifactRef {
	return ArtifactRef{
		ID:          art.ID,
		Name:        art.Name,
		ContentType: art.ContentType,
		Size:        art.Size,
		Kind:        art.Kind,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func guessContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".ndjson":
		return "application/x-ndjson"
	case ".pdf":
		return "application/pdf"
	case ".txt", ".patch":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func randomID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		now := time.Now().UTC()
		return fmt.Sprintf("%d%06d", now.UnixNano(), os.Getpid())
	}
	return hex.EncodeToString(b[:])
}

func modeString(mode mutate.Mode) string {
	if mode == mutate.Satisfy {
		return "satisfy"
	}
	return "violate"
}
