package server

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"example.com/cnfconv/internal/cnf"
	"example.com/cnfconv/internal/common"
	"example.com/cnfconv/internal/config"
	"example.com/cnfconv/internal/convert"
	"example.com/cnfconv/internal/manifest"
	"example.com/cnfconv/internal/report"
)

const (
	defaultMaxUpload   = 64 << 20
	maxManifestRequest = 1 << 20
)

var errOutsideStorage = errors.New("path is outside the storage directory")

// Server coordinates HTTP handlers and manages uploaded files and the
// artifacts produced from them.
type Server struct {
	artifacts     *ArtifactStore
	storageDir    string
	workDir       string
	uploadsDir    string
	defaultFormat string
	maxUpload     int64
	maxDecoded    int64
	signing       ManifestSigningOptions
	journal       *common.Journal
	metrics       *common.Metrics
	started       time.Time
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

// formatErrorResponse is the body returned for undecodable inputs.
type formatErrorResponse struct {
	Error  string `json:"error"`
	Op     string `json:"op,omitempty"`
	Offset *int64 `json:"offset,omitempty"`
}

// NewServer constructs a Server rooted at a temporary workspace directory.
func NewServer(opts Options) (*Server, error) {
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	storageDir, err := filepath.Abs(storageDir)
	if err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(storageDir, "cnfd-")
	if err != nil {
		return nil, err
	}
	uploadsDir := filepath.Join(workDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	format := opts.DefaultFormat
	if format == "" {
		format = config.FormatText
	}
	if !config.IsFormat(format) {
		os.RemoveAll(workDir)
		return nil, fmt.Errorf("unknown default format %q", format)
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = common.NewMetrics()
	}
	metrics.Start()
	s := &Server{
		artifacts:     &ArtifactStore{entries: make(map[string]Artifact)},
		storageDir:    storageDir,
		workDir:       workDir,
		uploadsDir:    uploadsDir,
		defaultFormat: format,
		maxUpload:     maxUpload,
		maxDecoded:    opts.MaxDecodedBytes,
		signing:       opts.ManifestSigning,
		journal:       opts.Journal,
		metrics:       metrics,
		started:       time.Now().UTC(),
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

func (s *Server) tempPath(pattern string) (string, error) {
	f, err := os.CreateTemp(s.workDir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	f.Close()
	return name, nil
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
	if !filepath.IsLocal(token) {
		return "", fmt.Errorf("%s: %w", token, errOutsideStorage)
	}
	root, err := filepath.EvalSymlinks(s.storageDir)
	if err != nil {
		return "", err
	}
	path, err := filepath.EvalSymlinks(filepath.Join(root, token))
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%s: %w", token, errOutsideStorage)
	}
	return path, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Status  string    `json:"status"`
		Started time.Time `json:"started"`
	}{Status: "ok", Started: s.started}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// handleConvert decodes a CNF file sent as the raw request body, as the
// multipart field "file", or referenced by ?artifact=<id>, and responds
// with the report in the format named by ?format=.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = s.defaultFormat
	}
	if !config.IsFormat(format) {
		http.Error(w, fmt.Sprintf("unknown format %q", format), http.StatusBadRequest)
		return
	}
	name, raw, status, err := s.readInput(w, r)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}

	sha := common.Sha256Hex(raw)
	entry := common.JournalEntry{Input: name, InputSHA: sha}
	rep, err := s.decode(name, raw)
	if err != nil {
		s.metrics.IncFailure()
		entry.Error = err.Error()
		s.appendJournal(entry)
		var fe *cnf.FormatError
		if errors.As(err, &fe) {
			resp := formatErrorResponse{Error: err.Error(), Op: fe.Op}
			if fe.Offset >= 0 {
				off := fe.Offset
				resp.Offset = &off
			}
			writeJSON(w, http.StatusUnprocessableEntity, resp)
			return
		}
		status := http.StatusBadRequest
		if errors.Is(err, common.ErrDecompressedTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, formatErrorResponse{Error: err.Error(), Op: "decompress"})
		return
	}

	var buf bytes.Buffer
	if err := convert.Render(&buf, report.NewDocument(rep, name, sha), format); err != nil {
		http.Error(w, fmt.Sprintf("render %s: %v", format, err), http.StatusInternalServerError)
		return
	}
	s.metrics.AddFile(int64(len(raw)))
	entry.Channels, entry.Total = rep.NumChannels(), rep.TotalCounts
	s.appendJournal(entry)

	outName := filepath.Base(common.TrimInputExt(name)) + "." + format
	w.Header().Set("Content-Type", convert.ContentType(format))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": outName}))
	w.Header().Set("X-Input-Sha256", sha)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) decode(name string, raw []byte) (*cnf.Report, error) {
	data, err := common.Decompress(raw, common.CompressionOf(name), s.maxDecoded)
	if err != nil {
		return nil, err
	}
	return cnf.Decode(data)
}

func (s *Server) appendJournal(entry common.JournalEntry) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(entry); err != nil {
		common.Logf("journal: %v", err)
	}
}

// readInput returns the input name and bytes of a convert request, or an
// HTTP status and error.
func (s *Server) readInput(w http.ResponseWriter, r *http.Request) (string, []byte, int, error) {
	if id := r.URL.Query().Get("artifact"); id != "" {
		art, ok := s.getArtifact(id)
		if !ok {
			return "", nil, http.StatusNotFound, fmt.Errorf("artifact %s not found", id)
		}
		raw, err := os.ReadFile(art.Path)
		if err != nil {
			return "", nil, http.StatusInternalServerError, fmt.Errorf("read artifact: %w", err)
		}
		return art.Name, raw, 0, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return "", nil, bodyStatus(err), fmt.Errorf("parse multipart: %w", err)
		}
		f, fh, err := r.FormFile("file")
		if err != nil {
			return "", nil, http.StatusBadRequest, fmt.Errorf("multipart field file: %w", err)
		}
		defer f.Close()
		raw, err := io.ReadAll(f)
		if err != nil {
			return "", nil, http.StatusBadRequest, fmt.Errorf("read upload: %w", err)
		}
		return fh.Filename, raw, 0, nil
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, bodyStatus(err), fmt.Errorf("read body: %w", err)
	}
	if len(raw) == 0 {
		return "", nil, http.StatusBadRequest, errors.New("empty request body")
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload.cnf"
	}
	return filepath.Base(name), raw, 0, nil
}

func bodyStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Inputs  []string `json:"inputs"`
		ShaAlgo string   `json:"shaAlgo"`
		Sign    bool     `json:"sign"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxManifestRequest)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), bodyStatus(err))
		return
	}
	if len(req.Inputs) == 0 {
		http.Error(w, "inputs required", http.StatusBadRequest)
		return
	}
	if req.ShaAlgo != "" && !strings.EqualFold(req.ShaAlgo, "sha256") {
		http.Error(w, "only sha256 supported", http.StatusBadRequest)
		return
	}
	if req.Sign && !s.signing.enabled() {
		http.Error(w, "manifest signing is not configured", http.StatusBadRequest)
		return
	}
	var paths []string
	for _, in := range req.Inputs {
		resolved, err := s.resolvePath(in)
		if err != nil {
			http.Error(w, fmt.Sprintf("resolve %s: %v", in, err), http.StatusBadRequest)
			return
		}
		paths = append(paths, resolved)
	}
	m, err := manifest.Build(paths)
	if err != nil {
		http.Error(w, fmt.Sprintf("build manifest: %v", err), http.StatusInternalServerError)
		return
	}
	outPath, err := s.tempPath("manifest-*.json")
	if err != nil {
		http.Error(w, fmt.Sprintf("manifest temp: %v", err), http.StatusInternalServerError)
		return
	}
	var sigRef *ArtifactRef
	if req.Sign {
		keyPEM, err := os.ReadFile(s.signing.PrivateKeyPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("read signing key: %v", err), http.StatusInternalServerError)
			return
		}
		certPEM, err := os.ReadFile(s.signing.CertificatePath)
		if err != nil {
			http.Error(w, fmt.Sprintf("read signing cert: %v", err), http.StatusInternalServerError)
			return
		}
		sigPath := manifest.SignaturePath(outPath)
		if m, err = manifest.SaveSigned(m, outPath, sigPath, keyPEM, certPEM); err != nil {
			http.Error(w, fmt.Sprintf("sign manifest: %v", err), http.StatusInternalServerError)
			return
		}
		sigArt, err := s.addArtifact(sigPath, "manifest.jws", "application/jose+json", "signature")
		if err != nil {
			http.Error(w, fmt.Sprintf("register signature: %v", err), http.StatusInternalServerError)
			return
		}
		ref := toRef(sigArt)
		sigRef = &ref
	} else if err := manifest.Save(m, outPath); err != nil {
		http.Error(w, fmt.Sprintf("write manifest: %v", err), http.StatusInternalServerError)
		return
	}
	art, err := s.addArtifact(outPath, "manifest.json", "application/json", "manifest")
	if err != nil {
		http.Error(w, fmt.Sprintf("register manifest: %v", err), http.StatusInternalServerError)
		return
	}
	resp := struct {
		Manifest  manifest.Manifest `json:"manifest"`
		Artifact  ArtifactRef       `json:"artifact"`
		Signature *ArtifactRef      `json:"signature,omitempty"`
	}{
		Manifest:  m,
		Artifact:  toRef(art),
		Signature: sigRef,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleArtifactList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.listArtifacts())
}

func (s *Server) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	art, ok := s.getArtifact(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(art.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("open artifact: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, fmt.Sprintf("stat artifact: %v", err), http.StatusInternalServerError)
		return
	}
	if art.ContentType != "" {
		w.Header().Set("Content-Type", art.ContentType)
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": art.Name}))
	io.Copy(w, f)
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
	name = strings.ToLower(name)
	switch common.CompressionOf(name) {
	case common.CompressionGzip:
		return "application/gzip"
	case common.CompressionZstd:
		return "application/zstd"
	case common.CompressionLZ4:
		return "application/x-lz4"
	}
	switch filepath.Ext(name) {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func randomID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		now := time.Now().UTC()
		return fmt.Sprintf("%x%06x", now.UnixNano(), os.Getpid())
	}
	return hex.EncodeToString(b[:])
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
