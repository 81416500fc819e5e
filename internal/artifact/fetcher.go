package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bank-churn/backend/internal/store"
)

// ErrModelUnavailable wraps every failure to materialise the model file.
var ErrModelUnavailable = errors.New("model unavailable")

// ErrNoSource is returned when the model is missing locally and no URL is configured.
var ErrNoSource = errors.New("no model URL configured")

// Config locates the model remotely and on disk. Validate, when set, must accept a file
// before it is installed at Path or reused from there.
type Config struct {
	URL      string
	Path     string
	Timeout  time.Duration
	Validate func(path string) error
}

// Registry remembers checksums of materialised artifacts. *store.Database implements it.
type Registry interface {
	GetArtifact(identifier string) (*store.Artifact, error)
	UpsertArtifact(artifact *store.Artifact) error
	TouchArtifact(identifier string, at time.Time) error
}

// Artifact is a model file available on local disk.
type Artifact struct {
	Identifier string    `json:"identifier"`
	Path       string    `json:"path"`
	SHA256     string    `json:"sha256"`
	Size       int64     `json:"size"`
	Downloaded bool      `json:"downloaded"`
	ReadyAt    time.Time `json:"ready_at"`
}

// Fetcher downloads the model once and reuses the cached file afterwards.
type Fetcher struct {
	httpClient *http.Client
	url        string
	path       string
	validate   func(path string) error
	registry   Registry
	mu         sync.Mutex
}

// NewFetcher validates cfg. registry may be nil.
func NewFetcher(cfg Config, registry Registry) (*Fetcher, error) {
	url := strings.TrimSpace(cfg.URL)
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("model path required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		path:       filepath.Clean(path),
		validate:   cfg.Validate,
		registry:   registry,
	}, nil
}

// Fetch returns the local artifact, downloading it only when it is not already present,
// fails validation, or no longer matches the checksum in the registry.
func (f *Fetcher) Fetch(ctx context.Context) (Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(f.path); err == nil {
		artifact, reusable, err := f.reuse()
		if err != nil {
			return Artifact{}, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		}
		if reusable {
			return artifact, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Artifact{}, fmt.Errorf("%w: stat %s: %w", ErrModelUnavailable, f.path, err)
	}

	artifact, err := f.download(ctx)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	f.record(artifact)
	return artifact, nil
}

func (f *Fetcher) reuse() (Artifact, bool, error) {
	sum, size, err := checksum(f.path)
	if err != nil {
		return Artifact{}, false, err
	}
	artifact := Artifact{Identifier: f.identifier(), Path: f.path, SHA256: sum, Size: size, ReadyAt: time.Now().UTC()}
	entry := logrus.WithFields(logrus.Fields{"path": f.path, "sha256": sum})

	if f.validate != nil {
		if err := f.validate(f.path); err != nil {
			if f.url == "" {
				return Artifact{}, false, fmt.Errorf("cached model is invalid: %w", err)
			}
			entry.WithError(err).Warn("cached model failed validation; fetching again")
			return Artifact{}, false, nil
		}
	}

	if f.registry == nil {
		entry.Info("using cached model")
		return artifact, true, nil
	}

	known, err := f.registry.GetArtifact(artifact.Identifier)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		entry.Info("registering cached model")
		f.record(artifact)
		return artifact, true, nil
	case err != nil:
		entry.WithError(err).Warn("artifact registry lookup failed; trusting cached model")
		return artifact, true, nil
	case known.SHA256 != sum && f.url == "":
		entry.WithField("expected", known.SHA256).Warn("cached model changed and there is no URL to fetch from; re-registering")
		f.record(artifact)
		return artifact, true, nil
	case known.SHA256 != sum:
		entry.WithField("expected", known.SHA256).Warn("cached model checksum mismatch; fetching again")
		return Artifact{}, false, nil
	}

	if err := f.registry.TouchArtifact(artifact.Identifier, artifact.ReadyAt); err != nil {
		entry.WithError(err).Warn("record model verification")
	}
	entry.Info("using verified cached model")
	return artifact, true, nil
}

func (f *Fetcher) download(ctx context.Context) (Artifact, error) {
	if f.url == "" {
		return Artifact{}, ErrNoSource
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create model directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Artifact{}, fmt.Errorf("create request: %w", err)
	}

	logrus.WithField("url", f.url).Info("downloading model")
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Artifact{}, fmt.Errorf("download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Artifact{}, fmt.Errorf("download failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		return Artifact{}, errors.New("download returned an HTML page instead of the model file")
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".model-*")
	if err != nil {
		return Artifact{}, err
	}
	hasher := sha256.New()
	size, copyErr := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp.Name())
		return Artifact{}, fmt.Errorf("write model: %w", errors.Join(copyErr, closeErr))
	}
	if f.validate != nil {
		if err := f.validate(tmp.Name()); err != nil {
			os.Remove(tmp.Name())
			return Artifact{}, fmt.Errorf("downloaded file is not a usable model: %w", err)
		}
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return Artifact{}, fmt.Errorf("install model: %w", err)
	}

	artifact := Artifact{
		Identifier: f.identifier(),
		Path:       f.path,
		SHA256:     hex.EncodeToString(hasher.Sum(nil)),
		Size:       size,
		Downloaded: true,
		ReadyAt:    time.Now().UTC(),
	}
	logrus.WithFields(logrus.Fields{
		"path":   artifact.Path,
		"size":   artifact.Size,
		"sha256": artifact.SHA256,
	}).Info("model downloaded")
	return artifact, nil
}

func (f *Fetcher) record(artifact Artifact) {
	if f.registry == nil {
		return
	}
	err := f.registry.UpsertArtifact(&store.Artifact{
		Identifier: artifact.Identifier,
		Path:       artifact.Path,
		SHA256:     artifact.SHA256,
		Size:       artifact.Size,
		FetchedAt:  artifact.ReadyAt,
		VerifiedAt: artifact.ReadyAt,
	})
	if err != nil {
		logrus.WithError(err).WithField("path", artifact.Path).Warn("record model artifact")
	}
}

func checksum(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()
	hasher := sha256.New()
	size, err := io.Copy(hasher, file)
	if err != nil {
		return "", 0, fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

// Path is the fixed local location of the model file.
func (f *Fetcher) Path() string {
	return f.path
}

// URL is the location the model is fetched from. It is empty when only a local file is used.
func (f *Fetcher) URL() string {
	return f.url
}

// identifier keys the registry record: the URL, or the local path when there is none.
func (f *Fetcher) identifier() string {
	if f.url != "" {
		return f.url
	}
	return "file://" + filepath.ToSlash(f.path)
}
