package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"bank-churn/backend/internal/artifact"
	"bank-churn/backend/internal/classifier"
	"bank-churn/backend/internal/store"
)

const defaultModelPath = "data/churn_model.json"

func main() {
	var (
		modelURL     = flag.String("url", "", "URL of a dense-v1 model export (env MODEL_URL)")
		modelPath    = flag.String("path", filepath.FromSlash(defaultModelPath), "Local model path (env MODEL_PATH)")
		registryPath = flag.String("registry", "", "Optional SQLite artifact registry (env ARTIFACT_REGISTRY_DB)")
		timeout      = flag.Duration("timeout", 5*time.Minute, "Download timeout")
		verify       = flag.Bool("verify", true, "Reject files that do not load as a dense-v1 model")
		list         = flag.Bool("list", false, "Print the artifacts recorded in the registry and exit")
	)
	flag.Parse()

	loadEnvDefaults(modelURL, modelPath, registryPath)

	var db *store.Database
	var registry artifact.Registry
	if *registryPath != "" {
		var err error
		db, err = store.Open(*registryPath, true)
		if err != nil {
			logrus.Fatalf("open registry: %v", err)
		}
		defer func() {
			if cerr := db.Close(); cerr != nil {
				logrus.WithError(cerr).Warn("close registry")
			}
		}()
		registry = db
	}

	if *list {
		if db == nil {
			logrus.Fatal("-list requires -registry")
		}
		rows, err := db.ListArtifacts()
		if err != nil {
			logrus.Fatalf("list artifacts: %v", err)
		}
		writeJSON(rows)
		return
	}

	cfg := artifact.Config{URL: *modelURL, Path: *modelPath, Timeout: *timeout}
	if *verify {
		cfg.Validate = classifier.ValidateDense
	}
	fetcher, err := artifact.NewFetcher(cfg, registry)
	if err != nil {
		logrus.Fatalf("model fetcher: %v", err)
	}
	logrus.WithFields(logrus.Fields{"url": fetcher.URL(), "path": fetcher.Path()}).Info("fetching model")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fetched, err := fetcher.Fetch(ctx)
	if err != nil {
		logrus.Fatalf("fetch model: %v", err)
	}
	writeJSON(fetched)
}

func writeJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		logrus.Fatalf("write output: %v", err)
	}
}

func loadEnvDefaults(modelURL, modelPath, registryPath *string) {
	if *modelURL == "" {
		*modelURL = strings.TrimSpace(os.Getenv("MODEL_URL"))
	}
	if v := strings.TrimSpace(os.Getenv("MODEL_PATH")); v != "" && *modelPath == filepath.FromSlash(defaultModelPath) {
		*modelPath = v
	}
	if *registryPath == "" {
		*registryPath = strings.TrimSpace(os.Getenv("ARTIFACT_REGISTRY_DB"))
	}
}
