package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"bank-churn/backend/internal/api"
	"bank-churn/backend/internal/artifact"
	"bank-churn/backend/internal/classifier"
	"bank-churn/backend/internal/features"
	"bank-churn/backend/internal/prediction"
	"bank-churn/backend/internal/store"
)

func main() {
	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		if parsed, err := logrus.ParseLevel(level); err == nil {
			logrus.SetLevel(parsed)
		} else {
			logrus.WithError(err).Warn("ignoring LOG_LEVEL")
		}
	}

	baseDir, err := os.Getwd()
	if err != nil {
		logrus.Fatalf("determine working directory: %v", err)
	}

	dataDir := filepath.Join(baseDir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logrus.Fatalf("create data directory: %v", err)
	}

	mode, err := features.ParseMode(os.Getenv("ENCODING_MODE"))
	if err != nil {
		logrus.Fatalf("encoding mode: %v", err)
	}
	kind, err := classifier.ParseKind(os.Getenv("CLASSIFIER"))
	if err != nil {
		logrus.Fatalf("classifier: %v", err)
	}

	fetchCfg := artifact.Config{
		URL:      os.Getenv("MODEL_URL"),
		Path:     filepath.Join(dataDir, "churn_model.json"),
		Validate: classifier.ValidateDense,
	}
	if override := strings.TrimSpace(os.Getenv("MODEL_PATH")); override != "" {
		fetchCfg.Path = override
	}
	if timeout := os.Getenv("MODEL_FETCH_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			fetchCfg.Timeout = d
		}
	}

	remoteCfg := classifier.RemoteConfig{
		BaseURL: os.Getenv("CLASSIFIER_URL"),
		Model:   os.Getenv("CLASSIFIER_MODEL"),
	}
	if timeout := os.Getenv("CLASSIFIER_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			remoteCfg.Timeout = d
		}
	}

	var registry artifact.Registry
	if dbPath := strings.TrimSpace(os.Getenv("ARTIFACT_REGISTRY_DB")); dbPath != "" {
		db, err := store.Open(dbPath, true)
		if err != nil {
			logrus.Fatalf("open artifact registry: %v", err)
		}
		defer db.Close()
		registry = db
		logrus.WithField("path", dbPath).Info("artifact registry enabled")
	}

	var model *artifact.Artifact
	if kind == classifier.KindLocal {
		fetcher, err := artifact.NewFetcher(fetchCfg, registry)
		if err != nil {
			logrus.Fatalf("model fetcher: %v", err)
		}
		fetched, err := fetcher.Fetch(context.Background())
		if errors.Is(err, artifact.ErrNoSource) {
			logrus.Fatalf("no predictions possible: place a dense-v1 model at %s or set MODEL_URL (%v)", fetcher.Path(), err)
		}
		if err != nil {
			logrus.Fatalf("no predictions possible: %v", err)
		}
		model = &fetched
	}

	churnModel, err := classifier.Load(classifier.Config{
		Kind:      kind,
		ModelPath: fetchCfg.Path,
		Remote:    remoteCfg,
	})
	if err != nil {
		logrus.Fatalf("%v: %v", artifact.ErrModelUnavailable, err)
	}
	if remote, ok := churnModel.(*classifier.Remote); ok {
		logrus.WithField("endpoint", remote.Endpoint()).Info("using remote classifier")
	}

	encoder, err := features.NewEncoder(mode)
	if err != nil {
		logrus.Fatalf("feature encoder: %v", err)
	}
	service, err := prediction.NewService(encoder, churnModel)
	if err != nil {
		logrus.Fatalf("prediction service: %v", err)
	}

	var origins []string
	for _, origin := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}

	server, err := api.NewServer(api.Config{
		AllowedOrigins: origins,
		Artifact:       model,
		ClassifierKind: kind,
	}, service)
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "2000"
	}

	logrus.WithFields(logrus.Fields{
		"encoding_mode": mode,
		"classifier":    kind,
	}).Infof("starting churn prediction backend on :%s", port)
	if err := router.Run(":" + port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}
