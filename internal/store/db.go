package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM DB handle backing the artifact registry.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed registry at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Artifact{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	return &Database{gorm: db}, nil
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetArtifact loads the record for identifier. It returns gorm.ErrRecordNotFound when
// the artifact has never been materialised.
func (d *Database) GetArtifact(identifier string) (*Artifact, error) {
	if d == nil {
		return nil, errors.New("database is nil")
	}
	var row Artifact
	if err := d.gorm.First(&row, "identifier = ?", strings.TrimSpace(identifier)).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// UpsertArtifact inserts or replaces the record for artifact.Identifier.
func (d *Database) UpsertArtifact(artifact *Artifact) error {
	if artifact == nil {
		return errors.New("artifact is nil")
	}
	artifact.Identifier = strings.TrimSpace(artifact.Identifier)
	if artifact.Identifier == "" {
		return errors.New("artifact identifier required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identifier"}},
		DoUpdates: clause.AssignmentColumns([]string{"path", "sha256", "size", "fetched_at", "verified_at", "updated_at"}),
	}).Create(artifact).Error
}

// TouchArtifact records a successful checksum verification of a cached file.
func (d *Database) TouchArtifact(identifier string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	res := d.gorm.Model(&Artifact{}).
		Where("identifier = ?", strings.TrimSpace(identifier)).
		Update("verified_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListArtifacts returns every registered artifact, most recently fetched first.
func (d *Database) ListArtifacts() ([]Artifact, error) {
	var rows []Artifact
	if err := d.gorm.Order("fetched_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
