package services

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	model "github.com/visaeagle/VisaEagle-backend/models"
	"gorm.io/gorm"
)

//go:embed data/default_rules.json
var embeddedRules embed.FS

// RuleSource yields rule definitions from one location. Sources are expected
// to be independent: one failing source never poisons the others.
type RuleSource interface {
	Name() string
	Load() ([]model.RuleDefinition, error)
}

// EmbeddedRuleSource serves the rule set bundled into the binary.
type EmbeddedRuleSource struct{}

func NewEmbeddedRuleSource() *EmbeddedRuleSource {
	return &EmbeddedRuleSource{}
}

func (s *EmbeddedRuleSource) Name() string { return "embedded" }

func (s *EmbeddedRuleSource) Load() ([]model.RuleDefinition, error) {
	raw, err := embeddedRules.ReadFile("data/default_rules.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded rules: %w", err)
	}
	return parseRuleDocument(raw, s.Name())
}

// DatabaseRuleSource loads rules persisted in the compliance_rules table.
type DatabaseRuleSource struct {
	db *gorm.DB
}

func NewDatabaseRuleSource(db *gorm.DB) *DatabaseRuleSource {
	return &DatabaseRuleSource{db: db}
}

func (s *DatabaseRuleSource) Name() string { return "database" }

func (s *DatabaseRuleSource) Load() ([]model.RuleDefinition, error) {
	var rows []model.ComplianceRule
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch rules from database: %w", err)
	}

	defs := make([]model.RuleDefinition, 0, len(rows))
	for _, row := range rows {
		def, err := row.ToDefinition()
		if err != nil {
			// A single broken row makes the whole source invalid; the
			// loader will log it and fall back to the other sources.
			return nil, fmt.Errorf("%w: %v", ErrRuleLoading, err)
		}
		defs = append(defs, def)
	}
	log.Printf("Loaded %d rules from database", len(defs))
	return defs, nil
}

// S3RuleSource loads a rule JSON document from an S3-compatible bucket.
type S3RuleSource struct {
	client *s3.S3
	bucket string
	key    string
}

// NewS3RuleSourceFromEnv builds an S3 source from environment configuration.
func NewS3RuleSourceFromEnv() (*S3RuleSource, error) {
	region := os.Getenv("RULES_S3_REGION")
	endpoint := os.Getenv("RULES_S3_ENDPOINT")
	accessKey := os.Getenv("RULES_S3_ACCESS_KEY")
	secretKey := os.Getenv("RULES_S3_SECRET_KEY")
	bucket := os.Getenv("RULES_S3_BUCKET")
	key := os.Getenv("RULES_S3_KEY")

	if region == "" || accessKey == "" || secretKey == "" || bucket == "" || key == "" {
		return nil, fmt.Errorf("missing required S3 rule source environment variables")
	}

	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String(region),
		Endpoint:         aws.String(endpoint),
		Credentials:      credentials.NewStaticCredentials(accessKey, secretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3RuleSource{client: s3.New(sess), bucket: bucket, key: key}, nil
}

func (s *S3RuleSource) Name() string { return "s3" }

func (s *S3RuleSource) Load() ([]model.RuleDefinition, error) {
	obj, err := s.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rules object %s/%s: %w", s.bucket, s.key, err)
	}
	defer obj.Body.Close()

	raw, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules object body: %w", err)
	}
	return parseRuleDocument(raw, s.Name())
}

// parseRuleDocument decodes a rule file, accepting either a bare array or a
// {"rules": [...]} wrapper, and validates each definition structurally.
func parseRuleDocument(raw []byte, sourceName string) ([]model.RuleDefinition, error) {
	var defs []model.RuleDefinition

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper struct {
			Rules []model.RuleDefinition `json:"rules"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, fmt.Errorf("%w: source %s has malformed rule file: %v", ErrRuleLoading, sourceName, err)
		}
		defs = wrapper.Rules
	} else {
		if err := json.Unmarshal(trimmed, &defs); err != nil {
			return nil, fmt.Errorf("%w: source %s has malformed rule file: %v", ErrRuleLoading, sourceName, err)
		}
	}

	for i := range defs {
		if err := ValidateRuleDefinition(&defs[i]); err != nil {
			return nil, fmt.Errorf("%w: source %s: %v", ErrRuleLoading, sourceName, err)
		}
	}
	return defs, nil
}

type cachedSourceRules struct {
	defs     []model.RuleDefinition
	cachedAt time.Time
}

// RuleLoader aggregates rule definitions across all configured sources,
// caching each source's result with a TTL and deduplicating by rule ID.
type RuleLoader struct {
	sources []RuleSource
	ttl     time.Duration
	cache   map[string]cachedSourceRules
	mu      sync.Mutex
}

func NewRuleLoader(ttl time.Duration, sources ...RuleSource) *RuleLoader {
	return &RuleLoader{
		sources: sources,
		ttl:     ttl,
		cache:   make(map[string]cachedSourceRules),
	}
}

// LoadAll loads every source, tolerating individual failures. Only when all
// sources fail does LoadAll itself fail. Duplicate rule IDs across sources
// are resolved by keeping the highest-priority definition.
func (l *RuleLoader) LoadAll() ([]model.RuleDefinition, error) {
	byID := make(map[string]model.RuleDefinition)
	failures := 0

	for _, source := range l.sources {
		defs, err := l.loadSource(source)
		if err != nil {
			log.Printf("WARNING rule source %s failed: %v", source.Name(), err)
			failures++
			continue
		}
		for _, def := range defs {
			existing, seen := byID[def.ID]
			if !seen || def.Priority > existing.Priority {
				byID[def.ID] = def
			}
		}
	}

	if failures == len(l.sources) && len(l.sources) > 0 {
		return nil, fmt.Errorf("%w: all %d rule sources failed", ErrRuleLoading, failures)
	}

	defs := make([]model.RuleDefinition, 0, len(byID))
	for _, def := range byID {
		defs = append(defs, def)
	}
	// Map iteration order is random; keep the aggregate deterministic.
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Priority != defs[j].Priority {
			return defs[i].Priority > defs[j].Priority
		}
		return defs[i].ID < defs[j].ID
	})

	log.Printf("Loaded %d rules across %d sources (%d failed)", len(defs), len(l.sources), failures)
	return defs, nil
}

// Reload clears the per-source cache and loads everything fresh.
func (l *RuleLoader) Reload() ([]model.RuleDefinition, error) {
	l.mu.Lock()
	l.cache = make(map[string]cachedSourceRules)
	l.mu.Unlock()
	return l.LoadAll()
}

func (l *RuleLoader) loadSource(source RuleSource) ([]model.RuleDefinition, error) {
	l.mu.Lock()
	entry, hit := l.cache[source.Name()]
	l.mu.Unlock()

	if hit && (l.ttl <= 0 || time.Since(entry.cachedAt) <= l.ttl) {
		return entry.defs, nil
	}

	defs, err := source.Load()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[source.Name()] = cachedSourceRules{defs: defs, cachedAt: time.Now()}
	l.mu.Unlock()
	return defs, nil
}

// ValidateRuleDefinition enforces the structural invariants every rule must
// satisfy before it can enter the engine.
func ValidateRuleDefinition(def *model.RuleDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("%w: rule has empty id", ErrInvalidRuleDefinition)
	}
	if def.Name == "" {
		return fmt.Errorf("%w: rule %s has empty name", ErrInvalidRuleDefinition, def.ID)
	}
	if len(def.Conditions) == 0 {
		return fmt.Errorf("%w: rule %s has no conditions", ErrInvalidRuleDefinition, def.ID)
	}
	if def.Template.Title == "" {
		return fmt.Errorf("%w: rule %s has no task template", ErrInvalidRuleDefinition, def.ID)
	}
	if len(def.VisaTypes) == 0 {
		return fmt.Errorf("%w: rule %s has no applicable visa types", ErrInvalidRuleDefinition, def.ID)
	}
	for i := range def.Conditions {
		if err := def.Conditions[i].Validate(); err != nil {
			return fmt.Errorf("%w: rule %s: %v", ErrInvalidRuleDefinition, def.ID, err)
		}
	}
	return nil
}
