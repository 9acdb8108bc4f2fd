package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	model "github.com/visaeagle/VisaEagle-backend/models"
)

// SearchService indexes rule definitions and evaluation results in
// Elasticsearch. Indexing is best-effort: a missing or failing cluster is
// logged and never breaks the evaluation pipeline.
type SearchService struct {
	esClient *elasticsearch.Client
}

// NewSearchService builds the service from ELASTICSEARCH_URL. With no URL
// configured every operation is a logged no-op.
func NewSearchService() *SearchService {
	esURL := os.Getenv("ELASTICSEARCH_URL")
	var esClient *elasticsearch.Client
	if esURL != "" {
		var err error
		esClient, err = elasticsearch.NewClient(elasticsearch.Config{
			Addresses: []string{esURL},
		})
		if err != nil {
			log.Printf("Warning: Failed to create Elasticsearch client: %v", err)
			esClient = nil
		}
	}
	return &SearchService{esClient: esClient}
}

// IndexRules indexes the active rule set so rules are searchable by name and
// description.
func (s *SearchService) IndexRules(rules []model.RuleDefinition) {
	if s.esClient == nil {
		return
	}
	for _, rule := range rules {
		doc := map[string]interface{}{
			"rule_id":     rule.ID,
			"name":        rule.Name,
			"description": rule.Description,
			"category":    rule.Category,
			"priority":    rule.Priority,
			"active":      rule.Active,
			"timestamp":   time.Now().UTC(),
		}
		s.index("compliance_rules", rule.ID, doc)
	}
}

// IndexResult indexes a summary of one evaluation pass for audit search.
func (s *SearchService) IndexResult(result *model.RuleEngineResult) {
	if s.esClient == nil {
		return
	}
	taskTitles := make([]string, 0, len(result.GeneratedTasks))
	for _, task := range result.GeneratedTasks {
		taskTitles = append(taskTitles, task.Title)
	}
	doc := map[string]interface{}{
		"student_id":   result.StudentID,
		"evaluated_at": result.EvaluatedAt.UTC(),
		"phase":        string(result.Context.CurrentPhase),
		"risk_score":   result.Context.Compliance.RiskScore,
		"task_count":   len(result.GeneratedTasks),
		"task_titles":  taskTitles,
		"errors":       result.Errors,
	}
	s.index("evaluations", fmt.Sprintf("%s-%d", result.StudentID, result.EvaluatedAt.Unix()), doc)
}

func (s *SearchService) index(indexName, docID string, doc map[string]interface{}) {
	body, err := json.Marshal(doc)
	if err != nil {
		log.Printf("Failed to marshal document for indexing: %v", err)
		return
	}

	res, err := s.esClient.Index(
		indexName,
		bytes.NewReader(body),
		s.esClient.Index.WithDocumentID(docID),
		s.esClient.Index.WithContext(context.Background()),
	)
	if err != nil {
		log.Printf("Elasticsearch indexing error: %v", err)
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Printf("Elasticsearch indexing failed: %s", res.String())
	}
}

// SearchRules runs a full-text query over the indexed rules.
func (s *SearchService) SearchRules(query string) ([]map[string]interface{}, error) {
	if s.esClient == nil {
		return nil, fmt.Errorf("elasticsearch client is not initialized")
	}

	searchQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"name", "description", "category"},
			},
		},
	}
	body, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(context.Background()),
		s.esClient.Search.WithIndex("compliance_rules"),
		s.esClient.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search failed: %s", res.String())
	}

	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hitsMap, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid hits structure in search response")
	}
	hitsArray, ok := hitsMap["hits"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid hits array in search response")
	}

	var rules []map[string]interface{}
	for _, hit := range hitsArray {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue
		}
		rules = append(rules, source)
	}
	return rules, nil
}
