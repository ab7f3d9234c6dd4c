package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/miradorstack/graviton-inventory/internal/cache"
	"github.com/miradorstack/graviton-inventory/internal/compat"
	"github.com/miradorstack/graviton-inventory/internal/models"
)

const (
	defaultObjectsPath = "/v1/objects"
	defaultRulesPath   = "/v1/rules"
	rulesCacheKey      = "inventory:rules"
)

// InventoryAPIConfig configures the HTTP inventory API client.
type InventoryAPIConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	ObjectsPath string
	RulesPath   string
	RulesTTL    time.Duration
}

// InventoryAPI persists detection records to, and reads compatibility rules from, the
// inventory service over HTTP. With no base URL it stores nothing and serves no rules.
type InventoryAPI struct {
	endpoint    string
	apiKey      string
	objectsPath string
	rulesPath   string
	rulesTTL    time.Duration
	httpClient  *http.Client
	cache       cache.Provider
}

// NewInventoryAPI constructs an inventory API client.
func NewInventoryAPI(cfg InventoryAPIConfig, cacheProvider cache.Provider) *InventoryAPI {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RulesTTL < 0 {
		cfg.RulesTTL = 0
	}
	if cfg.ObjectsPath == "" {
		cfg.ObjectsPath = defaultObjectsPath
	}
	if cfg.RulesPath == "" {
		cfg.RulesPath = defaultRulesPath
	}
	return &InventoryAPI{
		endpoint:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		objectsPath: cfg.ObjectsPath,
		rulesPath:   cfg.RulesPath,
		rulesTTL:    cfg.RulesTTL,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		cache:       cacheProvider,
	}
}

// Save posts one detection record and returns the identifier assigned by the service.
func (r *InventoryAPI) Save(ctx context.Context, record models.DetectionRecord) (string, error) {
	if r == nil {
		return "", fmt.Errorf("inventory api not initialised")
	}
	if r.endpoint == "" {
		return "", nil
	}

	payload := map[string]interface{}{
		"class":      "DetectionRecord",
		"properties": buildRecordProperties(record),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal detection record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+r.objectsPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	r.authorize(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("store detection record failed: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode store response: %w", err)
	}
	return created.ID, nil
}

// Rules returns the remote compatibility rules, served from cache while the TTL holds.
func (r *InventoryAPI) Rules(ctx context.Context) ([]compat.Rule, error) {
	if r == nil {
		return nil, fmt.Errorf("inventory api not initialised")
	}
	if r.endpoint == "" {
		return nil, nil
	}

	if r.rulesTTL > 0 {
		if data, err := r.cache.Get(ctx, rulesCacheKey); err == nil {
			var cached []compat.Rule
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+r.rulesPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	r.authorize(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rules: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rules: unexpected status %s", resp.Status)
	}

	var response struct {
		Rules []compat.Rule `json:"rules"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	for i, rule := range response.Rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}

	if r.rulesTTL > 0 && len(response.Rules) > 0 {
		if payload, err := json.Marshal(response.Rules); err == nil {
			_ = r.cache.Set(ctx, rulesCacheKey, payload, r.rulesTTL)
		}
	}
	return response.Rules, nil
}

func (r *InventoryAPI) authorize(req *http.Request) {
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
}

func buildRecordProperties(record models.DetectionRecord) map[string]interface{} {
	detectedAt := record.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = time.Now().UTC()
	}
	return map[string]interface{}{
		"scanId":              record.ScanID,
		"applicationKey":      record.ApplicationKey,
		"name":                record.Name,
		"category":            string(record.Category),
		"resolvedVersion":     record.ResolvedVersion,
		"versionSource":       string(record.VersionSource),
		"detectionMethod":     string(record.DetectionMethod),
		"compatibilityStatus": string(record.CompatibilityStatus),
		"compatibilityNotes":  record.CompatibilityNotes,
		"evidence":            record.Evidence,
		"detectedAt":          detectedAt.UTC().Format(time.RFC3339),
	}
}
