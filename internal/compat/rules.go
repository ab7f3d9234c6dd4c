// Package compat classifies detected applications for ARM64/Graviton readiness.
package compat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/graviton-inventory/internal/models"
)

// Version pattern keywords understood by Rule.Versions.
const (
	VersionsAll     = "all"
	VersionsNone    = "none"
	VersionsPartial = "partial"
)

// Rule is one compatibility statement about an application. Rules for the same application
// are evaluated in order and the first applicable one wins.
type Rule struct {
	Application string `yaml:"application" json:"application"`
	// Versions is all, none, partial, a comparison (>=X, >X, <=X, <X) or an exact version.
	Versions         string `yaml:"versions" json:"versions"`
	Notes            string `yaml:"notes" json:"notes,omitempty"`
	UnsupportedNotes string `yaml:"unsupported_notes" json:"unsupported_notes,omitempty"`
}

// RuleConfigFile is the YAML root structure of a rule pack.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// Evaluate applies the rule to version. applies is false when the rule says nothing about it.
func (r Rule) Evaluate(version string) (status models.CompatibilityStatus, notes string, applies bool) {
	pattern := strings.TrimSpace(r.Versions)
	switch strings.ToLower(pattern) {
	case VersionsAll:
		return models.StatusCompatible, r.Notes, true
	case VersionsNone:
		return models.StatusNotCompatible, r.Notes, true
	case VersionsPartial:
		return models.StatusPartial, r.Notes, true
	case "":
		return "", "", false
	}

	op, operand := splitOperator(pattern)
	if op == "" {
		if CompareVersions(version, operand) == 0 {
			return models.StatusCompatible, r.Notes, true
		}
		return "", "", false
	}

	cmp := CompareVersions(version, operand)
	var satisfied bool
	switch op {
	case ">=":
		satisfied = cmp >= 0
	case ">":
		satisfied = cmp > 0
	case "<=":
		satisfied = cmp <= 0
	case "<":
		satisfied = cmp < 0
	}
	if satisfied {
		return models.StatusCompatible, r.Notes, true
	}
	return models.StatusNotCompatible, r.UnsupportedNotes, true
}

// Validate checks that the rule is well formed.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Application) == "" {
		return errors.New("application is required")
	}
	pattern := strings.TrimSpace(r.Versions)
	if pattern == "" {
		return fmt.Errorf("%s: versions is required", r.Application)
	}
	switch strings.ToLower(pattern) {
	case VersionsAll, VersionsNone, VersionsPartial:
		return nil
	}
	_, operand := splitOperator(pattern)
	if len(versionTuple(operand)) == 0 {
		return fmt.Errorf("%s: invalid version pattern %q", r.Application, r.Versions)
	}
	return nil
}

func splitOperator(pattern string) (string, string) {
	for _, op := range []string{">=", "<=", ">", "<", "="} {
		if strings.HasPrefix(pattern, op) {
			operand := strings.TrimSpace(strings.TrimPrefix(pattern, op))
			if op == "=" {
				return "", operand
			}
			return op, operand
		}
	}
	return "", pattern
}

// LoadRulePack reads rules from a YAML file. A missing file or empty path yields no rules.
func LoadRulePack(path string) ([]Rule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rule pack %s: %w", path, err)
	}
	for i, rule := range cfg.Rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule pack %s: rule %d: %w", path, i, err)
		}
	}
	return cfg.Rules, nil
}

const (
	runtimeTuningNote = "Runs on ARM64 with a Graviton-compatible JVM; heap, GC and thread pool settings need re-tuning and benchmarking."
	pluginRiskNote    = "Core runs on ARM64 but plugins with native components may lack arm64 builds; audit installed plugins."
)

// BuiltinRules is the decision table used when no rule pack overrides an application.
func BuiltinRules() []Rule {
	return []Rule{
		{Application: "postgresql", Versions: VersionsAll, Notes: "Official arm64 packages and images are available."},
		{Application: "mysql", Versions: VersionsAll, Notes: "Official arm64 packages and images are available."},
		{Application: "mongodb", Versions: VersionsAll, Notes: "Official arm64 packages and images are available."},
		{Application: "redis", Versions: VersionsAll, Notes: "Official arm64 packages and images are available."},
		{
			Application:      "scylladb",
			Versions:         ">=6",
			Notes:            "Supported on Graviton from 6.0.",
			UnsupportedNotes: "Upgrade to ScyllaDB 6.0 or later before migrating; earlier releases ship no arm64 builds.",
		},
		{Application: "elasticsearch", Versions: VersionsPartial, Notes: runtimeTuningNote},
		{Application: "opensearch", Versions: VersionsPartial, Notes: runtimeTuningNote},
		{Application: "kafka", Versions: VersionsPartial, Notes: runtimeTuningNote},
		{Application: "jenkins", Versions: VersionsPartial, Notes: pluginRiskNote},
	}
}

// RuleSource supplies additional rules for a run, e.g. from a remote catalog.
type RuleSource interface {
	Rules(ctx context.Context) ([]Rule, error)
}

// StaticRules is a RuleSource backed by a fixed slice.
type StaticRules []Rule

// Rules implements RuleSource.
func (s StaticRules) Rules(context.Context) ([]Rule, error) {
	return append([]Rule(nil), s...), nil
}
