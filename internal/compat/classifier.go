package compat

import (
	"strings"

	"github.com/miradorstack/graviton-inventory/internal/models"
)

// Classifier maps an application and its version to a compatibility verdict.
type Classifier struct {
	rules map[string][]Rule
}

// NewClassifier builds a classifier from rule sets in precedence order: rules from earlier
// sets are consulted before rules from later ones.
func NewClassifier(sets ...[]Rule) *Classifier {
	c := &Classifier{rules: make(map[string][]Rule)}
	for _, set := range sets {
		for _, rule := range set {
			key := normaliseKey(rule.Application)
			if key == "" {
				continue
			}
			c.rules[key] = append(c.rules[key], rule)
		}
	}
	return c
}

// DefaultClassifier uses only the built-in rules.
func DefaultClassifier() *Classifier {
	return NewClassifier(BuiltinRules())
}

// Classify returns the verdict for key at version. Applications without an applicable rule are
// unknown with no notes.
func (c *Classifier) Classify(key, version string) (models.CompatibilityStatus, string) {
	if c == nil {
		return models.StatusUnknown, ""
	}
	for _, rule := range c.rules[normaliseKey(key)] {
		if status, notes, ok := rule.Evaluate(version); ok {
			return status, notes
		}
	}
	return models.StatusUnknown, ""
}

// Covers reports whether any rule mentions key.
func (c *Classifier) Covers(key string) bool {
	if c == nil {
		return false
	}
	return len(c.rules[normaliseKey(key)]) > 0
}

func normaliseKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
