package catalog

import (
	"encoding/json"
	"regexp"
	"strings"
)

// configVersion is the generic `version = <value>` extractor applied to config file content.
var configVersion = regexp.MustCompile(`(?im)^\s*["']?version["']?\s*[=:]\s*["']?v?(\d+(?:\.\d+)+)`)

// statusDocument is the subset of a search-engine root endpoint response we read.
type statusDocument struct {
	Version struct {
		Number       string `json:"number"`
		Distribution string `json:"distribution"`
	} `json:"version"`
}

// ParseVersion extracts a version from raw probe output. It never panics; malformed input
// yields ok=false.
func ParseVersion(sig Signature, raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}
	switch sig.Parser {
	case ParserJSONThenRegex:
		if doc, ok := decodeStatus(raw); ok {
			// Elasticsearch and OpenSearch share a port; another product's answer is no version.
			if !strings.EqualFold(strings.TrimSpace(doc.Version.Distribution), sig.StatusDistribution) {
				return "", false
			}
			if m := genericVersion.FindString(doc.Version.Number); m != "" {
				return m, true
			}
		}
		return parseRegex(sig.VersionPattern, raw)
	default:
		return parseRegex(sig.VersionPattern, raw)
	}
}

// ExtractConfigVersion applies the generic `version = <value>` extractor.
func ExtractConfigVersion(content string) (string, bool) {
	return parseRegex(configVersion, content)
}

// decodeStatus reads a search-engine status document. ok is false unless it carries a
// version number.
func decodeStatus(raw string) (statusDocument, bool) {
	var doc statusDocument
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return doc, false
	}
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return doc, false
	}
	doc.Version.Number = strings.TrimSpace(doc.Version.Number)
	return doc, doc.Version.Number != ""
}

func parseRegex(re *regexp.Regexp, raw string) (string, bool) {
	if re == nil {
		return "", false
	}
	m := re.FindStringSubmatch(raw)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}
