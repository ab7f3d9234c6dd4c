package models

import "time"

// Category groups applications by the role they play on a host.
type Category string

const (
	CategoryDatabase               Category = "database"
	CategoryMessageQueue           Category = "message_queue"
	CategorySearchEngine           Category = "search_engine"
	CategoryContainerOrchestration Category = "container_orchestration"
	CategoryCICD                   Category = "ci_cd"
	CategoryOther                  Category = "other"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryDatabase, CategoryMessageQueue, CategorySearchEngine,
		CategoryContainerOrchestration, CategoryCICD, CategoryOther:
		return true
	}
	return false
}

// DetectionMethod names the tier that confirmed an installation.
type DetectionMethod string

const (
	DetectionMethodProcess    DetectionMethod = "process"
	DetectionMethodPackage    DetectionMethod = "package"
	DetectionMethodConfigFile DetectionMethod = "config_file"
)

// VersionSource records where the resolved version came from.
type VersionSource string

const (
	VersionSourceProbe      VersionSource = "probe"
	VersionSourceConfigFile VersionSource = "config_file"
	VersionSourceDefault    VersionSource = "default"
)

// CompatibilityStatus is the ARM64/Graviton readiness verdict.
type CompatibilityStatus string

const (
	StatusCompatible    CompatibilityStatus = "compatible"
	StatusPartial       CompatibilityStatus = "partial"
	StatusNotCompatible CompatibilityStatus = "not_compatible"
	StatusUnknown       CompatibilityStatus = "unknown"
)

// DetectionRecord describes one application confirmed present during a run.
type DetectionRecord struct {
	ScanID              string              `json:"scan_id"`
	ApplicationKey      string              `json:"application_key"`
	Name                string              `json:"name"`
	Category            Category            `json:"category"`
	ResolvedVersion     string              `json:"resolved_version"`
	VersionSource       VersionSource       `json:"version_source"`
	DetectionMethod     DetectionMethod     `json:"detection_method"`
	CompatibilityStatus CompatibilityStatus `json:"compatibility_status"`
	CompatibilityNotes  string              `json:"compatibility_notes,omitempty"`
	Evidence            Evidence            `json:"evidence"`
	DetectedAt          time.Time           `json:"detected_at"`
	StoreID             string              `json:"store_id,omitempty"`
}

// Evidence is the audit trail of probes attempted for a record.
type Evidence struct {
	Probes      []ProbeAttempt    `json:"probes,omitempty"`
	ConfigPaths []ConfigPathCheck `json:"config_paths,omitempty"`
}

// ProbeAttempt captures one version or config-content probe.
type ProbeAttempt struct {
	Command        string `json:"command"`
	Output         string `json:"output,omitempty"`
	YieldedVersion bool   `json:"yielded_version"`
	ErrorKind      string `json:"error_kind,omitempty"`
}

// ConfigPathCheck records whether a config path existed and, when its content could not be
// read, why.
type ConfigPathCheck struct {
	Path      string `json:"path"`
	Exists    bool   `json:"exists"`
	ReadError string `json:"read_error,omitempty"`
}

// HostFacts optionally describes the inspected host.
type HostFacts struct {
	Hostname   string `json:"hostname,omitempty"`
	OS         string `json:"os,omitempty"`
	Platform   string `json:"platform,omitempty"`
	KernelArch string `json:"kernel_arch,omitempty"`
}

// RunResult is the outcome of one detection run against one host.
type RunResult struct {
	ScanID     string            `json:"scan_id"`
	Records    []DetectionRecord `json:"records"`
	Errors     []DetectionError  `json:"errors"`
	Host       *HostFacts        `json:"host,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// ErrorsFor returns the errors tagged with the given application key.
func (r RunResult) ErrorsFor(key string) []DetectionError {
	var out []DetectionError
	for _, e := range r.Errors {
		if e.ApplicationKey == key {
			out = append(out, e)
		}
	}
	return out
}

// Record returns the record for key, if one was emitted.
func (r RunResult) Record(key string) (DetectionRecord, bool) {
	for _, rec := range r.Records {
		if rec.ApplicationKey == key {
			return rec, true
		}
	}
	return DetectionRecord{}, false
}
