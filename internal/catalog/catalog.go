// Package catalog holds the signatures of the applications the detector knows about.
package catalog

import (
	"fmt"
	"regexp"

	"github.com/miradorstack/graviton-inventory/internal/models"
)

// ParserKind selects how raw probe output is turned into a version.
type ParserKind int

const (
	// ParserRegex applies the signature's VersionPattern.
	ParserRegex ParserKind = iota
	// ParserJSONThenRegex reads version.number from a JSON status document and falls back to
	// VersionPattern.
	ParserJSONThenRegex
)

// Signature describes how to detect and version one known application.
type Signature struct {
	Key             string
	Name            string
	Category        models.Category
	ProcessPatterns []string
	// PackagePatterns are substrings of a package name. They must be specific enough not to
	// hit client libraries (libhiredis, librdkafka, python3-redis).
	PackagePatterns []string
	// PackageNames must equal a package name, for servers whose package is the bare word.
	PackageNames  []string
	ConfigPaths   []string
	VersionProbes []string
	Parser        ParserKind
	// VersionPattern must have the version as its first capture group.
	VersionPattern *regexp.Regexp
	// StatusDistribution is the version.distribution a JSON status document must report;
	// empty means the field must be absent.
	StatusDistribution string
	DefaultVersion     string
}

// Catalog is an ordered set of signatures. Order drives record order in a run.
type Catalog struct {
	signatures []Signature
}

// New validates signatures and builds a Catalog.
func New(signatures ...Signature) (*Catalog, error) {
	seen := make(map[string]struct{}, len(signatures))
	for _, sig := range signatures {
		if sig.Key == "" {
			return nil, fmt.Errorf("signature %q: key is required", sig.Name)
		}
		if _, dup := seen[sig.Key]; dup {
			return nil, fmt.Errorf("signature %q: duplicate key", sig.Key)
		}
		seen[sig.Key] = struct{}{}
		if !sig.Category.Valid() {
			return nil, fmt.Errorf("signature %q: unknown category %q", sig.Key, sig.Category)
		}
		if sig.VersionPattern == nil {
			return nil, fmt.Errorf("signature %q: version pattern is required", sig.Key)
		}
		if sig.VersionPattern.NumSubexp() < 1 {
			return nil, fmt.Errorf("signature %q: version pattern needs a capture group", sig.Key)
		}
	}
	return &Catalog{signatures: append([]Signature(nil), signatures...)}, nil
}

// Signatures returns the catalog in declaration order.
func (c *Catalog) Signatures() []Signature {
	if c == nil {
		return nil
	}
	return append([]Signature(nil), c.signatures...)
}

// Len returns the number of signatures.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.signatures)
}

// Lookup finds a signature by key.
func (c *Catalog) Lookup(key string) (Signature, bool) {
	if c == nil {
		return Signature{}, false
	}
	for _, sig := range c.signatures {
		if sig.Key == key {
			return sig, true
		}
	}
	return Signature{}, false
}

// genericVersion matches the first dotted numeric version in free text.
var genericVersion = regexp.MustCompile(`(\d+(?:\.\d+)+)`)

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(defaultSignatures()...)
	if err != nil {
		panic(err)
	}
	return c
}

func defaultSignatures() []Signature {
	return []Signature{
		{
			Key:             "postgresql",
			Name:            "PostgreSQL",
			Category:        models.CategoryDatabase,
			ProcessPatterns: []string{"postgres:", "bin/postgres", "postmaster"},
			PackagePatterns: []string{"postgresql-server", "postgresql-1", "postgresql-9"},
			PackageNames:    []string{"postgresql"},
			ConfigPaths:     []string{"/etc/postgresql", "/var/lib/pgsql/data/postgresql.conf"},
			VersionProbes:   []string{"postgres --version", "psql --version"},
			VersionPattern:  regexp.MustCompile(`\(PostgreSQL\)\s+(\d+(?:\.\d+)+)`),
			DefaultVersion:  "14.0",
		},
		{
			Key:             "mysql",
			Name:            "MySQL",
			Category:        models.CategoryDatabase,
			ProcessPatterns: []string{"mysqld", "mariadbd"},
			PackagePatterns: []string{"mysql-server", "mariadb-server", "mysql-community-server"},
			ConfigPaths:     []string{"/etc/mysql/my.cnf", "/etc/my.cnf"},
			VersionProbes:   []string{"mysqld --version", "mysql --version"},
			VersionPattern:  regexp.MustCompile(`(?i)Ver\s+(?:\d+\.\d+\s+Distrib\s+)?(\d+(?:\.\d+)+)`),
			DefaultVersion:  "8.0",
		},
		{
			Key:             "mongodb",
			Name:            "MongoDB",
			Category:        models.CategoryDatabase,
			ProcessPatterns: []string{"mongod"},
			PackagePatterns: []string{"mongodb-org-server", "mongodb-server"},
			ConfigPaths:     []string{"/etc/mongod.conf"},
			VersionProbes:   []string{"mongod --version"},
			VersionPattern:  regexp.MustCompile(`db version v(\d+(?:\.\d+)+)`),
			DefaultVersion:  "6.0",
		},
		{
			Key:             "redis",
			Name:            "Redis",
			Category:        models.CategoryDatabase,
			ProcessPatterns: []string{"redis-server"},
			PackagePatterns: []string{"redis-server"},
			PackageNames:    []string{"redis", "redis6", "redis7"},
			ConfigPaths:     []string{"/etc/redis/redis.conf", "/etc/redis.conf"},
			VersionProbes:   []string{"redis-server --version", "redis-cli --version"},
			VersionPattern:  regexp.MustCompile(`(?:v=|redis-cli\s+)(\d+(?:\.\d+)+)`),
			DefaultVersion:  "7.0",
		},
		{
			Key:             "scylladb",
			Name:            "ScyllaDB",
			Category:        models.CategoryDatabase,
			ProcessPatterns: []string{"/usr/bin/scylla"},
			PackagePatterns: []string{"scylla-server"},
			PackageNames:    []string{"scylla"},
			ConfigPaths:     []string{"/etc/scylla/scylla.yaml"},
			VersionProbes:   []string{"scylla --version"},
			VersionPattern:  genericVersion,
			DefaultVersion:  "5.4.0",
		},
		{
			Key:             "rabbitmq",
			Name:            "RabbitMQ",
			Category:        models.CategoryMessageQueue,
			ProcessPatterns: []string{"rabbitmq-server", "rabbit_prelaunch"},
			PackageNames:    []string{"rabbitmq-server"},
			ConfigPaths:     []string{"/etc/rabbitmq/rabbitmq.conf", "/etc/rabbitmq/rabbitmq-env.conf"},
			VersionProbes:   []string{"rabbitmq-diagnostics server_version -q", "rabbitmqctl version"},
			VersionPattern:  genericVersion,
			DefaultVersion:  "3.12.0",
		},
		{
			Key:             "kafka",
			Name:            "Apache Kafka",
			Category:        models.CategoryMessageQueue,
			ProcessPatterns: []string{"kafka.Kafka"},
			PackagePatterns: []string{"kafka-server"},
			PackageNames:    []string{"kafka", "confluent-kafka", "confluent-server"},
			ConfigPaths:     []string{"/opt/kafka/config/server.properties", "/etc/kafka/server.properties"},
			VersionProbes:   []string{"kafka-topics.sh --version", "kafka-topics --version"},
			VersionPattern:  genericVersion,
			DefaultVersion:  "3.6.0",
		},
		{
			Key:             "elasticsearch",
			Name:            "Elasticsearch",
			Category:        models.CategorySearchEngine,
			ProcessPatterns: []string{"org.elasticsearch.bootstrap"},
			PackageNames:    []string{"elasticsearch", "elasticsearch-oss"},
			ConfigPaths:     []string{"/etc/elasticsearch/elasticsearch.yml"},
			VersionProbes: []string{
				"curl -s --max-time 3 http://localhost:9200",
				"/usr/share/elasticsearch/bin/elasticsearch --version",
			},
			Parser:         ParserJSONThenRegex,
			VersionPattern: regexp.MustCompile(`(?i)Version:\s*(\d+(?:\.\d+)+)`),
			DefaultVersion: "8.0.0",
		},
		{
			Key:             "opensearch",
			Name:            "OpenSearch",
			Category:        models.CategorySearchEngine,
			ProcessPatterns: []string{"org.opensearch.bootstrap"},
			PackageNames:    []string{"opensearch"},
			ConfigPaths:     []string{"/etc/opensearch/opensearch.yml"},
			VersionProbes: []string{
				"curl -s --max-time 3 http://localhost:9200",
				"/usr/share/opensearch/bin/opensearch --version",
			},
			Parser:             ParserJSONThenRegex,
			VersionPattern:     regexp.MustCompile(`(?i)Version:\s*(\d+(?:\.\d+)+)`),
			StatusDistribution: "opensearch",
			DefaultVersion:     "2.11.0",
		},
		{
			Key:             "docker",
			Name:            "Docker Engine",
			Category:        models.CategoryContainerOrchestration,
			ProcessPatterns: []string{"dockerd"},
			PackageNames:    []string{"docker-ce", "docker.io", "docker-engine", "moby-engine", "docker"},
			ConfigPaths:     []string{"/etc/docker/daemon.json"},
			VersionProbes:   []string{"docker version --format '{{.Server.Version}}'", "docker --version"},
			VersionPattern:  genericVersion,
			DefaultVersion:  "24.0.0",
		},
		{
			Key:             "kubelet",
			Name:            "Kubernetes kubelet",
			Category:        models.CategoryContainerOrchestration,
			ProcessPatterns: []string{"kubelet"},
			PackageNames:    []string{"kubelet"},
			ConfigPaths:     []string{"/var/lib/kubelet/config.yaml", "/etc/kubernetes/kubelet.conf"},
			VersionProbes:   []string{"kubelet --version"},
			VersionPattern:  regexp.MustCompile(`v(\d+(?:\.\d+)+)`),
			DefaultVersion:  "1.28.0",
		},
		{
			Key:             "jenkins",
			Name:            "Jenkins",
			Category:        models.CategoryCICD,
			ProcessPatterns: []string{"jenkins.war"},
			PackageNames:    []string{"jenkins"},
			ConfigPaths:     []string{"/var/lib/jenkins/config.xml", "/etc/default/jenkins"},
			VersionProbes:   []string{"jenkins --version", "java -jar /usr/share/java/jenkins.war --version"},
			VersionPattern:  genericVersion,
			DefaultVersion:  "2.426",
		},
		{
			Key:             "gitlab-runner",
			Name:            "GitLab Runner",
			Category:        models.CategoryCICD,
			ProcessPatterns: []string{"gitlab-runner"},
			PackageNames:    []string{"gitlab-runner"},
			ConfigPaths:     []string{"/etc/gitlab-runner/config.toml"},
			VersionProbes:   []string{"gitlab-runner --version"},
			VersionPattern:  regexp.MustCompile(`(?i)Version:\s*(\d+(?:\.\d+)+)`),
			DefaultVersion:  "16.0.0",
		},
		{
			Key:             "nginx",
			Name:            "nginx",
			Category:        models.CategoryOther,
			ProcessPatterns: []string{"nginx: master"},
			PackageNames:    []string{"nginx", "nginx-core", "nginx-full", "nginx-light", "nginx-extras", "nginx-mainline"},
			ConfigPaths:     []string{"/etc/nginx/nginx.conf"},
			VersionProbes:   []string{"nginx -v 2>&1"},
			VersionPattern:  regexp.MustCompile(`nginx/(\d+(?:\.\d+)+)`),
			DefaultVersion:  "1.24.0",
		},
	}
}
