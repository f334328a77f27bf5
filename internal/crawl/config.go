// Package crawl orchestrates external crawl workers: it derives crawl
// parameters from a seed, renders the worker configuration artifact, and
// drives worker lifecycle through a container runtime.
package crawl

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/kb-engine/internal/kb"
)

// Params are the crawl parameters derived from a single seed URL.
type Params struct {
	SeedURL       string
	Domain        string
	FilterPattern string
	IndexSuffix   string
}

// DeriveParams derives crawl parameters from a seed URL.
//
// A path whose last segment contains a dot is treated as a seed page:
// the crawl follows links sharing the path up to and including the last
// slash. Any other path is a seed directory: the crawl follows
// descendants of the path itself. A seed lacking a parsable scheme or
// host is a configuration error; DeriveParams never starts a worker.
func DeriveParams(seedURL string) (Params, error) {
	if strings.TrimSpace(seedURL) == "" {
		return Params{}, kb.ConfigError(seedURL, fmt.Errorf("seed URL cannot be empty"))
	}
	parsed, err := url.Parse(seedURL)
	if err != nil {
		return Params{}, kb.ConfigError(seedURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return Params{}, kb.ConfigError(seedURL, fmt.Errorf("missing scheme or host"))
	}

	path := parsed.Path
	filter := path
	if last := path[strings.LastIndex(path, "/")+1:]; !strings.HasSuffix(path, "/") && strings.Contains(last, ".") {
		if idx := strings.LastIndex(path, "/"); idx >= 0 {
			filter = path[:idx+1]
		}
		if filter == "" {
			filter = "/"
		}
	}

	domain := parsed.Scheme + "://" + parsed.Host
	return Params{
		SeedURL:       seedURL,
		Domain:        domain,
		FilterPattern: filter,
		IndexSuffix:   kb.SanitizeSuffix(parsed.Host + path),
	}, nil
}

// Rule is one crawl rule; rules are evaluated first-match-wins by the
// worker, so ordering is significant.
type Rule struct {
	Pattern string `yaml:"pattern"`
	Policy  string `yaml:"policy"`
	Type    string `yaml:"type"`
}

// DomainConfig is the per-domain section of the worker configuration.
type DomainConfig struct {
	CrawlRules []Rule   `yaml:"crawl_rules"`
	SeedURLs   []string `yaml:"seed_urls"`
	URL        string   `yaml:"url"`
}

// ESSettings is the worker's search-backend connection block. Fields
// not configured are omitted entirely; an empty block is valid. UseSSL
// is a pointer so an explicitly configured false still reaches the
// worker.
type ESSettings struct {
	Host   string `yaml:"host,omitempty"`
	Port   int    `yaml:"port,omitempty"`
	UseSSL *bool  `yaml:"use_ssl,omitempty"`
	User   string `yaml:"user,omitempty"`
}

// Artifact is the complete worker configuration document. Field order
// is part of the reproducibility contract; identical input renders
// byte-identical output.
type Artifact struct {
	Domains       []DomainConfig `yaml:"domains"`
	Elasticsearch ESSettings     `yaml:"elasticsearch"`
	LogLevel      string         `yaml:"log_level,omitempty"`
	OutputIndex   string         `yaml:"output_index"`
	OutputSink    string         `yaml:"output_sink"`
}

// Synthesizer renders worker configuration artifacts. Rendering is a
// pure function of its inputs.
type Synthesizer struct {
	es         ESSettings
	logLevel   string
	configPath string
}

// NewSynthesizer returns a Synthesizer emitting artifacts with the given
// backend connection block at configPath inside the worker.
func NewSynthesizer(es ESSettings, logLevel, configPath string) *Synthesizer {
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	return &Synthesizer{es: es, logLevel: logLevel, configPath: configPath}
}

// DefaultConfigPath is where the rendered artifact lands inside the
// worker filesystem.
const DefaultConfigPath = "/config/crawl.yml"

// Build assembles the artifact for one crawl. excludePaths become
// leading deny rules; the specific allow rule always precedes the
// universal deny so the catch-all never shadows it.
func (s *Synthesizer) Build(p Params, outputIndex string, excludePaths []string) Artifact {
	rules := make([]Rule, 0, len(excludePaths)+2)
	for _, ep := range excludePaths {
		path := ep
		if parsed, err := url.Parse(ep); err == nil && parsed.Path != "" {
			path = parsed.Path
		}
		rules = append(rules, Rule{Pattern: path, Policy: "deny", Type: "begins"})
	}
	rules = append(rules,
		Rule{Pattern: p.FilterPattern, Policy: "allow", Type: "begins"},
		Rule{Pattern: ".*", Policy: "deny", Type: "regex"},
	)

	return Artifact{
		Domains: []DomainConfig{{
			CrawlRules: rules,
			SeedURLs:   []string{p.SeedURL},
			URL:        p.Domain,
		}},
		Elasticsearch: s.es,
		LogLevel:      s.logLevel,
		OutputIndex:   outputIndex,
		OutputSink:    "elasticsearch",
	}
}

// Render serializes the artifact to its canonical YAML form and wraps it
// as the file to inject.
func (s *Synthesizer) Render(a Artifact) (InjectFile, error) {
	text, err := RenderArtifact(a)
	if err != nil {
		return InjectFile{}, err
	}
	return InjectFile{Path: s.configPath, Content: text}, nil
}

// RenderArtifact serializes an artifact deterministically.
func RenderArtifact(a Artifact) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(a); err != nil {
		return "", fmt.Errorf("render crawl config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("render crawl config: %w", err)
	}
	return buf.String(), nil
}
