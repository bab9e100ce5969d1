package registry

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// DownloadConfig defines how documents of a source are fetched.
type DownloadConfig struct {
	Method         string  `yaml:"method"` // http | browser
	BaseURL        string  `yaml:"base_url"`
	Antibot        string  `yaml:"antibot,omitempty"` // e.g. "servicepipe"
	DelayMinSec    float64 `yaml:"delay_min,omitempty"`
	DelayMaxSec    float64 `yaml:"delay_max,omitempty"`
	WaitSelector   string  `yaml:"wait_selector,omitempty"`
	MaxRetries     int     `yaml:"max_retries,omitempty"`     // default 3
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"` // default 60
}

// DetectConfig defines how listing pages of a source are scanned.
type DetectConfig struct {
	ListURLs         []string `yaml:"list_urls"`
	LinkRegex        string   `yaml:"link_regex,omitempty"`
	TitleRegex       string   `yaml:"title_regex,omitempty"`
	OrderDateRegex   string   `yaml:"order_date_regex,omitempty"`
	OrderNumberRegex string   `yaml:"order_number_regex,omitempty"`
	SourceType       string   `yaml:"source_type,omitempty"` // pdf_portal | json_embed | html_table | document_cards
	JSVar            string   `yaml:"js_var,omitempty"`      // for json_embed
	Pagination       string   `yaml:"pagination,omitempty"`  // e.g. "?page={n}"
	MaxPages         int      `yaml:"max_pages,omitempty"`   // default 1
}

// MetaConfig carries document provenance attributes.
type MetaConfig struct {
	IssuingBody   string `yaml:"issuing_body"`
	OrderType     string `yaml:"order_type"` // order | directive
	Region        string `yaml:"region"`
	OfficialBasis string `yaml:"official_basis,omitempty"`
}

// SourceConfig is a single portal configuration.
type SourceConfig struct {
	Code      string         `yaml:"code"`
	Name      string         `yaml:"name"`
	RiskClass string         `yaml:"risk_class"` // green | amber | red
	Active    bool           `yaml:"active"`
	Download  DownloadConfig `yaml:"download"`
	Detect    DetectConfig   `yaml:"detect"`
	Meta      MetaConfig     `yaml:"meta"`
}

const (
	defaultLinkRegex  = `href=["']([^"']*\.pdf)["']`
	defaultMaxRetries = 3
	defaultTimeoutSec = 60
)

// Registry is the in-process source catalog plus the egress allowlist.
// The allowlist is the union of every configured hostname and any host
// registered at runtime via RegisterHost.
type Registry struct {
	sources []SourceConfig
	byCode  map[string]*SourceConfig

	mu    sync.RWMutex
	hosts map[string]bool
}

// Load reads the embedded sources.yaml, falling back to path for local
// development. Environment variables inside the YAML are expanded.
func Load(path string) (*Registry, error) {
	data, err := sourcesYAML.ReadFile("config/sources.yaml")
	if err != nil {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	expanded := os.ExpandEnv(string(data))

	var doc struct {
		Sources []SourceConfig `yaml:"sources"`
	}
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse sources config: %w", err)
	}

	return New(doc.Sources)
}

// New builds a registry from explicit configs and validates them.
func New(sources []SourceConfig) (*Registry, error) {
	r := &Registry{
		sources: sources,
		byCode:  make(map[string]*SourceConfig, len(sources)),
		hosts:   make(map[string]bool),
	}

	for i := range r.sources {
		src := &r.sources[i]
		if src.Code == "" {
			return nil, fmt.Errorf("source #%d has empty code", i)
		}
		if _, dup := r.byCode[src.Code]; dup {
			return nil, fmt.Errorf("duplicate source code %q", src.Code)
		}
		if src.Active {
			if len(src.Detect.ListURLs) == 0 {
				return nil, fmt.Errorf("active source %q has no list URLs", src.Code)
			}
			switch src.Detect.SourceType {
			case "json_embed":
				if src.Detect.JSVar == "" {
					return nil, fmt.Errorf("json_embed source %q has no js_var", src.Code)
				}
			case "document_cards":
				// Card grouping needs no link regex.
			default:
				if src.Detect.LinkRegex == "" {
					src.Detect.LinkRegex = defaultLinkRegex
				}
			}
		}
		if src.Detect.SourceType == "" {
			src.Detect.SourceType = "pdf_portal"
		}
		if src.Detect.MaxPages == 0 {
			src.Detect.MaxPages = 1
		}
		if src.Download.MaxRetries == 0 {
			src.Download.MaxRetries = defaultMaxRetries
		}
		if src.Download.TimeoutSeconds == 0 {
			src.Download.TimeoutSeconds = defaultTimeoutSec
		}
		r.byCode[src.Code] = src

		for _, h := range src.hostnames() {
			r.hosts[h] = true
		}
	}

	return r, nil
}

func (c *SourceConfig) hostnames() []string {
	var out []string
	add := func(raw string) {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			return
		}
		out = append(out, u.Hostname())
	}
	add(c.Download.BaseURL)
	for _, lu := range c.Detect.ListURLs {
		add(lu)
	}
	return out
}

// ByCode returns the source with the given code.
func (r *Registry) ByCode(code string) (*SourceConfig, bool) {
	src, ok := r.byCode[code]
	return src, ok
}

// All returns every configured source.
func (r *Registry) All() []SourceConfig {
	return r.sources
}

// Active returns sources with the active flag set.
func (r *Registry) Active() []SourceConfig {
	var out []SourceConfig
	for _, src := range r.sources {
		if src.Active {
			out = append(out, src)
		}
	}
	return out
}

// RegisterHost adds a hostname to the egress allowlist. Effective
// immediately; removal requires restart.
func (r *Registry) RegisterHost(host string) {
	if host == "" {
		return
	}
	r.mu.Lock()
	r.hosts[host] = true
	r.mu.Unlock()
}

// HostAllowed reports whether outbound calls to host are permitted.
func (r *Registry) HostAllowed(host string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hosts[host]
}

// AllowedHosts returns a snapshot of the allowlist.
func (r *Registry) AllowedHosts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.hosts))
	for h := range r.hosts {
		out = append(out, h)
	}
	return out
}
