package reconnect

import (
	"net"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Service describes a dependent service the engine knows how to probe and
// restart
type Service struct {
	Name        string   `mapstructure:"name" yaml:"name"`
	Host        string   `mapstructure:"host" yaml:"host"`
	Port        int      `mapstructure:"port" yaml:"port"`
	HealthPath  string   `mapstructure:"health_path" yaml:"health_path"`   // Optional HTTP health endpoint, e.g. "/api/tags"
	ManagedName string   `mapstructure:"managed_name" yaml:"managed_name"` // Container/process name for restarts; empty disables restart
	Markers     []string `mapstructure:"markers" yaml:"markers"`           // Lowercase substrings identifying the service in error text
}

// Address returns host:port
func (s Service) Address() string {
	host := s.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(s.Port))
}

// DefaultServices returns the built-in catalog entries
func DefaultServices() []Service {
	return []Service{
		{Name: "ollama", Host: "127.0.0.1", Port: 11434, HealthPath: "/api/tags", ManagedName: "ollama", Markers: []string{"ollama"}},
		{Name: "postgres", Host: "127.0.0.1", Port: 5432, ManagedName: "postgres", Markers: []string{"postgres", "pq:"}},
		{Name: "redis", Host: "127.0.0.1", Port: 6379, ManagedName: "redis", Markers: []string{"redis"}},
		{Name: "chroma", Host: "127.0.0.1", Port: 8000, HealthPath: "/api/v1/heartbeat", ManagedName: "chroma", Markers: []string{"chroma"}},
	}
}

// Catalog resolves services by name, port, or marker string
type Catalog struct {
	mu       sync.RWMutex
	byName   map[string]Service
	byPort   map[int]string
	ordering []string
}

// NewCatalog builds a catalog; later entries override earlier ones with the
// same name
func NewCatalog(services ...Service) *Catalog {
	c := &Catalog{byName: make(map[string]Service), byPort: make(map[int]string)}
	for _, s := range services {
		c.Add(s)
	}
	return c
}

// Add registers or replaces a service
func (c *Catalog) Add(s Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, exists := c.byName[s.Name]
	if !exists {
		c.ordering = append(c.ordering, s.Name)
	} else if c.byPort[prev.Port] == s.Name {
		delete(c.byPort, prev.Port)
	}
	c.byName[s.Name] = s
	if s.Port > 0 {
		c.byPort[s.Port] = s.Name
	}
}

// Get returns a service by name
func (c *Catalog) Get(name string) (Service, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.byName[name]
	return s, ok
}

// Names returns registered service names, sorted
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := append([]string{}, c.ordering...)
	sort.Strings(out)
	return out
}

var hostPortRe = regexp.MustCompile(`(?i)(\[[0-9a-f:]+\]|\d{1,3}(?:\.\d{1,3}){3}|localhost|[a-z0-9][a-z0-9.-]*\.[a-z]{2,}):(\d{2,5})\b`)

// sourceExts are file extensions that make "name.ext:N" a source position
// rather than a host
var sourceExts = map[string]bool{
	"go": true, "py": true, "js": true, "mjs": true, "cjs": true, "ts": true,
	"tsx": true, "jsx": true, "rs": true, "rb": true, "java": true, "kt": true,
	"cs": true, "cc": true, "cpp": true, "hpp": true, "php": true, "swift": true,
	"scala": true, "ex": true, "exs": true, "lua": true, "sh": true,
}

// ExtractHostPort finds the first host:port in text. Source positions such
// as main.go:12 are not hosts.
func ExtractHostPort(text string) (host string, port int, ok bool) {
	for _, m := range hostPortRe.FindAllStringSubmatch(text, -1) {
		h := strings.Trim(m[1], "[]")
		if ext := h[strings.LastIndexByte(h, '.')+1:]; strings.Contains(h, ".") && sourceExts[strings.ToLower(ext)] {
			continue
		}
		p, err := strconv.Atoi(m[2])
		if err != nil || p <= 0 || p > 65535 {
			continue
		}
		return h, p, true
	}
	return "", 0, false
}

// IsLocalHost reports whether host names this machine
func IsLocalHost(host string) bool {
	switch strings.ToLower(host) {
	case "", "localhost", "0.0.0.0", "::":
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func sameHost(a, b string) bool {
	if IsLocalHost(a) && IsLocalHost(b) {
		return true
	}
	return strings.EqualFold(a, b)
}

// Identify finds the service an error message refers to. A host:port in the
// text wins; it maps to a catalog entry only when both port and host match,
// so a remote host never resolves to a local managed service. Otherwise
// marker strings are checked. An unknown address yields an ad-hoc service
// without a managed name, so it can be probed but not restarted.
func (c *Catalog) Identify(text string) (Service, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if host, port, ok := ExtractHostPort(text); ok {
		if name, known := c.byPort[port]; known && sameHost(host, c.byName[name].Host) {
			return c.byName[name], true
		}
		return Service{Name: net.JoinHostPort(host, strconv.Itoa(port)), Host: host, Port: port}, true
	}

	lower := strings.ToLower(text)
	for _, name := range c.ordering {
		for _, marker := range c.byName[name].Markers {
			if marker != "" && strings.Contains(lower, marker) {
				return c.byName[name], true
			}
		}
	}
	return Service{}, false
}
