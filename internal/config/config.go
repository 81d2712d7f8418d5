package config

import (
	"bufio"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	xlog "github.com/duskrange/wanderer/internal/log"
	"gopkg.in/yaml.v3"
)

// RuntimeSection carries ambient operational knobs that are not part of the
// traffic-emulation model itself.
type RuntimeSection struct {
	DebugEnabled            bool `yaml:"debug_enabled"`
	HTTPTimeoutSeconds      int  `yaml:"http_timeout_seconds"`
	MaxBenignErrorTolerance int  `yaml:"max_benign_error_tolerance"`
}

// PathsSection carries filesystem locations for ambient output.
type PathsSection struct {
	LogDir    string `yaml:"log_dir"`
	ReportDir string `yaml:"report_dir"`
}

// Config is the complete, immutable configuration for one run. Once
// Validate succeeds it is shared read-only by reference among every task.
type Config struct {
	Sites               []*url.URL `yaml:"-"`
	SitesRaw            []string   `yaml:"sites"`
	Adapter             string     `yaml:"adapter"`
	CIDR                string     `yaml:"cidr"`
	DNS                 string     `yaml:"dns"`
	Gateway             string     `yaml:"gateway"`
	RotationIntervalMin int        `yaml:"rotation_interval_mins"`
	RequestDelayMin     float64    `yaml:"request_delay_mins"`
	SiteSwitchMin       int        `yaml:"site_switch_mins"`
	NumUsers            int        `yaml:"num_users"`
	MaxDepth            int        `yaml:"-"`

	Runtime RuntimeSection `yaml:"runtime"`
	Paths   PathsSection   `yaml:"paths"`
}

const defaultMaxDepth = 5

// ParseSites splits input into lines, skips blank lines, parses each
// remaining line as a URL, and logs a warning (rather than failing) for
// lines that do not parse.
func ParseSites(input string) []*url.URL {
	var sites []*url.URL
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		u, err := url.Parse(trimmed)
		if err != nil || u.Host == "" {
			xlog.LogWarn("config.parse_sites", fmt.Sprintf("skipping invalid URL %q: %v", trimmed, err))
			continue
		}
		sites = append(sites, u)
	}
	return sites
}

// LoadSitesFile reads and parses a site list file.
func LoadSitesFile(path string) ([]*url.URL, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read sites file %s: %w", path, err)
	}
	sites := ParseSites(string(data))
	if len(sites) == 0 {
		return nil, fmt.Errorf("config: no valid URLs found in %s", path)
	}
	return sites, nil
}

// LoadPreset reads a YAML preset and returns a Config with its SitesRaw
// field parsed into Sites. No interactive prompts run when a preset is used:
// a field the preset omits keeps its zero value. Validate then fills in
// defaults only for max depth and the runtime and paths sections, and
// rejects a zero rotation interval or user count.
func LoadPreset(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read preset %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse preset %s: %w", path, err)
	}
	cfg.MaxDepth = defaultMaxDepth
	for _, raw := range cfg.SitesRaw {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Host == "" {
			xlog.LogWarn("config.load_preset", fmt.Sprintf("skipping invalid URL %q: %v", raw, err))
			continue
		}
		cfg.Sites = append(cfg.Sites, u)
	}
	return &cfg, nil
}

// Validate checks internal consistency once, before the config is shared.
func (c *Config) Validate() error {
	if len(c.Sites) == 0 {
		return fmt.Errorf("config: at least one site is required")
	}
	if c.Adapter == "" {
		return fmt.Errorf("config: adapter is required")
	}
	if _, _, err := net.ParseCIDR(c.CIDR); err != nil {
		return fmt.Errorf("config: invalid CIDR %q: %w", c.CIDR, err)
	}
	if net.ParseIP(c.DNS) == nil {
		return fmt.Errorf("config: invalid DNS address %q", c.DNS)
	}
	gwIP := net.ParseIP(c.Gateway)
	if gwIP == nil {
		return fmt.Errorf("config: invalid gateway address %q", c.Gateway)
	}
	if !c.gatewayInCIDR(gwIP) {
		xlog.LogWarn("config.validate", fmt.Sprintf("gateway %s is not within CIDR range %s; routes will be added with onlink as a fallback", c.Gateway, c.CIDR))
	}
	if c.RotationIntervalMin < 1 {
		return fmt.Errorf("config: rotation interval must be at least 1 minute")
	}
	if c.RequestDelayMin < 0 {
		return fmt.Errorf("config: request delay cannot be negative")
	}
	if c.NumUsers < 1 || c.NumUsers > 50 {
		return fmt.Errorf("config: number of virtual users must be between 1 and 50")
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = defaultMaxDepth
	}
	if c.Runtime.HTTPTimeoutSeconds <= 0 {
		c.Runtime.HTTPTimeoutSeconds = 60
	}
	if c.Runtime.MaxBenignErrorTolerance <= 0 {
		c.Runtime.MaxBenignErrorTolerance = 3
	}
	if c.Paths.LogDir == "" {
		c.Paths.LogDir = "logs"
	}
	if c.Paths.ReportDir == "" {
		c.Paths.ReportDir = "reports"
	}
	return nil
}

func (c *Config) gatewayInCIDR(gw net.IP) bool {
	_, network, err := net.ParseCIDR(c.CIDR)
	if err != nil {
		return false
	}
	return network.Contains(gw)
}

// HTTPTimeout returns the configured per-request HTTP timeout.
func (c *Config) HTTPTimeout() time.Duration {
	if c.Runtime.HTTPTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Runtime.HTTPTimeoutSeconds) * time.Second
}

// PromptConfig walks the operator through the sequential interactive
// prompts described for this run, using the already-loaded site list and
// the set of available adapters (formatted "name (MAC: x, State: y)").
func PromptConfig(sites []*url.URL, adapterChoices []string, adapterNames []string) (*Config, error) {
	r := bufio.NewReader(os.Stdin)

	fmt.Println("\n=== wanderer configuration ===")
	for i, choice := range adapterChoices {
		fmt.Printf("  [%d] %s\n", i, choice)
	}
	adapterIdx, err := promptInt(r, "Select network adapter", 0)
	if err != nil {
		return nil, err
	}
	if adapterIdx < 0 || adapterIdx >= len(adapterNames) {
		return nil, fmt.Errorf("config: adapter index %d out of range", adapterIdx)
	}

	cidr, err := promptString(r, "CIDR range for IP rotation (e.g. 10.0.0.0/24)", "")
	if err != nil {
		return nil, err
	}
	dns, err := promptString(r, "DNS server IP", "")
	if err != nil {
		return nil, err
	}
	gateway, err := promptString(r, "Gateway/router IP", "")
	if err != nil {
		return nil, err
	}
	rotationMin, err := promptInt(r, "IP/MAC rotation interval (minutes)", 15)
	if err != nil {
		return nil, err
	}
	delayMin, err := promptFloat(r, "Delay between web requests (minutes)", 2.0)
	if err != nil {
		return nil, err
	}
	switchMin, err := promptInt(r, "Switch to a different site every (minutes)", 30)
	if err != nil {
		return nil, err
	}
	numUsers, err := promptInt(r, "Number of concurrent virtual users", 3)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Sites:               sites,
		Adapter:             adapterNames[adapterIdx],
		CIDR:                cidr,
		DNS:                 dns,
		Gateway:             gateway,
		RotationIntervalMin: rotationMin,
		RequestDelayMin:     delayMin,
		SiteSwitchMin:       switchMin,
		NumUsers:            numUsers,
		MaxDepth:            defaultMaxDepth,
	}
	return cfg, nil
}

func promptString(r *bufio.Reader, prompt, def string) (string, error) {
	if def != "" {
		fmt.Printf("%s [%s]: ", prompt, def)
	} else {
		fmt.Printf("%s: ", prompt)
	}
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

func promptInt(r *bufio.Reader, prompt string, def int) (int, error) {
	s, err := promptString(r, prompt, strconv.Itoa(def))
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("config: invalid integer %q for %q: %w", s, prompt, err)
	}
	return v, nil
}

func promptFloat(r *bufio.Reader, prompt string, def float64) (float64, error) {
	s, err := promptString(r, prompt, strconv.FormatFloat(def, 'f', -1, 64))
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid number %q for %q: %w", s, prompt, err)
	}
	return v, nil
}

// Summary renders the configuration summary block printed before the
// operator confirms the run.
func (c *Config) Summary() string {
	var b strings.Builder
	fmt.Fprintln(&b, "=== Configuration Summary ===")
	fmt.Fprintf(&b, "  Adapter:          %s\n", c.Adapter)
	fmt.Fprintf(&b, "  CIDR range:       %s\n", c.CIDR)
	fmt.Fprintf(&b, "  DNS:              %s\n", c.DNS)
	fmt.Fprintf(&b, "  Gateway:          %s\n", c.Gateway)
	fmt.Fprintf(&b, "  IP/MAC rotation:  every %d min\n", c.RotationIntervalMin)
	fmt.Fprintf(&b, "  Request delay:    %.1f min\n", c.RequestDelayMin)
	fmt.Fprintf(&b, "  Site switch:      every %d min\n", c.SiteSwitchMin)
	fmt.Fprintf(&b, "  Virtual users:    %d\n", c.NumUsers)
	fmt.Fprintf(&b, "  Max crawl depth:  %d\n", c.MaxDepth)
	fmt.Fprintf(&b, "  Sites:            %d\n", len(c.Sites))
	return b.String()
}
