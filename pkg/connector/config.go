package connector

import (
	"fmt"
	"time"

	"github.com/duo/webqq/pkg/qqid"

	"gopkg.in/yaml.v3"

	_ "embed"

	up "go.mau.fi/util/configupgrade"
)

//go:embed example-config.yaml
var ExampleConfig string

type Config struct {
	ClientID int64 `yaml:"client_id"`

	Login struct {
		VerifyIntervalStr string `yaml:"verify_interval"`
		MaxWaitStr        string `yaml:"max_wait"`
		NotFoundRetries   int    `yaml:"not_found_retries"`

		VerifyInterval time.Duration `yaml:"-"`
		MaxWait        time.Duration `yaml:"-"`
	} `yaml:"login"`

	Poll struct {
		TimeoutStr      string `yaml:"timeout"`
		ErrorBackoffStr string `yaml:"error_backoff"`
		DedupeSize      int    `yaml:"dedupe_size"`

		Timeout      time.Duration `yaml:"-"`
		ErrorBackoff time.Duration `yaml:"-"`
	} `yaml:"poll"`

	Transport struct {
		RequestTimeoutStr string `yaml:"request_timeout"`
		MaxConnsPerHost   int    `yaml:"max_conns_per_host"`
		MaxIdleConns      int    `yaml:"max_idle_conns"`

		RequestTimeout time.Duration `yaml:"-"`
	} `yaml:"transport"`

	Endpoints map[string]*Endpoint `yaml:"endpoints"`
}

type umConfig Config

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	err := node.Decode((*umConfig)(c))
	if err != nil {
		return err
	}
	return c.PostProcess()
}

func (c *Config) PostProcess() error {
	if c.ClientID == 0 {
		c.ClientID = qqid.DefaultClientID
	}

	durations := []struct {
		str *string
		out *time.Duration
	}{
		{&c.Login.VerifyIntervalStr, &c.Login.VerifyInterval},
		{&c.Login.MaxWaitStr, &c.Login.MaxWait},
		{&c.Poll.TimeoutStr, &c.Poll.Timeout},
		{&c.Poll.ErrorBackoffStr, &c.Poll.ErrorBackoff},
		{&c.Transport.RequestTimeoutStr, &c.Transport.RequestTimeout},
	}
	for _, d := range durations {
		if *d.str == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d.str)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", *d.str, err)
		}
		*d.out = parsed
	}

	if c.Login.VerifyInterval <= 0 {
		return fmt.Errorf("login.verify_interval must be positive")
	}
	if c.Login.MaxWait < 0 {
		return fmt.Errorf("login.max_wait must not be negative")
	}
	if c.Login.NotFoundRetries < 0 {
		return fmt.Errorf("login.not_found_retries must not be negative")
	}
	if c.Poll.Timeout <= 0 {
		return fmt.Errorf("poll.timeout must be positive")
	}
	if c.Poll.ErrorBackoff < 0 {
		return fmt.Errorf("poll.error_backoff must not be negative")
	}
	if c.Poll.DedupeSize < 0 {
		return fmt.Errorf("poll.dedupe_size must not be negative")
	}
	if c.Transport.RequestTimeout <= 0 {
		return fmt.Errorf("transport.request_timeout must be positive")
	}
	if c.Transport.MaxConnsPerHost <= 0 || c.Transport.MaxIdleConns <= 0 {
		return fmt.Errorf("transport connection limits must be positive")
	}

	for name, ep := range c.Endpoints {
		if ep == nil {
			return fmt.Errorf("endpoint %s is empty", name)
		}
		if err := ep.compile(name); err != nil {
			return err
		}
	}
	for _, name := range requiredEndpoints {
		if _, ok := c.Endpoints[name]; !ok {
			return fmt.Errorf("endpoint %s is not configured", name)
		}
	}

	return nil
}

// Endpoint returns the descriptor registered under name.
func (c *Config) Endpoint(name string) (*Endpoint, error) {
	ep, ok := c.Endpoints[name]
	if !ok || ep == nil {
		return nil, fmt.Errorf("endpoint %s is not configured", name)
	}
	return ep, nil
}

// DefaultConfig returns the configuration described by ExampleConfig.
func DefaultConfig() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(ExampleConfig), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse example config: %w", err)
	}
	return &cfg, nil
}

// UpgradeConfig carries the user's network settings over onto the current
// example config. prefix is the path of the network block in the full file.
func UpgradeConfig(helper up.Helper, prefix ...string) {
	path := func(p ...string) []string {
		return append(append([]string{}, prefix...), p...)
	}

	helper.Copy(up.Int, path("client_id")...)
	helper.Copy(up.Str, path("login", "verify_interval")...)
	helper.Copy(up.Str, path("login", "max_wait")...)
	helper.Copy(up.Int, path("login", "not_found_retries")...)
	helper.Copy(up.Str, path("poll", "timeout")...)
	helper.Copy(up.Str, path("poll", "error_backoff")...)
	helper.Copy(up.Int, path("poll", "dedupe_size")...)
	helper.Copy(up.Str, path("transport", "request_timeout")...)
	helper.Copy(up.Int, path("transport", "max_conns_per_host")...)
	helper.Copy(up.Int, path("transport", "max_idle_conns")...)
	helper.Copy(up.Map, path("endpoints")...)
}
