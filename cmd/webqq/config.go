package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	_ "embed"

	"github.com/duo/webqq/pkg/connector"

	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var exampleConfig string

type Config struct {
	QRCodePath string            `yaml:"qrcode_path"`
	Network    *connector.Config `yaml:"network"`
	Logging    zeroconfig.Config `yaml:"logging"`
}

// fullExampleConfig splices the network example into the placeholder of the
// top-level example.
func fullExampleConfig() string {
	var network strings.Builder
	network.WriteString("network:\n")
	for _, line := range strings.Split(strings.TrimRight(connector.ExampleConfig, "\n"), "\n") {
		if line != "" {
			network.WriteString("    ")
			network.WriteString(line)
		}
		network.WriteByte('\n')
	}
	return strings.Replace(exampleConfig, "network: {}\n", network.String(), 1)
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "qrcode_path")
	connector.UpgradeConfig(helper, "network")
	helper.Copy(up.Map, "logging")
}

var spacedBlocks = [][]string{
	{"network"},
	{"logging"},
}

// loadConfig reads the config at path, writing the example there first if
// the file does not exist. Keys missing from an older file are filled in from
// the example and, if save is set, written back.
func loadConfig(path string, save bool) (*Config, error) {
	base := fullExampleConfig()

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err = os.WriteFile(path, []byte(base), 0600); err != nil {
			return nil, fmt.Errorf("failed to write example config: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	data, _, err := up.Do(path, save, &up.StructUpgrader{
		SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
		Blocks:         spacedBlocks,
		Base:           base,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade config: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Network == nil {
		if cfg.Network, err = connector.DefaultConfig(); err != nil {
			return nil, err
		}
	}
	if cfg.QRCodePath == "" {
		cfg.QRCodePath = "qrcode.png"
	}
	return &cfg, nil
}
