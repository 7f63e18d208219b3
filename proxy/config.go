package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config for proxy
type Config struct {
	ProxyPort  int    `yaml:"proxy-port"`
	TargetPort int    `yaml:"target-port"`
	Target     string `yaml:"target"`
	Controller string `yaml:"controller"`
	UDP        bool   `yaml:"udp"`
	Log        string `yaml:"log"`
}

func parseYAMLConfig(config *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return yaml.NewDecoder(file).Decode(config)
}
