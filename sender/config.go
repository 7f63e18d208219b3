package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config for sender
type Config struct {
	Target     string `yaml:"target"`
	TargetPort int    `yaml:"target-port"`
	File       string `yaml:"file"`
	Controller string `yaml:"controller"`
	UDP        bool   `yaml:"udp"`
	PubKey     string `yaml:"pub-key"`
	PrivKey    string `yaml:"priv-key"`
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
