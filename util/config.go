package util

import (
	_ "embed"
	"fmt"
	"gopkg.in/yaml.v3"
	"log"
	"os"
	"strconv"
)

const Name = "picofed"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host      string
		HttpPort  int    `yaml:"httpPort"`
		Domain    string `yaml:"domain"`
		SslDomain string `yaml:"sslDomain"`
		DbFile    string `yaml:"dbFile"`
	}
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	// Try to read from resolved path
	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		// Try to write default config to user config directory
		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Printf("Warning: could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Printf("Created default config file at %s", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("PICOFED_HOST")
	envHttpPort := os.Getenv("PICOFED_HTTPPORT")
	envDomain := os.Getenv("PICOFED_DOMAIN")
	envSslDomain := os.Getenv("PICOFED_SSLDOMAIN")
	envDbFile := os.Getenv("PICOFED_DBFILE")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.HttpPort = v
	}

	if envDomain != "" {
		c.Conf.Domain = envDomain
	}

	if envSslDomain != "" {
		c.Conf.SslDomain = envSslDomain
	}

	if envDbFile != "" {
		c.Conf.DbFile = envDbFile
	}

	// Every actor and object URI is derived from the public domain and
	// persisted, so it must be fixed before anything is served.
	if c.Conf.Domain == "" {
		c.Conf.Domain = c.Conf.SslDomain
	}
	if c.Conf.Domain == "" {
		return nil, fmt.Errorf("no public domain configured (set domain in %s or PICOFED_DOMAIN)", ConfigFileName)
	}

	return c, nil
}
