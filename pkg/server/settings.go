package server

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Settings configures the reference chat server.
type Settings struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`
	// DBPath is the sqlite file holding sessions and message history.
	DBPath string `yaml:"db_path"`
	// BotReply is the canned reply sent while a session's AI mode is on.
	BotReply string `yaml:"bot_reply"`
	// Redis switches the internal event bus from in-process channels to Redis
	// Streams, for running more than one server instance.
	Redis RedisSettings `yaml:"redis"`
}

type RedisSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Group    string `yaml:"group"`
	Consumer string `yaml:"consumer"`
}

const defaultBotReply = "Thanks for reaching out! I'm an automated assistant - a human agent will follow up shortly."

func DefaultSettings() Settings {
	return Settings{
		Addr:     ":8080",
		DBPath:   "jiminy.db",
		BotReply: defaultBotReply,
	}
}

// LoadSettings reads a yaml settings file, filling defaults for anything the
// file leaves out. A missing path returns plain defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if strings.TrimSpace(path) == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, errors.Wrap(err, "read settings")
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, errors.Wrap(err, "parse settings")
	}
	if s.Addr == "" {
		s.Addr = ":8080"
	}
	if s.DBPath == "" {
		s.DBPath = "jiminy.db"
	}
	if s.BotReply == "" {
		s.BotReply = defaultBotReply
	}
	return s, nil
}
