package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// MaxSuggestions is the number of quick-action suggestions a surface can
// bind to shortcuts.
const MaxSuggestions = 9

// UISettings is presentation-only content. The welcome banner is never part
// of the transcript.
type UISettings struct {
	Title       string   `yaml:"title" json:"title"`
	Welcome     string   `yaml:"welcome" json:"welcome"`
	Suggestions []string `yaml:"suggestions" json:"suggestions"`
}

func DefaultUISettings() UISettings {
	return UISettings{
		Title:   "chatdesk",
		Welcome: "Hello! I'm your banking assistant. Ask me about your balance, recent transactions or card services.",
		Suggestions: []string{
			"What is my current balance?",
			"Show my recent transactions",
			"How do I block my card?",
		},
	}
}

// LoadUISettings reads a YAML settings file. An empty path yields the
// defaults; fields missing from the file keep their default values.
func LoadUISettings(path string) (UISettings, error) {
	settings := DefaultUISettings()
	path = strings.TrimSpace(path)
	if path == "" {
		return settings, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return UISettings{}, errors.Wrapf(err, "read ui settings %s", path)
	}
	var file struct {
		Title       *string   `yaml:"title"`
		Welcome     *string   `yaml:"welcome"`
		Suggestions *[]string `yaml:"suggestions"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return UISettings{}, errors.Wrapf(err, "parse ui settings %s", path)
	}
	if file.Title != nil {
		settings.Title = strings.TrimSpace(*file.Title)
	}
	if file.Welcome != nil {
		settings.Welcome = strings.TrimSpace(*file.Welcome)
	}
	if file.Suggestions != nil {
		settings.Suggestions = settings.Suggestions[:0:0]
		for _, s := range *file.Suggestions {
			if s = strings.TrimSpace(s); s != "" {
				settings.Suggestions = append(settings.Suggestions, s)
			}
		}
	}
	if len(settings.Suggestions) > MaxSuggestions {
		return UISettings{}, errors.Errorf("ui settings %s: at most %d suggestions are supported", path, MaxSuggestions)
	}
	return settings, nil
}
