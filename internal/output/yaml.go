package output

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter renders values as YAML.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(value any) (string, error) {
	var sb strings.Builder
	encoder := yaml.NewEncoder(&sb)
	encoder.SetIndent(2)
	if err := encoder.Encode(value); err != nil {
		return "", err
	}
	if err := encoder.Close(); err != nil {
		return "", err
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
