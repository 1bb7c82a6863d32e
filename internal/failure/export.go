package failure

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Export serialises the log, oldest first. An empty format means JSON.
func (r *Reporter) Export(format string) ([]byte, error) {
	entries := r.Logs()
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return json.MarshalIndent(entries, "", "  ")
	case FormatYAML, "yml":
		return yaml.Marshal(entries)
	default:
		return nil, fmt.Errorf("unsupported export format %q, use %s or %s", format, FormatJSON, FormatYAML)
	}
}
