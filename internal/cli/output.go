package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// render writes v as JSON or YAML when --output asks for it, otherwise
// hands the writer to text.
func render(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	out := cmd.OutOrStdout()
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case "", "text":
		text(out)
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (want text, json or yaml)", outputFormat)
	}
}

func label(w io.Writer, name string, value any) {
	fmt.Fprintf(w, "%s %v\n", labelStyle.Render(name+":"), value)
}
