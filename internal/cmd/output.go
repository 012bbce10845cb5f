package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type outputFormat string

const (
	formatText outputFormat = "text"
	formatJSON outputFormat = "json"
	formatYAML outputFormat = "yaml"
)

func addFormatFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("json", false, "Output as JSON")
	cmd.Flags().Bool("yaml", false, "Output as YAML")
	cmd.MarkFlagsMutuallyExclusive("json", "yaml")
}

func formatFromFlags(cmd *cobra.Command) outputFormat {
	if ok, _ := cmd.Flags().GetBool("json"); ok {
		return formatJSON
	}
	if ok, _ := cmd.Flags().GetBool("yaml"); ok {
		return formatYAML
	}
	return formatText
}

// writeStructured encodes v as JSON or YAML. It returns false for text
// output so callers can print their own layout.
func writeStructured(w io.Writer, format outputFormat, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	case formatText:
		return false, nil
	default:
		return false, fmt.Errorf("unknown output format %q", format)
	}
}
