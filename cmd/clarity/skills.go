package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/andresmedinaorbidi/clarity/internal/generate"
	"github.com/andresmedinaorbidi/clarity/internal/skills"
)

var skillsFormat string

// skillsCmd prints the skill catalog
var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "List the registered skills",
	Long: `List the skills in the default catalog in pipeline order.

Examples:
  # YAML output
  clarity skills

  # JSON output
  clarity skills --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return writeSkills(cmd.OutOrStdout(), skillsFormat)
	},
}

func init() {
	skillsCmd.Flags().StringVarP(&skillsFormat, "format", "f", "yaml", "output format (yaml or json)")
}

func writeSkills(w io.Writer, format string) error {
	// Runners are not invoked; the model only satisfies the constructor.
	catalog, err := skills.NewDefaultCatalog(generate.NewScripted())
	if err != nil {
		return fmt.Errorf("building skill catalog: %w", err)
	}
	list := catalog.List()

	switch format {
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(list); err != nil {
			return fmt.Errorf("encoding skills: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	default:
		return fmt.Errorf("unknown format %q (want yaml or json)", format)
	}
}
