package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/amonks/issues/client"
	"github.com/amonks/issues/internal/listflags"
	"github.com/amonks/issues/issue"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// issues export
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write issues to stdout or a file",
	Long: `Write issues as JSON (default) or YAML.

The output keeps ids, creators and timestamps so it can be loaded into
another server with import.`,
	Args: cobra.NoArgs,
	RunE: runWithClient(runExport),
}

var (
	exportFilter listflags.Filter
	exportFormat string
	exportOutput string
)

// issues import
var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load issues written by export",
	Long: `Load issues written by export. Use '-' to read from stdin.

The format follows the file extension (.yaml or .yml for YAML, anything
else JSON) unless --format is given. An issue whose id already exists
replaces the stored copy.`,
	Args: cobra.ExactArgs(1),
	RunE: runWithClient(runImport),
}

var importFormat string

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)

	listflags.AddFilterFlags(exportCmd, &exportFilter)
	exportCmd.Flags().StringVar(&exportFormat, "format", formatJSON, "Output format (json, yaml)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to a file instead of stdout")

	importCmd.Flags().StringVar(&importFormat, "format", "", "Input format (json, yaml); defaults to the file extension")
}

func runExport(cmd *cobra.Command, args []string, api *client.Client) error {
	format, err := parseTransferFormat(exportFormat)
	if err != nil {
		return err
	}
	filter, err := exportFilter.Parse()
	if err != nil {
		return err
	}
	snapshot, err := api.List(cmd.Context(), issue.Filter{})
	if err != nil {
		return err
	}
	items := issue.Visible(snapshot.Issues, filter)
	if items == nil {
		items = []issue.Issue{}
	}

	data, err := encodeIssues(items, format)
	if err != nil {
		return err
	}

	if exportOutput == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(exportOutput, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", exportOutput, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d issues to %s\n", len(items), exportOutput)
	return nil
}

func runImport(cmd *cobra.Command, args []string, api *client.Client) error {
	path := args[0]
	format := importFormat
	if format == "" {
		format = formatFromPath(path)
	}
	format, err := parseTransferFormat(format)
	if err != nil {
		return err
	}

	var data []byte
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	items, err := decodeIssues(data, format)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to import.")
		return nil
	}

	count, err := api.Import(cmd.Context(), items)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d issues\n", count)
	return nil
}

func parseTransferFormat(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case formatJSON:
		return formatJSON, nil
	case formatYAML, "yml":
		return formatYAML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want json or yaml)", value)
	}
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

func encodeIssues(items []issue.Issue, format string) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(items); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
	default:
		if err := encodeJSON(&buf, items); err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func decodeIssues(data []byte, format string) ([]issue.Issue, error) {
	var items []issue.Issue
	switch format {
	case formatYAML:
		if err := yaml.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, nil
		}
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	}
	return items, nil
}
