package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Build a Lambda layer and save the archive",
	Long: `Build a Lambda layer on the server and save the returned zip.

Packages come from repeated --requirement flags, a requirements file, or
both. In a requirements file every non-empty line that does not start
with # is one package name; "-" reads the file from stdin.`,
	Example: `  layerctl generate --python 3.11 --name MyLayer -r requests -r boto3
  layerctl generate -p 3.12 -n Deps -f requirements.txt -o ./dist`,
	RunE: func(cmd *cobra.Command, args []string) error {
		version, _ := cmd.Flags().GetString("python")
		name, _ := cmd.Flags().GetString("name")
		requirements, _ := cmd.Flags().GetStringArray("requirement")
		file, _ := cmd.Flags().GetString("requirements-file")
		output, _ := cmd.Flags().GetString("output")

		if file != "" {
			fromFile, err := readRequirements(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			requirements = append(requirements, fromFile...)
		}

		client := NewLayerClient(viper.GetString("url"), viper.GetString("token"))
		cmd.Printf("Building layer %s for Python %s (%d packages)...\n", name, version, len(requirements))

		layer, err := client.GenerateLayer(GenerateRequest{
			PythonVersion: version,
			LayerName:     name,
			Requirements:  requirements,
		})
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && len(apiErr.Details) > 0 {
				cmd.Println("Request rejected:")
				for _, d := range apiErr.Details {
					cmd.Printf("  - %s\n", d)
				}
			}
			return err
		}

		path := outputPath(output, layer.Filename)
		if err := os.WriteFile(path, layer.Data, 0o644); err != nil {
			return fmt.Errorf("failed to save layer: %w", err)
		}

		cmd.Printf("✅ Layer saved to %s (%d bytes)\n", path, len(layer.Data))
		return nil
	},
}

// readRequirements parses a requirements file, one package per line.
func readRequirements(stdin io.Reader, path string) ([]string, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open requirements file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read requirements file: %w", err)
	}
	return out, nil
}

// outputPath places filename inside output when output is a directory.
func outputPath(output, filename string) string {
	if output == "" {
		return filename
	}
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return filepath.Join(output, filename)
	}
	return output
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringP("python", "p", "", "Python runtime version (e.g. 3.11)")
	generateCmd.Flags().StringP("name", "n", "", "Layer name")
	generateCmd.Flags().StringArrayP("requirement", "r", nil, "Package to install (repeatable)")
	generateCmd.Flags().StringP("requirements-file", "f", "", "File with one package per line (- for stdin)")
	generateCmd.Flags().StringP("output", "o", "", "Output file or directory (default: <name>.zip)")

	generateCmd.MarkFlagRequired("python")
	generateCmd.MarkFlagRequired("name")
}
