package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"staffcal/internal/lanes"
	"staffcal/internal/minutes"
)

var (
	layoutInput    string
	layoutTimezone string

	layoutCmd = &cobra.Command{
		Use:   "layout",
		Short: "Assign lanes to a list of intervals",
		Long: `Read intervals from a JSON or YAML file (or "-" for JSON on stdin) and
print the lane assignment of each one, in input order.

The file holds either a list of {id, start, end} objects or an object with
an "intervals" list. Start and end accept minutes since midnight, clock
strings ("13:45", "1:45pm") or ISO date-times.

Examples:
  staffcal layout --input day.json
  staffcal layout --input day.yaml --timezone Asia/Kolkata`,
		RunE: runLayout,
	}
)

func init() {
	layoutCmd.Flags().StringVarP(&layoutInput, "input", "i", "-", "Interval file (.json, .yaml, .yml, or - for stdin)")
	layoutCmd.Flags().StringVar(&layoutTimezone, "timezone", "Local", "Zone date-times are converted to before taking minutes")
	rootCmd.AddCommand(layoutCmd)
}

// intervalJSON decodes numbers as json.Number so record ids keep every digit.
var intervalJSON = sonic.Config{UseNumber: true}.Froze()

type intervalFile struct {
	Intervals []lanes.RawInterval `json:"intervals" yaml:"intervals"`
}

func runLayout(cmd *cobra.Command, args []string) error {
	loc, err := time.LoadLocation(layoutTimezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", layoutTimezone, err)
	}

	items, err := readIntervals(layoutInput, cmd.InOrStdin())
	if err != nil {
		return err
	}

	assignments, err := lanes.ComputeRaw(items, minutes.Parser{Location: loc})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), assignments)
}

func readIntervals(path string, stdin io.Reader) ([]lanes.RawInterval, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read intervals: %w", err)
	}

	var list []lanes.RawInterval
	var wrapped intervalFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &list); err != nil {
			if err2 := yaml.Unmarshal(data, &wrapped); err2 != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			list = wrapped.Intervals
		}
	default:
		if err := intervalJSON.Unmarshal(data, &list); err != nil {
			if err2 := intervalJSON.Unmarshal(data, &wrapped); err2 != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			list = wrapped.Intervals
		}
	}
	return list, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
