// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"encoding/json"
	"fmt"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/enexconv/pkg/types"
)

// WriteReport writes report to path as YAML or JSON, chosen by extension.
func WriteReport(path string, report types.Report) error {
	enc, err := types.ReportEncoding(path)
	if err != nil {
		return err
	}

	var data []byte
	switch enc {
	case "json":
		data, err = json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		data = append(data, '\n')
	default:
		data, err = yaml.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
	}
	return writeAtomic(path, data)
}
