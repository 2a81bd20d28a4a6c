package formatters

import (
	"encoding/json"
	"fmt"

	"github.com/bl4ck0w1/forkhound/pkg/models"
	"gopkg.in/yaml.v3"
)

type JSONFormatter struct{}

func (f *JSONFormatter) Format(report *models.Report) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json report: %w", err)
	}
	return append(data, '\n'), nil
}

func (f *JSONFormatter) FileExtension() string { return models.ReportFormatJSON }

type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(report *models.Report) ([]byte, error) {
	data, err := yaml.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml report: %w", err)
	}
	return data, nil
}

func (f *YAMLFormatter) FileExtension() string { return models.ReportFormatYAML }
