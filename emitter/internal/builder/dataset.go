package builder

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dataset holds the values records are drawn from.
type Dataset struct {
	Names        []string `json:"names" yaml:"names"`
	Origins      []string `json:"origins" yaml:"origins"`
	Destinations []string `json:"destinations" yaml:"destinations"`
}

//go:embed data.yaml
var defaultData []byte

// DefaultDataset returns the dataset compiled into the binary.
func DefaultDataset() (*Dataset, error) {
	return ParseDataset(defaultData, "yaml")
}

// LoadDataset reads a JSON or YAML dataset. The format follows the file
// extension; anything other than .json is parsed as YAML.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	return ParseDataset(data, format)
}

// ParseDataset decodes data as "json" or "yaml" and validates the result.
func ParseDataset(data []byte, format string) (*Dataset, error) {
	var d Dataset
	var err error
	switch format {
	case "json":
		err = json.Unmarshal(data, &d)
	case "yaml":
		err = yaml.Unmarshal(data, &d)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s dataset: %w", format, err)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate requires every list to have at least one entry.
func (d *Dataset) Validate() error {
	var errs []error
	if len(d.Names) == 0 {
		errs = append(errs, errors.New("dataset has no names"))
	}
	if len(d.Origins) == 0 {
		errs = append(errs, errors.New("dataset has no origins"))
	}
	if len(d.Destinations) == 0 {
		errs = append(errs, errors.New("dataset has no destinations"))
	}
	return errors.Join(errs...)
}
