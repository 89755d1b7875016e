package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/brizzai/fhir-chart/internal/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by Encode
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": message,
	}); err != nil {
		logger.Error("Failed to encode error response", zap.Error(err))
	}
}

// Encode writes v to w as indented JSON or as YAML. YAML keys follow the
// JSON field names, so v is converted through JSON first.
func Encode(w io.Writer, format string, v interface{}) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q, expected json or yaml", format)
	}
}
