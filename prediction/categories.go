package prediction

import (
	"encoding/json"
	"os"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// CategoryMap maps a class label to a species name.
type CategoryMap map[string]string

// LoadCategoryNames reads a JSON object of label -> name.
func LoadCategoryNames(path string) (CategoryMap, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError("read category names", path, err)
	}
	var m CategoryMap
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.NewSchemaError("category_names", "expected a JSON object of strings: "+err.Error())
	}
	if m == nil {
		return nil, errors.NewSchemaError("category_names", "expected a JSON object of strings")
	}
	return m, nil
}
