package models

import (
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// normalizeConfiguration rewrites the json.Number values a JSON column decodes
// into as float64, the type request bodies decode into. Nested objects and
// arrays are rewritten in place.
func normalizeConfiguration(cfg datatypes.JSONMap) {
	for k, v := range cfg {
		cfg[k] = normalizeValue(v)
	}
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]interface{}:
		for k, nested := range val {
			val[k] = normalizeValue(nested)
		}
		return val
	case datatypes.JSONMap:
		normalizeConfiguration(val)
		return val
	case []interface{}:
		for i, nested := range val {
			val[i] = normalizeValue(nested)
		}
		return val
	default:
		return v
	}
}

// AfterFind is a GORM hook that runs after loading a job record
func (r *JobRecord) AfterFind(_ *gorm.DB) error {
	normalizeConfiguration(r.Configuration)
	return nil
}

// AfterFind is a GORM hook that runs after loading a test suite
func (s *TestSuite) AfterFind(_ *gorm.DB) error {
	normalizeConfiguration(s.Configuration)
	return nil
}
