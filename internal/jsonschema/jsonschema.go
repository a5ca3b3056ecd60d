// Package jsonschema implements the narrow slice of JSON Schema
// (draft 2020-12 vocabulary: type, required, properties, items, enum,
// minimum/maximum, minLength/maxLength, minItems/maxItems) needed to
// back POST /validate-output. No schema-validation library appears
// anywhere in the example pack, so this is a deliberately small
// recursive validator rather than a general engine.
package jsonschema

import (
	"encoding/json"
	"fmt"
)

// Error is one schema violation, reported with the JSON Pointer path
// to the offending value.
type Error struct {
	Path    string
	Message string
}

func (e Error) String() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate decodes schema and instance from raw JSON, checks instance
// against schema, and returns every
// violation found rather than stopping at the first.
func Validate(schema, instance []byte) (bool, []Error, error) {
	var s map[string]interface{}
	if err := json.Unmarshal(schema, &s); err != nil {
		return false, nil, fmt.Errorf("jsonschema: decoding schema: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(instance, &v); err != nil {
		return false, nil, fmt.Errorf("jsonschema: decoding instance: %w", err)
	}

	var errs []Error
	walk(s, v, "", &errs)
	return len(errs) == 0, errs, nil
}

func walk(schema map[string]interface{}, value interface{}, path string, errs *[]Error) {
	if wantType, ok := schema["type"].(string); ok {
		if !matchesType(wantType, value) {
			*errs = append(*errs, Error{Path: path, Message: fmt.Sprintf("want type %q, got %s", wantType, jsonTypeName(value))})
			return
		}
	}

	if enum, ok := schema["enum"].([]interface{}); ok {
		if !enumContains(enum, value) {
			*errs = append(*errs, Error{Path: path, Message: "value not in enum"})
		}
	}

	switch typed := value.(type) {
	case map[string]interface{}:
		walkObject(schema, typed, path, errs)
	case []interface{}:
		walkArray(schema, typed, path, errs)
	case string:
		walkString(schema, typed, path, errs)
	case float64:
		walkNumber(schema, typed, path, errs)
	}
}

func walkObject(schema map[string]interface{}, obj map[string]interface{}, path string, errs *[]Error) {
	if required, ok := schema["required"].([]interface{}); ok {
		for _, r := range required {
			name, ok := r.(string)
			if !ok {
				continue
			}
			if _, present := obj[name]; !present {
				*errs = append(*errs, Error{Path: path, Message: fmt.Sprintf("missing required property %q", name)})
			}
		}
	}

	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return
	}
	for name, value := range obj {
		propSchemaRaw, ok := props[name]
		if !ok {
			continue
		}
		propSchema, ok := propSchemaRaw.(map[string]interface{})
		if !ok {
			continue
		}
		walk(propSchema, value, path+"/"+name, errs)
	}
}

func walkArray(schema map[string]interface{}, arr []interface{}, path string, errs *[]Error) {
	if minItems, ok := numberField(schema, "minItems"); ok && float64(len(arr)) < minItems {
		*errs = append(*errs, Error{Path: path, Message: fmt.Sprintf("want at least %v items, got %d", minItems, len(arr))})
	}
	if maxItems, ok := numberField(schema, "maxItems"); ok && float64(len(arr)) > maxItems {
		*errs = append(*errs, Error{Path: path, Message: fmt.Sprintf("want at most %v items, got %d", maxItems, len(arr))})
	}

	itemSchemaRaw, ok := schema["items"]
	if !ok {
		return
	}
	itemSchema, ok := itemSchemaRaw.(map[string]interface{})
	if !ok {
		return
	}
	for i, elem := range arr {
		walk(itemSchema, elem, fmt.Sprintf("%s/%d", path, i), errs)
	}
}

func walkString(schema map[string]interface{}, s string, path string, errs *[]Error) {
	if minLength, ok := numberField(schema, "minLength"); ok && float64(len(s)) < minLength {
		*errs = append(*errs, Error{Path: path, Message: fmt.Sprintf("want length >= %v, got %d", minLength, len(s))})
	}
	if maxLength, ok := numberField(schema, "maxLength"); ok && float64(len(s)) > maxLength {
		*errs = append(*errs, Error{Path: path, Message: fmt.Sprintf("want length <= %v, got %d", maxLength, len(s))})
	}
}

func walkNumber(schema map[string]interface{}, n float64, path string, errs *[]Error) {
	if minimum, ok := numberField(schema, "minimum"); ok && n < minimum {
		*errs = append(*errs, Error{Path: path, Message: fmt.Sprintf("want >= %v, got %v", minimum, n)})
	}
	if maximum, ok := numberField(schema, "maximum"); ok && n > maximum {
		*errs = append(*errs, Error{Path: path, Message: fmt.Sprintf("want <= %v, got %v", maximum, n)})
	}
}

func numberField(schema map[string]interface{}, key string) (float64, bool) {
	n, ok := schema[key].(float64)
	return n, ok
}

func enumContains(enum []interface{}, value interface{}) bool {
	for _, candidate := range enum {
		if fmt.Sprint(candidate) == fmt.Sprint(value) {
			return true
		}
	}
	return false
}

func matchesType(want string, value interface{}) bool {
	switch want {
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		n, ok := value.(float64)
		return ok && n == float64(int64(n))
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}

func jsonTypeName(value interface{}) string {
	switch value.(type) {
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}
