package config

import (
	"fmt"
	"slices"
	"strconv"
)

// FormatFlags renders engine flags as command-line arguments. Booleans use
// the --key=value form the engine's flag parser requires; other values are
// passed as --key value. Keys are sorted so the command line is stable.
func FormatFlags(flags map[string]any) []string {
	keys := make([]string, 0, len(flags))
	for k := range flags {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	args := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		switch v := flags[k].(type) {
		case bool:
			args = append(args, fmt.Sprintf("--%s=%t", k, v))
		case string:
			args = append(args, "--"+k, v)
		case float64:
			args = append(args, "--"+k, strconv.FormatFloat(v, 'f', -1, 64))
		case nil:
			args = append(args, "--"+k)
		default:
			args = append(args, "--"+k, fmt.Sprint(v))
		}
	}
	return args
}

// enumFlags lists engine flags that only accept a fixed set of values.
var enumFlags = map[string][]string{
	"limit_type":        {"max", "min"},
	"det_db_score_mode": {"slow", "fast"},
	"precision":         {"fp32", "fp16", "int8"},
	"type":              {"ocr", "structure"},
}

// validateFlags checks the engine flags whose values are constrained.
func validateFlags(flags map[string]any) error {
	for k, v := range flags {
		if k == "" {
			return fmt.Errorf("flag with empty name")
		}
		if allowed, ok := enumFlags[k]; ok {
			s, isString := v.(string)
			if !isString || !slices.Contains(allowed, s) {
				return fmt.Errorf("flag %s: %v is not one of %v", k, v, allowed)
			}
		}
	}

	if v, ok := flags["port"]; ok {
		port, isInt := v.(int)
		if !isInt || port < 0 || port > 65535 {
			return fmt.Errorf("flag port: %v is not a port number", v)
		}
	}
	return nil
}
