package config

import "os"

// ExpandEnv expands ${VAR} and $VAR references in YAML content against the
// process environment. Missing variables expand to empty string;
// validate's job is to catch whatever that leaves invalid.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
