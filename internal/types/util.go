package types

import "fmt"

// sprintValue renders an arbitrary context scalar for comparison against a
// playbook match field, which is always a string in YAML.
func sprintValue(v any) string {
	return fmt.Sprintf("%v", v)
}
