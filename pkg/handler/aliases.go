package handler

import "strings"

// typeAliases maps accepted node type spellings to their canonical handler
// type. The table is static; adding an alias is a code change.
var typeAliases = map[string]string{
	"input":    "trigger",
	"start":    "trigger",
	"if":       "condition",
	"branch":   "condition",
	"foreach":  "loop",
	"iterate":  "loop",
	"http":     "httpRequest",
	"api":      "httpRequest",
	"request":  "httpRequest",
	"script":   "code",
	"js":       "code",
	"cron":     "scheduleTrigger",
	"schedule": "scheduleTrigger",
	"delay":    "wait",
	"sleep":    "wait",
}

// NormalizeType maps a declared node type to its canonical handler type.
// Unaliased types pass through unchanged; matching is case-insensitive on
// the alias key.
func NormalizeType(nodeType string) string {
	if canonical, ok := typeAliases[strings.ToLower(nodeType)]; ok {
		return canonical
	}

	return nodeType
}
