// Package classify maps free-text operation descriptions onto the three
// risk axes: resource category, action category, and scope category.
package classify

import (
	"strings"

	"github.com/ppiankov/governor/internal/pattern"
)

// ResourceType is the kind of resource an operation touches.
type ResourceType string

const (
	ResourceMemory        ResourceType = "memory"
	ResourceLocalFile     ResourceType = "local_file"
	ResourceExternalAPI   ResourceType = "external_api"
	ResourceSensitiveFile ResourceType = "sensitive_file"
	ResourceDatabase      ResourceType = "database"
	ResourceSystemCommand ResourceType = "system_command"
)

// resourceScores holds the base risk score per resource type.
var resourceScores = map[ResourceType]float64{
	ResourceMemory:        0,
	ResourceLocalFile:     1,
	ResourceExternalAPI:   2,
	ResourceSensitiveFile: 3,
	ResourceDatabase:      4,
	ResourceSystemCommand: 5,
}

var resourceDescriptions = map[ResourceType]string{
	ResourceMemory:        "In-memory operation with no persistent side effects",
	ResourceLocalFile:     "Local file system access",
	ResourceExternalAPI:   "External API or network operation",
	ResourceSensitiveFile: "Sensitive file containing credentials or secrets",
	ResourceDatabase:      "Database operation",
	ResourceSystemCommand: "System-level command execution",
}

// BaseScore returns the base risk score for the resource type.
func (r ResourceType) BaseScore() float64 {
	return resourceScores[r]
}

// Description returns a human-readable description of the resource type.
func (r ResourceType) Description() string {
	if d, ok := resourceDescriptions[r]; ok {
		return d
	}
	return "Unknown resource type"
}

// resourceRules are evaluated in strict descending risk order; first match
// wins. A string that looks like both a file path and a database statement
// must classify as database, not file.
var resourceRules = []struct {
	match func(string) bool
	typ   ResourceType
}{
	{func(s string) bool { return pattern.MatchesAny(s, pattern.SystemCommand) }, ResourceSystemCommand},
	{func(s string) bool { return pattern.MatchesAny(s, pattern.Database) }, ResourceDatabase},
	{func(s string) bool { return pattern.MatchesAny(s, pattern.SensitiveFile) }, ResourceSensitiveFile},
	{func(s string) bool { return pattern.MatchesAny(s, pattern.API) }, ResourceExternalAPI},
	{isFileOperation, ResourceLocalFile},
}

// Resource classifies the combined operation+context text and returns the
// resource type along with its base risk score.
func Resource(operation, context string) (ResourceType, float64) {
	combined := strings.TrimSpace(operation + " " + context)

	for _, r := range resourceRules {
		if r.match(combined) {
			return r.typ, r.typ.BaseScore()
		}
	}
	return ResourceMemory, ResourceMemory.BaseScore()
}

// fileIndicators are substrings suggesting generic file system access.
var fileIndicators = []string{
	// File extensions
	".txt", ".json", ".yaml", ".yml", ".xml", ".csv",
	".py", ".js", ".ts", ".java", ".go", ".rs", ".rb",
	".md", ".html", ".css", ".sh", ".bash",

	// Path indicators
	"/", "\\", "path", "file", "directory", "folder",

	// File operations
	"read", "write", "save", "load", "open", "create",
	"delete", "remove", "copy", "move", "rename",
}

func isFileOperation(text string) bool {
	lower := strings.ToLower(text)
	for _, ind := range fileIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}
