package classify

import (
	"strings"

	"github.com/ppiankov/governor/internal/pattern"
)

// ActionType is what an operation does to its resource.
type ActionType string

const (
	ActionRead    ActionType = "read"
	ActionWrite   ActionType = "write"
	ActionDelete  ActionType = "delete"
	ActionExecute ActionType = "execute"
)

// ScopeType is how much an operation touches.
type ScopeType string

const (
	ScopeSingle     ScopeType = "single"
	ScopeMultiple   ScopeType = "multiple"
	ScopeCollection ScopeType = "collection"
	ScopeSystem     ScopeType = "system"
)

var actionMultipliers = map[ActionType]float64{
	ActionRead:    0.5,
	ActionWrite:   1.5,
	ActionDelete:  2.5,
	ActionExecute: 3.0,
}

var scopeMultipliers = map[ScopeType]float64{
	ScopeSingle:     1.0,
	ScopeMultiple:   1.5,
	ScopeCollection: 2.0,
	ScopeSystem:     3.0,
}

var actionDescriptions = map[ActionType]string{
	ActionRead:    "Read-only operation that does not modify data",
	ActionWrite:   "Write operation that creates or modifies data",
	ActionDelete:  "Destructive operation that removes data",
	ActionExecute: "Execution of commands or processes",
}

var scopeDescriptions = map[ScopeType]string{
	ScopeSingle:     "Affects a single item",
	ScopeMultiple:   "Affects multiple items",
	ScopeCollection: "Affects an entire collection or batch",
	ScopeSystem:     "System-wide impact",
}

// Multiplier returns the risk multiplier for the action type.
func (a ActionType) Multiplier() float64 {
	if m, ok := actionMultipliers[a]; ok {
		return m
	}
	return 1.0
}

// Description returns a human-readable description of the action type.
func (a ActionType) Description() string {
	if d, ok := actionDescriptions[a]; ok {
		return d
	}
	return "Unknown action type"
}

// Multiplier returns the risk multiplier for the scope type.
func (s ScopeType) Multiplier() float64 {
	if m, ok := scopeMultipliers[s]; ok {
		return m
	}
	return 1.0
}

// Description returns a human-readable description of the scope type.
func (s ScopeType) Description() string {
	if d, ok := scopeDescriptions[s]; ok {
		return d
	}
	return "Unknown scope type"
}

var readKeywords = []string{
	"read", "get", "fetch", "retrieve", "view", "show", "display",
	"list", "find", "search", "query", "select", "look", "check",
	"inspect", "examine", "browse", "scan", "cat", "head", "tail",
	"grep", "ls", "dir", "print", "echo", "describe", "status",
}

var writeKeywords = []string{
	"write", "create", "add", "insert", "update", "modify", "change",
	"edit", "set", "put", "post", "patch", "save", "store", "upload",
	"append", "replace", "overwrite", "touch", "mkdir", "install",
	"configure", "enable", "init", "generate", "build", "compile",
}

var deleteKeywords = []string{
	"delete", "remove", "drop", "truncate", "clear", "purge", "clean",
	"uninstall", "destroy", "erase", "wipe", "rm", "rmdir", "del",
	"unlink", "reset", "revoke", "disable", "expire", "invalidate",
}

var executeKeywords = []string{
	"execute", "run", "start", "launch", "invoke", "call", "trigger",
	"deploy", "apply", "migrate", "push", "publish", "release", "ship",
	"sudo", "exec", "spawn", "fork", "eval", "script", "command",
	"restart", "reboot", "shutdown", "kill", "stop", "terminate",
}

var multipleKeywords = []string{
	"multiple", "several", "some", "few", "many", "these", "those",
	"batch", "group", "set", "list", "array",
}

var collectionKeywords = []string{
	"all", "every", "each", "entire", "whole", "complete", "full",
	"collection", "table", "directory", "folder", "repository",
	"database", "schema", "namespace", "bucket", "queue",
}

var systemKeywords = []string{
	"system", "global", "server", "cluster", "infrastructure",
	"environment", "production", "staging", "network", "service",
	"platform", "organization", "account", "root", "admin",
}

// Action classifies the action type of an operation and returns its risk
// multiplier. A read-only pattern match short-circuits the keyword scan;
// otherwise keyword sets are scanned in fixed severity order, and an
// operation matching nothing defaults to write as the conservative middle.
func Action(operation string) (ActionType, float64) {
	if pattern.MatchesAny(operation, pattern.ReadOnly) {
		return ActionRead, ActionRead.Multiplier()
	}

	lower := strings.ToLower(operation)

	if containsAny(lower, executeKeywords) {
		return ActionExecute, ActionExecute.Multiplier()
	}
	if containsAny(lower, deleteKeywords) {
		return ActionDelete, ActionDelete.Multiplier()
	}
	if containsAny(lower, writeKeywords) {
		return ActionWrite, ActionWrite.Multiplier()
	}
	if containsAny(lower, readKeywords) {
		return ActionRead, ActionRead.Multiplier()
	}

	return ActionWrite, ActionWrite.Multiplier()
}

// Scope classifies the blast radius of an operation and returns its risk
// multiplier. Keyword sets are scanned widest-first; the default is single.
func Scope(operation, context string) (ScopeType, float64) {
	combined := strings.ToLower(operation + " " + context)

	if containsAny(combined, systemKeywords) {
		return ScopeSystem, ScopeSystem.Multiplier()
	}
	if containsAny(combined, collectionKeywords) {
		return ScopeCollection, ScopeCollection.Multiplier()
	}
	if containsAny(combined, multipleKeywords) {
		return ScopeMultiple, ScopeMultiple.Multiplier()
	}

	return ScopeSingle, ScopeSingle.Multiplier()
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
