package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/MEKXH/gatekeeper/internal/audit"
	"github.com/MEKXH/gatekeeper/internal/policy"
)

const (
	argPath    = "path"
	argContent = "content"
	argCommand = "command"
)

func isPathTool(tool string) bool {
	switch tool {
	case policy.ToolReadFile, policy.ToolWriteFile, policy.ToolDeleteFile:
		return true
	}
	return false
}

func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// displayPath is the sandbox-relative form shown to humans.
func displayPath(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "sandbox/?"
	}
	return "sandbox/" + filepath.ToSlash(filepath.Clean(raw))
}

// describeEffect renders what approving the invocation would do.
func describeEffect(tool string, args map[string]any) string {
	switch tool {
	case policy.ToolReadFile:
		return "Read file " + displayPath(argString(args, argPath))
	case policy.ToolWriteFile:
		return fmt.Sprintf("Write %d bytes to %s", len(argString(args, argContent)), displayPath(argString(args, argPath)))
	case policy.ToolDeleteFile:
		return "PERMANENTLY delete " + displayPath(argString(args, argPath))
	case policy.ToolRunShell:
		return "Execute shell: " + audit.Truncate(argString(args, argCommand))
	default:
		return "Unknown"
	}
}

// summarizeArgs is the audit form of args. Writes also record content_length
// so the size survives truncation.
func summarizeArgs(tool string, args map[string]any) string {
	if tool != policy.ToolWriteFile {
		return audit.SummarizeArgs(args)
	}
	withLength := make(map[string]any, len(args)+1)
	for k, v := range args {
		withLength[k] = v
	}
	withLength["content_length"] = len(argString(args, argContent))
	return audit.SummarizeArgs(withLength)
}
