// Package security validates proposed shell commands and file paths before
// the action runner lets them touch the sandbox. Command checks are
// deny-by-pattern with an informational prefix whitelist; path checks are
// strict reject-by-shape.
package security

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Level classifies how a command was judged.
type Level string

const (
	LevelSafe      Level = "safe"
	LevelCaution   Level = "caution"
	LevelDangerous Level = "dangerous"
)

// Verdict is the outcome of checking one command string.
type Verdict struct {
	Level   Level  `json:"level"`
	Allowed bool   `json:"allowed"`
	Message string `json:"message"`
}

// blockedPattern pairs a compiled denylist regexp with the message reported
// when it matches.
type blockedPattern struct {
	re      *regexp.Regexp
	message string
}

var blockedPatterns = []blockedPattern{
	{
		re:      regexp.MustCompile(`(?i)\brm\s+(-[a-z]*[rf][a-z]*\s+)+(/|~|\$HOME)(\s|$)`),
		message: "recursive delete of a root or home directory",
	},
	{
		re:      regexp.MustCompile(`(?i)\brm\s+-[a-z]*[rf][a-z]*\s+\.\.(/|\s|$)`),
		message: "recursive delete outside the project root",
	},
	{
		re:      regexp.MustCompile(`(?i)\b(curl|wget)\b[^|;&]*\|\s*(sudo\s+)?(ba)?sh\b`),
		message: "piping a download into a shell interpreter",
	},
	{
		re:      regexp.MustCompile(`(?i)\b(curl|wget)\b[^|;&]*\|\s*(sudo\s+)?(python3?|node|perl|ruby)\b`),
		message: "piping a download into a script interpreter",
	},
	{
		re:      regexp.MustCompile(`(?i)(;|&&|\|\|)\s*rm\s+-[a-z]*[rf]`),
		message: "command chaining with a destructive delete",
	},
	{
		re:      regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\}\s*;?\s*:`),
		message: "fork bomb",
	},
	{
		re:      regexp.MustCompile(`(?i)\b(mkfs|dd)\b.*/dev/(sd|hd|nvme|disk)`),
		message: "raw write to a block device",
	},
	{
		re:      regexp.MustCompile(`(?i)>\s*/dev/(sd|hd|nvme|disk)`),
		message: "redirect onto a block device",
	},
	{
		re:      regexp.MustCompile(`(?i)\bchmod\s+(-[a-z]+\s+)*777\s+/(\s|$)`),
		message: "permission change on the filesystem root",
	},
	{
		re:      regexp.MustCompile(`(?i)\bsudo\b`),
		message: "privilege escalation is not available in the sandbox",
	},
	{
		re:      regexp.MustCompile(`(?i)\b(shutdown|reboot|halt|poweroff)\b`),
		message: "host power management",
	},
	{
		re:      regexp.MustCompile(`(?i)\bgit\s+push\b.*(--force\b.*\b(main|master)\b|\b(main|master)\b.*--force\b)`),
		message: "force push to a protected branch",
	},
}

// approvalPatterns flag commands that are not blocked outright but should
// surface for explicit approval before execution.
var approvalPatterns = []blockedPattern{
	{
		re:      regexp.MustCompile(`(?i)\brm\s+-[a-z]*[rf]`),
		message: "recursive delete inside the workspace",
	},
	{
		re:      regexp.MustCompile(`(?i)\bgit\s+(reset\s+--hard|clean\s+-[a-z]*f)`),
		message: "destructive version control operation",
	},
	{
		re:      regexp.MustCompile(`(?i)\bnpm\s+publish\b|\bgit\s+push\b`),
		message: "publishes outside the sandbox",
	},
	{
		re:      regexp.MustCompile(`(?i)\bkill(all)?\s`),
		message: "terminates processes by hand",
	},
}

// knownPrefixes is the informational whitelist. Unrecognized prefixes are
// logged, never blocked.
var knownPrefixes = []string{
	"npm", "npx", "pnpm", "yarn", "node",
	"python", "python3", "pip", "pip3",
	"go", "cargo", "make",
	"git", "ls", "cat", "head", "tail", "grep", "find", "wc",
	"mkdir", "cp", "mv", "touch", "rm", "pwd", "echo", "cd",
	"curl", "wget", "tar", "unzip", "sed", "awk", "sort", "which", "env",
}

// CheckCommand classifies a command string. A denylist match yields a
// dangerous, disallowed verdict; an approval match yields caution; anything
// else is safe. Unrecognized leading words are logged as informational only.
func CheckCommand(cmd string) Verdict {
	trimmed := strings.TrimSpace(cmd)
	if trimmed == "" {
		return Verdict{Level: LevelSafe, Allowed: true, Message: "empty command"}
	}

	for _, p := range blockedPatterns {
		if p.re.MatchString(trimmed) {
			return Verdict{Level: LevelDangerous, Allowed: false, Message: p.message}
		}
	}

	for _, p := range approvalPatterns {
		if p.re.MatchString(trimmed) {
			return Verdict{Level: LevelCaution, Allowed: true, Message: p.message}
		}
	}

	if prefix := firstWord(trimmed); !isKnownPrefix(prefix) {
		slog.Info("unrecognized command prefix", "prefix", prefix)
	}

	return Verdict{Level: LevelSafe, Allowed: true, Message: ""}
}

// IsBlocked reports whether the command matches the denylist.
func IsBlocked(cmd string) bool {
	return !CheckCommand(cmd).Allowed
}

// RequiresApproval reports whether the command is allowed but flagged for
// explicit approval.
func RequiresApproval(cmd string) bool {
	v := CheckCommand(cmd)
	return v.Allowed && v.Level == LevelCaution
}

// BlockedError builds the fatal validation error for a denied command.
func BlockedError(cmd string, v Verdict) error {
	return fmt.Errorf("command blocked by security policy: %s (command: %s)", v.Message, truncateCmd(cmd, 120))
}

func firstWord(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func isKnownPrefix(word string) bool {
	for _, p := range knownPrefixes {
		if word == p {
			return true
		}
	}
	return false
}

func truncateCmd(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
