package engine

import (
	"fmt"
	"regexp"
)

// restrictedCmdlets are cmdlets known to be destructive or to enable
// arbitrary code execution. Matched whole-word, case-insensitive.
var restrictedCmdlets = []string{
	"Remove-Item", "Remove-Computer", "Remove-ADUser",
	"Format-Volume", "Clear-Disk", "Initialize-Disk",
	"Remove-VM", "Remove-VMHost", "Remove-Datacenter",
	"Invoke-Expression", "Invoke-Command",
	"Start-Process", "New-Service", "Stop-Service",
	"Disable-WindowsOptionalFeature", "Uninstall-WindowsFeature",
	"Set-ExecutionPolicy", "Remove-Module",
}

// dangerousPatterns capture known dangerous idioms: recursive force-deletes,
// overwrite redirection, piping downloaded payloads into dynamic evaluation,
// and shorthand dynamic-evaluation invocations.
var dangerousPatterns = []string{
	`rm\s+-rf`,
	`del\s+/[fs]`,
	`\|\s*Out-File\s+.*>`,
	`Invoke-WebRequest.*\|.*Invoke-Expression`,
	`iex\s*\(`,
	`&\s*\(`,
}

// ValidationResult is the outcome of a deny-list check. Immutable once
// produced.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

type cmdletRule struct {
	name string
	re   *regexp.Regexp
}

type patternRule struct {
	pattern string
	re      *regexp.Regexp
}

// Validator screens raw script text against the deny-lists. The check is
// lexical only; it does not parse or execute the script, so obfuscated or
// semantically-equivalent alternate commands pass through undetected. That
// limitation is intentional and documented in the package comment.
type Validator struct {
	cmdlets  []cmdletRule
	patterns []patternRule
}

// NewValidator compiles the deny-list rules once.
func NewValidator() *Validator {
	v := &Validator{
		cmdlets:  make([]cmdletRule, 0, len(restrictedCmdlets)),
		patterns: make([]patternRule, 0, len(dangerousPatterns)),
	}
	for _, name := range restrictedCmdlets {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
		v.cmdlets = append(v.cmdlets, cmdletRule{name: name, re: re})
	}
	for _, pattern := range dangerousPatterns {
		re := regexp.MustCompile(`(?i)` + pattern)
		v.patterns = append(v.patterns, patternRule{pattern: pattern, re: re})
	}
	return v
}

// Check scans scriptText for deny-listed cmdlets and dangerous patterns.
// When restrictionsEnabled is false the check passes unconditionally; that
// is the privileged-caller bypass path, and honoring the flag is the full
// extent of the engine's obligation — deciding who gets it belongs to the
// caller.
func (v *Validator) Check(scriptText string, restrictionsEnabled bool) ValidationResult {
	if !restrictionsEnabled {
		return ValidationResult{Valid: true}
	}

	var issues []string
	for _, rule := range v.cmdlets {
		if rule.re.MatchString(scriptText) {
			issues = append(issues, fmt.Sprintf("Restricted cmdlet detected: %s", rule.name))
		}
	}
	for _, rule := range v.patterns {
		if rule.re.MatchString(scriptText) {
			issues = append(issues, fmt.Sprintf("Dangerous pattern detected: %s", rule.pattern))
		}
	}

	return ValidationResult{Valid: len(issues) == 0, Issues: issues}
}
