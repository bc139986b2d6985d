// Package engine provides secure PowerShell script execution.
//
// The engine takes untrusted script text plus a typed parameter map,
// screens the text against a deny-list of destructive cmdlets and dangerous
// patterns, injects parameters as script-local variable assignments (never
// as text spliced into command arguments), runs the script through a
// PowerShell interpreter subprocess with live output streaming, and enforces
// a hard wall-clock timeout with forced termination.
//
// Validation is purely lexical. The deny-list catches the known destructive
// cmdlets and idioms verbatim; it cannot catch obfuscated invocations,
// aliases it does not list, or multi-step equivalents. Callers that need
// stronger guarantees must layer OS-level isolation on top — the engine
// deliberately does not attempt semantic analysis, containers, or resource
// limits.
//
// Every execution produces exactly one Result. Execute never panics and
// never returns a raw error for runtime faults: spawn failures, interpreter
// crashes, and timeouts are all folded into the Result with the sentinel
// exit codes ExitInternalError (-1) and ExitTimeout (-2).
package engine
