package ladder

import "fmt"

// LadderRuntimeError marks a programmatic misuse of the engine's lifecycle
// API (e.g. loading while running). Bad operands encountered during a scan
// never produce this — they raise the SM diagnostic bit and the scan
// continues, per the engine's no-panic contract.
type LadderRuntimeError struct {
	Detail string
}

func (e *LadderRuntimeError) Error() string {
	return fmt.Sprintf("ladder: runtime error: %s", e.Detail)
}

// LadderParseError aggregates every line-indexed failure found while
// parsing a text program. Defined here (not in ladtext) so both the parser
// and the engine can be referenced through one error taxonomy.
type LadderParseError struct {
	Errors []LineError
}

// LineError is one malformed line: its 1-based line number, the offending
// token, and a human-readable reason.
type LineError struct {
	Line   int
	Token  string
	Reason string
}

func (e *LadderParseError) Error() string {
	if len(e.Errors) == 1 {
		le := e.Errors[0]
		return fmt.Sprintf("ladder: parse error at line %d (%q): %s", le.Line, le.Token, le.Reason)
	}
	return fmt.Sprintf("ladder: %d parse errors, first at line %d (%q): %s",
		len(e.Errors), e.Errors[0].Line, e.Errors[0].Token, e.Errors[0].Reason)
}
