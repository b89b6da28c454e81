package scpi

import (
	"strconv"
	"strings"
)

// Kind classifies a parsed command.
type Kind uint8

const (
	KindUnknown Kind = iota // Unrecognized input
	KindCommon              // Starred common command (*RST)
	KindQuery               // Query form, expects a reply (VOLT?)
	KindSet                 // Set form with a numeric argument (VOLT 3.3)
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindCommon:
		return "COMMON"
	case KindQuery:
		return "QUERY"
	case KindSet:
		return "SET"
	default:
		return "UNKNOWN"
	}
}

// Command is one parsed command message.
type Command struct {
	// Kind of command (common, query, set)
	Kind Kind

	// Head is the uppercased mnemonic without query suffix or
	// argument (e.g. "*IDN", "VOLT", "SYST:ERR")
	Head string

	// Arg is the numeric argument of a set command
	Arg float64

	// Raw is the trimmed original text, for error reporting
	Raw string
}

// Parse classifies one command line. Mnemonics are matched without
// regard to case and surrounding whitespace is ignored.
func Parse(line string) Command {
	raw := strings.TrimSpace(line)
	cmd := Command{Kind: KindUnknown, Raw: raw}
	if raw == "" {
		return cmd
	}

	text := strings.ToUpper(raw)

	if strings.HasPrefix(text, "*") {
		if strings.HasSuffix(text, "?") {
			cmd.Kind = KindQuery
			cmd.Head = text[:len(text)-1]
		} else {
			cmd.Kind = KindCommon
			cmd.Head = text
		}
		return cmd
	}

	if strings.HasSuffix(text, "?") {
		cmd.Kind = KindQuery
		cmd.Head = strings.TrimSpace(text[:len(text)-1])
		return cmd
	}

	// Set form: mnemonic followed by a numeric argument.
	if i := strings.IndexAny(text, " \t"); i > 0 {
		head := text[:i]
		arg := strings.TrimSpace(text[i+1:])
		if v, err := strconv.ParseFloat(arg, 64); err == nil {
			cmd.Kind = KindSet
			cmd.Head = head
			cmd.Arg = v
			return cmd
		}
	}

	return cmd
}
