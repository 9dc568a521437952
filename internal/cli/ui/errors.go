package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/conduit-lang/persist/internal/orm/schema"
)

// ErrorLevel represents the severity of a message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Details      []string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError creates a message with optional details, suggestions and
// help commands.
//
// Example output:
//
//	❌ TYPE NOT FOUND: no metadata for type "app.Employe"
//
//	   Did you mean: app.Employee?
//
//	   → List types: persist resolve
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	var headerColor, bodyColor *color.Color
	var symbol string
	switch opts.Level {
	case ErrorLevelWarning:
		headerColor = color.New(color.FgYellow, color.Bold)
		bodyColor = color.New(color.FgYellow)
		symbol = "⚠️"
	case ErrorLevelInfo:
		headerColor = color.New(color.FgCyan, color.Bold)
		bodyColor = color.New(color.FgCyan)
		symbol = "ℹ️"
	default:
		headerColor = color.New(color.FgRed, color.Bold)
		bodyColor = color.New(color.FgRed)
		symbol = "❌"
	}
	p := NewPalette(opts.NoColor)
	if opts.NoColor {
		headerColor.DisableColor()
		bodyColor.DisableColor()
	}

	if opts.Context != "" {
		headerColor.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		headerColor.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if len(opts.Details) > 0 {
		b.WriteString("\n")
		for _, d := range opts.Details {
			for i, line := range strings.Split(d, "\n") {
				if i == 0 {
					bodyColor.Fprintf(&b, "   - %s\n", line)
				} else {
					bodyColor.Fprintf(&b, "     %s\n", strings.TrimSpace(line))
				}
			}
		}
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		p.Warn.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		for _, cmd := range opts.HelpCommands {
			p.Key.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteError writes a formatted message to w
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// RepositoryError builds the options that describe err, a failure returned
// by the metadata repository or a component feeding it
func RepositoryError(err error, noColor bool) ErrorOptions {
	opts := ErrorOptions{Level: ErrorLevelError, Problem: err.Error(), NoColor: noColor}

	var nf *schema.NotFoundError
	var unsupported *schema.UnsupportedError
	switch {
	case errors.As(err, &nf):
		opts.Context = nf.Kind + " not found"
		opts.Problem = fmt.Sprintf("no metadata for %s %q", nf.Kind, nf.Name)
		opts.Suggestions = nf.Candidates
		opts.HelpCommands = []string{
			"List types: persist resolve",
			"Check definitions: persist resolve --help",
		}
	case errors.Is(err, schema.ErrValidation):
		causes := schema.Errors(err)
		opts.Context = "validation failed"
		opts.Problem = fmt.Sprintf("%d metadata error(s)", len(causes))
		for _, cause := range causes {
			opts.Details = append(opts.Details, cause.Error())
		}
		opts.HelpCommands = []string{"Relax validation: persist resolve --validate none"}
	case errors.As(err, &unsupported):
		opts.Context = "unsupported"
	case errors.Is(err, schema.ErrClosed):
		opts.Context = "repository closed"
	case errors.Is(err, schema.ErrInternal):
		opts.Context = "internal error"
	default:
		if causes := schema.Errors(err); len(causes) > 1 {
			opts.Problem = fmt.Sprintf("%d errors", len(causes))
			for _, cause := range causes {
				opts.Details = append(opts.Details, cause.Error())
			}
		}
	}
	return opts
}

// ConfigError creates a configuration error message
func ConfigError(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelError,
		Context: "configuration error",
		Problem: message,
		HelpCommands: []string{
			"View config: cat persist.yml",
			"Get help: persist --help",
		},
		NoColor: noColor,
	})
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	return NewPalette(noColor).Good.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to w
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// Warning creates a warning message
func Warning(message string, noColor bool) string {
	return FormatError(ErrorOptions{Level: ErrorLevelWarning, Problem: message, NoColor: noColor})
}
