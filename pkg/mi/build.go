package mi

import (
	"strconv"
	"strings"
)

// Command builds one outgoing MI command line. Calls chain:
//
//	mi.NewCommand("break-insert").Option("f", "").Arg("main.c:12").String()
//
// produces `-break-insert -f main.c:12`. The correlation layer assigns
// the token just before transmission.
type Command struct {
	name  string
	token int
	opts  []string
	args  []string
}

// NewCommand starts building the named MI operation. The name is given
// without the leading dash.
func NewCommand(name string) *Command {
	return &Command{name: name, token: NoToken}
}

// Token sets the command token used to correlate the result record.
func (c *Command) Token(n int) *Command {
	c.token = n
	return c
}

// Option appends a -name or -name value option.
func (c *Command) Option(name, value string) *Command {
	c.opts = append(c.opts, "-"+name)
	if value != "" {
		c.opts = append(c.opts, quoteArg(value))
	}
	return c
}

// Arg appends a positional argument, quoting it if needed.
func (c *Command) Arg(s string) *Command {
	c.args = append(c.args, quoteArg(s))
	return c
}

// String renders the one-line wire form, without trailing newline.
func (c *Command) String() string {
	var sb strings.Builder
	if c.token != NoToken {
		sb.WriteString(strconv.Itoa(c.token))
	}
	sb.WriteByte('-')
	sb.WriteString(c.name)
	for _, o := range c.opts {
		sb.WriteByte(' ')
		sb.WriteString(o)
	}
	if len(c.args) > 0 {
		// Separate parameters from options so arguments that begin
		// with a dash are not taken for options.
		needSep := false
		for _, a := range c.args {
			if strings.HasPrefix(a, "-") {
				needSep = true
				break
			}
		}
		if needSep {
			sb.WriteString(" --")
		}
		for _, a := range c.args {
			sb.WriteByte(' ')
			sb.WriteString(a)
		}
	}
	return sb.String()
}

// quoteArg wraps an argument in an MI C string when it contains
// characters that would break the one-line wire format.
func quoteArg(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\"\\\n") {
		return `"` + Escape(s) + `"`
	}
	return s
}
