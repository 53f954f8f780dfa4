package mi

import "testing"

func TestCommandBuilder(t *testing.T) {
	for _, tc := range []struct {
		cmd  *Command
		want string
	}{
		{NewCommand("exec-run"), `-exec-run`},
		{NewCommand("exec-continue").Token(7), `7-exec-continue`},
		{NewCommand("break-insert").Token(3).Arg("main.c:12"), `3-break-insert main.c:12`},
		{
			NewCommand("break-insert").Token(4).Option("f", "").Option("c", "x > 3").Arg("compute"),
			`4-break-insert -f -c "x > 3" compute`,
		},
		{
			NewCommand("data-evaluate-expression").Token(9).Arg(`argv[0]`),
			`9-data-evaluate-expression argv[0]`,
		},
		{
			NewCommand("file-exec-and-symbols").Token(1).Arg("/tmp/my program"),
			`1-file-exec-and-symbols "/tmp/my program"`,
		},
		{
			NewCommand("exec-arguments").Token(2).Arg("-v").Arg("--out=x"),
			`2-exec-arguments -- -v --out=x`,
		},
		{NewCommand("gdb-set").Arg("mi-async").Arg("on"), `-gdb-set mi-async on`},
	} {
		if got := tc.cmd.String(); got != tc.want {
			t.Errorf("builder = %q, want %q", got, tc.want)
		}
	}
}

func TestCommandBuilderEmptyArg(t *testing.T) {
	if got := NewCommand("interpreter-exec").Arg("console").Arg("").String(); got != `-interpreter-exec console ""` {
		t.Errorf("builder = %q", got)
	}
}
