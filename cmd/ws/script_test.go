package main

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// TestScripts runs the testdata/*.txt scenarios. Each script gets its own
// work directory; "ws" runs in-process against it.
func TestScripts(t *testing.T) {
	engine := script.NewEngine()
	engine.Cmds["ws"] = wsScriptCmd()
	env := []string{"PATH=" + os.Getenv("PATH")}
	scripttest.Test(t, t.Context(), engine, env, "testdata/*.txt")
}

func wsScriptCmd() script.Cmd {
	return script.Command(
		script.CmdUsage{
			Summary: "run ws in the script's work directory",
			Args:    "args...",
		},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			env := map[string]string{
				"WS_DIR":          "",
				"XDG_CONFIG_HOME": s.Path(".config"),
			}
			for _, kv := range s.Environ() {
				if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "WS_") {
					env[k] = v
				}
			}
			res := execWS(s.Context(), s.Getwd(), env, args...)
			return func(*script.State) (string, string, error) {
				var err error
				if res.code != exitOK {
					err = fmt.Errorf("exit status %d", res.code)
				}
				return res.stdout, res.stderr, err
			}, nil
		},
	)
}
