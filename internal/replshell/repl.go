// Package replshell implements wisp's interactive Read-Eval-Print
// Loop: a readline-backed shell that feeds one line at a time to a
// persistent vm.Runtime, so globals declared on one line remain
// visible on the next.
package replshell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/chzyer/readline"

	"github.com/kristofer/wisp/pkg/vm"
)

const prompt = "wisp> "

var help = heredoc.Doc(`
	wisp REPL

	Enter one statement per line; ';' terminates a statement the
	same as it does in a file. Variables declared with 'let' persist
	across lines. Ctrl-D or :quit exits.
`)

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wisp_history"
	}
	return filepath.Join(home, ".wisp_history")
}

// Run starts the REPL, reading from stdin and writing results to
// stdout/stderr until the user exits or input is exhausted.
func Run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyPath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	rt := vm.New()

	fmt.Println("wisp REPL - type :help for help, :quit to exit")
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case ":quit", ":exit":
			return nil
		case ":help":
			fmt.Print(help)
			continue
		}

		// vm.Interpret already writes the "[compile error]"/"[runtime
		// error]" diagnostic to rt.Stderr; the REPL just needs to keep
		// going either way.
		_ = vm.Interpret(line, rt)
	}
}
