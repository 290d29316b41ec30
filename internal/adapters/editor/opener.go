package editor

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Opener implements ports.EditorOpener
type Opener struct {
	lookPath func(string) (string, error)
}

// NewOpener creates a new editor opener
func NewOpener() *Opener {
	return &Opener{lookPath: exec.LookPath}
}

// OpenFile opens a file in the user's preferred editor and waits for it to exit
func (o *Opener) OpenFile(path string) error {
	cmd, err := o.Command(path)
	if err != nil {
		return err
	}
	return cmd.Run()
}

// Command returns an exec.Cmd for opening a file in the editor.
// $EDITOR may carry arguments, e.g. "code --wait".
func (o *Opener) Command(path string) (*exec.Cmd, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cannot edit %s: %w", path, err)
	}

	argv := o.findEditor()
	if len(argv) == 0 {
		return nil, fmt.Errorf("no editor found: set $EDITOR environment variable")
	}

	cmd := exec.Command(argv[0], append(argv[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd, nil
}

func (o *Opener) findEditor() []string {
	for _, env := range []string{"EDITOR", "VISUAL"} {
		if fields := strings.Fields(os.Getenv(env)); len(fields) > 0 {
			return fields
		}
	}

	for _, name := range []string{"nvim", "vim", "vi", "nano"} {
		if path, err := o.lookPath(name); err == nil {
			return []string{path}
		}
	}
	return nil
}
