package output

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Writer is where status lines are printed.
var Writer io.Writer = os.Stderr

func PrintRight(text string) {
	// Get terminal width.
	width, _, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil {
		width = 80
	}

	// Set padding.
	padding := width - len(text)
	if padding < 0 {
		padding = 0
	}

	fmt.Fprintf(Writer, "\r%s%s", spaces(padding), text)
}

// IsTerminal reports whether Writer is an interactive terminal.
func IsTerminal() bool {
	f, ok := Writer.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func spaces(n int) string {
	return fmt.Sprintf("%*s", n, "")
}
