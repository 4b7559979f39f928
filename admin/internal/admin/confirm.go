package admin

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompt carries the terminal streams and flags shared by destructive commands.
type Prompt struct {
	In          io.Reader
	Out         io.Writer
	DryRun      bool
	SkipConfirm bool
}

// confirm asks the operator to type "yes". It returns false without error when they decline.
func (p Prompt) confirm() (bool, error) {
	if p.SkipConfirm {
		return true, nil
	}
	fmt.Fprintf(p.Out, "\nThis is a DESTRUCTIVE operation that cannot be undone!\n")
	fmt.Fprintf(p.Out, "Type 'yes' to confirm: ")

	response, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	if strings.TrimSpace(strings.ToLower(response)) != "yes" {
		fmt.Fprintf(p.Out, "\nConfirmation failed. Operation cancelled.\n")
		return false, nil
	}
	fmt.Fprintln(p.Out)
	return true, nil
}
