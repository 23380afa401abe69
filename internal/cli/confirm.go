package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Plan is what the run is about to do, shown to the operator before
// anything is dispatched.
type Plan struct {
	Package string
	Mode    string
	Region  string
	File    string
}

// Confirm prints the plan and asks the operator to type "yes" before
// any uninstall command is sent. It returns true only on an explicit
// "yes"; read errors and anything else decline.
func Confirm(w io.Writer, r io.Reader, p Plan) bool {
	fmt.Fprintf(w, "About to dispatch uninstall commands for package %q (mode %s, region %s)\n", p.Package, p.Mode, p.Region)
	fmt.Fprintf(w, "to every valid instance ID listed in %s.\n", p.File)
	fmt.Fprint(w, "Proceed? (yes/no): ")

	input, err := bufio.NewReader(r).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(strings.ToLower(input)) == "yes"
}
