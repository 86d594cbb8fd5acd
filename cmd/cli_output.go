package cmd

import (
	"fmt"
	"io"
	"os"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[1;31m"
	colorWhite = "\033[0;37m"
)

// stderr is where command diagnostics go; results are written to stdout or
// the output file.
var stderr io.Writer = os.Stderr

func fatal(err error) {
	fmt.Fprintf(stderr, "%serror: %s%s\n", colorRed, err.Error(), colorReset)
	os.Exit(1)
}

func infof(msg string, format ...interface{}) {
	fmt.Fprintf(stderr, "%s%s%s\n", colorWhite, fmt.Sprintf(msg, format...), colorReset)
}
