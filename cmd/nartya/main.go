package main

import (
	"fmt"
	"os"

	"github.com/nartya-app/nartya/internal/cli"
	"github.com/nartya-app/nartya/internal/util"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, util.ErrorHandler(err))
		os.Exit(1)
	}
}
