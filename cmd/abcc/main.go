// Command abcc is the compiler's command-line front end: it loads the
// nearest project configuration file, applies command-line overrides on
// top of it, then hands the resolved options to internal/driver.
package main

import (
	"fmt"
	"os"

	"codeberg.org/saruga/abcc/internal/driver"
	"codeberg.org/saruga/abcc/internal/projectconfig"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := driver.ParseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "abcc: %v\n", err)
		return 1
	}
	if opts.Help {
		driver.Run(opts)
		return 0
	}

	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "abcc: %v\n", err)
		return 1
	}
	cfg, _, err := projectconfig.Load(wd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "abcc: reading project configuration: %v\n", err)
		return 1
	}
	if cfg != nil {
		var cliOptimize *bool
		if opts.Optimize {
			t := true
			cliOptimize = &t
		}
		resolved := cfg.Merge(projectconfig.CLIOverrides{
			IncludeDirs: opts.IncludeDirs,
			Optimize:    cliOptimize,
		})
		opts.IncludeDirs = resolved.IncludeDirs
		opts.Optimize = resolved.Optimize
	}

	return driver.Run(opts)
}
