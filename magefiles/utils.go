//go:build mage

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/magefile/mage/sh"
)

// headless builds leave out the cgo vulkan backend
const headlessTag = "headless"

// run executes a tool with its output on the terminal.
func run(name string, args ...string) error {
	fmt.Printf("Executing: %s %s\n", name, strings.Join(args, " "))
	if _, err := sh.Exec(nil, os.Stdout, os.Stderr, name, args...); err != nil {
		return fmt.Errorf("error executing %s: %w", name, err)
	}
	return nil
}

// goTool runs a go subcommand, tagged headless when asked.
func goTool(subcommand string, headless bool, args ...string) error {
	full := []string{subcommand}
	if headless {
		full = append(full, "-tags", headlessTag)
	}
	return run("go", append(full, args...)...)
}
