//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the headless testbed with testbed.toml.
func (Run) Testbed() error {
	mg.Deps(Build.Headless)
	fmt.Println("Run testbed...")
	return run("bin/testbed-headless", "-config", "testbed.toml")
}
