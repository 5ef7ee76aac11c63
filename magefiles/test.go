//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every test with the race detector on the software backend.
func (Test) All() error {
	return goTool("test", true, "-race", "./...")
}

// Runs the resource loader tests only.
func (Test) Loader() error {
	return goTool("test", true, "-race", "-count=1", "./engine/renderer/loader/...")
}
