//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Builds the testbed without the vulkan backend.
func (Build) Headless() error {
	return goTool("build", true, "-o", "bin/testbed-headless", ".")
}

// Builds the testbed with the vulkan backend. Needs cgo and the vulkan headers.
func (Build) Vulkan() error {
	return goTool("build", false, "-o", "bin/testbed", ".")
}
