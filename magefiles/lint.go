//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Lint mg.Namespace

// Runs go vet for both backends.
func (Lint) Vet() error {
	if err := goTool("vet", true, "./..."); err != nil {
		return err
	}
	return goTool("vet", false, "./...")
}
