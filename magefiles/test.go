//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package test.
func (Test) All() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}

// Runs the tests that only need the software device.
func (Test) Software() error {
	_, err := executeCmd("go", withArgs("test", "./engine/renderer/...", "./engine/assets/..."), withStream())
	return err
}
