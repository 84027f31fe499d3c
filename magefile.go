//go:build mage

package main

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	GotestsumUrl    = "gotest.tools/gotestsum"
	GolangciLintUrl = "github.com/golangci/golangci-lint/cmd/golangci-lint"
	AddLicenseUrl   = "github.com/google/addlicense"
)

var (
	goexec = mg.GoCmd()
	g0     = sh.RunCmd(goexec)
)

// Build builds the streamflowd binary
func Build() error {
	fmt.Println("Building streamflowd...")
	return g0("build", "-o", "bin/streamflowd", "./cmd/streamflowd")
}

func mustRun(cmd string, args ...string) {
	out := lipgloss.NewStyle().Bold(true).Render(
		fmt.Sprintf("\n> %s %s\n", cmd, strings.Join(args, " ")),
	)
	fmt.Println(out)
	if err := sh.RunV(cmd, args...); err != nil {
		panic(err)
	}
}

func installIfMissing(tool string, url string) {
	if _, err := exec.LookPath(tool); err != nil {
		fmt.Printf("%s not found, installing from %s\n", tool, url)
		mustRun(goexec, "install", url)
	}
}

func checkTools() error {
	installIfMissing("gotestsum", GotestsumUrl)
	installIfMissing("golangci-lint", GolangciLintUrl)
	installIfMissing("addlicense", AddLicenseUrl)
	return nil
}

// Lint runs the linter
func Lint() error {
	mg.Deps(checkTools)
	fmt.Println("Running golangci-lint linter...")
	return sh.RunV("golangci-lint", "run")
}

// Test runs the unit tests with the race detector
func Test() error {
	mg.Deps(checkTools)
	fmt.Println("Running unit tests...")
	return sh.RunV("gotestsum", "-f", "standard-verbose", "--", "-race", "-failfast", "-count", "1", "-timeout", "10m", "./...")
}

// LicenseCheck fixes any missing license header in the source code
func LicenseCheck() error {
	mg.Deps(checkTools)
	fmt.Println("Running license check...")
	return sh.RunV("addlicense", "-c", "The Tektite Authors", "-ignore", "**/*.yml", "-ignore", "**/*.hcl", ".")
}

// Presubmit is intended to be run by contributors before pushing the code and creating a PR.
// It depends on LicenseCheck, Build and Lint, then runs the tests
func Presubmit() error {
	mg.Deps(LicenseCheck, Build, Lint)
	return Test()
}

// Run runs streamflowd with the demo flow and an interactive shell
func Run() error {
	fmt.Println("Running streamflowd with the demo flow...")
	return g0("run", "./cmd/streamflowd", "--shell", "--metrics-enabled")
}
