package main

import (
	"testing"

	"golang.org/x/tools/go/analysis/analysistest"
)

func TestNestedLockDiagnostics(t *testing.T) {
	old := spinlockType
	spinlockType = "a.Spinlock"
	defer func() { spinlockType = old }()

	analysistest.Run(t, analysistest.TestData(), Analyzer, "a")
}
