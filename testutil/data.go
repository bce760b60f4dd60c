package testutil

import (
	"strings"
	"testing"
	"time"
)

// Records is a short, well formed wire stream.
const Records = "1000,0.1\n2000,0.2\n3000,0.3\n"

// SplitRecords delivers Records in chunks that cut through lines.
var SplitRecords = []string{"1000,0.", "1\n2000", ",0.2\n3000,0.3", "\n"}

// MalformedRecords are lines that must be rejected.
var MalformedRecords = []string{
	"1000",
	"1000,0.1,5",
	"abc,0.1",
	"1000,xyz",
	",",
	"1000;0.1",
}

// BlankLines carry no record and are skipped by the assembler.
var BlankLines = []string{"", "\r", "   ", " \t\r"}

// SteelParams are yield, ultimate, modulus (GPa), fracture strain and stress
// of a mild steel.
var SteelParams = struct {
	Yield, Ultimate, ModulusGPa, FractureStrain, FractureStress float64
}{250, 400, 200, 0.2, 250}

// JoinRecords renders pairs as wire text.
func JoinRecords(lines ...string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Eventually polls cond every 5ms until it holds or timeout expires.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
