package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// crashDir receives crash reports; set by InstallCrashHandler
var crashDir = "./logs"

// maxStackDump caps the all-goroutine dump
const maxStackDump = 16 * 1024 * 1024

// InstallCrashHandler sets the crash report directory and makes sure it exists.
// Pair with a deferred RecoverWithCrashFile at the top of main.
func InstallCrashHandler(dir string) {
	if dir != "" {
		crashDir = dir
	}
	if err := os.MkdirAll(crashDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: failed to create crash directory: %v\n", err)
	}
}

// CrashReport renders the panic value, the panicking stack and all goroutines
func CrashReport(panicVal interface{}, stack string, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== DARTSERIES CRASH REPORT ===\n")
	fmt.Fprintf(&b, "Time: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "Version: %s\n\n", GetFullVersion())

	fmt.Fprintf(&b, "=== PANIC ===\n%v\n\n", panicVal)
	fmt.Fprintf(&b, "=== STACK ===\n%s\n\n", stack)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	fmt.Fprintf(&b, "=== RUNTIME ===\n")
	fmt.Fprintf(&b, "Goroutines: %d (SafeGo spawned: %d)\n", runtime.NumGoroutine(), GetGoroutineCount())
	fmt.Fprintf(&b, "GOOS/GOARCH: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "Alloc: %d MB, Sys: %d MB, NumGC: %d\n\n", mem.Alloc/1024/1024, mem.Sys/1024/1024, mem.NumGC)

	fmt.Fprintf(&b, "=== ALL GOROUTINES ===\n%s\n", allGoroutineStacks())
	return b.String()
}

// WriteCrashFile writes a crash report and returns its path, or "" when only stderr could be used.
func WriteCrashFile(panicVal interface{}, stack string) string {
	now := time.Now()
	report := CrashReport(panicVal, stack, now)
	path := filepath.Join(crashDir, fmt.Sprintf("crash-%s.log", now.Format("2006-01-02T15-04-05")))

	if err := os.WriteFile(path, []byte(report), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: failed to write crash file: %v\n%s", err, report)
		return ""
	}

	fmt.Fprintf(os.Stderr, "\n!!! FATAL CRASH - report saved to %s !!!\nPanic: %v\n", path, panicVal)
	return path
}

// RecoverWithCrashFile is deferred in main: it records a crash report and exits non-zero.
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		buf := make([]byte, 8192)
		n := runtime.Stack(buf, false)
		WriteCrashFile(r, string(buf[:n]))
		os.Exit(1)
	}
}

func allGoroutineStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) || len(buf) >= maxStackDump {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}
