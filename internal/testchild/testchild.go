// Package testchild turns a test binary into a small set of well-known child
// programs, so process tests do not depend on what the host has installed.
//
// A package opts in from TestMain:
//
//	func TestMain(m *testing.M) {
//		if testchild.Active() {
//			testchild.Main()
//		}
//		os.Exit(m.Run())
//	}
package testchild

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Marker is the first argument that selects child mode.
const Marker = "-prism-testchild"

// Active reports whether the current process was started by Command.
func Active() bool {
	return len(os.Args) > 2 && os.Args[1] == Marker
}

// Command returns argv that re-executes the current binary in mode.
func Command(mode string, args ...string) []string {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	return append([]string{exe, Marker, mode}, args...)
}

// Main runs the selected child mode and exits.
func Main() {
	os.Exit(run(os.Args[2], os.Args[3:]))
}

func run(mode string, args []string) int {
	switch mode {
	case "echo":
		// echo writes its arguments like /bin/echo; USE_STDERR=1 sends them to stderr
		out := io.Writer(os.Stdout)
		if os.Getenv("USE_STDERR") == "1" {
			out = os.Stderr
		}
		fmt.Fprintln(out, strings.Join(args, " "))
		return 0

	case "cat":
		out := io.Writer(os.Stdout)
		if len(args) > 0 && args[0] == "--stderr" {
			out = os.Stderr
		}
		if _, err := io.Copy(out, os.Stdin); err != nil {
			fmt.Fprintln(os.Stderr, "cat:", err)
			return 1
		}
		return 0

	case "interleave":
		n := 3
		if len(args) > 0 {
			n, _ = strconv.Atoi(args[0])
		}
		for i := 0; i < n; i++ {
			fmt.Fprintf(os.Stdout, "out %d\n", i)
			fmt.Fprintf(os.Stderr, "err %d\n", i)
		}
		return 0

	case "sleep":
		d := time.Minute
		if len(args) > 0 {
			if parsed, err := time.ParseDuration(args[0]); err == nil {
				d = parsed
			}
		}
		time.Sleep(d)
		return 0

	case "stall":
		// stall prints its arguments, then hangs until killed
		fmt.Println(strings.Join(args, " "))
		time.Sleep(time.Hour)
		return 0

	case "stubborn":
		signal.Ignore(syscall.SIGTERM, syscall.SIGINT)
		fmt.Println("ready")
		time.Sleep(time.Hour)
		return 0

	case "exit":
		code := 0
		if len(args) > 0 {
			code, _ = strconv.Atoi(args[0])
		}
		return code

	case "printenv":
		if len(args) == 0 {
			for _, kv := range os.Environ() {
				fmt.Println(kv)
			}
			return 0
		}
		v, ok := os.LookupEnv(args[0])
		if !ok {
			return 1
		}
		fmt.Println(v)
		return 0

	case "pwd":
		dir, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "pwd:", err)
			return 1
		}
		fmt.Println(dir)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "testchild: unknown mode %q\n", mode)
		return 2
	}
}
