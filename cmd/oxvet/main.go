// Package main implements the oxvet CLI tool.
//
// oxvet statically checks thread-boundary crossings that the oxide runtime
// cannot see. The runtime asserts capabilities wherever a value flows
// through an API (arc.New, Sender.Send, thread.SpawnValue), but a closure
// passed to thread.Spawn carries its captures invisibly. oxvet parses the
// module's source, finds every Spawn call site, and reports closures that
// capture values of thread-bound types such as rc.Rc.
//
// Usage:
//
//	oxvet check ./...        # vet the module containing the current directory
//	oxvet check path/to/mod  # vet another module
//
// The check is heuristic: it works from declared types and constructor
// calls in the source, without whole-program type inference. It can miss a
// capture laundered through an interface, but it never flags correct code
// for using arc instead of rc.
package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "check":
		checkCommand(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("oxvet version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`oxvet - static thread-boundary checker for oxide

USAGE:
    oxvet <command> [arguments]

COMMANDS:
    check      Check a module for thread-boundary violations
    version    Show version information
    help       Show this help message

EXAMPLES:
    # Check the module containing the current directory
    oxvet check

    # Check another module, flagging an additional thread-bound package
    oxvet check -pkg mylocal ./services/worker

ABOUT:
    oxide enforces its Transferable/Shareable capabilities at runtime
    wherever a value crosses a goroutine boundary through an API. The one
    boundary invisible to the runtime is closure capture: a function
    literal handed to thread.Spawn can smuggle a thread-bound value (an
    rc.Rc handle) onto another goroutine without any call the runtime
    could intercept. oxvet closes that gap by scanning the AST of every
    file in the module and reporting such captures with their positions.

`)
}
