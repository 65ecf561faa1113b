package main

import (
	"flag"
	"fmt"
	"os"

	pkgversion "github.com/dkhalov/tlswire/pkg/version"
)

// Build-time variables (set via -ldflags)
var (
	version   = ""        // Set via -ldflags "-X main.version=x.y.z"
	buildTime = "unknown" // Set via -ldflags "-X main.buildTime=..."
	gitCommit = "unknown" // Set via -ldflags "-X main.gitCommit=..."
)

func getVersion() string {
	if version != "" {
		return version
	}
	return pkgversion.String()
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "demo":
		demoCommand()
	case "bench":
		benchCommand()
	case "version":
		fmt.Printf("tlswire version %s\n", getVersion())
		if buildTime != "unknown" {
			fmt.Printf("Built: %s\n", buildTime)
		}
		if gitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", gitCommit)
		}
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tlswire - TLS record-layer data plane

Usage:
  tlswire <command> [flags]

Commands:
  demo       Run an echo exchange between two connections over loopback TCP
  bench      Measure record-plane throughput
  version    Print version information
  help       Show this help

Run 'tlswire <command> --help' for command-specific flags.`)
}

func demoCommand() {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	suite := fs.String("suite", "aes128", "cipher suite: aes128, aes256, chacha20, aegis")
	messages := fs.Int("messages", 5, "number of echo messages")
	verbose := fs.Bool("verbose", false, "debug logging")
	_ = fs.Parse(os.Args[2:])

	runDemo(*suite, *messages, *verbose)
}

func benchCommand() {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	suite := fs.String("suite", "aes128", "cipher suite: aes128, aes256, chacha20, aegis")
	size := fs.Int("size", 16384, "message size in bytes")
	duration := fs.String("duration", "3s", "measurement duration")
	zerocopy := fs.Bool("zerocopy", true, "enable in-place decryption")
	_ = fs.Parse(os.Args[2:])

	runBench(*suite, *size, *duration, *zerocopy)
}
