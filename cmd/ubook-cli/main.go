package main

import (
	"fmt"
	"os"
	"strings"
)

var (
	rpcEndpoint = defaultRPCEndpoint()
	rpcToken    = os.Getenv("UBOOK_RPC_TOKEN")
)

func defaultRPCEndpoint() string {
	if url := strings.TrimSpace(os.Getenv("UBOOK_RPC_URL")); url != "" {
		return url
	}
	return "http://127.0.0.1:8546/"
}

func main() {
	args := os.Args[1:]
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(runBookingCommand(args, os.Stdout, os.Stderr))
}

// applyGlobalFlags strips the flags that apply to every subcommand.
func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--rpc":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--rpc requires a value")
			}
			i++
			rpcEndpoint = args[i]
		case strings.HasPrefix(args[i], "--rpc="):
			rpcEndpoint = strings.TrimPrefix(args[i], "--rpc=")
		default:
			out = append(out, args[i])
		}
	}
	if strings.TrimSpace(rpcEndpoint) == "" {
		return nil, fmt.Errorf("rpc endpoint must not be empty")
	}
	return out, nil
}
