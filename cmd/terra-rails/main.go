package main

import (
	"fmt"
	"os"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "deploy":
		cmdDeploy(os.Args[2:])
	case "up":
		cmdUp(os.Args[2:])
	case "verify":
		cmdVerify(os.Args[2:])
	case "rollback":
		cmdRollback(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "logs":
		cmdLogs(os.Args[2:])
	case "destroy":
		cmdDestroy(os.Args[2:])
	case "version":
		fmt.Printf("terra-rails %s (%s)\n", version, commit)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: terra-rails <command>

Commands:
  deploy    Build, push, converge and verify a release
  up        Converge infrastructure without deploying an image
  verify    Probe the health endpoint through the load balancer
  rollback  Roll the service back to a previous task revision
  status    Show service and target health
  logs      Show container logs
  destroy   Tear down all managed infrastructure
  version   Print version`)
}
