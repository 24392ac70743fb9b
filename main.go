package main

import "github.com/teamtrackhq/workload-management/cmd"

func main() {
	cmd.Execute()
}
