package main

import "github.com/gregorycollins/riegeli/cmd/riegeli/cmd"

func main() {
	cmd.Execute()
}
