package main

import "github.com/particle-sim/particle-sim/cmd"

func main() {
	cmd.Execute()
}
