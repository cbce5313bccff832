package main

import "github.com/avodev/dbgcore/cmd"

func main() {
	cmd.Execute()
}
