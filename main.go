package main

import "github.com/moyu-x/dupfinder/cmd"

func main() {
	cmd.Execute()
}
