package main

import "github.com/sensebridge/sensebridge/cmd"

func main() {
	cmd.Execute()
}
