package main

import "github.com/audiolibrelab/mediactl/cmd"

func main() {
	cmd.Execute()
}
