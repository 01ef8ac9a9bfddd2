package main

import "github.com/audiolibrelab/homebooth/cmd"

func main() {
	cmd.Execute()
}
