package main

import "github.com/nethalo/pgreorg/cmd"

func main() {
	cmd.Execute()
}
