package main

import (
	cmd "plusload/cmd/plusload"
)

func main() {
	cmd.Execute()
}
