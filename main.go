package main

import "github.com/tanq16/fragzo/cmd"

func main() {
	cmd.Execute()
}
