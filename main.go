package main

import (
	"github.com/zapa-ai/zapa/cmd"
)

func main() {
	cmd.Execute()
}
