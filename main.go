package main

import (
	"github.com/maxgio92/xspy/pkg/cmd"
)

func main() {
	cmd.Execute()
}
