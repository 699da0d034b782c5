package main

import (
	"github.com/voclara/roomkit/cmd"
	"github.com/voclara/roomkit/internal/logging"
)

func main() {
	logging.Init()
	cmd.Execute()
}
