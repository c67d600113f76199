package main

import (
	"oddsboard/internal/cli"
)

func main() {
	cli.Execute()
}
