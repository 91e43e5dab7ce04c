package main

import "sector-dashboard/internal/cli"

func main() {
	cli.Execute()
}
