package main

import "github.com/MeKo-Tech/plategate/cmd/plategate/cmd"

func main() {
	cmd.Execute()
}
