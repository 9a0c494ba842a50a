package main

import "github.com/mpapenbr/racestrategy-service-go/cmd"

func main() {
	cmd.Execute()
}
