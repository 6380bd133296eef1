package main

import (
	"log"

	"github.com/entregahub/entregahub/cmd/entregactl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
