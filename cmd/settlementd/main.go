package main

import (
	"log"

	"invokeledger/services/settlementd"
)

func main() {
	if err := settlementd.Main(); err != nil {
		log.Fatalf("settlementd: %v", err)
	}
}
