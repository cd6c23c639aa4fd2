package main

import (
	"fmt"
	"os"

	"github.com/bandafrc/api/internal/auth"
)

// Gera um hash argon2id para semear o primeiro administrador via SQL.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: hashpass <senha>")
		os.Exit(1)
	}

	hash, err := auth.Hash(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hash)
}
