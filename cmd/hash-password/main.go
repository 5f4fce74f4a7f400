package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/examflow/examflow-backend/internal/config"
	"github.com/examflow/examflow-backend/internal/service"
	"golang.org/x/term"
)

const minPasswordLength = 4

// hash-password prints a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func main() {
	cfg := config.Load()

	fmt.Print("Enter Password: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error reading password:", err)
		os.Exit(1)
	}
	if len(first) < minPasswordLength {
		fmt.Fprintf(os.Stderr, "Error: Password must be at least %d characters\n", minPasswordLength)
		os.Exit(1)
	}

	fmt.Print("Confirm Password: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error reading password:", err)
		os.Exit(1)
	}
	if string(first) != string(second) {
		fmt.Fprintln(os.Stderr, "Error: Passwords do not match")
		os.Exit(1)
	}

	hash, err := service.HashPassword(string(first), cfg.BcryptCost)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error hashing password:", err)
		os.Exit(1)
	}

	fmt.Printf("ADMIN_PASSWORD_HASH=%s\n", hash)
}
