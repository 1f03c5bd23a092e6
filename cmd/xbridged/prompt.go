// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/crypto/ssh/terminal"
)

// passwordPrompt reads a password from the terminal without echoing it.
func passwordPrompt(prompt string) (string, error) {
	fmt.Println(prompt)
	password, err := terminal.ReadPassword(syscall.Stdin)
	if err != nil {
		return "", err
	}
	if len(password) == 0 {
		return "", errors.New("password must not be empty")
	}
	return string(password), nil
}
