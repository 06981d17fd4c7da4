// Command hashsecret reads the scheduler trigger secret from stdin and prints
// the value to store in scheduler.secret_hash.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/gigbook/backend/internal/middleware"
)

func main() {
	if err := run(os.Stdin, os.Stdout); err != nil {
		log.Fatalf("Failed to hash secret: %v", err)
	}
}

func run(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return errors.New("secret must not be empty")
	}

	hash, err := middleware.HashSecret(secret)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
