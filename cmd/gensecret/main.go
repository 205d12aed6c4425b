// Command gensecret prints a random hex key suitable for SECRET_KEY.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

const (
	defaultKeyBytes = 32

	// HMAC-SHA256 key shorter than the hash output weakens the signature
	minKeyBytes = 32
)

func main() {
	if err := run(os.Stdout, rand.Reader, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}
}

func run(w io.Writer, random io.Reader, args []string) error {
	fs := pflag.NewFlagSet("gensecret", pflag.ContinueOnError)
	n := fs.IntP("bytes", "n", defaultKeyBytes, "Key length in bytes")
	asEnv := fs.Bool("env", false, "Print as .env line")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *n < minKeyBytes {
		return errors.New("key must be at least 32 bytes")
	}

	b := make([]byte, *n)
	if _, err := io.ReadFull(random, b); err != nil {
		return err
	}

	key := hex.EncodeToString(b)
	if *asEnv {
		_, err := fmt.Fprintf(w, "SECRET_KEY=%s\n", key)
		return err
	}
	_, err := fmt.Fprintln(w, key)
	return err
}
