// veil-verify walks a ledger file offline and reports tampering.
//
// Usage:
//
//	veil-verify [-pubkey base64] [ledger_file]
//
// Exit code 0 means the chain is intact.
package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"flag"
	"fmt"
	"os"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/ledger"
)

func main() {
	pubkeyB64 := flag.String("pubkey", "", "archived Ed25519 public key (base64); enables signature checks")
	flag.Parse()

	path := "veil.ledger.jsonl"
	if flag.NArg() > 0 {
		path = flag.Arg(0)
	}

	fmt.Printf("Starting forensic analysis of: %s\n", path)

	var (
		violations int
		err        error
	)
	if *pubkeyB64 != "" {
		raw, derr := base64.StdEncoding.DecodeString(*pubkeyB64)
		if derr != nil || len(raw) != ed25519.PublicKeySize {
			fmt.Fprintln(os.Stderr, "invalid public key")
			os.Exit(2)
		}
		violations, err = ledger.VerifyFileWithKey(path, os.Stdout, ed25519.PublicKey(raw))
	} else {
		violations, err = ledger.VerifyFile(path, os.Stdout)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "verification aborted: %v\n", err)
		os.Exit(2)
	}
	if violations > 0 {
		os.Exit(1)
	}
}
