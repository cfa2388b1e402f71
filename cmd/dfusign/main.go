// Command dfusign provisions a node's persistent bootloader info store
// offline and hashes images for signing, the companion tool to the core's read-only
// bootinfo package: init lays down the memory segment descriptors and
// clears the integrity flags for a factory-fresh board, hash extracts
// the digest a remote signer must sign over a firmware image, and key
// provisions the public key an externally produced signature will be
// checked against.
//
// This mirrors cmd/picosign's split between hashing (done locally, no
// key material needed) and signing (applying key/signature material
// produced elsewhere), so a node's bootloader never needs direct
// access to a private key.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"

	"meshdfu.dev/bootinfo"
	"meshdfu.dev/memseg"
)

var (
	initCmd = flag.NewFlagSet("init", flag.ExitOnError)
	hashCmd = flag.NewFlagSet("hash", flag.ExitOnError)
	keyCmd  = flag.NewFlagSet("key", flag.ExitOnError)
)

func main() {
	if len(os.Args) <= 1 {
		fmt.Fprintf(os.Stderr, "dfusign: specify 'init', 'hash' or 'key' command\n")
		os.Exit(2)
	}
	args := os.Args[2:]
	var err error
	switch cmd := os.Args[1]; cmd {
	case "init":
		if perr := initCmd.Parse(args); perr != nil {
			initCmd.Usage()
		}
		err = runInit()
	case "hash":
		if perr := hashCmd.Parse(args); perr != nil {
			hashCmd.Usage()
		}
		err = runHash()
	case "key":
		if perr := keyCmd.Parse(args); perr != nil {
			keyCmd.Usage()
		}
		err = runKey()
	default:
		fmt.Fprintf(os.Stderr, "dfusign: unknown command: %q\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dfusign: %v\n", err)
		os.Exit(2)
	}
}

// runInit writes the three memory segment descriptors and a
// both-false integrity record to a fresh store file: init <store>
// <app-start> <app-len> <bl-start> <bl-len> <rt-start> <rt-len>.
func runInit() error {
	a := initCmd.Args()
	if len(a) != 7 {
		return fmt.Errorf("init: usage: init <store> <app-start> <app-len> <bl-start> <bl-len> <rt-start> <rt-len>")
	}
	nums := make([]uint64, 6)
	for i, s := range a[1:] {
		n, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return fmt.Errorf("init: invalid address/length %q: %w", s, err)
		}
		nums[i] = n
	}
	store, err := openFileStore(a[0])
	if err != nil {
		return err
	}
	segs := []struct {
		t bootinfo.EntryType
		d memseg.Descriptor
	}{
		{bootinfo.EntrySegApp, memseg.Descriptor{Start: uint32(nums[0]), Length: uint32(nums[1])}},
		{bootinfo.EntrySegBootloader, memseg.Descriptor{Start: uint32(nums[2]), Length: uint32(nums[3])}},
		{bootinfo.EntrySegRuntime, memseg.Descriptor{Start: uint32(nums[4]), Length: uint32(nums[5])}},
	}
	for _, s := range segs {
		if err := bootinfo.PutSegment(store, s.t, s.d); err != nil {
			return fmt.Errorf("init: %w", err)
		}
	}
	if err := bootinfo.PutIntegrity(store, false, false); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	return store.save()
}

// runHash prints the sha256 digest of a firmware image file, the same
// digest flash.Memory.SHA256 computes over a received transfer and
// sig.Verifier checks a signature against: hash <image-file>.
func runHash() error {
	a := hashCmd.Args()
	if len(a) != 1 {
		return fmt.Errorf("hash: usage: hash <image-file>")
	}
	data, err := os.ReadFile(a[0])
	if err != nil {
		return fmt.Errorf("hash: %w", err)
	}
	digest := sha256.Sum256(data)
	fmt.Println(hex.EncodeToString(digest[:]))
	return nil
}

// runKey provisions (or clears) the public key entry: key <store>
// [<pubkey-hex>]. With no key argument, removes any provisioned key so
// the node accepts unsigned transfers.
func runKey() error {
	a := keyCmd.Args()
	if len(a) < 1 {
		return fmt.Errorf("key: usage: key <store> [<pubkey-hex>]")
	}
	store, err := openFileStore(a[0])
	if err != nil {
		return err
	}
	if len(a) == 1 {
		store.delete(bootinfo.EntryPublicKey)
		return store.save()
	}
	key, err := hex.DecodeString(a[1])
	if err != nil {
		return fmt.Errorf("key: invalid public key %q: %w", a[1], err)
	}
	if err := store.Put(bootinfo.EntryPublicKey, key); err != nil {
		return fmt.Errorf("key: %w", err)
	}
	return store.save()
}
