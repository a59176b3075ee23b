// fluxe-setup compiles the four transaction circuits and writes their
// Groth16 proving and verifying keys to disk. The in-process setup is
// single-party; production keys come from a ceremony.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fluxe/core/internal/circuits"
	"github.com/fluxe/core/pkg/types"
)

func main() {
	outputDir := flag.String("out", "keys", "output directory for key files")
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		os.Exit(1)
	}

	registry := circuits.NewRegistry()

	txTypes := []types.TransactionType{
		types.TxMint, types.TxBurn, types.TxTransfer, types.TxObjectUpdate,
	}
	for _, t := range txTypes {
		fmt.Printf("compiling %s circuit...\n", t)
		if err := registry.Setup(t); err != nil {
			fmt.Fprintf(os.Stderr, "setup %s: %v\n", t, err)
			os.Exit(1)
		}

		pk, err := registry.ProvingKey(t)
		if err != nil {
			fmt.Fprintf(os.Stderr, "proving key %s: %v\n", t, err)
			os.Exit(1)
		}
		vk, err := registry.VerifyingKey(t)
		if err != nil {
			fmt.Fprintf(os.Stderr, "verifying key %s: %v\n", t, err)
			os.Exit(1)
		}

		pkPath := filepath.Join(*outputDir, t.String()+"_prover.key")
		if err := writeKey(pkPath, pk); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", pkPath, err)
			os.Exit(1)
		}

		vkPath := filepath.Join(*outputDir, t.String()+"_verifier.key")
		if err := writeKey(vkPath, vk); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", vkPath, err)
			os.Exit(1)
		}

		fmt.Printf("wrote %s, %s\n", pkPath, vkPath)
	}
}

func writeKey(path string, obj io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = obj.WriteTo(f)
	return err
}
