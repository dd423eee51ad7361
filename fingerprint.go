package aobgen

import (
	"fmt"
	"io"
	"os"

	"github.com/spaolacci/murmur3"
)

// FileFingerprint hashes the content of the file at path. Two files with the
// same fingerprint are treated as the same image by scan caches.
func FileFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := murmur3.New128()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	hi, lo := h.Sum128()
	return fmt.Sprintf("%016x%016x-%x", hi, lo, n), nil
}

// SignaturesFingerprint hashes everything that influences the outcome of a
// scan with sigs: names, canonical patterns, strategies and version
// filters, in order.
func SignaturesFingerprint(sigs []Signature) (string, error) {
	h := murmur3.New64()
	for _, sig := range sigs {
		if err := sig.compile(); err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%q %s %q\n", sig.Name, sig.Strategy, sig.Versions)
		for _, n := range sig.needles {
			fmt.Fprintf(h, "\t%s\n", n)
		}
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
