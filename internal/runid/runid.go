// Package runid generates a short human-readable code identifying one
// run of the tool. The code appears in every log line, in each SSM
// command's comment field, and in run reports, so a run can be
// correlated across all three after the fact.
package runid

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var colors = []string{
	"amber", "azure", "coral", "crimson", "ebony", "fuchsia", "indigo",
	"ivory", "jade", "maroon", "ochre", "olive", "russet", "saffron",
	"scarlet", "sepia", "teal", "umber", "vermilion", "viridian",
}

var birds = []string{
	"albatross", "bittern", "condor", "curlew", "egret", "falcon",
	"gannet", "harrier", "heron", "kestrel", "kite", "merlin", "osprey",
	"petrel", "plover", "shrike", "swift", "tern",
}

// New returns a fresh run code of the form "color-bird-NNNN".
func New() (string, error) {
	c, err := pick(colors)
	if err != nil {
		return "", fmt.Errorf("run code: %w", err)
	}
	b, err := pick(birds)
	if err != nil {
		return "", fmt.Errorf("run code: %w", err)
	}
	// 1000-9999 keeps the code short but unlikely to collide across
	// the handful of runs an operator compares by eye.
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", fmt.Errorf("run code: %w", err)
	}
	return fmt.Sprintf("%s-%s-%d", c, b, n.Int64()+1000), nil
}

func pick(words []string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		return "", err
	}
	return words[n.Int64()], nil
}
