package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"

	"go.uber.org/zap"
)

// DescriptorSuffix terminates every usable corpus entry.
const DescriptorSuffix = "/info.json"

// ErrEmpty is returned when no line of the input survived validation.
var ErrEmpty = errors.New("corpus: no usable info.json urls")

// Corpus is the read-only list of descriptor URLs shared by every simulated client.
type Corpus struct {
	entries []string
}

// Load reads the url list at path. Rejected lines are reported on logger.
func Load(path string, logger *zap.Logger) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open url list: %w", err)
	}
	defer f.Close()

	return Read(f, logger)
}

// Read builds a corpus from a line oriented reader.
func Read(r io.Reader, logger *zap.Logger) (*Corpus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var entries []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		url := strings.TrimSuffix(scanner.Text(), "\r")
		if url == "" {
			continue
		}
		if !strings.HasSuffix(url, DescriptorSuffix) {
			logger.Warn("skipping url, it does not end with "+DescriptorSuffix, zap.String("url", url))
			continue
		}
		entries = append(entries, url)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("corpus: read url list: %w", err)
	}

	if len(entries) == 0 {
		return nil, ErrEmpty
	}

	return &Corpus{entries: entries}, nil
}

// New wraps already validated entries. Entries without the descriptor suffix are dropped.
func New(entries ...string) (*Corpus, error) {
	kept := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e, DescriptorSuffix) {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		return nil, ErrEmpty
	}
	return &Corpus{entries: kept}, nil
}

// Len returns the number of entries.
func (c *Corpus) Len() int {
	return len(c.entries)
}

// At returns entry i.
func (c *Corpus) At(i int) string {
	return c.entries[i]
}

// Entries returns a copy of the entries in file order.
func (c *Corpus) Entries() []string {
	out := make([]string, len(c.entries))
	copy(out, c.entries)
	return out
}

// Random picks an entry uniformly.
func (c *Corpus) Random(rng *rand.Rand) string {
	return c.entries[rng.Intn(len(c.entries))]
}

// RandomIdentifier picks an entry uniformly and returns its image identifier.
func (c *Corpus) RandomIdentifier(rng *rand.Rand) string {
	return Identifier(c.Random(rng))
}

// Identifier strips the descriptor suffix from a corpus entry.
func Identifier(entry string) string {
	return strings.TrimSuffix(entry, DescriptorSuffix)
}
