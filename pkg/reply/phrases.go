package reply

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Phrase is one canned reply keyed by the exact message that triggers it.
type Phrase struct {
	Key   string `toml:"key"`
	Reply string `toml:"reply"`
}

// Phrases is an ordered, read-only phrase table. Keys are compared
// case-insensitively after trimming; when two keys fold to the same value the
// one listed first wins.
type Phrases struct {
	entries []Phrase
}

// NewPhrases copies entries into a table. Entries with an empty key or reply
// are dropped since they can never produce a reply.
func NewPhrases(entries ...Phrase) Phrases {
	kept := make([]Phrase, 0, len(entries))
	for _, e := range entries {
		if normalize(e.Key) == "" || e.Reply == "" {
			continue
		}
		kept = append(kept, e)
	}
	return Phrases{entries: kept}
}

// DefaultPhrases is the table used when no phrase file is configured.
func DefaultPhrases() Phrases {
	return NewPhrases(
		Phrase{Key: "Hello", Reply: "Hello! How can I help you today?"},
		Phrase{Key: "Hi", Reply: "Hi there! What would you like to talk about?"},
		Phrase{Key: "How are you?", Reply: "I'm doing well, thank you for asking! How can I assist you?"},
		Phrase{Key: "What is your name?", Reply: "I'm your chat assistant. You can ask me questions or share an image."},
		Phrase{Key: "Thank you", Reply: "You're welcome! Let me know if there's anything else."},
		Phrase{Key: "Thanks", Reply: "You're welcome!"},
		Phrase{Key: "Bye", Reply: "Goodbye! Have a great day."},
	)
}

type phraseFile struct {
	Phrase []Phrase `toml:"phrase"`
}

// LoadPhrases reads a TOML file of [[phrase]] tables with key and reply
// fields, preserving file order.
func LoadPhrases(path string) (Phrases, error) {
	var f phraseFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return Phrases{}, fmt.Errorf("decoding phrase file %s: %w", path, err)
	}
	return NewPhrases(f.Phrase...), nil
}

// Lookup returns the reply for content, if any key matches it.
func (p Phrases) Lookup(content string) (string, bool) {
	clean := normalize(content)
	if clean == "" {
		return "", false
	}
	for _, e := range p.entries {
		if normalize(e.Key) == clean {
			return e.Reply, true
		}
	}
	return "", false
}

// Len returns the number of usable entries.
func (p Phrases) Len() int {
	return len(p.entries)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
