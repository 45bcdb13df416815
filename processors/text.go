package processors

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/creastat/infra/telemetry"
	"github.com/creastat/multicast/core"
)

// HeaderSentences is set to the sentences of the normalized body when
// TextNormalizerConfig.SplitSentences is enabled
const HeaderSentences = "Sentences"

var (
	codeBlockRegex      = regexp.MustCompile("(?s)```[^`]*```\n?")
	inlineCodeRegex     = regexp.MustCompile("`[^`]+`")
	markdownBoldRegex   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	markdownItalicRegex = regexp.MustCompile(`\*([^*]+)\*`)
	markdownHeaderRegex = regexp.MustCompile(`(?m)^#+\s+`)
	markdownLinkRegex   = regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`)
	htmlTagRegex        = regexp.MustCompile(`<[^>]+>`)
)

// Longer abbreviations first so that partial matches cannot win
var abbreviations = []struct {
	abbr      string
	expansion string
}{
	{"U.S.", "United States"},
	{"U.K.", "United Kingdom"},
	{"e.g.", "for example"},
	{"i.e.", "that is"},
	{"Prof.", "Professor"},
	{"Mrs.", "Misses"},
	{"Dr.", "Doctor"},
	{"Mr.", "Mister"},
	{"Ms.", "Miss"},
	{"St.", "Street"},
	{"etc.", "et cetera"},
	{"vs.", "versus"},
	{"No.", "Number"},
	{"Inc.", "Incorporated"},
	{"Ltd.", "Limited"},
}

// TextNormalizerConfig holds text normalizer configuration
type TextNormalizerConfig struct {
	StripCodeBlocks     bool // Removes fenced and inline code
	StripMarkdown       bool // Removes emphasis, headers and link targets
	ExpandAbbreviations bool
	ExpandSymbols       bool // & @ # become words
	SplitSentences      bool
	Logger              telemetry.Logger
}

// TextNormalizer rewrites a text body into plain prose, for branches
// that feed speech or search backends. HTML tags are always removed.
type TextNormalizer struct {
	config TextNormalizerConfig
}

// NewTextNormalizer creates a new TextNormalizer
func NewTextNormalizer(config TextNormalizerConfig) *TextNormalizer {
	config.Logger = withDefaultLogger(config.Logger)
	return &TextNormalizer{
		config: config,
	}
}

// Name returns the processor name
func (n *TextNormalizer) Name() string {
	return "text_normalizer"
}

// Process implements core.Processor
func (n *TextNormalizer) Process(ctx context.Context, msg *core.Message) error {
	var text string
	switch b := msg.Body.(type) {
	case string:
		text = b
	case []byte:
		text = string(b)
	default:
		return fmt.Errorf("text normalizer: unsupported body type %T", msg.Body)
	}

	text = n.Normalize(text)
	msg.Body = text

	if n.config.SplitSentences {
		msg.SetHeader(HeaderSentences, SplitSentences(text))
	}

	logger := n.config.Logger.WithModule(n.Name())
	logger.Debug("Normalized text", telemetry.String("message_id", msg.ID), telemetry.Int("length", len(text)))
	return nil
}

// Normalize applies the configured cleanups to text
func (n *TextNormalizer) Normalize(text string) string {
	if n.config.StripCodeBlocks {
		text = codeBlockRegex.ReplaceAllString(text, "")
		text = inlineCodeRegex.ReplaceAllString(text, "")
	}

	if n.config.StripMarkdown {
		text = markdownLinkRegex.ReplaceAllString(text, "$1")
		text = markdownBoldRegex.ReplaceAllString(text, "$1")
		text = markdownItalicRegex.ReplaceAllString(text, "$1")
		text = markdownHeaderRegex.ReplaceAllString(text, "")
		// Stray markers from unbalanced emphasis
		text = strings.ReplaceAll(text, "*", "")
	}

	text = htmlTagRegex.ReplaceAllString(text, "")

	if n.config.ExpandSymbols {
		text = strings.NewReplacer("&", "and", "@", "at", "#", "number").Replace(text)
	}

	if n.config.ExpandAbbreviations {
		for _, pair := range abbreviations {
			text = strings.ReplaceAll(text, pair.abbr, pair.expansion)
		}
	}

	return strings.TrimSpace(text)
}

// SplitSentences splits text after ., ! and ? and at line breaks.
// A period ending a known abbreviation does not end a sentence.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for _, r := range text {
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		switch r {
		case '!', '?':
			flush()
		case '.':
			if !endsWithAbbreviation(current.String()) {
				flush()
			}
		}
	}
	flush()

	return sentences
}

func endsWithAbbreviation(text string) bool {
	for _, pair := range abbreviations {
		if strings.HasSuffix(text, pair.abbr) {
			return true
		}
	}
	return false
}
