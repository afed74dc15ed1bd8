package service

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/atedays1/ate-days-homebase-sub000/internal/domain"
)

const (
	overlapMarker    = "[...] "
	overlapSeparator = "\n\n"
)

var (
	headingPattern   = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	listItemPattern  = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s+\S`)
	paragraphPattern = regexp.MustCompile(`\n[ \t]*\n`)
	sentenceEnd      = regexp.MustCompile(`[.!?]\s+`)
)

// ChunkConfig controls structural chunking of extracted document text.
// Sizes are character (rune) counts.
type ChunkConfig struct {
	ChunkSize        int
	ChunkOverlap     int
	MinChunkSize     int
	PreserveHeadings bool
	PreserveTables   bool
	PreserveLists    bool
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ChunkSize:        1000,
		ChunkOverlap:     150,
		MinChunkSize:     100,
		PreserveHeadings: true,
		PreserveTables:   true,
		PreserveLists:    true,
	}
}

// Chunker splits document text into structure-aware chunk records.
// It holds no mutable state and is safe for concurrent use.
type Chunker struct {
	cfg ChunkConfig
}

// NewChunker creates a Chunker, replacing unusable sizes with defaults.
func NewChunker(cfg ChunkConfig) *Chunker {
	defaults := DefaultChunkConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaults.ChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.MinChunkSize < 0 {
		cfg.MinChunkSize = 0
	}
	return &Chunker{cfg: cfg}
}

// Config returns the effective configuration.
func (c *Chunker) Config() ChunkConfig {
	return c.cfg
}

type section struct {
	heading *string
	content string
}

type block struct {
	text      string
	chunkType domain.ChunkType
}

// Chunk splits a whole document into ordered chunk records.
func (c *Chunker) Chunk(text string) []domain.ChunkRecord {
	return c.ChunkPages(text, nil)
}

// ChunkPages chunks each page or sheet separately so records carry their
// page number. When pages is empty, text is chunked as a single segment.
// Heading context carries over from one page to the next.
func (c *Chunker) ChunkPages(text string, pages []domain.PageSegment) []domain.ChunkRecord {
	type segment struct {
		page *int
		text string
	}

	var segments []segment
	if len(pages) == 0 {
		segments = append(segments, segment{text: text})
	} else {
		for _, p := range pages {
			pageNumber := p.PageNumber
			segments = append(segments, segment{page: &pageNumber, text: p.Text})
		}
	}

	records := make([]domain.ChunkRecord, 0, 8)
	var heading *string
	for _, seg := range segments {
		clean := normalizeNewlines(seg.text)
		if strings.TrimSpace(clean) == "" {
			continue
		}

		var sections []section
		sections, heading = c.splitSections(clean, heading)

		for _, sec := range sections {
			for _, b := range c.chunkSection(sec.content) {
				content := strings.TrimSpace(b.text)
				if content == "" || runeLen(content) < c.cfg.MinChunkSize {
					continue
				}
				records = append(records, domain.ChunkRecord{
					Content:        content,
					ChunkIndex:     len(records),
					HeadingContext: sec.heading,
					ChunkType:      b.chunkType,
					PageNumber:     seg.page,
				})
			}
		}
	}

	c.applyOverlap(records)
	return records
}

// splitSections groups lines under the nearest preceding markdown heading.
// Heading lines stay in their section's content. Lines inside fenced code
// blocks never open a section.
func (c *Chunker) splitSections(text string, inherited *string) ([]section, *string) {
	if !c.cfg.PreserveHeadings {
		return []section{{heading: inherited, content: text}}, inherited
	}

	var sections []section
	heading := inherited
	var current []string
	inFence := false

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if isFence(line) {
			// An unclosed opening fence is plain text, as in carveBlocks.
			if inFence || closingFence(lines, i+1) >= 0 {
				inFence = !inFence
			}
		}
		if !inFence {
			if m := headingPattern.FindStringSubmatch(line); m != nil {
				if len(current) > 0 {
					sections = append(sections, section{heading: heading, content: strings.Join(current, "\n")})
				}
				title := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(m[2]), "#"))
				heading = &title
				current = []string{line}
				continue
			}
		}
		current = append(current, line)
	}

	if len(current) > 0 {
		sections = append(sections, section{heading: heading, content: strings.Join(current, "\n")})
	}
	if len(sections) == 0 {
		sections = append(sections, section{heading: heading, content: text})
	}
	return sections, heading
}

// chunkSection carves atomic table, list and code blocks out of a section and
// chunks the remaining text by paragraph, sentence and word.
func (c *Chunker) chunkSection(content string) []block {
	blocks := c.foldSmallBlocks(c.carveBlocks(content))

	out := make([]block, 0, len(blocks))
	for _, b := range blocks {
		if b.chunkType != domain.ChunkTypeText {
			out = append(out, b)
			continue
		}
		for _, piece := range c.chunkText(b.text) {
			out = append(out, block{text: piece, chunkType: domain.ChunkTypeText})
		}
	}
	return out
}

func (c *Chunker) carveBlocks(content string) []block {
	lines := strings.Split(content, "\n")
	blocks := make([]block, 0, 4)
	var text []string

	flush := func() {
		if len(text) > 0 {
			blocks = append(blocks, block{text: strings.Join(text, "\n"), chunkType: domain.ChunkTypeText})
			text = nil
		}
	}

	for i := 0; i < len(lines); {
		line := lines[i]

		if isFence(line) {
			if end := closingFence(lines, i+1); end >= 0 {
				flush()
				blocks = append(blocks, block{text: strings.Join(lines[i:end+1], "\n"), chunkType: domain.ChunkTypeCode})
				i = end + 1
				continue
			}
		}

		if c.cfg.PreserveTables && isTableRow(line) {
			end := i
			for end < len(lines) && isTableRow(lines[end]) {
				end++
			}
			flush()
			blocks = append(blocks, block{text: strings.Join(lines[i:end], "\n"), chunkType: domain.ChunkTypeTable})
			i = end
			continue
		}

		if c.cfg.PreserveLists && listItemPattern.MatchString(line) {
			end := i + 1
			for end < len(lines) && (listItemPattern.MatchString(lines[end]) || isListContinuation(lines[end])) {
				end++
			}
			flush()
			blocks = append(blocks, block{text: strings.Join(lines[i:end], "\n"), chunkType: domain.ChunkTypeList})
			i = end
			continue
		}

		text = append(text, line)
		i++
	}
	flush()

	return blocks
}

// foldSmallBlocks returns list and code blocks below the minimum size to the
// surrounding text flow, so short lists are kept with their paragraph rather
// than discarded. Tables always stay atomic.
func (c *Chunker) foldSmallBlocks(blocks []block) []block {
	out := make([]block, 0, len(blocks))
	for _, b := range blocks {
		if (b.chunkType == domain.ChunkTypeList || b.chunkType == domain.ChunkTypeCode) &&
			runeLen(strings.TrimSpace(b.text)) < c.cfg.MinChunkSize {
			b.chunkType = domain.ChunkTypeText
		}
		if b.chunkType == domain.ChunkTypeText && len(out) > 0 && out[len(out)-1].chunkType == domain.ChunkTypeText {
			out[len(out)-1].text += "\n" + b.text
			continue
		}
		out = append(out, b)
	}
	return out
}

// chunkText greedily packs paragraphs into chunks of at most ChunkSize
// characters, falling back to sentences and then words for oversized
// paragraphs. Only a single word longer than ChunkSize can exceed the limit.
func (c *Chunker) chunkText(text string) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if runeLen(clean) <= c.cfg.ChunkSize {
		return []string{clean}
	}

	chunks := make([]string, 0, 4)
	current := ""

	for _, para := range paragraphPattern.Split(clean, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		candidate := para
		if current != "" {
			candidate = current + "\n\n" + para
		}
		if runeLen(candidate) <= c.cfg.ChunkSize {
			current = candidate
			continue
		}

		if current != "" {
			chunks = append(chunks, current)
			current = ""
		}

		if runeLen(para) > c.cfg.ChunkSize {
			parts := c.splitBySentences(para)
			if len(parts) > 0 {
				chunks = append(chunks, parts[:len(parts)-1]...)
				current = parts[len(parts)-1]
			}
			continue
		}
		current = para
	}

	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

func (c *Chunker) splitBySentences(text string) []string {
	chunks := make([]string, 0, 4)
	current := ""

	for _, sentence := range splitSentences(text) {
		candidate := sentence
		if current != "" {
			candidate = current + " " + sentence
		}
		if runeLen(candidate) <= c.cfg.ChunkSize {
			current = candidate
			continue
		}

		if current != "" {
			chunks = append(chunks, current)
			current = ""
		}

		if runeLen(sentence) <= c.cfg.ChunkSize {
			current = sentence
			continue
		}

		for _, word := range strings.Fields(sentence) {
			if current == "" {
				current = word
				continue
			}
			if runeLen(current)+1+runeLen(word) <= c.cfg.ChunkSize {
				current += " " + word
				continue
			}
			chunks = append(chunks, current)
			current = word
		}
	}

	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

// applyOverlap prefixes each text chunk that follows another text chunk with
// the word-aligned tail of the previous chunk's own content.
func (c *Chunker) applyOverlap(records []domain.ChunkRecord) {
	if c.cfg.ChunkOverlap <= 0 || len(records) < 2 {
		return
	}

	originals := make([]string, len(records))
	for i := range records {
		originals[i] = records[i].Content
	}

	for i := 1; i < len(records); i++ {
		prev := records[i-1]
		cur := &records[i]
		if prev.ChunkType != domain.ChunkTypeText || cur.ChunkType != domain.ChunkTypeText {
			continue
		}
		overlap := c.overlapText(originals[i-1])
		if overlap == "" {
			continue
		}
		cur.Content = overlap + overlapSeparator + cur.Content
		cur.OverlapPrefixLen = runeLen(overlap) + runeLen(overlapSeparator)
	}
}

func (c *Chunker) overlapText(text string) string {
	runes := []rune(text)
	n := c.cfg.ChunkOverlap
	if len(runes) <= n {
		return ""
	}

	start := len(runes) - n
	tail := runes[start:]
	if !unicode.IsSpace(runes[start-1]) {
		cut := -1
		for i, r := range tail {
			if unicode.IsSpace(r) {
				cut = i
				break
			}
		}
		if cut < 0 {
			return ""
		}
		tail = tail[cut+1:]
	}

	overlap := strings.TrimSpace(string(tail))
	if overlap == "" {
		return ""
	}
	return overlapMarker + overlap
}

func splitSentences(text string) []string {
	locs := sentenceEnd.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}

	sentences := make([]string, 0, len(locs)+1)
	start := 0
	for _, loc := range locs {
		// keep the terminal punctuation, drop the whitespace
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			sentences = append(sentences, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTableRow(line string) bool {
	t := strings.TrimSpace(line)
	return len(t) >= 2 && strings.HasPrefix(t, "|") && strings.HasSuffix(t, "|")
}

func isListContinuation(line string) bool {
	if strings.TrimSpace(line) == "" || isTableRow(line) {
		return false
	}
	return line[0] == ' ' || line[0] == '\t'
}

func isFence(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

func closingFence(lines []string, from int) int {
	for i := from; i < len(lines); i++ {
		if isFence(lines[i]) {
			return i
		}
	}
	return -1
}

func normalizeNewlines(text string) string {
	return strings.ReplaceAll(text, "\r\n", "\n")
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
