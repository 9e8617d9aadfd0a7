package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// Result is what the synthesizer hands back. Title and Description are
// always non-empty; ThumbnailPath is nil when no frame could be kept.
type Result struct {
	Title         string
	Description   string
	ThumbnailPath *string
}

type Options struct {
	MaxAttempts   int
	MaxFrames     int
	TitleMaxChars int
	DescMaxChars  int
	MinTitleChars int
	ThumbnailDir  string
}

func (o *Options) defaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.MaxFrames <= 0 {
		o.MaxFrames = 3
	}
	if o.TitleMaxChars <= 0 {
		o.TitleMaxChars = 60
	}
	if o.DescMaxChars <= 0 {
		o.DescMaxChars = 200
	}
	if o.MinTitleChars <= 0 {
		o.MinTitleChars = 10
	}
}

// Synthesizer produces title/description/thumbnail for a video. It degrades
// through fallback tiers and never returns an error to the caller.
type Synthesizer struct {
	frames FrameSampler
	model  ContentModel
	opts   Options
}

func New(frames FrameSampler, model ContentModel, opts Options) *Synthesizer {
	opts.defaults()
	return &Synthesizer{frames: frames, model: model, opts: opts}
}

const defaultDescription = "Uploaded automatically. Watch now!"

// Synthesize generates publish metadata for videoPath. displayName is the
// user-facing name of the file, used for fallback titles and for the
// filename-derived rejection check.
func (s *Synthesizer) Synthesize(ctx context.Context, videoPath, displayName string) Result {
	if displayName == "" {
		displayName = filepath.Base(videoPath)
	}

	framePaths, err := s.frames.Sample(ctx, videoPath, s.opts.MaxFrames)
	if err != nil {
		log.Warn().Err(err).Str("video", videoPath).Msg("frame sampling failed, continuing without images")
		framePaths = nil
	}
	images := readFrames(framePaths)

	var title, description string
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		raw, err := s.model.Complete(ctx, buildPrompt(displayName, len(images) > 0), images)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Str("video", videoPath).Msg("content model call failed")
			continue
		}
		t, d, ok := parseTitleDescription(raw)
		if !ok {
			log.Debug().Int("attempt", attempt).Msg("no parseable title/description in model output")
			continue
		}
		title, description = t, d
		if reason := s.rejectTitle(t, displayName); reason != "" {
			log.Debug().Int("attempt", attempt).Str("title", t).Str("reason", reason).Msg("title rejected")
			continue
		}
		break
	}

	if utf8.RuneCountInString(title) < s.opts.MinTitleChars {
		title = fallbackTitle(displayName)
	}
	title = truncate(title, s.opts.TitleMaxChars)

	if strings.TrimSpace(description) == "" {
		description = defaultDescription
	}
	description = truncate(description, s.opts.DescMaxChars)

	var thumb *string
	if len(framePaths) > 0 {
		if p, err := s.storeThumbnail(framePaths[0], displayName); err != nil {
			log.Warn().Err(err).Str("video", videoPath).Msg("thumbnail copy failed, publishing without one")
		} else {
			thumb = &p
		}
	}

	return Result{Title: title, Description: description, ThumbnailPath: thumb}
}

// rejectTitle returns a non-empty reason when a candidate fails the
// validation gate.
func (s *Synthesizer) rejectTitle(title, displayName string) string {
	if utf8.RuneCountInString(title) < s.opts.MinTitleChars {
		return "too short"
	}
	if isGenericTitle(title) {
		return "generic phrasing"
	}
	if isFilenameDerived(title, displayName) {
		return "derived from filename"
	}
	return ""
}

var genericPhrases = []string{
	"you won't believe",
	"you wont believe",
	"is going viral",
	"going viral",
	"will shock you",
	"will blow your mind",
	"must watch",
	"watch till the end",
	"watch until the end",
	"number one trick",
	"what happens next",
}

func isGenericTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, p := range genericPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// isFilenameDerived reports whether every word of the title already appears
// in the source filename. Such titles add nothing over the fallback.
func isFilenameDerived(title, displayName string) bool {
	nameWords := map[string]bool{}
	for _, w := range splitWords(cleanName(displayName)) {
		nameWords[w] = true
	}
	titleWords := splitWords(title)
	if len(titleWords) == 0 {
		return true
	}
	for _, w := range titleWords {
		if !nameWords[w] {
			return false
		}
	}
	return true
}

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

func splitWords(s string) []string {
	return wordRe.FindAllString(strings.ToLower(s), -1)
}

// fallbackTitle derives a deterministic title from the cleaned filename.
func fallbackTitle(displayName string) string {
	words := splitWords(cleanName(displayName))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	t := strings.Join(words, " ")
	if t == "" {
		t = "New Short Video"
	}
	return t
}

// cleanName strips the extension and normalizes separators.
func cleanName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, base)
	return strings.Trim(base, "_")
}

func buildPrompt(displayName string, withImages bool) string {
	var sb strings.Builder
	if withImages {
		sb.WriteString("These are frames sampled from a short-form video named ")
	} else {
		sb.WriteString("Consider a short-form video named ")
	}
	fmt.Fprintf(&sb, "%q.\n", displayName)
	sb.WriteString("Write an engaging, specific YouTube Shorts title and description for it.\n")
	sb.WriteString("Do not use clickbait phrases. Do not just restate the filename.\n")
	sb.WriteString(`Respond with ONLY valid JSON: {"title": "...", "description": "..."}`)
	return sb.String()
}

// parseTitleDescription tolerantly extracts {title, description} from model
// output: fences stripped, first well-formed JSON object wins, then a loose
// key-value scan of free text.
func parseTitleDescription(raw string) (title, description string, ok bool) {
	cleaned := cleanJSON(raw)

	if obj := firstJSONObject(cleaned); obj != "" {
		var parsed struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal([]byte(obj), &parsed); err == nil && strings.TrimSpace(parsed.Title) != "" {
			return strings.TrimSpace(parsed.Title), strings.TrimSpace(parsed.Description), true
		}
	}

	t := looseValue(cleaned, "title")
	if t == "" {
		return "", "", false
	}
	return t, looseValue(cleaned, "description"), true
}

func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// firstJSONObject returns the first balanced {...} span, respecting strings.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inStr := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

var looseRe = map[string]*regexp.Regexp{
	"title":       regexp.MustCompile(`(?im)^\s*"?title"?\s*[:\-]\s*"?(.+?)"?,?\s*$`),
	"description": regexp.MustCompile(`(?im)^\s*"?description"?\s*[:\-]\s*"?(.+?)"?,?\s*$`),
}

func looseValue(s, key string) string {
	m := looseRe[key].FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// truncate caps s at n characters, not bytes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func readFrames(paths []string) [][]byte {
	var images [][]byte
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			log.Debug().Err(err).Str("frame", p).Msg("frame unreadable")
			continue
		}
		images = append(images, b)
	}
	return images
}

// storeThumbnail copies the chosen frame into the stable thumbnail store so
// the temporary frame directory can be cleaned independently.
func (s *Synthesizer) storeThumbnail(framePath, displayName string) (string, error) {
	if s.opts.ThumbnailDir == "" {
		return "", fmt.Errorf("no thumbnail dir configured")
	}
	if err := os.MkdirAll(s.opts.ThumbnailDir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(s.opts.ThumbnailDir, cleanName(displayName)+"_thumb.jpg")

	in, err := os.Open(framePath)
	if err != nil {
		return "", err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return "", err
	}
	return dst, nil
}
