package intake

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/KauaneAlmeida/back-end-teste/platform/phone"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalized legal areas.
const (
	AreaCriminal = "Direito Penal"
	AreaHealth   = "Saúde/Liminares"
)

// Urgency levels.
const (
	UrgencyHigh   = "high"
	UrgencyNormal = "normal"
)

// NameSource tells how a name was recognized.
type NameSource string

const (
	NameFromIntroduction NameSource = "introduction"
	NameFromHeuristic    NameSource = "heuristic"
)

const (
	nameMinLength = 4
	nameMaxLength = 50
)

// ExtractedData is the structured subset pulled out of one message.
// Empty strings mean the field was not found.
type ExtractedData struct {
	Name       string
	NameSource NameSource
	Phone      string
	Email      string
	Area       string
	Urgency    string
	Confidence float64
}

var (
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().\-]{8,20}\d`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	introPattern = regexp.MustCompile(`(?i)\b(?:meu nome [ée]|me chamo|my name is)\s+([\p{L}][\p{L}'\- ]{1,60})`)
	// "sou a mãe do preso" is not an introduction; these forms need a capitalized name.
	weakIntroPattern = regexp.MustCompile(`(?i)\b(?:eu )?sou [oa]\s+([\p{L}][\p{L}'\- ]{1,60})`)
)

// Words that end a name captured from an introduction ("me chamo Ana Souza e preciso...").
var introStopWords = map[string]bool{
	"e": true, "and": true, "eu": true, "preciso": true, "quero": true, "tenho": true,
	"gostaria": true, "mas": true, "estou": true, "meu": true, "minha": true, "aqui": true,
}

var nameParticles = map[string]bool{
	"de": true, "da": true, "do": true, "das": true, "dos": true, "e": true,
}

var areaVocabularies = []struct {
	area     string
	keywords []string
}{
	{AreaCriminal, []string{
		"penal", "criminal", "crime", "crimes", "delito", "delegacia", "prisao", "preso", "presa",
		"flagrante", "inquerito", "furto", "roubo", "homicidio", "trafico", "habeas corpus",
		"boletim de ocorrencia", "audiencia de custodia", "processo criminal", "defesa criminal",
	}},
	{AreaHealth, []string{
		"saude", "liminar", "liminares", "medica", "medico", "medicamento", "medicamentos",
		"remedio", "plano de saude", "cirurgia", "tratamento", "hospital", "internacao",
		"sus", "convenio", "operadora", "home care", "exame", "exames",
	}},
}

var urgencyKeywords = []string{
	"urgente", "urgencia", "emergencia", "imediato", "imediatamente", "hoje", "agora",
	"preso", "presa", "prisao", "flagrante", "prazo", "amanha", "urgent", "asap",
}

// Extract pulls every recognizable field out of text. It never fails.
func Extract(text string) ExtractedData {
	var out ExtractedData
	out.Phone = ExtractPhone(text)
	out.Email = ExtractEmail(text)
	out.Name, out.NameSource = ExtractName(text)
	out.Area, _ = MatchArea(text)
	out.Urgency = DetectUrgency(text)
	out.Confidence = confidence(out)
	return out
}

// ExtractPhone returns the first Brazilian phone number in text, normalized
// to country code plus national digits, or "".
func ExtractPhone(text string) string {
	for _, candidate := range phonePattern.FindAllString(text, -1) {
		if normalized := phone.ToWhatsApp(candidate); normalized != "" {
			return normalized
		}
	}
	return ""
}

// ExtractEmail returns the first e-mail address in text, lower-cased.
func ExtractEmail(text string) string {
	return strings.ToLower(emailPattern.FindString(text))
}

// ExtractName recognizes a name from an introduction phrase, or from a
// message made only of capitalized words.
func ExtractName(text string) (string, NameSource) {
	if m := introPattern.FindStringSubmatch(text); m != nil {
		if candidate := introName(m[1]); ValidName(candidate) {
			return TitleName(candidate), NameFromIntroduction
		}
	}
	if m := weakIntroPattern.FindStringSubmatch(text); m != nil {
		if candidate := introName(m[1]); looksCapitalized(candidate) && ValidName(candidate) {
			return TitleName(candidate), NameFromIntroduction
		}
	}

	candidate := strings.TrimRight(strings.TrimSpace(text), ".!?,;")
	if looksCapitalized(candidate) && ValidName(candidate) {
		return TitleName(candidate), NameFromHeuristic
	}
	return "", ""
}

// introName cuts the words following an introduction at the first stop
// word and drops trailing particles.
func introName(tail string) string {
	words := make([]string, 0, 4)
	for _, w := range strings.Fields(tail) {
		if introStopWords[strings.ToLower(w)] || len(words) == 6 {
			break
		}
		words = append(words, w)
	}
	for len(words) > 0 && nameParticles[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// ValidName applies the name rule: at least two words, no digits,
// 4 to 50 characters, and at least two words of two or more letters.
func ValidName(value string) bool {
	value = strings.Join(strings.Fields(value), " ")
	length := len([]rune(value))
	if length < nameMinLength || length > nameMaxLength {
		return false
	}

	words := strings.Fields(value)
	if len(words) < 2 {
		return false
	}

	substantial := 0
	for _, w := range words {
		letters := 0
		for _, r := range w {
			switch {
			case unicode.IsDigit(r):
				return false
			case unicode.IsLetter(r):
				letters++
			case r == '\'' || r == '-' || r == '.':
			default:
				return false
			}
		}
		if letters >= 2 {
			substantial++
		}
	}
	return substantial >= 2
}

// TitleName normalizes spacing and casing of a person's name, keeping
// Portuguese particles in lower case.
func TitleName(value string) string {
	caser := cases.Title(language.BrazilianPortuguese)
	words := strings.Fields(value)
	for i, w := range words {
		lower := strings.ToLower(w)
		if i > 0 && nameParticles[lower] {
			words[i] = lower
			continue
		}
		words[i] = caser.String(lower)
	}
	return strings.Join(words, " ")
}

// MatchArea returns the legal area whose vocabulary best matches text.
func MatchArea(text string) (string, bool) {
	folded := foldForMatch(text)
	best, bestHits := "", 0
	for _, vocab := range areaVocabularies {
		hits := 0
		for _, kw := range vocab.keywords {
			if strings.Contains(folded, " "+kw+" ") {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = vocab.area, hits
		}
	}
	return best, bestHits > 0
}

// NormalizeArea maps a stored or free-text area onto its canonical name
// when a keyword matches, and returns the input otherwise.
func NormalizeArea(value string) string {
	if area, ok := MatchArea(value); ok {
		return area
	}
	return strings.TrimSpace(value)
}

// DetectUrgency returns UrgencyHigh when any urgency keyword is present.
func DetectUrgency(text string) string {
	folded := foldForMatch(text)
	for _, kw := range urgencyKeywords {
		if strings.Contains(folded, " "+kw+" ") {
			return UrgencyHigh
		}
	}
	return UrgencyNormal
}

func confidence(d ExtractedData) float64 {
	score := 0.0
	if d.Name != "" {
		score += 0.3
	}
	if d.Phone != "" {
		score += 0.3
	}
	if d.Email != "" {
		score += 0.2
	}
	if d.Area != "" {
		score += 0.2
	}
	return math.Min(1, math.Round(score*100)/100)
}

func looksCapitalized(value string) bool {
	words := strings.Fields(value)
	if len(words) < 2 || len(words) > 6 {
		return false
	}
	for i, w := range words {
		first := []rune(w)[0]
		if unicode.IsUpper(first) {
			continue
		}
		if i > 0 && i < len(words)-1 && nameParticles[strings.ToLower(w)] {
			continue
		}
		return false
	}
	return true
}

// foldForMatch lower-cases, strips accents and replaces punctuation with
// spaces, padding the result so keywords can be matched on word boundaries.
func foldForMatch(text string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, strings.ToLower(text))
	if err != nil {
		stripped = strings.ToLower(text)
	}
	var b strings.Builder
	b.Grow(len(stripped) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}
