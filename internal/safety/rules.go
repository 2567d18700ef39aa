package safety

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

const rulesEnv = "SAFETY_RULES_YAML"

//go:embed rules.yaml
var rulesFS embed.FS

// Rules are the word and pattern lists behind the safety screens. They ship
// embedded in the binary; SAFETY_RULES_YAML may point at a replacement file.
type Rules struct {
	InjectionPatterns   []*regexp.Regexp
	InstructionKeywords []string
	HedgeTerms          []string
	MedicalKeywords     []string
	UnsafePhrases       []string
}

type yamlRules struct {
	Ruleset   string `yaml:"ruleset"`
	Version   int    `yaml:"version"`
	Injection struct {
		Patterns            []string `yaml:"patterns"`
		InstructionKeywords []string `yaml:"instruction_keywords"`
	} `yaml:"injection"`
	Confidence struct {
		HedgeTerms []string `yaml:"hedge_terms"`
	} `yaml:"confidence"`
	Content struct {
		MedicalKeywords []string `yaml:"medical_keywords"`
		UnsafePhrases   []string `yaml:"unsafe_phrases"`
	} `yaml:"content"`
}

// fallback lists used when the YAML is missing or invalid
var fallbackInjectionPatterns = []string{
	`ignore\s+(previous|above|all)\s+instructions`,
	`disregard\s+(previous|above|all)`,
	`forget\s+(previous|above|all)`,
	`system\s*[:>]`,
	`<\|.*?\|>`,
	`act\s+as\s+a\s+different`,
	`pretend\s+you\s+are`,
	`you\s+are\s+now`,
	`new\s+instructions`,
}

var fallbackInstructionKeywords = []string{"print", "output", "show", "reveal", "tell", "execute", "run"}

var fallbackHedgeTerms = []string{"maybe", "perhaps", "might", "possibly", "unclear", "unsure"}

var fallbackMedicalKeywords = []string{"patient", "diagnosis", "treatment", "medication", "dose", "therapy", "clinical", "symptom", "disease"}

var fallbackUnsafePhrases = []string{
	"you should take",
	"you should stop taking",
	"discontinue your medication",
	"don't see a doctor",
	"instead of seeing a doctor",
}

var compiledFallback = &Rules{
	InjectionPatterns:   mustCompileAll(fallbackInjectionPatterns),
	InstructionKeywords: fallbackInstructionKeywords,
	HedgeTerms:          fallbackHedgeTerms,
	MedicalKeywords:     fallbackMedicalKeywords,
	UnsafePhrases:       fallbackUnsafePhrases,
}

var rulesOnce sync.Once
var rulesCache *Rules
var rulesErr error

func currentRules(log *logger.Logger) *Rules {
	rulesOnce.Do(func() {
		rulesCache, rulesErr = loadRules()
	})
	if rulesErr != nil {
		if log != nil {
			log.Warn("safety: rules load failed; using compiled defaults", "error", rulesErr)
		}
		return compiledFallback
	}
	return rulesCache
}

func loadRules() (*Rules, error) {
	data, err := readRulesFile()
	if err != nil {
		return nil, err
	}
	return parseRules(data)
}

func readRulesFile() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(rulesEnv)); path != "" {
		return os.ReadFile(path)
	}
	return rulesFS.ReadFile("rules.yaml")
}

func parseRules(data []byte) (*Rules, error) {
	var spec yamlRules
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	if err := validateRules(&spec); err != nil {
		return nil, err
	}

	patterns := make([]*regexp.Regexp, 0, len(spec.Injection.Patterns))
	for _, raw := range spec.Injection.Patterns {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("injection pattern %q: %w", raw, err)
		}
		patterns = append(patterns, re)
	}

	return &Rules{
		InjectionPatterns:   patterns,
		InstructionKeywords: cleanList(spec.Injection.InstructionKeywords),
		HedgeTerms:          cleanList(spec.Confidence.HedgeTerms),
		MedicalKeywords:     cleanList(spec.Content.MedicalKeywords),
		UnsafePhrases:       cleanList(spec.Content.UnsafePhrases),
	}, nil
}

func validateRules(spec *yamlRules) error {
	if spec == nil {
		return errors.New("missing rules")
	}
	if strings.TrimSpace(spec.Ruleset) != "clinical_safety" {
		return fmt.Errorf("unexpected ruleset: %s", spec.Ruleset)
	}
	if len(spec.Injection.Patterns) == 0 {
		return errors.New("no injection patterns defined")
	}
	if len(cleanList(spec.Injection.InstructionKeywords)) == 0 {
		return errors.New("no instruction keywords defined")
	}
	if len(cleanList(spec.Confidence.HedgeTerms)) == 0 {
		return errors.New("no hedge terms defined")
	}
	if len(cleanList(spec.Content.MedicalKeywords)) == 0 {
		return errors.New("no medical keywords defined")
	}
	if len(cleanList(spec.Content.UnsafePhrases)) == 0 {
		return errors.New("no unsafe phrases defined")
	}
	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func mustCompileAll(raw []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(raw))
	for _, r := range raw {
		out = append(out, regexp.MustCompile(r))
	}
	return out
}
