// Package extract derives semantic context from free-form prompt text:
// tech stack, entities, key decisions, topics, and the weighted
// improvement context consumed by the prompt-enhancement step.
//
// All recognition tables are kept as data rather than code so they can be
// audited and tuned in one place.
package extract

import "regexp"

// TechPattern maps a canonical technology name to its detection patterns.
// Detection is case-insensitive; the first matching pattern claims the
// technology. Table order is preserved in results.
type TechPattern struct {
	Name     string
	Patterns []*regexp.Regexp
}

func rx(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + expr)
}

// techStackTable covers languages, frameworks, data stores, tools, clouds,
// state libraries, test libraries, and API styles.
var techStackTable = []TechPattern{
	// Languages.
	{"TypeScript", []*regexp.Regexp{rx(`\btypescript\b`), rx(`\.tsx?\b`)}},
	{"JavaScript", []*regexp.Regexp{rx(`\bjavascript\b`), rx(`\.jsx?\b`), rx(`\bnode(?:\.?js)?\b`)}},
	{"Python", []*regexp.Regexp{rx(`\bpython\b`), rx(`\.py\b`), rx(`\bdjango\b`), rx(`\bflask\b`)}},
	{"Go", []*regexp.Regexp{rx(`\bgolang\b`), rx(`\.go\b`), rx(`\bgoroutine\b`)}},
	{"Rust", []*regexp.Regexp{rx(`\brust\b`), rx(`\.rs\b`), rx(`\bcargo\b`)}},
	{"Java", []*regexp.Regexp{rx(`\bjava\b`), rx(`\bspring\s*boot\b`)}},
	{"Ruby", []*regexp.Regexp{rx(`\bruby\b`), rx(`\brails\b`)}},
	// Frameworks.
	{"React", []*regexp.Regexp{rx(`\breact\b`), rx(`\bjsx\b`), rx(`\buse(?:state|effect|memo|callback)\b`)}},
	{"Next.js", []*regexp.Regexp{rx(`\bnext\.?js\b`), rx(`\bapp router\b`)}},
	{"Vue", []*regexp.Regexp{rx(`\bvue(?:\.?js)?\b`), rx(`\bnuxt\b`)}},
	{"Angular", []*regexp.Regexp{rx(`\bangular\b`)}},
	{"Svelte", []*regexp.Regexp{rx(`\bsvelte\b`)}},
	{"Express", []*regexp.Regexp{rx(`\bexpress(?:\.?js)?\b`)}},
	// Data stores.
	{"PostgreSQL", []*regexp.Regexp{rx(`\bpostgres(?:ql)?\b`), rx(`\bpsql\b`)}},
	{"MySQL", []*regexp.Regexp{rx(`\bmysql\b`)}},
	{"SQLite", []*regexp.Regexp{rx(`\bsqlite\b`)}},
	{"MongoDB", []*regexp.Regexp{rx(`\bmongo(?:db)?\b`)}},
	{"Redis", []*regexp.Regexp{rx(`\bredis\b`)}},
	// Tools.
	{"Docker", []*regexp.Regexp{rx(`\bdocker\b`), rx(`\bcontainer(?:ize)?\b`)}},
	{"Kubernetes", []*regexp.Regexp{rx(`\bkubernetes\b`), rx(`\bk8s\b`)}},
	{"Git", []*regexp.Regexp{rx(`\bgit\b`), rx(`\bbranch\b.*\bmerge\b`)}},
	{"Webpack", []*regexp.Regexp{rx(`\bwebpack\b`)}},
	{"Vite", []*regexp.Regexp{rx(`\bvite\b`)}},
	// Clouds.
	{"AWS", []*regexp.Regexp{rx(`\baws\b`), rx(`\bs3\b`), rx(`\blambda\b`), rx(`\bdynamodb\b`)}},
	{"GCP", []*regexp.Regexp{rx(`\bgcp\b`), rx(`\bgoogle cloud\b`), rx(`\bfirestore\b`)}},
	{"Azure", []*regexp.Regexp{rx(`\bazure\b`)}},
	{"Vercel", []*regexp.Regexp{rx(`\bvercel\b`)}},
	// State libraries.
	{"Redux", []*regexp.Regexp{rx(`\bredux\b`)}},
	{"Zustand", []*regexp.Regexp{rx(`\bzustand\b`)}},
	// Test libraries.
	{"Jest", []*regexp.Regexp{rx(`\bjest\b`)}},
	{"Vitest", []*regexp.Regexp{rx(`\bvitest\b`)}},
	{"Playwright", []*regexp.Regexp{rx(`\bplaywright\b`)}},
	{"Cypress", []*regexp.Regexp{rx(`\bcypress\b`)}},
	// API styles.
	{"GraphQL", []*regexp.Regexp{rx(`\bgraphql\b`), rx(`\bapollo\b`)}},
	{"REST", []*regexp.Regexp{rx(`\brest(?:ful)?\s+api\b`), rx(`\bendpoint\b`)}},
	{"gRPC", []*regexp.Regexp{rx(`\bgrpc\b`), rx(`\bprotobuf\b`)}},
	{"WebSocket", []*regexp.Regexp{rx(`\bwebsockets?\b`), rx(`\bsocket\.io\b`)}},
}

// Entity recognition families. Each produces (name, type) pairs.
var (
	fileEntityRe = regexp.MustCompile(`\b([\w./-]+\.(?:tsx|ts|jsx|js|go|py|rs|java|rb|css|scss|html|json|yaml|yml|md|sql|sh))\b`)

	componentEntityRe = regexp.MustCompile(`\b([A-Z][A-Za-z0-9]+)\s+component\b`)

	functionEntityRe = regexp.MustCompile(`\b([a-z][A-Za-z0-9]*)\s*\(\s*\)`)

	hookEntityRe = regexp.MustCompile(`\b(use[A-Z][A-Za-z0-9]*)\b`)

	classEntityRe = regexp.MustCompile(`\bclass\s+([A-Z][A-Za-z0-9]*)\b|\b([A-Z][A-Za-z0-9]+)\s+class\b`)
)

// componentStoplist discards common English words the component pattern
// would otherwise pick up.
var componentStoplist = map[string]bool{
	"The": true, "This": true, "That": true, "These": true, "Those": true,
	"There": true, "Then": true, "When": true, "Where": true, "What": true,
	"Which": true, "While": true, "With": true, "Also": true, "Just": true,
	"Please": true, "Maybe": true, "Some": true, "Each": true, "Every": true,
	"First": true, "Second": true, "Next": true, "Last": true, "New": true,
	"Main": true, "Same": true, "Other": true, "Another": true,
}

// Decision cue patterns. The first capture group is the decision subject.
var decisionPatterns = []*regexp.Regexp{
	rx(`\bi(?:'|w[io]u)?ll use\s+([^.!?\n]+)`),
	rx(`\bgoing with\s+([^.!?\n]+)`),
	rx(`\bswitch(?:ed|ing)? to\s+([^.!?\n]+)`),
	rx(`\buse\s+([\w.-]+\s+for\s+[^.!?\n]+)`),
}

// Importance keyword tiers for decisions. High subjects touch structure
// or safety; low subjects are cosmetic; everything else is medium.
var (
	highImportanceWords = []string{"architecture", "database", "security", "auth", "api", "migrate"}
	lowImportanceWords  = []string{"style", "format", "rename", "comment"}
)

// topicTable is the fixed 30-term topic list counted across prompt text.
var topicTable = []string{
	"authentication", "authorization", "database", "migration", "api",
	"testing", "debugging", "refactoring", "performance", "caching",
	"deployment", "styling", "routing", "validation", "error handling",
	"logging", "security", "state management", "pagination", "search",
	"websocket", "configuration", "documentation", "optimization",
	"integration", "accessibility", "responsive", "animation", "form",
	"component",
}
