package rules

// Config is the bundler configuration document being synthesized. Entry and
// Output are carried verbatim so a synthesized config serializes as a complete
// document; only Module.Rules is ever mutated here.
type Config struct {
	Entry  map[string]string `json:"entry,omitempty" yaml:"entry,omitempty"`
	Output *Output           `json:"output,omitempty" yaml:"output,omitempty"`
	Module Module            `json:"module" yaml:"module"`
}

// Output describes where the bundler writes its artifacts.
type Output struct {
	Path       string `json:"path,omitempty" yaml:"path,omitempty"`
	PublicPath string `json:"publicPath,omitempty" yaml:"public_path,omitempty"`
	Filename   string `json:"filename,omitempty" yaml:"filename,omitempty"`
}

// Module holds the rule list of a bundler configuration.
type Module struct {
	Rules []Rule `json:"rules" yaml:"rules"`
}

// Rule matches a file type and wires a chain of content loaders to it.
// Test, Issuer, and Exclude are regular-expression sources.
type Rule struct {
	Test    string   `json:"test" yaml:"test"`
	Issuer  string   `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	Exclude string   `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	Loaders []Loader `json:"loaders" yaml:"loaders"`
}

// Loader is one entry in a rule's loader chain.
type Loader struct {
	Name    string         `json:"loader" yaml:"loader"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// Transform is one declarative registry entry: which transformer handles a
// file-extension key and with what options.
type Transform struct {
	Transformer string         `json:"transformer" yaml:"transformer"`
	Options     map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// Pass selects which half of the synthesis a call participates in. The vue
// transformer is deferred to PassPost because its rule embeds loader chains
// looked up from rules produced during PassMain.
type Pass int

const (
	// PassMain handles every transformer except vue.
	PassMain Pass = iota
	// PassPost handles only vue.
	PassPost
)

// Synthesizer turns a whole transform registry into a bundler configuration.
type Synthesizer interface {
	Synthesize(transforms map[string]Transform, settings Settings) (Config, error)
}

type engine struct{}

// New creates a Synthesizer backed by the pure Apply function.
func New() Synthesizer {
	return &engine{}
}

func (e *engine) Synthesize(transforms map[string]Transform, settings Settings) (Config, error) {
	return Synthesize(transforms, settings)
}
