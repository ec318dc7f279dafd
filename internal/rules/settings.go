package rules

const defaultInlineLimit = 8192

var (
	defaultExcludeDirs      = []string{"node_modules", "bower_components"}
	defaultBabelPresets     = []string{"env"}
	defaultPostcssPlugins   = []string{"autoprefixer"}
	defaultScriptExtensions = []string{"js", "jsx", "ts", "tsx", "vue"}
)

// Settings carries the build-wide knobs that shape synthesized rules.
// Zero-value fields fall back to the defaults returned by DefaultSettings.
type Settings struct {
	ExcludeDirs      []string `json:"excludeDirs,omitempty" yaml:"exclude_dirs"`
	BabelPresets     []string `json:"babelPresets,omitempty" yaml:"babel_presets"`
	BabelPlugins     []string `json:"babelPlugins,omitempty" yaml:"babel_plugins"`
	PostcssPlugins   []string `json:"postcssPlugins,omitempty" yaml:"postcss_plugins"`
	AssetDir         string   `json:"assetDir,omitempty" yaml:"asset_dir"`
	InlineLimit      int      `json:"inlineLimit,omitempty" yaml:"inline_limit"`
	ScriptExtensions []string `json:"scriptExtensions,omitempty" yaml:"script_extensions"`
	Production       bool     `json:"production" yaml:"production"`
}

// DefaultSettings returns the settings used when a field is left unset.
func DefaultSettings() Settings {
	return Settings{
		ExcludeDirs:      cloneStrings(defaultExcludeDirs),
		BabelPresets:     cloneStrings(defaultBabelPresets),
		PostcssPlugins:   cloneStrings(defaultPostcssPlugins),
		AssetDir:         "static",
		InlineLimit:      defaultInlineLimit,
		ScriptExtensions: cloneStrings(defaultScriptExtensions),
	}
}

// withDefaults fills unset fields so the dispatch code never has to re-check.
func (s Settings) withDefaults() Settings {
	if s.ExcludeDirs == nil {
		s.ExcludeDirs = cloneStrings(defaultExcludeDirs)
	}
	if s.BabelPresets == nil {
		s.BabelPresets = cloneStrings(defaultBabelPresets)
	}
	if s.PostcssPlugins == nil {
		s.PostcssPlugins = cloneStrings(defaultPostcssPlugins)
	}
	if s.AssetDir == "" {
		s.AssetDir = "static"
	}
	if s.InlineLimit <= 0 {
		s.InlineLimit = defaultInlineLimit
	}
	if len(s.ScriptExtensions) == 0 {
		s.ScriptExtensions = cloneStrings(defaultScriptExtensions)
	}
	return s
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}
