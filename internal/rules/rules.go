package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var keyPattern = regexp.MustCompile(`^[a-z0-9]+(\|[a-z0-9]+)*$`)

var styleCompilers = map[string]string{
	"css":     "",
	"postcss": "",
	"less":    "less",
	"sass":    "sass",
	"scss":    "sass",
	"stylus":  "stylus",
	"styl":    "stylus",
}

// Apply appends the rule for one registry entry to cfg. A rule whose Test
// pattern is already present is replaced, so re-applying a key never
// duplicates rules. The vue transformer only produces a rule during PassPost;
// every other transformer only during PassMain. Calls on the wrong pass are
// silent no-ops.
func Apply(cfg *Config, key string, tr Transform, settings Settings, pass Pass) error {
	if cfg == nil {
		return ErrNilConfig
	}

	name := strings.ToLower(strings.TrimSpace(tr.Transformer))
	if name == "" {
		return ErrInvalidTransform
	}
	if (name == "vue") != (pass == PassPost) {
		return nil
	}

	test, err := extensionPattern(key)
	if err != nil {
		return err
	}
	settings = settings.withDefaults()

	var rule Rule
	switch {
	case name == "vue":
		rule, err = vueRule(cfg, test, tr, settings)
	case isStyle(name):
		rule, err = styleRule(test, name, tr, settings)
	case name == "babel":
		rule, err = babelRule(test, tr, settings)
	case name == "typescript" || name == "ts" || name == "tsx":
		rule, err = typescriptRule(test, tr, settings)
	case name == "url" || name == "file":
		rule = assetRule(test, name, tr, settings)
	default:
		rule = Rule{
			Test:    test,
			Loaders: []Loader{{Name: loaderName(name), Options: cloneOptions(tr.Options)}},
		}
	}
	if err != nil {
		return err
	}

	upsertRule(&cfg.Module, rule)
	return nil
}

// Synthesize runs the full registry through Apply: a main pass over the keys
// in sorted order, then the deferred post pass.
func Synthesize(transforms map[string]Transform, settings Settings) (Config, error) {
	keys := make([]string, 0, len(transforms))
	for key := range transforms {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var cfg Config
	for _, pass := range []Pass{PassMain, PassPost} {
		for _, key := range keys {
			if err := Apply(&cfg, key, transforms[key], settings, pass); err != nil {
				return Config{}, fmt.Errorf("apply %q: %w", key, err)
			}
		}
	}
	return cfg, nil
}

// ValidateKey reports whether key is a usable extension key: one or more
// lowercase alphanumeric extensions separated by '|', optional leading dots.
func ValidateKey(key string) error {
	_, err := extensionPattern(key)
	return err
}

func isStyle(name string) bool {
	_, ok := styleCompilers[name]
	return ok
}

// extensionPattern builds the rule Test regex for an extension key:
// "css" becomes `\.css$`, "png|jpg" becomes `\.(png|jpg)$`.
func extensionPattern(key string) (string, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(key)), "|")
	for i, part := range parts {
		parts[i] = strings.TrimPrefix(strings.TrimSpace(part), ".")
	}
	normalized := strings.Join(parts, "|")
	if !keyPattern.MatchString(normalized) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if len(parts) == 1 {
		return `\.` + normalized + `$`, nil
	}
	return `\.(` + normalized + `)$`, nil
}

// loaderName normalizes a transformer or loader name to its package form:
// "babel" becomes "babel-loader", an explicit "-loader" suffix is kept.
func loaderName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if strings.HasSuffix(name, "-loader") {
		return name
	}
	return name + "-loader"
}

// excludePattern builds the directory-exclusion regex shared by script rules,
// e.g. `(^|/)(node_modules|bower_components)/`.
func excludePattern(dirs []string) string {
	if len(dirs) == 0 {
		return ""
	}
	quoted := make([]string, len(dirs))
	for i, dir := range dirs {
		quoted[i] = regexp.QuoteMeta(dir)
	}
	return `(^|/)(` + strings.Join(quoted, "|") + `)/`
}

func styleRule(test, name string, tr Transform, settings Settings) (Rule, error) {
	postcss, err := postcssOptions(settings, tr.Options)
	if err != nil {
		return Rule{}, err
	}

	compiler := styleCompilers[name]
	// css-loader must know how many loaders run before it on the chain.
	importLoaders := 1
	if compiler != "" {
		importLoaders = 2
	}

	cssOpts := map[string]any{"importLoaders": importLoaders}
	if compiler == "" {
		// No compiler loader to own the leftover options, css-loader takes them.
		for key, value := range passthroughOptions(tr.Options) {
			cssOpts[key] = value
		}
	}

	loaders := []Loader{
		{Name: "style-loader"},
		{Name: "css-loader", Options: cssOpts},
		{Name: "postcss-loader", Options: postcss},
	}
	if compiler != "" {
		loaders = append(loaders, Loader{Name: loaderName(compiler), Options: passthroughOptions(tr.Options)})
	}

	issuer, err := extensionPattern(strings.Join(settings.ScriptExtensions, "|"))
	if err != nil {
		return Rule{}, fmt.Errorf("script extensions: %w", err)
	}

	return Rule{Test: test, Issuer: issuer, Loaders: loaders}, nil
}

func babelRule(test string, tr Transform, settings Settings) (Rule, error) {
	opts, err := babelOptions(settings, tr.Options)
	if err != nil {
		return Rule{}, err
	}
	return Rule{
		Test:    test,
		Exclude: excludePattern(settings.ExcludeDirs),
		Loaders: []Loader{{Name: "babel-loader", Options: opts}},
	}, nil
}

func typescriptRule(test string, tr Transform, settings Settings) (Rule, error) {
	// Preset and plugin options belong to the babel half of the chain, the
	// rest of the transform options configure ts-loader.
	presets, err := mergeNames(settings.BabelPresets, tr.Options["presets"])
	if err != nil {
		return Rule{}, fmt.Errorf("presets: %w", err)
	}
	plugins, err := mergeNames(settings.BabelPlugins, tr.Options["plugins"])
	if err != nil {
		return Rule{}, fmt.Errorf("plugins: %w", err)
	}

	babel := map[string]any{}
	if len(presets) > 0 {
		babel["presets"] = presets
	}
	if len(plugins) > 0 {
		babel["plugins"] = plugins
	}

	return Rule{
		Test:    test,
		Exclude: excludePattern(settings.ExcludeDirs),
		Loaders: []Loader{
			{Name: "babel-loader", Options: babel},
			{Name: "ts-loader", Options: passthroughOptions(tr.Options)},
		},
	}, nil
}

func assetRule(test, name string, tr Transform, settings Settings) Rule {
	opts := cloneOptions(tr.Options)
	if opts == nil {
		opts = map[string]any{}
	}
	opts["name"] = strings.TrimSuffix(settings.AssetDir, "/") + "/[name].[hash:8].[ext]"
	if name == "url" {
		if _, ok := opts["limit"]; !ok {
			opts["limit"] = settings.InlineLimit
		}
	}
	return Rule{Test: test, Loaders: []Loader{{Name: loaderName(name), Options: opts}}}
}

// vueRule embeds the loader chains already synthesized for scripts and styles
// into the vue-loader "loaders" option, which is why vue waits for PassPost.
func vueRule(cfg *Config, test string, tr Transform, settings Settings) (Rule, error) {
	chains := map[string]any{}
	if chain := chainFor(cfg, "component.js"); chain != "" {
		chains["js"] = chain
	}
	if chain := chainFor(cfg, "component.css"); chain != "" {
		chains["css"] = chain
	}

	// Only the "loaders" key is consumed here, everything else configures
	// vue-loader directly.
	opts := cloneOptions(tr.Options)
	if explicit, ok := tr.Options["loaders"].(map[string]any); ok {
		for lang, chain := range explicit {
			chains[lang] = chain
		}
		delete(opts, "loaders")
	}
	if opts == nil {
		opts = map[string]any{}
	}
	if len(chains) > 0 {
		opts["loaders"] = chains
	}

	return Rule{
		Test:    test,
		Exclude: excludePattern(settings.ExcludeDirs),
		Loaders: []Loader{{Name: "vue-loader", Options: opts}},
	}, nil
}

// chainFor returns the bang-joined loader chain of the first existing rule
// whose Test matches the sample filename, or "" when none matches.
func chainFor(cfg *Config, filename string) string {
	for _, rule := range cfg.Module.Rules {
		re, err := regexp.Compile(rule.Test)
		if err != nil || !re.MatchString(filename) {
			continue
		}
		names := make([]string, len(rule.Loaders))
		for i, loader := range rule.Loaders {
			names[i] = loader.Name
		}
		return strings.Join(names, "!")
	}
	return ""
}

// babelOptions merges the build-wide presets and plugins with the transform's
// own, settings first, duplicates dropped. Remaining option keys pass through.
func babelOptions(settings Settings, opts map[string]any) (map[string]any, error) {
	presets, err := mergeNames(settings.BabelPresets, opts["presets"])
	if err != nil {
		return nil, fmt.Errorf("presets: %w", err)
	}
	plugins, err := mergeNames(settings.BabelPlugins, opts["plugins"])
	if err != nil {
		return nil, fmt.Errorf("plugins: %w", err)
	}

	out := map[string]any{}
	for key, value := range opts {
		if key == "presets" || key == "plugins" {
			continue
		}
		out[key] = value
	}
	if len(presets) > 0 {
		out["presets"] = presets
	}
	if len(plugins) > 0 {
		out["plugins"] = plugins
	}
	return out, nil
}

// postcssOptions merges the build-wide postcss plugins with the transform's
// "plugins" option and defaults sourceMap to the inverse of production mode.
func postcssOptions(settings Settings, opts map[string]any) (map[string]any, error) {
	plugins, err := mergeNames(settings.PostcssPlugins, opts["plugins"])
	if err != nil {
		return nil, fmt.Errorf("plugins: %w", err)
	}

	out := map[string]any{"sourceMap": !settings.Production}
	if sourceMap, ok := opts["sourceMap"]; ok {
		out["sourceMap"] = sourceMap
	}
	if len(plugins) > 0 {
		out["plugins"] = plugins
	}
	return out, nil
}

// mergeNames combines a base name list with a transform option that may be
// a []string or a decoded JSON/YAML []any of strings.
func mergeNames(base []string, extra any) ([]string, error) {
	merged := make([]string, 0, len(base))
	seen := make(map[string]struct{}, len(base))
	add := func(name string) {
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		merged = append(merged, name)
	}

	for _, name := range base {
		add(name)
	}

	switch extras := extra.(type) {
	case nil:
	case []string:
		for _, name := range extras {
			add(name)
		}
	case []any:
		for _, entry := range extras {
			name, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("%w: got %T", ErrInvalidOptions, entry)
			}
			add(name)
		}
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidOptions, extra)
	}

	return merged, nil
}

// passthroughOptions copies the transform options minus the keys consumed by
// the merge helpers.
func passthroughOptions(opts map[string]any) map[string]any {
	if len(opts) == 0 {
		return nil
	}
	out := make(map[string]any, len(opts))
	for key, value := range opts {
		if key == "presets" || key == "plugins" || key == "sourceMap" {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cloneOptions(opts map[string]any) map[string]any {
	if opts == nil {
		return nil
	}
	out := make(map[string]any, len(opts))
	for key, value := range opts {
		out[key] = value
	}
	return out
}

func upsertRule(module *Module, rule Rule) {
	for i, existing := range module.Rules {
		if existing.Test == rule.Test {
			module.Rules[i] = rule
			return
		}
	}
	module.Rules = append(module.Rules, rule)
}
