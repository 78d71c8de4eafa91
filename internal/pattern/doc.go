// Package pattern detects syntactic enforcement patterns in Java sources
// and keeps them in a per-system Repository.
//
// Detection walks every named node of a tree-sitter syntax tree and asks
// each registered Matcher whether a pattern is rooted there:
//
//	detector := pattern.NewDetector(pattern.DefaultRegistry(), logger, cfg.Workers)
//	repo, err := detector.BuildRepository(ctx, "shop", "/src/shop")
//
// The Repository answers membership questions by (type, file, line) and
// exact lookups by constant value and attribute. Repositories are cached in
// storage; Cache.Open reuses a cached repository unless told to ignore it.
//
// Operand definitions are resolved syntactically inside the same file.
// An operand that cannot be resolved simply has no definition.
package pattern
