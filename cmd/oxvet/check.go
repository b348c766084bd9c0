// check.go implements the 'oxvet check' command: module discovery, the
// concurrent file walk, and report printing.
package main

import (
	"flag"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/mod/modfile"
	"golang.org/x/sync/errgroup"
)

// checkConfig holds the parsed 'check' arguments.
type checkConfig struct {
	dir       string
	boundPkgs map[string]bool
	verbose   bool
}

func checkCommand(args []string) {
	cfg, err := parseCheckArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	root, modPath, err := findModule(cfg.dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.verbose {
		fmt.Printf("Checking module %s (%s)\n", modPath, root)
	}

	findings, stats, err := checkModule(root, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, f := range findings {
		fmt.Printf("%s: %s\n", f.pos, f.message)
	}
	if cfg.verbose {
		fmt.Printf("Scanned %d files, %d spawn sites, %d captures checked\n",
			stats.FilesScanned, stats.SpawnSites, stats.CapturesChecked)
	}
	if len(findings) > 0 {
		fmt.Fprintf(os.Stderr, "oxvet: %d thread-boundary violation(s)\n", len(findings))
		os.Exit(1)
	}
}

func parseCheckArgs(args []string) (*checkConfig, error) {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	var pkgs stringList
	fs.Var(&pkgs, "pkg", "additional thread-bound package qualifier (repeatable)")
	verbose := fs.Bool("v", false, "verbose output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &checkConfig{
		dir: ".",
		// rc is the module's own thread-bound package; -pkg extends
		// the set for project-local equivalents.
		boundPkgs: map[string]bool{"rc": true},
		verbose:   *verbose,
	}
	for _, p := range pkgs {
		cfg.boundPkgs[p] = true
	}
	if fs.NArg() > 0 {
		cfg.dir = strings.TrimSuffix(fs.Arg(0), "/...")
		if cfg.dir == "" {
			cfg.dir = "."
		}
	}
	return cfg, nil
}

// stringList implements flag.Value for a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// findModule walks up from dir looking for go.mod and returns the module
// root directory and module path.
func findModule(dir string) (root, modPath string, err error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", "", err
	}
	for cur := abs; ; {
		gomod := filepath.Join(cur, "go.mod")
		data, readErr := os.ReadFile(gomod)
		if readErr == nil {
			f, parseErr := modfile.ParseLax(gomod, data, nil)
			if parseErr != nil {
				return "", "", fmt.Errorf("parsing %s: %w", gomod, parseErr)
			}
			if f.Module == nil {
				return "", "", fmt.Errorf("%s has no module directive", gomod)
			}
			return cur, f.Module.Mod.Path, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", "", fmt.Errorf("no go.mod found in or above %s", abs)
		}
		cur = parent
	}
}

// finding is one reported violation, ordered by position for stable output.
type finding struct {
	pos     token.Position
	message string
}

// checkStats aggregates counters across the concurrent walk.
type checkStats struct {
	FilesScanned    int
	SpawnSites      int
	CapturesChecked int
}

// checkModule parses every Go file under root concurrently and collects
// spawn-capture violations.
func checkModule(root string, cfg *checkConfig) ([]finding, *checkStats, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") ||
				name == "vendor" || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(name, ".go") &&
			!strings.HasPrefix(name, ".") && !strings.HasPrefix(name, "_") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var (
		mu       sync.Mutex
		findings []finding
		stats    checkStats
	)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, path := range files {
		g.Go(func() error {
			fset := token.NewFileSet()
			file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", path, err)
			}
			v := newSpawnVisitor(fset, file, cfg.boundPkgs)
			fs := v.run()

			mu.Lock()
			stats.FilesScanned++
			stats.SpawnSites += v.stats.SpawnSites
			stats.CapturesChecked += v.stats.CapturesChecked
			findings = append(findings, fs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i].pos, findings[j].pos
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return findings, &stats, nil
}
