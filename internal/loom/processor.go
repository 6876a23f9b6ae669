package loom

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/packages"
)

// Processor drives compilation: parse files, compile each directive, and
// write the generated sources.
type Processor struct {
	suffix   string
	dryRun   bool
	literals LiteralClassifier
}

func NewProcessor(suffix string, dryRun bool, literals LiteralClassifier) *Processor {
	if suffix == "" {
		suffix = defaultSuffix
	}

	return &Processor{
		suffix:   suffix,
		dryRun:   dryRun,
		literals: literals,
	}
}

// ProcessFiles compiles every file's directives, one worker per file. Files
// fail independently: a failing file never blocks the others, and all
// failures are reported together.
func (p *Processor) ProcessFiles(files []string) error {
	eg := &errgroup.Group{}
	eg.SetLimit(runtime.GOMAXPROCS(0))

	errs := make([]error, len(files))
	for i, filename := range files {
		eg.Go(func() error {
			if err := p.processFile(filename); err != nil {
				errs[i] = fmt.Errorf("%s: %w", filename, err)
			}

			return nil
		})
	}

	// Failures land in errs; Wait only synchronizes.
	_ = eg.Wait()

	return multierr.Combine(errs...)
}

func (p *Processor) processFile(filename string) error {
	slog.Debug("processing file", "file", filename)

	parser := NewParser()
	pkg, directives, err := parser.ParseFile(filename)
	if err != nil {
		return fmt.Errorf("parse file: %w", err)
	}

	if len(directives) == 0 {
		return nil
	}

	slog.Info("found wire directives", "file", filename, "count", len(directives))

	assemblies := make([]*Assembly, 0, len(directives))
	for _, d := range directives {
		assembly, err := p.compile(pkg, d)
		if err != nil {
			return fmt.Errorf("assembly %q: %w", d.AssemblyName, err)
		}

		assemblies = append(assemblies, assembly)
	}

	// Render to memory first: a failing assembly must not leave a partial
	// file behind.
	var buf bytes.Buffer
	if err := Generate(&buf, pkg.Name, pkg.PkgPath, assemblies); err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	outputName := p.outputFileName(filename)
	if p.dryRun {
		slog.Info("dry run, printing instead of writing", "output", outputName)
		if _, err := os.Stdout.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}

		return nil
	}

	if err := os.WriteFile(outputName, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outputName, err)
	}

	slog.Info("wrote generated file", "output", outputName)
	return nil
}

// compile runs the pipeline for one directive: analyze, order, extract
// literals, reduce.
func (p *Processor) compile(pkg *packages.Package, d *Directive) (*Assembly, error) {
	analyzer := NewAnalyzer(NewClassifier())
	analysis, err := analyzer.Analyze(d)
	if err != nil {
		return nil, err
	}

	ordered, err := Order(analysis.Factories)
	if err != nil {
		return nil, err
	}

	reducer := NewReducer(p.literals)
	reducer.ExtractLiterals(pkg, analysis.Factories)

	set := reducer.Full(analysis)
	if d.Entry != "" {
		set, err = reducer.Reduce(analysis, d.Entry)
		if err != nil {
			return nil, err
		}
	}

	return &Assembly{
		Analysis: analysis,
		Set:      set,
		Ordered:  ordered,
	}, nil
}

func (p *Processor) outputFileName(filename string) string {
	ext := filepath.Ext(filename)
	return strings.TrimSuffix(filename, ext) + p.suffix + ext
}

// DescribeFiles renders the dependency graph of every directive in the
// given files, either as DOT or as a plain listing.
func (p *Processor) DescribeFiles(w io.Writer, files []string, dot bool) error {
	for _, filename := range files {
		parser := NewParser()
		pkg, directives, err := parser.ParseFile(filename)
		if err != nil {
			return fmt.Errorf("%s: parse file: %w", filename, err)
		}

		for _, d := range directives {
			assembly, err := p.compile(pkg, d)
			if err != nil {
				return fmt.Errorf("%s: assembly %q: %w", filename, d.AssemblyName, err)
			}

			if dot {
				writeDOT(w, assembly)
			} else {
				writeListing(w, assembly)
			}
		}
	}

	return nil
}

// writeDOT renders one assembly as a DOT digraph: factories are boxes,
// externals dashed ellipses, edges point from dependent to dependency.
func writeDOT(w io.Writer, a *Assembly) {
	fmt.Fprintf(w, "digraph %q {\n", a.Analysis.Directive.AssemblyName)

	for _, f := range a.Set.Factories {
		attrs := "shape=box"
		if f.Name == a.Set.Entry {
			attrs += ",penwidth=2"
		}

		fmt.Fprintf(w, "\t%q [%s];\n", f.Name, attrs)
	}
	for _, e := range a.Set.Externals {
		fmt.Fprintf(w, "\t%q [shape=ellipse,style=dashed];\n", e.Name)
	}

	for _, f := range a.Set.Factories {
		for _, param := range f.Params {
			if ref, ok := param.Source.(*RefSource); ok {
				fmt.Fprintf(w, "\t%q -> %q;\n", f.Name, ref.Target)
			}
		}
	}

	fmt.Fprintln(w, "}")
}

// writeListing renders one assembly as an indented listing in construction
// order.
func writeListing(w io.Writer, a *Assembly) {
	fmt.Fprintf(w, "assembly %s\n", a.Analysis.Directive.AssemblyName)

	for _, e := range a.Set.Externals {
		required := "optional"
		if e.Required {
			required = "required"
		}

		fmt.Fprintf(w, "  external %s (%s)\n", e.Name, required)
	}
	for _, cfg := range a.Set.Configs {
		fmt.Fprintf(w, "  config %s\n", cfg.Name)
	}

	emit := make(map[string]struct{}, len(a.Set.Factories))
	for _, f := range a.Set.Factories {
		emit[f.Name] = struct{}{}
	}

	for _, f := range a.Ordered {
		if _, ok := emit[f.Name]; !ok {
			continue
		}

		if f.Transient {
			fmt.Fprintf(w, "  factory %s (transient)\n", f.Name)
		} else {
			fmt.Fprintf(w, "  factory %s\n", f.Name)
		}

		for _, param := range f.Params {
			switch src := param.Source.(type) {
			case *RefSource:
				fmt.Fprintf(w, "    needs %s\n", src.Target)
			case *ConfigSource:
				fmt.Fprintf(w, "    config %s.%s\n", f.Name, src.Config.Name)
			}
		}
	}
}
