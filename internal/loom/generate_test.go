package loom

import (
	"bytes"
	"go/parser"
	"go/token"
	"go/types"
	"regexp"
	"strings"
	"testing"
)

func buildAssembly(t *testing.T, analysis *Analysis, entry string) *Assembly {
	t.Helper()

	ordered, err := Order(analysis.Factories)
	if err != nil {
		t.Fatalf("Order() error = %v", err)
	}

	r := NewReducer(nil)
	set := r.Full(analysis)
	if entry != "" {
		if set, err = r.Reduce(analysis, entry); err != nil {
			t.Fatalf("Reduce() error = %v", err)
		}
	}

	return &Assembly{Analysis: analysis, Set: set, Ordered: ordered}
}

// render generates source for the given assemblies and checks it is
// syntactically valid Go before handing it to assertions.
func render(t *testing.T, pkgName, pkgPath string, assemblies ...*Assembly) string {
	t.Helper()

	var buf bytes.Buffer
	if err := Generate(&buf, pkgName, pkgPath, assemblies); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	src := buf.String()
	if _, err := parser.ParseFile(token.NewFileSet(), "generated.go", src, 0); err != nil {
		t.Fatalf("generated source does not parse: %v\n%s", err, src)
	}

	return src
}

func wantContains(t *testing.T, src, substr string) {
	t.Helper()

	if !strings.Contains(src, substr) {
		t.Errorf("generated source missing %q\n%s", substr, src)
	}
}

func wantMatch(t *testing.T, src, pattern string) {
	t.Helper()

	if !regexp.MustCompile(pattern).MatchString(src) {
		t.Errorf("generated source does not match %q\n%s", pattern, src)
	}
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	u := newTypeUniverse("example.com/app", "app")

	logger := u.iface("Logger")
	database := u.namedStruct("Database")
	u.ctor(database, []*types.Var{u.param("url", types.Typ[types.String])}, true, false)
	userRepository := u.namedStruct("UserRepository")
	u.ctor(userRepository, []*types.Var{u.param("database", types.NewPointer(database))}, true, false)
	userService := u.namedStruct("UserService")
	u.ctor(userService, []*types.Var{
		u.param("repo", types.NewPointer(userRepository)),
		u.param("logger", logger),
		u.param("apiKey", types.Typ[types.String]),
	}, true, false)

	analysis := analyzeSpec(t, u, []*types.Var{
		u.field("Logger", logger),
		u.field("Database", types.NewPointer(database)),
		u.field("UserService", types.NewPointer(userService)),
	})

	src := render(t, "app", "example.com/app", buildAssembly(t, analysis, ""))

	if !strings.HasPrefix(src, generatedHeader) {
		t.Errorf("generated source does not start with the header\n%s", src)
	}
	wantContains(t, src, `"github.com/loomwire/loom"`)

	// Config schema: one section per factory with config parameters, in
	// analysis order, using exported field names.
	wantContains(t, src, "type AppConfig struct")
	wantMatch(t, src, `Database struct \{\s+URL\s+string`)
	wantMatch(t, src, `UserService struct \{\s+APIKey\s+string`)

	// Providers schema: externals as values, factories as overrides.
	wantContains(t, src, "type AppProviders struct")
	wantMatch(t, src, `Logger\s+Logger`)
	wantMatch(t, src, `Database\s+func\(\*loom\.Container\) \(\*Database, error\)`)
	wantMatch(t, src, `UserRepository\s+func\(\*loom\.Container\) \(\*UserRepository, error\)`)

	wantContains(t, src, "func NewAppContainer(config AppConfig, providers AppProviders) *loom.Container")
	wantContains(t, src, `loom.ProvideValue(c, "logger", providers.Logger)`)
	wantContains(t, src, "NewDatabase(config.Database.URL)")
	wantContains(t, src, `loom.Get[*Database](c, "database")`)
	wantContains(t, src, "NewUserService(userRepository, logger, config.UserService.APIKey)")

	// Registration follows construction order.
	dbAt := strings.Index(src, `loom.Provide(c, "database"`)
	repoAt := strings.Index(src, `loom.Provide(c, "userRepository"`)
	svcAt := strings.Index(src, `loom.Provide(c, "userService"`)
	if dbAt < 0 || repoAt < 0 || svcAt < 0 || !(dbAt < repoAt && repoAt < svcAt) {
		t.Errorf("registration order = %d, %d, %d, want database < userRepository < userService\n%s",
			dbAt, repoAt, svcAt, src)
	}

	// Overrides re-register after the generated closures.
	wantContains(t, src, "if providers.Database != nil {")
	overrideAt := strings.Index(src, `loom.Provide(c, "database", providers.Database)`)
	if overrideAt < svcAt {
		t.Errorf("override at %d before generated closures at %d\n%s", overrideAt, svcAt, src)
	}
}

func TestGenerate_OptionalExternalAndTransient(t *testing.T) {
	t.Parallel()

	u := newTypeUniverse("example.com/app", "app")

	logger := u.iface("Logger")
	service := u.namedStruct("Service")
	u.ctor(service, []*types.Var{u.param("logger", logger)}, true, false)

	analysis := analyzeSpec(t, u, []*types.Var{
		u.field("Logger", types.NewPointer(logger)),
		u.field("Service", types.NewPointer(service)),
	}, func(d *Directive) {
		d.Transients = []string{"service"}
	})

	src := render(t, "app", "example.com/app", buildAssembly(t, analysis, ""))

	// An optional external registers only when the caller supplied one.
	wantMatch(t, src, `if providers\.Logger != nil \{\s+loom\.ProvideValue\(c, "logger", providers\.Logger\)`)
	wantContains(t, src, `loom.ProvideTransient(c, "service"`)
}

func TestGenerate_ValueSemantics(t *testing.T) {
	t.Parallel()

	u := newTypeUniverse("example.com/app", "app")

	cache := u.namedStruct("Cache")
	u.ctor(cache, nil, false, false)
	report := u.namedStruct("Report")
	u.ctor(report, []*types.Var{u.param("cache", types.NewPointer(cache))}, false, true)

	database := u.namedStruct("Database")
	u.ctor(database, nil, true, false)
	viewer := u.namedStruct("Viewer")
	u.ctor(viewer, []*types.Var{u.param("db", database)}, true, false)

	analysis := analyzeSpec(t, u, []*types.Var{
		u.field("Cache", cache),
		u.field("Report", report),
		u.field("Database", types.NewPointer(database)),
		u.field("Viewer", types.NewPointer(viewer)),
	})

	src := render(t, "app", "example.com/app", buildAssembly(t, analysis, ""))

	// Value-result closures return a composite zero on resolution failure.
	wantContains(t, src, `loom.Get[Cache](c, "cache")`)
	wantContains(t, src, "return Report{}, err")

	// The produced value is adapted to the parameter's pointerness.
	wantContains(t, src, "NewReport(&cache)")
	wantContains(t, src, "NewViewer(*database)")

	// Error-returning constructors pass their results straight through.
	wantContains(t, src, "return NewReport(&cache)\n")
	wantContains(t, src, "return NewCache(), nil")
}

func TestGenerate_CrossPackageTypes(t *testing.T) {
	t.Parallel()

	store := newTypeUniverse("example.com/store", "store")
	database := store.namedStruct("Database")
	store.ctor(database, []*types.Var{store.param("url", types.Typ[types.String])}, true, false)

	app := newTypeUniverse("example.com/app", "app")

	analysis := analyzeSpec(t, app, []*types.Var{
		app.field("Database", types.NewPointer(database)),
	})

	src := render(t, "app", "example.com/app", buildAssembly(t, analysis, ""))

	wantContains(t, src, `"example.com/store"`)
	wantContains(t, src, "(*store.Database, error)")
	wantContains(t, src, "store.NewDatabase(config.Database.URL)")
}

func TestGenerate_EntryReduction(t *testing.T) {
	t.Parallel()

	u := newTypeUniverse("example.com/app", "app")

	database := u.namedStruct("Database")
	u.ctor(database, nil, true, false)
	emailService := u.namedStruct("EmailService")
	u.ctor(emailService, nil, true, false)
	userService := u.namedStruct("UserService")
	u.ctor(userService, []*types.Var{u.param("db", types.NewPointer(database))}, true, false)

	analysis := analyzeSpec(t, u, []*types.Var{
		u.field("Database", types.NewPointer(database)),
		u.field("EmailService", types.NewPointer(emailService)),
		u.field("UserService", types.NewPointer(userService)),
	})

	src := render(t, "app", "example.com/app", buildAssembly(t, analysis, "userService"))

	wantContains(t, src, `loom.Provide(c, "database"`)
	wantContains(t, src, `loom.Provide(c, "userService"`)
	if strings.Contains(src, "emailService") || strings.Contains(src, "EmailService") {
		t.Errorf("generated source mentions the unreachable provider\n%s", src)
	}
}

func TestGenerate_MultipleAssemblies(t *testing.T) {
	t.Parallel()

	u := newTypeUniverse("example.com/app", "app")

	database := u.namedStruct("Database")
	u.ctor(database, nil, true, false)
	worker := u.namedStruct("Worker")
	u.ctor(worker, nil, true, false)

	appAnalysis := analyzeSpec(t, u, []*types.Var{
		u.field("Database", types.NewPointer(database)),
	})
	workerAnalysis := analyzeSpec(t, u, []*types.Var{
		u.field("Worker", types.NewPointer(worker)),
	}, func(d *Directive) {
		d.AssemblyName = "worker"
	})

	src := render(t, "app", "example.com/app",
		buildAssembly(t, appAnalysis, ""),
		buildAssembly(t, workerAnalysis, ""),
	)

	wantContains(t, src, "func NewAppContainer(")
	wantContains(t, src, "func NewWorkerContainer(")
	if got := strings.Count(src, "import ("); got != 1 {
		t.Errorf("import blocks = %d, want 1\n%s", got, src)
	}
}

func TestGenerate_DuplicateAssemblyName(t *testing.T) {
	t.Parallel()

	u := newTypeUniverse("example.com/app", "app")

	database := u.namedStruct("Database")
	u.ctor(database, nil, true, false)

	analysis := analyzeSpec(t, u, []*types.Var{
		u.field("Database", types.NewPointer(database)),
	})

	var buf bytes.Buffer
	err := Generate(&buf, "app", "example.com/app", []*Assembly{
		buildAssembly(t, analysis, ""),
		buildAssembly(t, analysis, ""),
	})
	if err == nil {
		t.Fatal("Generate() error = nil, want duplicate name error")
	}
	if want := `duplicate assembly name "app"`; err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}
