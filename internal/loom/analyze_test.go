package loom

import (
	"errors"
	"go/types"
	"testing"
)

func analyzeSpec(t *testing.T, u *typeUniverse, fields []*types.Var, opts ...func(*Directive)) *Analysis {
	t.Helper()

	d := &Directive{
		AssemblyName: "app",
		Spec:         types.NewStruct(fields, nil),
		PackageName:  u.pkg.Name(),
		PackagePath:  u.pkg.Path(),
	}
	for _, opt := range opts {
		opt(d)
	}

	analysis, err := NewAnalyzer(NewClassifier()).Analyze(d)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	return analysis
}

func factoryNames(analysis *Analysis) []string {
	names := make([]string, 0, len(analysis.Factories))
	for _, f := range analysis.Factories {
		names = append(names, f.Name)
	}

	return names
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func TestAnalyzer_Analyze_DeclaredKinds(t *testing.T) {
	t.Parallel()

	u := newTypeUniverse("example.com/app", "app")

	logger := u.iface("Logger")
	database := u.namedStruct("Database")
	u.ctor(database, []*types.Var{u.param("url", types.Typ[types.String])}, true, false)
	options := u.namedStruct("Options",
		u.field("Host", types.Typ[types.String]),
		u.field("Port", types.Typ[types.Int]),
	)

	analysis := analyzeSpec(t, u, []*types.Var{
		u.field("Logger", logger),
		u.field("Database", types.NewPointer(database)),
		u.field("APIKey", types.Typ[types.String]),
		u.field("Options", options),
	})

	if got := factoryNames(analysis); !equalStrings(got, []string{"database"}) {
		t.Errorf("factories = %v, want [database]", got)
	}
	if len(analysis.Externals) != 1 || analysis.Externals[0].Name != "logger" {
		t.Fatalf("externals = %+v, want [logger]", analysis.Externals)
	}
	if !analysis.Externals[0].Required {
		t.Errorf("logger required = false, want true")
	}
	if analysis.Externals[0].Synthesized {
		t.Errorf("logger synthesized = true, want false")
	}

	if len(analysis.Configs) != 2 {
		t.Fatalf("configs = %+v, want [apiKey options]", analysis.Configs)
	}
	if analysis.Configs[0].Name != "apiKey" || analysis.Configs[1].Name != "options" {
		t.Errorf("config names = %s, %s, want apiKey, options", analysis.Configs[0].Name, analysis.Configs[1].Name)
	}
	if len(analysis.Configs[1].Fields) != 2 {
		t.Errorf("options fields = %+v, want [host port]", analysis.Configs[1].Fields)
	}

	database0 := analysis.Factories[0]
	if len(database0.Params) != 1 {
		t.Fatalf("database params = %+v, want [url]", database0.Params)
	}
	src, ok := database0.Params[0].Source.(*ConfigSource)
	if !ok {
		t.Fatalf("database url source = %T, want ConfigSource", database0.Params[0].Source)
	}
	if src.Config.Name != "url" {
		t.Errorf("database config param = %s, want url", src.Config.Name)
	}
}

func TestAnalyzer_Analyze_TransitiveDiscovery(t *testing.T) {
	t.Parallel()

	u := newTypeUniverse("example.com/app", "app")

	logger := u.iface("Logger")
	databaseService := u.namedStruct("DatabaseService")
	userRepository := u.namedStruct("UserRepository")
	userService := u.namedStruct("UserService")
	adminService := u.namedStruct("AdminService")

	u.ctor(databaseService, []*types.Var{u.param("url", types.Typ[types.String])}, true, false)
	u.ctor(userRepository, []*types.Var{u.param("database", types.NewPointer(databaseService))}, true, false)
	u.ctor(userService, []*types.Var{
		u.param("userRepository", types.NewPointer(userRepository)),
		u.param("apiKey", types.Typ[types.String]),
	}, true, false)
	u.ctor(adminService, []*types.Var{
		u.param("logger", logger),
		u.param("userService", types.NewPointer(userService)),
	}, true, false)

	analysis := analyzeSpec(t, u, []*types.Var{
		u.field("Logger", logger),
		u.field("AdminService", types.NewPointer(adminService)),
	})

	want := []string{"adminService", "userService", "userRepository", "databaseService"}
	if got := factoryNames(analysis); !equalStrings(got, want) {
		t.Fatalf("factories = %v, want %v", got, want)
	}

	for i, f := range analysis.Factories {
		wantSynth := i > 0
		if f.Synthesized != wantSynth {
			t.Errorf("factory %s synthesized = %v, want %v", f.Name, f.Synthesized, wantSynth)
		}
	}

	if len(analysis.Externals) != 1 || analysis.Externals[0].Name != "logger" {
		t.Fatalf("externals = %+v, want [logger]", analysis.Externals)
	}

	admin := analysis.Factories[0]
	ref, ok := admin.Params[0].Source.(*RefSource)
	if !ok || ref.Target != "logger" {
		t.Errorf("adminService logger param = %+v, want ref to logger", admin.Params[0].Source)
	}
	ref, ok = admin.Params[1].Source.(*RefSource)
	if !ok || ref.Target != "userService" {
		t.Errorf("adminService userService param = %+v, want ref to userService", admin.Params[1].Source)
	}

	user, ok := analysis.Factory("userService")
	if !ok {
		t.Fatal("userService factory not registered")
	}
	src, ok := user.Params[1].Source.(*ConfigSource)
	if !ok || src.Config.Name != "apiKey" {
		t.Errorf("userService apiKey param = %+v, want config apiKey", user.Params[1].Source)
	}

	db, ok := analysis.Factory("databaseService")
	if !ok {
		t.Fatal("databaseService factory not registered")
	}
	src, ok = db.Params[0].Source.(*ConfigSource)
	if !ok || src.Config.Name != "url" {
		t.Errorf("databaseService url param = %+v, want config url", db.Params[0].Source)
	}
}

func TestAnalyzer_Analyze_Idempotent(t *testing.T) {
	t.Parallel()

	u := newTypeUniverse("example.com/app", "app")

	databaseService := u.namedStruct("DatabaseService")
	userRepository := u.namedStruct("UserRepository")
	u.ctor(databaseService, []*types.Var{u.param("url", types.Typ[types.String])}, true, false)
	u.ctor(userRepository, []*types.Var{u.param("database", types.NewPointer(databaseService))}, true, false)

	fields := func() []*types.Var {
		return []*types.Var{u.field("UserRepository", types.NewPointer(userRepository))}
	}

	first := analyzeSpec(t, u, fields())
	second := analyzeSpec(t, u, fields())

	if !equalStrings(factoryNames(first), factoryNames(second)) {
		t.Errorf("factory order differs across runs: %v vs %v", factoryNames(first), factoryNames(second))
	}
}

func TestAnalyzer_Analyze_SynthesizedExternal(t *testing.T) {
	t.Parallel()

	u := newTypeUniverse("example.com/app", "app")

	notifier := u.iface("Notifier")
	service := u.namedStruct("Service")
	u.ctor(service, []*types.Var{u.param("notifier", notifier)}, true, false)

	analysis := analyzeSpec(t, u, []*types.Var{
		u.field("Service", types.NewPointer(service)),
	})

	if len(analysis.Externals) != 1 {
		t.Fatalf("externals = %+v, want [notifier]", analysis.Externals)
	}

	ext := analysis.Externals[0]
	if ext.Name != "notifier" || !ext.Required || !ext.Synthesized {
		t.Errorf("external = %+v, want required synthesized notifier", ext)
	}

	ref, ok := analysis.Factories[0].Params[0].Source.(*RefSource)
	if !ok || ref.Target != "notifier" {
		t.Errorf("service notifier param = %+v, want ref to notifier", analysis.Factories[0].Params[0].Source)
	}
}

func TestAnalyzer_Analyze_UnresolvedDependency(t *testing.T) {
	t.Parallel()

	u := newTypeUniverse("example.com/app", "app")

	inline := types.NewInterfaceType(nil, nil)
	inline.Complete()

	service := u.namedStruct("Service")
	u.ctor(service, []*types.Var{u.param("w", inline)}, true, false)

	d := &Directive{
		AssemblyName: "app",
		Spec: types.NewStruct([]*types.Var{
			u.field("Service", types.NewPointer(service)),
		}, nil),
	}

	_, err := NewAnalyzer(NewClassifier()).Analyze(d)
	if err == nil {
		t.Fatal("Analyze() error = nil, want UnresolvedDependencyError")
	}

	var unresolved *UnresolvedDependencyError
	if !errors.As(err, &unresolved) {
		t.Fatalf("Analyze() error = %v, want UnresolvedDependencyError", err)
	}
	if unresolved.Provider != "service" || unresolved.Param != "w" {
		t.Errorf("error names %s.%s, want service.w", unresolved.Provider, unresolved.Param)
	}
}

func TestAnalyzer_Analyze_FirstDeclarationWins(t *testing.T) {
	t.Parallel()

	u := newTypeUniverse("example.com/app", "app")

	database := u.namedStruct("Database")
	u.ctor(database, nil, true, false)
	service := u.namedStruct("Service")
	u.ctor(service, []*types.Var{u.param("db", types.NewPointer(database))}, true, false)

	analysis := analyzeSpec(t, u, []*types.Var{
		u.field("Primary", types.NewPointer(database)),
		u.field("Replica", types.NewPointer(database)),
		u.field("Service", types.NewPointer(service)),
	})

	svc, ok := analysis.Factory("service")
	if !ok {
		t.Fatal("service factory not registered")
	}

	ref, ok := svc.Params[0].Source.(*RefSource)
	if !ok || ref.Target != "primary" {
		t.Errorf("service db param = %+v, want ref to primary", svc.Params[0].Source)
	}
}

func TestAnalyzer_Analyze_RecordWithServiceField(t *testing.T) {
	t.Parallel()

	u := newTypeUniverse("example.com/app", "app")

	database := u.namedStruct("Database")
	u.ctor(database, nil, true, false)

	options := u.namedStruct("Options",
		u.field("Timeout", types.Typ[types.Int]),
		u.field("DB", types.NewPointer(database)),
	)

	analysis := analyzeSpec(t, u, []*types.Var{
		u.field("Options", options),
	})

	if len(analysis.Configs) != 1 {
		t.Fatalf("configs = %+v, want [options]", analysis.Configs)
	}

	fields := analysis.Configs[0].Fields
	if len(fields) != 2 {
		t.Fatalf("options fields = %+v, want [timeout db]", fields)
	}
	if fields[0].Name != "timeout" || fields[0].Fields != nil {
		t.Errorf("timeout field = %+v, want plain leaf", fields[0])
	}
	// Service-typed fields inside a record are opaque data, not expansion
	// points.
	if fields[1].Name != "db" || fields[1].Fields != nil {
		t.Errorf("db field = %+v, want plain leaf", fields[1])
	}
}

func TestAnalyzer_Analyze_RecursiveRecord(t *testing.T) {
	t.Parallel()

	u := newTypeUniverse("example.com/app", "app")

	obj := types.NewTypeName(0, u.pkg, "Node", nil)
	node := types.NewNamed(obj, nil, nil)
	node.SetUnderlying(types.NewStruct([]*types.Var{
		u.field("Name", types.Typ[types.String]),
		u.field("Next", types.NewPointer(node)),
	}, nil))
	u.pkg.Scope().Insert(obj)

	analysis := analyzeSpec(t, u, []*types.Var{
		u.field("Root", node),
	})

	fields := analysis.Configs[0].Fields
	if len(fields) != 2 {
		t.Fatalf("node fields = %+v, want [name next]", fields)
	}
	if fields[1].Name != "next" || fields[1].Fields != nil {
		t.Errorf("next field = %+v, want unexpanded self reference", fields[1])
	}
}

func TestAnalyzer_Analyze_TransientOption(t *testing.T) {
	t.Parallel()

	u := newTypeUniverse("example.com/app", "app")

	database := u.namedStruct("Database")
	u.ctor(database, nil, true, false)

	analysis := analyzeSpec(t, u, []*types.Var{
		u.field("Database", types.NewPointer(database)),
	}, func(d *Directive) {
		d.Transients = []string{"database"}
	})

	if !analysis.Factories[0].Transient {
		t.Error("database transient = false, want true")
	}
}

func TestAnalyzer_Analyze_TransientUnknownName(t *testing.T) {
	t.Parallel()

	u := newTypeUniverse("example.com/app", "app")

	database := u.namedStruct("Database")
	u.ctor(database, nil, true, false)

	d := &Directive{
		AssemblyName: "app",
		Spec: types.NewStruct([]*types.Var{
			u.field("Database", types.NewPointer(database)),
		}, nil),
		Transients: []string{"cache"},
	}

	if _, err := NewAnalyzer(NewClassifier()).Analyze(d); err == nil {
		t.Error("Analyze() error = nil, want transient name error")
	}
}
