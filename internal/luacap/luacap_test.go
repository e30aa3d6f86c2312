package luacap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

const greeterScript = `
function describe()
  return {
    name = "greeter",
    description = "Say hello",
    actions = { "greet", "shout" },
  }
end

function handle(action, params, content)
  local name = params.who or "world"
  if action == "shout" then
    return string.upper("hello " .. name), nil
  end
  if action == "greet" then
    return "hello " .. name, nil
  end
  return nil, "unknown action: " .. action
end
`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndHandle(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "greeter.lua", greeterScript)

	desc, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if desc.Name != "greeter" {
		t.Errorf("name = %q", desc.Name)
	}
	if len(desc.SupportedActions) != 2 {
		t.Errorf("actions = %v", desc.SupportedActions)
	}

	out, err := desc.Handler(context.Background(), map[string]any{"action": "greet", "who": "artie"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello artie" {
		t.Errorf("greet = %q", out)
	}

	out, err = desc.Handler(context.Background(), map[string]any{"action": "shout", "who": "artie"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if out != "HELLO ARTIE" {
		t.Errorf("shout = %q", out)
	}
}

func TestScriptErrorsSurfaceAsHandlerErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "greeter.lua", greeterScript)

	desc, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := desc.Handler(context.Background(), map[string]any{"action": "explode"}, ""); err == nil {
		t.Error("expected the script's error return to surface")
	}
}

func TestLoadDirSkipsBrokenScripts(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "good.lua", greeterScript)
	writeScript(t, dir, "broken.lua", `this is not lua at all (`)
	writeScript(t, dir, "nometa.lua", `function handle(a, p, c) return "x", nil end`)
	writeScript(t, dir, "notes.txt", `ignore me`)

	descs, err := LoadDir(dir, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 1 || descs[0].Name != "greeter" {
		t.Errorf("loaded = %+v, want just the greeter", descs)
	}
}

func TestLoadDirMissingDirIsEmpty(t *testing.T) {
	descs, err := LoadDir(filepath.Join(t.TempDir(), "nope"), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 0 {
		t.Errorf("loaded = %d, want 0", len(descs))
	}
}
