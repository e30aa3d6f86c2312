// Package luacap loads capabilities written as Lua scripts. A script defines
// describe(), returning the capability's metadata, and handle(action, params,
// content), returning the output string. Operators drop scripts into the
// capabilities directory to extend the assistant without recompiling.
//
// required_params in describe() is enforced before handle() runs; a script
// that accepts a value via the tag body must not also declare it required.
package luacap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/room302studio/coachartie2-sub006/internal/capability"
)

// LoadDir parses every *.lua file in dir into a capability descriptor.
// A script that fails to load is logged and skipped; it never takes the
// host down.
func LoadDir(dir string, log zerolog.Logger) ([]capability.Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading capability scripts: %w", err)
	}

	var out []capability.Descriptor
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lua") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		desc, err := Load(path)
		if err != nil {
			log.Warn().Err(err).Str("script", path).Msg("skipping capability script")
			continue
		}
		log.Info().Str("capability", desc.Name).Str("script", path).Msg("loaded scripted capability")
		out = append(out, desc)
	}
	return out, nil
}

// Load builds one capability descriptor from the script at path. describe()
// runs once at load time; handle() runs in a fresh interpreter per call so
// scripts can't leak state between invocations.
func Load(path string) (capability.Descriptor, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return capability.Descriptor{}, fmt.Errorf("script path: %w", err)
	}

	ls := lua.NewState()
	defer ls.Close()
	ls.PreloadModule("os", osModuleLoader)

	if err := ls.DoFile(absPath); err != nil {
		return capability.Descriptor{}, fmt.Errorf("load script: %w", err)
	}

	meta, err := callDescribe(ls)
	if err != nil {
		return capability.Descriptor{}, err
	}
	if ls.GetGlobal("handle").Type() != lua.LTFunction {
		return capability.Descriptor{}, fmt.Errorf("script must define global function handle(action, params, content)")
	}

	meta.Handler = func(ctx context.Context, params map[string]any, content string) (string, error) {
		return runHandle(ctx, absPath, params, content)
	}
	return meta, nil
}

func callDescribe(ls *lua.LState) (capability.Descriptor, error) {
	fn := ls.GetGlobal("describe")
	if fn.Type() != lua.LTFunction {
		return capability.Descriptor{}, fmt.Errorf("script must define global function describe()")
	}
	ls.Push(fn)
	if err := ls.PCall(0, 1, nil); err != nil {
		return capability.Descriptor{}, fmt.Errorf("describe(): %w", err)
	}
	ret := ls.Get(-1)
	ls.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return capability.Descriptor{}, fmt.Errorf("describe() must return a table, got %s", ret.Type().String())
	}

	var d capability.Descriptor
	tbl.ForEach(func(k, v lua.LValue) {
		switch k.String() {
		case "name":
			d.Name = v.String()
		case "description":
			d.Description = v.String()
		case "actions":
			if t, ok := v.(*lua.LTable); ok {
				t.ForEach(func(_, av lua.LValue) {
					d.SupportedActions = append(d.SupportedActions, av.String())
				})
			}
		case "required_params":
			if t, ok := v.(*lua.LTable); ok {
				t.ForEach(func(_, pv lua.LValue) {
					d.RequiredParams = append(d.RequiredParams, pv.String())
				})
			}
		}
	})
	if d.Name == "" {
		return capability.Descriptor{}, fmt.Errorf("describe() must set a name")
	}
	if len(d.SupportedActions) == 0 {
		return capability.Descriptor{}, fmt.Errorf("describe() must list at least one action")
	}
	return d, nil
}

func runHandle(ctx context.Context, absPath string, params map[string]any, content string) (string, error) {
	ls := lua.NewState()
	defer ls.Close()
	ls.SetContext(ctx)
	ls.PreloadModule("os", osModuleLoader)

	if err := ls.DoFile(absPath); err != nil {
		return "", fmt.Errorf("load script: %w", err)
	}

	action, _ := params["action"].(string)
	pTbl := ls.NewTable()
	for k, v := range params {
		if k == "action" {
			continue
		}
		if s, ok := v.(string); ok {
			ls.SetField(pTbl, k, lua.LString(s))
		} else {
			ls.SetField(pTbl, k, lua.LString(fmt.Sprintf("%v", v)))
		}
	}

	ls.Push(ls.GetGlobal("handle"))
	ls.Push(lua.LString(action))
	ls.Push(pTbl)
	ls.Push(lua.LString(content))
	if err := ls.PCall(3, 2, nil); err != nil {
		return "", fmt.Errorf("handle(): %w", err)
	}

	errVal := ls.Get(-1)
	outVal := ls.Get(-2)
	ls.Pop(2)

	if errVal.Type() == lua.LTString {
		return "", fmt.Errorf("%s", errVal.String())
	}
	if outVal.Type() == lua.LTNil {
		return "", nil
	}
	return outVal.String(), nil
}

// osModuleLoader exposes a minimal os module to scripts: getenv and time.
func osModuleLoader(ls *lua.LState) int {
	mod := ls.NewTable()
	ls.SetField(mod, "getenv", ls.NewFunction(func(ls *lua.LState) int {
		ls.Push(lua.LString(os.Getenv(ls.CheckString(1))))
		return 1
	}))
	ls.SetField(mod, "time", ls.NewFunction(func(ls *lua.LState) int {
		ls.Push(lua.LNumber(time.Now().Unix()))
		return 1
	}))
	ls.Push(mod)
	return 1
}
