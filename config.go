package nezvm

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

type Config map[string]*cfgVal

// NewConfig creates a new configuration object primed with all the
// default values expected by the execution context.
func NewConfig() *Config {
	m := make(Config)
	// max number of entries of the backtracking stack; going over
	// it terminates the parse with ErrStackOverflow
	m.SetInt("vm.stack.max_depth", 1024)
	// answer LOOKUP instructions from the memo table
	m.SetBool("vm.memo.enabled", true)
	// input positions remembered for each memo point
	m.SetInt("vm.memo.slots", 32)
	// initial capacity of the node arena
	m.SetInt("vm.arena.nodes", 256)
	// initial capacity of the lazy construction log
	m.SetInt("vm.log.entries", 256)
	// send every dispatched instruction to the tracer
	m.SetBool("vm.trace", false)
	return &m
}

// LoadConfig reads a YAML document on top of the default settings.
// Nested mappings are flattened into dotted keys, so
//
//	vm:
//	  stack:
//	    max_depth: 4096
//
// sets `vm.stack.max_depth`.  Unknown keys and values of the wrong
// type are rejected.
func LoadConfig(r io.Reader) (*Config, error) {
	var doc map[string]any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("can't decode config: %w", err)
	}
	cfg := NewConfig()
	if err := cfg.merge("", doc); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadConfig(f)
}

func (c *Config) merge(prefix string, doc map[string]any) error {
	for k, v := range doc {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			if err := c.merge(path, sub); err != nil {
				return err
			}
			continue
		}
		cur, ok := (*c)[path]
		if !ok {
			return fmt.Errorf("unknown setting `%s`", path)
		}
		switch x := v.(type) {
		case bool:
			if cur.typ != cfgValType_Bool {
				return fmt.Errorf("setting `%s` expects %s, got bool", path, cur.typ)
			}
			c.SetBool(path, x)
		case int:
			if cur.typ != cfgValType_Int {
				return fmt.Errorf("setting `%s` expects %s, got int", path, cur.typ)
			}
			c.SetInt(path, x)
		case string:
			if cur.typ != cfgValType_String {
				return fmt.Errorf("setting `%s` expects %s, got string", path, cur.typ)
			}
			c.SetString(path, x)
		default:
			return fmt.Errorf("setting `%s` has unsupported value %v", path, v)
		}
	}
	return nil
}

func (c *Config) Debug(w io.Writer) {
	fmt.Fprintln(w, "Configuration")

	keys := make([]string, 0, len(*c))
	width := 0
	for k := range *c {
		keys = append(keys, k)
		width = max(width, len(k))
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(w, "%-*s : %s\n", width, k, (*c)[k].String())
	}
}

type cfgValType int

const (
	cfgValType_Undefined cfgValType = iota
	cfgValType_Bool
	cfgValType_Int
	cfgValType_String
)

func (vt cfgValType) String() string {
	return map[cfgValType]string{
		cfgValType_Undefined: "undefined",
		cfgValType_Bool:      "bool",
		cfgValType_Int:       "int",
		cfgValType_String:    "string",
	}[vt]
}

type cfgVal struct {
	typ      cfgValType
	asBool   bool
	asInt    int
	asString string
}

// assignType is mostly for preventing programming errors
func (v *cfgVal) assignType(vt cfgValType) {
	if v.typ != vt && v.typ != cfgValType_Undefined {
		panic(fmt.Sprintf("Can't assign `%s` to type `%s`", vt, v.typ))
	}
	v.typ = vt
}

func (v *cfgVal) checkType(vt cfgValType) {
	if v.typ != vt {
		panic(fmt.Sprintf("Can't retrieve `%s` from `%s` variable", vt, v.typ))
	}
}

func (v *cfgVal) String() string {
	switch v.typ {
	case cfgValType_Bool:
		return fmt.Sprintf("%t (bool)", v.asBool)
	case cfgValType_Int:
		return fmt.Sprintf("%d (int)", v.asInt)
	case cfgValType_String:
		return fmt.Sprintf("%s (string)", v.asString)
	case cfgValType_Undefined:
		return "(undefined)"
	default:
		panic(fmt.Sprintf("unknown cfgVal type: %v", v.typ))
	}
}

func (c *Config) SetBool(path string, v bool) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_Bool)
	(*c)[path].asBool = v
}

func (c *Config) SetInt(path string, v int) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_Int)
	(*c)[path].asInt = v
}

func (c *Config) SetString(path string, v string) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_String)
	(*c)[path].asString = v
}

func (c *Config) GetBool(path string) bool {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_Bool)
		return val.asBool
	}
	panic(fmt.Sprintf("Bool setting `%s` does not exist", path))
}

func (c *Config) GetInt(path string) int {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_Int)
		return val.asInt
	}
	panic(fmt.Sprintf("Int setting `%s` does not exist", path))
}

func (c *Config) GetString(path string) string {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_String)
		return val.asString
	}
	panic(fmt.Sprintf("String setting `%s` does not exist", path))
}
