package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/clarete/nezvm"
)

type args struct {
	bytecodePath *string
	asmPath      *string
	startRule    *string

	dump       *bool
	configPath *string
	showConfig *bool

	inputPath *string

	trace *bool
	stats *bool
	stat  *int
	color *string
}

func readArgs() *args {
	a := &args{
		bytecodePath: flag.String("bytecode", "", "Path to a compiled grammar"),
		asmPath:      flag.String("asm", "", "Path to an assembly listing, used instead of -bytecode"),
		startRule:    flag.String("start", "", "Rule the parse starts at (defaults to the first rule)"),

		// Debugging Options

		dump:       flag.Bool("dump", false, "Output the disassembled program"),
		configPath: flag.String("config", "", "Path to a YAML file with VM settings"),
		showConfig: flag.Bool("show-config", false, "Output the effective settings"),
		trace:      flag.Bool("trace", false, "Log every dispatched instruction to stderr"),
		stats:      flag.Bool("stats", false, "Output the counters of the parse to stderr"),
		stat:       flag.Int("stat", 0, "Parse the input this many times and report the timings"),
		color:      flag.String("color", "auto", "Colorize the output: auto, always or never"),

		// Input

		inputPath: flag.String("input", "", "Path to the input file, an interactive prompt is opened when empty"),
	}

	flag.Parse()

	return a
}

func main() {
	a := readArgs()
	h := newHighlighter(*a.color)

	program := loadProgram(h, a)

	cfg := nezvm.NewConfig()
	if *a.configPath != "" {
		var err error
		if cfg, err = nezvm.LoadConfigFile(*a.configPath); err != nil {
			fatal(h, "Can't read config: %s", err.Error())
		}
	}
	if *a.trace {
		cfg.SetBool("vm.trace", true)
	}
	if *a.showConfig {
		cfg.Debug(os.Stderr)
	}

	if *a.dump {
		fmt.Print(program.Format(h.asm))
		if *a.inputPath == "" {
			return
		}
	}

	var tracer nezvm.Tracer
	if cfg.GetBool("vm.trace") {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		tracer = nezvm.NewLogTracer(logger)
	}

	if *a.inputPath != "" {
		input, err := os.ReadFile(*a.inputPath)
		if err != nil {
			fatal(h, "Can't open input file: %s", err.Error())
		}
		if *a.stat > 0 {
			runStat(h, program, cfg, input, *a.stat)
			return
		}
		if !run(h, program, cfg, tracer, input, *a.stats) {
			os.Exit(1)
		}
		return
	}

	// no input file, open a lil REPL shell
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		text, err := reader.ReadString('\n')
		if text == "" && err != nil {
			fmt.Println("")
			break
		}
		text = strings.TrimSuffix(text, "\n")
		if text == "" {
			continue
		}
		run(h, program, cfg, tracer, []byte(text), *a.stats)
	}
}

func loadProgram(h *highlighter, a *args) *nezvm.Program {
	switch {
	case *a.bytecodePath != "":
		program, err := nezvm.LoadProgramFile(*a.bytecodePath, *a.startRule)
		if err != nil {
			fatal(h, "Can't load bytecode: %s", err.Error())
		}
		return program

	case *a.asmPath != "":
		src, err := os.ReadFile(*a.asmPath)
		if err != nil {
			fatal(h, "Can't open listing: %s", err.Error())
		}
		program, err := nezvm.Assemble(string(src))
		if err != nil {
			fatal(h, "Can't assemble listing: %s", err.Error())
		}
		if *a.startRule != "" {
			if program, err = program.WithStart(*a.startRule); err != nil {
				fatal(h, "%s", err.Error())
			}
		}
		return program
	}

	fatal(h, "Program not informed, use -bytecode or -asm")
	return nil
}

// run parses input once and prints the tree, returning whether the
// input was recognized
func run(h *highlighter, program *nezvm.Program, cfg *nezvm.Config, tracer nezvm.Tracer, input []byte, showStats bool) bool {
	ctx := nezvm.NewContext(input, cfg)
	defer ctx.Close()
	ctx.SetTracer(tracer)

	res, err := ctx.Parse(program)
	if showStats {
		printStats(ctx.Stats())
	}
	if err != nil {
		var rerr *nezvm.RuntimeError
		if errors.As(err, &rerr) {
			fmt.Printf("%s %s\n", h.err("ERROR:"), rerr.Error())
			return false
		}
		fatal(h, "%s", err.Error())
	}
	if !res.Success {
		fmt.Printf("%s %s\n", h.err("ERROR:"), nezvm.ParsingError{Cursor: res.Cursor}.Error())
		return false
	}
	defer ctx.Release(res.Root)

	fmt.Println(ctx.Export(res.Root).Format(h.tree))
	if res.Cursor < len(input) {
		fmt.Println(h.dim(fmt.Sprintf("consumed %d of %d bytes", res.Cursor, len(input))))
	}
	return true
}

// runStat reruns the same parse on one context and reports how long
// each run took
func runStat(h *highlighter, program *nezvm.Program, cfg *nezvm.Config, input []byte, times int) {
	ctx := nezvm.NewContext(input, cfg)
	defer ctx.Close()

	var total time.Duration
	for i := 0; i < times; i++ {
		ctx.Reset()
		began := time.Now()
		res, err := ctx.Parse(program)
		elapsed := time.Since(began)
		if err != nil {
			fatal(h, "%s", err.Error())
		}
		ctx.Release(res.Root)
		total += elapsed
		fmt.Printf("%3d: %s %s\n", i+1, elapsed, h.dim(fmt.Sprintf("(success=%t cursor=%d)", res.Success, res.Cursor)))
	}
	fmt.Printf("avg: %s\n", total/time.Duration(times))
	printStats(ctx.Stats())
}

func printStats(s nezvm.Stats) {
	fmt.Fprintf(os.Stderr, "steps=%d memo.hits=%d memo.misses=%d memo.evictions=%d nodes=%d stack.max=%d\n",
		s.Steps, s.MemoHits, s.MemoMisses, s.MemoEvictions, s.NodesAllocated, s.MaxStackDepth)
}

// fatal prints an error message and exits with code 1.
func fatal(h *highlighter, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s ", h.err("error:"))
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintf(os.Stderr, "\n")
	os.Exit(1)
}
