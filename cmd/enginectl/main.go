// The enginectl tool is a command-line front end for the debugger
// engine. Run "enginectl <executable> [args...]" to launch a traced
// process and drop into an interactive command prompt.
//
// enginectl demonstrates component C8 (dispatch) only: it is a thin
// readline loop that parses user input into dispatch.Command values
// and prints dispatch.Feedback results. It carries none of the
// engine's own logic.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ogledbg/ogledbg/addr"
	"github.com/ogledbg/ogledbg/debuggee"
	"github.com/ogledbg/ogledbg/dispatch"
	"github.com/ogledbg/ogledbg/location"
	"github.com/ogledbg/ogledbg/regio"
)

var log = logrus.WithField("component", "enginectl")

func main() {
	var verbose bool

	root := &cobra.Command{
		Use:   "enginectl <executable> [args...]",
		Short: "interactive front end for the debugger engine",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
			return run(args[0], args[1:])
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string, argv []string) error {
	session, err := debuggee.Launch(path, argv)
	if err != nil {
		return fmt.Errorf("launch %s: %w", path, err)
	}
	d := dispatch.New(session)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "(enginectl) ",
		HistoryFile:     "/tmp/.enginectl_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		cmd, perr := parseCommand(line)
		if perr != nil {
			fmt.Fprintln(os.Stderr, perr)
			continue
		}

		fb := d.Dispatch(cmd)
		printFeedback(fb)
		if fb.Kind == dispatch.FeedbackExit || cmd.Kind == dispatch.CmdQuit {
			break
		}
	}
	return nil
}

// parseCommand translates one line of user input into a
// dispatch.Command. This is deliberately minimal — it is glue for the
// demo prompt, not a command language the engine depends on.
func parseCommand(line string) (dispatch.Command, error) {
	fields := strings.Fields(line)
	verb := fields[0]
	rest := fields[1:]

	switch verb {
	case "continue", "c":
		return dispatch.Command{Kind: dispatch.CmdContinue}, nil
	case "step", "s":
		return dispatch.Command{Kind: dispatch.CmdStepSingle}, nil
	case "next", "n":
		return dispatch.Command{Kind: dispatch.CmdStepOver}, nil
	case "finish":
		return dispatch.Command{Kind: dispatch.CmdStepOut}, nil
	case "stepin":
		return dispatch.Command{Kind: dispatch.CmdStepIn}, nil
	case "break", "b":
		a, err := requireAddr(rest)
		if err != nil {
			return dispatch.Command{}, err
		}
		return dispatch.Command{Kind: dispatch.CmdSetBreakpoint, Addr: a}, nil
	case "delete", "d":
		a, err := requireAddr(rest)
		if err != nil {
			return dispatch.Command{}, err
		}
		return dispatch.Command{Kind: dispatch.CmdDelBreakpoint, Addr: a}, nil
	case "regs":
		return dispatch.Command{Kind: dispatch.CmdDumpRegisters}, nil
	case "setreg":
		if len(rest) != 2 {
			return dispatch.Command{}, fmt.Errorf("usage: setreg <name> <value>")
		}
		name, err := parseRegister(rest[0])
		if err != nil {
			return dispatch.Command{}, err
		}
		v, err := strconv.ParseUint(rest[1], 0, 64)
		if err != nil {
			return dispatch.Command{}, fmt.Errorf("bad register value %q: %w", rest[1], err)
		}
		return dispatch.Command{Kind: dispatch.CmdSetRegister, RegisterName: name, RegisterValue: v}, nil
	case "mem":
		a, err := requireAddr(rest)
		if err != nil {
			return dispatch.Command{}, err
		}
		return dispatch.Command{Kind: dispatch.CmdReadMem, Addr: a}, nil
	case "setmem":
		if len(rest) != 2 {
			return dispatch.Command{}, fmt.Errorf("usage: setmem <addr> <value>")
		}
		a, err := parseAddr(rest[0])
		if err != nil {
			return dispatch.Command{}, err
		}
		v, err := strconv.ParseUint(rest[1], 0, 64)
		if err != nil {
			return dispatch.Command{}, fmt.Errorf("bad word value %q: %w", rest[1], err)
		}
		return dispatch.Command{Kind: dispatch.CmdWriteMem, Addr: a, WordValue: addr.Word(v)}, nil
	case "disas":
		if len(rest) != 2 {
			return dispatch.Command{}, fmt.Errorf("usage: disas <addr> <len>")
		}
		a, err := parseAddr(rest[0])
		if err != nil {
			return dispatch.Command{}, err
		}
		n, err := strconv.Atoi(rest[1])
		if err != nil {
			return dispatch.Command{}, fmt.Errorf("bad byte length %q: %w", rest[1], err)
		}
		return dispatch.Command{Kind: dispatch.CmdDisassembleAt, Addr: a, Len: n}, nil
	case "sym":
		if len(rest) != 1 {
			return dispatch.Command{}, fmt.Errorf("usage: sym <name>")
		}
		return dispatch.Command{Kind: dispatch.CmdGetSymbolsByName, Name: rest[0]}, nil
	case "bt", "backtrace":
		return dispatch.Command{Kind: dispatch.CmdBacktrace}, nil
	case "print", "p":
		if len(rest) != 1 {
			return dispatch.Command{}, fmt.Errorf("usage: print <variable>")
		}
		return dispatch.Command{Kind: dispatch.CmdReadVariable, Name: rest[0]}, nil
	case "set":
		if len(rest) != 2 {
			return dispatch.Command{}, fmt.Errorf("usage: set <variable> <value>")
		}
		v, err := strconv.ParseUint(rest[1], 0, 64)
		if err != nil {
			return dispatch.Command{}, fmt.Errorf("bad variable value %q: %w", rest[1], err)
		}
		return dispatch.Command{Kind: dispatch.CmdWriteVariable, Name: rest[0], VariableValue: v}, nil
	case "maps":
		return dispatch.Command{Kind: dispatch.CmdProcMap}, nil
	case "quit", "q", "exit":
		return dispatch.Command{Kind: dispatch.CmdQuit}, nil
	default:
		return dispatch.Command{}, fmt.Errorf("unknown command %q", verb)
	}
}

func requireAddr(rest []string) (addr.Address, error) {
	if len(rest) != 1 {
		return 0, fmt.Errorf("usage: <command> <addr>")
	}
	return parseAddr(rest[0])
}

func parseAddr(s string) (addr.Address, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}
	return addr.Address(v), nil
}

func parseRegister(s string) (regio.Name, error) {
	for n := regio.R8; n <= regio.GsBase; n++ {
		if n.String() == s {
			return n, nil
		}
	}
	return 0, fmt.Errorf("unknown register %q", s)
}

func printFeedback(fb dispatch.Feedback) {
	switch fb.Kind {
	case dispatch.FeedbackOk:
		fmt.Println("ok")
	case dispatch.FeedbackText:
		fmt.Println(fb.Text)
	case dispatch.FeedbackWord:
		fmt.Printf("0x%x\n", uint64(fb.Word))
	case dispatch.FeedbackAddr:
		fmt.Printf("stopped at %s\n", fb.Addr)
	case dispatch.FeedbackRegisters:
		printRegisters(fb.Registers)
	case dispatch.FeedbackDisassembly:
		for _, inst := range fb.Disasm {
			fmt.Printf("%s: %s\n", inst.Address, inst.Text)
		}
	case dispatch.FeedbackSymbols:
		for _, sym := range fb.Symbols {
			fmt.Printf("%s (offset %d)\n", sym.Name, sym.Offset)
		}
	case dispatch.FeedbackBacktrace:
		for i, f := range fb.Stack {
			fmt.Printf("#%d  pc=%s cfa=%s\n", i, f.PC, f.CFA)
		}
	case dispatch.FeedbackVariable:
		printVariable(fb.Variable)
	case dispatch.FeedbackProcessMap:
		for _, e := range fb.ProcMap {
			fmt.Printf("%s-%s %s %s\n", e.Low, e.High, e.Perms, e.Path)
		}
	case dispatch.FeedbackExit:
		fmt.Printf("process exited with code %d\n", fb.ExitCode)
	case dispatch.FeedbackError:
		fmt.Fprintf(os.Stderr, "error: %s\n", fb.Err)
		log.WithError(fb.Err).Debug("command failed")
	}
}

func printRegisters(r *regio.RegisterFile) {
	if r == nil {
		return
	}
	fmt.Printf("rip=0x%x rsp=0x%x rbp=0x%x rax=0x%x rbx=0x%x rcx=0x%x rdx=0x%x\n",
		r.Rip, r.Rsp, r.Rbp, r.Rax, r.Rbx, r.Rcx, r.Rdx)
}

func printVariable(loc location.Location) {
	switch loc.Kind {
	case location.KindAddress:
		fmt.Printf("address %s\n", loc.Address)
	case location.KindRegister:
		fmt.Printf("register %s\n", loc.Register.String())
	case location.KindValue:
		fmt.Printf("value 0x%x\n", loc.Value)
	case location.KindBytes:
		fmt.Printf("bytes %x\n", loc.Bytes)
	default:
		fmt.Println("no location")
	}
}
