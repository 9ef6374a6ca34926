package cli

import (
	"errors"
	"fmt"
	"strings"
)

// Command names a top-level v2m subcommand.
type Command string

const (
	CommandToggle  Command = "toggle"
	CommandStop    Command = "stop"
	CommandCancel  Command = "cancel"
	CommandStatus  Command = "status"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var knownCommands = map[Command]struct{}{
	CommandToggle:  {},
	CommandStop:    {},
	CommandCancel:  {},
	CommandStatus:  {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

// Parsed is the result of parsing process argv into a command invocation.
type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
}

// Parse walks argv left to right, recognizing --config/-h/--help/--version
// ahead of a single trailing command token. Anything after the command is
// rejected rather than silently ignored.
func Parse(args []string) (Parsed, error) {
	p := &argParser{result: Parsed{Command: CommandHelp, ShowHelp: true}, args: args}
	if err := p.run(); err != nil {
		return Parsed{}, err
	}
	return p.result, nil
}

type argParser struct {
	args   []string
	pos    int
	result Parsed
}

func (p *argParser) run() error {
	for p.pos < len(p.args) {
		if err := p.step(); err != nil {
			return err
		}
		p.pos++
	}
	return nil
}

func (p *argParser) step() error {
	arg := p.args[p.pos]
	switch arg {
	case "-h", "--help":
		p.result.ShowHelp = true
		p.result.Command = CommandHelp
		return nil
	case "--version":
		p.result.ShowHelp = false
		p.result.Command = CommandVersion
		return nil
	case "--config":
		return p.takeConfigPath()
	default:
		return p.takeCommand(arg)
	}
}

func (p *argParser) takeConfigPath() error {
	p.pos++
	if p.pos >= len(p.args) {
		return errors.New("--config requires a path")
	}
	p.result.ConfigPath = p.args[p.pos]
	return nil
}

func (p *argParser) takeCommand(arg string) error {
	if strings.HasPrefix(arg, "-") {
		return fmt.Errorf("unknown flag: %s", arg)
	}

	cmd := Command(arg)
	if _, ok := knownCommands[cmd]; !ok {
		return fmt.Errorf("unknown command: %s", arg)
	}
	if p.pos != len(p.args)-1 {
		return fmt.Errorf("unexpected arguments after command %q", arg)
	}

	p.result.Command = cmd
	p.result.ShowHelp = cmd == CommandHelp
	return nil
}

// HelpText renders the top-level usage banner for binaryName.
func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command>

Commands:
  toggle    Start recording or stop+commit when already recording
  stop      Stop active recording and commit transcript
  cancel    Cancel active recording (captured speech is still committed)
  status    Print current state
  devices   List available input devices
  doctor    Run configuration and environment checks
  version   Print version information
  help      Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/v2m/config.conf)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
