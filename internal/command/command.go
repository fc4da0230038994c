// Package command is the operator surface for changing logging settings at
// runtime. Every change is persisted through a Saver.
package command

import (
	"errors"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"modlog/internal/level"
	"modlog/internal/settings"
	"modlog/pkg/logapi"
)

// Name is the root command word.
const Name = "modlog"

// Output is the operator channel. logapi.Logger satisfies it.
type Output interface {
	Info(pattern string, args ...any)
	Error(pattern string, args ...any)
}

// Saver persists the policy after a change.
type Saver interface {
	Save() error
}

// Commands owns the command tree. Execute is safe for concurrent use.
type Commands struct {
	policy *level.Policy
	saver  Saver
	out    Output

	mu   sync.Mutex
	root *cobra.Command
}

// New builds the command tree. A nil saver skips persistence.
func New(policy *level.Policy, saver Saver, out Output) *Commands {
	c := &Commands{policy: policy, saver: saver, out: out}
	c.root = c.build()
	return c
}

// Execute runs one operator command, given without the leading command word.
// Problems with the command itself are reported on the operator channel;
// the returned error is only for failures of the command machinery.
func (c *Commands) Execute(args []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if args == nil {
		args = []string{}
	}
	c.root.SetArgs(args)
	return c.root.Execute()
}

// Line splits line on whitespace and executes it. A leading command word is
// optional.
func (c *Commands) Line(line string) error {
	fields := strings.Fields(line)
	if len(fields) > 0 && strings.EqualFold(fields[0], Name) {
		fields = fields[1:]
	}
	return c.Execute(fields)
}

func (c *Commands) build() *cobra.Command {
	root := &cobra.Command{
		Use:                Name + " [subcommand] [arg1] [arg2]",
		Short:              "Logging management commands.",
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		SilenceErrors:      true,
		SilenceUsage:       true,
		CompletionOptions:  cobra.CompletionOptions{DisableDefaultCmd: true},
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				c.help()
				return nil
			}
			c.out.Error("Unknown subcommand: {}. Run '{}' without arguments for help.", args[0], Name)
			return nil
		},
	}
	root.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})

	root.AddCommand(
		c.subcommand("log-level", "<logger> [level|clear]", "Change or clear the log level of a specified logger.", c.logLevel),
		c.subcommand("log-level-list", "", "List the log levels you have explicitly set.", c.logLevelList),
		c.toggle("enable-trace", "Toggle trace logging when debug is active.", "Trace logging",
			func(o level.Options) bool { return o.Trace },
			func(o *level.Options, v bool) { o.Trace = v }),
		c.toggle("show-mod-name", "Toggle mod name display in log statements.", "Mod name display",
			func(o level.Options) bool { return o.ShowOwner },
			func(o *level.Options, v bool) { o.ShowOwner = v }),
		c.toggle("show-class-name", "Toggle class name display in log statements.", "Class name display",
			func(o level.Options) bool { return o.ShowName },
			func(o *level.Options, v bool) { o.ShowName = v }),
		c.toggle("color", "Toggle colored log statements.", "Colored output",
			func(o level.Options) bool { return o.Color },
			func(o *level.Options, v bool) { o.Color = v }),
	)
	return root
}

func (c *Commands) subcommand(use, params, short string, run func(args []string)) *cobra.Command {
	u := use
	if params != "" {
		u += " " + params
	}
	return &cobra.Command{
		Use:                u,
		Short:              short,
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		Run:                func(_ *cobra.Command, args []string) { run(args) },
	}
}

func (c *Commands) help() {
	c.out.Info(">>> {} >>> Available SubCommands >>>", Name)
	for _, sub := range c.root.Commands() {
		if sub.Hidden {
			continue
		}
		c.out.Info("> {}", sub.Use)
		c.out.Info(sub.Short)
	}
}

func (c *Commands) save() {
	if c.saver == nil {
		return
	}
	if err := c.saver.Save(); err != nil {
		c.out.Error("Failed to save settings to disk", err)
	}
}

func (c *Commands) logLevel(args []string) {
	switch len(args) {
	case 0:
		c.out.Error("Usage: log-level <logger> [level|clear]")
	case 1:
		c.showLevel(args[0])
	default:
		c.setLevel(args[0], args[1])
	}
}

func (c *Commands) showLevel(name string) {
	var (
		lv logapi.Level
		ok bool
	)
	if level.IsRoot(name) {
		lv, ok = c.policy.Root().Level()
	} else {
		lv, ok = c.policy.Override(name)
	}
	if !ok {
		c.out.Info("Logger {} has no explicit level set (inherits from root).", name)
		return
	}
	c.out.Info("Logger {} has level {}.", name, lv)
}

func (c *Commands) setLevel(name, value string) {
	if strings.EqualFold(value, "clear") {
		if err := c.policy.ClearOverride(name); err != nil {
			c.rootRejected(err)
			return
		}
		c.save()
		c.out.Info("Logger {} now has no explicit level set.", name)
		return
	}

	if level.IsRoot(name) {
		c.rootRejected(level.ErrRootOverride)
		return
	}
	lv, err := logapi.ParseLevel(value)
	if err != nil {
		c.out.Error("Invalid log level {}, accepted values are {} or 'clear'.", value, acceptedLevels())
		return
	}
	if err := c.policy.SetOverride(name, lv); err != nil {
		c.rootRejected(err)
		return
	}
	c.save()
	c.out.Info("Set log level of {} to {}.", name, lv)
}

func (c *Commands) rootRejected(err error) {
	if errors.Is(err, level.ErrRootOverride) {
		c.out.Error("Cannot modify the root logger level. Change the host log level instead.")
		return
	}
	c.out.Error("Failed to change log level", err)
}

func acceptedLevels() string {
	names := make([]string, 0, 5)
	for _, l := range logapi.Levels() {
		names = append(names, l.String())
	}
	return "[" + strings.Join(names, ", ") + "]"
}

func (c *Commands) logLevelList([]string) {
	names := c.policy.OverrideNames()
	if len(names) == 0 {
		c.out.Info("No custom log levels have been set.")
		return
	}
	c.out.Info(">>> {} >>> Custom Log Levels >>>", Name)
	for _, name := range names {
		if lv, ok := c.policy.Override(name); ok {
			c.out.Info("{} -> {}", name, lv)
		}
	}
}

func (c *Commands) toggle(use, short, subject string, get func(level.Options) bool, set func(*level.Options, bool)) *cobra.Command {
	return c.subcommand(use, "[true|false]", short, func(args []string) {
		if len(args) == 0 {
			c.out.Info(subject+" is currently {}.", state(get(c.policy.Options())))
			return
		}
		v, err := settings.ParseBool(args[0])
		if err != nil {
			c.out.Error("Usage: {} [true|false]", use)
			return
		}
		c.policy.UpdateOptions(func(o *level.Options) { set(o, v) })
		c.save()
		c.out.Info(subject+" is now {}.", state(v))
	})
}

func state(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
