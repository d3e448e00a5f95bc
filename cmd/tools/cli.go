package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type CommandArgs struct {
	commandName string
	params      map[string]string
}

func NewCommandArgs(args []string) *CommandArgs {
	var cmdName = ""
	var flags = make(map[string]string)
	for i := 1; i < len(args); i++ {
		var arg = args[i]
		if strings.HasPrefix(arg, "-") {
			if i < len(args)-1 {
				var k = strings.TrimLeft(arg, "-")
				var v = args[i+1]
				flags[k] = v
				i++
			}
		} else if cmdName == "" {
			cmdName = arg
		}
	}
	return &CommandArgs{
		commandName: cmdName,
		params:      flags,
	}
}

func (ca *CommandArgs) CommandName() string {
	return ca.commandName
}

func (ca *CommandArgs) GetString(name string, defaultVal string) string {
	var val, ok = ca.params[name]
	if !ok {
		return defaultVal
	}
	return val
}

func (ca *CommandArgs) GetInt(name string, defaultVal int) int {
	var val, ok = ca.params[name]
	if !ok {
		return defaultVal
	}
	var v, err = strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return v
}

type CommandHandler struct {
	items map[string]func() error
}

func NewCommandHandler() *CommandHandler {
	return &CommandHandler{
		items: make(map[string]func() error),
	}
}

func (ch *CommandHandler) Add(name string, handler func() error) {
	ch.items[name] = handler
}

func (ch *CommandHandler) Names() []string {
	var result = make([]string, 0, len(ch.items))
	for name := range ch.items {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

func (ch *CommandHandler) Execute(commandName string) error {
	handler, found := ch.items[commandName]
	if !found {
		return fmt.Errorf("command not found %q, available: %v", commandName, strings.Join(ch.Names(), ", "))
	}
	return handler()
}

type Cli struct {
	args     *CommandArgs
	commands *CommandHandler
}

func NewCli(args []string) *Cli {
	return &Cli{
		args:     NewCommandArgs(args),
		commands: NewCommandHandler(),
	}
}

func (c *Cli) Params() *CommandArgs {
	return c.args
}

func (c *Cli) AddCommand(name string, handler func() error) {
	c.commands.Add(name, handler)
}

func (c *Cli) Execute() error {
	return c.commands.Execute(c.args.CommandName())
}
