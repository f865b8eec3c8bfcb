package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/dshills/settingsd/internal/app"
	"github.com/dshills/settingsd/internal/config"
	"github.com/dshills/settingsd/internal/config/export"
	"github.com/dshills/settingsd/internal/config/layer"
	"github.com/dshills/settingsd/internal/config/loader"
	"github.com/dshills/settingsd/internal/config/watcher"
)

// cli holds the process streams and the flag values shared by commands.
type cli struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	env    []string

	flags app.Options
}

func newCLI(in io.Reader, out, errOut io.Writer, env []string) *cli {
	return &cli{in: in, out: out, errOut: errOut, env: env}
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "settingsd",
		Short: "Inspect, edit and serve layered settings files",
		Long: `settingsd manages the four settings locations of a project:
user (~/.claude/settings.json), project (.claude/settings.json),
local (.claude/settings.local.json) and the read-only enterprise file.

Locations are merged shallowly in that order; the enterprise file wins.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.Root, "root", "", "project directory (default: working directory)")
	pf.StringVar(&c.flags.EnterprisePath, "enterprise-path", "", "managed settings file (default: OS location)")
	pf.StringVar(&c.flags.LogLevel, "log-level", "", "log level: debug, info, warn, error (default: info)")
	pf.StringVar(&c.flags.ConfigPath, "config", "", "options file (default: $XDG_CONFIG_HOME/settingsd/settingsd.toml)")

	root.AddCommand(
		c.serveCommand(),
		c.showCommand(),
		c.pathsCommand(),
		c.exportCommand(),
		c.setCommand(),
		c.editCommand(),
		c.deleteCommand(),
		c.watchCommand(),
	)
	return root
}

// newApp resolves options and builds the application.
func (c *cli) newApp() (*app.Application, error) {
	opts, err := app.ResolveOptions(c.flags, c.env)
	if err != nil {
		return nil, err
	}
	return app.New(opts, c.errOut)
}

func (c *cli) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the settings API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.newApp()
			if err != nil {
				return err
			}
			defer a.Shutdown()
			return a.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&c.flags.Addr, "addr", "", "listen address (default "+app.DefaultAddr+")")
	return cmd
}

func (c *cli) showCommand() *cobra.Command {
	var level string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the settings hierarchy, or one location, as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.newApp()
			if err != nil {
				return err
			}
			defer a.Shutdown()

			if level == "" {
				h, err := a.Settings().Hierarchy(cmd.Context())
				if err != nil {
					return err
				}
				return c.printJSON(h)
			}

			loc, err := layer.ParseLocation(level)
			if err != nil {
				return err
			}
			snap, err := a.Settings().Snapshot(cmd.Context(), loc)
			if err != nil {
				return err
			}
			return c.printJSON(snap)
		},
	}
	cmd.Flags().StringVar(&level, "level", "", "only show one location: user, project, local, enterprise")
	return cmd
}

func (c *cli) pathsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the file path of each location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.newApp()
			if err != nil {
				return err
			}
			defer a.Shutdown()

			paths := a.Settings().Paths()
			for _, loc := range layer.Locations() {
				fmt.Fprintf(c.out, "%-10s %s\n", loc, paths.For(loc))
			}
			return nil
		},
	}
}

func (c *cli) exportCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the merged settings as JSON, YAML or TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			a, err := c.newApp()
			if err != nil {
				return err
			}
			defer a.Shutdown()

			h, err := a.Settings().Hierarchy(cmd.Context())
			if err != nil {
				return err
			}
			data, err := export.Render(h.Merged, f)
			if err != nil {
				return err
			}
			_, err = c.out.Write(data)
			return err
		},
	}

	names := make([]string, 0, len(export.Formats()))
	for _, f := range export.Formats() {
		names = append(names, string(f))
	}
	cmd.Flags().StringVar(&format, "format", string(export.FormatJSON), "output format: "+strings.Join(names, ", "))
	return cmd
}

func (c *cli) setCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set LEVEL FILE|-",
		Short: "Replace a location's settings with a JSON document",
		Long: `Replace the settings of user, project or local with the JSON object
read from FILE, or from standard input when FILE is "-".`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := writableLocation(args[0])
			if err != nil {
				return err
			}

			doc, err := c.readDocument(args[1])
			if err != nil {
				return err
			}

			a, err := c.newApp()
			if err != nil {
				return err
			}
			defer a.Shutdown()

			if err := a.Settings().Write(cmd.Context(), loc, layer.Document(doc)); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "wrote %s\n", a.Settings().Paths().For(loc))
			return nil
		},
	}
}

func (c *cli) editCommand() *cobra.Command {
	var unset bool
	cmd := &cobra.Command{
		Use:   "edit LEVEL KEY [VALUE]",
		Short: "Set or remove one key in a location's settings",
		Long: `Set KEY in the settings of user, project or local to VALUE and write the
file back. KEY uses dot syntax (env.DEBUG). VALUE is taken as JSON when it
parses as JSON and as a plain string otherwise. With --unset the key is
removed and VALUE must be omitted.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := writableLocation(args[0])
			if err != nil {
				return err
			}
			key := args[1]

			var edit config.EditFunc
			switch {
			case unset && len(args) == 2:
				edit = func(doc layer.Document) (layer.Document, error) {
					return config.DeleteValue(doc, key)
				}
			case !unset && len(args) == 3:
				raw := valueJSON(args[2])
				edit = func(doc layer.Document) (layer.Document, error) {
					return config.SetValue(doc, key, raw)
				}
			case unset:
				return fmt.Errorf("%w: --unset takes no VALUE", config.ErrInvalidEdit)
			default:
				return fmt.Errorf("%w: VALUE is required", config.ErrInvalidEdit)
			}

			a, err := c.newApp()
			if err != nil {
				return err
			}
			defer a.Shutdown()

			if err := a.Settings().Edit(cmd.Context(), loc, edit); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "wrote %s\n", a.Settings().Paths().For(loc))
			return nil
		},
	}
	cmd.Flags().BoolVar(&unset, "unset", false, "remove KEY instead of setting it")
	return cmd
}

// valueJSON returns s as raw JSON, quoting it when it is not JSON already.
func valueJSON(s string) []byte {
	if gjson.Valid(s) {
		return []byte(s)
	}
	quoted, _ := json.Marshal(s)
	return quoted
}

func (c *cli) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete LEVEL",
		Short: "Remove a location's settings file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := writableLocation(args[0])
			if err != nil {
				return err
			}

			a, err := c.newApp()
			if err != nil {
				return err
			}
			defer a.Shutdown()

			if err := a.Settings().Delete(cmd.Context(), loc); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "deleted %s\n", a.Settings().Paths().For(loc))
			return nil
		},
	}
}

func (c *cli) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print settings file changes as JSON lines until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.newApp()
			if err != nil {
				return err
			}
			defer a.Shutdown()

			enc := json.NewEncoder(c.out)
			return a.Watch(cmd.Context(), func(ev watcher.Event) {
				if err := enc.Encode(ev); err != nil {
					a.Logger().Warn("writing event: %v", err)
				}
			})
		},
	}
}

// readDocument reads a settings document from path, or stdin for "-".
func (c *cli) readDocument(path string) (map[string]any, error) {
	if path == "-" {
		return loader.NewJSONLoader("").LoadFromReader(c.in)
	}

	doc, err := loader.NewJSONLoader(path).Load()
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("reading %s: %w", path, os.ErrNotExist)
	}
	return doc, nil
}

func (c *cli) printJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = c.out.Write(pretty.Pretty(data))
	return err
}

func writableLocation(name string) (layer.Location, error) {
	loc, err := layer.ParseLocation(name)
	if err != nil {
		return 0, err
	}
	if !loc.Writable() {
		return 0, fmt.Errorf("%s: %w", name, config.ErrNotWritable)
	}
	return loc, nil
}
