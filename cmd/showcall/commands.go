package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"showcall/lib/composition"
	"showcall/lib/control"
	"showcall/lib/cuestack"
	"showcall/lib/httpapi"
	"showcall/lib/macro"
	"showcall/lib/store"
)

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parsePositive(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, value)
	}
	return n, nil
}

// resultError turns a failed control result into a command error.
func resultError(res control.Result) error {
	if res.OK {
		return nil
	}
	if res.Error != "" {
		return errors.New(res.Error)
	}
	return fmt.Errorf("%s failed", res.Action)
}

func newControlCommands(ctx *commandContext) []*cobra.Command {
	var jsonOut bool

	send := func(cmd *cobra.Command, path string, body any) error {
		var res control.Result
		if err := ctx.client().do(cmd.Context(), http.MethodPost, path, body, &res); err != nil {
			return err
		}
		if jsonOut {
			return writeJSON(cmd, res)
		}
		if err := resultError(res); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), describeResult(res))
		return nil
	}

	trigger := &cobra.Command{
		Use:   "trigger <layer> <column>",
		Short: "Connect the clip at layer and column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			layer, err := parsePositive("layer", args[0])
			if err != nil {
				return err
			}
			column, err := parsePositive("column", args[1])
			if err != nil {
				return err
			}
			return send(cmd, "/api/trigger", map[string]int{"layer": layer, "column": column})
		},
	}
	column := &cobra.Command{
		Use:   "column <column>",
		Short: "Trigger a whole column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parsePositive("column", args[0])
			if err != nil {
				return err
			}
			return send(cmd, "/api/triggerColumn", map[string]int{"column": c})
		},
	}
	cut := &cobra.Command{
		Use:   "cut",
		Short: "Swap preview to program",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, "/api/cut", nil)
		},
	}
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Disconnect every clip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, "/api/clear", nil)
		},
	}

	goCmd := &cobra.Command{
		Use:   "go",
		Short: "Run the next cue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp outcome
			if err := ctx.client().do(cmd.Context(), http.MethodPost, "/api/cuestack/go", nil, &resp); err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, resp)
			}
			return printOutcome(cmd, resp)
		},
	}
	jump := &cobra.Command{
		Use:   "jump <cue>",
		Short: "Move the cue pointer without running anything",
		Long:  "Move the cue pointer to a 1-based cue number. Use 0 to reset before the first cue.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return fmt.Errorf("cue must be a non-negative integer, got %q", args[0])
			}
			var resp struct {
				OK    bool           `json:"ok"`
				State cuestack.State `json:"state"`
			}
			if err := ctx.client().do(cmd.Context(), http.MethodPost, "/api/cuestack/jump", map[string]int{"index": n - 1}, &resp); err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeState(resp.State))
			return nil
		},
	}

	cmds := []*cobra.Command{trigger, column, cut, clearCmd, goCmd, jump}
	for _, c := range cmds {
		c.Flags().BoolVar(&jsonOut, "json", false, "Print the raw JSON response")
	}
	return cmds
}

func describeResult(res control.Result) string {
	switch {
	case res.Layer > 0 && res.Column > 0:
		return fmt.Sprintf("%s layer %d column %d", res.Action, res.Layer, res.Column)
	case res.Column > 0:
		return fmt.Sprintf("%s column %d", res.Action, res.Column)
	}
	return res.Action
}

type outcome struct {
	OK bool `json:"ok"`
	cuestack.Outcome
	State cuestack.State `json:"state"`
}

func printOutcome(cmd *cobra.Command, o outcome) error {
	out := cmd.OutOrStdout()
	switch {
	case o.Complete:
		fmt.Fprintln(out, "Cue stack complete")
		return nil
	case o.Error != "":
		return fmt.Errorf("cue %d: %s", o.Index+1, o.Error)
	}
	fmt.Fprintf(out, "Ran cue %d: %s\n", o.Index+1, o.Label)
	if o.Report != nil && !o.Report.OK() {
		fmt.Fprintf(out, "  %d of %d steps executed, some failed\n", o.Report.Executed, o.Report.TotalSteps)
	}
	fmt.Fprintln(out, describeState(o.State))
	return nil
}

func describeState(st cuestack.State) string {
	label := func(c *cuestack.CueInfo) string {
		if c == nil {
			return "-"
		}
		return c.Label
	}
	return fmt.Sprintf("%s: cue %d/%d  now %s  next %s", st.Name, st.CurrentIndex+1, st.Total, label(st.Current), label(st.Next))
}

func newCuesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cues",
		Short: "Inspect and run the cue stack",
	}

	var jsonOut bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List cues with the current position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Stack cuestack.Stack `json:"stack"`
				State cuestack.State `json:"state"`
			}
			if err := ctx.client().do(cmd.Context(), http.MethodGet, "/api/cuestack/", nil, &resp); err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, resp)
			}
			presets := map[string]string{}
			var doc store.Presets
			if err := ctx.client().do(cmd.Context(), http.MethodGet, "/api/presets", nil, &doc); err == nil {
				for _, p := range doc.Presets {
					presets[p.ID] = p.Label
				}
			}
			rows := make([][]string, 0, len(resp.Stack.Cues))
			for i, c := range resp.Stack.Cues {
				marker := ""
				if i == resp.Stack.CurrentIndex {
					marker = "▶"
				}
				rows = append(rows, []string{marker, strconv.Itoa(i + 1), cueLabel(c, presets), cueSource(c), c.Notes})
			}
			printTable(cmd.OutOrStdout(), cueColumns, rows)
			fmt.Fprintln(cmd.OutOrStdout(), describeState(resp.State))
			return nil
		},
	}
	list.Flags().BoolVar(&jsonOut, "json", false, "Print the raw JSON response")

	run := &cobra.Command{
		Use:   "run <cue>",
		Short: "Run one cue by its 1-based number and move the pointer there",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parsePositive("cue", args[0])
			if err != nil {
				return err
			}
			var resp outcome
			path := fmt.Sprintf("/api/cuestack/cues/%d/run", n-1)
			if err := ctx.client().do(cmd.Context(), http.MethodPost, path, nil, &resp); err != nil {
				return err
			}
			return printOutcome(cmd, resp)
		},
	}

	cmd.AddCommand(list, run)
	return cmd
}

func cueLabel(c cuestack.Cue, presets map[string]string) string {
	switch {
	case c.Custom != nil:
		return c.Custom.Label
	case c.PresetID != "":
		if label, ok := presets[c.PresetID]; ok {
			return label
		}
		return c.PresetID + " (missing)"
	}
	return "-"
}

func cueSource(c cuestack.Cue) string {
	switch {
	case c.Custom != nil:
		return fmt.Sprintf("custom, %d steps", len(c.Custom.Actions))
	case c.PresetID != "":
		return "preset " + c.PresetID
	}
	return "empty"
}

func newPresetsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List and run presets",
	}

	var jsonOut bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc store.Presets
			if err := ctx.client().do(cmd.Context(), http.MethodGet, "/api/presets", nil, &doc); err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, doc)
			}
			if len(doc.Presets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No presets")
				return nil
			}
			rows := make([][]string, 0, len(doc.Presets))
			for _, p := range doc.Presets {
				rows = append(rows, []string{p.ID, p.Label, p.Hotkey, strconv.Itoa(len(p.Macro)), summarizeMacro(p.Macro)})
			}
			printTable(cmd.OutOrStdout(), presetColumns, rows)
			return nil
		},
	}
	list.Flags().BoolVar(&jsonOut, "json", false, "Print the raw JSON response")

	run := &cobra.Command{
		Use:   "run <id>",
		Short: "Run a preset's macro",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				OK   bool   `json:"ok"`
				Name string `json:"name"`
				macro.Report
			}
			path := "/api/presets/" + args[0] + "/run"
			if err := ctx.client().do(cmd.Context(), http.MethodPost, path, nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ran %s: %d of %d steps\n", resp.Name, resp.Executed, resp.TotalSteps)
			for _, r := range resp.Results {
				if !r.OK {
					fmt.Fprintf(cmd.OutOrStdout(), "  step %d %s failed: %s\n", r.Step, r.Action, r.Error)
				}
			}
			if !resp.Report.OK() {
				return errors.New("macro did not complete cleanly")
			}
			return nil
		},
	}

	cmd.AddCommand(list, run)
	return cmd
}

func summarizeMacro(steps []macro.Step) string {
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, ", ")
}

type debugInfo struct {
	Connected       bool           `json:"connected"`
	ResolumeURL     string         `json:"resolumeUrl"`
	CompositionName string         `json:"compositionName"`
	LayerCount      int            `json:"layerCount"`
	Program         map[string]any `json:"program"`
	Preview         map[string]any `json:"preview"`
	BPM             any            `json:"bpm"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the server's mixer connection and program state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			var conn httpapi.ConnectionInfo
			if err := client.do(cmd.Context(), http.MethodGet, "/api/connection", nil, &conn); err != nil {
				return err
			}
			var dbg debugInfo
			dbgErr := client.do(cmd.Context(), http.MethodGet, "/api/debug", nil, &dbg)

			if jsonOut {
				return writeJSON(cmd, map[string]any{"connection": conn, "debug": dbg})
			}
			rows := [][]string{
				{"Server", ctx.serverURL()},
				{"Resolume", fmt.Sprintf("%s:%d", conn.Host, conn.RestPort)},
				{"REST reachable", yesNo(conn.Connected)},
				{"OSC", fmt.Sprintf("%s (port %d)", yesNo(conn.OSC), conn.OSCPort)},
			}
			if conn.Mock {
				rows = append(rows, []string{"Mock mixer", "yes"})
			}
			if conn.Error != "" {
				rows = append(rows, []string{"Error", conn.Error})
			}
			if dbgErr == nil && dbg.Connected {
				rows = append(rows,
					[]string{"Composition", dbg.CompositionName},
					[]string{"Layers", strconv.Itoa(dbg.LayerCount)},
					[]string{"Program", describeClip(dbg.Program)},
					[]string{"Preview", describeClip(dbg.Preview)},
					[]string{"BPM", fmt.Sprint(dbg.BPM)},
				)
			}
			printTable(cmd.OutOrStdout(), fieldColumns, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the raw JSON responses")
	return cmd
}

func describeClip(ref map[string]any) string {
	name := fmt.Sprint(ref["clipName"])
	if name == composition.Placeholder || name == "<nil>" {
		return composition.Placeholder
	}
	return fmt.Sprintf("%s (layer %v column %v)", name, ref["layer"], ref["column"])
}
