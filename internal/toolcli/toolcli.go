// Package toolcli invokes registered tools directly from the command line,
// without an MCP server in between. Tools run in-process via the registry.
package toolcli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/quillhaven/docsmith/internal/registry"
	"github.com/quillhaven/docsmith/internal/tools"
	"github.com/sirupsen/logrus"
)

// OutputFormat controls how tool results are rendered.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// Runner executes tools against the registry.
type Runner struct {
	logger *logrus.Logger
	cache  *sync.Map
	output OutputFormat
}

// NewRunner creates a Runner with the given logger, shared cache and output format.
func NewRunner(logger *logrus.Logger, cache *sync.Map, output OutputFormat) *Runner {
	return &Runner{logger: logger, cache: cache, output: output}
}

// ListTools prints the enabled tools with a one-line description each.
func (r *Runner) ListTools() error {
	enabled := registry.GetEnabledTools()

	names := make([]string, 0, len(enabled))
	for name := range enabled {
		names = append(names, name)
	}
	sort.Strings(names)

	if r.output == OutputJSON {
		type entry struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		out := make([]entry, 0, len(names))
		for _, name := range names {
			def := enabled[name].Definition()
			out = append(out, entry{Name: def.Name, Description: firstLine(def.Description)})
		}
		return writeJSON(out)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, name := range names {
		def := enabled[name].Definition()
		fmt.Fprintf(w, "%s\t%s\n", def.Name, firstLine(def.Description))
	}
	return w.Flush()
}

// DescribeTool prints the named tool's full description, input schema and,
// when the tool provides it, extended usage guidance.
func (r *Runner) DescribeTool(name string) error {
	resolved := strings.ReplaceAll(name, "-", "_")
	tool, ok := registry.GetTool(resolved)
	if !ok {
		return fmt.Errorf("unknown tool: %s (run 'docsmith tool --list' to see available tools)", name)
	}

	def := tool.Definition()
	help := extendedHelp(tool)

	if r.output == OutputJSON {
		out := map[string]any{
			"name":        def.Name,
			"description": def.Description,
			"parameters":  def.InputSchema.Properties,
		}
		if help != nil {
			out["help"] = help
		}
		return writeJSON(out)
	}

	fmt.Fprintf(os.Stdout, "%s\n\n%s\n", def.Name, def.Description)

	paramNames := make([]string, 0, len(def.InputSchema.Properties))
	for name := range def.InputSchema.Properties {
		paramNames = append(paramNames, name)
	}
	sort.Strings(paramNames)
	if len(paramNames) > 0 {
		fmt.Fprintln(os.Stdout, "\nParameters:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, name := range paramNames {
			desc := ""
			if pm, ok := def.InputSchema.Properties[name].(map[string]any); ok {
				desc, _ = pm["description"].(string)
			}
			fmt.Fprintf(w, "  --%s\t%s\n", strings.ReplaceAll(name, "_", "-"), firstLine(desc))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if help == nil {
		return nil
	}
	if help.WhenToUse != "" {
		fmt.Fprintf(os.Stdout, "\nWhen to use: %s\n", help.WhenToUse)
	}
	if help.WhenNotToUse != "" {
		fmt.Fprintf(os.Stdout, "When not to use: %s\n", help.WhenNotToUse)
	}
	for _, example := range help.Examples {
		args, err := json.Marshal(example.Arguments)
		if err != nil {
			continue
		}
		fmt.Fprintf(os.Stdout, "\nExample: %s\n  docsmith tool %s '%s'\n", example.Description, def.Name, args)
	}
	if len(help.Troubleshooting) > 0 {
		fmt.Fprintln(os.Stdout, "\nTroubleshooting:")
		for _, tip := range help.Troubleshooting {
			fmt.Fprintf(os.Stdout, "  %s\n    %s\n", tip.Problem, tip.Solution)
		}
	}
	return nil
}

func extendedHelp(tool tools.Tool) *tools.ExtendedHelp {
	provider, ok := tool.(tools.ExtendedHelpProvider)
	if !ok {
		return nil
	}
	return provider.ProvideExtendedInfo()
}

// RunTool executes the named tool. Arguments can be --key=value flags, a
// single JSON object, or a mix; flags win on conflict.
func (r *Runner) RunTool(ctx context.Context, name string, args []string) error {
	resolved := strings.ReplaceAll(name, "-", "_")
	tool, ok := registry.GetTool(resolved)
	if !ok {
		return fmt.Errorf("unknown tool: %s (run 'docsmith tool --list' to see available tools)", name)
	}

	params, err := parseArgs(args, tool.Definition())
	if err != nil {
		return fmt.Errorf("argument error: %w", err)
	}

	result, err := tool.Execute(ctx, r.logger, r.cache, params)
	if err != nil {
		return fmt.Errorf("tool error: %w", err)
	}
	return r.renderResult(result)
}

// parseArgs converts CLI arguments into the map a tool's Execute expects.
func parseArgs(args []string, def mcp.Tool) (map[string]any, error) {
	params := make(map[string]any)
	types := paramTypes(def)

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "{") {
			var obj map[string]any
			if err := json.Unmarshal([]byte(arg), &obj); err != nil {
				return nil, fmt.Errorf("invalid JSON argument: %w", err)
			}
			for k, v := range obj {
				if _, exists := params[k]; !exists {
					params[k] = v
				}
			}
			continue
		}

		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument: %s (use --key=value flags or a JSON object)", arg)
		}

		stripped := strings.TrimPrefix(arg, "--")
		if key, raw, found := strings.Cut(stripped, "="); found {
			key = flagToParam(key)
			params[key] = coerceValue(raw, types[key])
			continue
		}

		key := flagToParam(stripped)
		if types[key] == "boolean" {
			params[key] = true
			continue
		}
		i++
		if i >= len(args) {
			return nil, fmt.Errorf("flag --%s requires a value", stripped)
		}
		params[key] = coerceValue(args[i], types[key])
	}

	return params, nil
}

// paramTypes maps parameter names to their JSON Schema types.
func paramTypes(def mcp.Tool) map[string]string {
	types := make(map[string]string, len(def.InputSchema.Properties))
	for name, prop := range def.InputSchema.Properties {
		if pm, ok := prop.(map[string]any); ok {
			if t, ok := pm["type"].(string); ok {
				types[name] = t
			}
		}
	}
	return types
}

// flagToParam maps kebab-case flag names to snake_case parameter names.
func flagToParam(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

// coerceValue converts a raw string to the parameter's schema type.
func coerceValue(raw, schemaType string) any {
	switch schemaType {
	case "number", "integer":
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
		return raw
	case "boolean":
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
		return raw
	default:
		return raw
	}
}

// renderResult prints a tool result to stdout.
func (r *Runner) renderResult(result *mcp.CallToolResult) error {
	if result == nil {
		return nil
	}
	if r.output == OutputJSON {
		return writeJSON(result)
	}
	for _, content := range result.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			fmt.Fprintln(os.Stdout, c.Text)
		default:
			data, err := json.MarshalIndent(c, "", "  ")
			if err != nil {
				fmt.Fprintf(os.Stdout, "%+v\n", c)
				continue
			}
			fmt.Fprintln(os.Stdout, string(data))
		}
	}
	if result.IsError {
		return fmt.Errorf("tool returned an error")
	}
	return nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstLine(s string) string {
	if before, _, found := strings.Cut(s, "\n"); found {
		return before
	}
	return s
}
