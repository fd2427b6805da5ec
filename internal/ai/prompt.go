package ai

import (
	"fmt"
	"sort"
	"strings"

	"github.com/railsplan/railsplan/internal/appcontext"
)

// Task names the kind of work a prompt asks for. Tasks double as the
// command recorded in the prompt log.
type Task string

const (
	TaskChat         Task = "chat"
	TaskExplain      Task = "explain"
	TaskRefactor     Task = "refactor"
	TaskFix          Task = "fix"
	TaskGenerate     Task = "generate"
	TaskGenerateTest Task = "generate_test"
)

const baseSystemPrompt = `You are an expert Ruby on Rails developer working inside an existing application.
Follow Rails conventions, keep changes minimal and idiomatic, and only reference
models, tables and routes that exist in the application context you are given.`

const generationContract = `Respond with a single JSON object and nothing else:
{"description": "<one paragraph>", "files": {"<app-relative path>": "<full file content>"}, "instructions": ["<follow-up step>"]}`

// PromptInput is everything a prompt can carry
type PromptInput struct {
	Task        Task
	Instruction string
	Format      Format
	// FilePath and FileContent are set for explain and refactor
	FilePath    string
	FileContent string
	// TestType narrows generate_test (model, request, system)
	TestType string
}

// BuildRequest assembles the system and user prompt for a task
func BuildRequest(ctx *appcontext.Context, in PromptInput) Request {
	format := in.Format
	if in.Task == TaskGenerate || in.Task == TaskGenerateTest {
		format = FormatJSON
	}
	if format == "" {
		format = FormatMarkdown
	}

	system := baseSystemPrompt
	switch in.Task {
	case TaskGenerate:
		system += "\n\nGenerate the files needed for the request.\n" + generationContract
	case TaskGenerateTest:
		kind := in.TestType
		if kind == "" {
			kind = "model"
		}
		system += fmt.Sprintf("\n\nWrite %s tests using the test framework the application already uses.\n%s", kind, generationContract)
	case TaskExplain:
		system += "\n\nExplain what the given file does and how it fits the application."
	case TaskRefactor:
		system += "\n\nSuggest a refactoring of the given file. Show the complete rewritten file."
	case TaskFix:
		system += "\n\nDiagnose the described issue and propose a concrete fix."
	}
	if format != FormatJSON {
		system += fmt.Sprintf("\n\nFormat your answer as %s.", format)
	}

	var b strings.Builder
	if ctx != nil {
		b.WriteString("## Application context\n\n")
		b.WriteString(SummarizeContext(ctx))
		b.WriteString("\n")
	}
	if in.FilePath != "" {
		fmt.Fprintf(&b, "## File: %s\n\n```ruby\n%s\n```\n\n", in.FilePath, strings.TrimRight(in.FileContent, "\n"))
	}
	if in.Instruction != "" {
		b.WriteString("## Request\n\n")
		b.WriteString(in.Instruction)
		b.WriteString("\n")
	}

	return Request{System: system, Prompt: b.String(), Format: format}
}

// SummarizeContext renders a compact, deterministic description of ctx
func SummarizeContext(ctx *appcontext.Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Application: %s\n", ctx.AppName)

	if len(ctx.Models) > 0 {
		b.WriteString("\nModels:\n")
		for _, m := range ctx.Models {
			fmt.Fprintf(&b, "- %s", m.ClassName)
			var assoc []string
			for _, a := range m.Associations {
				assoc = append(assoc, a.Kind+" :"+a.Name)
			}
			if len(assoc) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(assoc, ", "))
			}
			var validated []string
			for _, v := range m.Validations {
				validated = append(validated, v.Attributes...)
			}
			if len(validated) > 0 {
				fmt.Fprintf(&b, " validates %s", strings.Join(validated, ", "))
			}
			b.WriteString("\n")
		}
	}

	if len(ctx.Schema) > 0 {
		b.WriteString("\nSchema:\n")
		for _, name := range ctx.TableNames() {
			table := ctx.Schema[name]
			cols := make([]string, 0, len(table.Columns))
			for col, def := range table.Columns {
				cols = append(cols, col+":"+def.Type)
			}
			sort.Strings(cols)
			fmt.Fprintf(&b, "- %s: %s\n", name, strings.Join(cols, ", "))
		}
	}

	if len(ctx.Routes) > 0 {
		b.WriteString("\nRoutes:\n")
		for _, r := range ctx.Routes {
			target := r.Controller
			if r.Action != "" {
				target += "#" + r.Action
			}
			fmt.Fprintf(&b, "- %s %s -> %s\n", r.Verb, r.Path, target)
		}
	}

	if len(ctx.Modules) > 0 {
		fmt.Fprintf(&b, "\nInstalled modules: %s\n", strings.Join(ctx.Modules, ", "))
	}
	return b.String()
}
