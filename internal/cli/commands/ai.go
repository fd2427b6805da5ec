package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/railsplan/railsplan/internal/ai"
	"github.com/railsplan/railsplan/internal/appcontext"
	"github.com/railsplan/railsplan/internal/cli/ui"
	"github.com/railsplan/railsplan/internal/docs"
)

func bindAIFlags(flags *pflag.FlagSet, opts *aiOptions) {
	flags.StringVar(&opts.Provider, "provider", "", "AI provider (openai, anthropic, gemini, cursor)")
	flags.StringVar(&opts.Profile, "profile", "", "Profile from ~/.railsplan/ai.yml")
	flags.StringVar(&opts.Model, "model", "", "Model override")
}

// ask runs fn behind a spinner and tags provider failures with the provider
// name for the error renderer
func ask[T any](app *App, asst *ai.Assistant, fn func() (T, error)) (T, error) {
	var result T
	err := ui.WithSpinner(app.Err, fmt.Sprintf("Waiting for %s", asst.Provider()), app.Options.NoColor, func() error {
		var err error
		result, err = fn()
		return err
	})
	if err != nil && errors.Is(err, ai.ErrProviderFailed) {
		err = &providerErr{provider: string(asst.Provider()), err: err}
	}
	return result, err
}

func printResponse(app *App, resp *ai.Response) {
	if resp.Handoff != "" {
		printHandoff(app, resp.Handoff)
		return
	}
	fmt.Fprintln(app.Out, strings.TrimRight(resp.Text, "\n"))
}

func printHandoff(app *App, path string) {
	fmt.Fprint(app.Out, ui.Info(fmt.Sprintf("Prompt written to %s; open it in Cursor to continue", path), app.Options.NoColor))
}

// GenerateOptions holds the flags of the generate command
type GenerateOptions struct {
	AI     aiOptions
	DryRun bool
	Force  bool
}

// NewGenerateCommand creates the generate command
func NewGenerateCommand(app *App) *cobra.Command {
	opts := &GenerateOptions{}
	cmd := &cobra.Command{
		Use:   "generate INSTRUCTION",
		Short: "Generate code from an instruction with AI",
		Long: `Ask the configured AI provider to implement an instruction in this app.
The app context is sent along so the answer matches existing models and
routes. Files are written inside the app only; overwritten files are kept
in .railsplan/last_generated/.

Examples:
  railsplan generate "add a Comment model belonging to Post"
  railsplan generate "add an archive action to posts" --dry-run
  railsplan generate docs
  railsplan generate test "Post validations" --type model`,
		Aliases: []string{"g"},
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instruction := strings.Join(args, " ")
			return runGenerate(cmd.Context(), app, opts, func(asst *ai.Assistant) (*ai.GenerateResult, error) {
				return asst.Generate(cmd.Context(), instruction, ai.WriteOptions{DryRun: opts.DryRun, Force: opts.Force})
			})
		},
	}
	bindAIFlags(cmd.Flags(), &opts.AI)
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Show the files without writing them")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Overwrite files that already exist")

	cmd.AddCommand(NewGenerateDocsCommand(app))
	cmd.AddCommand(NewGenerateTestCommand(app))
	return cmd
}

// GenerateTestOptions holds the flags of the generate test command
type GenerateTestOptions struct {
	GenerateOptions
	Type string
}

// NewGenerateTestCommand creates the generate test command
func NewGenerateTestCommand(app *App) *cobra.Command {
	opts := &GenerateTestOptions{}
	cmd := &cobra.Command{
		Use:   "test INSTRUCTION",
		Short: "Generate tests with AI",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch opts.Type {
			case "model", "request", "system":
			default:
				return fmt.Errorf("unknown test type %q (expected model, request or system)", opts.Type)
			}
			instruction := strings.Join(args, " ")
			return runGenerate(cmd.Context(), app, &opts.GenerateOptions, func(asst *ai.Assistant) (*ai.GenerateResult, error) {
				return asst.GenerateTest(cmd.Context(), instruction, opts.Type, ai.WriteOptions{DryRun: opts.DryRun, Force: opts.Force})
			})
		},
	}
	bindAIFlags(cmd.Flags(), &opts.AI)
	cmd.Flags().StringVarP(&opts.Type, "type", "t", "model", "Test type: model, request or system")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Show the files without writing them")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Overwrite files that already exist")
	return cmd
}

func runGenerate(ctx context.Context, app *App, opts *GenerateOptions, fn func(*ai.Assistant) (*ai.GenerateResult, error)) error {
	asst, err := app.Assistant(ctxOrBackground(ctx), opts.AI)
	if err != nil {
		return err
	}
	result, err := ask(app, asst, func() (*ai.GenerateResult, error) { return fn(asst) })
	if result != nil {
		printGeneration(app, result, opts.DryRun)
	}
	return err
}

func printGeneration(app *App, result *ai.GenerateResult, dryRun bool) {
	if result.Handoff != "" {
		printHandoff(app, result.Handoff)
		return
	}
	if result.Generation == nil {
		return
	}

	if result.Generation.Description != "" {
		fmt.Fprintln(app.Out, result.Generation.Description)
		fmt.Fprintln(app.Out)
	}

	table := ui.NewTable(app.Out, []string{"ACTION", "PATH", "BACKUP"}, &ui.TableOptions{NoColor: app.Options.NoColor})
	for _, f := range result.Files {
		table.AddRow(string(f.Action), f.Path, f.Backup)
	}
	table.Render()

	if dryRun {
		fmt.Fprintln(app.Out, color.YellowString("\nDry run: nothing was written."))
	}
	for _, f := range result.Files {
		if f.Action == ai.FileSkipped {
			fmt.Fprint(app.Out, ui.Warning("Some files already exist and were skipped", []string{"Re-run with --force to overwrite them"}, app.Options.NoColor))
			break
		}
	}

	if len(result.Generation.Instructions) > 0 {
		fmt.Fprintln(app.Out)
		fmt.Fprintln(app.Out, color.CyanString("Follow-up steps:"))
		list := ui.NewList(app.Out, ui.ListOptions{Numbered: true, NoColor: app.Options.NoColor})
		for _, step := range result.Generation.Instructions {
			list.AddItem(step)
		}
		list.Render()
	}
}

// GenerateDocsOptions holds the flags of the generate docs command
type GenerateDocsOptions struct {
	Overwrite bool
	DryRun    bool
	Silent    bool
}

// NewGenerateDocsCommand creates the generate docs command
func NewGenerateDocsCommand(app *App) *cobra.Command {
	opts := &GenerateDocsOptions{}
	cmd := &cobra.Command{
		Use:   "docs [TYPE]",
		Short: "Generate Markdown documentation from the app context",
		Long: `Write README.md, docs/schema.md, docs/api.md and docs/models.md from
.railsplan/context.json. TYPE limits the output to readme, schema, api or
models. Existing files are kept unless --overwrite is given.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"readme", "schema", "api", "models", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var typeArg string
			if len(args) == 1 {
				typeArg = args[0]
			}
			return runGenerateDocs(app, typeArg, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "Replace existing documents")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Report what would be written")
	cmd.Flags().BoolVarP(&opts.Silent, "silent", "s", false, "Print nothing on success")
	return cmd
}

func runGenerateDocs(app *App, typeArg string, opts *GenerateDocsOptions) error {
	types, err := docs.ParseDocType(typeArg)
	if err != nil {
		return err
	}

	appCtx, err := appcontext.NewStore(app.Root).Load()
	if err != nil {
		return err
	}

	gen := docs.NewGenerator(&docs.Config{
		AppRoot:   app.Root,
		Types:     types,
		Overwrite: opts.Overwrite,
		DryRun:    opts.DryRun,
	}, app.Logger, app.Out)

	results, err := gen.Generate(appCtx)
	if err != nil {
		return err
	}
	if opts.Silent {
		return nil
	}

	table := ui.NewTable(app.Out, []string{"DOCUMENT", "PATH", "RESULT"}, &ui.TableOptions{NoColor: app.Options.NoColor})
	skipped := false
	for _, r := range results {
		table.AddRow(string(r.Type), r.Path, string(r.Action))
		skipped = skipped || r.Action == docs.ActionSkipped
	}
	table.Render()
	if opts.DryRun {
		fmt.Fprintln(app.Out, color.YellowString("\nDry run: nothing was written."))
	}
	if skipped {
		fmt.Fprint(app.Out, ui.Warning("Existing documents were kept", []string{"Use --overwrite to replace them"}, app.Options.NoColor))
	}
	return nil
}

// ChatOptions holds the flags of the chat command
type ChatOptions struct {
	AI     aiOptions
	Format string
}

// NewChatCommand creates the chat command
func NewChatCommand(app *App) *cobra.Command {
	opts := &ChatOptions{}
	cmd := &cobra.Command{
		Use:   "chat [PROMPT]",
		Short: "Ask the AI about this application",
		Long: `Ask a question grounded in the app context. Without PROMPT an
interactive session starts; type 'exit' to leave.

Examples:
  railsplan chat "which models have no validations?"
  railsplan chat --provider anthropic
  railsplan chat "schema of posts" --format json`,
		Annotations: map[string]string{appAnnotation: appOptional},
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := ai.ParseFormat(opts.Format)
			if err != nil {
				return err
			}
			asst, err := app.Assistant(ctxOrBackground(cmd.Context()), opts.AI)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				return chatOnce(cmd.Context(), app, asst, strings.Join(args, " "), format)
			}
			return chatLoop(cmd.Context(), app, asst, format)
		},
	}
	bindAIFlags(cmd.Flags(), &opts.AI)
	cmd.Flags().StringVar(&opts.Format, "format", "markdown", "Answer format: markdown, json or ruby")
	return cmd
}

func chatOnce(ctx context.Context, app *App, asst *ai.Assistant, prompt string, format ai.Format) error {
	resp, err := ask(app, asst, func() (*ai.Response, error) {
		return asst.Chat(ctxOrBackground(ctx), prompt, format)
	})
	if err != nil {
		return err
	}
	printResponse(app, resp)
	return nil
}

func chatLoop(ctx context.Context, app *App, asst *ai.Assistant, format ai.Format) error {
	fmt.Fprintf(app.Out, "%s session %s with %s (type 'exit' to quit)\n",
		color.CyanString("railsplan chat"), asst.Session(), asst.Provider())

	for {
		var prompt string
		err := survey.AskOne(&survey.Input{Message: "you>"}, &prompt)
		if errors.Is(err, terminal.InterruptErr) {
			return nil
		}
		if err != nil {
			return err
		}

		prompt = strings.TrimSpace(prompt)
		switch prompt {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if err := chatOnce(ctx, app, asst, prompt, format); err != nil {
			// one failed turn does not end the session
			renderError(app, err)
		}
		fmt.Fprintln(app.Out)
	}
}

func newAskCommand(app *App, use, short string, call func(ctx context.Context, asst *ai.Assistant, arg string) (*ai.Response, error)) *cobra.Command {
	opts := &aiOptions{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := ctxOrBackground(cmd.Context())
			asst, err := app.Assistant(ctx, *opts)
			if err != nil {
				return err
			}
			resp, err := ask(app, asst, func() (*ai.Response, error) {
				return call(ctx, asst, strings.Join(args, " "))
			})
			if err != nil {
				return err
			}
			printResponse(app, resp)
			return nil
		},
	}
	bindAIFlags(cmd.Flags(), opts)
	return cmd
}

// NewExplainCommand creates the explain command
func NewExplainCommand(app *App) *cobra.Command {
	return newAskCommand(app, "explain PATH", "Explain a file of the application",
		func(ctx context.Context, asst *ai.Assistant, path string) (*ai.Response, error) {
			return asst.Explain(ctx, path)
		})
}

// NewRefactorCommand creates the refactor command
func NewRefactorCommand(app *App) *cobra.Command {
	return newAskCommand(app, "refactor PATH", "Suggest a refactoring for a file",
		func(ctx context.Context, asst *ai.Assistant, path string) (*ai.Response, error) {
			return asst.Refactor(ctx, path)
		})
}

// NewFixCommand creates the fix command
func NewFixCommand(app *App) *cobra.Command {
	return newAskCommand(app, "fix ISSUE_DESCRIPTION", "Propose a fix for a described problem",
		func(ctx context.Context, asst *ai.Assistant, issue string) (*ai.Response, error) {
			return asst.Fix(ctx, issue)
		})
}

// ReplayOptions holds the flags of the replay command
type ReplayOptions struct {
	AI      aiOptions
	Session string
	Command string
	Limit   int
	DryRun  bool
}

// NewReplayCommand creates the replay command
func NewReplayCommand(app *App) *cobra.Command {
	opts := &ReplayOptions{}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-send logged prompts to the current provider",
		Long: `Replay entries of .railsplan/prompts.log, optionally filtered by session
or command. With --dry-run the matching entries are only listed.

Examples:
  railsplan replay --dry-run
  railsplan replay --session 6f1c... --provider anthropic`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), app, opts)
		},
	}
	bindAIFlags(cmd.Flags(), &opts.AI)
	cmd.Flags().StringVar(&opts.Session, "session", "", "Only replay this session")
	cmd.Flags().StringVar(&opts.Command, "command", "", "Only replay this command (chat, generate, explain...)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Replay at most the last N entries")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "List the entries without calling the provider")
	return cmd
}

func runReplay(ctx context.Context, app *App, opts *ReplayOptions) error {
	filter := ai.LogFilter{Session: opts.Session, Command: opts.Command, Limit: opts.Limit}

	if opts.DryRun {
		entries, err := ai.NewPromptLog(app.Root).Read(filter)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(app.Out, "No matching prompts.")
			return nil
		}
		table := ui.NewTable(app.Out, []string{"TIME", "SESSION", "COMMAND", "PROMPT"}, &ui.TableOptions{NoColor: app.Options.NoColor})
		for _, e := range entries {
			table.AddRow(e.Timestamp.Format("2006-01-02 15:04"), e.Session, e.Command, excerpt(requestText(e.Prompt), 60))
		}
		table.Render()
		return nil
	}

	ctx = ctxOrBackground(ctx)
	asst, err := app.Assistant(ctx, opts.AI)
	if err != nil {
		return err
	}
	results, err := ask(app, asst, func() ([]ai.ReplayResult, error) {
		return asst.Replay(ctx, filter, false)
	})
	for _, r := range results {
		ui.Header(app.Out, fmt.Sprintf("%s (%s)", r.Original.Command, r.Original.Timestamp.Format("2006-01-02 15:04")), app.Options.NoColor)
		fmt.Fprintln(app.Out, excerpt(requestText(r.Original.Prompt), 200))
		fmt.Fprintln(app.Out)
		if r.Response != nil {
			printResponse(app, r.Response)
		}
		fmt.Fprintln(app.Out)
	}
	if err == nil && len(results) == 0 {
		fmt.Fprintln(app.Out, "No matching prompts.")
	}
	return err
}

// requestText drops the context preamble of a logged prompt
func requestText(prompt string) string {
	const marker = "## Request\n\n"
	if i := strings.LastIndex(prompt, marker); i >= 0 {
		return prompt[i+len(marker):]
	}
	return prompt
}

// excerpt collapses whitespace and cuts s to n runes
func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
