package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/railsplan/railsplan/internal/appcontext"
	"github.com/railsplan/railsplan/internal/utils"
)

// ErrProviderFailed wraps any error returned by a provider call
var ErrProviderFailed = errors.New("AI provider request failed")

// AssistantConfig wires an Assistant
type AssistantConfig struct {
	AppRoot  string
	Provider Provider
	Log      *PromptLog
	// Context grounds prompts; nil sends prompts without app context
	Context *appcontext.Context
	Logger  *zap.Logger
	Out     io.Writer
}

// Assistant runs AI tasks against one app
type Assistant struct {
	appRoot  string
	provider Provider
	log      *PromptLog
	context  *appcontext.Context
	logger   *zap.Logger
	out      io.Writer
}

// NewAssistant creates an Assistant
func NewAssistant(cfg AssistantConfig) *Assistant {
	a := &Assistant{
		appRoot:  cfg.AppRoot,
		provider: cfg.Provider,
		log:      cfg.Log,
		context:  cfg.Context,
		logger:   cfg.Logger,
		out:      cfg.Out,
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.out == nil {
		a.out = io.Discard
	}
	if a.log == nil {
		a.log = NewPromptLog(cfg.AppRoot)
	}
	return a
}

// Session returns the prompt log session of this assistant
func (a *Assistant) Session() string {
	return a.log.Session()
}

// Provider returns the name of the provider answering prompts
func (a *Assistant) Provider() ProviderName {
	return a.provider.Name()
}

// Ask builds a prompt for in, sends it and records the exchange
func (a *Assistant) Ask(ctx context.Context, in PromptInput) (*Response, error) {
	req := BuildRequest(a.context, in)
	return a.send(ctx, string(in.Task), req, nil)
}

func (a *Assistant) send(ctx context.Context, command string, req Request, metadata map[string]string) (*Response, error) {
	a.logger.Debug("sending prompt",
		zap.String("provider", string(a.provider.Name())),
		zap.String("command", command),
		zap.Int("prompt_bytes", len(req.Prompt)))

	resp, err := a.provider.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProviderFailed, a.provider.Name(), err)
	}

	if _, err := a.log.Append(command, req, resp, metadata); err != nil {
		// the answer is still useful without a log entry
		a.logger.Warn("failed to record prompt", zap.Error(err))
	}
	return resp, nil
}

// Chat answers a free-form question
func (a *Assistant) Chat(ctx context.Context, prompt string, format Format) (*Response, error) {
	return a.Ask(ctx, PromptInput{Task: TaskChat, Instruction: prompt, Format: format})
}

// Explain describes the file at path, relative to the app root
func (a *Assistant) Explain(ctx context.Context, path string) (*Response, error) {
	content, err := a.readAppFile(path)
	if err != nil {
		return nil, err
	}
	return a.Ask(ctx, PromptInput{Task: TaskExplain, FilePath: path, FileContent: content})
}

// Refactor suggests a rewrite of the file at path
func (a *Assistant) Refactor(ctx context.Context, path string) (*Response, error) {
	content, err := a.readAppFile(path)
	if err != nil {
		return nil, err
	}
	return a.Ask(ctx, PromptInput{
		Task:        TaskRefactor,
		FilePath:    path,
		FileContent: content,
		Format:      FormatRuby,
	})
}

// Fix proposes a fix for a described issue
func (a *Assistant) Fix(ctx context.Context, issue string) (*Response, error) {
	return a.Ask(ctx, PromptInput{Task: TaskFix, Instruction: issue})
}

// GenerateResult is the outcome of a generate or generate test call
type GenerateResult struct {
	Generation *Generation
	Files      []WrittenFile
	// Handoff is set when the provider did not answer directly
	Handoff string
}

// Generate asks for files implementing instruction and writes them
func (a *Assistant) Generate(ctx context.Context, instruction string, opts WriteOptions) (*GenerateResult, error) {
	return a.generate(ctx, PromptInput{Task: TaskGenerate, Instruction: instruction}, opts)
}

// GenerateTest asks for tests of the given type (model, request, system)
func (a *Assistant) GenerateTest(ctx context.Context, instruction, testType string, opts WriteOptions) (*GenerateResult, error) {
	return a.generate(ctx, PromptInput{Task: TaskGenerateTest, Instruction: instruction, TestType: testType}, opts)
}

func (a *Assistant) generate(ctx context.Context, in PromptInput, opts WriteOptions) (*GenerateResult, error) {
	resp, err := a.Ask(ctx, in)
	if err != nil {
		return nil, err
	}
	if resp.Handoff != "" {
		return &GenerateResult{Handoff: resp.Handoff}, nil
	}

	gen, err := ParseGeneration(resp.Text)
	if err != nil {
		return nil, err
	}

	files, err := NewFileWriter(a.appRoot, a.logger, a.out).Write(gen, opts)
	return &GenerateResult{Generation: gen, Files: files}, err
}

// ReplayResult pairs a logged entry with the fresh answer to it
type ReplayResult struct {
	Original PromptLogEntry
	Response *Response
}

// Replay re-sends logged prompts to the current provider. With dryRun the
// matching entries are returned without calling the provider.
func (a *Assistant) Replay(ctx context.Context, filter LogFilter, dryRun bool) ([]ReplayResult, error) {
	entries, err := a.log.Read(filter)
	if err != nil {
		return nil, err
	}

	results := make([]ReplayResult, 0, len(entries))
	for _, entry := range entries {
		if dryRun {
			results = append(results, ReplayResult{Original: entry})
			continue
		}
		req := Request{System: entry.System, Prompt: entry.Prompt}
		resp, err := a.send(ctx, entry.Command, req, map[string]string{"replay_of": entry.Session})
		if err != nil {
			return results, err
		}
		results = append(results, ReplayResult{Original: entry, Response: resp})
	}
	return results, nil
}

func (a *Assistant) readAppFile(path string) (string, error) {
	abs, err := utils.WithinDir(a.appRoot, path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}
