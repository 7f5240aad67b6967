package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/lexiqai/gh-activity-agent/internal/ghcli"
)

const (
	prListFields    = "number,title,state,createdAt,mergedAt,url,author"
	prDetailFields  = "number,title,state,body,additions,deletions,changedFiles,files,commits"
	complexityField = "files,additions,deletions,changedFiles"

	verificationNote = "You can verify these PRs by visiting the provided URLs"
)

// Settings scope every query to one organization.
type Settings struct {
	Org         string
	DefaultRepo string
	Binary      string
}

// GitHub implements the gh-backed tools.
type GitHub struct {
	runner   ghcli.Runner
	settings Settings
	logger   zerolog.Logger
}

// NewGitHub creates the tool implementations.
func NewGitHub(runner ghcli.Runner, settings Settings, logger zerolog.Logger) *GitHub {
	if settings.Binary == "" {
		settings.Binary = "gh"
	}
	return &GitHub{
		runner:   runner,
		settings: settings,
		logger:   logger.With().Str("component", "tools").Logger(),
	}
}

func (g *GitHub) fullRepo(repo string) string {
	return g.settings.Org + "/" + repo
}

// run executes one gh query. It returns stdout when the command succeeded
// and printed JSON, otherwise the failure to hand back to the model.
func (g *GitHub) run(ctx context.Context, action string, args []string) ([]byte, *Result) {
	command := ghcli.FormatCommand(g.settings.Binary, args)
	g.logger.Debug().Str("command", command).Msg("Executing GitHub CLI command")

	res, err := g.runner.Run(ctx, args)
	if err != nil {
		g.logger.Error().Err(err).Str("command", command).Msg("GitHub CLI command could not run")
		f := Failure(fmt.Sprintf("Error trying to %s: %v", action, err), map[string]any{"command": command})
		return nil, &f
	}
	if !res.OK() {
		stderr := strings.TrimSpace(res.Stderr)
		g.logger.Warn().
			Int("exit_code", res.ExitCode).
			Str("command", command).
			Str("stderr", stderr).
			Msg("GitHub CLI command failed")
		f := Failure(fmt.Sprintf("Failed to %s: %s", action, stderr), map[string]any{"command": command})
		return nil, &f
	}

	out := bytes.TrimSpace([]byte(res.Stdout))
	if !json.Valid(out) {
		g.logger.Warn().Str("command", command).Msg("GitHub CLI output is not JSON")
		f := Failure("Failed to parse GitHub CLI output as JSON", map[string]any{"raw_output": res.Stdout})
		return nil, &f
	}
	return out, nil
}

func invalidArgs(tool string, err error) Result {
	return Failure("Invalid arguments for "+tool, map[string]any{"details": err.Error()})
}

// nullable maps missing and null values to nil.
func nullable(r gjson.Result) any {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	return r.Value()
}

// normalizePRs flattens `gh pr list --json` rows.
func normalizePRs(rows gjson.Result, repository string) []map[string]any {
	prs := make([]map[string]any, 0, len(rows.Array()))
	for _, pr := range rows.Array() {
		prs = append(prs, map[string]any{
			"number":     pr.Get("number").Int(),
			"title":      pr.Get("title").String(),
			"state":      pr.Get("state").String(),
			"url":        pr.Get("url").String(),
			"created_at": nullable(pr.Get("createdAt")),
			"merged_at":  nullable(pr.Get("mergedAt")),
			"author":     nullable(pr.Get("author.login")),
			"repository": repository,
		})
	}
	return prs
}

func prListArgs(repository, author, state string, limit int) []string {
	return []string{
		"pr", "list",
		"-R", repository,
		"--author", author,
		"--state", state,
		"--limit", strconv.Itoa(limit),
		"--json", prListFields,
	}
}

// ListPullRequests lists pull requests opened by one author.
func (g *GitHub) ListPullRequests(ctx context.Context, args ListPRsArgs) Result {
	if err := args.normalize(g.settings.DefaultRepo); err != nil {
		return invalidArgs(ToolListPullRequests, err)
	}
	repository := g.fullRepo(args.Repo)

	out, fail := g.run(ctx, "list PRs", prListArgs(repository, args.Author, args.State, int(args.Limit)))
	if fail != nil {
		return *fail
	}
	rows := gjson.ParseBytes(out)
	if !rows.IsArray() {
		return Failure("Failed to parse GitHub CLI output as JSON", map[string]any{"raw_output": string(out)})
	}

	prs := normalizePRs(rows, repository)
	g.logger.Info().Str("author", args.Author).Str("repository", repository).Int("count", len(prs)).Msg("Listed pull requests")
	return Success(map[string]any{
		"data":              prs,
		"count":             len(prs),
		"verification_note": verificationNote,
	})
}

// GetPRDetails returns the raw `gh pr view` document for one pull request.
func (g *GitHub) GetPRDetails(ctx context.Context, args PRArgs) Result {
	if err := args.normalize(g.settings.DefaultRepo); err != nil {
		return invalidArgs(ToolGetPRDetails, err)
	}

	out, fail := g.run(ctx, "get PR details", []string{
		"pr", "view", strconv.Itoa(int(args.PRNumber)),
		"-R", g.fullRepo(args.Repo),
		"--json", prDetailFields,
	})
	if fail != nil {
		return *fail
	}
	return Success(map[string]any{
		"data":       json.RawMessage(out),
		"repository": g.fullRepo(args.Repo),
	})
}

// AnalyzePRComplexity scores a pull request by size and spread.
func (g *GitHub) AnalyzePRComplexity(ctx context.Context, args PRArgs) Result {
	if err := args.normalize(g.settings.DefaultRepo); err != nil {
		return invalidArgs(ToolAnalyzePRComplexity, err)
	}

	out, fail := g.run(ctx, "get PR data", []string{
		"pr", "view", strconv.Itoa(int(args.PRNumber)),
		"-R", g.fullRepo(args.Repo),
		"--json", complexityField,
	})
	if fail != nil {
		return *fail
	}

	pr := gjson.ParseBytes(out)
	if !pr.IsObject() {
		return Failure("Failed to parse GitHub CLI output as JSON", map[string]any{"raw_output": string(out)})
	}
	totalChanges := int(pr.Get("additions").Int() + pr.Get("deletions").Int())
	filesChanged := int(pr.Get("changedFiles").Int())

	fileTypes := make(map[string]int)
	for _, p := range pr.Get("files.#.path").Array() {
		fileTypes[FileExtension(p.String())]++
	}

	return Success(map[string]any{
		"complexity": Assess(totalChanges, filesChanged, fileTypes),
		"statistics": map[string]any{
			"total_changes": totalChanges,
			"files_changed": filesChanged,
			"file_types":    fileTypes,
		},
	})
}
