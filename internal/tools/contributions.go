package tools

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Dataset is one half of a contributions report: either rows with a
// count, or the failure of that query.
type Dataset struct {
	Data      []map[string]any
	Count     int
	Error     string
	Command   string
	RawOutput string
}

// Failed reports whether the dataset's query failed.
func (d Dataset) Failed() bool { return d.Error != "" }

// MarshalJSON renders {data, count} or {error, command|raw_output}.
func (d Dataset) MarshalJSON() ([]byte, error) {
	if d.Failed() {
		out := map[string]any{"error": d.Error}
		if d.Command != "" {
			out["command"] = d.Command
		}
		if d.RawOutput != "" {
			out["raw_output"] = d.RawOutput
		}
		return json.Marshal(out)
	}
	data := d.Data
	if data == nil {
		data = []map[string]any{}
	}
	return json.Marshal(map[string]any{"data": data, "count": d.Count})
}

func failedDataset(r *Result) Dataset {
	d := Dataset{Error: r.Message()}
	if v, ok := r.Field("command"); ok {
		d.Command, _ = v.(string)
	}
	if v, ok := r.Field("raw_output"); ok {
		d.RawOutput, _ = v.(string)
	}
	return d
}

// ContributionsSucceeded is the overall outcome rule: at least one
// dataset has rows, or neither query failed.
func ContributionsSucceeded(commits, prs Dataset) bool {
	if commits.Count > 0 || prs.Count > 0 {
		return true
	}
	return !commits.Failed() && !prs.Failed()
}

// GetUserContributions reports commits and pull requests of one author
// over an inclusive date range. Either query may fail independently.
func (g *GitHub) GetUserContributions(ctx context.Context, args ContributionsArgs) Result {
	if err := args.normalize(g.settings.DefaultRepo); err != nil {
		return invalidArgs(ToolGetUserContributions, err)
	}
	since, until, err := args.dateRange()
	if err != nil {
		return Failure("Dates must be in YYYY-MM-DD format", map[string]any{"details": err.Error()})
	}
	repository := g.fullRepo(args.Repo)

	commits := g.commits(ctx, repository, args.Author, since, until)
	prs := g.createdPRs(ctx, repository, args.Author, since, until)

	fields := map[string]any{
		"author":        args.Author,
		"repository":    repository,
		"since":         since.Format(DateLayout),
		"until":         until.Format(DateLayout),
		"commits":       commits,
		"pull_requests": prs,
		"count":         commits.Count + prs.Count,
	}
	g.logger.Info().
		Str("author", args.Author).
		Str("repository", repository).
		Int("commits", commits.Count).
		Int("pull_requests", prs.Count).
		Bool("commits_failed", commits.Failed()).
		Bool("prs_failed", prs.Failed()).
		Msg("Collected contributions")

	if !ContributionsSucceeded(commits, prs) {
		return Failure("No contribution data could be retrieved", fields)
	}
	return Success(fields)
}

func (g *GitHub) commits(ctx context.Context, repository, author string, since, until time.Time) Dataset {
	q := url.Values{}
	q.Set("author", author)
	q.Set("since", since.Format(time.RFC3339))
	q.Set("until", until.Format(time.RFC3339))
	q.Set("per_page", "100")

	out, fail := g.run(ctx, "get contributions", []string{
		"api",
		"-H", "Accept: application/vnd.github+json",
		"/repos/" + repository + "/commits?" + q.Encode(),
	})
	if fail != nil {
		return failedDataset(fail)
	}
	rows := gjson.ParseBytes(out)
	if !rows.IsArray() {
		return Dataset{Error: "Failed to parse GitHub API output as JSON", RawOutput: string(out)}
	}

	data := make([]map[string]any, 0, len(rows.Array()))
	for _, c := range rows.Array() {
		msg, _, _ := strings.Cut(c.Get("commit.message").String(), "\n")
		data = append(data, map[string]any{
			"sha":     c.Get("sha").String(),
			"message": msg,
			"date":    nullable(c.Get("commit.author.date")),
			"url":     c.Get("html_url").String(),
			"author":  nullable(c.Get("author.login")),
		})
	}
	return Dataset{Data: data, Count: len(data)}
}

func (g *GitHub) createdPRs(ctx context.Context, repository, author string, since, until time.Time) Dataset {
	args := prListArgs(repository, author, "all", 100)
	args = append(args, "--search", "created:"+since.Format(DateLayout)+".."+until.Format(DateLayout))

	out, fail := g.run(ctx, "list PRs", args)
	if fail != nil {
		return failedDataset(fail)
	}
	rows := gjson.ParseBytes(out)
	if !rows.IsArray() {
		return Dataset{Error: "Failed to parse GitHub CLI output as JSON", RawOutput: string(out)}
	}
	data := normalizePRs(rows, repository)
	return Dataset{Data: data, Count: len(data)}
}
