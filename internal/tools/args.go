package tools

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
)

// DateLayout is the calendar-date format accepted for date ranges.
const DateLayout = "2006-01-02"

var (
	repoPattern   = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._-]*$`)
	loginPattern  = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?(?:\[bot\])?$`)
	allowedStates = map[string]bool{"open": true, "closed": true, "merged": true, "all": true}
)

// FlexInt is an integer argument that also accepts numeric strings.
// Smaller models frequently send "42" where 42 is expected.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	s = strings.TrimSpace(strings.Trim(s, `"`))
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*f = FlexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != float64(int(v)) {
		return fmt.Errorf("%q is not an integer", s)
	}
	*f = FlexInt(int(v))
	return nil
}

// JSONSchema advertises FlexInt as a plain integer.
func (FlexInt) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer"}
}

// ListPRsArgs are the arguments of list_pull_requests.
type ListPRsArgs struct {
	Author string  `json:"author" jsonschema_description:"The GitHub username of the PR author"`
	Repo   string  `json:"repo,omitempty" jsonschema_description:"The repository name (default: frontend)"`
	State  string  `json:"state,omitempty" jsonschema:"enum=open,enum=closed,enum=merged,enum=all" jsonschema_description:"PR state (open, closed, merged, all)"`
	Limit  FlexInt `json:"limit,omitempty" jsonschema_description:"Maximum number of PRs to return"`
}

// PRArgs identify a single pull request.
type PRArgs struct {
	Repo     string  `json:"repo" jsonschema_description:"The repository name"`
	PRNumber FlexInt `json:"pr_number" jsonschema_description:"The PR number"`
}

// ContributionsArgs are the arguments of get_user_contributions.
type ContributionsArgs struct {
	Author string `json:"author" jsonschema_description:"The GitHub username to get contributions for"`
	Repo   string `json:"repo" jsonschema_description:"The repository name"`
	Since  string `json:"since" jsonschema_description:"Start date in YYYY-MM-DD format"`
	Until  string `json:"until" jsonschema_description:"End date in YYYY-MM-DD format"`
}

// ArgumentError reports a tool argument that failed validation.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return e.Field + " " + e.Reason
}

func validateRepo(repo string) error {
	if !repoPattern.MatchString(repo) {
		return &ArgumentError{Field: "repo", Reason: fmt.Sprintf("%q is not a valid repository name", repo)}
	}
	return nil
}

func validateLogin(field, login string) error {
	if login == "" {
		return &ArgumentError{Field: field, Reason: "is required"}
	}
	if !loginPattern.MatchString(login) {
		return &ArgumentError{Field: field, Reason: fmt.Sprintf("%q is not a valid GitHub username", login)}
	}
	return nil
}

// normalize applies defaults and validates.
func (a *ListPRsArgs) normalize(defaultRepo string) error {
	a.Author = strings.TrimPrefix(strings.TrimSpace(a.Author), "@")
	a.Repo = strings.TrimSpace(a.Repo)
	a.State = strings.ToLower(strings.TrimSpace(a.State))
	if a.Repo == "" {
		a.Repo = defaultRepo
	}
	if a.State == "" {
		a.State = "all"
	}
	if a.Limit == 0 {
		a.Limit = 20
	}

	if err := validateLogin("author", a.Author); err != nil {
		return err
	}
	if err := validateRepo(a.Repo); err != nil {
		return err
	}
	if !allowedStates[a.State] {
		return &ArgumentError{Field: "state", Reason: fmt.Sprintf("must be one of open, closed, merged, all; got %q", a.State)}
	}
	if a.Limit < 0 {
		return &ArgumentError{Field: "limit", Reason: "must be positive"}
	}
	return nil
}

func (a *PRArgs) normalize(defaultRepo string) error {
	a.Repo = strings.TrimSpace(a.Repo)
	if a.Repo == "" {
		a.Repo = defaultRepo
	}
	if err := validateRepo(a.Repo); err != nil {
		return err
	}
	if a.PRNumber <= 0 {
		return &ArgumentError{Field: "pr_number", Reason: "must be a positive integer"}
	}
	return nil
}

// dateRange parses since and until. until is inclusive, so the returned
// upper bound is the last second of that day.
func (a *ContributionsArgs) dateRange() (since, until time.Time, err error) {
	since, err = time.Parse(DateLayout, strings.TrimSpace(a.Since))
	if err != nil {
		return since, until, fmt.Errorf("since: %w", err)
	}
	until, err = time.Parse(DateLayout, strings.TrimSpace(a.Until))
	if err != nil {
		return since, until, fmt.Errorf("until: %w", err)
	}
	if until.Before(since) {
		return since, until, fmt.Errorf("until %s is before since %s", a.Until, a.Since)
	}
	return since, until.Add(24*time.Hour - time.Second), nil
}

func (a *ContributionsArgs) normalize(defaultRepo string) error {
	a.Author = strings.TrimPrefix(strings.TrimSpace(a.Author), "@")
	a.Repo = strings.TrimSpace(a.Repo)
	if a.Repo == "" {
		a.Repo = defaultRepo
	}
	if err := validateLogin("author", a.Author); err != nil {
		return err
	}
	return validateRepo(a.Repo)
}
