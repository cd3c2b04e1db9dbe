package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BlockScience/koi-net-github-processor-node/internal/index"
	"github.com/BlockScience/koi-net-github-processor-node/internal/rid"
)

// NewReposCommand creates the repos command.
func NewReposCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repos",
		Short: "List indexed repositories",
		Long: `List all repositories known to the index, most recently
updated first.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepos(rootOpts, cmd)
		},
	}
	return cmd
}

func runRepos(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	store, _, err := openStore(opts)
	if err != nil {
		return err
	}
	defer store.Close()

	repos, err := store.ListRepositories(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list repositories", err)
	}

	if formatter.Format == "json" {
		return formatter.JSON(repos)
	}
	return renderRepos(formatter, repos)
}

func renderRepos(formatter *OutputFormatter, repos []index.RepositoryRecord) error {
	if len(repos) == 0 {
		fmt.Fprintln(formatter.Writer, "No repositories indexed.")
		return nil
	}

	w := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REPOSITORY\tURL\tEVENTS")
	for _, rec := range repos {
		slug := rec.RID
		if r, err := rid.Parse(rec.RID); err == nil {
			slug = r.Slug()
		}
		fmt.Fprintf(w, "%s\t%s\t%d\n", slug, rec.URL, rec.EventCount)
	}
	return w.Flush()
}

// NewAddRepoCommand creates the add-repo command.
func NewAddRepoCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-repo <owner/repo | url>",
		Short: "Register a repository",
		Long: `Register a repository in the index ahead of any event for it.

Accepts owner/repo shorthand or a github.com repository URL; the
canonical repository identifier is derived from the owner and name
segments either way.

Example:
  github-processor add-repo acme/widgets
  github-processor add-repo https://github.com/acme/widgets`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddRepo(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runAddRepo(opts *RootOptions, arg string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	var repo rid.RID
	var repoURL string
	var err error
	if strings.Contains(arg, "://") {
		repoURL = arg
		repo, err = rid.FromURL(arg)
	} else {
		repo, err = resolveRepoArg(arg)
		if err == nil {
			repoURL = fmt.Sprintf("https://github.com/%s.git", repo.Slug())
		}
	}
	if err != nil {
		_ = formatter.Error("MALFORMED_RID", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	store, err := index.Open(cfg.IndexDBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open index database", err)
	}
	defer store.Close()

	if err := store.UpsertRepository(cmd.Context(), repo.String(), repoURL); err != nil {
		return WrapExitError(ExitFailure, "failed to register repository", err)
	}

	if formatter.Format == "json" {
		return formatter.JSON(map[string]string{"repo_rid": repo.String(), "repo_url": repoURL})
	}
	fmt.Fprintf(formatter.Writer, "Registered %s\n", repo.String())
	return nil
}
