package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/luinbytes/iconic/apperr"
	"github.com/luinbytes/iconic/fileops"
	"github.com/luinbytes/iconic/logbook"
	"github.com/luinbytes/iconic/tui"
	"github.com/luinbytes/iconic/workspace"
)

// scanCmd creates the scan command.
func scanCmd() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Scan the library and report bundles, categories and duplicates",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "list", Aliases: []string{"l"}, Usage: "List bundles"},
			&cli.StringFlag{Name: "status", Value: string(workspace.FilterAll), Usage: "Filter: all|uncategorized|duplicates|analyzed|error"},
			&cli.StringFlag{Name: "category", Usage: "Only bundles tagged with this category"},
			&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Only bundles whose name contains this text"},
			&cli.StringFlag{Name: "sort", Value: string(workspace.SortNameAsc), Usage: "Sort: name_asc|name_desc|date_new|date_old"},
		},
		Action: withSession(func(c *cli.Context, s *session) error {
			reportCounts(os.Stdout, s.ws.Counts(), len(s.ws.Leftovers()))
			if c.Bool("list") {
				fmt.Println()
				reportBundles(os.Stdout, s.ws.List(workspace.Query{
					Status:   workspace.StatusFilter(c.String("status")),
					Category: c.String("category"),
					Search:   c.String("search"),
					Sort:     workspace.SortOrder(c.String("sort")),
				}))
			}
			fmt.Println()
			reportGroups(os.Stdout, s.ws.Groups(), func(id string) string {
				if b, ok := s.ws.Get(id); ok {
					return fmt.Sprintf("%s (modified: %s)", b.Path, b.ModTime.Format("2006-01-02 15:04:05"))
				}
				return id
			})
			if s.ws.CanUndo() {
				s.log.Info("Last organize can be reverted with 'iconic revert'.")
			}
			return nil
		}),
	}
}

// analyzeCmd creates the analyze command.
func analyzeCmd() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Categorize unclassified bundles with learned rules and the oracle",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "select", Usage: "Bundle id to analyze (repeatable, default: all)"},
		},
		Action: withSession(func(c *cli.Context, s *session) error {
			progress := logbook.NewProgress(os.Stderr, s.log.Emoji("🤖 ")+"Analyzing", stderrIsTerminal() && !c.Bool("verbose"))
			orch := s.ws.Orchestrator()
			orch.OnProgress = progress.Update
			orch.OnStatus = func(status string) {
				if status != "" {
					s.log.Info("%s", status)
				}
			}

			report, err := s.ws.Analyze(c.Context, c.StringSlice("select"))
			progress.Done()
			if err != nil {
				return err
			}
			reportAnalysis(os.Stdout, report)
			return nil
		}),
	}
}

func fileOpCmd(name, usage string, run func(c *cli.Context, ws *workspace.Workspace) (fileops.Summary, error)) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: withSession(func(c *cli.Context, s *session) error {
			sum, err := run(c, s.ws)
			if err != nil {
				return err
			}
			reportSummary(os.Stdout, name, sum)
			return nil
		}),
	}
}

// organizeCmd creates the organize command.
func organizeCmd() *cli.Command {
	return fileOpCmd("organize", "Move bundles into their category folders", func(c *cli.Context, ws *workspace.Workspace) (fileops.Summary, error) {
		return ws.Organize(c.Context)
	})
}

// flattenCmd creates the flatten command.
func flattenCmd() *cli.Command {
	return fileOpCmd("flatten", "Move every bundle back to the library root", func(c *cli.Context, ws *workspace.Workspace) (fileops.Summary, error) {
		return ws.Flatten(c.Context)
	})
}

// revertCmd creates the revert command.
func revertCmd() *cli.Command {
	return fileOpCmd("revert", "Undo the last organize or flatten", func(c *cli.Context, ws *workspace.Workspace) (fileops.Summary, error) {
		return ws.Revert(c.Context)
	})
}

// tagCmd creates the tag command.
func tagCmd() *cli.Command {
	return &cli.Command{
		Name:      "tag",
		Usage:     "Set a bundle's tags (the first tag is its category); no tags clears them",
		ArgsUsage: "<id> [tag...]",
		Action: withSession(func(c *cli.Context, s *session) error {
			if c.NArg() < 1 {
				return apperr.NewInvalidInput("bundle id is required")
			}
			id := c.Args().First()
			if _, err := s.ws.SetTags([]string{id}, c.Args().Tail()); err != nil {
				return err
			}
			b, _ := s.ws.Get(id)
			s.log.Success("Tagged %s: %v", b.Name, b.Tags)
			return nil
		}),
	}
}

// renameCmd creates the rename command.
func renameCmd() *cli.Command {
	return &cli.Command{
		Name:      "rename",
		Usage:     "Rename a bundle's display name",
		ArgsUsage: "<id> <name>",
		Action: withSession(func(c *cli.Context, s *session) error {
			if c.NArg() != 2 {
				return apperr.NewInvalidInput("usage: rename <id> <name>")
			}
			b, err := s.ws.RenameBundle(c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return err
			}
			s.log.Success("Renamed %s to %q", b.ID, b.Name)
			return nil
		}),
	}
}

// duplicateCmd creates the duplicate command.
func duplicateCmd() *cli.Command {
	return &cli.Command{
		Name:      "duplicate",
		Usage:     "Flag bundles as duplicates (deleted on organize)",
		ArgsUsage: "<id>...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "unset", Usage: "Clear the flag instead"},
		},
		Action: withSession(func(c *cli.Context, s *session) error {
			if c.NArg() == 0 {
				return apperr.NewInvalidInput("at least one bundle id is required")
			}
			n, err := s.ws.SetDuplicate(c.Args().Slice(), !c.Bool("unset"))
			if err != nil {
				return err
			}
			s.log.Success("Updated %d bundles", n)
			return nil
		}),
	}
}

// rulesCmd creates the rules command.
func rulesCmd() *cli.Command {
	return &cli.Command{
		Name:  "rules",
		Usage: "Inspect learned rules",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List learned rules",
				Action: withSession(func(_ *cli.Context, s *session) error {
					reportRules(os.Stdout, s.ws.Rules())
					return nil
				}),
			},
			{
				Name:      "forget",
				Usage:     "Remove a learned rule by normalized key",
				ArgsUsage: "<key>",
				Action: withSession(func(c *cli.Context, s *session) error {
					if c.NArg() != 1 {
						return apperr.NewInvalidInput("rule key is required")
					}
					if err := s.ws.ForgetRule(c.Args().First()); err != nil {
						return err
					}
					s.log.Success("Forgot rule %q", c.Args().First())
					return nil
				}),
			},
		},
	}
}

// categoriesCmd creates the categories command.
func categoriesCmd() *cli.Command {
	return &cli.Command{
		Name:  "categories",
		Usage: "Manage the category list",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Show the category list",
				Action: withSession(func(_ *cli.Context, s *session) error {
					reportCategories(os.Stdout, s.ws.Categories())
					return nil
				}),
			},
			{
				Name:      "add",
				Usage:     "Append a category",
				ArgsUsage: "<name>",
				Action: withSession(func(c *cli.Context, s *session) error {
					if c.NArg() != 1 {
						return apperr.NewInvalidInput("category name is required")
					}
					name, err := s.ws.AddCategory(c.Args().First())
					if err != nil {
						return err
					}
					s.log.Success("Added category %q", name)
					return nil
				}),
			},
			{
				Name:      "rename",
				Usage:     "Rename a category and retag its bundles",
				ArgsUsage: "<old> <new>",
				Action: withSession(func(c *cli.Context, s *session) error {
					if c.NArg() != 2 {
						return apperr.NewInvalidInput("usage: categories rename <old> <new>")
					}
					name, err := s.ws.RenameCategory(c.Args().Get(0), c.Args().Get(1))
					if err != nil {
						return err
					}
					s.log.Success("Renamed category %q to %q", c.Args().Get(0), name)
					return nil
				}),
			},
			{
				Name:      "set-profile",
				Usage:     "Replace the list with a profile's categories",
				ArgsUsage: "<profile-id>",
				Action: withSession(func(c *cli.Context, s *session) error {
					if c.NArg() != 1 {
						return apperr.NewInvalidInput("profile id is required")
					}
					list, err := s.ws.ApplyProfile(c.Args().First(), s.cfg.Profiles)
					if err != nil {
						return err
					}
					reportCategories(os.Stdout, list)
					return nil
				}),
			},
			{
				Name:  "suggest",
				Usage: "Ask the oracle for a category list fitting this library",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "apply", Usage: "Replace the current list with the suggestion"},
				},
				Action: withSession(func(c *cli.Context, s *session) error {
					list, err := s.ws.SuggestCategories(c.Context)
					if err != nil {
						return err
					}
					reportCategories(os.Stdout, list)
					if !c.Bool("apply") {
						return nil
					}
					if _, err := s.ws.SetCategories(list); err != nil {
						return err
					}
					s.log.Success("Applied %d categories", len(list))
					return nil
				}),
			},
		},
	}
}

// enrichCmd creates the enrich command.
func enrichCmd() *cli.Command {
	return &cli.Command{
		Name:  "enrich",
		Usage: "Download artwork for bundles without an image",
		Action: withSession(func(c *cli.Context, s *session) error {
			res, err := s.ws.Enrich(c.Context)
			if err != nil {
				return err
			}
			reportEnrich(os.Stdout, res)
			return nil
		}),
	}
}

// reviewCmd creates the review command.
func reviewCmd() *cli.Command {
	return &cli.Command{
		Name:  "review",
		Usage: "Browse and tag bundles interactively",
		Action: withSession(func(_ *cli.Context, s *session) error {
			edits, err := tui.Run(s.ws)
			if err != nil {
				return err
			}
			if edits > 0 {
				s.log.Success("Saved %d edits", edits)
			}
			return nil
		}),
	}
}
