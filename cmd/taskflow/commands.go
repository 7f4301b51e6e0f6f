package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"taskflow/internal/filter"
	"taskflow/internal/models/task"
	"taskflow/internal/render"
	"taskflow/internal/session"
	"taskflow/internal/timeline"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func readPassword(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *cli) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				return errors.New("--email is required")
			}
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				p, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = p
			}

			api, err := c.anonymous()
			if err != nil {
				return err
			}
			s, err := api.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}

			path, err := c.resolveSessionPath()
			if err != nil {
				return err
			}
			if err := session.Save(path, &session.Session{
				APIURL:      c.v.GetString("api-url"),
				AccessToken: s.AccessToken,
				ExpiresAt:   s.ExpiresAt,
				UserID:      s.User.ID.String(),
				Email:       s.User.Email,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", s.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when omitted)")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and forget it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := c.resolveSessionPath()
			if err != nil {
				return err
			}
			if api, _, err := c.authed(); err == nil {
				if err := api.Logout(cmd.Context()); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: server logout failed: %v\n", err)
				}
			}
			if err := session.Clear(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, _, err := c.authed()
			if err != nil {
				return err
			}
			u, err := api.Me(cmd.Context())
			if err != nil {
				return friendly(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\nsession expires %s\n", u.Email, u.ID, c.session.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
}

type criteriaFlags struct {
	status string
	query  string
}

func (f *criteriaFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.status, "status", "s", "all", "all, incomplete, todo, in-progress or done")
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "case-insensitive search in title and description")
}

func (f *criteriaFlags) criteria() (filter.Criteria, error) {
	status, err := filter.ParseStatusFilter(f.status)
	if err != nil {
		return filter.Criteria{}, err
	}
	return filter.Criteria{Status: status, Query: f.query}, nil
}

func (c *cli) listCmd() *cobra.Command {
	var cf criteriaFlags
	var sortKey string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			criteria, err := cf.criteria()
			if err != nil {
				return err
			}
			key, err := filter.ParseSortKey(sortKey)
			if err != nil {
				return err
			}
			ctrl, err := c.controller(cmd.Context())
			if err != nil {
				return err
			}
			tasks := filter.Sort(filter.Apply(ctrl.Store().Tasks(), criteria), key)
			fmt.Fprintln(cmd.OutOrStdout(), render.List(tasks, c.now()))
			return nil
		},
	}
	cf.register(cmd)
	cmd.Flags().StringVar(&sortKey, "sort", string(filter.SortCreatedDesc), "created-desc, created-asc, due-asc or due-desc")
	return cmd
}

func (c *cli) addCmd() *cobra.Command {
	var description, due, status string
	cmd := &cobra.Command{
		Use:   "add TITLE",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft := &task.Task{Title: strings.Join(args, " "), Description: description}
			if status != "" {
				st, err := task.ParseStatus(status)
				if err != nil {
					return err
				}
				draft.Status = st
			}
			if due != "" {
				d, err := task.ParseDate(due)
				if err != nil {
					return err
				}
				draft.DueDate = &d
			}

			ctrl, err := c.controller(cmd.Context())
			if err != nil {
				return err
			}
			created, err := ctrl.Create(cmd.Context(), draft)
			if err != nil {
				return friendly(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.List([]*task.Task{created}, c.now()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringVar(&due, "due", "", "due date YYYY-MM-DD")
	cmd.Flags().StringVarP(&status, "status", "s", "", "initial status (default todo)")
	return cmd
}

func (c *cli) editCmd() *cobra.Command {
	var title, description, due string
	var clearDue bool
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change a task's title, description or due date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []task.TaskOption
			if cmd.Flags().Changed("title") {
				opts = append(opts, task.WithTitle(title))
			}
			if cmd.Flags().Changed("description") {
				opts = append(opts, task.WithDescription(description))
			}
			switch {
			case clearDue:
				opts = append(opts, task.WithoutDueDate())
			case due != "":
				d, err := task.ParseDate(due)
				if err != nil {
					return err
				}
				opts = append(opts, task.WithDueDate(d))
			}
			if len(opts) == 0 {
				return errors.New("nothing to change, pass --title, --description, --due or --clear-due")
			}

			ctrl, err := c.controller(cmd.Context())
			if err != nil {
				return err
			}
			id, err := resolveID(ctrl.Store().Tasks(), args[0])
			if err != nil {
				return err
			}
			updated, err := ctrl.Update(cmd.Context(), id, opts...)
			if err != nil {
				return friendly(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.List([]*task.Task{updated}, c.now()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	cmd.Flags().StringVar(&due, "due", "", "new due date YYYY-MM-DD")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "remove the due date")
	return cmd
}

func (c *cli) moveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move ID STATUS",
		Short: "Move a task to todo, in-progress or done",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := task.ParseStatus(args[1])
			if err != nil {
				return err
			}
			ctrl, err := c.controller(cmd.Context())
			if err != nil {
				return err
			}
			id, err := resolveID(ctrl.Store().Tasks(), args[0])
			if err != nil {
				return err
			}
			moved, err := ctrl.SetStatus(cmd.Context(), id, status)
			if err != nil {
				return friendly(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.List([]*task.Task{moved}, c.now()))
			return nil
		},
	}
}

func (c *cli) toggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle ID",
		Short: "Mark a task done, or reopen a done task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := c.controller(cmd.Context())
			if err != nil {
				return err
			}
			id, err := resolveID(ctrl.Store().Tasks(), args[0])
			if err != nil {
				return err
			}
			toggled, err := ctrl.Toggle(cmd.Context(), id)
			if err != nil {
				return friendly(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.List([]*task.Task{toggled}, c.now()))
			return nil
		},
	}
}

func (c *cli) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := c.controller(cmd.Context())
			if err != nil {
				return err
			}
			id, err := resolveID(ctrl.Store().Tasks(), args[0])
			if err != nil {
				return err
			}
			t, _ := ctrl.Store().Get(id)
			if err := ctrl.Delete(cmd.Context(), id); err != nil {
				return friendly(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q\n", t.Title)
			return nil
		},
	}
}

func (c *cli) boardCmd() *cobra.Command {
	var cf criteriaFlags
	var width int
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show tasks as a Kanban board",
		RunE: func(cmd *cobra.Command, _ []string) error {
			criteria, err := cf.criteria()
			if err != nil {
				return err
			}
			ctrl, err := c.controller(cmd.Context())
			if err != nil {
				return err
			}
			tasks := filter.Sort(filter.Apply(ctrl.Store().Tasks(), criteria), filter.SortCreatedDesc)
			fmt.Fprintln(cmd.OutOrStdout(), render.Board(filter.GroupByStatus(tasks), c.now(), width))
			return nil
		},
	}
	cf.register(cmd)
	cmd.Flags().IntVarP(&width, "width", "w", 28, "column width")
	return cmd
}

func (c *cli) timelineCmd() *cobra.Command {
	var cf criteriaFlags
	var month, noDue, inverted string
	var maxRows int
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Show a month of tasks on a week grid",
		RunE: func(cmd *cobra.Command, _ []string) error {
			criteria, err := cf.criteria()
			if err != nil {
				return err
			}
			now := c.now()
			year, mon := now.Year(), now.Month()
			if month != "" {
				if year, mon, err = task.ParseMonth(month); err != nil {
					return err
				}
			}
			policy := timeline.DefaultPolicy()
			if policy.NoDueDate, err = timeline.ParseSpanPolicy(noDue); err != nil {
				return err
			}
			if policy.Inverted, err = timeline.ParseInvertedPolicy(inverted); err != nil {
				return err
			}
			policy.MaxRows = maxRows

			ctrl, err := c.controller(cmd.Context())
			if err != nil {
				return err
			}
			tasks := filter.Sort(filter.Apply(ctrl.Store().Tasks(), criteria), filter.SortCreatedAsc)
			layout, err := timeline.Compute(tasks, timeline.MonthWindow(year, mon), policy)
			if err != nil {
				return err
			}

			byID := make(map[uuid.UUID]*task.Task, len(tasks))
			for _, t := range tasks {
				byID[t.ID] = t
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.Timeline(layout, byID, year, mon))
			return nil
		},
	}
	cf.register(cmd)
	cmd.Flags().StringVarP(&month, "month", "m", "", "month YYYY-MM (default current)")
	cmd.Flags().StringVar(&noDue, "no-due-date", timeline.SpanSameDay.String(), "span of tasks without a due date: same_day, one_month or skip")
	cmd.Flags().StringVar(&inverted, "inverted", timeline.InvertedDrop.String(), "due date before creation: drop, swap or collapse")
	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "cap packing rows (0 for no cap)")
	return cmd
}
