package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"taskflow/internal/client"
	"taskflow/internal/logger"
	"taskflow/internal/models/task"
	"taskflow/internal/session"
	"taskflow/internal/state"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cli carries what every command needs: settings, the saved session and an API client.
type cli struct {
	v           *viper.Viper
	sessionPath string
	session     *session.Session
	api         *client.Client
	root        *cobra.Command
	now         func() time.Time
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New(), now: time.Now}
	c.v.SetEnvPrefix("TASKFLOW")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	c.v.SetDefault("api-url", "http://localhost:8080")

	root := &cobra.Command{
		Use:           "taskflow",
		Short:         "Manage your TaskFlow tasks from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if c.v.GetBool("verbose") {
				if err := logger.Init(true); err != nil {
					return err
				}
			}
			return nil
		},
	}
	c.root = root
	root.PersistentFlags().String("api-url", "", "API base URL (env TASKFLOW_API_URL)")
	root.PersistentFlags().String("session", "", "session file (env TASKFLOW_SESSION)")
	root.PersistentFlags().BoolP("verbose", "v", false, "log API calls")
	_ = c.v.BindPFlag("api-url", root.PersistentFlags().Lookup("api-url"))
	_ = c.v.BindPFlag("session", root.PersistentFlags().Lookup("session"))
	_ = c.v.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))

	root.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.listCmd(),
		c.addCmd(),
		c.editCmd(),
		c.moveCmd(),
		c.toggleCmd(),
		c.rmCmd(),
		c.boardCmd(),
		c.timelineCmd(),
	)
	return root
}

func (c *cli) resolveSessionPath() (string, error) {
	if c.sessionPath != "" {
		return c.sessionPath, nil
	}
	if p := c.v.GetString("session"); p != "" {
		c.sessionPath = p
		return p, nil
	}
	p, err := session.DefaultPath()
	if err != nil {
		return "", err
	}
	c.sessionPath = p
	return p, nil
}

// apiURLExplicit reports whether the API URL came from a flag or the
// environment rather than the saved session.
func (c *cli) apiURLExplicit() bool {
	return c.root.PersistentFlags().Changed("api-url") || os.Getenv("TASKFLOW_API_URL") != ""
}

// anonymous returns a client without credentials, for login.
func (c *cli) anonymous() (*client.Client, error) {
	return client.New(c.v.GetString("api-url"))
}

// authed loads the saved session and returns a client that uses it.
func (c *cli) authed() (*client.Client, uuid.UUID, error) {
	path, err := c.resolveSessionPath()
	if err != nil {
		return nil, uuid.Nil, err
	}
	s, err := session.Load(path)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return nil, uuid.Nil, errors.New("not logged in, run `taskflow login`")
		}
		return nil, uuid.Nil, err
	}
	if s.Expired(c.now()) {
		return nil, uuid.Nil, errors.New("session expired, run `taskflow login`")
	}

	userID, err := uuid.Parse(s.UserID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("corrupt session file %s: %w", path, err)
	}

	base := s.APIURL
	if base == "" || c.apiURLExplicit() {
		base = c.v.GetString("api-url")
	}
	api, err := client.New(base, client.WithToken(s.AccessToken))
	if err != nil {
		return nil, uuid.Nil, err
	}
	c.session, c.api = s, api
	return api, userID, nil
}

// controller loads the user's tasks into an optimistic cache backed by the API.
func (c *cli) controller(ctx context.Context) (*state.Controller, error) {
	api, userID, err := c.authed()
	if err != nil {
		return nil, err
	}
	tasks, err := api.ListTasks(ctx, userID)
	if err != nil {
		return nil, friendly(err)
	}
	return state.NewController(state.NewStore(tasks), api, userID), nil
}

// resolveID accepts a full id or a unique prefix of one.
func resolveID(tasks []*task.Task, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	ref = strings.ToLower(ref)
	var match []uuid.UUID
	for _, t := range tasks {
		if strings.HasPrefix(t.ID.String(), ref) {
			match = append(match, t.ID)
		}
	}
	switch len(match) {
	case 0:
		return uuid.Nil, fmt.Errorf("no task matches %q", ref)
	case 1:
		return match[0], nil
	default:
		return uuid.Nil, fmt.Errorf("%q matches %d tasks, use more characters", ref, len(match))
	}
}

func friendly(err error) error {
	switch {
	case client.IsUnauthorized(err):
		return errors.New("session is no longer valid, run `taskflow login`")
	case client.IsConflict(err):
		return fmt.Errorf("task changed elsewhere, nothing was saved: %w", err)
	}
	return err
}
