package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sherry5707/Messaging/internal/api"
	"github.com/sherry5707/Messaging/internal/command"
	"github.com/sherry5707/Messaging/internal/profile"
	"github.com/sherry5707/Messaging/internal/tui/client"
)

// globalOptions are the persistent flags of every subcommand.
type globalOptions struct {
	Profile string
	Output  string
	Timeout time.Duration
}

func (o *globalOptions) printer() (*printer, error) {
	return newPrinter(o.Output, os.Stdout)
}

// connect dials the daemon of the selected profile.
func (o *globalOptions) connect() (*client.Client, string, error) {
	name := profile.Resolve(o.Profile)
	if err := profile.ValidateName(name); err != nil {
		return nil, "", err
	}
	c, err := client.New(profile.SocketPath(name))
	if err != nil {
		return nil, "", fmt.Errorf("cannot connect to daemon for profile %q: %w", name, err)
	}
	return c, name, nil
}

func (o *globalOptions) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), o.Timeout)
}

func newRootCommand() *cobra.Command {
	o := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "messagingctl",
		Short:         "Drive the local messaging daemon.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&o.Profile, "profile", "", "profile name (overrides config default)")
	cmd.PersistentFlags().StringVarP(&o.Output, "output", "o", formatTable, "output format: table, json or yaml")
	cmd.PersistentFlags().DurationVar(&o.Timeout, "timeout", 10*time.Second, "RPC timeout")

	addTargetCommands(cmd, o)
	addMessageCommands(cmd, o)
	addReceive(cmd, o)
	addList(cmd, o)
	addFavorites(cmd, o)
	addMessages(cmd, o)
	addWatch(cmd, o)
	addStatus(cmd, o)
	return cmd
}

// targetCommand builds a command acting on one or more conversations.
type targetCommand struct {
	use, short string
	single     func(id string) command.Command
	list       func(ids []string) command.Command
}

func targetCommands() []targetCommand {
	return []targetCommand{
		{"read", "mark conversations as read", command.NewMarkAsRead, command.NewMarkAsReadList},
		{"unread", "mark conversations as unread", command.NewMarkAsUnread, command.NewMarkAsUnreadList},
		{"pin", "pin conversations",
			func(id string) command.Command { return command.NewChangePinned(id, true) },
			func(ids []string) command.Command { return command.NewChangePinnedList(ids, true) }},
		{"unpin", "unpin conversations",
			func(id string) command.Command { return command.NewChangePinned(id, false) },
			func(ids []string) command.Command { return command.NewChangePinnedList(ids, false) }},
		{"archive", "archive conversations",
			func(id string) command.Command { return command.NewChangeArchived(id, true) },
			func(ids []string) command.Command { return command.NewChangeArchivedList(ids, true) }},
		{"unarchive", "unarchive conversations",
			func(id string) command.Command { return command.NewChangeArchived(id, false) },
			func(ids []string) command.Command { return command.NewChangeArchivedList(ids, false) }},
	}
}

// buildTarget picks the single or list form of a conversation command.
func buildTarget(tc targetCommand, ids []string) command.Command {
	if len(ids) == 1 {
		return tc.single(ids[0])
	}
	return tc.list(ids)
}

func addTargetCommands(topLevel *cobra.Command, o *globalOptions) {
	for _, tc := range targetCommands() {
		var wait bool
		cmd := &cobra.Command{
			Use:   tc.use + " <conversation-id>...",
			Short: tc.short,
			Args:  cobra.MinimumNArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return submit(o, buildTarget(tc, args), wait)
			},
		}
		cmd.Flags().BoolVar(&wait, "wait", false, "wait until the change is stored")
		topLevel.AddCommand(cmd)
	}
}

func addMessageCommands(topLevel *cobra.Command, o *globalOptions) {
	specs := []struct {
		use, short string
		build      func(string) command.Command
	}{
		{"favorite", "save a message as favorite", command.NewSaveFavorite},
		{"unfavorite", "remove a favorite", command.NewDeleteFavorite},
		{"delete-message", "delete a message", command.NewDeleteMessage},
	}
	for _, s := range specs {
		var wait bool
		cmd := &cobra.Command{
			Use:   s.use + " <message-id>",
			Short: s.short,
			Args: func(_ *cobra.Command, args []string) error {
				if len(args) != 1 {
					return errors.New("requires exactly one message id")
				}
				return nil
			},
			RunE: func(_ *cobra.Command, args []string) error {
				return submit(o, s.build(args[0]), wait)
			},
		}
		cmd.Flags().BoolVar(&wait, "wait", false, "wait until the change is stored")
		topLevel.AddCommand(cmd)
	}
}

func addReceive(topLevel *cobra.Command, o *globalOptions) {
	var (
		in   command.Incoming
		wait bool
	)
	cmd := &cobra.Command{
		Use:   "receive",
		Short: "store an incoming message",
		Example: `
messagingctl receive --conversation c1 --name Ana --from Ana --content "hello"
`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if in.MessageID == "" {
				in.MessageID = uuid.NewString()
			}
			now := time.Now().UnixMilli()
			if in.SentTS == 0 {
				in.SentTS = now
			}
			if in.ReceivedTS == 0 {
				in.ReceivedTS = now
			}
			if in.ConversationName == "" {
				in.ConversationName = in.SenderName
			}
			return submit(o, command.NewReceiveMessage(in), wait)
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.MessageID, "id", "", "message id (default: random)")
	f.StringVar(&in.ConversationID, "conversation", "", "conversation id")
	f.StringVar(&in.ConversationName, "name", "", "conversation name (default: sender)")
	f.StringVar(&in.Destination, "destination", "", "conversation address")
	f.StringVar(&in.SenderName, "from", "", "sender name")
	f.StringVar(&in.SenderDestination, "from-destination", "", "sender address")
	f.StringVar(&in.Content, "content", "", "message text")
	f.Int64Var(&in.SentTS, "sent-ts", 0, "sent time, unix ms (default: now)")
	f.Int64Var(&in.ReceivedTS, "received-ts", 0, "received time, unix ms (default: now)")
	f.BoolVar(&in.Read, "read", false, "store the message as already read")
	f.BoolVar(&wait, "wait", false, "wait until the message is stored")
	_ = cmd.MarkFlagRequired("conversation")
	topLevel.AddCommand(cmd)
}

func submit(o *globalOptions, cmd command.Command, wait bool) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	p, err := o.printer()
	if err != nil {
		return err
	}
	c, _, err := o.connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := o.context()
	defer cancel()
	resp, err := c.Submit(ctx, cmd, wait)
	if err != nil {
		return err
	}
	return p.submitted(cmd.Kind, resp)
}

func addList(topLevel *cobra.Command, o *globalOptions) {
	var (
		req    api.ListConversationsRequest
		width  int
		follow bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "show the sectioned conversation list",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := o.printer()
			if err != nil {
				return err
			}
			c, _, err := o.connect()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			if follow {
				return followConversations(cmd.Context(), c, req, func(resp *api.ListConversationsResponse) error {
					return p.conversations(resp, width)
				})
			}
			ctx, cancel := o.context()
			defer cancel()
			resp, err := c.ListConversations(ctx, req)
			if err != nil {
				return err
			}
			return p.conversations(resp, width)
		},
	}
	cmd.Flags().BoolVar(&req.Archived, "archived", false, "show archived conversations")
	cmd.Flags().StringVarP(&req.Search, "search", "s", "", "search conversations")
	cmd.Flags().BoolVar(&req.SearchBanner, "banner", false, "include the search entry slot at the top")
	cmd.Flags().IntVar(&width, "width", 40, "snippet width in cells")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "reprint the list after every change until interrupted")
	topLevel.AddCommand(cmd)
}

func addFavorites(topLevel *cobra.Command, o *globalOptions) {
	var (
		limit  int
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "favorites",
		Short: "list favorite messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := o.printer()
			if err != nil {
				return err
			}
			c, _, err := o.connect()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			if follow {
				return c.FollowFavorites(cmd.Context(), limit, p.favorites)
			}
			ctx, cancel := o.context()
			defer cancel()
			favs, err := c.ListFavorites(ctx, limit)
			if err != nil {
				return err
			}
			return p.favorites(favs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of favorites")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "reprint favorites after every change until interrupted")
	topLevel.AddCommand(cmd)
}

func addMessages(topLevel *cobra.Command, o *globalOptions) {
	var limit int
	cmd := &cobra.Command{
		Use:   "messages <conversation-id>",
		Short: "list the latest messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := o.printer()
			if err != nil {
				return err
			}
			c, _, err := o.connect()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			ctx, cancel := o.context()
			defer cancel()
			resp, err := c.ListMessages(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return p.messages(resp)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of messages")
	topLevel.AddCommand(cmd)
}

func addWatch(topLevel *cobra.Command, o *globalOptions) {
	var req api.WatchRequest
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "stream change hints until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := o.printer()
			if err != nil {
				return err
			}
			c, _, err := o.connect()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			return c.Watch(cmd.Context(), req, p.change)
		},
	}
	cmd.Flags().StringVar(&req.Topic, "topic", "", "topic prefix, e.g. favorites.")
	cmd.Flags().StringVar(&req.ConversationID, "conversation", "", "only hints for this conversation")
	topLevel.AddCommand(cmd)
}

func addStatus(topLevel *cobra.Command, o *globalOptions) {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			p, err := o.printer()
			if err != nil {
				return err
			}
			c, _, err := o.connect()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			ctx, cancel := o.context()
			defer cancel()
			st, err := c.GetStatus(ctx)
			if err != nil {
				return err
			}
			return p.status(st)
		},
	}
	topLevel.AddCommand(cmd)
}

// followConversations prints every snapshot of a conversation feed until
// ctx ends.
func followConversations(ctx context.Context, c *client.Client, req api.ListConversationsRequest, show func(*api.ListConversationsResponse) error) error {
	feed, err := c.FollowConversations(ctx, req)
	if err != nil {
		return err
	}
	for {
		resp, err := feed.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := show(resp); err != nil {
			return err
		}
	}
}
