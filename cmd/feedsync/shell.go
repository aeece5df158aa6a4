package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"feedsync/internal/api"
	"feedsync/internal/app"
	"feedsync/internal/model"

	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive session that keeps the feed live in the cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			sh := &shell{app: a, out: os.Stdout, page: 1}
			return sh.run(ctx, os.Stdin)
		})
	},
}

// shell runs commands against one long-lived app so that subscriptions,
// optimistic patches and refetches are visible as they happen.
type shell struct {
	app  *app.App
	out  io.Writer
	page int

	unsubscribe func()
}

func (s *shell) run(ctx context.Context, in io.Reader) error {
	defer func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	}()

	fmt.Fprintln(s.out, "Type 'help' for commands, 'q' to quit.")
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(s.out, "> ")
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if fields[0] == "q" || fields[0] == "quit" {
				return nil
			}
			if err := s.exec(ctx, fields[0], fields[1:]); err != nil {
				fmt.Fprintln(s.out, "error:", err)
			}
		}
	}
}

func (s *shell) exec(ctx context.Context, name string, args []string) error {
	w := s.app.Writes
	switch name {
	case "help":
		fmt.Fprintln(s.out, "feed | more | user <id> | article <id> | post <text> | edit <id> <text> | delete <id>")
		fmt.Fprintln(s.out, "like <id> | unlike <id> | bookmark <id> | unbookmark <id> | repost <id> | comment <id> <text>")
		fmt.Fprintln(s.out, "profile <userId> | follow <userId> | unfollow <userId> | q")
		return nil
	case "feed":
		return s.watchGlobal(ctx)
	case "more":
		s.page++
		_, err := s.app.Feeds.Global(ctx, s.page)
		return err
	case "user":
		if len(args) != 1 {
			return errors.New("usage: user <id>")
		}
		p, err := s.app.Feeds.User(ctx, args[0], 1)
		if err == nil {
			printFeed(s.out, p)
		}
		return err
	case "article":
		if len(args) != 1 {
			return errors.New("usage: article <id>")
		}
		a, err := s.app.Feeds.Article(ctx, args[0])
		if err == nil {
			printArticle(s.out, a)
		}
		return err
	case "post":
		_, err := w.CreateArticle(ctx, api.ArticleParams{Text: strings.Join(args, " ")})
		return err
	}

	if len(args) == 0 {
		return fmt.Errorf("unknown command %q", name)
	}
	id, rest := args[0], strings.Join(args[1:], " ")
	switch name {
	case "edit":
		_, err := w.EditArticle(ctx, id, api.ArticleParams{Text: rest})
		return err
	case "delete":
		return w.DeleteArticle(ctx, id)
	case "like", "unlike":
		return w.ToggleLike(ctx, id, name == "unlike")
	case "bookmark", "unbookmark":
		return w.ToggleBookmark(ctx, id, name == "unbookmark")
	case "repost":
		_, err := w.Repost(ctx, id)
		return err
	case "comment":
		_, err := w.CreateComment(ctx, id, rest)
		return err
	case "profile":
		u, err := s.app.Feeds.Profile(ctx, id)
		if err == nil {
			printProfile(s.out, u)
		}
		return err
	case "follow", "unfollow":
		return w.ToggleFollow(ctx, id, name == "unfollow")
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

// watchGlobal loads the global feed and prints it again on every change.
func (s *shell) watchGlobal(ctx context.Context) error {
	p, err := s.app.Feeds.Global(ctx, s.page)
	if err != nil {
		return err
	}
	if s.unsubscribe == nil {
		s.unsubscribe = s.app.Cache.Subscribe(s.app.Feeds.GlobalKey(), func(v any) {
			if page, ok := v.(*model.FeedPage); ok {
				fmt.Fprintln(s.out)
				printFeed(s.out, page)
			}
		})
	}
	printFeed(s.out, p)
	return nil
}
