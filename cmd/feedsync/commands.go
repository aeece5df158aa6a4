package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"feedsync/internal/api"
	"feedsync/internal/app"
	"feedsync/internal/cache"
	"feedsync/internal/model"

	"github.com/spf13/cobra"
)

func authCommands() []*cobra.Command {
	var email, password, firstName, secondName string

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.SignIn(ctx, api.Credentials{Email: email, Password: password}); err != nil {
					return err
				}
				fmt.Println("Signed in as", a.Auth.UserID())
				return nil
			})
		},
	}
	loginCmd.Flags().StringVar(&email, "email", "", "Account email")
	loginCmd.Flags().StringVar(&password, "password", "", "Account password")

	signupCmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				err := a.SignUp(ctx, api.SignUpParams{
					Email:      email,
					Password:   password,
					FirstName:  firstName,
					SecondName: secondName,
				})
				if err != nil {
					return err
				}
				fmt.Println("Signed up as", a.Auth.UserID())
				return nil
			})
		},
	}
	signupCmd.Flags().StringVar(&email, "email", "", "Account email")
	signupCmd.Flags().StringVar(&password, "password", "", "Account password")
	signupCmd.Flags().StringVar(&firstName, "first-name", "", "First name")
	signupCmd.Flags().StringVar(&secondName, "second-name", "", "Second name")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the session and the cached feeds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.SignOut(ctx)
			})
		},
	}

	whoamiCmd := &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in user id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				id, err := a.Auth.RequireUser()
				if err != nil {
					return err
				}
				fmt.Println(id)
				return nil
			})
		},
	}

	return []*cobra.Command{loginCmd, signupCmd, logoutCmd, whoamiCmd}
}

func readCommands() []*cobra.Command {
	var page int
	var userID string

	feedCmd := &cobra.Command{
		Use:   "feed",
		Short: "Show the global feed, or one user's feed with --user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				var p *model.FeedPage
				var err error
				key := a.Feeds.GlobalKey()
				if userID != "" {
					key = a.Feeds.UserKey(userID)
					p, err = a.Feeds.User(ctx, userID, page)
				} else {
					p, err = a.Feeds.Global(ctx, page)
				}
				if err != nil {
					if p = offlineCopy(a.Cache, key, err); p == nil {
						return err
					}
				}
				printFeed(os.Stdout, p)
				return nil
			})
		},
	}
	feedCmd.Flags().IntVar(&page, "page", 1, "Load pages up to this one")
	feedCmd.Flags().StringVar(&userID, "user", "", "Show this user's articles")

	bookmarksCmd := &cobra.Command{
		Use:   "bookmarks",
		Short: "Show your bookmarked articles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				me, err := a.Auth.RequireUser()
				if err != nil {
					return err
				}
				p, err := a.Feeds.Bookmarks(ctx, me, page)
				if err != nil {
					if p = offlineCopy(a.Cache, a.Feeds.BookmarksKey(me), err); p == nil {
						return err
					}
				}
				printFeed(os.Stdout, p)
				return nil
			})
		},
	}
	bookmarksCmd.Flags().IntVar(&page, "page", 1, "Load pages up to this one")

	articleCmd := &cobra.Command{
		Use:   "article [id]",
		Short: "Show one article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				article, err := a.Feeds.Article(ctx, args[0])
				if err != nil {
					return err
				}
				printArticle(os.Stdout, article)
				return nil
			})
		},
	}

	return []*cobra.Command{feedCmd, bookmarksCmd, articleCmd}
}

func writeCommands() []*cobra.Command {
	var images []string
	var undo bool

	postCmd := &cobra.Command{
		Use:   "post [text]",
		Short: "Publish an article",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				files, closeAll, err := openImages(images)
				if err != nil {
					return err
				}
				defer closeAll()

				created, err := a.Writes.CreateArticle(ctx, api.ArticleParams{Text: strings.Join(args, " "), Images: files})
				if err != nil {
					return err
				}
				fmt.Println("Published", created.ID)
				return nil
			})
		},
	}
	postCmd.Flags().StringSliceVar(&images, "image", nil, "Attach an image file (repeatable)")

	shareCmd := &cobra.Command{
		Use:   "share [url]",
		Short: "Publish an article sharing a web page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				params, err := a.Composer.FromURL(args[0])
				if err != nil {
					return err
				}
				created, err := a.Writes.CreateArticle(ctx, params)
				if err != nil {
					return err
				}
				fmt.Println("Published", created.ID)
				return nil
			})
		},
	}

	editCmd := &cobra.Command{
		Use:   "edit [id] [text]",
		Short: "Replace the text of an article",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				_, err := a.Writes.EditArticle(ctx, args[0], api.ArticleParams{Text: strings.Join(args[1:], " ")})
				return err
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete an article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Writes.DeleteArticle(ctx, args[0])
			})
		},
	}

	likeCmd := &cobra.Command{
		Use:   "like [id]",
		Short: "Like an article (--undo to unlike)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Writes.ToggleLike(ctx, args[0], undo)
			})
		},
	}
	likeCmd.Flags().BoolVar(&undo, "undo", false, "Remove the like")

	bookmarkCmd := &cobra.Command{
		Use:   "bookmark [id]",
		Short: "Bookmark an article (--undo to remove)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Writes.ToggleBookmark(ctx, args[0], undo)
			})
		},
	}
	bookmarkCmd.Flags().BoolVar(&undo, "undo", false, "Remove the bookmark")

	repostCmd := &cobra.Command{
		Use:   "repost [id]",
		Short: "Repost an article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				repost, err := a.Writes.Repost(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Println("Reposted as", repost.ID)
				return nil
			})
		},
	}

	commentCmd := &cobra.Command{
		Use:   "comment [id] [text]",
		Short: "Comment on an article",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				_, err := a.Writes.CreateComment(ctx, args[0], strings.Join(args[1:], " "))
				return err
			})
		},
	}

	followCmd := &cobra.Command{
		Use:   "follow [userId]",
		Short: "Follow a user (--undo to unfollow)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if undo {
					return a.API.Unfollow(ctx, args[0])
				}
				return a.API.Follow(ctx, args[0])
			})
		},
	}
	followCmd.Flags().BoolVar(&undo, "undo", false, "Unfollow instead")

	return []*cobra.Command{postCmd, shareCmd, editCmd, deleteCmd, likeCmd, bookmarkCmd, repostCmd, commentCmd, followCmd}
}

func profileCommands() []*cobra.Command {
	var params api.UserParams
	var avatar string

	profileCmd := &cobra.Command{
		Use:   "profile [userId]",
		Short: "Show a user's profile (yours by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				id, err := profileTarget(a, args)
				if err != nil {
					return err
				}
				u, err := a.Feeds.Profile(ctx, id)
				if err != nil {
					return err
				}
				printProfile(os.Stdout, u)
				return nil
			})
		},
	}

	editProfileCmd := &cobra.Command{
		Use:   "edit-profile",
		Short: "Change your name, bio or avatar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				me, err := a.Auth.RequireUser()
				if err != nil {
					return err
				}
				if avatar != "" {
					files, closeAll, err := openImages([]string{avatar})
					if err != nil {
						return err
					}
					defer closeAll()
					params.Avatar = &files[0]
				}
				u, err := a.Writes.EditUser(ctx, me, params)
				if err != nil {
					return err
				}
				printProfile(os.Stdout, u)
				return nil
			})
		},
	}
	editProfileCmd.Flags().StringVar(&params.FirstName, "first-name", "", "New first name")
	editProfileCmd.Flags().StringVar(&params.SecondName, "second-name", "", "New second name")
	editProfileCmd.Flags().StringVar(&params.Bio, "bio", "", "New bio")
	editProfileCmd.Flags().StringVar(&avatar, "avatar", "", "Path to a jpeg avatar")

	return []*cobra.Command{profileCmd, editProfileCmd}
}

func profileTarget(a *app.App, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	return a.Auth.RequireUser()
}

// offlineCopy returns the last saved copy of a feed when err is a network
// failure, or nil.
func offlineCopy(c *cache.Store, key cache.Key, err error) *model.FeedPage {
	var netErr *api.NetworkError
	if !errors.As(err, &netErr) {
		return nil
	}
	v, ok := c.Peek(key)
	if !ok {
		return nil
	}
	page, ok := v.(*model.FeedPage)
	if !ok {
		return nil
	}
	fmt.Fprintln(os.Stderr, "offline, showing the last saved copy:", err)
	return page
}

func openImages(paths []string) ([]api.File, func(), error) {
	var files []api.File
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open image: %w", err)
		}
		opened = append(opened, f)
		files = append(files, api.File{Name: filepath.Base(p), Content: f})
	}
	return files, closeAll, nil
}

func printFeed(w io.Writer, p *model.FeedPage) {
	if p == nil || len(p.Data) == 0 {
		fmt.Fprintln(w, "(empty)")
		return
	}
	for i := range p.Data {
		a := &p.Data[i]
		fmt.Fprintf(w, "%s  ♥%d ↻%d\n", a.Summary(), len(a.Likes), len(a.Reposts))
	}
	fmt.Fprintf(w, "-- %d articles, %d pages --\n", len(p.Data), p.TotalPages)
}

func printProfile(w io.Writer, u *model.User) {
	fmt.Fprintf(w, "id:         %s\n", u.ID)
	fmt.Fprintf(w, "name:       %s\n", u.FullName())
	fmt.Fprintf(w, "followers:  %d\n", len(u.Followers))
	fmt.Fprintf(w, "followings: %d\n", len(u.Followings))
	if u.Avatar != "" {
		fmt.Fprintf(w, "avatar:     %s\n", u.Avatar)
	}
	if u.Bio != "" {
		fmt.Fprintf(w, "\n%s\n", u.Bio)
	}
}

func printArticle(w io.Writer, a *model.Article) {
	fmt.Fprintf(w, "id:        %s\n", a.ID)
	fmt.Fprintf(w, "author:    %s\n", a.Author)
	fmt.Fprintf(w, "likes:     %d\n", len(a.Likes))
	fmt.Fprintf(w, "reposts:   %d\n", len(a.Reposts))
	fmt.Fprintf(w, "comments:  %d\n", len(a.Comments))
	if a.RepostedArticle != nil {
		fmt.Fprintf(w, "repost of: %s\n", a.RepostedArticle.ID)
	}
	fmt.Fprintf(w, "\n%s\n", a.Text)
}
