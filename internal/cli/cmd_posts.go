package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odysseus0/campusfeed/internal/posts"
)

func newPostsCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "List or add community posts",
	}
	cmd.AddCommand(newPostsListCmd(getApp, getOutput))
	cmd.AddCommand(newPostsAddCmd(getApp, getOutput))
	return cmd
}

func newPostsListCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	var limit int
	var startAfter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List posts newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			page, err := app.posts.Latest(cmd.Context(), posts.ListOptions{Limit: limit, StartAfter: startAfter})
			if err != nil {
				return fmt.Errorf("list posts: %w", err)
			}
			out := cmd.OutOrStdout()
			switch getOutput() {
			case OutputJSON:
				return writeJSON(out, page)
			case OutputWide:
				writePostsTable(out, page.Posts, true)
			default:
				writePostsTable(out, page.Posts, false)
			}
			if page.HasMore && len(page.Posts) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "more posts available: --start-after %s\n", page.Posts[len(page.Posts)-1].ID)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Result limit (1-100, default from config)")
	cmd.Flags().StringVar(&startAfter, "start-after", "", "Continue after this post ID")
	return cmd
}

func newPostsAddCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	var in posts.NewPost
	var year int
	var major, class string

	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Create a post",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			in.Content = strings.Join(args, " ")
			if cmd.Flags().Changed("year") {
				in.TargetYear = &year
			}
			if major != "" {
				in.TargetMajor = &major
			}
			if class != "" {
				in.TargetClass = &class
			}
			post, err := app.posts.Create(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("add post: %w", err)
			}
			if getOutput() == OutputJSON {
				return writeJSON(cmd.OutOrStdout(), AddPostResponse{Post: post})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created post %s\n", post.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.AuthorName, "author", "", "Author name")
	cmd.Flags().StringVar(&in.Category, "category", "", "Category: class or other")
	cmd.Flags().IntVar(&year, "year", 0, "Target year (1-6)")
	cmd.Flags().StringVar(&major, "major", "", "Target major: I, II or III")
	cmd.Flags().StringVar(&class, "class", "", "Target class")
	return cmd
}
