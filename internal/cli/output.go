package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
)

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeItemsTable(out io.Writer, items []StoredItem, wide bool) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if wide {
		fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tPUBLISHED\tINFERRED\tLINK\tSUMMARY")
		for _, it := range items {
			fmt.Fprintf(
				tw,
				"%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
				it.ID[:min(12, len(it.ID))],
				compactText(displayItemTitle(it), 56),
				compactText(fallback(deref(it.Author), "-"), 20),
				formatDateTime(it.PublishedAt),
				it.DateInferred,
				compactText(it.Link, 48),
				compactText(it.Description, 90),
			)
		}
	} else {
		fmt.Fprintln(tw, "PUBLISHED\tAUTHOR\tTITLE")
		for _, it := range items {
			fmt.Fprintf(
				tw,
				"%s\t%s\t%s\n",
				formatDateTime(it.PublishedAt),
				compactText(fallback(deref(it.Author), "-"), 20),
				compactText(displayItemTitle(it), 72),
			)
		}
	}
	_ = tw.Flush()
}

func writePostsTable(out io.Writer, posts []Post, wide bool) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if wide {
		fmt.Fprintln(tw, "ID\tCREATED\tAUTHOR\tCATEGORY\tYEAR\tMAJOR\tCLASS\tLIKES\tCONTENT")
		for _, p := range posts {
			year := "-"
			if p.TargetYear != nil {
				year = strconv.Itoa(*p.TargetYear)
			}
			fmt.Fprintf(
				tw,
				"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				p.ID,
				formatDateTime(p.CreatedAt),
				compactText(p.AuthorName, 20),
				p.Category,
				year,
				fallback(deref(p.TargetMajor), "-"),
				fallback(deref(p.TargetClass), "-"),
				p.LikeCount,
				compactText(p.Content, 90),
			)
		}
	} else {
		fmt.Fprintln(tw, "CREATED\tAUTHOR\tCATEGORY\tCONTENT")
		for _, p := range posts {
			fmt.Fprintf(
				tw,
				"%s\t%s\t%s\t%s\n",
				formatDateTime(p.CreatedAt),
				compactText(p.AuthorName, 20),
				p.Category,
				compactText(p.Content, 72),
			)
		}
	}
	_ = tw.Flush()
}

func writeResultsTable(out io.Writer, results []FeedResult) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLLECTION\tSAVED\tTRIMMED\tSKIPPED\tERROR")
	for _, r := range results {
		fmt.Fprintf(
			tw,
			"%s\t%d\t%d\t%t\t%s\n",
			r.Collection,
			r.SavedCount,
			r.Trimmed,
			r.Skipped,
			compactText(r.Error, 70),
		)
	}
	_ = tw.Flush()
}

func writeStatusTable(out io.Writer, rows []FeedStatus) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLLECTION\tLAST_RUN\tNEXT_ALLOWED\tURL")
	for _, r := range rows {
		fmt.Fprintf(
			tw,
			"%s\t%s\t%s\t%s\n",
			r.Collection,
			formatLastRun(r),
			formatNext(r),
			compactText(fallback(r.URL, "(unset)"), 56),
		)
	}
	_ = tw.Flush()
}

func formatLastRun(r FeedStatus) string {
	if r.Error != "" {
		return "unreadable"
	}
	return humanAgo(r.LastRun)
}

func formatNext(r FeedStatus) string {
	if r.NextAllowed == nil {
		return "now"
	}
	return formatDateTime(*r.NextAllowed)
}

func displayItemTitle(it StoredItem) string {
	if strings.TrimSpace(it.Title) != "" {
		return it.Title
	}
	if strings.TrimSpace(it.Description) != "" {
		return it.Description
	}
	if strings.TrimSpace(it.Link) != "" {
		return it.Link
	}
	return "(untitled)"
}
