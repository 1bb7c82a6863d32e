package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aravindh-murugesan/paperscout-go/internal/api"
)

var (
	searchKeywords      []string
	searchYear          int
	searchSource        string
	searchPaperTag      string
	pageIndex, pageSize int
	keywordCount        int
)

var searchCommand = &cobra.Command{
	Use:     "search",
	Short:   "Submit searches and browse their results",
	GroupID: "search",
}

var searchSubmitCommand = &cobra.Command{
	Use:   "submit <search words>",
	Short: "Create a search task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := api.SearchRequest{
			SearchWord: strings.Join(args, " "),
			Keywords:   searchKeywords,
			Tags: api.SearchTags{
				YearTag:   searchYear,
				SourceTag: strings.ToUpper(searchSource),
			},
		}
		if searchPaperTag != "" {
			req.Tags.PaperTag = &searchPaperTag
		}

		id, err := application.Client.SubmitSearch(commandContext(cmd), req)
		if err != nil {
			return err
		}
		return render(cmd, map[string]int64{"taskId": id}, func(w io.Writer) {
			label(w, "Task submitted", id)
		})
	},
}

var searchPapersCommand = &cobra.Command{
	Use:   "papers <task id>",
	Short: "List the papers a task found",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		res, err := application.Client.SearchPapers(commandContext(cmd), id, pageIndex, pageSize, nil)
		if err != nil {
			return err
		}
		return render(cmd, res, func(w io.Writer) {
			for _, p := range res.Papers {
				fmt.Fprintln(w, labelStyle.Render(p.Title))
				venue := p.Journal
				if p.JCRLevel != "" {
					venue += " " + p.JCRLevel
				}
				if p.CCFLevel != "" {
					venue += " CCF-" + p.CCFLevel
				}
				fmt.Fprintf(w, "  %d  %s  %s\n", p.Year, venue, mutedStyle.Render(fmt.Sprintf("%d citations", p.Citations)))
				if p.Link != "" {
					fmt.Fprintf(w, "  %s\n", mutedStyle.Render(p.Link))
				}
			}
			fmt.Fprintf(w, "\nPage %d/%d, %d papers\n", res.CurrentPage, res.TotalPages, res.TotalResults)
		})
	},
}

var searchRecentCommand = &cobra.Command{
	Use:   "recent",
	Short: "Show the search history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := application.Client.RecentSearches(commandContext(cmd), pageIndex, pageSize)
		if err != nil {
			return err
		}
		return render(cmd, page.List, func(w io.Writer) {
			for _, s := range page.List {
				fmt.Fprintf(w, "%6d  %s  %s\n", s.ID, mutedStyle.Render(s.SearchTime), s.SearchWord)
			}
		})
	},
}

var keywordsCommand = &cobra.Command{
	Use:     "keywords <search words>",
	Short:   "Suggest keywords for a search",
	GroupID: "search",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		words, err := application.Client.ExtractKeywords(commandContext(cmd), strings.Join(args, " "), keywordCount)
		if err != nil {
			return err
		}
		return render(cmd, words, func(w io.Writer) {
			fmt.Fprintln(w, strings.Join(words, ", "))
		})
	},
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func addPageFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&pageIndex, "page", 1, "Page number, starting at 1")
	cmd.Flags().IntVar(&pageSize, "size", 10, "Page size")
}

func init() {
	rootCommand.AddCommand(searchCommand, keywordsCommand)
	searchCommand.AddCommand(searchSubmitCommand, searchPapersCommand, searchRecentCommand)

	searchSubmitCommand.Flags().StringSliceVarP(&searchKeywords, "keyword", "k", nil, "Extra keyword, repeatable")
	searchSubmitCommand.Flags().IntVar(&searchYear, "year", 0, "Only papers from the last N years (0 = any)")
	searchSubmitCommand.Flags().StringVar(&searchSource, "source", "ALL", "Source: ALL, ARXIV, DBLP, GOOGLE_SCHOLAR")
	searchSubmitCommand.Flags().StringVar(&searchPaperTag, "paper-tag", "", "Venue filter, e.g. CCF-A")

	addPageFlags(searchPapersCommand)
	addPageFlags(searchRecentCommand)

	keywordsCommand.Flags().IntVarP(&keywordCount, "count", "n", 3, "Number of keywords")
}
