package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/pinsync/internal/models"
	"github.com/TheMichaelB/pinsync/internal/services/pins"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List pins",
	Long: `List shows the connected account's pins, newest first. The cluster is
queried first unless --cached is given.`,
	Example: `  pinsync ls
  pinsync ls --tag DB --search report
  pinsync ls --all -o yaml`,
	Args: cobra.NoArgs,
	RunE: runLs,
}

var (
	lsTag    string
	lsSearch string
	lsAll    bool
	lsCached bool
	lsOutput string
)

func init() {
	rootCmd.AddCommand(lsCmd)

	lsCmd.Flags().StringVar(&lsTag, "tag", pins.TagAll, "Only pins with this tag")
	lsCmd.Flags().StringVarP(&lsSearch, "search", "s", "", "Search name, CID, tags and date")
	lsCmd.Flags().BoolVar(&lsAll, "all", false, "Include pins of every owner")
	lsCmd.Flags().BoolVar(&lsCached, "cached", false, "Use the cached pin list")
	lsCmd.Flags().StringVarP(&lsOutput, "output", "o", "table", "Output format: table, json, yaml")
}

// itemView is the listed form of a pin.
type itemView struct {
	Name        string   `json:"name" yaml:"name"`
	CID         string   `json:"cid" yaml:"cid"`
	Size        int64    `json:"size" yaml:"size"`
	Tags        []string `json:"tags" yaml:"tags"`
	Owner       string   `json:"owner,omitempty" yaml:"owner,omitempty"`
	CreatedAt   string   `json:"createdAt" yaml:"created_at"`
	Replication int      `json:"replication" yaml:"replication"`
	Folder      bool     `json:"folder,omitempty" yaml:"folder,omitempty"`
	FileCount   *int     `json:"fileCount,omitempty" yaml:"file_count,omitempty"`
}

func views(items []models.PinnedItem) []itemView {
	out := make([]itemView, len(items))
	for i, it := range items {
		out[i] = itemView{
			Name:        it.Name,
			CID:         it.CID,
			Size:        it.Size,
			Tags:        it.Tags,
			Owner:       it.Owner,
			CreatedAt:   it.CreatedAt,
			Replication: it.Replication,
			Folder:      it.IsFolder,
			FileCount:   it.FileCount,
		}
	}
	return out
}

func runLs(cmd *cobra.Command, args []string) error {
	if !lsCached {
		if _, err := apiClient.Refresh(cmd.Context()); err != nil {
			printWarning("Refresh failed, showing cached pins: %v", err)
		}
	}

	if !lsAll && apiClient.Account.Current() == "" {
		printWarning("No account connected; run 'pinsync connect' or pass --account")
	}

	items := apiClient.List(pins.Query{All: lsAll, Tag: lsTag, Search: lsSearch})

	format := lsOutput
	if jsonOutput {
		format = "json"
	}
	switch format {
	case "json":
		printJSON(views(items))
	case "yaml":
		printYAML(views(items))
	case "table":
		printTable(items)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
	return nil
}

func printTable(items []models.PinnedItem) {
	if len(items) == 0 {
		printInfo("No pins")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCID\tSIZE\tTAGS\tUPLOADED\tREPLICAS")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			it.Label(), it.CID, formatBytes(it.Size),
			strings.Join(it.Tags, ","), pins.DisplayDate(it.CreatedAt), it.Replication)
	}
	_ = w.Flush()

	stats := apiClient.Stats()
	fmt.Printf("\n%d files, %s, %d nodes\n", stats.Files, formatBytes(stats.TotalSize), stats.Nodes)
}
