package main

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/disiqueira/gotree/v3"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/pinsync/internal/models"
	"github.com/TheMichaelB/pinsync/internal/services/pins"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <path>...",
	Short: "Upload files or a folder and pin them",
	Long: `Upload adds each file to the IPFS node and pins it on the cluster with
the connected account as owner. A directory is uploaded as one folder pin.
Several files are uploaded one after another; a failed file does not stop
the rest.`,
	Example: `  pinsync upload report.pdf --tag DB
  pinsync upload ./site --folder-name "Web site" --tag アセット
  pinsync upload ./site --dry-run`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

var (
	uploadTags       []string
	uploadFolderName string
	uploadDryRun     bool
)

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().StringSliceVarP(&uploadTags, "tag", "t", nil,
		"Tag to attach (repeatable)")
	uploadCmd.Flags().StringVar(&uploadFolderName, "folder-name", "",
		"Pin name for a folder upload (default: directory name)")
	uploadCmd.Flags().BoolVar(&uploadDryRun, "dry-run", false,
		"Show what would be uploaded without uploading")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var dirs, files []string
	for _, p := range args {
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		if info.IsDir() {
			dirs = append(dirs, p)
		} else {
			files = append(files, p)
		}
	}
	if len(dirs) > 1 || (len(dirs) == 1 && len(files) > 0) {
		return fmt.Errorf("upload either files or a single directory")
	}

	if uploadDryRun {
		return previewUpload(dirs, files)
	}

	opts := pins.UploadOptions{Name: uploadFolderName, Tags: uploadTags}

	if len(dirs) == 1 {
		bar := newProgressBar(-1, "Staging folder")
		opts.Progress = progressFunc(bar)

		item, err := apiClient.UploadFolder(ctx, dirs[0], opts)
		_ = bar.Finish()
		if err != nil {
			return err
		}
		return reportUploaded([]models.PinnedItem{*item}, nil)
	}

	bar := newProgressBar(len(files), "Uploading")
	opts.Progress = progressFunc(bar)

	result, err := apiClient.UploadFiles(ctx, files, opts)
	_ = bar.Finish()
	if err != nil {
		return err
	}
	if err := reportUploaded(result.Items, result.Errors); err != nil {
		return err
	}
	if result.Succeeded == 0 {
		return fmt.Errorf("all %d uploads failed", result.Failed)
	}
	return nil
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	if jsonOutput {
		return progressbar.DefaultSilent(int64(total))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func progressFunc(bar *progressbar.ProgressBar) pins.ProgressFunc {
	return func(current, total int) {
		if bar.GetMax() != total {
			bar.ChangeMax(total)
		}
		_ = bar.Set(current)
	}
}

func reportUploaded(items []models.PinnedItem, errs []error) error {
	if jsonOutput {
		failures := make([]string, len(errs))
		for i, err := range errs {
			failures[i] = err.Error()
		}
		printJSON(map[string]interface{}{
			"success":   len(errs) == 0,
			"succeeded": len(items),
			"failed":    len(errs),
			"items":     views(items),
			"errors":    failures,
		})
		return nil
	}

	for _, it := range items {
		printSuccess("✓ %s  %s  %s", it.Label(), it.CID, formatBytes(it.Size))
	}
	for _, err := range errs {
		printError("%v", err)
	}
	if len(errs) > 0 {
		printWarning("%d succeeded, %d failed", len(items), len(errs))
	}
	return nil
}

// previewUpload prints the files an upload would send.
func previewUpload(dirs, files []string) error {
	var items []models.UploadItem
	var err error
	if len(dirs) == 1 {
		items, err = apiClient.Walker.Collect(dirs[0])
	} else {
		items, err = apiClient.Walker.Files(files)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		paths := make([]string, len(items))
		for i, it := range items {
			paths[i] = it.RelativePath
		}
		printJSON(map[string]interface{}{
			"files": paths,
			"bytes": models.TotalSize(items),
		})
		return nil
	}

	fmt.Print(buildTree(items).Print())
	printInfo("%d files, %s", len(items), formatBytes(models.TotalSize(items)))
	return nil
}

// buildTree nests items by path segment.
func buildTree(items []models.UploadItem) gotree.Tree {
	root := gotree.New(".")
	nodes := map[string]gotree.Tree{"": root}

	for _, it := range items {
		parts := strings.Split(it.RelativePath, "/")
		parent := ""
		for i, part := range parts {
			key := path.Join(parent, part)
			if _, ok := nodes[key]; !ok {
				label := part
				if i == len(parts)-1 {
					label = fmt.Sprintf("%s (%s)", part, formatBytes(it.Size))
				}
				nodes[key] = nodes[parent].Add(label)
			}
			parent = key
		}
	}
	return root
}
